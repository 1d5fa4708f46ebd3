// Package apps implements BadgeVMS's AppRegistry: per-application
// directories and JSON metadata under a base applications directory, plus
// enumeration, lookup and launch.
//
// Grounded on badgevms/application.c from the original firmware: the JSON
// sidecar file is the source of truth, setters re-serialize on every call,
// and destroy recursively removes the app's installed directory (spec.md
// §9 resolves the original's ambiguity about the sidecar file by requiring
// destroy to remove it too, which this implementation does).
package apps

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"
	"github.com/imdario/mergo"
	"github.com/mattn/go-shellwords"
	"github.com/pkg/errors"

	"github.com/sgielen/why2025-clife-sub001/pkg/vklog"
	"github.com/sgielen/why2025-clife-sub001/pkg/vpath"
)

// Source identifies where an application's bits came from.
type Source int

const (
	SourceUnknown Source = iota
	SourceBadgehub
)

// Application is one installed app's metadata, mirroring application_t.
type Application struct {
	UniqueIdentifier string `json:"unique_identifier"`
	Name             string `json:"name"`
	Author           string `json:"author"`
	Version          string `json:"version"`
	Interpreter      string `json:"interpreter"`
	MetadataFile     string `json:"metadata_file"`
	BinaryPath       string `json:"binary_path"`
	Source           Source `json:"source"`

	// LaunchArgs is a shell-quoted extra argument string split into argv
	// by github.com/mattn/go-shellwords at launch time, letting an
	// installed app declare default flags (e.g. a debug app declaring
	// "--verbose --log-level trace") without the registry needing its
	// own argv[] persistence format.
	LaunchArgs string `json:"launch_args,omitempty"`

	// InstalledPath is derived, not persisted: apps_dir/<unique_identifier>.
	InstalledPath string `json:"-"`
}

var (
	// ErrNoBaseDir is returned when the registry hasn't been initialized.
	ErrNoBaseDir = errors.New("apps: base directory not configured")
	// ErrAlreadyExists is returned by Create when metadata already exists.
	ErrAlreadyExists = errors.New("apps: metadata already exists")
	// ErrInvalidID is returned when an id contains illegal characters.
	ErrInvalidID = errors.New("apps: invalid unique_identifier")
	// ErrNotFound is returned by Get when no metadata file exists.
	ErrNotFound = errors.New("apps: not found")
	// ErrInvalidPath is returned by path-valued setters whose argument
	// doesn't resolve inside the app's installed_path.
	ErrInvalidPath = errors.New("apps: path escapes installed_path")
)

// Registry is the process-wide application registry, rooted at a base
// applications directory configured by Init.
type Registry struct {
	appsDir  string
	flashDir string
	sdDir    string
	log      vklog.Logger

	launcher func(absoluteBinaryPath string, argv []string) (int, error)
}

// New creates an uninitialized Registry; call Init before using it.
func New(log vklog.Logger) *Registry {
	if log == nil {
		log = &vklog.CLI{}
	}
	return &Registry{log: log}
}

// Init configures the three base directories BadgeVMS mounts at boot,
// creating each if missing.
func (r *Registry) Init(appsDir, flashDir, sdDir string) error {
	for _, dir := range []string{appsDir, flashDir, sdDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "creating %s", dir)
		}
	}
	r.appsDir = appsDir
	r.flashDir = flashDir
	r.sdDir = sdDir
	return nil
}

// SetLauncher wires the callback Launch uses to hand a resolved binary path
// and argv off to process.Manager.Spawn. Kept as an injected function
// rather than a direct import, so pkg/apps does not depend on pkg/process.
func (r *Registry) SetLauncher(fn func(absoluteBinaryPath string, argv []string) (int, error)) {
	r.launcher = fn
}

func (r *Registry) metadataPath(id string) string {
	return filepath.Join(r.appsDir, id+".json")
}

func (r *Registry) appDir(id string) string {
	return filepath.Join(r.appsDir, id)
}

func (a *Application) toJSON() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

func fromJSON(data []byte) (*Application, error) {
	app := new(Application)
	if err := json.Unmarshal(data, app); err != nil {
		return nil, err
	}
	return app, nil
}

func (r *Registry) persist(app *Application) bool {
	data, err := app.toJSON()
	if err != nil {
		r.log.Errorf("apps: marshaling %s: %v", app.UniqueIdentifier, err)
		return false
	}

	tmp := r.metadataPath(app.UniqueIdentifier) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		r.log.Errorf("apps: writing %s: %v", app.UniqueIdentifier, err)
		return false
	}
	if err := os.Rename(tmp, r.metadataPath(app.UniqueIdentifier)); err != nil {
		r.log.Errorf("apps: committing %s: %v", app.UniqueIdentifier, err)
		return false
	}
	return true
}

// Create makes a new application: it fails if the metadata file already
// exists, if the base directory isn't configured, or if id isn't legal as
// a device-style filename.
func (r *Registry) Create(id, name, author, version, interpreter string, source Source) (*Application, error) {
	if r.appsDir == "" {
		return nil, ErrNoBaseDir
	}
	if !vpath.ValidDeviceName(id) {
		return nil, ErrInvalidID
	}

	metaPath := r.metadataPath(id)
	fh, err := os.OpenFile(metaPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrAlreadyExists
		}
		return nil, errors.Wrap(err, "creating metadata file")
	}
	defer fh.Close()

	app := &Application{
		UniqueIdentifier: id,
		Name:             name,
		Author:           author,
		Version:          version,
		Interpreter:      interpreter,
		Source:           source,
		InstalledPath:    r.appDir(id),
	}

	if err := os.MkdirAll(app.InstalledPath, 0o755); err != nil {
		os.Remove(metaPath)
		return nil, errors.Wrap(err, "creating app directory")
	}

	data, err := app.toJSON()
	if err != nil {
		return nil, err
	}
	if _, err := fh.Write(data); err != nil {
		return nil, errors.Wrap(err, "writing metadata")
	}

	return app, nil
}

// Get loads an application's metadata, or ErrNotFound if it has none.
func (r *Registry) Get(id string) (*Application, error) {
	data, err := os.ReadFile(r.metadataPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	app, err := fromJSON(data)
	if err != nil {
		return nil, errors.Wrap(err, "malformed metadata")
	}
	app.InstalledPath = r.appDir(id)
	return app, nil
}

// Iterator yields installed apps in directory order; each App it returns is
// an independent snapshot.
type Iterator struct {
	apps []*Application
	idx  int
}

// Next returns the next application, or nil when exhausted.
func (it *Iterator) Next() *Application {
	if it.idx >= len(it.apps) {
		return nil
	}
	app := it.apps[it.idx]
	it.idx++
	return app
}

// Close releases the iterator's in-memory snapshot.
func (it *Iterator) Close() {
	it.apps = nil
}

// List enumerates *.json files in the apps root, in readdir order, and
// returns an iterator over their parsed Applications.
func (r *Registry) List() (*Iterator, error) {
	if r.appsDir == "" {
		return nil, ErrNoBaseDir
	}

	entries, err := os.ReadDir(r.appsDir)
	if err != nil {
		return nil, errors.Wrap(err, "reading apps directory")
	}

	g := glob.MustCompile("*.json")
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	it := &Iterator{}
	for _, entry := range entries {
		if entry.IsDir() || !g.Match(entry.Name()) {
			continue
		}
		id := entry.Name()[:len(entry.Name())-len(".json")]
		app, err := r.Get(id)
		if err != nil {
			r.log.Warnf("apps: skipping %s: %v", entry.Name(), err)
			continue
		}
		it.apps = append(it.apps, app)
	}

	return it, nil
}

// validateInstalledPath ensures relative resolves, via path/filepath, to
// somewhere inside app.InstalledPath, per spec.md §4.4's requirement on
// path-valued setters.
func validateInstalledPath(app *Application, relative string) bool {
	if relative == "" {
		return true
	}
	joined := filepath.Join(app.InstalledPath, relative)
	rel, err := filepath.Rel(app.InstalledPath, joined)
	if err != nil {
		return false
	}
	return rel == "." || (len(rel) > 0 && rel[0] != '.')
}

// setField merges a single-field patch onto app's in-memory snapshot with
// mergo (overwriting only the field the patch actually sets) and persists
// the result, returning false on any I/O failure.
func (r *Registry) setField(app *Application, patch *Application) bool {
	if err := mergo.Merge(app, patch, mergo.WithOverride); err != nil {
		r.log.Errorf("apps: merging patch for %s: %v", app.UniqueIdentifier, err)
		return false
	}
	return r.persist(app)
}

// SetMetadata updates metadata_file and persists.
func (r *Registry) SetMetadata(app *Application, metadataFile string) bool {
	if !validateInstalledPath(app, metadataFile) {
		return false
	}
	return r.setField(app, &Application{MetadataFile: metadataFile})
}

// SetBinaryPath updates binary_path and persists.
func (r *Registry) SetBinaryPath(app *Application, binaryPath string) bool {
	if !validateInstalledPath(app, binaryPath) {
		return false
	}
	return r.setField(app, &Application{BinaryPath: binaryPath})
}

// SetVersion updates version and persists.
func (r *Registry) SetVersion(app *Application, version string) bool {
	return r.setField(app, &Application{Version: version})
}

// SetAuthor updates author and persists.
func (r *Registry) SetAuthor(app *Application, author string) bool {
	return r.setField(app, &Application{Author: author})
}

// SetInterpreter updates interpreter and persists.
func (r *Registry) SetInterpreter(app *Application, interpreter string) bool {
	return r.setField(app, &Application{Interpreter: interpreter})
}

// SetName updates name and persists.
func (r *Registry) SetName(app *Application, name string) bool {
	return r.setField(app, &Application{Name: name})
}

// SetLaunchArgs updates launch_args and persists.
func (r *Registry) SetLaunchArgs(app *Application, launchArgs string) bool {
	return r.setField(app, &Application{LaunchArgs: launchArgs})
}

// Destroy recursively removes the app's installed directory and its
// sidecar metadata file — BadgeVMS resolves the original's ambiguity here
// (spec.md §9 Open Questions) by removing both, which is required for
// List to exclude the id afterward.
func (r *Registry) Destroy(app *Application) bool {
	if app == nil {
		return false
	}
	if !vpath.RmRf(app.InstalledPath) {
		return false
	}
	if err := os.Remove(r.metadataPath(app.UniqueIdentifier)); err != nil && !os.IsNotExist(err) {
		r.log.Errorf("apps: removing metadata for %s: %v", app.UniqueIdentifier, err)
		return false
	}
	return true
}

// Launch resolves binary_path relative to installed_path and hands it to
// the injected launcher (process.Manager.Spawn).
func (r *Registry) Launch(id string) (int, error) {
	if r.launcher == nil {
		return -1, errors.New("apps: no launcher configured")
	}
	app, err := r.Get(id)
	if err != nil {
		return -1, err
	}
	if app.BinaryPath == "" || app.InstalledPath == "" {
		return -1, errors.Errorf("apps: %s has no binary_path/installed_path", id)
	}

	binaryPath := filepath.Join(app.InstalledPath, app.BinaryPath)
	argv := []string{app.BinaryPath}
	if app.LaunchArgs != "" {
		extra, err := shellwords.Parse(app.LaunchArgs)
		if err != nil {
			return -1, errors.Wrapf(err, "apps: parsing launch_args for %s", id)
		}
		argv = append(argv, extra...)
	}
	return r.launcher(binaryPath, argv)
}

// CreateFileString ensures the intermediate directories for relative exist
// under app's installed_path, and returns the absolute path.
func (r *Registry) CreateFileString(app *Application, relative string) (string, error) {
	if app == nil || app.InstalledPath == "" || relative == "" {
		return "", errors.New("apps: missing app or installed_path")
	}
	absolute := filepath.Join(app.InstalledPath, relative)
	if err := os.MkdirAll(filepath.Dir(absolute), 0o755); err != nil {
		return "", err
	}
	return absolute, nil
}

// CreateFile is CreateFileString followed by an O_CREATE|O_WRONLY open.
func (r *Registry) CreateFile(app *Application, relative string) (*os.File, error) {
	absolute, err := r.CreateFileString(app, relative)
	if err != nil {
		return nil, err
	}
	return os.Create(absolute)
}

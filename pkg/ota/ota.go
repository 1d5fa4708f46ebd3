// Package ota implements BadgeVMS's OtaUpdater: application updates
// (per-file atomic replace against a revisioned hub) and firmware updates
// (streamed session with a single commit point).
//
// Grounded on sdk_apps/why2025_ota/ota_update.c: the revision-probe ->
// version-compare -> per-file-inst-then-rename shape, and the ping/
// project-summary endpoints from spec.md §6's Badgehub API. Concurrent
// per-file fetches use golang.org/x/sync/errgroup, and firmware streaming
// uses github.com/djherbis/nio's buffered pipe so the HTTP read side and
// the flash-commit write side run as independent stages.
package ota

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/djherbis/buffer"
	"github.com/djherbis/nio"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/sgielen/why2025-clife-sub001/pkg/apps"
	"github.com/sgielen/why2025-clife-sub001/pkg/httpclient"
	"github.com/sgielen/why2025-clife-sub001/pkg/vklog"
)

var (
	ErrNoUpdate       = errors.New("ota: no update available")
	ErrPartialUpdate  = errors.New("ota: one or more files failed to update")
	ErrSessionClosed  = errors.New("ota: session already committed or abandoned")
	ErrFirmwareWriter = errors.New("ota: firmware write failed")
)

// ManifestFile is one entry in a project revision's file listing.
type ManifestFile struct {
	URL      string `json:"url"`
	FullPath string `json:"full_path"`
}

// ApplicationMetadata is the application block of a project revision
// manifest.
type ApplicationMetadata struct {
	Executable string `json:"executable"`
}

// RevisionManifest is `GET BASE/projects/<slug>/rev<N>`'s body.
type RevisionManifest struct {
	Name  string         `json:"name"`
	Files []ManifestFile `json:"files"`
	App   struct {
		Application []ApplicationMetadata `json:"application"`
	} `json:"app_metadata"`
}

// ProjectSummary is one entry of `GET BASE/project-summaries`.
type ProjectSummary struct {
	Slug string `json:"slug"`
}

// Updater implements both BadgeVMS update protocols against BaseURL.
type Updater struct {
	BaseURL         string
	FirmwareSlug    string
	RunningFirmware string

	log vklog.View
}

// New creates an Updater against baseURL (e.g. "https://badgehub.example/api/v3").
func New(log vklog.View, baseURL, firmwareSlug, runningFirmware string) *Updater {
	if log == nil {
		log = &vklog.CLI{DisableTTY: true}
	}
	return &Updater{BaseURL: strings.TrimRight(baseURL, "/"), FirmwareSlug: firmwareSlug, RunningFirmware: runningFirmware, log: log}
}

func (u *Updater) get(path string) (*httpclient.Handle, []byte, error) {
	h := httpclient.Init()
	h.SetURL(u.BaseURL + path)
	h.SetUserAgent("badgevms-ota")

	var buf []byte
	h.SetWriteCallback(func(p []byte) (int, error) {
		buf = append(buf, p...)
		return len(p), nil
	})

	if err := h.Perform(); err != nil {
		return h, nil, err
	}
	return h, buf, nil
}

func (u *Updater) latestRevision(slug string) (int, error) {
	_, body, err := u.get(fmt.Sprintf("/project-latest-revisions/%s", slug))
	if err != nil {
		return 0, errors.Wrapf(err, "fetching latest revision for %s", slug)
	}
	rev, err := strconv.Atoi(strings.TrimSpace(string(body)))
	if err != nil {
		return 0, errors.Wrapf(err, "parsing revision for %s", slug)
	}
	return rev, nil
}

func (u *Updater) remoteVersion(slug string, revision int) (string, error) {
	_, body, err := u.get(fmt.Sprintf("/projects/%s/rev%d/files/version.txt", slug, revision))
	if err != nil {
		return "", errors.Wrapf(err, "fetching version.txt for %s rev%d", slug, revision)
	}
	return strings.TrimSpace(string(body)), nil
}

func (u *Updater) manifest(slug string, revision int) (*RevisionManifest, error) {
	_, body, err := u.get(fmt.Sprintf("/projects/%s/rev%d", slug, revision))
	if err != nil {
		return nil, errors.Wrapf(err, "fetching manifest for %s rev%d", slug, revision)
	}
	var m RevisionManifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, errors.Wrap(err, "parsing manifest")
	}
	return &m, nil
}

// CompareVersions implements the glossary's natural version ordering:
// dot-separated numeric components compared left to right, shorter
// sequences padded with zero. It returns -1, 0, or 1 like strings.Compare.
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

// CheckForUpdates probes slug's latest revision and compares its
// version.txt against app's installed version, per spec.md §4.10 step 2.
// It returns the remote version, the revision, and whether the remote
// version is newer than the installed one.
func (u *Updater) CheckForUpdates(app *apps.Application, slug string) (string, int, bool, error) {
	revision, err := u.latestRevision(slug)
	if err != nil {
		return "", 0, false, err
	}
	remoteVersion, err := u.remoteVersion(slug, revision)
	if err != nil {
		return "", 0, false, err
	}
	newer := CompareVersions(remoteVersion, app.Version) > 0
	return remoteVersion, revision, newer, nil
}

// UpdateApplication downloads every file in slug's rev<N> manifest
// independently to "<installed_path>/<full_path>.inst", and on each file's
// full success atomically renames it over the existing file, per spec.md
// §4.10 step 4. A failure on one file marks the overall update failed but
// does not stop the others from proceeding. On overall success, the
// registry's version/metadata_file/name/binary_path are updated.
func (u *Updater) UpdateApplication(registry *apps.Registry, app *apps.Application, slug string, revision int, remoteVersion string) error {
	m, err := u.manifest(slug, revision)
	if err != nil {
		return err
	}

	var g errgroup.Group
	failed := make(chan string, len(m.Files))

	for _, file := range m.Files {
		file := file
		g.Go(func() error {
			if err := u.updateFile(app, file); err != nil {
				u.log.Warnf("ota: %s failed: %v", file.FullPath, err)
				failed <- file.FullPath
				return nil // independent failure, not fatal to the group
			}
			return nil
		})
	}
	_ = g.Wait()
	close(failed)

	var failedFiles []string
	for f := range failed {
		failedFiles = append(failedFiles, f)
	}

	if len(failedFiles) > 0 {
		return errors.Wrapf(ErrPartialUpdate, "%v", failedFiles)
	}

	registry.SetVersion(app, remoteVersion)
	registry.SetMetadata(app, "metadata.json")
	registry.SetName(app, m.Name)
	if len(m.App.Application) > 0 {
		registry.SetBinaryPath(app, m.App.Application[0].Executable)
	}
	return nil
}

func (u *Updater) updateFile(app *apps.Application, file ManifestFile) error {
	finalPath := filepath.Join(app.InstalledPath, file.FullPath)
	instPath := finalPath + ".inst"

	if err := os.MkdirAll(filepath.Dir(instPath), 0o755); err != nil {
		return err
	}

	progress := u.log.NewProgress(file.FullPath, 0)

	h := httpclient.Init()
	h.SetURL(file.URL)
	h.SetDestFile(instPath)
	err := h.Perform()
	progress.Finish(err == nil)
	if err != nil {
		os.Remove(instPath)
		return err
	}

	os.Remove(finalPath)
	return os.Rename(instPath, finalPath)
}

// CheckForFirmwareUpdates compares the hub's latest firmware revision
// against RunningFirmware, per spec.md §4.10's firmware protocol steps 1-2.
func (u *Updater) CheckForFirmwareUpdates() (string, int, bool, error) {
	revision, err := u.latestRevision(u.FirmwareSlug)
	if err != nil {
		return "", 0, false, err
	}
	remoteVersion, err := u.remoteVersion(u.FirmwareSlug, revision)
	if err != nil {
		return "", 0, false, err
	}
	newer := CompareVersions(remoteVersion, u.RunningFirmware) > 0
	return remoteVersion, revision, newer, nil
}

// Session is an in-progress firmware write; Commit is the single point of
// no return (spec.md §4.10: "firmware is double-banked at the collaborator
// layer; commit is the single point of no return"). ImageWriter is the
// out-of-scope flash-commit collaborator.
type Session struct {
	id     string
	writer ImageWriter
	pipeW  *nio.PipeWriter
	pipeR  *nio.PipeReader
	done   chan error
	closed bool
}

// ImageWriter is the collaborator that actually writes a firmware image to
// the inactive bank and flips the boot pointer on commit — scoped out of
// this specification per spec.md §1 ("the radio chip's firmware" and
// flash driver are collaborators).
type ImageWriter interface {
	io.Writer
	Commit() error
	Abort() error
}

// OpenSession starts a firmware session streaming into writer; Write
// copies through a buffered pipe so the HTTP reader and writer collaborator
// run as independent pipeline stages.
func OpenSession(writer ImageWriter) *Session {
	pr, pw := nio.NewPipe(buffer.New(1 << 20))
	s := &Session{id: uuid.NewString(), writer: writer, pipeW: pw, pipeR: pr, done: make(chan error, 1)}

	go func() {
		_, err := io.Copy(writer, pr)
		s.done <- err
	}()

	return s
}

// ID returns the session's correlation id, for logging.
func (s *Session) ID() string { return s.id }

// Write streams bytes into the session, mirroring ota_write.
func (s *Session) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrSessionClosed
	}
	n, err := s.pipeW.Write(p)
	if err != nil {
		return n, errors.Wrap(ErrFirmwareWriter, err.Error())
	}
	return n, nil
}

// Commit closes the write side, waits for the pipeline to drain, and
// commits the image writer — activating the new image for next boot. Any
// error leaves the active-image pointer untouched.
func (s *Session) Commit() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	s.pipeW.Close()
	if err := <-s.done; err != nil {
		s.writer.Abort()
		return err
	}
	return s.writer.Commit()
}

// Abort closes the session without committing; next boot continues on the
// current image.
func (s *Session) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.pipeW.Close()
	<-s.done
	return s.writer.Abort()
}

// UpdateFirmware runs the full firmware protocol end to end against
// writer: it returns ErrNoUpdate unless the hub's version.txt is newer than
// RunningFirmware, otherwise it streams `badgevms.bin` and commits only on
// full success.
func (u *Updater) UpdateFirmware(writer ImageWriter) error {
	revision, err := u.latestRevision(u.FirmwareSlug)
	if err != nil {
		return err
	}
	remoteVersion, err := u.remoteVersion(u.FirmwareSlug, revision)
	if err != nil {
		return err
	}
	if CompareVersions(remoteVersion, u.RunningFirmware) <= 0 {
		return ErrNoUpdate
	}

	h := httpclient.Init()
	h.SetURL(fmt.Sprintf("%s/projects/%s/rev%d/files/badgevms.bin", u.BaseURL, u.FirmwareSlug, revision))

	progress := u.log.NewProgress("badgevms.bin", 0)

	session := OpenSession(writer)
	var perr error
	h.SetWriteCallback(func(p []byte) (int, error) {
		progress.Write(p)
		n, err := session.Write(p)
		if err != nil {
			perr = err
		}
		return n, err
	})

	if err := h.Perform(); err != nil || perr != nil {
		progress.Finish(false)
		session.Abort()
		if perr != nil {
			return perr
		}
		return err
	}

	err = session.Commit()
	progress.Finish(err == nil)
	return err
}

// ListProjects fetches the hub's default-category project summaries, a
// supplemented read-only listing operation (spec.md §6's
// project-summaries endpoint; used by the "apps browse" CLI command to list
// candidate slugs rather than hardcoding them).
func (u *Updater) ListProjects() ([]ProjectSummary, error) {
	_, body, err := u.get("/project-summaries?category=Default")
	if err != nil {
		return nil, err
	}
	var projects []ProjectSummary
	if err := json.Unmarshal(body, &projects); err != nil {
		return nil, errors.Wrap(err, "parsing project summaries")
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Slug < projects[j].Slug })
	return projects, nil
}

// Ping reports telemetry to the hub's ping endpoint, spec.md §6's
// `GET /api/v3/ping?id=<mac>-v1&mac=<mac>`.
func (u *Updater) Ping(mac string) error {
	_, _, err := u.get(fmt.Sprintf("/ping?id=%s-v1&mac=%s", mac, mac))
	return err
}

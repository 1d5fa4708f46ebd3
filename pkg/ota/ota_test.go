package ota

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sgielen/why2025-clife-sub001/pkg/apps"
)

func TestCompareVersionsNaturalOrdering(t *testing.T) {
	require.Equal(t, 1, CompareVersions("1.10.0", "1.9.0"))
	require.Equal(t, -1, CompareVersions("1.2", "1.2.1"))
	require.Equal(t, 0, CompareVersions("2.0.0", "2.0"))
}

func newTestHub(t *testing.T, slug string, revision int, version string, files []ManifestFile, fileBodies map[string]string) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("/project-latest-revisions/%s", slug), func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%d", revision)
	})
	mux.HandleFunc(fmt.Sprintf("/projects/%s/rev%d/files/version.txt", slug, revision), func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, version)
	})
	mux.HandleFunc(fmt.Sprintf("/projects/%s/rev%d", slug, revision), func(w http.ResponseWriter, r *http.Request) {
		resolved := make([]ManifestFile, len(files))
		for i, f := range files {
			resolved[i] = f
			if resolved[i].URL == "" {
				resolved[i].URL = "http://" + r.Host + "/" + resolved[i].FullPath
			}
		}
		manifest := RevisionManifest{Name: "Test App", Files: resolved}
		manifest.App.Application = []ApplicationMetadata{{Executable: "app.bin"}}
		json.NewEncoder(w).Encode(manifest)
	})
	for path, content := range fileBodies {
		content := content
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, content)
		})
	}
	return httptest.NewServer(mux)
}

func TestCheckForUpdatesDetectsNewerVersion(t *testing.T) {
	srv := newTestHub(t, "myapp", 3, "2.0.0", nil, nil)
	defer srv.Close()

	u := New(nil, srv.URL, "firmware", "1.0.0")
	app := &apps.Application{Version: "1.0.0"}

	version, revision, newer, err := u.CheckForUpdates(app, "myapp")
	require.NoError(t, err)
	require.Equal(t, "2.0.0", version)
	require.Equal(t, 3, revision)
	require.True(t, newer)
}

func TestUpdateApplicationReplacesFilesAtomically(t *testing.T) {
	files := []ManifestFile{{FullPath: "data.txt"}}
	srv := newTestHub(t, "myapp", 1, "2.0.0", files, map[string]string{"/data.txt": "new contents"})
	defer srv.Close()

	dir := t.TempDir()
	appsDir := filepath.Join(dir, "apps")
	reg := apps.New(nil)
	require.NoError(t, reg.Init(appsDir, filepath.Join(dir, "flash"), filepath.Join(dir, "sd")))

	app, err := reg.Create("myapp", "My App", "author", "1.0.0", "", apps.SourceUnknown)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(app.InstalledPath, "data.txt"), []byte("old contents"), 0o644))

	u := New(nil, srv.URL, "firmware", "1.0.0")
	err = u.UpdateApplication(reg, app, "myapp", 1, "2.0.0")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(app.InstalledPath, "data.txt"))
	require.NoError(t, err)
	require.Equal(t, "new contents", string(data))

	got, err := reg.Get("myapp")
	require.NoError(t, err)
	require.Equal(t, "2.0.0", got.Version)
	require.Equal(t, "app.bin", got.BinaryPath)
}

type fakeImageWriter struct {
	written   []byte
	committed bool
	aborted   bool
}

func (f *fakeImageWriter) Write(p []byte) (int, error) {
	f.written = append(f.written, p...)
	return len(p), nil
}
func (f *fakeImageWriter) Commit() error { f.committed = true; return nil }
func (f *fakeImageWriter) Abort() error  { f.aborted = true; return nil }

func TestSessionCommitWritesAllBytes(t *testing.T) {
	writer := &fakeImageWriter{}
	s := OpenSession(writer)

	_, err := s.Write([]byte("firmware-image-bytes"))
	require.NoError(t, err)

	require.NoError(t, s.Commit())
	require.True(t, writer.committed)
	require.Equal(t, "firmware-image-bytes", string(writer.written))
}

func TestSessionWriteAfterCommitFails(t *testing.T) {
	writer := &fakeImageWriter{}
	s := OpenSession(writer)
	require.NoError(t, s.Commit())

	_, err := s.Write([]byte("too late"))
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestSessionAbortDoesNotCommit(t *testing.T) {
	writer := &fakeImageWriter{}
	s := OpenSession(writer)
	_, err := s.Write([]byte("partial"))
	require.NoError(t, err)

	require.NoError(t, s.Abort())
	require.True(t, writer.aborted)
	require.False(t, writer.committed)
}

func TestListProjectsSortsBySlug(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/project-summaries", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]ProjectSummary{{Slug: "zeta"}, {Slug: "alpha"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	u := New(nil, srv.URL, "firmware", "1.0.0")
	projects, err := u.ListProjects()
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "zeta"}, []string{projects[0].Slug, projects[1].Slug})
}

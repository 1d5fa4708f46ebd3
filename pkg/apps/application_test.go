package apps

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	base := t.TempDir()
	r := New(nil)
	require.NoError(t, r.Init(filepath.Join(base, "apps"), filepath.Join(base, "flash"), filepath.Join(base, "sd")))
	return r
}

func TestCreateGetRoundtrip(t *testing.T) {
	r := newTestRegistry(t)

	app, err := r.Create("com_example_myapp", "My Test App", "Example Developer", "1.0.0", "", SourceUnknown)
	require.NoError(t, err)
	require.Equal(t, "com_example_myapp", app.UniqueIdentifier)

	require.DirExists(t, app.InstalledPath)
	require.FileExists(t, filepath.Join(filepath.Dir(app.InstalledPath), "com_example_myapp.json"))

	require.True(t, r.SetVersion(app, "1.0.1"))

	got, err := r.Get("com_example_myapp")
	require.NoError(t, err)
	require.Equal(t, "1.0.1", got.Version)
}

func TestCreateTwiceFails(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Create("dup", "Dup", "Author", "1.0.0", "", SourceUnknown)
	require.NoError(t, err)

	_, err = r.Create("dup", "Dup", "Author", "1.0.0", "", SourceUnknown)
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestListEnumeratesAll(t *testing.T) {
	r := newTestRegistry(t)

	ids := []string{"a_app", "b_app", "c_app"}
	for _, id := range ids {
		_, err := r.Create(id, id, "author", "1.0.0", "", SourceUnknown)
		require.NoError(t, err)
	}

	it, err := r.List()
	require.NoError(t, err)
	defer it.Close()

	var seen []string
	for app := it.Next(); app != nil; app = it.Next() {
		seen = append(seen, app.UniqueIdentifier)
	}
	require.ElementsMatch(t, ids, seen)
}

func TestDestroyRemovesEverything(t *testing.T) {
	r := newTestRegistry(t)

	app, err := r.Create("goner", "Goner", "author", "1.0.0", "", SourceUnknown)
	require.NoError(t, err)

	require.True(t, r.Destroy(app))

	_, err = r.Get("goner")
	require.ErrorIs(t, err, ErrNotFound)

	_, statErr := os.Stat(app.InstalledPath)
	require.True(t, os.IsNotExist(statErr))
}

func TestLaunchSplitsLaunchArgsIntoArgv(t *testing.T) {
	r := newTestRegistry(t)
	app, err := r.Create("launchable", "Launchable", "author", "1.0.0", "", SourceUnknown)
	require.NoError(t, err)
	require.True(t, r.SetBinaryPath(app, "bin/main"))
	require.True(t, r.SetLaunchArgs(app, `--log-level trace --name "badge one"`))

	var gotPath string
	var gotArgv []string
	r.SetLauncher(func(absoluteBinaryPath string, argv []string) (int, error) {
		gotPath = absoluteBinaryPath
		gotArgv = argv
		return 42, nil
	})

	pid, err := r.Launch("launchable")
	require.NoError(t, err)
	require.Equal(t, 42, pid)
	require.Equal(t, filepath.Join(app.InstalledPath, "bin/main"), gotPath)
	require.Equal(t, []string{"bin/main", "--log-level", "trace", "--name", "badge one"}, gotArgv)
}

func TestCreateFileStringEnsuresDirs(t *testing.T) {
	r := newTestRegistry(t)
	app, err := r.Create("filer", "Filer", "author", "1.0.0", "", SourceUnknown)
	require.NoError(t, err)

	abs, err := r.CreateFileString(app, "state/data.txt")
	require.NoError(t, err)
	require.DirExists(t, filepath.Dir(abs))
}

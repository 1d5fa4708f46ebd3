package devicefs

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sgielen/why2025-clife-sub001/pkg/vpath"
)

func TestFatFSOpenWriteReadBack(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFatFS(dir)
	require.NoError(t, err)

	p, err := vpath.Parse("FLASH0:[SUBDIR.ANOTHER]NEW_FILE")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir+vpath.Dirname(p.Native()), 0o755))

	fd, err := fs.Open(p, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	require.NoError(t, err)

	n, err := fs.Write(fd, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.NoError(t, fs.Close(fd))

	fd2, err := fs.Open(p, os.O_RDONLY, 0)
	require.NoError(t, err)
	buf := make([]byte, 5)
	n, err = fs.Read(fd2, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
	require.NoError(t, fs.Close(fd2))
}

func TestFatFSUnlinkRename(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFatFS(dir)
	require.NoError(t, err)

	p, _ := vpath.Parse("FLASH0:FILE")
	fd, err := fs.Open(p, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	p2, _ := vpath.Parse("FLASH0:FILE2")
	require.NoError(t, fs.Rename(p, p2))

	_, err = fs.Stat(p)
	require.Error(t, err)

	require.NoError(t, fs.Unlink(p2))
	_, err = fs.Stat(p2)
	require.Error(t, err)
}

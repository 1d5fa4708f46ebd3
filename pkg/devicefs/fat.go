// Package devicefs implements BadgeVMS's FilesystemDevices: adapters that
// wrap block storage (internal flash, SD) and the pseudo-devices (tty,
// socket, wifi) behind the device.Device capability set.
//
// Grounded on main/drivers/fatfs.c, main/drivers/tty.c,
// badgevms/drivers/socket.c and badgevms/drivers/wifi.c from the original
// firmware. The actual block/SPI/SD driver and wear-leveling are out of
// scope (spec.md §1); these adapters translate vpath.Path.Native() onto a
// root directory the way the firmware translates it onto FATFS calls.
package devicefs

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/sgielen/why2025-clife-sub001/pkg/device"
	"github.com/sgielen/why2025-clife-sub001/pkg/vpath"
)

// ErrBadFd is returned when an fd does not refer to an open handle.
var ErrBadFd = errors.New("devicefs: bad file descriptor")

// FatFS adapts a directory on the host filesystem to stand in for a
// FAT-formatted storage partition (SPI flash or SD card). Both of
// BadgeVMS's real filesystem devices share this implementation; only the
// mount root and device name differ.
type FatFS struct {
	root string

	mu      sync.Mutex
	files   map[int]*os.File
	dirs    map[int]*dirHandle
	nextFd  int
}

type dirHandle struct {
	entries []os.DirEntry
}

// NewFatFS mounts root read-write; the device name it is registered under
// is chosen by the caller at device.Table.Register time. root is created if missing,
// matching the firmware's mount-time formatting behavior on first boot.
func NewFatFS(root string) (*FatFS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "mounting fat filesystem at %s", root)
	}
	return &FatFS{
		root:  root,
		files: make(map[int]*os.File),
		dirs:  make(map[int]*dirHandle),
	}, nil
}

func (f *FatFS) Type() device.Type { return device.TypeFilesystem }

func (f *FatFS) hostPath(path *vpath.Path) string {
	return f.root + path.Native()
}

func (f *FatFS) Open(path *vpath.Path, flags int, mode os.FileMode) (int, error) {
	fh, err := os.OpenFile(f.hostPath(path), flags, mode)
	if err != nil {
		return -1, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextFd++
	fd := f.nextFd
	f.files[fd] = fh
	return fd, nil
}

func (f *FatFS) fileFor(fd int) (*os.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fh, ok := f.files[fd]
	if !ok {
		return nil, ErrBadFd
	}
	return fh, nil
}

func (f *FatFS) Close(fd int) error {
	fh, err := f.fileFor(fd)
	if err != nil {
		return err
	}

	f.mu.Lock()
	delete(f.files, fd)
	f.mu.Unlock()

	return fh.Close()
}

func (f *FatFS) Read(fd int, buf []byte) (int, error) {
	fh, err := f.fileFor(fd)
	if err != nil {
		return -1, err
	}
	n, err := fh.Read(buf)
	if err == io.EOF {
		return n, nil
	}
	return n, err
}

func (f *FatFS) Write(fd int, buf []byte) (int, error) {
	fh, err := f.fileFor(fd)
	if err != nil {
		return -1, err
	}
	return fh.Write(buf)
}

func (f *FatFS) Seek(fd int, offset int64, whence int) (int64, error) {
	fh, err := f.fileFor(fd)
	if err != nil {
		return -1, err
	}
	return fh.Seek(offset, whence)
}

func (f *FatFS) Stat(path *vpath.Path) (os.FileInfo, error) {
	return os.Stat(f.hostPath(path))
}

func (f *FatFS) Fstat(fd int) (os.FileInfo, error) {
	fh, err := f.fileFor(fd)
	if err != nil {
		return nil, err
	}
	return fh.Stat()
}

func (f *FatFS) Unlink(path *vpath.Path) error {
	return os.Remove(f.hostPath(path))
}

func (f *FatFS) Rename(oldPath, newPath *vpath.Path) error {
	return os.Rename(f.hostPath(oldPath), f.hostPath(newPath))
}

func (f *FatFS) Mkdir(path *vpath.Path, mode os.FileMode) error {
	return os.Mkdir(f.hostPath(path), mode)
}

func (f *FatFS) Rmdir(path *vpath.Path) error {
	return os.Remove(f.hostPath(path))
}

func (f *FatFS) Opendir(path *vpath.Path) (int, error) {
	entries, err := os.ReadDir(f.hostPath(path))
	if err != nil {
		return -1, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextFd++
	fd := f.nextFd
	f.dirs[fd] = &dirHandle{entries: entries}
	return fd, nil
}

func (f *FatFS) Readdir(fd int) ([]os.DirEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dh, ok := f.dirs[fd]
	if !ok {
		return nil, ErrBadFd
	}
	entries := dh.entries
	dh.entries = nil
	return entries, nil
}

func (f *FatFS) Closedir(fd int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.dirs[fd]; !ok {
		return ErrBadFd
	}
	delete(f.dirs, fd)
	return nil
}

var _ device.FilesystemDevice = (*FatFS)(nil)

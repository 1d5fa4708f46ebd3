// Package device implements BadgeVMS's device table: a process-wide registry
// binding logical device names to capability objects, and the capability
// interfaces those objects implement.
//
// Grounded on badgevms/device.c and badgevms/include/badgevms/device.h from
// the original firmware. The C original keeps a khash map of name -> void*
// guarded by a FreeRTOS mutex and dereferences a raw vtable of function
// pointers per call; per the redesign flags in spec.md §9 this becomes a Go
// interface hierarchy behind an ordinary sync.RWMutex-guarded map.
package device

import (
	"io"
	"os"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"

	"github.com/sgielen/why2025-clife-sub001/pkg/vklog"
	"github.com/sgielen/why2025-clife-sub001/pkg/vpath"
)

// Type tags the kind of device registered, mirroring device_type_t.
type Type int

const (
	TypeBlock Type = iota
	TypeFilesystem
	TypeLCD
	TypeKeyboard
	TypeBus
	TypeI2CDevice
	TypeWifi
	TypeSocket
)

// ErrNotFound is not returned by Table.Get, which reports a miss as a nil
// Device — it is kept here so callers that want an error-returning variant
// can wrap it consistently.
var ErrNotFound = errors.New("device: not found")

// ErrAlreadyExists is returned when Register is called with a name that is
// already bound.
var ErrAlreadyExists = errors.New("device: already exists")

// Device is the capability every registered object exposes, equivalent to
// the common fields of device_t.
type Device interface {
	Type() Type
	Open(path *vpath.Path, flags int, mode os.FileMode) (int, error)
	Close(fd int) error
	Read(fd int, buf []byte) (int, error)
	Write(fd int, buf []byte) (int, error)
	Seek(fd int, offset int64, whence int) (int64, error)
}

// FilesystemDevice additionally exposes directory and metadata operations.
type FilesystemDevice interface {
	Device
	Stat(path *vpath.Path) (os.FileInfo, error)
	Fstat(fd int) (os.FileInfo, error)
	Unlink(path *vpath.Path) error
	Rename(oldPath, newPath *vpath.Path) error
	Mkdir(path *vpath.Path, mode os.FileMode) error
	Rmdir(path *vpath.Path) error
	Opendir(path *vpath.Path) (int, error)
	Readdir(fd int) ([]os.DirEntry, error)
	Closedir(fd int) error
}

// LCDDevice additionally exposes the compositor's framebuffer surface.
type LCDDevice interface {
	Device
	Draw(x, y, w, h int, pixels []byte)
	Getfb(index int) []byte
	SetRefreshCallback(cb func())
}

// I2CScanResult is one entry found by an I2CBusDevice.Scan.
type I2CScanResult struct {
	Address uint8
}

// I2CDevice is a device created by an I2CBusDevice.
type I2CDevice interface {
	Device
	Address() uint8
}

// I2CBusDevice exposes bus enumeration and device creation.
type I2CBusDevice interface {
	Device
	Scan(out []I2CScanResult) ([]I2CScanResult, error)
	CreateDevice(address uint8, clockSpeed uint32) (I2CDevice, error)
}

// Table is the process-wide device-name -> Device registry. The zero value
// is not usable; construct with New.
type Table struct {
	mu      sync.RWMutex
	devices map[string]Device
	log     vklog.Logger
}

// New creates an empty device table.
func New(log vklog.Logger) *Table {
	if log == nil {
		log = &vklog.CLI{}
	}
	return &Table{
		devices: make(map[string]Device),
		log:     log,
	}
}

// Register binds name to device. Names are case-preserving but matched
// case-sensitively. Registering a name that already exists returns false;
// at boot the caller is expected to treat that as fatal (spec §4.2), but
// Register itself never panics so runtime registrations (e.g. a bus
// enumerating a freshly plugged peripheral) can fail soft.
func (t *Table) Register(name string, dev Device) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.devices[name]; exists {
		t.log.Errorf("device: %q already registered", name)
		return false
	}

	t.devices[name] = dev
	t.log.Debugf("device: registered %q: %s", name, spew.Sdump(dev))
	return true
}

// Get returns the device bound to name, or nil if none is registered.
func (t *Table) Get(name string) Device {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.devices[name]
}

// MustRegister registers name and panics if it is already bound — the boot
// sequence in cmd/badgevms uses this for the devices it expects to own
// uncontested (flash, sd, tty, wifi).
func (t *Table) MustRegister(name string, dev Device) {
	if !t.Register(name, dev) {
		panic(errors.Wrapf(ErrAlreadyExists, "device %q", name))
	}
}

// Names returns every registered device name, for diagnostics such as the
// `badgevms boot` command's device listing.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.devices))
	for name := range t.devices {
		names = append(names, name)
	}
	return names
}

// ReaderAt/WriterAt adapters let a Device be used with io helpers that
// expect those interfaces over an already-open fd, without exposing the fd
// table outside this package.
type fdReadWriter struct {
	dev Device
	fd  int
}

func (f fdReadWriter) Read(p []byte) (int, error)  { return f.dev.Read(f.fd, p) }
func (f fdReadWriter) Write(p []byte) (int, error) { return f.dev.Write(f.fd, p) }

var _ io.ReadWriter = fdReadWriter{}

// FdReadWriter wraps an already-open fd on dev as an io.ReadWriter.
func FdReadWriter(dev Device, fd int) io.ReadWriter {
	return fdReadWriter{dev: dev, fd: fd}
}

package devicefs

import (
	"os"

	"github.com/pkg/errors"

	"github.com/sgielen/why2025-clife-sub001/pkg/device"
	"github.com/sgielen/why2025-clife-sub001/pkg/vpath"
)

// Wifi is the pseudo-device placeholder for the radio: open/close are
// no-ops gated to an empty path, read/write always return 0. Real Wi-Fi
// control goes through pkg/hermes, not the device table — this exists only
// so `WIFI:` resolves to something when code probes the device table
// generically, matching badgevms/drivers/wifi.c.
type Wifi struct{}

// NewWifi returns the Wi-Fi pseudo-device.
func NewWifi() *Wifi { return &Wifi{} }

func (w *Wifi) Type() device.Type { return device.TypeWifi }

func (w *Wifi) Open(path *vpath.Path, flags int, mode os.FileMode) (int, error) {
	if path.Directory != "" || path.Filename != "" {
		return -1, errors.New("devicefs: wifi open rejects a directory/filename")
	}
	return 0, nil
}

func (w *Wifi) Close(fd int) error { return nil }

func (w *Wifi) Read(fd int, buf []byte) (int, error) { return 0, nil }

func (w *Wifi) Write(fd int, buf []byte) (int, error) { return 0, nil }

func (w *Wifi) Seek(fd int, offset int64, whence int) (int64, error) {
	return 0, errors.New("devicefs: wifi is not seekable")
}

var _ device.Device = (*Wifi)(nil)

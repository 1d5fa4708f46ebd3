package devicefs

import (
	"os"
	"time"

	"github.com/armon/circbuf"
	"github.com/pkg/errors"

	"github.com/sgielen/why2025-clife-sub001/pkg/device"
	"github.com/sgielen/why2025-clife-sub001/pkg/vpath"
)

// pollInterval is how often a blocking stdin read retries the ring buffer,
// matching the short polling interval main/drivers/tty.c uses while
// waiting on the console UART.
const pollInterval = 20 * time.Millisecond

// TTY is the console pseudo-device: writes go straight to the host's
// stdout, reads drain a bounded ring buffer fed by a background reader
// goroutine one byte at a time, blocking with a short polling interval
// when the buffer is empty.
type TTY struct {
	out    *os.File
	in     *circbuf.Buffer
	readAt int64
	closed chan struct{}
}

// NewTTY wires stdout/stdin of the host process as the badge's console.
func NewTTY(capacity int64) (*TTY, error) {
	buf, err := circbuf.NewBuffer(capacity)
	if err != nil {
		return nil, errors.Wrap(err, "allocating tty ring buffer")
	}

	t := &TTY{
		out:    os.Stdout,
		in:     buf,
		closed: make(chan struct{}),
	}
	go t.pump()
	return t, nil
}

// pump copies stdin bytes into the ring buffer until the TTY is closed.
func (t *TTY) pump() {
	b := make([]byte, 256)
	for {
		select {
		case <-t.closed:
			return
		default:
		}
		n, err := os.Stdin.Read(b)
		if n > 0 {
			_, _ = t.in.Write(b[:n])
		}
		if err != nil {
			return
		}
	}
}

func (t *TTY) Type() device.Type { return device.TypeBlock }

func (t *TTY) Open(path *vpath.Path, flags int, mode os.FileMode) (int, error) {
	if path.Directory != "" || path.Filename != "" {
		return -1, errors.New("devicefs: tty only accepts an empty path")
	}
	return 0, nil
}

func (t *TTY) Close(fd int) error {
	close(t.closed)
	return nil
}

// Read returns one byte at a time, blocking (polling pollInterval) until the
// ring buffer has data, matching tty_read in the original driver.
func (t *TTY) Read(fd int, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	for {
		data := t.in.Bytes()
		if int64(len(data)) > t.readAt {
			buf[0] = data[t.readAt]
			t.readAt++
			return 1, nil
		}
		time.Sleep(pollInterval)
	}
}

func (t *TTY) Write(fd int, buf []byte) (int, error) {
	return t.out.Write(buf)
}

func (t *TTY) Seek(fd int, offset int64, whence int) (int64, error) {
	return 0, errors.New("devicefs: tty is not seekable")
}

var _ device.Device = (*TTY)(nil)

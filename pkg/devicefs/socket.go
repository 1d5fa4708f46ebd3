package devicefs

import (
	"net"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/sgielen/why2025-clife-sub001/pkg/device"
	"github.com/sgielen/why2025-clife-sub001/pkg/vpath"
)

// Socket is the pseudo-device fronting the sockets subsystem: open rejects
// any non-empty path directory/filename (a socket is addressed by fd, not
// by path), and read/write/close delegate to the net.Conn registered under
// that fd.
type Socket struct {
	mu    sync.Mutex
	conns map[int]net.Conn
	next  int
}

// NewSocket creates an empty socket device; fds are attached with Attach as
// the sockets layer (out of scope per spec.md §1) accepts connections.
func NewSocket() *Socket {
	return &Socket{conns: make(map[int]net.Conn)}
}

// Attach registers an already-established connection and returns its fd.
func (s *Socket) Attach(conn net.Conn) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.conns[s.next] = conn
	return s.next
}

func (s *Socket) Type() device.Type { return device.TypeSocket }

func (s *Socket) Open(path *vpath.Path, flags int, mode os.FileMode) (int, error) {
	if path.Directory != "" || path.Filename != "" {
		return -1, errors.New("devicefs: socket open rejects a directory/filename")
	}
	return -1, errors.New("devicefs: sockets are attached via Attach, not opened by path")
}

func (s *Socket) connFor(fd int) (net.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[fd]
	if !ok {
		return nil, ErrBadFd
	}
	return conn, nil
}

func (s *Socket) Close(fd int) error {
	conn, err := s.connFor(fd)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.conns, fd)
	s.mu.Unlock()
	return conn.Close()
}

func (s *Socket) Read(fd int, buf []byte) (int, error) {
	conn, err := s.connFor(fd)
	if err != nil {
		return -1, err
	}
	return conn.Read(buf)
}

func (s *Socket) Write(fd int, buf []byte) (int, error) {
	conn, err := s.connFor(fd)
	if err != nil {
		return -1, err
	}
	return conn.Write(buf)
}

func (s *Socket) Seek(fd int, offset int64, whence int) (int64, error) {
	return 0, errors.New("devicefs: sockets are not seekable")
}

var _ device.Device = (*Socket)(nil)

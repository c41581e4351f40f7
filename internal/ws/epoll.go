//go:build linux

package ws

import (
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Epoll multiplexes read readiness of every upgraded socket over one
// epoll instance, so idle connections cost no goroutine.
type Epoll struct {
	fd      int
	timeout time.Duration

	mu    sync.RWMutex
	conns map[int]net.Conn // socket fd -> conn

	events []unix.EpollEvent // reused by Wait; Wait is called from one goroutine
}

// NewEpoll creates the epoll instance. Zero config fields use
// DefaultEpollConfig.
func NewEpoll(cfg EpollConfig) (*Epoll, error) {
	cfg = cfg.withDefaults()
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &Epoll{
		fd:      fd,
		timeout: cfg.WaitTimeout,
		conns:   make(map[int]net.Conn),
		events:  make([]unix.EpollEvent, cfg.EventBuffer),
	}, nil
}

// WaitTimeout is the bound on one Wait.
func (e *Epoll) WaitTimeout() time.Duration {
	return e.timeout
}

// Add watches conn for input and hang-up.
func (e *Epoll) Add(conn net.Conn) error {
	fd := socketFD(conn)
	ev := &unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLHUP, Fd: int32(fd)}
	if err := unix.EpollCtl(e.fd, syscall.EPOLL_CTL_ADD, fd, ev); err != nil {
		return err
	}

	e.mu.Lock()
	e.conns[fd] = conn
	e.mu.Unlock()
	return nil
}

// Remove stops watching conn.
func (e *Epoll) Remove(conn net.Conn) error {
	fd := socketFD(conn)
	if err := unix.EpollCtl(e.fd, syscall.EPOLL_CTL_DEL, fd, nil); err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.conns, fd)
	e.mu.Unlock()
	return nil
}

// Wait returns the connections with pending input. It returns an empty
// slice once the wait timeout elapses. Descriptors removed while the kernel
// reported them are skipped.
func (e *Epoll) Wait() ([]net.Conn, error) {
	n, err := unix.EpollWait(e.fd, e.events, int(e.timeout/time.Millisecond))
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	ready := make([]net.Conn, 0, n)
	for _, ev := range e.events[:n] {
		if conn, ok := e.conns[int(ev.Fd)]; ok {
			ready = append(ready, conn)
		}
	}
	return ready, nil
}

// Close releases the epoll descriptor. Watched sockets stay open.
func (e *Epoll) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conns = nil
	return unix.Close(e.fd)
}

// socketFD returns the descriptor of conn through syscall.RawConn, which
// unlike File does not dup it. It returns -1 for non-socket conns.
func socketFD(conn net.Conn) int {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1
	}

	fd := -1
	_ = raw.Control(func(sfd uintptr) { fd = int(sfd) })
	return fd
}

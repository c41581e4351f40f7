//go:build !linux

package ws

import (
	"net"
	"sync"
	"time"
)

// Epoll is the portable poller for development on macOS and Windows: one
// goroutine per connection blocks on a read and reports the connection as
// ready. It consumes the byte it reads, so it is not for production.
type Epoll struct {
	timeout time.Duration

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	ready chan net.Conn
	done  chan struct{}
	once  sync.Once
}

// NewEpoll creates the poller. Zero config fields use DefaultEpollConfig.
func NewEpoll(cfg EpollConfig) (*Epoll, error) {
	cfg = cfg.withDefaults()
	return &Epoll{
		timeout: cfg.WaitTimeout,
		conns:   make(map[net.Conn]struct{}),
		ready:   make(chan net.Conn, cfg.EventBuffer),
		done:    make(chan struct{}),
	}, nil
}

// WaitTimeout is the bound on one Wait.
func (e *Epoll) WaitTimeout() time.Duration {
	return e.timeout
}

// Add starts watching conn.
func (e *Epoll) Add(conn net.Conn) error {
	e.mu.Lock()
	e.conns[conn] = struct{}{}
	e.mu.Unlock()

	go e.watch(conn)
	return nil
}

// watch reports conn every time a read returns, and once more when it fails
// so the server notices the close.
func (e *Epoll) watch(conn net.Conn) {
	buf := make([]byte, 1)
	for {
		_, err := conn.Read(buf)
		select {
		case e.ready <- conn:
		case <-e.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// Remove stops reporting conn. Its watcher exits on the next read error.
func (e *Epoll) Remove(conn net.Conn) error {
	e.mu.Lock()
	delete(e.conns, conn)
	e.mu.Unlock()
	return nil
}

// Wait returns every connection reported ready, blocking up to the wait
// timeout for the first. It returns net.ErrClosed after Close.
func (e *Epoll) Wait() ([]net.Conn, error) {
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	var ready []net.Conn
	select {
	case conn := <-e.ready:
		ready = append(ready, conn)
	case <-e.done:
		return nil, net.ErrClosed
	case <-timer.C:
		return nil, nil
	}
	for {
		select {
		case conn := <-e.ready:
			ready = append(ready, conn)
		default:
			return ready, nil
		}
	}
}

// Close stops every watcher.
func (e *Epoll) Close() error {
	e.once.Do(func() { close(e.done) })
	e.mu.Lock()
	e.conns = nil
	e.mu.Unlock()
	return nil
}

func socketFD(net.Conn) int {
	return -1
}

package delay

import (
	"context"
	"sync"
	"time"
)

// Scope owns the pending completions of one view. Close cancels all of them
// and any completion requested afterwards is never started.
type Scope struct {
	mu     sync.Mutex
	closed bool
	timers map[*Timer]struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScope creates an open scope whose context derives from parent.
func NewScope(parent context.Context) *Scope {
	ctx, cancel := context.WithCancel(parent)
	return &Scope{
		timers: make(map[*Timer]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context is cancelled when the scope closes. Blocking operations that run
// on behalf of the view (Sleep, Redis calls) should use it.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// AfterFunc schedules fn inside the scope. It returns nil, false when the
// scope is already closed.
func (s *Scope) AfterFunc(d time.Duration, fn func()) (*Timer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false
	}
	tm := afterFunc(d, fn, s.forget)
	s.timers[tm] = struct{}{}
	return tm, true
}

// Pending returns the number of scheduled completions that have neither
// fired nor been cancelled.
func (s *Scope) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close cancels every pending completion and the scope context. It is safe
// to call more than once.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	timers := make([]*Timer, 0, len(s.timers))
	for tm := range s.timers {
		timers = append(timers, tm)
	}
	s.mu.Unlock()

	// Cancel outside the lock: Cancel calls back into forget.
	for _, tm := range timers {
		tm.Cancel()
	}
	s.cancel()
}

func (s *Scope) forget(tm *Timer) {
	s.mu.Lock()
	delete(s.timers, tm)
	s.mu.Unlock()
}

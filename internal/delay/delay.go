// Package delay provides cancellable delayed completion for simulated
// latencies (login round-trips, bulk notification clears, progress
// tracking) and a Scope that tears down every pending completion owned by
// a connection when that connection goes away.
package delay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCanceled is returned by Sleep when the wait was abandoned before the
// delay elapsed.
var ErrCanceled = errors.New("delay: canceled")

const (
	statePending = iota
	stateFired
	stateCanceled
)

// Timer is a single scheduled completion. Unlike time.Timer.Stop, a
// successful Cancel guarantees the callback never starts.
type Timer struct {
	mu     sync.Mutex
	state  int
	t      *time.Timer
	onDone func(*Timer)
}

// AfterFunc schedules fn to run on its own goroutine after d.
func AfterFunc(d time.Duration, fn func()) *Timer {
	return afterFunc(d, fn, nil)
}

func afterFunc(d time.Duration, fn func(), onDone func(*Timer)) *Timer {
	tm := &Timer{onDone: onDone}
	tm.mu.Lock()
	tm.t = time.AfterFunc(d, func() {
		tm.mu.Lock()
		if tm.state != statePending {
			tm.mu.Unlock()
			return
		}
		tm.state = stateFired
		tm.mu.Unlock()

		if tm.onDone != nil {
			tm.onDone(tm)
		}
		fn()
	})
	tm.mu.Unlock()
	return tm
}

// Cancel stops the timer. It returns true if the callback had not started
// and now never will, false if it already fired or was cancelled before.
func (tm *Timer) Cancel() bool {
	tm.mu.Lock()
	if tm.state != statePending {
		tm.mu.Unlock()
		return false
	}
	tm.state = stateCanceled
	tm.t.Stop()
	tm.mu.Unlock()

	if tm.onDone != nil {
		tm.onDone(tm)
	}
	return true
}

// Pending reports whether the callback is still scheduled.
func (tm *Timer) Pending() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.state == statePending
}

// Sleep blocks for d or until ctx is done. A cancelled wait returns an error
// matching both ErrCanceled and the context's error.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	}
}

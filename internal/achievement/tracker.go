package achievement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/techtie/match-app/internal/delay"
)

// Unlock is delivered to listeners when a user reaches a new level.
type Unlock struct {
	UserID      string      `json:"user_id"`
	Achievement Achievement `json:"achievement"`
}

// Listener receives unlocks. It is called synchronously from TrackProgress.
type Listener func(Unlock)

// Awarder remembers the highest level awarded per user and kind so a level
// is reported at most once. Award returns true only when level raises the
// stored value.
type Awarder interface {
	Award(ctx context.Context, userID string, kind Kind, level Level) (bool, error)
}

// Tracker evaluates progress values and notifies listeners of new levels.
type Tracker struct {
	awarder Awarder
	latency time.Duration
	log     *zap.Logger

	mu        sync.RWMutex
	listeners map[uint64]Listener
	nextID    uint64
}

// NewTracker creates a tracker. A nil awarder keeps awards in memory.
// latency simulates the round-trip of a remote progress update.
func NewTracker(awarder Awarder, latency time.Duration, log *zap.Logger) *Tracker {
	if awarder == nil {
		awarder = NewMemoryAwarder()
	}
	return &Tracker{
		awarder:   awarder,
		latency:   latency,
		log:       log.Named("achievement"),
		listeners: make(map[uint64]Listener),
	}
}

// AddListener registers fn and returns a function that removes it.
func (t *Tracker) AddListener(fn Listener) (unsubscribe func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.listeners, id)
			t.mu.Unlock()
		})
	}
}

// TrackProgress records that userID has reached value for kind. After the
// configured latency it checks the thresholds and, if a level not yet
// awarded is reached, notifies every listener. Cancelling ctx during the
// latency abandons the update without notifying anyone.
func (t *Tracker) TrackProgress(ctx context.Context, userID string, kind Kind, value int) (Achievement, bool, error) {
	if _, ok := thresholds[kind]; !ok {
		return Achievement{}, false, fmt.Errorf("achievement: unknown kind %q", kind)
	}
	if err := delay.Sleep(ctx, t.latency); err != nil {
		return Achievement{}, false, err
	}

	a, ok := Check(kind, value)
	if !ok {
		return Achievement{}, false, nil
	}

	raised, err := t.awarder.Award(ctx, userID, kind, a.Level)
	if err != nil {
		return Achievement{}, false, fmt.Errorf("achievement: award: %w", err)
	}
	if !raised {
		return a, false, nil
	}

	t.log.Info("achievement unlocked",
		zap.String("user", userID),
		zap.String("kind", string(kind)),
		zap.Stringer("level", a.Level),
		zap.Int("value", value))

	t.notify(Unlock{UserID: userID, Achievement: a})
	return a, true, nil
}

func (t *Tracker) notify(u Unlock) {
	t.mu.RLock()
	ls := make([]Listener, 0, len(t.listeners))
	for _, l := range t.listeners {
		ls = append(ls, l)
	}
	t.mu.RUnlock()

	for _, l := range ls {
		l(u)
	}
}

// MemoryAwarder is an in-process Awarder.
type MemoryAwarder struct {
	mu     sync.Mutex
	levels map[string]Level
}

// NewMemoryAwarder creates an empty MemoryAwarder.
func NewMemoryAwarder() *MemoryAwarder {
	return &MemoryAwarder{levels: make(map[string]Level)}
}

// Award implements Awarder.
func (m *MemoryAwarder) Award(_ context.Context, userID string, kind Kind, level Level) (bool, error) {
	key := userID + ":" + string(kind)
	m.mu.Lock()
	defer m.mu.Unlock()
	if level <= m.levels[key] {
		return false, nil
	}
	m.levels[key] = level
	return true, nil
}

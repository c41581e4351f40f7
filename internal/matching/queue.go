package matching

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidState is returned when a decision is made against an
	// exhausted queue.
	ErrInvalidState = errors.New("matching: queue exhausted")

	// ErrStaleDecision is returned when a decision names a candidate other
	// than the one currently focused.
	ErrStaleDecision = errors.New("matching: decision does not target the current candidate")

	// ErrInvalidDecision is returned for decision values outside the enum.
	ErrInvalidDecision = errors.New("matching: invalid decision")
)

// ExhaustReason distinguishes why a queue has nothing left to show.
type ExhaustReason int

const (
	NotExhausted ExhaustReason = iota
	// NoCandidates means the filter matched nothing.
	NoCandidates
	// Reviewed means every filtered candidate received a decision.
	Reviewed
)

func (r ExhaustReason) String() string {
	switch r {
	case NoCandidates:
		return "no_candidates"
	case Reviewed:
		return "reviewed"
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r ExhaustReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// State is a snapshot of the queue: the filtered sequence, the cursor into
// it, and the criteria that produced it.
type State struct {
	Criteria   FilterCriteria
	Candidates []Candidate
	Cursor     int
	Reason     ExhaustReason
}

// Exhausted reports whether no candidate remains at or after the cursor.
func (s State) Exhausted() bool {
	return s.Reason != NotExhausted
}

// Remaining returns the number of candidates still awaiting a decision.
func (s State) Remaining() int {
	return len(s.Candidates) - s.Cursor
}

// Option configures a Queue.
type Option func(*Queue)

// WithExhaustedHook registers fn to be called once per transition into the
// exhausted state.
func WithExhaustedHook(fn func(State)) Option {
	return func(q *Queue) { q.onExhausted = fn }
}

// WithDecisionHook registers fn to receive every accepted decision.
func WithDecisionHook(fn func(DecisionRecord)) Option {
	return func(q *Queue) { q.onDecision = fn }
}

// WithClock overrides the time source used to stamp decision records.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// Queue holds the candidate source, the filtered sequence derived from it,
// and the cursor. A Queue is not safe for concurrent use; its owner must
// serialise calls.
type Queue struct {
	source      []Candidate
	state       State
	onExhausted func(State)
	onDecision  func(DecisionRecord)
	now         func() time.Time
}

// NewQueue creates a queue over a private copy of source and applies the
// default criteria. If source is empty the exhausted hook fires before
// NewQueue returns.
func NewQueue(source []Candidate, opts ...Option) *Queue {
	q := &Queue{
		source: make([]Candidate, len(source)),
		now:    time.Now,
	}
	for i, c := range source {
		q.source[i] = c.clone()
	}
	for _, opt := range opts {
		opt(q)
	}
	q.ApplyFilter(DefaultCriteria())
	return q
}

// ApplyFilter recomputes the filtered sequence from the full source,
// preserving source order, and resets the cursor to 0. An empty result
// leaves the queue exhausted with reason NoCandidates.
func (q *Queue) ApplyFilter(criteria FilterCriteria) State {
	criteria = criteria.Normalize()

	filtered := make([]Candidate, 0, len(q.source))
	for _, c := range q.source {
		if criteria.Matches(c) {
			filtered = append(filtered, c)
		}
	}

	q.state = State{Criteria: criteria, Candidates: filtered}
	if len(filtered) == 0 {
		q.state.Reason = NoCandidates
		q.fireExhausted()
	}
	return q.State()
}

// Reset applies the default criteria.
func (q *Queue) Reset() State {
	return q.ApplyFilter(DefaultCriteria())
}

// Current returns the focused candidate, or false when the queue is
// exhausted.
func (q *Queue) Current() (Candidate, bool) {
	if q.state.Cursor >= len(q.state.Candidates) {
		return Candidate{}, false
	}
	return q.state.Candidates[q.state.Cursor], true
}

// Decide records d against the focused candidate and advances the cursor by
// one. It fails with ErrInvalidState when the queue is exhausted; the cursor
// is left unchanged on every error.
func (q *Queue) Decide(d Decision) (DecisionRecord, error) {
	switch d {
	case Pass, Like, SuperLike:
	default:
		return DecisionRecord{}, fmt.Errorf("%w: %d", ErrInvalidDecision, int(d))
	}

	cur, ok := q.Current()
	if !ok {
		return DecisionRecord{}, ErrInvalidState
	}

	rec := DecisionRecord{
		CandidateID: cur.ID,
		Decision:    d,
		Position:    q.state.Cursor,
		At:          q.now(),
	}
	q.state.Cursor++

	if q.onDecision != nil {
		q.onDecision(rec)
	}
	if q.state.Cursor == len(q.state.Candidates) {
		q.state.Reason = Reviewed
		q.fireExhausted()
	}
	return rec, nil
}

// DecideFor is Decide guarded by the id of the candidate the caller
// believes is focused. A mismatch (for example a duplicated button press)
// fails with ErrStaleDecision.
func (q *Queue) DecideFor(candidateID string, d Decision) (DecisionRecord, error) {
	cur, ok := q.Current()
	if !ok {
		return DecisionRecord{}, ErrInvalidState
	}
	if cur.ID != candidateID {
		return DecisionRecord{}, fmt.Errorf("%w: got %q, current is %q", ErrStaleDecision, candidateID, cur.ID)
	}
	return q.Decide(d)
}

// State returns a snapshot of the queue. The candidate slice is a copy.
func (q *Queue) State() State {
	s := q.state
	s.Candidates = append([]Candidate(nil), q.state.Candidates...)
	return s
}

// Cursor returns the index of the focused candidate.
func (q *Queue) Cursor() int {
	return q.state.Cursor
}

// Len returns the length of the filtered sequence.
func (q *Queue) Len() int {
	return len(q.state.Candidates)
}

// SourceLen returns the size of the unfiltered source.
func (q *Queue) SourceLen() int {
	return len(q.source)
}

func (q *Queue) fireExhausted() {
	if q.onExhausted != nil {
		q.onExhausted(q.State())
	}
}

// Package deck drives one connection's candidate queue. It turns client
// events into queue operations and queue state into protocol messages, and
// owns the delayed notification clear and challenge grading so that closing
// the deck cancels them.
package deck

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/techtie/match-app/internal/chat"
	"github.com/techtie/match-app/internal/delay"
	"github.com/techtie/match-app/internal/matching"
	"github.com/techtie/match-app/internal/metrics"
	"github.com/techtie/match-app/internal/notification"
	"github.com/techtie/match-app/internal/protocol"
)

var (
	// ErrClosed is returned by operations on a closed deck.
	ErrClosed = errors.New("deck: closed")

	ErrInvalidChallenge = errors.New("deck: challenge id is required")
	ErrChatDisabled     = errors.New("deck: chat is not enabled")
)

const (
	// DefaultClearLatency is the simulated round-trip of a notification
	// clear.
	DefaultClearLatency = 500 * time.Millisecond

	// DefaultChallengeLatency is the simulated grading time of a challenge
	// submission.
	DefaultChallengeLatency = time.Second
)

// Sender delivers encoded server messages. *ws.Connection satisfies it.
type Sender interface {
	WriteMessage(data []byte) error
}

// Viewer identifies the user browsing the deck.
type Viewer struct {
	ID   string
	Name string
}

// DecisionSink receives every accepted decision together with the
// candidate it was made on.
type DecisionSink interface {
	Decided(viewer Viewer, cand matching.Candidate, rec matching.DecisionRecord)
}

// SinkFunc adapts a function to DecisionSink.
type SinkFunc func(viewer Viewer, cand matching.Candidate, rec matching.DecisionRecord)

// Decided implements DecisionSink.
func (f SinkFunc) Decided(viewer Viewer, cand matching.Candidate, rec matching.DecisionRecord) {
	f(viewer, cand, rec)
}

// ChallengeSink receives graded challenge submissions.
type ChallengeSink interface {
	ChallengeCompleted(viewer Viewer, challengeID string, at time.Time)
}

// ChallengeSinkFunc adapts a function to ChallengeSink.
type ChallengeSinkFunc func(viewer Viewer, challengeID string, at time.Time)

// ChallengeCompleted implements ChallengeSink.
func (f ChallengeSinkFunc) ChallengeCompleted(viewer Viewer, challengeID string, at time.Time) {
	f(viewer, challengeID, at)
}

// Options configures a Deck. Zero values are usable.
type Options struct {
	Feed             *notification.Feed // shared per process; nil creates a private feed
	Sink             DecisionSink
	Challenges       ChallengeSink
	ClearLatency     time.Duration // <= 0 uses DefaultClearLatency
	ChallengeLatency time.Duration // <= 0 uses DefaultChallengeLatency
	Log              *zap.Logger
}

// Deck is the per-connection presentation layer over a matching.Queue.
// All methods are safe for concurrent use.
type Deck struct {
	viewer       Viewer
	sender       Sender
	feed         *notification.Feed
	sink         DecisionSink
	challenges   ChallengeSink
	clearLatency time.Duration
	gradeLatency time.Duration
	log          *zap.Logger

	mu        sync.Mutex
	queue     *matching.Queue
	scope     *delay.Scope
	exhausted []matching.State // exhaust transitions not yet emitted
	clearing  *delay.Timer
	grading   map[string]*delay.Timer // challenge id -> pending grade
	closed    bool
}

// New creates a deck over candidates. Nothing is sent until Start.
func New(ctx context.Context, viewer Viewer, candidates []matching.Candidate, sender Sender, opts Options) *Deck {
	if opts.Feed == nil {
		opts.Feed = notification.NewFeed()
	}
	if opts.ClearLatency <= 0 {
		opts.ClearLatency = DefaultClearLatency
	}
	if opts.ChallengeLatency <= 0 {
		opts.ChallengeLatency = DefaultChallengeLatency
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	d := &Deck{
		viewer:       viewer,
		sender:       sender,
		feed:         opts.Feed,
		sink:         opts.Sink,
		challenges:   opts.Challenges,
		clearLatency: opts.ClearLatency,
		gradeLatency: opts.ChallengeLatency,
		log:          opts.Log.Named("deck").With(zap.String("viewer", viewer.ID)),
		scope:        delay.NewScope(ctx),
		grading:      make(map[string]*delay.Timer),
	}
	d.queue = matching.NewQueue(candidates, matching.WithExhaustedHook(func(s matching.State) {
		d.exhausted = append(d.exhausted, s)
	}))
	return d
}

// Start sends the initial queue state, the focused candidate or the
// exhaustion notice, and the notification feed.
func (d *Deck) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.sendQueueLocked(d.queue.State())
	d.sendFeedLocked()
	return nil
}

// SetFilter applies criteria to the full source and restarts the cursor.
func (d *Deck) SetFilter(criteria matching.FilterCriteria) (matching.State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return matching.State{}, ErrClosed
	}

	s := d.queue.ApplyFilter(criteria)
	metrics.FilterAppliedTotal.WithLabelValues(strconv.Itoa(matching.ActiveFilterCount(s.Criteria))).Inc()
	d.log.Debug("filter applied",
		zap.Int("active", matching.ActiveFilterCount(s.Criteria)),
		zap.Int("total", len(s.Candidates)))
	d.sendQueueLocked(s)
	return s, nil
}

// ResetFilter restores the default criteria.
func (d *Deck) ResetFilter() (matching.State, error) {
	return d.SetFilter(matching.DefaultCriteria())
}

// Decide records decision (its wire name) on candidateID, which must be the
// focused candidate. Failures are reported to the client as error messages
// and returned.
func (d *Deck) Decide(candidateID, decision string) (matching.DecisionRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return matching.DecisionRecord{}, ErrClosed
	}

	dec, err := matching.ParseDecision(decision)
	if err != nil {
		err = fmt.Errorf("%w: %v", matching.ErrInvalidDecision, err)
		d.sendErrorLocked(err)
		return matching.DecisionRecord{}, err
	}

	cand, _ := d.queue.Current()
	rec, err := d.queue.DecideFor(candidateID, dec)
	if err != nil {
		d.sendErrorLocked(err)
		return matching.DecisionRecord{}, err
	}

	metrics.DecisionsTotal.WithLabelValues(rec.Decision.String()).Inc()
	if d.sink != nil {
		d.sink.Decided(d.viewer, cand, rec)
	}

	s := d.queue.State()
	d.sendLocked(protocol.TypeDecisionAck, protocol.DecisionAckMsg{
		CandidateID: rec.CandidateID,
		Decision:    rec.Decision.String(),
		Position:    rec.Position,
		Remaining:   s.Remaining(),
	})
	d.sendFocusLocked(s)
	return rec, nil
}

// Viewer returns the user browsing the deck.
func (d *Deck) Viewer() Viewer {
	return d.viewer
}

// State returns a snapshot of the underlying queue.
func (d *Deck) State() matching.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.State()
}

// PushNotification adds n to the viewer's feed and sends it.
func (d *Deck) PushNotification(n notification.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.feed.Add(d.viewer.ID, n)
	d.sendLocked(protocol.TypeNotification, protocol.NotificationMsg{
		Notification: n,
		Unread:       d.feed.Unread(d.viewer.ID),
	})
	return nil
}

// MarkNotificationsRead marks the whole feed read and sends it.
func (d *Deck) MarkNotificationsRead() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.feed.MarkAllRead(d.viewer.ID)
	d.sendFeedLocked()
	return nil
}

// ClearNotifications empties the feed after the clear latency. A clear
// already in flight absorbs repeated requests. Closing the deck before the
// latency elapses cancels the clear.
func (d *Deck) ClearNotifications() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.clearing != nil && d.clearing.Pending() {
		return nil
	}

	tm, ok := d.scope.AfterFunc(d.clearLatency, d.finishClear)
	if !ok {
		return ErrClosed
	}
	d.clearing = tm
	return nil
}

func (d *Deck) finishClear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.clearing = nil
	d.feed.Clear(d.viewer.ID)
	d.sendFeedLocked()
}

// SubmitChallenge grades challengeID after the challenge latency, then
// reports it to the challenge sink and sends challenge_submitted. Submitting
// a challenge that is still being graded is absorbed. Closing the deck
// during the latency drops the submission.
func (d *Deck) SubmitChallenge(challengeID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	challengeID = strings.TrimSpace(challengeID)
	if challengeID == "" {
		d.sendErrorLocked(ErrInvalidChallenge)
		return ErrInvalidChallenge
	}
	if tm := d.grading[challengeID]; tm != nil && tm.Pending() {
		return nil
	}

	// tm is read by the callback under d.mu, after the assignment below.
	var (
		tm *delay.Timer
		ok bool
	)
	tm, ok = d.scope.AfterFunc(d.gradeLatency, func() { d.finishChallenge(challengeID, tm) })
	if !ok {
		return ErrClosed
	}
	d.grading[challengeID] = tm
	return nil
}

func (d *Deck) finishChallenge(challengeID string, tm *delay.Timer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.grading[challengeID] == tm {
		delete(d.grading, challengeID)
	}
	if d.challenges != nil {
		d.challenges.ChallengeCompleted(d.viewer, challengeID, time.Now().UTC())
	}
	d.sendLocked(protocol.TypeChallengeSubmitted, protocol.ChallengeSubmittedMsg{ChallengeID: challengeID})
}

// Send encodes and writes one server message. Build and write failures are
// logged, not returned.
func (d *Deck) Send(msgType string, payload interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.sendLocked(msgType, payload)
	return nil
}

// ReportError sends err to the client as an error message.
func (d *Deck) ReportError(err error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.sendErrorLocked(err)
	return nil
}

// Close cancels pending delayed work. Later calls return ErrClosed.
func (d *Deck) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	// Outside the lock: a firing clear or grade may be waiting on d.mu.
	d.scope.Close()
}

func (d *Deck) sendQueueLocked(s matching.State) {
	d.sendLocked(protocol.TypeQueueState, protocol.QueueStateMsg{
		Criteria:      s.Criteria,
		ActiveFilters: matching.ActiveFilterCount(s.Criteria),
		Total:         len(s.Candidates),
		SourceTotal:   d.queue.SourceLen(),
		Position:      s.Cursor,
		Exhausted:     s.Exhausted(),
		Reason:        s.Reason.String(),
	})
	d.sendFocusLocked(s)
}

// sendFocusLocked sends the focused candidate, or the pending exhaustion
// notices when there is none.
func (d *Deck) sendFocusLocked(s matching.State) {
	pending := d.exhausted
	d.exhausted = nil
	for _, es := range pending {
		metrics.ExhaustedTotal.WithLabelValues(es.Reason.String()).Inc()
		d.sendLocked(protocol.TypeExhausted, protocol.ExhaustedMsg{
			Reason:        es.Reason.String(),
			Total:         len(es.Candidates),
			ActiveFilters: matching.ActiveFilterCount(es.Criteria),
		})
	}
	if s.Exhausted() {
		return
	}
	d.sendLocked(protocol.TypeCandidate, protocol.CandidateMsg{
		Candidate: s.Candidates[s.Cursor],
		Position:  s.Cursor,
		Total:     len(s.Candidates),
	})
}

func (d *Deck) sendFeedLocked() {
	d.sendLocked(protocol.TypeNotifications, protocol.NotificationsMsg{
		Items:  d.feed.List(d.viewer.ID),
		Unread: d.feed.Unread(d.viewer.ID),
	})
}

func (d *Deck) sendErrorLocked(err error) {
	d.sendLocked(protocol.TypeError, protocol.ErrorMsg{
		Code:    ErrorCode(err),
		Message: err.Error(),
	})
}

func (d *Deck) sendLocked(msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		d.log.Error("build message", zap.String("type", msgType), zap.Error(err))
		return
	}
	if err := d.sender.WriteMessage(data); err != nil {
		d.log.Warn("send message", zap.String("type", msgType), zap.Error(err))
	}
}

// ErrorCode maps deck and queue errors to protocol error codes.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, matching.ErrInvalidDecision):
		return protocol.CodeInvalidDecision
	case errors.Is(err, matching.ErrStaleDecision):
		return protocol.CodeStaleDecision
	case errors.Is(err, matching.ErrInvalidState):
		return protocol.CodeQueueExhausted
	case errors.Is(err, ErrInvalidChallenge):
		return protocol.CodeInvalidChallenge
	case errors.Is(err, chat.ErrInvalidMessage):
		return protocol.CodeInvalidMessage
	case errors.Is(err, chat.ErrBlocked):
		return protocol.CodeMessageBlocked
	case errors.Is(err, chat.ErrNoConversation):
		return protocol.CodeNoConversation
	default:
		return protocol.CodeDeckUnavailable
	}
}

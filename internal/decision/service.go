package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/techtie/match-app/internal/achievement"
	"github.com/techtie/match-app/internal/chat"
	"github.com/techtie/match-app/internal/messaging"
	"github.com/techtie/match-app/internal/metrics"
	"github.com/techtie/match-app/internal/ratelimit"
)

// ErrRateLimited is returned by Handle when the viewer exceeded
// ratelimit.RuleDecision. The decision is not recorded.
var ErrRateLimited = errors.New("decision: rate limited")

// ErrInvalidChallenge is returned by HandleChallenge for an event without a
// user or challenge id.
var ErrInvalidChallenge = errors.New("decision: invalid challenge")

// Bus is the NATS surface the service needs.
type Bus interface {
	messaging.Publisher
	SubscribeDecisions(handler func(data []byte)) error
	SubscribeChallenges(handler func(data []byte)) error
}

// ConversationOpener opens the chat of a matched pair. *chat.Service
// satisfies it.
type ConversationOpener interface {
	Open(ctx context.Context, a, b string) (chat.Conversation, error)
}

// Counter increments achievement progress counters. *achievement.Progress
// satisfies it.
type Counter interface {
	Add(ctx context.Context, userID string, kind achievement.Kind, delta int) (int, error)
}

// RateLimiter is satisfied by *ratelimit.Limiter.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// Service is the background matcher: it records decisions published by the
// WS servers, announces mutual likes to both users and opens their chat, and
// credits the successful-matches and challenges-completed achievements.
type Service struct {
	recorder      Recorder
	bus           Bus
	counter       Counter
	tracker       *achievement.Tracker
	limiter       RateLimiter
	conversations ConversationOpener
	log           *zap.Logger

	ctx        context.Context
	cancel     context.CancelFunc
	stopListen func()

	// mu orders wg.Add in delivery callbacks against Stop's wg.Wait.
	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewService creates a new matcher service. A nil limiter disables the
// per-viewer decision limit.
func NewService(recorder Recorder, bus Bus, counter Counter, tracker *achievement.Tracker, limiter RateLimiter, log *zap.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		recorder: recorder,
		bus:      bus,
		counter:  counter,
		tracker:  tracker,
		limiter:  limiter,
		log:      log.Named("matcher"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetConversations makes mutual matches open a chat for the pair. It must
// be called before Start.
func (s *Service) SetConversations(c ConversationOpener) {
	s.conversations = c
}

// Start registers the unlock listener and subscribes to decision and
// challenge events.
func (s *Service) Start() error {
	s.stopListen = s.tracker.AddListener(s.publishUnlock)
	if err := s.bus.SubscribeDecisions(s.handleDecision); err != nil {
		s.stopListen()
		return err
	}
	if err := s.bus.SubscribeChallenges(s.handleChallenge); err != nil {
		s.stopListen()
		return err
	}
	s.log.Info("service started")
	return nil
}

// Stop cancels in-flight work and waits for it to finish. Events delivered
// after Stop are dropped.
func (s *Service) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	if s.stopListen != nil {
		s.stopListen()
	}
	s.wg.Wait()
	s.log.Info("service stopped")
}

// begin registers one in-flight event. It fails once Stop has started.
func (s *Service) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Service) handleDecision(data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		s.log.Warn("invalid decision event", zap.Error(err))
		return
	}

	if !s.begin() {
		s.log.Debug("decision dropped after stop", zap.String("viewer", ev.ViewerID))
		return
	}
	defer s.wg.Done()

	if _, err := s.Handle(s.ctx, ev); err != nil && !errors.Is(err, ErrRateLimited) {
		s.log.Error("handle decision",
			zap.String("viewer", ev.ViewerID),
			zap.String("candidate", ev.CandidateID),
			zap.Error(err))
	}
}

// Handle records one decision. When it completes a mutual like both users
// receive match.found and their successful-matches counter is incremented.
func (s *Service) Handle(ctx context.Context, ev Event) (bool, error) {
	if s.limiter != nil {
		if ok, _ := s.limiter.Allow(ctx, ev.ViewerID, ratelimit.RuleDecision); !ok {
			metrics.RateLimitedTotal.WithLabelValues("decision").Inc()
			s.log.Info("decision rate limited", zap.String("viewer", ev.ViewerID))
			return false, ErrRateLimited
		}
	}

	mutual, err := s.recorder.Record(ctx, ev.ViewerID, ev.CandidateID, ev.Decision)
	if err != nil {
		return false, err
	}
	if !mutual {
		return false, nil
	}

	metrics.MutualMatchesTotal.Inc()
	s.log.Info("mutual match",
		zap.String("a", ev.ViewerID),
		zap.String("b", ev.CandidateID),
		zap.Stringer("decision", ev.Decision))

	var conversationID string
	if s.conversations != nil {
		conv, err := s.conversations.Open(ctx, ev.ViewerID, ev.CandidateID)
		if err != nil {
			s.log.Error("open conversation", zap.Error(err))
		} else {
			conversationID = conv.ID
		}
	}

	if err := PublishMatchFound(s.bus, ev, conversationID); err != nil {
		s.log.Error("publish match", zap.Error(err))
	}

	var errs []error
	for _, user := range []string{ev.ViewerID, ev.CandidateID} {
		if err := s.credit(ctx, user); err != nil {
			errs = append(errs, err)
		}
	}
	return true, errors.Join(errs...)
}

func (s *Service) handleChallenge(data []byte) {
	var ev ChallengeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.log.Warn("invalid challenge event", zap.Error(err))
		return
	}

	if !s.begin() {
		return
	}
	defer s.wg.Done()

	if _, err := s.HandleChallenge(s.ctx, ev); err != nil {
		s.log.Error("handle challenge",
			zap.String("user", ev.UserID),
			zap.String("challenge", ev.ChallengeID),
			zap.Error(err))
	}
}

// HandleChallenge credits one completed challenge to its user and returns
// the new count. Reaching a threshold publishes achievement.unlocked.
func (s *Service) HandleChallenge(ctx context.Context, ev ChallengeEvent) (int, error) {
	if ev.UserID == "" || ev.ChallengeID == "" {
		return 0, ErrInvalidChallenge
	}

	value, err := s.counter.Add(ctx, ev.UserID, achievement.ChallengesCompleted, 1)
	if err != nil {
		return 0, fmt.Errorf("decision: credit challenge %s: %w", ev.UserID, err)
	}
	metrics.ChallengesCompletedTotal.Inc()
	s.log.Debug("challenge completed",
		zap.String("user", ev.UserID),
		zap.String("challenge", ev.ChallengeID),
		zap.Int("total", value))

	if _, _, err := s.tracker.TrackProgress(ctx, ev.UserID, achievement.ChallengesCompleted, value); err != nil {
		return value, fmt.Errorf("decision: track challenges %s: %w", ev.UserID, err)
	}
	return value, nil
}

func (s *Service) credit(ctx context.Context, userID string) error {
	value, err := s.counter.Add(ctx, userID, achievement.SuccessfulMatches, 1)
	if err != nil {
		return fmt.Errorf("decision: credit %s: %w", userID, err)
	}
	if _, _, err := s.tracker.TrackProgress(ctx, userID, achievement.SuccessfulMatches, value); err != nil {
		return fmt.Errorf("decision: track %s: %w", userID, err)
	}
	return nil
}

func (s *Service) publishUnlock(u achievement.Unlock) {
	metrics.AchievementsUnlockedTotal.
		WithLabelValues(string(u.Achievement.Kind), u.Achievement.Level.String()).Inc()
	if err := PublishUnlock(s.bus, u); err != nil {
		s.log.Error("publish unlock", zap.String("user", u.UserID), zap.Error(err))
	}
}

package decision

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/techtie/match-app/internal/achievement"
	"github.com/techtie/match-app/internal/chat"
	"github.com/techtie/match-app/internal/matching"
	"github.com/techtie/match-app/internal/messaging"
	"github.com/techtie/match-app/internal/ratelimit"
)

// ---------------------------------------------------------------------------
// Recorder semantics, shared by MemoryStore and the Redis Store
// ---------------------------------------------------------------------------

func testRecorder(t *testing.T, r Recorder) {
	t.Helper()
	ctx := context.Background()

	mutual, err := r.Record(ctx, "test_a", "test_b", matching.Like)
	require.NoError(t, err)
	assert.False(t, mutual, "first like cannot be mutual")

	mutual, err = r.Record(ctx, "test_b", "test_a", matching.SuperLike)
	require.NoError(t, err)
	assert.True(t, mutual, "reciprocal super-like completes the pair")

	mutual, err = r.Record(ctx, "test_b", "test_a", matching.Like)
	require.NoError(t, err)
	assert.False(t, mutual, "repeating a like does not report again")

	mutual, err = r.Record(ctx, "test_c", "test_a", matching.Pass)
	require.NoError(t, err)
	assert.False(t, mutual)

	mutual, err = r.Record(ctx, "test_a", "test_c", matching.Like)
	require.NoError(t, err)
	assert.False(t, mutual, "a pass is not reciprocation")

	_, err = r.Record(ctx, "test_a", "test_a", matching.Like)
	assert.Error(t, err)

	_, err = r.Record(ctx, "", "test_a", matching.Like)
	assert.Error(t, err)

	_, err = r.Record(ctx, "test_a", "test_d", matching.Decision(9))
	assert.Error(t, err)
}

func TestMemoryStore_Record(t *testing.T) {
	testRecorder(t, NewMemoryStore())
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	clean := func() {
		iter := client.Scan(ctx, 0, DecisionPrefix+"test_*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	}
	clean()
	t.Cleanup(func() {
		clean()
		client.Close()
	})
	return NewStore(client)
}

func TestStore_Record(t *testing.T) {
	testRecorder(t, newTestStore(t))
}

func TestStore_GetAndReset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "test_a", "test_b")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Record(ctx, "test_a", "test_b", matching.SuperLike)
	require.NoError(t, err)

	d, ok, err := s.Get(ctx, "test_a", "test_b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, matching.SuperLike, d)

	require.NoError(t, s.Reset(ctx, "test_a"))
	_, ok, err = s.Get(ctx, "test_a", "test_b")
	require.NoError(t, err)
	assert.False(t, ok)
}

// ---------------------------------------------------------------------------
// Service
// ---------------------------------------------------------------------------

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	handler   func([]byte)
	challenge func([]byte)
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: make(map[string][][]byte)}
}

func (b *fakeBus) Publish(subject string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[subject] = append(b.published[subject], data)
	return nil
}

func (b *fakeBus) SubscribeDecisions(handler func([]byte)) error {
	b.handler = handler
	return nil
}

func (b *fakeBus) SubscribeChallenges(handler func([]byte)) error {
	b.challenge = handler
	return nil
}

func (b *fakeBus) messages(subject string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published[subject]
}

type memCounter struct {
	mu     sync.Mutex
	values map[string]int
	err    error
}

func (c *memCounter) Add(_ context.Context, userID string, kind achievement.Kind, delta int) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string]int)
	}
	c.values[userID+":"+string(kind)] += delta
	return c.values[userID+":"+string(kind)], nil
}

func (c *memCounter) get(userID string, kind achievement.Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[userID+":"+string(kind)]
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, ratelimit.Rule) (bool, error) {
	return false, nil
}

func newTestService(t *testing.T, counter Counter, limiter RateLimiter) (*Service, *fakeBus) {
	t.Helper()
	bus := newFakeBus()
	tracker := achievement.NewTracker(nil, 0, zap.NewNop())
	svc := NewService(NewMemoryStore(), bus, counter, tracker, limiter, zap.NewNop())
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Stop)
	return svc, bus
}

func TestService_MutualLikePublishesToBoth(t *testing.T) {
	svc, bus := newTestService(t, &memCounter{}, nil)
	ctx := context.Background()

	mutual, err := svc.Handle(ctx, Event{ViewerID: "sarah", ViewerName: "Sarah", CandidateID: "alex", CandidateName: "Alex", Decision: matching.Like})
	require.NoError(t, err)
	assert.False(t, mutual)
	assert.Empty(t, bus.messages(messaging.SubjectMatchFound+".sarah"))

	mutual, err = svc.Handle(ctx, Event{ViewerID: "alex", ViewerName: "Alex", CandidateID: "sarah", CandidateName: "Sarah", Decision: matching.Like})
	require.NoError(t, err)
	assert.True(t, mutual)

	for user, partner := range map[string]string{"sarah": "alex", "alex": "sarah"} {
		msgs := bus.messages(messaging.SubjectMatchFound + "." + user)
		require.Len(t, msgs, 1, user)
		var res MatchResult
		require.NoError(t, json.Unmarshal(msgs[0], &res))
		assert.Equal(t, partner, res.PartnerID)
		assert.Empty(t, res.ConversationID, "no chat configured")
	}
}

func TestService_MutualMatchOpensConversation(t *testing.T) {
	bus := newFakeBus()
	chats := chat.NewService(chat.NewMemoryStore(0), nil, nil, nil)
	svc := NewService(NewMemoryStore(), bus, &memCounter{}, achievement.NewTracker(nil, 0, zap.NewNop()), nil, zap.NewNop())
	svc.SetConversations(chats)
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Stop)
	ctx := context.Background()

	_, err := svc.Handle(ctx, Event{ViewerID: "sarah", CandidateID: "alex", Decision: matching.Like})
	require.NoError(t, err)
	_, _, err = chats.History(ctx, "sarah", "alex")
	assert.ErrorIs(t, err, chat.ErrNoConversation, "one-sided like opens nothing")

	_, err = svc.Handle(ctx, Event{ViewerID: "alex", CandidateID: "sarah", Decision: matching.Like})
	require.NoError(t, err)

	conv, _, err := chats.History(ctx, "sarah", "alex")
	require.NoError(t, err)
	for _, user := range []string{"sarah", "alex"} {
		msgs := bus.messages(messaging.SubjectMatchFound + "." + user)
		require.Len(t, msgs, 1)
		var res MatchResult
		require.NoError(t, json.Unmarshal(msgs[0], &res))
		assert.Equal(t, conv.ID, res.ConversationID)
	}

	_, err = chats.Send(ctx, "sarah", "Sarah", "alex", "hi Alex!")
	assert.NoError(t, err)
}

func TestService_FirstMatchUnlocksBronze(t *testing.T) {
	svc, bus := newTestService(t, &memCounter{}, nil)
	ctx := context.Background()

	_, err := svc.Handle(ctx, Event{ViewerID: "sarah", CandidateID: "alex", Decision: matching.Like})
	require.NoError(t, err)
	_, err = svc.Handle(ctx, Event{ViewerID: "alex", CandidateID: "sarah", Decision: matching.SuperLike})
	require.NoError(t, err)

	for _, user := range []string{"sarah", "alex"} {
		msgs := bus.messages(messaging.SubjectAchievementUnlocked + "." + user)
		require.Len(t, msgs, 1, user)
		var u achievement.Unlock
		require.NoError(t, json.Unmarshal(msgs[0], &u))
		assert.Equal(t, user, u.UserID)
		assert.Equal(t, achievement.SuccessfulMatches, u.Achievement.Kind)
		assert.Equal(t, achievement.Bronze, u.Achievement.Level)
	}
}

func TestService_SecondMatchDoesNotRepeatBronze(t *testing.T) {
	svc, bus := newTestService(t, &memCounter{}, nil)
	ctx := context.Background()

	for _, partner := range []string{"alex", "maria"} {
		_, err := svc.Handle(ctx, Event{ViewerID: partner, CandidateID: "sarah", Decision: matching.Like})
		require.NoError(t, err)
		_, err = svc.Handle(ctx, Event{ViewerID: "sarah", CandidateID: partner, Decision: matching.Like})
		require.NoError(t, err)
	}

	assert.Len(t, bus.messages(messaging.SubjectMatchFound+".sarah"), 2)
	assert.Len(t, bus.messages(messaging.SubjectAchievementUnlocked+".sarah"), 1)
}

func TestService_RateLimited(t *testing.T) {
	svc, bus := newTestService(t, &memCounter{}, denyLimiter{})

	_, err := svc.Handle(context.Background(), Event{ViewerID: "sarah", CandidateID: "alex", Decision: matching.Like})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Empty(t, bus.messages(messaging.SubjectMatchFound+".sarah"))
}

func TestService_CounterErrorIsReported(t *testing.T) {
	svc, bus := newTestService(t, &memCounter{err: errors.New("redis down")}, nil)
	ctx := context.Background()

	_, err := svc.Handle(ctx, Event{ViewerID: "sarah", CandidateID: "alex", Decision: matching.Like})
	require.NoError(t, err)
	mutual, err := svc.Handle(ctx, Event{ViewerID: "alex", CandidateID: "sarah", Decision: matching.Like})
	assert.True(t, mutual)
	assert.Error(t, err)
	assert.Len(t, bus.messages(messaging.SubjectMatchFound+".sarah"), 1, "match is still announced")
}

func TestService_HandlesBusEvents(t *testing.T) {
	_, bus := newTestService(t, &memCounter{}, nil)
	require.NotNil(t, bus.handler)

	for _, ev := range []Event{
		{ViewerID: "sarah", CandidateID: "alex", Decision: matching.Like},
		{ViewerID: "alex", CandidateID: "sarah", Decision: matching.Like},
	} {
		data, err := json.Marshal(ev)
		require.NoError(t, err)
		bus.handler(data)
	}
	bus.handler([]byte(`{not json`))

	assert.Len(t, bus.messages(messaging.SubjectMatchFound+".alex"), 1)
}

func TestService_TenthChallengeUnlocksBronze(t *testing.T) {
	counter := &memCounter{}
	_, bus := newTestService(t, counter, nil)
	require.NotNil(t, bus.challenge)

	data, err := json.Marshal(ChallengeEvent{UserID: "sarah", ChallengeID: "two-sum"})
	require.NoError(t, err)
	for i := 0; i < 9; i++ {
		bus.challenge(data)
	}
	assert.Empty(t, bus.messages(messaging.SubjectAchievementUnlocked+".sarah"))

	bus.challenge(data)
	bus.challenge([]byte(`{broken`))

	assert.Equal(t, 10, counter.get("sarah", achievement.ChallengesCompleted))
	msgs := bus.messages(messaging.SubjectAchievementUnlocked + ".sarah")
	require.Len(t, msgs, 1)
	var u achievement.Unlock
	require.NoError(t, json.Unmarshal(msgs[0], &u))
	assert.Equal(t, achievement.ChallengesCompleted, u.Achievement.Kind)
	assert.Equal(t, achievement.Bronze, u.Achievement.Level)
	assert.Equal(t, 10, u.Achievement.Value)
}

func TestService_HandleChallengeRejectsIncompleteEvent(t *testing.T) {
	counter := &memCounter{}
	svc, _ := newTestService(t, counter, nil)

	_, err := svc.HandleChallenge(context.Background(), ChallengeEvent{UserID: "sarah"})
	assert.ErrorIs(t, err, ErrInvalidChallenge)
	assert.Zero(t, counter.get("sarah", achievement.ChallengesCompleted))
}

func TestService_StopDropsEventsDeliveredDuringShutdown(t *testing.T) {
	counter := &memCounter{}
	svc, bus := newTestService(t, counter, nil)

	challenge, err := json.Marshal(ChallengeEvent{UserID: "sarah", ChallengeID: "fizzbuzz"})
	require.NoError(t, err)
	decided, err := json.Marshal(Event{ViewerID: "alex", CandidateID: "maria", Decision: matching.Like})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.challenge(challenge)
		}()
		go func() {
			defer wg.Done()
			bus.handler(decided)
		}()
	}
	svc.Stop()
	wg.Wait()

	before := counter.get("sarah", achievement.ChallengesCompleted)
	bus.challenge(challenge)
	assert.Equal(t, before, counter.get("sarah", achievement.ChallengesCompleted), "stopped service ignores deliveries")
}

func TestPublishChallenge_WireFormat(t *testing.T) {
	bus := newFakeBus()
	require.NoError(t, PublishChallenge(bus, ChallengeEvent{UserID: "sarah", ChallengeID: "two-sum"}))

	msgs := bus.messages(messaging.SubjectChallengeCompleted)
	require.Len(t, msgs, 1)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[0], &raw))
	assert.Equal(t, "sarah", raw["user_id"])
	assert.Equal(t, "two-sum", raw["challenge_id"])
}

func TestPublishEvent_WireFormat(t *testing.T) {
	bus := newFakeBus()
	require.NoError(t, PublishEvent(bus, Event{ViewerID: "sarah", CandidateID: "alex", Decision: matching.SuperLike}))

	msgs := bus.messages(messaging.SubjectDecisionRecorded)
	require.Len(t, msgs, 1)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[0], &raw))
	assert.Equal(t, "super_like", raw["decision"])
}

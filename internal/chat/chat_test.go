package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techtie/match-app/internal/messaging"
	"github.com/techtie/match-app/internal/moderation"
)

var fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		valid bool
	}{
		{"plain", "want to build a Go CLI together?", true},
		{"unicode", "こんにちは 👋", true},
		{"max chars", strings.Repeat("a", MaxTextChars), true},
		{"empty", "", false},
		{"blank", "  \n\t", false},
		{"too many chars", strings.Repeat("a", MaxTextChars+1), false},
		{"too many bytes", strings.Repeat("é", MaxMessageBytes/2+1), false},
		{"invalid utf8", "hi \xff", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.text)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidMessage)
			}
		})
	}
}

func TestConversation_Participants(t *testing.T) {
	assert.Equal(t, ConversationID("sarah", "alex"), ConversationID("alex", "sarah"))

	c := newConversation("sarah", "alex", fixedTime)
	assert.Equal(t, "alex", c.UserA)
	assert.Equal(t, "sarah", c.UserB)
	assert.True(t, c.Has("alex"))
	assert.False(t, c.Has("maria"))
	assert.Equal(t, "sarah", c.Partner("alex"))
	assert.Equal(t, "alex", c.Partner("sarah"))
	assert.Empty(t, c.Partner("maria"))
}

func TestHistory_KeepsNewest(t *testing.T) {
	h := newHistory(3)
	assert.Empty(t, h.list())

	for _, text := range []string{"1", "2", "3", "4", "5"} {
		h.add(Message{Text: text})
	}
	got := h.list()
	require.Len(t, got, 3)
	assert.Equal(t, "3", got[0].Text)
	assert.Equal(t, "5", got[2].Text)
}

// testStore runs the Store contract against s.
func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "test_sarah", "test_alex")
	require.NoError(t, err)
	assert.False(t, ok)

	c, created, err := s.Open(ctx, "test_sarah", "test_alex")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, ConversationID("test_alex", "test_sarah"), c.ID)

	again, created, err := s.Open(ctx, "test_alex", "test_sarah")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, c.ID, again.ID)
	assert.Equal(t, "test_alex", again.UserA)

	got, ok, err := s.Get(ctx, "test_alex", "test_sarah")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, c.UserB, got.UserB)

	msgs, err := s.History(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	for _, text := range []string{"hi", "hello", "pair tomorrow?"} {
		require.NoError(t, s.Append(ctx, Message{ConversationID: c.ID, From: "test_sarah", To: "test_alex", Text: text}))
	}
	msgs, err = s.History(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2, "history is bounded")
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, "pair tomorrow?", msgs[1].Text)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore(2))
}

func TestRedisStore(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	clean := func() {
		iter := client.Scan(ctx, 0, ConversationPrefix+"test_*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	}
	clean()
	t.Cleanup(func() {
		clean()
		client.Close()
	})

	testStore(t, NewRedisStore(client, 2))
}

type pubRecorder struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func (p *pubRecorder) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.msgs == nil {
		p.msgs = make(map[string][][]byte)
	}
	p.msgs[subject] = append(p.msgs[subject], data)
	return nil
}

func (p *pubRecorder) on(subject string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.msgs[subject]
}

func newTestService(t *testing.T) (*Service, *pubRecorder) {
	t.Helper()
	pub := &pubRecorder{}
	return NewService(NewMemoryStore(0), moderation.NewFilter(), pub, nil), pub
}

func TestService_SendRequiresConversation(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	_, err := svc.Send(ctx, "sarah", "Sarah Chen", "alex", "hi")
	assert.ErrorIs(t, err, ErrNoConversation)
	_, err = svc.Send(ctx, "sarah", "Sarah Chen", "sarah", "hi")
	assert.ErrorIs(t, err, ErrNoConversation)
	assert.Empty(t, pub.on(messaging.SubjectChatMessage+".alex"))
}

func TestService_SendDeliversToPartner(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()

	conv, err := svc.Open(ctx, "alex", "sarah")
	require.NoError(t, err)

	msg, err := svc.Send(ctx, "sarah", "Sarah Chen", "alex", "want to pair on the React app?")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, msg.ConversationID)
	assert.NotEmpty(t, msg.ID)

	published := pub.on(messaging.SubjectChatMessage + ".alex")
	require.Len(t, published, 1)
	got, err := Decode(published[0])
	require.NoError(t, err)
	assert.Equal(t, "sarah", got.From)
	assert.Equal(t, "Sarah Chen", got.FromName)
	assert.Equal(t, "want to pair on the React app?", got.Text)

	_, history, err := svc.History(ctx, "alex", "sarah")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msg.ID, history[0].ID)
}

func TestService_SendRejects(t *testing.T) {
	svc, pub := newTestService(t)
	ctx := context.Background()
	_, err := svc.Open(ctx, "alex", "sarah")
	require.NoError(t, err)

	_, err = svc.Send(ctx, "sarah", "", "alex", "   ")
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = svc.Send(ctx, "sarah", "", "alex", "you are a scammer")
	assert.ErrorIs(t, err, ErrBlocked)

	_, err = svc.Send(ctx, "sarah", "", "alex", "dm me at https://free-crypto.xyz/now")
	assert.ErrorIs(t, err, ErrBlocked)

	assert.Empty(t, pub.on(messaging.SubjectChatMessage+".alex"))
	_, history, err := svc.History(ctx, "sarah", "alex")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestDecode(t *testing.T) {
	data, err := json.Marshal(Message{From: "sarah", To: "alex", Text: "hi"})
	require.NoError(t, err)
	m, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "hi", m.Text)

	_, err = Decode([]byte(`{"text":"orphan"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`{broken`))
	assert.Error(t, err)
}

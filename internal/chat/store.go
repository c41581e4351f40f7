package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key layout.
const (
	ConversationPrefix = "chat:"    // + id -> hash{user_a, user_b, opened_at}
	historySuffix      = ":history" // list of JSON messages, oldest first
)

// Store persists conversations and their recent history.
type Store interface {
	// Open creates the conversation of a and b if it does not exist and
	// reports whether it did so.
	Open(ctx context.Context, a, b string) (Conversation, bool, error)
	Get(ctx context.Context, a, b string) (Conversation, bool, error)
	Append(ctx context.Context, msg Message) error
	History(ctx context.Context, conversationID string) ([]Message, error)
}

// RedisStore keeps conversations in Redis so every WS server sees them.
type RedisStore struct {
	rdb        *redis.Client
	size       int
	openScript *redis.Script
}

// NewRedisStore creates a store that keeps size messages per conversation.
// size <= 0 uses HistorySize.
func NewRedisStore(rdb *redis.Client, size int) *RedisStore {
	if size <= 0 {
		size = HistorySize
	}
	return &RedisStore{
		rdb:        rdb,
		size:       size,
		openScript: redis.NewScript(openConversationLua),
	}
}

// Open implements Store.
func (s *RedisStore) Open(ctx context.Context, a, b string) (Conversation, bool, error) {
	c := newConversation(a, b, time.Now().UTC())
	n, err := s.openScript.Run(ctx, s.rdb, []string{ConversationPrefix + c.ID},
		c.UserA, c.UserB, c.OpenedAt.Format(time.RFC3339Nano)).Int()
	if err != nil {
		return Conversation{}, false, fmt.Errorf("chat: open %s: %w", c.ID, err)
	}
	if n == 1 {
		return c, true, nil
	}
	existing, _, err := s.Get(ctx, a, b)
	return existing, false, err
}

// openConversationLua writes the conversation hash unless it exists.
// Returns 1 when created.
const openConversationLua = `
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'user_a', ARGV[1], 'user_b', ARGV[2], 'opened_at', ARGV[3])
return 1
`

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, a, b string) (Conversation, bool, error) {
	id := ConversationID(a, b)
	vals, err := s.rdb.HGetAll(ctx, ConversationPrefix+id).Result()
	if err != nil {
		return Conversation{}, false, fmt.Errorf("chat: get %s: %w", id, err)
	}
	if len(vals) == 0 {
		return Conversation{}, false, nil
	}
	opened, _ := time.Parse(time.RFC3339Nano, vals["opened_at"])
	return Conversation{ID: id, UserA: vals["user_a"], UserB: vals["user_b"], OpenedAt: opened}, true, nil
}

// Append implements Store. The list is trimmed to the newest size entries.
func (s *RedisStore) Append(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("chat: marshal message: %w", err)
	}
	key := ConversationPrefix + msg.ConversationID + historySuffix
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, int64(-s.size), -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("chat: append %s: %w", msg.ConversationID, err)
	}
	return nil
}

// History implements Store.
func (s *RedisStore) History(ctx context.Context, conversationID string) ([]Message, error) {
	raw, err := s.rdb.LRange(ctx, ConversationPrefix+conversationID+historySuffix, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("chat: history %s: %w", conversationID, err)
	}
	out := make([]Message, 0, len(raw))
	for _, r := range raw {
		var m Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("chat: decode history %s: %w", conversationID, err)
		}
		out = append(out, m)
	}
	return out, nil
}

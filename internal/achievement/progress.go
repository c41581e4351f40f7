package achievement

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// ProgressPrefix is the Redis key prefix of the per-user progress hash.
// Fields are "<kind>" for the counter and "<kind>:level" for the highest
// awarded level.
const ProgressPrefix = "achievements:"

const levelSuffix = ":level"

// Progress stores counters and awarded levels in Redis.
type Progress struct {
	rdb         *redis.Client
	awardScript *redis.Script
}

// NewProgress creates a Progress store backed by rdb.
func NewProgress(rdb *redis.Client) *Progress {
	return &Progress{
		rdb:         rdb,
		awardScript: redis.NewScript(awardLua),
	}
}

// Add increments userID's counter for kind by delta and returns the new
// value.
func (p *Progress) Add(ctx context.Context, userID string, kind Kind, delta int) (int, error) {
	if _, ok := thresholds[kind]; !ok {
		return 0, fmt.Errorf("achievement: unknown kind %q", kind)
	}
	v, err := p.rdb.HIncrBy(ctx, ProgressPrefix+userID, string(kind), int64(delta)).Result()
	if err != nil {
		return 0, fmt.Errorf("achievement: incr %s: %w", kind, err)
	}
	return int(v), nil
}

// Award implements Awarder atomically.
func (p *Progress) Award(ctx context.Context, userID string, kind Kind, level Level) (bool, error) {
	n, err := p.awardScript.Run(ctx, p.rdb, []string{ProgressPrefix + userID},
		string(kind)+levelSuffix, int(level)).Int()
	if err != nil {
		return false, fmt.Errorf("achievement: award %s: %w", kind, err)
	}
	return n == 1, nil
}

// Summary is a user's progress on one kind.
type Summary struct {
	Kind  Kind  `json:"kind"`
	Value int   `json:"value"`
	Level Level `json:"level"`
}

// Get returns userID's progress for every kind, in Kinds order.
func (p *Progress) Get(ctx context.Context, userID string) ([]Summary, error) {
	fields, err := p.rdb.HGetAll(ctx, ProgressPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("achievement: get progress: %w", err)
	}

	out := make([]Summary, 0, len(Kinds))
	for _, k := range Kinds {
		s := Summary{Kind: k}
		s.Value, _ = strconv.Atoi(fields[string(k)])
		lvl, _ := strconv.Atoi(fields[string(k)+levelSuffix])
		s.Level = Level(lvl)
		out = append(out, s)
	}
	return out, nil
}

// Reset deletes all of userID's progress.
func (p *Progress) Reset(ctx context.Context, userID string) error {
	return p.rdb.Del(ctx, ProgressPrefix+userID).Err()
}

// awardLua raises the stored level for a kind when the new level is higher.
// Returns 1 if raised, 0 otherwise.
const awardLua = `
local key = KEYS[1]
local field = ARGV[1]
local level = tonumber(ARGV[2])

local current = tonumber(redis.call('HGET', key, field) or '0')
if level > current then
    redis.call('HSET', key, field, level)
    return 1
end
return 0
`

// Package decision persists deck decisions and detects mutual likes.
package decision

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/techtie/match-app/internal/matching"
)

// DecisionPrefix is the Redis key prefix of the per-viewer decision hash.
// Fields are candidate ids, values are decision wire names.
const DecisionPrefix = "decisions:"

// Recorder stores a decision and reports whether it completed a mutual
// like. A mutual like is reported once per pair and viewer: repeating a like
// does not report it again.
type Recorder interface {
	Record(ctx context.Context, viewerID, candidateID string, d matching.Decision) (bool, error)
}

// Store manages decision state in Redis.
type Store struct {
	rdb          *redis.Client
	recordScript *redis.Script
}

// NewStore creates a new decision store backed by Redis.
func NewStore(rdb *redis.Client) *Store {
	return &Store{
		rdb:          rdb,
		recordScript: redis.NewScript(recordDecisionLua),
	}
}

// Record atomically stores viewerID's decision on candidateID and checks
// whether candidateID already liked viewerID.
func (s *Store) Record(ctx context.Context, viewerID, candidateID string, d matching.Decision) (bool, error) {
	if viewerID == "" || candidateID == "" {
		return false, fmt.Errorf("decision: viewer and candidate ids are required")
	}
	if viewerID == candidateID {
		return false, fmt.Errorf("decision: %s cannot decide on itself", viewerID)
	}
	wire, err := d.MarshalText()
	if err != nil {
		return false, fmt.Errorf("decision: %w", err)
	}

	keys := []string{DecisionPrefix + viewerID, DecisionPrefix + candidateID}
	n, err := s.recordScript.Run(ctx, s.rdb, keys, candidateID, viewerID, string(wire)).Int()
	if err != nil {
		return false, fmt.Errorf("decision: record: %w", err)
	}
	return n == 1, nil
}

// Get returns viewerID's stored decision on candidateID.
func (s *Store) Get(ctx context.Context, viewerID, candidateID string) (matching.Decision, bool, error) {
	v, err := s.rdb.HGet(ctx, DecisionPrefix+viewerID, candidateID).Result()
	if err == redis.Nil {
		return matching.Pass, false, nil
	}
	if err != nil {
		return matching.Pass, false, fmt.Errorf("decision: get: %w", err)
	}
	d, err := matching.ParseDecision(v)
	if err != nil {
		return matching.Pass, false, fmt.Errorf("decision: stored value: %w", err)
	}
	return d, true, nil
}

// Reset removes every decision made by viewerID.
func (s *Store) Reset(ctx context.Context, viewerID string) error {
	return s.rdb.Del(ctx, DecisionPrefix+viewerID).Err()
}

// recordDecisionLua stores the viewer's decision and returns 1 when it is a
// new like that the candidate has already reciprocated, 0 otherwise.
const recordDecisionLua = `
local own = KEYS[1]
local other = KEYS[2]
local candidate = ARGV[1]
local viewer = ARGV[2]
local decision = ARGV[3]

local prev = redis.call('HGET', own, candidate)
redis.call('HSET', own, candidate, decision)

if decision ~= 'like' and decision ~= 'super_like' then return 0 end
if prev == 'like' or prev == 'super_like' then return 0 end

local theirs = redis.call('HGET', other, viewer)
if theirs == 'like' or theirs == 'super_like' then return 1 end

return 0
`

// MemoryStore is an in-process Recorder with the same semantics as Store.
type MemoryStore struct {
	mu        sync.Mutex
	decisions map[string]map[string]matching.Decision
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{decisions: make(map[string]map[string]matching.Decision)}
}

// Record implements Recorder.
func (m *MemoryStore) Record(_ context.Context, viewerID, candidateID string, d matching.Decision) (bool, error) {
	if viewerID == "" || candidateID == "" {
		return false, fmt.Errorf("decision: viewer and candidate ids are required")
	}
	if viewerID == candidateID {
		return false, fmt.Errorf("decision: %s cannot decide on itself", viewerID)
	}
	if _, err := d.MarshalText(); err != nil {
		return false, fmt.Errorf("decision: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	own := m.decisions[viewerID]
	if own == nil {
		own = make(map[string]matching.Decision)
		m.decisions[viewerID] = own
	}
	prev, had := own[candidateID]
	own[candidateID] = d

	if !d.IsPositive() || (had && prev.IsPositive()) {
		return false, nil
	}
	theirs, ok := m.decisions[candidateID][viewerID]
	return ok && theirs.IsPositive(), nil
}

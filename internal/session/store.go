package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionPrefix is the Redis key prefix for all session hashes.
	SessionPrefix = "session:"

	// SessionTTL is the time-to-live for session keys in Redis.
	SessionTTL = 1 * time.Hour

	// Status constants for the session state machine.
	StatusBrowsing  = "browsing"
	StatusExhausted = "exhausted"
)

// Session represents a connection's deck state stored in Redis.
type Session struct {
	ID            string `redis:"id"`
	UserID        string `redis:"user_id"`        // viewer id, anonymous sessions use their own id
	Status        string `redis:"status"`         // browsing | exhausted
	Server        string `redis:"server"`         // which WS server instance
	CriteriaHash  string `redis:"criteria_hash"`  // matching.CriteriaHash of the active filter
	ActiveFilters int    `redis:"active_filters"` // filter badge count
	Decisions     int    `redis:"decisions"`      // decisions made on this connection
	CreatedAt     int64  `redis:"created_at"`     // unix timestamp
	LastActive    int64  `redis:"last_active"`    // unix timestamp
}

// Store manages session state in Redis.
type Store struct {
	client     *redis.Client
	serverName string // identifier for this WS server instance
}

// NewStore creates a new session store connected to Redis.
func NewStore(redisAddr string, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return &Store{client: client, serverName: serverName}, nil
}

// NewStoreWithClient wraps an existing Redis client.
func NewStoreWithClient(client *redis.Client, serverName string) *Store {
	return &Store{client: client, serverName: serverName}
}

// Create stores a new session in Redis with browsing status and 1h TTL.
func (s *Store) Create(ctx context.Context, sessionID, userID, criteriaHash string) error {
	key := SessionPrefix + sessionID
	now := time.Now().Unix()

	session := map[string]interface{}{
		"id":             sessionID,
		"user_id":        userID,
		"status":         StatusBrowsing,
		"server":         s.serverName,
		"criteria_hash":  criteriaHash,
		"active_filters": 0,
		"decisions":      0,
		"created_at":     now,
		"last_active":    now,
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, session)
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get retrieves a session from Redis. Returns nil if not found.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	key := SessionPrefix + sessionID
	var session Session
	err := s.client.HGetAll(ctx, key).Scan(&session)
	if err != nil {
		return nil, err
	}
	if session.ID == "" {
		return nil, nil // not found
	}
	return &session, nil
}

// SetFilter records the active filter and resets the status to browsing
// or exhausted.
func (s *Store) SetFilter(ctx context.Context, sessionID, criteriaHash string, activeFilters int, exhausted bool) error {
	key := SessionPrefix + sessionID
	status := StatusBrowsing
	if exhausted {
		status = StatusExhausted
	}
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key,
		"criteria_hash", criteriaHash,
		"active_filters", activeFilters,
		"status", status,
		"last_active", time.Now().Unix())
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// RecordDecision increments the decision counter and updates the status.
func (s *Store) RecordDecision(ctx context.Context, sessionID string, exhausted bool) error {
	key := SessionPrefix + sessionID
	status := StatusBrowsing
	if exhausted {
		status = StatusExhausted
	}
	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, key, "decisions", 1)
	pipe.HSet(ctx, key, "status", status, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// RefreshTTL extends the session's TTL.
func (s *Store) RefreshTTL(ctx context.Context, sessionID string) error {
	key := SessionPrefix + sessionID
	return s.client.Expire(ctx, key, SessionTTL).Err()
}

// Delete removes a session from Redis.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	key := SessionPrefix + sessionID
	return s.client.Del(ctx, key).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (s *Store) Client() *redis.Client {
	return s.client
}

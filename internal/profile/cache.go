package profile

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/techtie/match-app/internal/matching"
)

const snapshotKey = "candidates"

// CachedSource keeps a TTL snapshot of another source so that every new
// connection does not hit Postgres or the filesystem.
type CachedSource struct {
	src   Source
	cache *cache.Cache
}

// NewCachedSource caches src for ttl. Expired snapshots are purged every
// 2*ttl.
func NewCachedSource(src Source, ttl time.Duration) *CachedSource {
	return &CachedSource{
		src:   src,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Candidates returns the cached snapshot, loading it on a miss. Load errors
// are not cached.
func (c *CachedSource) Candidates(ctx context.Context) ([]matching.Candidate, error) {
	if x, found := c.cache.Get(snapshotKey); found {
		return append([]matching.Candidate(nil), x.([]matching.Candidate)...), nil
	}

	cands, err := c.src.Candidates(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Set(snapshotKey, cands, cache.DefaultExpiration)
	return append([]matching.Candidate(nil), cands...), nil
}

// Invalidate drops the snapshot; the next call reloads.
func (c *CachedSource) Invalidate() {
	c.cache.Delete(snapshotKey)
}

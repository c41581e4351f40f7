// Package profile provides the candidate sources a deck is built from:
// in-memory fixtures, YAML files, the Postgres candidates table, and a TTL
// cache that sits in front of any of them.
package profile

import (
	"context"

	"github.com/techtie/match-app/internal/matching"
)

// Source yields the full, unfiltered candidate list in display order.
type Source interface {
	Candidates(ctx context.Context) ([]matching.Candidate, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) ([]matching.Candidate, error)

// Candidates calls f.
func (f SourceFunc) Candidates(ctx context.Context) ([]matching.Candidate, error) {
	return f(ctx)
}

// StaticSource serves a fixed slice.
type StaticSource []matching.Candidate

// Candidates returns a copy of the slice.
func (s StaticSource) Candidates(context.Context) ([]matching.Candidate, error) {
	return append([]matching.Candidate(nil), s...), nil
}

// Excluding wraps src so that the candidate with the given id (normally the
// viewer's own profile) is never returned.
func Excluding(src Source, id string) Source {
	if id == "" {
		return src
	}
	return SourceFunc(func(ctx context.Context) ([]matching.Candidate, error) {
		all, err := src.Candidates(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]matching.Candidate, 0, len(all))
		for _, c := range all {
			if c.ID != id {
				out = append(out, c)
			}
		}
		return out, nil
	})
}

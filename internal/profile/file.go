package profile

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/techtie/match-app/internal/matching"
)

// fixtureFile is the on-disk layout of a candidate fixture:
//
//	candidates:
//	  - id: sarah
//	    name: Sarah Chen
//	    skills: [React, Node.js]
//	    experience_years: 4
//	    online: true
type fixtureFile struct {
	Candidates []matching.Candidate `yaml:"candidates"`
}

// LoadFile reads and validates a YAML candidate fixture.
func LoadFile(path string) ([]matching.Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("profile: open %s: %w", path, err)
	}
	defer f.Close()

	cands, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("profile: %s: %w", path, err)
	}
	return cands, nil
}

// Decode parses a YAML fixture from r and validates it.
func Decode(r io.Reader) ([]matching.Candidate, error) {
	var ff fixtureFile
	if err := yaml.NewDecoder(r).Decode(&ff); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := Validate(ff.Candidates); err != nil {
		return nil, err
	}
	return ff.Candidates, nil
}

// Validate checks that every candidate has a unique non-empty id and a
// non-negative experience value.
func Validate(cands []matching.Candidate) error {
	seen := make(map[string]int, len(cands))
	for i, c := range cands {
		if c.ID == "" {
			return fmt.Errorf("candidate %d: missing id", i)
		}
		if prev, dup := seen[c.ID]; dup {
			return fmt.Errorf("candidate %d: duplicate id %q (first at %d)", i, c.ID, prev)
		}
		seen[c.ID] = i
		if c.ExperienceYears < 0 {
			return fmt.Errorf("candidate %q: negative experience_years %d", c.ID, c.ExperienceYears)
		}
	}
	return nil
}

// FileSource re-reads the fixture on every call. Wrap it in a CachedSource
// for production use.
type FileSource string

// Candidates loads the file at s.
func (s FileSource) Candidates(context.Context) ([]matching.Candidate, error) {
	return LoadFile(string(s))
}

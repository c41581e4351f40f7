// Package matching implements the swipe deck: an ordered candidate list
// narrowed by filter criteria, with a cursor that advances as the viewer
// passes, likes or super-likes the focused profile.
package matching

import (
	"strings"
)

// Candidate is a developer profile eligible for matching decisions.
// Candidates are immutable once loaded; the queue keeps its own copy of the
// source so callers may reuse their slices.
type Candidate struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	Title           string   `json:"title" yaml:"title"`
	Bio             string   `json:"bio,omitempty" yaml:"bio"`
	Skills          []string `json:"skills" yaml:"skills"`
	Interests       []string `json:"interests,omitempty" yaml:"interests"`
	ExperienceYears int      `json:"experience_years" yaml:"experience_years"`
	Location        string   `json:"location,omitempty" yaml:"location"`
	Online          bool     `json:"online" yaml:"online"`
}

// HasAllSkills reports whether the candidate lists every skill in want.
// Comparison is case-insensitive and ignores blank entries.
func (c Candidate) HasAllSkills(want []string) bool {
	if len(want) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(c.Skills))
	for _, s := range c.Skills {
		if k := normalizeSkill(s); k != "" {
			have[k] = struct{}{}
		}
	}
	for _, s := range want {
		k := normalizeSkill(s)
		if k == "" {
			continue
		}
		if _, ok := have[k]; !ok {
			return false
		}
	}
	return true
}

func (c Candidate) clone() Candidate {
	out := c
	out.Skills = append([]string(nil), c.Skills...)
	out.Interests = append([]string(nil), c.Interests...)
	return out
}

func normalizeSkill(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

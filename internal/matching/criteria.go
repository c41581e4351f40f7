package matching

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ExperienceLevel is the experience band a viewer can filter on.
type ExperienceLevel int

const (
	LevelAny ExperienceLevel = iota
	LevelEntry
	LevelJunior
	LevelMid
	LevelSenior
	LevelLead
)

// Band boundaries in years. Bands are contiguous and do not overlap:
//
//	entry  0-2
//	junior 3-4
//	mid    5-6
//	senior 7-8
//	lead   9+
const (
	entryMaxYears  = 2
	juniorMaxYears = 4
	midMaxYears    = 6
	seniorMaxYears = 8
)

var levelNames = map[ExperienceLevel]string{
	LevelAny:    "any",
	LevelEntry:  "entry",
	LevelJunior: "junior",
	LevelMid:    "mid",
	LevelSenior: "senior",
	LevelLead:   "lead",
}

// ParseExperienceLevel maps a level name to its value. Unknown names yield
// LevelAny and ok=false.
func ParseExperienceLevel(s string) (level ExperienceLevel, ok bool) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return LevelAny, true
	}
	for l, n := range levelNames {
		if n == name {
			return l, true
		}
	}
	return LevelAny, false
}

func (l ExperienceLevel) String() string {
	if n, ok := levelNames[l]; ok {
		return n
	}
	return levelNames[LevelAny]
}

// MarshalText implements encoding.TextMarshaler.
func (l ExperienceLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It never fails:
// unrecognised names decode to LevelAny.
func (l *ExperienceLevel) UnmarshalText(text []byte) error {
	*l, _ = ParseExperienceLevel(string(text))
	return nil
}

// UnmarshalJSON accepts any JSON value so that a malformed level never
// rejects the whole criteria payload. Non-string values decode to LevelAny.
func (l *ExperienceLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*l = LevelAny
		return nil
	}
	return l.UnmarshalText([]byte(s))
}

func (l ExperienceLevel) valid() bool {
	_, ok := levelNames[l]
	return ok
}

// Constrains reports whether the level narrows the candidate pool at all.
func (l ExperienceLevel) Constrains() bool {
	return l != LevelAny && l.valid()
}

// Contains reports whether years falls inside the level's band. Levels that
// do not constrain contain every value.
func (l ExperienceLevel) Contains(years int) bool {
	switch l {
	case LevelEntry:
		return years <= entryMaxYears
	case LevelJunior:
		return years > entryMaxYears && years <= juniorMaxYears
	case LevelMid:
		return years > juniorMaxYears && years <= midMaxYears
	case LevelSenior:
		return years > midMaxYears && years <= seniorMaxYears
	case LevelLead:
		return years > seniorMaxYears
	default:
		return true
	}
}

// FilterCriteria is the set of user-configured constraints on the deck.
// The zero value places no constraint.
type FilterCriteria struct {
	Skills          []string        `json:"skills,omitempty"`
	ExperienceLevel ExperienceLevel `json:"experience_level"`
	OnlineOnly      bool            `json:"online_only"`
}

// DefaultCriteria returns criteria with every field at its no-constraint
// default.
func DefaultCriteria() FilterCriteria {
	return FilterCriteria{}
}

// Normalize trims and de-duplicates skills (case-insensitively, keeping the
// first spelling) and maps unrecognised levels to LevelAny.
func (c FilterCriteria) Normalize() FilterCriteria {
	out := FilterCriteria{OnlineOnly: c.OnlineOnly}
	if c.ExperienceLevel.valid() {
		out.ExperienceLevel = c.ExperienceLevel
	}

	seen := make(map[string]struct{}, len(c.Skills))
	for _, s := range c.Skills {
		k := normalizeSkill(s)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out.Skills = append(out.Skills, strings.TrimSpace(s))
	}
	return out
}

// Matches reports whether the candidate satisfies every constraint.
func (c FilterCriteria) Matches(cand Candidate) bool {
	if !cand.HasAllSkills(c.Skills) {
		return false
	}
	if !c.ExperienceLevel.Contains(cand.ExperienceYears) {
		return false
	}
	if c.OnlineOnly && !cand.Online {
		return false
	}
	return true
}

// ActiveFilterCount returns how many criteria fields differ from their
// no-constraint default. It is used for the filter badge in the UI.
func ActiveFilterCount(c FilterCriteria) int {
	n := 0
	for _, s := range c.Skills {
		if normalizeSkill(s) != "" {
			n++
			break
		}
	}
	if c.ExperienceLevel.Constrains() {
		n++
	}
	if c.OnlineOnly {
		n++
	}
	return n
}

// CriteriaHash computes a deterministic 16-char hash of the criteria.
// Skills are normalised and sorted first so that order and case do not
// matter.
func CriteriaHash(c FilterCriteria) string {
	c = c.Normalize()
	skills := make([]string, len(c.Skills))
	for i, s := range c.Skills {
		skills[i] = normalizeSkill(s)
	}
	sort.Strings(skills)
	joined := fmt.Sprintf("%s|%s|%t", strings.Join(skills, ","), c.ExperienceLevel, c.OnlineOnly)
	h := sha256.Sum256([]byte(joined))
	return fmt.Sprintf("%x", h[:8])
}

package matching

import (
	"fmt"
	"strings"
	"time"
)

// Decision is the viewer's verdict on the focused candidate.
type Decision int

const (
	Pass Decision = iota
	Like
	SuperLike
)

// String returns the wire name of the decision.
func (d Decision) String() string {
	switch d {
	case Pass:
		return "pass"
	case Like:
		return "like"
	case SuperLike:
		return "super_like"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// IsPositive reports whether the decision expresses interest.
func (d Decision) IsPositive() bool {
	return d == Like || d == SuperLike
}

// ParseDecision maps a wire name to a Decision.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pass":
		return Pass, nil
	case "like":
		return Like, nil
	case "super_like", "superlike":
		return SuperLike, nil
	default:
		return Pass, fmt.Errorf("matching: unknown decision %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Decision) MarshalText() ([]byte, error) {
	switch d {
	case Pass, Like, SuperLike:
		return []byte(d.String()), nil
	default:
		return nil, fmt.Errorf("matching: invalid decision %d", int(d))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Decision) UnmarshalText(text []byte) error {
	v, err := ParseDecision(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// DecisionRecord associates a decision with the candidate that was focused
// when it was made.
type DecisionRecord struct {
	CandidateID string    `json:"candidate_id"`
	Decision    Decision  `json:"decision"`
	Position    int       `json:"position"`
	At          time.Time `json:"at"`
}

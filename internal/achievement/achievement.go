// Package achievement tracks per-user progress counters and the
// bronze/silver/gold levels they unlock.
package achievement

import "fmt"

// Kind is the closed set of tracked achievement categories.
type Kind string

const (
	ChallengesCompleted  Kind = "challenges_completed"
	ProjectsCollaborated Kind = "projects_collaborated"
	MentorshipProvided   Kind = "mentorship_provided"
	SuccessfulMatches    Kind = "successful_matches"
	CodeReviews          Kind = "code_reviews"
	CommunityEngagement  Kind = "community_engagement"
)

// Kinds lists every Kind in display order.
var Kinds = []Kind{
	ChallengesCompleted,
	ProjectsCollaborated,
	MentorshipProvided,
	SuccessfulMatches,
	CodeReviews,
	CommunityEngagement,
}

// ParseKind validates s against the closed set.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := thresholds[k]; !ok {
		return "", fmt.Errorf("achievement: unknown kind %q", s)
	}
	return k, nil
}

// Title is the display name shown on the achievement card.
func (k Kind) Title() string {
	switch k {
	case ChallengesCompleted:
		return "Code Master"
	case ProjectsCollaborated:
		return "Team Player"
	case MentorshipProvided:
		return "Mentor"
	case SuccessfulMatches:
		return "Perfect Match"
	case CodeReviews:
		return "Reviewer"
	case CommunityEngagement:
		return "Community Voice"
	}
	return string(k)
}

// Level is an unlocked tier. The zero value means nothing is unlocked.
type Level int

const (
	None Level = iota
	Bronze
	Silver
	Gold
)

func (l Level) String() string {
	switch l {
	case Bronze:
		return "bronze"
	case Silver:
		return "silver"
	case Gold:
		return "gold"
	}
	return "none"
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	switch string(text) {
	case "bronze":
		*l = Bronze
	case "silver":
		*l = Silver
	case "gold":
		*l = Gold
	case "none", "":
		*l = None
	default:
		return fmt.Errorf("achievement: unknown level %q", text)
	}
	return nil
}

// Thresholds are the minimum values for each level.
type Thresholds struct {
	Bronze int
	Silver int
	Gold   int
}

var thresholds = map[Kind]Thresholds{
	ChallengesCompleted:  {Bronze: 10, Silver: 25, Gold: 50},
	ProjectsCollaborated: {Bronze: 5, Silver: 10, Gold: 20},
	MentorshipProvided:   {Bronze: 5, Silver: 10, Gold: 20},
	SuccessfulMatches:    {Bronze: 1, Silver: 3, Gold: 5},
	CodeReviews:          {Bronze: 10, Silver: 25, Gold: 50},
	CommunityEngagement:  {Bronze: 10, Silver: 50, Gold: 100},
}

// ThresholdsFor returns the thresholds of kind.
func ThresholdsFor(kind Kind) (Thresholds, bool) {
	t, ok := thresholds[kind]
	return t, ok
}

// For returns the threshold of level, or 0 for None.
func (t Thresholds) For(l Level) int {
	switch l {
	case Bronze:
		return t.Bronze
	case Silver:
		return t.Silver
	case Gold:
		return t.Gold
	}
	return 0
}

// Achievement is a level reached by a progress value.
type Achievement struct {
	Kind      Kind  `json:"kind"`
	Level     Level `json:"level"`
	Value     int   `json:"value"`
	Threshold int   `json:"threshold"`
}

// Check returns the highest level value reaches for kind. It reports false
// for unknown kinds and for values below the bronze threshold.
func Check(kind Kind, value int) (Achievement, bool) {
	t, ok := thresholds[kind]
	if !ok {
		return Achievement{}, false
	}
	for _, l := range []Level{Gold, Silver, Bronze} {
		if value >= t.For(l) {
			return Achievement{Kind: kind, Level: l, Value: value, Threshold: t.For(l)}, true
		}
	}
	return Achievement{}, false
}

package decision

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/techtie/match-app/internal/achievement"
	"github.com/techtie/match-app/internal/matching"
	"github.com/techtie/match-app/internal/messaging"
)

// Event is the NATS payload sent by wsserver when a viewer decides on a
// candidate.
type Event struct {
	ViewerID      string            `json:"viewer_id"`
	ViewerName    string            `json:"viewer_name,omitempty"`
	CandidateID   string            `json:"candidate_id"`
	CandidateName string            `json:"candidate_name,omitempty"`
	Decision      matching.Decision `json:"decision"`
	At            time.Time         `json:"at"`
}

// MatchResult is published on match.found.<user_id> to each side of a
// mutual like.
type MatchResult struct {
	PartnerID      string `json:"partner_id"`
	PartnerName    string `json:"partner_name,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChallengeEvent is published by wsserver once a challenge submission has
// been graded.
type ChallengeEvent struct {
	UserID      string    `json:"user_id"`
	ChallengeID string    `json:"challenge_id"`
	At          time.Time `json:"at"`
}

// PublishEvent publishes a decision event for the matcher.
func PublishEvent(pub messaging.Publisher, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("decision: marshal event: %w", err)
	}
	if err := pub.Publish(messaging.SubjectDecisionRecorded, data); err != nil {
		return fmt.Errorf("decision: publish %s: %w", messaging.SubjectDecisionRecorded, err)
	}
	return nil
}

// PublishChallenge publishes a completed challenge for the matcher.
func PublishChallenge(pub messaging.Publisher, ev ChallengeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("decision: marshal challenge: %w", err)
	}
	if err := pub.Publish(messaging.SubjectChallengeCompleted, data); err != nil {
		return fmt.Errorf("decision: publish %s: %w", messaging.SubjectChallengeCompleted, err)
	}
	return nil
}

// PublishMatchFound notifies both users of a mutual like. conversationID is
// the chat opened for the pair, if any.
func PublishMatchFound(pub messaging.Publisher, ev Event, conversationID string) error {
	// Notify the viewer (partner = candidate).
	dataA, err := json.Marshal(MatchResult{PartnerID: ev.CandidateID, PartnerName: ev.CandidateName, ConversationID: conversationID})
	if err != nil {
		return fmt.Errorf("decision: marshal result for viewer: %w", err)
	}
	if err := pub.Publish(messaging.SubjectMatchFound+"."+ev.ViewerID, dataA); err != nil {
		return fmt.Errorf("decision: publish match.found for %s: %w", ev.ViewerID, err)
	}

	// Notify the candidate (partner = viewer).
	dataB, err := json.Marshal(MatchResult{PartnerID: ev.ViewerID, PartnerName: ev.ViewerName, ConversationID: conversationID})
	if err != nil {
		return fmt.Errorf("decision: marshal result for candidate: %w", err)
	}
	if err := pub.Publish(messaging.SubjectMatchFound+"."+ev.CandidateID, dataB); err != nil {
		return fmt.Errorf("decision: publish match.found for %s: %w", ev.CandidateID, err)
	}
	return nil
}

// PublishUnlock sends an unlocked achievement to its user.
func PublishUnlock(pub messaging.Publisher, u achievement.Unlock) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("decision: marshal unlock: %w", err)
	}
	if err := pub.Publish(messaging.SubjectAchievementUnlocked+"."+u.UserID, data); err != nil {
		return fmt.Errorf("decision: publish achievement for %s: %w", u.UserID, err)
	}
	return nil
}

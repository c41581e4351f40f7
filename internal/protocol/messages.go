// Package protocol defines the WebSocket message types and structures used for
// communication between the client and server. All messages are serialized as
// JSON and follow a consistent envelope format with a type discriminator.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/techtie/match-app/internal/matching"
	"github.com/techtie/match-app/internal/notification"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeSetFilter          = "set_filter"
	TypeResetFilter        = "reset_filter"
	TypeDecide             = "decide"
	TypeNotificationsRead  = "notifications_read"
	TypeNotificationsClear = "notifications_clear"
	TypeChallengeSubmit    = "challenge_submit"
	TypeChatHistory        = "chat_history" // also sent back by the server
	TypeChatMessage        = "chat_message" // also sent back by the server
	TypePing               = "ping"
)

// Server -> Client message types.
const (
	TypeSessionCreated      = "session_created"
	TypeQueueState          = "queue_state"
	TypeCandidate           = "candidate"
	TypeExhausted           = "exhausted"
	TypeDecisionAck         = "decision_ack"
	TypeMatchFound          = "match_found"
	TypeAchievementUnlocked = "achievement_unlocked"
	TypeChallengeSubmitted  = "challenge_submitted"
	TypeNotification        = "notification"
	TypeNotifications       = "notifications"
	TypeRateLimited         = "rate_limited"
	TypeError               = "error"
	TypePong                = "pong"
)

// Error codes carried by ErrorMsg.
const (
	CodeParseError       = "parse_error"
	CodeUnsupportedType  = "unsupported_type"
	CodeInvalidDecision  = "invalid_decision"
	CodeStaleDecision    = "stale_decision"
	CodeQueueExhausted   = "queue_exhausted"
	CodeDeckUnavailable  = "deck_unavailable"
	CodeInvalidChallenge = "invalid_challenge"
	CodeInvalidMessage   = "invalid_message"
	CodeMessageBlocked   = "message_blocked"
	CodeNoConversation   = "no_conversation"
)

// ErrUnknownType is returned by ParseClientMessage for message types the
// server does not accept.
var ErrUnknownType = errors.New("protocol: unknown client message type")

// ---------------------------------------------------------------------------
// Envelope: used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON implements the json.Unmarshaler interface. It captures the
// full raw bytes and extracts only the "type" field so that the rest of the
// payload can be decoded later into the appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	// Capture the full raw message for deferred parsing.
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	// Extract only the type field.
	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server message structs
// ---------------------------------------------------------------------------

// SetFilterMsg replaces the viewer's filter criteria. An unrecognised
// experience level is treated as "any".
type SetFilterMsg struct {
	Type            string   `json:"type"`
	Skills          []string `json:"skills"`
	ExperienceLevel string   `json:"experience_level"`
	OnlineOnly      bool     `json:"online_only"`
}

// Criteria converts the message into filter criteria.
func (m SetFilterMsg) Criteria() matching.FilterCriteria {
	level, _ := matching.ParseExperienceLevel(m.ExperienceLevel)
	return matching.FilterCriteria{
		Skills:          m.Skills,
		ExperienceLevel: level,
		OnlineOnly:      m.OnlineOnly,
	}
}

// ResetFilterMsg restores the default criteria.
type ResetFilterMsg struct {
	Type string `json:"type"`
}

// DecideMsg records a decision on the candidate the client is showing.
type DecideMsg struct {
	Type        string `json:"type"`
	CandidateID string `json:"candidate_id"`
	Decision    string `json:"decision"` // pass | like | super_like
}

// NotificationsReadMsg marks every notification read.
type NotificationsReadMsg struct {
	Type string `json:"type"`
}

// NotificationsClearMsg clears the notification feed.
type NotificationsClearMsg struct {
	Type string `json:"type"`
}

// ChallengeSubmitMsg submits a coding challenge solution. Grading takes a
// simulated second; the result arrives as challenge_submitted.
type ChallengeSubmitMsg struct {
	Type        string `json:"type"`
	ChallengeID string `json:"challenge_id"`
}

// ChatMessageMsg sends text to a matched partner.
type ChatMessageMsg struct {
	Type      string `json:"type"`
	PartnerID string `json:"partner_id"`
	Text      string `json:"text"`
}

// ChatHistoryMsg requests the buffered conversation with a partner.
type ChatHistoryMsg struct {
	Type      string `json:"type"`
	PartnerID string `json:"partner_id"`
}

// PingMsg is a client-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Server -> Client message structs
// ---------------------------------------------------------------------------

// SessionCreatedMsg is sent by the server when a new session is established.
type SessionCreatedMsg struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// QueueStateMsg summarises the deck after a filter change.
type QueueStateMsg struct {
	Type          string                  `json:"type"`
	Criteria      matching.FilterCriteria `json:"criteria"`
	ActiveFilters int                     `json:"active_filters"`
	Total         int                     `json:"total"`
	SourceTotal   int                     `json:"source_total"`
	Position      int                     `json:"position"`
	Exhausted     bool                    `json:"exhausted"`
	Reason        string                  `json:"reason,omitempty"`
}

// CandidateMsg carries the focused candidate.
type CandidateMsg struct {
	Type      string             `json:"type"`
	Candidate matching.Candidate `json:"candidate"`
	Position  int                `json:"position"`
	Total     int                `json:"total"`
}

// ExhaustedMsg is sent once each time the deck runs out. Reason is
// "no_candidates" when the filter matched nothing and "reviewed" when every
// candidate received a decision.
type ExhaustedMsg struct {
	Type          string `json:"type"`
	Reason        string `json:"reason"`
	Total         int    `json:"total"`
	ActiveFilters int    `json:"active_filters"`
}

// DecisionAckMsg confirms an accepted decision.
type DecisionAckMsg struct {
	Type        string `json:"type"`
	CandidateID string `json:"candidate_id"`
	Decision    string `json:"decision"`
	Position    int    `json:"position"`
	Remaining   int    `json:"remaining"`
}

// MatchFoundMsg is sent when a like is reciprocated.
type MatchFoundMsg struct {
	Type           string `json:"type"`
	PartnerID      string `json:"partner_id"`
	PartnerName    string `json:"partner_name,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// AchievementUnlockedMsg announces a new achievement level.
type AchievementUnlockedMsg struct {
	Type      string `json:"type"`
	Kind      string `json:"kind"`
	Title     string `json:"title"`
	Level     string `json:"level"`
	Value     int    `json:"value"`
	Threshold int    `json:"threshold"`
}

// ChallengeSubmittedMsg confirms a graded challenge.
type ChallengeSubmittedMsg struct {
	Type        string `json:"type"`
	ChallengeID string `json:"challenge_id"`
}

// ChatLine is one message as the client sees it.
type ChatLine struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	From           string    `json:"from"`
	FromName       string    `json:"from_name,omitempty"`
	To             string    `json:"to"`
	Text           string    `json:"text"`
	At             time.Time `json:"at"`
}

// ChatMessageOutMsg delivers a chat line to its recipient and echoes it to
// the sender. Mine is true on the echo.
type ChatMessageOutMsg struct {
	Type    string   `json:"type"`
	Message ChatLine `json:"message"`
	Mine    bool     `json:"mine"`
}

// ChatHistoryOutMsg carries a conversation's buffered lines, oldest first.
type ChatHistoryOutMsg struct {
	Type           string     `json:"type"`
	PartnerID      string     `json:"partner_id"`
	ConversationID string     `json:"conversation_id"`
	Messages       []ChatLine `json:"messages"`
}

// NotificationMsg pushes a single new notification.
type NotificationMsg struct {
	Type         string                    `json:"type"`
	Notification notification.Notification `json:"notification"`
	Unread       int                       `json:"unread"`
}

// NotificationsMsg carries the whole feed, newest first.
type NotificationsMsg struct {
	Type   string                      `json:"type"`
	Items  []notification.Notification `json:"items"`
	Unread int                         `json:"unread"`
}

// RateLimitedMsg is sent by the server when the client has been rate-limited.
type RateLimitedMsg struct {
	Type       string `json:"type"`
	RetryAfter int    `json:"retry_after"`
}

// ErrorMsg is sent by the server to communicate an error condition.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the server's response to a client ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseClientMessage parses raw WebSocket bytes into a typed client message.
// It returns the message type string, the decoded struct, and any error
// encountered during parsing. An error is returned for unknown or
// server-only message types.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeSetFilter:
		var m SetFilterMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeResetFilter:
		var m ResetFilterMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeDecide:
		var m DecideMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeNotificationsRead:
		var m NotificationsReadMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeNotificationsClear:
		var m NotificationsClearMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChallengeSubmit:
		var m ChallengeSubmitMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChatMessage:
		var m ChatMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeChatHistory:
		var m ChatHistoryMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage creates a JSON-encoded byte slice for a server message.
// The msgType is injected into the payload under the "type" key. The payload
// should be one of the server message structs; this function marshals it to
// JSON, injects the type field, and returns the final bytes.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	// Marshal the payload struct to a generic map so we can ensure the "type"
	// field is present and correct.
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}

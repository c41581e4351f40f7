// Package chat carries conversations between mutually matched users. A
// conversation is opened by the matcher when a like is reciprocated; only
// its two participants may post to it.
package chat

import (
	"errors"
	"time"
)

var (
	ErrNoConversation = errors.New("chat: no conversation with partner")
	ErrBlocked        = errors.New("chat: message blocked")
)

// HistorySize is the number of recent messages kept per conversation.
const HistorySize = 50

// Conversation is the chat between one matched pair. UserA sorts before
// UserB.
type Conversation struct {
	ID       string    `json:"id"`
	UserA    string    `json:"user_a"`
	UserB    string    `json:"user_b"`
	OpenedAt time.Time `json:"opened_at"`
}

// Has reports whether userID takes part in the conversation.
func (c Conversation) Has(userID string) bool {
	return c.UserA == userID || c.UserB == userID
}

// Partner returns the other participant, or "" if userID is not one.
func (c Conversation) Partner(userID string) string {
	switch userID {
	case c.UserA:
		return c.UserB
	case c.UserB:
		return c.UserA
	}
	return ""
}

// Message is one delivered chat line. It is also the payload published on
// chat.message.<to>.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	From           string    `json:"from"`
	FromName       string    `json:"from_name,omitempty"`
	To             string    `json:"to"`
	Text           string    `json:"text"`
	At             time.Time `json:"at"`
}

// ConversationID is the stable id of the pair, independent of order.
func ConversationID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

func newConversation(a, b string, at time.Time) Conversation {
	if b < a {
		a, b = b, a
	}
	return Conversation{ID: ConversationID(a, b), UserA: a, UserB: b, OpenedAt: at}
}

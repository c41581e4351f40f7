// Package notification defines the in-app notification types and the
// per-user feed that backs the unread badge.
package notification

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the closed set of notification categories.
type Kind int

const (
	KindMatch Kind = iota
	KindMessage
	KindProject
)

func (k Kind) String() string {
	switch k {
	case KindMatch:
		return "match"
	case KindMessage:
		return "message"
	case KindProject:
		return "project"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Link is the client route a notification of this kind opens.
func (k Kind) Link() string {
	switch k {
	case KindMatch:
		return "/matches"
	case KindMessage:
		return "/chat"
	case KindProject:
		return "/community"
	}
	return "/"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case KindMatch, KindMessage, KindProject:
		return []byte(k.String()), nil
	}
	return nil, fmt.Errorf("notification: invalid kind %d", int(k))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "match":
		*k = KindMatch
	case "message":
		*k = KindMessage
	case "project":
		*k = KindProject
	default:
		return fmt.Errorf("notification: unknown kind %q", text)
	}
	return nil
}

// Notification is one entry in a user's feed.
type Notification struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Avatar    string    `json:"avatar,omitempty"`
	Link      string    `json:"link"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// New builds an unread notification with a fresh id.
func New(kind Kind, title, message string) Notification {
	return Notification{
		ID:        uuid.New().String(),
		Kind:      kind,
		Title:     title,
		Message:   message,
		Link:      kind.Link(),
		CreatedAt: time.Now(),
	}
}

// NewMatch is raised when a like is reciprocated.
func NewMatch(partnerName string) Notification {
	return New(KindMatch, "New Match!", partnerName+" wants to collaborate with you")
}

// previewChars bounds the message text quoted in a notification.
const previewChars = 60

// NewMessage is raised when a matched partner sends a chat message.
func NewMessage(fromName, text string) Notification {
	if r := []rune(text); len(r) > previewChars {
		text = string(r[:previewChars-1]) + "…"
	}
	return New(KindMessage, "New Message", fromName+": "+text)
}

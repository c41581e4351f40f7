package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/techtie/match-app/internal/messaging"
	"github.com/techtie/match-app/internal/metrics"
	"github.com/techtie/match-app/internal/moderation"
)

// Service validates, screens, stores and publishes chat messages.
type Service struct {
	store  Store
	filter *moderation.Filter
	pub    messaging.Publisher
	log    *zap.Logger
}

// NewService creates a chat service. A nil filter disables moderation and
// a nil pub stores messages without publishing them.
func NewService(store Store, filter *moderation.Filter, pub messaging.Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, filter: filter, pub: pub, log: log.Named("chat")}
}

// Open starts the conversation of a matched pair. Opening an existing
// conversation returns it unchanged.
func (s *Service) Open(ctx context.Context, a, b string) (Conversation, error) {
	c, created, err := s.store.Open(ctx, a, b)
	if err != nil {
		return Conversation{}, err
	}
	if created {
		s.log.Info("conversation opened", zap.String("conversation", c.ID))
	}
	return c, nil
}

// Send delivers text from one participant to the other. The returned
// message has been stored and published on chat.message.<to>.
func (s *Service) Send(ctx context.Context, from, fromName, to, text string) (Message, error) {
	if err := ValidateMessage(text); err != nil {
		metrics.ChatMessagesTotal.WithLabelValues("invalid").Inc()
		return Message{}, err
	}
	if s.filter != nil {
		if res := s.filter.Check(text); res.Blocked {
			metrics.ChatMessagesTotal.WithLabelValues("blocked").Inc()
			s.log.Info("message blocked",
				zap.String("from", from),
				zap.String("reason", res.Reason),
				zap.String("term", res.Term))
			return Message{}, fmt.Errorf("%w: %s", ErrBlocked, res.Term)
		}
	}

	conv, err := s.conversation(ctx, from, to)
	if err != nil {
		if errors.Is(err, ErrNoConversation) {
			metrics.ChatMessagesTotal.WithLabelValues("no_conversation").Inc()
		}
		return Message{}, err
	}

	msg := Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		From:           from,
		FromName:       fromName,
		To:             to,
		Text:           text,
		At:             time.Now().UTC(),
	}
	if err := s.store.Append(ctx, msg); err != nil {
		metrics.ChatMessagesTotal.WithLabelValues("error").Inc()
		return Message{}, err
	}
	if s.pub != nil {
		if err := Publish(s.pub, msg); err != nil {
			metrics.ChatMessagesTotal.WithLabelValues("error").Inc()
			return msg, err
		}
	}
	metrics.ChatMessagesTotal.WithLabelValues("delivered").Inc()
	return msg, nil
}

// History returns the conversation of userID and partnerID with its
// buffered messages, oldest first.
func (s *Service) History(ctx context.Context, userID, partnerID string) (Conversation, []Message, error) {
	conv, err := s.conversation(ctx, userID, partnerID)
	if err != nil {
		return Conversation{}, nil, err
	}
	msgs, err := s.store.History(ctx, conv.ID)
	if err != nil {
		return Conversation{}, nil, err
	}
	return conv, msgs, nil
}

func (s *Service) conversation(ctx context.Context, userID, partnerID string) (Conversation, error) {
	if userID == partnerID || partnerID == "" {
		return Conversation{}, ErrNoConversation
	}
	conv, ok, err := s.store.Get(ctx, userID, partnerID)
	if err != nil {
		return Conversation{}, err
	}
	if !ok {
		return Conversation{}, ErrNoConversation
	}
	return conv, nil
}

// Publish sends msg to its recipient's subject.
func Publish(pub messaging.Publisher, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("chat: marshal message: %w", err)
	}
	if err := pub.Publish(messaging.SubjectChatMessage+"."+msg.To, data); err != nil {
		return fmt.Errorf("chat: publish to %s: %w", msg.To, err)
	}
	return nil
}

// Decode parses a published message.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("chat: decode message: %w", err)
	}
	if m.From == "" || m.To == "" {
		return Message{}, errors.New("chat: message without participants")
	}
	return m, nil
}

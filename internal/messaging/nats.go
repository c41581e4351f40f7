// Package messaging provides a NATS client wrapper for pub/sub messaging
// across TechTie services. It handles connection lifecycle, subject-based
// subscriptions, and convenience methods for decision, match, challenge and
// chat channels.
package messaging

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATS subject patterns used across TechTie services.
const (
	SubjectDecisionRecorded    = "decision.recorded"
	SubjectMatchFound          = "match.found"          // + .<user_id>
	SubjectAchievementUnlocked = "achievement.unlocked" // + .<user_id>
	SubjectChallengeCompleted  = "challenge.completed"
	SubjectChatMessage         = "chat.message" // + .<user_id>
)

// Publisher is the publishing half of NATSClient.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	log  *zap.Logger
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "techtie",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig, log *zap.Logger) (*NATSClient, error) {
	log = log.Named("nats")
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected", zap.Error(err))
			} else {
				log.Warn("disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info("connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Info("connected", zap.String("url", nc.ConnectedUrl()))

	return &NATSClient{
		conn: nc,
		log:  log,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	return c.subscribeKeyed(subject, subject, handler)
}

// subscribeKeyed subscribes to subject and stores the subscription under key,
// replacing (and unsubscribing) any previous holder of that key.
func (c *NATSClient) subscribeKeyed(key, subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	prev := c.subs[key]
	c.subs[key] = sub
	c.mu.Unlock()

	if prev != nil {
		_ = prev.Unsubscribe()
	}
	return nil
}

// PublishDecision publishes a recorded deck decision.
func (c *NATSClient) PublishDecision(data []byte) error {
	return c.Publish(SubjectDecisionRecorded, data)
}

// SubscribeDecisions subscribes to recorded deck decisions from WS servers.
// Decisions are load-balanced across matcher instances through a queue
// group.
func (c *NATSClient) SubscribeDecisions(handler func(data []byte)) error {
	sub, err := c.conn.QueueSubscribe(SubjectDecisionRecorded, "matcher", func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", SubjectDecisionRecorded, err)
	}

	c.mu.Lock()
	c.subs[SubjectDecisionRecorded] = sub
	c.mu.Unlock()
	return nil
}

// SubscribeChallenges subscribes to completed challenge submissions. Like
// decisions they are shared across the matcher queue group.
func (c *NATSClient) SubscribeChallenges(handler func(data []byte)) error {
	sub, err := c.conn.QueueSubscribe(SubjectChallengeCompleted, "matcher", func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", SubjectChallengeCompleted, err)
	}

	c.mu.Lock()
	c.subs[SubjectChallengeCompleted] = sub
	c.mu.Unlock()
	return nil
}

// SubscribeUser subscribes a session to the match.found.<userID> and
// achievement.unlocked.<userID> subjects. Subscriptions are keyed by
// sessionID so several sessions of one user each receive every event.
func (c *NATSClient) SubscribeUser(userID, sessionID string, onMatch, onAchievement func(data []byte)) error {
	if err := c.subscribeKeyed("match:"+sessionID, SubjectMatchFound+"."+userID, func(msg *nats.Msg) {
		onMatch(msg.Data)
	}); err != nil {
		return err
	}
	if err := c.subscribeKeyed("achievement:"+sessionID, SubjectAchievementUnlocked+"."+userID, func(msg *nats.Msg) {
		onAchievement(msg.Data)
	}); err != nil {
		_ = c.unsubscribe("match:" + sessionID)
		return err
	}
	return nil
}

// UnsubscribeUser removes both per-session subscriptions.
func (c *NATSClient) UnsubscribeUser(sessionID string) error {
	errMatch := c.unsubscribe("match:" + sessionID)
	errAch := c.unsubscribe("achievement:" + sessionID)
	if errMatch != nil {
		return errMatch
	}
	return errAch
}

// SubscribeChat subscribes a session to chat.message.<userID>.
func (c *NATSClient) SubscribeChat(userID, sessionID string, handler func(data []byte)) error {
	return c.subscribeKeyed("chat:"+sessionID, SubjectChatMessage+"."+userID, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// UnsubscribeChat removes the chat subscription of sessionID.
func (c *NATSClient) UnsubscribeChat(sessionID string) error {
	return c.unsubscribe("chat:" + sessionID)
}

// PublishMatchFound publishes data to the match.found.<userID> subject.
func (c *NATSClient) PublishMatchFound(userID string, data []byte) error {
	return c.Publish(SubjectMatchFound+"."+userID, data)
}

// PublishAchievement publishes data to the achievement.unlocked.<userID>
// subject.
func (c *NATSClient) PublishAchievement(userID string, data []byte) error {
	return c.Publish(SubjectAchievementUnlocked+"."+userID, data)
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.log.Warn("drain subscription", zap.String("key", key), zap.Error(err))
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		c.log.Warn("connection drain", zap.Error(err))
	}

	c.log.Info("client closed")
}

// unsubscribe removes and unsubscribes the subscription stored under key.
func (c *NATSClient) unsubscribe(key string) error {
	c.mu.Lock()
	sub, ok := c.subs[key]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for %s", key)
	}
	delete(c.subs, key)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", key, err)
	}
	return nil
}

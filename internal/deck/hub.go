package deck

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/techtie/match-app/internal/achievement"
	"github.com/techtie/match-app/internal/chat"
	"github.com/techtie/match-app/internal/decision"
	"github.com/techtie/match-app/internal/matching"
	"github.com/techtie/match-app/internal/messaging"
	"github.com/techtie/match-app/internal/notification"
	"github.com/techtie/match-app/internal/profile"
	"github.com/techtie/match-app/internal/protocol"
)

// Bus is the NATS surface a hub needs. *messaging.NATSClient satisfies it.
type Bus interface {
	messaging.Publisher
	SubscribeUser(userID, sessionID string, onMatch, onAchievement func(data []byte)) error
	UnsubscribeUser(sessionID string) error
	SubscribeChat(userID, sessionID string, handler func(data []byte)) error
	UnsubscribeChat(sessionID string) error
}

// SessionRecorder mirrors deck state into the session store.
// *session.Store satisfies it.
type SessionRecorder interface {
	SetFilter(ctx context.Context, sessionID, criteriaHash string, activeFilters int, exhausted bool) error
	RecordDecision(ctx context.Context, sessionID string, exhausted bool) error
}

// HubConfig wires a Hub. Bus, Sessions and Chat are optional.
type HubConfig struct {
	Source           profile.Source
	Feed             *notification.Feed
	Bus              Bus
	Sessions         SessionRecorder
	Chat             *chat.Service
	ClearLatency     time.Duration
	ChallengeLatency time.Duration
	Log              *zap.Logger
}

// Hub owns the decks of every connection on this server.
type Hub struct {
	cfg HubConfig
	log *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	decks map[string]*Deck // connection id -> deck
}

// NewHub creates an empty hub.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Feed == nil {
		cfg.Feed = notification.NewFeed()
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:    cfg,
		log:    cfg.Log.Named("hub"),
		ctx:    ctx,
		cancel: cancel,
		decks:  make(map[string]*Deck),
	}
}

// Open loads the candidate source without the viewer's own profile, builds
// a deck for connID, subscribes it to the viewer's match, achievement and
// chat events, and sends the initial state.
func (h *Hub) Open(ctx context.Context, connID string, viewer Viewer, sender Sender) (*Deck, error) {
	cands, err := profile.Excluding(h.cfg.Source, viewer.ID).Candidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("deck: load candidates: %w", err)
	}

	d := New(h.ctx, viewer, cands, sender, Options{
		Feed:             h.cfg.Feed,
		Sink:             SinkFunc(h.publishDecision),
		Challenges:       ChallengeSinkFunc(h.publishChallenge),
		ClearLatency:     h.cfg.ClearLatency,
		ChallengeLatency: h.cfg.ChallengeLatency,
		Log:              h.cfg.Log,
	})

	h.mu.Lock()
	if prev := h.decks[connID]; prev != nil {
		prev.Close()
	}
	h.decks[connID] = d
	h.mu.Unlock()

	if h.cfg.Bus != nil {
		err := h.cfg.Bus.SubscribeUser(viewer.ID, connID,
			func(data []byte) { h.deliverMatch(d, data) },
			func(data []byte) { h.deliverUnlock(d, data) })
		if err != nil {
			h.log.Warn("subscribe user events", zap.String("conn", connID), zap.Error(err))
		}
		if err := h.cfg.Bus.SubscribeChat(viewer.ID, connID, func(data []byte) { h.deliverChat(d, data) }); err != nil {
			h.log.Warn("subscribe chat", zap.String("conn", connID), zap.Error(err))
		}
	}

	if err := d.Start(); err != nil {
		h.Close(connID)
		return nil, err
	}
	h.log.Debug("deck opened", zap.String("conn", connID), zap.String("viewer", viewer.ID), zap.Int("candidates", len(cands)))
	return d, nil
}

// Get returns the deck of connID, or nil.
func (h *Hub) Get(connID string) *Deck {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.decks[connID]
}

// Count returns the number of open decks.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.decks)
}

// Close tears down the deck of connID. It is safe to call for unknown ids.
func (h *Hub) Close(connID string) {
	h.mu.Lock()
	d := h.decks[connID]
	delete(h.decks, connID)
	h.mu.Unlock()

	if d == nil {
		return
	}
	d.Close()
	if h.cfg.Bus != nil {
		_ = h.cfg.Bus.UnsubscribeUser(connID)
		_ = h.cfg.Bus.UnsubscribeChat(connID)
	}
}

// Shutdown closes every deck.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.decks))
	for id := range h.decks {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Close(id)
	}
	h.cancel()
}

// Handle applies a parsed client message to connID's deck.
func (h *Hub) Handle(ctx context.Context, connID string, msg interface{}) error {
	d := h.Get(connID)
	if d == nil {
		return ErrClosed
	}

	switch m := msg.(type) {
	case protocol.SetFilterMsg:
		s, err := d.SetFilter(m.Criteria())
		if err != nil {
			return err
		}
		h.recordFilter(ctx, connID, s)
	case protocol.ResetFilterMsg:
		s, err := d.ResetFilter()
		if err != nil {
			return err
		}
		h.recordFilter(ctx, connID, s)
	case protocol.DecideMsg:
		if _, err := d.Decide(m.CandidateID, m.Decision); err != nil {
			return err
		}
		if h.cfg.Sessions != nil {
			if err := h.cfg.Sessions.RecordDecision(ctx, connID, d.State().Exhausted()); err != nil {
				h.log.Warn("record decision in session", zap.String("conn", connID), zap.Error(err))
			}
		}
	case protocol.NotificationsReadMsg:
		return d.MarkNotificationsRead()
	case protocol.NotificationsClearMsg:
		return d.ClearNotifications()
	case protocol.ChallengeSubmitMsg:
		return d.SubmitChallenge(m.ChallengeID)
	case protocol.ChatMessageMsg:
		return h.sendChat(ctx, d, m)
	case protocol.ChatHistoryMsg:
		return h.chatHistory(ctx, d, m)
	default:
		return fmt.Errorf("deck: unsupported message %T", msg)
	}
	return nil
}

func (h *Hub) recordFilter(ctx context.Context, connID string, s matching.State) {
	if h.cfg.Sessions == nil {
		return
	}
	err := h.cfg.Sessions.SetFilter(ctx, connID,
		matching.CriteriaHash(s.Criteria), matching.ActiveFilterCount(s.Criteria), s.Exhausted())
	if err != nil {
		h.log.Warn("record filter in session", zap.String("conn", connID), zap.Error(err))
	}
}

func (h *Hub) publishDecision(viewer Viewer, cand matching.Candidate, rec matching.DecisionRecord) {
	if h.cfg.Bus == nil {
		return
	}
	err := decision.PublishEvent(h.cfg.Bus, decision.Event{
		ViewerID:      viewer.ID,
		ViewerName:    viewer.Name,
		CandidateID:   cand.ID,
		CandidateName: cand.Name,
		Decision:      rec.Decision,
		At:            rec.At,
	})
	if err != nil {
		h.log.Error("publish decision", zap.String("viewer", viewer.ID), zap.Error(err))
	}
}

func (h *Hub) publishChallenge(viewer Viewer, challengeID string, at time.Time) {
	if h.cfg.Bus == nil {
		return
	}
	err := decision.PublishChallenge(h.cfg.Bus, decision.ChallengeEvent{
		UserID:      viewer.ID,
		ChallengeID: challengeID,
		At:          at,
	})
	if err != nil {
		h.log.Error("publish challenge", zap.String("user", viewer.ID), zap.Error(err))
	}
}

func (h *Hub) sendChat(ctx context.Context, d *Deck, m protocol.ChatMessageMsg) error {
	if h.cfg.Chat == nil {
		_ = d.ReportError(ErrChatDisabled)
		return ErrChatDisabled
	}
	v := d.Viewer()
	msg, err := h.cfg.Chat.Send(ctx, v.ID, v.Name, m.PartnerID, m.Text)
	if err != nil {
		_ = d.ReportError(err)
		return err
	}
	return d.Send(protocol.TypeChatMessage, protocol.ChatMessageOutMsg{Message: chatLine(msg), Mine: true})
}

func (h *Hub) chatHistory(ctx context.Context, d *Deck, m protocol.ChatHistoryMsg) error {
	if h.cfg.Chat == nil {
		_ = d.ReportError(ErrChatDisabled)
		return ErrChatDisabled
	}
	conv, msgs, err := h.cfg.Chat.History(ctx, d.Viewer().ID, m.PartnerID)
	if err != nil {
		_ = d.ReportError(err)
		return err
	}
	lines := make([]protocol.ChatLine, len(msgs))
	for i, msg := range msgs {
		lines[i] = chatLine(msg)
	}
	return d.Send(protocol.TypeChatHistory, protocol.ChatHistoryOutMsg{
		PartnerID:      m.PartnerID,
		ConversationID: conv.ID,
		Messages:       lines,
	})
}

func chatLine(m chat.Message) protocol.ChatLine {
	return protocol.ChatLine{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		From:           m.From,
		FromName:       m.FromName,
		To:             m.To,
		Text:           m.Text,
		At:             m.At,
	}
}

func (h *Hub) deliverMatch(d *Deck, data []byte) {
	var res decision.MatchResult
	if err := json.Unmarshal(data, &res); err != nil {
		h.log.Warn("invalid match result", zap.Error(err))
		return
	}
	name := res.PartnerName
	if name == "" {
		name = res.PartnerID
	}

	err := d.Send(protocol.TypeMatchFound, protocol.MatchFoundMsg{
		PartnerID:      res.PartnerID,
		PartnerName:    res.PartnerName,
		ConversationID: res.ConversationID,
	})
	if err == nil {
		err = d.PushNotification(notification.NewMatch(name))
	}
	if err != nil {
		h.log.Debug("match not delivered", zap.String("viewer", d.Viewer().ID), zap.Error(err))
	}
}

func (h *Hub) deliverUnlock(d *Deck, data []byte) {
	var u achievement.Unlock
	if err := json.Unmarshal(data, &u); err != nil {
		h.log.Warn("invalid achievement unlock", zap.Error(err))
		return
	}
	err := d.Send(protocol.TypeAchievementUnlocked, protocol.AchievementUnlockedMsg{
		Kind:      string(u.Achievement.Kind),
		Title:     u.Achievement.Kind.Title(),
		Level:     u.Achievement.Level.String(),
		Value:     u.Achievement.Value,
		Threshold: u.Achievement.Threshold,
	})
	if err != nil {
		h.log.Debug("achievement not delivered", zap.String("viewer", d.Viewer().ID), zap.Error(err))
	}
}

func (h *Hub) deliverChat(d *Deck, data []byte) {
	msg, err := chat.Decode(data)
	if err != nil {
		h.log.Warn("invalid chat message", zap.Error(err))
		return
	}
	name := msg.FromName
	if name == "" {
		name = msg.From
	}

	err = d.Send(protocol.TypeChatMessage, protocol.ChatMessageOutMsg{Message: chatLine(msg)})
	if err == nil {
		err = d.PushNotification(notification.NewMessage(name, msg.Text))
	}
	if err != nil {
		h.log.Debug("chat message not delivered", zap.String("viewer", d.Viewer().ID), zap.Error(err))
	}
}

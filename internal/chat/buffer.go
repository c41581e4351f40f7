package chat

import (
	"context"
	"sync"
	"time"
)

// history is a fixed-size ring of the newest messages.
type history struct {
	items []Message
	pos   int
	count int
}

func newHistory(size int) *history {
	return &history{items: make([]Message, size)}
}

func (h *history) add(m Message) {
	h.items[h.pos] = m
	h.pos = (h.pos + 1) % len(h.items)
	if h.count < len(h.items) {
		h.count++
	}
}

// list returns the buffered messages oldest first.
func (h *history) list() []Message {
	out := make([]Message, h.count)
	start := (h.pos - h.count + len(h.items)) % len(h.items)
	for i := range out {
		out[i] = h.items[(start+i)%len(h.items)]
	}
	return out
}

// MemoryStore keeps conversations in process. It is used by tests and by
// single-node deployments without Redis.
type MemoryStore struct {
	mu    sync.RWMutex
	size  int
	convs map[string]Conversation
	logs  map[string]*history
}

// NewMemoryStore creates a store that buffers size messages per
// conversation. size <= 0 uses HistorySize.
func NewMemoryStore(size int) *MemoryStore {
	if size <= 0 {
		size = HistorySize
	}
	return &MemoryStore{
		size:  size,
		convs: make(map[string]Conversation),
		logs:  make(map[string]*history),
	}
}

// Open implements Store.
func (m *MemoryStore) Open(_ context.Context, a, b string) (Conversation, bool, error) {
	id := ConversationID(a, b)

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.convs[id]; ok {
		return c, false, nil
	}
	c := newConversation(a, b, time.Now().UTC())
	m.convs[id] = c
	return c, true, nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, a, b string) (Conversation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.convs[ConversationID(a, b)]
	return c, ok, nil
}

// Append implements Store.
func (m *MemoryStore) Append(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.logs[msg.ConversationID]
	if !ok {
		h = newHistory(m.size)
		m.logs[msg.ConversationID] = h
	}
	h.add(msg)
	return nil
}

// History implements Store.
func (m *MemoryStore) History(_ context.Context, conversationID string) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.logs[conversationID]
	if !ok {
		return []Message{}, nil
	}
	return h.list(), nil
}

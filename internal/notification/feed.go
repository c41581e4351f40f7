package notification

import "sync"

// MaxFeedItems is the number of recent notifications retained per user.
const MaxFeedItems = 20

// Feed stores the last MaxFeedItems notifications per user in memory.
// It is goroutine-safe and uses a ring buffer internally.
type Feed struct {
	mu      sync.RWMutex
	buffers map[string]*ringBuffer // userID -> ring buffer
}

// ringBuffer is a fixed-size circular buffer of Notification.
type ringBuffer struct {
	items []Notification
	pos   int
	count int
}

// NewFeed creates an empty Feed.
func NewFeed() *Feed {
	return &Feed{
		buffers: make(map[string]*ringBuffer),
	}
}

// Add appends n to the user's feed. If the buffer is full the oldest entry
// is overwritten.
func (f *Feed) Add(userID string, n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rb, ok := f.buffers[userID]
	if !ok {
		rb = &ringBuffer{
			items: make([]Notification, MaxFeedItems),
		}
		f.buffers[userID] = rb
	}

	rb.items[rb.pos] = n
	rb.pos = (rb.pos + 1) % MaxFeedItems
	if rb.count < MaxFeedItems {
		rb.count++
	}
}

// List returns the user's notifications, newest first. Returns an empty
// slice for unknown users.
func (f *Feed) List(userID string) []Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()

	rb, ok := f.buffers[userID]
	if !ok {
		return []Notification{}
	}

	result := make([]Notification, rb.count)
	// The newest entry sits just before pos.
	for i := 0; i < rb.count; i++ {
		result[i] = rb.items[(rb.pos-1-i+MaxFeedItems)%MaxFeedItems]
	}
	return result
}

// Unread returns the number of unread notifications for the user.
func (f *Feed) Unread(userID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	rb, ok := f.buffers[userID]
	if !ok {
		return 0
	}
	n := 0
	for i := 0; i < rb.count; i++ {
		if !rb.items[rb.slot(i)].Read {
			n++
		}
	}
	return n
}

// MarkAllRead marks every notification read and returns how many changed.
func (f *Feed) MarkAllRead(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	rb, ok := f.buffers[userID]
	if !ok {
		return 0
	}
	changed := 0
	for i := 0; i < rb.count; i++ {
		item := &rb.items[rb.slot(i)]
		if !item.Read {
			item.Read = true
			changed++
		}
	}
	return changed
}

// Clear deletes the user's feed.
func (f *Feed) Clear(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.buffers, userID)
}

// slot maps the i-th oldest entry to its index in items.
func (rb *ringBuffer) slot(i int) int {
	start := (rb.pos - rb.count + MaxFeedItems) % MaxFeedItems
	return (start + i) % MaxFeedItems
}

package ws

import "time"

// EpollConfig tunes the readiness poller behind the event loop.
type EpollConfig struct {
	// WaitTimeout bounds one Wait so the event loop notices shutdown.
	WaitTimeout time.Duration
	// EventBuffer is the most ready connections one Wait returns.
	EventBuffer int
}

// DefaultEpollConfig returns the poller settings used by Server.
func DefaultEpollConfig() EpollConfig {
	return EpollConfig{
		WaitTimeout: 100 * time.Millisecond,
		EventBuffer: 128,
	}
}

func (c EpollConfig) withDefaults() EpollConfig {
	def := DefaultEpollConfig()
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = def.WaitTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}
	return c
}

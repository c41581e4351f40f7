package ws

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func pipeConnection(t *testing.T, id string, frameRate float64, burst int) (*Connection, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return NewConnection(id, "user-"+id, server, frameRate, burst), client
}

func TestConnection_AllowFrame(t *testing.T) {
	c, _ := pipeConnection(t, "a", 0.001, 2)
	assert.True(t, c.AllowFrame())
	assert.True(t, c.AllowFrame())
	assert.False(t, c.AllowFrame(), "burst exhausted")

	unlimited, _ := pipeConnection(t, "b", 0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, unlimited.AllowFrame())
	}
}

func TestConnection_Touch(t *testing.T) {
	c, _ := pipeConnection(t, "a", 0, 0)
	c.lastActive.Store(time.Now().Add(-time.Hour).UnixNano())
	assert.Greater(t, time.Since(c.LastActive()), 59*time.Minute)

	c.Touch()
	assert.Less(t, time.Since(c.LastActive()), time.Minute)
}

func TestConnectionManager(t *testing.T) {
	cm := NewConnectionManager()
	a, _ := pipeConnection(t, "a", 0, 0)
	b, _ := pipeConnection(t, "b", 0, 0)

	cm.Add(a)
	cm.Add(b)
	assert.Equal(t, 2, cm.Count())
	assert.Same(t, a, cm.Get("a"))
	assert.Nil(t, cm.Get("missing"))
	assert.Len(t, cm.All(), 2)

	assert.True(t, cm.Remove("a"))
	assert.False(t, cm.Remove("a"))
	assert.Equal(t, 1, cm.Count())
	assert.Same(t, b, cm.Get("b"))
}

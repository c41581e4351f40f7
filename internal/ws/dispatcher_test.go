package ws

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/techtie/match-app/internal/protocol"
)

// dispatchAndRead runs Dispatch on the server side of a pipe and returns the
// first frame the client receives.
func dispatchAndRead(t *testing.T, d *MessageDispatcher, c *Connection, client net.Conn, data []byte) map[string]interface{} {
	t.Helper()
	go d.Dispatch(c, data)

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	payload, err := wsutil.ReadServerText(client)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &m))
	return m
}

func TestDispatch_Ping(t *testing.T) {
	d := NewMessageDispatcher(zap.NewNop())
	c, client := pipeConnection(t, "a", 0, 0)

	m := dispatchAndRead(t, d, c, client, []byte(`{"type":"ping"}`))
	assert.Equal(t, protocol.TypePong, m["type"])
}

func TestDispatch_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  string
	}{
		{"invalid json", `{oops`, protocol.CodeParseError},
		{"unknown type", `{"type":"find_match"}`, protocol.CodeUnsupportedType},
		{"unregistered type", `{"type":"reset_filter"}`, protocol.CodeUnsupportedType},
		{"bad payload", `{"type":"decide","candidate_id":7}`, protocol.CodeParseError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewMessageDispatcher(zap.NewNop())
			c, client := pipeConnection(t, "a", 0, 0)

			m := dispatchAndRead(t, d, c, client, []byte(tt.input))
			assert.Equal(t, protocol.TypeError, m["type"])
			assert.Equal(t, tt.code, m["code"])
		})
	}
}

func TestDispatch_RoutesToHandler(t *testing.T) {
	d := NewMessageDispatcher(zap.NewNop())
	c, _ := pipeConnection(t, "a", 0, 0)

	got := make(chan interface{}, 1)
	d.Register(protocol.TypeDecide, func(conn *Connection, msg interface{}) {
		assert.Same(t, c, conn)
		got <- msg
	})

	d.Dispatch(c, []byte(`{"type":"decide","candidate_id":"sarah","decision":"like"}`))

	select {
	case msg := <-got:
		decide, ok := msg.(protocol.DecideMsg)
		require.True(t, ok)
		assert.Equal(t, "sarah", decide.CandidateID)
		assert.Equal(t, "like", decide.Decision)
	default:
		t.Fatal("handler was not called")
	}
}

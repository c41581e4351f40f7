package ws

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/techtie/match-app/internal/metrics"
	"github.com/techtie/match-app/internal/protocol"
)

// MessageHandler is the callback signature for handling a parsed client message.
// The msg parameter is the concrete struct returned by protocol.ParseClientMessage
// (e.g., protocol.SetFilterMsg, protocol.DecideMsg, etc.).
type MessageHandler func(conn *Connection, msg interface{})

// MessageDispatcher routes incoming WebSocket messages to registered handlers
// based on the message type. It handles the built-in ping/pong keepalive
// internally and sends structured error responses for malformed or unsupported
// messages.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	log      *zap.Logger
}

// NewMessageDispatcher creates an empty MessageDispatcher.
func NewMessageDispatcher(log *zap.Logger) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		log:      log.Named("ws"),
	}
}

// Register associates a MessageHandler with a message type. If a handler was
// already registered for the given type, it is silently replaced.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch is the onMessage callback implementation. It parses the raw bytes
// into a typed message, handles ping internally, and routes all other types to
// the registered handler. Parse errors and unregistered types result in an
// error message sent back to the client.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	start := time.Now()
	defer func() { metrics.MessageLatency.Observe(time.Since(start).Seconds()) }()

	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			d.log.Debug("unsupported message type", zap.String("type", msgType), zap.String("session", conn.ID))
			SendError(conn, protocol.CodeUnsupportedType, "unsupported message type")
			return
		}
		d.log.Debug("dispatch parse error", zap.String("session", conn.ID), zap.Error(err))
		SendError(conn, protocol.CodeParseError, "invalid message format")
		return
	}

	// Built-in ping handler, respond immediately without requiring registration.
	if msgType == protocol.TypePing {
		d.sendPong(conn)
		return
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		d.log.Debug("unregistered message type", zap.String("type", msgType), zap.String("session", conn.ID))
		SendError(conn, protocol.CodeUnsupportedType, "unsupported message type")
		return
	}

	handler(conn, msg)
}

// SendError sends a structured error message back to the client. Errors during
// message construction or transmission are dropped: a broken connection is
// cleaned up by the read path.
func SendError(conn *Connection, code string, message string) {
	data, err := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}
	_ = conn.WriteMessage(data)
}

// sendPong responds to a client ping with a pong message and records the
// activity for the heartbeat.
func (d *MessageDispatcher) sendPong(conn *Connection) {
	conn.Touch()

	data, err := protocol.NewServerMessage(protocol.TypePong, protocol.PongMsg{})
	if err != nil {
		d.log.Error("build pong", zap.String("session", conn.ID), zap.Error(err))
		return
	}

	if err := conn.WriteMessage(data); err != nil {
		d.log.Debug("send pong", zap.String("session", conn.ID), zap.Error(err))
	}
}

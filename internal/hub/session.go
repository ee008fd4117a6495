package hub

import (
	"time"

	"github.com/irampton/Lembas/internal/wire"
)

// Session kinds.
const (
	KindWebSocket = "websocket"
	KindSSE       = "sse"
	KindLocal     = "local"
)

// Session is one connected client as seen by the hub.
//
// Frames queued for the client are read from Outbox by the transport.
// Outbox is closed when the session is disconnected; Done is closed at the same time.
type Session struct {
	ID          string
	Kind        string
	ConnectedAt time.Time

	outbox chan wire.Frame
	done   chan struct{}
}

// Outbox returns the session's queue of outbound frames.
func (s *Session) Outbox() <-chan wire.Frame {
	return s.outbox
}

// Done is closed when the hub drops the session.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

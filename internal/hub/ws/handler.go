// Package ws serves the realtime channel over WebSocket.
//
// Each connection becomes one hub session. A reader goroutine decodes
// request frames and dispatches them to the hub; a writer goroutine drains
// the session's outbox and keeps the connection alive with pings. Either
// side failing tears down both.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/irampton/Lembas/internal/hub"
	"github.com/irampton/Lembas/internal/wire"
)

const (
	// DefaultPingInterval is how often the server pings idle clients.
	DefaultPingInterval = 30 * time.Second

	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

// errSessionClosed ends a connection whose session the hub dropped.
var errSessionClosed = errors.New("session closed by hub")

// Hub is the part of the hub a connection needs.
type Hub interface {
	Connect(ctx context.Context, kind string) (*hub.Session, error)
	Disconnect(sessionID string)
	Dispatch(ctx context.Context, sess *hub.Session, frame wire.Frame)
}

// Handler upgrades requests to WebSocket connections.
type Handler struct {
	hub          Hub
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	pingInterval time.Duration
}

// NewHandler creates a Handler. Any origin is accepted.
func NewHandler(h Hub, logger *slog.Logger) *Handler {
	return &Handler{
		hub:    h,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			Subprotocols:    wire.Subprotocols(),
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		pingInterval: DefaultPingInterval,
	}
}

// SetPingInterval overrides the keepalive cadence. The read deadline is
// twice the interval.
func (h *Handler) SetPingInterval(d time.Duration) {
	if d > 0 {
		h.pingInterval = d
	}
}

// ServeHTTP runs one connection until either side closes it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	codec := wire.ForSubprotocol(conn.Subprotocol())

	sess, err := h.hub.Connect(ctx, hub.KindWebSocket)
	if err != nil {
		h.logger.Warn("Rejecting WebSocket connection", slog.String("error", err.Error()))
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server unavailable")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		return
	}
	defer h.hub.Disconnect(sess.ID)

	logger := h.logger.With(
		slog.String("session_id", sess.ID),
		slog.String("subprotocol", codec.Subprotocol()),
		slog.String("remote_addr", r.RemoteAddr))
	logger.Debug("WebSocket connected")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer conn.Close()
		return h.readLoop(ctx, conn, codec, sess, logger)
	})
	g.Go(func() error {
		defer conn.Close()
		return h.writeLoop(gctx, conn, codec, sess)
	})

	err = g.Wait()
	switch {
	case err == nil,
		errors.Is(err, errSessionClosed),
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		logger.Debug("WebSocket closed")
	default:
		logger.Debug("WebSocket ended", slog.String("reason", err.Error()))
	}
}

// readLoop dispatches request frames until the connection fails.
// Dispatch uses the request context, not the group's, so a mutation that
// has started is not cut short by the writer failing.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, codec wire.Codec, sess *hub.Session, logger *slog.Logger) error {
	pongWait := 2 * h.pingInterval

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		frame, err := codec.Decode(data)
		if err != nil {
			logger.Warn("Skipping malformed frame", slog.String("error", err.Error()))
			continue
		}
		h.hub.Dispatch(ctx, sess, frame)
	}
}

// writeLoop is the connection's only writer.
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, codec wire.Codec, sess *hub.Session) error {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-sess.Outbox():
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "resync required")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				return errSessionClosed
			}
			data, err := codec.Encode(frame)
			if err != nil {
				return err
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(codec.MessageType(), data); err != nil {
				return err
			}

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

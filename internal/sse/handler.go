package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/irampton/Lembas/internal/http/response"
	"github.com/irampton/Lembas/internal/hub"
)

const (
	// DefaultHeartbeatInterval matches the WebSocket ping cadence.
	DefaultHeartbeatInterval = 30 * time.Second

	writeDeadline = 60 * time.Second
)

// Subscriber is the part of the hub the stream needs.
type Subscriber interface {
	Connect(ctx context.Context, kind string) (*hub.Session, error)
	Disconnect(sessionID string)
}

// Handler serves GET /api/v1/recipes/stream.
type Handler struct {
	hub       Subscriber
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewHandler creates a Handler.
func NewHandler(h Subscriber, logger *slog.Logger) *Handler {
	return &Handler{
		hub:       h,
		logger:    logger,
		heartbeat: DefaultHeartbeatInterval,
	}
}

// SetHeartbeatInterval overrides the heartbeat cadence.
func (h *Handler) SetHeartbeatInterval(d time.Duration) {
	if d > 0 {
		h.heartbeat = d
	}
}

// ServeHTTP streams listing pushes until the client goes away or the hub
// closes the session.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed.", h.logger)
		return
	}
	ctx := r.Context()
	if ctx.Err() != nil {
		return
	}

	sess, err := h.hub.Connect(ctx, hub.KindSSE)
	if err != nil {
		h.logger.Warn("Rejecting SSE connection", slog.String("error", err.Error()))
		response.HandleError(w, err, h.logger)
		return
	}
	defer h.hub.Disconnect(sess.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Error("Failed to flush SSE headers", slog.String("error", err.Error()))
		return
	}

	logger := h.logger.With(slog.String("session_id", sess.ID))

	if err := h.sendEvent(w, rc, EventConnected, ConnectedData{SessionID: sess.ID}); err != nil {
		logger.Warn("Failed to send connected event", slog.String("error", err.Error()))
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case frame, ok := <-sess.Outbox():
			if !ok {
				logger.Info("SSE session closed by hub")
				return
			}
			// Acks never reach SSE sessions; only listing pushes do.
			if err := h.sendEvent(w, rc, EventType(frame.Event), frame.Payload); err != nil {
				logger.Info("SSE client disconnected during send")
				return
			}

		case <-heartbeat.C:
			if err := h.sendEvent(w, rc, EventHeartbeat, HeartbeatData{Timestamp: time.Now().UTC()}); err != nil {
				logger.Info("SSE client disconnected during heartbeat")
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) sendEvent(w http.ResponseWriter, rc *http.ResponseController, eventType EventType, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}

	// Not every ResponseWriter supports deadlines; httptest's recorder does not.
	if err := rc.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		h.logger.Debug("Failed to set write deadline", slog.String("error", err.Error()))
	}
	return nil
}

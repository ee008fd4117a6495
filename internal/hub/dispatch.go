package hub

import (
	"context"
	"log/slog"
	"strconv"

	domainerrors "github.com/irampton/Lembas/internal/errors"
	"github.com/irampton/Lembas/internal/wire"
)

// Dispatch handles one request frame from sess and queues its acknowledgement.
// For mutations the listing broadcast is queued before the ack.
func (h *Hub) Dispatch(ctx context.Context, sess *Session, frame wire.Frame) {
	if frame.Event == wire.EventRecipesList {
		h.replyList(ctx, sess, frame.ID)
		return
	}

	var reply wire.Frame

	switch frame.Event {
	case wire.EventRecipeSave:
		raw, _ := frame.Payload.(map[string]any)
		saved, err := h.Save(ctx, raw)
		if err != nil {
			reply = wire.Nack(frame.ID, domainerrors.Message(err, msgSaveFailed))
			break
		}
		reply = wire.Ack(frame.ID, saved)

	case wire.EventRecipeDelete:
		if err := h.Delete(ctx, payloadID(frame.Payload)); err != nil {
			reply = wire.Nack(frame.ID, domainerrors.Message(err, msgDeleteFailed))
			break
		}
		reply = wire.Ack(frame.ID, nil)

	default:
		h.logger.Debug("Unknown event",
			slog.String("session_id", sess.ID),
			slog.String("event", frame.Event))
		reply = wire.Nack(frame.ID, wire.ErrUnknownEvent)
	}

	// No id means the client does not want an acknowledgement.
	if frame.ID == "" {
		return
	}
	h.send(sess, reply)
}

// replyList acknowledges a list request with the current listing. The read
// and the ack both happen under mu, so the reply is ordered with respect to
// mutation broadcasts and can never carry a listing older than one the
// session already received.
func (h *Hub) replyList(ctx context.Context, sess *Session, requestID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var reply wire.Frame
	listing, err := h.listLocked(ctx)
	if err != nil {
		reply = wire.Nack(requestID, domainerrors.Message(err, msgLoadFailed))
	} else {
		reply = wire.Ack(requestID, listing)
	}

	if requestID == "" {
		return
	}
	h.send(sess, reply)
}

// payloadID extracts a recipe id from a delete payload. Clients send a bare
// string; an object with an id field is accepted too.
func payloadID(payload any) string {
	switch v := payload.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case uint64:
		return strconv.FormatUint(v, 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case map[string]any:
		return payloadID(v["id"])
	default:
		return ""
	}
}

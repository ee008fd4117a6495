// Package hub is the single authoritative broadcast point for recipe changes.
//
// Every mutation runs through one critical section: validate, persist,
// re-list, then queue the full listing to every session. Because broadcasts
// are queued while the section is held, all sessions observe mutations in
// commit order. Sessions whose queues fill up are dropped and resynchronize
// when they reconnect.
package hub

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/irampton/Lembas/internal/domain"
	"github.com/irampton/Lembas/internal/id"
	"github.com/irampton/Lembas/internal/importer"
	"github.com/irampton/Lembas/internal/normalize"
	"github.com/irampton/Lembas/internal/store"
	"github.com/irampton/Lembas/internal/wire"
)

// DefaultOutboxSize is the per-session queue length.
const DefaultOutboxSize = 64

// Indexer is notified after every committed mutation.
// Failures are logged and never fail the mutation.
type Indexer interface {
	IndexRecipe(ctx context.Context, recipe *domain.Recipe) error
	DeleteRecipe(ctx context.Context, recipeID string) error
}

// Searcher answers full-text queries with recipe ids in relevance order.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// Hub coordinates sessions and the record store.
type Hub struct {
	store      store.Store
	normalizer *normalize.Normalizer
	logger     *slog.Logger
	outboxSize int

	indexer  Indexer
	searcher Searcher
	importer importer.Importer

	// mu serializes mutations and session registration.
	mu sync.Mutex

	// sessionsMu guards sessions and shutdown. Sends happen under the read
	// lock, closes under the write lock.
	sessionsMu sync.RWMutex
	sessions   map[string]*Session
	shutdown   bool
}

// New creates a Hub backed by st.
func New(st store.Store, logger *slog.Logger) *Hub {
	return &Hub{
		store:      st,
		normalizer: normalize.New(),
		logger:     logger,
		outboxSize: DefaultOutboxSize,
		importer:   importer.Disabled{},
		sessions:   make(map[string]*Session),
	}
}

// SetIndexer sets the post-commit indexer. Call before serving traffic.
func (h *Hub) SetIndexer(indexer Indexer) {
	h.indexer = indexer
}

// SetSearcher sets the full-text searcher. Call before serving traffic.
func (h *Hub) SetSearcher(searcher Searcher) {
	h.searcher = searcher
}

// SetImporter sets the free-text import collaborator. Call before serving traffic.
func (h *Hub) SetImporter(imp importer.Importer) {
	h.importer = imp
}

// SetNormalizer replaces the normalizer, mainly so tests can pin the clock.
func (h *Hub) SetNormalizer(n *normalize.Normalizer) {
	h.normalizer = n
}

// SetOutboxSize sets the queue length for sessions connected afterwards.
func (h *Hub) SetOutboxSize(n int) {
	if n > 0 {
		h.outboxSize = n
	}
}

// Connect registers a session and queues the current listing to it before
// returning, so a client has a valid view without sending a request.
func (h *Hub) Connect(ctx context.Context, kind string) (*Session, error) {
	sessionID, err := id.Generate(id.PrefixSession)
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:          sessionID,
		Kind:        kind,
		ConnectedAt: time.Now(),
		outbox:      make(chan wire.Frame, h.outboxSize),
		done:        make(chan struct{}),
	}

	// Holding mu keeps a concurrent broadcast from landing before the initial listing.
	h.mu.Lock()
	defer h.mu.Unlock()

	listing, err := h.store.List(ctx)
	if err != nil {
		return nil, storageError(err, msgLoadFailed)
	}

	h.sessionsMu.Lock()
	if h.shutdown {
		h.sessionsMu.Unlock()
		return nil, ErrShuttingDown
	}
	h.sessions[sess.ID] = sess
	sess.outbox <- wire.Updated(listing)
	total := len(h.sessions)
	h.sessionsMu.Unlock()

	h.logger.Info("Session connected",
		slog.String("session_id", sess.ID),
		slog.String("kind", kind),
		slog.Int("recipes", len(listing)),
		slog.Int("total_sessions", total))

	return sess, nil
}

// Disconnect removes a session and closes its channels. Unknown ids are ignored.
func (h *Hub) Disconnect(sessionID string) {
	h.sessionsMu.Lock()
	sess, ok := h.sessions[sessionID]
	if !ok {
		h.sessionsMu.Unlock()
		return
	}
	delete(h.sessions, sessionID)
	total := len(h.sessions)
	close(sess.done)
	close(sess.outbox)
	h.sessionsMu.Unlock()

	h.logger.Info("Session disconnected",
		slog.String("session_id", sessionID),
		slog.Duration("duration", time.Since(sess.ConnectedAt)),
		slog.Int("total_sessions", total))
}

// Sessions returns an iterator over connected sessions.
func (h *Hub) Sessions() iter.Seq[*Session] {
	return func(yield func(*Session) bool) {
		h.sessionsMu.RLock()
		defer h.sessionsMu.RUnlock()

		for _, sess := range h.sessions {
			if !yield(sess) {
				return
			}
		}
	}
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.sessionsMu.RLock()
	defer h.sessionsMu.RUnlock()
	return len(h.sessions)
}

// Shutdown stops accepting sessions and closes every connected one.
// In-flight mutations finish first.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.logger.Info("Hub shutdown initiated")

	locked := make(chan struct{})
	go func() {
		h.mu.Lock()
		close(locked)
	}()

	select {
	case <-locked:
		defer h.mu.Unlock()
	case <-ctx.Done():
		h.logger.Warn("Hub shutdown timed out waiting for in-flight mutation")
		// Still close sessions; the pending mutation's sends are guarded by sessionsMu.
		go func() {
			<-locked
			h.mu.Unlock()
		}()
	}

	h.sessionsMu.Lock()
	defer h.sessionsMu.Unlock()

	h.shutdown = true
	for _, sess := range h.sessions {
		close(sess.done)
		close(sess.outbox)
	}
	count := len(h.sessions)
	h.sessions = make(map[string]*Session)

	h.logger.Info("Hub shutdown complete", slog.Int("closed_sessions", count))
	return nil
}

// broadcast queues frame to every session. Callers must hold mu.
func (h *Hub) broadcast(frame wire.Frame) {
	var delivered int
	var slow []string

	h.sessionsMu.RLock()
	for _, sess := range h.sessions {
		select {
		case sess.outbox <- frame:
			delivered++
		default:
			slow = append(slow, sess.ID)
		}
	}
	h.sessionsMu.RUnlock()

	for _, sessionID := range slow {
		h.logger.Warn("Dropping slow session",
			slog.String("session_id", sessionID),
			slog.String("event", frame.Event))
		h.Disconnect(sessionID)
	}

	h.logger.Debug("Listing broadcast",
		slog.String("event", frame.Event),
		slog.Group("stats",
			slog.Int("delivered", delivered),
			slog.Int("dropped", len(slow))))
}

// send queues frame to a single session. It reports false when the session
// is gone or was dropped for being slow.
func (h *Hub) send(sess *Session, frame wire.Frame) bool {
	h.sessionsMu.RLock()
	if h.sessions[sess.ID] != sess {
		h.sessionsMu.RUnlock()
		return false
	}
	select {
	case sess.outbox <- frame:
		h.sessionsMu.RUnlock()
		return true
	default:
	}
	h.sessionsMu.RUnlock()

	h.logger.Warn("Dropping slow session",
		slog.String("session_id", sess.ID),
		slog.String("event", frame.Event))
	h.Disconnect(sess.ID)
	return false
}

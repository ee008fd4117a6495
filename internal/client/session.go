// Package client is the client-side session proxy for the realtime channel.
//
// A Session keeps a cached View of the recipe listing that is replaced
// wholesale on every server push, and turns request frames into blocking
// calls keyed by correlation id. When the connection drops the view becomes
// not-ready and every outstanding call fails with ErrDisconnected; Run
// reconnects and resynchronizes.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/irampton/Lembas/internal/domain"
	"github.com/irampton/Lembas/internal/wire"
)

// Fallback messages when the server gives no reason.
const (
	msgSaveFailed   = "Unable to save recipe."
	msgDeleteFailed = "Unable to delete recipe."
	msgLoadFailed   = "Unable to load recipes."
)

// ErrDisconnected is returned by calls made while the connection is down or
// that were in flight when it dropped.
var ErrDisconnected = errors.New("client: disconnected")

// RequestError is a failed acknowledgement.
type RequestError struct {
	Event   string
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

// View is the session's last known state.
type View struct {
	Recipes []domain.Recipe
	Ready   bool   // a listing has been received on the current connection
	Loading bool   // a list request is outstanding
	Error   string // message from the last failed request, cleared on success
}

// Options configures a Session.
type Options struct {
	// BaseURL is the server root, e.g. http://localhost:3000.
	BaseURL string
	// SocketPath defaults to /socket.
	SocketPath string
	// Subprotocols offered during the handshake, most preferred first.
	Subprotocols []string

	HTTPClient *http.Client
	Logger     *slog.Logger

	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Session is one client's connection to the hub.
type Session struct {
	opts      Options
	socketURL string
	logger    *slog.Logger
	dialer    websocket.Dialer
	seq       atomic.Uint64

	mu      sync.Mutex
	conn    *websocket.Conn
	codec   wire.Codec
	pending map[string]chan wire.Frame
	view    View
	draft   *domain.Draft
	subs    map[int]chan View
	nextSub int

	writeMu sync.Mutex
}

// New creates a disconnected Session.
func New(opts Options) (*Session, error) {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	switch base.Scheme {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("client: unsupported url scheme %q", base.Scheme)
	}

	if opts.SocketPath == "" {
		opts.SocketPath = "/socket"
	}
	base.Path += opts.SocketPath

	if len(opts.Subprotocols) == 0 {
		opts.Subprotocols = wire.Subprotocols()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}

	return &Session{
		opts:      opts,
		socketURL: base.String(),
		logger:    opts.Logger.With(slog.String("component", "client")),
		dialer: websocket.Dialer{
			Subprotocols:     opts.Subprotocols,
			HandshakeTimeout: 10 * time.Second,
		},
		pending: make(map[string]chan wire.Frame),
		view:    View{Recipes: []domain.Recipe{}},
		subs:    make(map[int]chan View),
	}, nil
}

// Connect dials the server once and starts reading. The returned channel is
// closed when that connection ends.
func (s *Session) Connect(ctx context.Context) (<-chan struct{}, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.socketURL, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", s.socketURL, err)
	}
	codec := wire.ForSubprotocol(conn.Subprotocol())

	s.mu.Lock()
	if s.conn != nil {
		// Replies to calls made on the old connection will never arrive.
		_ = s.conn.Close()
		s.dropLocked()
	}
	s.conn = conn
	s.codec = codec
	s.mu.Unlock()

	s.logger.Debug("Connected",
		slog.String("url", s.socketURL),
		slog.String("subprotocol", codec.Subprotocol()))

	done := make(chan struct{})
	go s.readLoop(conn, codec, done)
	return done, nil
}

// Run keeps the session connected until ctx ends, backing off between
// failed attempts. Each new connection re-lists if the view is not ready.
func (s *Session) Run(ctx context.Context) error {
	backoff := s.opts.MinBackoff
	for {
		done, err := s.Connect(ctx)
		if err == nil {
			backoff = s.opts.MinBackoff
			go s.resync(ctx)

			select {
			case <-done:
				s.logger.Info("Connection lost, reconnecting")
			case <-ctx.Done():
				s.Close()
				return ctx.Err()
			}
		} else {
			s.logger.Warn("Connect failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", backoff))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.opts.MaxBackoff)
	}
}

// resync requests a listing unless the server's initial push already arrived.
func (s *Session) resync(ctx context.Context) {
	if s.View().Ready {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrDisconnected) {
		s.logger.Debug("Resync failed", slog.String("error", err.Error()))
	}
}

// Close drops the current connection. Outstanding calls fail with ErrDisconnected.
func (s *Session) Close() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (s *Session) readLoop(conn *websocket.Conn, codec wire.Codec, done chan struct{}) {
	defer close(done)
	defer s.connectionLost(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := codec.Decode(data)
		if err != nil {
			s.logger.Warn("Skipping malformed frame", slog.String("error", err.Error()))
			continue
		}

		switch frame.Event {
		case wire.EventRecipesUpdated:
			var listing []domain.Recipe
			if err := wire.Convert(frame.Payload, &listing); err != nil {
				s.logger.Warn("Skipping malformed listing", slog.String("error", err.Error()))
				continue
			}
			s.update(func(v *View) {
				v.Recipes = nonNil(listing)
				v.Ready = true
			})

		case wire.EventAck:
			s.mu.Lock()
			ch, ok := s.pending[frame.ID]
			delete(s.pending, frame.ID)
			s.mu.Unlock()
			if ok {
				ch <- frame
			}
		}
	}
}

// connectionLost fails every outstanding call and marks the view not ready.
func (s *Session) connectionLost(conn *websocket.Conn) {
	_ = conn.Close()

	s.mu.Lock()
	if s.conn != conn {
		// A newer connection has replaced this one.
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.dropLocked()
	s.mu.Unlock()
}

// dropLocked fails every outstanding call and marks the view not ready.
// Callers hold mu.
func (s *Session) dropLocked() {
	for id, ch := range s.pending {
		close(ch)
		delete(s.pending, id)
	}
	s.view.Ready = false
	s.view.Loading = false
	s.publishLocked()
}

// request sends one frame and waits for its acknowledgement.
func (s *Session) request(ctx context.Context, event string, payload any) (*wire.Reply, error) {
	reqID := strconv.FormatUint(s.seq.Add(1), 10)
	ch := make(chan wire.Frame, 1)

	s.mu.Lock()
	conn, codec := s.conn, s.codec
	if conn == nil {
		s.mu.Unlock()
		return nil, ErrDisconnected
	}
	s.pending[reqID] = ch
	s.mu.Unlock()

	data, err := codec.Encode(wire.Request(reqID, event, payload))
	if err != nil {
		s.forget(reqID)
		return nil, err
	}

	s.writeMu.Lock()
	err = conn.WriteMessage(codec.MessageType(), data)
	s.writeMu.Unlock()
	if err != nil {
		s.forget(reqID)
		return nil, fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	select {
	case frame, ok := <-ch:
		if !ok || frame.Reply == nil {
			return nil, ErrDisconnected
		}
		return frame.Reply, nil
	case <-ctx.Done():
		s.forget(reqID)
		return nil, ctx.Err()
	}
}

func (s *Session) forget(reqID string) {
	s.mu.Lock()
	delete(s.pending, reqID)
	s.mu.Unlock()
}

// View returns a copy of the current view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.view
	v.Recipes = slices.Clone(s.view.Recipes)
	return v
}

// Get looks a recipe up in the cached view.
func (s *Session) Get(recipeID string) (domain.Recipe, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.FindRecipe(s.view.Recipes, recipeID)
}

// Updates returns a channel that receives the view after every change, and
// a function that unsubscribes. Slow readers only see the latest view.
func (s *Session) Updates() (<-chan View, func()) {
	ch := make(chan View, 1)

	s.mu.Lock()
	subID := s.nextSub
	s.nextSub++
	s.subs[subID] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.subs, subID)
		s.mu.Unlock()
	}
}

// WaitReady blocks until a listing has been received on the current connection.
func (s *Session) WaitReady(ctx context.Context) error {
	updates, stop := s.Updates()
	defer stop()

	if s.View().Ready {
		return nil
	}
	for {
		select {
		case v := <-updates:
			if v.Ready {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) update(fn func(*View)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.view)
	s.publishLocked()
}

func (s *Session) publishLocked() {
	v := s.view
	v.Recipes = slices.Clone(s.view.Recipes)
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

func nonNil(recipes []domain.Recipe) []domain.Recipe {
	if recipes == nil {
		return []domain.Recipe{}
	}
	return recipes
}

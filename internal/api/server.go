// Package api provides the HTTP server for Lembas: the huma JSON API, the
// realtime endpoints and the static client bundle.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/irampton/Lembas/internal/domain"
	"github.com/irampton/Lembas/internal/hub/ws"
	"github.com/irampton/Lembas/internal/ratelimit"
	"github.com/irampton/Lembas/internal/sse"
	"github.com/irampton/Lembas/internal/store"
	"github.com/irampton/Lembas/internal/validation"
)

// Recipes is the hub surface the HTTP API uses.
type Recipes interface {
	ws.Hub
	List(ctx context.Context) ([]domain.Recipe, error)
	Get(ctx context.Context, recipeID string) (*domain.Recipe, error)
	Save(ctx context.Context, raw map[string]any) (*domain.Recipe, error)
	Delete(ctx context.Context, recipeID string) error
	Search(ctx context.Context, query string, limit int) ([]domain.Recipe, error)
	Import(ctx context.Context, text string) (*domain.Draft, error)
	SessionCount() int
}

// DocCounter reports the size of the search index.
type DocCounter interface {
	DocCount() (uint64, error)
}

// Options configures a Server.
type Options struct {
	// StaticDir holds the built client bundle.
	StaticDir string
	// ImportRatePerMinute limits import requests per client IP. Zero disables the limit.
	ImportRatePerMinute int
	// ImportTimeout extends the write deadline of import requests past the
	// server-wide write timeout.
	ImportTimeout time.Duration
	// Index is reported by the health check when set.
	Index DocCounter

	PingInterval      time.Duration
	HeartbeatInterval time.Duration
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	recipes       Recipes
	store         store.Store
	index         DocCounter
	router        *chi.Mux
	api           huma.API
	validator     *validation.Validator
	importLimiter *ratelimit.KeyedRateLimiter
	importTimeout time.Duration
	staticDir     string
	logger        *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(recipes Recipes, st store.Store, opts Options, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		recipes:       recipes,
		store:         st,
		index:         opts.Index,
		router:        router,
		validator:     validation.New(),
		importTimeout: opts.ImportTimeout,
		staticDir:     opts.StaticDir,
		logger:        logger,
	}
	if opts.ImportRatePerMinute > 0 {
		s.importLimiter = ratelimit.PerMinute(opts.ImportRatePerMinute)
	}

	s.setupMiddleware()

	humaConfig := huma.DefaultConfig("Lembas API", "1.0.0")
	humaConfig.Info.Description = "Recipes shared in realtime between every connected client."
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	RegisterErrorHandler()
	s.api = humachi.New(router, humaConfig)

	s.registerHealthRoutes()
	s.registerRecipeRoutes()
	s.registerImportRoutes()
	s.setupRealtimeRoutes(opts)
	s.setupStaticRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, mainly for tests.
func (s *Server) API() huma.API {
	return s.api
}

// Close releases background resources. Connections are owned by the hub.
func (s *Server) Close() {
	if s.importLimiter != nil {
		s.importLimiter.Stop()
	}
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.extendImportDeadline)
	s.router.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  func(*http.Request, string) bool { return true },
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRealtimeRoutes mounts the WebSocket channel and the SSE stream. They
// stay outside the compressed group so frames are flushed as written.
func (s *Server) setupRealtimeRoutes(opts Options) {
	wsHandler := ws.NewHandler(s.recipes, s.logger)
	wsHandler.SetPingInterval(opts.PingInterval)
	s.router.Handle("/socket", wsHandler)
	s.router.Handle("/api/v1/socket", wsHandler)

	sseHandler := sse.NewHandler(s.recipes, s.logger)
	sseHandler.SetHeartbeatInterval(opts.HeartbeatInterval)
	s.router.Handle("/api/v1/recipes/stream", sseHandler)
}

func (s *Server) setupStaticRoutes() {
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Compress(5))
		r.Handle("/*", http.HandlerFunc(s.handleStatic))
	})
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug("HTTP request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("remote_addr", r.RemoteAddr))
		})
	}
}

// extendImportDeadline gives import requests time for the model round trip.
func (s *Server) extendImportDeadline(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.importTimeout > 0 && r.Method == http.MethodPost && isImportPath(r.URL.Path) {
			deadline := time.Now().Add(s.importTimeout + 5*time.Second)
			if err := http.NewResponseController(w).SetWriteDeadline(deadline); err != nil {
				s.logger.Debug("Failed to extend write deadline", slog.String("error", err.Error()))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func isImportPath(p string) bool {
	return p == "/api/v1/import" || p == "/api/llm-import"
}

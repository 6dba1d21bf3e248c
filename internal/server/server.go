package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/surebetbot/internal/domain"
	"github.com/alanyoungcy/surebetbot/internal/server/handler"
	"github.com/alanyoungcy/surebetbot/internal/server/middleware"
	"github.com/alanyoungcy/surebetbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr         string
	CORSOrigins  []string
	APIKey       string // if empty, read-API authentication is disabled
	RateLimitRPS int    // ingest requests per second per client; 0 disables
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health        *handler.HealthHandler
	Quotes        *handler.QuoteHandler
	Opportunities *handler.OpportunityHandler
	History       *handler.HistoryHandler
	Stats         *handler.StatsHandler
	Events        *handler.EventHandler
	Snapshot      *handler.SnapshotHandler
}

// Server is the headless HTTP + WebSocket API for the surebet engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux.
// The ingest route carries its own chain (HMAC signing, rate limit); read
// routes sit behind API-key auth; logging and CORS wrap everything. The
// verifier and limiter may be nil, which disables the respective check.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, verifier middleware.RequestVerifier, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Liveness probe, outside every auth chain.
	mux.HandleFunc("GET /healthz", handlers.Health.HealthCheck)

	// Quote ingest: feeds authenticate with request signing, not the API key.
	var ingest http.Handler = http.HandlerFunc(handlers.Quotes.SubmitQuotes)
	if limiter != nil && cfg.RateLimitRPS > 0 {
		ingest = middleware.RateLimit(limiter, cfg.RateLimitRPS, time.Second)(ingest)
	}
	ingest = middleware.HMACAuth(verifier, logger)(ingest)
	mux.Handle("POST /api/v1/quotes", ingest)

	// Read API.
	authed := middleware.Auth(cfg.APIKey)
	mux.Handle("GET /api/v1/opportunities", authed(http.HandlerFunc(handlers.Opportunities.ListActive)))
	mux.Handle("GET /api/v1/history", authed(http.HandlerFunc(handlers.History.ListRecent)))
	mux.Handle("GET /api/v1/stats", authed(http.HandlerFunc(handlers.Stats.GetStats)))
	mux.Handle("GET /api/v1/events", authed(http.HandlerFunc(handlers.Events.ListEvents)))
	mux.Handle("GET /api/v1/events/{key}", authed(http.HandlerFunc(handlers.Events.GetEvent)))
	mux.Handle("GET /api/v1/snapshot", authed(http.HandlerFunc(handlers.Snapshot.Export)))
	mux.Handle("POST /api/v1/snapshot", authed(http.HandlerFunc(handlers.Snapshot.Import)))

	// WebSocket endpoint.
	if wsHub != nil {
		mux.Handle("GET /ws", authed(http.HandlerFunc(wsHub.HandleWS)))
	}

	// Build the outer middleware chain.
	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

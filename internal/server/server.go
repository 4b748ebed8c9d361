// Package server is the HTTP + WebSocket API surface of the marketplace
// relay: dashboard reads, gasless write endpoints, the operation audit trail,
// and the live operation event stream.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openharvest/harvestd/internal/domain"
	"github.com/openharvest/harvestd/internal/server/handler"
	"github.com/openharvest/harvestd/internal/server/middleware"
	"github.com/openharvest/harvestd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // if empty, authentication is disabled
	RateLimit       int    // requests per window per client IP; 0 disables
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Archives may be nil when blob storage is not configured; Admin may be nil
// when none of its target contracts are deployed.
type Handlers struct {
	Health     *handler.HealthHandler
	Listings   *handler.ListingHandler
	Orders     *handler.OrderHandler
	Operations *handler.OperationHandler
	Admin      *handler.AdminHandler
	Archives   *handler.ArchiveHandler
}

// Server is the HTTP + WebSocket API server for the marketplace relay.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (rate limiting, auth, logging, CORS) and attaches
// the WebSocket hub. limiter may be nil to disable API rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Seller and listing endpoints.
	mux.HandleFunc("POST /api/sellers", handlers.Listings.RegisterSeller)
	mux.HandleFunc("GET /api/listings", handlers.Listings.ListListings)
	mux.HandleFunc("POST /api/listings", handlers.Listings.CreateListing)
	mux.HandleFunc("GET /api/listings/{id}", handlers.Listings.GetListing)
	mux.HandleFunc("DELETE /api/listings/{id}", handlers.Listings.DelistListing)

	// Order lifecycle endpoints.
	mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
	mux.HandleFunc("POST /api/orders", handlers.Orders.CreateOrder)
	mux.HandleFunc("GET /api/orders/{id}", handlers.Orders.GetOrder)
	mux.HandleFunc("POST /api/orders/{id}/accept", handlers.Orders.AcceptOrder)
	mux.HandleFunc("POST /api/orders/{id}/ship", handlers.Orders.ShipOrder)
	mux.HandleFunc("POST /api/orders/{id}/complete", handlers.Orders.CompleteOrder)
	mux.HandleFunc("POST /api/orders/{id}/cancel", handlers.Orders.CancelOrder)
	mux.HandleFunc("POST /api/orders/{id}/dispute", handlers.Orders.RaiseDispute)

	// Operation audit trail.
	mux.HandleFunc("GET /api/operations", handlers.Operations.ListOperations)
	mux.HandleFunc("GET /api/operations/{id}", handlers.Operations.GetOperation)

	// Rewards, governance, disputes, and government requests.
	if handlers.Admin != nil {
		mux.HandleFunc("POST /api/rewards/claim", handlers.Admin.ClaimRewards)
		mux.HandleFunc("POST /api/governance/votes", handlers.Admin.CastVote)
		mux.HandleFunc("POST /api/disputes/{id}/resolve", handlers.Admin.ResolveDispute)
		mux.HandleFunc("POST /api/requests", handlers.Admin.SubmitRequest)
		mux.HandleFunc("POST /api/requests/{id}/approve", handlers.Admin.ApproveRequest)
	}

	// Archived operation exports.
	if handlers.Archives != nil {
		mux.HandleFunc("GET /api/archives", handlers.Archives.ListArchives)
		mux.HandleFunc("GET /api/archives/{name}", handlers.Archives.GetArchive)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply per-IP rate limiting (innermost after auth so unauthenticated
	// requests are also counted).
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
	}

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
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

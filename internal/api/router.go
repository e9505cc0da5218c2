package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"blastrace/internal/protocol"
)

// StatusProvider is the slice of the server the HTTP surface needs.
// The interface keeps the router testable without a live tick loop.
type StatusProvider interface {
	// Status answers the synchronous liveness query, outside the
	// simulation protocol.
	Status() protocol.Status
	// LatestSnapshot returns the last broadcast snapshot for read-only
	// inspection.
	LatestSnapshot() protocol.Snapshot
}

// RouterConfig contains all dependencies needed to construct the router.
type RouterConfig struct {
	// Hub is the running game server (required).
	Hub StatusProvider

	// WebSocketHandler upgrades /ws connections (required).
	WebSocketHandler http.HandlerFunc

	// RateLimiter is an optional pre-configured rate limiter; if nil one is
	// created from RateLimitConfig (or defaults).
	RateLimiter     *IPRateLimiter
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional allow-list. If nil, localhost only.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (benchmarks).
	DisableLogging bool
}

// NewRouter constructs the HTTP router. It is pure: no goroutines, no
// listeners, safe to wrap in httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	// Rate limiting before CORS so floods are rejected early.
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, cfg.Hub.Status())
		})
		r.Get("/state", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, cfg.Hub.LatestSnapshot())
		})
	})

	if cfg.WebSocketHandler != nil {
		r.Get("/ws", cfg.WebSocketHandler)
	}

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}

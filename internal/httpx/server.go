// Package httpx is the public HTTP surface of the order service: order
// placement and lifecycle endpoints, the websocket subscription route, and
// the ingress rate limit.
package httpx

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"orderflow/internal/observability"
	"orderflow/internal/orders"
	"orderflow/internal/realtime"
)

// ServerConfig wires the HTTP layer. Coordinator is required; Hub, Metrics,
// and the rate limit are optional.
type ServerConfig struct {
	Coordinator *orders.Coordinator
	Hub         *realtime.Hub
	Metrics     *observability.Metrics

	// RateLimitInterval is the token refill interval; zero disables limiting.
	RateLimitInterval time.Duration
	RateLimitBurst    int

	Logf func(format string, args ...any)
}

// Server holds the assembled router.
type Server struct {
	router  chi.Router
	handler *ordersHandler
}

// NewServer builds the router with middleware and all routes registered.
func NewServer(cfg ServerConfig) *Server {
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}

	handler := &ordersHandler{
		coordinator: cfg.Coordinator,
		metrics:     cfg.Metrics,
		logf:        logf,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.RateLimitInterval > 0 && cfg.RateLimitBurst > 0 {
		limiter := newTokenBucket(cfg.RateLimitInterval, cfg.RateLimitBurst, cfg.Metrics.AddRateLimitWait)
		r.Use(rateLimitMiddleware(limiter))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1/orders", func(r chi.Router) {
		r.Post("/", handler.placeOrder)
		r.Get("/", handler.listOrders)
		r.Get("/{orderID}", handler.getOrder)
		r.Post("/{orderID}/cancel", handler.cancelOrder)
		r.Post("/{orderID}/ship", handler.shipOrder)
	})

	if cfg.Hub != nil {
		r.Get("/ws/orders", cfg.Hub.ServeWS)
	}

	return &Server{router: r, handler: handler}
}

// Router exposes the http.Handler for serving.
func (s *Server) Router() http.Handler { return s.router }

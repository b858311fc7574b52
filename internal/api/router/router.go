package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/physio-voice-agent/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/physio-voice-agent/internal/http/middleware"
	"github.com/wolfman30/physio-voice-agent/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Sessions           *handlers.SessionHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	// RateLimiter guards the session API. Nil disables limiting.
	RateLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", cfg.Sessions.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/sessions", func(api chi.Router) {
		if cfg.RateLimiter != nil {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}

		// The stream upgrades to a websocket and must not be wrapped by the
		// compressor.
		api.Get("/{id}/stream", cfg.Sessions.Stream)

		api.Group(func(rest chi.Router) {
			rest.Use(middleware.Compress(5))
			rest.Post("/", cfg.Sessions.Start)
			rest.Route("/{id}", func(s chi.Router) {
				s.Get("/", cfg.Sessions.Get)
				s.Delete("/", cfg.Sessions.End)
				s.Get("/consultation", cfg.Sessions.Consultation)
				s.Post("/events", cfg.Sessions.Events)
				s.Post("/tools/{tool}", cfg.Sessions.InvokeTool)
				s.Post("/slot", cfg.Sessions.SelectSlot)
			})
		})
	})

	return r
}

package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/auth"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/service"
)

// RouterConfig collects what NewRouter needs.
type RouterConfig struct {
	Services *service.Services
	Auth     auth.Options
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewRouter builds the full HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = log
	}
	h := New(cfg.Services, log)

	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(log))             // structured access log
	r.Use(CORS)                    // permissive CORS for demo

	r.Get("/health", HealthCheck)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.AuthContext(cfg.Auth))

		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.ListEvents)
			r.Get("/{id}", h.GetEvent)
			r.Get("/{id}/status", h.Status)
			r.Post("/{id}/participation", h.JoinParticipation)
			r.Delete("/{id}/participation", h.CancelParticipation)
			r.Post("/{id}/partnership", h.JoinPartnership)
			r.Delete("/{id}/partnership", h.CancelPartnership)
			r.Get("/{id}/registrations", h.ListRegistrations)
		})

		r.Route("/tickets", func(r chi.Router) {
			r.Post("/verify", h.VerifyTicket)
			r.Get("/{ticketId}", h.FetchTicket)
			r.Get("/{ticketId}/payload", h.TicketPayload)
		})

		r.Route("/me", func(r chi.Router) {
			r.Get("/tickets", h.ListMyTickets)
			r.Get("/registrations/stream", h.StreamMyChanges)
		})
	})

	return r
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Shivanand-hulikatti/event-booking/internal/model"
)

// RouterConfig carries everything NewRouter mounts.
type RouterConfig struct {
	Events    *EventHandler
	Bookings  *BookingHandler
	JWTSecret []byte
	// Health is pinged by GET /health; nil reports liveness only.
	Health Pinger
	// RateLimit wraps booking writes; nil leaves them unthrottled.
	RateLimit func(http.Handler) http.Handler
}

// NewRouter builds the chi router with the global middleware stack and
// every API route.
func NewRouter(cfg RouterConfig) http.Handler {
	limit := cfg.RateLimit
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger)
	r.Use(CORS)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	})

	r.Get("/health", HealthCheck(cfg.Health))

	// Public catalogue
	r.Get("/events", cfg.Events.ListEvents)
	r.Get("/events/{id}", cfg.Events.GetEvent)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(cfg.JWTSecret))

		r.With(limit).Post("/events/{id}/bookings", cfg.Bookings.Reserve)

		r.Route("/my/bookings", func(r chi.Router) {
			r.Get("/", cfg.Bookings.ListMine)
			r.With(limit).Patch("/{id}/cancel", cfg.Bookings.Cancel)
		})

		r.Route("/organizer/events", func(r chi.Router) {
			r.Use(RequireRole(model.RoleOrganizer))
			r.Get("/", cfg.Events.ListOrganizerEvents)
			r.Post("/", cfg.Events.CreateEvent)
			r.Get("/{id}", cfg.Events.GetOrganizerEvent)
			r.Put("/{id}", cfg.Events.UpdateEvent)
			r.Post("/{id}/publish", cfg.Events.PublishEvent)
			r.Post("/{id}/cancel", cfg.Events.CancelEvent)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(model.RoleAdmin))
			r.Patch("/bookings/{id}/cancel", cfg.Bookings.Cancel)
			r.Patch("/events/{id}/cancel", cfg.Events.CancelEvent)
		})
	})

	return r
}

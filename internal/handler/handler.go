// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/Shivanand-hulikatti/event-booking/internal/model"
)

// EventCatalog is the event read/create surface used by the handlers.
type EventCatalog interface {
	CreateEvent(ctx context.Context, actor model.Actor, req model.CreateEventRequest) (model.EventView, error)
	GetPublishedEvent(ctx context.Context, id string) (model.EventView, error)
	GetEvent(ctx context.Context, id string, actor model.Actor) (model.EventView, error)
	ListEvents(ctx context.Context, f model.EventFilter) ([]model.EventView, error)
	UpdateEvent(ctx context.Context, id string, actor model.Actor, req model.UpdateEventRequest) (model.EventView, error)
	ListOrganizerEvents(ctx context.Context, actor model.Actor, f model.EventFilter) ([]model.EventView, error)
}

// BookingEngine is the reservation surface used by the handlers.
type BookingEngine interface {
	Reserve(ctx context.Context, eventID string, actor model.Actor, quantity int) (model.ReserveResult, error)
	Cancel(ctx context.Context, bookingID string, actor model.Actor) (model.BookingView, error)
	CancelEvent(ctx context.Context, eventID string, actor model.Actor) (model.EventView, error)
	PublishEvent(ctx context.Context, eventID string, actor model.Actor) (model.EventView, error)
	ListMine(ctx context.Context, actor model.Actor, f model.BookingFilter) ([]model.BookingView, error)
}

// EventHandler serves the public catalogue and the organizer routes.
type EventHandler struct {
	events   EventCatalog
	bookings BookingEngine
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(events EventCatalog, bookings BookingEngine) *EventHandler {
	return &EventHandler{events: events, bookings: bookings}
}

// BookingHandler serves reservation and cancellation routes.
type BookingHandler struct {
	bookings BookingEngine
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(bookings BookingEngine) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg, Code: code})
}

var errEmptyBody = errors.New("request body is empty")

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// queryInt parses an optional positive integer query parameter.
func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}

var errLimitTooLarge = errors.New("limit must be at most 100")

// pageParams reads the optional ?limit= and ?page= parameters.
func pageParams(r *http.Request) (limit, page int, err error) {
	limit, err = queryInt(r, "limit")
	if err == nil && limit > 100 {
		err = errLimitTooLarge
	}
	if err != nil {
		return 0, 0, err
	}
	page, err = queryInt(r, "page")
	if err != nil {
		return 0, 0, err
	}
	return limit, page, nil
}

// ─── Health check ─────────────────────────────────────────────────────────────

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck handles GET /health. With a nil db it only reports liveness.
func HealthCheck(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

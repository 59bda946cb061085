package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/event-booking/internal/model"
)

// Reserve handles POST /events/{id}/bookings
// Books seats for the caller under the event's row lock.
func (h *BookingHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustActor(w, r)
	if !ok {
		return
	}
	var req model.ReserveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body: "+err.Error())
		return
	}

	res, err := h.bookings.Reserve(r.Context(), chi.URLParam(r, "id"), actor, req.Quantity)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ListMine handles GET /my/bookings
// Optional ?status= narrows the list; ?field=created_at|starts_at and
// ?order=asc|desc sort it; ?limit= and ?page= page through it.
func (h *BookingHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustActor(w, r)
	if !ok {
		return
	}
	limit, page, err := pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidQuery, err.Error())
		return
	}

	q := r.URL.Query()
	bookings, err := h.bookings.ListMine(r.Context(), actor, model.BookingFilter{
		Status: model.BookingStatus(q.Get("status")),
		Field:  q.Get("field"),
		Order:  q.Get("order"),
		Limit:  limit,
		Page:   page,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if bookings == nil {
		bookings = []model.BookingView{}
	}
	writeJSON(w, http.StatusOK, bookings)
}

// Cancel handles PATCH /my/bookings/{id}/cancel and
// PATCH /admin/bookings/{id}/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := mustActor(w, r)
	if !ok {
		return
	}
	booking, err := h.bookings.Cancel(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/Shivanand-hulikatti/event-booking/internal/model"
)

const (
	codeInvalidRequestBody = "invalid_request_body"
	codeInvalidQuery       = "invalid_query"
	codeValidation         = "validation_failed"
	codeUnauthorized       = "unauthorized"
	codeForbidden          = "forbidden"
	codeNotFound           = "not_found"
	codeEventNotFound      = "event_not_found"
	codeBookingNotFound    = "booking_not_found"
	codeNotBookable        = "event_not_bookable"
	codeLimitExceeded      = "per_user_limit_exceeded"
	codeInsufficientSeats  = "insufficient_seats"
	codeAlreadyStarted     = "event_already_started"
	codeAlreadyCancelled   = "already_cancelled"
	codeInvalidTransition  = "invalid_transition"
	codeInvalidQuantity    = "invalid_quantity"
	codeBusy               = "busy"
	codeRateLimited        = "too_many_requests"
	codeInternalError      = "internal_error"
)

// writeServiceError maps a service error onto a status code and the JSON
// error envelope. Unknown errors are logged and reported as 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		limit  *model.LimitError
		seats  *model.SeatsError
		fields *model.ValidationError
	)
	switch {
	case errors.As(err, &limit):
		n := limit.Limit
		writeJSON(w, http.StatusUnprocessableEntity, model.ErrorResponse{
			Error: limit.Error(),
			Code:  codeLimitExceeded,
			Limit: &n,
		})
	case errors.As(err, &seats):
		left := seats.Remaining
		writeJSON(w, http.StatusUnprocessableEntity, model.ErrorResponse{
			Error:     seats.Error(),
			Code:      codeInsufficientSeats,
			Remaining: &left,
		})
	case errors.As(err, &fields):
		writeJSON(w, http.StatusUnprocessableEntity, model.ErrorResponse{
			Error:  "validation failed",
			Code:   codeValidation,
			Fields: fields.Fields,
		})
	case errors.Is(err, model.ErrEventNotFound):
		writeError(w, http.StatusNotFound, codeEventNotFound, "event not found")
	case errors.Is(err, model.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, codeBookingNotFound, "booking not found")
	case errors.Is(err, model.ErrForbidden):
		writeError(w, http.StatusForbidden, codeForbidden, "forbidden")
	case errors.Is(err, model.ErrEventNotBookable):
		writeError(w, http.StatusUnprocessableEntity, codeNotBookable, "event is not bookable")
	case errors.Is(err, model.ErrEventAlreadyStarted):
		writeError(w, http.StatusUnprocessableEntity, codeAlreadyStarted, "event already started")
	case errors.Is(err, model.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, codeInvalidTransition, "invalid status transition")
	case errors.Is(err, model.ErrInvalidQuantity):
		writeError(w, http.StatusUnprocessableEntity, codeInvalidQuantity, model.ErrInvalidQuantity.Error())
	case errors.Is(err, model.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, codeAlreadyCancelled, "already cancelled")
	case errors.Is(err, model.ErrBusy):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, codeBusy, "busy, please retry")
	default:
		log.Printf("[http] %s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

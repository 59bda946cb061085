package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrEventNotFound        = errors.New("event not found")
	ErrEventNotBookable     = errors.New("event is not bookable")
	ErrPerUserLimitExceeded = errors.New("per-user booking limit exceeded")
	ErrInsufficientSeats    = errors.New("not enough seats left")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrForbidden            = errors.New("forbidden")
	ErrAlreadyCancelled     = errors.New("already cancelled")
	ErrEventAlreadyStarted  = errors.New("event already started")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrInvalidQuantity      = errors.New("quantity must be a positive integer")
	ErrValidation           = errors.New("validation failed")

	// ErrBusy means the event lock or statement could not be obtained in
	// time. It is the only retryable error.
	ErrBusy = errors.New("resource busy, retry later")
)

// LimitError is returned when a reservation would push the user past the
// per-event cap.
type LimitError struct {
	Limit         int
	AlreadyBooked int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("limit exceeded (max %d tickets per user for this event)", e.Limit)
}

func (e *LimitError) Is(target error) bool { return target == ErrPerUserLimitExceeded }

// SeatsError is returned when fewer seats remain than were requested.
type SeatsError struct {
	Remaining int
}

func (e *SeatsError) Error() string {
	return fmt.Sprintf("not enough seats left (%d remaining)", e.Remaining)
}

func (e *SeatsError) Is(target error) bool { return target == ErrInsufficientSeats }

// ValidationError lists request fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// IsRetryable reports whether the caller may retry the same request.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy)
}

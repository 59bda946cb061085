// Package model defines the core domain types for the event booking system.
package model

import "time"

// EventStatus is the publish lifecycle of an event. Transitions only move
// forward: draft -> published -> cancelled.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusCancelled EventStatus = "cancelled"
)

func (s EventStatus) rank() int {
	switch s {
	case EventStatusDraft:
		return 1
	case EventStatusPublished:
		return 2
	case EventStatusCancelled:
		return 3
	}
	return 0
}

// Valid reports whether s is a known event status.
func (s EventStatus) Valid() bool {
	return s.rank() != 0
}

// CanMoveTo reports whether an event in status s may be set to to. Staying
// put is allowed; moving backwards is not.
func (s EventStatus) CanMoveTo(to EventStatus) bool {
	return to.rank() != 0 && s.rank() <= to.rank()
}

// BookingStatus is the state of a booking row.
type BookingStatus string

const (
	// BookingStatusPending is reserved for a future payment step; bookings
	// are confirmed immediately today.
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Event represents a bookable event created by an organizer.
type Event struct {
	ID          string      `json:"id"`
	OrganizerID string      `json:"organizer_id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	StartsAt    time.Time   `json:"starts_at"`
	Location    string      `json:"location"`
	Capacity    int         `json:"capacity"`
	Category    string      `json:"category,omitempty"`
	Status      EventStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// HasStarted reports whether the event start is at or before now.
func (e *Event) HasStarted(now time.Time) bool {
	return !now.Before(e.StartsAt)
}

// Snapshot returns the denormalised event fields shown next to a booking.
func (e *Event) Snapshot() EventSnapshot {
	return EventSnapshot{
		ID:       e.ID,
		Title:    e.Title,
		StartsAt: e.StartsAt,
		Location: e.Location,
	}
}

// RemainingSeats returns capacity minus confirmed quantity, never negative.
func RemainingSeats(capacity, confirmed int) int {
	if r := capacity - confirmed; r > 0 {
		return r
	}
	return 0
}

// EventView is an event together with its derived seat counts.
type EventView struct {
	Event
	ConfirmedQuantity int `json:"confirmed_quantity"`
	RemainingSeats    int `json:"remaining_seats"`
}

// NewEventView derives the seat counts for e.
func NewEventView(e Event, confirmed int) EventView {
	return EventView{
		Event:             e,
		ConfirmedQuantity: confirmed,
		RemainingSeats:    RemainingSeats(e.Capacity, confirmed),
	}
}

// EventSnapshot is the subset of an event embedded in booking responses.
type EventSnapshot struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at"`
	Location string    `json:"location"`
}

// Booking represents a user's reservation of seats for one event.
type Booking struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	EventID   string        `json:"event_id"`
	Quantity  int           `json:"quantity"`
	Status    BookingStatus `json:"status"`
	UnitPrice int           `json:"unit_price"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Total returns quantity times unit price.
func (b *Booking) Total() int {
	return b.Quantity * b.UnitPrice
}

// BookingView is a booking with its event snapshot, as returned to clients.
type BookingView struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Event     EventSnapshot `json:"event"`
	Quantity  int           `json:"quantity"`
	Status    BookingStatus `json:"status"`
	UnitPrice int           `json:"unit_price"`
	Total     int           `json:"total"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewBookingView combines a booking with its event.
func NewBookingView(b Booking, e EventSnapshot) BookingView {
	return BookingView{
		ID:        b.ID,
		UserID:    b.UserID,
		Event:     e,
		Quantity:  b.Quantity,
		Status:    b.Status,
		UnitPrice: b.UnitPrice,
		Total:     b.Total(),
		CreatedAt: b.CreatedAt,
	}
}

// ReserveResult is the payload returned after a successful reservation.
type ReserveResult struct {
	BookingID  string        `json:"booking_id"`
	Quantity   int           `json:"quantity"`
	TotalPrice int           `json:"total_price"`
	Timestamp  time.Time     `json:"timestamp"`
	Event      EventSnapshot `json:"event"`
}

// Role is the caller's coarse role as asserted by the identity token.
type Role string

const (
	RoleUser      Role = "user"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// Actor identifies the caller of an operation.
type Actor struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the actor has administrative override.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Title       string      `json:"title" validate:"required,max=255"`
	Description string      `json:"description"`
	StartsAt    time.Time   `json:"starts_at" validate:"required"`
	Location    string      `json:"location" validate:"required,max=255"`
	Capacity    int         `json:"capacity" validate:"required,min=1,max=100000"`
	Category    string      `json:"category" validate:"max=100"`
	Status      EventStatus `json:"status" validate:"omitempty,oneof=draft published"`
}

// ReserveRequest is the payload for booking seats.
type ReserveRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1"`
}

// UpdateEventRequest is a partial event update. Nil fields are left as they
// are.
type UpdateEventRequest struct {
	Title       *string      `json:"title" validate:"omitnil,min=1,max=255"`
	Description *string      `json:"description"`
	StartsAt    *time.Time   `json:"starts_at"`
	Location    *string      `json:"location" validate:"omitnil,min=1,max=255"`
	Capacity    *int         `json:"capacity" validate:"omitnil,min=1,max=100000"`
	Category    *string      `json:"category" validate:"omitnil,max=100"`
	Status      *EventStatus `json:"status" validate:"omitnil,oneof=draft published cancelled"`
}

// EventFilter narrows an event listing. Status only applies to the
// organizer listing; the public one is always published events.
type EventFilter struct {
	Search   string
	Category string
	Location string
	Status   EventStatus
	Limit    int
	Page     int
}

// Sort fields and directions accepted by BookingFilter.
const (
	SortCreatedAt = "created_at"
	SortStartsAt  = "starts_at"

	SortAsc  = "asc"
	SortDesc = "desc"
)

// BookingFilter narrows and orders a user's booking list. Zero values mean
// every status, newest booking first, page 1 of 10.
type BookingFilter struct {
	Status BookingStatus `json:"status" validate:"omitempty,oneof=pending confirmed cancelled"`
	Field  string        `json:"field" validate:"omitempty,oneof=created_at starts_at"`
	Order  string        `json:"order" validate:"omitempty,oneof=asc desc"`
	Limit  int           `json:"limit" validate:"omitempty,min=1,max=100"`
	Page   int           `json:"page" validate:"omitempty,min=1"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	Limit     *int              `json:"limit,omitempty"`
	Remaining *int              `json:"remaining,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

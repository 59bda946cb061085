// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/Shivanand-hulikatti/event-booking/internal/audit"
	"github.com/Shivanand-hulikatti/event-booking/internal/clock"
	"github.com/Shivanand-hulikatti/event-booking/internal/config"
	"github.com/Shivanand-hulikatti/event-booking/internal/model"
)

// TxRunner runs fn in a single transaction, rolling back when fn fails.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventStore is the persistence the booking engine needs for events.
type EventStore interface {
	Get(ctx context.Context, id string) (model.Event, error)
	GetForUpdate(ctx context.Context, id string) (model.Event, error)
	UpdateStatus(ctx context.Context, id string, status model.EventStatus) error
}

// BookingLedger is the append-mostly store of booking rows.
type BookingLedger interface {
	SumQuantity(ctx context.Context, eventID string, status model.BookingStatus) (int, error)
	SumUserQuantity(ctx context.Context, eventID, userID string, status model.BookingStatus) (int, error)
	Insert(ctx context.Context, b *model.Booking) error
	UpdateStatus(ctx context.Context, id string, status model.BookingStatus) error
	Get(ctx context.Context, id string) (model.Booking, error)
	GetForUpdate(ctx context.Context, id string) (model.Booking, error)
	ListByUser(ctx context.Context, userID string, f model.BookingFilter) ([]model.BookingView, error)
}

// PriceFunc returns the unit price for a booking of quantity seats.
type PriceFunc func(e model.Event, quantity int) int

func freeOfCharge(model.Event, int) int { return 0 }

// BookingService is the reservation engine. Every operation that reads or
// changes an event's seat usage runs under that event's row lock.
type BookingService struct {
	tx       TxRunner
	events   EventStore
	bookings BookingLedger
	audit    audit.Sink
	clock    clock.Clock

	maxPerUser int
	policy     Policy
	price      PriceFunc
}

// BookingServiceOption customises a BookingService.
type BookingServiceOption func(*BookingService)

// WithMaxPerUser overrides the per-user per-event cap.
func WithMaxPerUser(n int) BookingServiceOption {
	return func(s *BookingService) {
		if n > 0 {
			s.maxPerUser = n
		}
	}
}

// WithPolicy replaces the default ownership/admin policy.
func WithPolicy(p Policy) BookingServiceOption {
	return func(s *BookingService) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithPricing sets how unit prices are chosen. Bookings are free by default.
func WithPricing(fn PriceFunc) BookingServiceOption {
	return func(s *BookingService) {
		if fn != nil {
			s.price = fn
		}
	}
}

// NewBookingService constructs a BookingService with its dependencies.
func NewBookingService(
	tx TxRunner,
	events EventStore,
	bookings BookingLedger,
	sink audit.Sink,
	clk clock.Clock,
	opts ...BookingServiceOption,
) *BookingService {
	if sink == nil {
		sink = audit.Nop{}
	}
	s := &BookingService{
		tx:         tx,
		events:     events,
		bookings:   bookings,
		audit:      sink,
		clock:      clk,
		maxPerUser: config.DefaultMaxPerUser,
		policy:     DefaultPolicy{},
		price:      freeOfCharge,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxPerUser returns the configured per-user per-event cap.
func (s *BookingService) MaxPerUser() int { return s.maxPerUser }

// Reserve books quantity seats of an event for the actor.
//
// The event row is locked first, so the status check, both quantity sums and
// the insert all see the state left by the previous lock holder. Two
// concurrent calls for the same event therefore cannot both admit against
// the same free seats. Any failure rolls the whole unit back.
func (s *BookingService) Reserve(ctx context.Context, eventID string, actor model.Actor, quantity int) (model.ReserveResult, error) {
	if err := validateStruct(model.ReserveRequest{Quantity: quantity}); err != nil {
		return model.ReserveResult{}, model.ErrInvalidQuantity
	}

	var (
		booking model.Booking
		event   model.Event
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		event, err = s.events.GetForUpdate(ctx, eventID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if event.Status != model.EventStatusPublished {
			return model.ErrEventNotBookable
		}
		if event.HasStarted(now) {
			return model.ErrEventAlreadyStarted
		}

		mine, err := s.bookings.SumUserQuantity(ctx, event.ID, actor.UserID, model.BookingStatusConfirmed)
		if err != nil {
			return err
		}
		if quantity > s.maxPerUser-mine {
			return &model.LimitError{Limit: s.maxPerUser, AlreadyBooked: mine}
		}

		confirmed, err := s.bookings.SumQuantity(ctx, event.ID, model.BookingStatusConfirmed)
		if err != nil {
			return err
		}
		if remaining := event.Capacity - confirmed; remaining < quantity {
			return &model.SeatsError{Remaining: model.RemainingSeats(event.Capacity, confirmed)}
		}

		booking = model.Booking{
			UserID:    actor.UserID,
			EventID:   event.ID,
			Quantity:  quantity,
			Status:    model.BookingStatusConfirmed,
			UnitPrice: s.price(event, quantity),
			CreatedAt: now,
			UpdatedAt: now,
		}
		return s.bookings.Insert(ctx, &booking)
	})
	if err != nil {
		return model.ReserveResult{}, wrap("reserve", err)
	}

	s.record(ctx, audit.Entry{
		ActorID:     actor.UserID,
		SubjectType: audit.SubjectBooking,
		SubjectID:   booking.ID,
		Event:       "booking.create",
		Properties: map[string]any{
			"event_id": event.ID,
			"quantity": quantity,
		},
	})

	return model.ReserveResult{
		BookingID:  booking.ID,
		Quantity:   booking.Quantity,
		TotalPrice: booking.Total(),
		Timestamp:  booking.CreatedAt,
		Event:      event.Snapshot(),
	}, nil
}

// Cancel moves a confirmed booking to cancelled, freeing its seats. Only the
// booking's owner or an administrator may cancel it, and only before the
// event starts.
func (s *BookingService) Cancel(ctx context.Context, bookingID string, actor model.Actor) (model.BookingView, error) {
	var (
		booking model.Booking
		event   model.Event
		prev    model.BookingStatus
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		booking, err = s.bookings.GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if !s.policy.CanActOnBooking(actor, booking) {
			return model.ErrForbidden
		}
		if booking.Status == model.BookingStatusCancelled {
			return model.ErrAlreadyCancelled
		}

		event, err = s.events.Get(ctx, booking.EventID)
		if err != nil {
			return err
		}
		if event.HasStarted(s.clock.Now()) {
			return model.ErrEventAlreadyStarted
		}

		if err := s.bookings.UpdateStatus(ctx, booking.ID, model.BookingStatusCancelled); err != nil {
			return err
		}
		prev = booking.Status
		booking.Status = model.BookingStatusCancelled
		booking.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return model.BookingView{}, wrap("cancel booking", err)
	}

	name := "booking.cancel"
	if actor.IsAdmin() && actor.UserID != booking.UserID {
		name = "admin.booking.cancel"
	}
	s.record(ctx, audit.Entry{
		ActorID:     actor.UserID,
		SubjectType: audit.SubjectBooking,
		SubjectID:   booking.ID,
		Event:       name,
		Properties: map[string]any{
			"event_id":    booking.EventID,
			"quantity":    booking.Quantity,
			"prev_status": string(prev),
		},
	})

	return model.NewBookingView(booking, event.Snapshot()), nil
}

// CancelEvent cancels an event that has not started yet. Existing bookings
// keep their status.
func (s *BookingService) CancelEvent(ctx context.Context, eventID string, actor model.Actor) (model.EventView, error) {
	view, err := s.transitionEvent(ctx, eventID, actor, func(e model.Event) error {
		if e.Status == model.EventStatusCancelled {
			return model.ErrAlreadyCancelled
		}
		if e.HasStarted(s.clock.Now()) {
			return model.ErrEventAlreadyStarted
		}
		return nil
	}, model.EventStatusCancelled)
	if err != nil {
		return model.EventView{}, wrap("cancel event", err)
	}

	name := "event.cancel"
	if actor.IsAdmin() && actor.UserID != view.OrganizerID {
		name = "admin.event.cancel"
	}
	s.record(ctx, audit.Entry{
		ActorID:     actor.UserID,
		SubjectType: audit.SubjectEvent,
		SubjectID:   view.ID,
		Event:       name,
		Properties:  map[string]any{"event_id": view.ID},
	})
	return view, nil
}

// PublishEvent moves a draft event to published. Any other current status
// fails with ErrInvalidTransition.
func (s *BookingService) PublishEvent(ctx context.Context, eventID string, actor model.Actor) (model.EventView, error) {
	view, err := s.transitionEvent(ctx, eventID, actor, func(e model.Event) error {
		if e.Status != model.EventStatusDraft {
			return model.ErrInvalidTransition
		}
		return nil
	}, model.EventStatusPublished)
	if err != nil {
		return model.EventView{}, wrap("publish event", err)
	}

	s.record(ctx, audit.Entry{
		ActorID:     actor.UserID,
		SubjectType: audit.SubjectEvent,
		SubjectID:   view.ID,
		Event:       "event.publish",
		Properties:  map[string]any{"event_id": view.ID},
	})
	return view, nil
}

// transitionEvent locks the event, authorises the actor, runs check and then
// writes the new status.
func (s *BookingService) transitionEvent(
	ctx context.Context,
	eventID string,
	actor model.Actor,
	check func(model.Event) error,
	to model.EventStatus,
) (model.EventView, error) {
	var view model.EventView
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		event, err := s.events.GetForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if !s.policy.CanManageEvent(actor, event) {
			return model.ErrForbidden
		}
		if err := check(event); err != nil {
			return err
		}
		if err := s.events.UpdateStatus(ctx, event.ID, to); err != nil {
			return err
		}
		confirmed, err := s.bookings.SumQuantity(ctx, event.ID, model.BookingStatusConfirmed)
		if err != nil {
			return err
		}
		event.Status = to
		event.UpdatedAt = s.clock.Now()
		view = model.NewEventView(event, confirmed)
		return nil
	})
	return view, err
}

// ListMine returns one page of the actor's bookings, optionally filtered by
// status and ordered by booking time or event start.
func (s *BookingService) ListMine(ctx context.Context, actor model.Actor, f model.BookingFilter) ([]model.BookingView, error) {
	if err := validateStruct(f); err != nil {
		return nil, err
	}
	views, err := s.bookings.ListByUser(ctx, actor.UserID, f)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return views, nil
}

func (s *BookingService) record(ctx context.Context, e audit.Entry) {
	record(ctx, s.audit, s.clock, e)
}

// record hands e to the audit sink after the change has committed. A sink
// failure is logged and otherwise ignored.
func record(ctx context.Context, sink audit.Sink, clk clock.Clock, e audit.Entry) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = clk.Now()
	}
	if err := sink.Record(context.WithoutCancel(ctx), e); err != nil {
		log.Printf("[audit] warning: %s for %s %s not recorded: %v", e.Event, e.SubjectType, e.SubjectID, err)
	}
}

// wrap passes domain errors through untouched so handlers can match them and
// adds context to everything else.
func wrap(op string, err error) error {
	if isDomainError(err) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isDomainError(err error) bool {
	for _, target := range []error{
		model.ErrEventNotFound,
		model.ErrEventNotBookable,
		model.ErrPerUserLimitExceeded,
		model.ErrInsufficientSeats,
		model.ErrBookingNotFound,
		model.ErrForbidden,
		model.ErrAlreadyCancelled,
		model.ErrEventAlreadyStarted,
		model.ErrInvalidTransition,
		model.ErrInvalidQuantity,
		model.ErrValidation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

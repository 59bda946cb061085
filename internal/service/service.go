package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/event-booking/internal/audit"
	"github.com/Shivanand-hulikatti/event-booking/internal/clock"
	"github.com/Shivanand-hulikatti/event-booking/internal/model"
)

// EventRepository is the event persistence used by EventService.
type EventRepository interface {
	Create(ctx context.Context, e *model.Event) error
	Get(ctx context.Context, id string) (model.Event, error)
	GetForUpdate(ctx context.Context, id string) (model.Event, error)
	Update(ctx context.Context, e *model.Event) error
	ListPublished(ctx context.Context, f model.EventFilter) ([]model.Event, error)
	ListByOrganizer(ctx context.Context, organizerID string, f model.EventFilter) ([]model.Event, error)
}

// SeatCounter reports confirmed seat usage.
type SeatCounter interface {
	SumQuantity(ctx context.Context, eventID string, status model.BookingStatus) (int, error)
	SumConfirmedByEvents(ctx context.Context, eventIDs []string) (map[string]int, error)
}

// EventService orchestrates event creation, edits and reads.
type EventService struct {
	tx     TxRunner
	events EventRepository
	seats  SeatCounter
	audit  audit.Sink
	policy Policy
	clock  clock.Clock
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(tx TxRunner, events EventRepository, seats SeatCounter, sink audit.Sink, clk clock.Clock) *EventService {
	if sink == nil {
		sink = audit.Nop{}
	}
	return &EventService{
		tx:     tx,
		events: events,
		seats:  seats,
		audit:  sink,
		policy: DefaultPolicy{},
		clock:  clk,
	}
}

// CreateEvent validates the request and stores a new event owned by the
// actor. New events start as drafts unless the request asks for published.
func (s *EventService) CreateEvent(ctx context.Context, actor model.Actor, req model.CreateEventRequest) (model.EventView, error) {
	if !CanCreateEvents(actor) {
		return model.EventView{}, model.ErrForbidden
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Location = strings.TrimSpace(req.Location)
	req.Category = strings.TrimSpace(req.Category)
	if err := validateStruct(req); err != nil {
		return model.EventView{}, err
	}

	status := req.Status
	if status == "" {
		status = model.EventStatusDraft
	}
	now := s.clock.Now()
	event := model.Event{
		OrganizerID: actor.UserID,
		Title:       req.Title,
		Description: req.Description,
		StartsAt:    req.StartsAt.UTC(),
		Location:    req.Location,
		Capacity:    req.Capacity,
		Category:    req.Category,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.events.Create(ctx, &event); err != nil {
		return model.EventView{}, fmt.Errorf("create event: %w", err)
	}
	return model.NewEventView(event, 0), nil
}

// UpdateEvent applies the non-nil fields of req to the event under its row
// lock. Capacity cannot drop below the seats already confirmed, the status
// only moves forward and cancelled events are frozen.
func (s *EventService) UpdateEvent(ctx context.Context, id string, actor model.Actor, req model.UpdateEventRequest) (model.EventView, error) {
	trimPtr(req.Title)
	trimPtr(req.Location)
	trimPtr(req.Category)
	if err := validateStruct(req); err != nil {
		return model.EventView{}, err
	}
	if req.StartsAt != nil && req.StartsAt.IsZero() {
		return model.EventView{}, &model.ValidationError{Fields: map[string]string{"starts_at": "is required"}}
	}

	var (
		view    model.EventView
		changed []string
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		event, err := s.events.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !s.policy.CanManageEvent(actor, event) {
			return model.ErrForbidden
		}
		if event.Status == model.EventStatusCancelled {
			return model.ErrAlreadyCancelled
		}

		now := s.clock.Now()
		if to := req.Status; to != nil && *to != event.Status {
			if !event.Status.CanMoveTo(*to) {
				return model.ErrInvalidTransition
			}
			if *to == model.EventStatusCancelled && event.HasStarted(now) {
				return model.ErrEventAlreadyStarted
			}
		}

		confirmed, err := s.seats.SumQuantity(ctx, event.ID, model.BookingStatusConfirmed)
		if err != nil {
			return err
		}
		if req.Capacity != nil && *req.Capacity < confirmed {
			return &model.ValidationError{Fields: map[string]string{
				"capacity": fmt.Sprintf("must be at least %d, the seats already confirmed", confirmed),
			}}
		}

		changed = applyUpdate(&event, req)
		if len(changed) == 0 {
			view = model.NewEventView(event, confirmed)
			return nil
		}
		event.UpdatedAt = now
		if err := s.events.Update(ctx, &event); err != nil {
			return err
		}
		view = model.NewEventView(event, confirmed)
		return nil
	})
	if err != nil {
		return model.EventView{}, wrap("update event", err)
	}

	if len(changed) > 0 {
		record(ctx, s.audit, s.clock, audit.Entry{
			ActorID:     actor.UserID,
			SubjectType: audit.SubjectEvent,
			SubjectID:   view.ID,
			Event:       "event.update",
			Properties:  map[string]any{"event_id": view.ID, "fields": changed},
		})
	}
	return view, nil
}

// applyUpdate copies the set fields of req onto e and returns the JSON names
// of the ones that actually changed.
func applyUpdate(e *model.Event, req model.UpdateEventRequest) []string {
	var changed []string
	set := func(name string, differs bool, apply func()) {
		if differs {
			apply()
			changed = append(changed, name)
		}
	}
	if v := req.Title; v != nil {
		set("title", *v != e.Title, func() { e.Title = *v })
	}
	if v := req.Description; v != nil {
		set("description", *v != e.Description, func() { e.Description = *v })
	}
	if v := req.StartsAt; v != nil {
		set("starts_at", !v.Equal(e.StartsAt), func() { e.StartsAt = v.UTC() })
	}
	if v := req.Location; v != nil {
		set("location", *v != e.Location, func() { e.Location = *v })
	}
	if v := req.Capacity; v != nil {
		set("capacity", *v != e.Capacity, func() { e.Capacity = *v })
	}
	if v := req.Category; v != nil {
		set("category", *v != e.Category, func() { e.Category = *v })
	}
	if v := req.Status; v != nil {
		set("status", *v != e.Status, func() { e.Status = *v })
	}
	return changed
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}

// GetPublishedEvent returns a published event by id. Drafts and cancelled
// events are reported as not found.
func (s *EventService) GetPublishedEvent(ctx context.Context, id string) (model.EventView, error) {
	event, err := s.events.Get(ctx, id)
	if err != nil {
		return model.EventView{}, passThrough("get event", err)
	}
	if event.Status != model.EventStatusPublished {
		return model.EventView{}, model.ErrEventNotFound
	}
	return s.view(ctx, event)
}

// GetEvent returns an event in any status to its organizer or an admin.
func (s *EventService) GetEvent(ctx context.Context, id string, actor model.Actor) (model.EventView, error) {
	event, err := s.events.Get(ctx, id)
	if err != nil {
		return model.EventView{}, passThrough("get event", err)
	}
	if !s.policy.CanManageEvent(actor, event) {
		return model.EventView{}, model.ErrForbidden
	}
	return s.view(ctx, event)
}

// ListEvents returns published events matching f with their seat counts.
func (s *EventService) ListEvents(ctx context.Context, f model.EventFilter) ([]model.EventView, error) {
	events, err := s.events.ListPublished(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return s.views(ctx, events)
}

// ListOrganizerEvents returns the actor's own events in any status, latest
// start first. Administrators see every organizer's events.
func (s *EventService) ListOrganizerEvents(ctx context.Context, actor model.Actor, f model.EventFilter) ([]model.EventView, error) {
	if !CanCreateEvents(actor) {
		return nil, model.ErrForbidden
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, &model.ValidationError{Fields: map[string]string{"status": "must be one of draft, published, cancelled"}}
	}
	organizerID := actor.UserID
	if actor.IsAdmin() {
		organizerID = ""
	}
	events, err := s.events.ListByOrganizer(ctx, organizerID, f)
	if err != nil {
		return nil, fmt.Errorf("list organizer events: %w", err)
	}
	return s.views(ctx, events)
}

func (s *EventService) views(ctx context.Context, events []model.Event) ([]model.EventView, error) {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	sums, err := s.seats.SumConfirmedByEvents(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("sum confirmed: %w", err)
	}

	views := make([]model.EventView, len(events))
	for i, e := range events {
		views[i] = model.NewEventView(e, sums[e.ID])
	}
	return views, nil
}

func (s *EventService) view(ctx context.Context, event model.Event) (model.EventView, error) {
	confirmed, err := s.seats.SumQuantity(ctx, event.ID, model.BookingStatusConfirmed)
	if err != nil {
		return model.EventView{}, fmt.Errorf("sum confirmed: %w", err)
	}
	return model.NewEventView(event, confirmed), nil
}

func passThrough(op string, err error) error {
	if errors.Is(err, model.ErrEventNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

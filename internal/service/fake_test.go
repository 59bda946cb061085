package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/event-booking/internal/audit"
	"github.com/Shivanand-hulikatti/event-booking/internal/model"
)

// fakeStore is an in-memory event store and booking ledger. WithTx holds a
// single mutex for the whole transaction, which stands in for the event row
// lock, and restores the previous state when fn fails.
type fakeStore struct {
	mu       sync.Mutex
	events   map[string]model.Event
	bookings []model.Booking
	seq      int

	insertErr   error
	sumErr      error
	afterInsert func()
	lastFilter  model.BookingFilter
}

func newFakeStore(events ...model.Event) *fakeStore {
	f := &fakeStore{events: make(map[string]model.Event)}
	for _, e := range events {
		f.events[e.ID] = e
	}
	return f
}

func (f *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	events := maps.Clone(f.events)
	bookings := slices.Clone(f.bookings)
	err := fn(ctx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		f.events, f.bookings = events, bookings
		return err
	}
	return nil
}

func (f *fakeStore) Create(_ context.Context, e *model.Event) error {
	if e.ID == "" {
		f.seq++
		e.ID = fmt.Sprintf("event-%d", f.seq)
	}
	f.events[e.ID] = *e
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (model.Event, error) {
	e, ok := f.events[id]
	if !ok {
		return model.Event{}, model.ErrEventNotFound
	}
	return e, nil
}

func (f *fakeStore) GetForUpdate(ctx context.Context, id string) (model.Event, error) {
	return f.Get(ctx, id)
}

func (f *fakeStore) UpdateStatus(_ context.Context, id string, status model.EventStatus) error {
	e, ok := f.events[id]
	if !ok {
		return model.ErrEventNotFound
	}
	e.Status = status
	f.events[id] = e
	return nil
}

func (f *fakeStore) Update(_ context.Context, e *model.Event) error {
	if _, ok := f.events[e.ID]; !ok {
		return model.ErrEventNotFound
	}
	f.events[e.ID] = *e
	return nil
}

func (f *fakeStore) ListByOrganizer(_ context.Context, organizerID string, filter model.EventFilter) ([]model.Event, error) {
	var out []model.Event
	for _, e := range f.events {
		if organizerID != "" && e.OrganizerID != organizerID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.After(out[j].StartsAt) })
	return out, nil
}

func (f *fakeStore) ListPublished(_ context.Context, _ model.EventFilter) ([]model.Event, error) {
	var out []model.Event
	for _, e := range f.events {
		if e.Status == model.EventStatusPublished {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

// ledger is a view of fakeStore satisfying BookingLedger; the two
// interfaces share method names with different signatures.
type ledger struct{ *fakeStore }

func (l ledger) SumQuantity(_ context.Context, eventID string, status model.BookingStatus) (int, error) {
	if l.sumErr != nil {
		return 0, l.sumErr
	}
	total := 0
	for _, b := range l.bookings {
		if b.EventID == eventID && b.Status == status {
			total += b.Quantity
		}
	}
	return total, nil
}

func (l ledger) SumUserQuantity(_ context.Context, eventID, userID string, status model.BookingStatus) (int, error) {
	total := 0
	for _, b := range l.bookings {
		if b.EventID == eventID && b.UserID == userID && b.Status == status {
			total += b.Quantity
		}
	}
	return total, nil
}

func (l ledger) SumConfirmedByEvents(ctx context.Context, ids []string) (map[string]int, error) {
	out := make(map[string]int)
	for _, id := range ids {
		n, _ := l.SumQuantity(ctx, id, model.BookingStatusConfirmed)
		if n > 0 {
			out[id] = n
		}
	}
	return out, nil
}

func (l ledger) Insert(_ context.Context, b *model.Booking) error {
	if l.insertErr != nil {
		return l.insertErr
	}
	l.seq++
	b.ID = fmt.Sprintf("booking-%d", l.seq)
	l.bookings = append(l.bookings, *b)
	if l.afterInsert != nil {
		l.afterInsert()
	}
	return nil
}

func (l ledger) UpdateStatus(_ context.Context, id string, status model.BookingStatus) error {
	for i := range l.bookings {
		if l.bookings[i].ID == id {
			l.bookings[i].Status = status
			return nil
		}
	}
	return model.ErrBookingNotFound
}

func (l ledger) Get(_ context.Context, id string) (model.Booking, error) {
	for _, b := range l.bookings {
		if b.ID == id {
			return b, nil
		}
	}
	return model.Booking{}, model.ErrBookingNotFound
}

func (l ledger) GetForUpdate(ctx context.Context, id string) (model.Booking, error) {
	return l.Get(ctx, id)
}

func (l ledger) ListByUser(_ context.Context, userID string, f model.BookingFilter) ([]model.BookingView, error) {
	l.lastFilter = f
	var out []model.BookingView
	for _, b := range l.bookings {
		if b.UserID != userID || (f.Status != "" && b.Status != f.Status) {
			continue
		}
		e := l.events[b.EventID]
		out = append(out, model.NewBookingView(b, e.Snapshot()))
	}
	return out, nil
}

// seed adds a booking directly, bypassing the engine.
func (f *fakeStore) seed(b model.Booking) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	b.ID = fmt.Sprintf("booking-%d", f.seq)
	f.bookings = append(f.bookings, b)
	return b.ID
}

func (f *fakeStore) confirmedTotal(eventID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := ledger{f}.SumQuantity(context.Background(), eventID, model.BookingStatusConfirmed)
	return n
}

func (f *fakeStore) confirmedFor(eventID, userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := ledger{f}.SumUserQuantity(context.Background(), eventID, userID, model.BookingStatusConfirmed)
	return n
}

func (f *fakeStore) booking(id string) model.Booking {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, _ := ledger{f}.Get(context.Background(), id)
	return b
}

func (f *fakeStore) bookingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bookings)
}

type fakeSink struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (s *fakeSink) Record(_ context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return s.err
}

func (s *fakeSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Event
	}
	return out
}

var errBoom = errors.New("boom")

func publishedEvent(id string, capacity int, startsAt time.Time) model.Event {
	return model.Event{
		ID:          id,
		OrganizerID: "organizer-1",
		Title:       "Concert " + id,
		Location:    "Budapest",
		StartsAt:    startsAt,
		Capacity:    capacity,
		Status:      model.EventStatusPublished,
	}
}

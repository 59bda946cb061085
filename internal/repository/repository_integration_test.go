package repository_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/event-booking/internal/audit"
	"github.com/Shivanand-hulikatti/event-booking/internal/clock"
	"github.com/Shivanand-hulikatti/event-booking/internal/model"
	"github.com/Shivanand-hulikatti/event-booking/internal/repository"
	"github.com/Shivanand-hulikatti/event-booking/internal/service"
	"github.com/Shivanand-hulikatti/event-booking/internal/testutil"
)

const organizer = "organizer-1"

func TestEventRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	events := repository.NewEventRepository(pool)
	txm := repository.NewTxManager(pool, repository.Timeouts{})

	t.Run("create and get", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		now := time.Now().UTC().Truncate(time.Microsecond)
		e := model.Event{
			OrganizerID: organizer,
			Title:       "Jazz Night",
			StartsAt:    now.Add(48 * time.Hour),
			Location:    "Blue Note",
			Capacity:    50,
			Category:    "music",
			Status:      model.EventStatusDraft,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		require.NoError(t, events.Create(ctx, &e))
		require.NotEmpty(t, e.ID)

		got, err := events.Get(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, e.Title, got.Title)
		assert.Equal(t, e.StartsAt, got.StartsAt)
		assert.Equal(t, model.EventStatusDraft, got.Status)

		require.NoError(t, events.UpdateStatus(ctx, e.ID, model.EventStatusPublished))
		got, err = events.Get(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, model.EventStatusPublished, got.Status)
	})

	t.Run("missing and malformed ids", func(t *testing.T) {
		ctx := context.Background()

		_, err := events.Get(ctx, "00000000-0000-0000-0000-000000000001")
		assert.ErrorIs(t, err, model.ErrEventNotFound)
		_, err = events.Get(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, model.ErrEventNotFound)
		assert.ErrorIs(t, events.UpdateStatus(ctx, "00000000-0000-0000-0000-000000000001", model.EventStatusCancelled), model.ErrEventNotFound)
	})

	t.Run("get for update needs a transaction", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := testutil.InsertEvent(t, ctx, pool, organizer, 10, time.Now().Add(time.Hour))

		_, err := events.GetForUpdate(ctx, id)
		require.Error(t, err)

		err = txm.WithTx(ctx, func(ctx context.Context) error {
			e, err := events.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			assert.Equal(t, 10, e.Capacity)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("update writes mutable columns", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := testutil.InsertEvent(t, ctx, pool, organizer, 10, time.Now().Add(time.Hour))

		e, err := events.Get(ctx, id)
		require.NoError(t, err)
		e.Title = "Renamed"
		e.Capacity = 25
		e.Category = "theatre"
		e.Status = model.EventStatusCancelled
		e.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, events.Update(ctx, &e))

		got, err := events.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Title)
		assert.Equal(t, 25, got.Capacity)
		assert.Equal(t, "theatre", got.Category)
		assert.Equal(t, model.EventStatusCancelled, got.Status)
		assert.Equal(t, organizer, got.OrganizerID)

		e.ID = "00000000-0000-0000-0000-000000000001"
		assert.ErrorIs(t, events.Update(ctx, &e), model.ErrEventNotFound)
	})

	t.Run("list by organizer", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		soon := testutil.InsertEvent(t, ctx, pool, organizer, 10, time.Now().Add(time.Hour))
		later := testutil.InsertEvent(t, ctx, pool, organizer, 10, time.Now().Add(2*time.Hour))
		testutil.SetEventStatus(t, ctx, pool, later, model.EventStatusDraft)
		foreign := testutil.InsertEvent(t, ctx, pool, "organizer-2", 10, time.Now().Add(time.Hour))

		list, err := events.ListByOrganizer(ctx, organizer, model.EventFilter{})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, later, list[0].ID)
		assert.Equal(t, soon, list[1].ID)

		list, err = events.ListByOrganizer(ctx, organizer, model.EventFilter{Status: model.EventStatusDraft})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, later, list[0].ID)

		list, err = events.ListByOrganizer(ctx, "", model.EventFilter{})
		require.NoError(t, err)
		assert.Len(t, list, 3)
		assert.Contains(t, []string{list[0].ID, list[1].ID, list[2].ID}, foreign)
	})

	t.Run("list published filters", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		soon := testutil.InsertEvent(t, ctx, pool, organizer, 10, time.Now().Add(time.Hour))
		later := testutil.InsertEvent(t, ctx, pool, organizer, 10, time.Now().Add(2*time.Hour))
		draft := testutil.InsertEvent(t, ctx, pool, organizer, 10, time.Now().Add(3*time.Hour))
		testutil.SetEventStatus(t, ctx, pool, draft, model.EventStatusDraft)

		list, err := events.ListPublished(ctx, model.EventFilter{})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, soon, list[0].ID)
		assert.Equal(t, later, list[1].ID)

		list, err = events.ListPublished(ctx, model.EventFilter{Limit: 1, Page: 2})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, later, list[0].ID)

		list, err = events.ListPublished(ctx, model.EventFilter{Location: "main"})
		require.NoError(t, err)
		assert.Len(t, list, 2)

		list, err = events.ListPublished(ctx, model.EventFilter{Search: "no such title"})
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestBookingRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	bookings := repository.NewBookingRepository(pool)

	ctx := context.Background()
	testutil.TruncateAll(t, ctx, pool)
	eventID := testutil.InsertEvent(t, ctx, pool, organizer, 20, time.Now().Add(time.Hour))
	other := testutil.InsertEvent(t, ctx, pool, organizer, 20, time.Now().Add(time.Hour))
	testutil.InsertBooking(t, ctx, pool, eventID, "alice", 3, model.BookingStatusConfirmed)
	testutil.InsertBooking(t, ctx, pool, eventID, "alice", 2, model.BookingStatusCancelled)
	testutil.InsertBooking(t, ctx, pool, eventID, "bob", 4, model.BookingStatusConfirmed)

	total, err := bookings.SumQuantity(ctx, eventID, model.BookingStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, 7, total)

	mine, err := bookings.SumUserQuantity(ctx, eventID, "alice", model.BookingStatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, 3, mine)

	sums, err := bookings.SumConfirmedByEvents(ctx, []string{eventID, other})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{eventID: 7}, sums)

	now := time.Now().UTC()
	b := model.Booking{UserID: "carol", EventID: eventID, Quantity: 1, Status: model.BookingStatusConfirmed, UnitPrice: 250, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, bookings.Insert(ctx, &b))

	got, err := bookings.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 250, got.UnitPrice)

	require.NoError(t, bookings.UpdateStatus(ctx, b.ID, model.BookingStatusCancelled))
	views, err := bookings.ListByUser(ctx, "carol", model.BookingFilter{Status: model.BookingStatusCancelled})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, eventID, views[0].Event.ID)
	assert.Equal(t, 250, views[0].Total)

	all, err := bookings.ListByUser(ctx, "alice", model.BookingFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = bookings.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, model.ErrBookingNotFound)
}

func TestBookingRepository_ListByUserPaging(t *testing.T) {
	pool := testutil.NewTestPool(t)
	bookings := repository.NewBookingRepository(pool)

	ctx := context.Background()
	testutil.TruncateAll(t, ctx, pool)
	early := testutil.InsertEvent(t, ctx, pool, organizer, 20, time.Now().Add(time.Hour))
	late := testutil.InsertEvent(t, ctx, pool, organizer, 20, time.Now().Add(48*time.Hour))

	base := time.Now().UTC().Add(-time.Hour)
	insert := func(eventID string, at time.Time) string {
		b := model.Booking{UserID: "dave", EventID: eventID, Quantity: 1, Status: model.BookingStatusConfirmed, CreatedAt: at, UpdatedAt: at}
		require.NoError(t, bookings.Insert(ctx, &b))
		return b.ID
	}
	first := insert(late, base)
	second := insert(early, base.Add(time.Minute))
	third := insert(late, base.Add(2*time.Minute))

	ids := func(views []model.BookingView) []string {
		out := make([]string, len(views))
		for i, v := range views {
			out[i] = v.ID
		}
		return out
	}

	views, err := bookings.ListByUser(ctx, "dave", model.BookingFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{third, second, first}, ids(views), "newest first by default")

	views, err = bookings.ListByUser(ctx, "dave", model.BookingFilter{Order: model.SortAsc})
	require.NoError(t, err)
	assert.Equal(t, []string{first, second, third}, ids(views))

	views, err = bookings.ListByUser(ctx, "dave", model.BookingFilter{Field: model.SortStartsAt, Order: model.SortAsc})
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, second, views[0].ID)
	assert.Equal(t, late, views[2].Event.ID)

	views, err = bookings.ListByUser(ctx, "dave", model.BookingFilter{Limit: 2, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{first}, ids(views))
}

func TestTxManager_CancelBeforeCommitRollsBack(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.TruncateAll(t, ctx, pool)

	txm := repository.NewTxManager(pool, repository.Timeouts{Lock: time.Second, Statement: 5 * time.Second})
	bookings := repository.NewBookingRepository(pool)
	eventID := testutil.InsertEvent(t, ctx, pool, organizer, 10, time.Now().Add(time.Hour))

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	err := txm.WithTx(reqCtx, func(ctx context.Context) error {
		now := time.Now().UTC()
		b := model.Booking{UserID: "alice", EventID: eventID, Quantity: 2, Status: model.BookingStatusConfirmed, CreatedAt: now, UpdatedAt: now}
		if err := bookings.Insert(ctx, &b); err != nil {
			return err
		}
		// The caller goes away with the row written but not committed.
		cancel()
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, testutil.ConfirmedQuantity(t, ctx, pool, eventID))
}

func TestReserve_RowLockPreventsOversell(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.TruncateAll(t, ctx, pool)

	svc := service.NewBookingService(
		repository.NewTxManager(pool, repository.Timeouts{Lock: 5 * time.Second, Statement: 10 * time.Second}),
		repository.NewEventRepository(pool),
		repository.NewBookingRepository(pool),
		audit.Nop{},
		clock.NewSystem(),
		service.WithMaxPerUser(10),
	)
	eventID := testutil.InsertEvent(t, ctx, pool, organizer, 10, time.Now().Add(time.Hour))

	var ok, full atomic.Int32
	var g errgroup.Group
	for _, user := range []string{"alice", "bob"} {
		user := user
		g.Go(func() error {
			_, err := svc.Reserve(ctx, eventID, model.Actor{UserID: user, Role: model.RoleUser}, 6)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, model.ErrInsufficientSeats):
				full.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, 1, full.Load())
	assert.Equal(t, 6, testutil.ConfirmedQuantity(t, ctx, pool, eventID))
}

func TestReserve_LockTimeoutIsBusy(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.TruncateAll(t, ctx, pool)

	txm := repository.NewTxManager(pool, repository.Timeouts{Lock: 100 * time.Millisecond})
	events := repository.NewEventRepository(pool)
	svc := service.NewBookingService(txm, events, repository.NewBookingRepository(pool), audit.Nop{}, clock.NewSystem())
	eventID := testutil.InsertEvent(t, ctx, pool, organizer, 10, time.Now().Add(time.Hour))

	locked := make(chan struct{})
	release := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		return txm.WithTx(ctx, func(ctx context.Context) error {
			if _, err := events.GetForUpdate(ctx, eventID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	})

	<-locked
	_, err := svc.Reserve(ctx, eventID, model.Actor{UserID: "alice", Role: model.RoleUser}, 1)
	close(release)
	require.NoError(t, g.Wait())

	require.ErrorIs(t, err, model.ErrBusy)
	assert.True(t, model.IsRetryable(err))
	assert.Zero(t, testutil.ConfirmedQuantity(t, ctx, pool, eventID))
}

func TestCancel_ReleasesSeats(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.TruncateAll(t, ctx, pool)

	svc := service.NewBookingService(
		repository.NewTxManager(pool, repository.Timeouts{}),
		repository.NewEventRepository(pool),
		repository.NewBookingRepository(pool),
		audit.Nop{},
		clock.NewSystem(),
	)
	eventID := testutil.InsertEvent(t, ctx, pool, organizer, 3, time.Now().Add(time.Hour))
	alice := model.Actor{UserID: "alice", Role: model.RoleUser}

	res, err := svc.Reserve(ctx, eventID, alice, 3)
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, eventID, model.Actor{UserID: "bob", Role: model.RoleUser}, 1)
	require.ErrorIs(t, err, model.ErrInsufficientSeats)

	view, err := svc.Cancel(ctx, res.BookingID, alice)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, view.Status)

	_, err = svc.Cancel(ctx, res.BookingID, alice)
	require.ErrorIs(t, err, model.ErrAlreadyCancelled)
	assert.Zero(t, testutil.ConfirmedQuantity(t, ctx, pool, eventID))
}

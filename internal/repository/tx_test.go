package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/Shivanand-hulikatti/event-booking/internal/model"
)

func TestMapErr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		busy bool
	}{
		{"lock timeout", &pgconn.PgError{Code: codeLockNotAvailable}, true},
		{"statement timeout", &pgconn.PgError{Code: codeQueryCanceled}, true},
		{"serialization", &pgconn.PgError{Code: codeSerializationFailure}, true},
		{"deadlock", &pgconn.PgError{Code: codeDeadlockDetected}, true},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapErr(tt.err)
			assert.Equal(t, tt.busy, errors.Is(got, model.ErrBusy))
			assert.ErrorIs(t, got, tt.err)
		})
	}

	assert.NoError(t, mapErr(nil))
}

func TestIsInvalidUUID(t *testing.T) {
	t.Parallel()
	assert.True(t, isInvalidUUID(fmt.Errorf("get: %w", &pgconn.PgError{Code: codeInvalidTextRep})))
	assert.False(t, isInvalidUUID(errors.New("other")))
}

func TestValidID(t *testing.T) {
	t.Parallel()
	assert.True(t, validID("6f1c2a7e-3b0d-4c55-9d1e-2f5a8b7c9e01"))
	assert.False(t, validID("not-a-uuid"))
	assert.False(t, validID(""))
}

func TestPageBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		limit, page         int
		wantLimit, wantSkip int
	}{
		{0, 0, defaultPageSize, 0},
		{25, 3, 25, 50},
		{500, 1, maxPageSize, 0},
		{-1, -4, defaultPageSize, 0},
	}
	for _, tt := range tests {
		limit, offset := pageBounds(tt.limit, tt.page)
		assert.Equal(t, tt.wantLimit, limit)
		assert.Equal(t, tt.wantSkip, offset)
	}
}

func TestMillis(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "1500", millis(1500*time.Millisecond))
}

func TestBookingOrder(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "b.created_at DESC, b.id DESC", bookingOrder("", ""))
	assert.Equal(t, "b.created_at ASC, b.id ASC", bookingOrder(model.SortCreatedAt, model.SortAsc))
	assert.Equal(t, "e.starts_at DESC, b.id DESC", bookingOrder(model.SortStartsAt, model.SortDesc))
	assert.Equal(t, "b.created_at DESC, b.id DESC", bookingOrder("id; DROP TABLE bookings", "sideways"))
}

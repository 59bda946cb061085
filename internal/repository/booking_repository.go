package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/event-booking/internal/model"
)

const bookingColumns = `id, user_id, event_id, quantity, status, unit_price, created_at, updated_at`

// BookingRepository is the booking ledger. Rows are never deleted; only the
// status column changes after insert.
type BookingRepository struct {
	db *pgxpool.Pool
}

// NewBookingRepository constructs a BookingRepository.
func NewBookingRepository(db *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{db: db}
}

// SumQuantity returns the total quantity of the event's bookings in status.
func (r *BookingRepository) SumQuantity(ctx context.Context, eventID string, status model.BookingStatus) (int, error) {
	var total int
	err := conn(ctx, r.db).QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM bookings WHERE event_id = $1 AND status = $2`,
		eventID, status,
	).Scan(&total)
	if err != nil {
		return 0, mapErr(fmt.Errorf("sum event quantity: %w", err))
	}
	return total, nil
}

// SumUserQuantity returns the total quantity a user holds for an event in status.
func (r *BookingRepository) SumUserQuantity(ctx context.Context, eventID, userID string, status model.BookingStatus) (int, error) {
	var total int
	err := conn(ctx, r.db).QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM bookings WHERE event_id = $1 AND user_id = $2 AND status = $3`,
		eventID, userID, status,
	).Scan(&total)
	if err != nil {
		return 0, mapErr(fmt.Errorf("sum user quantity: %w", err))
	}
	return total, nil
}

// SumConfirmedByEvents returns confirmed quantities keyed by event id.
// Events with no confirmed bookings are absent from the map.
func (r *BookingRepository) SumConfirmedByEvents(ctx context.Context, eventIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(eventIDs))
	if len(eventIDs) == 0 {
		return out, nil
	}
	rows, err := conn(ctx, r.db).Query(ctx,
		`SELECT event_id, SUM(quantity) FROM bookings
		 WHERE event_id = ANY($1::uuid[]) AND status = 'confirmed'
		 GROUP BY event_id`,
		eventIDs,
	)
	if err != nil {
		return nil, mapErr(fmt.Errorf("sum confirmed by events: %w", err))
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id    string
			total int
		)
		if err := rows.Scan(&id, &total); err != nil {
			return nil, fmt.Errorf("scan confirmed sum: %w", err)
		}
		out[id] = total
	}
	return out, rows.Err()
}

// Insert writes a new booking row, assigning an id when it has none.
func (r *BookingRepository) Insert(ctx context.Context, b *model.Booking) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	_, err := conn(ctx, r.db).Exec(ctx,
		`INSERT INTO bookings (`+bookingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.UserID, b.EventID, b.Quantity, b.Status, b.UnitPrice, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return mapErr(fmt.Errorf("insert booking: %w", err))
	}
	return nil
}

// UpdateStatus sets the booking status.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id string, status model.BookingStatus) error {
	tag, err := conn(ctx, r.db).Exec(ctx,
		`UPDATE bookings SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return mapErr(fmt.Errorf("update booking status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return model.ErrBookingNotFound
	}
	return nil
}

// Get returns a booking without locking it.
func (r *BookingRepository) Get(ctx context.Context, id string) (model.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

// GetForUpdate returns the booking and locks its row for the rest of the
// enclosing transaction, so two cancellations cannot both observe it as
// confirmed.
func (r *BookingRepository) GetForUpdate(ctx context.Context, id string) (model.Booking, error) {
	if txFromContext(ctx) == nil {
		return model.Booking{}, errors.New("get booking for update: no transaction in context")
	}
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

func (r *BookingRepository) get(ctx context.Context, query, id string) (model.Booking, error) {
	if !validID(id) {
		return model.Booking{}, model.ErrBookingNotFound
	}
	b, err := scanBooking(conn(ctx, r.db).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return model.Booking{}, model.ErrBookingNotFound
		}
		return model.Booking{}, mapErr(fmt.Errorf("get booking: %w", err))
	}
	return b, nil
}

// ListByUser returns one page of the user's bookings with their event
// snapshots, ordered as f asks and newest booking first by default. An empty
// status lists every status.
func (r *BookingRepository) ListByUser(ctx context.Context, userID string, f model.BookingFilter) ([]model.BookingView, error) {
	query := `SELECT b.id, b.user_id, b.quantity, b.status, b.unit_price, b.created_at,
	                 e.id, e.title, e.starts_at, e.location
	          FROM bookings b
	          JOIN events e ON e.id = b.event_id
	          WHERE b.user_id = $1`
	args := []any{userID}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(` AND b.status = $%d`, len(args))
	}
	query += ` ORDER BY ` + bookingOrder(f.Field, f.Order)

	limit, offset := pageBounds(f.Limit, f.Page)
	args = append(args, limit, offset)
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := conn(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr(fmt.Errorf("list bookings: %w", err))
	}
	defer rows.Close()

	var views []model.BookingView
	for rows.Next() {
		var v model.BookingView
		if err := rows.Scan(
			&v.ID, &v.UserID, &v.Quantity, &v.Status, &v.UnitPrice, &v.CreatedAt,
			&v.Event.ID, &v.Event.Title, &v.Event.StartsAt, &v.Event.Location,
		); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		v.Total = v.Quantity * v.UnitPrice
		v.Event.StartsAt = v.Event.StartsAt.UTC()
		views = append(views, v)
	}
	return views, rows.Err()
}

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID, &b.UserID, &b.EventID, &b.Quantity, &b.Status, &b.UnitPrice, &b.CreatedAt, &b.UpdatedAt,
	)
	return b, err
}

// bookingOrder builds the ORDER BY clause from whitelisted values only.
func bookingOrder(field, dir string) string {
	col := "b.created_at"
	if field == model.SortStartsAt {
		col = "e.starts_at"
	}
	d := "DESC"
	if dir == model.SortAsc {
		d = "ASC"
	}
	return fmt.Sprintf("%s %s, b.id %s", col, d, d)
}

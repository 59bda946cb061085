package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/event-booking/internal/model"
)

const eventColumns = `id, organizer_id, title, description, starts_at, location, capacity, category, status, created_at, updated_at`

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// EventRepository handles persistence for events.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts e, assigning an id when it has none.
func (r *EventRepository) Create(ctx context.Context, e *model.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := conn(ctx, r.db).Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.OrganizerID, e.Title, e.Description, e.StartsAt, e.Location,
		e.Capacity, e.Category, e.Status, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return mapErr(fmt.Errorf("insert event: %w", err))
	}
	return nil
}

// Get returns a single event without locking it.
func (r *EventRepository) Get(ctx context.Context, id string) (model.Event, error) {
	return r.get(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
}

// GetForUpdate returns the event and holds an exclusive row lock on it until
// the enclosing transaction ends. Concurrent callers for the same event
// block here. It must be called inside WithTx.
func (r *EventRepository) GetForUpdate(ctx context.Context, id string) (model.Event, error) {
	if txFromContext(ctx) == nil {
		return model.Event{}, errors.New("get event for update: no transaction in context")
	}
	return r.get(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id)
}

func (r *EventRepository) get(ctx context.Context, query, id string) (model.Event, error) {
	if !validID(id) {
		return model.Event{}, model.ErrEventNotFound
	}
	e, err := scanEvent(conn(ctx, r.db).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return model.Event{}, model.ErrEventNotFound
		}
		return model.Event{}, mapErr(fmt.Errorf("get event: %w", err))
	}
	return e, nil
}

// UpdateStatus sets the event status.
func (r *EventRepository) UpdateStatus(ctx context.Context, id string, status model.EventStatus) error {
	tag, err := conn(ctx, r.db).Exec(ctx,
		`UPDATE events SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return mapErr(fmt.Errorf("update event status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return model.ErrEventNotFound
	}
	return nil
}

// Update writes every mutable column of e. The caller is expected to hold
// the row lock from GetForUpdate.
func (r *EventRepository) Update(ctx context.Context, e *model.Event) error {
	tag, err := conn(ctx, r.db).Exec(ctx,
		`UPDATE events
		 SET title = $2, description = $3, starts_at = $4, location = $5,
		     capacity = $6, category = $7, status = $8, updated_at = $9
		 WHERE id = $1`,
		e.ID, e.Title, e.Description, e.StartsAt, e.Location,
		e.Capacity, e.Category, e.Status, e.UpdatedAt,
	)
	if err != nil {
		return mapErr(fmt.Errorf("update event: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return model.ErrEventNotFound
	}
	return nil
}

// ListPublished returns published events matching f ordered by start time.
func (r *EventRepository) ListPublished(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	f.Status = model.EventStatusPublished
	return r.list(ctx, "", f, `starts_at ASC, id ASC`)
}

// ListByOrganizer returns the organizer's events in any status, latest start
// first. An empty organizerID lists every organizer's events.
func (r *EventRepository) ListByOrganizer(ctx context.Context, organizerID string, f model.EventFilter) ([]model.Event, error) {
	return r.list(ctx, organizerID, f, `starts_at DESC, id DESC`)
}

func (r *EventRepository) list(ctx context.Context, organizerID string, f model.EventFilter, order string) ([]model.Event, error) {
	var (
		where = []string{`TRUE`}
		args  []any
	)
	if organizerID != "" {
		args = append(args, organizerID)
		where = append(where, fmt.Sprintf(`organizer_id = $%d`, len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf(`status = $%d`, len(args)))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf(`(title ILIKE $%d OR description ILIKE $%d)`, len(args), len(args)))
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		args = append(args, c)
		where = append(where, fmt.Sprintf(`category = $%d`, len(args)))
	}
	if l := strings.TrimSpace(f.Location); l != "" {
		args = append(args, "%"+l+"%")
		where = append(where, fmt.Sprintf(`location ILIKE $%d`, len(args)))
	}

	limit, offset := pageBounds(f.Limit, f.Page)
	args = append(args, limit, offset)
	query := fmt.Sprintf(
		`SELECT %s FROM events WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		eventColumns, strings.Join(where, " AND "), order, len(args)-1, len(args),
	)

	rows, err := conn(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, mapErr(fmt.Errorf("list events: %w", err))
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func pageBounds(limit, page int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}

func scanEvent(row pgx.Row) (model.Event, error) {
	var e model.Event
	err := row.Scan(
		&e.ID, &e.OrganizerID, &e.Title, &e.Description, &e.StartsAt, &e.Location,
		&e.Capacity, &e.Category, &e.Status, &e.CreatedAt, &e.UpdatedAt,
	)
	e.StartsAt = e.StartsAt.UTC()
	return e, err
}

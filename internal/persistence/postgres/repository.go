// Package postgres provides the pgx-backed Store used in production.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/playtime/internal/domain"
	"example.com/playtime/internal/events"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Repository provides Postgres-backed persistence for the activity catalog,
// live sessions, playtime totals, and the event outbox. It implements
// domain.Store.
type Repository struct {
	pool   *pgxpool.Pool
	maxAge time.Duration
}

// NewRepository constructs a Repository. maxAge caps session durations when
// positive; zero disables the cap.
func NewRepository(pool *pgxpool.Pool, maxAge time.Duration) *Repository {
	return &Repository{pool: pool, maxAge: maxAge}
}

// EnsureActivity returns the identifier for name, inserting the activity on
// first sight. The upsert keeps concurrent callers from creating duplicate
// rows; the loser of a race reads back the winner's id.
func (r *Repository) EnsureActivity(ctx context.Context, name string) (int64, error) {
	const query = `INSERT INTO activities (name) VALUES ($1)
        ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
        RETURNING activity_id`

	var id int64
	if err := r.pool.QueryRow(ctx, query, name).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// LiveSession returns the user's live session, or nil when there is none.
func (r *Repository) LiveSession(ctx context.Context, userID int64) (*domain.Session, error) {
	const query = `SELECT activity_id, started_at FROM sessions WHERE user_id=$1`

	sess := domain.Session{UserID: userID}
	err := r.pool.QueryRow(ctx, query, userID).Scan(&sess.ActivityID, &sess.StartedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

// OpenSession inserts a live session and records a session.started outbox
// event in the same transaction.
func (r *Repository) OpenSession(ctx context.Context, userID, activityID int64, startedAt time.Time) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const insert = `INSERT INTO sessions (user_id, activity_id, started_at) VALUES ($1,$2,$3)`
	if _, err = tx.Exec(ctx, insert, userID, activityID, startedAt.UTC()); err != nil {
		return mapConstraintError(err)
	}

	if err = insertOutbox(ctx, tx, events.TypeSessionStarted, userID, events.SessionStarted{
		UserID:     userID,
		ActivityID: activityID,
		StartedAt:  startedAt.UTC(),
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FinishSession atomically removes the user's live session, folds the
// clamped elapsed duration into the playtime totals, and records a
// playtime.recorded outbox event, all in one transaction. Returns nil when
// the user has no live session.
func (r *Repository) FinishSession(ctx context.Context, userID int64, observedAt time.Time) (finished *domain.FinishedSession, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const remove = `DELETE FROM sessions WHERE user_id=$1 RETURNING activity_id, started_at`

	var activityID int64
	var startedAt time.Time
	if err = tx.QueryRow(ctx, remove, userID).Scan(&activityID, &startedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = tx.Commit(ctx)
			return nil, err
		}
		return nil, err
	}

	seconds, clamped := domain.ClampElapsed(startedAt, observedAt, r.maxAge)

	if err = addPlaytimeTx(ctx, tx, userID, activityID, seconds); err != nil {
		return nil, err
	}

	if err = insertOutbox(ctx, tx, events.TypePlaytimeRecorded, userID, events.PlaytimeRecorded{
		UserID:     userID,
		ActivityID: activityID,
		Seconds:    seconds,
		StartedAt:  startedAt.UTC(),
		ObservedAt: observedAt.UTC(),
		Clamped:    clamped,
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &domain.FinishedSession{
		ActivityID: activityID,
		StartedAt:  startedAt,
		Seconds:    seconds,
		Clamped:    clamped,
	}, nil
}

// AddPlaytime upserts the (user, activity) entry, incrementing it by seconds.
func (r *Repository) AddPlaytime(ctx context.Context, userID, activityID, seconds int64) error {
	if seconds < 0 {
		return domain.ErrNegativeDuration
	}

	const upsert = `INSERT INTO playtime (user_id, activity_id, total_seconds) VALUES ($1,$2,$3)
        ON CONFLICT (user_id, activity_id) DO UPDATE SET total_seconds = playtime.total_seconds + EXCLUDED.total_seconds`

	if _, err := r.pool.Exec(ctx, upsert, userID, activityID, seconds); err != nil {
		return mapConstraintError(err)
	}
	return nil
}

func addPlaytimeTx(ctx context.Context, tx pgx.Tx, userID, activityID, seconds int64) error {
	if seconds < 0 {
		return domain.ErrNegativeDuration
	}

	const upsert = `INSERT INTO playtime (user_id, activity_id, total_seconds) VALUES ($1,$2,$3)
        ON CONFLICT (user_id, activity_id) DO UPDATE SET total_seconds = playtime.total_seconds + EXCLUDED.total_seconds`

	_, err := tx.Exec(ctx, upsert, userID, activityID, seconds)
	return err
}

// TopEntries returns up to limit entries for the user sorted by total
// seconds descending, ties broken by activity name ascending.
func (r *Repository) TopEntries(ctx context.Context, userID int64, limit int) ([]domain.SummaryEntry, error) {
	const query = `SELECT a.name, p.total_seconds
        FROM playtime p
        JOIN activities a ON a.activity_id = p.activity_id
        WHERE p.user_id=$1
        ORDER BY p.total_seconds DESC, a.name ASC
        LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.SummaryEntry, 0, limit)
	for rows.Next() {
		var entry domain.SummaryEntry
		if err := rows.Scan(&entry.Activity, &entry.TotalSeconds); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ClearSessions removes every live session.
func (r *Repository) ClearSessions(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions`)
	return err
}

// ClearUserSession removes the user's live session, if any.
func (r *Repository) ClearUserSession(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id=$1`, userID)
	return err
}

// ClearPlaytime removes every playtime entry.
func (r *Repository) ClearPlaytime(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM playtime`)
	return err
}

// ClearUserPlaytime removes the user's playtime entries.
func (r *Repository) ClearUserPlaytime(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM playtime WHERE user_id=$1`, userID)
	return err
}

// HardReset drops and recreates the entire schema.
func (r *Repository) HardReset(ctx context.Context) error {
	return rebuildSchema(ctx, r.pool)
}

func insertOutbox(ctx context.Context, tx pgx.Tx, eventType string, userID int64, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5)`

	_, err = tx.Exec(ctx, stmt,
		eventType,
		meta.Topic,
		fmt.Sprintf("%d", userID),
		body,
		uuid.NewString(),
	)
	return err
}

func mapConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return domain.ErrSessionConflict
		case foreignKeyViolation:
			return domain.ErrActivityNotFound
		}
	}
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeSessionStarted:   {Topic: "playtime_events"},
	events.TypePlaytimeRecorded: {Topic: "playtime_events"},
}

// Package domain defines the business logic for the playtime service.
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSessionConflict indicates a live session already exists for the user.
	ErrSessionConflict = errors.New("live session already exists for user")
	// ErrNegativeDuration is returned when a playtime increment is negative.
	ErrNegativeDuration = errors.New("playtime increment must not be negative")
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
)

// ActivityStatus describes what a user is currently playing.
type ActivityStatus struct {
	Name      string
	StartedAt time.Time
}

// PresenceSignal is the inbound notification that a user's presence changed.
// A nil Activity means the user stopped playing. ObservedAt is the wall-clock
// time the signal was observed; the zero value means "now".
type PresenceSignal struct {
	UserID     int64
	Activity   *ActivityStatus
	ObservedAt time.Time
}

// Session is the at-most-one live session a user can hold.
type Session struct {
	UserID     int64
	ActivityID int64
	StartedAt  time.Time
}

// FinishedSession reports the outcome of closing a live session and folding
// its elapsed duration into the playtime totals.
type FinishedSession struct {
	ActivityID int64
	StartedAt  time.Time
	Seconds    int64
	Clamped    bool
}

// SummaryEntry is one row of a playtime summary.
type SummaryEntry struct {
	Activity     string
	TotalSeconds int64
}

// Catalog maps activity names to stable identifiers, creating entries on
// first sight. EnsureActivity is safe to call concurrently for the same
// name; the unique constraint on the name is the source of truth.
type Catalog interface {
	EnsureActivity(ctx context.Context, name string) (int64, error)
}

// SessionStore holds at most one live session per user.
type SessionStore interface {
	LiveSession(ctx context.Context, userID int64) (*Session, error)
	// OpenSession inserts a live session. It fails with ErrSessionConflict
	// when the user already has one.
	OpenSession(ctx context.Context, userID, activityID int64, startedAt time.Time) error
	// FinishSession atomically removes the user's live session and adds its
	// clamped elapsed duration to the playtime totals in a single storage
	// transaction. It returns nil when the user has no live session.
	FinishSession(ctx context.Context, userID int64, observedAt time.Time) (*FinishedSession, error)
	ClearSessions(ctx context.Context) error
	ClearUserSession(ctx context.Context, userID int64) error
}

// PlaytimeStore accumulates completed session durations per (user, activity).
type PlaytimeStore interface {
	// AddPlaytime upserts the (user, activity) entry, incrementing it by
	// seconds. Negative values are rejected with ErrNegativeDuration
	// without mutating state.
	AddPlaytime(ctx context.Context, userID, activityID, seconds int64) error
	// TopEntries returns up to limit entries sorted by total seconds
	// descending, ties broken by activity name ascending.
	TopEntries(ctx context.Context, userID int64, limit int) ([]SummaryEntry, error)
	ClearPlaytime(ctx context.Context) error
	ClearUserPlaytime(ctx context.Context, userID int64) error
}

// Store is the full persistence surface required by the Tracker.
type Store interface {
	Catalog
	SessionStore
	PlaytimeStore
	// HardReset drops and recreates the backing schema, including the
	// activity catalog.
	HardReset(ctx context.Context) error
}

// ClampElapsed computes the whole seconds between startedAt and observedAt.
// Negative results (clock skew, corrupted start time) clamp to zero. When
// maxAge > 0, durations beyond it cap at maxAge; zero maxAge disables the
// cap and treats arbitrarily long sessions as valid.
func ClampElapsed(startedAt, observedAt time.Time, maxAge time.Duration) (seconds int64, clamped bool) {
	elapsed := observedAt.Sub(startedAt)
	if elapsed < 0 {
		return 0, true
	}
	if maxAge > 0 && elapsed > maxAge {
		return int64(maxAge / time.Second), true
	}
	return int64(elapsed / time.Second), false
}

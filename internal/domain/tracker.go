package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"example.com/playtime/internal/observability"
)

const (
	// DefaultSummaryLimit is applied when a summary request carries no limit.
	DefaultSummaryLimit = 10
	// MaxSummaryLimit bounds the number of entries a summary may return.
	MaxSummaryLimit = 50
)

// lockStripes bounds the number of per-user mutexes held by a Tracker.
const lockStripes = 64

// Tracker drives the session state machine: given a presence signal it
// decides whether to open, ignore, or close a session, and folds finished
// sessions into the playtime totals. Signals for the same user are applied
// in arrival order; signals for different users run concurrently.
type Tracker struct {
	store  Store
	logger *log.Logger
	now    func() time.Time
	locks  [lockStripes]sync.Mutex
}

// TrackerOption configures optional behaviour for the Tracker.
type TrackerOption func(*Tracker)

// WithLogger overrides the logger used to report clamped durations.
func WithLogger(logger *log.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithClock overrides the wall clock, used by tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker constructs a Tracker backed by the provided store.
func NewTracker(store Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		store:  store,
		logger: log.New(log.Writer(), "[tracker] ", log.LstdFlags),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) userLock(userID int64) *sync.Mutex {
	return &t.locks[uint64(userID)%lockStripes]
}

// HandlePresence applies one presence signal. Every sub-step is idempotent
// or at-most-once against the store's row constraints, so the same signal
// can be retried safely after a storage failure.
func (t *Tracker) HandlePresence(ctx context.Context, sig PresenceSignal) error {
	observed := sig.ObservedAt
	if observed.IsZero() {
		observed = t.now()
	}

	mu := t.userLock(sig.UserID)
	mu.Lock()
	defer mu.Unlock()

	if sig.Activity == nil {
		return t.finish(ctx, sig.UserID, observed)
	}

	activityID, err := t.store.EnsureActivity(ctx, sig.Activity.Name)
	if err != nil {
		return fmt.Errorf("ensure activity %q: %w", sig.Activity.Name, err)
	}

	live, err := t.store.LiveSession(ctx, sig.UserID)
	if err != nil {
		return fmt.Errorf("load live session: %w", err)
	}

	start := sig.Activity.StartedAt.UTC()
	if live != nil {
		if live.ActivityID == activityID && live.StartedAt.Equal(start) {
			// Repeated signal for the session we already track.
			return nil
		}
		if err := t.finish(ctx, sig.UserID, observed); err != nil {
			return err
		}
	}

	if err := t.store.OpenSession(ctx, sig.UserID, activityID, start); err != nil {
		if !errors.Is(err, ErrSessionConflict) {
			return fmt.Errorf("open session: %w", err)
		}
		// Lost a race against another writer: close whatever landed in
		// the slot and try once more.
		if err := t.finish(ctx, sig.UserID, observed); err != nil {
			return err
		}
		if err := t.store.OpenSession(ctx, sig.UserID, activityID, start); err != nil {
			return fmt.Errorf("open session: %w", err)
		}
	}

	observability.RecordSessionOpened(start)
	return nil
}

func (t *Tracker) finish(ctx context.Context, userID int64, observed time.Time) error {
	finished, err := t.store.FinishSession(ctx, userID, observed)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if finished == nil {
		return nil
	}
	if finished.Clamped {
		t.logger.Printf("clamped session duration (user=%d, activity=%d, started_at=%s, observed_at=%s)",
			userID, finished.ActivityID, finished.StartedAt.Format(time.RFC3339), observed.Format(time.RFC3339))
		observability.RecordDurationClamped()
	}
	observability.RecordSessionReconciled(observed)
	return nil
}

// Summary returns up to limit playtime entries for the user, most played
// first. A non-positive limit falls back to DefaultSummaryLimit.
func (t *Tracker) Summary(ctx context.Context, userID int64, limit int) ([]SummaryEntry, error) {
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}
	if limit > MaxSummaryLimit {
		limit = MaxSummaryLimit
	}
	return t.store.TopEntries(ctx, userID, limit)
}

// ResetUser clears the user's live session and playtime entries. The
// activity catalog is untouched.
func (t *Tracker) ResetUser(ctx context.Context, userID int64) error {
	mu := t.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	if err := t.store.ClearUserSession(ctx, userID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if err := t.store.ClearUserPlaytime(ctx, userID); err != nil {
		return fmt.Errorf("clear playtime: %w", err)
	}
	return nil
}

// ResetAll clears all live sessions and playtime entries. The activity
// catalog is untouched. The two deletes are individually atomic but not
// transactional across tables.
func (t *Tracker) ResetAll(ctx context.Context) error {
	if err := t.store.ClearSessions(ctx); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	if err := t.store.ClearPlaytime(ctx); err != nil {
		return fmt.Errorf("clear playtime: %w", err)
	}
	return nil
}

// HardReset destroys and recreates the entire schema, catalog included.
func (t *Tracker) HardReset(ctx context.Context) error {
	if err := t.store.HardReset(ctx); err != nil {
		return fmt.Errorf("hard reset: %w", err)
	}
	return nil
}

// Package memory provides an in-memory Store for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/playtime/internal/domain"
)

// Store keeps all tracker state in process memory. It implements
// domain.Store and mirrors the row constraints of the Postgres schema:
// activity names are unique and a user holds at most one live session.
type Store struct {
	mu         sync.RWMutex
	maxAge     time.Duration
	nextID     int64
	activities map[string]int64
	names      map[int64]string
	sessions   map[int64]domain.Session
	playtime   map[playtimeKey]int64
}

type playtimeKey struct {
	userID     int64
	activityID int64
}

// New constructs an empty Store. maxAge caps session durations when
// positive; zero disables the cap.
func New(maxAge time.Duration) *Store {
	s := &Store{maxAge: maxAge}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.activities = make(map[string]int64)
	s.names = make(map[int64]string)
	s.sessions = make(map[int64]domain.Session)
	s.playtime = make(map[playtimeKey]int64)
	s.nextID = 0
}

// EnsureActivity returns the identifier for name, creating the activity on
// first sight.
func (s *Store) EnsureActivity(_ context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.activities[name]; ok {
		return id, nil
	}
	s.nextID++
	s.activities[name] = s.nextID
	s.names[s.nextID] = name
	return s.nextID, nil
}

// LiveSession returns the user's live session, or nil when there is none.
func (s *Store) LiveSession(_ context.Context, userID int64) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return nil, nil
	}
	out := sess
	return &out, nil
}

// OpenSession inserts a live session for the user.
func (s *Store) OpenSession(_ context.Context, userID, activityID int64, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.names[activityID]; !ok {
		return domain.ErrActivityNotFound
	}
	if _, ok := s.sessions[userID]; ok {
		return domain.ErrSessionConflict
	}
	s.sessions[userID] = domain.Session{UserID: userID, ActivityID: activityID, StartedAt: startedAt.UTC()}
	return nil
}

// FinishSession removes the user's live session and folds its clamped
// elapsed duration into the playtime totals under a single lock hold.
func (s *Store) FinishSession(_ context.Context, userID int64, observedAt time.Time) (*domain.FinishedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return nil, nil
	}
	delete(s.sessions, userID)

	seconds, clamped := domain.ClampElapsed(sess.StartedAt, observedAt, s.maxAge)
	s.playtime[playtimeKey{userID: userID, activityID: sess.ActivityID}] += seconds

	return &domain.FinishedSession{
		ActivityID: sess.ActivityID,
		StartedAt:  sess.StartedAt,
		Seconds:    seconds,
		Clamped:    clamped,
	}, nil
}

// AddPlaytime upserts the (user, activity) entry, incrementing it by seconds.
func (s *Store) AddPlaytime(_ context.Context, userID, activityID, seconds int64) error {
	if seconds < 0 {
		return domain.ErrNegativeDuration
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.names[activityID]; !ok {
		return domain.ErrActivityNotFound
	}
	s.playtime[playtimeKey{userID: userID, activityID: activityID}] += seconds
	return nil
}

// TopEntries returns up to limit entries for the user sorted by total
// seconds descending, ties broken by activity name ascending.
func (s *Store) TopEntries(_ context.Context, userID int64, limit int) ([]domain.SummaryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.SummaryEntry, 0)
	for key, total := range s.playtime {
		if key.userID != userID {
			continue
		}
		entries = append(entries, domain.SummaryEntry{Activity: s.names[key.activityID], TotalSeconds: total})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalSeconds != entries[j].TotalSeconds {
			return entries[i].TotalSeconds > entries[j].TotalSeconds
		}
		return entries[i].Activity < entries[j].Activity
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// ClearSessions removes every live session.
func (s *Store) ClearSessions(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[int64]domain.Session)
	return nil
}

// ClearUserSession removes the user's live session, if any.
func (s *Store) ClearUserSession(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, userID)
	return nil
}

// ClearPlaytime removes every playtime entry.
func (s *Store) ClearPlaytime(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.playtime = make(map[playtimeKey]int64)
	return nil
}

// ClearUserPlaytime removes the user's playtime entries.
func (s *Store) ClearUserPlaytime(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.playtime {
		if key.userID == userID {
			delete(s.playtime, key)
		}
	}
	return nil
}

// HardReset drops all state, the activity catalog included.
func (s *Store) HardReset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	return nil
}

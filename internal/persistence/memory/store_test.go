package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/playtime/internal/domain"
)

func TestEnsureActivityReturnsStableID(t *testing.T) {
	ctx := context.Background()
	store := New(0)

	first, err := store.EnsureActivity(ctx, "Chess")
	require.NoError(t, err)

	second, err := store.EnsureActivity(ctx, "Chess")
	require.NoError(t, err)
	require.Equal(t, first, second)

	other, err := store.EnsureActivity(ctx, "Go")
	require.NoError(t, err)
	require.NotEqual(t, first, other)
}

func TestOpenSessionConflict(t *testing.T) {
	ctx := context.Background()
	store := New(0)

	id, err := store.EnsureActivity(ctx, "Chess")
	require.NoError(t, err)

	start := time.Unix(1000, 0).UTC()
	require.NoError(t, store.OpenSession(ctx, 1, id, start))

	err = store.OpenSession(ctx, 1, id, start.Add(time.Minute))
	require.ErrorIs(t, err, domain.ErrSessionConflict)
}

func TestOpenSessionRequiresActivity(t *testing.T) {
	ctx := context.Background()
	store := New(0)

	err := store.OpenSession(ctx, 1, 99, time.Unix(1000, 0))
	require.ErrorIs(t, err, domain.ErrActivityNotFound)
}

func TestFinishSessionAtMostOnce(t *testing.T) {
	ctx := context.Background()
	store := New(0)

	id, err := store.EnsureActivity(ctx, "Chess")
	require.NoError(t, err)

	start := time.Unix(1000, 0).UTC()
	require.NoError(t, store.OpenSession(ctx, 1, id, start))

	finished, err := store.FinishSession(ctx, 1, start.Add(30*time.Second))
	require.NoError(t, err)
	require.NotNil(t, finished)
	require.EqualValues(t, 30, finished.Seconds)
	require.False(t, finished.Clamped)

	again, err := store.FinishSession(ctx, 1, start.Add(time.Minute))
	require.NoError(t, err)
	require.Nil(t, again, "second finish must not return the session again")

	entries, err := store.TopEntries(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.EqualValues(t, 30, entries[0].TotalSeconds)
}

func TestFinishSessionClampsNegativeElapsed(t *testing.T) {
	ctx := context.Background()
	store := New(0)

	id, err := store.EnsureActivity(ctx, "Chess")
	require.NoError(t, err)

	start := time.Unix(5000, 0).UTC()
	require.NoError(t, store.OpenSession(ctx, 1, id, start))

	finished, err := store.FinishSession(ctx, 1, time.Unix(4000, 0).UTC())
	require.NoError(t, err)
	require.NotNil(t, finished)
	require.EqualValues(t, 0, finished.Seconds)
	require.True(t, finished.Clamped)
}

func TestAddPlaytimeRejectsNegative(t *testing.T) {
	ctx := context.Background()
	store := New(0)

	id, err := store.EnsureActivity(ctx, "Chess")
	require.NoError(t, err)

	require.NoError(t, store.AddPlaytime(ctx, 1, id, 10))

	err = store.AddPlaytime(ctx, 1, id, -5)
	require.ErrorIs(t, err, domain.ErrNegativeDuration)

	entries, err := store.TopEntries(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.EqualValues(t, 10, entries[0].TotalSeconds, "rejected increment must not mutate totals")
}

func TestTopEntriesOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	store := New(0)

	chess, err := store.EnsureActivity(ctx, "Chess")
	require.NoError(t, err)
	goID, err := store.EnsureActivity(ctx, "Go")
	require.NoError(t, err)
	shogi, err := store.EnsureActivity(ctx, "Shogi")
	require.NoError(t, err)

	require.NoError(t, store.AddPlaytime(ctx, 1, chess, 100))
	require.NoError(t, store.AddPlaytime(ctx, 1, goID, 300))
	require.NoError(t, store.AddPlaytime(ctx, 1, shogi, 100))

	entries, err := store.TopEntries(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "Go", entries[0].Activity)
	// Ties broken by name ascending.
	require.Equal(t, "Chess", entries[1].Activity)
	require.Equal(t, "Shogi", entries[2].Activity)

	entries, err = store.TopEntries(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestClearUserPlaytimeIsolation(t *testing.T) {
	ctx := context.Background()
	store := New(0)

	id, err := store.EnsureActivity(ctx, "Chess")
	require.NoError(t, err)

	require.NoError(t, store.AddPlaytime(ctx, 1, id, 100))
	require.NoError(t, store.AddPlaytime(ctx, 2, id, 200))

	require.NoError(t, store.ClearUserPlaytime(ctx, 1))

	entries, err := store.TopEntries(ctx, 1, 10)
	require.NoError(t, err)
	require.Empty(t, entries)

	entries, err = store.TopEntries(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.EqualValues(t, 200, entries[0].TotalSeconds)
}

func TestHardResetDropsCatalog(t *testing.T) {
	ctx := context.Background()
	store := New(0)

	id, err := store.EnsureActivity(ctx, "Chess")
	require.NoError(t, err)
	require.NoError(t, store.AddPlaytime(ctx, 1, id, 100))

	require.NoError(t, store.HardReset(ctx))

	entries, err := store.TopEntries(ctx, 1, 10)
	require.NoError(t, err)
	require.Empty(t, entries)

	// Stale activity ids are no longer valid after the rebuild.
	err = store.OpenSession(ctx, 1, id, time.Unix(1000, 0))
	require.ErrorIs(t, err, domain.ErrActivityNotFound)
}

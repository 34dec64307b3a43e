//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/playtime/internal/domain"
)

func startDatabase(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("playtime"),
		postgrescontainer.WithUsername("playtime"),
		postgrescontainer.WithPassword("playtime"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	require.NoError(t, EnsureSchema(ctx, pool))
	return pool
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}

func TestRepositorySessionLifecycle(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool, 0)

	id, err := repo.EnsureActivity(ctx, "Chess")
	require.NoError(t, err)

	again, err := repo.EnsureActivity(ctx, "Chess")
	require.NoError(t, err)
	require.Equal(t, id, again)

	start := time.Unix(1000, 0).UTC()
	require.NoError(t, repo.OpenSession(ctx, 42, id, start))

	live, err := repo.LiveSession(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, live)
	require.Equal(t, id, live.ActivityID)
	require.True(t, live.StartedAt.Equal(start))

	err = repo.OpenSession(ctx, 42, id, start.Add(time.Minute))
	require.ErrorIs(t, err, domain.ErrSessionConflict)

	finished, err := repo.FinishSession(ctx, 42, start.Add(50*time.Second))
	require.NoError(t, err)
	require.NotNil(t, finished)
	require.EqualValues(t, 50, finished.Seconds)
	require.False(t, finished.Clamped)

	live, err = repo.LiveSession(ctx, 42)
	require.NoError(t, err)
	require.Nil(t, live)

	again2, err := repo.FinishSession(ctx, 42, start.Add(time.Hour))
	require.NoError(t, err)
	require.Nil(t, again2)

	entries, err := repo.TopEntries(ctx, 42, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "Chess", entries[0].Activity)
	require.EqualValues(t, 50, entries[0].TotalSeconds)
}

func TestRepositoryOpenSessionRequiresActivity(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool, 0)

	err := repo.OpenSession(ctx, 1, 9999, time.Unix(1000, 0).UTC())
	require.ErrorIs(t, err, domain.ErrActivityNotFound)
}

func TestRepositoryAccumulatesAcrossSessions(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool, 0)

	id, err := repo.EnsureActivity(ctx, "Chess")
	require.NoError(t, err)

	first := time.Unix(1000, 0).UTC()
	require.NoError(t, repo.OpenSession(ctx, 42, id, first))
	_, err = repo.FinishSession(ctx, 42, first.Add(50*time.Second))
	require.NoError(t, err)

	second := time.Unix(2000, 0).UTC()
	require.NoError(t, repo.OpenSession(ctx, 42, id, second))
	_, err = repo.FinishSession(ctx, 42, second.Add(30*time.Second))
	require.NoError(t, err)

	entries, err := repo.TopEntries(ctx, 42, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.EqualValues(t, 80, entries[0].TotalSeconds)
}

func TestRepositoryClampsElapsed(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool, time.Hour)

	id, err := repo.EnsureActivity(ctx, "Chess")
	require.NoError(t, err)

	start := time.Unix(0, 0).UTC()
	require.NoError(t, repo.OpenSession(ctx, 3, id, start))

	finished, err := repo.FinishSession(ctx, 3, start.Add(5*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, finished)
	require.EqualValues(t, 3600, finished.Seconds)
	require.True(t, finished.Clamped)
}

func TestRepositoryTopEntriesOrder(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool, 0)

	chess, err := repo.EnsureActivity(ctx, "Chess")
	require.NoError(t, err)
	goID, err := repo.EnsureActivity(ctx, "Go")
	require.NoError(t, err)
	shogi, err := repo.EnsureActivity(ctx, "Shogi")
	require.NoError(t, err)

	require.NoError(t, repo.AddPlaytime(ctx, 1, chess, 100))
	require.NoError(t, repo.AddPlaytime(ctx, 1, goID, 300))
	require.NoError(t, repo.AddPlaytime(ctx, 1, shogi, 100))

	entries, err := repo.TopEntries(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "Go", entries[0].Activity)
	require.Equal(t, "Chess", entries[1].Activity)
	require.Equal(t, "Shogi", entries[2].Activity)

	entries, err = repo.TopEntries(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestRepositoryClearUserPlaytimeIsolation(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool, 0)

	id, err := repo.EnsureActivity(ctx, "Chess")
	require.NoError(t, err)

	require.NoError(t, repo.AddPlaytime(ctx, 1, id, 100))
	require.NoError(t, repo.AddPlaytime(ctx, 2, id, 200))

	require.NoError(t, repo.ClearUserPlaytime(ctx, 1))

	entries, err := repo.TopEntries(ctx, 1, 10)
	require.NoError(t, err)
	require.Empty(t, entries)

	entries, err = repo.TopEntries(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRepositoryWritesOutboxRows(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool, 0)

	id, err := repo.EnsureActivity(ctx, "Chess")
	require.NoError(t, err)

	start := time.Unix(1000, 0).UTC()
	require.NoError(t, repo.OpenSession(ctx, 42, id, start))
	_, err = repo.FinishSession(ctx, 42, start.Add(50*time.Second))
	require.NoError(t, err)

	rows, err := pool.Query(ctx,
		`SELECT event_type, topic, partition_key FROM outbox WHERE published_at IS NULL ORDER BY event_id`)
	require.NoError(t, err)
	defer rows.Close()

	type outboxRow struct {
		eventType    string
		topic        string
		partitionKey string
	}
	var collected []outboxRow
	for rows.Next() {
		var row outboxRow
		require.NoError(t, rows.Scan(&row.eventType, &row.topic, &row.partitionKey))
		collected = append(collected, row)
	}
	require.NoError(t, rows.Err())

	require.Len(t, collected, 2)
	require.Equal(t, "session.started", collected[0].eventType)
	require.Equal(t, "playtime.recorded", collected[1].eventType)
	for _, row := range collected {
		require.Equal(t, "playtime_events", row.topic)
		require.Equal(t, "42", row.partitionKey)
	}
}

func TestRepositoryHardResetRebuildsSchema(t *testing.T) {
	ctx := context.Background()
	pool := startDatabase(t, ctx)
	repo := NewRepository(pool, 0)

	id, err := repo.EnsureActivity(ctx, "Chess")
	require.NoError(t, err)
	require.NoError(t, repo.AddPlaytime(ctx, 1, id, 100))

	require.NoError(t, repo.HardReset(ctx))

	entries, err := repo.TopEntries(ctx, 1, 10)
	require.NoError(t, err)
	require.Empty(t, entries)

	fresh, err := repo.EnsureActivity(ctx, "Chess")
	require.NoError(t, err)
	require.NoError(t, repo.OpenSession(ctx, 1, fresh, time.Unix(1000, 0).UTC()))
}

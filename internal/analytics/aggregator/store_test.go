package aggregator

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/postgres"
)

const sqliteSchema = `CREATE TABLE location_search_snapshots (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    data        TEXT NOT NULL,
    captured_at TIMESTAMP NOT NULL
)`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	client := postgres.Wrap(db)
	require.NoError(t, client.Migrate(context.Background(), sqliteSchema))
	return NewStore(client)
}

func TestSnapshotsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	ctx := context.Background()

	latest, err := store.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, store.SaveSnapshot(ctx, analytics.AggregatedStats{TotalLookups: 1}))
	require.NoError(t, store.SaveSnapshot(ctx, analytics.AggregatedStats{TotalLookups: 7}))

	latest, err = store.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(7), latest.Stats.TotalLookups)

	all, err := store.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(1), all[1].Stats.TotalLookups)
}

func TestCorruptSnapshotSkipped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.db.DB.ExecContext(ctx,
		`INSERT INTO location_search_snapshots (data, captured_at) VALUES ($1, $2)`,
		"{broken", time.Now().UTC())
	require.NoError(t, err)

	all, err := store.ListSnapshots(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, all)
}

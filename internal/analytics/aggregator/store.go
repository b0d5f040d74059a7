// Package aggregator persists periodic snapshots of the lookup statistics.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/postgres"
)

// Schema creates the snapshot table on PostgreSQL.
const Schema = `CREATE TABLE IF NOT EXISTS location_search_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    data        JSONB NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Snapshot is one persisted statistics capture.
type Snapshot = analytics.Snapshot

var _ analytics.SnapshotLister = (*Store)(nil)

type Store struct {
	db     *postgres.Client
	now    func() time.Time
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default().With("component", "analytics-store"),
	}
}

func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}

	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO location_search_snapshots (data, captured_at) VALUES ($1, $2)`,
		string(data), s.now(),
	)
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}

	s.logger.Info("analytics snapshot saved",
		"total_lookups", stats.TotalLookups,
		"zero_results", stats.ZeroResultCount,
	)
	return nil
}

// LatestSnapshot returns nil, nil when nothing has been saved yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	snapshots, err := s.ListSnapshots(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, nil
	}
	return &snapshots[0], nil
}

// ListSnapshots returns up to limit snapshots, newest first. Rows whose
// payload no longer decodes are skipped.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data, captured_at FROM location_search_snapshots ORDER BY captured_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]Snapshot, 0, limit)
	for rows.Next() {
		var (
			data       []byte
			capturedAt time.Time
		)
		if err := rows.Scan(&data, &capturedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		var stats analytics.AggregatedStats
		if err := json.Unmarshal(data, &stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		snapshots = append(snapshots, Snapshot{Stats: stats, CapturedAt: capturedAt})
	}

	return snapshots, rows.Err()
}

// StartPeriodicSave snapshots agg every interval and once more when ctx is
// cancelled.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := s.SaveSnapshot(shutdownCtx, agg.Stats()); err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				cancel()
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval)
}

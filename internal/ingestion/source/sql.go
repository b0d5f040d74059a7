package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/resilience"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Record origins stored in the origin column.
const (
	OriginResults = "results"
	OriginCache   = "cache"
)

// Schema creates the records table. It is valid for both PostgreSQL and
// SQLite.
const Schema = `CREATE TABLE IF NOT EXISTS market_records (
    id       INTEGER PRIMARY KEY,
    question TEXT NOT NULL,
    origin   TEXT NOT NULL,
    payload  TEXT NOT NULL
)`

// SQLSource reads records from the market_records table. Rows are returned
// in id order; payload holds the record JSON.
type SQLSource struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// OpenSQL opens a database with the given driver ("postgres" or "sqlite3").
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLSource, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}
	ping := func() error { return db.PingContext(ctx) }
	if err := resilience.Retry(ctx, "sql-source-ping", resilience.RetryConfig{MaxAttempts: 3}, ping); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s database: %w", driver, err)
	}
	return NewSQLSource(db, driver), nil
}

// NewSQLSource wraps an open database handle.
func NewSQLSource(db *sql.DB, driver string) *SQLSource {
	return &SQLSource{
		db:     db,
		driver: driver,
		logger: slog.Default().With("component", "sql-source", "driver", driver),
	}
}

func (s *SQLSource) Primary(ctx context.Context) ([]ingestion.Record, error) {
	records := make([]ingestion.Record, 0)
	err := s.scan(ctx, OriginResults, func(question string, payload []byte) {
		var r ingestion.Record
		if err := json.Unmarshal(payload, &r); err != nil {
			s.logger.Warn("skipping malformed record row", "question", question, "error", err)
			return
		}
		if r.Question == "" {
			r.Question = question
		}
		records = append(records, r)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *SQLSource) Cache(ctx context.Context) ([]CacheItem, error) {
	items := make([]CacheItem, 0)
	err := s.scan(ctx, OriginCache, func(question string, payload []byte) {
		item, err := decodeCacheEntry(question, payload)
		if err != nil {
			s.logger.Warn("skipping malformed cache row", "question", question, "error", err)
			return
		}
		items = append(items, item)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *SQLSource) Describe() string {
	return s.driver + ":market_records"
}

// Close closes the underlying database.
func (s *SQLSource) Close() error {
	return s.db.Close()
}

func (s *SQLSource) scan(ctx context.Context, origin string, fn func(question string, payload []byte)) error {
	// origin is one of the package constants, never caller input.
	query := "SELECT question, payload FROM market_records WHERE origin = '" + origin + "' ORDER BY id"
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("querying %s records: %w", origin, err)
	}
	defer rows.Close()
	for rows.Next() {
		var question string
		var payload []byte
		if err := rows.Scan(&question, &payload); err != nil {
			return fmt.Errorf("scanning %s record: %w", origin, err)
		}
		fn(question, payload)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating %s records: %w", origin, err)
	}
	return nil
}

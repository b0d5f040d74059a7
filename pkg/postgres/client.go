// Package postgres wraps a lib/pq connection pool for the analytics
// snapshot store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/resilience"
)

type Client struct {
	DB *sql.DB
}

// New opens and pings a pool, retrying the ping while the database starts.
func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err = resilience.Retry(ctx, "postgres-ping", resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		Retryable:    retryablePingError,
	}, func() error {
		return db.PingContext(ctx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{DB: db}, nil
}

// Wrap adapts an already open handle, such as a SQLite database in tests.
func Wrap(db *sql.DB) *Client {
	return &Client{DB: db}
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// Ping checks connectivity for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Migrate executes each statement inside one transaction.
func (c *Client) Migrate(ctx context.Context, statements ...string) error {
	return c.InTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("applying migration: %w", err)
			}
		}
		return nil
	})
}

func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// retryablePingError treats authentication failures and a missing database
// as permanent; anything else may be the server still starting.
func retryablePingError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return true
	}
	switch pqErr.Code.Class() {
	case "28", "3D":
		return false
	}
	return true
}

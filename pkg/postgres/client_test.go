package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryablePingError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), true},
		{"starting up", &pq.Error{Code: "57P03"}, true},
		{"bad password", &pq.Error{Code: "28P01"}, false},
		{"unknown database", fmt.Errorf("ping: %w", &pq.Error{Code: "3D000"}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryablePingError(tt.err))
		})
	}
}

func TestMigrateAndInTx(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	c := Wrap(db)
	defer c.Close()
	ctx := context.Background()

	if err := c.Ping(ctx); err != nil {
		t.Skipf("sqlite3 unavailable: %v", err)
	}
	require.NoError(t, c.Migrate(ctx,
		"CREATE TABLE lookups (location TEXT NOT NULL)",
		"INSERT INTO lookups (location) VALUES ('texas')",
	))

	rollback := errors.New("rollback")
	err = c.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO lookups (location) VALUES ('nyc')"); err != nil {
			return err
		}
		return rollback
	})
	assert.ErrorIs(t, err, rollback)

	var n int
	require.NoError(t, c.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM lookups").Scan(&n))
	assert.Equal(t, 1, n)

	assert.Error(t, c.Migrate(ctx, "CREATE TABLE lookups (location TEXT)"))
}

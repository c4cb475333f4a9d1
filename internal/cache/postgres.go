package cache

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Postgres is the durable Store backend. Rows live in the response_cache
// table and survive restarts; upserts rely on the database's ON CONFLICT
// atomicity, so the table is safe to share across instances.
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// EnsureSchema creates the cache table when missing.
func (c *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS response_cache (
			key        TEXT PRIMARY KEY,
			value      JSONB NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create response_cache table: %w", err)
	}
	return nil
}

// Get returns the stored value for key. An expired row is a miss: the stale
// row is deleted in a detached goroutine and never awaited.
func (c *Postgres) Get(ctx context.Context, key string) ([]byte, bool) {
	var value []byte
	var expiresAt time.Time

	err := c.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM response_cache WHERE key = $1`,
		key,
	).Scan(&value, &expiresAt)

	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		slog.Debug("cache read failed, treating as miss", "error", err)
		return nil, false
	}

	if c.now().After(expiresAt) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := c.db.ExecContext(ctx,
				`DELETE FROM response_cache WHERE key = $1`, key); err != nil {
				slog.Debug("failed to delete stale cache row", "error", err)
			}
		}()
		return nil, false
	}

	return value, true
}

func (c *Postgres) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO response_cache (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
	`, key, value, c.now().Add(ttl))
	if err != nil {
		return fmt.Errorf("upsert cache row: %w", err)
	}
	return nil
}

func (c *Postgres) CleanExpired(ctx context.Context) (int64, error) {
	result, err := c.db.ExecContext(ctx,
		`DELETE FROM response_cache WHERE expires_at < $1`, c.now())
	if err != nil {
		return 0, fmt.Errorf("clean expired cache rows: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

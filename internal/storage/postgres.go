package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgx "github.com/jackc/pgx/v5"

	"github.com/paywall-labs/paywall-go/internal/database"
)

const kvSchema = `
CREATE TABLE IF NOT EXISTS paywall_kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	expires_at TIMESTAMPTZ
)`

// PostgresStore persists SDK state in a single kv table. Expiry is enforced
// on read; a present expires_at in the past counts as absent.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore ensures the kv schema and returns the store
func NewPostgresStore(ctx context.Context, db *database.DB) (*PostgresStore, error) {
	if err := db.Exec(ctx, kvSchema); err != nil {
		return nil, fmt.Errorf("ensure kv schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	row := s.db.QueryRow(ctx,
		"SELECT value, expires_at FROM paywall_kv WHERE key = $1", key)

	var value string
	var expiresAt *time.Time
	if err := row.Scan(&value, &expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("kv get: %w", err)
	}

	if expiresAt != nil && time.Now().After(*expiresAt) {
		_ = s.Delete(ctx, key)
		return "", false, nil
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}

	err := s.db.Exec(ctx, `
		INSERT INTO paywall_kv (key, value, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = $2, expires_at = $3`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("kv set: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if err := s.db.Exec(ctx, "DELETE FROM paywall_kv WHERE key = $1", key); err != nil {
		return fmt.Errorf("kv delete: %w", err)
	}
	return nil
}

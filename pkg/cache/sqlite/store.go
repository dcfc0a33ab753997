// Package sqlite provides a SQLite-backed persistent store for the query cache.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"

	"github.com/Sternrassler/pokeref/pkg/cache"
)

// Store persists query cache records in a single SQLite table.
type Store struct {
	db *sql.DB
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS query_cache (
		cache_key TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		fetched_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_query_cache_expires ON query_cache (expires_at)`,
}

// New opens (or creates) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate cache db: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Load returns the record for key, or cache.ErrCacheMiss if absent or expired.
func (s *Store) Load(ctx context.Context, key cache.Key) (*cache.Record, error) {
	var data []byte
	var fetchedAt, expiresAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT data, fetched_at, expires_at FROM query_cache WHERE cache_key = ?`,
		key.String(),
	).Scan(&data, &fetchedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache load: %w", err)
	}

	rec := &cache.Record{
		Data:      data,
		FetchedAt: time.UnixMilli(fetchedAt),
		Expires:   time.UnixMilli(expiresAt),
	}
	if rec.IsExpired() {
		return nil, cache.ErrCacheMiss
	}
	return rec, nil
}

// Save stores rec under key, replacing any previous record.
func (s *Store) Save(ctx context.Context, key cache.Key, rec *cache.Record) error {
	if rec == nil {
		return fmt.Errorf("cache record cannot be nil")
	}
	if rec.IsExpired() {
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO query_cache (cache_key, data, fetched_at, expires_at)
		 VALUES (?, ?, ?, ?)`,
		key.String(), []byte(rec.Data), rec.FetchedAt.UnixMilli(), rec.Expires.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("cache save: %w", err)
	}
	return nil
}

// DeletePrefix removes the prefix key and every key below it.
func (s *Store) DeletePrefix(ctx context.Context, prefix cache.Key) (int, error) {
	base := prefix.String()
	below := base + ":"

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM query_cache WHERE cache_key = ? OR substr(cache_key, 1, ?) = ?`,
		base, utf8.RuneCountInString(below), below,
	)
	if err != nil {
		return 0, fmt.Errorf("cache delete: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache delete: %w", err)
	}
	return int(n), nil
}

// PurgeExpired removes records past their expiry.
func (s *Store) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM query_cache WHERE expires_at <= ?`, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	return int(n), nil
}

// Count returns the number of stored records, expired ones included.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM query_cache`).Scan(&count); err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return count, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

var (
	_ cache.Store  = (*Store)(nil)
	_ cache.Pinger = (*Store)(nil)
)

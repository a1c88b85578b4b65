package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend stores entries in a single table keyed by namespace and key.
type SQLiteBackend struct {
	db        *sql.DB
	namespace string
	location  string
}

// NewSQLiteBackend opens (or creates) the database at path. Use ":memory:"
// for a throwaway store.
func NewSQLiteBackend(path, namespace string) (*SQLiteBackend, error) {
	if namespace == "" {
		namespace = "default"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	b := &SQLiteBackend{db: db, namespace: namespace, location: path}
	if err := b.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		ttl_ns INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		payload BLOB NOT NULL,
		PRIMARY KEY (namespace, key)
	);
	`
	_, err := b.db.Exec(schema)
	return err
}

// Load implements Backend.
func (b *SQLiteBackend) Load(ctx context.Context, key string) (Entry, error) {
	row := b.db.QueryRowContext(ctx,
		"SELECT key, ttl_ns, expires_at, payload FROM cache_entries WHERE namespace = ? AND key = ?",
		b.namespace, key,
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("query cache entry: %w", err)
	}
	if _, err := e.Decode(); err != nil {
		return Entry{}, &CorruptEntryError{Key: key, Location: b.location, Err: err}
	}
	return e, nil
}

// Save implements Backend.
func (b *SQLiteBackend) Save(ctx context.Context, e Entry) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO cache_entries (namespace, key, ttl_ns, expires_at, payload) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET ttl_ns = excluded.ttl_ns, expires_at = excluded.expires_at, payload = excluded.payload`,
		b.namespace, e.Key, int64(e.TTL), e.ExpiresAt.UnixNano(), []byte(e.Payload),
	)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// List implements Backend.
func (b *SQLiteBackend) List(ctx context.Context) ([]Entry, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT key, ttl_ns, expires_at, payload FROM cache_entries WHERE namespace = ? ORDER BY key",
		b.namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("query cache entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		entries []Entry
		errs    []error
	)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		if _, err := e.Decode(); err != nil {
			errs = append(errs, &CorruptEntryError{Key: e.Key, Location: b.location, Err: err})
			continue
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, errors.Join(errs...)
}

// Clear implements Backend.
func (b *SQLiteBackend) Clear(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE namespace = ?", b.namespace); err != nil {
		return fmt.Errorf("clear cache entries: %w", err)
	}
	return nil
}

// Close implements Backend.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e       Entry
		ttl     int64
		expires int64
		payload []byte
	)
	if err := s.Scan(&e.Key, &ttl, &expires, &payload); err != nil {
		return Entry{}, err
	}
	e.TTL = time.Duration(ttl)
	e.ExpiresAt = time.Unix(0, expires).UTC()
	e.Payload = payload
	return e, nil
}

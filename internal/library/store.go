// Package library records published podcasts in a SQLite table.
package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/podcast-service/internal/core"
	_ "modernc.org/sqlite"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
	dirPermissions          = 0o750
)

const schema = `CREATE TABLE IF NOT EXISTS library (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	podcast_name  TEXT NOT NULL,
	s3_object_key TEXT NOT NULL,
	cdn_url       TEXT NOT NULL,
	content_tags  TEXT NOT NULL DEFAULT '[]',
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_library_object_key ON library(s3_object_key);`

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("library record not found")

var _ core.MetadataStore = (*Store)(nil)

// Store persists library records.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), dirPermissions)
		if err != nil {
			return nil, fmt.Errorf("ensure library directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		_, execErr := db.Exec(pragma)
		if execErr != nil {
			_ = db.Close()

			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	_, err = db.Exec(schema)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("apply library schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// Insert stores record and returns it with its assigned id and creation time.
func (s *Store) Insert(ctx context.Context, record core.LibraryRecord) (core.LibraryRecord, error) {
	tags := record.ContentTags
	if tags == nil {
		tags = []string{}
	}

	encodedTags, err := json.Marshal(tags)
	if err != nil {
		return core.LibraryRecord{}, fmt.Errorf("encode content tags: %w", err)
	}

	record.ContentTags = tags
	record.CreatedAt = s.now().UTC().Truncate(time.Second)

	var result sql.Result

	err = retryOnBusy(ctx, func() error {
		var execErr error

		result, execErr = s.db.ExecContext(ctx,
			`INSERT INTO library (podcast_name, s3_object_key, cdn_url, content_tags, created_at) VALUES (?, ?, ?, ?, ?)`,
			record.PodcastName, record.ObjectKey, record.CDNURL, string(encodedTags), record.CreatedAt.Format(time.RFC3339),
		)

		return execErr
	})
	if err != nil {
		return core.LibraryRecord{}, fmt.Errorf("insert library record: %w", err)
	}

	record.ID, err = result.LastInsertId()
	if err != nil {
		return core.LibraryRecord{}, fmt.Errorf("read library record id: %w", err)
	}

	return record, nil
}

// Get returns the record with id.
func (s *Store) Get(ctx context.Context, id int64) (core.LibraryRecord, error) {
	var (
		record    core.LibraryRecord
		tags      string
		createdAt string
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, podcast_name, s3_object_key, cdn_url, content_tags, created_at FROM library WHERE id = ?`, id,
	).Scan(&record.ID, &record.PodcastName, &record.ObjectKey, &record.CDNURL, &tags, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.LibraryRecord{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	if err != nil {
		return core.LibraryRecord{}, fmt.Errorf("query library record: %w", err)
	}

	err = json.Unmarshal([]byte(tags), &record.ContentTags)
	if err != nil {
		return core.LibraryRecord{}, fmt.Errorf("decode content tags: %w", err)
	}

	record.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return core.LibraryRecord{}, fmt.Errorf("decode created_at: %w", err)
	}

	return record, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}

	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}

	msg := err.Error()

	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff

	var lastErr error

	for attempt := range busyRetryAttempts {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}

	return lastErr
}

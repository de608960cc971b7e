// Package syncqueue persists pending uploads and drains them against the
// remote store under unreliable connectivity. Items survive process
// restarts and are only removed after a confirmed remote write or a
// confirmed remote duplicate.
package syncqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/turoarchive/turoarchive/internal/fingerprint"
	"github.com/turoarchive/turoarchive/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever the schema changes; a mismatched
// database must be cleared rather than migrated in place.
const schemaVersion = 1

const keyPrefix = "syncq:"

// ErrSchemaMismatch indicates the queue database was written by a different
// schema version.
var ErrSchemaMismatch = errors.New("queue schema version mismatch")

// Store manages queue persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore initializes or connects to the queue database under dataDir.
func OpenStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "syncqueue.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)", ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

// Enqueue durably stores an upload request. The key scheme is
// "syncq:<unixMillis>:<digest prefix>"; a same-tick collision for identical
// content gets a random suffix so no enqueue is ever silently dropped.
func (s *Store) Enqueue(ctx context.Context, item *models.QueueItem) error {
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now().UTC()
	}
	if item.Key == "" {
		item.Key = fmt.Sprintf("%s%d:%s", keyPrefix, item.EnqueuedAt.UnixMilli(), fingerprint.Short(item.FileHash))
	}

	optionsJSON, err := json.Marshal(item.Options)
	if err != nil {
		return fmt.Errorf("marshal queue item options: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO queue_items (
                queue_key, file_name, file_path, file_hash, file_size,
                pdf_bytes, options_json, enqueued_at, attempts, last_error
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, '')`,
			item.Key,
			item.FileName,
			item.FilePath,
			item.FileHash,
			item.FileSize,
			item.PDFBytes,
			string(optionsJSON),
			item.EnqueuedAt.Format(time.RFC3339Nano),
		)
		if err == nil {
			return nil
		}
		if attempt == 0 && strings.Contains(err.Error(), "UNIQUE constraint") {
			item.Key = item.Key + ":" + uuid.NewString()[:8]
			continue
		}
	}
	return fmt.Errorf("insert queue item: %w", err)
}

// Size returns the durable count of pending items.
func (s *Store) Size(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM queue_items").Scan(&count); err != nil {
		return 0, fmt.Errorf("count queue items: %w", err)
	}
	return count, nil
}

// storedRow is a raw row before deserialization. Decoding is deferred so
// the drain loop can treat unreadable rows as ghosts instead of failing.
type storedRow struct {
	key         string
	fileName    string
	filePath    string
	fileHash    string
	fileSize    int64
	pdfBytes    []byte
	optionsJSON string
	enqueuedAt  string
	attempts    int
}

func (r *storedRow) decode() (*models.QueueItem, bool) {
	if r.fileHash == "" || len(r.pdfBytes) == 0 {
		return nil, false
	}
	var opts models.UploadOptions
	if err := json.Unmarshal([]byte(r.optionsJSON), &opts); err != nil {
		return nil, false
	}
	enqueuedAt, err := time.Parse(time.RFC3339Nano, r.enqueuedAt)
	if err != nil {
		return nil, false
	}
	return &models.QueueItem{
		Key:        r.key,
		FileName:   r.fileName,
		FilePath:   r.filePath,
		FileHash:   r.fileHash,
		FileSize:   r.fileSize,
		PDFBytes:   r.pdfBytes,
		Options:    opts,
		EnqueuedAt: enqueuedAt,
		Attempts:   r.attempts,
	}, true
}

// oldestFirst returns all rows in enqueue order.
func (s *Store) oldestFirst(ctx context.Context) ([]*storedRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT queue_key, file_name, file_path, file_hash, file_size,
                pdf_bytes, options_json, enqueued_at, attempts
         FROM queue_items ORDER BY enqueued_at ASC, queue_key ASC`)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	var out []*storedRow
	for rows.Next() {
		r := &storedRow{}
		if err := rows.Scan(&r.key, &r.fileName, &r.filePath, &r.fileHash, &r.fileSize,
			&r.pdfBytes, &r.optionsJSON, &r.enqueuedAt, &r.attempts); err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM queue_items WHERE queue_key = ?", key); err != nil {
		return fmt.Errorf("delete queue item %s: %w", key, err)
	}
	return nil
}

func (s *Store) recordFailure(ctx context.Context, key, message string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE queue_items SET attempts = attempts + 1, last_error = ? WHERE queue_key = ?",
		message, key)
	if err != nil {
		return fmt.Errorf("record failure for %s: %w", key, err)
	}
	return nil
}

// Package cachestore owns the on-disk blob directory and the embedded
// SQLite metadata database tracking last access time, size and upload
// timestamp for every cached digest.
package cachestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"blobcache/internal/model"
)

const metadataFileName = ".cache-metadata.db"
const lockFileName = ".cache.lock"

// pruneWatermark is the fraction of the size ceiling the pruner targets.
const pruneWatermark = 0.9

// Store owns the blob directory and its metadata database. All mutation
// of the cache directory goes through a Store.
type Store struct {
	dir          string
	maxSizeBytes int64
	logger       *slog.Logger

	db       *sql.DB
	fileLock *flock.Flock

	pruneMu sync.Mutex // serializes prune() against concurrent triggers
}

// New constructs a Store rooted at dir. maxSizeBytes of 0 means unlimited.
func New(dir string, maxSizeBytes int64, logger *slog.Logger) *Store {
	return &Store{
		dir:          dir,
		maxSizeBytes: maxSizeBytes,
		logger:       logger,
		fileLock:     flock.New(filepath.Join(dir, lockFileName)),
	}
}

// Dir returns the cache directory root.
func (s *Store) Dir() string { return s.dir }

// BlobPath returns the path a digest's blob file is stored at.
func (s *Store) BlobPath(d model.Digest) string {
	return filepath.Join(s.dir, d.String())
}

// TempPath returns a fresh, unique path under the cache directory for a
// partially-written blob, named so rebuild scans (which skip dotfiles)
// never mistake it for a finished entry.
func (s *Store) TempPath() string {
	return filepath.Join(s.dir, fmt.Sprintf(".tmp-%s", uuid.New().String()))
}

// EnsureDir creates the cache directory if it does not already exist.
// Cheap to call per-request; the handler calls it before every cache
// probe per the request algorithm.
func (s *Store) EnsureDir() error {
	return os.MkdirAll(s.dir, 0o755)
}

// EnsureReady creates the cache directory, opens the metadata database,
// enables WAL journaling, creates the schema if missing, and triggers a
// rebuild scan when the database was just created or is unreadable.
func (s *Store) EnsureReady(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	if err := s.fileLock.Lock(); err != nil {
		return fmt.Errorf("locking cache directory: %w", err)
	}

	dbPath := filepath.Join(s.dir, metadataFileName)
	_, statErr := os.Stat(dbPath)
	isNew := errors.Is(statErr, os.ErrNotExist)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("opening metadata database: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		s.logger.Warn("failed to enable WAL journal", "error", err)
	}

	schemaErr := s.createSchema(ctx, db)
	s.db = db

	if isNew || schemaErr != nil {
		if schemaErr != nil {
			s.logger.Warn("metadata schema unreadable, rebuilding", "error", schemaErr)
		}
		if err := s.RebuildFromDirectory(ctx); err != nil {
			return fmt.Errorf("rebuilding cache metadata: %w", err)
		}
	}

	return nil
}

func (s *Store) createSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS cache_metadata (
			sha256 TEXT PRIMARY KEY,
			last_accessed INTEGER NOT NULL,
			size INTEGER NOT NULL,
			uploaded INTEGER
		)
	`); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_cache_metadata_last_accessed
		ON cache_metadata(last_accessed)
	`)
	return err
}

// RebuildFromDirectory scans the cache directory, skipping dotfiles, and
// writes one metadata row per blob file found, in a single transaction.
func (s *Store) RebuildFromDirectory(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning rebuild transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_metadata`); err != nil {
		return fmt.Errorf("clearing stale metadata: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cache_metadata (sha256, last_accessed, size, uploaded)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	count := 0
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || entry.IsDir() {
			continue
		}
		if _, err := model.ParseDigest(name); err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("skipping unreadable cache file during rebuild", "file", name, "error", err)
			continue
		}
		mtimeMs := info.ModTime().UnixMilli()
		uploaded := mtimeMs / 1000
		if _, err := stmt.ExecContext(ctx, name, mtimeMs, info.Size(), uploaded); err != nil {
			return fmt.Errorf("inserting metadata row for %s: %w", name, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rebuild transaction: %w", err)
	}

	s.logger.Info("rebuilt cache metadata from directory", "blobs", count)
	return nil
}

// Lookup returns an open file handle for D if it exists on disk, along
// with its size. It schedules a fire-and-forget touch to refresh
// last_accessed; the touch never blocks the caller.
func (s *Store) Lookup(d model.Digest) (*os.File, int64, bool) {
	path := s.BlobPath(d)
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, false
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, false
	}

	go s.Touch(d, info.Size())

	return f, info.Size(), true
}

// Touch upserts last_accessed = now for D, preserving uploaded. If size is
// negative the existing row's size is kept, or the file is stat'd, or the
// touch is a no-op if neither exists. Errors are logged, never returned:
// touch is always fire-and-forget from hot paths.
func (s *Store) Touch(d model.Digest, size int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	nowMs := time.Now().UnixMilli()

	if size < 0 {
		var existing int64
		err := s.db.QueryRowContext(ctx, `SELECT size FROM cache_metadata WHERE sha256 = ?`, d.String()).Scan(&existing)
		switch {
		case err == nil:
			size = existing
		case errors.Is(err, sql.ErrNoRows):
			info, statErr := os.Stat(s.BlobPath(d))
			if statErr != nil {
				return
			}
			size = info.Size()
		default:
			s.logger.Warn("touch: failed to read existing size", "digest", d, "error", err)
			return
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_metadata (sha256, last_accessed, size, uploaded)
		VALUES (?, ?, ?, NULL)
		ON CONFLICT(sha256) DO UPDATE SET last_accessed = excluded.last_accessed, size = excluded.size
	`, d.String(), nowMs, size)
	if err != nil {
		s.logger.Warn("touch: failed to upsert metadata row", "digest", d, "error", err)
	}
}

// SizeTotal returns the sum of every tracked blob's size.
func (s *Store) SizeTotal(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT SUM(size) FROM cache_metadata`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing cache size: %w", err)
	}
	return total.Int64, nil
}

// Count returns the number of tracked blobs.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_metadata`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return count, nil
}

// WriteAndRecord persists metadata for a freshly written file and
// triggers prune_if_needed without awaiting it.
func (s *Store) WriteAndRecord(d model.Digest, size int64, uploadedSeconds *int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	nowMs := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_metadata (sha256, last_accessed, size, uploaded)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(sha256) DO UPDATE SET last_accessed = excluded.last_accessed, size = excluded.size, uploaded = excluded.uploaded
	`, d.String(), nowMs, size, uploadedSeconds)
	if err != nil {
		return fmt.Errorf("recording cache metadata for %s: %w", d, err)
	}

	go s.PruneIfNeeded()
	return nil
}

// Delete removes the blob file and its metadata row. Returns true if
// either existed.
func (s *Store) Delete(d model.Digest) bool {
	existed := false

	if err := os.Remove(s.BlobPath(d)); err == nil {
		existed = true
	} else if !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove cache file", "digest", d, "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_metadata WHERE sha256 = ?`, d.String())
	if err != nil {
		s.logger.Warn("failed to remove cache metadata row", "digest", d, "error", err)
	} else if n, _ := res.RowsAffected(); n > 0 {
		existed = true
	}

	return existed
}

// GetEntry returns the full metadata row tracked for d, if any.
func (s *Store) GetEntry(d model.Digest) (*model.CacheEntry, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var entry model.CacheEntry
	var uploaded sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT sha256, last_accessed, size, uploaded FROM cache_metadata WHERE sha256 = ?
	`, d.String()).Scan(&entry.Digest, &entry.LastAccessed, &entry.Size, &uploaded)
	if err != nil {
		return nil, false
	}
	if uploaded.Valid {
		v := uploaded.Int64
		entry.Uploaded = &v
	}
	return &entry, true
}

// GetUploaded returns the upload timestamp for D, if any.
func (s *Store) GetUploaded(d model.Digest) (int64, bool) {
	entry, ok := s.GetEntry(d)
	if !ok || entry.Uploaded == nil {
		return 0, false
	}
	return *entry.Uploaded, true
}

// Close releases the database handle and the advisory file lock.
func (s *Store) Close() error {
	var errs []error
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.fileLock.Unlock(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing cache store: %v", errs)
	}
	return nil
}

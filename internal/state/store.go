// Package state persists sync bookkeeping in an embedded SQLite database.
//
// The store tracks, per source and relative path, the content hash of the
// bytes last written to the local cache. This hash is the authoritative
// change signal: the HTTP-level ETag cache (validators table) only saves
// bandwidth, while the hash catches local corruption and out-of-band
// deletion that "304 Not Modified" can never see.
//
// Single-writer discipline: one Store per process, writes serialized by
// database/sql's connection pool plus SQLite's own file locking. WAL mode
// lets readers proceed concurrently.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrPersistence wraps every read/write failure of the underlying store so
// callers can classify bookkeeping trouble without string matching.
var ErrPersistence = errors.New("state store")

// DBFileName is the database file kept under the cache root.
const DBFileName = "agentsync.db"

const schema = `
CREATE TABLE IF NOT EXISTS sources (
	id         TEXT PRIMARY KEY,
	base_url   TEXT NOT NULL DEFAULT '',
	enabled    INTEGER NOT NULL DEFAULT 1,
	last_sync  INTEGER,
	etag       TEXT
);

CREATE TABLE IF NOT EXISTS tracked_files (
	source_id    TEXT NOT NULL,
	rel_path     TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	local_path   TEXT NOT NULL,
	size         INTEGER NOT NULL,
	tracked_at   INTEGER NOT NULL,
	PRIMARY KEY (source_id, rel_path)
);

CREATE TABLE IF NOT EXISTS sync_history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id   TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	downloaded  INTEGER NOT NULL,
	cached      INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_source ON sync_history(source_id, created_at);

CREATE TABLE IF NOT EXISTS validators (
	url        TEXT PRIMARY KEY,
	etag       TEXT NOT NULL,
	size       INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// TrackedFile is one per-(source, path) record.
type TrackedFile struct {
	SourceID    string
	RelPath     string
	ContentHash string
	LocalPath   string
	Size        int64
	TrackedAt   time.Time
}

// SyncRun is one row of the append-only sync history.
type SyncRun struct {
	SourceID   string
	Outcome    string
	Downloaded int
	Cached     int
	Failed     int
	Duration   time.Duration
	CreatedAt  time.Time
}

// Store is the embedded sync-state database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the state database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrPersistence, path, err)
	}
	// Serialize writers at the pool level; SQLite allows one writer anyway
	// and a second pooled connection would just hit SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: set WAL mode: %v", ErrPersistence, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: set busy timeout: %v", ErrPersistence, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: create schema: %v", ErrPersistence, err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// TrackFile upserts the record for (sourceID, relPath). Call it only after
// the corresponding byte write to localPath has succeeded: the invariant is
// that a tracked hash always reflects bytes actually on disk.
func (s *Store) TrackFile(sourceID, relPath, contentHash, localPath string, size int64) error {
	_, err := s.db.Exec(`
		INSERT INTO tracked_files (source_id, rel_path, content_hash, local_path, size, tracked_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, rel_path) DO UPDATE SET
			content_hash = excluded.content_hash,
			local_path   = excluded.local_path,
			size         = excluded.size,
			tracked_at   = excluded.tracked_at
	`, sourceID, relPath, contentHash, localPath, size, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("%w: track %s/%s: %v", ErrPersistence, sourceID, relPath, err)
	}
	return nil
}

// HasFileChanged reports whether currentHash differs from the tracked hash
// for (sourceID, relPath). No record at all counts as changed.
func (s *Store) HasFileChanged(sourceID, relPath, currentHash string) (bool, error) {
	var stored string
	err := s.db.QueryRow(
		`SELECT content_hash FROM tracked_files WHERE source_id = ? AND rel_path = ?`,
		sourceID, relPath,
	).Scan(&stored)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: lookup %s/%s: %v", ErrPersistence, sourceID, relPath, err)
	}
	return stored != currentHash, nil
}

// TrackedFiles returns all records for one source, ordered by path.
func (s *Store) TrackedFiles(sourceID string) ([]TrackedFile, error) {
	rows, err := s.db.Query(`
		SELECT source_id, rel_path, content_hash, local_path, size, tracked_at
		FROM tracked_files WHERE source_id = ? ORDER BY rel_path
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: list tracked files for %s: %v", ErrPersistence, sourceID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []TrackedFile
	for rows.Next() {
		var f TrackedFile
		var trackedAt int64
		if err := rows.Scan(&f.SourceID, &f.RelPath, &f.ContentHash, &f.LocalPath, &f.Size, &trackedAt); err != nil {
			return nil, fmt.Errorf("%w: scan tracked file: %v", ErrPersistence, err)
		}
		f.TrackedAt = time.Unix(0, trackedAt)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate tracked files: %v", ErrPersistence, err)
	}
	return out, nil
}

// DeleteFile removes one tracking record. Tracking records are never
// deleted implicitly; this is the explicit cleanup entry point.
func (s *Store) DeleteFile(sourceID, relPath string) error {
	if _, err := s.db.Exec(
		`DELETE FROM tracked_files WHERE source_id = ? AND rel_path = ?`,
		sourceID, relPath,
	); err != nil {
		return fmt.Errorf("%w: delete %s/%s: %v", ErrPersistence, sourceID, relPath, err)
	}
	return nil
}

// RecordSyncResult appends one row to the sync history.
func (s *Store) RecordSyncResult(sourceID, outcome string, downloaded, cached, failed int, duration time.Duration) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_history (source_id, outcome, downloaded, cached, failed, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sourceID, outcome, downloaded, cached, failed, duration.Milliseconds(), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("%w: record sync result for %s: %v", ErrPersistence, sourceID, err)
	}
	return nil
}

// History returns the most recent sync runs for a source, newest first.
func (s *Store) History(sourceID string, limit int) ([]SyncRun, error) {
	rows, err := s.db.Query(`
		SELECT source_id, outcome, downloaded, cached, failed, duration_ms, created_at
		FROM sync_history WHERE source_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, sourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: history for %s: %v", ErrPersistence, sourceID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []SyncRun
	for rows.Next() {
		var r SyncRun
		var durMS, createdAt int64
		if err := rows.Scan(&r.SourceID, &r.Outcome, &r.Downloaded, &r.Cached, &r.Failed, &durMS, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan history row: %v", ErrPersistence, err)
		}
		r.Duration = time.Duration(durMS) * time.Millisecond
		r.CreatedAt = time.Unix(0, createdAt)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate history: %v", ErrPersistence, err)
	}
	return out, nil
}

// UpdateSourceSyncMetadata records the source's last-sync time and an
// optional transport-layer validator. Diagnostic data only — resolution
// logic never reads it.
func (s *Store) UpdateSourceSyncMetadata(sourceID, baseURL, etag string) error {
	_, err := s.db.Exec(`
		INSERT INTO sources (id, base_url, enabled, last_sync, etag)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			base_url  = excluded.base_url,
			last_sync = excluded.last_sync,
			etag      = excluded.etag
	`, sourceID, baseURL, time.Now().UnixNano(), etag)
	if err != nil {
		return fmt.Errorf("%w: update source %s: %v", ErrPersistence, sourceID, err)
	}
	return nil
}

// LastSync returns the recorded last-sync time for a source, or the zero
// time when the source has never synced.
func (s *Store) LastSync(sourceID string) (time.Time, error) {
	var ns sql.NullInt64
	err := s.db.QueryRow(`SELECT last_sync FROM sources WHERE id = ?`, sourceID).Scan(&ns)
	if err == sql.ErrNoRows || (err == nil && !ns.Valid) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: last sync for %s: %v", ErrPersistence, sourceID, err)
	}
	return time.Unix(0, ns.Int64), nil
}

// Validator implements fetch.ValidatorCache.
func (s *Store) Validator(url string) (string, bool, error) {
	var etag string
	err := s.db.QueryRow(`SELECT etag FROM validators WHERE url = ?`, url).Scan(&etag)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: validator for %s: %v", ErrPersistence, url, err)
	}
	return etag, true, nil
}

// SetValidator implements fetch.ValidatorCache.
func (s *Store) SetValidator(url, etag string, size int64) error {
	_, err := s.db.Exec(`
		INSERT INTO validators (url, etag, size, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			etag       = excluded.etag,
			size       = excluded.size,
			updated_at = excluded.updated_at
	`, url, etag, size, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("%w: set validator for %s: %v", ErrPersistence, url, err)
	}
	return nil
}

// ClearValidator implements fetch.ValidatorCache.
func (s *Store) ClearValidator(url string) error {
	if _, err := s.db.Exec(`DELETE FROM validators WHERE url = ?`, url); err != nil {
		return fmt.Errorf("%w: clear validator for %s: %v", ErrPersistence, url, err)
	}
	return nil
}

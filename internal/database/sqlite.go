package database

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"gencodedoc/internal/database/migrations"
	"gencodedoc/internal/gcd"
	"gencodedoc/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements the gcd.Database interface using SQLite.
// A single writer mutex serializes all mutating calls; snapshot ids are
// strictly increasing under that serialization.
type SQLiteDatabase struct {
	db   *sql.DB
	path string

	mu sync.Mutex // serializes write transactions
}

// NewSQLiteDatabase opens (and migrates) the metadata store at path.
// path can be a file path or ":memory:" for an in-memory store.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating store: %w", err)
	}

	return &SQLiteDatabase{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection with the
// appropriate PRAGMAs. Exported for tools and tests that need a properly
// configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring store: %w", err)
		}
	}

	// One connection keeps ":memory:" stores coherent and matches the
	// single-writer model.
	db.SetMaxOpenConns(1)

	return db, nil
}

// Snapshot operations

func (s *SQLiteDatabase) CreateSnapshot(meta model.SnapshotMetadata, files []model.FileEntry, loadBlob gcd.BlobLoader) (*model.SnapshotMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	// Snapshot-hash uniqueness: an identical tree already has a snapshot.
	var exists int
	err = tx.QueryRow(`SELECT COUNT(*) FROM snapshots WHERE hash = ?`, meta.Hash).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking snapshot hash: %w", err)
	}
	if exists > 0 {
		return nil, gcd.ErrNoChanges
	}

	if meta.Tag != "" {
		err = tx.QueryRow(`SELECT COUNT(*) FROM snapshots WHERE tag = ?`, meta.Tag).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("checking tag: %w", err)
		}
		if exists > 0 {
			return nil, fmt.Errorf("%w: %q", gcd.ErrDuplicateTag, meta.Tag)
		}
	}

	// Parent is the latest snapshot at creation time, resolved inside the
	// transaction so concurrent creates serialize cleanly.
	var parentID sql.NullInt64
	err = tx.QueryRow(`SELECT id FROM snapshots ORDER BY id DESC LIMIT 1`).Scan(&parentID.Int64)
	if err == nil {
		parentID.Valid = true
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("finding parent snapshot: %w", err)
	}

	res, err := tx.Exec(`
		INSERT INTO snapshots (hash, message, tag, created_at, parent_id, is_autosave, trigger_type, files_count, total_size, compressed_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		meta.Hash, nullString(meta.Message), nullString(meta.Tag), meta.CreatedAt,
		parentID, meta.IsAutosave, meta.TriggerType, int64(len(files)), meta.TotalSize)
	if err != nil {
		return nil, fmt.Errorf("inserting snapshot: %w", err)
	}

	snapshotID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading snapshot id: %w", err)
	}

	var compressedTotal int64
	for _, f := range files {
		_, err = tx.Exec(`
			INSERT INTO snapshot_files (snapshot_id, path, content_hash, size, mode)
			VALUES (?, ?, ?, ?, ?)`,
			snapshotID, f.Path, f.Hash, f.Size, f.Mode)
		if err != nil {
			return nil, fmt.Errorf("inserting file %s: %w", f.Path, err)
		}

		var have int
		err = tx.QueryRow(`SELECT COUNT(*) FROM file_contents WHERE hash = ?`, f.Hash).Scan(&have)
		if err != nil {
			return nil, fmt.Errorf("probing content %s: %w", f.Hash, err)
		}
		if have > 0 {
			continue // deduplicated
		}

		blob, err := loadBlob(f)
		if err != nil {
			return nil, fmt.Errorf("loading content for %s: %w", f.Path, err)
		}
		_, err = tx.Exec(`
			INSERT OR IGNORE INTO file_contents (hash, data, original_size, stored_size, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			blob.Hash, blob.Data, blob.OriginalSize, blob.StoredSize, blob.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("storing content for %s: %w", f.Path, err)
		}
		compressedTotal += blob.StoredSize
	}

	if _, err := tx.Exec(`UPDATE snapshots SET compressed_size = ? WHERE id = ?`, compressedTotal, snapshotID); err != nil {
		return nil, fmt.Errorf("updating compressed size: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing snapshot: %w", err)
	}

	created := meta
	created.ID = snapshotID
	created.ParentID = parentID.Int64
	created.FilesCount = int64(len(files))
	created.CompressedSize = compressedTotal
	return &created, nil
}

const snapshotColumns = `id, hash, message, tag, created_at, parent_id, is_autosave, trigger_type, files_count, total_size, compressed_size`

func (s *SQLiteDatabase) GetSnapshot(id int64) (*model.SnapshotMetadata, error) {
	row := s.db.QueryRow(`SELECT `+snapshotColumns+` FROM snapshots WHERE id = ?`, id)
	return scanSnapshot(row)
}

func (s *SQLiteDatabase) GetSnapshotByTag(tag string) (*model.SnapshotMetadata, error) {
	row := s.db.QueryRow(`SELECT `+snapshotColumns+` FROM snapshots WHERE tag = ?`, tag)
	return scanSnapshot(row)
}

func (s *SQLiteDatabase) GetLatestSnapshot() (*model.SnapshotMetadata, error) {
	row := s.db.QueryRow(`SELECT ` + snapshotColumns + ` FROM snapshots ORDER BY id DESC LIMIT 1`)
	return scanSnapshot(row)
}

func (s *SQLiteDatabase) ListSnapshots(limit int, includeAutosave bool) ([]model.SnapshotMetadata, error) {
	query := `SELECT ` + snapshotColumns + ` FROM snapshots`
	if !includeAutosave {
		query += ` WHERE is_autosave = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var result []model.SnapshotMetadata
	for rows.Next() {
		meta, err := scanSnapshotRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *meta)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) CountSnapshots(includeAutosave bool) (int64, error) {
	query := `SELECT COUNT(*) FROM snapshots`
	if !includeAutosave {
		query += ` WHERE is_autosave = 0`
	}
	var n int64
	if err := s.db.QueryRow(query).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting snapshots: %w", err)
	}
	return n, nil
}

func (s *SQLiteDatabase) DeleteSnapshot(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM snapshot_files WHERE snapshot_id = ?`, id); err != nil {
		return fmt.Errorf("deleting snapshot files: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return gcd.ErrSnapshotNotFound
	}

	return tx.Commit()
}

// Snapshot file links

func (s *SQLiteDatabase) GetSnapshotFiles(snapshotID int64) ([]model.FileEntry, error) {
	rows, err := s.db.Query(`
		SELECT path, content_hash, size, mode FROM snapshot_files
		WHERE snapshot_id = ? ORDER BY path`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("listing snapshot files: %w", err)
	}
	defer rows.Close()

	var files []model.FileEntry
	for rows.Next() {
		var f model.FileEntry
		if err := rows.Scan(&f.Path, &f.Hash, &f.Size, &f.Mode); err != nil {
			return nil, fmt.Errorf("scanning file row: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Content blobs

func (s *SQLiteDatabase) InsertContent(blob *model.ContentBlob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO file_contents (hash, data, original_size, stored_size, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		blob.Hash, blob.Data, blob.OriginalSize, blob.StoredSize, blob.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting content: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) GetContent(hash string) (*model.ContentBlob, error) {
	var blob model.ContentBlob
	err := s.db.QueryRow(`
		SELECT hash, data, original_size, stored_size, created_at
		FROM file_contents WHERE hash = ?`, hash).
		Scan(&blob.Hash, &blob.Data, &blob.OriginalSize, &blob.StoredSize, &blob.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("reading content: %w", err)
	}
	return &blob, nil
}

func (s *SQLiteDatabase) ContentExists(hash string) (bool, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM file_contents WHERE hash = ?`, hash).Scan(&n); err != nil {
		return false, fmt.Errorf("probing content: %w", err)
	}
	return n > 0, nil
}

// Autosave state

func (s *SQLiteDatabase) GetAutosaveState() (*model.AutosaveState, error) {
	var state model.AutosaveState
	var lastCheck, lastSave sql.NullTime
	var lastSnapshot sql.NullInt64
	err := s.db.QueryRow(`
		SELECT last_check, last_save, last_snapshot_id, files_tracked
		FROM autosave_state WHERE id = 1`).
		Scan(&lastCheck, &lastSave, &lastSnapshot, &state.FilesTracked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &model.AutosaveState{}, nil // Created lazily on first update
		}
		return nil, fmt.Errorf("reading autosave state: %w", err)
	}
	state.LastCheck = lastCheck.Time
	state.LastSave = lastSave.Time
	state.LastSnapshotID = lastSnapshot.Int64
	return &state, nil
}

func (s *SQLiteDatabase) UpdateAutosaveState(state *model.AutosaveState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO autosave_state (id, last_check, last_save, last_snapshot_id, files_tracked)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_check = excluded.last_check,
			last_save = excluded.last_save,
			last_snapshot_id = excluded.last_snapshot_id,
			files_tracked = excluded.files_tracked`,
		nullTime(state.LastCheck), nullTime(state.LastSave),
		nullInt(state.LastSnapshotID), state.FilesTracked)
	if err != nil {
		return fmt.Errorf("updating autosave state: %w", err)
	}
	return nil
}

// Cleanup

func (s *SQLiteDatabase) CleanupOldAutosaves(maxKeep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	// Keep the newest maxKeep autosaves; drop the rest with their links.
	if _, err := tx.Exec(`
		DELETE FROM snapshot_files WHERE snapshot_id IN (
			SELECT id FROM snapshots WHERE is_autosave = 1
			AND id NOT IN (
				SELECT id FROM snapshots WHERE is_autosave = 1
				ORDER BY created_at DESC, id DESC LIMIT ?
			)
		)`, maxKeep); err != nil {
		return 0, fmt.Errorf("deleting autosave files: %w", err)
	}

	res, err := tx.Exec(`
		DELETE FROM snapshots WHERE is_autosave = 1
		AND id NOT IN (
			SELECT id FROM snapshots WHERE is_autosave = 1
			ORDER BY created_at DESC, id DESC LIMIT ?
		)`, maxKeep)
	if err != nil {
		return 0, fmt.Errorf("deleting old autosaves: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted autosaves: %w", err)
	}
	return n, tx.Commit()
}

func (s *SQLiteDatabase) CleanupExpiredAutosaves(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM snapshot_files WHERE snapshot_id IN (
			SELECT id FROM snapshots WHERE is_autosave = 1 AND created_at < ?
		)`, cutoff); err != nil {
		return 0, fmt.Errorf("deleting expired autosave files: %w", err)
	}

	res, err := tx.Exec(`DELETE FROM snapshots WHERE is_autosave = 1 AND created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired autosaves: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted autosaves: %w", err)
	}
	return n, tx.Commit()
}

func (s *SQLiteDatabase) CleanupOrphanedContents() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		DELETE FROM file_contents WHERE hash NOT IN (
			SELECT DISTINCT content_hash FROM snapshot_files
		)`)
	if err != nil {
		return 0, fmt.Errorf("deleting orphaned contents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted contents: %w", err)
	}
	return n, nil
}

// Path returns the store file path (or ":memory:").
func (s *SQLiteDatabase) Path() string { return s.path }

// Close closes the store connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// row scanning helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row *sql.Row) (*model.SnapshotMetadata, error) {
	meta, err := scanSnapshotRows(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return meta, nil
}

func scanSnapshotRows(row rowScanner) (*model.SnapshotMetadata, error) {
	var meta model.SnapshotMetadata
	var message, tag sql.NullString
	var parentID sql.NullInt64
	err := row.Scan(&meta.ID, &meta.Hash, &message, &tag, &meta.CreatedAt,
		&parentID, &meta.IsAutosave, &meta.TriggerType,
		&meta.FilesCount, &meta.TotalSize, &meta.CompressedSize)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning snapshot row: %w", err)
	}
	meta.Message = message.String
	meta.Tag = tag.String
	meta.ParentID = parentID.Int64
	return &meta, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

// Compile-time check that SQLiteDatabase implements gcd.Database.
var _ gcd.Database = (*SQLiteDatabase)(nil)

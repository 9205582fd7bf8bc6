package gcd

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	"gencodedoc/internal/model"
)

// CurrentRef is the reserved snapshot reference meaning "the working tree
// at the moment of the call". It is never a valid tag.
const CurrentRef = "current"

// VersionManager orchestrates snapshot creation, retrieval, diffing,
// restore, export, history, search and changelog over the metadata store
// and the content store.
type VersionManager struct {
	projectRoot string
	db          Database
	store       ContentStore
	scanner     Scanner
	logger      Logger
	clock       Clock
}

// NewVersionManager creates a VersionManager with the provided
// dependencies.
func NewVersionManager(projectRoot string, db Database, store ContentStore, scanner Scanner, logger Logger, clock Clock) *VersionManager {
	return &VersionManager{
		projectRoot: projectRoot,
		db:          db,
		store:       store,
		scanner:     scanner,
		logger:      logger,
		clock:       clock,
	}
}

// CreateOptions are the inputs to CreateSnapshot.
type CreateOptions struct {
	Message      string
	Tag          string
	IncludePaths []string
	ExcludePaths []string
	IsAutosave   bool
	TriggerType  string
}

// CreateSnapshot scans the working tree and persists a snapshot of it.
// Fails with ErrNoChanges when the tree hashes identically to an existing
// snapshot, and with ErrDuplicateTag when the tag is taken.
func (m *VersionManager) CreateSnapshot(opts CreateOptions) (*model.Snapshot, error) {
	if opts.Tag == CurrentRef {
		return nil, fmt.Errorf("%w: tag %q is reserved", ErrInvalid, CurrentRef)
	}
	if opts.TriggerType == "" {
		opts.TriggerType = "manual"
	}

	files, err := m.scanner.Scan(ScanOptions{
		IncludePaths: opts.IncludePaths,
		ExcludePaths: opts.ExcludePaths,
	})
	if err != nil {
		return nil, fmt.Errorf("scanning project: %w", err)
	}

	var totalSize int64
	for _, f := range files {
		totalSize += f.Size
	}

	meta := model.SnapshotMetadata{
		Hash:        SnapshotHash(files),
		Message:     opts.Message,
		Tag:         opts.Tag,
		CreatedAt:   m.clock.Now(),
		IsAutosave:  opts.IsAutosave,
		TriggerType: opts.TriggerType,
		TotalSize:   totalSize,
	}

	created, err := m.db.CreateSnapshot(meta, files, func(entry model.FileEntry) (*model.ContentBlob, error) {
		abs := filepath.Join(m.projectRoot, filepath.FromSlash(entry.Path))
		return m.store.Load(abs, entry)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("snapshot created",
		"id", created.ID, "files", created.FilesCount,
		"trigger", created.TriggerType, "tag", created.Tag)

	return &model.Snapshot{Metadata: *created, Files: files}, nil
}

// SnapshotHash is the deterministic hash of a file set: SHA-256 over the
// concatenated (path, content-hash) pairs sorted by path.
func SnapshotHash(files []model.FileEntry) string {
	sorted := make([]model.FileEntry, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h := sha256.New()
	for _, f := range sorted {
		h.Write([]byte(f.Path))
		h.Write([]byte(f.Hash))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ListSnapshots returns snapshots newest-first. limit <= 0 means all.
func (m *VersionManager) ListSnapshots(limit int, includeAutosave bool) ([]model.SnapshotMetadata, error) {
	return m.db.ListSnapshots(limit, includeAutosave)
}

// GetSnapshot resolves ref as an integer id or a tag and loads the full
// snapshot. Returns nil when not found.
func (m *VersionManager) GetSnapshot(ref string) (*model.Snapshot, error) {
	meta, err := m.resolveRef(ref)
	if err != nil || meta == nil {
		return nil, err
	}

	files, err := m.db.GetSnapshotFiles(meta.ID)
	if err != nil {
		return nil, err
	}
	return &model.Snapshot{Metadata: *meta, Files: files}, nil
}

// mustGetSnapshot is GetSnapshot with not-found promoted to an error.
func (m *VersionManager) mustGetSnapshot(ref string) (*model.Snapshot, error) {
	snap, err := m.GetSnapshot(ref)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: %q", ErrSnapshotNotFound, ref)
	}
	return snap, nil
}

func (m *VersionManager) resolveRef(ref string) (*model.SnapshotMetadata, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return m.db.GetSnapshot(id)
	}
	return m.db.GetSnapshotByTag(ref)
}

// DeleteSnapshot removes the referenced snapshot. Content blobs stay
// until CleanupOrphanedContents.
func (m *VersionManager) DeleteSnapshot(ref string) error {
	snap, err := m.mustGetSnapshot(ref)
	if err != nil {
		return err
	}
	if err := m.db.DeleteSnapshot(snap.Metadata.ID); err != nil {
		return err
	}
	m.logger.Info("snapshot deleted", "id", snap.Metadata.ID)
	return nil
}

// scanCurrent captures the live working tree as a file set.
func (m *VersionManager) scanCurrent() ([]model.FileEntry, error) {
	files, err := m.scanner.Scan(ScanOptions{})
	if err != nil {
		return nil, fmt.Errorf("scanning working tree: %w", err)
	}
	return files, nil
}

// Cleanup operations

// CleanupOldAutosaves keeps the newest maxKeep autosave snapshots and
// deletes the rest. Manual snapshots are never touched.
func (m *VersionManager) CleanupOldAutosaves(maxKeep int) (int64, error) {
	return m.db.CleanupOldAutosaves(maxKeep)
}

// CleanupExpiredAutosaves deletes autosave snapshots older than the given
// number of days.
func (m *VersionManager) CleanupExpiredAutosaves(days int) (int64, error) {
	cutoff := m.clock.Now().AddDate(0, 0, -days)
	return m.db.CleanupExpiredAutosaves(cutoff)
}

// CleanupOrphanedContents deletes content blobs no snapshot references.
func (m *VersionManager) CleanupOrphanedContents() (int64, error) {
	return m.db.CleanupOrphanedContents()
}

// CountSnapshots reports how many snapshots exist.
func (m *VersionManager) CountSnapshots(includeAutosave bool) (int64, error) {
	return m.db.CountSnapshots(includeAutosave)
}

// AutosaveState returns the autosave bookkeeping row.
func (m *VersionManager) AutosaveState() (*model.AutosaveState, error) {
	return m.db.GetAutosaveState()
}

// RecordAutosaveCheck stamps the last-check time.
func (m *VersionManager) RecordAutosaveCheck() error {
	state, err := m.db.GetAutosaveState()
	if err != nil {
		return err
	}
	state.LastCheck = m.clock.Now()
	return m.db.UpdateAutosaveState(state)
}

// RecordAutosaveSave stamps the last-save time and snapshot.
func (m *VersionManager) RecordAutosaveSave(snapshotID, filesTracked int64) error {
	state, err := m.db.GetAutosaveState()
	if err != nil {
		return err
	}
	now := m.clock.Now()
	state.LastCheck = now
	state.LastSave = now
	state.LastSnapshotID = snapshotID
	state.FilesTracked = filesTracked
	return m.db.UpdateAutosaveState(state)
}

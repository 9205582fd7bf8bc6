package gcd

import (
	"time"

	"gencodedoc/internal/model"
)

// Database is the metadata store behind the version manager: snapshot
// rows, per-snapshot file links, content blobs and the autosave state.
type Database interface {
	// CreateSnapshot persists a snapshot atomically: the metadata row,
	// every file link, and any content blob not yet stored. loadBlob is
	// called once per missing content hash and must return the stored
	// form of that content. The returned metadata carries the assigned
	// id, parent id and the compressed total of newly stored blobs.
	//
	// Fails with ErrNoChanges when meta.Hash already exists and with
	// ErrDuplicateTag when meta.Tag is taken. On any error nothing is
	// persisted.
	CreateSnapshot(meta model.SnapshotMetadata, files []model.FileEntry, loadBlob BlobLoader) (*model.SnapshotMetadata, error)

	GetSnapshot(id int64) (*model.SnapshotMetadata, error)
	GetSnapshotByTag(tag string) (*model.SnapshotMetadata, error)
	GetLatestSnapshot() (*model.SnapshotMetadata, error)
	ListSnapshots(limit int, includeAutosave bool) ([]model.SnapshotMetadata, error)
	CountSnapshots(includeAutosave bool) (int64, error)

	// DeleteSnapshot removes the snapshot row and its file links in one
	// transaction. Content blobs stay until CleanupOrphanedContents.
	DeleteSnapshot(id int64) error

	GetSnapshotFiles(snapshotID int64) ([]model.FileEntry, error)

	InsertContent(blob *model.ContentBlob) error
	GetContent(hash string) (*model.ContentBlob, error)
	ContentExists(hash string) (bool, error)

	GetAutosaveState() (*model.AutosaveState, error)
	UpdateAutosaveState(state *model.AutosaveState) error

	// CleanupOldAutosaves deletes autosave snapshots beyond the newest
	// maxKeep. Returns the number of snapshots deleted.
	CleanupOldAutosaves(maxKeep int) (int64, error)

	// CleanupExpiredAutosaves deletes autosave snapshots created before
	// the cutoff. Returns the number of snapshots deleted.
	CleanupExpiredAutosaves(cutoff time.Time) (int64, error)

	// CleanupOrphanedContents deletes content rows no snapshot file
	// references. Returns the number of rows deleted.
	CleanupOrphanedContents() (int64, error)

	Close() error
}

// BlobLoader produces the stored form of one content hash during snapshot
// creation. It is invoked only for hashes not already in the store.
type BlobLoader func(entry model.FileEntry) (*model.ContentBlob, error)

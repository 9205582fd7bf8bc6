package gcd

import "errors"

// Stable error kinds surfaced to callers. Operations wrap these with
// context via fmt.Errorf("...: %w", ...); callers test with errors.Is.
var (
	// ErrNotInitialized means no metadata store exists for the project.
	ErrNotInitialized = errors.New("project is not initialized")

	// ErrSnapshotNotFound means the referenced snapshot does not exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrFileNotInSnapshot means the snapshot exists but does not contain
	// the requested path.
	ErrFileNotInSnapshot = errors.New("file not found in snapshot")

	// ErrContentMissing means a file entry's content blob is gone from
	// the store.
	ErrContentMissing = errors.New("content not found in store")

	// ErrNoChanges means the attempted snapshot hashes identically to an
	// existing one.
	ErrNoChanges = errors.New("No changes detected")

	// ErrDuplicateTag means the tag is already attached to a snapshot.
	ErrDuplicateTag = errors.New("tag already exists")

	// ErrPathConflict means a restore target exists and force was false.
	ErrPathConflict = errors.New("target path already exists")

	// ErrInvalid covers unknown modes, unknown diff formats and
	// unparseable refs.
	ErrInvalid = errors.New("invalid argument")
)

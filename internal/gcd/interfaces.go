package gcd

import "gencodedoc/internal/model"

// ScanOptions narrows a working-tree scan.
type ScanOptions struct {
	// IncludePaths limits the scan to these project-relative paths (files
	// or directories), each still filtered through the ignore rules.
	// Empty means the whole project root.
	IncludePaths []string

	// ExcludePaths removes exact relative-path matches after the walk.
	ExcludePaths []string

	// IncludeBinary keeps files that fail the text heuristic.
	IncludeBinary bool
}

// Scanner produces the ordered file entries of the working tree.
type Scanner interface {
	Scan(opts ScanOptions) ([]model.FileEntry, error)
}

// ContentStore bridges file bytes and the metadata store: hashing,
// dedup, compress-on-write, decompress-on-read, restore-to-path.
type ContentStore interface {
	// Load reads the file at absPath and returns its stored blob form.
	Load(absPath string, entry model.FileEntry) (*model.ContentBlob, error)

	// Bytes returns the decompressed content for hash, or nil when the
	// blob is not stored.
	Bytes(hash string) ([]byte, error)

	// Text returns the content decoded as UTF-8; ok is false for
	// non-text content.
	Text(hash string) (text string, ok bool, err error)

	// RestoreFile writes the content for hash to targetPath, creating
	// parent directories and applying mode bits.
	RestoreFile(hash, targetPath string, mode uint32) error
}

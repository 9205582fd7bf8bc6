package store

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/google/uuid"

	"gencodedoc/internal/compress"
	"gencodedoc/internal/gcd"
	"gencodedoc/internal/model"
)

// ContentStore bridges files on disk and the metadata store: it hashes,
// deduplicates, compresses on write and decompresses on read. Blobs are
// keyed by content hash and shared by every snapshot referencing them.
type ContentStore struct {
	db                 gcd.Database
	compressor         *compress.Compressor
	compressionEnabled bool
	clock              gcd.Clock
}

// New creates a ContentStore over the given metadata store.
func New(db gcd.Database, compressor *compress.Compressor, compressionEnabled bool, clock gcd.Clock) *ContentStore {
	return &ContentStore{
		db:                 db,
		compressor:         compressor,
		compressionEnabled: compressionEnabled,
		clock:              clock,
	}
}

// Load reads the file at absPath and produces its stored blob form for
// the given entry. Used as the BlobLoader during snapshot creation.
func (c *ContentStore) Load(absPath string, entry model.FileEntry) (*model.ContentBlob, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", absPath, err)
	}

	blob := &model.ContentBlob{
		Hash:      entry.Hash,
		CreatedAt: c.clock.Now(),
	}
	if c.compressionEnabled {
		blob.Data, blob.OriginalSize, blob.StoredSize = c.compressor.Compress(data)
	} else {
		blob.Data = data
		blob.OriginalSize = int64(len(data))
		blob.StoredSize = int64(len(data))
	}
	return blob, nil
}

// Ingest persists the content of absPath under entry's hash, unless the
// blob already exists. Returns (0, 0) for an already-present blob so the
// caller's accounting reflects only newly stored bytes.
func (c *ContentStore) Ingest(absPath string, entry model.FileEntry) (originalSize, storedSize int64, err error) {
	exists, err := c.db.ContentExists(entry.Hash)
	if err != nil {
		return 0, 0, err
	}
	if exists {
		return 0, 0, nil
	}

	blob, err := c.Load(absPath, entry)
	if err != nil {
		return 0, 0, err
	}
	if err := c.db.InsertContent(blob); err != nil {
		return 0, 0, err
	}
	return blob.OriginalSize, blob.StoredSize, nil
}

// Bytes returns the decompressed content for hash, or nil when the blob
// is not stored.
func (c *ContentStore) Bytes(hash string) ([]byte, error) {
	blob, err := c.db.GetContent(hash)
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, nil
	}
	return c.compressor.Decompress(blob.Data)
}

// Text returns the content for hash decoded as UTF-8 text. Content that
// is not valid text returns ok=false.
func (c *ContentStore) Text(hash string) (text string, ok bool, err error) {
	data, err := c.Bytes(hash)
	if err != nil || data == nil {
		return "", false, err
	}
	if !utf8.Valid(data) {
		return "", false, nil
	}
	return string(data), true, nil
}

// RestoreFile writes the decompressed content for hash to targetPath,
// creating parent directories and applying the recorded mode bits. The
// write goes through a temp file in the target directory so a crash never
// leaves a half-written file at the final path.
func (c *ContentStore) RestoreFile(hash, targetPath string, mode uint32) error {
	data, err := c.Bytes(hash)
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("%w: %s", gcd.ErrContentMissing, hash)
	}

	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp := filepath.Join(dir, ".gencodedoc-tmp-"+uuid.New().String())
	if err := os.WriteFile(tmp, data, os.FileMode(mode)); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Chmod(tmp, os.FileMode(mode)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("setting mode on %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, targetPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming to %s: %w", targetPath, err)
	}
	return nil
}

// Compile-time check that ContentStore implements gcd.ContentStore.
var _ gcd.ContentStore = (*ContentStore)(nil)

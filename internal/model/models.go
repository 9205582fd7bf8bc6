package model

import (
	"path"
	"sort"
	"strings"
	"time"
)

// FileEntry is a single file as recorded in one snapshot.
// Paths are project-relative and use forward slashes on every platform.
type FileEntry struct {
	Path string // Relative path within the project
	Hash string // SHA-256 of the raw file bytes, lowercase hex
	Size int64  // Size in bytes
	Mode uint32 // File mode bits
}

// SnapshotMetadata describes a snapshot without its file list.
type SnapshotMetadata struct {
	ID             int64
	Hash           string // Deterministic hash over sorted (path, content hash) pairs
	Message        string
	Tag            string // Unique among snapshots when non-empty
	CreatedAt      time.Time
	ParentID       int64 // 0 when this is the first snapshot
	IsAutosave     bool
	TriggerType    string // "manual", "timer", "diff_threshold", ...
	FilesCount     int64
	TotalSize      int64
	CompressedSize int64 // Storage cost of blobs first persisted by this snapshot
}

// Snapshot is metadata plus the ordered file entries. Content bytes are not
// held here; they live in the content store keyed by FileEntry.Hash.
type Snapshot struct {
	Metadata SnapshotMetadata
	Files    []FileEntry
}

// GetFile returns the entry for the given relative path, or nil.
func (s *Snapshot) GetFile(relPath string) *FileEntry {
	for i := range s.Files {
		if s.Files[i].Path == relPath {
			return &s.Files[i]
		}
	}
	return nil
}

// FilesMatching returns entries matched by any of the given filters.
// A filter matches when it glob-matches the full path or is a literal
// prefix of it.
func (s *Snapshot) FilesMatching(filters []string) []FileEntry {
	var matched []FileEntry
	for _, f := range s.Files {
		if MatchesAny(f.Path, filters) {
			matched = append(matched, f)
		}
	}
	return matched
}

// MatchesAny reports whether relPath is selected by any filter.
// Filters are glob patterns (full-path match) or literal path prefixes.
func MatchesAny(relPath string, filters []string) bool {
	for _, pattern := range filters {
		if ok, err := path.Match(pattern, relPath); err == nil && ok {
			return true
		}
		if strings.HasPrefix(relPath, pattern) {
			return true
		}
	}
	return false
}

// SortFiles orders entries by path. Snapshot hashing and listings rely on
// a stable order.
func SortFiles(files []FileEntry) {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}

// ContentBlob is the stored form of one content hash.
type ContentBlob struct {
	Hash         string
	Data         []byte
	OriginalSize int64
	StoredSize   int64
	CreatedAt    time.Time
}

// AutosaveState is the singleton autosave bookkeeping row.
type AutosaveState struct {
	LastCheck      time.Time
	LastSave       time.Time
	LastSnapshotID int64
	FilesTracked   int64
}

package gcd

import (
	"sort"

	"gencodedoc/internal/model"
)

// History entry statuses.
const (
	HistoryAdded     = "added"
	HistoryModified  = "modified"
	HistoryUnchanged = "unchanged"
	HistoryRemoved   = "removed"
)

// HistoryEntry is one step in a file's life across snapshots.
type HistoryEntry struct {
	Snapshot model.SnapshotMetadata
	Status   string
	Hash     string // empty for removed entries
	Size     int64
}

// FileHistory walks every snapshot in ascending id order and reports how
// the file at relPath evolved: first seen, changed, unchanged, or removed
// after having been present. One linear series; there are no branches.
func (m *VersionManager) FileHistory(relPath string) ([]HistoryEntry, error) {
	metas, err := m.db.ListSnapshots(0, true)
	if err != nil {
		return nil, err
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].ID < metas[j].ID })

	var history []HistoryEntry
	prevHash := ""
	present := false

	for _, meta := range metas {
		files, err := m.db.GetSnapshotFiles(meta.ID)
		if err != nil {
			return nil, err
		}

		var entry *model.FileEntry
		for i := range files {
			if files[i].Path == relPath {
				entry = &files[i]
				break
			}
		}

		switch {
		case entry == nil && present:
			history = append(history, HistoryEntry{Snapshot: meta, Status: HistoryRemoved})
			present = false
			prevHash = ""
		case entry == nil:
			// Never seen yet, nothing to record.
		case !present:
			history = append(history, HistoryEntry{Snapshot: meta, Status: HistoryAdded, Hash: entry.Hash, Size: entry.Size})
			present = true
			prevHash = entry.Hash
		case entry.Hash != prevHash:
			history = append(history, HistoryEntry{Snapshot: meta, Status: HistoryModified, Hash: entry.Hash, Size: entry.Size})
			prevHash = entry.Hash
		default:
			history = append(history, HistoryEntry{Snapshot: meta, Status: HistoryUnchanged, Hash: entry.Hash, Size: entry.Size})
		}
	}

	return history, nil
}

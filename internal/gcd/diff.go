package gcd

import (
	"sort"

	"gencodedoc/internal/model"
)

// Diff compares two snapshots, or a snapshot against the live working
// tree when toRef is CurrentRef. fileFilters narrows the result after the
// full comparison so significance stays relative to the whole change set.
func (m *VersionManager) Diff(fromRef, toRef string, fileFilters []string) (*model.SnapshotDiff, error) {
	fromSnap, err := m.mustGetSnapshot(fromRef)
	if err != nil {
		return nil, err
	}

	var toFiles []model.FileEntry
	var toID int64
	if toRef == "" || toRef == CurrentRef {
		toFiles, err = m.scanCurrent()
		if err != nil {
			return nil, err
		}
		toID = 0 // live working tree
	} else {
		toSnap, err := m.mustGetSnapshot(toRef)
		if err != nil {
			return nil, err
		}
		toFiles = toSnap.Files
		toID = toSnap.Metadata.ID
	}

	diff := DiffFileSets(fromSnap.Files, toFiles)
	diff.FromSnapshot = fromSnap.Metadata.ID
	diff.ToSnapshot = toID

	if len(fileFilters) > 0 {
		diff = diff.Filter(fileFilters)
	}
	return diff, nil
}

// DiffFileSets computes the set-level diff between two file lists keyed
// by path. Significance is total changes over the larger file count,
// floored at 1.
func DiffFileSets(from, to []model.FileEntry) *model.SnapshotDiff {
	fromMap := make(map[string]model.FileEntry, len(from))
	for _, f := range from {
		fromMap[f.Path] = f
	}
	toMap := make(map[string]model.FileEntry, len(to))
	for _, f := range to {
		toMap[f.Path] = f
	}

	diff := &model.SnapshotDiff{}

	for path := range toMap {
		if _, ok := fromMap[path]; !ok {
			diff.FilesAdded = append(diff.FilesAdded, path)
		}
	}
	for path, oldEntry := range fromMap {
		newEntry, ok := toMap[path]
		if !ok {
			diff.FilesRemoved = append(diff.FilesRemoved, path)
			continue
		}
		if oldEntry.Hash != newEntry.Hash {
			diff.FilesModified = append(diff.FilesModified, model.DiffEntry{
				Path:    path,
				OldHash: oldEntry.Hash,
				NewHash: newEntry.Hash,
			})
		}
	}

	sort.Strings(diff.FilesAdded)
	sort.Strings(diff.FilesRemoved)
	sort.Slice(diff.FilesModified, func(i, j int) bool {
		return diff.FilesModified[i].Path < diff.FilesModified[j].Path
	})

	diff.TotalChanges = len(diff.FilesAdded) + len(diff.FilesRemoved) + len(diff.FilesModified)

	total := len(fromMap)
	if len(toMap) > total {
		total = len(toMap)
	}
	if total < 1 {
		total = 1
	}
	diff.Significance = float64(diff.TotalChanges) / float64(total)

	return diff
}

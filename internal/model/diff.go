package model

// DiffEntry is a single modified file in a snapshot diff.
type DiffEntry struct {
	Path    string
	OldHash string
	NewHash string
}

// SnapshotDiff is the set-level comparison of two snapshots.
// ToSnapshot is 0 when the comparison target was the live working tree.
type SnapshotDiff struct {
	FromSnapshot  int64
	ToSnapshot    int64
	FilesAdded    []string
	FilesRemoved  []string
	FilesModified []DiffEntry
	TotalChanges  int
	Significance  float64
}

// Filter returns a new diff restricted to paths selected by the filters.
// Significance of the filtered diff is relative to the unfiltered change
// count, matching how partial diffs are reported.
func (d *SnapshotDiff) Filter(filters []string) *SnapshotDiff {
	filtered := &SnapshotDiff{
		FromSnapshot: d.FromSnapshot,
		ToSnapshot:   d.ToSnapshot,
	}
	for _, p := range d.FilesAdded {
		if MatchesAny(p, filters) {
			filtered.FilesAdded = append(filtered.FilesAdded, p)
		}
	}
	for _, p := range d.FilesRemoved {
		if MatchesAny(p, filters) {
			filtered.FilesRemoved = append(filtered.FilesRemoved, p)
		}
	}
	for _, e := range d.FilesModified {
		if MatchesAny(e.Path, filters) {
			filtered.FilesModified = append(filtered.FilesModified, e)
		}
	}
	filtered.TotalChanges = len(filtered.FilesAdded) + len(filtered.FilesRemoved) + len(filtered.FilesModified)
	total := d.TotalChanges
	if total < 1 {
		total = 1
	}
	filtered.Significance = float64(filtered.TotalChanges) / float64(total)
	return filtered
}

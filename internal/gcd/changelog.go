package gcd

import (
	"fmt"
	"sort"
	"strings"
)

// Changelog renders the diff between two snapshots as Keep-a-Changelog
// style Markdown: Added / Changed / Removed sections sorted
// alphabetically, with a comparison line and a change-count trailer.
// toRef defaults to the live working tree.
func (m *VersionManager) Changelog(fromRef, toRef string) (string, error) {
	fromSnap, err := m.mustGetSnapshot(fromRef)
	if err != nil {
		return "", err
	}

	diff, err := m.Diff(fromRef, toRef, nil)
	if err != nil {
		return "", err
	}

	fromLabel := snapshotLabel(&fromSnap.Metadata)
	toLabel := "working tree"
	date := m.clock.Now()
	if diff.ToSnapshot != 0 {
		toMeta, err := m.db.GetSnapshot(diff.ToSnapshot)
		if err != nil {
			return "", err
		}
		toLabel = snapshotLabel(toMeta)
		date = toMeta.CreatedAt
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## [%s] - %s\n\n", toLabel, date.Format("2006-01-02"))
	fmt.Fprintf(&b, "Compared with [%s].\n\n", fromLabel)

	writeSection := func(title string, paths []string) {
		if len(paths) == 0 {
			return
		}
		sorted := make([]string, len(paths))
		copy(sorted, paths)
		sort.Strings(sorted)

		fmt.Fprintf(&b, "### %s\n\n", title)
		for _, p := range sorted {
			fmt.Fprintf(&b, "- %s\n", p)
		}
		b.WriteString("\n")
	}

	writeSection("Added", diff.FilesAdded)
	var changed []string
	for _, e := range diff.FilesModified {
		changed = append(changed, e.Path)
	}
	writeSection("Changed", changed)
	writeSection("Removed", diff.FilesRemoved)

	if diff.TotalChanges == 0 {
		b.WriteString("No changes.\n\n")
	}

	fmt.Fprintf(&b, "%d change(s), significance %.2f.\n", diff.TotalChanges, diff.Significance)
	return b.String(), nil
}

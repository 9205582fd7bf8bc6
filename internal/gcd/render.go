package gcd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"gencodedoc/internal/model"
)

// Diff rendering formats.
const (
	FormatUnified  = "unified"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatAST      = "ast" // renders as unified with a preamble note
)

// RenderDiff renders a snapshot diff in the given format. context is the
// number of unchanged lines around each hunk in unified output.
func (m *VersionManager) RenderDiff(diff *model.SnapshotDiff, format string, context int) (string, error) {
	switch format {
	case "", FormatUnified:
		return m.renderUnified(diff, context, "")
	case FormatAST:
		// AST diffing is not implemented; fall back to a line diff.
		return m.renderUnified(diff, context, "AST diff unavailable, showing unified diff.\n\n")
	case FormatJSON:
		return renderJSON(diff)
	case FormatMarkdown:
		return renderMarkdown(diff), nil
	default:
		return "", fmt.Errorf("%w: unknown diff format %q", ErrInvalid, format)
	}
}

func (m *VersionManager) renderUnified(diff *model.SnapshotDiff, context int, preamble string) (string, error) {
	if context <= 0 {
		context = 3
	}

	var b strings.Builder
	b.WriteString(preamble)

	for _, path := range diff.FilesAdded {
		fmt.Fprintf(&b, "Added: %s\n", path)
	}
	for _, path := range diff.FilesRemoved {
		fmt.Fprintf(&b, "Removed: %s\n", path)
	}

	for _, entry := range diff.FilesModified {
		oldText, oldOK := m.textForHash(entry.OldHash, entry.Path, diff)
		newText, newOK := m.textForHash(entry.NewHash, entry.Path, diff)
		if !oldOK || !newOK {
			fmt.Fprintf(&b, "Modified (binary): %s\n", entry.Path)
			continue
		}

		ud := difflib.UnifiedDiff{
			A:        difflib.SplitLines(oldText),
			B:        difflib.SplitLines(newText),
			FromFile: fmt.Sprintf("a/%s", entry.Path),
			ToFile:   fmt.Sprintf("b/%s", entry.Path),
			Context:  context,
		}
		text, err := difflib.GetUnifiedDiffString(ud)
		if err != nil {
			return "", fmt.Errorf("diffing %s: %w", entry.Path, err)
		}
		b.WriteString(text)
	}

	if diff.TotalChanges == 0 {
		b.WriteString("No changes.\n")
	}
	return b.String(), nil
}

// textForHash loads the text content behind a hash. For diffs against the
// live working tree, the new-side content may not be in the store yet; in
// that case it is read from disk.
func (m *VersionManager) textForHash(hash, relPath string, diff *model.SnapshotDiff) (string, bool) {
	text, ok, err := m.store.Text(hash)
	if err == nil && ok {
		return text, true
	}

	if diff.ToSnapshot == 0 {
		data, err := os.ReadFile(filepath.Join(m.projectRoot, filepath.FromSlash(relPath)))
		if err == nil {
			return string(data), true
		}
	}
	return "", false
}

func renderJSON(diff *model.SnapshotDiff) (string, error) {
	type modifiedEntry struct {
		Path    string `json:"path"`
		OldHash string `json:"old_hash"`
		NewHash string `json:"new_hash"`
	}
	payload := struct {
		FromSnapshot int64           `json:"from_snapshot"`
		ToSnapshot   int64           `json:"to_snapshot"`
		Added        []string        `json:"files_added"`
		Removed      []string        `json:"files_removed"`
		Modified     []modifiedEntry `json:"files_modified"`
		TotalChanges int             `json:"total_changes"`
		Significance float64         `json:"significance_score"`
	}{
		FromSnapshot: diff.FromSnapshot,
		ToSnapshot:   diff.ToSnapshot,
		Added:        diff.FilesAdded,
		Removed:      diff.FilesRemoved,
		TotalChanges: diff.TotalChanges,
		Significance: diff.Significance,
	}
	for _, e := range diff.FilesModified {
		payload.Modified = append(payload.Modified, modifiedEntry{Path: e.Path, OldHash: e.OldHash, NewHash: e.NewHash})
	}

	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding diff: %w", err)
	}
	return string(out), nil
}

func renderMarkdown(diff *model.SnapshotDiff) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Diff: snapshot %d → %s\n\n", diff.FromSnapshot, diffTargetLabel(diff))

	if len(diff.FilesAdded) > 0 {
		b.WriteString("### Added\n\n")
		for _, p := range diff.FilesAdded {
			fmt.Fprintf(&b, "- `%s`\n", p)
		}
		b.WriteString("\n")
	}
	if len(diff.FilesRemoved) > 0 {
		b.WriteString("### Removed\n\n")
		for _, p := range diff.FilesRemoved {
			fmt.Fprintf(&b, "- `%s`\n", p)
		}
		b.WriteString("\n")
	}
	if len(diff.FilesModified) > 0 {
		b.WriteString("### Modified\n\n")
		for _, e := range diff.FilesModified {
			fmt.Fprintf(&b, "- `%s`\n", e.Path)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "**Total changes:** %d (significance %.2f)\n", diff.TotalChanges, diff.Significance)
	return b.String()
}

func diffTargetLabel(diff *model.SnapshotDiff) string {
	if diff.ToSnapshot == 0 {
		return "working tree"
	}
	return fmt.Sprintf("snapshot %d", diff.ToSnapshot)
}

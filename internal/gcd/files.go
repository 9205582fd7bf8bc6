package gcd

import (
	"fmt"
	"os"
	"path/filepath"

	"gencodedoc/internal/model"
)

// GetFileAtVersion returns the content of one file as recorded in the
// referenced snapshot. text is the UTF-8 decoding when the content is
// valid text.
func (m *VersionManager) GetFileAtVersion(ref, filePath string) (data []byte, text string, isText bool, err error) {
	snap, err := m.mustGetSnapshot(ref)
	if err != nil {
		return nil, "", false, err
	}

	entry := snap.GetFile(filePath)
	if entry == nil {
		return nil, "", false, fmt.Errorf("%w: %q in snapshot %q", ErrFileNotInSnapshot, filePath, ref)
	}

	data, err = m.store.Bytes(entry.Hash)
	if err != nil {
		return nil, "", false, err
	}
	if data == nil {
		return nil, "", false, fmt.Errorf("%w: %s", ErrContentMissing, entry.Hash)
	}

	text, isText, err = m.store.Text(entry.Hash)
	if err != nil {
		return nil, "", false, err
	}
	return data, text, isText, nil
}

// ListFilesAtVersion returns the file entries of the referenced snapshot,
// optionally narrowed to those whose path matches the glob pattern.
func (m *VersionManager) ListFilesAtVersion(ref, pattern string) ([]model.FileEntry, error) {
	snap, err := m.mustGetSnapshot(ref)
	if err != nil {
		return nil, err
	}

	files := snap.Files
	if pattern != "" {
		files = snap.FilesMatching([]string{pattern})
	}
	model.SortFiles(files)
	return files, nil
}

// RestoreReport summarizes a restore.
type RestoreReport struct {
	Restored      int
	Skipped       int
	Total         int
	FilesRestored []string
	FilesSkipped  []string
}

// Restore writes files from the referenced snapshot back to targetDir
// (the project root when empty). fileFilters selects a subset; without
// filters every file is restored. Existing targets are skipped unless
// force is set.
func (m *VersionManager) Restore(ref, targetDir string, force bool, fileFilters []string) (*RestoreReport, error) {
	snap, err := m.mustGetSnapshot(ref)
	if err != nil {
		return nil, err
	}

	if targetDir == "" {
		targetDir = m.projectRoot
	}

	files := snap.Files
	if len(fileFilters) > 0 {
		files = snap.FilesMatching(fileFilters)
	}

	report := &RestoreReport{Total: len(files)}
	for _, f := range files {
		target := filepath.Join(targetDir, filepath.FromSlash(f.Path))

		if _, err := os.Stat(target); err == nil && !force {
			report.Skipped++
			report.FilesSkipped = append(report.FilesSkipped, f.Path)
			continue
		}

		if err := m.store.RestoreFile(f.Hash, target, f.Mode); err != nil {
			m.logger.Warn("failed to restore file", "path", f.Path, "error", err)
			report.Skipped++
			report.FilesSkipped = append(report.FilesSkipped, f.Path)
			continue
		}
		report.Restored++
		report.FilesRestored = append(report.FilesRestored, f.Path)
	}

	m.logger.Info("restore finished",
		"snapshot", snap.Metadata.ID, "restored", report.Restored, "skipped", report.Skipped)
	return report, nil
}

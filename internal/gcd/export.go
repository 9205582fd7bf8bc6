package gcd

import (
	"archive/tar"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"gencodedoc/internal/model"
)

// ExportReport summarizes an export.
type ExportReport struct {
	Snapshot      string // tag when present, else the id
	Format        string // "folder" or "tar.gz"
	OutputPath    string
	ExportedCount int
	FailedCount   int
	ArchiveSize   int64 // archive mode only
	FilesExported []string
	FilesFailed   []string
}

// Export writes the referenced snapshot's files to outputPath, either as
// a folder tree or as a gzip-compressed tar archive.
func (m *VersionManager) Export(ref, outputPath string, archive bool, fileFilters []string) (*ExportReport, error) {
	snap, err := m.mustGetSnapshot(ref)
	if err != nil {
		return nil, err
	}

	files := snap.Files
	if len(fileFilters) > 0 {
		files = snap.FilesMatching(fileFilters)
	}

	if archive {
		return m.exportArchive(snap, files, outputPath)
	}
	return m.exportFolder(snap, files, outputPath)
}

func (m *VersionManager) exportFolder(snap *model.Snapshot, files []model.FileEntry, outputPath string) (*ExportReport, error) {
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", outputPath, err)
	}

	report := &ExportReport{
		Snapshot:   snapshotLabel(&snap.Metadata),
		Format:     "folder",
		OutputPath: outputPath,
	}
	for _, f := range files {
		target := filepath.Join(outputPath, filepath.FromSlash(f.Path))
		if err := m.store.RestoreFile(f.Hash, target, f.Mode); err != nil {
			m.logger.Warn("failed to export file", "path", f.Path, "error", err)
			report.FailedCount++
			report.FilesFailed = append(report.FilesFailed, f.Path)
			continue
		}
		report.ExportedCount++
		report.FilesExported = append(report.FilesExported, f.Path)
	}
	return report, nil
}

func (m *VersionManager) exportArchive(snap *model.Snapshot, files []model.FileEntry, outputPath string) (*ExportReport, error) {
	if !strings.HasSuffix(outputPath, ".tar.gz") {
		ext := filepath.Ext(outputPath)
		outputPath = strings.TrimSuffix(outputPath, ext) + ".tar.gz"
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(outputPath), err)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("creating archive: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	report := &ExportReport{
		Snapshot:   snapshotLabel(&snap.Metadata),
		Format:     "tar.gz",
		OutputPath: outputPath,
	}
	for _, f := range files {
		data, err := m.store.Bytes(f.Hash)
		if err != nil || data == nil {
			m.logger.Warn("failed to export file", "path", f.Path, "error", err)
			report.FailedCount++
			report.FilesFailed = append(report.FilesFailed, f.Path)
			continue
		}

		hdr := &tar.Header{
			Name:    f.Path,
			Mode:    int64(f.Mode),
			Size:    int64(len(data)),
			ModTime: snap.Metadata.CreatedAt,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("writing archive header for %s: %w", f.Path, err)
		}
		if _, err := tw.Write(data); err != nil {
			return nil, fmt.Errorf("writing archive entry for %s: %w", f.Path, err)
		}
		report.ExportedCount++
		report.FilesExported = append(report.FilesExported, f.Path)
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip stream: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("closing archive file: %w", err)
	}

	if info, err := os.Stat(outputPath); err == nil {
		report.ArchiveSize = info.Size()
	}
	return report, nil
}

// snapshotLabel is the tag when present, otherwise the id.
func snapshotLabel(meta *model.SnapshotMetadata) string {
	if meta.Tag != "" {
		return meta.Tag
	}
	return fmt.Sprintf("%d", meta.ID)
}

package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"

	"gencodedoc/internal/gcd"
	"gencodedoc/internal/model"
)

// hashChunkSize is the read size for streaming file hashing.
const hashChunkSize = 64 * 1024

// Scanner walks the working tree through an IgnoreFilter and emits the
// file entries a snapshot records. Per-file read errors are logged and
// skipped; they never fail the scan.
type Scanner struct {
	projectRoot string
	filter      *IgnoreFilter
	logger      gcd.Logger
}

// NewScanner creates a Scanner rooted at projectRoot.
func NewScanner(projectRoot string, filter *IgnoreFilter, logger gcd.Logger) *Scanner {
	return &Scanner{projectRoot: projectRoot, filter: filter, logger: logger}
}

// Scan produces the ordered file entries for the working tree.
func (s *Scanner) Scan(opts gcd.ScanOptions) ([]model.FileEntry, error) {
	var entries []model.FileEntry

	visit := func(absPath, relPath string, d iofs.DirEntry) error {
		if !opts.IncludeBinary && IsBinary(absPath) {
			return nil
		}
		entry, err := s.fileEntry(absPath, relPath)
		if err != nil {
			s.logger.Warn("skipping unreadable file", "path", relPath, "error", err)
			return nil
		}
		entries = append(entries, *entry)
		return nil
	}

	if len(opts.IncludePaths) > 0 {
		for _, inc := range opts.IncludePaths {
			if err := s.scanOne(inc, visit); err != nil {
				return nil, err
			}
		}
	} else {
		if err := s.filter.ScanDirectory(s.projectRoot, visit); err != nil {
			return nil, fmt.Errorf("walking %s: %w", s.projectRoot, err)
		}
	}

	if len(opts.ExcludePaths) > 0 {
		excluded := make(map[string]struct{}, len(opts.ExcludePaths))
		for _, p := range opts.ExcludePaths {
			excluded[filepath.ToSlash(p)] = struct{}{}
		}
		kept := entries[:0]
		for _, e := range entries {
			if _, drop := excluded[e.Path]; !drop {
				kept = append(kept, e)
			}
		}
		entries = kept
	}

	model.SortFiles(entries)
	return entries, nil
}

// scanOne visits a single include path, which may be a file or directory.
func (s *Scanner) scanOne(rel string, visit func(string, string, iofs.DirEntry) error) error {
	abs := filepath.Join(s.projectRoot, filepath.FromSlash(rel))
	info, err := os.Stat(abs)
	if err != nil {
		s.logger.Warn("skipping missing include path", "path", rel, "error", err)
		return nil
	}

	if info.IsDir() {
		// Walk the subtree; relative paths stay project-rooted.
		return s.filter.ScanDirectory(abs, func(absPath, subRel string, d iofs.DirEntry) error {
			full, err := filepath.Rel(s.projectRoot, absPath)
			if err != nil {
				return nil
			}
			return visit(absPath, filepath.ToSlash(full), d)
		})
	}

	relSlash := filepath.ToSlash(rel)
	if s.filter.ShouldIgnore(relSlash, false) {
		return nil
	}
	return visit(abs, relSlash, nil)
}

// fileEntry stats and hashes one file.
func (s *Scanner) fileEntry(absPath, relPath string) (*model.FileEntry, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, err
	}

	hash, err := HashFile(absPath)
	if err != nil {
		return nil, err
	}

	return &model.FileEntry{
		Path: relPath,
		Hash: hash,
		Size: info.Size(),
		Mode: uint32(info.Mode().Perm()),
	}, nil
}

// HashFile computes the SHA-256 of a file by streaming it in 64 KiB
// chunks, returned as lowercase hex.
func HashFile(absPath string) (string, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hashing %s: %w", absPath, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the SHA-256 of data as lowercase hex.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Compile-time check that Scanner implements gcd.Scanner.
var _ gcd.Scanner = (*Scanner)(nil)

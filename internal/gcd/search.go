package gcd

import (
	"sort"
	"strings"

	"gencodedoc/internal/model"
)

// Search result caps: at most maxSearchFiles files are returned, with at
// most maxSearchLines matching lines each.
const (
	maxSearchFiles = 50
	maxSearchLines = 5
)

// SearchMatch is one matching line.
type SearchMatch struct {
	LineNumber int
	Line       string // trimmed content
}

// SearchResult is the per-file hit set.
type SearchResult struct {
	SnapshotID int64
	Path       string
	Matches    []SearchMatch // first maxSearchLines matches
	TotalHits  int           // across the whole file
}

// SearchOptions narrows a content search.
type SearchOptions struct {
	// FileFilter is a glob pattern applied to paths before any content
	// is decompressed.
	FileFilter string

	// SnapshotRef searches a single snapshot; empty searches every
	// manual snapshot.
	SnapshotRef string

	CaseSensitive bool
}

// Search scans snapshot content for the query string. Each distinct
// content hash is decompressed and scanned once no matter how many
// snapshots share it, and results are capped at maxSearchFiles files.
func (m *VersionManager) Search(query string, opts SearchOptions) ([]SearchResult, error) {
	var snapshots []model.SnapshotMetadata
	if opts.SnapshotRef != "" {
		snap, err := m.mustGetSnapshot(opts.SnapshotRef)
		if err != nil {
			return nil, err
		}
		snapshots = []model.SnapshotMetadata{snap.Metadata}
	} else {
		metas, err := m.db.ListSnapshots(0, false)
		if err != nil {
			return nil, err
		}
		snapshots = metas
	}

	needle := query
	if !opts.CaseSensitive {
		needle = strings.ToLower(needle)
	}

	// Scan each content hash once; snapshots share blobs.
	type hashHits struct {
		matches []SearchMatch
		total   int
	}
	scanned := make(map[string]*hashHits)

	var results []SearchResult
	for _, meta := range snapshots {
		files, err := m.db.GetSnapshotFiles(meta.ID)
		if err != nil {
			return nil, err
		}
		sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

		for _, f := range files {
			if len(results) >= maxSearchFiles {
				return results, nil
			}
			if opts.FileFilter != "" && !model.MatchesAny(f.Path, []string{opts.FileFilter}) {
				continue
			}

			hits, ok := scanned[f.Hash]
			if !ok {
				hits = &hashHits{}
				scanned[f.Hash] = hits

				text, isText, err := m.store.Text(f.Hash)
				if err != nil {
					return nil, err
				}
				if isText {
					hits.matches, hits.total = scanText(text, needle, opts.CaseSensitive)
				}
			}

			if hits.total == 0 {
				continue
			}
			results = append(results, SearchResult{
				SnapshotID: meta.ID,
				Path:       f.Path,
				Matches:    hits.matches,
				TotalHits:  hits.total,
			})
		}
	}

	return results, nil
}

func scanText(text, needle string, caseSensitive bool) ([]SearchMatch, int) {
	var matches []SearchMatch
	total := 0

	for i, line := range strings.Split(text, "\n") {
		haystack := line
		if !caseSensitive {
			haystack = strings.ToLower(haystack)
		}
		if !strings.Contains(haystack, needle) {
			continue
		}
		total++
		if len(matches) < maxSearchLines {
			matches = append(matches, SearchMatch{
				LineNumber: i + 1,
				Line:       strings.TrimSpace(line),
			})
		}
	}
	return matches, total
}

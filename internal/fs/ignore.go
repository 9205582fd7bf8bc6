package fs

import (
	"io/fs"
	"path"
	"path/filepath"
	"strings"
)

// IgnoreFilter decides whether a project-relative path is excluded from
// scans. It combines four rule sets: directory base-names (prune the whole
// subtree), file base-names, lower-case dot-prefixed extensions, and
// gitignore-style patterns evaluated against the relative path.
type IgnoreFilter struct {
	dirs       map[string]struct{}
	files      map[string]struct{}
	extensions map[string]struct{}
	patterns   []ignorePattern
}

// ignorePattern is a parsed pattern with its matching strategy.
// Patterns without '/' match against the basename only; patterns with '/'
// match against the full relative path.
type ignorePattern struct {
	pattern   string
	matchPath bool
}

// NewIgnoreFilter creates a filter from the four rule lists. Blank
// patterns and patterns starting with '#' are skipped.
func NewIgnoreFilter(dirs, files, extensions, patterns []string) *IgnoreFilter {
	f := &IgnoreFilter{
		dirs:       make(map[string]struct{}, len(dirs)),
		files:      make(map[string]struct{}, len(files)),
		extensions: make(map[string]struct{}, len(extensions)),
	}
	for _, d := range dirs {
		f.dirs[d] = struct{}{}
	}
	for _, name := range files {
		f.files[name] = struct{}{}
	}
	for _, ext := range extensions {
		f.extensions[strings.ToLower(ext)] = struct{}{}
	}
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		f.patterns = append(f.patterns, ignorePattern{
			pattern:   strings.TrimSuffix(raw, "/"),
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return f
}

// ShouldIgnore reports whether the given project-relative path is ignored.
// relPath uses forward slashes.
func (f *IgnoreFilter) ShouldIgnore(relPath string, isDir bool) bool {
	base := path.Base(relPath)

	if isDir {
		if _, ok := f.dirs[base]; ok {
			return true
		}
	} else {
		// A file inside an ignored directory is ignored even when the
		// walk did not prune it (explicit include paths).
		for _, part := range strings.Split(path.Dir(relPath), "/") {
			if _, ok := f.dirs[part]; ok {
				return true
			}
		}
		if _, ok := f.files[base]; ok {
			return true
		}
		if _, ok := f.extensions[strings.ToLower(path.Ext(relPath))]; ok {
			return true
		}
	}

	for _, p := range f.patterns {
		var matched bool
		var err error
		if p.matchPath {
			matched, err = path.Match(p.pattern, relPath)
		} else {
			matched, err = path.Match(p.pattern, base)
		}
		if err != nil {
			// Bad pattern — skip rather than crash.
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// ScanDirectory walks root depth-first and calls visit for every kept
// regular file with its absolute path and project-relative slash path.
// Ignored directories are pruned, not filtered after the fact, and
// unreadable directories are skipped silently.
func (f *IgnoreFilter) ScanDirectory(root string, visit func(absPath, relPath string, d fs.DirEntry) error) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p == root {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if f.ShouldIgnore(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if f.ShouldIgnore(rel, false) {
			return nil
		}
		return visit(p, rel, d)
	})
}

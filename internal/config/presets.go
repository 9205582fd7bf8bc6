package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// presets are the built-in ignore presets applied by init and
// apply_preset.
var presets = map[string]IgnoreConfig{
	"python": {
		Dirs:       []string{"venv", ".venv", "__pycache__", "dist", "build", ".git", ".idea", ".vscode"},
		Extensions: []string{".pyc", ".pyo", ".pyd", ".so", ".dll", ".class"},
		Files:      []string{".DS_Store", "Thumbs.db"},
	},
	"nodejs": {
		Dirs:  []string{"node_modules", "dist", "build", "coverage", ".git"},
		Files: []string{"package-lock.json", "yarn.lock", ".DS_Store"},
	},
	"web": {
		Dirs:       []string{"node_modules", "dist", ".git"},
		Extensions: []string{".map", ".min.js", ".css.map"},
	},
	"go": {
		Dirs:       []string{"vendor", "bin", ".git"},
		Extensions: []string{".exe", ".test"},
	},
}

// PresetNames returns the available preset names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyPreset extends the config's ignore lists with the named preset.
func ApplyPreset(cfg *Config, preset string) error {
	p, ok := presets[preset]
	if !ok {
		return fmt.Errorf("unknown preset %q (available: %v)", preset, PresetNames())
	}
	cfg.Ignore.Dirs = append(cfg.Ignore.Dirs, p.Dirs...)
	cfg.Ignore.Files = append(cfg.Ignore.Files, p.Files...)
	cfg.Ignore.Extensions = append(cfg.Ignore.Extensions, p.Extensions...)
	cfg.Ignore.Dirs = dedupe(cfg.Ignore.Dirs)
	cfg.Ignore.Files = dedupe(cfg.Ignore.Files)
	cfg.Ignore.Extensions = dedupe(cfg.Ignore.Extensions)
	return nil
}

// DetectIgnore inspects the project for well-known ecosystem markers and
// returns ignore rules for what it finds.
func DetectIgnore(projectPath string) IgnoreConfig {
	var ignore IgnoreConfig

	has := func(name string) bool {
		_, err := os.Stat(filepath.Join(projectPath, name))
		return err == nil
	}

	if has("requirements.txt") || has("pyproject.toml") {
		ignore.Dirs = append(ignore.Dirs, "venv", ".venv", "__pycache__")
		ignore.Extensions = append(ignore.Extensions, ".pyc", ".pyo")
	}
	if has("package.json") {
		ignore.Dirs = append(ignore.Dirs, "node_modules", "dist", ".next")
	}
	if has("go.mod") {
		ignore.Dirs = append(ignore.Dirs, "vendor")
	}
	return ignore
}

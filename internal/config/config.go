package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultConfigName is the per-project config file name.
const DefaultConfigName = ".gencodedoc.toml"

// DefaultStoragePath is the per-project storage directory.
const DefaultStoragePath = ".gencodedoc"

// Config is the per-project configuration.
type Config struct {
	ProjectName string `toml:"project_name"`
	ProjectPath string `toml:"-"` // Always injected from the loading context
	StoragePath string `toml:"storage_path"`

	Ignore   IgnoreConfig   `toml:"ignore"`
	Autosave AutosaveConfig `toml:"autosave"`
	Diff     DiffConfig     `toml:"diff_format"`

	CompressionEnabled bool `toml:"compression_enabled"`
	CompressionLevel   int  `toml:"compression_level"`
}

// IgnoreConfig holds the four ignore rule lists.
type IgnoreConfig struct {
	Dirs       []string `toml:"dirs"`
	Files      []string `toml:"files"`
	Extensions []string `toml:"extensions"`
	Patterns   []string `toml:"patterns"`
}

// AutosaveConfig configures the autosave controller.
type AutosaveConfig struct {
	Enabled   bool                `toml:"enabled"`
	Mode      string              `toml:"mode"` // "timer", "diff", or "hybrid"
	Timer     TimerConfig         `toml:"timer"`
	Diff      DiffThresholdConfig `toml:"diff_threshold"`
	Hybrid    HybridConfig        `toml:"hybrid"`
	Retention RetentionConfig     `toml:"retention"`
}

// TimerConfig configures timer mode.
type TimerConfig struct {
	IntervalSeconds int `toml:"interval"`
}

// DiffThresholdConfig configures diff-threshold mode.
type DiffThresholdConfig struct {
	Threshold            float64 `toml:"threshold"`
	CheckIntervalSeconds int     `toml:"check_interval"`
	IgnoreWhitespace     bool    `toml:"ignore_whitespace"`
	IgnoreComments       bool    `toml:"ignore_comments"`
}

// HybridConfig configures hybrid mode.
type HybridConfig struct {
	MinIntervalSeconds int     `toml:"min_interval"`
	MaxIntervalSeconds int     `toml:"max_interval"`
	Threshold          float64 `toml:"threshold"`
}

// RetentionConfig bounds the number and age of autosave snapshots.
// CompressAfterDays is recorded but not acted on.
type RetentionConfig struct {
	MaxAutosaves      int  `toml:"max_autosaves"`
	CompressAfterDays int  `toml:"compress_after_days"`
	DeleteAfterDays   int  `toml:"delete_after_days"`
	KeepManual        bool `toml:"keep_manual"`
}

// DiffConfig configures diff rendering.
type DiffConfig struct {
	Default            string `toml:"default"` // "unified", "json", "markdown", or "ast"
	UnifiedContext     int    `toml:"unified_context"`
	JSONIncludeContent bool   `toml:"json_include_content"`
	ASTEnabled         bool   `toml:"ast_enabled"`
}

// NewConfig creates a Config with defaults for the given project.
func NewConfig(projectPath string) *Config {
	return &Config{
		ProjectName: filepath.Base(projectPath),
		ProjectPath: projectPath,
		StoragePath: DefaultStoragePath,
		Autosave: AutosaveConfig{
			Mode:  "hybrid",
			Timer: TimerConfig{IntervalSeconds: 300},
			Diff: DiffThresholdConfig{
				Threshold:            0.05,
				CheckIntervalSeconds: 60,
			},
			Hybrid: HybridConfig{
				MinIntervalSeconds: 120,
				MaxIntervalSeconds: 1800,
				Threshold:          0.05,
			},
			Retention: RetentionConfig{
				MaxAutosaves:    50,
				DeleteAfterDays: 7,
				KeepManual:      true,
			},
		},
		Diff: DiffConfig{
			Default:        "unified",
			UnifiedContext: 3,
		},
		CompressionEnabled: true,
		CompressionLevel:   3,
	}
}

// StorageDir returns the absolute storage directory for the project.
func (c *Config) StorageDir() string {
	if filepath.IsAbs(c.StoragePath) {
		return c.StoragePath
	}
	return filepath.Join(c.ProjectPath, c.StoragePath)
}

// DatabasePath returns the absolute path of the metadata store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.StorageDir(), "gencodedoc.db")
}

// ConfigPath returns the absolute path of the project config file.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.ProjectPath, DefaultConfigName)
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// Load reads the project config for projectPath, merging file values over
// defaults. A missing config file yields the defaults.
func Load(projectPath string) (*Config, error) {
	cfg := NewConfig(projectPath)

	path := filepath.Join(projectPath, DefaultConfigName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	if _, err := toml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	cfg.ProjectPath = projectPath
	if cfg.StoragePath == "" {
		cfg.StoragePath = DefaultStoragePath
	}
	return cfg, nil
}

// Save writes the config to the project config file. Ignore lists are
// deduplicated first, preserving order.
func Save(cfg *Config) error {
	cfg.Ignore.Dirs = dedupe(cfg.Ignore.Dirs)
	cfg.Ignore.Files = dedupe(cfg.Ignore.Files)
	cfg.Ignore.Extensions = dedupe(cfg.Ignore.Extensions)
	cfg.Ignore.Patterns = dedupe(cfg.Ignore.Patterns)

	path := cfg.ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Exists reports whether projectPath has a config file.
func Exists(projectPath string) bool {
	_, err := os.Stat(filepath.Join(projectPath, DefaultConfigName))
	return err == nil
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

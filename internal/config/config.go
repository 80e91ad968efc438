// Package config loads and validates ccengram configuration.
//
// Configuration is layered:
//  1. Built-in defaults
//  2. Project config (.ccengram/config.yaml in the project root)
//  3. Environment variables (CCENGRAM_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProjectConfigDir is the in-project configuration directory.
const ProjectConfigDir = ".ccengram"

// ProjectConfigFile is the in-project configuration file name.
const ProjectConfigFile = "config.yaml"

// ProjectIgnoreFile is the project-specific ignore file consulted in
// addition to .gitignore and .git/info/exclude.
const ProjectIgnoreFile = ".ccengramignore"

// StartupScanMode selects which classifications the startup
// reconciliation scan applies.
type StartupScanMode string

const (
	// ScanModeDeletedOnly only removes chunks for deleted files.
	ScanModeDeletedOnly StartupScanMode = "deleted_only"
	// ScanModeDeletedAndNew removes deleted files and indexes new ones;
	// modified files are folded into unchanged.
	ScanModeDeletedAndNew StartupScanMode = "deleted_and_new"
	// ScanModeFull applies all four classifications.
	ScanModeFull StartupScanMode = "full"
)

// ParseScanMode parses a scan mode string case-insensitively.
func ParseScanMode(s string) (StartupScanMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deleted_only":
		return ScanModeDeletedOnly, nil
	case "deleted_and_new":
		return ScanModeDeletedAndNew, nil
	case "full", "":
		return ScanModeFull, nil
	default:
		return "", fmt.Errorf("unknown startup scan mode: %q", s)
	}
}

// Config is the complete per-project configuration.
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Docs      DocsConfig      `yaml:"docs"`
	Memory    MemoryConfig    `yaml:"memory"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the embedding backend: "ollama" (local, default),
	// "openrouter" (cloud), or "static" (offline hash embedder).
	Provider string `yaml:"provider"`

	// Model is the embedding model identifier.
	Model string `yaml:"model"`

	// Dimensions is the fixed vector dimension; vectors from providers
	// are padded or truncated to this length.
	Dimensions int `yaml:"dimensions"`

	// ContextLength is the model context window, used to derive the
	// batch size when MaxBatchSize is unset.
	ContextLength int `yaml:"context_length"`

	// MaxBatchSize overrides the computed sub-batch size when > 0.
	MaxBatchSize int `yaml:"max_batch_size"`

	// QueryInstruction, when non-empty, is prepended to query-mode
	// embeddings as "Instruct: {instruction}\nQuery:{text}".
	QueryInstruction string `yaml:"query_instruction"`

	// OllamaURL is the local provider endpoint.
	OllamaURL string `yaml:"ollama_url"`

	// OpenRouterAPIKey authenticates the cloud provider. The
	// OPENROUTER_API_KEY environment variable takes precedence.
	OpenRouterAPIKey string `yaml:"openrouter_api_key"`

	// MaxConcurrent bounds concurrent sub-batches for the local provider.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// IndexConfig configures scanning, watching, and indexing.
type IndexConfig struct {
	// MaxFileSize is the largest file the scanner will index, in bytes.
	MaxFileSize int64 `yaml:"max_file_size"`

	// ParallelFiles bounds how many files index concurrently.
	ParallelFiles int `yaml:"parallel_files"`

	// WatcherDebounceMs is the quiet window for coalescing file events.
	WatcherDebounceMs int `yaml:"watcher_debounce_ms"`

	// StartupScan enables the reconciliation scan when a watcher starts.
	StartupScan bool `yaml:"startup_scan"`

	// StartupScanMode gates which classifications the scan applies.
	StartupScanMode StartupScanMode `yaml:"startup_scan_mode"`

	// StartupScanBlocking suspends watcher startup until the scan completes.
	StartupScanBlocking bool `yaml:"startup_scan_blocking"`

	// StartupScanTimeoutSecs bounds total scan work (0 = unlimited).
	StartupScanTimeoutSecs int `yaml:"startup_scan_timeout_secs"`

	// StartupScanMaxFiles caps scanned files (0 = unlimited).
	StartupScanMaxFiles int `yaml:"startup_scan_max_files"`
}

// DocsConfig configures prose document ingestion.
type DocsConfig struct {
	// Directory is the docs root relative to the project (empty = disabled).
	Directory string `yaml:"directory"`

	// Extensions lists ingestable file extensions.
	Extensions []string `yaml:"extensions"`

	// MaxFileSize is the largest document to ingest, in bytes.
	MaxFileSize int64 `yaml:"max_file_size"`
}

// MemoryConfig configures the memory subsystem.
type MemoryConfig struct {
	// MinContentLength rejects memories shorter than this many characters.
	MinContentLength int `yaml:"min_content_length"`

	// MaxContentLength caps memory content size in bytes.
	MaxContentLength int `yaml:"max_content_length"`

	// ArchiveThreshold is the salience below which idle memories are archived.
	ArchiveThreshold float64 `yaml:"archive_threshold"`

	// MaxIdleDays is the idle period required before archival.
	MaxIdleDays int `yaml:"max_idle_days"`

	// SimhashMaxDistance is the Hamming threshold for near-duplicate detection.
	SimhashMaxDistance int `yaml:"simhash_max_distance"`
}

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:      "ollama",
			Model:         "nomic-embed-text",
			Dimensions:    768,
			ContextLength: 8192,
			OllamaURL:     "http://localhost:11434",
			MaxConcurrent: 4,
		},
		Index: IndexConfig{
			MaxFileSize:            2 * 1024 * 1024,
			ParallelFiles:          4,
			WatcherDebounceMs:      300,
			StartupScan:            true,
			StartupScanMode:        ScanModeFull,
			StartupScanBlocking:    false,
			StartupScanTimeoutSecs: 300,
		},
		Docs: DocsConfig{
			Extensions:  []string{".md", ".mdx", ".txt", ".rst"},
			MaxFileSize: 1024 * 1024,
		},
		Memory: MemoryConfig{
			MinContentLength:   8,
			MaxContentLength:   8 * 1024,
			ArchiveThreshold:   0.1,
			MaxIdleDays:        90,
			SimhashMaxDistance: 10,
		},
	}
}

// Load reads configuration for a project root, applying defaults,
// the project config file, and environment overrides in order.
func Load(root string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(root, ProjectConfigDir, ProjectConfigFile)
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigPath returns the project config file path for a root.
func ConfigPath(root string) string {
	return filepath.Join(root, ProjectConfigDir, ProjectConfigFile)
}

// applyEnv applies CCENGRAM_* environment overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("CCENGRAM_EMBEDDING_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("CCENGRAM_EMBEDDING_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("CCENGRAM_EMBEDDING_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embedding.Dimensions = n
		}
	}
	if v := os.Getenv("CCENGRAM_OLLAMA_URL"); v != "" {
		c.Embedding.OllamaURL = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.Embedding.OpenRouterAPIKey = v
	}
	if v := os.Getenv("CCENGRAM_PARALLEL_FILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.ParallelFiles = n
		}
	}
}

// Validate checks configuration invariants, filling computable defaults.
func (c *Config) Validate() error {
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.ContextLength <= 0 {
		c.Embedding.ContextLength = 8192
	}
	if c.Embedding.MaxConcurrent <= 0 {
		c.Embedding.MaxConcurrent = 4
	}
	if c.Index.MaxFileSize <= 0 {
		c.Index.MaxFileSize = 2 * 1024 * 1024
	}
	if c.Index.ParallelFiles <= 0 {
		c.Index.ParallelFiles = 4
	}
	if c.Index.WatcherDebounceMs <= 0 {
		c.Index.WatcherDebounceMs = 300
	}
	if _, err := ParseScanMode(string(c.Index.StartupScanMode)); err != nil {
		return err
	}
	if c.Memory.MinContentLength <= 0 {
		c.Memory.MinContentLength = 8
	}
	if c.Memory.ArchiveThreshold <= 0 {
		c.Memory.ArchiveThreshold = 0.1
	}
	if c.Memory.MaxIdleDays <= 0 {
		c.Memory.MaxIdleDays = 90
	}
	if c.Memory.SimhashMaxDistance <= 0 {
		c.Memory.SimhashMaxDistance = 10
	}
	return nil
}

// ComputedMaxBatchSize returns the effective embedding sub-batch size:
// configured when set, otherwise clamp(context_length/512, 1, 64).
func (c *EmbeddingConfig) ComputedMaxBatchSize() int {
	if c.MaxBatchSize > 0 {
		return c.MaxBatchSize
	}
	n := c.ContextLength / 512
	if n < 1 {
		n = 1
	}
	if n > 64 {
		n = 64
	}
	return n
}

// Save writes the config to the project config file, creating the
// .ccengram directory if needed.
func (c *Config) Save(root string) error {
	dir := filepath.Join(root, ProjectConfigDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ProjectConfigFile), data, 0o644)
}

// Package config loads vaultgraph's YAML configuration, following the
// teacher's pattern of a single nested Config struct with a
// DefaultConfig() seed and per-section structs for each subsystem.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"vaultgraph/internal/logging"
)

// Config holds all vaultgraph configuration.
type Config struct {
	VaultRoot string `yaml:"vault_root"`

	Watch     WatchConfig     `yaml:"watch"`
	Sweep     SweepConfig     `yaml:"sweep"`
	Commit    CommitConfig    `yaml:"commit"`
	AutoLink  AutoLinkConfig  `yaml:"auto_link"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// WatchConfig configures the filesystem watcher and event queue (§4.C).
type WatchConfig struct {
	Enabled        bool `yaml:"watch_enabled"`
	DebounceMs     int  `yaml:"debounce_ms"`
	FlushMs        int  `yaml:"flush_ms"`
	BatchSize      int  `yaml:"batch_size"`
	PollIntervalMs int  `yaml:"poll_interval_ms"`
	UsePolling     bool `yaml:"use_polling"`
}

// SweepConfig configures the periodic hygiene pass (§4.F).
type SweepConfig struct {
	IntervalMs    int `yaml:"sweep_interval_ms"`
	HubThreshold  int `yaml:"hub_threshold"`
	OrphanMaxRefs int `yaml:"orphan_max_refs"`
}

// CommitConfig configures the version-control gateway's retry policy (§4.I).
type CommitConfig struct {
	Enabled        bool `yaml:"enabled"`
	MaxAttempts    int  `yaml:"max_attempts"`
	BaseDelayMs    int  `yaml:"base_delay_ms"`
	MaxDelayMs     int  `yaml:"max_delay_ms"`
	Jitter         bool `yaml:"jitter"`
	StaleLockMs    int  `yaml:"stale_lock_ms"`
	CommitTagLabel string `yaml:"commit_tag_label"`
}

// AutoLinkConfig configures the wikilink suggestion resolver (§4.G).
type AutoLinkConfig struct {
	LinkThreshold      float64            `yaml:"link_threshold"`
	SuggestThreshold   float64            `yaml:"suggest_threshold"`
	ShortNameMinLen    int                `yaml:"short_name_min_len"`
	CategoryWeights    map[string]float64 `yaml:"category_weights"`
	CategoryAffinityOn bool               `yaml:"category_affinity_enabled"`
}

// StoreConfig configures the persistent SQLite store (§4.E).
type StoreConfig struct {
	Path        string `yaml:"path"` // relative to vault_root, default .flywheel/vaultgraph.db
	BusyTimeout int    `yaml:"busy_timeout_ms"`
}

// EmbeddingConfig mirrors embedding.Config for top-level wiring.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
}

// LoggingConfig mirrors the relevant subset the logging package reads
// directly from its own config.json; kept here too so `vaultctl` can
// render one combined config file.
type LoggingConfig struct {
	Level      string          `yaml:"level"`
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Watch: WatchConfig{
			Enabled:        true,
			DebounceMs:     200,
			FlushMs:        1000,
			BatchSize:      50,
			PollIntervalMs: 2000,
		},
		Sweep: SweepConfig{
			IntervalMs:    5 * 60 * 1000,
			HubThreshold:  10,
			OrphanMaxRefs: 0,
		},
		Commit: CommitConfig{
			Enabled:        true,
			MaxAttempts:    3,
			BaseDelayMs:    200,
			MaxDelayMs:     2000,
			Jitter:         true,
			StaleLockMs:    30000,
			CommitTagLabel: "vaultgraph",
		},
		AutoLink: AutoLinkConfig{
			LinkThreshold:    0.72,
			SuggestThreshold: 0.45,
			ShortNameMinLen:  3,
			CategoryWeights: map[string]float64{
				"people":        1.0,
				"projects":      0.95,
				"technologies":  0.85,
				"acronyms":      0.9,
				"organisations": 0.8,
				"locations":     0.7,
				"concepts":      0.6,
				"other":         0.5,
			},
			CategoryAffinityOn: true,
		},
		Store: StoreConfig{
			Path:        filepath.Join(".flywheel", "vaultgraph.db"),
			BusyTimeout: 5000,
		},
		Embedding: EmbeddingConfig{},
		Logging: LoggingConfig{
			Level:      "info",
			DebugMode:  false,
			JSONFormat: false,
		},
	}
}

// Load reads a YAML config file at path, falling back to defaults for
// anything not set. A missing file returns defaults without error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.ConfigLog("no config file at %s, using defaults", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	logging.ConfigLog("loaded config from %s", path)
	return cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

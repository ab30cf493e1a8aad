// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < explicit file < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/logflow/procinsight/pkg/analysis"
	perrors "github.com/logflow/procinsight/pkg/errors"
)

// Config holds all procinsight configuration.
type Config struct {
	Version int `yaml:"version"`

	Analysis  AnalysisConfig  `yaml:"analysis"`
	Export    ExportConfig    `yaml:"export"`
	Watch     WatchConfig     `yaml:"watch"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// AnalysisConfig controls the analysis engine.
type AnalysisConfig struct {
	Workers int             `yaml:"workers"` // 0 or 1 = sequential
	Policy  analysis.Policy `yaml:"policy"`
}

// ExportConfig controls the DuckDB/Parquet star-schema export.
type ExportConfig struct {
	OutputDir   string `yaml:"output_dir"`
	Compression string `yaml:"compression"` // snappy | zstd | gzip | none
	Database    string `yaml:"database"`    // empty = in-memory
}

// WatchConfig controls re-analysis on input change.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// TelemetryConfig for optional OTLP tracing.
type TelemetryConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Endpoint      string  `yaml:"endpoint"`
	ServiceName   string  `yaml:"service_name"`
	SamplingRatio float64 `yaml:"sampling_ratio"`
	Insecure      bool    `yaml:"insecure"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Analysis: AnalysisConfig{
			Workers: 0,
			Policy:  analysis.DefaultPolicy(),
		},
		Export: ExportConfig{
			OutputDir:   "procinsight-export",
			Compression: "snappy",
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			Endpoint:      "localhost:4317",
			ServiceName:   "procinsight",
			SamplingRatio: 1.0,
			Insecure:      true,
		},
	}
}

var validCompression = map[string]bool{
	"snappy": true, "zstd": true, "gzip": true, "none": true, "uncompressed": true,
}

// Validate checks the configuration for values the engine cannot use.
func (c *Config) Validate() error {
	if c.Analysis.Workers < 0 {
		return perrors.New(perrors.CodeValidationFailed, "analysis.workers must not be negative").
			WithContext("workers", c.Analysis.Workers)
	}
	if err := c.Analysis.Policy.Validate(); err != nil {
		return err
	}
	if !validCompression[c.Export.Compression] {
		return perrors.New(perrors.CodeValidationFailed, "unsupported export compression").
			WithContext("compression", c.Export.Compression)
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return perrors.New(perrors.CodeValidationFailed, "telemetry.sampling_ratio must be within [0,1]").
			WithContext("sampling_ratio", c.Telemetry.SamplingRatio)
	}
	return nil
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
	getenv func(string) string
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
		getenv: os.Getenv,
	}
}

// Load loads configuration from all sources in priority order. explicit,
// when non-empty, is loaded after the standard locations and must exist.
func (m *Manager) Load(explicit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range standardPaths() {
		if err := m.loadFile(path); err != nil {
			// Ignore missing files, fail on broken ones
			if !os.IsNotExist(err) {
				return err
			}
			continue
		}
		m.paths = append(m.paths, path)
	}

	if explicit != "" {
		if err := m.loadFile(explicit); err != nil {
			if os.IsNotExist(err) {
				return perrors.FileNotFound(explicit)
			}
			return err
		}
		m.paths = append(m.paths, explicit)
	}

	if err := m.loadEnv(); err != nil {
		return err
	}
	return m.config.Validate()
}

// standardPaths returns config file paths in priority order.
func standardPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/procinsight/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".procinsight", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".procinsight.yaml"))
	}
	return paths
}

// loadFile overlays a YAML file onto the current config. Keys absent from
// the file keep their current value.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, m.config); err != nil {
		return perrors.Wrap(err, perrors.CodeInvalidFormat, "invalid config file").WithContext("path", path)
	}
	return nil
}

// loadEnv applies environment variable overrides.
func (m *Manager) loadEnv() error {
	if v := m.getenv("PROCINSIGHT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return perrors.Wrap(err, perrors.CodeValidationFailed, "invalid PROCINSIGHT_WORKERS")
		}
		m.config.Analysis.Workers = n
	}

	if v := m.getenv("PROCINSIGHT_COMPRESSION"); v != "" {
		m.config.Export.Compression = v
	}

	if v := m.getenv("PROCINSIGHT_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.Endpoint = v
		m.config.Telemetry.Enabled = true
	}
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Marshal renders the current configuration as YAML.
func (m *Manager) Marshal() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return yaml.Marshal(m.config)
}

// Save writes the current config to path, creating parent directories.
func (m *Manager) Save(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return perrors.Wrap(err, perrors.CodeWriteFailed, "create config directory")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return perrors.Wrap(err, perrors.CodeWriteFailed, "write config").WithContext("path", path)
	}
	return nil
}

// UserConfigPath returns ~/.procinsight/config.yaml.
func UserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".procinsight", "config.yaml"), nil
}

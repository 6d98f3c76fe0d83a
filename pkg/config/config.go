// Package config loads trackgen configuration.
// Priority: defaults < config file < environment (TRACKGEN_*) < flags
package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/logflow/trackgen/pkg/distribution"
	tgerrors "github.com/logflow/trackgen/pkg/errors"
	"github.com/logflow/trackgen/pkg/store/sqlstore"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TRACKGEN_"

// Config holds all trackgen configuration.
type Config struct {
	// Sources lists database paths, glob patterns or s3:// URLs in the order
	// they are consumed.
	Sources []string `yaml:"sources" env:"SOURCES" envSeparator:","`

	Store        StoreConfig         `yaml:"store" envPrefix:"STORE_"`
	Sampler      SamplerConfig       `yaml:"sampler" envPrefix:"SAMPLER_"`
	Distribution distribution.Config `yaml:"distribution" envPrefix:"DISTRIBUTION_"`
	Checkpoint   CheckpointConfig    `yaml:"checkpoint" envPrefix:"CHECKPOINT_"`
	S3           S3Config            `yaml:"s3" envPrefix:"S3_"`
	Output       OutputConfig        `yaml:"output" envPrefix:"OUTPUT_"`
	Telemetry    TelemetryConfig     `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// StoreConfig selects the database driver and layout.
type StoreConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"` // sqlite | duckdb

	Schema sqlstore.Schema `yaml:",inline"`
}

// SamplerConfig controls which particles qualify.
type SamplerConfig struct {
	HitCountThreshold int   `yaml:"hit_count_threshold" env:"HIT_COUNT_THRESHOLD"`
	TargetSpecies     int64 `yaml:"target_species" env:"TARGET_SPECIES"`
}

// CheckpointConfig controls cursor persistence.
type CheckpointConfig struct {
	Backend string `yaml:"backend" env:"BACKEND"` // none | file | redis | file+redis
	ID      string `yaml:"id" env:"ID"`
	Dir     string `yaml:"dir" env:"DIR"`

	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB"`
	TTL           time.Duration `yaml:"ttl" env:"TTL"`
	LockTTL       time.Duration `yaml:"lock_ttl" env:"LOCK_TTL"`
}

// S3Config configures staging of s3:// sources.
type S3Config struct {
	Region     string `yaml:"region" env:"REGION"`
	Endpoint   string `yaml:"endpoint" env:"ENDPOINT"`
	PathStyle  bool   `yaml:"path_style" env:"PATH_STYLE"`
	StagingDir string `yaml:"staging_dir" env:"STAGING_DIR"`
}

// OutputConfig controls Parquet export.
type OutputConfig struct {
	Dir         string `yaml:"dir" env:"DIR"`
	Compression string `yaml:"compression" env:"COMPRESSION"` // snappy | zstd | gzip | none
}

// TelemetryConfig controls OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled" env:"ENABLED"`
	Endpoint    string  `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRatio float64 `yaml:"sample_ratio" env:"SAMPLE_RATIO"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: string(sqlstore.DriverSQLite),
			Schema: sqlstore.DefaultSchema(),
		},
		Sampler: SamplerConfig{
			HitCountThreshold: 20,
			TargetSpecies:     11,
		},
		Distribution: distribution.Config{
			Kind: "poisson",
			Mean: 5,
		},
		Checkpoint: CheckpointConfig{
			Backend: "none",
			Dir:     filepath.Join(os.TempDir(), "trackgen", "checkpoints"),
			TTL:     7 * 24 * time.Hour,
			LockTTL: time.Minute,
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Output: OutputConfig{
			Compression: "snappy",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "trackgen",
			SampleRatio: 1.0,
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return tgerrors.Configuration("no sources configured")
	}
	if _, err := sqlstore.ParseDriver(c.Store.Driver); err != nil {
		return err
	}
	if err := c.Store.Schema.Validate(); err != nil {
		return err
	}
	if c.Sampler.HitCountThreshold < 0 {
		return tgerrors.Configuration("sampler.hit_count_threshold must not be negative, got %d", c.Sampler.HitCountThreshold)
	}
	if _, err := distribution.FromConfig(c.Distribution); err != nil {
		return err
	}

	switch c.Checkpoint.Backend {
	case "", "none":
	case "file":
		if c.Checkpoint.Dir == "" {
			return tgerrors.Configuration("checkpoint.dir is required for the file backend")
		}
	case "redis", "file+redis":
		if c.Checkpoint.RedisAddr == "" {
			return tgerrors.Configuration("checkpoint.redis_addr is required for the %s backend", c.Checkpoint.Backend)
		}
		if c.Checkpoint.LockTTL <= 0 {
			return tgerrors.Configuration("checkpoint.lock_ttl must be positive for the %s backend, got %s", c.Checkpoint.Backend, c.Checkpoint.LockTTL)
		}
	default:
		return tgerrors.Configuration("unknown checkpoint backend %q", c.Checkpoint.Backend)
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return tgerrors.Configuration("telemetry.sample_ratio must be within [0, 1], got %v", c.Telemetry.SampleRatio)
	}
	return nil
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	path   string
}

// NewManager creates a new configuration manager holding the defaults.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
	}
}

// Load reads path over the defaults, then applies environment overrides. An
// empty path skips the file.
func (m *Manager) Load(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := Default()
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return err
		}
	}
	if err := loadEnv(cfg); err != nil {
		return err
	}

	m.config = cfg
	m.path = path
	return nil
}

// loadFile decodes a YAML file onto cfg. Keys absent from the file keep their
// current values.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return tgerrors.Wrap(err, tgerrors.CodeConfiguration, "failed to read config file").
			WithContext("path", path)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return tgerrors.Wrap(err, tgerrors.CodeConfiguration, "failed to parse config file").
			WithContext("path", path)
	}
	return nil
}

// loadEnv applies TRACKGEN_* environment variables.
func loadEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return tgerrors.Wrap(err, tgerrors.CodeConfiguration, "failed to parse environment")
	}
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Path returns the file the configuration was loaded from.
func (m *Manager) Path() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.path
}

// Load is a shortcut for NewManager().Load(path) followed by Validate.
func Load(path string) (*Config, error) {
	m := NewManager()
	if err := m.Load(path); err != nil {
		return nil, err
	}
	cfg := m.Get()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

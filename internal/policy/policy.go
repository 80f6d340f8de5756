// Package policy loads cartd configuration and exposes it to the application.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultNamespace prefixes every storage key ("@GoMarketplace:cart").
const DefaultNamespace = "GoMarketplace"

// PersistMode selects which storage key each mutation writes and which snapshot it writes.
type PersistMode string

const (
	// PersistLegacy reproduces the storefront app: add writes the pre-mutation
	// cart under "cart", increment/decrement write the post-mutation cart under "products".
	PersistLegacy PersistMode = "legacy"
	// PersistUnified writes the post-mutation cart under "cart" for every mutation.
	PersistUnified PersistMode = "unified"
)

// ZeroPolicy decides what decrement does when a quantity reaches zero.
type ZeroPolicy string

const (
	ZeroKeep   ZeroPolicy = "keep"   // allow negative quantities, never remove
	ZeroFloor  ZeroPolicy = "floor"  // clamp at zero
	ZeroRemove ZeroPolicy = "remove" // drop the line item at zero or below
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Trace exporters.
const (
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// GlobalStateDir returns the default state directory (~/.config/cartd).
func GlobalStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "cartd")
}

// GlobalStateFile returns the default SQLite file path.
func GlobalStateFile() string {
	return filepath.Join(GlobalStateDir(), "cart.sqlite")
}

// StorageConfig selects and configures the key-value backend.
type StorageConfig struct {
	Driver        string `yaml:"driver"`         // sqlite (default), redis, memory
	Path          string `yaml:"path"`           // sqlite file
	RedisAddr     string `yaml:"redis_addr"`     // host:port or redis:// URL
	RedisPassword string `yaml:"redis_password"` // ignored when redis_addr is a URL
	RedisDB       int    `yaml:"redis_db"`
}

// PersistenceConfig controls how mutations are mirrored to storage.
type PersistenceConfig struct {
	Mode PersistMode `yaml:"mode"`
}

// TracingConfig controls the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout (default) or none
}

// Config holds cartd configuration.
type Config struct {
	Namespace  string `yaml:"namespace"`
	LogFile    string `yaml:"log_file"`
	HTTPPort   int    `yaml:"http_port"`
	Stdio      bool   `yaml:"stdio"`
	SignalFile string `yaml:"signal_file"`

	Storage      StorageConfig     `yaml:"storage"`
	Persistence  PersistenceConfig `yaml:"persistence"`
	ZeroQuantity ZeroPolicy        `yaml:"zero_quantity"`
	Tracing      TracingConfig     `yaml:"tracing"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Namespace: DefaultNamespace,
		HTTPPort:  7411,
		Storage: StorageConfig{
			Driver: DriverSQLite,
		},
		Persistence:  PersistenceConfig{Mode: PersistLegacy},
		ZeroQuantity: ZeroKeep,
		Tracing:      TracingConfig{Exporter: ExporterStdout},
	}
}

// LoadConfig loads configuration from a YAML file on top of DefaultConfig
// and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fills empty enum fields with defaults and rejects unknown values.
func (c *Config) Validate() error {
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Persistence.Mode == "" {
		c.Persistence.Mode = PersistLegacy
	}
	if c.ZeroQuantity == "" {
		c.ZeroQuantity = ZeroKeep
	}

	switch strings.ToLower(c.Storage.Driver) {
	case DriverSQLite, DriverRedis, DriverMemory:
		c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	default:
		return fmt.Errorf("storage.driver %q: want sqlite, redis or memory", c.Storage.Driver)
	}
	if c.Storage.Driver == DriverRedis && c.Storage.RedisAddr == "" {
		return fmt.Errorf("storage.redis_addr is required for the redis driver")
	}
	switch c.Persistence.Mode {
	case PersistLegacy, PersistUnified:
	default:
		return fmt.Errorf("persistence.mode %q: want legacy or unified", c.Persistence.Mode)
	}
	switch c.ZeroQuantity {
	case ZeroKeep, ZeroFloor, ZeroRemove:
	default:
		return fmt.Errorf("zero_quantity %q: want keep, floor or remove", c.ZeroQuantity)
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = ExporterStdout
	}
	switch c.Tracing.Exporter {
	case ExporterStdout, ExporterNone:
	default:
		return fmt.Errorf("tracing.exporter %q: want stdout or none", c.Tracing.Exporter)
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port %d out of range", c.HTTPPort)
	}
	return nil
}

// Policy exposes configuration to the application. The configuration is
// read-only once the Policy is created.
type Policy struct {
	config *Config
}

// New creates a Policy over cfg.
func New(cfg *Config) *Policy {
	return &Policy{config: cfg}
}

// Namespace returns the storage key namespace.
func (p *Policy) Namespace() string {
	return p.config.Namespace
}

// PersistMode returns the persistence mode.
func (p *Policy) PersistMode() PersistMode {
	return p.config.Persistence.Mode
}

// ZeroPolicy returns the zero-quantity policy.
func (p *Policy) ZeroPolicy() ZeroPolicy {
	return p.config.ZeroQuantity
}

// StorageConfig returns the storage backend configuration with defaults applied.
func (p *Policy) StorageConfig() StorageConfig {
	sc := p.config.Storage
	if sc.Driver == DriverSQLite && sc.Path == "" {
		sc.Path = GlobalStateFile()
	}
	return sc
}

// SignalFilePath returns the notify signal file. Defaults to the state directory,
// next to the SQLite file when one is used.
func (p *Policy) SignalFilePath() string {
	if p.config.SignalFile != "" {
		return p.config.SignalFile
	}
	sc := p.StorageConfig()
	if sc.Driver == DriverSQLite {
		return filepath.Join(filepath.Dir(sc.Path), ".cartd-notify")
	}
	return filepath.Join(GlobalStateDir(), ".cartd-notify")
}

// LogFile returns the configured log file path.
// If unset, defaults to ~/.config/cartd/cartd.log.
// Set to "none" or "off" to disable file logging entirely.
func (p *Policy) LogFile() string {
	if p.config.LogFile == "" {
		return filepath.Join(GlobalStateDir(), "cartd.log")
	}
	return p.config.LogFile
}

// Tracing returns the tracing configuration.
func (p *Policy) Tracing() TracingConfig {
	return p.config.Tracing
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Database drivers.
const (
	DriverRedis    = "redis"
	DriverValkey   = "valkey"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the usagemeter API configuration.
type Config struct {
	HTTP     HTTPConfig                `yaml:"http"`
	Database DatabaseConfig            `yaml:"database"`
	Auth     AuthConfig                `yaml:"auth"`
	Metering MeteringConfig            `yaml:"metering"`
	Limits   map[string]map[string]int `yaml:"limits"` // tier -> category -> limit overrides
	Storage  StorageConfig             `yaml:"storage"`
	CORS     CORSConfig                `yaml:"cors"`
	Logging  LoggingConfig             `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds identity hand-off settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`   // checked when set
	Audience  string `yaml:"audience"` // checked when set
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds counter store connection settings.
type DatabaseConfig struct {
	Driver             string   `yaml:"driver"`   // redis, valkey, postgres, memory (default: redis)
	Addrs              []string `yaml:"addrs"`    // redis / valkey
	Username           string   `yaml:"username"` // redis / valkey ACL user
	Password           string   `yaml:"password"`
	DB                 int      `yaml:"db"`
	DSN                string   `yaml:"dsn"` // postgres
	MaxOpenConns       int      `yaml:"max_open_conns"`
	MaxIdleConns       int      `yaml:"max_idle_conns"`
	ConnMaxLifetimeSec int      `yaml:"conn_max_lifetime_sec"`
	ReadinessTimeout   int      `yaml:"readiness_timeout_sec"`
}

// ConnMaxLifetime returns how long a pooled postgres connection may be reused (0 = forever).
func (d DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(d.ConnMaxLifetimeSec) * time.Second
}

// MeteringConfig holds check/record behaviour.
type MeteringConfig struct {
	StoreTimeoutMs int    `yaml:"store_timeout_ms"`
	PeriodPolicy   string `yaml:"period_policy"` // anchor (default) | calendar
}

// StoreTimeout returns the per-operation counter store deadline.
func (m MeteringConfig) StoreTimeout() time.Duration {
	return time.Duration(m.StoreTimeoutMs) * time.Millisecond
}

// StorageConfig holds counter key settings.
type StorageConfig struct {
	KeyPrefix     string `yaml:"key_prefix"`
	RetentionDays int    `yaml:"retention_days"` // 0 = keep forever
}

// Retention returns how long counters outlive their period.
func (s StorageConfig) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}

// CORSConfig holds browser access settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML with env substitution, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverRedis
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Metering.StoreTimeoutMs <= 0 {
		c.Metering.StoreTimeoutMs = 2000
	}
	if c.Metering.PeriodPolicy == "" {
		c.Metering.PeriodPolicy = "anchor"
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "usagemeter:"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case DriverRedis, DriverValkey:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", c.Database.Driver)
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
		}
	case DriverMemory:
		// ok
	default:
		return fmt.Errorf("database.driver must be one of redis, valkey, postgres, memory, got %q", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	switch c.Metering.PeriodPolicy {
	case "anchor", "calendar":
		// ok
	default:
		return fmt.Errorf("metering.period_policy must be \"anchor\" or \"calendar\", got %q", c.Metering.PeriodPolicy)
	}
	if c.Database.MaxIdleConns < 0 || c.Database.ConnMaxLifetimeSec < 0 {
		return fmt.Errorf("database.max_idle_conns and database.conn_max_lifetime_sec must be >= 0")
	}
	if c.Database.MaxOpenConns > 0 && c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) exceeds database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("storage.retention_days must be >= 0, got %d", c.Storage.RetentionDays)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

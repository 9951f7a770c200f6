// Package config provides environment-based configuration for SiApp.
//
// Values are resolved in order: built-in defaults, the optional YAML file
// named by SIAPP_CONFIG, then environment variables (a .env file in the
// working directory is loaded into the environment first).
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default admin credentials.
const (
	DefaultAdminUser     = "admin"
	DefaultAdminPassword = "siapp123"
)

// Config holds all configuration for SiApp.
type Config struct {
	// Server configuration
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// DataDir is the root of the flat-file record store.
	DataDir string `yaml:"data_dir"`
	// TemplateDir overrides the embedded page templates when set.
	TemplateDir string `yaml:"template_dir"`

	// Admin panel authentication
	Admin AdminConfig `yaml:"admin"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// CleanupInterval is the period of the temp file and session janitor.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	// Logging
	Log LogConfig `yaml:"log"`
}

// AdminConfig holds the admin credentials and session policy.
type AdminConfig struct {
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	SessionTimeout   time.Duration `yaml:"session_timeout"`
	RememberDuration time.Duration `yaml:"remember_duration"`
	// Secret signs remember-me tokens.
	Secret        string `yaml:"secret"`
	SecureCookies bool   `yaml:"secure_cookies"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Load reads configuration from defaults, the optional config file and the
// environment, and validates the result.
func Load() (*Config, error) {
	cfg, err := resolve(defaults())
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Resolve reads configuration like Load but skips validation. Commands that
// only touch the data directory use it so they run without admin secrets.
func Resolve() (*Config, error) {
	return resolve(defaults())
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	var errs []error

	if c.Admin.Secret == "" {
		errs = append(errs, fmt.Errorf("SIAPP_SECRET is required"))
	} else if len(c.Admin.Secret) < 32 {
		errs = append(errs, fmt.Errorf("SIAPP_SECRET must be at least 32 characters"))
	}
	if c.Admin.Username == "" {
		errs = append(errs, fmt.Errorf("SIAPP_ADMIN_USER is required"))
	}
	if c.Admin.Password == "" {
		errs = append(errs, fmt.Errorf("SIAPP_ADMIN_PASSWORD is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("SIAPP_DATA_DIR is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("SIAPP_PORT must be between 1 and 65535"))
	}
	if c.CleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("SIAPP_CLEANUP_INTERVAL must be positive"))
	}
	if c.Admin.SessionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SIAPP_SESSION_TIMEOUT must be positive"))
	}
	if c.Admin.RememberDuration <= 0 {
		errs = append(errs, fmt.Errorf("SIAPP_REMEMBER_DURATION must be positive"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("SIAPP_LOG_FORMAT must be json or text"))
	}

	return errors.Join(errs...)
}

// LoadWithDefaults loads configuration with defaults for development.
// It does not validate required fields, useful for testing.
func LoadWithDefaults() *Config {
	d := defaults()
	d.Admin.Secret = "development-secret-key-min-32-chars"
	cfg, err := resolve(d)
	if err != nil {
		return d
	}
	return cfg
}

func defaults() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            8080,
		DataDir:         "data",
		ShutdownTimeout: 30 * time.Second,
		CleanupInterval: time.Hour,
		Admin: AdminConfig{
			Username:         DefaultAdminUser,
			Password:         DefaultAdminPassword,
			SessionTimeout:   time.Hour,
			RememberDuration: 30 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func resolve(cfg *Config) (*Config, error) {
	// A missing .env file is not an error.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if path := os.Getenv("SIAPP_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.Host = getEnv("SIAPP_HOST", cfg.Host)
	cfg.Port = getIntEnv("SIAPP_PORT", cfg.Port)
	cfg.DataDir = getEnv("SIAPP_DATA_DIR", cfg.DataDir)
	cfg.TemplateDir = getEnv("SIAPP_TEMPLATE_DIR", cfg.TemplateDir)
	cfg.ShutdownTimeout = getDurationEnv("SIAPP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.CleanupInterval = getDurationEnv("SIAPP_CLEANUP_INTERVAL", cfg.CleanupInterval)
	cfg.Admin.Username = getEnv("SIAPP_ADMIN_USER", cfg.Admin.Username)
	cfg.Admin.Password = getEnv("SIAPP_ADMIN_PASSWORD", cfg.Admin.Password)
	cfg.Admin.SessionTimeout = getDurationEnv("SIAPP_SESSION_TIMEOUT", cfg.Admin.SessionTimeout)
	cfg.Admin.RememberDuration = getDurationEnv("SIAPP_REMEMBER_DURATION", cfg.Admin.RememberDuration)
	cfg.Admin.Secret = getEnv("SIAPP_SECRET", cfg.Admin.Secret)
	cfg.Admin.SecureCookies = getBoolEnv("SIAPP_SECURE_COOKIES", cfg.Admin.SecureCookies)
	cfg.Log.Level = getEnv("SIAPP_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("SIAPP_LOG_FORMAT", cfg.Log.Format)

	return cfg, nil
}

// loadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// Package config loads and validates the fileshared YAML configuration.
// It applies defaults so the server can rely on fully populated values.
package config

import (
	"errors"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DBConfig holds metadata database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// ListenConfig holds the TCP listener settings.
type ListenConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

// MetricsConfig holds the optional Prometheus endpoint settings.
type MetricsConfig struct {
	Enable bool   `yaml:"enable"`
	Bind   string `yaml:"bind"`
	Port   int    `yaml:"port"`
}

// Config mirrors the fileshared.yaml schema.
type Config struct {
	Log            LogConfig     `yaml:"log"`
	DB             DBConfig      `yaml:"db"`
	RootDir        string        `yaml:"root_dir"`
	Listen         ListenConfig  `yaml:"listen"`
	AuditLogPath   string        `yaml:"audit_log"`
	AccountFile    string        `yaml:"account_file"`
	DefaultQuotaMB int64         `yaml:"default_quota_mb"`
	Metrics        MetricsConfig `yaml:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var c Config
	applyDefaults(&c)
	applyEnv(&c)
	return c
}

// Load reads a YAML config file, applies defaults and environment
// overrides, and validates it.
func Load(path string) (Config, error) {
	var c Config
	if path == "" {
		return c, errors.New("config path is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	applyEnv(&c)
	if err := validate(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// applyDefaults populates zero-values with the legacy server's
// defaults: port 5051, root ./data, 100 MiB quota.
func applyDefaults(c *Config) {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.DB.Path == "" {
		c.DB.Path = "./fileshare.db"
	}
	if c.RootDir == "" {
		c.RootDir = "./data"
	}
	if c.Listen.Bind == "" {
		c.Listen.Bind = "0.0.0.0"
	}
	if c.Listen.Port == 0 {
		c.Listen.Port = 5051
	}
	if c.AuditLogPath == "" {
		c.AuditLogPath = "./server.log"
	}
	if c.DefaultQuotaMB == 0 {
		c.DefaultQuotaMB = 100
	}
	if c.Metrics.Bind == "" {
		c.Metrics.Bind = "127.0.0.1"
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
}

// applyEnv applies the legacy environment overrides the old server
// honored: FS_LOG_PATH for the audit log and FS_ACCOUNT_PATH for the
// plaintext account import file.
func applyEnv(c *Config) {
	if v := strings.TrimSpace(os.Getenv("FS_LOG_PATH")); v != "" {
		c.AuditLogPath = v
	}
	if v := strings.TrimSpace(os.Getenv("FS_ACCOUNT_PATH")); v != "" {
		c.AccountFile = v
	}
}

// validate performs basic sanity checks for required fields and ranges.
func validate(c *Config) error {
	if strings.TrimSpace(c.DB.Path) == "" {
		return errors.New("db.path is required")
	}
	if strings.TrimSpace(c.RootDir) == "" {
		return errors.New("root_dir is required")
	}
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		return errors.New("listen.port is invalid")
	}
	if c.Metrics.Enable && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return errors.New("metrics.port is invalid")
	}
	if c.DefaultQuotaMB < 0 {
		return errors.New("default_quota_mb is invalid")
	}
	return nil
}

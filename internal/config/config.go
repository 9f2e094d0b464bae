// Package config loads runtime settings from PICKY_* environment variables,
// optionally layered over a YAML file named by PICKY_CONFIG.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

const (
	BackendSQLite   = "sqlite"
	BackendJSONFile = "jsonfile"
	BackendPostgres = "postgres"
)

type Config struct {
	Environment Environment `yaml:"environment"`
	ListenAddr  string      `yaml:"listen_addr"`
	APIURL      string      `yaml:"api_url"`
	LogLevel    string      `yaml:"log_level"`
	LogFormat   string      `yaml:"log_format"`

	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
	DataDir    string `yaml:"data_dir"`
	// DatabaseSecret names the secret holding the Postgres DSN. Empty means
	// the per-environment default.
	DatabaseSecret string `yaml:"database_secret"`
	SecretsFile    string `yaml:"secrets_file"`

	CORSOrigins []string `yaml:"cors_origins"`
	// RateLimit is the number of writes allowed per client per minute.
	// Zero disables rate limiting.
	RateLimit int `yaml:"rate_limit"`

	Backup Backup `yaml:"backup"`
}

type Backup struct {
	Endpoint         string        `yaml:"endpoint"`
	Bucket           string        `yaml:"bucket"`
	Region           string        `yaml:"region"`
	Prefix           string        `yaml:"prefix"`
	Interval         time.Duration `yaml:"interval"`
	Keep             int           `yaml:"keep"`
	PassphraseSecret string        `yaml:"passphrase_secret"`
}

func defaults() *Config {
	return &Config{
		Environment: Development,
		ListenAddr:  ":8080",
		APIURL:      "http://localhost:8080",
		LogLevel:    "info",
		LogFormat:   "text",
		Backend:     BackendSQLite,
		SQLitePath:  "picky.db",
		DataDir:     "data",
		RateLimit:   120,
		Backup: Backup{
			Region:           "us-east-1",
			Prefix:           "picky",
			Keep:             14,
			PassphraseSecret: "backup-passphrase",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// PICKY_CONFIG if set, then environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("PICKY_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	cfg.Environment = Environment(strings.ToLower(strings.TrimSpace(string(cfg.Environment))))
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if len(cfg.CORSOrigins) == 0 && cfg.Environment == Development {
		cfg.CORSOrigins = []string{"*"}
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.Environment = Environment(getEnv("PICKY_ENV", string(c.Environment)))
	c.ListenAddr = getEnv("PICKY_LISTEN_ADDR", c.ListenAddr)
	c.APIURL = getEnv("PICKY_API_URL", c.APIURL)
	c.LogLevel = getEnv("PICKY_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("PICKY_LOG_FORMAT", c.LogFormat)
	c.Backend = getEnv("PICKY_BACKEND", c.Backend)
	c.SQLitePath = getEnv("PICKY_SQLITE_PATH", c.SQLitePath)
	c.DataDir = getEnv("PICKY_DATA_DIR", c.DataDir)
	c.DatabaseSecret = getEnv("PICKY_DATABASE_SECRET", c.DatabaseSecret)
	c.SecretsFile = getEnv("PICKY_SECRETS_FILE", c.SecretsFile)

	if v, ok := os.LookupEnv("PICKY_CORS_ORIGINS"); ok {
		c.CORSOrigins = splitList(v)
	}

	c.Backup.Endpoint = getEnv("PICKY_BACKUP_ENDPOINT", c.Backup.Endpoint)
	c.Backup.Bucket = getEnv("PICKY_BACKUP_BUCKET", c.Backup.Bucket)
	c.Backup.Region = getEnv("PICKY_BACKUP_REGION", c.Backup.Region)
	c.Backup.Prefix = getEnv("PICKY_BACKUP_PREFIX", c.Backup.Prefix)
	c.Backup.PassphraseSecret = getEnv("PICKY_BACKUP_PASSPHRASE_SECRET", c.Backup.PassphraseSecret)

	var err error
	if c.RateLimit, err = getEnvInt("PICKY_RATE_LIMIT", c.RateLimit); err != nil {
		return err
	}
	if c.Backup.Keep, err = getEnvInt("PICKY_BACKUP_KEEP", c.Backup.Keep); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("PICKY_BACKUP_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PICKY_BACKUP_INTERVAL: %w", err)
		}
		c.Backup.Interval = d
	}
	return nil
}

// Validate reports every misconfiguration found.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("unknown environment %q", c.Environment))
	}

	switch c.Backend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite backend requires a database path"))
		}
	case BackendJSONFile:
		if c.DataDir == "" {
			errs = append(errs, errors.New("jsonfile backend requires a data directory"))
		}
	case BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}

	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}
	if c.Backup.Keep < 0 {
		errs = append(errs, errors.New("backup keep must not be negative"))
	}
	if c.Backup.Interval < 0 {
		errs = append(errs, errors.New("backup interval must not be negative"))
	}

	if c.Environment == Production {
		if len(c.CORSOrigins) == 0 {
			errs = append(errs, errors.New("production requires explicit CORS origins"))
		} else if slices.Contains(c.CORSOrigins, "*") {
			errs = append(errs, errors.New("production must not allow every CORS origin"))
		}
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val, exists := os.LookupEnv(key)
	if !exists || val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/tracing"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/worker"
)

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Config holds the service configuration.
type Config struct {
	ServerPort       string               `yaml:"server_port"`
	Redis            RedisConfig          `yaml:"redis"`
	ConcurrencyLimit int                  `yaml:"concurrency_limit"`
	ShutdownTimeout  time.Duration        `yaml:"shutdown_timeout"`
	LogLevel         string               `yaml:"log_level"`
	LogFormat        string               `yaml:"log_format"`
	CriteriaFile     string               `yaml:"criteria_file"`
	AuditParallelism int                  `yaml:"audit_parallelism"`
	Tracing          tracing.TracerConfig `yaml:"tracing"`
	Workers          []worker.Config      `yaml:"workers"`
}

// Default returns the configuration used when no file or env overrides are
// present. An empty Redis address disables the task journal.
func Default() *Config {
	return &Config{
		ServerPort:       "8080",
		ConcurrencyLimit: 4,
		ShutdownTimeout:  30 * time.Second,
		LogLevel:         "info",
		LogFormat:        "json",
		AuditParallelism: 2,
		Tracing:          tracing.DefaultTracerConfig(),
		Workers: []worker.Config{
			{ID: "parse-1", Category: "parse", MaxRetries: 2, Timeout: 10 * time.Second, PriorityWeight: 1},
			{ID: "parse-2", Category: "parse", MaxRetries: 2, Timeout: 10 * time.Second, PriorityWeight: 1},
			{ID: "extract-1", Category: "extract", MaxRetries: 3, Timeout: 60 * time.Second, PriorityWeight: 2},
			{ID: "extract-2", Category: "extract", MaxRetries: 3, Timeout: 60 * time.Second, PriorityWeight: 2},
			{ID: "score-1", Category: "score", MaxRetries: 2, Timeout: 30 * time.Second, PriorityWeight: 3},
		},
	}
}

// Load builds the configuration from defaults, a .env file, the YAML file at
// path and environment variables, in that order of precedence (lowest first).
// A missing YAML file is not an error.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("SERVER_PORT"); ok {
		cfg.ServerPort = v
	}
	if v, ok := os.LookupEnv("REDIS_ADDR"); ok {
		cfg.Redis.Addr = v
	}
	if v, ok := os.LookupEnv("REDIS_PASSWORD"); ok {
		cfg.Redis.Password = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("LOG_FORMAT"); ok {
		cfg.LogFormat = v
	}
	if v, ok := os.LookupEnv("CRITERIA_FILE"); ok {
		cfg.CriteriaFile = v
	}
	if v, ok := os.LookupEnv("OTLP_ENDPOINT"); ok {
		cfg.Tracing.Endpoint = v
	}

	if err := envInt("REDIS_DB", &cfg.Redis.DB); err != nil {
		return err
	}
	if err := envInt("CONCURRENCY_LIMIT", &cfg.ConcurrencyLimit); err != nil {
		return err
	}
	if err := envInt("AUDIT_PARALLELISM", &cfg.AuditParallelism); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("TRACING_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TRACING_ENABLED: %w", err)
		}
		cfg.Tracing.Enabled = b
	}
	if v, ok := os.LookupEnv("SHUTDOWN_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownTimeout = d
	}
	return nil
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = i
	return nil
}

func (c *Config) Validate() error {
	if c.ServerPort == "" {
		return errors.New("server_port is required")
	}
	if c.ConcurrencyLimit < 1 {
		return fmt.Errorf("concurrency_limit must be >= 1, got %d", c.ConcurrencyLimit)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must not be negative, got %s", c.ShutdownTimeout)
	}
	if len(c.Workers) == 0 {
		return errors.New("at least one worker is required")
	}
	return worker.CheckConfigs(c.Workers)
}

// JournalEnabled reports whether task records should be written to Redis.
func (c *Config) JournalEnabled() bool {
	return c.Redis.Addr != ""
}

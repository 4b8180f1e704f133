// config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

// RegistryConfig describes the upstream publication registry endpoint and the
// fetcher's retry/pacing behaviour.
type RegistryConfig struct {
	BaseURL              string  `yaml:"base_url"`
	PageSize             int     `yaml:"page_size"`  // upstream caps at 100
	BatchSize            int     `yaml:"batch_size"` // concurrent page fetches per batch
	MaxRetries           int     `yaml:"max_retries"`
	RateLimitCooldownStr string  `yaml:"rate_limit_cooldown"`
	ConnRetryCooldownStr string  `yaml:"conn_retry_cooldown"`
	RequestsPerSecond    float64 `yaml:"requests_per_second"`

	RateLimitCooldown time.Duration `yaml:"-"` // parsed from RateLimitCooldownStr
	ConnRetryCooldown time.Duration `yaml:"-"` // parsed from ConnRetryCooldownStr
}

type PipelineConfig struct {
	RawDataDir    string `yaml:"raw_data_dir"`
	WatermarkFile string `yaml:"watermark_file"`
	DaysBack      int    `yaml:"days_back"`
	IngestWorkers int    `yaml:"ingest_workers"`
	// MaxYear guards against a misconfigured system clock: "today" is clamped
	// back into this year when the wall clock runs past it.
	MaxYear int `yaml:"max_year"`
}

type AgentConfig struct {
	Model  string `yaml:"model"`
	APIKey string `yaml:"-"` // from OPENAI_API_KEY, never from the YAML file
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Registry RegistryConfig `yaml:"registry"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Agent    AgentConfig    `yaml:"agent"`
}

// Load reads the YAML config at path, applies defaults, parses duration
// strings and pulls secrets from the environment (a .env file, if present,
// has already been loaded by main via godotenv). An empty path yields a
// config of pure defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyDefaults(&cfg)

	var err error
	cfg.Registry.RateLimitCooldown, err = parseDurationOr(cfg.Registry.RateLimitCooldownStr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rate_limit_cooldown: %w", err)
	}
	cfg.Registry.ConnRetryCooldown, err = parseDurationOr(cfg.Registry.ConnRetryCooldownStr, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to parse conn_retry_cooldown: %w", err)
	}

	// Secrets come from the environment only.
	if v := os.Getenv("SPYDER_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	cfg.Agent.APIKey = os.Getenv("OPENAI_API_KEY")

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8000"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "127.0.0.1"
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = "3306"
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "spyder"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "spyder"
	}
	if cfg.Registry.BaseURL == "" {
		cfg.Registry.BaseURL = "https://www.federalregister.gov/api/v1/documents.json"
	}
	if cfg.Registry.PageSize <= 0 || cfg.Registry.PageSize > 100 {
		cfg.Registry.PageSize = 100
	}
	if cfg.Registry.BatchSize <= 0 {
		cfg.Registry.BatchSize = 5
	}
	if cfg.Registry.MaxRetries <= 0 {
		cfg.Registry.MaxRetries = 3
	}
	if cfg.Registry.RequestsPerSecond <= 0 {
		cfg.Registry.RequestsPerSecond = 5
	}
	if cfg.Pipeline.RawDataDir == "" {
		cfg.Pipeline.RawDataDir = "data/raw"
	}
	if cfg.Pipeline.WatermarkFile == "" {
		cfg.Pipeline.WatermarkFile = "data/processed/last_processed_date.json"
	}
	if cfg.Pipeline.DaysBack <= 0 {
		cfg.Pipeline.DaysBack = 7
	}
	if cfg.Pipeline.IngestWorkers <= 0 {
		cfg.Pipeline.IngestWorkers = 32
	}
	if cfg.Pipeline.MaxYear <= 0 {
		cfg.Pipeline.MaxYear = 2025
	}
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = "gpt-4o-mini"
	}
}

func parseDurationOr(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AnyChart/AnyChart-sub039/internal/aggregator"
	"github.com/AnyChart/AnyChart-sub039/internal/indicator"
	"github.com/AnyChart/AnyChart-sub039/internal/interval"
)

// Config holds all application configuration loaded from a YAML file.
type Config struct {
	Table      TableConfig        `yaml:"table"`
	Intervals  []string           `yaml:"intervals"`
	Indicators []indicator.Config `yaml:"indicators"`

	// Infrastructure
	Redis       RedisConfig   `yaml:"redis"`
	SQLite      SQLiteConfig  `yaml:"sqlite"`
	Gateway     GatewayConfig `yaml:"gateway"`
	MetricsAddr string        `yaml:"metricsAddr"`
	LogLevel    string        `yaml:"logLevel"`
}

// TableConfig describes the table layout. Column 0 is the key.
type TableConfig struct {
	Columns int            `yaml:"columns"`
	Fields  map[string]int `yaml:"fields"`
	// Aggregations overrides the aggregation type of a field.
	Aggregations    map[string]string `yaml:"aggregations"`
	DateTimePattern string            `yaml:"dateTimePattern"`
	TimeOffset      float64           `yaml:"timeOffset"`
	MaxRows         int               `yaml:"maxRows"`
	CacheSize       int               `yaml:"cacheSize"`
}

type RedisConfig struct {
	Addr          string        `yaml:"addr"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	Stream        string        `yaml:"stream"`
	StartID       string        `yaml:"startID"`
	BatchSize     int64         `yaml:"batchSize"`
	Block         time.Duration `yaml:"block"`
	PublishPrefix string        `yaml:"publishPrefix"`
}

type SQLiteConfig struct {
	Path          string        `yaml:"path"`
	BatchSize     int           `yaml:"batchSize"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

type GatewayConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used for missing values.
func Default() Config {
	return Config{
		Table: TableConfig{
			Columns:   6,
			Fields:    defaultFields(),
			CacheSize: 16,
		},
		Intervals: []string{"1min", "5min"},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			Stream:        "table:rows",
			StartID:       "$",
			BatchSize:     500,
			Block:         time.Second,
			PublishPrefix: "table:agg:",
		},
		SQLite: SQLiteConfig{
			Path:          "data/rows.db",
			BatchSize:     500,
			FlushInterval: time.Second,
		},
		Gateway:     GatewayConfig{Addr: ":8080"},
		MetricsAddr: ":9090",
		LogLevel:    "info",
	}
}

// Load reads YAML config from path on top of Default and validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	// yaml.v3 merges into non-nil maps
	cfg.Table.Fields = nil
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if len(cfg.Table.Fields) == 0 {
		cfg.Table.Fields = defaultFields()
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides infrastructure fields
// from env vars if present.
func LoadWithEnvOverrides(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	cfg.Redis.Addr = getEnv("TABLE_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("TABLE_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.SQLite.Path = getEnv("TABLE_SQLITE_PATH", cfg.SQLite.Path)
	cfg.MetricsAddr = getEnv("TABLE_METRICS_ADDR", cfg.MetricsAddr)
	cfg.Gateway.Addr = getEnv("TABLE_GATEWAY_ADDR", cfg.Gateway.Addr)
	cfg.LogLevel = getEnv("TABLE_LOG_LEVEL", cfg.LogLevel)
	return cfg, Validate(cfg)
}

// Validate ensures the configuration is usable.
func Validate(cfg Config) error {
	if cfg.Table.Columns < 1 {
		return errors.New("table.columns must be >= 1")
	}
	if len(cfg.Table.Fields) == 0 {
		return errors.New("table.fields is required")
	}
	for name, col := range cfg.Table.Fields {
		if col < 0 || col >= cfg.Table.Columns {
			return fmt.Errorf("table.fields.%s: column %d out of range [0,%d)", name, col, cfg.Table.Columns)
		}
	}
	for name, typ := range cfg.Table.Aggregations {
		if _, ok := cfg.Table.Fields[name]; !ok {
			return fmt.Errorf("table.aggregations.%s: unknown field", name)
		}
		if _, err := aggregator.ParseType(typ); err != nil {
			return fmt.Errorf("table.aggregations.%s: %w", name, err)
		}
	}
	if cfg.Table.MaxRows < 0 {
		return errors.New("table.maxRows must be >= 0")
	}
	for _, iv := range cfg.Intervals {
		if _, err := interval.Parse(iv); err != nil {
			return fmt.Errorf("intervals: %w", err)
		}
	}
	if err := indicator.ValidateConfigs(cfg.Indicators); err != nil {
		return fmt.Errorf("indicators: %w", err)
	}
	if cfg.Redis.Stream == "" {
		return errors.New("redis.stream is required")
	}
	if cfg.SQLite.BatchSize < 1 {
		return errors.New("sqlite.batchSize must be >= 1")
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logLevel %q", cfg.LogLevel)
	}
	return nil
}

func defaultFields() map[string]int {
	return map[string]int{"open": 1, "high": 2, "low": 3, "close": 4, "volume": 5}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

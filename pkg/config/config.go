package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tickvault/tickvault/pkg/utils"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is built once at process start and handed to every component.
// Nothing below main reads the environment directly.
type Config struct {
	Database    Database    `yaml:"database"`
	Ingest      Ingest      `yaml:"ingest"`
	Validation  Validation  `yaml:"validation"`
	Maintenance Maintenance `yaml:"maintenance"`
	Redis       Redis       `yaml:"redis"`
	Logging     Logging     `yaml:"logging"`
}

// Database holds the store connection and hypertable layout.
type Database struct {
	URL           string        `yaml:"url"`
	ChunkInterval time.Duration `yaml:"chunk_interval"`
}

// Ingest controls discovery, batching and the per-file failure policy.
type Ingest struct {
	DataDir        string        `yaml:"data_dir"`
	Workers        int           `yaml:"workers"`
	BatchSize      int           `yaml:"batch_size"`
	MaxSkippedRows int           `yaml:"max_skipped_rows"`
	MaxSkipRatio   float64       `yaml:"max_skip_ratio"`
	MtimeTolerance time.Duration `yaml:"mtime_tolerance"`
	RejectDir      string        `yaml:"reject_dir"`
}

// Validation holds row-level thresholds.
type Validation struct {
	NormalizeCodes bool    `yaml:"normalize_codes"`
	MaxPrice       float64 `yaml:"max_price"`
	MaxVolume      float64 `yaml:"max_volume"`
	MaxAmount      float64 `yaml:"max_amount"`
	MaxChangePct   float64 `yaml:"max_change_pct"`
	MaxAmplitude   float64 `yaml:"max_amplitude"`
}

// Maintenance configures the aggregation and compression jobs.
type Maintenance struct {
	CompressAfter       time.Duration `yaml:"compress_after"`
	CompressLockTimeout time.Duration `yaml:"compress_lock_timeout"`
	CompressRetries     int           `yaml:"compress_retries"`
	CompressBackoff     time.Duration `yaml:"compress_backoff"`
	AggregateCron       string        `yaml:"aggregate_cron"`
	CompressCron        string        `yaml:"compress_cron"`
	Addr                string        `yaml:"addr"`
}

// Redis is optional; an empty Host disables event publishing.
type Redis struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Logging configures the application logger.
type Logging struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// maxStorablePrice is the exclusive bound of a NUMERIC(18,4) price column.
const maxStorablePrice = 1e14

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Database: Database{
			URL:           "postgres://localhost:5432/postgres",
			ChunkInterval: 7 * 24 * time.Hour,
		},
		Ingest: Ingest{
			DataDir:        "./data",
			Workers:        runtime.NumCPU(),
			BatchSize:      50000,
			MaxSkippedRows: 1000,
			MaxSkipRatio:   0.01,
			MtimeTolerance: 2 * time.Second,
		},
		Validation: Validation{
			NormalizeCodes: true,
			MaxPrice:       1e9,
			MaxVolume:      1e15,
			MaxAmount:      1e15,
			MaxChangePct:   1000,
			MaxAmplitude:   1000,
		},
		Maintenance: Maintenance{
			CompressAfter:       30 * 24 * time.Hour,
			CompressLockTimeout: 30 * time.Second,
			CompressRetries:     1,
			CompressBackoff:     2 * time.Second,
			AggregateCron:       "0 30 3 * * *",
			CompressCron:        "0 0 4 * * 0",
			Addr:                ":3010",
		},
		Redis: Redis{
			Port: "6379",
		},
		Logging: Logging{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Load starts from Default, overlays the YAML file at path (if path is not
// empty) and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides lets every well-known environment variable win over the
// file and the defaults.
func applyEnvOverrides(cfg *Config) {
	cfg.Database.URL = utils.Env("POSTGRES_URL", cfg.Database.URL)
	cfg.Database.ChunkInterval = utils.EnvDuration("CHUNK_INTERVAL", cfg.Database.ChunkInterval)

	cfg.Ingest.DataDir = utils.Env("DATA_DIR", cfg.Ingest.DataDir)
	cfg.Ingest.Workers = utils.EnvInt("WORKERS", cfg.Ingest.Workers)
	cfg.Ingest.BatchSize = utils.EnvInt("BATCH_SIZE", cfg.Ingest.BatchSize)
	cfg.Ingest.MaxSkippedRows = int(utils.EnvInt64("MAX_SKIPPED_ROWS", int64(cfg.Ingest.MaxSkippedRows)))
	cfg.Ingest.MaxSkipRatio = utils.EnvFloat("MAX_SKIP_RATIO", cfg.Ingest.MaxSkipRatio)
	cfg.Ingest.MtimeTolerance = utils.EnvDuration("MTIME_TOLERANCE", cfg.Ingest.MtimeTolerance)
	cfg.Ingest.RejectDir = utils.Env("REJECT_DIR", cfg.Ingest.RejectDir)

	cfg.Validation.NormalizeCodes = utils.EnvBool("NORMALIZE_CODES", cfg.Validation.NormalizeCodes)
	cfg.Validation.MaxPrice = utils.EnvFloat("MAX_PRICE", cfg.Validation.MaxPrice)
	cfg.Validation.MaxVolume = utils.EnvFloat("MAX_VOLUME", cfg.Validation.MaxVolume)
	cfg.Validation.MaxAmount = utils.EnvFloat("MAX_AMOUNT", cfg.Validation.MaxAmount)
	cfg.Validation.MaxChangePct = utils.EnvFloat("MAX_CHANGE_PCT", cfg.Validation.MaxChangePct)
	cfg.Validation.MaxAmplitude = utils.EnvFloat("MAX_AMPLITUDE", cfg.Validation.MaxAmplitude)

	cfg.Maintenance.CompressAfter = utils.EnvDuration("COMPRESS_AFTER", cfg.Maintenance.CompressAfter)
	cfg.Maintenance.CompressLockTimeout = utils.EnvDuration("COMPRESS_LOCK_TIMEOUT", cfg.Maintenance.CompressLockTimeout)
	cfg.Maintenance.CompressRetries = int(utils.EnvInt64("COMPRESS_RETRIES", int64(cfg.Maintenance.CompressRetries)))
	cfg.Maintenance.CompressBackoff = utils.EnvDuration("COMPRESS_BACKOFF", cfg.Maintenance.CompressBackoff)
	cfg.Maintenance.AggregateCron = utils.Env("AGGREGATE_CRON", cfg.Maintenance.AggregateCron)
	cfg.Maintenance.CompressCron = utils.Env("COMPRESS_CRON", cfg.Maintenance.CompressCron)
	cfg.Maintenance.Addr = utils.Env("ADDR", cfg.Maintenance.Addr)

	cfg.Redis.Host = utils.Env("REDIS_HOST", cfg.Redis.Host)
	cfg.Redis.Port = utils.Env("REDIS_PORT", cfg.Redis.Port)
	cfg.Redis.Password = utils.Env("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = int(utils.EnvInt64("REDIS_DB", int64(cfg.Redis.DB)))

	cfg.Logging.Level = utils.Env("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Encoding = utils.Env("LOG_ENCODING", cfg.Logging.Encoding)
}

// Validate rejects settings no component can work with.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database url is empty"))
	}
	if c.Database.ChunkInterval <= 0 {
		errs = append(errs, errors.New("chunk interval must be positive"))
	}
	if c.Ingest.DataDir == "" {
		errs = append(errs, errors.New("data dir is empty"))
	}
	if c.Ingest.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Ingest.Workers))
	}
	if c.Ingest.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch size must be >= 1, got %d", c.Ingest.BatchSize))
	}
	if c.Ingest.MaxSkippedRows < 0 {
		errs = append(errs, fmt.Errorf("max skipped rows must be >= 0, got %d", c.Ingest.MaxSkippedRows))
	}
	if c.Ingest.MaxSkipRatio < 0 || c.Ingest.MaxSkipRatio > 1 {
		errs = append(errs, fmt.Errorf("max skip ratio must be within [0,1], got %g", c.Ingest.MaxSkipRatio))
	}
	if c.Ingest.MtimeTolerance < 0 {
		errs = append(errs, errors.New("mtime tolerance must not be negative"))
	}
	if c.Validation.MaxPrice <= 0 || c.Validation.MaxPrice >= maxStorablePrice {
		errs = append(errs, fmt.Errorf("max price must be within (0, %g), got %g", maxStorablePrice, c.Validation.MaxPrice))
	}
	if c.Validation.MaxVolume <= 0 || c.Validation.MaxAmount <= 0 ||
		c.Validation.MaxChangePct <= 0 || c.Validation.MaxAmplitude <= 0 {
		errs = append(errs, errors.New("validation ceilings must be positive"))
	}
	if c.Maintenance.CompressAfter <= 0 {
		errs = append(errs, errors.New("compress_after must be positive"))
	}
	if c.Maintenance.CompressRetries < 0 {
		errs = append(errs, errors.New("compress retries must not be negative"))
	}
	return errors.Join(errs...)
}

// Addr returns host:port, or "" when Redis is disabled.
func (r Redis) Addr() string {
	if r.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "MUNIN2TINYOBS_"

// Sink names accepted by Config.Sink
const (
	SinkInflux    = "influx"
	SinkBadger    = "badger"
	SinkMemory    = "memory"
	SinkTimescale = "timescale"
	SinkParquet   = "parquet"
	SinkHTTP      = "http"
)

// Config is the file-backed configuration shared by the CLI and the server.
type Config struct {
	// Sink selects the store client imports are written to.
	Sink string `yaml:"sink"`

	Import    ImportConfig    `yaml:"import"`
	Influx    InfluxConfig    `yaml:"influx"`
	Badger    BadgerConfig    `yaml:"badger"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Parquet   ParquetConfig   `yaml:"parquet"`
	HTTP      HTTPConfig      `yaml:"http"`
	Server    ServerConfig    `yaml:"server"`
}

// ImportConfig configures the per-file pipeline.
type ImportConfig struct {
	// BatchSize is the number of points per store write.
	BatchSize int `yaml:"batch_size"`

	// Workers is the number of files imported concurrently.
	Workers int `yaml:"workers"`

	// DumpCommand is run as `<cmd> dump <file>`.
	DumpCommand string `yaml:"dump_command"`

	// FailFast stops at the first failed file.
	FailFast bool `yaml:"fail_fast"`
}

// InfluxConfig configures the InfluxDB 1.x client.
type InfluxConfig struct {
	Addr     string        `yaml:"addr"`
	Database string        `yaml:"database"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// BadgerConfig configures the local BadgerDB store.
type BadgerConfig struct {
	Path        string `yaml:"path"`
	MaxMemoryMB int64  `yaml:"max_memory_mb"`
}

// TimescaleConfig configures the PostgreSQL/TimescaleDB sink.
type TimescaleConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// ParquetConfig configures the Parquet file sink.
type ParquetConfig struct {
	Path string `yaml:"path"`

	// Compression is one of snappy, zstd, gzip, lz4, none.
	Compression string `yaml:"compression"`
}

// HTTPConfig configures the HTTP transport to a munin2tinyobs server.
type HTTPConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// ServerConfig configures cmd/server.
type ServerConfig struct {
	Port         string `yaml:"port"`
	DataDir      string `yaml:"data_dir"`
	MaxStorageGB int64  `yaml:"max_storage_gb"`
	MaxMemoryMB  int64  `yaml:"max_memory_mb"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Sink: DefaultSink,
		Import: ImportConfig{
			BatchSize:   DefaultBatchSize,
			Workers:     DefaultWorkers,
			DumpCommand: DefaultDumpCommand,
		},
		Influx: InfluxConfig{
			Addr:     DefaultInfluxAddr,
			Database: DefaultInfluxDatabase,
			Timeout:  DefaultInfluxTimeout,
		},
		Badger: BadgerConfig{
			Path:        DefaultDataDir,
			MaxMemoryMB: DefaultMaxMemoryMB,
		},
		Timescale: TimescaleConfig{
			Table: DefaultTimescaleTable,
		},
		Parquet: ParquetConfig{
			Path:        DefaultParquetPath,
			Compression: DefaultParquetCodec,
		},
		HTTP: HTTPConfig{
			Endpoint: DefaultHTTPEndpoint,
		},
		Server: ServerConfig{
			Port:         DefaultPort,
			DataDir:      DefaultDataDir,
			MaxStorageGB: DefaultMaxStorageGB,
			MaxMemoryMB:  DefaultMaxMemoryMB,
		},
	}
}

// Load reads a YAML file over the defaults, applies environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from MUNIN2TINYOBS_* environment variables.
// PORT is honoured for the server port as well.
func (c *Config) ApplyEnv() {
	c.Sink = getEnv(EnvPrefix+"SINK", c.Sink)

	c.Import.BatchSize = int(getEnvInt64(EnvPrefix+"BATCH_SIZE", int64(c.Import.BatchSize)))
	c.Import.Workers = int(getEnvInt64(EnvPrefix+"WORKERS", int64(c.Import.Workers)))
	c.Import.DumpCommand = getEnv(EnvPrefix+"DUMP_COMMAND", c.Import.DumpCommand)

	c.Influx.Addr = getEnv(EnvPrefix+"INFLUX_ADDR", c.Influx.Addr)
	c.Influx.Database = getEnv(EnvPrefix+"INFLUX_DATABASE", c.Influx.Database)
	c.Influx.Username = getEnv(EnvPrefix+"INFLUX_USERNAME", c.Influx.Username)
	c.Influx.Password = getEnv(EnvPrefix+"INFLUX_PASSWORD", c.Influx.Password)

	c.Badger.Path = getEnv(EnvPrefix+"BADGER_PATH", c.Badger.Path)
	c.Timescale.DSN = getEnv(EnvPrefix+"TIMESCALE_DSN", c.Timescale.DSN)
	c.Parquet.Path = getEnv(EnvPrefix+"PARQUET_PATH", c.Parquet.Path)
	c.HTTP.Endpoint = getEnv(EnvPrefix+"HTTP_ENDPOINT", c.HTTP.Endpoint)
	c.HTTP.APIKey = getEnv(EnvPrefix+"HTTP_API_KEY", c.HTTP.APIKey)

	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.DataDir = getEnv(EnvPrefix+"DATA_DIR", c.Server.DataDir)
	c.Server.MaxStorageGB = getEnvInt64(EnvPrefix+"MAX_STORAGE_GB", c.Server.MaxStorageGB)
	c.Server.MaxMemoryMB = getEnvInt64(EnvPrefix+"MAX_MEMORY_MB", c.Server.MaxMemoryMB)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Import.BatchSize <= 0 {
		errs = append(errs, errors.New("import: batch_size must be positive"))
	}
	if c.Import.Workers <= 0 {
		errs = append(errs, errors.New("import: workers must be positive"))
	}
	if c.Import.DumpCommand == "" {
		errs = append(errs, errors.New("import: dump_command is required"))
	}

	switch c.Sink {
	case SinkInflux:
		if c.Influx.Addr == "" {
			errs = append(errs, errors.New("influx: addr is required"))
		}
		if c.Influx.Database == "" {
			errs = append(errs, errors.New("influx: database is required"))
		}
	case SinkBadger:
		if c.Badger.Path == "" {
			errs = append(errs, errors.New("badger: path is required"))
		}
	case SinkTimescale:
		if c.Timescale.DSN == "" {
			errs = append(errs, errors.New("timescale: dsn is required"))
		}
		if c.Timescale.Table == "" {
			errs = append(errs, errors.New("timescale: table is required"))
		}
	case SinkParquet:
		if c.Parquet.Path == "" {
			errs = append(errs, errors.New("parquet: path is required"))
		}
		switch strings.ToLower(c.Parquet.Compression) {
		case "snappy", "zstd", "gzip", "lz4", "none", "":
		default:
			errs = append(errs, fmt.Errorf("parquet: unknown compression %q", c.Parquet.Compression))
		}
	case SinkHTTP:
		if c.HTTP.Endpoint == "" {
			errs = append(errs, errors.New("http: endpoint is required"))
		}
	case SinkMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown sink %q", c.Sink))
	}

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server: port is required"))
	}
	if c.Server.MaxStorageGB <= 0 {
		errs = append(errs, errors.New("server: max_storage_gb must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// getEnvInt64 gets an int64 from environment variable or returns default.
func getEnvInt64(key string, defaultValue int64) int64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
		log.Printf("Invalid value for %s: %q, using default %d", key, val, defaultValue)
	}
	return defaultValue
}

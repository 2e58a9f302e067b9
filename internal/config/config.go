// Package config loads process settings from ETL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/milad/meteretl/internal/domain"
	"go.uber.org/zap/zapcore"
)

const envPrefix = "ETL"

// Sink names accepted in ETL_SINKS.
const (
	SinkPostgres   = "postgres"
	SinkClickHouse = "clickhouse"
	SinkInflux     = "influx"
	SinkXLSX       = "xlsx"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	ReferenceDate   string   `envconfig:"REFERENCE_DATE" default:"2021-01-01"`
	ReadingsDir     string   `envconfig:"READINGS_DIR" default:"data/readings"`
	SourceDB        string   `envconfig:"SOURCE_DB" default:"data/case_study.db"`
	SortReadings    bool     `envconfig:"SORT_READINGS" default:"true"`
	Sinks           []string `envconfig:"SINKS" default:"postgres"`
	MetricsTextfile string   `envconfig:"METRICS_TEXTFILE"`

	Log        LogConfig
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Influx     InfluxConfig
	XLSX       XLSXConfig
	Kafka      KafkaConfig
	Server     ServerConfig
}

// Nested keys are derived from field names (ETL_<SECTION>_<FIELD>) rather than
// envconfig tags, since a tag also matches the unprefixed variable (PATH, USERNAME).

type LogConfig struct {
	Level       string `default:"info"`
	Development bool   `default:"false"`
}

type PostgresConfig struct {
	DSN             string
	RawSchema       string `split_words:"true" default:"raw_data"`
	AnalyticsSchema string `split_words:"true" default:"analytics"`
	MaxOpenConns    int    `split_words:"true" default:"4"`
}

type ClickHouseConfig struct {
	Addr     string
	Database string `default:"meteretl"`
	Username string `default:"default"`
	Password string
}

type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string `default:"meteretl"`
}

type XLSXConfig struct {
	Path string `default:"out/analytics.xlsx"`
}

// KafkaConfig enables run notifications when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string `default:"meteretl.runs"`
}

type ServerConfig struct {
	GRPCAddr   string        `split_words:"true" default:":9090"`
	HTTPAddr   string        `split_words:"true" default:":8080"`
	GRPCTarget string        `split_words:"true" default:"127.0.0.1:9090"`
	GRPCWait   time.Duration `split_words:"true" default:"20s"`
}

// Load reads the environment and validates the settings every command shares.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %s_LOG_LEVEL: %v", ErrInvalidConfig, envPrefix, err)
	}
	if _, err := domain.ParseDate(c.ReferenceDate); err != nil {
		return fmt.Errorf("%w: %s_REFERENCE_DATE: %v", ErrInvalidConfig, envPrefix, err)
	}
	if c.ReadingsDir == "" {
		return fmt.Errorf("%w: %s_READINGS_DIR is empty", ErrInvalidConfig, envPrefix)
	}
	if c.SourceDB == "" {
		return fmt.Errorf("%w: %s_SOURCE_DB is empty", ErrInvalidConfig, envPrefix)
	}
	return nil
}

// ValidateSinks checks that every selected sink has the settings it needs.
func (c *Config) ValidateSinks() error {
	if len(c.Sinks) == 0 {
		return fmt.Errorf("%w: no sinks selected", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(c.Sinks))
	for _, name := range c.Sinks {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: sink %q listed twice", ErrInvalidConfig, name)
		}
		seen[name] = struct{}{}

		switch name {
		case SinkPostgres:
			if c.Postgres.DSN == "" {
				return fmt.Errorf("%w: %s_POSTGRES_DSN is required for the postgres sink", ErrInvalidConfig, envPrefix)
			}
		case SinkClickHouse:
			if c.ClickHouse.Addr == "" {
				return fmt.Errorf("%w: %s_CLICKHOUSE_ADDR is required for the clickhouse sink", ErrInvalidConfig, envPrefix)
			}
		case SinkInflux:
			if c.Influx.URL == "" || c.Influx.Token == "" || c.Influx.Org == "" || c.Influx.Bucket == "" {
				return fmt.Errorf("%w: influx sink needs %[2]s_INFLUX_URL, %[2]s_INFLUX_TOKEN, %[2]s_INFLUX_ORG and %[2]s_INFLUX_BUCKET", ErrInvalidConfig, envPrefix)
			}
		case SinkXLSX:
			if c.XLSX.Path == "" {
				return fmt.Errorf("%w: %s_XLSX_PATH is empty", ErrInvalidConfig, envPrefix)
			}
		default:
			return fmt.Errorf("%w: unknown sink %q", ErrInvalidConfig, name)
		}
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("%w: %s_KAFKA_TOPIC is empty", ErrInvalidConfig, envPrefix)
	}
	return nil
}

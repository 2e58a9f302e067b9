package main

import (
	"context"
	"fmt"

	"github.com/milad/meteretl/internal/config"
	"github.com/milad/meteretl/internal/notify/kafka"
	"github.com/milad/meteretl/internal/sink"
	"github.com/milad/meteretl/internal/sink/clickhouse"
	"github.com/milad/meteretl/internal/sink/influx"
	"github.com/milad/meteretl/internal/sink/postgres"
	"github.com/milad/meteretl/internal/sink/xlsx"
	"go.uber.org/zap"
)

type closer interface {
	Close() error
}

// openSinks connects every sink named in cfg.Sinks, in order. Sinks opened
// before a failure are still returned as closers.
func openSinks(ctx context.Context, cfg *config.Config, log *zap.Logger) ([]sink.Sink, []closer, error) {
	var (
		sinks   []sink.Sink
		closers []closer
	)
	for _, name := range cfg.Sinks {
		switch name {
		case config.SinkPostgres:
			db, err := postgres.Open(cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns)
			if err != nil {
				return nil, closers, err
			}
			s := postgres.New(db, postgres.Options{
				RawSchema:       cfg.Postgres.RawSchema,
				AnalyticsSchema: cfg.Postgres.AnalyticsSchema,
			}, log)
			closers = append(closers, s)
			if err := s.EnsureSchemas(ctx); err != nil {
				return nil, closers, err
			}
			sinks = append(sinks, s)

		case config.SinkClickHouse:
			conn, err := clickhouse.Open(ctx, clickhouse.Options{
				Addr:     cfg.ClickHouse.Addr,
				Database: cfg.ClickHouse.Database,
				Username: cfg.ClickHouse.Username,
				Password: cfg.ClickHouse.Password,
			})
			if err != nil {
				return nil, closers, err
			}
			s := clickhouse.New(conn, cfg.ClickHouse.Database, log)
			closers = append(closers, s)
			sinks = append(sinks, s)

		case config.SinkInflux:
			s, err := influx.Open(ctx, influx.Options{
				URL:    cfg.Influx.URL,
				Token:  cfg.Influx.Token,
				Org:    cfg.Influx.Org,
				Bucket: cfg.Influx.Bucket,
			}, log)
			if err != nil {
				return nil, closers, err
			}
			closers = append(closers, s)
			sinks = append(sinks, s)

		case config.SinkXLSX:
			sinks = append(sinks, xlsx.New(cfg.XLSX.Path, log))

		default:
			return nil, closers, fmt.Errorf("unknown sink %q", name)
		}
	}
	return sinks, closers, nil
}

func openNotifier(cfg config.KafkaConfig, log *zap.Logger) (*kafka.Publisher, error) {
	producer, err := kafka.NewSyncProducer(cfg.Brokers)
	if err != nil {
		return nil, err
	}
	return kafka.New(producer, cfg.Topic, log), nil
}

func closeAll(closers []closer, log *zap.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			log.Warn("close failed", zap.Error(err))
		}
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/milad/meteretl/internal/config"
	"github.com/milad/meteretl/internal/logging"
	"github.com/milad/meteretl/internal/notify"
	"github.com/milad/meteretl/internal/pipeline"
	"github.com/milad/meteretl/internal/repo/sqliterepo"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "etl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var (
		date     = flag.String("date", cfg.ReferenceDate, "reference date (YYYY-MM-DD)")
		dir      = flag.String("readings", cfg.ReadingsDir, "directory of reading JSON files")
		sourceDB = flag.String("source-db", cfg.SourceDB, "path to the SQLite reference database")
		sinks    = flag.String("sinks", strings.Join(cfg.Sinks, ","), "comma-separated sinks: postgres, clickhouse, influx, xlsx")
		xlsxPath = flag.String("xlsx", cfg.XLSX.Path, "workbook path for the xlsx sink")
	)
	flag.Parse()

	cfg.ReferenceDate = *date
	cfg.ReadingsDir = *dir
	cfg.SourceDB = *sourceDB
	cfg.Sinks = splitList(*sinks)
	cfg.XLSX.Path = *xlsxPath
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ValidateSinks(); err != nil {
		return err
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := sqliterepo.Open(cfg.SourceDB)
	if err != nil {
		return err
	}
	defer source.Close()

	sinkList, closers, err := openSinks(ctx, cfg, log)
	defer closeAll(closers, log)
	if err != nil {
		return err
	}

	var notifier notify.Notifier = notify.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := openNotifier(cfg.Kafka, log)
		if err != nil {
			return err
		}
		defer closeAll([]closer{pub}, log)
		notifier = pub
	}

	reg := prometheus.NewRegistry()
	p := pipeline.New(pipeline.Options{
		ReadingsDir:  cfg.ReadingsDir,
		SortReadings: cfg.SortReadings,
		Metrics:      pipeline.NewMetrics(reg),
	}, source, sinkList, notifier, log)

	_, runErr := p.Run(ctx, cfg.ReferenceDate)

	if cfg.MetricsTextfile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsTextfile, reg); err != nil {
			log.Warn("metrics textfile not written", zap.String("path", cfg.MetricsTextfile), zap.Error(err))
		}
	}
	return runErr
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

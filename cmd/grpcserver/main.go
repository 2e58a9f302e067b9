package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/milad/meteretl/internal/config"
	"github.com/milad/meteretl/internal/logging"
	"github.com/milad/meteretl/internal/readings"
	"github.com/milad/meteretl/internal/repo/memrepo"
	"github.com/milad/meteretl/internal/repo/sqliterepo"
	analyticsv1 "github.com/milad/meteretl/internal/rpc/analyticsv1"
	"github.com/milad/meteretl/internal/service"
	grpcserver "github.com/milad/meteretl/internal/transport/grpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "grpcserver: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var (
		addr     = flag.String("addr", cfg.Server.GRPCAddr, "listen address")
		dir      = flag.String("readings", cfg.ReadingsDir, "directory of reading JSON files")
		sourceDB = flag.String("source-db", cfg.SourceDB, "path to the SQLite reference database")
	)
	flag.Parse()

	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	svc, n, err := loadService(*dir, *sourceDB, log)
	if err != nil {
		return err
	}
	api := grpcserver.New(svc, log)

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		return fmt.Errorf("listen %q: %w", *addr, err)
	}
	log.Info("gRPC listening", zap.String("addr", *addr), zap.Int("readings", n))

	g := grpc.NewServer()
	analyticsv1.RegisterAnalyticsServiceServer(g, api)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(analyticsv1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(g, hs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info("shutting down gRPC")
		hs.Shutdown()
		ch := make(chan struct{})
		go func() {
			g.GracefulStop()
			close(ch)
		}()
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			g.Stop()
		}
	}()

	if err := g.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// loadService reads every reading file in dir and the reference tables in sourceDB.
// Any reading load error is fatal. It also returns the number of readings served.
func loadService(dir, sourceDB string, log *zap.Logger) (*service.AnalyticsService, int, error) {
	res, err := readings.LoadDir(dir, readings.Options{Logger: log})
	if err != nil {
		return nil, 0, err
	}
	refs, err := loadReference(sourceDB)
	if err != nil {
		return nil, 0, err
	}
	return service.NewAnalyticsService(memrepo.NewReadings(res.Readings), refs), len(res.Readings), nil
}

// loadReference snapshots the reference tables into memory so the source file
// is not held open while serving.
func loadReference(path string) (*memrepo.Reference, error) {
	src, err := sqliterepo.Open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	agreements, err := src.Agreements(ctx)
	if err != nil {
		return nil, err
	}
	products, err := src.Products(ctx)
	if err != nil {
		return nil, err
	}
	meterpoints, err := src.Meterpoints(ctx)
	if err != nil {
		return nil, err
	}
	return memrepo.NewReference(agreements, products, meterpoints), nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/milad/meteretl/internal/config"
	"github.com/milad/meteretl/internal/logging"
	analyticsv1 "github.com/milad/meteretl/internal/rpc/analyticsv1"
	httpserver "github.com/milad/meteretl/internal/transport/http"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "httpserver: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var (
		addr     = flag.String("addr", cfg.Server.HTTPAddr, "listen address")
		grpcAddr = flag.String("grpc", cfg.Server.GRPCTarget, "gRPC target host:port")
		wait     = flag.Duration("grpc-wait", cfg.Server.GRPCWait, "how long to wait for the gRPC server at startup")
	)
	flag.Parse()

	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := grpc.NewClient(*grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial gRPC %q: %w", *grpcAddr, err)
	}
	defer conn.Close()

	// Reduce docker-compose race: wait a bit for gRPC to be ready.
	waitForGRPC(ctx, conn, *wait, log)

	client := analyticsv1.NewAnalyticsServiceClient(conn)
	srv := httpserver.New(client, log)

	h := &http.Server{
		Addr:              *addr,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		return fmt.Errorf("listen %q: %w", *addr, err)
	}
	log.Info("HTTP listening", zap.String("addr", *addr), zap.String("grpc_target", *grpcAddr))

	go func() {
		<-ctx.Done()
		log.Info("shutting down HTTP")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Shutdown(shutdownCtx)
	}()

	if err := h.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func waitForGRPC(ctx context.Context, conn *grpc.ClientConn, maxWait time.Duration, log *zap.Logger) {
	if maxWait <= 0 {
		return
	}

	hc := healthpb.NewHealthClient(conn)
	deadline := time.Now().Add(maxWait)

	backoff := 100 * time.Millisecond
	for {
		if ctx.Err() != nil {
			return
		}

		reqCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
		_, err := hc.Check(reqCtx, &healthpb.HealthCheckRequest{Service: analyticsv1.ServiceName})
		cancel()
		if err == nil {
			log.Info("gRPC is ready")
			return
		}

		if time.Now().After(deadline) {
			log.Warn("gRPC not ready; continuing anyway", zap.Duration("waited", maxWait), zap.Error(err))
			return
		}

		time.Sleep(backoff)
		if backoff < 1*time.Second {
			backoff = min(backoff*2, 1*time.Second)
		}
	}
}

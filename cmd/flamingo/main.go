package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ekisa-team/flamingo/internal/app"
	"github.com/ekisa-team/flamingo/internal/config"
	"github.com/ekisa-team/flamingo/internal/config/source"
	"github.com/ekisa-team/flamingo/internal/env"
	"github.com/ekisa-team/flamingo/internal/logger"
	grpcserver "github.com/ekisa-team/flamingo/internal/server/grpc"
	httpserver "github.com/ekisa-team/flamingo/internal/server/http"
	"google.golang.org/grpc"
)

const version = "1.0.0"

func main() {
	var (
		flagHTTPPort   = flag.Int("http-port", 0, "HTTP port to listen on (overrides config)")
		flagGRPCPort   = flag.Int("grpc-port", 0, "gRPC port to listen on (overrides config)")
		flagConfigPath = flag.String("config", path.Join(config.DefaultConfigPath(), "config.yaml"), "Path to config file")
		flagSchemaPath = flag.String("schema", "", "Path to schema file (embedded schema when empty)")
		flagLogFile    = flag.String("log-file", "logs/flamingo.log", "Rotating log file, empty to disable")
	)
	flag.Parse()

	environment := env.FromEnv()

	opts := []logger.Option{}
	if *flagLogFile != "" {
		opts = append(opts, logger.WithLogToFile(true), logger.WithLogFile(*flagLogFile))
	}
	slog.SetDefault(logger.New(environment, opts...))

	if err := run(*flagConfigPath, *flagSchemaPath, *flagHTTPPort, *flagGRPCPort); err != nil {
		slog.Error("Flamingo stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath, schemaPath string, httpPort, grpcPort int) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var current atomic.Pointer[app.App]

	cfg := config.Default()
	if _, err := os.Stat(configPath); err == nil {
		watcher, err := config.NewWatcher(configPath, schemaPath, func(cfg *config.Config, err error) {
			a := current.Load()
			if err != nil || a == nil {
				return
			}
			if err := a.Reload(ctx, cfg); err != nil {
				slog.Error("Failed to apply reloaded config", "error", err)
				return
			}
			slog.Info("Model states reloaded")
		})
		if err != nil {
			return err
		}
		defer watcher.Close()

		cfg = watcher.Snapshot()
		slog.Info("Config loaded successfully", "config", configPath, "schema", schemaPath)
	} else {
		slog.Warn("Config file not found, using defaults", "config", configPath)
	}

	if httpPort > 0 {
		cfg.Server.HTTPPort = httpPort
	}
	if grpcPort > 0 {
		cfg.Server.GRPCPort = grpcPort
	}

	if _, err := source.EnsureArtifacts(ctx, cfg); err != nil {
		return err
	}

	a, err := app.New(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Error("Failed to release resources", "error", err)
		}
	}()

	if err := a.Preload(ctx); err != nil {
		return err
	}
	current.Store(a)

	maxBody := int64(cfg.Server.MaxUploadMB) << 20

	mux := http.NewServeMux()
	api := httpserver.NewAPI(mux, version)
	httpserver.NewTranscribeHandler(api, a.Transcriber, cfg.Storage.TempDir, maxBody, slog.Default())
	httpserver.NewInfoHandler(api, a.Transcriber)
	hs := httpserver.NewServer(cfg.HTTPAddr(), mux, maxBody)

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		return err
	}
	gs := grpc.NewServer(grpc.MaxRecvMsgSize(int(maxBody)))
	grpcserver.Register(gs, grpcserver.NewServer(a.Transcriber, cfg.Storage.TempDir, slog.Default()))

	errCh := make(chan error, 2)
	go func() {
		slog.Info("HTTP server listening", "addr", hs.Addr)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		slog.Info("gRPC server listening", "addr", lis.Addr().String())
		if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down")
	case err = <-errCh:
		slog.Error("Server failed, shutting down", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	gs.GracefulStop()
	if serr := hs.Shutdown(shutdownCtx); serr != nil {
		slog.Error("HTTP shutdown failed", "error", serr)
	}

	return err
}

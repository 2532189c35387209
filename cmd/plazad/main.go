package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gguuttss/RadixPlaza/config"
	nativecommon "github.com/gguuttss/RadixPlaza/native/common"
	"github.com/gguuttss/RadixPlaza/native/pair"
	"github.com/gguuttss/RadixPlaza/observability/logging"
	telemetry "github.com/gguuttss/RadixPlaza/observability/otel"
	"github.com/gguuttss/RadixPlaza/services/plazad/host"
	"github.com/gguuttss/RadixPlaza/services/plazad/journal"
	"github.com/gguuttss/RadixPlaza/services/plazad/server"
	"github.com/gguuttss/RadixPlaza/services/plazad/stream"
	"github.com/gguuttss/RadixPlaza/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "plazad.toml", "path to plazad configuration file")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		log.Fatalf("plazad: %v", err)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service: "plazad",
		Env:     cfg.Environment,
		File:    cfg.LogFile,
	})
	defer logCloser.Close()

	headers := cfg.Telemetry.Headers
	if raw := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); raw != "" {
		headers = telemetry.ParseHeaders(raw)
	}
	endpoint := cfg.Telemetry.Endpoint
	if env := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); env != "" {
		endpoint = env
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: "plazad",
		Environment: cfg.Environment,
		Endpoint:    endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "pairs"))
	if err != nil {
		return fmt.Errorf("open pair store: %w", err)
	}
	defer db.Close()

	dsn, err := journal.FileDSN(cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("resolve journal DSN: %w", err)
	}
	jrnl, err := journal.Open(dsn)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jrnl.Close()

	pauses := nativecommon.NewStaticPauses(cfg.Pauses.Modules()...)
	for _, module := range cfg.Pauses.Modules() {
		logger.Warn("module paused", "module", module)
	}

	hub := stream.NewHub(logger)
	pairHost, err := host.New(host.Options{
		Store:   pair.NewStore(db),
		Journal: jrnl,
		Logger:  logger,
		Pauses:  pauses,
		Emitter: hub,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if path := strings.TrimSpace(cfg.PairsFile); path != "" {
		defs, err := config.LoadPairs(resolveRelative(cfgPath, path))
		if err != nil {
			return err
		}
		if err := pairHost.Bootstrap(ctx, defs); err != nil {
			return fmt.Errorf("bootstrap pairs: %w", err)
		}
		logger.Info("pairs bootstrapped", "count", len(defs))
	}

	srv, err := server.New(server.Config{
		Host:          pairHost,
		Logger:        logger,
		RateLimit:     cfg.RateLimit,
		Auth:          cfg.Auth,
		Health:        jrnl.Ping,
		Stream:        hub,
		StreamOrigins: cfg.StreamOrigins,
	})
	if err != nil {
		return err
	}
	if err := srv.Run(ctx, cfg.ListenAddress); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("http server error", slog.Any("error", err))
		return err
	}
	logger.Info("plazad stopped")
	return nil
}

// resolveRelative anchors path at the config file's directory.
func resolveRelative(cfgPath, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(cfgPath), path)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/leslieo2/go-spec-serve/internal/config"
	"github.com/leslieo2/go-spec-serve/internal/database"
	"github.com/leslieo2/go-spec-serve/internal/handlers"
	"github.com/leslieo2/go-spec-serve/internal/hotreload"
	"github.com/leslieo2/go-spec-serve/internal/observability"
	"github.com/leslieo2/go-spec-serve/internal/server"
)

func main() {
	fs := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)
	fs.Usage = func() { printUsage(fs) }
	config.RegisterFlags(fs)

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("Failed to parse flags: %v", err)
	}

	configFile, _ := fs.GetString(config.FlagConfig)

	// Load configuration with precedence (CLI > Env > File > Defaults)
	cfg, err := config.LoadConfig(configFile, fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if _, err := os.Stat(cfg.API.SpecFile); os.IsNotExist(err) {
		log.Fatalf("OpenAPI spec file not found: %s", cfg.API.SpecFile)
	}

	logger, err := observability.NewLogger(cfg.Observability.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger.Logger); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("Failed to close database", zap.Error(err))
		}
	}()

	srv, err := server.Bootstrap(ctx, cfg, db,
		server.WithLogger(logger),
		server.WithLogFn(observability.NewLogFn(logger)),
		server.WithRegistry(handlers.Registry()),
	)
	if err != nil {
		return err
	}

	var reloader *hotreload.Manager
	if cfg.HotReload.Enabled {
		reloader, err = startHotReload(ctx, cfg, logger, srv)
		if err != nil {
			logger.Error("Hot reload disabled", zap.Error(err))
		}
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	if reloader != nil {
		reloader.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func startHotReload(ctx context.Context, cfg *config.Config, logger *zap.Logger, srv *server.Server) (*hotreload.Manager, error) {
	m, err := hotreload.NewManager(logger, cfg.HotReload.Debounce)
	if err != nil {
		return nil, fmt.Errorf("failed to create hot reload manager: %w", err)
	}
	if err := m.AddWatch(cfg.API.SpecFile); err != nil {
		m.Stop()
		return nil, fmt.Errorf("failed to watch spec file: %w", err)
	}
	if err := m.RegisterReloadable(srv); err != nil {
		m.Stop()
		return nil, fmt.Errorf("failed to register server for hot reload: %w", err)
	}
	if err := m.Start(ctx); err != nil {
		m.Stop()
		return nil, fmt.Errorf("failed to start hot reload: %w", err)
	}
	logger.Info("Hot reload enabled", zap.String("spec_file", cfg.API.SpecFile))
	return m, nil
}

// printUsage prints the usage information
func printUsage(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Flags:\n%s", fs.FlagUsages())
	fmt.Fprintf(os.Stderr, "\nEnvironment variables:\n")
	fmt.Fprintf(os.Stderr, "  GO_SPEC_SERVE_HOST, GO_SPEC_SERVE_PORT, GO_SPEC_SERVE_METRICS_PORT\n")
	fmt.Fprintf(os.Stderr, "  GO_SPEC_SERVE_READ_TIMEOUT, GO_SPEC_SERVE_WRITE_TIMEOUT, GO_SPEC_SERVE_IDLE_TIMEOUT\n")
	fmt.Fprintf(os.Stderr, "  GO_SPEC_SERVE_MAX_REQUEST_SIZE, GO_SPEC_SERVE_SHUTDOWN_TIMEOUT, GO_SPEC_SERVE_SPEC_FILE\n")
	fmt.Fprintf(os.Stderr, "  GO_SPEC_SERVE_DB_DRIVER, GO_SPEC_SERVE_DB_DSN, GO_SPEC_SERVE_DB_HOST, GO_SPEC_SERVE_DB_PORT\n")
	fmt.Fprintf(os.Stderr, "  GO_SPEC_SERVE_DB_USER, GO_SPEC_SERVE_DB_PASSWORD, GO_SPEC_SERVE_DB_NAME\n")
	fmt.Fprintf(os.Stderr, "  GO_SPEC_SERVE_LOG_LEVEL, GO_SPEC_SERVE_LOG_FORMAT, GO_SPEC_SERVE_OPS_INTERVAL\n")
	fmt.Fprintf(os.Stderr, "  GO_SPEC_SERVE_HOT_RELOAD, GO_SPEC_SERVE_HOT_RELOAD_DEBOUNCE\n")
	fmt.Fprintf(os.Stderr, "  GO_SPEC_SERVE_RATE_LIMIT_ENABLED, GO_SPEC_SERVE_RATE_LIMIT_RPS\n")
	fmt.Fprintf(os.Stderr, "\nA .env file in the working directory is loaded before the environment is read.\n")
	fmt.Fprintf(os.Stderr, "\nExample usage:\n")
	fmt.Fprintf(os.Stderr, "  %s --spec-file ./api/openapi.yaml --db-driver sqlite\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s --config ./go-spec-serve.yaml --port 8081 --metrics-port 9091\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  GO_SPEC_SERVE_DB_DSN=postgres://app@db/app %s --db-driver postgres\n", os.Args[0])
}

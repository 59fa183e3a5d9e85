// Tiermemd is the tiered memory daemon.
//
// It keeps a four-tier episodic memory per agent, advances the tick clock
// that drives decay and daily summarization, and snapshots every agent on a
// schedule. By default it serves the REST API; with --mcp it serves the
// same operations as MCP tools on stdio.
//
// Configuration is read from ~/.config/tiermem/config.yaml and TIERMEM_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the HTTP daemon
//	tiermemd
//
//	# Serve MCP tools on stdio
//	tiermemd --mcp
//
//	# Use another config file
//	tiermemd --config /etc/tiermem/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/tiermem/internal/config"
	thttp "github.com/fyrsmithlabs/tiermem/internal/http"
	"github.com/fyrsmithlabs/tiermem/internal/logging"
	"github.com/fyrsmithlabs/tiermem/internal/mcp"
	"github.com/fyrsmithlabs/tiermem/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

type options struct {
	configPath string
	mcp        bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "config file (default ~/.config/tiermem/config.yaml)")
	flag.BoolVar(&opts.mcp, "mcp", false, "serve MCP tools on stdio instead of HTTP")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  tiermemd [--config path] [--mcp]   Start the daemon\n")
			fmt.Fprintf(os.Stderr, "  tiermemd version                   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("tiermemd: %v", err)
	}
}

func printVersion() {
	fmt.Printf("tiermemd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run builds the daemon and blocks until ctx is cancelled or a component
// fails. Snapshots are saved once more before it returns.
func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg, opts.mcp)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zl := logger.Underlying()

	tel, err := telemetry.New(ctx, &cfg.Telemetry, zl)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			zl.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	zl.Info("starting tiermemd",
		zap.String("version", version),
		zap.Bool("mcp", opts.mcp),
		zap.String("snapshot_backend", cfg.Snapshot.Backend),
		zap.String("summarizer", cfg.Summarizer.Provider),
	)

	a, err := newApp(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer a.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.runner.Run(gctx) })
	g.Go(func() error { return a.runSnapshots(gctx) })
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	if opts.mcp {
		g.Go(func() error { return serveMCP(gctx, a, zl) })
	} else {
		g.Go(func() error { return serveHTTP(gctx, a, cfg, zl) })
	}

	err = g.Wait()
	if errors.Is(err, errStdioClosed) {
		err = nil
	}
	zl.Info("tiermemd stopped", zap.Int64("tick", a.runner.Now()))
	return err
}

func initLogger(cfg *config.Config, stdio bool) (*logging.Logger, error) {
	var provider otellog.LoggerProvider
	if cfg.Logging.Output.OTEL {
		provider = global.GetLoggerProvider()
	}
	if stdio {
		return logging.NewStderrLogger(&cfg.Logging, provider)
	}
	return logging.NewLogger(&cfg.Logging, provider)
}

// serveHTTP runs the REST API until ctx is done.
func serveHTTP(ctx context.Context, a *app, cfg *config.Config, logger *zap.Logger) error {
	srv, err := thttp.NewServer(a.memory, logger, &thttp.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// serveMCP runs the MCP server on stdio. A client disconnect ends the
// daemon, which is how stdio servers are expected to exit.
func serveMCP(ctx context.Context, a *app, logger *zap.Logger) error {
	srv, err := mcp.NewServer(&mcp.Config{
		Name:    "tiermem",
		Version: version,
		Logger:  logger,
	}, a.memory)
	if err != nil {
		return fmt.Errorf("failed to create mcp server: %w", err)
	}
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return errStdioClosed
}

// errStdioClosed stops the errgroup when the MCP client goes away.
var errStdioClosed = errors.New("stdio session closed")

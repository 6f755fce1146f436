package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/gcbaptista/go-doc-stats/api"
	"github.com/gcbaptista/go-doc-stats/config"
	"github.com/gcbaptista/go-doc-stats/internal/engine"
	"github.com/gcbaptista/go-doc-stats/internal/logger"
	"github.com/gcbaptista/go-doc-stats/internal/metrics"
	"github.com/gcbaptista/go-doc-stats/store"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "1.0.0"

func main() {
	// Define command-line flags
	var (
		help       = flag.Bool("help", false, "Show help message")
		showVer    = flag.Bool("version", false, "Show version information")
		configPath = flag.String("config", "config.yaml", "Path to the YAML configuration file (optional)")
		envFile    = flag.String("env-file", ".env", "Path to a .env file loaded before DOCSTATS_* overrides (optional)")
		port       = flag.Int("port", 0, "Port to run the server on (overrides the configuration)")
	)

	flag.Parse()

	// Handle help flag
	if *help {
		fmt.Printf("Document Statistics Service - TF-IDF term statistics and Huffman encoding for text documents\n\n")
		fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
		fmt.Printf("Options:\n")
		flag.PrintDefaults()
		fmt.Printf("\nExamples:\n")
		fmt.Printf("  %s                            # Start with config.yaml and defaults\n", os.Args[0])
		fmt.Printf("  %s --port 9000                # Start server on port 9000\n", os.Args[0])
		fmt.Printf("  DOCSTATS_STORAGE_BACKEND=redis %s  # Use the Redis store\n", os.Args[0])
		return
	}

	// Handle version flag
	if *showVer {
		fmt.Printf("Document Statistics Service v%s\n", version)
		return
	}

	if err := run(*configPath, *envFile, *port); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string, port int) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Server.Port = port
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docStore, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Storage.Backend, err)
	}
	defer func() {
		if err := docStore.Close(); err != nil {
			log.Error("failed to close store", "error", err)
		}
	}()

	m := metrics.New()
	eng, err := engine.New(docStore,
		engine.WithTopK(cfg.Statistics.TopK),
		engine.WithMetrics(m),
	)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(eng, api.Options{
		Version:           version,
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		Metrics:           m,
		MetricsEnabled:    cfg.Metrics.Enabled,
	})

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server",
			"addr", srv.Addr,
			"version", version,
			"storage", cfg.Storage.Backend,
			"top_k", cfg.Statistics.TopK)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

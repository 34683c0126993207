package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iconidentify/xgrab/internal/api"
	"github.com/iconidentify/xgrab/internal/api/handler"
	"github.com/iconidentify/xgrab/internal/config"
	"github.com/iconidentify/xgrab/internal/metrics"
	"github.com/iconidentify/xgrab/internal/service"
	"github.com/iconidentify/xgrab/internal/telemetry"
	"github.com/iconidentify/xgrab/pkg/twitter"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	envFile := flag.String("env-file", ".env", "Path to dotenv file (ignored if missing)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("xgrab %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Variables already set in the environment win over the dotenv file.
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
			os.Exit(1)
		}
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting xgrab",
		"version", Version,
		"build_time", BuildTime,
	)

	shutdownTracing, err := telemetry.Setup(context.Background(), telemetry.Config{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     Version,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		logger.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	client, err := twitter.NewClient(twitter.ClientConfig{
		Endpoints: twitter.Endpoints{
			ScriptURL:   cfg.Upstream.ScriptURL,
			ActivateURL: cfg.Upstream.ActivateURL,
			GraphQLURL:  cfg.Upstream.GraphQLURL,
		},
		Timeout:        cfg.Upstream.Timeout,
		UserAgent:      cfg.Upstream.UserAgent,
		AcceptLanguage: cfg.Upstream.AcceptLanguage,
		ProxyURL:       cfg.Upstream.ProxyURL,
		MaxScriptBytes: cfg.Upstream.MaxScriptBytes,
		CredentialTTL:  cfg.Upstream.CredentialTTL,
		Observer:       m,
	}, logger)
	if err != nil {
		logger.Error("failed to create upstream client", "error", err)
		os.Exit(1)
	}

	logger.Info("upstream client configured",
		"graphql_url", cfg.Upstream.GraphQLURL,
		"proxy", cfg.Upstream.ProxyURL != "",
		"credential_ttl", cfg.Upstream.CredentialTTL,
		"tracing", cfg.Telemetry.OTLPEndpoint != "",
	)

	// Initialize services and handlers
	mediaSvc := service.NewMediaService(client, m, cfg.Upstream.RequestTimeout, logger)
	mediaHandler := handler.NewMediaHandler(mediaSvc, logger)
	healthHandler := handler.NewHealthHandler(mediaSvc, Version)

	if cfg.Server.EnableRaw && cfg.Server.RawAPIKey == "" {
		logger.Warn("raw payload endpoint enabled without an operator key")
	}

	router := api.NewRouter(mediaHandler, healthHandler, api.RouterConfig{
		EnableRaw:   cfg.Server.EnableRaw,
		RawAPIKey:   cfg.Server.RawAPIKey,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, logger)

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new requests
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if err := shutdownTracing(ctx); err != nil {
		logger.Error("tracer shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// Command api serves location ingestion, route lookups and live WebSocket
// fan-out.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"logistrans/internal/api"
	"logistrans/internal/auth"
	"logistrans/internal/buildinfo"
	"logistrans/internal/cache"
	"logistrans/internal/config"
	"logistrans/internal/hub"
	"logistrans/internal/ingest"
	"logistrans/internal/metrics"
	"logistrans/internal/store"
	"logistrans/internal/tracking"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "api:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.StringP("config", "c", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	port := pflag.IntP("port", "p", 0, "listen port (overrides config and PORT)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)
	logger.Info("starting", "build", buildinfo.Info())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	c, err := openCache(cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	metrics.RegisterDefault()
	registry := hub.NewRegistry(logger, cfg.Hub.QueueSize)
	svc := tracking.NewService(st, c, hub.NewBroadcaster(registry, logger), logger)

	if cfg.MQTT.BrokerURL != "" {
		sub := ingest.NewSubscriber(cfg.MQTT, svc, logger)
		if err := sub.Start(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		defer sub.Stop()
	}

	s := api.NewServer(ctx, cfg, api.Deps{
		Store:    st,
		Cache:    c,
		Auth:     auth.NewVerifier(cfg.Auth),
		Registry: registry,
		Tracking: svc,
		Logger:   logger,
	})
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.Routes(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("API listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	registry.CloseAll(hub.ReasonShutdown)
	if err := registry.Drain(shutdownCtx); err != nil {
		logger.Warn("sessions did not drain", "remaining", registry.Len(), "err", err)
	}
	return nil
}

func newLogger(c config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func openStore(ctx context.Context, c config.DatabaseConfig, logger *slog.Logger) (store.Store, error) {
	if c.URL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		return store.NewMemory(), nil
	}
	pg, err := store.NewPostgres(ctx, c.URL, c.MaxOpenConns)
	if err != nil {
		return nil, err
	}
	if c.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
	}
	return pg, nil
}

func openCache(c config.RedisConfig, logger *slog.Logger) (cache.LocationCache, error) {
	if c.URL == "" {
		logger.Info("REDIS_URL not set, using in-memory location cache")
		return cache.NewMemory(), nil
	}
	return cache.NewRedis(c.URL, c.TTL)
}

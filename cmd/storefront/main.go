// Storefront - serves a product catalog with a reconciled shopping cart and
// debounced search over REST and MCP.
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
	"time"

	"golang.org/x/sync/errgroup"

	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/middleware"
	"storefront/internal/model"
	"storefront/internal/search"
	"storefront/internal/session"
	"storefront/internal/storefront"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := initLogger(cfg.Environment, cfg.LogLevel)

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("catalog", cfg.Catalog.Endpoint()),
		slog.String("currency", cfg.Currency),
		slog.Duration("search_debounce", cfg.Search.Debounce),
		slog.Bool("cache", cfg.Cache.Enabled()),
	)

	svc, cleanup, err := createCatalog(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating catalog: %w", err)
	}
	defer cleanup()

	opts := storefront.Options{
		Currency: model.ParseCurrency(cfg.Currency),
		Search: []search.Option{
			search.WithWindow(cfg.Search.Debounce),
			search.WithSearchTimeout(cfg.Search.Timeout),
		},
		DiscardStale: cfg.Search.DiscardStale,
		Logger:       logger,
	}
	registry, err := storefront.NewRegistry(cfg.MaxSessions, func() *storefront.View {
		return storefront.NewView(svc, opts)
	}, logger)
	if err != nil {
		return fmt.Errorf("creating session registry: %w", err)
	}
	defer registry.Close()

	h := handler.New(registry, logger)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → session → logging → handler
	// Logging sits inside session so every request line carries the session id
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		session.Middleware(logger),
		middleware.Logging(logger),
	)(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

// createCatalog builds the catalog client, fronted by the Redis cache when
// one is configured. The returned cleanup closes the Redis connection.
func createCatalog(ctx context.Context, cfg *config.Config, logger *slog.Logger) (catalog.Service, func(), error) {
	client, err := catalog.New(catalog.Config{
		Endpoint:    cfg.Catalog.Endpoint(),
		Timeout:     cfg.Catalog.Timeout,
		Fingerprint: cfg.Catalog.Fingerprint,
	})
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Cache.Enabled() {
		return client, func() {}, nil
	}

	rdb, err := catalog.NewRedisClient(ctx, catalog.RedisConfig{
		Addr:     cfg.Cache.RedisAddr,
		Username: cfg.Cache.RedisUsername,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("catalog cache enabled",
		slog.String("redis_addr", cfg.Cache.RedisAddr),
		slog.Duration("ttl", cfg.Cache.TTL),
	)

	cached := catalog.NewCachedService(client, catalog.NewRedisCache(rdb), catalog.CacheConfig{
		TTL:    cfg.Cache.TTL,
		Prefix: cfg.Cache.Prefix,
	}, logger)
	return cached, func() { rdb.Close() }, nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger(environment, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: lvl,
		// Add source location in debug mode
		AddSource: lvl == slog.LevelDebug,
	}

	if environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

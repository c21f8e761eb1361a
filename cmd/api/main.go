package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Siddarth2230/asset-labels/internal/allocator"
	"github.com/Siddarth2230/asset-labels/internal/backend"
	"github.com/Siddarth2230/asset-labels/internal/config"
	"github.com/Siddarth2230/asset-labels/internal/handler"
	"github.com/Siddarth2230/asset-labels/internal/logging"
	"github.com/Siddarth2230/asset-labels/internal/models"
	"github.com/Siddarth2230/asset-labels/internal/repository"
	"github.com/Siddarth2230/asset-labels/internal/service"
	"github.com/Siddarth2230/asset-labels/pkg/cache"
	"github.com/Siddarth2230/asset-labels/pkg/idgen"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults to $CONFIG_FILE)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, logCloser, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	// Connect to database
	db, err := backend.Open(ctx, cfg.Backend())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	var l2 *cache.RedisCache[*models.Item]
	if cfg.Cache.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			return err
		}
		opts.DialTimeout = 5 * time.Second
		opts.ReadTimeout = 3 * time.Second
		redisClient := redis.NewClient(opts)
		defer func() {
			_ = redisClient.Close()
		}()

		// The cache is optional: run without it rather than fail.
		l2 = cache.NewRedisCache[*models.Item](redisClient, "item:", cfg.Cache.TTL)
		if err := l2.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, continuing without L2 cache", "error", err)
			l2 = nil
		}
	}

	alloc, err := allocator.New(db, allocator.Options{
		Encoder: idgen.NewEncoder(cfg.Labels.Width),
		Policy:  cfg.RetryPolicy(),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	repo := repository.NewItemRepository(db, logger)
	l1 := cache.NewLRUCache[*models.Item](cfg.Cache.LRUSize)
	items := service.NewItemService(db, repo, alloc, l1, l2, logger)
	labels := service.NewLabelService(db, repo, alloc, logger)

	router := handler.NewRouter(
		handler.NewItemHandler(items, logger),
		handler.NewLabelHandler(labels, logger),
		func(ctx context.Context) error { return db.DB().PingContext(ctx) },
		logger,
	)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr, "backend", db.Name(), "label_width", cfg.Labels.Width)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

package main

import (
	"context"
	"log/slog"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/safar/storefront/internal/api"
	"github.com/safar/storefront/internal/config"
	"github.com/safar/storefront/internal/database"
	"github.com/safar/storefront/internal/events"
	"github.com/safar/storefront/internal/identity"
	"github.com/safar/storefront/internal/logging"
	"github.com/safar/storefront/internal/media"
	"github.com/safar/storefront/internal/ratelimit"
	"github.com/safar/storefront/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Load config", "err", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Error("Connect to database", "err", err)
		os.Exit(1)
	}
	logger.Info("Connected to database successfully")

	verifier, err := identity.NewVerifier(cfg.Auth)
	if err != nil {
		logger.Error("Create token verifier", "err", err)
		os.Exit(1)
	}

	var uploader media.Uploader = media.Disabled{}
	if cfg.Media.Enabled() {
		cld, err := media.NewCloudinary(cfg.Media)
		if err != nil {
			logger.Error("Create media client", "err", err)
			os.Exit(1)
		}
		uploader = cld
	} else {
		logger.Warn("Media storage not configured, uploads are disabled")
	}

	publisher := events.NewNopPublisher()
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix)
		logger.Info("Publishing order events", "brokers", cfg.Kafka.Brokers)
	}

	var limiter ratelimit.Limiter = ratelimit.Unlimited{}
	closers := map[string]func() error{
		"event publisher": publisher.Close,
		"database":        db.Close,
	}
	if cfg.Redis.URL != "" {
		rdb, err := ratelimit.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Error("Connect to redis", "err", err)
			os.Exit(1)
		}
		limiter = ratelimit.NewSlidingWindowLimiter(rdb, ratelimit.Config{
			RequestsPerWindow: cfg.Redis.OrderRateLimit,
			WindowSize:        cfg.Redis.OrderRateWindow,
		}, "ratelimit:orders:")
		closers["redis"] = rdb.Close
	}

	app := api.NewApp(api.Deps{
		Store:         store.New(db),
		Verifier:      verifier,
		Uploader:      uploader,
		Limiter:       limiter,
		Notifier:      events.NewOrderNotifier(publisher, logger),
		Logger:        logger,
		ProductFolder: cfg.Media.ProductFolder,
		SlipFolder:    cfg.Media.SlipFolder,
		BodyLimit:     cfg.Server.BodyLimit,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
	})

	go func() {
		logger.Info("Server starting", "port", cfg.Server.Port)
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			logger.Error("Server error", "err", err)
		}
	}()

	// Dependencies close only after in-flight requests have drained.
	operations := map[string]gfshutdown.Operation{
		"http-server": func(ctx context.Context) error {
			err := app.ShutdownWithContext(ctx)
			for name, closeFn := range closers {
				if cerr := closeFn(); cerr != nil {
					logger.Warn("Close "+name, "err", cerr)
				}
			}
			return err
		},
	}

	wait := gfshutdown.GracefulShutdown(ctx, cfg.Server.ShutdownTimeout, operations)

	exitCode := <-wait
	logger.Info("Server stopped", "exit_code", exitCode)
	os.Exit(exitCode)
}

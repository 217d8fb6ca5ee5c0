package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iliyamo/recruiting-portal/internal/config"
	"github.com/iliyamo/recruiting-portal/internal/database"
	"github.com/iliyamo/recruiting-portal/internal/handler"
	"github.com/iliyamo/recruiting-portal/internal/logger"
	"github.com/iliyamo/recruiting-portal/internal/metrics"
	"github.com/iliyamo/recruiting-portal/internal/queue"
	"github.com/iliyamo/recruiting-portal/internal/router"
	"github.com/iliyamo/recruiting-portal/internal/service"
)

func main() {
	if err := run(); err != nil {
		logger.Get().Error(context.Background(), "server stopped", logger.Err(err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	log := logger.Named("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(database.Options{
		Driver: cfg.DBDriver,
		Path:   cfg.DBPath,
		User:   cfg.DBUser,
		Pass:   cfg.DBPass,
		Host:   cfg.DBHost,
		Port:   cfg.DBPort,
		Name:   cfg.DBName,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
			return err
		}
		log.Info(ctx, "schema applied", logger.String("driver", cfg.DBDriver))
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	} else {
		log.Warn(ctx, "redis unavailable, cache and rate limiting disabled")
	}

	m := metrics.Default()
	deps := router.Deps{
		Cfg:      cfg,
		DB:       db,
		Redis:    rdb,
		CacheCfg: config.LoadCacheConfig(),
		RateCfg:  config.LoadRateLimitConfig(),
		Metrics:  m,
	}

	if cfg.AMQPURL != "" {
		pub := service.NewPublisher(cfg.AMQPURL)
		defer pub.Close()
		deps.Publisher = handler.NotificationPublisher(pub)

		if cfg.NotifyConsumer {
			fn, err := queue.NewFileNotifier(cfg.NotifyDir)
			if err != nil {
				return err
			}
			consumer := queue.NewConsumer(cfg.AMQPURL, fn)
			consumer.OnDelivered = m.NotificationWritten
			go func() {
				if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error(ctx, "notification consumer stopped", logger.Err(err))
				}
			}()
			log.Info(ctx, "notification consumer started", logger.String("file", fn.Path()))
		}
	} else {
		log.Warn(ctx, "AMQP_URL not set, notifications disabled")
	}

	e := router.New(deps)
	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "listening", logger.String("addr", addr), logger.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info(context.Background(), "shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(sctx)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/internal/config"
	"github.com/MarkoPoloResearchLab/boxoffice/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/boxoffice/internal/health"
	"github.com/MarkoPoloResearchLab/boxoffice/internal/httpapi"
	"github.com/MarkoPoloResearchLab/boxoffice/internal/intake"
	"github.com/MarkoPoloResearchLab/boxoffice/internal/logging"
	"github.com/MarkoPoloResearchLab/boxoffice/internal/scheduler"
	"github.com/MarkoPoloResearchLab/boxoffice/internal/stockcache"
	"github.com/MarkoPoloResearchLab/boxoffice/pkg/booking"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	reaperTaskName    = "reservation_reaper"
	reconcileTaskName = "stock_cache_reconcile"
)

func newLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	return logger, nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// application is the assembled core shared by serve and reap.
type application struct {
	service *booking.Service
	checks  []health.Check
	cleanup func()
}

func buildApplication(ctx context.Context, cfg config.Config, logger *zap.Logger) (*application, error) {
	handle, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cleanups := []func(){handle.cleanup}
	cleanup := func() {
		for index := len(cleanups) - 1; index >= 0; index-- {
			cleanups[index]()
		}
	}
	checks := []health.Check{{Name: "database", Probe: handle.ping}}

	options := []booking.ServiceOption{
		booking.WithOperationLogger(logging.NewOperationLogger(logger)),
		booking.WithReservationTTL(cfg.ReservationTTL),
		booking.WithReaperBatchSize(cfg.ReaperBatchSize),
	}
	if cfg.CacheEnabled() {
		redisClient, err := stockcache.NewClient(ctx, stockcache.ClientConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TLS:      cfg.RedisTLS,
		})
		if err != nil {
			// The cache is advisory; the store stays authoritative.
			logger.Warn("stock cache disabled", zap.Error(err))
		} else {
			cleanups = append(cleanups, func() { _ = redisClient.Close() })
			cache, err := stockcache.New(redisClient)
			if err != nil {
				cleanup()
				return nil, err
			}
			options = append(options, booking.WithStockCache(cache), booking.WithCacheTimeout(cfg.CacheTimeout))
			checks = append(checks, redisCheck(redisClient))
		}
	}

	service, err := booking.NewService(handle.store, utcNow, options...)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("booking service init: %w", err)
	}
	return &application{service: service, checks: checks, cleanup: cleanup}, nil
}

func redisCheck(redisClient *redis.Client) health.Check {
	return health.Check{
		Name:     "stock_cache",
		Optional: true,
		Probe: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.AutoMigrate {
		if err := runMigrate(ctx, cfg); err != nil {
			return err
		}
	}

	core, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer core.cleanup()

	group, groupCtx := errgroup.WithContext(ctx)

	submitter, checks, stopIntake, err := startIntake(groupCtx, group, cfg, core, logger)
	if err != nil {
		return err
	}
	defer stopIntake()

	stopTasks, err := startPeriodicTasks(groupCtx, cfg, core.service, logger)
	if err != nil {
		return err
	}
	defer stopTasks()

	router, err := httpapi.NewRouter(httpapi.RouterConfig{
		Service:        core.service,
		Submitter:      submitter,
		Checks:         checks,
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("http router init: %w", err)
	}

	listener, err := net.Listen("tcp", cfg.GRPCListenAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	reporter := grpcserver.NewHealthReporter(checks, 0, 0, logger)
	logger.Info("health checks registered", zap.Strings("checks", health.Names(checks)))
	grpcServer := grpcserver.NewServer(reporter)

	group.Go(func() error {
		return httpapi.Run(groupCtx, cfg.ListenAddr, router, cfg.ShutdownTimeout, logger)
	})
	group.Go(func() error {
		return grpcserver.Serve(groupCtx, grpcServer, listener, logger)
	})
	group.Go(func() error {
		reporter.Run(groupCtx)
		return nil
	})

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("boxoffice stopped")
	return nil
}

// startIntake wires the configured transport behind a gateway. Consumers run
// on group; the returned stop function releases what group does not own.
func startIntake(ctx context.Context, group *errgroup.Group, cfg config.Config, core *application, logger *zap.Logger) (*intake.Gateway, []health.Check, func(), error) {
	checks := append([]health.Check(nil), core.checks...)
	switch cfg.IntakeTransport {
	case config.TransportAMQP:
		publisher, err := intake.NewAMQPPublisher(cfg.AMQPURL, cfg.IntakePartitions, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("amqp publisher: %w", err)
		}
		processor, err := intake.NewProcessor(core.service, intake.ProcessorConfig{
			Policy:      cfg.DropPolicy,
			MaxAttempts: cfg.IntakeMaxAttempts,
			Retry:       publisher,
			DeadLetters: publisher,
		}, logger)
		if err != nil {
			_ = publisher.Close()
			return nil, nil, nil, err
		}
		consumer, err := intake.NewAMQPConsumer(cfg.AMQPURL, cfg.IntakePartitions, processor, logger)
		if err != nil {
			_ = publisher.Close()
			return nil, nil, nil, err
		}
		gateway, err := intake.NewGateway(publisher, utcNow)
		if err != nil {
			_ = publisher.Close()
			return nil, nil, nil, err
		}
		group.Go(func() error {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		checks = append(checks, health.Check{Name: "broker", Probe: publisher.Ping})
		stop := func() { _ = publisher.Close() }
		return gateway, checks, stop, nil
	default:
		dispatcher, err := intake.NewDispatcher(cfg.IntakePartitions, cfg.IntakeBuffer, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		processor, err := intake.NewProcessor(core.service, intake.ProcessorConfig{
			Policy:      cfg.DropPolicy,
			MaxAttempts: cfg.IntakeMaxAttempts,
			Retry:       dispatcher.Requeue(),
			DeadLetters: intake.NewMemoryDeadLetters(cfg.DeadLetterLimit, utcNow),
		}, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := dispatcher.Start(ctx, processor); err != nil {
			return nil, nil, nil, err
		}
		gateway, err := intake.NewGateway(dispatcher, utcNow)
		if err != nil {
			dispatcher.Stop()
			return nil, nil, nil, err
		}
		return gateway, checks, dispatcher.Stop, nil
	}
}

func startPeriodicTasks(ctx context.Context, cfg config.Config, service *booking.Service, logger *zap.Logger) (func(), error) {
	reaper, err := scheduler.NewPeriodicTask(reaperTaskName, cfg.ReaperInterval, reapJob(service, logger), logger)
	if err != nil {
		return nil, err
	}
	if err := reaper.Start(ctx); err != nil {
		return nil, err
	}
	tasks := []*scheduler.PeriodicTask{reaper}

	if cfg.CacheEnabled() && cfg.CacheReconcileInterval > 0 {
		reconcile, err := scheduler.NewPeriodicTask(reconcileTaskName, cfg.CacheReconcileInterval, func(ctx context.Context) error {
			refreshed, err := service.ReconcileStockCache(ctx)
			if err != nil {
				return err
			}
			logger.Debug("stock cache reconciled", zap.Int("categories", refreshed))
			return nil
		}, logger)
		if err != nil {
			reaper.Stop()
			return nil, err
		}
		if err := reconcile.Start(ctx); err != nil {
			reaper.Stop()
			return nil, err
		}
		tasks = append(tasks, reconcile)
	}
	return func() {
		for _, task := range tasks {
			task.Stop()
		}
	}, nil
}

func reapJob(service *booking.Service, logger *zap.Logger) scheduler.Job {
	return func(ctx context.Context) error {
		report, err := service.ReapExpired(ctx)
		if err != nil {
			return err
		}
		if report.Scanned > 0 {
			logger.Info("expired reservations swept",
				zap.Int("scanned", report.Scanned),
				zap.Int("cancelled", report.Cancelled),
				zap.Int("skipped", report.Skipped),
				zap.Int("failed", report.Failed),
			)
		}
		return nil
	}
}

func runReap(ctx context.Context, cfg config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	core, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer core.cleanup()

	task, err := scheduler.NewPeriodicTask(reaperTaskName, cfg.ReaperInterval, reapJob(core.service, logger), logger)
	if err != nil {
		return err
	}
	return task.RunOnce(ctx)
}

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"zerobudget/internal/amqp"
	"zerobudget/internal/cache"
	"zerobudget/internal/cli"
	"zerobudget/internal/core"
	apphttp "zerobudget/internal/http"
	"zerobudget/internal/log"
	"zerobudget/internal/metrics"
	"zerobudget/internal/services"
)

const cacheCleanupInterval = time.Minute

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := cli.LoadAndValidateConfig(cfgFile)
	if err != nil {
		return err
	}
	logger := cli.SetupLogger(cfg)

	ctx, cancel := cli.GracefulShutdown(ctx, logger)
	defer cancel()

	res, err := cli.InitBackend(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err)
		}
	}()

	summaries := cache.NewLRUCache[core.Summary](cfg.CacheSize, cfg.CacheTTL,
		cache.WithObserver(cache.ObserverFunc(metrics.ObserveCache)))
	cacheManager := cache.NewManager()
	cacheManager.Register(summaries)
	cacheManager.StartCleanup(cacheCleanupInterval)
	defer cacheManager.Stop()

	opts := []services.Option{
		services.WithSummaryCache(summaries),
		services.WithLogger(logger),
		services.WithAllocationLimit(cfg.EnforceAllocationLimit),
	}
	if cfg.AMQPEnabled() {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without ledger events", log.FieldError, err)
		} else {
			defer amqpClient.Close()
			opts = append(opts, services.WithPublisher(amqpClient))
			logger.Info("Publishing ledger events", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	ledger := services.NewLedgerService(res.Backend, opts...)
	srv := apphttp.NewServer(apphttp.Config{
		Addr:         cfg.Addr(),
		DefaultOwner: cfg.DefaultOwner,
		RateLimitRPM: cfg.RateLimitRPM,
		Logger:       logger,
	}, ledger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting zerobudget server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}

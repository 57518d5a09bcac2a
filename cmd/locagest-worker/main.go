package main

import (
	"time"

	"golang.org/x/sync/errgroup"

	"locagest/internal/cache"
	"locagest/internal/cli"
	"locagest/internal/log"
	"locagest/internal/services"
	"locagest/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal(nil, "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting locagest-worker", log.FieldOperation, log.OpStartup)

	ctx, stop := cli.SignalContext()
	defer stop()
	ctx = log.NewContext(ctx, logger)

	app, err := cli.NewApp(ctx, cfg, logger, cli.Options{RequireAMQP: cfg.AMQPEnabled()})
	if err != nil {
		cli.Fatal(logger, "Failed to initialize", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("Close failed", log.FieldError, err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	// Expired summaries are swept on the cache TTL period.
	caches := cache.NewManager()
	caches.Register("summaries", app.Service.Cache().Cleaner())
	g.Go(func() error {
		caches.Run(gctx, cfg.SummaryCacheTTL)
		return nil
	})

	if app.AMQP != nil {
		invalidations := worker.NewInvalidationWorker(app.Service)
		g.Go(func() error {
			return invalidations.Run(gctx, app.AMQP)
		})
	} else {
		logger.Info("AMQP disabled - no cross-process cache invalidation")
	}

	var reports *services.ReportProcessor
	if cfg.SheetsEnabled() {
		reports = services.NewReportProcessor(app.Service, services.ReportProcessorConfig{
			Interval:   cfg.ReportInterval,
			RunOnStart: true,
		})
		if err := reports.Start(gctx); err != nil {
			cli.Fatal(logger, "Failed to start report processor", err)
		}
	} else {
		logger.Info("Google Sheets disabled - outstanding report not scheduled")
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
	}

	shutdownCtx, cancel := cli.ShutdownContext(10 * time.Second)
	defer cancel()
	if reports != nil {
		if err := reports.Stop(shutdownCtx); err != nil {
			logger.Warn("Report processor stop failed", log.FieldError, err)
		}
	}
	logger.Info("locagest-worker stopped", log.FieldOperation, log.OpShutdown)
}

package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"feeledger/internal/amqp"
	"feeledger/internal/backend"
	"feeledger/internal/cli"
	"feeledger/internal/config"
	"feeledger/internal/log"
	"feeledger/internal/storage"
	"feeledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker, os.Stdout)
	logger.Info("Starting feeledger-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.DataBackend != config.BackendSQLite {
		logger.Error("The register worker needs the sqlite backend", "backend", cfg.DataBackend)
		os.Exit(1)
	}

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	register, err := backend.NewFactory(logger.Logger).OpenRegister(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to open fee register", log.FieldError, err)
		os.Exit(1)
	}

	syncWorker := worker.NewRegisterSyncWorker(repo, register, cfg.SyncBatchSize)

	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		// not fatal, the sweep retries
		logger.Error("Failed startup sync check", log.FieldError, err)
	}

	poller := worker.NewPoller(syncWorker.ProcessPending, worker.PollerConfig{Interval: cfg.SyncInterval})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := poller.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		return poller.Stop(stopCtx)
	})

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, relying on the sweep only", log.FieldError, err)
		} else {
			defer amqpClient.Close()
			g.Go(func() error {
				return amqpClient.ConsumePaymentRecorded(gctx, syncWorker.HandlePaymentRecorded)
			})
		}
	} else {
		logger.Info("Skipping AMQP message consumption, no AMQP_URL provided")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

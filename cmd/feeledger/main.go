package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"feeledger/internal/amqp"
	"feeledger/internal/cli"
	apphttp "feeledger/internal/http"
	"feeledger/internal/log"
	"feeledger/internal/receipt"
	"feeledger/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp, os.Stdout)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	repo := cli.OpenRepository(ctx, logger, cfg)
	defer func() {
		if err := repo.Cleanup(); err != nil {
			logger.Error("Failed to close storage", log.FieldError, err)
		}
	}()

	loc := cfg.Location()
	receipts, err := receipt.New(receipt.Header{Name: cfg.SchoolName, Address: cfg.SchoolAddress},
		receipt.WithLocation(loc))
	if err != nil {
		logger.Error("Failed to load receipt template", log.FieldError, err)
		os.Exit(1)
	}

	// AMQP is optional: without it the worker's sweep still picks payments up.
	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without messages", log.FieldError, err)
		} else {
			defer amqpClient.Close()
			publisher = amqpClient
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	svc := services.NewFeeService(repo.Repository, receipts, publisher,
		services.WithDueness(services.NewDuenessChecker(cfg.FeeDueDay)),
		services.WithLocation(loc))

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Logger:             logger,
	})
	srv.MaxHeaderBytes = 1 << 16

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	}()

	logger.Info("Starting feeledger server", "port", cfg.Port, "backend", cfg.DataBackend, "amqp_enabled", publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}

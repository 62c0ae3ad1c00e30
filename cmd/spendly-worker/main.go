package main

import (
	"context"
	"errors"
	"os"
	"time"

	"spendly/internal/access"
	"spendly/internal/amqp"
	"spendly/internal/backend"
	"spendly/internal/cli"
	"spendly/internal/config"
	"spendly/internal/log"
	"spendly/internal/worker"
)

func main() {
	cfg, logger := cli.LoadConfig((*config.Config).ValidateWorker)
	logger.Info("Starting spendly-worker", "backend", cfg.DataBackend, "queue", cfg.AMQPQueue)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	factory := backend.NewFactory(logger)

	// The worker only reads; it publishes nothing.
	store, err := factory.CreateDocstore(bcfg, nil)
	if err != nil {
		logger.Error("Failed to open document store", log.FieldError, err)
		os.Exit(1)
	}
	defer store.Close()

	mirror, err := factory.CreateMirror(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize mirror", log.FieldError, err)
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
		[]string{access.TransactionsCollection}, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	mw := worker.NewMirrorWorker(store, mirror, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	if cfg.ResyncOnStart {
		synced, failed, err := mw.Resync(ctx)
		if err != nil {
			logger.Error("Startup resync failed", log.FieldError, err)
		} else {
			logger.Info("Startup resync complete", "synced", synced, "failed", failed)
		}
	}

	if err := client.ConsumeChanges(ctx, mw.HandleChange); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Change consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}

package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"spendly/internal/access"
	"spendly/internal/cli"
	"spendly/internal/config"
	"spendly/internal/docstore"
	apphttp "spendly/internal/http"
	"spendly/internal/identity/local"
	"spendly/internal/log"
	"spendly/internal/prefs"
	"spendly/internal/rates"
)

const readyProbeCollection = "_health"

func main() {
	cfg, logger := cli.LoadConfig((*config.Config).Validate)
	logger.Info("Starting spendly", "port", cfg.Port, "backend", cfg.DataBackend, "blobs", cfg.BlobBackend)

	_, _, res := cli.InitBackend(context.Background(), logger, cfg)

	provider, err := local.New(res.Docs, local.Options{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("Failed to initialize identity provider", log.FieldError, err)
		os.Exit(1)
	}

	store, err := prefs.OpenFile(cfg.PrefsPath)
	if err != nil {
		logger.Error("Failed to open preferences", log.FieldError, err, "path", cfg.PrefsPath)
		os.Exit(1)
	}

	usernames := access.NewUsernames(res.Docs, logger)
	profiles := access.NewProfiles(res.Docs, res.Blobs, usernames, logger)
	profiles.SetURLTimeout(cfg.UploadURLTimeout)

	opts := apphttp.DefaultOptions()
	opts.CORSOrigins = cfg.CORSOrigins
	opts.WorkspaceCacheSize = cfg.WorkspaceCacheSize
	opts.WorkspaceTTL = cfg.WorkspaceTTL
	opts.RatesRefresh = cfg.RatesRefreshInterval
	opts.Realtime = cfg.Realtime

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Auth:         access.NewAuth(provider, usernames, profiles, logger),
		Usernames:    usernames,
		Profiles:     profiles,
		Transactions: access.NewTransactions(res.Docs, logger),
		Savings:      access.NewSavings(res.Docs, logger),
		Categories:   access.NewCategories(res.Docs, logger),
		Prefs:        store,
		Rates:        rates.New(cfg.RatesURL, nil),
		Files:        res.Files,
		FilesPrefix:  res.FilesPrefix,
		Ready: func(ctx context.Context) error {
			_, err := res.Docs.Get(ctx, readyProbeCollection, "ping")
			if docstore.IsCode(err, docstore.CodeNotFound) {
				return nil
			}
			return err
		},
		Logger: logger,
	}, opts)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if err := res.Close(); err != nil {
			logger.Error("Failed to release backend", log.FieldError, err)
		}
	})

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

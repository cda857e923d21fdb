package main

import (
	"context"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ibeckermayer/prayerkit/internal/app"
	"github.com/ibeckermayer/prayerkit/internal/config"
	"github.com/ibeckermayer/prayerkit/internal/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		logger.Logger.Errorw("prayerkit exited with error", logger.FieldError, err)
		logger.Cleanup()
		os.Exit(1)
	}
	logger.Cleanup()
}

func run() error {
	path, err := config.ConfigPath()
	if err != nil {
		return errors.Wrap(err, "config path")
	}

	// Load or create configuration
	cfg, loadErr := config.LoadFile(path)
	firstRun := false
	if loadErr != nil {
		cfg = config.Default()
		if errors.Is(loadErr, fs.ErrNotExist) {
			// First run - create default config
			firstRun = true
			loadErr = cfg.SaveFile(path)
		}
	}

	overrides := config.NewOverrides()
	config.ApplyOverrides(cfg, overrides)

	if err := logger.Initialize(cfg.Log.JSON, cfg.Log.Debug); err != nil {
		return errors.Wrap(err, "init logger")
	}
	log := logger.Named("main")
	switch {
	case firstRun && loadErr == nil:
		log.Infow("Created default config", logger.FieldPath, path)
	case loadErr != nil:
		log.Warnw("Could not load config, using defaults", logger.FieldPath, path, logger.FieldError, loadErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}

	go func() {
		err := config.Watch(ctx, path, func(next *config.Config) {
			config.ApplyOverrides(next, overrides)
			a.Reload(ctx, next)
		})
		if err != nil {
			log.Warnw("Config watcher stopped", logger.FieldError, err)
		}
	}()

	log.Infow("prayerkit starting", "server", cfg.Server.Enabled, "addr", cfg.Server.Addr)
	a.Start()

	var runErr error
	select {
	case <-ctx.Done():
		log.Infow("Shutting down")
	case runErr = <-a.Errors():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		runErr = errors.CombineErrors(runErr, err)
	}
	return runErr
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/sessioncore/app/coordinator"
	"github.com/dmitrymomot/sessioncore/core/config"
	"github.com/dmitrymomot/sessioncore/core/logger"
)

func main() {
	var cfg coordinator.Config
	config.MustLoad(&cfg)

	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.AppName),
		logger.WithLevelString(cfg.LogLevel),
	)

	if err := run(cfg, log); err != nil {
		log.Error("application stopped with error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("application stopped")
}

func run(cfg coordinator.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := coordinator.New(cfg, coordinator.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error("failed to release connections", logger.Error(err))
		}
	}()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(app.Run(ctx))

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

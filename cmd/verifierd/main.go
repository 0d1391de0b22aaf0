package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"merkleverifier/internal/config"
	httpinfra "merkleverifier/internal/infra/http"
	"merkleverifier/internal/logging"
)

func main() {
	cfg := config.FromEnv()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := httpinfra.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to init server")
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.WithError(err).Warn("close server dependencies")
		}
	}()

	if err := srv.Run(ctx); err != nil {
		logger.WithError(err).Error("server exited")
		return
	}
	logger.Info("server stopped")
}

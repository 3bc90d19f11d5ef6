package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pierrenik/signalauto/config"
	"github.com/pierrenik/signalauto/internal/logger"
	"github.com/pierrenik/signalauto/internal/service"
)

func main() {
	cfg := config.Load()
	log := logger.Init("scanner", logger.ParseLevel(cfg.LogLevel))

	svc, err := service.New(cfg, log)
	if err != nil {
		log.Error("init failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("signal received", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := svc.Run(ctx); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

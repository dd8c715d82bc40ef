package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/querymind/querymind/internal/demo/seeder"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load .env", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := seeder.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load demo config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	service, err := seeder.NewService(cfg, logger, nil)
	if err != nil {
		logger.Error("failed to initialize demo seeder", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(
		"building demo database",
		slog.String("database", cfg.DatabasePath),
		slog.Int("customers", cfg.Customers),
		slog.Int("products", cfg.Products),
		slog.Int("orders", cfg.Orders),
		slog.Bool("register", cfg.Register),
	)
	summary, err := service.Run(ctx)
	if err != nil {
		logger.Error("demo seeding failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("demo ready", slog.String("database", summary.DatabasePath), slog.String("connection", cfg.ConnectionName))
}

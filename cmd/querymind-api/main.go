package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/querymind/querymind/internal/api"
	"github.com/querymind/querymind/internal/api/uistatic"
	"github.com/querymind/querymind/internal/assistant"
	"github.com/querymind/querymind/internal/auth"
	"github.com/querymind/querymind/internal/config"
	"github.com/querymind/querymind/internal/connections"
	"github.com/querymind/querymind/internal/export"
	"github.com/querymind/querymind/internal/history"
	historypostgres "github.com/querymind/querymind/internal/history/postgres"
	"github.com/querymind/querymind/internal/localstore"
	"github.com/querymind/querymind/internal/maintenance"
	"github.com/querymind/querymind/internal/migrations"
	"github.com/querymind/querymind/internal/nl2sql"
	"github.com/querymind/querymind/internal/observability"
	"github.com/querymind/querymind/internal/query"
	"github.com/querymind/querymind/internal/schema"
	s3store "github.com/querymind/querymind/internal/storage/s3"
	"github.com/querymind/querymind/internal/target"
)

var version = "dev"

const defaultConnection = "default"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load .env", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := config.LoadFromEnv("querymind-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	state, err := localstore.Open(localstore.Config{
		Dir:      cfg.State.Dir,
		KeyFile:  cfg.State.KeyFile,
		InMemory: cfg.State.InMemory,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to open state store", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = state.Close() }()

	manager := connections.NewManager(state.Connections())
	targetOptions := target.Options{
		MaxOpenConns:    cfg.Target.MaxOpenConns,
		MaxIdleConns:    cfg.Target.MaxIdleConns,
		ConnMaxIdleTime: cfg.Target.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Target.ConnMaxLifetime,
		PingTimeout:     5 * time.Second,
	}

	translator, err := nl2sql.New(cfg.AI)
	switch {
	case errors.Is(err, nl2sql.ErrNotConfigured):
		logger.Warn("no AI API key configured; natural language questions are disabled", slog.String("provider", cfg.AI.Provider))
		translator = nil
	case err != nil:
		logger.Error("failed to initialize query translator", slog.Any("error", err))
		os.Exit(1)
	}

	var (
		recorder  history.Recorder
		retention *maintenance.Service
	)
	if cfg.History.DSN != "" {
		historyDB, err := historypostgres.Open(context.Background(), historypostgres.DBConfig{
			DSN:          cfg.History.DSN,
			MaxOpenConns: cfg.History.MaxOpenConns,
			MaxIdleConns: cfg.History.MaxIdleConns,
		})
		if err != nil {
			logger.Error("failed to open history db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = historyDB.Close() }()
		if cfg.History.AutoMigrate {
			migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			applied, err := migrations.NewRunner().Up(migrateCtx, historyDB, 0)
			cancel()
			if err != nil {
				logger.Error("failed to migrate history db", slog.Any("error", err))
				os.Exit(1)
			}
			logger.Info("history db migrated", slog.Int("applied", applied))
		}
		repo := historypostgres.NewRepository(historyDB)
		recorder = repo
		retention = &maintenance.Service{
			History: repo,
			Config: maintenance.Config{
				Retention:         cfg.History.Retention,
				RetentionInterval: cfg.History.RetentionInterval,
			},
			Logger: logger,
		}
	}

	var (
		uploader   *export.Uploader
		storeReady api.ReadinessCheck
	)
	if cfg.Export.ObjectStoreEnabled {
		objectStore, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		uploader, err = export.NewUploader(objectStore, cfg.Export.LinkExpiry)
		if err != nil {
			logger.Error("failed to initialize export uploader", slog.Any("error", err))
			os.Exit(1)
		}
		storeReady = objectStore.Ready
	}

	service := &assistant.Service{
		Profiles:       manager,
		Schema:         schema.NewService(state.MetadataCache(), cfg.Schema.CacheTTL, logger),
		Translator:     translator,
		Executor:       query.NewExecutor(cfg.Query.RowLimit, cfg.Query.Timeout),
		ExportExecutor: query.NewExecutor(cfg.Export.MaxRows, cfg.Query.Timeout),
		History:        recorder,
		Config: assistant.Config{
			Provider:      cfg.AI.Provider,
			SampleRows:    cfg.Schema.SampleRows,
			TargetOptions: targetOptions,
		},
		Logger: logger,
	}
	defer func() { _ = service.Close() }()

	if cfg.Target.DatabaseURL != "" {
		if err := registerDefaultConnection(context.Background(), cfg, manager, service); err != nil {
			logger.Warn("default connection is not active", slog.Any("error", err))
		}
	}

	deps := api.Dependencies{
		Logger:            logger,
		Version:           version,
		Connections:       manager,
		TestConnection:    api.TargetTester(targetOptions),
		Assistant:         service,
		History:           recorder,
		Uploader:          uploader,
		UI:                uistatic.Handler(),
		DependencyTimeout: time.Second,
		Readiness: api.CombineReadinessChecks(
			state.Ping,
			api.CheckHistory(recorder),
			storeReady,
		),
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if retention != nil {
		go func() { _ = retention.Run(ctx) }()
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address), slog.String("version", version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

// registerDefaultConnection saves QUERYMIND_DATABASE_URL as the "default"
// connection and activates it.
func registerDefaultConnection(ctx context.Context, cfg config.Config, manager *connections.Manager, service *assistant.Service) error {
	in, err := connections.InputFromURL(defaultConnection, cfg.Target.DatabaseURL, cfg.Target.Driver)
	if err != nil {
		return err
	}
	in.Schema = cfg.Target.Schema
	in.Description = "from QUERYMIND_DATABASE_URL"
	if _, err := manager.Add(ctx, in); err != nil {
		return err
	}
	_, err = service.Activate(ctx, defaultConnection)
	return err
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/adapters/warehouse"
	_ "github.com/ekaya-inc/ekaya-recon/pkg/adapters/warehouse/bigquery"
	_ "github.com/ekaya-inc/ekaya-recon/pkg/adapters/warehouse/mssql"
	_ "github.com/ekaya-inc/ekaya-recon/pkg/adapters/warehouse/postgres"
	"github.com/ekaya-inc/ekaya-recon/pkg/config"
	"github.com/ekaya-inc/ekaya-recon/pkg/handlers"
	"github.com/ekaya-inc/ekaya-recon/pkg/llm"
	"github.com/ekaya-inc/ekaya-recon/pkg/logging"
	"github.com/ekaya-inc/ekaya-recon/pkg/middleware"
	"github.com/ekaya-inc/ekaya-recon/pkg/services"
	"github.com/ekaya-inc/ekaya-recon/pkg/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// A .env file is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load(Version)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("warehouse", cfg.Warehouse.Type),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.String("mappings", cfg.Mappings.Location))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	controls, err := config.LoadControls(cfg.Reconciliation.ControlsFile)
	if err != nil {
		return err
	}

	store, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("create object store: %w", err)
	}

	exec, err := warehouse.NewFromConfig(ctx, cfg.Warehouse, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := exec.Close(); err != nil {
			logger.Warn("Failed to close warehouse executor", zap.Error(err))
		}
	}()

	llmClient, err := llm.NewFromConfig(cfg.LLM, logger)
	if err != nil {
		return fmt.Errorf("create llm client: %w", err)
	}

	mappingService := services.NewMappingService(store, cfg.Mappings, cfg.Cache, logger)
	generator := services.NewSQLGenerator(llmClient, mappingService, services.SQLGeneratorConfig{
		Dialect:     exec.Dialect(),
		Temperature: cfg.LLM.Temperature,
		SampleRows:  cfg.Mappings.SampleRows,
		MaxRetries:  cfg.LLM.MaxRetries,
		RetryDelay:  time.Duration(cfg.LLM.RetryDelayMS) * time.Millisecond,
	}, logger)
	queryService := services.NewQueryService(exec, generator, cfg.Warehouse.MaxRows, cfg.Warehouse.PreviewLimit, logger)
	loader := services.NewDataLoader(exec, cfg.Sources, cfg.Reconciliation, cfg.Cache, logger)
	reconService := services.NewReconciliationService(loader, mappingService, controls, cfg.Reconciliation, logger)
	accuracyService := services.NewAccuracyService(reconService, logger)

	sessionStore := handlers.NewSessionStore(cfg.Session, cfg.Env != "local")

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, map[string]handlers.ReadinessCheck{
		"warehouse": func(ctx context.Context) error { return warehouse.Ping(ctx, exec) },
		"controls": func(context.Context) error {
			if len(controls.ControlTypes()) == 0 {
				return errors.New("no controls configured")
			}
			return nil
		},
	}, logger).RegisterRoutes(mux)
	handlers.NewMappingsHandler(mappingService, controls, cfg.Mappings.SampleRows, logger).RegisterRoutes(mux)
	handlers.NewQueryHandler(queryService, logger).RegisterRoutes(mux)
	handlers.NewReportsHandler(reconService, accuracyService, logger).RegisterRoutes(mux)
	handlers.NewWizardHandler(sessionStore, cfg.Session.CookieName, reconService, accuracyService, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-recon", zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cashplan/cashplan/internal/api"
	"github.com/cashplan/cashplan/internal/assistant"
	"github.com/cashplan/cashplan/internal/auth"
	"github.com/cashplan/cashplan/internal/config"
	"github.com/cashplan/cashplan/internal/llm"
	"github.com/cashplan/cashplan/internal/observability"
	queryengine "github.com/cashplan/cashplan/internal/query/postgres"
	storepostgres "github.com/cashplan/cashplan/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", slog.Any("error", err))
	}

	cfg, err := config.LoadFromEnv("cashplan-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	db, err := storepostgres.Open(context.Background(), storepostgres.DBConfig{
		DSN:             cfg.Store.DSN,
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxIdleTime: cfg.Store.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open store db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	repo := storepostgres.NewRepository(db)
	executor := queryengine.NewExecutor(db, cfg.Assistant.QueryTimeout)

	generator, err := newGenerator(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to initialize llm provider", slog.Any("error", err))
		os.Exit(1)
	}
	gateway := llm.NewGateway(generator, cfg.AI.Timeout, logger)

	service := assistant.NewService(repo, executor, gateway, assistant.Options{
		ScopeCheck:        cfg.Assistant.ScopeCheck,
		ExposeStoreErrors: cfg.Assistant.ExposeStoreErrors,
		AuditEnabled:      cfg.Assistant.AuditEnabled,
		MaxRows:           cfg.Assistant.MaxRows,
		QueryTimeout:      cfg.Assistant.QueryTimeout,
		Currency:          cfg.Assistant.Currency,
	}, logger)

	deps := api.Dependencies{
		Logger:    logger,
		Assistant: service,
		Schema:    repo,
		Users:     repo,
		Readiness: api.CombineReadinessChecks(
			repo.HealthCheck,
			api.CheckAIConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validators := auth.ChainValidator{}
		if cfg.Auth.StaticKeys != "" {
			static, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
			if err != nil {
				logger.Error("failed to parse static auth keys", slog.Any("error", err))
				os.Exit(1)
			}
			validators = append(validators, static)
		}
		if cfg.Auth.StoreKeys {
			validators = append(validators, auth.NewStoreAPIKeyValidator(repo, logger))
		}
		if len(validators) == 0 {
			logger.Error("auth is required but no key source is configured")
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validators)
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

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("llm_provider", gateway.Provider()),
		)
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

func newGenerator(ctx context.Context, cfg config.Config) (llm.Generator, error) {
	if !cfg.AI.Enabled {
		return llm.DisabledGenerator{}, nil
	}
	switch cfg.AI.Provider {
	case config.ProviderOpenAI:
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
	default:
		return llm.NewGeminiClient(ctx, llm.GeminiConfig{
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
	}
}

package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/promptlab/promptlab/cmd/mainconfig"
	"github.com/promptlab/promptlab/internal/api/router"
	"github.com/promptlab/promptlab/internal/catalog"
	"github.com/promptlab/promptlab/internal/chat"
	appconfig "github.com/promptlab/promptlab/internal/config"
	"github.com/promptlab/promptlab/internal/evaluator"
	"github.com/promptlab/promptlab/internal/history"
	"github.com/promptlab/promptlab/internal/llm"
	"github.com/promptlab/promptlab/internal/observability/metrics"
	"github.com/promptlab/promptlab/internal/splittest"
	"github.com/promptlab/promptlab/internal/timeline"
	"github.com/promptlab/promptlab/pkg/logging"
)

func main() {
	// Optional .env for local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting promptlab API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"history_backend", cfg.HistoryBackend,
	)

	ctx := context.Background()

	engineMetrics := metrics.NewEngineMetrics(nil)

	repo := buildCatalogRepository(ctx, cfg, logger)
	store := history.NewInstrumentedStore(buildHistoryStore(ctx, cfg, logger), engineMetrics)
	registry := buildProviderRegistry(ctx, cfg, logger)

	extractor := splittest.NewMemoryExtractor(registry, cfg.MemoryModel, float32(cfg.MemoryTemperature), logger)
	analyzer := splittest.NewAnalyzer(registry, cfg.AnalysisModel, 0.3, logger)
	engine := splittest.NewEngine(splittest.EngineConfig{
		Repository:         repo,
		Registry:           registry,
		Extractor:          extractor,
		Analyzer:           analyzer,
		Metrics:            engineMetrics,
		Logger:             logger,
		ContextWindowTurns: cfg.ContextWindowTurns,
	})

	chatService := chat.NewService(repo, registry, store, logger)
	eval := evaluator.New(repo, registry, cfg.EvaluatorModel, "", float32(cfg.DefaultTemperature), engineMetrics, logger)
	timelineService := timeline.NewService(store, logger, otel.Tracer("promptlab.internal.timeline"))

	routerCfg := &router.Config{
		Logger:              logger,
		CatalogHandler:      catalog.NewHandler(repo, logger),
		ChatHandler:         chat.NewHandler(chatService, logger),
		SplitTestHandler:    splittest.NewHandler(engine, splittest.NewSessionRegistry(), repo, store, logger),
		EvaluatorHandler:    evaluator.NewHandler(eval, store, logger),
		TimelineHandler:     timeline.NewHandler(timelineService, logger),
		HistoryHandler:      history.NewHandler(store, logger),
		MetricsHandler:      promhttp.Handler(),
		AdminAuthSecret:     cfg.AdminJWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		CompletionRateLimit: 5,
		CompletionBurst:     10,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ProviderTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildCatalogRepository picks Postgres when DATABASE_URL is set, otherwise
// the in-memory repository for local experimentation.
func buildCatalogRepository(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) catalog.Repository {
	if cfg.DatabaseURL == "" {
		logger.Info("using in-memory catalog repository")
		return catalog.NewInMemoryRepository()
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		os.Exit(1)
	}
	logger.Info("using postgres catalog repository")
	return catalog.NewPostgresRepository(pool)
}

func buildHistoryStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) history.Store {
	switch cfg.HistoryBackend {
	case "redis":
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("failed to ping redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		logger.Info("using redis history store", "addr", cfg.RedisAddr)
		return history.NewRedisStore(client, otel.Tracer("promptlab.internal.history"), logger)
	case "dynamodb":
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		logger.Info("using dynamodb history store", "table", cfg.HistoryTable)
		return history.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.HistoryTable, logger)
	default:
		logger.Info("using in-memory history store")
		return history.NewMemoryStore()
	}
}

// buildProviderRegistry registers a client for every provider whose
// credentials are present. Models of unregistered providers fail at call
// time with a clear error instead of at startup.
func buildProviderRegistry(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *llm.Registry {
	registry := llm.NewRegistry()

	if cfg.OpenAIAPIKey != "" {
		client, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			logger.Error("failed to build openai client", "error", err)
			os.Exit(1)
		}
		registry.Register(llm.ProviderOpenAI, client)
		logger.Info("registered provider", "provider", llm.ProviderOpenAI)
	}
	if cfg.DeepseekAPIKey != "" {
		client, err := llm.NewDeepseekClient(cfg.DeepseekAPIKey)
		if err != nil {
			logger.Error("failed to build deepseek client", "error", err)
			os.Exit(1)
		}
		registry.Register(llm.ProviderDeepseek, client)
		logger.Info("registered provider", "provider", llm.ProviderDeepseek)
	}
	if cfg.GeminiAPIKey != "" {
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			logger.Error("failed to build gemini client", "error", err)
			os.Exit(1)
		}
		registry.Register(llm.ProviderGemini, client)
		logger.Info("registered provider", "provider", llm.ProviderGemini)
	}
	if cfg.AWSAccessKeyID != "" || cfg.AWSEndpointOverride != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config for bedrock", "error", err)
			os.Exit(1)
		}
		registry.Register(llm.ProviderClaude, llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID))
		logger.Info("registered provider", "provider", llm.ProviderClaude)
	}

	if len(registry.Providers()) == 0 {
		logger.Warn("no completion providers configured; set OPENAI_API_KEY or equivalent")
	}
	return registry
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/SaiNageswarS/go-api-boot/config"
	"github.com/SaiNageswarS/go-api-boot/dotenv"
	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/go-api-boot/server"
	"github.com/SaiNageswarS/support-agent/appconfig"
	"github.com/SaiNageswarS/support-agent/llm"
	"github.com/SaiNageswarS/support-agent/mailer"
	"github.com/SaiNageswarS/support-agent/memory"
	"github.com/SaiNageswarS/support-agent/metrics"
	"github.com/SaiNageswarS/support-agent/search"
	"github.com/SaiNageswarS/support-agent/services"
	"github.com/SaiNageswarS/support-agent/tickets"
	"github.com/SaiNageswarS/support-agent/workers"
	"github.com/SaiNageswarS/support-agent/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	dotenv.LoadEnv()

	cfg := &appconfig.AppConfig{}
	if err := config.LoadConfig("config.ini", cfg); err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	cfg.ApplyDefaults()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	llmClient, err := newLLMClient(cfg)
	if err != nil {
		logger.Fatal("Failed to create LLM client", zap.Error(err))
	}
	embedder, err := newEmbedder(cfg)
	if err != nil {
		logger.Fatal("Failed to create embedder", zap.Error(err))
	}
	searchClient, err := search.NewClient(cfg.SearchServiceURL, cfg.SearchIndex, cfg.SearchAPIKey, cfg.SearchAPIVersion, embedder)
	if err != nil {
		logger.Fatal("Failed to create search client", zap.Error(err))
	}
	smtpMailer, err := mailer.NewSMTPMailer(mailer.SMTPConfig{
		Host:     cfg.SMTPServer,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	})
	if err != nil {
		logger.Fatal("Failed to create mailer", zap.Error(err))
	}

	store, closeStore, err := newSessionStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to create session store", zap.Error(err))
	}
	defer closeStore()
	sessions := memory.NewConversationManager(store, cfg.MaxSessionMessages)

	ticketStore, err := tickets.NewStore(cfg.TicketsDir)
	if err != nil {
		logger.Fatal("Failed to open tickets directory", zap.String("dir", cfg.TicketsDir), zap.Error(err))
	}
	catalog := tickets.NewCatalog(ticketStore)
	if err := catalog.Refresh(); err != nil {
		logger.Fatal("Failed to load tickets", zap.Error(err))
	}
	watcher, err := tickets.NewWatcher(catalog, 0)
	if err != nil {
		logger.Fatal("Failed to watch tickets directory", zap.Error(err))
	}
	go watcher.Run(ctx)

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	escalator := workflow.NewEscalator(llmClient, ticketStore, catalog, smtpMailer, cfg.EscalationEmail, cfg.OversightEmail)
	engine, err := workflow.NewEngineBuilder().
		WithLLM(llmClient).
		WithSessions(sessions).
		WithTickets(ticketStore, catalog).
		WithSearcher(searchClient).
		WithEscalator(escalator).
		WithRecorder(collector).
		WithSimilarity(cfg.SimilarTopK, cfg.MinRelevance).
		Build()
	if err != nil {
		logger.Fatal("Failed to build workflow engine", zap.Error(err))
	}

	if cfg.SessionIdleMinutes > 0 {
		sweeper, err := workers.NewSessionSweeper(sessions, cfg.SessionSweepCron, cfg.SessionIdle(),
			func(n int) { collector.SessionsSwept.Add(float64(n)) })
		if err != nil {
			logger.Fatal("Failed to schedule session sweeper", zap.Error(err))
		}
		go func() { _ = sweeper.Start(ctx) }()
	}

	indexer := workers.NewTicketIndexer(embedder, searchClient, cfg.DataDir,
		func(outcome string) { collector.TicketsIndexed.WithLabelValues(outcome).Inc() })

	api, err := services.NewServerBuilder().
		WithEngine(engine, sessions).
		WithTickets(ticketStore, catalog).
		WithSearchIndex(searchClient).
		WithImporter(indexer).
		WithMetrics(collector).
		WithRequestTimeout(cfg.RequestTimeout()).
		WithRateLimit(cfg.RequestsPerMinute).
		Build()
	if err != nil {
		logger.Fatal("Failed to build HTTP routes", zap.Error(err))
	}
	defer api.Stop()

	boot, err := api.Mount(server.New().
		GRPCPort(cfg.GRPCPort).
		HTTPPort(cfg.HTTPPort)).
		Build()
	if err != nil {
		logger.Fatal("Failed to build server", zap.Error(err))
	}

	logger.Info("Support agent starting",
		zap.String("addr", cfg.HTTPPort),
		zap.String("llm_provider", cfg.LLMProvider),
		zap.String("model", llmClient.GetModel()),
		zap.String("session_backend", cfg.SessionBackend),
		zap.Int("tickets", catalog.Len()))

	if err := boot.Serve(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("Support agent stopped")
}

func newLLMClient(cfg *appconfig.AppConfig) (llm.LLMClient, error) {
	switch cfg.LLMProvider {
	case "azure":
		client, err := llm.NewAzureOpenAIClient(cfg.AzureOpenAIEndpoint, cfg.AzureOpenAIDeployment, cfg.AzureOpenAIAPIVersion, cfg.AzureOpenAIKey)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "openai":
		client, err := llm.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMAPIKey)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "anthropic":
		client, err := llm.NewAnthropicClient(cfg.LLMModel, cfg.LLMAPIKey)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

func newEmbedder(cfg *appconfig.AppConfig) (llm.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "azure":
		deployment := cfg.EmbeddingDeployment
		if deployment == "" {
			deployment = cfg.EmbeddingModel
		}
		embedder, err := llm.NewAzureOpenAIEmbedder(cfg.AzureOpenAIEndpoint, deployment, cfg.AzureOpenAIAPIVersion, cfg.AzureOpenAIKey)
		if err != nil {
			return nil, err
		}
		return embedder, nil
	case "ollama":
		embedder, err := llm.NewOllamaEmbedder(cfg.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		return embedder, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

// newSessionStore picks the backend. Redis keys expire after the idle window when
// one is configured, so sessions survive restarts but not abandonment.
func newSessionStore(ctx context.Context, cfg *appconfig.AppConfig) (memory.Store, func(), error) {
	switch cfg.SessionBackend {
	case "memory":
		return memory.NewInMemoryStore(), func() {}, nil
	case "redis":
		store, err := memory.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.SessionIdle())
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}

package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"datanav/internal/config"
	"datanav/internal/core/domain"
	"datanav/internal/core/ports"
	"datanav/internal/core/usecase"
	"datanav/internal/infrastructure/cache/redis"
	"datanav/internal/infrastructure/graph/neo4j"
	keywordpg "datanav/internal/infrastructure/keyword/postgres"
	"datanav/internal/infrastructure/llm/ollama"
	"datanav/internal/infrastructure/llm/openaicompat"
	"datanav/internal/infrastructure/queue/nats"
	"datanav/internal/infrastructure/repository/postgres"
	"datanav/internal/infrastructure/resilience"
	"datanav/internal/infrastructure/tokencount"
	"datanav/internal/infrastructure/vector/qdrant"
)

// App wires the configured infrastructure into the inbound services. Each
// binary builds one App and serves the pieces it needs.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Answers     ports.AnswerService
	Simulations ports.SimulationService
	Stats       ports.StatsService
	Feedback    ports.FeedbackService

	Events    ports.EventConsumer
	AnswerLog ports.AnswerLogStore

	closers []func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	adapterTimeout := time.Duration(cfg.AdapterTimeoutSecs) * time.Second

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.closers = append(app.closers, func() { _ = db.Close() })

	answerLog := postgres.NewAnswerLogRepository(db)
	if err := answerLog.EnsureSchema(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("ensure answer log schema: %w", err)
	}

	storeExec := resilience.NewExecutor(resilience.StoreProfile(), logger)
	publishExec := resilience.NewExecutor(resilience.PublishProfile(), logger)

	vectorStore := qdrant.NewWithOptions(cfg.QdrantURL, cfg.QdrantCollection, qdrant.Options{
		HTTPTimeout:        adapterTimeout,
		ResilienceExecutor: storeExec,
	})
	keywordStore := keywordpg.NewStore(db)
	if err := keywordStore.EnsureSchema(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("ensure keyword schema: %w", err)
	}

	graphStore, err := neo4j.New(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init graph store: %w", err)
	}
	app.closers = append(app.closers, func() { _ = graphStore.Close(context.Background()) })
	// Stores are allowed to be down at startup; retrieval excludes them
	// per query until they recover.
	if err := graphStore.VerifyConnectivity(ctx); err != nil {
		logger.Warn("graph store unreachable", "error", err)
	}

	cache := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	app.closers = append(app.closers, func() { _ = cache.Close() })
	if err := cache.Ping(ctx); err != nil {
		logger.Warn("answer cache unreachable", "error", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Logger:             logger,
		ResilienceExecutor: publishExec,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init event queue: %w", err)
	}
	app.closers = append(app.closers, queue.Close)

	embedder := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaEmbedModel, ollama.Options{
		HTTPTimeout:        adapterTimeout,
		ResilienceExecutor: storeExec,
	})
	counter := tokencount.New(cfg.TokenEncoding, logger)

	weights, err := modeWeights(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	chain, providers, err := providerChain(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}

	retriever := usecase.NewRetriever(embedder, vectorStore, keywordStore, graphStore, usecase.RetrieverConfig{
		TopKPerStore:   cfg.RetrievalTopK,
		AdapterTimeout: adapterTimeout,
		TotalTimeout:   time.Duration(cfg.RetrievalTimeoutSecs) * time.Second,
		MaxGraphHops:   cfg.MaxGraphHops,
		Weights:        weights,
	}, logger)
	orchestrator := usecase.NewOrchestrator(chain, providers, logger)

	app.Answers = usecase.NewCoordinator(retriever, orchestrator, counter, cache, queue, usecase.CoordinatorConfig{
		TokenBudget:   cfg.TokenBudget,
		CacheTTL:      time.Duration(cfg.AnswerCacheTTLMinutes) * time.Minute,
		BindThreshold: cfg.CitationThreshold,
	}, logger)
	app.Simulations = usecase.NewSimulator(retriever, orchestrator, counter, usecase.SimulatorConfig{
		TokenBudget:   cfg.TokenBudget,
		BindThreshold: cfg.CitationThreshold,
		HorizonCap:    cfg.SimulateHorizonCapMths,
	}, logger)
	app.Stats = usecase.NewStatsCollector(vectorStore, keywordStore, graphStore, adapterTimeout, logger)
	app.Feedback = usecase.NewFeedbackRecorder(cache, 0)
	app.Events = queue
	app.AnswerLog = answerLog

	return app, nil
}

// Close releases infrastructure handles in reverse construction order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func modeWeights(cfg config.Config) (usecase.ModeWeights, error) {
	raw, err := cfg.ModeWeights()
	if err != nil {
		return nil, fmt.Errorf("load mode weights: %w", err)
	}
	weights := make(usecase.ModeWeights, len(raw))
	for name, w := range raw {
		mode, ok := domain.ParseMode(name)
		if !ok {
			return nil, fmt.Errorf("load mode weights: unknown mode %q", name)
		}
		weights[mode] = usecase.StoreWeights{Vector: w.Vector, Keyword: w.Keyword, Graph: w.Graph}
	}
	return weights, nil
}

func providerChain(cfg config.Config) ([]domain.ProviderConfig, map[string]ports.ModelProvider, error) {
	entries, err := cfg.ProviderChain()
	if err != nil {
		return nil, nil, fmt.Errorf("load provider chain: %w", err)
	}

	chain := make([]domain.ProviderConfig, 0, len(entries))
	providers := make(map[string]ports.ModelProvider, len(entries))
	for _, entry := range entries {
		chain = append(chain, domain.ProviderConfig{
			Name:       entry.Name,
			ModelID:    entry.ModelID,
			Priority:   entry.Priority,
			Timeout:    time.Duration(entry.TimeoutSeconds) * time.Second,
			MaxRetries: entry.MaxRetries,
		})
		if _, ok := providers[entry.Name]; !ok {
			providers[entry.Name] = buildProvider(cfg, entry.Name)
		}
	}
	return chain, providers, nil
}

// buildProvider maps a chain entry to a concrete client: "ollama" is the
// local daemon, every other name goes through the OpenAI-compatible
// gateway. Generation clients carry no resilience executor; the
// orchestrator already owns per-provider retries and fallback.
func buildProvider(cfg config.Config, name string) ports.ModelProvider {
	if name == "ollama" {
		return ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaEmbedModel, ollama.Options{Name: name})
	}
	return openaicompat.New(openaicompat.Config{
		Name:    name,
		BaseURL: cfg.OpenAIBaseURL,
		APIKey:  cfg.OpenAIAPIKey,
	})
}

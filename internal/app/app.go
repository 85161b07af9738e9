package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigia/internal/common"
	"github.com/ternarybob/vigia/internal/handlers"
	"github.com/ternarybob/vigia/internal/interfaces"
	"github.com/ternarybob/vigia/internal/queue"
	"github.com/ternarybob/vigia/internal/services/assessment"
	"github.com/ternarybob/vigia/internal/services/cache"
	"github.com/ternarybob/vigia/internal/services/classifier"
	"github.com/ternarybob/vigia/internal/services/embeddings"
	"github.com/ternarybob/vigia/internal/services/llm"
	"github.com/ternarybob/vigia/internal/services/pipeline"
	"github.com/ternarybob/vigia/internal/services/rag"
	"github.com/ternarybob/vigia/internal/services/vector"
	"github.com/ternarybob/vigia/internal/sources"
	badgerstore "github.com/ternarybob/vigia/internal/storage/badger"
	"github.com/ternarybob/vigia/internal/storage/warehouse"
)

// App holds all application components and dependencies.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	BadgerDB    *badgerstore.BadgerDB
	Warehouse   *warehouse.Client
	RedisClient *redis.Client

	// Core services
	Queue        *queue.WriteQueue
	CacheService *cache.Service
	LLMService   interfaces.LLMService
	Embedder     interfaces.EmbeddingService
	Classifier   *classifier.Hybrid
	Orchestrator *sources.Orchestrator
	VectorStore  *vector.Store
	RAGService   *rag.Service
	Scorer       *assessment.Scorer
	Pipeline     *pipeline.Service
	Retention    *pipeline.RetentionService

	// HTTP handlers
	SearchHandler   *handlers.SearchHandler
	SemanticHandler *handlers.SemanticSearchHandler
	AskHandler      *handlers.AskHandler
	AssessHandler   *handlers.AssessHandler
	StatusHandler   *handlers.StatusHandler
	VectorHandler   *handlers.VectorHandler
	QueueHandler    *handlers.QueueHandler
}

// New initializes the application with all dependencies.
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := app.initServices(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.initHandlers()

	if err := app.Retention.Start(); err != nil {
		return nil, fmt.Errorf("failed to start retention scheduler: %w", err)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("llm_provider", string(cfg.LLM.DefaultProvider)).
		Int("rss_feeds", len(cfg.Sources.RSSFeeds)).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage brings up the warehouse, the local Badger index and Redis.
func (a *App) initStorage(ctx context.Context) error {
	warehouseClient, err := warehouse.NewClient(ctx, &a.Config.Warehouse, a.Logger)
	if err != nil {
		return fmt.Errorf("warehouse connection failed: %w", err)
	}
	if err := warehouseClient.EnsureSchema(ctx); err != nil {
		warehouseClient.Close()
		return fmt.Errorf("warehouse schema setup failed: %w", err)
	}
	a.Warehouse = warehouseClient

	badgerDB, err := badgerstore.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		warehouseClient.Close()
		return fmt.Errorf("badger open failed: %w", err)
	}
	a.BadgerDB = badgerDB

	a.RedisClient = cache.NewRedisClient(&a.Config.Cache)
	if a.RedisClient == nil {
		a.Logger.Warn().Msg("Redis not configured, L2 cache tier disabled")
	}

	return nil
}

// initServices wires the business services in dependency order.
func (a *App) initServices(ctx context.Context) error {
	cfg := a.Config

	a.Queue = queue.NewWriteQueue(a.Warehouse, &cfg.Queue, a.Logger)
	a.CacheService = cache.NewService(&cfg.Cache, a.RedisClient, a.Warehouse, a.Logger)

	llmService, err := llm.NewLLMService(cfg, a.Logger)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("LLM provider unavailable, classification runs gate-only")
	} else {
		a.LLMService = llmService
	}

	a.Embedder = a.buildEmbedder()
	if a.Embedder == nil {
		a.Logger.Warn().Msg("No embedding provider configured, vector features disabled")
	}

	a.Classifier = classifier.NewHybrid(
		classifier.NewKeywordGate(),
		a.buildLLMClassifier(),
		a.Logger,
		classifier.WithConfidenceEnhancement(),
	)

	a.Orchestrator = sources.NewOrchestrator(
		a.buildAdapters(),
		common.ParseDurationOr(cfg.Pipeline.SourceBudget, 0),
		a.Logger,
	)

	a.VectorStore = a.buildVectorStore()

	if a.Embedder != nil && a.LLMService != nil {
		a.RAGService = rag.NewService(a.Embedder, a.VectorStore, a.LLMService, a.Logger)
	}

	a.Scorer = assessment.NewScorer(a.Logger)

	var pipelineEmbedder interfaces.EmbeddingService
	var pipelineVectors interfaces.VectorStore
	if cfg.Pipeline.EnableEmbedding && a.Embedder != nil {
		pipelineEmbedder = a.Embedder
		pipelineVectors = a.VectorStore
	}
	a.Pipeline = pipeline.NewService(
		a.Orchestrator,
		a.Classifier,
		a.CacheService,
		a.Queue,
		pipelineEmbedder,
		pipelineVectors,
		&cfg.Pipeline,
		cfg.Sources.DefaultDays,
		a.Logger,
	)

	a.Retention = pipeline.NewRetentionService(a.Warehouse, cfg.Retention, a.Logger)

	return nil
}

// buildEmbedder picks the embedding provider: the dedicated remote service
// when configured, otherwise Gemini when credentials exist.
func (a *App) buildEmbedder() interfaces.EmbeddingService {
	cfg := a.Config

	if cfg.Embedding.ServiceURL != "" {
		embedder, err := embeddings.NewService(&cfg.Embedding, a.Logger)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Remote embedding service setup failed")
			return nil
		}
		return embedder
	}

	if gemini, ok := a.LLMService.(*llm.GeminiService); ok {
		return gemini
	}
	if cfg.Gemini.APIKey != "" {
		gemini, err := llm.NewGeminiService(&cfg.Gemini, &cfg.Embedding, a.Logger)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Gemini embedding setup failed")
			return nil
		}
		return gemini
	}
	return nil
}

// buildLLMClassifier picks the fallback classifier: the remote classify
// service for the remote provider, a prompt classifier over the hosted
// model otherwise.
func (a *App) buildLLMClassifier() interfaces.LLMClassifier {
	cfg := a.Config

	if cfg.LLM.DefaultProvider == common.LLMProviderRemote && cfg.LLM.ClassifyURL != "" {
		return classifier.NewServiceClassifier(cfg.LLM.ClassifyURL, a.Logger)
	}
	if a.LLMService != nil {
		return classifier.NewPromptClassifier(a.LLMService, a.Logger)
	}
	return nil
}

// buildAdapters creates one source adapter per configured source.
func (a *App) buildAdapters() []interfaces.SourceAdapter {
	cfg := a.Config
	rateLimit := cfg.Sources.RateLimit

	adapters := []interfaces.SourceAdapter{
		sources.NewBOEAdapter(cfg.Sources.BOEBaseURL, a.Logger, sources.WithBOERateLimit(rateLimit)),
	}

	if cfg.Sources.NewsAPIKey != "" {
		adapters = append(adapters, sources.NewNewsAPIAdapter(
			cfg.Sources.NewsAPIBaseURL, cfg.Sources.NewsAPIKey, a.Logger,
			sources.WithNewsAPIRateLimit(rateLimit),
		))
	} else {
		a.Logger.Warn().Msg("NewsAPI key not configured, news source disabled")
	}

	for outlet, feedURL := range cfg.Sources.RSSFeeds {
		adapters = append(adapters, sources.NewRSSAdapter(outlet, feedURL, a.Logger))
	}

	yahooOpts := []sources.YahooOption{sources.WithYahooRateLimit(rateLimit)}
	if a.LLMService != nil {
		yahooOpts = append(yahooOpts, sources.WithYahooLLMResolver(a.LLMService))
	}
	adapters = append(adapters, sources.NewYahooAdapter(cfg.Sources.YahooBaseURL, a.Logger, yahooOpts...))

	return adapters
}

// buildVectorStore assembles the hybrid vector store from the enabled
// backends. The warehouse backend is always present.
func (a *App) buildVectorStore() *vector.Store {
	cfg := a.Config

	var local *vector.LocalBackend
	if cfg.Vector.LocalEnabled {
		local = vector.NewLocalBackend(badgerstore.NewVectorStorage(a.BadgerDB, a.Logger), a.Logger)
	}

	var remote interfaces.VectorBackend
	if cfg.Vector.RemoteURL != "" {
		remote = vector.NewRemoteBackend(
			cfg.Vector.RemoteURL,
			common.ParseDurationOr(cfg.Vector.RemoteTimeout, 0),
			a.Logger,
		)
	}

	warehouseBackend := vector.NewWarehouseBackend(a.Warehouse, a.Queue, a.Logger)
	return vector.NewStore(warehouseBackend, local, remote, a.Logger)
}

// initHandlers creates the HTTP handlers over the wired services.
func (a *App) initHandlers() {
	a.SearchHandler = handlers.NewSearchHandler(a.Pipeline, a.Logger)
	a.SemanticHandler = handlers.NewSemanticSearchHandler(a.Embedder, a.VectorStore, a.Logger)
	a.AskHandler = handlers.NewAskHandler(a.RAGService, a.Logger)
	a.AssessHandler = handlers.NewAssessHandler(a.Pipeline, a.Scorer, a.Queue, a.Config.Sources.DefaultDays, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.LLMService, a.Embedder, a.Classifier, a.Warehouse, a.Queue, a.Logger)
	a.VectorHandler = handlers.NewVectorHandler(a.VectorStore, a.Logger)
	a.QueueHandler = handlers.NewQueueHandler(a.Queue, a.Logger)
}

// Close shuts the application down in reverse dependency order. The write
// queue drains before the warehouse connection goes away.
func (a *App) Close() error {
	a.Retention.Stop()
	a.Queue.Stop()

	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("LLM service close failed")
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Redis close failed")
		}
	}
	if err := a.BadgerDB.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Badger close failed")
	}
	a.Warehouse.Close()

	a.Logger.Info().Msg("Application shut down")
	return nil
}

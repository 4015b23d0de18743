package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/source-aware-retrieval/internal/config"
	"github.com/kirillkom/source-aware-retrieval/internal/core/catfilter"
	"github.com/kirillkom/source-aware-retrieval/internal/core/domain"
	"github.com/kirillkom/source-aware-retrieval/internal/core/enrichment"
	"github.com/kirillkom/source-aware-retrieval/internal/core/fallback"
	"github.com/kirillkom/source-aware-retrieval/internal/core/ports"
	"github.com/kirillkom/source-aware-retrieval/internal/core/relevance"
	"github.com/kirillkom/source-aware-retrieval/internal/core/usecase"
	"github.com/kirillkom/source-aware-retrieval/internal/infrastructure/cache/redis"
	"github.com/kirillkom/source-aware-retrieval/internal/infrastructure/chunking"
	"github.com/kirillkom/source-aware-retrieval/internal/infrastructure/graph/neo4j"
	"github.com/kirillkom/source-aware-retrieval/internal/infrastructure/knowledge"
	"github.com/kirillkom/source-aware-retrieval/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/source-aware-retrieval/internal/infrastructure/queue/nats"
	"github.com/kirillkom/source-aware-retrieval/internal/infrastructure/ratelimit"
	"github.com/kirillkom/source-aware-retrieval/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/source-aware-retrieval/internal/infrastructure/resilience"
	"github.com/kirillkom/source-aware-retrieval/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/source-aware-retrieval/internal/observability/metrics"
)

type App struct {
	Config    config.Config
	Retrieval config.Retrieval
	Logger    *slog.Logger

	Metrics *metrics.RetrievalMetrics
	Bus     *nats.Bus

	IngestUC     *usecase.IngestUseCase
	QueryUC      *usecase.QueryUseCase
	EscalationUC *usecase.EscalationUseCase

	closeFn []func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (app *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	retrieval, err := config.LoadRetrieval(cfg.RetrievalConfigPath)
	if err != nil {
		return nil, err
	}

	app = &App{Config: cfg, Retrieval: retrieval, Logger: logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.onClose(func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	escalations := postgres.NewEscalationRepository(db)
	chunkStore := postgres.NewChunkRepository(db)

	executor := resilience.NewExecutor(retrieval.Resilience, resilience.WithLogger(logger))

	bus, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init escalation bus: %w", err)
	}
	app.onClose(bus.Close)
	app.Bus = bus

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.WithExecutor(executor))
	embedder := ollama.NewEmbedder(ollamaClient)
	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection,
		qdrant.WithExecutor(executor),
		qdrant.WithLogger(logger),
	)
	searcher := usecase.NewIndexSearcher(embedder, vectorDB)

	var tree *neo4j.CategoryTree
	if cfg.CategoryGraphEnabled {
		driver, err := neo4j.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("init category graph: %w", err)
		}
		app.onClose(func() { _ = driver.Close(context.Background()) })
		tree = neo4j.New(driver, cfg.Neo4jDatabase,
			neo4j.WithDelimiter(retrieval.Fallback.HierarchyDelimiter),
			neo4j.WithLogger(logger),
		)
		tree.EnsureSchema(ctx)
	}

	knowledgeSource, err := app.knowledgeSource(ctx, cfg, retrieval, ollama.NewKnowledgeGenerator(ollamaClient))
	if err != nil {
		return nil, err
	}

	app.Metrics = metrics.NewRetrievalMetrics("retrieval")

	engineOpts := []fallback.Option{
		fallback.WithSearcher(ratelimit.NewSearcher(searcher, cfg.SearchRatePerSecond, cfg.SearchBurst)),
		fallback.WithKnowledgeSource(knowledgeSource),
		fallback.WithLogger(logger),
		fallback.WithObserver(app.Metrics.ObserveStrategyAttempt),
	}
	if tree != nil {
		engineOpts = append(engineOpts, fallback.WithCategoryTree(tree))
	}
	engine := fallback.New(retrieval.Fallback, engineOpts...)

	app.QueryUC = usecase.NewQueryUseCase(
		searcher,
		catfilter.New(catfilter.WithLogger(logger)),
		relevance.New(retrieval.Relevance),
		engine,
		queryConfig(retrieval.Query),
		usecase.WithEscalationBus(bus),
		usecase.WithQueryObserver(app.Metrics),
		usecase.WithQueryLogger(logger),
	)

	ingestOpts := []usecase.IngestOption{
		usecase.WithChunkMetadataStore(chunkStore),
		usecase.WithChunker(chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)),
		usecase.WithIngestObserver(app.Metrics),
		usecase.WithIngestLogger(logger),
	}
	if cfg.EnrichPoolSize > 0 {
		ingestOpts = append(ingestOpts, usecase.WithEnrichPoolSize(cfg.EnrichPoolSize))
	}
	if tree != nil {
		ingestOpts = append(ingestOpts, usecase.WithCategoryRegistry(tree))
	}
	ingestUC, err := usecase.NewIngestUseCase(enrichment.New(enrichment.WithLogger(logger)), embedder, vectorDB, ingestOpts...)
	if err != nil {
		return nil, fmt.Errorf("init ingest: %w", err)
	}
	app.onClose(ingestUC.Release)
	app.IngestUC = ingestUC

	app.EscalationUC = usecase.NewEscalationUseCase(escalations, logger)
	return app, nil
}

// knowledgeSource chains static answers before generated ones; generated answers go through
// the redis cache when it is enabled.
func (a *App) knowledgeSource(
	ctx context.Context,
	cfg config.Config,
	retrieval config.Retrieval,
	generator ports.KnowledgeSource,
) (ports.KnowledgeSource, error) {
	if cfg.KnowledgeCacheEnabled {
		client, err := redis.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("init knowledge cache: %w", err)
		}
		a.onClose(func() { _ = client.Close() })
		generator = redis.NewKnowledgeCache(client, generator,
			redis.WithTTL(cfg.KnowledgeCacheTTL),
			redis.WithLogger(a.Logger),
		)
	}
	return knowledge.NewChain(a.Logger, knowledge.NewStatic(retrieval.GeneralKnowledge), generator), nil
}

func queryConfig(q config.Query) usecase.QueryConfig {
	return usecase.QueryConfig{
		DefaultLimit:     q.DefaultLimit,
		Mode:             domain.RetrievalMode(q.Mode),
		RRFK:             q.RRFK,
		Aggregation:      usecase.ConfidenceAggregation(q.Aggregation),
		CategoryTriggers: q.CategoryTriggers,
	}
}

func (a *App) onClose(fn func()) {
	a.closeFn = append(a.closeFn, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closeFn) - 1; i >= 0; i-- {
		a.closeFn[i]()
	}
	a.closeFn = nil
}

package builder

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/secassist/ai-backend/internal/api"
	documentapi "github.com/secassist/ai-backend/internal/api/document"
	exportapi "github.com/secassist/ai-backend/internal/api/export"
	sessionapi "github.com/secassist/ai-backend/internal/api/session"
	"github.com/secassist/ai-backend/internal/config"
	"github.com/secassist/ai-backend/internal/integration/llm"
	"github.com/secassist/ai-backend/internal/integration/retriever"
	"github.com/secassist/ai-backend/internal/pkg/validator"
	"github.com/secassist/ai-backend/internal/repository"
	"github.com/secassist/ai-backend/internal/usecase/ingest"
	"github.com/secassist/ai-backend/internal/usecase/pipeline"
	"go.uber.org/zap"
)

func Build() (*App, error) {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := setupLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	logger.Info("Building application",
		zap.String("environment", cfg.Environment),
		zap.String("server_addr", cfg.ServerAddr),
	)

	// Setup database connection
	db, err := setupDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup database: %w", err)
	}

	// Run database migrations
	logger.Info("Running database migrations")
	if err := repository.RunMigrations(cfg.DatabaseURL); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	// Initialize repositories
	sessionRepo := repository.NewSessionPostgres(db)
	historyRepo := repository.NewHistoryPostgres(db)
	evaluationRepo := repository.NewEvaluationPostgres(db)
	logger.Info("Repositories initialized")

	// Initialize backend factories (with mock support)
	generators, retrievers := setupFactories(cfg, logger)

	// Initialize the orchestrator and hydrate session state
	history := pipeline.NewHistoryCache(historyRepo)
	tracker := pipeline.NewEvaluationTracker(evaluationRepo)
	orchestrator := pipeline.NewPipeline(sessionRepo, generators, retrievers, history, tracker)

	if err := orchestrator.Hydrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("hydrate session histories: %w", err)
	}
	logger.Info("Session histories hydrated")

	// Setup API handlers
	requestValidator := validator.New(cfg)
	sessionHandler := sessionapi.NewHandler(orchestrator, requestValidator)
	documentHandler := documentapi.NewHandler(cfg.DocumentsDir, cfg.DocumentCacheTTL)
	exportHandler := exportapi.NewHandler(orchestrator)
	logger.Info("API handlers initialized")

	// Setup router
	router := api.SetupRouter(sessionHandler, documentHandler, exportHandler, logger)
	logger.Info("HTTP router configured")

	// Create HTTP server. Write timeout leaves room for slow model
	// generations.
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("Application built successfully",
		zap.String("environment", cfg.Environment),
	)

	return &App{
		server:        server,
		db:            db,
		logger:        logger,
		orchestrator:  orchestrator,
		flushInterval: cfg.HistoryFlushInterval,
	}, nil
}

// Vectorizer bundles everything the offline ingestion command needs.
type Vectorizer struct {
	Config      *config.Config
	Logger      *zap.Logger
	Retrievers  retriever.Factory
	Coordinator *ingest.Coordinator
}

// BuildVectorizer wires the ingestion pipeline without the HTTP surface or
// the database.
func BuildVectorizer() (*Vectorizer, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := setupLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	_, retrievers := setupFactories(cfg, logger)
	coordinator := ingest.NewCoordinator(cfg.IngestWorkers, cfg.ChunkSize, cfg.ChunkOverlap, logger)

	return &Vectorizer{
		Config:      cfg,
		Logger:      logger,
		Retrievers:  retrievers,
		Coordinator: coordinator,
	}, nil
}

func setupFactories(cfg *config.Config, logger *zap.Logger) (llm.Factory, retriever.Factory) {
	if cfg.EnableMocks {
		logger.Info("Using mock backends for external services")

		retrieverNames := make([]string, 0, len(cfg.Retrievers))
		for _, rc := range cfg.Retrievers {
			retrieverNames = append(retrieverNames, rc.Name)
		}

		return llm.NewMockFactory(cfg.ValidLLMs, logger), retriever.NewMockFactory(retrieverNames, logger)
	}

	logger.Info("Using real backends for external services",
		zap.String("ollama_url", cfg.OllamaURL),
		zap.String("chroma_url", cfg.ChromaURL),
	)
	return llm.NewFactory(cfg, logger), retriever.NewFactory(cfg, logger)
}

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/conspectus/internal/common"
	"github.com/ternarybob/conspectus/internal/handlers"
	"github.com/ternarybob/conspectus/internal/interfaces"
	"github.com/ternarybob/conspectus/internal/services/embed"
	"github.com/ternarybob/conspectus/internal/services/index"
	"github.com/ternarybob/conspectus/internal/services/llm"
	"github.com/ternarybob/conspectus/internal/services/notify"
	"github.com/ternarybob/conspectus/internal/services/query"
	"github.com/ternarybob/conspectus/internal/services/retrieval"
	"github.com/ternarybob/conspectus/internal/services/seed"
	syncsvc "github.com/ternarybob/conspectus/internal/services/sync"
	"github.com/ternarybob/conspectus/internal/storage"
	"github.com/ternarybob/conspectus/internal/storage/badgerdb"
	"github.com/ternarybob/conspectus/internal/storage/postgrest"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Portfolio storage (PostgREST system of record + local Badger store)
	DB          *postgrest.Client
	EntityStore interfaces.EntityStore
	BadgerDB    *badgerdb.BadgerDB
	Sessions    interfaces.SessionStore
	SyncRuns    interfaces.SyncRunStore

	// Retrieval pipeline
	Embedder     interfaces.EmbeddingService
	VectorStore  interfaces.VectorStore
	IndexService *index.Service
	Structured   interfaces.StructuredRetriever
	Semantic     interfaces.SemanticRetriever

	// Query orchestration
	LLMProvider  interfaces.LLMProvider
	QueryService interfaces.QueryService

	// Tracker sync (nil when no Linear API key is configured)
	SyncService   interfaces.SyncService
	syncScheduler *syncsvc.Scheduler

	// Slack briefings (nil unless enabled in config)
	Notifier        interfaces.Notifier
	notifyScheduler *notify.Scheduler

	// HTTP handlers
	APIHandler        *handlers.APIHandler
	ProgramsHandler   *handlers.ProgramsHandler
	ObjectivesHandler *handlers.ObjectivesHandler
	QueryHandler      *handlers.QueryHandler
	SessionsHandler   *handlers.SessionsHandler
	IndexHandler      *handlers.IndexHandler
	SyncHandler       *handlers.SyncHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize storage
	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	if err := app.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	// Seed the portfolio before the first index build so seeded entities
	// are searchable immediately
	if cfg.Seed.File != "" {
		loader := seed.NewLoader(app.EntityStore, app.Logger)
		if err := loader.LoadFile(context.Background(), cfg.Seed.File); err != nil {
			app.Logger.Warn().Err(err).Str("file", cfg.Seed.File).Msg("Failed to load seed file")
		}
	}

	// Bring the vector index up, waiting a bounded interval for readiness
	app.startIndex()

	// Start scheduled tracker sync
	if app.SyncService != nil && cfg.Sync.Enabled {
		app.syncScheduler = syncsvc.NewScheduler(app.SyncService, app.Logger)
		if err := app.syncScheduler.Start(cfg.Sync.Schedule); err != nil {
			app.Logger.Warn().Err(err).Msg("Failed to start sync scheduler")
		}
	}

	// Start scheduled Slack briefing
	if app.Notifier != nil {
		app.notifyScheduler = notify.NewScheduler(app.QueryService, app.Notifier, app.Logger)
		if err := app.notifyScheduler.Start(cfg.Notify.Schedule); err != nil {
			app.Logger.Warn().Err(err).Msg("Failed to start briefing scheduler")
		}
	}

	// Log initialization summary
	logger.Info().
		Str("llm_provider", app.LLMProvider.Name()).
		Str("vector_store", app.VectorStore.Name()).
		Bool("sync_enabled", app.SyncService != nil).
		Bool("notify_enabled", app.Notifier != nil).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (PostgREST + Badger)
func (a *App) initDatabase() error {
	// PostgREST client and entity store for the portfolio system of record
	a.DB = postgrest.NewClient(a.Config, a.Logger)
	a.EntityStore = postgrest.NewEntityStore(a.Config, a.DB, a.Logger)

	// Connectivity probe; non-fatal so the API can start while the
	// database is still coming up
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.DatabaseTimeout())
	defer cancel()
	if err := a.DB.Ping(ctx); err != nil {
		a.Logger.Warn().
			Err(err).
			Str("url", a.Config.Database.URL).
			Msg("Portfolio database not reachable at startup")
	} else {
		a.Logger.Debug().
			Str("url", a.Config.Database.URL).
			Msg("Portfolio database connected")
	}

	// Local Badger store for chat sessions and sync run history
	badgerDB, err := badgerdb.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	a.BadgerDB = badgerDB
	a.BadgerDB.StartGC()
	a.Sessions = badgerdb.NewSessionStore(badgerDB, a.Logger)
	a.SyncRuns = badgerdb.NewSyncRunStore(badgerDB, a.Logger)

	a.Logger.Debug().
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Local store initialized")

	return nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	var err error

	// Embedding client (Gemini) used by indexing and semantic retrieval
	a.Embedder, err = embed.NewGeminiEmbedder(&a.Config.Gemini, &a.Config.Embeddings, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	// Vector store backend (pgvector RPC or Chroma per config)
	a.VectorStore, err = storage.NewVectorStore(context.Background(), a.Config, a.DB, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	a.Logger.Debug().Str("backend", a.VectorStore.Name()).Msg("Vector store initialized")

	// Index lifecycle over the vector store
	a.IndexService = index.NewService(a.Config, a.EntityStore, a.Embedder, a.VectorStore, a.Logger)

	// Retrievers feeding the query orchestrator
	a.Structured = retrieval.NewStructuredService(a.EntityStore, a.Logger)
	a.Semantic = retrieval.NewSemanticService(a.Config, a.Embedder, a.VectorStore, a.IndexService, a.Logger)

	// Answer-generation provider (claude or gemini per config)
	a.LLMProvider, err = llm.NewProvider(a.Config, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	if err := a.LLMProvider.HealthCheck(context.Background()); err != nil {
		a.Logger.Warn().
			Err(err).
			Str("provider", a.LLMProvider.Name()).
			Msg("LLM provider health check failed - queries may fail until connectivity is restored")
	} else {
		a.Logger.Debug().
			Str("provider", a.LLMProvider.Name()).
			Msg("LLM provider initialized and health check passed")
	}

	// Query orchestrator
	a.QueryService = query.NewService(a.Config, a.LLMProvider, a.Structured, a.Semantic, a.IndexService, a.EntityStore, a.Logger)

	// Tracker sync; stays nil without a Linear API key so the handlers
	// can report the integration as not configured
	if a.Config.Sync.Linear.APIKey != "" {
		adapter := syncsvc.NewLinearClient(a.Config, a.Logger)
		a.SyncService = syncsvc.NewService(adapter, a.EntityStore, a.SyncRuns, a.Logger)
		a.Logger.Debug().Str("source", adapter.Source()).Msg("Tracker sync initialized")
	} else {
		a.Logger.Debug().Msg("Tracker sync not configured (no Linear API key)")
	}

	// Slack notifier for scheduled briefings
	if a.Config.Notify.Enabled && a.Config.Notify.WebhookURL != "" {
		a.Notifier = notify.NewSlackNotifier(a.Config, a.Logger)
		a.Logger.Debug().Msg("Slack notifier initialized")
	}

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler()
	a.ProgramsHandler = handlers.NewProgramsHandler(a.EntityStore, a.Logger)
	a.ObjectivesHandler = handlers.NewObjectivesHandler(a.EntityStore, a.Logger)
	a.QueryHandler = handlers.NewQueryHandler(a.QueryService, a.Sessions, a.Logger)
	a.SessionsHandler = handlers.NewSessionsHandler(a.Sessions, a.Logger)
	a.IndexHandler = handlers.NewIndexHandler(a.IndexService, a.Logger)
	a.SyncHandler = handlers.NewSyncHandler(a.SyncService, a.Logger)

	return nil
}

// startIndex adopts any index left behind by a previous run, then kicks the
// startup rebuild in the background. Readiness is awaited for a bounded
// interval; on timeout the service starts anyway and answers from
// structured retrieval until the build lands.
func (a *App) startIndex() {
	ctx := context.Background()
	bootstrapped := a.IndexService.Bootstrap(ctx)

	if !a.Config.Index.RebuildOnStartup {
		if !bootstrapped {
			a.Logger.Warn().Msg("Startup rebuild disabled and no existing index found, semantic retrieval unavailable until a manual rebuild")
		}
		return
	}

	common.SafeGo(a.Logger, "startup-reindex", func() {
		rebuildCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if err := a.IndexService.Reindex(rebuildCtx); err != nil {
			a.Logger.Error().Err(err).Msg("Startup index rebuild failed")
		}
	})

	waitCtx, cancel := context.WithTimeout(ctx, a.Config.IndexStartupWait())
	defer cancel()
	if !a.IndexService.WaitReady(waitCtx) {
		a.Logger.Warn().
			Dur("waited", a.Config.IndexStartupWait()).
			Msg("Vector index not ready, serving structured retrieval only")
	}
}

// Close closes all application resources
func (a *App) Close() error {
	// Stop schedulers first so no new work starts during shutdown
	if a.notifyScheduler != nil {
		a.notifyScheduler.Stop()
	}
	if a.syncScheduler != nil {
		a.syncScheduler.Stop()
	}

	// Close vector store backends that hold connections (Chroma)
	if closer, ok := a.VectorStore.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close vector store")
		}
	}

	// Close local store
	if a.BadgerDB != nil {
		if err := a.BadgerDB.Close(); err != nil {
			return fmt.Errorf("failed to close local store: %w", err)
		}
		a.Logger.Info().Msg("Local store closed")
	}

	return nil
}

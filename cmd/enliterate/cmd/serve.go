package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/enliterate-io/enliterate/internal/config"
	"github.com/enliterate-io/enliterate/internal/database"
	"github.com/enliterate-io/enliterate/internal/graph"
	"github.com/enliterate-io/enliterate/internal/graph/memgraph"
	"github.com/enliterate-io/enliterate/internal/graph/neograph"
	internalhttp "github.com/enliterate-io/enliterate/internal/http"
	"github.com/enliterate-io/enliterate/internal/http/handlers"
	"github.com/enliterate-io/enliterate/internal/pipeline"
	"github.com/enliterate-io/enliterate/internal/pipeline/core"
	"github.com/enliterate-io/enliterate/internal/repository"
	"github.com/enliterate-io/enliterate/internal/runner"
	"github.com/enliterate-io/enliterate/internal/services"
	"github.com/enliterate-io/enliterate/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the enliterate server",
	Long: `Start the enliterate HTTP server, pipeline workers, and API.

The server provides:
- REST API for managing batches and pipeline runs
- Maturity, coverage, and gap analytics per batch
- Health check endpoint
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "enliterate.db", "Database DSN")
	serveCmd.Flags().Int("workers", 2, "Pipeline worker count")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("database.dsn", serveCmd.Flags().Lookup("database"))
	mustBindPFlag("pipeline.worker_count", serveCmd.Flags().Lookup("workers"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Repositories share one GORM connection.
	batchRepo := repository.NewBatchRepository(db.DB)
	itemRepo := repository.NewItemRepository(db.DB)
	rightsRepo := repository.NewRightsRepository(db.DB)
	lexiconRepo := repository.NewLexiconRepository(db.DB)
	poolRepo := repository.NewPoolRepository(db.DB)
	relationRepo := repository.NewRelationRepository(db.DB)
	runRepo := repository.NewRunRepository(db.DB)

	store, err := openGraphStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connecting graph store: %w", err)
	}
	defer store.Close(context.Background())

	glossary, err := loadGlossary(cfg)
	if err != nil {
		return fmt.Errorf("loading verb glossary: %w", err)
	}

	deps := core.Dependencies{
		Config: cfg,
		Logger: logger,

		Batches:   batchRepo,
		Items:     itemRepo,
		Rights:    rightsRepo,
		Lexicon:   lexiconRepo,
		Pools:     poolRepo,
		Relations: relationRepo,
		Runs:      runRepo,

		Graph:    store,
		Glossary: glossary,

		RightsService:    services.NewRightsService(cfg.Services.Rights, logger),
		Extraction:       services.NewExtractionService(cfg.Services.Extraction, logger),
		EmbeddingService: services.NewEmbeddingService(cfg.Services.Embedding, cfg.Embedding, logger),
	}

	pipelineRunner := runner.New(cfg, runRepo, batchRepo, itemRepo, logger)

	workerPool := runner.NewPool(cfg, pipelineRunner, deps, pipeline.NewFactory())
	if err := workerPool.Start(ctx); err != nil {
		return fmt.Errorf("starting worker pool: %w", err)
	}
	defer workerPool.Stop()

	server := internalhttp.NewServer(cfg.Server, logger, version.Version)

	healthHandler := handlers.NewHealthHandler(version.Version, db)
	healthHandler.Register(server.API())

	batchHandler := handlers.NewBatchHandler(batchRepo, itemRepo, runRepo, pipelineRunner, logger)
	batchHandler.Register(server.API())

	runHandler := handlers.NewRunHandler(runRepo, pipelineRunner, logger)
	runHandler.Register(server.API())

	analyticsHandler := handlers.NewAnalyticsHandler(batchRepo, itemRepo, rightsRepo, lexiconRepo, poolRepo, store, cfg, logger)
	analyticsHandler.Register(server.API())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting enliterate server",
		slog.String("address", cfg.Server.Address()),
		slog.Int("workers", cfg.Pipeline.WorkerCount),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}

// loadConfig unmarshals and validates the viper state assembled by initConfig
// and the bound serve flags.
func loadConfig() (*config.Config, error) {
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// openGraphStore selects the graph backend. An empty URI selects the
// in-memory store, used for single-binary dev setups and tests.
func openGraphStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (graph.Store, error) {
	if cfg.Graph.URI == "" {
		logger.Info("using in-memory graph store")
		return memgraph.New(), nil
	}

	logger.Info("connecting to graph store",
		slog.String("uri", cfg.Graph.URI),
		slog.Bool("multi_database", cfg.Graph.MultiDatabaseSupported),
	)
	return neograph.New(ctx, neograph.Config{
		URI:           cfg.Graph.URI,
		Username:      cfg.Graph.Username,
		Password:      cfg.Graph.Password,
		MultiDatabase: cfg.Graph.MultiDatabaseSupported,
	})
}

func loadGlossary(cfg *config.Config) (*graph.Glossary, error) {
	if cfg.Graph.VerbGlossaryPath != "" {
		return graph.LoadGlossary(cfg.Graph.VerbGlossaryPath)
	}
	return graph.DefaultGlossary(), nil
}

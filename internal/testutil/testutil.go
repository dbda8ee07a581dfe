// Package testutil provides shared fixtures for enliterate tests: an
// isolated SQLite database, default configuration, fake external services,
// and document directory builders.
package testutil

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/enliterate-io/enliterate/internal/config"
	"github.com/enliterate-io/enliterate/internal/database"
	"github.com/enliterate-io/enliterate/internal/graph"
	"github.com/enliterate-io/enliterate/internal/graph/memgraph"
	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/pipeline/core"
	"github.com/enliterate-io/enliterate/internal/repository"
	"github.com/enliterate-io/enliterate/internal/services"
)

// NewConfig returns the default configuration with fast pipeline timings
// suitable for tests.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()

	v := viper.New()
	config.SetDefaults(v)

	var cfg config.Config
	require.NoError(t, v.Unmarshal(&cfg))

	cfg.Pipeline.ItemConcurrency = 2
	cfg.Pipeline.WorkerCount = 1
	return &cfg
}

// NewDB opens a migrated SQLite database in a per-test temp directory.
func NewDB(t *testing.T) *database.DB {
	t.Helper()

	cfg := config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "test.db"),
		LogLevel: "silent",
	}
	db, err := database.New(cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Env bundles the repositories, graph store, and fake services a stage or
// runner test needs.
type Env struct {
	Config *config.Config
	DB     *database.DB

	Batches   repository.BatchRepository
	Items     repository.ItemRepository
	Rights    repository.RightsRepository
	Lexicon   repository.LexiconRepository
	Pools     repository.PoolRepository
	Relations repository.RelationRepository
	Runs      repository.RunRepository

	Graph graph.Store

	RightsService *FakeRights
	Extraction    *FakeExtraction
	Embedding     *FakeEmbedding
}

// NewEnv builds a full test environment backed by SQLite and the in-memory
// graph store.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	db := NewDB(t)
	return &Env{
		Config:        NewConfig(t),
		DB:            db,
		Batches:       repository.NewBatchRepository(db.DB),
		Items:         repository.NewItemRepository(db.DB),
		Rights:        repository.NewRightsRepository(db.DB),
		Lexicon:       repository.NewLexiconRepository(db.DB),
		Pools:         repository.NewPoolRepository(db.DB),
		Relations:     repository.NewRelationRepository(db.DB),
		Runs:          repository.NewRunRepository(db.DB),
		Graph:         memgraph.New(),
		RightsService: &FakeRights{},
		Extraction:    &FakeExtraction{},
		Embedding:     &FakeEmbedding{Dims: 4, ModelName: "test-embedding"},
	}
}

// Deps assembles the stage dependency struct from the environment.
func (e *Env) Deps() core.Dependencies {
	return core.Dependencies{
		Config: e.Config,
		Logger: slog.New(slog.DiscardHandler),

		Batches:   e.Batches,
		Items:     e.Items,
		Rights:    e.Rights,
		Lexicon:   e.Lexicon,
		Pools:     e.Pools,
		Relations: e.Relations,
		Runs:      e.Runs,

		Graph:    e.Graph,
		Glossary: graph.DefaultGlossary(),

		RightsService:    e.RightsService,
		Extraction:       e.Extraction,
		EmbeddingService: e.Embedding,
	}
}

// SeedBatch creates a batch with the given source directory.
func (e *Env) SeedBatch(t *testing.T, source string) *models.IngestBatch {
	t.Helper()

	batch := &models.IngestBatch{
		Name:             "test batch",
		SourceDescriptor: source,
		Status:           models.BatchStatusInitialized,
	}
	require.NoError(t, e.Batches.Create(context.Background(), batch))
	return batch
}

// SeedRun creates a run for the batch positioned at the given stage with
// state running, as the worker would present it to a stage job.
func (e *Env) SeedRun(t *testing.T, batch *models.IngestBatch, stage int) *models.PipelineRun {
	t.Helper()

	run := &models.PipelineRun{
		BatchID:      batch.ID,
		State:        models.RunStateRunning,
		CurrentStage: stage,
		MaxRetries:   e.Config.Pipeline.MaxRetries,
	}
	run.SetStageStatus(stage, models.RunStageRunning)
	require.NoError(t, e.Runs.Create(context.Background(), run))
	return run
}

// WriteDocs materializes the given files under a fresh temp directory and
// returns its path. Keys may contain subdirectories.
func WriteDocs(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

// FakeRights is a scriptable RightsService.
type FakeRights struct {
	InferFunc func(ctx context.Context, item *models.IngestItem) (*services.RightsInference, error)
	Calls     int
}

// Infer invokes InferFunc, defaulting to a permissive high-confidence verdict.
func (f *FakeRights) Infer(ctx context.Context, item *models.IngestItem) (*services.RightsInference, error) {
	f.Calls++
	if f.InferFunc != nil {
		return f.InferFunc(ctx, item)
	}
	return &services.RightsInference{
		Confidence:    0.95,
		LicenseType:   models.LicensePublicDomain,
		ConsentStatus: models.ConsentExplicit,
		Publishable:   true,
		Trainable:     true,
		SourceType:    "document",
		Method:        "fake",
	}, nil
}

// FakeExtraction is a scriptable ExtractionService.
type FakeExtraction struct {
	TermsFunc func(ctx context.Context, itemText string, existingTerms []string) ([]services.TermProposal, error)
	PoolsFunc func(ctx context.Context, itemText string, lexicon []*models.LexiconEntry) (*services.PoolExtraction, error)
}

func (f *FakeExtraction) ExtractTerms(ctx context.Context, itemText string, existingTerms []string) ([]services.TermProposal, error) {
	if f.TermsFunc != nil {
		return f.TermsFunc(ctx, itemText, existingTerms)
	}
	return nil, nil
}

func (f *FakeExtraction) ExtractPools(ctx context.Context, itemText string, lexicon []*models.LexiconEntry) (*services.PoolExtraction, error) {
	if f.PoolsFunc != nil {
		return f.PoolsFunc(ctx, itemText, lexicon)
	}
	return &services.PoolExtraction{}, nil
}

// FakeEmbedding is a scriptable EmbeddingService returning fixed-size vectors.
type FakeEmbedding struct {
	EncodeFunc func(ctx context.Context, text string) ([]float64, error)
	Dims       int
	ModelName  string
	Calls      int
}

func (f *FakeEmbedding) Encode(ctx context.Context, text string) ([]float64, error) {
	f.Calls++
	if f.EncodeFunc != nil {
		return f.EncodeFunc(ctx, text)
	}
	vec := make([]float64, f.Dims)
	for i := range vec {
		vec[i] = float64(len(text)%7) / 7
	}
	return vec, nil
}

func (f *FakeEmbedding) Model() string   { return f.ModelName }
func (f *FakeEmbedding) Dimensions() int { return f.Dims }

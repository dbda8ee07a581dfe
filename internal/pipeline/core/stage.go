package core

import (
	"context"
	"log/slog"
	"sync"

	"github.com/enliterate-io/enliterate/internal/config"
	"github.com/enliterate-io/enliterate/internal/graph"
	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/repository"
	"github.com/enliterate-io/enliterate/internal/services"
)

// Result is what a stage job hands back to the runner on success. Metric
// updates are safe from parallel per-item workers.
type Result struct {
	mu           sync.Mutex
	metrics      map[string]float64
	ItemsUpdated int
}

// NewResult returns an empty result with an allocated metrics map.
func NewResult() *Result {
	return &Result{metrics: make(map[string]float64)}
}

// Add increments a metric.
func (r *Result) Add(key string, delta float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics[key] += delta
}

// Set assigns a metric.
func (r *Result) Set(key string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics[key] = value
}

// Get returns the current value of a metric.
func (r *Result) Get(key string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics[key]
}

// Metrics returns a copy of the metric map.
func (r *Result) Metrics() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]float64, len(r.metrics))
	for k, v := range r.metrics {
		out[k] = v
	}
	return out
}

// Stage is one pipeline stage job. Execute re-reads all state from the run
// id, selects its work set by item stage status, and must be idempotent:
// re-running against unchanged inputs reaches the same final statuses.
type Stage interface {
	Name() string
	Index() int
	Execute(ctx context.Context, run *models.PipelineRun, batch *models.IngestBatch) (*Result, error)
}

// PauseChecker reports whether the run's cooperative pause flag is set.
// Stages poll it between items and exit cleanly when it fires.
type PauseChecker func(ctx context.Context) (bool, error)

// Dependencies carries the shared handles stage constructors close over.
// Handles are initialized once at process startup; stages hold no global
// state of their own.
type Dependencies struct {
	Config *config.Config
	Logger *slog.Logger

	Batches   repository.BatchRepository
	Items     repository.ItemRepository
	Rights    repository.RightsRepository
	Lexicon   repository.LexiconRepository
	Pools     repository.PoolRepository
	Relations repository.RelationRepository
	Runs      repository.RunRepository

	Graph    graph.Store
	Glossary *graph.Glossary

	RightsService    services.RightsService
	Extraction       services.ExtractionService
	EmbeddingService services.EmbeddingService
}

// Factory builds the stage jobs for stages 1..9. Stage 0 has no job.
type Factory func(deps Dependencies) map[int]Stage

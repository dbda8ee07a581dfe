package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/enliterate-io/enliterate/internal/models"
)

// AssemblyInput carries everything the assembler writes: the batch's rights
// records, lexicon entries, pool entities, and typed relations.
type AssemblyInput struct {
	Rights    []*models.ProvenanceAndRights
	Lexicon   []*models.LexiconEntry
	Entities  []models.PoolEntity
	Relations []*models.Relation
}

// AssemblyResult reports what each phase did.
type AssemblyResult struct {
	RightsNodes    int
	LexiconNodes   int
	PoolNodes      int
	Edges          EdgeLoadResult
	RightsLinks    int
	Deduplicated   DedupResult
	OrphansRemoved int
	Integrity      *IntegrityReport
}

// Assembler runs the graph assembly phases in order against one database.
// Every phase is idempotent, so a failed assembly can simply be re-run.
type Assembler struct {
	Store    Store
	Glossary *Glossary
	Logger   *slog.Logger

	OnlineWaitTimeout    time.Duration
	DedupBatchSize       int
	OrphanBatchSize      int
	OrphanPreserveWindow time.Duration
}

// Assemble provisions the database, applies the schema, loads nodes and
// edges, deduplicates, removes orphans, and verifies the result. Schema work
// and data work never share a transaction. An integrity report with errors
// is returned alongside a non-nil error so callers can surface both.
func (a *Assembler) Assemble(ctx context.Context, databaseName string, input AssemblyInput) (*AssemblyResult, error) {
	logger := a.Logger.With(slog.String("graph_db", databaseName))

	// An empty name targets the store's default database, used when the
	// server cannot host per-batch databases. Nodes still carry batch_id,
	// so batches stay distinguishable inside the shared database.
	if databaseName != "" {
		if err := ProvisionDatabase(ctx, a.Store, databaseName, a.OnlineWaitTimeout); err != nil {
			return nil, err
		}
	}
	sess := a.Store.Session(databaseName)
	defer sess.Close(ctx)

	if err := EnsureSchema(ctx, sess, logger); err != nil {
		return nil, fmt.Errorf("applying graph schema: %w", err)
	}

	result := &AssemblyResult{}
	var err error
	if result.RightsNodes, err = LoadRightsNodes(ctx, sess, input.Rights); err != nil {
		return result, err
	}
	if result.LexiconNodes, err = LoadLexiconNodes(ctx, sess, input.Lexicon); err != nil {
		return result, err
	}
	if result.PoolNodes, err = LoadPoolNodes(ctx, sess, input.Entities); err != nil {
		return result, err
	}
	logger.Info("graph nodes loaded",
		slog.Int("rights", result.RightsNodes),
		slog.Int("lexicon", result.LexiconNodes),
		slog.Int("pool", result.PoolNodes))

	if result.RightsLinks, err = LinkRightsEdges(ctx, sess, input.Entities); err != nil {
		return result, err
	}
	if result.Edges, err = LoadRelationEdges(ctx, sess, a.Glossary, input.Relations, logger); err != nil {
		return result, err
	}
	logger.Info("graph edges loaded",
		slog.Int("merged", result.Edges.Merged),
		slog.Int("reversed", result.Edges.Reversed),
		slog.Int("skipped", result.Edges.Skipped))

	if result.Deduplicated, err = Deduplicate(ctx, sess, a.DedupBatchSize, logger); err != nil {
		return result, err
	}
	if result.OrphansRemoved, err = RemoveOrphans(ctx, sess, a.OrphanPreserveWindow, a.OrphanBatchSize, time.Now(), logger); err != nil {
		return result, err
	}

	if result.Integrity, err = VerifyIntegrity(ctx, sess, a.Glossary); err != nil {
		return result, err
	}
	if !result.Integrity.OK() {
		return result, fmt.Errorf("graph integrity verification failed: %d errors, first: %s",
			len(result.Integrity.Errors), result.Integrity.Errors[0])
	}
	return result, nil
}

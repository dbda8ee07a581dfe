// Package lexicon implements the vocabulary bootstrap stage: term proposals
// from the extraction service are normalized by folded canonical term and
// persisted transactionally, merging surface forms set-wise.
package lexicon

import (
	"context"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/pipeline/core"
	"github.com/enliterate-io/enliterate/internal/pipeline/shared"
	"github.com/enliterate-io/enliterate/internal/repository"
)

// Stage bootstraps the batch lexicon.
type Stage struct {
	shared.BaseStage
	folder cases.Caser
}

// New creates the lexicon stage job.
func New(deps core.Dependencies) *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(models.StageName(models.StageLexicon), models.StageLexicon, deps),
		folder:    cases.Fold(),
	}
}

// CanonicalKey normalizes a term for merge comparison: case fold plus
// whitespace collapse.
func (s *Stage) CanonicalKey(term string) string {
	return strings.Join(strings.Fields(s.folder.String(term)), " ")
}

// Execute extracts terms item by item. Items run sequentially: merging by
// canonical term is order-dependent, and each item's persistence is one
// transaction. Only items that actually persisted a new entry advance to
// pool extraction.
func (s *Stage) Execute(ctx context.Context, run *models.PipelineRun, batch *models.IngestBatch) (*core.Result, error) {
	result := core.NewResult()

	items, err := s.Deps.Items.ListEligibleByStageStatus(ctx, batch.ID, repository.StageFieldLexicon, shared.WorkStatuses(run)...)
	if err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}
	eligibleTotal, err := s.Deps.Items.CountEligible(ctx, batch.ID)
	if err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}
	if err := s.Deps.Batches.UpdateStatus(ctx, batch.ID, models.BatchStatusLexicon); err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}

	pause := s.PauseCheck(run.ID)
	var failed int
	var firstErr error
	for _, item := range items {
		if paused, perr := pause(ctx); perr == nil && paused {
			return result, shared.ErrPaused
		}
		persisted, terms, err := s.processItem(ctx, batch, item)
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			uerr := s.Deps.Items.UpdateStage(ctx, item.ID, repository.StageFieldLexicon, models.StageStatusFailed, err.Error())
			if uerr != nil {
				return result, core.WrapError(s.StageIndex, uerr)
			}
			continue
		}
		result.Add("terms_extracted", float64(terms))
		if err := s.Deps.Items.UpdateStage(ctx, item.ID, repository.StageFieldLexicon, models.StageStatusCompleted, ""); err != nil {
			return result, core.WrapError(s.StageIndex, err)
		}
		if persisted {
			if err := s.Deps.Items.UpdateStage(ctx, item.ID, repository.StageFieldPool, models.StageStatusPending, ""); err != nil {
				return result, core.WrapError(s.StageIndex, err)
			}
			result.Add("items_advanced", 1)
		}
		result.Add("items_completed", 1)
	}
	result.Set("items_failed", float64(failed))
	result.ItemsUpdated = len(items)

	if failed > 0 && failed == len(items) {
		return result, core.WrapError(s.StageIndex, firstErr)
	}

	// Gate: a batch with eligible items but zero vocabulary is not a
	// lexicon. Zero counts are fine only when there was nothing to extract.
	total, err := s.Deps.Lexicon.CountByBatch(ctx, batch.ID)
	if err != nil {
		return result, core.WrapError(s.StageIndex, err)
	}
	if total == 0 && eligibleTotal > 0 {
		return result, core.Errorf(core.KindInvalidInput, s.StageIndex,
			"no lexicon terms extracted from %d eligible items", eligibleTotal)
	}
	return result, nil
}

// processItem extracts and persists terms for one item inside a single
// transaction. Returns whether any new entry was persisted (as opposed to
// proposals entirely subsumed by existing entries) and the proposal count.
func (s *Stage) processItem(ctx context.Context, batch *models.IngestBatch, item *models.IngestItem) (bool, int, error) {
	existing, err := s.Deps.Lexicon.GetByBatchID(ctx, batch.ID)
	if err != nil {
		return false, 0, err
	}
	known := make([]string, 0, len(existing))
	for _, entry := range existing {
		known = append(known, entry.CanonicalTerm)
	}

	proposals, err := s.Deps.Extraction.ExtractTerms(ctx, item.Content, known)
	if err != nil {
		return false, 0, err
	}

	var persistedNew bool
	err = s.Deps.Lexicon.Transaction(ctx, func(repo repository.LexiconRepository) error {
		for _, proposal := range proposals {
			key := s.CanonicalKey(proposal.CanonicalTerm)
			if key == "" {
				continue
			}
			entry, err := repo.GetByTerm(ctx, batch.ID, key)
			if err != nil {
				return err
			}
			if entry == nil {
				entry = &models.LexiconEntry{
					BatchID:              batch.ID,
					CanonicalTerm:        key,
					SurfaceForms:         models.StringList{proposal.SurfaceForm},
					NegativeSurfaceForms: models.StringList(proposal.NegativeSurfaceForms),
					Pool:                 proposal.Pool,
					TermType:             proposal.TermType,
					Definition:           proposal.Description,
					ValidTimeStart:       time.Now(),
					SourceItemID:         item.ID,
				}
				if err := repo.Create(ctx, entry); err != nil {
					return err
				}
				persistedNew = true
				continue
			}
			merged := entry.SurfaceForms.Union(models.StringList{proposal.SurfaceForm})
			negatives := entry.NegativeSurfaceForms.Union(models.StringList(proposal.NegativeSurfaceForms))
			changed := len(merged) != len(entry.SurfaceForms) || len(negatives) != len(entry.NegativeSurfaceForms)
			if !changed {
				continue
			}
			entry.SurfaceForms = merged
			entry.NegativeSurfaceForms = negatives
			if err := repo.Update(ctx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return persistedNew, len(proposals), nil
}

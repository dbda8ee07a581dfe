// Package rights implements the triage stage: every item gets a provenance
// and rights record, and items whose inference confidence falls below the
// threshold are quarantined out of the content stages.
package rights

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/pipeline/core"
	"github.com/enliterate-io/enliterate/internal/pipeline/shared"
	"github.com/enliterate-io/enliterate/internal/repository"
	"github.com/enliterate-io/enliterate/internal/services"
)

// Stage runs rights triage over a batch.
type Stage struct {
	shared.BaseStage
}

// New creates the rights stage job.
func New(deps core.Dependencies) *Stage {
	return &Stage{BaseStage: shared.NewBaseStage(models.StageName(models.StageRights), models.StageRights, deps)}
}

// Execute triages every item still awaiting rights. Items process with
// bounded parallelism; a single bad item quarantines or fails alone without
// dragging the stage down.
func (s *Stage) Execute(ctx context.Context, run *models.PipelineRun, batch *models.IngestBatch) (*core.Result, error) {
	result := core.NewResult()

	items, err := s.Deps.Items.ListByStageStatus(ctx, batch.ID, repository.StageFieldTriage, shared.WorkStatuses(run)...)
	if err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}
	if len(items) == 0 {
		return result, nil
	}

	override := s.Deps.Config.Services.TestRightsOverride && batch.SourceSynthetic
	if override {
		s.Logger.Info("rights override active for synthetic batch", slog.String("batch_id", batch.ID.String()))
	}

	outcomes, loopErr := shared.ForEachItem(ctx, items, s.Deps.Config.Pipeline.ItemConcurrency, s.PauseCheck(run.ID),
		func(ctx context.Context, item *models.IngestItem) error {
			return s.triageItem(ctx, batch, item, override, result)
		})
	if loopErr != nil {
		return result, loopErr
	}

	var firstErr error
	var failed int
	for _, outcome := range outcomes {
		if outcome.Err == nil {
			continue
		}
		failed++
		if firstErr == nil {
			firstErr = outcome.Err
		}
		uerr := s.Deps.Items.UpdateStage(ctx, outcome.Item.ID, repository.StageFieldTriage, models.StageStatusFailed, outcome.Err.Error())
		if uerr != nil {
			return result, core.WrapError(s.StageIndex, uerr)
		}
	}
	result.Set("items_failed", float64(failed))
	result.ItemsUpdated = len(outcomes)

	// A stage where nothing succeeded is not progress; surface the error so
	// the runner can decide on a retry.
	if failed > 0 && failed == len(outcomes) {
		return result, core.WrapError(s.StageIndex, firstErr)
	}
	return result, nil
}

// triageItem assigns rights to one item. The permissive override applies to
// synthetic batches only; inferences below the confidence threshold still
// produce a rights record, but one that can never publish or train.
func (s *Stage) triageItem(ctx context.Context, batch *models.IngestBatch, item *models.IngestItem, override bool, result *core.Result) error {
	var inference *services.RightsInference
	if override {
		inference = &services.RightsInference{
			Confidence:    0.9,
			LicenseType:   models.LicenseInternal,
			ConsentStatus: models.ConsentExplicit,
			Publishable:   true,
			Trainable:     true,
			SourceType:    "synthetic",
			Method:        models.RightsMethodOverride,
		}
	} else {
		var err error
		inference, err = s.Deps.RightsService.Infer(ctx, item)
		if err != nil {
			if errors.Is(err, services.ErrRejected) {
				return core.Errorf(core.KindExternalPermanent, s.StageIndex, "rights inference rejected item %s: %v", item.ID, err)
			}
			return err
		}
	}

	quarantine := inference.Confidence < models.RightsConfidenceThreshold
	record := &models.ProvenanceAndRights{
		BatchID:             batch.ID,
		LicenseType:         inference.LicenseType,
		ConsentStatus:       inference.ConsentStatus,
		Publishability:      inference.Publishable && !quarantine,
		TrainingEligibility: inference.Trainable && !quarantine,
		ValidTimeStart:      time.Now(),
		Confidence:          inference.Confidence,
		SourceType:          inference.SourceType,
		Method:              inference.Method,
	}
	if err := s.Deps.Rights.Create(ctx, record); err != nil {
		return err
	}

	if quarantine {
		if err := s.Deps.Items.AssignRights(ctx, item.ID, record.ID, true, models.StageStatusQuarantined); err != nil {
			return err
		}
		result.Add("items_quarantined", 1)
		return nil
	}

	if err := s.Deps.Items.AssignRights(ctx, item.ID, record.ID, false, models.StageStatusCompleted); err != nil {
		return err
	}
	if err := s.Deps.Items.UpdateStage(ctx, item.ID, repository.StageFieldLexicon, models.StageStatusPending, ""); err != nil {
		return err
	}
	result.Add("items_completed", 1)
	return nil
}

// Package pools implements the pool extraction stage: item text plus the
// batch lexicon go to the extraction service, and the typed entity and
// relation proposals that pass validation are persisted with rights
// attached.
package pools

import (
	"context"
	"log/slog"
	"strings"

	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/pipeline/core"
	"github.com/enliterate-io/enliterate/internal/pipeline/shared"
	"github.com/enliterate-io/enliterate/internal/repository"
	"github.com/enliterate-io/enliterate/internal/services"
)

// Stage extracts pool entities and relations.
type Stage struct {
	shared.BaseStage
}

// New creates the pool extraction stage job.
func New(deps core.Dependencies) *Stage {
	return &Stage{BaseStage: shared.NewBaseStage(models.StageName(models.StagePools), models.StagePools, deps)}
}

// Execute processes eligible items with bounded parallelism. Enum
// violations and missing required fields are per-item invalid input: the
// item fails, the stage keeps going.
func (s *Stage) Execute(ctx context.Context, run *models.PipelineRun, batch *models.IngestBatch) (*core.Result, error) {
	result := core.NewResult()

	items, err := s.Deps.Items.ListEligibleByStageStatus(ctx, batch.ID, repository.StageFieldPool, shared.WorkStatuses(run)...)
	if err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}
	if err := s.Deps.Batches.UpdateStatus(ctx, batch.ID, models.BatchStatusPooling); err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}
	if len(items) == 0 {
		return result, nil
	}

	lexicon, err := s.Deps.Lexicon.GetByBatchID(ctx, batch.ID)
	if err != nil {
		return nil, core.WrapError(s.StageIndex, err)
	}

	outcomes, loopErr := shared.ForEachItem(ctx, items, s.Deps.Config.Pipeline.ItemConcurrency, s.PauseCheck(run.ID),
		func(ctx context.Context, item *models.IngestItem) error {
			return s.extractItem(ctx, batch, item, lexicon, result)
		})
	if loopErr != nil {
		return result, loopErr
	}

	completed, failed, err := shared.RecordOutcomes(ctx, s.Deps.Items, repository.StageFieldPool, outcomes,
		func(ctx context.Context, item *models.IngestItem) error {
			if err := s.Deps.Items.UpdateStage(ctx, item.ID, repository.StageFieldPool, models.StageStatusCompleted, ""); err != nil {
				return err
			}
			return s.Deps.Items.UpdateStage(ctx, item.ID, repository.StageFieldGraph, models.StageStatusPending, "")
		})
	if err != nil {
		return result, core.WrapError(s.StageIndex, err)
	}
	result.Set("items_completed", float64(completed))
	result.Set("items_failed", float64(failed))
	result.ItemsUpdated = len(outcomes)

	if failed > 0 && completed == 0 {
		for _, outcome := range outcomes {
			if outcome.Err != nil {
				return result, core.WrapError(s.StageIndex, outcome.Err)
			}
		}
	}
	return result, nil
}

func (s *Stage) extractItem(ctx context.Context, batch *models.IngestBatch, item *models.IngestItem, lexicon []*models.LexiconEntry, result *core.Result) error {
	if item.RightsID == nil || item.RightsID.IsZero() {
		return core.Errorf(core.KindInvalidInput, s.StageIndex, "item %s has no rights record", item.ID)
	}

	extraction, err := s.Deps.Extraction.ExtractPools(ctx, item.Content, lexicon)
	if err != nil {
		return err
	}

	// Entities first; relations reference them by response-local key.
	refs := make(map[string]models.EntityRef, len(extraction.Entities))
	for _, proposal := range extraction.Entities {
		entity, err := s.buildEntity(batch, item, proposal)
		if err != nil {
			return err
		}
		if err := s.Deps.Pools.CreateEntity(ctx, entity); err != nil {
			return err
		}
		result.Add("entities_created", 1)
		if proposal.Key != "" {
			refs[proposal.Key] = models.EntityRef{Label: entity.Pool(), ID: entity.GetID()}
		}
	}

	relations := make([]*models.Relation, 0, len(extraction.Relations))
	for _, proposal := range extraction.Relations {
		source, okSource := refs[proposal.SourceKey]
		target, okTarget := refs[proposal.TargetKey]
		if !okSource || !okTarget {
			result.Add("relations_dangling", 1)
			continue
		}
		if _, ok := s.Deps.Glossary.Lookup(proposal.Verb); !ok {
			s.Logger.Warn("dropping relation with unknown verb",
				slog.String("verb", proposal.Verb), slog.String("item_id", item.ID.String()))
			result.Add("relations_unknown_verb", 1)
			continue
		}
		strength := proposal.Strength
		if strength <= 0 || strength > 1 {
			strength = 1
		}
		relations = append(relations, &models.Relation{
			BatchID:        batch.ID,
			SourceLabel:    source.Label,
			SourceID:       source.ID,
			TargetLabel:    target.Label,
			TargetID:       target.ID,
			Verb:           proposal.Verb,
			Strength:       strength,
			ValidTimeStart: proposal.ValidTimeStart,
			ValidTimeEnd:   proposal.ValidTimeEnd,
			RightsID:       *item.RightsID,
		})
	}
	if err := s.Deps.Relations.CreateBatch(ctx, relations); err != nil {
		return err
	}
	result.Add("relations_created", float64(len(relations)))
	return nil
}

// buildEntity validates a proposal and maps it onto the pool model. Closed
// enums reject anything outside their set.
func (s *Stage) buildEntity(batch *models.IngestBatch, item *models.IngestItem, proposal services.EntityProposal) (models.PoolEntity, error) {
	repr := strings.TrimSpace(proposal.ReprText)
	if repr == "" {
		return nil, core.Errorf(core.KindInvalidInput, s.StageIndex, "%s proposal without repr_text", proposal.Pool)
	}
	base := models.PoolEntityBase{
		BatchID:        batch.ID,
		ReprText:       repr,
		RightsID:       *item.RightsID,
		SourceItemID:   item.ID,
		ValidTimeStart: proposal.ValidTimeStart,
		ValidTimeEnd:   proposal.ValidTimeEnd,
	}

	switch proposal.Pool {
	case models.PoolIdea:
		return &models.Idea{PoolEntityBase: base, Label: proposal.Label, Description: proposal.Description}, nil
	case models.PoolManifest:
		return &models.Manifest{PoolEntityBase: base, Label: proposal.Label, Type: proposal.Type, Year: proposal.Year}, nil
	case models.PoolExperience:
		return &models.Experience{
			PoolEntityBase: base,
			AgentLabel:     proposal.AgentLabel,
			NarrativeText:  proposal.NarrativeText,
			ObservedAt:     proposal.ObservedAt,
		}, nil
	case models.PoolRelational:
		relType := models.RelationType(proposal.RelationType)
		if !models.ValidRelationType(relType) {
			return nil, core.Errorf(core.KindInvalidInput, s.StageIndex, "invalid relation_type %q", proposal.RelationType)
		}
		return &models.Relational{PoolEntityBase: base, Label: proposal.Label, RelationType: relType}, nil
	case models.PoolEvolutionary:
		return &models.Evolutionary{PoolEntityBase: base, Label: proposal.Label, Version: proposal.Version}, nil
	case models.PoolPractical:
		steps := make(models.StringList, 0, len(proposal.Steps))
		for _, step := range proposal.Steps {
			if trimmed := strings.TrimSpace(step); trimmed != "" {
				steps = append(steps, trimmed)
			}
		}
		if len(steps) == 0 {
			return nil, core.Errorf(core.KindInvalidInput, s.StageIndex, "practical proposal without steps")
		}
		return &models.Practical{PoolEntityBase: base, Label: proposal.Label, Steps: steps}, nil
	case models.PoolEmanation:
		infType := models.InfluenceType(proposal.InfluenceType)
		if !models.ValidInfluenceType(infType) {
			return nil, core.Errorf(core.KindInvalidInput, s.StageIndex, "invalid influence_type %q", proposal.InfluenceType)
		}
		return &models.Emanation{PoolEntityBase: base, Label: proposal.Label, InfluenceType: infType}, nil
	case models.PoolActor:
		return &models.Actor{PoolEntityBase: base, Label: proposal.Label, Role: proposal.Role}, nil
	case models.PoolSpatial:
		name := proposal.Name
		if name == "" {
			name = proposal.Label
		}
		return &models.Spatial{PoolEntityBase: base, Name: name, Year: proposal.Year}, nil
	case models.PoolEvidence:
		return &models.Evidence{PoolEntityBase: base, Label: proposal.Label, Citation: proposal.Citation}, nil
	case models.PoolRisk:
		return &models.Risk{PoolEntityBase: base, Label: proposal.Label, Severity: proposal.Severity}, nil
	case models.PoolMethod:
		return &models.Method{PoolEntityBase: base, Label: proposal.Label}, nil
	default:
		return nil, core.Errorf(core.KindInvalidInput, s.StageIndex, "unknown pool %q", proposal.Pool)
	}
}

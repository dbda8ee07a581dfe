// Package pipeline wires the stage jobs into the table the runner executes
// from. Stage 0 (frame) has no job; the runner marks it completed when a
// run first starts.
package pipeline

import (
	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/pipeline/core"
	"github.com/enliterate-io/enliterate/internal/pipeline/stages/deliverables"
	"github.com/enliterate-io/enliterate/internal/pipeline/stages/embeddings"
	"github.com/enliterate-io/enliterate/internal/pipeline/stages/finetune"
	"github.com/enliterate-io/enliterate/internal/pipeline/stages/graphassembly"
	"github.com/enliterate-io/enliterate/internal/pipeline/stages/intake"
	"github.com/enliterate-io/enliterate/internal/pipeline/stages/lexicon"
	"github.com/enliterate-io/enliterate/internal/pipeline/stages/literacy"
	"github.com/enliterate-io/enliterate/internal/pipeline/stages/pools"
	"github.com/enliterate-io/enliterate/internal/pipeline/stages/rights"
)

// NewFactory returns the stage factory covering stages 1 through 9.
func NewFactory() core.Factory {
	return func(deps core.Dependencies) map[int]core.Stage {
		return map[int]core.Stage{
			models.StageIntake:       intake.New(deps),
			models.StageRights:       rights.New(deps),
			models.StageLexicon:      lexicon.New(deps),
			models.StagePools:        pools.New(deps),
			models.StageGraph:        graphassembly.New(deps),
			models.StageEmbeddings:   embeddings.New(deps),
			models.StageLiteracy:     literacy.New(deps),
			models.StageDeliverables: deliverables.New(deps),
			models.StageFinetune:     finetune.New(deps),
		}
	}
}

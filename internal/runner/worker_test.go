package runner

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enliterate-io/enliterate/internal/models"
	"github.com/enliterate-io/enliterate/internal/pipeline/core"
	"github.com/enliterate-io/enliterate/internal/pipeline/shared"
	"github.com/enliterate-io/enliterate/internal/testutil"
)

// scriptedStage is a stage job whose Execute is supplied by the test.
type scriptedStage struct {
	name  string
	index int
	fn    func(ctx context.Context, run *models.PipelineRun, batch *models.IngestBatch) (*core.Result, error)
}

func (s *scriptedStage) Name() string { return s.name }
func (s *scriptedStage) Index() int   { return s.index }
func (s *scriptedStage) Execute(ctx context.Context, run *models.PipelineRun, batch *models.IngestBatch) (*core.Result, error) {
	return s.fn(ctx, run, batch)
}

func newPool(t *testing.T, env *testutil.Env, r *Runner, stages map[int]core.Stage) *Pool {
	t.Helper()
	factory := func(core.Dependencies) map[int]core.Stage { return stages }
	return NewPool(env.Config, r, env.Deps(), factory)
}

func startedRun(t *testing.T, r *Runner, env *testutil.Env) *models.PipelineRun {
	t.Helper()
	run := createRun(t, r, env)
	require.NoError(t, r.Start(context.Background(), run.ID))
	return run
}

func TestExecuteOneAdvancesRunWithMetrics(t *testing.T) {
	r, env := newRunner(t)
	run := startedRun(t, r, env)

	var executed int
	stage := &scriptedStage{
		name:  "intake",
		index: models.StageIntake,
		fn: func(ctx context.Context, run *models.PipelineRun, batch *models.IngestBatch) (*core.Result, error) {
			executed++
			result := core.NewResult()
			result.Set("items_created", 3)
			result.ItemsUpdated = 3
			return result, nil
		},
	}
	pool := newPool(t, env, r, map[int]core.Stage{models.StageIntake: stage})

	worked := pool.executeOne(context.Background(), "worker-1", slog.New(slog.DiscardHandler))
	assert.True(t, worked)
	assert.Equal(t, 1, executed)

	got := reload(t, env, run.ID)
	assert.Equal(t, models.StageRights, got.CurrentStage)
	assert.Equal(t, models.RunStageCompleted, got.StageStatus(models.StageIntake))
	assert.Equal(t, float64(3), got.Metrics[models.StageIntake]["items_created"])
	assert.Equal(t, float64(3), got.Metrics[models.StageIntake]["items_updated"])
	assert.Empty(t, got.LeaseOwner, "lease must be released after execution")
}

func TestExecuteOneReturnsFalseWhenIdle(t *testing.T) {
	r, env := newRunner(t)
	pool := newPool(t, env, r, map[int]core.Stage{})

	assert.False(t, pool.executeOne(context.Background(), "worker-1", slog.New(slog.DiscardHandler)))
}

func TestExecuteOneRecordsStageFailure(t *testing.T) {
	r, env := newRunner(t)
	run := startedRun(t, r, env)

	stage := &scriptedStage{
		name:  "intake",
		index: models.StageIntake,
		fn: func(ctx context.Context, run *models.PipelineRun, batch *models.IngestBatch) (*core.Result, error) {
			return nil, core.Errorf(core.KindExternalPermanent, models.StageIntake, "model rejected credentials")
		},
	}
	pool := newPool(t, env, r, map[int]core.Stage{models.StageIntake: stage})

	assert.True(t, pool.executeOne(context.Background(), "worker-1", slog.New(slog.DiscardHandler)))

	got := reload(t, env, run.ID)
	assert.Equal(t, models.RunStateFailed, got.State)
	assert.Equal(t, models.RunStageFailed, got.StageStatus(models.StageIntake))
	assert.Contains(t, got.ErrorMessage, "model rejected credentials")
}

func TestExecuteOneMarksRunPausedOnDrain(t *testing.T) {
	r, env := newRunner(t)
	run := startedRun(t, r, env)

	stage := &scriptedStage{
		name:  "intake",
		index: models.StageIntake,
		fn: func(ctx context.Context, run *models.PipelineRun, batch *models.IngestBatch) (*core.Result, error) {
			return core.NewResult(), shared.ErrPaused
		},
	}
	pool := newPool(t, env, r, map[int]core.Stage{models.StageIntake: stage})

	assert.True(t, pool.executeOne(context.Background(), "worker-1", slog.New(slog.DiscardHandler)))

	got := reload(t, env, run.ID)
	assert.Equal(t, models.RunStatePaused, got.State)
	assert.Equal(t, models.RunStagePending, got.StageStatus(models.StageIntake))
}

func TestExecuteOneFailsRunWithoutRegisteredStage(t *testing.T) {
	r, env := newRunner(t)
	run := startedRun(t, r, env)

	pool := newPool(t, env, r, map[int]core.Stage{})
	assert.True(t, pool.executeOne(context.Background(), "worker-1", slog.New(slog.DiscardHandler)))

	got := reload(t, env, run.ID)
	assert.Equal(t, models.RunStateFailed, got.State)
	assert.Contains(t, got.ErrorMessage, "no job registered")
}

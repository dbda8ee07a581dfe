package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// RunState represents the state of a pipeline run.
type RunState string

const (
	// RunStateInitialized indicates the run was created but not started.
	RunStateInitialized RunState = "initialized"
	// RunStateRunning indicates the run is executing stages.
	RunStateRunning RunState = "running"
	// RunStatePaused indicates the run is cooperatively paused.
	RunStatePaused RunState = "paused"
	// RunStateFailed indicates the last stage attempt failed.
	RunStateFailed RunState = "failed"
	// RunStateCompleted indicates all stages finished.
	RunStateCompleted RunState = "completed"
)

// RunStageStatus is the status of one stage within a run.
type RunStageStatus string

const (
	RunStagePending   RunStageStatus = "pending"
	RunStageRunning   RunStageStatus = "running"
	RunStageCompleted RunStageStatus = "completed"
	RunStageFailed    RunStageStatus = "failed"
	RunStageSkipped   RunStageStatus = "skipped"
)

// Pipeline stages, fixed and ordered. Stage 0 has no job and is marked
// completed when the run first starts.
const (
	StageFrame        = 0
	StageIntake       = 1
	StageRights       = 2
	StageLexicon      = 3
	StagePools        = 4
	StageGraph        = 5
	StageEmbeddings   = 6
	StageLiteracy     = 7
	StageDeliverables = 8
	StageFinetune     = 9

	// StageCount is the number of pipeline stages.
	StageCount = 10
)

// StageNames maps stage indices to identifiers used in logs and metrics.
var StageNames = map[int]string{
	StageFrame:        "frame",
	StageIntake:       "intake",
	StageRights:       "rights",
	StageLexicon:      "lexicon",
	StagePools:        "pool_extraction",
	StageGraph:        "graph_assembly",
	StageEmbeddings:   "embeddings",
	StageLiteracy:     "literacy_scoring",
	StageDeliverables: "deliverables",
	StageFinetune:     "finetune_dataset",
}

// StageName returns the identifier for a stage index.
func StageName(stage int) string {
	if name, ok := StageNames[stage]; ok {
		return name
	}
	return fmt.Sprintf("stage_%d", stage)
}

// StageStatusMap maps stage index to stage status, stored as JSON.
type StageStatusMap map[int]RunStageStatus

// Value implements driver.Valuer.
func (m StageStatusMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(map[int]RunStageStatus(m))
	if err != nil {
		return nil, fmt.Errorf("marshaling stage statuses: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *StageStatusMap) Scan(value any) error {
	return scanJSON(value, (*map[int]RunStageStatus)(m), "StageStatusMap")
}

// GormDataType returns the GORM data type for StageStatusMap.
func (StageStatusMap) GormDataType() string { return "text" }

// StageMetrics maps stage index to a key/value metric map, stored as JSON.
type StageMetrics map[int]map[string]float64

// Value implements driver.Valuer.
func (m StageMetrics) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(map[int]map[string]float64(m))
	if err != nil {
		return nil, fmt.Errorf("marshaling stage metrics: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *StageMetrics) Scan(value any) error {
	return scanJSON(value, (*map[int]map[string]float64)(m), "StageMetrics")
}

// GormDataType returns the GORM data type for StageMetrics.
func (StageMetrics) GormDataType() string { return "text" }

func scanJSON[T any](value any, dst *T, kind string) error {
	if value == nil {
		var zero T
		*dst = zero
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported type for %s: %T", kind, value)
	}
	if len(data) == 0 {
		var zero T
		*dst = zero
		return nil
	}
	return json.Unmarshal(data, dst)
}

// PipelineRun drives a batch through the fixed stage sequence. The run's
// state and stage-status map are owned exclusively by the runner; stage jobs
// mutate them only through the runner's API.
type PipelineRun struct {
	BaseModel

	BatchID ULID `gorm:"type:varchar(26);not null;index" json:"batch_id"`

	// CurrentStage is the stage pointer, 0..9. Monotone except under an
	// explicit reset.
	CurrentStage int `gorm:"not null;default:0" json:"current_stage"`

	State RunState `gorm:"not null;default:'initialized';size:20;index" json:"state"`

	// Paused is the cooperative cancellation flag polled between items.
	Paused bool `gorm:"default:false" json:"paused"`

	RetryCount int `gorm:"default:0" json:"retry_count"`
	MaxRetries int `gorm:"default:3" json:"max_retries"`

	StageStatuses StageStatusMap `json:"stage_statuses"`
	Metrics       StageMetrics   `json:"metrics"`

	ErrorMessage string `gorm:"size:4096" json:"error_message,omitempty"`

	// NextAttemptAt delays the next stage attempt during retry backoff.
	NextAttemptAt *Time `gorm:"index" json:"next_attempt_at,omitempty"`

	// LeaseOwner and LeasedAt implement the single-active-stage-job guarantee
	// across workers.
	LeaseOwner string `gorm:"size:100;index" json:"lease_owner,omitempty"`
	LeasedAt   *Time  `json:"leased_at,omitempty"`

	StartedAt  *Time `json:"started_at,omitempty"`
	FinishedAt *Time `json:"finished_at,omitempty"`
}

// TableName returns the table name for PipelineRun.
func (PipelineRun) TableName() string {
	return "pipeline_runs"
}

// StageStatus returns the status of the given stage, defaulting to pending.
func (r *PipelineRun) StageStatus(stage int) RunStageStatus {
	if s, ok := r.StageStatuses[stage]; ok {
		return s
	}
	return RunStagePending
}

// SetStageStatus records the status of a stage.
func (r *PipelineRun) SetStageStatus(stage int, status RunStageStatus) {
	if r.StageStatuses == nil {
		r.StageStatuses = make(StageStatusMap)
	}
	r.StageStatuses[stage] = status
}

// SetStageMetrics records the metric map for a stage.
func (r *PipelineRun) SetStageMetrics(stage int, metrics map[string]float64) {
	if r.Metrics == nil {
		r.Metrics = make(StageMetrics)
	}
	r.Metrics[stage] = metrics
}

// Terminal reports whether the run is in a terminal state.
func (r *PipelineRun) Terminal() bool {
	if r.State == RunStateCompleted {
		return true
	}
	return r.State == RunStateFailed && r.RetryCount >= r.MaxRetries
}

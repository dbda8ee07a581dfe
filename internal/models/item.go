package models

// StageStatus represents the per-stage processing status of an ingest item.
type StageStatus string

const (
	// StageStatusPending indicates the item is waiting for the stage.
	StageStatusPending StageStatus = "pending"
	// StageStatusInProgress indicates the stage is processing the item.
	StageStatusInProgress StageStatus = "in_progress"
	// StageStatusCompleted indicates the stage finished the item.
	StageStatusCompleted StageStatus = "completed"
	// StageStatusFailed indicates the stage failed on the item.
	StageStatusFailed StageStatus = "failed"
	// StageStatusQuarantined indicates the item was excluded by rights triage.
	StageStatusQuarantined StageStatus = "quarantined"
)

// ContentSampleSize is the number of leading bytes stored as the content sample.
const ContentSampleSize = 5 * 1024

// IngestItem is one file/document within a batch. Items carry a status per
// pipeline stage; retries key off these statuses, never off wall-clock.
type IngestItem struct {
	BaseModel

	// BatchID is the owning batch.
	BatchID ULID `gorm:"type:varchar(26);not null;index;index:idx_items_batch_hash,unique" json:"batch_id"`

	// SourcePath is the path or name the item was discovered under.
	SourcePath string `gorm:"size:1024" json:"source_path"`

	// ContentHash is the SHA-256 of the content, unique within a batch.
	ContentHash string `gorm:"not null;size:64;index:idx_items_batch_hash,unique" json:"content_hash"`

	SizeBytes int64  `gorm:"not null" json:"size_bytes"`
	MIMEType  string `gorm:"size:255" json:"mime_type"`

	// Content is the full item text.
	Content string `json:"content,omitempty"`

	// ContentSample is the first 5 KB of content, used for rights inference
	// and logging without dragging full documents around.
	ContentSample string `gorm:"size:5120" json:"content_sample,omitempty"`

	// Quarantined marks items excluded from downstream stages by rights triage.
	Quarantined bool `gorm:"default:false;index" json:"quarantined"`

	// RightsID references the ProvenanceAndRights record once assigned.
	RightsID *ULID `gorm:"type:varchar(26);index" json:"rights_id,omitempty"`

	// Per-stage statuses. Once a stage is completed it never regresses
	// except by an explicit pipeline reset.
	TriageStatus    StageStatus `gorm:"size:20;default:'pending';index" json:"triage_status"`
	LexiconStatus   StageStatus `gorm:"size:20;index" json:"lexicon_status,omitempty"`
	PoolStatus      StageStatus `gorm:"size:20;index" json:"pool_status,omitempty"`
	GraphStatus     StageStatus `gorm:"size:20;index" json:"graph_status,omitempty"`
	EmbeddingStatus StageStatus `gorm:"size:20;index" json:"embedding_status,omitempty"`

	// Per-stage error messages from the most recent attempt.
	TriageError    string `gorm:"size:2048" json:"triage_error,omitempty"`
	LexiconError   string `gorm:"size:2048" json:"lexicon_error,omitempty"`
	PoolError      string `gorm:"size:2048" json:"pool_error,omitempty"`
	GraphError     string `gorm:"size:2048" json:"graph_error,omitempty"`
	EmbeddingError string `gorm:"size:2048" json:"embedding_error,omitempty"`
}

// TableName returns the table name for IngestItem.
func (IngestItem) TableName() string {
	return "ingest_items"
}

// Eligible reports whether the item may flow into content stages:
// triage completed and not quarantined.
func (i *IngestItem) Eligible() bool {
	return !i.Quarantined && i.TriageStatus == StageStatusCompleted
}

// SampleOf returns the first ContentSampleSize bytes of content.
func SampleOf(content string) string {
	if len(content) <= ContentSampleSize {
		return content
	}
	return content[:ContentSampleSize]
}

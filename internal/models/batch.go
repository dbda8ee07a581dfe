package models

import (
	"fmt"
	"regexp"
)

// BatchStatus represents the lifecycle status of an ingest batch.
type BatchStatus string

const (
	// BatchStatusInitialized indicates the batch was created but not yet processed.
	BatchStatusInitialized BatchStatus = "initialized"
	// BatchStatusTriaging indicates intake and rights assignment are underway.
	BatchStatusTriaging BatchStatus = "triaging"
	// BatchStatusLexicon indicates lexicon bootstrap is underway.
	BatchStatusLexicon BatchStatus = "lexicon"
	// BatchStatusPooling indicates pool extraction is underway.
	BatchStatusPooling BatchStatus = "pooling"
	// BatchStatusGraph indicates graph assembly is underway.
	BatchStatusGraph BatchStatus = "graph"
	// BatchStatusEmbedding indicates embedding generation is underway.
	BatchStatusEmbedding BatchStatus = "embedding"
	// BatchStatusScoring indicates literacy scoring is underway.
	BatchStatusScoring BatchStatus = "scoring"
	// BatchStatusDelivered indicates the batch completed the pipeline.
	BatchStatusDelivered BatchStatus = "delivered"
	// BatchStatusFailed indicates the batch was abandoned after failures.
	BatchStatusFailed BatchStatus = "failed"
)

// graphDatabasePattern validates per-batch graph database names.
var graphDatabasePattern = regexp.MustCompile(`^ekn-[0-9]+$`)

// IngestBatch is a logical collection of documents submitted together.
// Each batch owns an isolated graph database named after its sequence number.
type IngestBatch struct {
	BaseModel

	// Seq is a monotonically increasing sequence used to derive the
	// graph database name. ULIDs are not valid database identifiers.
	Seq int64 `gorm:"autoIncrement;uniqueIndex" json:"seq"`

	// Name is a human-readable batch name.
	Name string `gorm:"not null;size:255" json:"name"`

	// SourceDescriptor describes where the batch content came from
	// (directory path, upload reference, crawl id).
	SourceDescriptor string `gorm:"size:1024" json:"source_descriptor"`

	// SourceSynthetic marks batches built from synthetic test content.
	// The rights override flag only applies to synthetic batches.
	SourceSynthetic bool `gorm:"default:false" json:"source_synthetic"`

	// Status tracks batch lifecycle.
	Status BatchStatus `gorm:"not null;default:'initialized';size:20;index" json:"status"`

	// LiteracyScore is the 0-100 graph quality score, set by the scoring stage.
	LiteracyScore float64 `gorm:"default:0" json:"literacy_score"`

	// DeliveredAt is set when the pipeline reaches its terminal stage.
	DeliveredAt *Time `json:"delivered_at,omitempty"`
}

// TableName returns the table name for IngestBatch.
func (IngestBatch) TableName() string {
	return "ingest_batches"
}

// GraphDatabaseName returns the logical graph database name for this batch.
func (b *IngestBatch) GraphDatabaseName() string {
	return fmt.Sprintf("ekn-%d", b.Seq)
}

// ValidGraphDatabaseName reports whether name matches the ekn-<seq> pattern.
func ValidGraphDatabaseName(name string) bool {
	return graphDatabasePattern.MatchString(name)
}

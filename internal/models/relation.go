package models

// EntityRef is a tagged reference to a pool entity: graph label plus the
// relational id. References are always stored as two primitive columns,
// never as an embedded object.
type EntityRef struct {
	Label PoolLabel `gorm:"size:30" json:"label"`
	ID    ULID      `gorm:"type:varchar(26)" json:"id"`
}

// Relation is a typed edge between two pool entities. The verb must belong
// to the closed verb glossary.
type Relation struct {
	BaseModel

	BatchID ULID `gorm:"type:varchar(26);not null;index" json:"batch_id"`

	SourceLabel PoolLabel `gorm:"not null;size:30;index:idx_relations_source" json:"source_label"`
	SourceID    ULID      `gorm:"type:varchar(26);not null;index:idx_relations_source" json:"source_id"`
	TargetLabel PoolLabel `gorm:"not null;size:30;index:idx_relations_target" json:"target_label"`
	TargetID    ULID      `gorm:"type:varchar(26);not null;index:idx_relations_target" json:"target_id"`

	Verb string `gorm:"not null;size:50;index" json:"verb"`

	// Strength is an optional weight in [0,1].
	Strength float64 `gorm:"default:1" json:"strength"`

	ValidTimeStart *Time `json:"valid_time_start,omitempty"`
	ValidTimeEnd   *Time `json:"valid_time_end,omitempty"`

	RightsID ULID `gorm:"type:varchar(26);not null" json:"rights_id"`
}

// TableName returns the table name for Relation.
func (Relation) TableName() string {
	return "relations"
}

// Source returns the relation's source reference.
func (r *Relation) Source() EntityRef {
	return EntityRef{Label: r.SourceLabel, ID: r.SourceID}
}

// Target returns the relation's target reference.
func (r *Relation) Target() EntityRef {
	return EntityRef{Label: r.TargetLabel, ID: r.TargetID}
}

package models

// LexiconDefaultDescription is used when neither canonical description nor
// definition is present on a lexicon entry.
const LexiconDefaultDescription = "Extracted term"

// LexiconEntry is a canonical vocabulary term for a batch, unique by
// canonical term within the batch.
type LexiconEntry struct {
	BaseModel

	BatchID ULID `gorm:"type:varchar(26);not null;index;index:idx_lexicon_batch_term,unique" json:"batch_id"`

	// CanonicalTerm is the normalized term, unique per batch.
	CanonicalTerm string `gorm:"not null;size:255;index:idx_lexicon_batch_term,unique" json:"canonical_term"`

	// SurfaceForms are observed spellings that map to the canonical term.
	SurfaceForms StringList `json:"surface_forms"`

	// NegativeSurfaceForms are spellings that must NOT map to the term.
	NegativeSurfaceForms StringList `json:"negative_surface_forms,omitempty"`

	// Pool optionally associates the term with a pool label.
	Pool string `gorm:"size:30" json:"pool,omitempty"`

	// TermType classifies the term (concept, person, place, work, ...).
	TermType string `gorm:"size:50" json:"term_type,omitempty"`

	Definition           string `gorm:"size:2048" json:"definition,omitempty"`
	CanonicalDescription string `gorm:"size:2048" json:"canonical_description,omitempty"`

	ValidTimeStart Time  `gorm:"not null" json:"valid_time_start"`
	ValidTimeEnd   *Time `json:"valid_time_end,omitempty"`

	// SourceItemID is the item the term was first extracted from.
	SourceItemID ULID `gorm:"type:varchar(26);not null;index" json:"source_item_id"`
}

// TableName returns the table name for LexiconEntry.
func (LexiconEntry) TableName() string {
	return "lexicon_entries"
}

// DescriptionOrDefault returns the canonical description, falling back to the
// definition and finally to the extracted-term placeholder.
func (e *LexiconEntry) DescriptionOrDefault() string {
	if e.CanonicalDescription != "" {
		return e.CanonicalDescription
	}
	if e.Definition != "" {
		return e.Definition
	}
	return LexiconDefaultDescription
}

package models

// LicenseType is the inferred license classification for an item.
type LicenseType string

const (
	// LicensePublicDomain indicates public-domain or CC0 content.
	LicensePublicDomain LicenseType = "public_domain"
	// LicenseCreativeCommons indicates an attribution-style license.
	LicenseCreativeCommons LicenseType = "creative_commons"
	// LicenseProprietary indicates all-rights-reserved content.
	LicenseProprietary LicenseType = "proprietary"
	// LicenseInternal indicates content owned by the operator.
	LicenseInternal LicenseType = "internal"
	// LicenseUnknown indicates the license could not be determined.
	LicenseUnknown LicenseType = "unknown"
)

// ConsentStatus is the inferred consent classification for an item.
type ConsentStatus string

const (
	// ConsentExplicit indicates documented consent.
	ConsentExplicit ConsentStatus = "explicit"
	// ConsentImplied indicates consent implied by publication context.
	ConsentImplied ConsentStatus = "implied"
	// ConsentAbsent indicates no consent signal was found.
	ConsentAbsent ConsentStatus = "absent"
)

// RightsConfidenceThreshold is the minimum inference confidence below
// which an item is quarantined.
const RightsConfidenceThreshold = 0.7

// RightsMethodOverride marks rights records produced by the operator
// test-data override rather than by inference.
const RightsMethodOverride = "operator_override"

// ProvenanceAndRights records license, consent, publishability and training
// eligibility for a content-bearing entity. Every persisted pool entity
// references exactly one rights record, and ValidTimeStart is never null.
type ProvenanceAndRights struct {
	BaseModel

	BatchID ULID `gorm:"type:varchar(26);not null;index" json:"batch_id"`

	LicenseType   LicenseType   `gorm:"not null;size:30;default:'unknown'" json:"license_type"`
	ConsentStatus ConsentStatus `gorm:"not null;size:20;default:'absent'" json:"consent_status"`

	// Publishability and TrainingEligibility are authoritative; downstream
	// stages must filter by them.
	Publishability      bool `gorm:"not null;default:false;index" json:"publishability"`
	TrainingEligibility bool `gorm:"not null;default:false;index" json:"training_eligibility"`

	// ValidTimeStart is required on every rights record.
	ValidTimeStart Time  `gorm:"not null" json:"valid_time_start"`
	ValidTimeEnd   *Time `json:"valid_time_end,omitempty"`

	// Confidence is the rights-inference confidence in [0,1].
	Confidence float64 `gorm:"not null;default:0" json:"confidence"`

	// SourceType and Method record how the rights were determined.
	SourceType string `gorm:"size:100" json:"source_type,omitempty"`
	Method     string `gorm:"size:100" json:"method,omitempty"`
}

// TableName returns the table name for ProvenanceAndRights.
func (ProvenanceAndRights) TableName() string {
	return "provenance_and_rights"
}

// Ambiguous reports whether the record should be surfaced by gap analysis:
// low confidence or unknown license.
func (r *ProvenanceAndRights) Ambiguous() bool {
	return r.Confidence < RightsConfidenceThreshold || r.LicenseType == LicenseUnknown
}

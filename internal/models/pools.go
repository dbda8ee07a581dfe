package models

// PoolLabel names one of the ten pool categories. Labels map 1:1 to graph
// node labels.
type PoolLabel string

const (
	// PoolIdea holds abstract concepts and principles.
	PoolIdea PoolLabel = "Idea"
	// PoolManifest holds concrete works and artifacts.
	PoolManifest PoolLabel = "Manifest"
	// PoolExperience holds observed encounters with manifests.
	PoolExperience PoolLabel = "Experience"
	// PoolRelational holds recurring relationship patterns.
	PoolRelational PoolLabel = "Relational"
	// PoolEvolutionary holds versions and lineages.
	PoolEvolutionary PoolLabel = "Evolutionary"
	// PoolPractical holds methods and procedures.
	PoolPractical PoolLabel = "Practical"
	// PoolEmanation holds downstream influences.
	PoolEmanation PoolLabel = "Emanation"
	// PoolActor holds people and organizations.
	PoolActor PoolLabel = "Actor"
	// PoolSpatial holds places.
	PoolSpatial PoolLabel = "Spatial"
	// PoolEvidence holds supporting or refuting sources.
	PoolEvidence PoolLabel = "Evidence"
	// PoolRisk holds identified hazards.
	PoolRisk PoolLabel = "Risk"
	// PoolMethod holds named techniques.
	PoolMethod PoolLabel = "Method"
)

// AllPools lists every pool label in canonical order.
var AllPools = []PoolLabel{
	PoolIdea, PoolManifest, PoolExperience, PoolRelational, PoolEvolutionary,
	PoolPractical, PoolEmanation, PoolActor, PoolSpatial, PoolEvidence,
	PoolRisk, PoolMethod,
}

// ContentPools are pools whose nodes require rights_id and repr_text
// existence constraints in the graph.
var ContentPools = []PoolLabel{
	PoolIdea, PoolManifest, PoolExperience, PoolPractical, PoolEmanation,
}

// ConnectedPools are pools whose nodes must not be left orphaned in the graph.
var ConnectedPools = []PoolLabel{
	PoolIdea, PoolManifest, PoolExperience, PoolRelational, PoolEvolutionary,
	PoolPractical, PoolEmanation,
}

// IsContentPool reports whether label belongs to ContentPools.
func IsContentPool(label PoolLabel) bool {
	for _, l := range ContentPools {
		if l == label {
			return true
		}
	}
	return false
}

// InfluenceType classifies an Emanation's influence. Closed set; extraction
// outputs outside it are rejected.
type InfluenceType string

const (
	InfluenceInspires   InfluenceType = "inspires"
	InfluenceConstrains InfluenceType = "constrains"
	InfluenceEnables    InfluenceType = "enables"
	InfluenceProvokes   InfluenceType = "provokes"
	InfluenceSustains   InfluenceType = "sustains"
)

// ValidInfluenceType reports whether t belongs to the closed influence set.
func ValidInfluenceType(t InfluenceType) bool {
	switch t {
	case InfluenceInspires, InfluenceConstrains, InfluenceEnables, InfluenceProvokes, InfluenceSustains:
		return true
	}
	return false
}

// RelationType classifies a Relational pattern. Closed set.
type RelationType string

const (
	RelationAssociation RelationType = "association"
	RelationOpposition  RelationType = "opposition"
	RelationKinship     RelationType = "kinship"
	RelationExchange    RelationType = "exchange"
	RelationHierarchy   RelationType = "hierarchy"
)

// ValidRelationType reports whether t belongs to the closed relation set.
func ValidRelationType(t RelationType) bool {
	switch t {
	case RelationAssociation, RelationOpposition, RelationKinship, RelationExchange, RelationHierarchy:
		return true
	}
	return false
}

// PoolEntityBase carries the fields shared by every pool entity.
type PoolEntityBase struct {
	BaseModel

	BatchID ULID `gorm:"type:varchar(26);not null;index" json:"batch_id"`

	// ReprText is the canonical short description used for embedding and
	// path narration.
	ReprText string `gorm:"not null;size:2048" json:"repr_text"`

	// RightsID references the governing ProvenanceAndRights record.
	RightsID ULID `gorm:"type:varchar(26);not null;index" json:"rights_id"`

	// SourceItemID is the item the entity was extracted from.
	SourceItemID ULID `gorm:"type:varchar(26);index" json:"source_item_id,omitempty"`

	ValidTimeStart *Time `json:"valid_time_start,omitempty"`
	ValidTimeEnd   *Time `json:"valid_time_end,omitempty"`
}

// Idea is an abstract concept or principle.
type Idea struct {
	PoolEntityBase

	Label       string `gorm:"not null;size:255;index" json:"label"`
	Description string `gorm:"size:4096" json:"description,omitempty"`
}

// TableName returns the table name for Idea.
func (Idea) TableName() string { return "ideas" }

// Manifest is a concrete work or artifact.
type Manifest struct {
	PoolEntityBase

	Label string `gorm:"not null;size:255;index" json:"label"`
	// Type classifies the artifact (book, building, recording, ...).
	Type string `gorm:"size:100;index" json:"type,omitempty"`
	Year *int   `json:"year,omitempty"`
}

// TableName returns the table name for Manifest.
func (Manifest) TableName() string { return "manifests" }

// Experience is an observed encounter with a manifest.
type Experience struct {
	PoolEntityBase

	AgentLabel    string `gorm:"size:255;index" json:"agent_label,omitempty"`
	NarrativeText string `gorm:"size:8192" json:"narrative_text,omitempty"`
	// ObservedAt replaces the valid-time window for experiences.
	ObservedAt *Time `gorm:"index" json:"observed_at,omitempty"`
}

// TableName returns the table name for Experience.
func (Experience) TableName() string { return "experiences" }

// Relational is a recurring relationship pattern between entities.
type Relational struct {
	PoolEntityBase

	Label        string       `gorm:"not null;size:255" json:"label"`
	RelationType RelationType `gorm:"not null;size:30" json:"relation_type"`
}

// TableName returns the table name for Relational.
func (Relational) TableName() string { return "relationals" }

// Evolutionary is a version or lineage record.
type Evolutionary struct {
	PoolEntityBase

	Label   string `gorm:"not null;size:255" json:"label"`
	Version string `gorm:"size:100" json:"version,omitempty"`
}

// TableName returns the table name for Evolutionary.
func (Evolutionary) TableName() string { return "evolutionaries" }

// Practical is a method or procedure.
type Practical struct {
	PoolEntityBase

	Label string `gorm:"not null;size:255" json:"label"`
	// Steps is an ordered, non-empty list of procedure steps.
	Steps StringList `json:"steps"`
}

// TableName returns the table name for Practical.
func (Practical) TableName() string { return "practicals" }

// Emanation is a downstream influence of the collection's ideas.
type Emanation struct {
	PoolEntityBase

	Label         string        `gorm:"not null;size:255" json:"label"`
	InfluenceType InfluenceType `gorm:"not null;size:30" json:"influence_type"`
}

// TableName returns the table name for Emanation.
func (Emanation) TableName() string { return "emanations" }

// Actor is a person or organization.
type Actor struct {
	PoolEntityBase

	Label string `gorm:"not null;size:255;index" json:"label"`
	Role  string `gorm:"size:100" json:"role,omitempty"`
}

// TableName returns the table name for Actor.
func (Actor) TableName() string { return "actors" }

// Spatial is a place.
type Spatial struct {
	PoolEntityBase

	Name string `gorm:"not null;size:255;index" json:"name"`
	Year *int   `gorm:"index" json:"year,omitempty"`
}

// TableName returns the table name for Spatial.
func (Spatial) TableName() string { return "spatials" }

// Evidence is a supporting or refuting source.
type Evidence struct {
	PoolEntityBase

	Label    string `gorm:"not null;size:255" json:"label"`
	Citation string `gorm:"size:1024" json:"citation,omitempty"`
}

// TableName returns the table name for Evidence.
func (Evidence) TableName() string { return "evidences" }

// Risk is an identified hazard.
type Risk struct {
	PoolEntityBase

	Label    string `gorm:"not null;size:255" json:"label"`
	Severity string `gorm:"size:30" json:"severity,omitempty"`
}

// TableName returns the table name for Risk.
func (Risk) TableName() string { return "risks" }

// Method is a named technique.
type Method struct {
	PoolEntityBase

	Label string `gorm:"not null;size:255" json:"label"`
}

// TableName returns the table name for Method.
func (Method) TableName() string { return "methods" }

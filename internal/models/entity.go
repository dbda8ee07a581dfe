package models

// PoolEntity is implemented by every pool model. The graph node loader
// consumes entities through this interface; GraphProperties returns the raw
// property map, which the loader sanitizes to primitives before write.
type PoolEntity interface {
	GetID() ULID
	Pool() PoolLabel
	Batch() ULID
	Rights() ULID
	Repr() string
	GraphProperties() map[string]any
}

// Batch returns the owning batch id.
func (b *PoolEntityBase) Batch() ULID { return b.BatchID }

// Rights returns the governing rights record id.
func (b *PoolEntityBase) Rights() ULID { return b.RightsID }

// Repr returns the canonical representative text.
func (b *PoolEntityBase) Repr() string { return b.ReprText }

func (b *PoolEntityBase) baseProperties() map[string]any {
	props := map[string]any{
		"repr_text": b.ReprText,
		"rights_id": b.RightsID.String(),
	}
	if b.ValidTimeStart != nil {
		props["valid_time_start"] = b.ValidTimeStart.UnixMilli()
	}
	if b.ValidTimeEnd != nil {
		props["valid_time_end"] = b.ValidTimeEnd.UnixMilli()
	}
	if !b.SourceItemID.IsZero() {
		props["source_item_id"] = b.SourceItemID.String()
	}
	return props
}

// Pool returns the pool label for Idea.
func (*Idea) Pool() PoolLabel { return PoolIdea }

// GraphProperties returns the node property map for Idea.
func (e *Idea) GraphProperties() map[string]any {
	props := e.baseProperties()
	props["label"] = e.Label
	if e.Description != "" {
		props["description"] = e.Description
	}
	return props
}

// Pool returns the pool label for Manifest.
func (*Manifest) Pool() PoolLabel { return PoolManifest }

// GraphProperties returns the node property map for Manifest.
func (e *Manifest) GraphProperties() map[string]any {
	props := e.baseProperties()
	props["label"] = e.Label
	if e.Type != "" {
		props["type"] = e.Type
	}
	if e.Year != nil {
		props["year"] = *e.Year
	}
	return props
}

// Pool returns the pool label for Experience.
func (*Experience) Pool() PoolLabel { return PoolExperience }

// GraphProperties returns the node property map for Experience.
func (e *Experience) GraphProperties() map[string]any {
	props := e.baseProperties()
	if e.AgentLabel != "" {
		props["agent_label"] = e.AgentLabel
	}
	if e.NarrativeText != "" {
		props["narrative_text"] = e.NarrativeText
	}
	if e.ObservedAt != nil {
		props["observed_at"] = e.ObservedAt.UnixMilli()
	}
	return props
}

// Pool returns the pool label for Relational.
func (*Relational) Pool() PoolLabel { return PoolRelational }

// GraphProperties returns the node property map for Relational.
func (e *Relational) GraphProperties() map[string]any {
	props := e.baseProperties()
	props["label"] = e.Label
	props["relation_type"] = string(e.RelationType)
	return props
}

// Pool returns the pool label for Evolutionary.
func (*Evolutionary) Pool() PoolLabel { return PoolEvolutionary }

// GraphProperties returns the node property map for Evolutionary.
func (e *Evolutionary) GraphProperties() map[string]any {
	props := e.baseProperties()
	props["label"] = e.Label
	if e.Version != "" {
		props["version"] = e.Version
	}
	return props
}

// Pool returns the pool label for Practical.
func (*Practical) Pool() PoolLabel { return PoolPractical }

// GraphProperties returns the node property map for Practical.
func (e *Practical) GraphProperties() map[string]any {
	props := e.baseProperties()
	props["label"] = e.Label
	props["steps"] = []string(e.Steps)
	return props
}

// Pool returns the pool label for Emanation.
func (*Emanation) Pool() PoolLabel { return PoolEmanation }

// GraphProperties returns the node property map for Emanation.
func (e *Emanation) GraphProperties() map[string]any {
	props := e.baseProperties()
	props["label"] = e.Label
	props["influence_type"] = string(e.InfluenceType)
	return props
}

// Pool returns the pool label for Actor.
func (*Actor) Pool() PoolLabel { return PoolActor }

// GraphProperties returns the node property map for Actor.
func (e *Actor) GraphProperties() map[string]any {
	props := e.baseProperties()
	props["label"] = e.Label
	if e.Role != "" {
		props["role"] = e.Role
	}
	return props
}

// Pool returns the pool label for Spatial.
func (*Spatial) Pool() PoolLabel { return PoolSpatial }

// GraphProperties returns the node property map for Spatial.
func (e *Spatial) GraphProperties() map[string]any {
	props := e.baseProperties()
	props["name"] = e.Name
	if e.Year != nil {
		props["year"] = *e.Year
	}
	return props
}

// Pool returns the pool label for Evidence.
func (*Evidence) Pool() PoolLabel { return PoolEvidence }

// GraphProperties returns the node property map for Evidence.
func (e *Evidence) GraphProperties() map[string]any {
	props := e.baseProperties()
	props["label"] = e.Label
	if e.Citation != "" {
		props["citation"] = e.Citation
	}
	return props
}

// Pool returns the pool label for Risk.
func (*Risk) Pool() PoolLabel { return PoolRisk }

// GraphProperties returns the node property map for Risk.
func (e *Risk) GraphProperties() map[string]any {
	props := e.baseProperties()
	props["label"] = e.Label
	if e.Severity != "" {
		props["severity"] = e.Severity
	}
	return props
}

// Pool returns the pool label for Method.
func (*Method) Pool() PoolLabel { return PoolMethod }

// GraphProperties returns the node property map for Method.
func (e *Method) GraphProperties() map[string]any {
	props := e.baseProperties()
	props["label"] = e.Label
	return props
}

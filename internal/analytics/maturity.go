package analytics

// MaturityLevel is the discrete M0-M6 label summarizing how far a batch has
// progressed toward a fully literate knowledge graph.
type MaturityLevel int

const (
	// M0Empty is a batch with no processed items.
	M0Empty MaturityLevel = iota
	// M1RightsAssigned requires a rights record and completed triage.
	M1RightsAssigned
	// M2LexiconExtracted requires at least one canonical term.
	M2LexiconExtracted
	// M3EntitiesIdentified requires at least one pool entity.
	M3EntitiesIdentified
	// M4GraphAssembled requires at least one graph node.
	M4GraphAssembled
	// M5EmbeddingsComplete requires at least one persisted embedding.
	M5EmbeddingsComplete
	// M6FullyLiterate requires M5 plus a literacy score of 70 or more.
	M6FullyLiterate
)

// FullyLiterateScore is the minimum literacy score for M6.
const FullyLiterateScore = 70.0

var maturityNames = map[MaturityLevel]string{
	M0Empty:              "M0_empty",
	M1RightsAssigned:     "M1_rights_assigned",
	M2LexiconExtracted:   "M2_lexicon_extracted",
	M3EntitiesIdentified: "M3_entities_identified",
	M4GraphAssembled:     "M4_graph_assembled",
	M5EmbeddingsComplete: "M5_embeddings_complete",
	M6FullyLiterate:      "M6_fully_literate",
}

// String returns the maturity level identifier.
func (l MaturityLevel) String() string {
	if name, ok := maturityNames[l]; ok {
		return name
	}
	return "M_unknown"
}

// Snapshot carries the counts maturity assessment runs on. Callers fill it
// from the relational store and the batch graph.
type Snapshot struct {
	Items           int64
	TriageCompleted int64
	RightsRecords   int64
	LexiconTerms    int64
	PoolEntities    int64
	GraphNodes      int64
	Embeddings      int64
	LiteracyScore   float64
}

// AssessMaturity returns the highest level the snapshot satisfies. Levels
// are monotone: each requires every level below it.
func AssessMaturity(s Snapshot) MaturityLevel {
	level := M0Empty
	if s.RightsRecords < 1 || s.TriageCompleted < 1 {
		return level
	}
	level = M1RightsAssigned
	if s.LexiconTerms < 1 {
		return level
	}
	level = M2LexiconExtracted
	if s.PoolEntities < 1 {
		return level
	}
	level = M3EntitiesIdentified
	if s.GraphNodes < 1 {
		return level
	}
	level = M4GraphAssembled
	if s.Embeddings < 1 {
		return level
	}
	level = M5EmbeddingsComplete
	if s.LiteracyScore < FullyLiterateScore {
		return level
	}
	return M6FullyLiterate
}

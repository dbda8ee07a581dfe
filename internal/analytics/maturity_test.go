package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssessMaturityLadder(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want MaturityLevel
	}{
		{"empty batch", Snapshot{Items: 3}, M0Empty},
		{"rights without triage", Snapshot{Items: 3, RightsRecords: 3}, M0Empty},
		{"triaged with rights", Snapshot{Items: 3, TriageCompleted: 3, RightsRecords: 3}, M1RightsAssigned},
		{"lexicon extracted", Snapshot{Items: 3, TriageCompleted: 3, RightsRecords: 3, LexiconTerms: 12}, M2LexiconExtracted},
		{"entities identified", Snapshot{Items: 3, TriageCompleted: 3, RightsRecords: 3, LexiconTerms: 12, PoolEntities: 40}, M3EntitiesIdentified},
		{"graph assembled", Snapshot{Items: 3, TriageCompleted: 3, RightsRecords: 3, LexiconTerms: 12, PoolEntities: 40, GraphNodes: 38}, M4GraphAssembled},
		{"embeddings complete", Snapshot{Items: 3, TriageCompleted: 3, RightsRecords: 3, LexiconTerms: 12, PoolEntities: 40, GraphNodes: 38, Embeddings: 38}, M5EmbeddingsComplete},
		{"literate below threshold", Snapshot{Items: 3, TriageCompleted: 3, RightsRecords: 3, LexiconTerms: 12, PoolEntities: 40, GraphNodes: 38, Embeddings: 38, LiteracyScore: 69.9}, M5EmbeddingsComplete},
		{"fully literate", Snapshot{Items: 3, TriageCompleted: 3, RightsRecords: 3, LexiconTerms: 12, PoolEntities: 40, GraphNodes: 38, Embeddings: 38, LiteracyScore: 70}, M6FullyLiterate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AssessMaturity(tt.snap))
		})
	}
}

func TestMaturityLevelString(t *testing.T) {
	assert.Equal(t, "M0_empty", M0Empty.String())
	assert.Equal(t, "M6_fully_literate", M6FullyLiterate.String())
	assert.Equal(t, "M_unknown", MaturityLevel(42).String())
}

// A higher level is never reached while a lower requirement is missing.
func TestAssessMaturityIsMonotone(t *testing.T) {
	snap := Snapshot{
		Items:           3,
		TriageCompleted: 3,
		RightsRecords:   3,
		PoolEntities:    40,
		GraphNodes:      38,
		Embeddings:      38,
		LiteracyScore:   95,
	}
	// Lexicon missing caps the level at M1 regardless of later counts.
	assert.Equal(t, M1RightsAssigned, AssessMaturity(snap))
}

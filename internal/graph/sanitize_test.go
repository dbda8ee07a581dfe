package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizePropertiesPrimitivesPassThrough(t *testing.T) {
	props, err := SanitizeProperties(map[string]any{
		"name":   "aqueduct",
		"year":   1843,
		"weight": 0.75,
		"active": true,
		"tags":   []string{"a", "b"},
	})
	require.NoError(t, err)

	assert.Equal(t, "aqueduct", props["name"])
	assert.Equal(t, 1843, props["year"])
	assert.Equal(t, 0.75, props["weight"])
	assert.Equal(t, true, props["active"])
	assert.Equal(t, []string{"a", "b"}, props["tags"])
}

func TestSanitizePropertiesUnsignedIntsStayNumeric(t *testing.T) {
	props, err := SanitizeProperties(map[string]any{
		"size_bytes": uint64(4096),
		"ordinal":    uint32(7),
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(4096), props["size_bytes"])
	assert.Equal(t, uint32(7), props["ordinal"])
}

func TestSanitizePropertiesTimesBecomeMillis(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	props, err := SanitizeProperties(map[string]any{"observed_at": at})
	require.NoError(t, err)
	assert.Equal(t, at.UnixMilli(), props["observed_at"])
}

func TestSanitizePropertiesNestedBecomesJSON(t *testing.T) {
	props, err := SanitizeProperties(map[string]any{
		"meta": map[string]any{"source": "scan", "page": 4},
	})
	require.NoError(t, err)

	s, ok := props["meta"].(string)
	require.True(t, ok, "nested map should serialize to a JSON string")
	assert.JSONEq(t, `{"source":"scan","page":4}`, s)
}

func TestSanitizePropertiesMixedSliceBecomesJSON(t *testing.T) {
	props, err := SanitizeProperties(map[string]any{
		"mixed": []any{"a", 1},
	})
	require.NoError(t, err)

	s, ok := props["mixed"].(string)
	require.True(t, ok)
	assert.JSONEq(t, `["a",1]`, s)
}

func TestSanitizePropertiesHomogeneousAnySlicePasses(t *testing.T) {
	props, err := SanitizeProperties(map[string]any{
		"steps": []any{"one", "two"},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"one", "two"}, props["steps"])
}

func TestSanitizePropertiesDropsNil(t *testing.T) {
	props, err := SanitizeProperties(map[string]any{
		"kept":    "x",
		"dropped": nil,
	})
	require.NoError(t, err)
	assert.NotContains(t, props, "dropped")
	assert.Contains(t, props, "kept")
}

func TestFoldKey(t *testing.T) {
	assert.Equal(t, "the grand tour", foldKey("  The   Grand\tTour "))
	assert.Equal(t, foldKey("Caffè"), foldKey("Caffè"))
	assert.Equal(t, "", foldKey("   "))
}

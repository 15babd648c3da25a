package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesFilter(t *testing.T) {
	value := map[string]any{
		"kind":  "note",
		"score": float64(7),
		"tag":   "alpha",
	}
	tests := []struct {
		name   string
		filter map[string]any
		want   bool
	}{
		{"bare value means eq", map[string]any{"kind": "note"}, true},
		{"bare value mismatch", map[string]any{"kind": "task"}, false},
		{"missing field", map[string]any{"ghost": "x"}, false},
		{"eq", map[string]any{"kind": map[string]any{"$eq": "note"}}, true},
		{"ne", map[string]any{"kind": map[string]any{"$ne": "task"}}, true},
		{"ne on missing field holds", map[string]any{"ghost": map[string]any{"$ne": "x"}}, true},
		{"gt", map[string]any{"score": map[string]any{"$gt": 5}}, true},
		{"gte boundary", map[string]any{"score": map[string]any{"$gte": 7}}, true},
		{"lt fails", map[string]any{"score": map[string]any{"$lt": 7}}, false},
		{"lte boundary", map[string]any{"score": map[string]any{"$lte": 7}}, true},
		{"in", map[string]any{"tag": map[string]any{"$in": []any{"alpha", "beta"}}}, true},
		{"nin", map[string]any{"tag": map[string]any{"$nin": []any{"beta"}}}, true},
		{"nin excludes", map[string]any{"tag": map[string]any{"$nin": []any{"alpha"}}}, false},
		{"numeric eq across types", map[string]any{"score": 7}, true},
		{"multiple operators", map[string]any{"score": map[string]any{"$gt": 5, "$lt": 10}}, true},
		{"multiple fields", map[string]any{"kind": "note", "score": map[string]any{"$gte": 7}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatchesFilter(value, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchesFilterErrors(t *testing.T) {
	_, err := MatchesFilter(map[string]any{"a": 1}, map[string]any{
		"a": map[string]any{"$unknown": 1},
	})
	require.Error(t, err)

	_, err = MatchesFilter(map[string]any{"a": 1}, map[string]any{
		"a": map[string]any{"$in": "not-a-list"},
	})
	require.Error(t, err)
}

func TestValidateNamespace(t *testing.T) {
	assert.NoError(t, ValidateNamespace([]string{"users", "alice"}))
	assert.Error(t, ValidateNamespace(nil))
	assert.Error(t, ValidateNamespace([]string{""}))
	assert.Error(t, ValidateNamespace([]string{"a.b"}))
	assert.Error(t, ValidateNamespace([]string{ReservedNamespaceRoot, "x"}))
}

package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchain-ai/langgraph-go/store"
)

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	items := []struct {
		ns    []string
		key   string
		value map[string]any
	}{
		{[]string{"users", "alice"}, "profile", map[string]any{"name": "Alice", "age": 30}},
		{[]string{"users", "alice"}, "prefs", map[string]any{"theme": "dark"}},
		{[]string{"users", "bob"}, "profile", map[string]any{"name": "Bob", "age": 41}},
		{[]string{"docs"}, "readme", map[string]any{"text": "graph runtime with checkpoints"}},
		{[]string{"docs"}, "guide", map[string]any{"text": "how to resume a graph run"}},
	}
	for _, it := range items {
		require.NoError(t, store.Put(ctx, s, it.ns, it.key, it.value))
	}
}

func TestGetPutDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, s, []string{"users"}, "k", map[string]any{"v": 1}))

	item, err := store.Get(ctx, s, []string{"users"}, "k")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, map[string]any{"v": 1}, item.Value)
	assert.False(t, item.CreatedAt.IsZero())

	// Replacing keeps created_at and bumps updated_at.
	require.NoError(t, store.Put(ctx, s, []string{"users"}, "k", map[string]any{"v": 2}))
	updated, err := store.Get(ctx, s, []string{"users"}, "k")
	require.NoError(t, err)
	assert.Equal(t, item.CreatedAt, updated.CreatedAt)
	assert.False(t, updated.UpdatedAt.Before(item.UpdatedAt))

	require.NoError(t, store.Delete(ctx, s, []string{"users"}, "k"))
	gone, err := store.Get(ctx, s, []string{"users"}, "k")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestGetRejectsInvalidNamespace(t *testing.T) {
	s := New()
	_, err := s.Batch(context.Background(), []store.Op{
		store.GetOp{Namespace: []string{store.ReservedNamespaceRoot}, Key: "k"},
	})
	require.Error(t, err)
}

func TestSearchByPrefixAndFilter(t *testing.T) {
	s := New()
	seed(t, s)
	ctx := context.Background()

	// Prefix covers nested namespaces.
	items, err := store.Search(ctx, s, store.SearchOp{NamespacePrefix: []string{"users"}})
	require.NoError(t, err)
	assert.Len(t, items, 3)

	// Exact nested namespace.
	items, err = store.Search(ctx, s, store.SearchOp{NamespacePrefix: []string{"users", "bob"}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "profile", items[0].Key)

	// Filter with operators.
	items, err = store.Search(ctx, s, store.SearchOp{
		NamespacePrefix: []string{"users"},
		Filter:          map[string]any{"age": map[string]any{"$gte": 40}},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Bob", items[0].Value["name"])
}

func TestSearchQueryScoring(t *testing.T) {
	s := New()
	seed(t, s)

	items, err := store.Search(context.Background(), s, store.SearchOp{
		NamespacePrefix: []string{"docs"},
		Query:           "graph resume",
	})
	require.NoError(t, err)
	require.NotEmpty(t, items)
	for _, item := range items {
		require.NotNil(t, item.Score)
		assert.Greater(t, *item.Score, float64(0))
	}
}

func TestSearchPagination(t *testing.T) {
	s := New()
	seed(t, s)
	ctx := context.Background()

	page1, err := store.Search(ctx, s, store.SearchOp{
		NamespacePrefix: []string{"users"}, Limit: 2,
	})
	require.NoError(t, err)
	assert.Len(t, page1, 2)

	page2, err := store.Search(ctx, s, store.SearchOp{
		NamespacePrefix: []string{"users"}, Limit: 2, Offset: 2,
	})
	require.NoError(t, err)
	assert.Len(t, page2, 1)

	empty, err := store.Search(ctx, s, store.SearchOp{
		NamespacePrefix: []string{"users"}, Offset: 99,
	})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestListNamespaces(t *testing.T) {
	s := New()
	seed(t, s)
	ctx := context.Background()

	paths, err := store.ListNamespaces(ctx, s, store.ListNamespacesOp{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"docs"},
		{"users", "alice"},
		{"users", "bob"},
	}, paths)

	// MaxDepth truncates and deduplicates.
	paths, err = store.ListNamespaces(ctx, s, store.ListNamespacesOp{MaxDepth: 1})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"docs"}, {"users"}}, paths)

	// Prefix condition with wildcard.
	paths, err = store.ListNamespaces(ctx, s, store.ListNamespacesOp{
		MatchConditions: []store.MatchCondition{
			{MatchType: store.MatchTypePrefix, Path: []string{"users", "*"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"users", "alice"}, {"users", "bob"}}, paths)

	// Suffix condition.
	paths, err = store.ListNamespaces(ctx, s, store.ListNamespacesOp{
		MatchConditions: []store.MatchCondition{
			{MatchType: store.MatchTypeSuffix, Path: []string{"bob"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"users", "bob"}}, paths)
}

func TestBatchMixedOps(t *testing.T) {
	s := New()
	ctx := context.Background()

	results, err := s.Batch(ctx, []store.Op{
		store.PutOp{Namespace: []string{"ns"}, Key: "a", Value: map[string]any{"v": 1}},
		store.PutOp{Namespace: []string{"ns"}, Key: "b", Value: map[string]any{"v": 2}},
		store.GetOp{Namespace: []string{"ns"}, Key: "a"},
		store.SearchOp{NamespacePrefix: []string{"ns"}},
		store.ListNamespacesOp{},
	})
	require.NoError(t, err)
	require.Len(t, results, 5)

	item := results[2].(*store.Item)
	assert.Equal(t, map[string]any{"v": 1}, item.Value)
	assert.Len(t, results[3].([]*store.Item), 2)
	assert.Equal(t, [][]string{{"ns"}}, results[4].([][]string))
}

// Package inmemory provides the reference in-memory Store backend with
// filterable search and namespace listing.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/langchain-ai/langgraph-go/store"
)

const namespaceJoiner = "\x1f"

// Store is an in-memory implementation of store.Store. Query scoring is
// naive token overlap, which is enough for tests and small deployments.
type Store struct {
	mu    sync.RWMutex
	items map[string]map[string]*store.Item // joined namespace -> key -> item
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{items: make(map[string]map[string]*store.Item)}
}

// Batch executes the operations in order and returns index-aligned
// results.
func (s *Store) Batch(ctx context.Context, ops []store.Op) ([]any, error) {
	results := make([]any, len(ops))
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch o := op.(type) {
		case store.GetOp:
			item, err := s.get(o)
			if err != nil {
				return nil, err
			}
			results[i] = item
		case store.PutOp:
			if err := s.put(o); err != nil {
				return nil, err
			}
			results[i] = nil
		case store.SearchOp:
			items, err := s.search(o)
			if err != nil {
				return nil, err
			}
			results[i] = items
		case store.ListNamespacesOp:
			paths, err := s.listNamespaces(o)
			if err != nil {
				return nil, err
			}
			results[i] = paths
		default:
			return nil, fmt.Errorf("unsupported operation type %T", op)
		}
	}
	return results, nil
}

func joinNamespace(namespace []string) string {
	return strings.Join(namespace, namespaceJoiner)
}

func splitNamespace(joined string) []string {
	return strings.Split(joined, namespaceJoiner)
}

func (s *Store) get(op store.GetOp) (*store.Item, error) {
	if err := store.ValidateNamespace(op.Namespace); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[joinNamespace(op.Namespace)][op.Key]
	if !ok {
		return nil, nil
	}
	clone := *item
	return &clone, nil
}

func (s *Store) put(op store.PutOp) error {
	if err := store.ValidateNamespace(op.Namespace); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := joinNamespace(op.Namespace)
	if op.Value == nil {
		if keyed, ok := s.items[ns]; ok {
			delete(keyed, op.Key)
			if len(keyed) == 0 {
				delete(s.items, ns)
			}
		}
		return nil
	}
	now := time.Now().UTC()
	keyed, ok := s.items[ns]
	if !ok {
		keyed = make(map[string]*store.Item)
		s.items[ns] = keyed
	}
	created := now
	if existing, ok := keyed[op.Key]; ok {
		created = existing.CreatedAt
	}
	keyed[op.Key] = &store.Item{
		Namespace: append([]string(nil), op.Namespace...),
		Key:       op.Key,
		Value:     op.Value,
		CreatedAt: created,
		UpdatedAt: now,
	}
	return nil
}

func (s *Store) search(op store.SearchOp) ([]*store.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := op.Limit
	if limit <= 0 {
		limit = store.DefaultSearchLimit
	}
	prefix := joinNamespace(op.NamespacePrefix)

	var matched []*store.Item
	for ns, keyed := range s.items {
		if prefix != "" && ns != prefix && !strings.HasPrefix(ns, prefix+namespaceJoiner) {
			continue
		}
		for _, item := range keyed {
			if op.Filter != nil {
				ok, err := store.MatchesFilter(item.Value, op.Filter)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
			}
			clone := *item
			if op.Query != "" {
				score := scoreQuery(item.Value, op.Query)
				if score <= 0 {
					continue
				}
				clone.Score = &score
			}
			matched = append(matched, &clone)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if op.Query != "" && matched[i].Score != nil && matched[j].Score != nil && *matched[i].Score != *matched[j].Score {
			return *matched[i].Score > *matched[j].Score
		}
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].Key < matched[j].Key
	})

	if op.Offset >= len(matched) {
		return []*store.Item{}, nil
	}
	matched = matched[op.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// scoreQuery counts query token occurrences across the value's string
// fields.
func scoreQuery(value map[string]any, query string) float64 {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return 0
	}
	var text strings.Builder
	for _, v := range value {
		if s, ok := v.(string); ok {
			text.WriteString(strings.ToLower(s))
			text.WriteByte(' ')
		}
	}
	haystack := text.String()
	var score float64
	for _, token := range tokens {
		score += float64(strings.Count(haystack, token))
	}
	return score
}

func (s *Store) listNamespaces(op store.ListNamespacesOp) ([][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := op.Limit
	if limit <= 0 {
		limit = store.DefaultListNamespacesLimit
	}

	seen := make(map[string]bool)
	var paths [][]string
	for ns := range s.items {
		path := splitNamespace(ns)
		if !matchesConditions(path, op.MatchConditions) {
			continue
		}
		if op.MaxDepth > 0 && len(path) > op.MaxDepth {
			path = path[:op.MaxDepth]
		}
		key := joinNamespace(path)
		if seen[key] {
			continue
		}
		seen[key] = true
		paths = append(paths, path)
	}
	sort.Slice(paths, func(i, j int) bool {
		return joinNamespace(paths[i]) < joinNamespace(paths[j])
	})

	if op.Offset >= len(paths) {
		return [][]string{}, nil
	}
	paths = paths[op.Offset:]
	if len(paths) > limit {
		paths = paths[:limit]
	}
	return paths, nil
}

func matchesConditions(path []string, conditions []store.MatchCondition) bool {
	for _, cond := range conditions {
		switch cond.MatchType {
		case store.MatchTypePrefix:
			if !matchSegments(path, cond.Path, true) {
				return false
			}
		case store.MatchTypeSuffix:
			if !matchSegments(path, cond.Path, false) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func matchSegments(path, pattern []string, fromStart bool) bool {
	if len(pattern) > len(path) {
		return false
	}
	offset := 0
	if !fromStart {
		offset = len(path) - len(pattern)
	}
	for i, want := range pattern {
		if want == "*" {
			continue
		}
		if path[offset+i] != want {
			return false
		}
	}
	return true
}

// Package store defines the batched key-value store protocol used for
// long-term memory alongside the graph runtime. Backends implement a
// single Batch entry point; the operation variants are distinguished by
// which fields are present.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Defaults and reserved names.
const (
	// DefaultSearchLimit is the default page size for search operations.
	DefaultSearchLimit = 10
	// DefaultListNamespacesLimit is the default page size for namespace
	// listings.
	DefaultListNamespacesLimit = 100
	// ReservedNamespaceRoot may not begin user namespaces; it is kept for
	// administrative data.
	ReservedNamespaceRoot = "langgraph"
)

// Item is one stored record.
type Item struct {
	// Namespace is the hierarchical path the item lives under.
	Namespace []string `json:"namespace"`
	// Key identifies the item within its namespace.
	Key string `json:"key"`
	// Value is the stored document.
	Value map[string]any `json:"value"`
	// CreatedAt is when the item was first stored.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the item was last replaced.
	UpdatedAt time.Time `json:"updated_at"`
	// Score ranks the item for query searches; nil otherwise.
	Score *float64 `json:"score,omitempty"`
}

// Op is one store operation. Implementations are GetOp, PutOp, SearchOp,
// and ListNamespacesOp.
type Op interface{ isOp() }

// GetOp fetches a single item; the result is *Item or nil.
type GetOp struct {
	Namespace []string
	Key       string
}

// PutOp stores, replaces, or deletes an item. A nil Value deletes. Index
// selects which value paths feed the backend's search index: nil uses the
// backend's declared defaults, false suppresses indexing, and a []string
// overrides the indexed paths.
type PutOp struct {
	Namespace []string
	Key       string
	Value     map[string]any
	Index     any
}

// SearchOp lists items under a namespace prefix, optionally filtered and
// scored against a query. The result is []*Item.
type SearchOp struct {
	NamespacePrefix []string
	Filter          map[string]any
	Query           string
	Limit           int
	Offset          int
}

// MatchType selects how a namespace match condition anchors.
type MatchType string

const (
	// MatchTypePrefix anchors the condition at the namespace start.
	MatchTypePrefix MatchType = "prefix"
	// MatchTypeSuffix anchors the condition at the namespace end.
	MatchTypeSuffix MatchType = "suffix"
)

// MatchCondition constrains namespace listings. The wildcard "*" matches
// any single segment.
type MatchCondition struct {
	MatchType MatchType
	Path      []string
}

// ListNamespacesOp lists distinct namespace paths. The result is
// [][]string.
type ListNamespacesOp struct {
	MatchConditions []MatchCondition
	MaxDepth        int
	Limit           int
	Offset          int
}

func (GetOp) isOp()            {}
func (PutOp) isOp()            {}
func (SearchOp) isOp()         {}
func (ListNamespacesOp) isOp() {}

// Store is the backend contract: execute a batch of operations and return
// one result per operation, index-aligned. Backends may reorder internal
// execution but must not change observable per-operation semantics.
type Store interface {
	Batch(ctx context.Context, ops []Op) ([]any, error)
}

// ValidateNamespace checks a namespace path: non-empty, no empty
// segments, no reserved "." characters, and not rooted at the
// administrative label.
func ValidateNamespace(namespace []string) error {
	if len(namespace) == 0 {
		return fmt.Errorf("namespace must not be empty")
	}
	for _, segment := range namespace {
		if segment == "" {
			return fmt.Errorf("namespace segments must not be empty")
		}
		if strings.Contains(segment, ".") {
			return fmt.Errorf("namespace segment %q contains reserved character '.'", segment)
		}
	}
	if namespace[0] == ReservedNamespaceRoot {
		return fmt.Errorf("namespace must not begin with reserved label %q", ReservedNamespaceRoot)
	}
	return nil
}

// Get is a convenience wrapper executing a single GetOp.
func Get(ctx context.Context, s Store, namespace []string, key string) (*Item, error) {
	results, err := s.Batch(ctx, []Op{GetOp{Namespace: namespace, Key: key}})
	if err != nil {
		return nil, err
	}
	if item, ok := results[0].(*Item); ok {
		return item, nil
	}
	return nil, nil
}

// Put is a convenience wrapper executing a single PutOp.
func Put(ctx context.Context, s Store, namespace []string, key string, value map[string]any) error {
	_, err := s.Batch(ctx, []Op{PutOp{Namespace: namespace, Key: key, Value: value}})
	return err
}

// Delete is a convenience wrapper removing one item.
func Delete(ctx context.Context, s Store, namespace []string, key string) error {
	_, err := s.Batch(ctx, []Op{PutOp{Namespace: namespace, Key: key, Value: nil}})
	return err
}

// Search is a convenience wrapper executing a single SearchOp.
func Search(ctx context.Context, s Store, op SearchOp) ([]*Item, error) {
	results, err := s.Batch(ctx, []Op{op})
	if err != nil {
		return nil, err
	}
	if items, ok := results[0].([]*Item); ok {
		return items, nil
	}
	return nil, nil
}

// ListNamespaces is a convenience wrapper executing a single
// ListNamespacesOp.
func ListNamespaces(ctx context.Context, s Store, op ListNamespacesOp) ([][]string, error) {
	results, err := s.Batch(ctx, []Op{op})
	if err != nil {
		return nil, err
	}
	if paths, ok := results[0].([][]string); ok {
		return paths, nil
	}
	return nil, nil
}

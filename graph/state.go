package graph

import (
	"reflect"
	"sync"
)

// State represents the data that flows through the graph. Each field is
// backed by a channel in the compiled graph, so updates follow the field's
// declared update rule.
type State map[string]any

// Clone creates a shallow copy of the state. Values are shared; use
// DeepCopyState when isolation is required.
func (s State) Clone() State {
	clone := make(State, len(s))
	for k, v := range s {
		clone[k] = v
	}
	return clone
}

// DeepCopyState returns a structural copy of the state with no shared
// compound values.
func DeepCopyState(s State) State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = deepCopy(v)
	}
	return out
}

// StateReducer combines an existing field value with an update. Reducers
// must be pure: the planner may replay them when resuming from a
// checkpoint.
type StateReducer func(existing, update any) any

// DefaultReducer replaces the existing value with the update.
func DefaultReducer(existing, update any) any {
	if update == nil {
		return existing
	}
	return update
}

// AppendReducer appends update values to an existing slice. Both the
// existing value and the update may be a single element or a slice.
func AppendReducer(existing, update any) any {
	if update == nil {
		return existing
	}
	out := toAnySlice(existing)
	out = append(out, toAnySlice(update)...)
	return out
}

// StringSliceReducer appends string updates to an existing []string.
func StringSliceReducer(existing, update any) any {
	if update == nil {
		return existing
	}
	var out []string
	if cur, ok := existing.([]string); ok {
		out = append(out, cur...)
	}
	switch u := update.(type) {
	case string:
		out = append(out, u)
	case []string:
		out = append(out, u...)
	case []any:
		for _, v := range u {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// MergeReducer merges update map entries into the existing map.
func MergeReducer(existing, update any) any {
	if update == nil {
		return existing
	}
	out := make(map[string]any)
	if cur, ok := existing.(map[string]any); ok {
		for k, v := range cur {
			out[k] = v
		}
	}
	if upd, ok := update.(map[string]any); ok {
		for k, v := range upd {
			out[k] = v
		}
	}
	return out
}

func toAnySlice(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, len(t))
		copy(out, t)
		return out
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice {
			out := make([]any, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				out[i] = rv.Index(i).Interface()
			}
			return out
		}
		return []any{v}
	}
}

// StateField describes one field of the state schema.
type StateField struct {
	// Type is the expected Go type of the field. It is descriptive only:
	// the runtime does not check values against it.
	Type reflect.Type
	// Reducer combines existing and incoming values. A nil reducer means
	// last-write-wins, and concurrent writes in one step are rejected.
	Reducer StateReducer
	// Default produces the field's initial value when the first update
	// arrives and nothing was restored from a checkpoint.
	Default func() any
	// Required marks fields that must be present in the run input.
	Required bool
}

// StateSchema declares the fields of the graph state and how updates to
// them combine. The compiled graph derives one channel per field.
type StateSchema struct {
	mu     sync.RWMutex
	fields map[string]StateField
}

// NewStateSchema creates an empty state schema.
func NewStateSchema() *StateSchema {
	return &StateSchema{fields: make(map[string]StateField)}
}

// AddField declares a field. It returns the schema for chaining.
func (s *StateSchema) AddField(name string, field StateField) *StateSchema {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields[name] = field
	return s
}

// Field returns the declaration of a field.
func (s *StateSchema) Field(name string) (StateField, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.fields[name]
	return f, ok
}

// FieldNames returns the declared field names.
func (s *StateSchema) FieldNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	return names
}

// ApplyUpdate folds an update into the current state using the declared
// reducers. Unknown fields are applied last-write-wins so ad hoc scratch
// values still flow through.
func (s *StateSchema) ApplyUpdate(current, update State) State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := current.Clone()
	for key, value := range update {
		field, declared := s.fields[key]
		if declared && field.Reducer != nil {
			existing, ok := out[key]
			if !ok && field.Default != nil {
				existing = field.Default()
			}
			out[key] = field.Reducer(existing, value)
			continue
		}
		out[key] = value
	}
	return out
}

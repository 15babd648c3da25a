package store

import (
	"fmt"
	"reflect"
)

// Filter operators accepted in search filter values. A bare value (no
// operator map) means $eq.
const (
	OpEq  = "$eq"
	OpNe  = "$ne"
	OpGt  = "$gt"
	OpGte = "$gte"
	OpLt  = "$lt"
	OpLte = "$lte"
	OpIn  = "$in"
	OpNin = "$nin"
)

// MatchesFilter reports whether the value satisfies every filter entry.
// Filter keys address top-level fields of the stored value.
func MatchesFilter(value map[string]any, filter map[string]any) (bool, error) {
	for field, want := range filter {
		got, present := value[field]
		ops, isOps := asOperatorMap(want)
		if !isOps {
			if !present || !looseEqual(got, want) {
				return false, nil
			}
			continue
		}
		for op, operand := range ops {
			ok, err := applyOperator(op, got, present, operand)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

// asOperatorMap reports whether the filter value is an operator map, i.e.
// a map whose keys all start with '$'.
func asOperatorMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if len(k) == 0 || k[0] != '$' {
			return nil, false
		}
	}
	return m, true
}

func applyOperator(op string, got any, present bool, operand any) (bool, error) {
	switch op {
	case OpEq:
		return present && looseEqual(got, operand), nil
	case OpNe:
		return !present || !looseEqual(got, operand), nil
	case OpGt, OpGte, OpLt, OpLte:
		if !present {
			return false, nil
		}
		cmp, ok := compareValues(got, operand)
		if !ok {
			return false, nil
		}
		switch op {
		case OpGt:
			return cmp > 0, nil
		case OpGte:
			return cmp >= 0, nil
		case OpLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case OpIn:
		list, err := operandList(op, operand)
		if err != nil {
			return false, err
		}
		if !present {
			return false, nil
		}
		for _, candidate := range list {
			if looseEqual(got, candidate) {
				return true, nil
			}
		}
		return false, nil
	case OpNin:
		list, err := operandList(op, operand)
		if err != nil {
			return false, err
		}
		if !present {
			return true, nil
		}
		for _, candidate := range list {
			if looseEqual(got, candidate) {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("unsupported filter operator %q", op)
	}
}

func operandList(op string, operand any) ([]any, error) {
	switch list := operand.(type) {
	case []any:
		return list, nil
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("operator %s requires a list operand, got %T", op, operand)
	}
}

// looseEqual compares values across JSON-ish numeric types.
func looseEqual(a, b any) bool {
	if an, aok := toNumber(a); aok {
		if bn, bok := toNumber(b); bok {
			return an == bn
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two values when both are numbers or both strings.
func compareValues(a, b any) (int, bool) {
	if an, aok := toNumber(a); aok {
		bn, bok := toNumber(b)
		if !bok {
			return 0, false
		}
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case as < bs:
		return -1, true
	case as > bs:
		return 1, true
	default:
		return 0, true
	}
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

package liveq

import (
	"fmt"
	"sort"
	"strings"
)

// sortSpec is a parsed sort parameter: one field with a direction.
type sortSpec struct {
	field string
	desc  bool
}

// parseSortSpec reads a sort parameter of the form "field", "+field" or
// "-field". The second return is false when the spec is empty, which
// disables local re-sorting.
func parseSortSpec(s string) (sortSpec, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return sortSpec{}, false
	}
	switch s[0] {
	case '-':
		return sortSpec{field: s[1:], desc: true}, s[1:] != ""
	case '+':
		return sortSpec{field: s[1:]}, s[1:] != ""
	default:
		return sortSpec{field: s}, true
	}
}

// sortRecords orders items by the spec, in place. The sort is stable, so
// records whose keys compare equal keep their relative order.
func sortRecords(items []Record, spec sortSpec) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i][spec.field], items[j][spec.field]
		if spec.desc {
			a, b = b, a
		}
		return compareValues(a, b) < 0
	})
}

// compareValues compares two field values: two numbers compare numerically,
// two strings lexically, and every other pairing falls back to comparing
// both sides coerced to strings.
func compareValues(a, b any) int {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	} else if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return strings.Compare(as, bs)
		}
	}
	return strings.Compare(coerce(a), coerce(b))
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func coerce(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

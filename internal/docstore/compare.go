package docstore

import (
	"fmt"
	"reflect"
	"time"
)

type timer interface {
	Time() time.Time
}

// compareValues orders two field values of the same kind. Mixed or unknown
// kinds fall back to their string form; nil sorts first.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}

	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case timer:
		return t.Time(), true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
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

// equalValues reports whether a stored value matches a query value exactly.
func equalValues(stored, want any) bool {
	if stored == nil || want == nil {
		return stored == nil && want == nil
	}
	if fa, ok := asFloat(stored); ok {
		fb, ok := asFloat(want)
		return ok && fa == fb
	}
	if ta, ok := stored.(time.Time); ok {
		tb, ok := want.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(stored, want)
}

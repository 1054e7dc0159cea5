package docstore

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Match reports whether a decoded JSON document satisfies f. Backends that
// cannot push filters down to the database evaluate them with Match.
func Match(doc map[string]any, f Filter) bool {
	for field, want := range f {
		got, present := lookup(doc, field)
		switch w := want.(type) {
		case Gt:
			n, ok := toFloat(got)
			if !present || !ok || !(n > w.Value) {
				return false
			}
		case In:
			if !present {
				return false
			}
			hit := false
			for _, v := range w.Values {
				if contains(got, v) {
					hit = true
					break
				}
			}
			if !hit {
				return false
			}
		default:
			if !present {
				if want != nil {
					return false
				}
				continue
			}
			if !contains(got, want) {
				return false
			}
		}
	}
	return true
}

type decoded struct {
	body   []byte
	fields map[string]any
}

// apply filters, sorts and pages decoded documents according to q.
func apply(docs []decoded, q Query) []decoded {
	out := docs[:0]
	for _, d := range docs {
		if Match(d.fields, q.Filter) {
			out = append(out, d)
		}
	}
	if q.Sort != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a, _ := lookup(out[i].fields, q.Sort)
			b, _ := lookup(out[j].fields, q.Sort)
			c := compareValues(a, b)
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out
}

func lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// contains treats array fields as sets, scalar fields as single values.
func contains(got, want any) bool {
	if arr, ok := got.([]any); ok {
		for _, el := range arr {
			if scalarEqual(el, want) {
				return true
			}
		}
		return false
	}
	return scalarEqual(got, want)
}

func scalarEqual(got, want any) bool {
	got, want = normalize(got), normalize(want)
	if got == nil || want == nil {
		return got == nil && want == nil
	}
	return got == want
}

// normalize maps Go values onto the JSON value space: float64, string, bool, nil.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return normalize(rv.Elem().Interface())
	}
	return fmt.Sprint(v)
}

func toFloat(v any) (float64, bool) {
	f, ok := normalize(v).(float64)
	return f, ok
}

func compareValues(a, b any) int {
	a, b = normalize(a), normalize(b)
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case string:
		if bv, ok := b.(string); ok {
			return compareStrings(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// compareStrings orders RFC 3339 timestamps chronologically, since JSON
// encodes time.Time with a variable-length fraction.
func compareStrings(a, b string) int {
	ta, errA := time.Parse(time.RFC3339Nano, a)
	tb, errB := time.Parse(time.RFC3339Nano, b)
	if errA == nil && errB == nil {
		return ta.Compare(tb)
	}
	return strings.Compare(a, b)
}

package revision

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Change is one differing path with the value on each side.
type Change struct {
	Path     string      `json:"path"`
	Original interface{} `json:"original,omitempty"`
	Current  interface{} `json:"current,omitempty"`
}

// Diff returns the sorted subset of paths whose values differ between
// original and current under Equal. With no paths, every leaf path present in
// either record is compared. Swapping the records gives the same result.
func Diff(original, current Record, paths []string) []string {
	changes := Compare(original, current, paths)
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.Path
	}
	return out
}

// Compare is Diff with the differing values attached.
func Compare(original, current Record, paths []string) []Change {
	if len(paths) == 0 {
		paths = unionPaths(original, current)
	}
	seen := make(map[string]bool, len(paths))
	var out []Change
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		a, _ := Lookup(original, p)
		b, _ := Lookup(current, p)
		if !Equal(a, b) {
			out = append(out, Change{Path: p, Original: a, Current: b})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	if out == nil {
		out = []Change{}
	}
	return out
}

func unionPaths(a, b Record) []string {
	set := make(map[string]bool)
	for _, p := range Paths(a) {
		set[p] = true
	}
	for _, p := range Paths(b) {
		set[p] = true
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}

// Equal compares two values loosely, the way form fields round-trip:
//
//   - nil, a missing value, "" and empty lists or maps are all equal;
//   - if both sides read as finite numbers (numeric types, json.Number or
//     numeric strings after trimming spaces) they compare numerically, so
//     "120" equals 120.0;
//   - maps and lists compare element by element with these same rules;
//   - anything else, bools included, compares by its fmt.Sprint form, so
//     true equals "true".
//
// Equal is symmetric.
func Equal(a, b interface{}) bool {
	ea, eb := isEmpty(a), isEmpty(b)
	if ea || eb {
		return ea && eb
	}

	if na, ok := toNumber(a); ok {
		if nb, ok := toNumber(b); ok {
			return na.Equal(nb)
		}
	}

	ma, aMap := toMap(a)
	mb, bMap := toMap(b)
	if aMap || bMap {
		if !(aMap && bMap) {
			return false
		}
		for k := range union(ma, mb) {
			if !Equal(ma[k], mb[k]) {
				return false
			}
		}
		return true
	}

	la, aList := toList(a)
	lb, bList := toList(b)
	if aList || bList {
		if !(aList && bList) || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !Equal(la[i], lb[i]) {
				return false
			}
		}
		return true
	}

	return fmt.Sprint(deref(a)) == fmt.Sprint(deref(b))
}

func isEmpty(v interface{}) bool {
	v = deref(v)
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

// deref unwraps pointers so *string and string compare alike.
func deref(v interface{}) interface{} {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func toNumber(v interface{}) (decimal.Decimal, bool) {
	v = deref(v)
	switch t := v.(type) {
	case decimal.Decimal:
		return t, true
	case json.Number:
		return parseNumber(string(t))
	case string:
		return parseNumber(t)
	case float64:
		return fromFloat(t)
	case float32:
		return fromFloat(float64(t))
	case bool:
		return decimal.Decimal{}, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return decimal.NewFromInt(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(rv.Uint()), 0), true
	case reflect.String:
		return parseNumber(rv.String())
	}
	return decimal.Decimal{}, false
}

func parseNumber(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func fromFloat(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromFloat(f), true
}

func toMap(v interface{}) (map[string]interface{}, bool) {
	v = deref(v)
	if m, ok := asMap(v); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]interface{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

func toList(v interface{}) ([]interface{}, bool) {
	v = deref(v)
	if l, ok := v.([]interface{}); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
	case reflect.Array:
		// Fixed-size ids such as uuid.UUID are scalars.
		if _, ok := v.(fmt.Stringer); ok {
			return nil, false
		}
	default:
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func union(a, b map[string]interface{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

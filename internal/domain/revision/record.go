// Package revision detects which fields of a request changed between the
// version a user opened and the version they are about to save.
package revision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Record is a request rendered as nested maps, e.g. from JSON.
type Record map[string]interface{}

// FromStruct converts any JSON-serialisable value into a Record. Numbers are
// kept as json.Number so no precision is lost before comparison.
func FromStruct(v interface{}) (Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var r Record
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}

// Snapshot deep-copies r. Later changes to r never reach the copy.
func Snapshot(r Record) Record {
	if r == nil {
		return nil
	}
	return Record(copyMap(r))
}

func deepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case Record:
		return Record(copyMap(t))
	case map[string]interface{}:
		return copyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	}

	// Typed containers ([]map[string]interface{}, map[string][]string, ...)
	// are copied element by element, all the way down.
	if v == nil {
		return nil
	}
	return copyValue(reflect.ValueOf(v)).Interface()
}

func copyValue(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return rv
		}
		out := reflect.New(rv.Type()).Elem()
		out.Set(copyValue(rv.Elem()))
		return out
	case reflect.Slice:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(copyValue(rv.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(rv.Type()).Elem()
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(copyValue(rv.Index(i)))
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), copyValue(iter.Value()))
		}
		return out
	}
	return rv
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopy(v)
	}
	return out
}

// Lookup resolves a dotted path such as "dates.delivery". A numeric segment
// indexes into a list. Missing intermediate keys yield (nil, false).
func Lookup(r Record, path string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(r)
	for _, seg := range strings.Split(path, ".") {
		next, ok := child(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func child(v interface{}, key string) (interface{}, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		e := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !e.IsValid() {
			return nil, false
		}
		return e.Interface(), true
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= rv.Len() {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	}
	return nil, false
}

// Paths lists the dotted paths of every leaf in r, sorted. Lists are leaves.
func Paths(r Record) []string {
	var out []string
	collectPaths("", map[string]interface{}(r), &out)
	sort.Strings(out)
	return out
}

func collectPaths(prefix string, m map[string]interface{}, out *[]string) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if sub, ok := asMap(v); ok && len(sub) > 0 {
			collectPaths(path, sub, out)
			continue
		}
		*out = append(*out, path)
	}
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case Record:
		return t, true
	case map[string]interface{}:
		return t, true
	}
	return nil, false
}

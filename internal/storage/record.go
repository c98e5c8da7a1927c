package storage

import (
	"errors"
	"reflect"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// ErrNotFound is returned when a record id does not exist in its collection.
var ErrNotFound = errors.New("not found")

// ErrNoCollection is returned by a Backend when a collection has never been written.
var ErrNoCollection = errors.New("collection does not exist")

// timeLayout matches JavaScript's Date.prototype.toISOString.
const timeLayout = "2006-01-02T15:04:05.000Z"

// Record is one JSON object of a collection. Numbers read from disk are
// json.Number so they are written back exactly as they were read.
type Record map[string]any

// ID returns the record id as a string, whatever type it was stored with.
func (r Record) ID() string {
	return idString(r["id"])
}

// Clone returns a copy of r. Nested lists are copied too; nested objects are
// shared.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		switch vv := v.(type) {
		case []any:
			out[k] = append([]any(nil), vv...)
		case []string:
			out[k] = append([]string(nil), vv...)
		default:
			out[k] = v
		}
	}
	return out
}

// Matches reports whether every field in filter equals the same field of r.
func (r Record) Matches(filter map[string]any) bool {
	for k, want := range filter {
		got, ok := r[k]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func idString(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case json.Number:
		return vv.String()
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	case int:
		return strconv.Itoa(vv)
	case int64:
		return strconv.FormatInt(vv, 10)
	default:
		return ""
	}
}

func asFloat(v any) (float64, bool) {
	switch vv := v.(type) {
	case json.Number:
		f, err := vv.Float64()
		return f, err == nil
	case float64:
		return vv, true
	case float32:
		return float64(vv), true
	case int:
		return float64(vv), true
	case int64:
		return float64(vv), true
	default:
		return 0, false
	}
}

func valuesEqual(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// normalize maps typed slices onto []any so values decoded from disk compare
// equal to values built in Go.
func normalize(v any) any {
	if ss, ok := v.([]string); ok {
		out := make([]any, len(ss))
		for i, s := range ss {
			out[i] = s
		}
		return out
	}
	return v
}

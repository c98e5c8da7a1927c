// Package catalog describes the shape of every collection the API serves and
// turns loose request bodies into records the store can persist.
package catalog

import (
	"fmt"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/cinnamona/bakery/internal/storage"
)

// Kind is the JSON type a field is normalized to.
type Kind int

const (
	String Kind = iota
	Number
	Bool
	Strings
)

func (k Kind) String() string {
	switch k {
	case Number:
		return "a number"
	case Bool:
		return "a boolean"
	case Strings:
		return "a list of strings"
	default:
		return "a string"
	}
}

// Field describes one accepted field of a collection.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	// NonNegative rejects numbers below zero.
	NonNegative bool
	// OneOf restricts a string to a fixed set of values.
	OneOf []string
	// Validate is a validator tag applied to non-empty strings, e.g. "email".
	Validate string
	// Sep splits a string submitted for a Strings field. Defaults to ",".
	Sep     string
	Default any
}

// Schema is the accepted shape of one collection.
type Schema struct {
	Collection string
	// Label names a single record in messages, e.g. "Product not found".
	Label      string
	Fields     []Field
	PublicRead bool
	Singleton  bool
}

var validate = validator.New()

// Field returns the named field.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Shape validates input and returns the record to store. Unknown fields are
// dropped. With partial set only the fields present in input are checked and
// returned, as for an update; otherwise required fields must be present and
// defaults are filled in.
func (s Schema) Shape(input map[string]any, partial bool) (storage.Record, error) {
	out := storage.Record{}
	verr := &ValidationError{}
	for _, f := range s.Fields {
		raw, present := input[f.Name]
		if !present || raw == nil {
			if partial && !present {
				continue
			}
			if f.Required {
				verr.Add(f.Name, "is required")
				continue
			}
			if !partial && f.Default != nil {
				out[f.Name] = defaultValue(f.Default)
			}
			continue
		}

		v, err := f.coerce(raw)
		if err != nil {
			verr.Add(f.Name, err.Error())
			continue
		}
		if f.Required && blank(v) {
			verr.Add(f.Name, "is required")
			continue
		}
		if msg := f.check(v); msg != "" {
			verr.Add(f.Name, msg)
			continue
		}
		out[f.Name] = v
	}
	if verr.HasErrors() {
		return nil, verr
	}
	return out, nil
}

// Filter turns query parameters into an equality filter. Parameters that are
// not fields of the schema, or that are blank, are ignored.
func (s Schema) Filter(query url.Values) (map[string]any, error) {
	filter := make(map[string]any)
	verr := &ValidationError{}
	for key, values := range query {
		f, ok := s.Field(key)
		if !ok || len(values) == 0 || strings.TrimSpace(values[0]) == "" {
			continue
		}
		if f.Kind == Strings {
			verr.Add(key, "cannot be used as a filter")
			continue
		}
		v, err := f.coerce(values[0])
		if err != nil {
			verr.Add(key, err.Error())
			continue
		}
		filter[key] = v
	}
	if verr.HasErrors() {
		return nil, verr
	}
	return filter, nil
}

func (f Field) coerce(raw any) (any, error) {
	switch f.Kind {
	case String:
		switch v := raw.(type) {
		case string:
			return strings.TrimSpace(v), nil
		case json.Number:
			return v.String(), nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		}
	case Number:
		var n float64
		switch v := raw.(type) {
		case float64:
			n = v
		case int:
			n = float64(v)
		case json.Number:
			parsed, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("must be %s", f.Kind)
			}
			n = parsed
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("must be %s", f.Kind)
			}
			n = parsed
		default:
			return nil, fmt.Errorf("must be %s", f.Kind)
		}
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("must be %s", f.Kind)
		}
		return n, nil
	case Bool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "on", "1", "yes":
				return true, nil
			case "false", "off", "0", "no", "":
				return false, nil
			}
		case json.Number:
			return v.String() != "0", nil
		case float64:
			return v != 0, nil
		}
	case Strings:
		switch v := raw.(type) {
		case string:
			sep := f.Sep
			if sep == "" {
				sep = ","
			}
			return splitList(v, sep), nil
		case []string:
			return splitList(strings.Join(v, "\x00"), "\x00"), nil
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("must be %s", f.Kind)
				}
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("must be %s", f.Kind)
}

func (f Field) check(v any) string {
	switch vv := v.(type) {
	case float64:
		if f.NonNegative && vv < 0 {
			return "must not be negative"
		}
	case string:
		if vv == "" {
			return ""
		}
		if len(f.OneOf) > 0 && !slices.Contains(f.OneOf, vv) {
			return "must be one of " + strings.Join(f.OneOf, ", ")
		}
		if f.Validate != "" {
			if err := validate.Var(vv, f.Validate); err != nil {
				return "is not a valid " + f.Validate
			}
		}
	}
	return ""
}

func splitList(s, sep string) []string {
	out := []string{}
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func blank(v any) bool {
	switch vv := v.(type) {
	case string:
		return vv == ""
	case []string:
		return len(vv) == 0
	}
	return false
}

func defaultValue(v any) any {
	if ss, ok := v.([]string); ok {
		return slices.Clone(ss)
	}
	return v
}

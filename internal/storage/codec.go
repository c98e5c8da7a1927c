package storage

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

func decodeValue(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// decodeRecords decodes a collection body. A file holding a single object is
// read as a one-element collection.
func decodeRecords(raw []byte) ([]Record, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []Record{}, nil
	}
	v, err := decodeValue(raw)
	if err != nil {
		return nil, err
	}
	switch vv := v.(type) {
	case []any:
		out := make([]Record, 0, len(vv))
		for i, item := range vv {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("element %d is not an object", i)
			}
			out = append(out, Record(obj))
		}
		return out, nil
	case map[string]any:
		return []Record{Record(vv)}, nil
	case nil:
		return []Record{}, nil
	default:
		return nil, fmt.Errorf("expected an array of objects, got %T", v)
	}
}

// decodeDocument decodes a singleton body. A file holding an array is read as
// its first element.
func decodeDocument(raw []byte) (Record, error) {
	records, err := decodeRecords(raw)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return Record{}, nil
	}
	return records[0], nil
}

func encode(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Package flatten implements the flattening engine: it turns one
// arbitrarily nested JSON value into an ordered sequence of sanitized scalar
// strings. Object key order is preserved end to end, which requires the
// ordered decoding provided by DecodeValue; plain
// map[string]any input is rejected by Kind as unordered.
package flatten

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/keboola/go-utils/pkg/orderedmap"
)

// Kind tags the runtime shape of a decoded JSON value.
type Kind int

const (
	// KindNull is a nil value.
	KindNull Kind = iota
	// KindScalar is a string, number or bool.
	KindScalar
	// KindSequence is a JSON array decoded as []any.
	KindSequence
	// KindMapping is a JSON object decoded as *orderedmap.OrderedMap.
	KindMapping
)

// KindOf classifies a decoded value. Unrecognized types (including unordered
// map[string]any) classify as KindScalar so the engine stays total; they are
// stringified rather than traversed.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case *orderedmap.OrderedMap:
		return KindMapping
	case []any:
		return KindSequence
	default:
		return KindScalar
	}
}

// DecodeValue decodes a single JSON value preserving object key order.
// Objects become *orderedmap.OrderedMap, arrays []any, numbers json.Number.
// Every number keeps its source text: objects are walked by hand rather than
// delegated to orderedmap's own UnmarshalJSON, which would decode nested
// numerics as float64 and corrupt integers past 2^53.
func DecodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch trimmed[0] {
	case '{':
		return decodeObject(trimmed)
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		seq := make([]any, 0, len(items))
		for _, item := range items {
			v, err := DecodeValue(item)
			if err != nil {
				return nil, err
			}
			seq = append(seq, v)
		}
		return seq, nil
	default:
		var v any
		d := json.NewDecoder(bytes.NewReader(trimmed))
		d.UseNumber()
		if err := d.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// decodeObject builds an ordered map from a JSON object, decoding each
// member value through DecodeValue so key order and number text are
// preserved at every level.
func decodeObject(data []byte) (*orderedmap.OrderedMap, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	m := orderedmap.New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key expected, got %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		v, err := DecodeValue(raw)
		if err != nil {
			return nil, err
		}
		m.Set(key, v)
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return m, nil
}

// IsEmptyValue reports whether a decoded value is absent or falsy in the
// sense the row builder uses: nil, empty string, zero number, false, or an
// empty mapping/sequence all contribute zero flattened fields.
func IsEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case bool:
		return !val
	case json.Number:
		f, err := val.Float64()
		return err == nil && f == 0
	case float64:
		return val == 0
	case int:
		return val == 0
	case int64:
		return val == 0
	case []any:
		return len(val) == 0
	case *orderedmap.OrderedMap:
		return val == nil || len(val.Keys()) == 0
	default:
		return false
	}
}

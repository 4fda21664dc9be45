package segment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/keboola/go-utils/pkg/orderedmap"

	pkgerrors "github.com/wehubfusion/Procrustes/pkg/errors"
	"github.com/wehubfusion/Procrustes/pkg/flatten"
)

// Record is a credit record: an object keyed by segment code whose values
// are arbitrarily nested JSON. Key order is preserved by the ordered map so
// flattening stays deterministic.
type Record = orderedmap.OrderedMap

// Envelope is one input record object. UniqueID is caller-supplied and
// opaque; it is neither validated nor generated here. GarbagePerSegment
// supplies one extra scalar per segment, emitted as the Residual_Value
// column independent of the segment's own fields.
type Envelope struct {
	UniqueID          string         `json:"unique_id"`
	Record            *Record        `json:"record"`
	GarbagePerSegment map[string]any `json:"garbage_per_segment"`
}

// UnmarshalJSON decodes the envelope with the record body going through the
// ordered, number-preserving decode path. orderedmap's own UnmarshalJSON
// would decode nested numerics as float64, altering integers past 2^53
// before they ever reach the sanitizer; account and trade identifiers live
// exactly in that range.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var aux struct {
		UniqueID          string          `json:"unique_id"`
		Record            json.RawMessage `json:"record"`
		GarbagePerSegment map[string]any  `json:"garbage_per_segment"`
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&aux); err != nil {
		return err
	}

	e.UniqueID = aux.UniqueID
	e.GarbagePerSegment = aux.GarbagePerSegment
	e.Record = nil

	body := bytes.TrimSpace(aux.Record)
	if len(body) == 0 || string(body) == "null" {
		return nil
	}

	v, err := flatten.DecodeValue(body)
	if err != nil {
		return err
	}
	m, ok := v.(*Record)
	if !ok {
		return fmt.Errorf("record must be an object")
	}
	e.Record = m
	return nil
}

// DocumentReader streams envelopes out of an input document of the form
// {"Records": [ ... ]} without materializing the whole array, so peak memory
// is bounded by the consumer's batch window, not by document size.
type DocumentReader struct {
	dec     *json.Decoder
	started bool
	done    bool
}

// NewDocumentReader wraps a reader positioned at the start of the document.
func NewDocumentReader(r io.Reader) *DocumentReader {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &DocumentReader{dec: dec}
}

// Next returns the next envelope, or io.EOF when the Records array is
// exhausted. Any malformed JSON is a file-level failure and surfaces as an
// error wrapping errors.ErrInvalidInput.
func (d *DocumentReader) Next() (Envelope, error) {
	if d.done {
		return Envelope{}, io.EOF
	}

	if !d.started {
		if err := d.seekRecords(); err != nil {
			d.done = true
			return Envelope{}, err
		}
		d.started = true
	}

	if d.dec.More() {
		var env Envelope
		if err := d.dec.Decode(&env); err != nil {
			d.done = true
			return Envelope{}, fmt.Errorf("%w: decode envelope: %v", pkgerrors.ErrInvalidInput, err)
		}
		return env, nil
	}

	d.done = true
	if err := d.finish(); err != nil {
		return Envelope{}, err
	}
	return Envelope{}, io.EOF
}

// seekRecords consumes the document preamble up to the opening bracket of
// the Records array, skipping any other top-level members.
func (d *DocumentReader) seekRecords() error {
	tok, err := d.dec.Token()
	if err != nil {
		return fmt.Errorf("%w: read document: %v", pkgerrors.ErrInvalidInput, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: document root must be an object", pkgerrors.ErrInvalidInput)
	}

	for {
		tok, err := d.dec.Token()
		if err != nil {
			return fmt.Errorf("%w: read document: %v", pkgerrors.ErrInvalidInput, err)
		}

		if delim, ok := tok.(json.Delim); ok && delim == '}' {
			return fmt.Errorf("%w: missing Records array", pkgerrors.ErrInvalidInput)
		}

		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: unexpected token %v", pkgerrors.ErrInvalidInput, tok)
		}

		if key == "Records" {
			tok, err := d.dec.Token()
			if err != nil {
				return fmt.Errorf("%w: read Records: %v", pkgerrors.ErrInvalidInput, err)
			}
			if delim, ok := tok.(json.Delim); !ok || delim != '[' {
				return fmt.Errorf("%w: Records must be an array", pkgerrors.ErrInvalidInput)
			}
			return nil
		}

		// Skip the value of any other top-level member.
		var skip json.RawMessage
		if err := d.dec.Decode(&skip); err != nil {
			return fmt.Errorf("%w: skip member %q: %v", pkgerrors.ErrInvalidInput, key, err)
		}
	}
}

// finish consumes the closing array bracket and the remainder of the
// document object.
func (d *DocumentReader) finish() error {
	// Closing ']' of the Records array.
	if _, err := d.dec.Token(); err != nil {
		return fmt.Errorf("%w: close Records: %v", pkgerrors.ErrInvalidInput, err)
	}

	for {
		tok, err := d.dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: close document: %v", pkgerrors.ErrInvalidInput, err)
		}
		if delim, ok := tok.(json.Delim); ok && delim == '}' {
			return nil
		}
		if _, ok := tok.(string); ok {
			var skip json.RawMessage
			if err := d.dec.Decode(&skip); err != nil {
				return fmt.Errorf("%w: close document: %v", pkgerrors.ErrInvalidInput, err)
			}
		}
	}
}

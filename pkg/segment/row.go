package segment

import (
	"github.com/wehubfusion/Procrustes/pkg/flatten"
)

// Row is one 59-column segment row.
type Row []string

// Transform rewrites the flattened fields of one segment before padding.
// It receives the segment code and the raw flattened fields and returns the
// fields to place into Field1..Field50. Implementations must be total.
type Transform func(code Code, fields []string) []string

// Expander turns envelopes into segment rows.
type Expander struct {
	maxDepth  int
	transform Transform
}

// NewExpander creates an Expander. maxDepth bounds flattening traversal
// (values <= 0 select flatten.DefaultMaxDepth); transform is optional.
func NewExpander(maxDepth int, transform Transform) *Expander {
	if maxDepth <= 0 {
		maxDepth = flatten.DefaultMaxDepth
	}
	return &Expander{maxDepth: maxDepth, transform: transform}
}

// BuildRow builds the row for one segment of an envelope. The returned row
// always has exactly RowWidth cells. clipped reports whether depth-bounded
// flattening rendered part of the segment value as an opaque scalar.
func (e *Expander) BuildRow(env Envelope, code Code) (row Row, clipped bool) {
	row = make(Row, 0, RowWidth)
	row = append(row, env.UniqueID, string(code))

	if env.Record != nil {
		v, ok := env.Record.Get(string(code))
		if !ok {
			v = DefaultShape(code)
		}
		if !flatten.IsEmptyValue(v) {
			fields, c := flatten.FlattenBounded(v, e.maxDepth)
			clipped = c
			if e.transform != nil {
				fields = e.transform(code, fields)
			}
			row = append(row, fields...)
		}
	}

	// Pad to the field contract; surplus fields are dropped silently, by
	// contract with the fixed downstream schema.
	for len(row) < fieldEnd {
		row = append(row, "")
	}
	if len(row) > fieldEnd {
		row = row[:fieldEnd]
	}

	residual := ""
	if len(env.GarbagePerSegment) > 0 {
		residual = flatten.Sanitize(env.GarbagePerSegment[string(code)])
	}
	row = append(row, residual)

	for i := 0; i < reservedColumns; i++ {
		row = append(row, "")
	}

	return row[:RowWidth], clipped
}

// ExpandRecord builds the seven segment rows for one envelope in the fixed
// order PN, ID, PT, EC, PA, TL, TH. clipped counts segments whose value was
// depth-clipped during flattening.
func (e *Expander) ExpandRecord(env Envelope) (rows []Row, clipped int) {
	rows = make([]Row, 0, len(Order))
	for _, code := range Order {
		row, c := e.BuildRow(env, code)
		if c {
			clipped++
		}
		rows = append(rows, row)
	}
	return rows, clipped
}

// BuildSegmentRow is the plain form of the row contract: one segment row
// from envelope parts, default depth bound, no transforms.
func BuildSegmentRow(uniqueID string, record *Record, garbage map[string]any, code Code) Row {
	e := NewExpander(0, nil)
	row, _ := e.BuildRow(Envelope{UniqueID: uniqueID, Record: record, GarbagePerSegment: garbage}, code)
	return row
}

package segment

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelopeFromJSON(t *testing.T, src string) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(src), &env))
	return env
}

func TestHeaderWidthAndNames(t *testing.T) {
	header := Header()
	require.Len(t, header, RowWidth)
	assert.Equal(t, "Unique_ID", header[0])
	assert.Equal(t, "Segment_Name", header[1])
	assert.Equal(t, "Field1", header[2])
	assert.Equal(t, "Field50", header[51])
	assert.Equal(t, "Residual_Value", header[52])
	assert.Equal(t, "System", header[53])
	assert.Equal(t, "Forced_Status", header[58])
}

func TestBuildRowWidthInvariant(t *testing.T) {
	inputs := []string{
		`{"unique_id":"U1","record":{},"garbage_per_segment":{}}`,
		`{"unique_id":"U2","record":{"PN":{"name":"a"}},"garbage_per_segment":{"PN":"g"}}`,
		`{"unique_id":"U3"}`,
		`{"unique_id":"U4","record":{"TH":[[1,2],[3,[4,5]]]}}`,
	}

	e := NewExpander(0, nil)
	for _, src := range inputs {
		env := envelopeFromJSON(t, src)
		for _, code := range Order {
			row, _ := e.BuildRow(env, code)
			assert.Len(t, row, RowWidth, "input %s segment %s", src, code)
		}
	}
}

func TestExpandRecordOrderAndCount(t *testing.T) {
	env := envelopeFromJSON(t, `{"unique_id":"U1","record":{"TL":{"acct":"1"}}}`)

	e := NewExpander(0, nil)
	rows, clipped := e.ExpandRecord(env)
	require.Len(t, rows, 7)
	assert.Zero(t, clipped)

	want := []string{"PN", "ID", "PT", "EC", "PA", "TL", "TH"}
	for i, row := range rows {
		assert.Equal(t, "U1", row[0])
		assert.Equal(t, want[i], row[1])
	}
}

func TestBuildRowEndToEndPN(t *testing.T) {
	env := envelopeFromJSON(t, `{"unique_id":"U1","record":{"PN":{"name":"Jo|hn"}},"garbage_per_segment":{"PN":"g1"}}`)

	row := BuildSegmentRow("U1", env.Record, env.GarbagePerSegment, PN)
	require.Len(t, row, RowWidth)

	assert.Equal(t, "U1", row[0])
	assert.Equal(t, "PN", row[1])
	assert.Equal(t, "Jo-hn", row[2])
	for i := 3; i < 52; i++ {
		assert.Equal(t, "", row[i], "field slot %d", i)
	}
	assert.Equal(t, "g1", row[52])
	for i := 53; i < RowWidth; i++ {
		assert.Equal(t, "", row[i], "reserved column %d", i)
	}
}

func TestBuildRowFieldOverflowTruncated(t *testing.T) {
	// A segment flattening to 60 values keeps only the first 50.
	var sb strings.Builder
	sb.WriteString(`{"unique_id":"U1","record":{"ID":[`)
	for i := 0; i < 60; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`"v`)
		sb.WriteString(strings.Repeat("x", i%3))
		sb.WriteString(`"`)
	}
	sb.WriteString(`]},"garbage_per_segment":{"ID":"res"}}`)

	env := envelopeFromJSON(t, sb.String())
	row := BuildSegmentRow("U1", env.Record, env.GarbagePerSegment, ID)

	require.Len(t, row, RowWidth)
	assert.NotEmpty(t, row[51], "Field50 holds the 50th value")
	assert.Equal(t, "res", row[52], "residual survives truncation")
}

func TestBuildRowMissingSegment(t *testing.T) {
	env := envelopeFromJSON(t, `{"unique_id":"U1","record":{"PN":{"name":"x"}},"garbage_per_segment":{"TH":"leftover"}}`)

	row := BuildSegmentRow("U1", env.Record, env.GarbagePerSegment, TH)
	require.Len(t, row, RowWidth)
	assert.Equal(t, "TH", row[1])
	for i := 2; i < 52; i++ {
		assert.Equal(t, "", row[i])
	}
	assert.Equal(t, "leftover", row[52])
}

func TestBuildRowFalsySegmentValues(t *testing.T) {
	// Falsy segment values contribute zero fields, matching absent segments.
	for _, src := range []string{
		`{"unique_id":"U1","record":{"PN":null}}`,
		`{"unique_id":"U1","record":{"PN":{}}}`,
		`{"unique_id":"U1","record":{"PN":""}}`,
		`{"unique_id":"U1","record":{"PN":0}}`,
		`{"unique_id":"U1","record":{"PN":false}}`,
	} {
		env := envelopeFromJSON(t, src)
		row := BuildSegmentRow("U1", env.Record, env.GarbagePerSegment, PN)
		require.Len(t, row, RowWidth, src)
		for i := 2; i < 52; i++ {
			assert.Equal(t, "", row[i], src)
		}
	}
}

func TestBuildRowNilRecordAndGarbage(t *testing.T) {
	row := BuildSegmentRow("U9", nil, nil, EC)
	require.Len(t, row, RowWidth)
	assert.Equal(t, "U9", row[0])
	assert.Equal(t, "EC", row[1])
	assert.Equal(t, "", row[52])
}

func TestExpanderTransformApplied(t *testing.T) {
	env := envelopeFromJSON(t, `{"unique_id":"U1","record":{"PN":{"name":"john"}}}`)

	e := NewExpander(0, func(code Code, fields []string) []string {
		if code != PN {
			return fields
		}
		out := make([]string, len(fields))
		for i, f := range fields {
			out[i] = strings.ToUpper(f)
		}
		return out
	})

	row, _ := e.BuildRow(env, PN)
	assert.Equal(t, "JOHN", row[2])
}

func TestDefaultShape(t *testing.T) {
	for _, code := range []Code{PN, EC, TL} {
		_, ok := DefaultShape(code).([]any)
		assert.False(t, ok, "%s should default to a mapping", code)
	}
	for _, code := range []Code{ID, PT, PA, TH} {
		_, ok := DefaultShape(code).([]any)
		assert.True(t, ok, "%s should default to a sequence", code)
	}
}

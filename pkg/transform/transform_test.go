package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/wehubfusion/Procrustes/pkg/errors"
	"github.com/wehubfusion/Procrustes/pkg/segment"
)

func TestDateDMY(t *testing.T) {
	assert.Equal(t, "2024-01-31", reformatDateDMY("31/01/2024"))
	assert.Equal(t, "not-a-date", reformatDateDMY("not-a-date"))
	assert.Equal(t, "31/13/2024", reformatDateDMY("31/13/2024"))
}

func TestDateDDMMYYYY(t *testing.T) {
	assert.Equal(t, "2024-01-31", reformatDateDDMMYYYY("31012024"))
	assert.Equal(t, "3101202", reformatDateDDMMYYYY("3101202"))
	assert.Equal(t, "99012024", reformatDateDDMMYYYY("99012024"))
}

func TestSetAppliesRuleToMatchingFieldOnly(t *testing.T) {
	set, err := New([]Rule{
		{Segment: "PN", Field: 2, Op: OpUpper},
	})
	require.NoError(t, err)

	fields := set.Apply(segment.PN, []string{"first", "second", "third"})
	assert.Equal(t, []string{"first", "SECOND", "third"}, fields)

	// Other segments untouched.
	fields = set.Apply(segment.TL, []string{"first", "second"})
	assert.Equal(t, []string{"first", "second"}, fields)
}

func TestSetSkipsOutOfRangeAndEmptyFields(t *testing.T) {
	set, err := New([]Rule{
		{Segment: "PN", Field: 5, Op: OpUpper},
		{Segment: "PN", Field: 1, Op: OpUpper},
	})
	require.NoError(t, err)

	fields := set.Apply(segment.PN, []string{"", "x"})
	assert.Equal(t, []string{"", "x"}, fields)
}

func TestSetCaseOps(t *testing.T) {
	set, err := New([]Rule{
		{Segment: "PN", Field: 1, Op: OpLower},
		{Segment: "PN", Field: 2, Op: OpTitle},
	})
	require.NoError(t, err)

	fields := set.Apply(segment.PN, []string{"ABC", "john smith"})
	assert.Equal(t, "abc", fields[0])
	assert.Equal(t, "John Smith", fields[1])
}

func TestSetDateRule(t *testing.T) {
	set, err := New([]Rule{
		{Segment: "TL", Field: 1, Op: OpDateDMY},
	})
	require.NoError(t, err)

	fields := set.Apply(segment.TL, []string{"15/06/2023", "untouched"})
	assert.Equal(t, []string{"2023-06-15", "untouched"}, fields)
}

func TestJSRule(t *testing.T) {
	set, err := New([]Rule{
		{Segment: "PN", Field: 1, Op: "js:value.trim().split('').reverse().join('')"},
	})
	require.NoError(t, err)

	fields := set.Apply(segment.PN, []string{"abc"})
	assert.Equal(t, []string{"cba"}, fields)
}

func TestJSRuleFailureDegradesToOriginal(t *testing.T) {
	set, err := New([]Rule{
		{Segment: "PN", Field: 1, Op: "js:value.definitely.not.there"},
	})
	require.NoError(t, err)

	fields := set.Apply(segment.PN, []string{"keepme"})
	assert.Equal(t, []string{"keepme"}, fields)
}

func TestJSSandboxBlocksHostGlobals(t *testing.T) {
	set, err := New([]Rule{
		{Segment: "PN", Field: 1, Op: "js:typeof require"},
	})
	require.NoError(t, err)

	fields := set.Apply(segment.PN, []string{"x"})
	assert.Equal(t, []string{"undefined"}, fields)
}

func TestNewRejectsBadRules(t *testing.T) {
	cases := []struct {
		name  string
		rules []Rule
	}{
		{"unknown op", []Rule{{Segment: "PN", Field: 1, Op: "nope"}}},
		{"field zero", []Rule{{Segment: "PN", Field: 0, Op: OpUpper}}},
		{"field too big", []Rule{{Segment: "PN", Field: 51, Op: OpUpper}}},
		{"missing segment", []Rule{{Field: 1, Op: OpUpper}}},
		{"bad js", []Rule{{Segment: "PN", Field: 1, Op: "js:((("}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.rules)
			require.Error(t, err)
			assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)
		})
	}
}

func TestEmptySetPassThrough(t *testing.T) {
	set, err := New(nil)
	require.NoError(t, err)
	assert.True(t, set.Empty())

	fields := []string{"a", "b"}
	assert.Equal(t, fields, set.Apply(segment.PN, fields))
}

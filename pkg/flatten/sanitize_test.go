package flatten

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeEmptyForms(t *testing.T) {
	assert.Equal(t, "", Sanitize(nil))
	assert.Equal(t, "", Sanitize(""))
	assert.Equal(t, "", Sanitize("null"))
}

func TestSanitizeNewlines(t *testing.T) {
	assert.Equal(t, "a b c", Sanitize("a\nb\r\nc"))
}

func TestSanitizePipes(t *testing.T) {
	assert.Equal(t, "x-y--z", Sanitize("x|y||z"))
}

func TestSanitizeWhitespaceCollapse(t *testing.T) {
	assert.Equal(t, "a b", Sanitize("  a \t\t b  "))
	assert.Equal(t, "", Sanitize("   "))
}

func TestSanitizeScalarTypes(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"float_whole", float64(3), "3"},
		{"float_fraction", 3.5, "3.5"},
		{"json_number", json.Number("12345678901234567"), "12345678901234567"},
		{"bool_true", true, "true"},
		{"bool_false", false, "false"},
		{"string", "hello", "hello"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Sanitize(tc.in))
		})
	}
}

func TestSanitizeCombined(t *testing.T) {
	assert.Equal(t, "Jo-hn Smith", Sanitize(" Jo|hn\nSmith "))
}

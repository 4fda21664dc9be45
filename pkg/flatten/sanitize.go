package flatten

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Sanitize converts a single value to a CSV-safe scalar string. It is total:
// every input maps to a string, never an error.
//
// nil, the empty string and the literal string "null" map to "". Anything
// else is stringified, newlines and carriage returns become spaces, runs of
// whitespace collapse to one space, the result is trimmed, and every '|' is
// replaced with '-' because the pipe is reserved as a potential alternate
// delimiter downstream.
func Sanitize(v any) string {
	s := stringify(v)
	if s == "" || s == "null" {
		return ""
	}

	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, "|", "-")

	return s
}

// stringify renders a scalar the way the downstream table expects: numbers
// without exponent noise, bools as true/false.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}

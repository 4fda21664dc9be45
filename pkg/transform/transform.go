// Package transform applies optional per-segment field transforms between
// flattening and padding. Transforms are total: a value that cannot be
// transformed passes through untouched, so row width and emission never
// depend on transform success.
package transform

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	pkgerrors "github.com/wehubfusion/Procrustes/pkg/errors"
	"github.com/wehubfusion/Procrustes/pkg/segment"
)

// Built-in operation names.
const (
	OpDateDMY      = "date_dmy"      // DD/MM/YYYY -> YYYY-MM-DD
	OpDateDDMMYYYY = "date_ddmmyyyy" // DDMMYYYY -> YYYY-MM-DD
	OpUpper        = "upper"
	OpLower        = "lower"
	OpTitle        = "title"

	// jsPrefix marks a sandboxed JavaScript expression over `value`.
	jsPrefix = "js:"
)

// DefaultJSTimeout bounds a single JS transform evaluation.
const DefaultJSTimeout = 100 * time.Millisecond

// Rule binds one operation to one field slot of one segment.
type Rule struct {
	// Segment is the segment code the rule applies to, e.g. "PN".
	Segment string `json:"segment"`

	// Field is the 1-based field index (Field1..Field50).
	Field int `json:"field"`

	// Op is a built-in operation name or "js:<expression>". A JS expression
	// sees the field as the global `value` and its result replaces it.
	Op string `json:"op"`
}

type compiledRule struct {
	field int
	apply func(string) string
}

// Set is a compiled, immutable collection of rules.
type Set struct {
	bySegment map[string][]compiledRule
}

// New compiles rules into a Set. Unknown operations, out-of-range field
// indexes and invalid JS expressions are configuration errors.
func New(rules []Rule) (*Set, error) {
	s := &Set{bySegment: make(map[string][]compiledRule)}

	for i, r := range rules {
		if r.Segment == "" {
			return nil, fmt.Errorf("%w: rule %d: segment is required", pkgerrors.ErrInvalidConfig, i)
		}
		if r.Field < 1 || r.Field > segment.FieldSlots {
			return nil, fmt.Errorf("%w: rule %d: field must be 1..%d, got %d", pkgerrors.ErrInvalidConfig, i, segment.FieldSlots, r.Field)
		}

		apply, err := compileOp(r.Op)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d: %v", pkgerrors.ErrInvalidConfig, i, err)
		}

		s.bySegment[r.Segment] = append(s.bySegment[r.Segment], compiledRule{field: r.Field, apply: apply})
	}

	return s, nil
}

// Empty reports whether the set carries no rules.
func (s *Set) Empty() bool {
	return s == nil || len(s.bySegment) == 0
}

// Apply implements segment.Transform. Fields whose index has no rule, or
// that lie beyond the flattened field count, are left as-is.
func (s *Set) Apply(code segment.Code, fields []string) []string {
	if s.Empty() {
		return fields
	}

	rules := s.bySegment[string(code)]
	if len(rules) == 0 {
		return fields
	}

	for _, r := range rules {
		idx := r.field - 1
		if idx >= len(fields) || fields[idx] == "" {
			continue
		}
		fields[idx] = r.apply(fields[idx])
	}
	return fields
}

func compileOp(op string) (func(string) string, error) {
	switch op {
	case OpDateDMY:
		return reformatDateDMY, nil
	case OpDateDDMMYYYY:
		return reformatDateDDMMYYYY, nil
	case OpUpper:
		caser := cases.Upper(language.Und)
		return caser.String, nil
	case OpLower:
		caser := cases.Lower(language.Und)
		return caser.String, nil
	case OpTitle:
		caser := cases.Title(language.Und)
		return caser.String, nil
	}

	if expr, ok := strings.CutPrefix(op, jsPrefix); ok {
		ev, err := newJSEvaluator(expr, DefaultJSTimeout)
		if err != nil {
			return nil, err
		}
		return ev.eval, nil
	}

	return nil, fmt.Errorf("unknown operation %q", op)
}

package flatten

import (
	"encoding/json"

	"github.com/keboola/go-utils/pkg/orderedmap"
)

// DefaultMaxDepth bounds traversal of pathological input. Real credit
// records nest a handful of levels; anything past this is treated as opaque.
const DefaultMaxDepth = 1000

// Flatten serializes a nested value into a flat, order-preserving list of
// sanitized scalar strings using DefaultMaxDepth. Mapping entries are
// visited in their defined key order, sequences in element order, depth
// first and pre-order. A nil or empty composite yields an empty slice.
func Flatten(v any) []string {
	fields, _ := FlattenBounded(v, DefaultMaxDepth)
	return fields
}

// FlattenBounded is Flatten with an explicit depth bound. The traversal is
// iterative with a worklist stack, so input nesting depth never grows the
// call stack. A subtree that still is composite at maxDepth is not descended
// into: it is rendered as one opaque sanitized scalar and clipped is
// returned true so callers can account for the degradation.
func FlattenBounded(v any, maxDepth int) (fields []string, clipped bool) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	type item struct {
		value any
		depth int
	}

	fields = []string{}
	stack := []item{{value: v, depth: 0}}

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch KindOf(it.value) {
		case KindMapping:
			m := it.value.(*orderedmap.OrderedMap)
			if m == nil {
				continue
			}
			if it.depth >= maxDepth {
				fields = append(fields, opaque(it.value))
				clipped = true
				continue
			}
			keys := m.Keys()
			// Push in reverse so the first key is processed first.
			for i := len(keys) - 1; i >= 0; i-- {
				child, _ := m.Get(keys[i])
				stack = append(stack, item{value: child, depth: it.depth + 1})
			}
		case KindSequence:
			seq := it.value.([]any)
			if it.depth >= maxDepth {
				fields = append(fields, opaque(it.value))
				clipped = true
				continue
			}
			for i := len(seq) - 1; i >= 0; i-- {
				stack = append(stack, item{value: seq[i], depth: it.depth + 1})
			}
		default:
			// Scalars and nil append their single sanitized form. Empty
			// composites push no children, so they flatten to nothing.
			fields = append(fields, Sanitize(it.value))
		}
	}

	return fields, clipped
}

// clippedMarker replaces a clipped subtree that cannot be rendered at all.
const clippedMarker = "[clipped]"

// opaque renders a clipped subtree as one sanitized scalar. JSON text is the
// only deterministic rendering available for composites; a subtree nested
// past the encoder's own depth limit cannot be marshalled and degrades to
// the fixed marker.
func opaque(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return clippedMarker
	}
	return Sanitize(string(data))
}

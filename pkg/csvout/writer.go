// Package csvout drives the flattening engine over a stream of envelopes
// and writes the 59-column CSV in bounded-memory batches.
package csvout

import (
	"bufio"
	"encoding/csv"
	"io"
	"strings"
)

// QuoteMode selects how fields are quoted in the output.
type QuoteMode int

const (
	// QuoteAll wraps every field in double quotes with doubled-quote
	// escaping. Safest for loaders that understand quoted CSV.
	QuoteAll QuoteMode = iota

	// QuoteMinimal quotes only fields that need it, for compatibility with
	// stricter downstream parsers.
	QuoteMinimal
)

// rowWriter is the narrow surface the emitter needs from a CSV encoder.
type rowWriter interface {
	Write(row []string) error
	Flush() error
}

func newRowWriter(w io.Writer, mode QuoteMode) rowWriter {
	if mode == QuoteMinimal {
		return &minimalWriter{w: csv.NewWriter(w)}
	}
	return &quoteAllWriter{w: bufio.NewWriterSize(w, 1<<20)}
}

// quoteAllWriter always quote-wraps fields, doubling embedded quotes.
// encoding/csv cannot force quotes, so this is hand-rolled; records are
// newline-terminated and fields comma-separated like encoding/csv output.
type quoteAllWriter struct {
	w *bufio.Writer
}

func (q *quoteAllWriter) Write(row []string) error {
	for i, field := range row {
		if i > 0 {
			if err := q.w.WriteByte(','); err != nil {
				return err
			}
		}
		if err := q.w.WriteByte('"'); err != nil {
			return err
		}
		if _, err := q.w.WriteString(strings.ReplaceAll(field, `"`, `""`)); err != nil {
			return err
		}
		if err := q.w.WriteByte('"'); err != nil {
			return err
		}
	}
	return q.w.WriteByte('\n')
}

func (q *quoteAllWriter) Flush() error {
	return q.w.Flush()
}

// minimalWriter adapts encoding/csv to the rowWriter surface.
type minimalWriter struct {
	w *csv.Writer
}

func (m *minimalWriter) Write(row []string) error {
	return m.w.Write(row)
}

func (m *minimalWriter) Flush() error {
	m.w.Flush()
	return m.w.Error()
}

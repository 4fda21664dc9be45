package csvout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	pkgerrors "github.com/wehubfusion/Procrustes/pkg/errors"
	"github.com/wehubfusion/Procrustes/pkg/segment"
)

const (
	// DefaultBatchSize flushes every 1000 input envelopes, i.e. every 7000
	// output rows.
	DefaultBatchSize = 1000

	// DefaultMaxCellLen models the downstream varchar column limit. Cells
	// longer than this are hard-truncated and counted as an issue.
	DefaultMaxCellLen = 8000
)

// EnvelopeSource yields envelopes one at a time. Next returns io.EOF when
// the stream is exhausted; any other error is file-level and fatal.
type EnvelopeSource interface {
	Next() (segment.Envelope, error)
}

// Summary reports the outcome of one emission run.
type Summary struct {
	// EnvelopesRead is the number of envelopes consumed from the source.
	EnvelopesRead int

	// RowsWritten is the number of data rows written (header excluded).
	RowsWritten int

	// Issues counts truncated cells, depth-clipped segments and failed
	// envelopes.
	Issues int

	// EnvelopesFailed is the number of envelopes skipped after a row
	// cleaning failure.
	EnvelopesFailed int

	// Duration is the wall-clock emission time.
	Duration time.Duration
}

// Emitter converts an envelope stream to delimited output. It owns the only
// mutable state of the pipeline, the batch buffer, which is cleared after
// every flush.
type Emitter struct {
	expander   *segment.Expander
	batchSize  int
	maxCellLen int
	quoteMode  QuoteMode
	logger     *zap.Logger
	tracer     trace.Tracer
}

// Config configures an Emitter. Zero values select defaults.
type Config struct {
	// Expander builds segment rows; required.
	Expander *segment.Expander

	// BatchSize is the number of envelopes per flush window.
	BatchSize int

	// MaxCellLen is the per-cell character cap.
	MaxCellLen int

	// QuoteMode selects the output quoting style.
	QuoteMode QuoteMode

	// Logger is required.
	Logger *zap.Logger
}

// NewEmitter creates an Emitter.
func NewEmitter(cfg Config) (*Emitter, error) {
	if cfg.Expander == nil {
		return nil, fmt.Errorf("%w: expander cannot be nil", pkgerrors.ErrInvalidConfig)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger cannot be nil", pkgerrors.ErrInvalidConfig)
	}
	if cfg.BatchSize < 0 {
		return nil, fmt.Errorf("%w: batch size cannot be negative", pkgerrors.ErrInvalidConfig)
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxCellLen <= 0 {
		cfg.MaxCellLen = DefaultMaxCellLen
	}

	return &Emitter{
		expander:   cfg.Expander,
		batchSize:  cfg.BatchSize,
		maxCellLen: cfg.MaxCellLen,
		quoteMode:  cfg.QuoteMode,
		logger:     cfg.Logger,
		tracer:     otel.Tracer("procrustes/csvout"),
	}, nil
}

// Emit writes the header and then seven rows per envelope, in input order,
// flushing the batch buffer every BatchSize envelopes and once at end of
// input. Per-envelope failures are counted and skipped; source and sink
// errors abort the run.
func (e *Emitter) Emit(ctx context.Context, src EnvelopeSource, w io.Writer) (Summary, error) {
	ctx, span := e.tracer.Start(ctx, "csvout.Emit",
		trace.WithAttributes(
			attribute.Int("batch.size", e.batchSize),
			attribute.Int("cell.max_len", e.maxCellLen),
		))
	defer span.End()

	start := time.Now()
	summary := Summary{}

	out := newRowWriter(w, e.quoteMode)
	if err := out.Write(segment.Header()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "header write failed")
		return summary, fmt.Errorf("%w: write header: %v", pkgerrors.ErrOutputUnwritable, err)
	}

	batch := make([]segment.Row, 0, e.batchSize*len(segment.Order))

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		for _, row := range batch {
			if err := out.Write(row); err != nil {
				return fmt.Errorf("%w: write row: %v", pkgerrors.ErrOutputUnwritable, err)
			}
		}
		if err := out.Flush(); err != nil {
			return fmt.Errorf("%w: flush: %v", pkgerrors.ErrOutputUnwritable, err)
		}
		summary.RowsWritten += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "context cancelled")
			return summary, err
		}

		env, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "source failed")
			return summary, err
		}
		summary.EnvelopesRead++

		rows, issues, ok := e.expandClean(env)
		summary.Issues += issues
		if !ok {
			summary.EnvelopesFailed++
			continue
		}
		batch = append(batch, rows...)

		if summary.EnvelopesRead%e.batchSize == 0 {
			if err := flush(); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "flush failed")
				return summary, err
			}
			e.logger.Info("Batch flushed",
				zap.Int("envelopesRead", summary.EnvelopesRead),
				zap.Int("rowsWritten", summary.RowsWritten))
		}
	}

	if err := flush(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "final flush failed")
		return summary, err
	}

	summary.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("envelopes.read", summary.EnvelopesRead),
		attribute.Int("rows.written", summary.RowsWritten),
		attribute.Int("issues", summary.Issues),
	)
	span.SetStatus(codes.Ok, "emission complete")

	e.logger.Info("Emission complete",
		zap.Int("envelopesRead", summary.EnvelopesRead),
		zap.Int("rowsWritten", summary.RowsWritten),
		zap.Int("issues", summary.Issues),
		zap.Int("envelopesFailed", summary.EnvelopesFailed),
		zap.Duration("duration", summary.Duration))

	return summary, nil
}

// expandClean expands one envelope and runs the second sanitization pass
// over every cell. A failure while cleaning is caught here so one bad
// envelope never aborts the run; its rows are dropped and the failure is
// counted by the caller.
func (e *Emitter) expandClean(env segment.Envelope) (rows []segment.Row, issues int, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Envelope processing failed",
				zap.String("uniqueId", env.UniqueID),
				zap.Any("cause", r))
			rows = nil
			issues++
			ok = false
		}
	}()

	expanded, clipped := e.expander.ExpandRecord(env)
	if clipped > 0 {
		issues += clipped
		e.logger.Warn("Segment values depth-clipped",
			zap.String("uniqueId", env.UniqueID),
			zap.Int("segments", clipped))
	}

	for _, row := range expanded {
		for i, cell := range row {
			cell = strings.TrimSpace(cell)
			if len(cell) > e.maxCellLen {
				// The cap is in characters, not bytes.
				if runes := []rune(cell); len(runes) > e.maxCellLen {
					cell = string(runes[:e.maxCellLen])
					issues++
				}
			}
			row[i] = cell
		}
	}

	return expanded, issues, true
}

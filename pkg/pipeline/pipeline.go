// Package pipeline wires the conversion stages into a single run:
// read envelopes from a JSON document, emit segment rows as CSV, then
// optionally archive the file to blob storage, bulk load it into
// Postgres, and publish run events. Conversion and emission are
// mandatory; the downstream stages run only when configured.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Procrustes/pkg/csvout"
	pkgerrors "github.com/wehubfusion/Procrustes/pkg/errors"
	"github.com/wehubfusion/Procrustes/pkg/flatten"
	"github.com/wehubfusion/Procrustes/pkg/loader"
	"github.com/wehubfusion/Procrustes/pkg/report"
	"github.com/wehubfusion/Procrustes/pkg/segment"
	"github.com/wehubfusion/Procrustes/pkg/storage"
	"github.com/wehubfusion/Procrustes/pkg/transform"
)

// Config holds everything a run needs. Loader, Archive and Reporter are
// optional; nil disables the stage.
type Config struct {
	InputPath  string
	OutputPath string

	BatchSize  int
	MaxCellLen int
	QuoteMode  csvout.QuoteMode
	MaxDepth   int

	TransformRules []transform.Rule

	Loader   *loader.Loader
	Archive  *storage.ArchiveClient
	Reporter *report.Reporter

	Logger *zap.Logger
}

// Result summarizes a completed run.
type Result struct {
	RunID      string
	Summary    csvout.Summary
	RowsLoaded int64
	ArchiveURL string
}

// Pipeline executes conversion runs.
type Pipeline struct {
	cfg     Config
	emitter *csvout.Emitter
	logger  *zap.Logger
}

// New validates the configuration and builds a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.InputPath == "" {
		return nil, fmt.Errorf("%w: input path cannot be empty", pkgerrors.ErrInvalidConfig)
	}
	if cfg.OutputPath == "" {
		return nil, fmt.Errorf("%w: output path cannot be empty", pkgerrors.ErrInvalidConfig)
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("%w: logger cannot be nil", pkgerrors.ErrInvalidConfig)
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = flatten.DefaultMaxDepth
	}

	rules, err := transform.New(cfg.TransformRules)
	if err != nil {
		return nil, err
	}
	var tr segment.Transform
	if !rules.Empty() {
		tr = rules.Apply
	}

	emitter, err := csvout.NewEmitter(csvout.Config{
		Expander:   segment.NewExpander(cfg.MaxDepth, tr),
		BatchSize:  cfg.BatchSize,
		MaxCellLen: cfg.MaxCellLen,
		QuoteMode:  cfg.QuoteMode,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Pipeline{cfg: cfg, emitter: emitter, logger: cfg.Logger}, nil
}

// Run executes one conversion run. Downstream stage failures after the
// CSV has been written are returned as errors, but the Result still
// reflects the conversion work completed.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	runID := uuid.NewString()
	result := Result{RunID: runID}

	tracer := otel.Tracer("procrustes/pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.Run",
		oteltrace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("input.path", p.cfg.InputPath),
			attribute.String("output.path", p.cfg.OutputPath),
		))
	defer span.End()

	start := time.Now()
	logger := p.logger.With(zap.String("runId", runID))
	logger.Info("Run started",
		zap.String("input", p.cfg.InputPath),
		zap.String("output", p.cfg.OutputPath))

	p.reportStarted(ctx, runID)

	summary, err := p.convert(ctx)
	result.Summary = summary
	if err != nil {
		logger.Error("Conversion failed", zap.Error(err))
		p.reportFailed(ctx, runID, summary, err)
		return result, err
	}

	logger.Info("Conversion completed",
		zap.Int("envelopesRead", summary.EnvelopesRead),
		zap.Int("rowsWritten", summary.RowsWritten),
		zap.Int("issues", summary.Issues),
		zap.Int("envelopesFailed", summary.EnvelopesFailed))

	if p.cfg.Archive != nil {
		url, err := p.archive(ctx, runID)
		if err != nil {
			logger.Error("Archive failed", zap.Error(err))
			p.reportFailed(ctx, runID, summary, err)
			return result, err
		}
		result.ArchiveURL = url
		logger.Info("Output archived", zap.String("url", url))
	}

	if p.cfg.Loader != nil {
		rows, err := p.cfg.Loader.Load(ctx, p.cfg.OutputPath)
		if err != nil {
			logger.Error("Load failed", zap.Error(err))
			p.reportFailed(ctx, runID, summary, err)
			return result, err
		}
		result.RowsLoaded = rows
		logger.Info("Output loaded", zap.Int64("rowsLoaded", rows))
	}

	elapsed := time.Since(start)
	p.reportCompleted(ctx, runID, result, elapsed)
	logger.Info("Run completed", zap.Duration("duration", elapsed))

	return result, nil
}

func (p *Pipeline) convert(ctx context.Context) (csvout.Summary, error) {
	in, err := os.Open(p.cfg.InputPath)
	if err != nil {
		return csvout.Summary{}, fmt.Errorf("%w: open input: %v", pkgerrors.ErrInvalidInput, err)
	}
	defer in.Close()

	out, err := os.Create(p.cfg.OutputPath)
	if err != nil {
		return csvout.Summary{}, fmt.Errorf("%w: create output: %v", pkgerrors.ErrOutputUnwritable, err)
	}

	summary, emitErr := p.emitter.Emit(ctx, segment.NewDocumentReader(in), out)
	if closeErr := out.Close(); closeErr != nil && emitErr == nil {
		emitErr = fmt.Errorf("%w: close output: %v", pkgerrors.ErrOutputUnwritable, closeErr)
	}
	return summary, emitErr
}

func (p *Pipeline) archive(ctx context.Context, runID string) (string, error) {
	blobPath := storage.ArtifactPath(runID, "output.csv")
	return p.cfg.Archive.UploadArtifact(ctx, blobPath, p.cfg.OutputPath, map[string]string{
		"run_id": runID,
		"source": p.cfg.InputPath,
	})
}

func (p *Pipeline) reportStarted(ctx context.Context, runID string) {
	p.publish(ctx, report.RunEvent{
		RunID:     runID,
		Status:    report.StatusStarted,
		InputPath: p.cfg.InputPath,
	})
}

func (p *Pipeline) reportCompleted(ctx context.Context, runID string, result Result, elapsed time.Duration) {
	p.publish(ctx, report.RunEvent{
		RunID:         runID,
		Status:        report.StatusCompleted,
		InputPath:     p.cfg.InputPath,
		OutputPath:    p.cfg.OutputPath,
		EnvelopesRead: result.Summary.EnvelopesRead,
		RowsWritten:   result.Summary.RowsWritten,
		RowsLoaded:    result.RowsLoaded,
		Issues:        result.Summary.Issues,
		DurationMs:    elapsed.Milliseconds(),
	})
}

func (p *Pipeline) reportFailed(ctx context.Context, runID string, summary csvout.Summary, runErr error) {
	p.publish(ctx, report.RunEvent{
		RunID:         runID,
		Status:        report.StatusFailed,
		InputPath:     p.cfg.InputPath,
		OutputPath:    p.cfg.OutputPath,
		EnvelopesRead: summary.EnvelopesRead,
		RowsWritten:   summary.RowsWritten,
		Issues:        summary.Issues,
		Error: &report.EventError{
			Code:    pkgerrors.Categorize(runErr),
			Message: runErr.Error(),
		},
	})
}

func (p *Pipeline) publish(ctx context.Context, event report.RunEvent) {
	if err := p.cfg.Reporter.Publish(ctx, event); err != nil {
		p.logger.Warn("Run event publish failed",
			zap.String("runId", event.RunID),
			zap.String("status", event.Status),
			zap.Error(err))
	}
}

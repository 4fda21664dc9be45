// Package report publishes run lifecycle events to NATS JetStream so
// operators and downstream jobs can observe conversion runs without
// scraping logs. Reporting is optional; a nil Reporter is a no-op.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	pkgerrors "github.com/wehubfusion/Procrustes/pkg/errors"
)

// Event statuses.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Publisher is the minimal JetStream surface the reporter depends on.
// This allows tests to provide a mock without requiring a running NATS
// server.
type Publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// WrapJetStream adapts a nats.JetStreamContext to the Publisher interface.
func WrapJetStream(js nats.JetStreamContext) Publisher {
	return &jsAdapter{js: js}
}

type jsAdapter struct {
	js nats.JetStreamContext
}

func (a *jsAdapter) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	return a.js.Publish(subj, data, opts...)
}

// EventError carries error information for failed runs.
type EventError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunEvent is the payload published for each run state change.
type RunEvent struct {
	EventID       string      `json:"event_id"`
	RunID         string      `json:"run_id"`
	Status        string      `json:"status"`
	InputPath     string      `json:"input_path,omitempty"`
	OutputPath    string      `json:"output_path,omitempty"`
	Table         string      `json:"table,omitempty"`
	EnvelopesRead int         `json:"envelopes_read,omitempty"`
	RowsWritten   int         `json:"rows_written,omitempty"`
	RowsLoaded    int64       `json:"rows_loaded,omitempty"`
	Issues        int         `json:"issues,omitempty"`
	DurationMs    int64       `json:"duration_ms,omitempty"`
	Error         *EventError `json:"error,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

// Reporter publishes run events under a subject prefix, e.g.
// "procrustes.runs" yields "procrustes.runs.completed".
type Reporter struct {
	js     Publisher
	prefix string
	logger *zap.Logger
}

// NewReporter creates a Reporter.
func NewReporter(js Publisher, subjectPrefix string, logger *zap.Logger) (*Reporter, error) {
	if js == nil {
		return nil, fmt.Errorf("%w: publisher cannot be nil", pkgerrors.ErrInvalidConfig)
	}
	if subjectPrefix == "" {
		return nil, fmt.Errorf("%w: subject prefix cannot be empty", pkgerrors.ErrInvalidConfig)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: logger cannot be nil", pkgerrors.ErrInvalidConfig)
	}
	return &Reporter{js: js, prefix: subjectPrefix, logger: logger}, nil
}

// Publish sends one event. The event ID and timestamp are filled in here.
// A nil Reporter ignores the call, so callers do not need to branch on
// whether reporting is configured.
func (r *Reporter) Publish(ctx context.Context, event RunEvent) error {
	if r == nil {
		return nil
	}

	event.EventID = uuid.NewString()
	event.Timestamp = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: marshal event: %v", pkgerrors.ErrPublishFailed, err)
	}

	subject := r.prefix + "." + event.Status
	if _, err := r.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		r.logger.Warn("Failed to publish run event",
			zap.String("subject", subject),
			zap.String("runId", event.RunID),
			zap.Error(err))
		return fmt.Errorf("%w: %v", pkgerrors.ErrPublishFailed, err)
	}

	r.logger.Debug("Run event published",
		zap.String("subject", subject),
		zap.String("runId", event.RunID),
		zap.String("status", event.Status))

	return nil
}

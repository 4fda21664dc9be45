package report

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pkgerrors "github.com/wehubfusion/Procrustes/pkg/errors"
)

type capturedPublish struct {
	subject string
	data    []byte
}

type mockPublisher struct {
	published []capturedPublish
	err       error
}

func (m *mockPublisher) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.published = append(m.published, capturedPublish{subject: subj, data: data})
	return &nats.PubAck{Stream: "RUNS", Sequence: uint64(len(m.published))}, nil
}

func TestNewReporterValidation(t *testing.T) {
	logger := zap.NewNop()

	_, err := NewReporter(nil, "procrustes.runs", logger)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)

	_, err = NewReporter(&mockPublisher{}, "", logger)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)

	_, err = NewReporter(&mockPublisher{}, "procrustes.runs", nil)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)

	r, err := NewReporter(&mockPublisher{}, "procrustes.runs", logger)
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestPublishSubjectAndPayload(t *testing.T) {
	pub := &mockPublisher{}
	r, err := NewReporter(pub, "procrustes.runs", zap.NewNop())
	require.NoError(t, err)

	err = r.Publish(context.Background(), RunEvent{
		RunID:         "run-1",
		Status:        StatusCompleted,
		OutputPath:    "/tmp/out.csv",
		EnvelopesRead: 10,
		RowsWritten:   70,
		Issues:        2,
		DurationMs:    1500,
	})
	require.NoError(t, err)
	require.Len(t, pub.published, 1)

	assert.Equal(t, "procrustes.runs.completed", pub.published[0].subject)

	var event RunEvent
	require.NoError(t, json.Unmarshal(pub.published[0].data, &event))
	assert.NotEmpty(t, event.EventID)
	assert.False(t, event.Timestamp.IsZero())
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, StatusCompleted, event.Status)
	assert.Equal(t, 10, event.EnvelopesRead)
	assert.Equal(t, 70, event.RowsWritten)
	assert.Equal(t, 2, event.Issues)
}

func TestPublishFailedEventCarriesError(t *testing.T) {
	pub := &mockPublisher{}
	r, err := NewReporter(pub, "procrustes.runs", zap.NewNop())
	require.NoError(t, err)

	err = r.Publish(context.Background(), RunEvent{
		RunID:  "run-2",
		Status: StatusFailed,
		Error:  &EventError{Code: "LOAD_FAILED", Message: "copy rejected"},
	})
	require.NoError(t, err)
	require.Len(t, pub.published, 1)

	assert.Equal(t, "procrustes.runs.failed", pub.published[0].subject)

	var event RunEvent
	require.NoError(t, json.Unmarshal(pub.published[0].data, &event))
	require.NotNil(t, event.Error)
	assert.Equal(t, "LOAD_FAILED", event.Error.Code)
	assert.Equal(t, "copy rejected", event.Error.Message)
}

func TestPublishErrorWrapped(t *testing.T) {
	pub := &mockPublisher{err: nats.ErrNoResponders}
	r, err := NewReporter(pub, "procrustes.runs", zap.NewNop())
	require.NoError(t, err)

	err = r.Publish(context.Background(), RunEvent{RunID: "run-3", Status: StatusStarted})
	assert.ErrorIs(t, err, pkgerrors.ErrPublishFailed)
}

func TestNilReporterIsNoop(t *testing.T) {
	var r *Reporter
	err := r.Publish(context.Background(), RunEvent{RunID: "run-4", Status: StatusStarted})
	assert.NoError(t, err)
}

package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicFor(t *testing.T) {
	assert.Equal(t, "spanmark.document.imported", TopicFor("spanmark.", EventDocumentImported))
	assert.Equal(t, "job.finished", TopicFor("", EventJobFinished))
}

func TestEnvelope_RoundTrip(t *testing.T) {
	payload := JobFinishedPayload{
		JobID:      "job-1",
		Kind:       "train",
		State:      "succeeded",
		FinishedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	env, err := NewEnvelope(EventJobFinished, "worker", payload)
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, "v1", env.SchemaVersion)

	msg, err := env.ToMessage("spanmark.job.finished")
	require.NoError(t, err)
	assert.Equal(t, "spanmark.job.finished", msg.Topic)
	assert.Equal(t, EventJobFinished, msg.Headers["event_type"])
	assert.Equal(t, "worker", msg.Headers["source_service"])

	decodedEnv, err := EnvelopeFromMessage(&Message{Value: msg.Value})
	require.NoError(t, err)
	assert.Equal(t, env.EventID, decodedEnv.EventID)

	var decoded JobFinishedPayload
	require.NoError(t, decodedEnv.DecodePayload(&decoded))
	assert.Equal(t, payload, decoded)
}

func TestEnvelope_TraceIDHeader(t *testing.T) {
	env, err := NewEnvelope(EventDocumentImported, "apiserver", nil)
	require.NoError(t, err)

	msg, err := env.ToMessage("t")
	require.NoError(t, err)
	_, ok := msg.Headers["trace_id"]
	assert.False(t, ok, "no trace header without a trace ID")

	env.TraceID = "req-1"
	msg, err = env.ToMessage("t")
	require.NoError(t, err)
	assert.Equal(t, "req-1", msg.Headers["trace_id"])
}

func TestEnvelope_DecodeEmptyPayload(t *testing.T) {
	env, err := NewEnvelope(EventDocumentImported, "apiserver", nil)
	require.NoError(t, err)

	var out DocumentImportedPayload
	assert.Error(t, env.DecodePayload(&out))
}

func TestEnvelopeFromMessage_EmptyValue(t *testing.T) {
	_, err := EnvelopeFromMessage(&Message{})
	assert.Error(t, err)
}

func TestNopPublisher(t *testing.T) {
	p := NewNopPublisher()
	assert.NoError(t, p.PublishEvent(context.Background(), EventDatasetExported, "v1", DatasetExportedPayload{Version: "v1"}))
	assert.NoError(t, p.Close())
}

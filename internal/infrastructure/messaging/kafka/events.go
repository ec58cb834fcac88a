// Package kafka carries pipeline events between the API server, the CLI and
// the background worker. Producers wrap every event in a versioned JSON
// envelope and key it by document or dataset so one partition sees a given
// document's events in order; the consumer feeds them to registered handlers
// with bounded retries and a dead-letter escape hatch.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/spanmark/spanmark/pkg/errors"
	"github.com/spanmark/spanmark/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Event types
// ─────────────────────────────────────────────────────────────────────────────

// Event types, published under the configured topic prefix. The topic name is
// TopicFor(prefix, eventType), e.g. "spanmark.document.imported".
const (
	EventDocumentImported  = "document.imported"
	EventAnnotationsMerged = "annotations.merged"
	EventDatasetExported   = "dataset.exported"
	EventJobFinished       = "job.finished"

	// EventDeadLetter receives messages whose handler kept failing after the
	// retry budget ran out.
	EventDeadLetter = "dead_letter"
)

// envelopeSchemaVersion is stamped into every envelope; bump it when a payload
// changes incompatibly.
const envelopeSchemaVersion = "v1"

// TopicFor returns the topic name for an event type under a prefix.
func TopicFor(prefix, eventType string) string {
	return prefix + eventType
}

// ─────────────────────────────────────────────────────────────────────────────
// Payloads
// ─────────────────────────────────────────────────────────────────────────────

// DocumentImportedPayload announces a document that entered the pipeline and
// is ready for the auto-annotation pass.
type DocumentImportedPayload struct {
	DocumentID string    `json:"document_id"`
	Source     string    `json:"source"`
	Sentences  int       `json:"sentences"`
	Tokens     int       `json:"tokens"`
	ImportedAt time.Time `json:"imported_at"`
}

// AnnotationsMergedPayload summarizes a merge pass over one document.
type AnnotationsMergedPayload struct {
	DocumentID       string    `json:"document_id"`
	Entities         int       `json:"entities"`
	Relations        int       `json:"relations"`
	DroppedEntities  int       `json:"dropped_entities"`
	DroppedRelations int       `json:"dropped_relations"`
	Strict           bool      `json:"strict"`
	MergedAt         time.Time `json:"merged_at"`
}

// DatasetExportedPayload announces a published dataset version and its split
// sizes.
type DatasetExportedPayload struct {
	Version    string    `json:"version"`
	Documents  int       `json:"documents"`
	Train      int       `json:"train"`
	Dev        int       `json:"dev"`
	Test       int       `json:"test"`
	Location   string    `json:"location,omitempty"`
	ExportedAt time.Time `json:"exported_at"`
}

// JobFinishedPayload reports a training or prediction job reaching a terminal
// state.
type JobFinishedPayload struct {
	JobID      string    `json:"job_id"`
	Kind       string    `json:"kind"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Wire types
// ─────────────────────────────────────────────────────────────────────────────

// Message is one consumed record, decoupled from the driver's message type so
// handlers stay mockable.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// ProducerMessage is one record to publish.
type ProducerMessage struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// MessageHandler processes one consumed message. Returning an error triggers
// the consumer's retry and dead-letter handling.
type MessageHandler func(ctx context.Context, msg *Message) error

// Envelope is the wire format shared by every pipeline event.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	TraceID       string          `json:"trace_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps a payload in a fresh envelope. source names the emitting
// process ("apiserver", "worker", "cli").
func NewEnvelope(eventType, source string, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal event payload")
	}
	return &Envelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: envelopeSchemaVersion,
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the envelope payload into target.
func (e *Envelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeValidation, "event envelope has no payload")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode event payload")
	}
	return nil
}

// ToMessage serializes the envelope into a producer message for topic. The
// event type and source travel in headers too, so consumers can route without
// parsing the body.
func (e *Envelope) ToMessage(topic string) (*ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal event envelope")
	}
	headers := map[string]string{
		"event_type":     e.EventType,
		"source_service": e.Source,
		"schema_version": e.SchemaVersion,
	}
	if e.TraceID != "" {
		headers["trace_id"] = e.TraceID
	}
	return &ProducerMessage{
		Topic:     topic,
		Value:     val,
		Headers:   headers,
		Timestamp: e.Timestamp,
	}, nil
}

// EnvelopeFromMessage parses a consumed message back into an envelope.
func EnvelopeFromMessage(msg *Message) (*Envelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal event envelope")
	}
	return &env, nil
}

// traceIDFromContext lifts the request ID planted by the HTTP middleware, so
// an event can be tied back to the API call that caused it.
func traceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(common.ContextKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// ─────────────────────────────────────────────────────────────────────────────
// Publisher surface
// ─────────────────────────────────────────────────────────────────────────────

// EventPublisher is the surface application services emit events through.
// The Kafka-backed Producer implements it; NewNopPublisher covers deployments
// that run the pipeline synchronously without a broker.
type EventPublisher interface {
	// PublishEvent wraps payload in an envelope and publishes it to the
	// event type's topic. key selects the partition; use the document ID so
	// one document's events stay ordered.
	PublishEvent(ctx context.Context, eventType, key string, payload interface{}) error
	Close() error
}

type nopPublisher struct{}

// NewNopPublisher returns an EventPublisher that discards every event. It is
// the default when messaging is not configured.
func NewNopPublisher() EventPublisher { return nopPublisher{} }

func (nopPublisher) PublishEvent(ctx context.Context, eventType, key string, payload interface{}) error {
	return nil
}

func (nopPublisher) Close() error { return nil }

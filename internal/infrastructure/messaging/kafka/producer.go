package kafka

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/spanmark/spanmark/internal/config"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/pkg/errors"
)

var ErrProducerClosed = errors.New(errors.ErrCodeInternal, "kafka producer is closed")

const (
	defaultBatchSize       = 100
	defaultBatchTimeout    = 250 * time.Millisecond
	defaultWriteTimeout    = 10 * time.Second
	defaultMaxMessageBytes = 1024 * 1024
)

// ProducerMetrics holds the producer's running counters.
type ProducerMetrics struct {
	MessagesSent   atomic.Int64
	MessagesFailed atomic.Int64
	BytesSent      atomic.Int64
}

// ProducerStats is a point-in-time copy of the counters.
type ProducerStats struct {
	MessagesSent   int64
	MessagesFailed int64
	BytesSent      int64
}

// WriterInterface abstracts kafka.Writer so tests can capture writes.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes pipeline events. It implements EventPublisher.
type Producer struct {
	writer      WriterInterface
	topicPrefix string
	source      string
	maxBytes    int
	logger      logging.Logger
	closed      atomic.Bool
	metrics     *ProducerMetrics
}

// NewProducer builds a producer from the application Kafka configuration.
// source names the emitting process and is stamped into every envelope.
//
// Messages are routed by key hash, so all events carrying the same document
// ID land on the same partition and arrive in publish order.
func NewProducer(cfg config.KafkaConfig, source string, logger logging.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers are required")
	}
	if cfg.ProducerRetries < 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka producer_retries must be >= 0")
	}
	if source == "" {
		source = "spanmark"
	}
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = config.DefaultKafkaTopicPrefix
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		MaxAttempts:  cfg.ProducerRetries + 1,
		BatchSize:    batchSize,
		BatchTimeout: defaultBatchTimeout,
		WriteTimeout: defaultWriteTimeout,
		// Events gate downstream pipeline stages; wait for the full ISR.
		RequiredAcks: kafka.RequireAll,
		Transport:    &kafka.Transport{DialTimeout: 10 * time.Second},
	}

	return &Producer{
		writer:      writer,
		topicPrefix: prefix,
		source:      source,
		maxBytes:    defaultMaxMessageBytes,
		logger:      logger,
		metrics:     &ProducerMetrics{},
	}, nil
}

// PublishEvent wraps payload in an envelope and publishes it under the
// producer's topic prefix. The request ID, when present on ctx, travels as
// the envelope's trace ID.
func (p *Producer) PublishEvent(ctx context.Context, eventType, key string, payload interface{}) error {
	if eventType == "" {
		return errors.New(errors.ErrCodeValidation, "event type is required")
	}
	env, err := NewEnvelope(eventType, p.source, payload)
	if err != nil {
		return err
	}
	env.TraceID = traceIDFromContext(ctx)

	msg, err := env.ToMessage(TopicFor(p.topicPrefix, eventType))
	if err != nil {
		return err
	}
	msg.Key = []byte(key)
	return p.Publish(ctx, msg)
}

// Publish writes a single prepared message.
func (p *Producer) Publish(ctx context.Context, msg *ProducerMessage) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if msg.Topic == "" {
		return errors.New(errors.ErrCodeValidation, "message topic is required")
	}
	if len(msg.Value) == 0 {
		return errors.New(errors.ErrCodeValidation, "message value is required")
	}
	if len(msg.Value) > p.maxBytes {
		return errors.Newf(errors.ErrCodeValidation, "message of %d bytes exceeds the %d byte limit", len(msg.Value), p.maxBytes)
	}

	start := time.Now()
	if err := p.writer.WriteMessages(ctx, toKafkaMessage(msg)); err != nil {
		p.metrics.MessagesFailed.Add(1)
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to publish message")
	}

	p.metrics.MessagesSent.Add(1)
	p.metrics.BytesSent.Add(int64(len(msg.Value)))

	p.logger.Debug("Message published",
		logging.String("topic", msg.Topic),
		logging.Int64("latency_ms", time.Since(start).Milliseconds()))
	return nil
}

// Stats returns a snapshot of the running counters.
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.metrics.MessagesSent.Load(),
		MessagesFailed: p.metrics.MessagesFailed.Load(),
		BytesSent:      p.metrics.BytesSent.Load(),
	}
}

// Close flushes and closes the underlying writer. Safe to call twice.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("Kafka producer closed",
		logging.Int64("sent", p.metrics.MessagesSent.Load()),
		logging.Int64("failed", p.metrics.MessagesFailed.Load()))
	return err
}

func toKafkaMessage(msg *ProducerMessage) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return kafka.Message{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
		Time:    ts,
	}
}

package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/spanmark/spanmark/internal/config"
	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/pkg/errors"
)

var (
	ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer is already running")
	ErrNoTopics       = errors.New(errors.ErrCodeValidation, "consumer needs at least one topic")
)

const (
	defaultFetchMaxBytes   = 10 * 1024 * 1024
	defaultMaxRetryBackoff = 30 * time.Second
)

// ConsumerMetrics holds the consumer's running counters.
type ConsumerMetrics struct {
	MessagesConsumed     atomic.Int64
	MessagesProcessed    atomic.Int64
	MessagesFailed       atomic.Int64
	MessagesRetried      atomic.Int64
	MessagesDeadLettered atomic.Int64
	Lag                  atomic.Int64
}

// ConsumerStats is a point-in-time copy of the counters.
type ConsumerStats struct {
	MessagesConsumed     int64
	MessagesProcessed    int64
	MessagesFailed       int64
	MessagesRetried      int64
	MessagesDeadLettered int64
	Lag                  int64
}

// ReaderInterface abstracts kafka.Reader so tests can feed messages.
type ReaderInterface interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads pipeline events from the subscribed topics and dispatches
// them to registered handlers. One message is in flight per partition at a
// time; an offset is committed only after its handler returned nil or the
// message was dead-lettered, so a crash replays unfinished work.
type Consumer struct {
	reader ReaderInterface
	logger logging.Logger

	handlers map[string]MessageHandler
	mu       sync.RWMutex

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	maxRetries      int
	retryBackoff    time.Duration
	maxRetryBackoff time.Duration

	deadLetter      *Producer
	deadLetterTopic string

	metrics *ConsumerMetrics
}

// NewConsumer builds a consumer group member over the given topics (full
// names, including the prefix). Retry behaviour comes from the worker
// configuration; messages that fail every retry go to the dead-letter topic.
func NewConsumer(cfg config.KafkaConfig, workerCfg config.WorkerConfig, topics []string, logger logging.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers are required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New(errors.ErrCodeValidation, "kafka group_id is required")
	}
	if len(topics) == 0 {
		return nil, ErrNoTopics
	}

	startOffset := kafka.FirstOffset
	switch cfg.AutoOffsetReset {
	case "", "earliest":
	case "latest":
		startOffset = kafka.LastOffset
	default:
		return nil, errors.Newf(errors.ErrCodeValidation, "kafka auto_offset_reset %q is invalid", cfg.AutoOffsetReset)
	}

	// Zero values cover directly-constructed configs that never went
	// through config.ApplyDefaults.
	maxRetries := workerCfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryBackoff := workerCfg.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = 2 * time.Second
	}

	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = config.DefaultKafkaTopicPrefix
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		GroupTopics:       topics,
		MinBytes:          1,
		MaxBytes:          defaultFetchMaxBytes,
		MaxWait:           time.Second,
		SessionTimeout:    30 * time.Second,
		HeartbeatInterval: 3 * time.Second,
		StartOffset:       startOffset,
		Dialer:            &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true},
	})

	dlProducer, err := NewProducer(cfg, "dead-letter", logger)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		reader:          reader,
		logger:          logger,
		handlers:        make(map[string]MessageHandler),
		maxRetries:      maxRetries,
		retryBackoff:    retryBackoff,
		maxRetryBackoff: defaultMaxRetryBackoff,
		deadLetter:      dlProducer,
		deadLetterTopic: TopicFor(prefix, EventDeadLetter),
		metrics:         &ConsumerMetrics{},
	}, nil
}

// Subscribe registers the handler for a topic. Registering twice replaces
// the previous handler.
func (c *Consumer) Subscribe(topic string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = handler
	c.logger.Info("Subscribed to topic", logging.String("topic", topic))
}

// Unsubscribe removes the handler for a topic.
func (c *Consumer) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, topic)
	c.logger.Info("Unsubscribed from topic", logging.String("topic", topic))
}

// Start launches the consume loop. It returns immediately; the loop runs
// until Close or until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.Info("Kafka consumer started")
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Failed to fetch message", logging.Err(err))
			time.Sleep(time.Second) // keep a broken broker from spinning the loop
			continue
		}

		c.metrics.MessagesConsumed.Add(1)
		c.metrics.Lag.Store(m.HighWaterMark - m.Offset)

		msg := fromKafkaMessage(m)

		c.mu.RLock()
		handler, ok := c.handlers[m.Topic]
		c.mu.RUnlock()

		if !ok {
			c.logger.Warn("No handler for topic, skipping message",
				logging.String("topic", m.Topic),
				logging.Int64("offset", m.Offset))
			c.commit(ctx, m)
			continue
		}

		if err := c.processMessage(ctx, msg, handler); err != nil {
			// Context cancelled mid-retry. Leave the offset uncommitted so
			// the message is redelivered after restart.
			continue
		}
		c.commit(ctx, m)
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		c.logger.Error("Failed to commit offset",
			logging.String("topic", m.Topic),
			logging.Int64("offset", m.Offset),
			logging.Err(err))
	}
}

// processMessage runs the handler with exponential backoff retries. It
// returns nil once the message is handled, either successfully or by
// dead-lettering it; only a cancelled context surfaces as an error.
func (c *Consumer) processMessage(ctx context.Context, msg *Message, handler MessageHandler) error {
	err := handler(ctx, msg)
	if err == nil {
		c.metrics.MessagesProcessed.Add(1)
		return nil
	}

	backoff := c.retryBackoff
	for i := 0; i < c.maxRetries; i++ {
		c.metrics.MessagesRetried.Add(1)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if err = handler(ctx, msg); err == nil {
			c.metrics.MessagesProcessed.Add(1)
			return nil
		}

		backoff *= 2
		if backoff > c.maxRetryBackoff {
			backoff = c.maxRetryBackoff
		}
	}

	c.metrics.MessagesFailed.Add(1)
	c.logger.Error("Message processing failed after retries",
		logging.String("topic", msg.Topic),
		logging.Int64("offset", msg.Offset),
		logging.Int("retries", c.maxRetries),
		logging.Err(err))

	c.sendToDeadLetter(ctx, msg, err)
	return nil
}

// sendToDeadLetter forwards a poisoned message, preserving its key and body
// and recording where it came from and why it failed.
func (c *Consumer) sendToDeadLetter(ctx context.Context, msg *Message, cause error) {
	headers := make(map[string]string, len(msg.Headers)+2)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["original_topic"] = msg.Topic
	headers["error_message"] = cause.Error()

	dlMsg := &ProducerMessage{
		Topic:   c.deadLetterTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}
	if err := c.deadLetter.Publish(ctx, dlMsg); err != nil {
		c.logger.Error("Failed to publish to dead-letter topic",
			logging.String("topic", msg.Topic),
			logging.Err(err))
		return
	}
	c.metrics.MessagesDeadLettered.Add(1)
}

// Stats returns a snapshot of the running counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		MessagesConsumed:     c.metrics.MessagesConsumed.Load(),
		MessagesProcessed:    c.metrics.MessagesProcessed.Load(),
		MessagesFailed:       c.metrics.MessagesFailed.Load(),
		MessagesRetried:      c.metrics.MessagesRetried.Load(),
		MessagesDeadLettered: c.metrics.MessagesDeadLettered.Load(),
		Lag:                  c.metrics.Lag.Load(),
	}
}

// Close stops the consume loop, waits for the in-flight message, and closes
// the reader and the dead-letter producer. Safe to call twice.
func (c *Consumer) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	var firstErr error
	if err := c.reader.Close(); err != nil {
		firstErr = err
	}
	if err := c.deadLetter.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	c.logger.Info("Kafka consumer closed",
		logging.Int64("consumed", c.metrics.MessagesConsumed.Load()),
		logging.Int64("processed", c.metrics.MessagesProcessed.Load()))
	return firstErr
}

func fromKafkaMessage(m kafka.Message) *Message {
	msg := &Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Headers:   make(map[string]string, len(m.Headers)),
		Timestamp: m.Time,
	}
	for _, h := range m.Headers {
		msg.Headers[h.Key] = string(h.Value)
	}
	return msg
}

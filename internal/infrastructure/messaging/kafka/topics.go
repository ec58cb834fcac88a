package kafka

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
	"github.com/spanmark/spanmark/pkg/errors"
)

// TopicConfig describes one topic to create.
type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	RetentionMs       int64
}

// ConnInterface abstracts the kafka admin connection for testing.
type ConnInterface interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	DeleteTopics(topics ...string) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager creates and inspects topics against the cluster controller.
// The worker runs EnsureDefaultTopics at startup so a fresh broker works
// without manual topic administration.
type TopicManager struct {
	conn   ConnInterface
	logger logging.Logger
}

// NewTopicManager dials the cluster and connects to its controller, the only
// broker that accepts topic creation.
func NewTopicManager(brokers []string, logger logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers are required")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to dial kafka broker")
	}
	controller, err := conn.Controller()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to resolve kafka controller")
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	_ = conn.Close()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to dial kafka controller")
	}
	return &TopicManager{conn: controllerConn, logger: logger}, nil
}

// CreateTopic creates a topic, treating "already exists" as success.
func (m *TopicManager) CreateTopic(ctx context.Context, cfg TopicConfig) error {
	if cfg.Name == "" {
		return errors.New(errors.ErrCodeValidation, "topic name is required")
	}
	if cfg.NumPartitions <= 0 {
		return errors.New(errors.ErrCodeValidation, "topic partitions must be > 0")
	}
	if cfg.ReplicationFactor <= 0 {
		return errors.New(errors.ErrCodeValidation, "topic replication factor must be > 0")
	}

	kCfg := kafka.TopicConfig{
		Topic:             cfg.Name,
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}
	if cfg.RetentionMs > 0 {
		kCfg.ConfigEntries = []kafka.ConfigEntry{
			{ConfigName: "retention.ms", ConfigValue: fmt.Sprintf("%d", cfg.RetentionMs)},
		}
	}

	if err := m.conn.CreateTopics(kCfg); err != nil {
		if err == kafka.TopicAlreadyExists {
			return nil
		}
		// Racing creators can also surface as a generic error; re-check.
		if exists, _ := m.TopicExists(ctx, cfg.Name); exists {
			return nil
		}
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to create topic "+cfg.Name)
	}
	m.logger.Info("Topic created",
		logging.String("topic", cfg.Name),
		logging.Int("partitions", cfg.NumPartitions))
	return nil
}

// DeleteTopic removes a topic and everything in it.
func (m *TopicManager) DeleteTopic(ctx context.Context, name string) error {
	if err := m.conn.DeleteTopics(name); err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to delete topic "+name)
	}
	m.logger.Warn("Topic deleted", logging.String("topic", name))
	return nil
}

// TopicExists reports whether the topic has at least one partition.
func (m *TopicManager) TopicExists(ctx context.Context, name string) (bool, error) {
	partitions, err := m.conn.ReadPartitions(name)
	if err != nil {
		if err == kafka.UnknownTopicOrPartition {
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to read partitions")
	}
	return len(partitions) > 0, nil
}

// ListTopics returns every topic name visible on the cluster.
func (m *TopicManager) ListTopics(ctx context.Context) ([]string, error) {
	partitions, err := m.conn.ReadPartitions()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to read partitions")
	}

	seen := make(map[string]bool)
	var topics []string
	for _, p := range partitions {
		if !seen[p.Topic] {
			seen[p.Topic] = true
			topics = append(topics, p.Topic)
		}
	}
	return topics, nil
}

// EnsureTopics creates every topic that does not exist yet.
func (m *TopicManager) EnsureTopics(ctx context.Context, topics []TopicConfig) error {
	for _, topic := range topics {
		if err := m.CreateTopic(ctx, topic); err != nil {
			return err
		}
	}
	return nil
}

// EnsureDefaultTopics creates the pipeline's event topics under the prefix.
func (m *TopicManager) EnsureDefaultTopics(ctx context.Context, prefix string) error {
	return m.EnsureTopics(ctx, DefaultTopics(prefix))
}

// Close closes the controller connection.
func (m *TopicManager) Close() error {
	return m.conn.Close()
}

// DefaultTopics is the topic set the pipeline publishes to. Replication is 1
// to suit a single-broker deployment; clusters override per topic.
func DefaultTopics(prefix string) []TopicConfig {
	const day = int64(24 * 3600 * 1000)
	return []TopicConfig{
		{Name: TopicFor(prefix, EventDocumentImported), NumPartitions: 6, ReplicationFactor: 1, RetentionMs: 7 * day},
		{Name: TopicFor(prefix, EventAnnotationsMerged), NumPartitions: 6, ReplicationFactor: 1, RetentionMs: 7 * day},
		{Name: TopicFor(prefix, EventDatasetExported), NumPartitions: 3, ReplicationFactor: 1, RetentionMs: 30 * day},
		{Name: TopicFor(prefix, EventJobFinished), NumPartitions: 3, ReplicationFactor: 1, RetentionMs: 30 * day},
		{Name: TopicFor(prefix, EventDeadLetter), NumPartitions: 3, ReplicationFactor: 1, RetentionMs: 30 * day},
	}
}

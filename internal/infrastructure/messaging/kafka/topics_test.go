package kafka

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spanmark/spanmark/internal/infrastructure/monitoring/logging"
)

type mockKafkaConn struct {
	createFunc func(topics ...kafka.TopicConfig) error
	deleteFunc func(topics ...string) error
	readFunc   func(topics ...string) ([]kafka.Partition, error)
	closeFunc  func() error
}

func (m *mockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	if m.createFunc != nil {
		return m.createFunc(topics...)
	}
	return nil
}

func (m *mockKafkaConn) DeleteTopics(topics ...string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(topics...)
	}
	return nil
}

func (m *mockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	if m.readFunc != nil {
		return m.readFunc(topics...)
	}
	return nil, nil
}

func (m *mockKafkaConn) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

func newTestTopicManager(mock ConnInterface) *TopicManager {
	return &TopicManager{conn: mock, logger: logging.NewNopLogger()}
}

func TestDefaultTopics(t *testing.T) {
	topics := DefaultTopics("spanmark.")
	require.Len(t, topics, 5)

	names := make([]string, len(topics))
	for i, tc := range topics {
		names[i] = tc.Name
		assert.True(t, strings.HasPrefix(tc.Name, "spanmark."), tc.Name)
		assert.Greater(t, tc.NumPartitions, 0)
		assert.Greater(t, tc.ReplicationFactor, 0)
		assert.Greater(t, tc.RetentionMs, int64(0))
	}
	assert.Contains(t, names, "spanmark.document.imported")
	assert.Contains(t, names, "spanmark.annotations.merged")
	assert.Contains(t, names, "spanmark.dataset.exported")
	assert.Contains(t, names, "spanmark.job.finished")
	assert.Contains(t, names, "spanmark.dead_letter")
}

func TestCreateTopic_Success(t *testing.T) {
	var created []kafka.TopicConfig
	mock := &mockKafkaConn{
		createFunc: func(topics ...kafka.TopicConfig) error {
			created = topics
			return nil
		},
	}
	m := newTestTopicManager(mock)

	err := m.CreateTopic(context.Background(), TopicConfig{
		Name:              "spanmark.document.imported",
		NumPartitions:     6,
		ReplicationFactor: 1,
		RetentionMs:       604800000,
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "spanmark.document.imported", created[0].Topic)
	assert.Equal(t, 6, created[0].NumPartitions)
	require.Len(t, created[0].ConfigEntries, 1)
	assert.Equal(t, "retention.ms", created[0].ConfigEntries[0].ConfigName)
	assert.Equal(t, "604800000", created[0].ConfigEntries[0].ConfigValue)
}

func TestCreateTopic_AlreadyExists(t *testing.T) {
	mock := &mockKafkaConn{
		createFunc: func(topics ...kafka.TopicConfig) error {
			return kafka.TopicAlreadyExists
		},
	}
	m := newTestTopicManager(mock)

	err := m.CreateTopic(context.Background(), TopicConfig{Name: "t", NumPartitions: 1, ReplicationFactor: 1})
	assert.NoError(t, err)
}

func TestCreateTopic_RacingCreatorFallback(t *testing.T) {
	mock := &mockKafkaConn{
		createFunc: func(topics ...kafka.TopicConfig) error {
			return errors.New("request timed out")
		},
		readFunc: func(topics ...string) ([]kafka.Partition, error) {
			return []kafka.Partition{{Topic: topics[0]}}, nil
		},
	}
	m := newTestTopicManager(mock)

	err := m.CreateTopic(context.Background(), TopicConfig{Name: "t", NumPartitions: 1, ReplicationFactor: 1})
	assert.NoError(t, err, "the topic exists, so whoever created it wins")
}

func TestCreateTopic_Validation(t *testing.T) {
	m := newTestTopicManager(&mockKafkaConn{})
	ctx := context.Background()

	assert.Error(t, m.CreateTopic(ctx, TopicConfig{NumPartitions: 1, ReplicationFactor: 1}))
	assert.Error(t, m.CreateTopic(ctx, TopicConfig{Name: "t", ReplicationFactor: 1}))
	assert.Error(t, m.CreateTopic(ctx, TopicConfig{Name: "t", NumPartitions: 1}))
}

func TestDeleteTopic(t *testing.T) {
	var deleted []string
	mock := &mockKafkaConn{
		deleteFunc: func(topics ...string) error {
			deleted = topics
			return nil
		},
	}
	m := newTestTopicManager(mock)

	require.NoError(t, m.DeleteTopic(context.Background(), "spanmark.dead_letter"))
	assert.Equal(t, []string{"spanmark.dead_letter"}, deleted)

	mock.deleteFunc = func(topics ...string) error { return errors.New("not authorized") }
	assert.Error(t, m.DeleteTopic(context.Background(), "spanmark.dead_letter"))
}

func TestTopicExists(t *testing.T) {
	mock := &mockKafkaConn{
		readFunc: func(topics ...string) ([]kafka.Partition, error) {
			if topics[0] == "present" {
				return []kafka.Partition{{Topic: "present"}}, nil
			}
			return nil, kafka.UnknownTopicOrPartition
		},
	}
	m := newTestTopicManager(mock)

	exists, err := m.TopicExists(context.Background(), "present")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = m.TopicExists(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestListTopics_Dedupes(t *testing.T) {
	mock := &mockKafkaConn{
		readFunc: func(topics ...string) ([]kafka.Partition, error) {
			return []kafka.Partition{
				{Topic: "a", ID: 0},
				{Topic: "a", ID: 1},
				{Topic: "b", ID: 0},
			}, nil
		},
	}
	m := newTestTopicManager(mock)

	topics, err := m.ListTopics(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, topics)
}

func TestEnsureDefaultTopics(t *testing.T) {
	var created []string
	mock := &mockKafkaConn{
		createFunc: func(topics ...kafka.TopicConfig) error {
			for _, tc := range topics {
				created = append(created, tc.Topic)
			}
			return nil
		},
	}
	m := newTestTopicManager(mock)

	require.NoError(t, m.EnsureDefaultTopics(context.Background(), "spanmark."))
	assert.Len(t, created, 5)
	assert.Contains(t, created, "spanmark.document.imported")
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultServerMode, cfg.Server.Mode)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, DefaultDBHost, cfg.Database.Host)
	assert.Equal(t, DefaultDBPort, cfg.Database.Port)
	assert.Equal(t, DefaultDBName, cfg.Database.DBName)
	assert.Equal(t, DefaultDBMaxConns, cfg.Database.MaxConns)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, DefaultNeo4jURI, cfg.Neo4j.URI)
	assert.Equal(t, DefaultNeo4jDatabase, cfg.Neo4j.Database)

	assert.Equal(t, DefaultRedisMode, cfg.Redis.Mode)
	assert.Equal(t, DefaultRedisAddr, cfg.Redis.Addr)
	assert.Equal(t, DefaultRedisKeyPrefix, cfg.Redis.KeyPrefix)

	assert.Equal(t, []string{DefaultKafkaBroker}, cfg.Kafka.Brokers)
	assert.Equal(t, DefaultKafkaGroupID, cfg.Kafka.GroupID)
	assert.Equal(t, DefaultKafkaTopicPrefix, cfg.Kafka.TopicPrefix)
	assert.Equal(t, "earliest", cfg.Kafka.AutoOffsetReset)

	assert.Equal(t, []string{DefaultOpenSearchAddress}, cfg.OpenSearch.Addresses)
	assert.Equal(t, DefaultIndexPrefix, cfg.OpenSearch.IndexPrefix)
	assert.Equal(t, 500, cfg.OpenSearch.BulkBatchSize)

	assert.Equal(t, DefaultMinIOEndpoint, cfg.MinIO.Endpoint)
	assert.Equal(t, DefaultMinIOBucket, cfg.MinIO.Bucket)

	assert.Equal(t, DefaultWorkerConcurrency, cfg.Worker.Concurrency)
	assert.Equal(t, 3, cfg.Worker.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Worker.RetryBackoff)
	assert.Equal(t, DefaultWorkerHealthPort, cfg.Worker.HealthPort)

	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)

	assert.Equal(t, DefaultMaxChunkTokens, cfg.Pipeline.MaxChunkTokens)
	assert.Equal(t, DefaultMinSentenceTokens, cfg.Pipeline.MinSentenceTokens)

	assert.Equal(t, DefaultTrainingInterpreter, cfg.Training.Interpreter)
	assert.Equal(t, DefaultPredictionsFile, cfg.Training.PredictionsFile)

	assert.Equal(t, DefaultDatasetOutputDir, cfg.Dataset.OutputDir)
	assert.Equal(t, DefaultTrainRatio, cfg.Dataset.TrainRatio)
	assert.Equal(t, DefaultDevRatio, cfg.Dataset.DevRatio)
	assert.Equal(t, DefaultTestRatio, cfg.Dataset.TestRatio)
}

func TestApplyDefaults_PreserveExistingValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9999
	cfg.Database.Host = "db.internal"
	cfg.Kafka.Brokers = []string{"k1:9092", "k2:9092"}
	cfg.Pipeline.MaxChunkTokens = 64
	ApplyDefaults(cfg)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 64, cfg.Pipeline.MaxChunkTokens)
}

func TestApplyDefaults_PartialDatasetRatiosKept(t *testing.T) {
	// An explicitly configured split is never overwritten, even when it
	// does not use all three ratios' default values.
	cfg := &Config{}
	cfg.Dataset.TrainRatio = 0.7
	cfg.Dataset.DevRatio = 0.2
	cfg.Dataset.TestRatio = 0.1
	ApplyDefaults(cfg)

	assert.Equal(t, 0.7, cfg.Dataset.TrainRatio)
	assert.Equal(t, 0.2, cfg.Dataset.DevRatio)
	assert.Equal(t, 0.1, cfg.Dataset.TestRatio)
}

func TestApplyDefaults_NilConfig(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}

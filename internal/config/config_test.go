package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/spanmark/spanmark/internal/config"
)

// validConfig returns a Config that passes Validate() with all required fields set.
func validConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	// Fill required fields that have no default.
	cfg.Database.User = "spanmark"
	cfg.Database.Password = "secret"
	return cfg
}

func TestConfig_Validate_ValidConfig(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_MissingDatabaseHost(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Database.Host = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.host")
}

func TestConfig_Validate_MissingDatabaseUser(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Database.User = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.user")
}

func TestConfig_Validate_MissingDatabaseName(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Database.DBName = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.db_name")
}

func TestConfig_Validate_InvalidServerPort(t *testing.T) {
	t.Parallel()
	cases := []int{0, -1, 65536, 100000}
	for _, p := range cases {
		p := p
		t.Run("", func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			cfg.Server.Port = p
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "server.port")
		})
	}
}

func TestConfig_Validate_InvalidServerMode(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Server.Mode = "production" // not an accepted value
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.mode")
}

func TestConfig_Validate_InvalidDatabasePort(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Database.Port = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.port")
}

func TestConfig_Validate_DatabaseMaxConnsLessThanOne(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Database.MaxConns = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.max_conns")
}

func TestConfig_Validate_MissingNeo4jURI(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Neo4j.URI = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neo4j.uri")
}

func TestConfig_Validate_MissingRedisAddr(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Redis.Addr = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.addr")
}

func TestConfig_Validate_NegativeRedisDB(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Redis.DB = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.db")
}

func TestConfig_Validate_InvalidRedisMode(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Redis.Mode = "replicated"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.mode")
}

func TestConfig_Validate_SentinelRequiresMasterName(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Redis.Mode = "sentinel"
	cfg.Redis.Addrs = []string{"localhost:26379"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.master_name")

	cfg.Redis.MasterName = "mymaster"
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_ClusterRequiresAddrs(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Redis.Mode = "cluster"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.addrs")

	cfg.Redis.Addrs = []string{"localhost:7000", "localhost:7001"}
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_EmptyKafkaBrokers(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Kafka.Brokers = nil
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka.brokers")
}

func TestConfig_Validate_MissingKafkaGroupID(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Kafka.GroupID = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka.group_id")
}

func TestConfig_Validate_EmptyOpenSearchAddresses(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.OpenSearch.Addresses = nil
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opensearch.addresses")
}

func TestConfig_Validate_MissingMinIOEndpoint(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.MinIO.Endpoint = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "minio.endpoint")
}

func TestConfig_Validate_WorkerConcurrencyLessThanOne(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Worker.Concurrency = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker.concurrency")
}

func TestConfig_Validate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Log.Level = "verbose"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestConfig_Validate_InvalidLogFormat(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Log.Format = "xml"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.format")
}

func TestConfig_Validate_MaxChunkTokensLessThanOne(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Pipeline.MaxChunkTokens = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.max_chunk_tokens")
}

func TestConfig_Validate_MinSentenceTokensLessThanOne(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Pipeline.MinSentenceTokens = -3
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.min_sentence_tokens")
}

func TestConfig_Validate_MissingTrainingInterpreter(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Training.Interpreter = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "training.interpreter")
}

func TestConfig_Validate_DatasetRatioOutOfRange(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Dataset.TrainRatio = 1.4
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset.train_ratio")
}

func TestConfig_Validate_DatasetRatiosMustSumToOne(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Dataset.TrainRatio = 0.5
	cfg.Dataset.DevRatio = 0.2
	cfg.Dataset.TestRatio = 0.2
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to 1.0")
}

func TestConfig_Validate_DatasetRatioFloatTolerance(t *testing.T) {
	t.Parallel()
	// Three thirds never sum to exactly 1.0 in floating point.
	cfg := validConfig()
	cfg.Dataset.TrainRatio = 1.0 / 3.0
	cfg.Dataset.DevRatio = 1.0 / 3.0
	cfg.Dataset.TestRatio = 1.0 / 3.0
	assert.NoError(t, cfg.Validate())
}

func TestConfig_SubStructs_ZeroValues(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	assert.Equal(t, 0, cfg.Server.Port)
	assert.Equal(t, "", cfg.Server.Mode)
	assert.Equal(t, "", cfg.Database.Host)
	assert.Equal(t, 0, cfg.Database.Port)
	assert.Equal(t, "", cfg.Neo4j.URI)
	assert.Equal(t, "", cfg.Redis.Addr)
	assert.Nil(t, cfg.Kafka.Brokers)
	assert.Nil(t, cfg.OpenSearch.Addresses)
	assert.Equal(t, "", cfg.MinIO.Endpoint)
	assert.Equal(t, "", cfg.Log.Level)
	assert.Equal(t, 0, cfg.Worker.Concurrency)
	assert.False(t, cfg.Pipeline.AllowOverlaps)
	assert.Equal(t, time.Duration(0), cfg.Training.Timeout)
	assert.Equal(t, 0.0, cfg.Dataset.TrainRatio)
}

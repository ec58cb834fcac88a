// Package config provides configuration loading, defaults, and validation for
// the spanmark annotation platform.
package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort = 8080
	DefaultServerMode = "debug"

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "spanmark"
	DefaultDBMaxConns = 25

	DefaultRedisMode      = "standalone"
	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "spanmark:"

	DefaultKafkaBroker      = "localhost:9092"
	DefaultKafkaGroupID     = "spanmark-workers"
	DefaultKafkaTopicPrefix = "spanmark."

	DefaultNeo4jURI      = "bolt://localhost:7687"
	DefaultNeo4jDatabase = "neo4j"

	DefaultOpenSearchAddress = "http://localhost:9200"
	DefaultIndexPrefix       = "spanmark"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "spanmark-datasets"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultWorkerConcurrency = 4
	DefaultWorkerHealthPort  = 8081

	DefaultMaxChunkTokens    = 100
	DefaultMinSentenceTokens = 3

	DefaultTrainingInterpreter = "python3"
	DefaultPredictionsFile     = "predictions.json"

	DefaultDatasetOutputDir = "./data"
	DefaultTrainRatio       = 0.8
	DefaultDevRatio         = 0.1
	DefaultTestRatio        = 0.1
)

// ApplyDefaults fills every zero-value field in cfg with the platform default.
// Fields that have already been set by the caller (non-zero values) are left
// unchanged so that explicit configuration always wins.  It must be called
// after unmarshalling raw config data and before Validate() so that
// optional-but-defaulted fields are never seen as missing.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Mode == "" {
		cfg.Redis.Mode = DefaultRedisMode
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	// DB is an int; 0 is a valid explicit value so we cannot distinguish "not
	// set" from "set to 0".  We leave it as-is (0 is also the default).

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}
	if cfg.Kafka.TopicPrefix == "" {
		cfg.Kafka.TopicPrefix = DefaultKafkaTopicPrefix
	}

	// ── Neo4j ─────────────────────────────────────────────────────────────────
	if cfg.Neo4j.URI == "" {
		cfg.Neo4j.URI = DefaultNeo4jURI
	}
	if cfg.Neo4j.Database == "" {
		cfg.Neo4j.Database = DefaultNeo4jDatabase
	}

	// ── OpenSearch ────────────────────────────────────────────────────────────
	if len(cfg.OpenSearch.Addresses) == 0 {
		cfg.OpenSearch.Addresses = []string{DefaultOpenSearchAddress}
	}
	if cfg.OpenSearch.IndexPrefix == "" {
		cfg.OpenSearch.IndexPrefix = DefaultIndexPrefix
	}
	if cfg.OpenSearch.BulkBatchSize == 0 {
		cfg.OpenSearch.BulkBatchSize = 500
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = 3
	}
	if cfg.Worker.RetryBackoff == 0 {
		cfg.Worker.RetryBackoff = 2 * time.Second
	}
	if cfg.Worker.HealthPort == 0 {
		cfg.Worker.HealthPort = DefaultWorkerHealthPort
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	if cfg.Pipeline.MaxChunkTokens == 0 {
		cfg.Pipeline.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if cfg.Pipeline.MinSentenceTokens == 0 {
		cfg.Pipeline.MinSentenceTokens = DefaultMinSentenceTokens
	}

	// ── Training ──────────────────────────────────────────────────────────────
	if cfg.Training.Interpreter == "" {
		cfg.Training.Interpreter = DefaultTrainingInterpreter
	}
	if cfg.Training.PredictionsFile == "" {
		cfg.Training.PredictionsFile = DefaultPredictionsFile
	}

	// ── Dataset ───────────────────────────────────────────────────────────────
	if cfg.Dataset.OutputDir == "" {
		cfg.Dataset.OutputDir = DefaultDatasetOutputDir
	}
	// All-zero ratios mean "not configured"; an explicit partial split must
	// still sum to 1.0 and is caught by Validate.
	if cfg.Dataset.TrainRatio == 0 && cfg.Dataset.DevRatio == 0 && cfg.Dataset.TestRatio == 0 {
		cfg.Dataset.TrainRatio = DefaultTrainRatio
		cfg.Dataset.DevRatio = DefaultDevRatio
		cfg.Dataset.TestRatio = DefaultTestRatio
	}
}

// Package config defines all configuration structures for the spanmark
// annotation platform.  No I/O or parsing logic lives here — only plain data
// types and validation.
package config

import (
	"fmt"
	"math"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	// MigrationPath overrides the embedded migration set when non-empty.
	MigrationPath string `mapstructure:"migration_path"`
}

// Neo4jConfig holds Neo4j graph-export connection parameters.
type Neo4jConfig struct {
	URI                   string        `mapstructure:"uri"`
	User                  string        `mapstructure:"user"`
	Password              string        `mapstructure:"password"`
	MaxConnectionPoolSize int           `mapstructure:"max_connection_pool_size"`
	ConnectionTimeout     time.Duration `mapstructure:"connection_timeout"`
	Database              string        `mapstructure:"database"`
}

// RedisConfig holds Redis connection parameters for the lexicon term store.
type RedisConfig struct {
	Mode string `mapstructure:"mode"` // "standalone" | "sentinel" | "cluster"
	// Addr is the server address in standalone mode.
	Addr string `mapstructure:"addr"`
	// Addrs lists the sentinel addresses in sentinel mode and the cluster
	// node addresses in cluster mode.  Ignored in standalone mode.
	Addrs        []string      `mapstructure:"addrs"`
	MasterName   string        `mapstructure:"master_name"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds Apache Kafka producer/consumer parameters.
type KafkaConfig struct {
	Brokers         []string `mapstructure:"brokers"`
	GroupID         string   `mapstructure:"group_id"`
	AutoOffsetReset string   `mapstructure:"auto_offset_reset"` // "earliest" | "latest"
	ProducerRetries int      `mapstructure:"producer_retries"`
	BatchSize       int      `mapstructure:"batch_size"`
	TopicPrefix     string   `mapstructure:"topic_prefix"`
}

// OpenSearchConfig holds OpenSearch cluster connection parameters for the
// entity mention index.
type OpenSearchConfig struct {
	Addresses          []string `mapstructure:"addresses"`
	User               string   `mapstructure:"user"`
	Password           string   `mapstructure:"password"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify"`
	BulkBatchSize      int      `mapstructure:"bulk_batch_size"`
	IndexPrefix        string   `mapstructure:"index_prefix"`
}

// MinIOConfig holds MinIO / S3-compatible object-storage parameters for
// published dataset artifacts.
type MinIOConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	AccessKey     string        `mapstructure:"access_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	Bucket        string        `mapstructure:"bucket"`
	UseSSL        bool          `mapstructure:"use_ssl"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry"`
}

// WorkerConfig holds background-worker execution parameters.
type WorkerConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	// HealthPort serves the worker's liveness and metrics endpoints.
	HealthPort int `mapstructure:"health_port"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level            string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format           string `mapstructure:"format"` // "json" | "console"
	Output           string `mapstructure:"output"`
	EnableCaller     bool   `mapstructure:"enable_caller"`
	EnableStacktrace bool   `mapstructure:"enable_stacktrace"`
}

// PipelineConfig holds the annotation pipeline tunables: tokenization,
// chunking, gazetteer matching, and merge policy.
type PipelineConfig struct {
	// BoundaryRunes overrides the default punctuation set split off token
	// edges when non-empty.
	BoundaryRunes  string `mapstructure:"boundary_runes"`
	MaxChunkTokens int    `mapstructure:"max_chunk_tokens"`
	// MinSentenceTokens is the shortest sentence kept when building raw
	// datasets from a corpus.
	MinSentenceTokens int `mapstructure:"min_sentence_tokens"`
	// AllowOverlaps disables strict no-overlapping merge mode.
	AllowOverlaps          bool     `mapstructure:"allow_overlaps"`
	GazetteerCaseSensitive bool     `mapstructure:"gazetteer_case_sensitive"`
	LexiconPaths           []string `mapstructure:"lexicon_paths"`
	TypesPath              string   `mapstructure:"types_path"`
}

// TrainingConfig holds the external training/prediction process parameters.
type TrainingConfig struct {
	Interpreter     string        `mapstructure:"interpreter"`
	Script          string        `mapstructure:"script"`
	ConfigPath      string        `mapstructure:"config_path"`
	WorkDir         string        `mapstructure:"work_dir"`
	PredictionsFile string        `mapstructure:"predictions_file"`
	// Timeout of 0 lets a job run until completion or cancellation.
	Timeout time.Duration `mapstructure:"timeout"`
}

// DatasetConfig holds dataset export parameters.
type DatasetConfig struct {
	OutputDir  string  `mapstructure:"output_dir"`
	TrainRatio float64 `mapstructure:"train_ratio"`
	DevRatio   float64 `mapstructure:"dev_ratio"`
	TestRatio  float64 `mapstructure:"test_ratio"`
	// Seed makes the stratified split reproducible; 0 seeds from the clock.
	Seed int64 `mapstructure:"seed"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure for the entire platform.
// Every infrastructure component and application service reads its settings
// from the relevant sub-struct.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Neo4j      Neo4jConfig      `mapstructure:"neo4j"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Log        LogConfig        `mapstructure:"log"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Training   TrainingConfig   `mapstructure:"training"`
	Dataset    DatasetConfig    `mapstructure:"dataset"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start the application.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	// Database
	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("config: database.max_conns must be ≥ 1, got %d", c.Database.MaxConns)
	}

	// Redis
	switch c.Redis.Mode {
	case "standalone", "sentinel", "cluster":
	default:
		return fmt.Errorf("config: redis.mode %q is invalid; expected standalone|sentinel|cluster", c.Redis.Mode)
	}
	if c.Redis.Mode == "standalone" && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required in standalone mode")
	}
	if c.Redis.Mode != "standalone" && len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("config: redis.addrs must contain at least one address in %s mode", c.Redis.Mode)
	}
	if c.Redis.Mode == "sentinel" && c.Redis.MasterName == "" {
		return fmt.Errorf("config: redis.master_name is required in sentinel mode")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be ≥ 0, got %d", c.Redis.DB)
	}

	// Kafka
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("config: kafka.group_id is required")
	}

	// Neo4j
	if c.Neo4j.URI == "" {
		return fmt.Errorf("config: neo4j.uri is required")
	}

	// OpenSearch
	if len(c.OpenSearch.Addresses) == 0 {
		return fmt.Errorf("config: opensearch.addresses must contain at least one address")
	}

	// MinIO
	if c.MinIO.Endpoint == "" {
		return fmt.Errorf("config: minio.endpoint is required")
	}

	// Worker
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be ≥ 1, got %d", c.Worker.Concurrency)
	}
	if c.Worker.HealthPort < 1 || c.Worker.HealthPort > 65535 {
		return fmt.Errorf("config: worker.health_port %d is out of range", c.Worker.HealthPort)
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	// Pipeline
	if c.Pipeline.MaxChunkTokens < 1 {
		return fmt.Errorf("config: pipeline.max_chunk_tokens must be ≥ 1, got %d", c.Pipeline.MaxChunkTokens)
	}
	if c.Pipeline.MinSentenceTokens < 1 {
		return fmt.Errorf("config: pipeline.min_sentence_tokens must be ≥ 1, got %d", c.Pipeline.MinSentenceTokens)
	}

	// Training
	if c.Training.Interpreter == "" {
		return fmt.Errorf("config: training.interpreter is required")
	}

	// Dataset
	for _, ratio := range []struct {
		name  string
		value float64
	}{
		{"dataset.train_ratio", c.Dataset.TrainRatio},
		{"dataset.dev_ratio", c.Dataset.DevRatio},
		{"dataset.test_ratio", c.Dataset.TestRatio},
	} {
		if ratio.value < 0 || ratio.value > 1 {
			return fmt.Errorf("config: %s %.3f is out of range [0, 1]", ratio.name, ratio.value)
		}
	}
	sum := c.Dataset.TrainRatio + c.Dataset.DevRatio + c.Dataset.TestRatio
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("config: dataset split ratios must sum to 1.0, got %.3f", sum)
	}

	return nil
}

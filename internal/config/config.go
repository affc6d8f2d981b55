// Package config loads and holds the application configuration.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config mirrors the structure of config.yaml.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Billing       BillingConfig       `mapstructure:"billing"`
	Chat          ChatConfig          `mapstructure:"chat"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig groups all backing-store connections.
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig holds the MySQL DSN.
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig holds session-token settings.
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig holds broker addresses and the two task topics.
type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	TurnTopic   string `mapstructure:"turn_topic"`
	IngestTopic string `mapstructure:"ingest_topic"`
	GroupID     string `mapstructure:"group_id"`
}

// ElasticsearchConfig holds the knowledge-store connection settings.
// IndexPrefix is combined with a tenant namespace to form per-tenant indices.
type ElasticsearchConfig struct {
	Addresses   string `mapstructure:"addresses"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	IndexPrefix string `mapstructure:"index_prefix"`
}

// MinIOConfig holds object-storage settings for raw training uploads.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig holds embedding-provider settings.
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig holds generation-provider settings.
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig holds optional generation parameters.
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// BillingConfig holds the payment-provider webhook secret.
type BillingConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// ChatConfig holds pipeline tunables for the chat turn.
type ChatConfig struct {
	RetrievalTopK          int `mapstructure:"retrieval_top_k"`
	RetrievalTimeoutSecs   int `mapstructure:"retrieval_timeout_secs"`
	GenerationTimeoutSecs  int `mapstructure:"generation_timeout_secs"`
	SessionRetentionDays   int `mapstructure:"session_retention_days"`
	HistoryTurnLimit       int `mapstructure:"history_turn_limit"`
	RecorderMaxAttempts    int `mapstructure:"recorder_max_attempts"`
	IdempotencyWindowHours int `mapstructure:"idempotency_window_hours"`
}

// Load reads the YAML file at path and unmarshals it.
func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Chat.RetrievalTopK <= 0 {
		cfg.Chat.RetrievalTopK = 5
	}
	if cfg.Chat.RetrievalTimeoutSecs <= 0 {
		cfg.Chat.RetrievalTimeoutSecs = 5
	}
	if cfg.Chat.GenerationTimeoutSecs <= 0 {
		cfg.Chat.GenerationTimeoutSecs = 120
	}
	if cfg.Chat.SessionRetentionDays <= 0 {
		cfg.Chat.SessionRetentionDays = 7
	}
	if cfg.Chat.HistoryTurnLimit <= 0 {
		cfg.Chat.HistoryTurnLimit = 20
	}
	if cfg.Chat.RecorderMaxAttempts <= 0 {
		cfg.Chat.RecorderMaxAttempts = 3
	}
	if cfg.Chat.IdempotencyWindowHours <= 0 {
		cfg.Chat.IdempotencyWindowHours = 24
	}
	if cfg.Elasticsearch.IndexPrefix == "" {
		cfg.Elasticsearch.IndexPrefix = "knowledge"
	}
	if cfg.Kafka.TurnTopic == "" {
		cfg.Kafka.TurnTopic = "chat.turns"
	}
	if cfg.Kafka.IngestTopic == "" {
		cfg.Kafka.IngestTopic = "knowledge.ingest"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "comerse-go-consumer"
	}
}

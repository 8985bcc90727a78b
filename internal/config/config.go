// Package config loads the orchestrator's runtime configuration: a YAML
// file overlaid with environment variables (loaded via godotenv), matching
// the env-override-wins discipline the rest of the stack uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// MemoryConfig holds the budgets and caps the gateway, stream, and
// retriever read. SessionTTLSeconds and StreamLoadLimit are loaded but not
// passed to the session store, which always uses sessionstore.DefaultTTL
// (10 minutes) and sessionstore.DefaultLoadLimit (200).
type MemoryConfig struct {
	SessionTTLSeconds  int `yaml:"session_ttl_seconds"`
	StreamLoadLimit    int `yaml:"stream_load_limit"`
	WindowTokens       int `yaml:"window_tokens"`
	InsertBudgetTokens int `yaml:"insert_budget_tokens"`
	MaxThreads         int `yaml:"max_threads"`
	MaxRawMessages     int `yaml:"max_raw_messages"`
}

// PostgresConfig configures the primary persistence backend.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// QdrantConfig configures the optional insight-vector mirror.
type QdrantConfig struct {
	DSN        string `yaml:"dsn"`
	Collection string `yaml:"collection"`
	Dimensions int    `yaml:"dimensions"`
}

// RedisConfig configures the optional cross-instance commit dedupe store.
type RedisConfig struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

// KafkaConfig configures the optional archive-event publisher.
type KafkaConfig struct {
	Brokers      string `yaml:"brokers"`
	ArchiveTopic string `yaml:"archive_topic"`
}

// ClickHouseConfig configures the optional archive-run telemetry sink.
type ClickHouseConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// ObsConfig controls logging and OpenTelemetry export.
type ObsConfig struct {
	ServiceName    string           `yaml:"service_name"`
	ServiceVersion string           `yaml:"service_version"`
	Environment    string           `yaml:"environment"`
	LogLevel       string           `yaml:"log_level"`
	LogPath        string           `yaml:"log_path"`
	OTLPEndpoint   string           `yaml:"otlp_endpoint"`
	ClickHouse     ClickHouseConfig `yaml:"clickhouse"`
}

// LLMConfig selects and configures the LLM backend.
type LLMConfig struct {
	Provider        string `yaml:"provider"` // "openai" or "anthropic"
	Model           string `yaml:"model"`
	BaseURL         string `yaml:"base_url"`
	OpenAIAPIKey    string `yaml:"openai_api_key,omitempty"`
	AnthropicAPIKey string `yaml:"anthropic_api_key,omitempty"`
}

// EmbeddingConfig configures the embedding backend.
type EmbeddingConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// HTTPConfig configures the transport's listen address.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the orchestrator's full runtime configuration.
type Config struct {
	Memory     MemoryConfig    `yaml:"memory"`
	Postgres   PostgresConfig  `yaml:"postgres"`
	Qdrant     QdrantConfig    `yaml:"qdrant"`
	Redis      RedisConfig     `yaml:"redis"`
	Kafka      KafkaConfig     `yaml:"kafka"`
	Obs        ObsConfig       `yaml:"obs"`
	LLM        LLMConfig       `yaml:"llm"`
	Embedding  EmbeddingConfig `yaml:"embedding"`
	HTTP       HTTPConfig      `yaml:"http"`
}

// Defaults returns a Config populated with the defaults named for the
// memory.* keys, independent of any file or environment input.
func Defaults() Config {
	return Config{
		Memory: MemoryConfig{
			SessionTTLSeconds:  600,
			StreamLoadLimit:    200,
			WindowTokens:       32000,
			InsertBudgetTokens: 4000,
			MaxThreads:         5,
			MaxRawMessages:     20,
		},
		Obs: ObsConfig{
			ServiceName: "memoryd",
			LogLevel:    "info",
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Embedding: EmbeddingConfig{
			Model: "text-embedding-3-small",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// Load reads an optional YAML file at path (skipped if empty or missing),
// then overlays environment variables (loaded via godotenv.Overload so a
// local .env file deterministically wins over a stale shell environment),
// on top of Defaults().
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal config file: %w", err)
		}
	}

	_ = godotenv.Overload()
	applyEnv(&cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := envInt("MEMORY_SESSION_TTL_SECONDS"); v != 0 {
		cfg.Memory.SessionTTLSeconds = v
	}
	if v := envInt("MEMORY_STREAM_LOAD_LIMIT"); v != 0 {
		cfg.Memory.StreamLoadLimit = v
	}
	if v := envInt("MEMORY_WINDOW_TOKENS"); v != 0 {
		cfg.Memory.WindowTokens = v
	}
	if v := envInt("MEMORY_INSERT_BUDGET_TOKENS"); v != 0 {
		cfg.Memory.InsertBudgetTokens = v
	}
	if v := envInt("MEMORY_MAX_THREADS"); v != 0 {
		cfg.Memory.MaxThreads = v
	}
	if v := envInt("MEMORY_MAX_RAW_MESSAGES"); v != 0 {
		cfg.Memory.MaxRawMessages = v
	}

	setIfNonEmpty(&cfg.Postgres.DSN, "POSTGRES_DSN")

	setIfNonEmpty(&cfg.Qdrant.DSN, "QDRANT_DSN")
	setIfNonEmpty(&cfg.Qdrant.Collection, "QDRANT_COLLECTION")
	if v := envInt("QDRANT_DIMENSIONS"); v != 0 {
		cfg.Qdrant.Dimensions = v
	}

	setIfNonEmpty(&cfg.Redis.Addr, "REDIS_ADDR")
	if v := envInt("REDIS_DB"); v != 0 {
		cfg.Redis.DB = v
	}

	setIfNonEmpty(&cfg.Kafka.Brokers, "KAFKA_BROKERS")
	setIfNonEmpty(&cfg.Kafka.ArchiveTopic, "KAFKA_ARCHIVE_TOPIC")

	setIfNonEmpty(&cfg.Obs.ServiceName, "OTEL_SERVICE_NAME")
	setIfNonEmpty(&cfg.Obs.ServiceVersion, "SERVICE_VERSION")
	setIfNonEmpty(&cfg.Obs.Environment, "ENVIRONMENT")
	setIfNonEmpty(&cfg.Obs.LogLevel, "LOG_LEVEL")
	setIfNonEmpty(&cfg.Obs.LogPath, "LOG_PATH")
	setIfNonEmpty(&cfg.Obs.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setIfNonEmpty(&cfg.Obs.ClickHouse.DSN, "CLICKHOUSE_DSN")
	setIfNonEmpty(&cfg.Obs.ClickHouse.Table, "CLICKHOUSE_ARCHIVE_LOG_TABLE")

	setIfNonEmpty(&cfg.LLM.Provider, "LLM_PROVIDER")
	setIfNonEmpty(&cfg.LLM.Model, "LLM_MODEL")
	setIfNonEmpty(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	setIfNonEmpty(&cfg.LLM.OpenAIAPIKey, "OPENAI_API_KEY")
	setIfNonEmpty(&cfg.LLM.AnthropicAPIKey, "ANTHROPIC_API_KEY")

	setIfNonEmpty(&cfg.Embedding.Host, "EMBED_HOST")
	setIfNonEmpty(&cfg.Embedding.APIKey, "EMBED_API_KEY")
	setIfNonEmpty(&cfg.Embedding.Model, "EMBED_MODEL")

	setIfNonEmpty(&cfg.HTTP.Addr, "HTTP_ADDR")
}

func setIfNonEmpty(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

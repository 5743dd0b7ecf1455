package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string         `yaml:"log_level"`
	Server   ServerConfig   `yaml:"server"`
	Provider ProviderConfig `yaml:"provider"`
	RAG      RAGConfig      `yaml:"rag"`
}

type ServerConfig struct {
	Address     string        `yaml:"address" validate:"required"`
	MaxUploadMB int           `yaml:"max_upload_mb" validate:"gt=0"`
	SessionTTL  time.Duration `yaml:"session_ttl" validate:"gt=0"`
}

// ProviderConfig configures the OpenAI-compatible embedding and chat endpoints.
// APIKey is only a default for the terminal front ends; it is never written back.
type ProviderConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	EmbeddingModel    string        `yaml:"embedding_model" validate:"required"`
	ChatModel         string        `yaml:"chat_model" validate:"required"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxRetries        int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	RetryInterval     time.Duration `yaml:"retry_interval" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
	EmbedBatchSize    int           `yaml:"embed_batch_size" validate:"gt=0"`
}

type RAGConfig struct {
	ChunkSize     int     `yaml:"chunk_size" validate:"gt=0"`
	ChunkOverlap  int     `yaml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	TopK          int     `yaml:"top_k" validate:"gte=1"`
	ContextChunks int     `yaml:"context_chunks" validate:"gte=1"`
	Temperature   float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	QATemperature float64 `yaml:"qa_temperature" validate:"gte=0,lte=2"`
}

const (
	defaultChunkSize      = 1000
	defaultChunkOverlap   = 200
	defaultTopK           = 4
	defaultContextChunks  = 3
	defaultTemperature    = 0.7
	defaultAddress        = ":8080"
	defaultMaxUploadMB    = 20
	defaultSessionTTL     = time.Hour
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultChatModel      = "gpt-4o-mini"
	defaultTimeout        = 60 * time.Second
	defaultMaxRetries     = 2
	defaultRetryInterval  = 500 * time.Millisecond
	defaultRPS            = 5
	defaultEmbedBatchSize = 64
)

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Address:     defaultAddress,
			MaxUploadMB: defaultMaxUploadMB,
			SessionTTL:  defaultSessionTTL,
		},
		Provider: ProviderConfig{
			EmbeddingModel:    defaultEmbeddingModel,
			ChatModel:         defaultChatModel,
			Timeout:           defaultTimeout,
			MaxRetries:        defaultMaxRetries,
			RetryInterval:     defaultRetryInterval,
			RequestsPerSecond: defaultRPS,
			EmbedBatchSize:    defaultEmbedBatchSize,
		},
		RAG: RAGConfig{
			ChunkSize:     defaultChunkSize,
			ChunkOverlap:  defaultChunkOverlap,
			TopK:          defaultTopK,
			ContextChunks: defaultContextChunks,
			Temperature:   defaultTemperature,
		},
	}
}

// LoadConfig reads the yaml file at path over the defaults (defaults alone
// when it does not exist), applies environment overrides and validates the result.
// Values present in the file win, including explicit zeroes.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		if err := chunkOverlapFollowsSize(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// chunkOverlapFollowsSize drops the default overlap when the file sets its own
// chunk size without an overlap, so a small chunk_size stays valid on its own
func chunkOverlapFollowsSize(data []byte, cfg *Config) error {
	var set struct {
		RAG struct {
			ChunkSize    *int `yaml:"chunk_size"`
			ChunkOverlap *int `yaml:"chunk_overlap"`
		} `yaml:"rag"`
	}
	if err := yaml.Unmarshal(data, &set); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if set.RAG.ChunkSize != nil && set.RAG.ChunkOverlap == nil {
		cfg.RAG.ChunkOverlap = 0
	}
	return nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// MaxUploadBytes is the upload limit in bytes
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("RA_LISTEN_ADDR"); v != "" {
		cfg.Server.Address = v
	}
}

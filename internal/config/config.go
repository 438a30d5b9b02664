package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StorageLocal = "local"
	StorageS3    = "s3"

	MemoryOff    = "off"
	MemoryInline = "inline"
	MemoryQueue  = "queue"
)

type LLMConfig struct {
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	DefaultModel   string  `env:"DEFAULT_MODEL" envDefault:"gpt-4o"`
	SearchModel    string  `env:"SEARCH_MODEL" envDefault:"gpt-4o-mini-search-preview"`
	TitleModel     string  `env:"TITLE_MODEL" envDefault:"gpt-4o-mini"`
	ImageModel     string  `env:"IMAGE_MODEL" envDefault:"dall-e-3"`
	ModelTablePath string  `env:"MODEL_TABLE_PATH"`
	MaxTokens      int64   `env:"MAX_COMPLETION_TOKENS" envDefault:"4000"`
	Temperature    float64 `env:"TEMPERATURE" envDefault:"0.7"`
	MaxToolRounds  int     `env:"MAX_TOOL_ROUNDS" envDefault:"5"`
	MaxFetches     int     `env:"MAX_CONCURRENT_FETCHES" envDefault:"4"`
}

type StorageConfig struct {
	Provider string `env:"STORAGE_PROVIDER" envDefault:"local"`

	LocalDir     string `env:"MEDIA_DIR" envDefault:"./data/media"`
	LocalBaseURL string `env:"MEDIA_BASE_URL" envDefault:"http://localhost:8000/media"`

	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	S3Bucket          string `env:"S3_BUCKET" envDefault:"chat-media"`
	S3PublicURL       string `env:"S3_PUBLIC_URL"`
}

type MemoryConfig struct {
	Mode        string `env:"MEMORY_MODE" envDefault:"inline"`
	Mem0APIKey  string `env:"MEM0_API_KEY"`
	Mem0BaseURL string `env:"MEM0_BASE_URL" envDefault:"https://api.mem0.ai"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
}

type APIConfig struct {
	DatabaseURL    string        `env:"DATABASE_URL" envDefault:"chat.db"`
	APIPort        string        `env:"API_PORT" envDefault:"8000"`
	AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5m"`

	LLM     LLMConfig
	Storage StorageConfig
	Memory  MemoryConfig
}

type WorkerConfig struct {
	RabbitMQURL string `env:"RABBITMQ_URL,notEmpty,required"`
	Mem0APIKey  string `env:"MEM0_API_KEY,notEmpty,required"`
	Mem0BaseURL string `env:"MEM0_BASE_URL" envDefault:"https://api.mem0.ai"`
}

func LoadAPIConfig() (APIConfig, error) {
	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func LoadWorkerConfig() (WorkerConfig, error) {
	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

func (cfg APIConfig) validate() error {
	switch cfg.Storage.Provider {
	case StorageLocal:
	case StorageS3:
		if cfg.Storage.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_PROVIDER=s3")
		}
	default:
		return fmt.Errorf("invalid STORAGE_PROVIDER %q, expected %q or %q", cfg.Storage.Provider, StorageLocal, StorageS3)
	}

	switch cfg.Memory.Mode {
	case MemoryOff:
	case MemoryInline:
	case MemoryQueue:
		if cfg.Memory.RabbitMQURL == "" {
			return fmt.Errorf("RABBITMQ_URL is required when MEMORY_MODE=queue")
		}
	default:
		return fmt.Errorf("invalid MEMORY_MODE %q", cfg.Memory.Mode)
	}

	if cfg.LLM.MaxToolRounds < 0 {
		return fmt.Errorf("MAX_TOOL_ROUNDS must not be negative")
	}
	return nil
}

// MemoryEnabled reports whether memory recall and writes are configured.
func (cfg MemoryConfig) MemoryEnabled() bool {
	return cfg.Mode != MemoryOff && cfg.Mem0APIKey != ""
}

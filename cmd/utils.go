package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"

	"assistant-backend/internal/chat"
	"assistant-backend/internal/config"
	"assistant-backend/internal/llm"
	"assistant-backend/internal/memory"
	"assistant-backend/internal/messaging"
	"assistant-backend/internal/storage"

	"github.com/joho/godotenv"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

func NewObjectStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, error) {
	switch cfg.Provider {
	case config.StorageS3:
		store, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
			Endpoint:        cfg.S3EndpointURL,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Bucket:          cfg.S3Bucket,
			PublicURL:       cfg.S3PublicURL,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating s3 object store: %w", err)
		}
		if err := store.CreateBucket(ctx); err != nil {
			return nil, fmt.Errorf("error creating bucket %s: %w", cfg.S3Bucket, err)
		}
		return store, nil
	default:
		store, err := storage.NewLocalObjectStore(cfg.LocalDir, cfg.LocalBaseURL)
		if err != nil {
			return nil, fmt.Errorf("error creating local object store: %w", err)
		}
		return store, nil
	}
}

// MemoryBackend bundles the memory search and write sides with whatever
// connection has to be closed on shutdown.
type MemoryBackend struct {
	Search chat.MemorySearcher
	Write  chat.MemoryWriter
	close  func()
}

func (m MemoryBackend) Close() {
	if m.close != nil {
		m.close()
	}
}

func NewMemoryBackend(cfg config.MemoryConfig) (MemoryBackend, error) {
	if !cfg.MemoryEnabled() {
		slog.Warn("memory service disabled", "mode", cfg.Mode)
		return MemoryBackend{}, nil
	}

	client := memory.NewMem0Client(cfg.Mem0BaseURL, cfg.Mem0APIKey)

	if cfg.Mode != config.MemoryQueue {
		return MemoryBackend{Search: client, Write: client}, nil
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		return MemoryBackend{}, fmt.Errorf("error connecting to rabbitmq: %w", err)
	}

	return MemoryBackend{
		Search: client,
		Write:  messaging.NewQueuedMemoryWriter(publisher),
		close:  publisher.Close,
	}, nil
}

func NewModelTable(path string) *chat.ModelTable {
	if path == "" {
		return chat.NewModelTable()
	}
	table, err := chat.LoadModelTable(path)
	if err != nil {
		log.Fatalf("error loading model table from %s: %v", path, err)
	}
	return table
}

func NewTitleGenerator(cfg config.LLMConfig) llm.TitleGenerator {
	titler, err := llm.NewLangchainTitler(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.TitleModel)
	if err != nil {
		slog.Warn("title generation disabled", "error", err)
		return nil
	}
	return titler
}

func NewOrchestratorConfig(cfg config.LLMConfig) chat.Config {
	orchestratorCfg := chat.DefaultConfig()
	orchestratorCfg.DefaultModel = cfg.DefaultModel
	orchestratorCfg.SearchModel = cfg.SearchModel
	orchestratorCfg.MaxTokens = cfg.MaxTokens
	orchestratorCfg.Temperature = cfg.Temperature
	orchestratorCfg.MaxToolRounds = cfg.MaxToolRounds
	return orchestratorCfg
}

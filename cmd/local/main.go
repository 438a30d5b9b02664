package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"assistant-backend/cmd"
	"assistant-backend/internal/api"
	"assistant-backend/internal/chat"
	"assistant-backend/internal/config"
	"assistant-backend/internal/database"
	"assistant-backend/internal/llm"
	"assistant-backend/internal/memory"
	"assistant-backend/internal/messaging"
	"assistant-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"
)

// Config runs everything in one process: sqlite, files on disk and an in
// memory queue feeding the memory worker.
type Config struct {
	Root        string `env:"ROOT" envDefault:"./assistant-data"`
	Port        int    `env:"PORT" envDefault:"3001"`
	Mem0APIKey  string `env:"MEM0_API_KEY"`
	Mem0BaseURL string `env:"MEM0_BASE_URL" envDefault:"https://api.mem0.ai"`

	LLM config.LLMConfig
}

func createDatabase(root string) *gorm.DB {
	path := filepath.Join(root, "db", "assistant.db")
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := database.NewDatabase(path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return db
}

func createServer(store *chat.Store, objects *storage.LocalObjectStore, orchestrator *chat.Orchestrator, titles llm.TitleGenerator, port int) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Mount("/", api.NewRouter(
		api.NewMediaService(store, objects),
		api.NewChatService(store, orchestrator, titles),
	))

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
}

func main() {
	cmd.LoadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db := createDatabase(cfg.Root)
	store := chat.NewStore(db)

	objects, err := storage.NewLocalObjectStore(filepath.Join(cfg.Root, "media"), fmt.Sprintf("http://localhost:%d/media", cfg.Port))
	if err != nil {
		log.Fatalf("Failed to create media dir: %v", err)
	}

	provider := llm.NewOpenAILLM(llm.OpenAIConfig{
		APIKey:     cfg.LLM.OpenAIAPIKey,
		BaseURL:    cfg.LLM.OpenAIBaseURL,
		ImageModel: cfg.LLM.ImageModel,
	})

	tools := chat.NewToolRegistry(
		chat.NewImageTool(provider, storage.Uploader{Store: objects}, store),
		chat.CodeTool{},
		chat.ResearchTool{},
		chat.NewWebSearchTool(provider, cfg.LLM.SearchModel),
	)

	opts := []chat.Option{
		chat.WithTrimmer(chat.NewTrimmer(cmd.NewModelTable(cfg.LLM.ModelTablePath))),
		chat.WithResolver(chat.NewAttachmentResolver(storage.NewFetcher(objects), cfg.LLM.MaxFetches)),
	}

	queue := messaging.NewInMemoryQueue()
	var processor *messaging.MemoryProcessor
	if cfg.Mem0APIKey != "" {
		mem0 := memory.NewMem0Client(cfg.Mem0BaseURL, cfg.Mem0APIKey)
		processor = messaging.NewMemoryProcessor(queue, mem0)
		go processor.Start()
		opts = append(opts, chat.WithMemory(mem0, messaging.NewQueuedMemoryWriter(queue)))
	} else {
		slog.Warn("MEM0_API_KEY not set, memory service disabled")
	}

	orchestrator := chat.NewOrchestrator(cmd.NewOrchestratorConfig(cfg.LLM), store, provider, tools, opts...)

	server := createServer(store, objects, orchestrator, cmd.NewTitleGenerator(cfg.LLM), cfg.Port)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
		if err := orchestrator.Wait(ctx); err != nil {
			slog.Warn("pending memory writes abandoned", "error", err)
		}
		if processor != nil {
			processor.Stop()
		}
	}()

	slog.Info("starting local server", "port", cfg.Port, "root", cfg.Root)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	<-stopped
	log.Println("Server stopped.")
}

package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"assistant-backend/cmd"
	"assistant-backend/internal/api"
	"assistant-backend/internal/chat"
	"assistant-backend/internal/config"
	"assistant-backend/internal/database"
	"assistant-backend/internal/llm"
	"assistant-backend/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	cfg, err := config.LoadAPIConfig()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	objects, err := cmd.NewObjectStore(context.Background(), cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize object storage: %v", err)
	}

	mem, err := cmd.NewMemoryBackend(cfg.Memory)
	if err != nil {
		log.Fatalf("Failed to initialize memory service: %v", err)
	}
	defer mem.Close()

	provider := llm.NewOpenAILLM(llm.OpenAIConfig{
		APIKey:     cfg.LLM.OpenAIAPIKey,
		BaseURL:    cfg.LLM.OpenAIBaseURL,
		ImageModel: cfg.LLM.ImageModel,
	})

	store := chat.NewStore(db)

	tools := chat.NewToolRegistry(
		chat.NewImageTool(provider, storage.Uploader{Store: objects}, store),
		chat.CodeTool{},
		chat.ResearchTool{},
		chat.NewWebSearchTool(provider, cfg.LLM.SearchModel),
	)

	orchestrator := chat.NewOrchestrator(cmd.NewOrchestratorConfig(cfg.LLM), store, provider, tools,
		chat.WithTrimmer(chat.NewTrimmer(cmd.NewModelTable(cfg.LLM.ModelTablePath))),
		chat.WithResolver(chat.NewAttachmentResolver(storage.NewFetcher(objects), cfg.LLM.MaxFetches)),
		chat.WithMemory(mem.Search, mem.Write),
	)

	// --- Chi Router Setup ---
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", api.UserIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Mount("/", api.NewRouter(
		api.NewMediaService(store, objects),
		api.NewChatService(store, orchestrator, cmd.NewTitleGenerator(cfg.LLM)),
	))

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

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
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	<-stopped
	log.Println("Server stopped.")
}

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"assistant-backend/cmd"
	"assistant-backend/internal/config"
	"assistant-backend/internal/memory"
	"assistant-backend/internal/messaging"
)

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	processor := messaging.NewMemoryProcessor(receiver, memory.NewMem0Client(cfg.Mem0BaseURL, cfg.Mem0APIKey))

	done := make(chan struct{})
	go func() {
		processor.Start()
		close(done)
	}()

	log.Println("Worker started. Waiting for tasks. Press Ctrl+C to exit.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received, waiting for in flight tasks...")

	processor.Stop()
	<-done

	log.Println("Worker process stopped.")
}

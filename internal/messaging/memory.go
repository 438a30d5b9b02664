package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"assistant-backend/internal/llm"
	"assistant-backend/internal/metrics"
)

// QueuedMemoryWriter defers memory writes to the worker by publishing them.
type QueuedMemoryWriter struct {
	publisher Publisher
}

func NewQueuedMemoryWriter(publisher Publisher) *QueuedMemoryWriter {
	return &QueuedMemoryWriter{publisher: publisher}
}

func (w *QueuedMemoryWriter) Add(ctx context.Context, userID string, messages []llm.Message) error {
	payload := MemoryWritePayload{UserID: userID}
	for _, msg := range messages {
		payload.Turns = append(payload.Turns, MemoryTurn{Role: string(msg.Role), Content: msg.Content})
	}
	return w.publisher.PublishMemoryWrite(ctx, payload)
}

type MemoryAdder interface {
	Add(ctx context.Context, userID string, messages []llm.Message) error
}

// MemoryProcessor consumes memory write tasks and applies them to the memory
// service.
type MemoryProcessor struct {
	reciever Reciever
	memory   MemoryAdder
}

func NewMemoryProcessor(reciever Reciever, memory MemoryAdder) *MemoryProcessor {
	return &MemoryProcessor{reciever: reciever, memory: memory}
}

// Start processes tasks until the reciever is closed.
func (proc *MemoryProcessor) Start() {
	slog.Info("starting memory processor")

	for task := range proc.reciever.Tasks() {
		proc.ProcessTask(task)
	}
}

func (proc *MemoryProcessor) Stop() {
	slog.Info("stopping memory processor")

	proc.reciever.Close()
}

func (proc *MemoryProcessor) ProcessTask(task Task) {
	ctx := context.Background()

	if task.Type() != MemoryQueue {
		slog.Error("received unknown task type", "queue", task.Type())
		metrics.MemoryTasksTotal.WithLabelValues("rejected").Inc()
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	var payload MemoryWritePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		slog.Error("error unmarshalling memory task", "error", err)
		metrics.MemoryTasksTotal.WithLabelValues("rejected").Inc()
		if err := task.Reject(); err != nil { // discard malformed message
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	err := proc.processMemoryWrite(ctx, payload)
	metrics.MemoryTasksTotal.WithLabelValues(metrics.Outcome(err)).Inc()

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "user_id", payload.UserID, "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
		return
	}

	slog.Info("successfully processed task", "queue", task.Type(), "user_id", payload.UserID)
	if err := task.Ack(); err != nil {
		slog.Error("error acknowledging message from queue", "error", err)
	}
}

func (proc *MemoryProcessor) processMemoryWrite(ctx context.Context, payload MemoryWritePayload) error {
	if payload.UserID == "" {
		return fmt.Errorf("memory task has no user id")
	}

	messages := make([]llm.Message, 0, len(payload.Turns))
	for _, turn := range payload.Turns {
		messages = append(messages, llm.Message{Role: llm.Role(turn.Role), Content: turn.Content})
	}
	return proc.memory.Add(ctx, payload.UserID, messages)
}

package messaging

import (
	"context"
	"time"
)

const (
	MemoryQueue     = "memory_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type MemoryTurn struct {
	Role    string
	Content string
}

type MemoryWritePayload struct {
	UserID string
	Turns  []MemoryTurn
}

type Publisher interface {
	PublishMemoryWrite(ctx context.Context, payload MemoryWritePayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}

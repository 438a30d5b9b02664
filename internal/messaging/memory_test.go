package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"

	"assistant-backend/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMemory struct {
	mu    sync.Mutex
	err   error
	calls map[string][][]llm.Message
}

func (m *recordingMemory) Add(ctx context.Context, userID string, messages []llm.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string][][]llm.Message{}
	}
	m.calls[userID] = append(m.calls[userID], messages)
	return m.err
}

type trackedTask struct {
	queue   string
	payload []byte
	result  string
}

func (t *trackedTask) Type() string    { return t.queue }
func (t *trackedTask) Payload() []byte { return t.payload }
func (t *trackedTask) Ack() error      { t.result = "ack"; return nil }
func (t *trackedTask) Nack() error     { t.result = "nack"; return nil }
func (t *trackedTask) Reject() error   { t.result = "reject"; return nil }

func TestQueuedMemoryWriterRoundTrip(t *testing.T) {
	queue := NewInMemoryQueue()
	memory := &recordingMemory{}
	processor := NewMemoryProcessor(queue, memory)

	writer := NewQueuedMemoryWriter(queue)
	require.NoError(t, writer.Add(context.Background(), "alice", []llm.Message{
		{Role: llm.RoleUser, Content: "I prefer tea"},
		{Role: llm.RoleAssistant, Content: "Noted"},
	}))
	require.NoError(t, writer.Add(context.Background(), "bob", []llm.Message{{Role: llm.RoleUser, Content: "hi"}}))

	done := make(chan struct{})
	go func() {
		processor.Start()
		close(done)
	}()
	queue.Close()
	<-done

	require.Len(t, memory.calls["alice"], 1)
	assert.Equal(t, []llm.Message{
		{Role: llm.RoleUser, Content: "I prefer tea"},
		{Role: llm.RoleAssistant, Content: "Noted"},
	}, memory.calls["alice"][0])
	assert.Len(t, memory.calls["bob"], 1)
}

func TestProcessTaskOutcomes(t *testing.T) {
	processor := NewMemoryProcessor(NewInMemoryQueue(), &recordingMemory{})

	ok := &trackedTask{queue: MemoryQueue, payload: []byte(`{"UserID":"alice","Turns":[{"Role":"user","Content":"hi"}]}`)}
	processor.ProcessTask(ok)
	assert.Equal(t, "ack", ok.result)

	malformed := &trackedTask{queue: MemoryQueue, payload: []byte(`{`)}
	processor.ProcessTask(malformed)
	assert.Equal(t, "reject", malformed.result)

	unknown := &trackedTask{queue: "other_queue", payload: []byte(`{}`)}
	processor.ProcessTask(unknown)
	assert.Equal(t, "reject", unknown.result)

	noUser := &trackedTask{queue: MemoryQueue, payload: []byte(`{"Turns":[]}`)}
	processor.ProcessTask(noUser)
	assert.Equal(t, "nack", noUser.result)

	failing := NewMemoryProcessor(NewInMemoryQueue(), &recordingMemory{err: errors.New("mem0 down")})
	task := &trackedTask{queue: MemoryQueue, payload: []byte(`{"UserID":"alice"}`)}
	failing.ProcessTask(task)
	assert.Equal(t, "nack", task.result)
}

func TestInMemoryQueueClosed(t *testing.T) {
	queue := NewInMemoryQueue()
	queue.Close()
	queue.Close()

	err := queue.PublishMemoryWrite(context.Background(), MemoryWritePayload{UserID: "alice"})
	assert.Error(t, err)
}

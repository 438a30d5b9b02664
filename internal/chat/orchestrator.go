package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"assistant-backend/internal/database"
	"assistant-backend/internal/llm"
	"assistant-backend/internal/metrics"

	"github.com/google/uuid"
)

const DefaultSystemPrompt = "You are a helpful assistant. Provide clear, concise, and accurate responses."

// memoryWriteTimeout bounds a memory write that outlives its request.
const memoryWriteTimeout = time.Minute

type Config struct {
	SystemPrompt      string
	DefaultModel      string
	SearchModel       string
	MaxTokens         int64
	Temperature       float64
	MaxToolRounds     int
	MemorySearchLimit int
	MaxMessageChars   int
}

func DefaultConfig() Config {
	return Config{
		SystemPrompt:      DefaultSystemPrompt,
		DefaultModel:      "gpt-4o",
		SearchModel:       "gpt-4o-mini-search-preview",
		MaxTokens:         4000,
		Temperature:       0.7,
		MaxToolRounds:     5,
		MemorySearchLimit: DefaultMemorySearchLimit,
		MaxMessageChars:   10000,
	}
}

type Orchestrator struct {
	cfg      Config
	store    *Store
	provider llm.CompletionProvider
	tools    *ToolRegistry
	trimmer  *Trimmer
	resolver *AttachmentResolver

	memorySearch MemorySearcher
	memoryWrite  MemoryWriter
	pending      sync.WaitGroup
}

type Option func(*Orchestrator)

func WithMemory(search MemorySearcher, write MemoryWriter) Option {
	return func(o *Orchestrator) {
		o.memorySearch = search
		o.memoryWrite = write
	}
}

func WithTrimmer(trimmer *Trimmer) Option {
	return func(o *Orchestrator) {
		o.trimmer = trimmer
	}
}

func WithResolver(resolver *AttachmentResolver) Option {
	return func(o *Orchestrator) {
		o.resolver = resolver
	}
}

func NewOrchestrator(cfg Config, store *Store, provider llm.CompletionProvider, tools *ToolRegistry, opts ...Option) *Orchestrator {
	defaults := DefaultConfig()
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaults.SystemPrompt
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaults.DefaultModel
	}
	if cfg.SearchModel == "" {
		cfg.SearchModel = defaults.SearchModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaults.MaxTokens
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaults.MaxToolRounds
	}
	if cfg.MemorySearchLimit <= 0 {
		cfg.MemorySearchLimit = defaults.MemorySearchLimit
	}
	if cfg.MaxMessageChars <= 0 {
		cfg.MaxMessageChars = defaults.MaxMessageChars
	}
	if tools == nil {
		tools = NewToolRegistry()
	}

	o := &Orchestrator{
		cfg:      cfg,
		store:    store,
		provider: provider,
		tools:    tools,
		trimmer:  NewTrimmer(nil),
		resolver: NewAttachmentResolver(nil, DefaultMaxConcurrentFetches),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Wait blocks until detached memory writes have finished or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type CompletionRequest struct {
	UserID   string
	ChatSlug string
	Model    string
	ToolHint string
	Messages []Message

	// AttachmentIDs are attached to the newest user message.
	AttachmentIDs []uuid.UUID

	// Resubmit marks a request whose newest user message is already stored,
	// as happens after an edit or a regenerate.
	Resubmit bool
}

func (o *Orchestrator) validate(req CompletionRequest) (int, error) {
	if req.UserID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if req.ChatSlug == "" || len(req.ChatSlug) > 100 {
		return 0, fmt.Errorf("%w: chat slug must be between 1 and 100 characters", ErrValidation)
	}
	if len(req.Messages) == 0 {
		return 0, fmt.Errorf("%w: at least one message is required", ErrValidation)
	}

	latestUser := -1
	for i, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleUser:
			latestUser = i
		case llm.RoleAssistant, llm.RoleSystem:
		default:
			return 0, fmt.Errorf("%w: message %d has invalid role %q", ErrValidation, i, msg.Role)
		}
		if isInlineImageMarker(msg) {
			continue
		}
		if n := utf8.RuneCountInString(msg.Content); n == 0 || n > o.cfg.MaxMessageChars {
			return 0, fmt.Errorf("%w: message %d must be between 1 and %d characters", ErrValidation, i, o.cfg.MaxMessageChars)
		}
	}
	if latestUser < 0 {
		return 0, fmt.Errorf("%w: at least one user message is required", ErrValidation)
	}
	return latestUser, nil
}

// Start validates the request, stores the newest user message and assembles
// the prompt. Validation, ownership and persistence failures are returned
// here, before anything is streamed.
func (o *Orchestrator) Start(ctx context.Context, req CompletionRequest) (*Completion, error) {
	latestUser, err := o.validate(req)
	if err != nil {
		return nil, err
	}

	dispatch, err := ResolveDispatch(req.ToolHint, o.tools)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = o.cfg.DefaultModel
	}

	chat, err := o.store.FindOrCreateChat(ctx, req.UserID, req.ChatSlug, "")
	if err != nil {
		return nil, err
	}

	history := make([]Message, len(req.Messages))
	copy(history, req.Messages)
	if len(req.AttachmentIDs) > 0 {
		newest := history[latestUser]
		newest.AttachmentIDs = append(append([]uuid.UUID{}, newest.AttachmentIDs...), req.AttachmentIDs...)
		history[latestUser] = newest
	}

	if err := o.loadAttachments(ctx, req.UserID, history); err != nil {
		return nil, err
	}
	compactInlineImages(history)

	c := &Completion{
		o:        o,
		chat:     chat,
		userID:   req.UserID,
		model:    model,
		dispatch: dispatch,
		state:    StateAssembling,
		query:    history[latestUser].Content,
		memory:   make(chan BestEffort, 1),
	}
	c.result.ChatID = chat.ID
	c.result.Model = model
	if dispatch.Kind == DispatchWebSearch {
		c.result.Model = o.cfg.SearchModel
	}

	if !req.Resubmit {
		userMsg := database.Message{
			ChatID:        chat.ID,
			Role:          database.RoleUser,
			Content:       history[latestUser].Content,
			AttachmentIDs: attachmentIDs(history[latestUser].Attachments),
		}
		if err := o.store.SaveMessage(ctx, &userMsg); err != nil {
			return nil, err
		}
		c.result.UserMessageID = userMsg.ID
	}

	systemPrompt := o.cfg.SystemPrompt +
		recallMemories(ctx, o.memorySearch, req.UserID, c.query, o.cfg.MemorySearchLimit) +
		dispatch.Addendum()

	trimmed := o.trimmer.Trim(c.result.Model, systemPrompt, int(o.cfg.MaxTokens), history)

	c.messages = append([]llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}, o.resolver.ResolveAll(ctx, trimmed)...)
	c.state = StateDispatching

	slog.Info("assembled completion", "chat_id", chat.ID, "model", c.result.Model, "dispatch", dispatch.Kind, "messages", len(c.messages), "resubmit", req.Resubmit)

	return c, nil
}

func (o *Orchestrator) loadAttachments(ctx context.Context, userID string, history []Message) error {
	var ids []uuid.UUID
	for _, msg := range history {
		ids = append(ids, msg.AttachmentIDs...)
	}
	if len(ids) == 0 {
		return nil
	}

	rows, err := o.store.GetAttachments(ctx, userID, ids)
	if err != nil {
		return err
	}
	byID := make(map[uuid.UUID]database.MediaAttachment, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	for i := range history {
		for _, id := range history[i].AttachmentIDs {
			row, ok := byID[id]
			if !ok {
				continue
			}
			history[i].Attachments = append(history[i].Attachments, Attachment{
				ID:       row.ID,
				Name:     row.OriginalName,
				MimeType: row.MimeType,
				URL:      row.URL,
			})
		}
	}
	return nil
}

type State int

const (
	StateAssembling State = iota
	StateDispatching
	StateStreaming
	StateFinalizing
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateAssembling:
		return "assembling"
	case StateDispatching:
		return "dispatching"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	default:
		return "error"
	}
}

type EventType string

const (
	EventText       EventType = "text"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventFinish     EventType = "finish"
)

type StreamEvent struct {
	Type EventType

	// Text is set for text events.
	Text string

	// Set for tool_call and tool_result events.
	ToolCallID string
	Tool       string
	Arguments  string
	Output     any
	ToolError  string

	// Set for the finish event.
	Result *Result
}

type Result struct {
	ChatID             uuid.UUID
	UserMessageID      uuid.UUID
	AssistantMessageID uuid.UUID
	Text               string
	Model              string
	FinishReason       string
	Usage              llm.Usage
	Effects            []BestEffort
}

// Completion is a single assembled completion. Its events can be consumed
// once.
type Completion struct {
	o        *Orchestrator
	chat     database.Chat
	userID   string
	model    string
	dispatch Dispatch
	query    string
	messages []llm.Message

	mu       sync.Mutex
	state    State
	consumed bool
	result   Result
	err      error

	memory          chan BestEffort
	memoryOnce      sync.Once
	memoryScheduled bool
}

func (c *Completion) Chat() database.Chat {
	return c.chat
}

// Messages returns the assembled provider messages, system prompt first.
func (c *Completion) Messages() []llm.Message {
	return c.messages
}

func (c *Completion) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Completion) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Completion) Result() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := c.result
	res.Effects = append([]BestEffort(nil), c.result.Effects...)
	return res
}

func (c *Completion) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Completion) fail(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateError
	c.err = err
	return err
}

// MemoryWrite delivers the outcome of the memory write scheduled once the
// answer was stored. It is closed without a value when the stream ended
// without scheduling one. The write runs detached from the request, so the
// finish event never waits for it.
func (c *Completion) MemoryWrite() <-chan BestEffort {
	return c.memory
}

func (c *Completion) closeMemory() {
	c.memoryOnce.Do(func() { close(c.memory) })
}

func (c *Completion) settleMemory() {
	c.mu.Lock()
	scheduled := c.memoryScheduled
	c.mu.Unlock()
	if !scheduled {
		c.closeMemory()
	}
}

func (c *Completion) scheduleMemoryWrite(ctx context.Context, turn []llm.Message) {
	c.mu.Lock()
	c.memoryScheduled = true
	c.mu.Unlock()

	o := c.o
	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		defer c.closeMemory()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), memoryWriteTimeout)
		defer cancel()

		effect := runBestEffort("memory_write", func() error {
			return o.memoryWrite.Add(ctx, c.userID, turn)
		})
		if !effect.Ok() {
			metrics.BestEffortFailuresTotal.WithLabelValues(effect.Effect).Inc()
		}
		c.memory <- effect
	}()
}

func (c *Completion) addEffects(effects ...BestEffort) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.Effects = append(c.result.Effects, effects...)
	for _, e := range effects {
		if !e.Ok() {
			metrics.BestEffortFailuresTotal.WithLabelValues(e.Effect).Inc()
		}
	}
}

var ErrAlreadyConsumed = errors.New("completion events already consumed")

// Events streams the completion. Text deltas are forwarded as they arrive,
// tool calls are executed and fed back to the provider for a bounded number
// of rounds. When the stream ends with text the answer is persisted, the chat
// timestamp is bumped and a best-effort memory write is started in the
// background. A provider failure ends the sequence with an error wrapping
// ErrUpstream. Nothing is persisted if the consumer stops early.
func (c *Completion) Events(ctx context.Context) iter.Seq2[StreamEvent, error] {
	return func(yield func(StreamEvent, error) bool) {
		c.mu.Lock()
		if c.consumed {
			c.mu.Unlock()
			yield(StreamEvent{}, ErrAlreadyConsumed)
			return
		}
		c.consumed = true
		c.state = StateStreaming
		c.mu.Unlock()
		defer c.settleMemory()

		o := c.o
		start := time.Now()
		kind := c.dispatch.Kind.String()
		defer func() {
			metrics.CompletionDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
			metrics.CompletionsTotal.WithLabelValues(kind, c.State().String()).Inc()
		}()

		env := ToolEnv{ChatID: c.chat.ID, UserID: c.userID}
		messages := append([]llm.Message(nil), c.messages...)

		var answer strings.Builder
		var usage llm.Usage
		var finishReason string
		model := c.result.Model

		for round := 0; ; round++ {
			req := llm.CompletionRequest{
				Model:       c.model,
				Messages:    messages,
				MaxTokens:   o.cfg.MaxTokens,
				Temperature: o.cfg.Temperature,
			}
			c.dispatch.shape(&req, o.tools, round, o.cfg.SearchModel)
			if round >= o.cfg.MaxToolRounds && len(req.Tools) > 0 {
				req.ToolChoice = llm.ToolChoice{Mode: llm.ToolChoiceNone}
			}

			var final llm.Chunk
			for chunk, err := range o.provider.Stream(ctx, req) {
				if err != nil {
					slog.Error("completion stream failed", "chat_id", c.chat.ID, "model", req.Model, "round", round, "error", err)
					yield(StreamEvent{}, c.fail(fmt.Errorf("%w: %v", ErrUpstream, err)))
					return
				}
				if chunk.Done {
					final = chunk
					continue
				}
				if chunk.TextDelta == "" {
					continue
				}
				answer.WriteString(chunk.TextDelta)
				if !yield(StreamEvent{Type: EventText, Text: chunk.TextDelta}, nil) {
					c.fail(context.Canceled)
					return
				}
			}
			if !final.Done {
				yield(StreamEvent{}, c.fail(fmt.Errorf("%w: stream ended without a final chunk", ErrUpstream)))
				return
			}

			usage.PromptTokens += final.Usage.PromptTokens
			usage.CompletionTokens += final.Usage.CompletionTokens
			usage.TotalTokens += final.Usage.TotalTokens
			finishReason = final.FinishReason
			model = req.Model

			if len(final.ToolCalls) == 0 || round >= o.cfg.MaxToolRounds {
				break
			}

			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: final.Text, ToolCalls: final.ToolCalls})
			for _, call := range final.ToolCalls {
				if !yield(StreamEvent{Type: EventToolCall, ToolCallID: call.ID, Tool: call.Name, Arguments: call.Arguments}, nil) {
					c.fail(context.Canceled)
					return
				}

				out, err := c.runTool(ctx, env, call)
				event := StreamEvent{Type: EventToolResult, ToolCallID: call.ID, Tool: call.Name, Output: out.Data}
				content := out.Content
				if err != nil {
					event.ToolError = err.Error()
					content = "Error: " + err.Error()
				}
				messages = append(messages, llm.Message{Role: llm.RoleTool, Content: content, ToolCallID: call.ID})

				if !yield(event, nil) {
					c.fail(context.Canceled)
					return
				}
			}
		}

		metrics.TokensTotal.WithLabelValues(model, "prompt").Add(float64(usage.PromptTokens))
		metrics.TokensTotal.WithLabelValues(model, "completion").Add(float64(usage.CompletionTokens))

		c.setState(StateFinalizing)
		if err := c.finalize(ctx, answer.String(), model, finishReason, usage); err != nil {
			yield(StreamEvent{}, c.fail(err))
			return
		}

		res := c.Result()
		yield(StreamEvent{Type: EventFinish, Result: &res}, nil)
	}
}

func (c *Completion) runTool(ctx context.Context, env ToolEnv, call llm.ToolCall) (ToolOutput, error) {
	tool, ok := c.o.tools.Get(call.Name)
	if !ok {
		metrics.ToolCallsTotal.WithLabelValues(call.Name, "unknown").Inc()
		return ToolOutput{}, fmt.Errorf("%w: unknown tool %q", ErrValidation, call.Name)
	}

	out, err := tool.Execute(ctx, env, call.Arguments)
	metrics.ToolCallsTotal.WithLabelValues(call.Name, metrics.Outcome(err)).Inc()
	if err != nil {
		slog.Warn("tool call failed", "chat_id", env.ChatID, "tool", call.Name, "error", err)
		return out, err
	}
	c.addEffects(out.Effects...)
	return out, nil
}

func (c *Completion) finalize(ctx context.Context, text, model, finishReason string, usage llm.Usage) error {
	c.mu.Lock()
	c.result.Text = text
	c.result.Model = model
	c.result.FinishReason = finishReason
	c.result.Usage = usage
	c.mu.Unlock()

	if strings.TrimSpace(text) != "" {
		msg, err := c.o.store.SaveAssistantMessage(ctx, c.chat.ID, text, model)
		if err != nil {
			return err
		}
		if err := c.o.store.TouchChat(ctx, c.chat.ID); err != nil {
			return err
		}

		c.mu.Lock()
		c.result.AssistantMessageID = msg.ID
		c.mu.Unlock()

		if c.o.memoryWrite != nil {
			turn := []llm.Message{
				{Role: llm.RoleUser, Content: c.query},
				{Role: llm.RoleAssistant, Content: text},
			}
			c.scheduleMemoryWrite(ctx, turn)
		}
	}

	c.setState(StateDone)
	return nil
}

package llm

import (
	"context"
	"iter"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type BlockType string

const (
	BlockText  BlockType = "text"
	BlockImage BlockType = "image"
	BlockFile  BlockType = "file"
)

// ContentBlock is one part of a multimodal user message. Image and file
// blocks carry raw bytes; providers encode them as needed.
type ContentBlock struct {
	Type     BlockType
	Text     string
	Data     []byte
	MimeType string
	Filename string
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type Message struct {
	Role    Role
	Content string

	// When non-empty Blocks replaces Content for user messages.
	Blocks []ContentBlock

	ToolCalls  []ToolCall
	ToolCallID string
}

type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type ToolChoiceMode string

const (
	ToolChoiceAuto  ToolChoiceMode = "auto"
	ToolChoiceNone  ToolChoiceMode = "none"
	ToolChoiceNamed ToolChoiceMode = "named"
)

type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

type CompletionRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	ToolChoice  ToolChoice
	WebSearch   bool
	MaxTokens   int64
	Temperature float64
}

type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Chunk is a single element of a provider stream. Intermediate chunks only
// carry TextDelta, the terminal chunk has Done set and carries the
// accumulated text, tool calls and finish reason.
type Chunk struct {
	TextDelta string

	Done         bool
	Text         string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

type Image struct {
	Data     []byte
	MimeType string
}

type CompletionProvider interface {
	Stream(ctx context.Context, req CompletionRequest) iter.Seq2[Chunk, error]
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (Image, error)
}

type TitleGenerator interface {
	GenerateTitle(ctx context.Context, message string) (string, error)
}

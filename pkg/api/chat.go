package api

import (
	"time"

	"github.com/google/uuid"
)

type Chat struct {
	ID           uuid.UUID `json:"id"`
	Slug         string    `json:"slug"`
	Title        string    `json:"title"`
	CreationTime time.Time `json:"creation_time"`
	UpdateTime   time.Time `json:"update_time"`

	Messages []Message `json:"messages,omitempty"`
}

type EditRecord struct {
	Content  string    `json:"content"`
	EditedAt time.Time `json:"edited_at"`
}

type Message struct {
	ID            uuid.UUID   `json:"id"`
	Role          string      `json:"role"`
	Content       string      `json:"content"`
	AttachmentIDs []uuid.UUID `json:"attachment_ids,omitempty"`

	IsEdited        bool         `json:"is_edited"`
	OriginalContent string       `json:"original_content,omitempty"`
	EditHistory     []EditRecord `json:"edit_history,omitempty"`

	Model        string    `json:"model,omitempty"`
	CreationTime time.Time `json:"creation_time"`
}

type ListChatsParams struct {
	Limit int `schema:"limit"`
}

type ListChatsResponse struct {
	Chats []Chat `json:"chats"`
}

type CreateChatRequest struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

type GenerateTitleRequest struct {
	Message string `json:"message"`
}

type GenerateTitleResponse struct {
	Title string `json:"title"`
}

type EditMessageRequest struct {
	Index           int    `json:"index"`
	OriginalContent string `json:"original_content"`
	NewContent      string `json:"new_content"`
}

type TruncateResponse struct {
	Deleted int64 `json:"deleted"`
}

type InputMessage struct {
	Role          string      `json:"role"`
	Content       string      `json:"content"`
	AttachmentIDs []uuid.UUID `json:"attachment_ids,omitempty"`
}

type CompletionRequest struct {
	ChatSlug      string         `json:"chat_slug"`
	Model         string         `json:"model,omitempty"`
	ToolChoice    string         `json:"tool_choice,omitempty"`
	Messages      []InputMessage `json:"messages"`
	AttachmentIDs []uuid.UUID    `json:"attachment_ids,omitempty"`
	Resubmit      bool           `json:"resubmit,omitempty"`
}

const (
	EventText       = "text"
	EventToolCall   = "tool_call"
	EventToolResult = "tool_result"
	EventFinish     = "finish"
)

const ToolGenerateImage = "generateImage"

// ImageResult is the Result of a successful generateImage tool_result event.
// The image is already stored as its own assistant message.
type ImageResult struct {
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
	Model     string    `json:"model"`
	URL       string    `json:"url"`
	Prompt    string    `json:"prompt"`
}

type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

type DegradedEffect struct {
	Effect string `json:"effect"`
	Error  string `json:"error"`
}

type CompletionFinish struct {
	ChatID             uuid.UUID        `json:"chat_id"`
	UserMessageID      *uuid.UUID       `json:"user_message_id,omitempty"`
	AssistantMessageID *uuid.UUID       `json:"assistant_message_id,omitempty"`
	Model              string           `json:"model"`
	FinishReason       string           `json:"finish_reason"`
	Usage              Usage            `json:"usage"`
	Degraded           []DegradedEffect `json:"degraded,omitempty"`
}

// CompletionEvent is the Data of each line of the completion stream.
type CompletionEvent struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	ToolCallID string `json:"tool_call_id,omitempty"`
	Tool       string `json:"tool,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
	Result     any    `json:"result,omitempty"`
	ToolError  string `json:"tool_error,omitempty"`

	Finish *CompletionFinish `json:"finish,omitempty"`
}

type StreamMessage[T any] struct {
	Data  T
	Error string
	Code  int
}

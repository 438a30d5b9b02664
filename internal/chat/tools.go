package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"assistant-backend/internal/database"
	"assistant-backend/internal/llm"

	"github.com/google/uuid"
)

const (
	ToolGenerateImage = "generateImage"
	ToolWriteCode     = "writeCode"
	ToolDeepResearch  = "deepResearch"
	ToolWebSearch     = "web_search_preview"

	ImageModelName      = "image-generation"
	GeneratedImageDir   = "generated-images"
	imageMarkerPrefix   = "[image:"
	imageMarkerSuffix   = "]"
	maxImagePromptChars = 1000
)

type MediaUploader interface {
	Upload(ctx context.Context, folder, filename, contentType string, data []byte) (string, error)
}

// ToolEnv identifies the conversation a tool call runs in.
type ToolEnv struct {
	ChatID uuid.UUID
	UserID string
}

type ToolOutput struct {
	// Content is fed back to the model as the tool message.
	Content string
	// Data is forwarded to the stream consumer.
	Data any
	// Effects lists best-effort side effects the tool attempted.
	Effects []BestEffort
}

type Tool interface {
	Definition() llm.ToolDefinition
	Execute(ctx context.Context, env ToolEnv, arguments string) (ToolOutput, error)
}

type ToolRegistry struct {
	tools map[string]Tool
	order []string
}

func NewToolRegistry(tools ...Tool) *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]Tool)}
	for _, t := range tools {
		name := t.Definition().Name
		if _, ok := r.tools[name]; !ok {
			r.order = append(r.order, name)
		}
		r.tools[name] = t
	}
	return r
}

func (r *ToolRegistry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *ToolRegistry) Names() []string {
	return append([]string(nil), r.order...)
}

// Definitions returns the definitions of all registered tools in
// registration order.
func (r *ToolRegistry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

func decodeArgs[T any](tool, arguments string) (T, error) {
	var args T
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return args, fmt.Errorf("%w: invalid arguments for %s: %v", ErrValidation, tool, err)
	}
	return args, nil
}

func jsonContent(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func ImageMarker(url string) string {
	return imageMarkerPrefix + url + imageMarkerSuffix
}

func IsImageMarker(content string) bool {
	return strings.HasPrefix(content, imageMarkerPrefix) && strings.HasSuffix(content, imageMarkerSuffix)
}

// inlineImagePlaceholder replaces data URLs of images that could not be
// uploaded when the history is sent back to the model.
const inlineImagePlaceholder = imageMarkerPrefix + "inline image omitted" + imageMarkerSuffix

func isInlineImageMarker(msg Message) bool {
	return msg.Role == llm.RoleAssistant && IsImageMarker(msg.Content) &&
		strings.HasPrefix(strings.TrimPrefix(msg.Content, imageMarkerPrefix), "data:")
}

func compactInlineImages(history []Message) {
	for i := range history {
		if isInlineImageMarker(history[i]) {
			history[i].Content = inlineImagePlaceholder
		}
	}
}

type imageArgs struct {
	Prompt string `json:"prompt"`
}

// ImageToolResult carries the stored image message so clients can place it
// in their copy of the history.
type ImageToolResult struct {
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
	Model     string    `json:"model"`
	Image     string    `json:"image"`
	URL       string    `json:"url"`
	Prompt    string    `json:"prompt"`
}

// ImageTool generates an image, stores it and records it in the chat as a
// separate assistant message.
type ImageTool struct {
	images   llm.ImageGenerator
	uploader MediaUploader
	store    *Store
}

func NewImageTool(images llm.ImageGenerator, uploader MediaUploader, store *Store) *ImageTool {
	return &ImageTool{images: images, uploader: uploader, store: store}
}

func (t *ImageTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        ToolGenerateImage,
		Description: "Generate an image based on a prompt",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt": map[string]any{
					"type":        "string",
					"description": "The prompt to generate the image from",
				},
			},
			"required": []string{"prompt"},
		},
	}
}

func (t *ImageTool) Execute(ctx context.Context, env ToolEnv, arguments string) (ToolOutput, error) {
	args, err := decodeArgs[imageArgs](ToolGenerateImage, arguments)
	if err != nil {
		return ToolOutput{}, err
	}
	if args.Prompt == "" || len(args.Prompt) > maxImagePromptChars {
		return ToolOutput{}, fmt.Errorf("%w: image prompt must be between 1 and %d characters", ErrValidation, maxImagePromptChars)
	}
	if env.ChatID == uuid.Nil {
		return ToolOutput{}, fmt.Errorf("%w: chat id required for image generation", ErrValidation)
	}

	img, err := t.images.GenerateImage(ctx, args.Prompt)
	if err != nil {
		return ToolOutput{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	preview := llm.DataURL(img.MimeType, img.Data)

	url := preview
	upload := runBestEffort("image_upload", func() error {
		if t.uploader == nil {
			return fmt.Errorf("no object storage configured")
		}
		durable, err := t.uploader.Upload(ctx, GeneratedImageDir, uuid.New().String()+".png", img.MimeType, img.Data)
		if err != nil {
			return err
		}
		url = durable
		return nil
	})
	if !upload.Ok() {
		slog.Warn("falling back to inline image url", "chat_id", env.ChatID, "error", upload.Err)
	}

	msg := database.Message{
		ChatID:  env.ChatID,
		Role:    database.RoleAssistant,
		Content: ImageMarker(url),
		Model:   sql.NullString{String: ImageModelName, Valid: true},
	}
	if err := t.store.SaveMessage(ctx, &msg); err != nil {
		return ToolOutput{}, err
	}
	if err := t.store.TouchChat(ctx, env.ChatID); err != nil {
		return ToolOutput{}, err
	}

	modelView := map[string]string{"prompt": args.Prompt, "status": "image generated and shown to the user"}
	if upload.Ok() {
		modelView["url"] = url
	}

	return ToolOutput{
		Content: jsonContent(modelView),
		Data: ImageToolResult{
			MessageID: msg.ID,
			Content:   msg.Content,
			Model:     ImageModelName,
			Image:     preview,
			URL:       url,
			Prompt:    args.Prompt,
		},
		Effects: []BestEffort{upload},
	}, nil
}

type codeArgs struct {
	Language string `json:"language"`
	Task     string `json:"task"`
	Code     string `json:"code,omitempty"`
}

// CodeTool frames a programming task for the model. It has no side effects.
type CodeTool struct{}

func (CodeTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        ToolWriteCode,
		Description: "Plan and structure a programming task before writing the code",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"language": map[string]any{"type": "string", "description": "Programming language to use"},
				"task":     map[string]any{"type": "string", "description": "What the code must do"},
				"code":     map[string]any{"type": "string", "description": "Existing code to modify, if any"},
			},
			"required": []string{"language", "task"},
		},
	}
}

func (CodeTool) Execute(ctx context.Context, env ToolEnv, arguments string) (ToolOutput, error) {
	args, err := decodeArgs[codeArgs](ToolWriteCode, arguments)
	if err != nil {
		return ToolOutput{}, err
	}
	if args.Task == "" {
		return ToolOutput{}, fmt.Errorf("%w: writeCode requires a task", ErrValidation)
	}
	if args.Language == "" {
		args.Language = "the most suitable language"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Coding task in %s: %s\n", args.Language, args.Task)
	if args.Code != "" {
		fmt.Fprintf(&b, "\nExisting code to work from:\n```\n%s\n```\n", args.Code)
	}
	b.WriteString("\nRespond with:\n")
	b.WriteString("1. A short restatement of the requirements and edge cases.\n")
	fmt.Fprintf(&b, "2. Complete, runnable %s code in a single fenced block.\n", args.Language)
	b.WriteString("3. A brief explanation of the key decisions.\n")
	b.WriteString("4. How to run or test the code.\n")

	return ToolOutput{Content: b.String(), Data: args}, nil
}

type researchArgs struct {
	Topic   string   `json:"topic"`
	Depth   string   `json:"depth"`
	Sources []string `json:"sources,omitempty"`
}

var researchSections = map[string][]string{
	"basic":         {"Summary", "Key facts", "Open questions"},
	"intermediate":  {"Summary", "Background", "Main perspectives", "Evidence", "Conclusion"},
	"comprehensive": {"Executive summary", "Background", "Methodology", "Findings by theme", "Competing views", "Limitations", "Conclusion and further reading"},
}

// ResearchTool frames an in-depth research answer. It has no side effects.
type ResearchTool struct{}

func (ResearchTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        ToolDeepResearch,
		Description: "Structure an in-depth research answer on a topic",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"topic": map[string]any{"type": "string", "description": "Topic to research"},
				"depth": map[string]any{
					"type":        "string",
					"enum":        []string{"basic", "intermediate", "comprehensive"},
					"description": "How deep the research should go",
				},
				"sources": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Sources the user wants considered",
				},
			},
			"required": []string{"topic", "depth"},
		},
	}
}

func (ResearchTool) Execute(ctx context.Context, env ToolEnv, arguments string) (ToolOutput, error) {
	args, err := decodeArgs[researchArgs](ToolDeepResearch, arguments)
	if err != nil {
		return ToolOutput{}, err
	}
	if args.Topic == "" {
		return ToolOutput{}, fmt.Errorf("%w: deepResearch requires a topic", ErrValidation)
	}

	sections, ok := researchSections[args.Depth]
	if !ok {
		args.Depth = "intermediate"
		sections = researchSections[args.Depth]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Research brief (%s depth): %s\n\nStructure the answer with these sections:\n", args.Depth, args.Topic)
	for i, s := range sections {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	if len(args.Sources) > 0 {
		b.WriteString("\nConsider these sources and cite them where used:\n")
		for _, src := range args.Sources {
			fmt.Fprintf(&b, "- %s\n", src)
		}
	}
	b.WriteString("\nDistinguish established facts from speculation and note uncertainty.\n")

	return ToolOutput{Content: b.String(), Data: args}, nil
}

type searchArgs struct {
	Query string `json:"query"`
}

// WebSearchTool exposes the provider's native web search as a function tool
// by delegating the query to a search-enabled model.
type WebSearchTool struct {
	provider llm.CompletionProvider
	model    string
}

func NewWebSearchTool(provider llm.CompletionProvider, model string) *WebSearchTool {
	return &WebSearchTool{provider: provider, model: model}
}

func (t *WebSearchTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        ToolWebSearch,
		Description: "Search the web for current information",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "The search query"},
			},
			"required": []string{"query"},
		},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, env ToolEnv, arguments string) (ToolOutput, error) {
	args, err := decodeArgs[searchArgs](ToolWebSearch, arguments)
	if err != nil {
		return ToolOutput{}, err
	}
	if args.Query == "" {
		return ToolOutput{}, fmt.Errorf("%w: web search requires a query", ErrValidation)
	}

	req := llm.CompletionRequest{
		Model:     t.model,
		WebSearch: true,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Search the web and report the relevant findings with their sources."},
			{Role: llm.RoleUser, Content: args.Query},
		},
	}

	var answer string
	for chunk, err := range t.provider.Stream(ctx, req) {
		if err != nil {
			return ToolOutput{}, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		if chunk.Done {
			answer = chunk.Text
		}
	}

	return ToolOutput{Content: answer, Data: map[string]string{"query": args.Query}}, nil
}

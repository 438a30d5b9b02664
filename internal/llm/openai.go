package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultImageModel  = openai.ImageModelDallE3
	webSearchContext   = "high"
	generatedImageMime = "image/png"
)

type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	ImageModel string
}

// OpenAILLM streams chat completions and generates images through the
// OpenAI API (or any compatible endpoint set through BaseURL).
type OpenAILLM struct {
	client     openai.Client
	imageModel string
}

var (
	_ CompletionProvider = (*OpenAILLM)(nil)
	_ ImageGenerator     = (*OpenAILLM)(nil)
)

func NewOpenAILLM(cfg OpenAIConfig) *OpenAILLM {
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	imageModel := cfg.ImageModel
	if imageModel == "" {
		imageModel = DefaultImageModel
	}

	return &OpenAILLM{
		client:     openai.NewClient(opts...),
		imageModel: imageModel,
	}
}

func (o *OpenAILLM) Stream(ctx context.Context, req CompletionRequest) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		params := buildParams(req)

		stream := o.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		acc := openai.ChatCompletionAccumulator{}
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				if !yield(Chunk{TextDelta: chunk.Choices[0].Delta.Content}, nil) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			slog.Error("openai error: chat completion stream failed", "model", req.Model, "error", err)
			yield(Chunk{}, fmt.Errorf("openai stream failed: %w", err))
			return
		}

		final := Chunk{
			Done: true,
			Usage: Usage{
				PromptTokens:     acc.Usage.PromptTokens,
				CompletionTokens: acc.Usage.CompletionTokens,
				TotalTokens:      acc.Usage.TotalTokens,
			},
		}
		if len(acc.Choices) > 0 {
			choice := acc.Choices[0]
			final.Text = choice.Message.Content
			final.FinishReason = choice.FinishReason
			for _, tc := range choice.Message.ToolCalls {
				final.ToolCalls = append(final.ToolCalls, ToolCall{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}
		}

		yield(final, nil)
	}
}

func (o *OpenAILLM) GenerateImage(ctx context.Context, prompt string) (Image, error) {
	res, err := o.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          o.imageModel,
		N:              openai.Int(1),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
		Size:           openai.ImageGenerateParamsSize1024x1024,
	})
	if err != nil {
		slog.Error("openai error: image generation failed", "model", o.imageModel, "error", err)
		return Image{}, fmt.Errorf("openai image generation failed: %w", err)
	}

	if len(res.Data) == 0 || res.Data[0].B64JSON == "" {
		return Image{}, fmt.Errorf("openai image generation returned no image data")
	}

	data, err := base64.StdEncoding.DecodeString(res.Data[0].B64JSON)
	if err != nil {
		return Image{}, fmt.Errorf("error decoding generated image: %w", err)
	}

	return Image{Data: data, MimeType: generatedImageMime}, nil
}

func buildParams(req CompletionRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(req.MaxTokens)
	}

	// Search models reject sampling params and function tools.
	if req.WebSearch {
		params.WebSearchOptions = openai.ChatCompletionNewParamsWebSearchOptions{
			SearchContextSize: webSearchContext,
		}
		return params
	}

	if !isReasoningModel(req.Model) {
		params.Temperature = openai.Float(req.Temperature)
	}

	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
		params.ToolChoice = toOpenAIToolChoice(req.ToolChoice)
	}

	return params
}

func isReasoningModel(model string) bool {
	return strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4")
}

func toOpenAITools(tools []ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(t.Parameters),
			},
		})
	}
	return out
}

func toOpenAIToolChoice(choice ToolChoice) openai.ChatCompletionToolChoiceOptionUnionParam {
	switch choice.Mode {
	case ToolChoiceNamed:
		return openai.ChatCompletionToolChoiceOptionParamOfChatCompletionNamedToolChoice(
			openai.ChatCompletionNamedToolChoiceFunctionParam{Name: choice.Name},
		)
	case ToolChoiceNone:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("none")}
	default:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")}
	}
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			if len(m.Blocks) == 0 {
				out = append(out, openai.UserMessage(m.Content))
				continue
			}
			out = append(out, openai.UserMessage(toContentParts(m.Blocks)))
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			asst := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				asst.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			slog.Warn("skipping message with unknown role", "role", m.Role)
		}
	}
	return out
}

func toContentParts(blocks []ContentBlock) []openai.ChatCompletionContentPartUnionParam {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case BlockText:
			parts = append(parts, openai.TextContentPart(b.Text))
		case BlockImage:
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: DataURL(b.MimeType, b.Data),
			}))
		case BlockFile:
			file := openai.ChatCompletionContentPartFileFileParam{
				FileData: openai.String(DataURL(b.MimeType, b.Data)),
			}
			if b.Filename != "" {
				file.Filename = openai.String(b.Filename)
			}
			parts = append(parts, openai.FileContentPart(file))
		}
	}
	return parts
}

func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

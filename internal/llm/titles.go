package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	DefaultTitleModel = "gpt-4o-mini"
	titleMaxTokens    = 20
	titleMaxWords     = 5
)

// LangchainTitler names chats from their first user message using a small model.
type LangchainTitler struct {
	client llms.Model
}

var _ TitleGenerator = (*LangchainTitler)(nil)

func NewLangchainTitler(apiKey, baseURL, model string) (*LangchainTitler, error) {
	if model == "" {
		model = DefaultTitleModel
	}

	opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create OpenAI client: %w", err)
	}

	return &LangchainTitler{client: client}, nil
}

func NewTitlerFromModel(model llms.Model) *LangchainTitler {
	return &LangchainTitler{client: model}
}

func (t *LangchainTitler) GenerateTitle(ctx context.Context, message string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, "You name chat conversations. Reply with the title only."),
		llms.TextParts(llms.ChatMessageTypeHuman, fmt.Sprintf("Generate a short, concise title (%d words max) for the following user query: %q", titleMaxWords, message)),
	}

	resp, err := t.client.GenerateContent(ctx, messages, llms.WithMaxTokens(titleMaxTokens))
	if err != nil {
		return "", fmt.Errorf("error generating title: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("title generation returned no choices")
	}

	return CleanTitle(resp.Choices[0].Content), nil
}

// CleanTitle strips surrounding quotes and limits the title to five words.
func CleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, "\"'`“”")

	words := strings.Fields(title)
	if len(words) > titleMaxWords {
		words = words[:titleMaxWords]
	}
	return strings.Join(words, " ")
}

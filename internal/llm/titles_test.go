package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type cannedModel struct {
	reply  string
	err    error
	prompt string
}

func (m *cannedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, part := range messages[len(messages)-1].Parts {
		if text, ok := part.(llms.TextContent); ok {
			m.prompt = text.Text
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *cannedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "Sorting Lists In Go", CleanTitle(`"Sorting Lists In Go"`))
	assert.Equal(t, "one two three four five", CleanTitle("one two three four five six seven"))
	assert.Equal(t, "Trip Plan", CleanTitle("  'Trip Plan'\n"))
}

func TestGenerateTitle(t *testing.T) {
	model := &cannedModel{reply: `"Weekend Hiking Trip Ideas For Families"`}
	titler := NewTitlerFromModel(model)

	title, err := titler.GenerateTitle(context.Background(), "where should we hike this weekend?")
	require.NoError(t, err)
	assert.Equal(t, "Weekend Hiking Trip Ideas For", title)
	assert.Contains(t, model.prompt, "where should we hike this weekend?")
	assert.Contains(t, model.prompt, "5 words max")
}

func TestGenerateTitleError(t *testing.T) {
	titler := NewTitlerFromModel(&cannedModel{err: errors.New("quota")})

	_, err := titler.GenerateTitle(context.Background(), "hi")
	require.Error(t, err)
}

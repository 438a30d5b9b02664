package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, chunks []string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.Equal(t, "/chat/completions", r.URL.Path) {
			http.Error(w, "unexpected path", http.StatusNotFound)
			return
		}
		if captured != nil {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			require.NoError(t, json.Unmarshal(body, captured))
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, provider CompletionProvider, req CompletionRequest) ([]string, Chunk, error) {
	t.Helper()
	var deltas []string
	var final Chunk
	for chunk, err := range provider.Stream(context.Background(), req) {
		if err != nil {
			return deltas, final, err
		}
		if chunk.Done {
			final = chunk
			continue
		}
		deltas = append(deltas, chunk.TextDelta)
	}
	return deltas, final, nil
}

func TestOpenAIStreamForwardsDeltas(t *testing.T) {
	var body map[string]any
	srv := sseServer(t, []string{
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"},"finish_reason":null}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":null}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`,
	}, &body)

	provider := NewOpenAILLM(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/"})

	deltas, final, err := collect(t, provider, CompletionRequest{
		Model:       "gpt-4o",
		Messages:    []Message{{Role: RoleSystem, Content: "be brief"}, {Role: RoleUser, Content: "hi"}},
		MaxTokens:   4000,
		Temperature: 0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.True(t, final.Done)
	assert.Equal(t, "Hello", final.Text)
	assert.Equal(t, "stop", final.FinishReason)
	assert.Equal(t, int64(7), final.Usage.TotalTokens)

	assert.Equal(t, "gpt-4o", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.InDelta(t, 0.7, body["temperature"], 1e-9)
	assert.NotContains(t, body, "tools")
	assert.Len(t, body["messages"], 2)
}

func TestOpenAIStreamAccumulatesToolCalls(t *testing.T) {
	var body map[string]any
	srv := sseServer(t, []string{
		`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"writeCode","arguments":""}}]},"finish_reason":null}]}`,
		`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"language\":\"go\","}}]},"finish_reason":null}]}`,
		`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"task\":\"sort\"}"}}]},"finish_reason":null}]}`,
		`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	}, &body)

	provider := NewOpenAILLM(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/"})

	deltas, final, err := collect(t, provider, CompletionRequest{
		Model:    "gpt-4o",
		Messages: []Message{{Role: RoleUser, Content: "sort in go"}},
		Tools: []ToolDefinition{{
			Name:        "writeCode",
			Description: "write code",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		}},
		ToolChoice: ToolChoice{Mode: ToolChoiceNamed, Name: "writeCode"},
	})
	require.NoError(t, err)

	assert.Empty(t, deltas)
	assert.Equal(t, "tool_calls", final.FinishReason)
	require.Len(t, final.ToolCalls, 1)
	assert.Equal(t, ToolCall{ID: "call_1", Name: "writeCode", Arguments: `{"language":"go","task":"sort"}`}, final.ToolCalls[0])

	require.Contains(t, body, "tools")
	choice, ok := body["tool_choice"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "writeCode", choice["function"].(map[string]any)["name"])
}

func TestOpenAIStreamUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	provider := NewOpenAILLM(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/"})

	_, _, err := collect(t, provider, CompletionRequest{Model: "nope", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai stream failed")
}

func TestBuildParamsWebSearch(t *testing.T) {
	params := buildParams(CompletionRequest{
		Model:       "gpt-4o-mini-search-preview",
		Messages:    []Message{{Role: RoleUser, Content: "news"}},
		Tools:       []ToolDefinition{{Name: "writeCode"}},
		WebSearch:   true,
		Temperature: 0.7,
		MaxTokens:   100,
	})

	data, err := json.Marshal(params)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))

	assert.Contains(t, body, "web_search_options")
	assert.NotContains(t, body, "tools")
	assert.NotContains(t, body, "temperature")
	assert.EqualValues(t, 100, body["max_completion_tokens"])
}

func TestBuildParamsReasoningModelSkipsTemperature(t *testing.T) {
	params := buildParams(CompletionRequest{Model: "o3-mini", Temperature: 0.7})

	data, err := json.Marshal(params)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "temperature")
}

func TestToOpenAIMessagesMultimodal(t *testing.T) {
	msgs := toOpenAIMessages([]Message{
		{Role: RoleUser, Blocks: []ContentBlock{
			{Type: BlockText, Text: "what is this"},
			{Type: BlockImage, Data: []byte("png"), MimeType: "image/png"},
			{Type: BlockFile, Data: []byte("pdf"), MimeType: "application/pdf", Filename: "a.pdf"},
		}},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1", Name: "deepResearch", Arguments: "{}"}}},
		{Role: RoleTool, ToolCallID: "call_1", Content: "framework"},
	})
	require.Len(t, msgs, 3)

	data, err := json.Marshal(msgs)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, `"url":"data:image/png;base64,cG5n"`)
	assert.Contains(t, out, `"file_data":"data:application/pdf;base64,cGRm"`)
	assert.Contains(t, out, `"filename":"a.pdf"`)
	assert.Contains(t, out, `"tool_call_id":"call_1"`)
	assert.True(t, strings.Contains(out, `"name":"deepResearch"`))
}

func TestGenerateImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"created":1,"data":[{"b64_json":"aGVsbG8="}]}`)
	}))
	defer srv.Close()

	provider := NewOpenAILLM(OpenAIConfig{APIKey: "test", BaseURL: srv.URL + "/"})

	img, err := provider.GenerateImage(context.Background(), "a cat")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), img.Data)
	assert.Equal(t, "image/png", img.MimeType)
}

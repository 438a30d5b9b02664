package chat

import (
	"testing"

	"assistant-backend/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *ToolRegistry {
	return NewToolRegistry(CodeTool{}, ResearchTool{}, NewImageTool(nil, nil, nil), NewWebSearchTool(nil, "search-model"))
}

func TestResolveDispatch(t *testing.T) {
	registry := testRegistry()

	d, err := ResolveDispatch("", registry)
	require.NoError(t, err)
	assert.Equal(t, DispatchDefault, d.Kind)
	assert.Empty(t, d.Addendum())

	d, err = ResolveDispatch("web_search", registry)
	require.NoError(t, err)
	assert.Equal(t, DispatchWebSearch, d.Kind)
	assert.Contains(t, d.Addendum(), "must use web search at least once")

	d, err = ResolveDispatch("generateImage", registry)
	require.NoError(t, err)
	assert.Equal(t, Dispatch{Kind: DispatchForcedTool, Tool: ToolGenerateImage}, d)
	assert.NotEmpty(t, d.Addendum())

	_, err = ResolveDispatch("launchRockets", registry)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ResolveDispatch("writeCode", NewToolRegistry(ResearchTool{}))
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorContains(t, err, "registered tools: deepResearch")
}

func TestDispatchShape(t *testing.T) {
	registry := testRegistry()

	req := llm.CompletionRequest{Model: "gpt-4o"}
	Dispatch{Kind: DispatchDefault}.shape(&req, registry, 0, "search-model")
	assert.Equal(t, "gpt-4o", req.Model)
	assert.Len(t, req.Tools, 4)
	assert.Equal(t, llm.ToolChoiceAuto, req.ToolChoice.Mode)

	req = llm.CompletionRequest{Model: "gpt-4o"}
	forced := Dispatch{Kind: DispatchForcedTool, Tool: ToolWriteCode}
	forced.shape(&req, registry, 0, "search-model")
	assert.Equal(t, llm.ToolChoice{Mode: llm.ToolChoiceNamed, Name: ToolWriteCode}, req.ToolChoice)
	forced.shape(&req, registry, 1, "search-model")
	assert.Equal(t, llm.ToolChoiceAuto, req.ToolChoice.Mode)

	req = llm.CompletionRequest{Model: "gpt-4o"}
	Dispatch{Kind: DispatchWebSearch}.shape(&req, registry, 0, "search-model")
	assert.Equal(t, "search-model", req.Model)
	assert.True(t, req.WebSearch)
	assert.Empty(t, req.Tools)
}

func TestToolRegistryOrder(t *testing.T) {
	registry := testRegistry()
	assert.Equal(t, []string{ToolWriteCode, ToolDeepResearch, ToolGenerateImage, ToolWebSearch}, registry.Names())

	_, ok := registry.Get("nope")
	assert.False(t, ok)
}

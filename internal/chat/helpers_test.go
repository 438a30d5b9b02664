package chat

import (
	"context"
	"iter"
	"strings"
	"sync"
	"testing"

	"assistant-backend/internal/database"
	"assistant-backend/internal/llm"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	db, err := database.NewDatabase("file::memory:")
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return NewStore(db)
}

// scriptedProvider replays one scripted round per call to Stream and records
// every request it receives.
type scriptedProvider struct {
	mu       sync.Mutex
	rounds   []providerRound
	requests []llm.CompletionRequest
}

type providerRound struct {
	deltas    []string
	toolCalls []llm.ToolCall
	err       error
}

func (p *scriptedProvider) Stream(ctx context.Context, req llm.CompletionRequest) iter.Seq2[llm.Chunk, error] {
	p.mu.Lock()
	idx := len(p.requests)
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	return func(yield func(llm.Chunk, error) bool) {
		if idx >= len(p.rounds) {
			yield(llm.Chunk{Done: true, FinishReason: "stop"}, nil)
			return
		}
		round := p.rounds[idx]

		for _, d := range round.deltas {
			if !yield(llm.Chunk{TextDelta: d}, nil) {
				return
			}
		}
		if round.err != nil {
			yield(llm.Chunk{}, round.err)
			return
		}

		finish := "stop"
		if len(round.toolCalls) > 0 {
			finish = "tool_calls"
		}
		yield(llm.Chunk{
			Done:         true,
			Text:         strings.Join(round.deltas, ""),
			ToolCalls:    round.toolCalls,
			FinishReason: finish,
			Usage:        llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}, nil)
	}
}

func (p *scriptedProvider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.CompletionRequest(nil), p.requests...)
}

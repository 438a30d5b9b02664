package api

import (
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"assistant-backend/internal/chat"
	"assistant-backend/internal/database"
	"assistant-backend/internal/llm"
	"assistant-backend/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu      sync.Mutex
	replies [][]string
	err     error
	calls   int
}

func (p *fakeProvider) Stream(ctx context.Context, req llm.CompletionRequest) iter.Seq2[llm.Chunk, error] {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.mu.Unlock()

	return func(yield func(llm.Chunk, error) bool) {
		var deltas []string
		if idx < len(p.replies) {
			deltas = p.replies[idx]
		}
		for _, d := range deltas {
			if !yield(llm.Chunk{TextDelta: d}, nil) {
				return
			}
		}
		if p.err != nil {
			yield(llm.Chunk{}, p.err)
			return
		}
		yield(llm.Chunk{Done: true, Text: strings.Join(deltas, ""), FinishReason: "stop"}, nil)
	}
}

type fakeTitler struct {
	title string
	err   error
}

func (f fakeTitler) GenerateTitle(ctx context.Context, message string) (string, error) {
	return f.title, f.err
}

type testServer struct {
	router   chi.Router
	store    *chat.Store
	provider *fakeProvider
	objects  *storage.LocalObjectStore
}

func setupTestServer(t *testing.T, provider *fakeProvider, titles llm.TitleGenerator) *testServer {
	db, err := database.NewDatabase("file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	objects, err := storage.NewLocalObjectStore(t.TempDir(), "http://localhost/media")
	require.NoError(t, err)

	store := chat.NewStore(db)
	tools := chat.NewToolRegistry(chat.CodeTool{}, chat.ResearchTool{})
	orchestrator := chat.NewOrchestrator(chat.DefaultConfig(), store, provider, tools,
		chat.WithResolver(chat.NewAttachmentResolver(storage.NewFetcher(objects), 2)),
	)

	router := NewRouter(NewMediaService(store, objects), NewChatService(store, orchestrator, titles))

	return &testServer{router: router, store: store, provider: provider, objects: objects}
}

func (s *testServer) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserIDHeader, user)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

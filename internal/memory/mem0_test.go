package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"assistant-backend/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMem0Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/memories/search/", r.URL.Path)
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.UserID)
		assert.Equal(t, "tea?", req.Query)
		assert.Equal(t, 10, req.Limit)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"1","memory":"likes green tea","score":0.9},{"id":"2","memory":""}]`))
	}))
	defer server.Close()

	client := NewMem0Client(server.URL, "secret")
	memories, err := client.Search(context.Background(), "alice", "tea?", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"likes green tea"}, memories)
}

func TestMem0SearchWrappedResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"id":"1","memory":"lives in Lisbon"}]}`))
	}))
	defer server.Close()

	memories, err := NewMem0Client(server.URL, "secret").Search(context.Background(), "alice", "where", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"lives in Lisbon"}, memories)
}

func TestMem0AddFiltersRoles(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/v1/memories/", r.URL.Path)

		var req addRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.UserID)
		assert.Equal(t, []memoryMessage{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}}, req.Messages)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewMem0Client(server.URL, "secret")
	err := client.Add(context.Background(), "alice", []llm.Message{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
	})
	require.NoError(t, err)

	require.NoError(t, client.Add(context.Background(), "alice", []llm.Message{{Role: llm.RoleSystem, Content: "sys"}}))
	assert.Equal(t, 1, calls)
}

func TestMem0Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewMem0Client(server.URL, "secret")

	_, err := client.Search(context.Background(), "alice", "q", 10)
	assert.ErrorIs(t, err, ErrMemoryService)

	err = client.Add(context.Background(), "alice", []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	assert.ErrorIs(t, err, ErrMemoryService)
}

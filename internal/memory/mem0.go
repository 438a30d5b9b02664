package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"assistant-backend/internal/llm"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL = "https://api.mem0.ai"
	requestTimeout = 30 * time.Second
)

var ErrMemoryService = errors.New("memory service error")

// Mem0Client talks to the mem0 REST API.
type Mem0Client struct {
	client *resty.Client
}

func NewMem0Client(baseURL, apiKey string) *Mem0Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Mem0Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Authorization", "Token "+apiKey).
			SetHeader("Accept", "application/json"),
	}
}

type memoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type addRequest struct {
	Messages []memoryMessage `json:"messages"`
	UserID   string          `json:"user_id"`
}

type searchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
	Limit  int    `json:"limit,omitempty"`
}

type Entry struct {
	ID     string  `json:"id"`
	Memory string  `json:"memory"`
	Score  float64 `json:"score,omitempty"`
}

// Add stores the user and assistant turns of messages for userID. Other
// roles are skipped and nothing is sent if no turn remains.
func (m *Mem0Client) Add(ctx context.Context, userID string, messages []llm.Message) error {
	var turns []memoryMessage
	for _, msg := range messages {
		if msg.Role == llm.RoleUser || msg.Role == llm.RoleAssistant {
			turns = append(turns, memoryMessage{Role: string(msg.Role), Content: msg.Content})
		}
	}
	if len(turns) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := m.client.R().
		SetContext(ctx).
		SetBody(addRequest{Messages: turns, UserID: userID}).
		Post("/v1/memories/")
	if err != nil {
		return fmt.Errorf("%w: add memories: %v", ErrMemoryService, err)
	}
	if !res.IsSuccess() {
		slog.Error("mem0 returned error", "status_code", res.StatusCode(), "body", res.String())
		return fmt.Errorf("%w: add memories returned status %d", ErrMemoryService, res.StatusCode())
	}
	return nil
}

func (m *Mem0Client) SearchEntries(ctx context.Context, userID, query string, limit int) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := m.client.R().
		SetContext(ctx).
		SetBody(searchRequest{Query: query, UserID: userID, Limit: limit}).
		Post("/v1/memories/search/")
	if err != nil {
		return nil, fmt.Errorf("%w: search memories: %v", ErrMemoryService, err)
	}
	if !res.IsSuccess() {
		slog.Error("mem0 returned error", "status_code", res.StatusCode(), "body", res.String())
		return nil, fmt.Errorf("%w: search memories returned status %d", ErrMemoryService, res.StatusCode())
	}

	var entries []Entry
	if err := json.Unmarshal(res.Body(), &entries); err != nil {
		// Newer deployments wrap the list in an object.
		var wrapped struct {
			Results []Entry `json:"results"`
		}
		if err2 := json.Unmarshal(res.Body(), &wrapped); err2 != nil {
			return nil, fmt.Errorf("%w: error parsing search response: %v", ErrMemoryService, err)
		}
		entries = wrapped.Results
	}
	return entries, nil
}

// Search returns the text of the memories most relevant to query.
func (m *Mem0Client) Search(ctx context.Context, userID, query string, limit int) ([]string, error) {
	entries, err := m.SearchEntries(ctx, userID, query, limit)
	if err != nil {
		return nil, err
	}

	memories := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Memory != "" {
			memories = append(memories, e.Memory)
		}
	}
	return memories, nil
}

package chat

import (
	"context"
	"log/slog"
	"strings"

	"assistant-backend/internal/llm"
)

const DefaultMemorySearchLimit = 10

type MemorySearcher interface {
	Search(ctx context.Context, userID, query string, limit int) ([]string, error)
}

type MemoryWriter interface {
	Add(ctx context.Context, userID string, messages []llm.Message) error
}

func FormatMemories(memories []string) string {
	if len(memories) == 0 {
		return ""
	}

	lines := make([]string, 0, len(memories))
	for _, m := range memories {
		lines = append(lines, "- "+m)
	}
	return "\n\nHere are some relevant memories about the user:\n" + strings.Join(lines, "\n")
}

// recallMemories returns the prompt addendum for query, or an empty string
// when nothing is found or the search fails.
func recallMemories(ctx context.Context, searcher MemorySearcher, userID, query string, limit int) string {
	if searcher == nil || query == "" {
		return ""
	}

	memories, err := searcher.Search(ctx, userID, query, limit)
	if err != nil {
		slog.Warn("memory search failed, continuing without memories", "user_id", userID, "error", err)
		return ""
	}
	return FormatMemories(memories)
}

package chat

import (
	"log/slog"
	"slices"

	"assistant-backend/internal/llm"

	"github.com/google/uuid"
)

// Message is one turn of the conversation as submitted by the client.
type Message struct {
	Role    llm.Role
	Content string

	// AttachmentIDs reference uploaded media and are loaded into Attachments
	// before the message is resolved.
	AttachmentIDs []uuid.UUID
	Attachments   []Attachment
}

type Trimmer struct {
	models *ModelTable
}

func NewTrimmer(models *ModelTable) *Trimmer {
	if models == nil {
		models = NewModelTable()
	}
	return &Trimmer{models: models}
}

func (t *Trimmer) Budget(model, systemPrompt string, reservedTokens int) int {
	if !t.models.Known(model) {
		slog.Debug("unknown model, using default context window", "model", model, "context_window", t.models.ContextWindow(model))
	}
	return t.models.ContextWindow(model) - reservedTokens - EstimateTokens(systemPrompt)
}

// Trim returns the longest suffix of history whose estimated size fits in the
// model's context window after the reserved response tokens and the system
// prompt are taken out. The newest message is always kept, even when it alone
// exceeds the budget. Attachments are not counted.
func (t *Trimmer) Trim(model, systemPrompt string, reservedTokens int, history []Message) []Message {
	if len(history) == 0 {
		return nil
	}

	budget := t.Budget(model, systemPrompt, reservedTokens)

	used := 0
	kept := make([]Message, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		cost := EstimateTokens(history[i].Content)
		if len(kept) > 0 && used+cost > budget {
			break
		}
		used += cost
		kept = append(kept, history[i])
	}
	slices.Reverse(kept)

	if dropped := len(history) - len(kept); dropped > 0 {
		slog.Info("trimmed conversation history", "model", model, "budget", budget, "kept", len(kept), "dropped", dropped)
	}
	if used > budget {
		slog.Warn("newest message exceeds context budget", "model", model, "budget", budget, "tokens", used)
	}

	return kept
}

package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"assistant-backend/pkg/api"

	"github.com/google/uuid"
)

type SendOptions struct {
	Model         string
	ToolChoice    string
	AttachmentIDs []uuid.UUID
	OnText        func(string)
}

// Conversation drives one chat through the API and keeps its branches.
type Conversation struct {
	client   *Client
	slug     string
	branches *Branches
}

// OpenConversation loads the persisted messages of the chat, creating the
// chat if it does not exist yet.
func (c *Client) OpenConversation(ctx context.Context, slug string) (*Conversation, error) {
	chat, err := c.GetChat(ctx, slug)
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
			return nil, err
		}
		if chat, err = c.CreateChat(ctx, slug, ""); err != nil {
			return nil, err
		}
	}

	return &Conversation{client: c, slug: slug, branches: NewBranches(chat.Messages)}, nil
}

func (cv *Conversation) Slug() string {
	return cv.slug
}

func (cv *Conversation) Branches() *Branches {
	return cv.branches
}

func (cv *Conversation) Messages() []api.Message {
	return cv.branches.Active()
}

func toInput(messages []api.Message) []api.InputMessage {
	out := make([]api.InputMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, api.InputMessage{Role: m.Role, Content: m.Content, AttachmentIDs: m.AttachmentIDs})
	}
	return out
}

// complete sends the active branch and appends the reply to it. The newest
// user message of the branch must already be in place.
func (cv *Conversation) complete(ctx context.Context, resubmit bool, opts SendOptions) (Reply, error) {
	history := cv.branches.Active()

	reply, err := cv.client.CompleteText(ctx, api.CompletionRequest{
		ChatSlug:      cv.slug,
		Model:         opts.Model,
		ToolChoice:    opts.ToolChoice,
		Messages:      toInput(history),
		AttachmentIDs: opts.AttachmentIDs,
		Resubmit:      resubmit,
	}, opts.OnText)
	if err != nil {
		return reply, err
	}

	if !resubmit && reply.Finish.UserMessageID != nil {
		history[len(history)-1].ID = *reply.Finish.UserMessageID
		history[len(history)-1].AttachmentIDs = append(history[len(history)-1].AttachmentIDs, opts.AttachmentIDs...)
	}
	history = append(history, reply.Images...)
	if reply.Finish.AssistantMessageID != nil {
		history = append(history, api.Message{
			ID:           *reply.Finish.AssistantMessageID,
			Role:         "assistant",
			Content:      reply.Text,
			Model:        reply.Finish.Model,
			CreationTime: time.Now(),
		})
	}
	cv.branches.Replace(history)

	return reply, nil
}

func (cv *Conversation) Send(ctx context.Context, content string, opts SendOptions) (Reply, error) {
	cv.branches.Append(api.Message{Role: "user", Content: content, CreationTime: time.Now()})
	return cv.complete(ctx, false, opts)
}

// Edit rewrites the user message at index on the server, drops what followed
// it and regenerates the reply in a new branch. The previous branch stays
// available locally.
func (cv *Conversation) Edit(ctx context.Context, index int, newContent string, opts SendOptions) (Reply, error) {
	current := cv.branches.Active()
	branch, err := EditBranch(current, index, newContent)
	if err != nil {
		return Reply{}, err
	}
	target := current[index]
	if target.ID == uuid.Nil {
		return Reply{}, fmt.Errorf("%w: message %d has not been stored yet", ErrNotEditable, index)
	}

	if _, err := cv.client.EditMessage(ctx, cv.slug, index, target.Content, newContent); err != nil {
		return Reply{}, err
	}
	if _, err := cv.client.TruncateAfter(ctx, target.ID); err != nil {
		return Reply{}, err
	}

	cv.branches.Fork(index, branch)
	return cv.complete(ctx, true, opts)
}

// Regenerate drops the assistant reply at index and asks again in a new
// branch, optionally with another model or tool choice.
func (cv *Conversation) Regenerate(ctx context.Context, index int, opts SendOptions) (Reply, error) {
	current := cv.branches.Active()
	branch, pivot, err := RegenerateBranch(current, index)
	if err != nil {
		return Reply{}, err
	}
	if current[pivot].ID == uuid.Nil {
		return Reply{}, fmt.Errorf("%w: message %d has not been stored yet", ErrNotEditable, pivot)
	}

	if _, err := cv.client.TruncateAfter(ctx, current[pivot].ID); err != nil {
		return Reply{}, err
	}

	cv.branches.Fork(pivot, branch)
	return cv.complete(ctx, true, opts)
}

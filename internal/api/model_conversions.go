package api

import (
	"assistant-backend/internal/chat"
	"assistant-backend/internal/database"
	"assistant-backend/internal/llm"
	"assistant-backend/pkg/api"

	"github.com/google/uuid"
)

func convertMessage(m database.Message) api.Message {
	msg := api.Message{
		ID:              m.ID,
		Role:            m.Role,
		Content:         m.Content,
		AttachmentIDs:   []uuid.UUID(m.AttachmentIDs),
		IsEdited:        m.IsEdited,
		OriginalContent: m.OriginalContent.String,
		Model:           m.Model.String,
		CreationTime:    m.CreationTime,
	}
	for _, e := range m.EditHistory {
		msg.EditHistory = append(msg.EditHistory, api.EditRecord{Content: e.Content, EditedAt: e.EditedAt})
	}
	return msg
}

func convertChat(c database.Chat) api.Chat {
	out := api.Chat{
		ID:           c.ID,
		Slug:         c.Slug,
		Title:        c.Title,
		CreationTime: c.CreationTime,
		UpdateTime:   c.UpdateTime,
	}
	for _, m := range c.Messages {
		out.Messages = append(out.Messages, convertMessage(m))
	}
	return out
}

func convertChats(cs []database.Chat) []api.Chat {
	chats := make([]api.Chat, 0, len(cs))
	for _, c := range cs {
		chats = append(chats, convertChat(c))
	}
	return chats
}

func convertAttachment(a database.MediaAttachment) api.MediaAttachment {
	return api.MediaAttachment{
		ID:           a.ID,
		OriginalName: a.OriginalName,
		MimeType:     a.MimeType,
		MediaType:    a.MediaType,
		URL:          a.URL,
		FileSize:     a.FileSize,
	}
}

func convertInputMessages(ms []api.InputMessage) []chat.Message {
	messages := make([]chat.Message, 0, len(ms))
	for _, m := range ms {
		messages = append(messages, chat.Message{
			Role:          llm.Role(m.Role),
			Content:       m.Content,
			AttachmentIDs: m.AttachmentIDs,
		})
	}
	return messages
}

func optionalID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func convertResult(res chat.Result) *api.CompletionFinish {
	finish := &api.CompletionFinish{
		ChatID:             res.ChatID,
		UserMessageID:      optionalID(res.UserMessageID),
		AssistantMessageID: optionalID(res.AssistantMessageID),
		Model:              res.Model,
		FinishReason:       res.FinishReason,
		Usage: api.Usage{
			PromptTokens:     res.Usage.PromptTokens,
			CompletionTokens: res.Usage.CompletionTokens,
			TotalTokens:      res.Usage.TotalTokens,
		},
	}
	for _, e := range res.Effects {
		if !e.Ok() {
			finish.Degraded = append(finish.Degraded, api.DegradedEffect{Effect: e.Effect, Error: e.Err.Error()})
		}
	}
	return finish
}

func convertEvent(e chat.StreamEvent) api.CompletionEvent {
	event := api.CompletionEvent{
		Type:       string(e.Type),
		Text:       e.Text,
		ToolCallID: e.ToolCallID,
		Tool:       e.Tool,
		Arguments:  e.Arguments,
		Result:     e.Output,
		ToolError:  e.ToolError,
	}
	if e.Result != nil {
		event.Finish = convertResult(*e.Result)
	}
	return event
}

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"assistant-backend/internal/llm"
	"assistant-backend/internal/utils"

	"github.com/google/uuid"
)

const DefaultMaxConcurrentFetches = 4

type ByteSource interface {
	Bytes(ctx context.Context) ([]byte, error)
}

// InlineBytes is a ByteSource for attachments already held in memory.
type InlineBytes []byte

func (b InlineBytes) Bytes(context.Context) ([]byte, error) {
	return b, nil
}

type URLFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Attachment struct {
	ID       uuid.UUID
	Name     string
	MimeType string
	URL      string

	// Source takes precedence over URL when set.
	Source ByteSource
}

func blockTypeFor(mimeType string) (llm.BlockType, bool) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return llm.BlockImage, true
	case mimeType == "application/pdf":
		return llm.BlockFile, true
	default:
		return "", false
	}
}

type AttachmentResolver struct {
	fetcher       URLFetcher
	maxConcurrent int
}

func NewAttachmentResolver(fetcher URLFetcher, maxConcurrent int) *AttachmentResolver {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentFetches
	}
	return &AttachmentResolver{fetcher: fetcher, maxConcurrent: maxConcurrent}
}

type fetchJob struct {
	message    int
	attachment Attachment
}

// ResolveAll converts the conversation to provider messages. User messages
// with attachments become a text block followed by one block per attachment
// that could be read. Reads run concurrently and all complete before
// ResolveAll returns. A failed read drops only that attachment.
func (r *AttachmentResolver) ResolveAll(ctx context.Context, history []Message) []llm.Message {
	var jobs []fetchJob
	for i, msg := range history {
		if msg.Role != llm.RoleUser {
			continue
		}
		for _, att := range msg.Attachments {
			if _, ok := blockTypeFor(att.MimeType); !ok {
				slog.Debug("dropping attachment with unsupported type", "attachment_id", att.ID, "mime_type", att.MimeType)
				continue
			}
			jobs = append(jobs, fetchJob{message: i, attachment: att})
		}
	}

	results := utils.RunAll(func(job fetchJob) ([]byte, error) {
		return r.read(ctx, job.attachment)
	}, jobs, r.maxConcurrent)

	blocks := make(map[int][]llm.ContentBlock)
	for _, res := range results {
		att := res.Input.attachment
		if res.Error != nil {
			slog.Warn("failed to read attachment, omitting it", "attachment_id", att.ID, "name", att.Name, "url", att.URL, "error", res.Error)
			continue
		}
		blockType, _ := blockTypeFor(att.MimeType)
		blocks[res.Input.message] = append(blocks[res.Input.message], llm.ContentBlock{
			Type:     blockType,
			Data:     res.Result,
			MimeType: att.MimeType,
			Filename: att.Name,
		})
	}

	out := make([]llm.Message, 0, len(history))
	for i, msg := range history {
		resolved := llm.Message{Role: msg.Role, Content: msg.Content}
		if msg.Role == llm.RoleUser && len(msg.Attachments) > 0 {
			resolved.Blocks = append([]llm.ContentBlock{{Type: llm.BlockText, Text: msg.Content}}, blocks[i]...)
		}
		out = append(out, resolved)
	}
	return out
}

func (r *AttachmentResolver) read(ctx context.Context, att Attachment) ([]byte, error) {
	var data []byte
	var err error
	switch {
	case att.Source != nil:
		data, err = att.Source.Bytes(ctx)
	case att.URL != "" && r.fetcher != nil:
		data, err = r.fetcher.Fetch(ctx, att.URL)
	default:
		return nil, fmt.Errorf("attachment %s has no readable source", att.ID)
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("attachment %s is empty", att.ID)
	}
	return data, nil
}

func attachmentIDs(attachments []Attachment) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(attachments))
	for _, a := range attachments {
		if a.ID != uuid.Nil {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

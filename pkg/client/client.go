package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"assistant-backend/pkg/api"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	userIDHeader = "X-User-Id"

	// Tool results may carry inline images, so stream lines can be large.
	maxStreamLineBytes = 16 * 1024 * 1024
)

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the assistant API on behalf of a single user.
type Client struct {
	client *resty.Client
}

func New(baseURL, userID string) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetHeader(userIDHeader, userID).
			SetTimeout(5 * time.Minute),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	req := c.client.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	res, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	if !res.IsSuccess() {
		return &APIError{StatusCode: res.StatusCode(), Message: strings.TrimSpace(res.String())}
	}
	return nil
}

func chatPath(slug string, parts ...string) string {
	return "/chats/" + strings.Join(append([]string{url.PathEscape(slug)}, parts...), "/")
}

func (c *Client) ListChats(ctx context.Context, limit int) ([]api.Chat, error) {
	path := "/chats"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var res api.ListChatsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return res.Chats, nil
}

func (c *Client) CreateChat(ctx context.Context, slug, title string) (api.Chat, error) {
	var res api.Chat
	err := c.do(ctx, http.MethodPost, "/chats", api.CreateChatRequest{Slug: slug, Title: title}, &res)
	return res, err
}

func (c *Client) GetChat(ctx context.Context, slug string) (api.Chat, error) {
	var res api.Chat
	err := c.do(ctx, http.MethodGet, chatPath(slug), nil, &res)
	return res, err
}

func (c *Client) DeleteChat(ctx context.Context, slug string) error {
	return c.do(ctx, http.MethodDelete, chatPath(slug), nil, nil)
}

func (c *Client) GenerateTitle(ctx context.Context, slug, message string) (string, error) {
	var res api.GenerateTitleResponse
	if err := c.do(ctx, http.MethodPost, chatPath(slug, "title"), api.GenerateTitleRequest{Message: message}, &res); err != nil {
		return "", err
	}
	return res.Title, nil
}

func (c *Client) EditMessage(ctx context.Context, slug string, index int, originalContent, newContent string) (api.Message, error) {
	var res api.Message
	err := c.do(ctx, http.MethodPost, chatPath(slug, "messages", "edit"), api.EditMessageRequest{
		Index:           index,
		OriginalContent: originalContent,
		NewContent:      newContent,
	}, &res)
	return res, err
}

func (c *Client) TruncateAfter(ctx context.Context, messageID uuid.UUID) (int64, error) {
	var res api.TruncateResponse
	if err := c.do(ctx, http.MethodPost, "/messages/"+messageID.String()+"/truncate", nil, &res); err != nil {
		return 0, err
	}
	return res.Deleted, nil
}

func (c *Client) Upload(ctx context.Context, filename, contentType string, data io.Reader) (api.MediaAttachment, error) {
	var attachment api.MediaAttachment

	res, err := c.client.R().
		SetContext(ctx).
		SetMultipartField("file", filename, contentType, data).
		SetResult(&attachment).
		Post("/upload")
	if err != nil {
		return attachment, fmt.Errorf("upload of %s failed: %w", filename, err)
	}
	if !res.IsSuccess() {
		return attachment, &APIError{StatusCode: res.StatusCode(), Message: strings.TrimSpace(res.String())}
	}
	return attachment, nil
}

// Complete starts a completion and yields its events as they arrive. An error
// envelope in the stream ends the sequence with an *APIError.
func (c *Client) Complete(ctx context.Context, req api.CompletionRequest) iter.Seq2[api.CompletionEvent, error] {
	return func(yield func(api.CompletionEvent, error) bool) {
		res, err := c.client.R().
			SetContext(ctx).
			SetBody(req).
			SetDoNotParseResponse(true).
			Post("/chat")
		if err != nil {
			yield(api.CompletionEvent{}, fmt.Errorf("completion request failed: %w", err))
			return
		}

		body := res.RawBody()
		defer body.Close()

		if !res.IsSuccess() {
			msg, _ := io.ReadAll(io.LimitReader(body, 64*1024))
			yield(api.CompletionEvent{}, &APIError{StatusCode: res.StatusCode(), Message: strings.TrimSpace(string(msg))})
			return
		}

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 64*1024), maxStreamLineBytes)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var msg api.StreamMessage[api.CompletionEvent]
			if err := json.Unmarshal(line, &msg); err != nil {
				yield(api.CompletionEvent{}, fmt.Errorf("error parsing completion stream: %w", err))
				return
			}
			if msg.Code != http.StatusOK {
				yield(api.CompletionEvent{}, &APIError{StatusCode: msg.Code, Message: msg.Error})
				return
			}
			if !yield(msg.Data, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(api.CompletionEvent{}, fmt.Errorf("error reading completion stream: %w", err))
		}
	}
}

type Reply struct {
	Text string
	// Images are the assistant messages stored by image generation during
	// the turn, in order. They precede the final answer in the chat.
	Images []api.Message
	Finish *api.CompletionFinish
}

func decodeImageResult(event api.CompletionEvent) (api.Message, error) {
	raw, err := json.Marshal(event.Result)
	if err != nil {
		return api.Message{}, err
	}
	var res api.ImageResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return api.Message{}, fmt.Errorf("invalid %s result: %w", api.ToolGenerateImage, err)
	}
	if res.MessageID == uuid.Nil {
		return api.Message{}, fmt.Errorf("%s result is missing the stored message id", api.ToolGenerateImage)
	}
	return api.Message{
		ID:           res.MessageID,
		Role:         "assistant",
		Content:      res.Content,
		Model:        res.Model,
		CreationTime: time.Now(),
	}, nil
}

// CompleteText runs a completion to the end. onText, if set, receives every
// text delta.
func (c *Client) CompleteText(ctx context.Context, req api.CompletionRequest, onText func(string)) (Reply, error) {
	var reply Reply
	var text strings.Builder
	for event, err := range c.Complete(ctx, req) {
		if err != nil {
			return reply, err
		}
		switch event.Type {
		case api.EventText:
			text.WriteString(event.Text)
			if onText != nil {
				onText(event.Text)
			}
		case api.EventToolResult:
			if event.Tool != api.ToolGenerateImage || event.ToolError != "" {
				continue
			}
			image, err := decodeImageResult(event)
			if err != nil {
				return reply, err
			}
			reply.Images = append(reply.Images, image)
		case api.EventFinish:
			reply.Finish = event.Finish
		}
	}

	reply.Text = text.String()
	if reply.Finish == nil {
		return reply, fmt.Errorf("completion stream ended without a finish event")
	}
	return reply, nil
}

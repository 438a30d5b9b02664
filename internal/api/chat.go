package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"assistant-backend/internal/chat"
	"assistant-backend/internal/database"
	"assistant-backend/internal/llm"
	"assistant-backend/pkg/api"

	"github.com/go-chi/chi/v5"
)

const (
	maxSlugLength    = 100
	maxTitleLength   = 100
	defaultListLimit = 50
)

type ChatService struct {
	store        *chat.Store
	orchestrator *chat.Orchestrator
	titles       llm.TitleGenerator
}

func NewChatService(store *chat.Store, orchestrator *chat.Orchestrator, titles llm.TitleGenerator) *ChatService {
	return &ChatService{store: store, orchestrator: orchestrator, titles: titles}
}

func (s *ChatService) AddRoutes(r chi.Router) {
	r.Post("/chat", RestStreamHandler(s.Complete))

	r.Route("/chats", func(r chi.Router) {
		r.Get("/", RestHandler(s.ListChats))
		r.Post("/", RestHandler(s.CreateChat))
		r.Get("/{slug}", RestHandler(s.GetChat))
		r.Delete("/{slug}", RestHandler(s.DeleteChat))
		r.Post("/{slug}/title", RestHandler(s.GenerateTitle))
		r.Post("/{slug}/messages/edit", RestHandler(s.EditMessage))
	})

	r.Post("/messages/{message_id}/truncate", RestHandler(s.TruncateAfter))
}

func (s *ChatService) Complete(r *http.Request) (StreamResponse, error) {
	req, err := ParseRequest[api.CompletionRequest](r)
	if err != nil {
		return nil, err
	}

	completion, err := s.orchestrator.Start(r.Context(), chat.CompletionRequest{
		UserID:        UserID(r),
		ChatSlug:      req.ChatSlug,
		Model:         req.Model,
		ToolHint:      req.ToolChoice,
		Messages:      convertInputMessages(req.Messages),
		AttachmentIDs: req.AttachmentIDs,
		Resubmit:      req.Resubmit,
	})
	if err != nil {
		return nil, domainError(err)
	}

	return func(yield func(any, error) bool) {
		for event, err := range completion.Events(r.Context()) {
			if err != nil {
				yield(nil, domainError(err))
				return
			}
			if !yield(convertEvent(event), nil) {
				return
			}
		}
	}, nil
}

func (s *ChatService) ListChats(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListChatsParams](r)
	if err != nil {
		return nil, err
	}
	if params.Limit <= 0 {
		params.Limit = defaultListLimit
	}

	chats, err := s.store.ListChats(r.Context(), UserID(r), params.Limit)
	if err != nil {
		return nil, domainError(err)
	}

	return api.ListChatsResponse{Chats: convertChats(chats)}, nil
}

func (s *ChatService) CreateChat(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateChatRequest](r)
	if err != nil {
		return nil, err
	}

	if req.Slug == "" || len(req.Slug) > maxSlugLength {
		return nil, CodedErrorf(http.StatusBadRequest, "slug must be between 1 and %d characters", maxSlugLength)
	}
	if utf8.RuneCountInString(req.Title) > maxTitleLength {
		return nil, CodedErrorf(http.StatusBadRequest, "title must be at most %d characters", maxTitleLength)
	}

	c, err := s.store.FindOrCreateChat(r.Context(), UserID(r), req.Slug, req.Title)
	if err != nil {
		return nil, domainError(err)
	}

	return convertChat(c), nil
}

func (s *ChatService) GetChat(r *http.Request) (any, error) {
	slug, err := URLParamString(r, "slug", maxSlugLength)
	if err != nil {
		return nil, err
	}

	c, err := s.store.GetChat(r.Context(), UserID(r), slug)
	if err != nil {
		return nil, domainError(err)
	}

	return convertChat(c), nil
}

func (s *ChatService) DeleteChat(r *http.Request) (any, error) {
	slug, err := URLParamString(r, "slug", maxSlugLength)
	if err != nil {
		return nil, err
	}

	if err := s.store.DeleteChat(r.Context(), UserID(r), slug); err != nil {
		return nil, domainError(err)
	}

	return nil, nil
}

func (s *ChatService) GenerateTitle(r *http.Request) (any, error) {
	slug, err := URLParamString(r, "slug", maxSlugLength)
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.GenerateTitleRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Message == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "message is required")
	}

	if s.titles == nil {
		return nil, CodedErrorf(http.StatusServiceUnavailable, "title generation is not configured")
	}

	title, err := s.titles.GenerateTitle(r.Context(), req.Message)
	if err != nil {
		slog.Error("error generating chat title", "slug", slug, "error", err)
		return nil, domainError(fmt.Errorf("%w: %v", chat.ErrUpstream, err))
	}
	if title == "" {
		title = database.DefaultChatTitle
	}
	if runes := []rune(title); len(runes) > maxTitleLength {
		title = string(runes[:maxTitleLength])
	}

	if err := s.store.RenameChat(r.Context(), UserID(r), slug, title); err != nil {
		return nil, domainError(err)
	}

	return api.GenerateTitleResponse{Title: title}, nil
}

func (s *ChatService) EditMessage(r *http.Request) (any, error) {
	slug, err := URLParamString(r, "slug", maxSlugLength)
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.EditMessageRequest](r)
	if err != nil {
		return nil, err
	}
	if req.NewContent == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "new_content is required")
	}

	msg, err := s.store.EditMessageAt(r.Context(), chat.EditRequest{
		UserID:          UserID(r),
		Slug:            slug,
		Index:           req.Index,
		ExpectedContent: req.OriginalContent,
		NewContent:      req.NewContent,
	})
	if err != nil {
		return nil, domainError(err)
	}

	return convertMessage(msg), nil
}

func (s *ChatService) TruncateAfter(r *http.Request) (any, error) {
	messageID, err := URLParamUUID(r, "message_id")
	if err != nil {
		return nil, err
	}

	deleted, err := s.store.TruncateAfter(r.Context(), UserID(r), messageID)
	if err != nil {
		return nil, domainError(err)
	}

	return api.TruncateResponse{Deleted: deleted}, nil
}

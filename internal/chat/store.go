package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"assistant-backend/internal/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SQLite only supports one writer at a time, so we need a lock
// whenever we write to the database
var dbMutex sync.Mutex

// clock hands out strictly increasing UTC timestamps at the precision the
// databases store, so messages created in one process never tie.
type clock struct {
	mu   sync.Mutex
	last time.Time
}

func (c *clock) Now() time.Time {
	now := time.Now().UTC().Truncate(time.Microsecond)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !now.After(c.last) {
		now = c.last.Add(time.Microsecond)
	}
	c.last = now
	return now
}

type Store struct {
	db    *gorm.DB
	clock *clock
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, clock: &clock{}}
}

func (s *Store) ownedChat(ctx context.Context, txn *gorm.DB, userID, slug string) (database.Chat, error) {
	var chat database.Chat
	err := txn.WithContext(ctx).Where("slug = ? AND user_id = ?", slug, userID).First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return chat, fmt.Errorf("%w: chat %s", ErrNotFound, slug)
	}
	if err != nil {
		slog.Error("error loading chat", "slug", slug, "error", err)
		return chat, fmt.Errorf("error loading chat %s: %w", slug, err)
	}
	return chat, nil
}

// FindOrCreateChat returns the user's chat with the given slug, creating it if
// no chat has that slug yet. A slug taken by another user reads as not found.
func (s *Store) FindOrCreateChat(ctx context.Context, userID, slug, title string) (database.Chat, error) {
	if slug == "" {
		return database.Chat{}, fmt.Errorf("%w: chat slug is required", ErrValidation)
	}
	if title == "" {
		title = database.DefaultChatTitle
	}

	dbMutex.Lock()
	defer dbMutex.Unlock()

	var chat database.Chat
	err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&chat).Error
	if err == nil {
		if chat.UserID != userID {
			return database.Chat{}, fmt.Errorf("%w: chat %s", ErrNotFound, slug)
		}
		return chat, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return chat, fmt.Errorf("error loading chat %s: %w", slug, err)
	}

	now := s.clock.Now()
	chat = database.Chat{
		ID:           uuid.New(),
		UserID:       userID,
		Slug:         slug,
		Title:        title,
		CreationTime: now,
		UpdateTime:   now,
	}
	if err := s.db.WithContext(ctx).Create(&chat).Error; err != nil {
		slog.Error("error creating chat", "slug", slug, "error", err)
		return database.Chat{}, fmt.Errorf("error creating chat %s: %w", slug, err)
	}

	slog.Info("created chat", "chat_id", chat.ID, "slug", slug, "user_id", userID)
	return chat, nil
}

func (s *Store) GetChat(ctx context.Context, userID, slug string) (database.Chat, error) {
	chat, err := s.ownedChat(ctx, s.db, userID, slug)
	if err != nil {
		return chat, err
	}

	chat.Messages, err = s.Messages(ctx, chat.ID)
	if err != nil {
		return chat, err
	}
	return chat, nil
}

func (s *Store) ListChats(ctx context.Context, userID string, limit int) ([]database.Chat, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("update_time DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var chats []database.Chat
	if err := query.Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("error listing chats: %w", err)
	}
	return chats, nil
}

func (s *Store) RenameChat(ctx context.Context, userID, slug, title string) error {
	if title == "" {
		return fmt.Errorf("%w: title must not be empty", ErrValidation)
	}

	dbMutex.Lock()
	defer dbMutex.Unlock()

	res := s.db.WithContext(ctx).Model(&database.Chat{}).
		Where("slug = ? AND user_id = ?", slug, userID).
		Updates(map[string]any{"title": title, "update_time": s.clock.Now()})
	if res.Error != nil {
		return fmt.Errorf("error renaming chat %s: %w", slug, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: chat %s", ErrNotFound, slug)
	}
	return nil
}

// DeleteChat removes the chat and every message in it.
func (s *Store) DeleteChat(ctx context.Context, userID, slug string) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	return s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		chat, err := s.ownedChat(ctx, txn, userID, slug)
		if err != nil {
			return err
		}

		if err := txn.Delete(&database.Message{}, "chat_id = ?", chat.ID).Error; err != nil {
			return fmt.Errorf("error deleting messages of chat %s: %w", slug, err)
		}
		if err := txn.Delete(&database.Chat{}, "id = ?", chat.ID).Error; err != nil {
			return fmt.Errorf("error deleting chat %s: %w", slug, err)
		}

		slog.Info("deleted chat", "chat_id", chat.ID, "slug", slug)
		return nil
	})
}

func (s *Store) Messages(ctx context.Context, chatID uuid.UUID) ([]database.Message, error) {
	var messages []database.Message
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("creation_time ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("error loading messages of chat %s: %w", chatID, err)
	}
	return messages, nil
}

// SaveMessage appends msg to its chat, filling in the id, timestamp and
// version when unset.
func (s *Store) SaveMessage(ctx context.Context, msg *database.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreationTime.IsZero() {
		msg.CreationTime = s.clock.Now()
	}
	if msg.Version == 0 {
		msg.Version = 1
	}

	dbMutex.Lock()
	defer dbMutex.Unlock()

	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		slog.Error("error saving message", "chat_id", msg.ChatID, "role", msg.Role, "error", err)
		return fmt.Errorf("error saving message: %w", err)
	}
	return nil
}

func (s *Store) SaveAssistantMessage(ctx context.Context, chatID uuid.UUID, content, model string) (database.Message, error) {
	msg := database.Message{
		ChatID:  chatID,
		Role:    database.RoleAssistant,
		Content: content,
		Model:   sql.NullString{String: model, Valid: model != ""},
	}
	if err := s.SaveMessage(ctx, &msg); err != nil {
		return msg, err
	}
	return msg, nil
}

// TouchChat bumps the chat's update timestamp.
func (s *Store) TouchChat(ctx context.Context, chatID uuid.UUID) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	return s.touch(ctx, s.db, chatID)
}

func (s *Store) touch(ctx context.Context, txn *gorm.DB, chatID uuid.UUID) error {
	if err := txn.WithContext(ctx).Model(&database.Chat{}).
		Where("id = ?", chatID).
		Update("update_time", s.clock.Now()).Error; err != nil {
		return fmt.Errorf("error updating timestamp of chat %s: %w", chatID, err)
	}
	return nil
}

func (s *Store) CreateAttachment(ctx context.Context, att *database.MediaAttachment) error {
	if att.ID == uuid.Nil {
		att.ID = uuid.New()
	}
	if att.CreationTime.IsZero() {
		att.CreationTime = s.clock.Now()
	}

	dbMutex.Lock()
	defer dbMutex.Unlock()

	if err := s.db.WithContext(ctx).Create(att).Error; err != nil {
		return fmt.Errorf("error saving media attachment: %w", err)
	}
	return nil
}

// GetAttachments loads the attachments with the given ids that are visible to
// the user, in the order of ids. Unknown ids are skipped.
func (s *Store) GetAttachments(ctx context.Context, userID string, ids []uuid.UUID) ([]database.MediaAttachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []database.MediaAttachment
	err := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Where("user_id IS NULL OR user_id = ?", userID).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error loading attachments: %w", err)
	}

	byID := make(map[uuid.UUID]database.MediaAttachment, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	out := make([]database.MediaAttachment, 0, len(ids))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			out = append(out, row)
		} else {
			slog.Warn("attachment not found", "attachment_id", id, "user_id", userID)
		}
	}
	return out, nil
}

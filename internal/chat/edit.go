package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"assistant-backend/internal/database"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EditRequest struct {
	UserID          string
	Slug            string
	Index           int
	ExpectedContent string
	NewContent      string
}

// EditMessageAt replaces the content of the message at position Index of the
// chat, provided it still holds ExpectedContent. The write is additionally
// guarded by the message version, so an edit racing between the read and the
// write is reported as a conflict too. Nothing is changed on conflict.
func (s *Store) EditMessageAt(ctx context.Context, req EditRequest) (database.Message, error) {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	var edited database.Message
	err := s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		chat, err := s.ownedChat(ctx, txn, req.UserID, req.Slug)
		if err != nil {
			return err
		}

		var messages []database.Message
		if err := txn.Where("chat_id = ?", chat.ID).Order("creation_time ASC").Find(&messages).Error; err != nil {
			return fmt.Errorf("error loading messages of chat %s: %w", req.Slug, err)
		}

		if req.Index < 0 || req.Index >= len(messages) {
			return fmt.Errorf("%w: message index %d out of range for chat with %d messages", ErrConflict, req.Index, len(messages))
		}

		target := messages[req.Index]
		if target.Content != req.ExpectedContent {
			return fmt.Errorf("%w: message %d no longer has the expected content", ErrConflict, req.Index)
		}

		now := s.clock.Now()
		record := database.EditRecord{Content: target.Content, EditedAt: now}

		history := datatypes.JSONSlice[database.EditRecord]{record}
		originalContent := target.OriginalContent
		if target.IsEdited {
			history = append(append(datatypes.JSONSlice[database.EditRecord]{}, target.EditHistory...), record)
		} else {
			originalContent = sql.NullString{String: target.Content, Valid: true}
		}

		res := txn.Model(&database.Message{}).
			Where("id = ? AND version = ?", target.ID, target.Version).
			Updates(map[string]any{
				"content":          req.NewContent,
				"is_edited":        true,
				"original_content": originalContent,
				"edit_history":     history,
				"version":          target.Version + 1,
			})
		if res.Error != nil {
			return fmt.Errorf("error updating message %s: %w", target.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: message %d was modified concurrently", ErrConflict, req.Index)
		}

		if err := s.touch(ctx, txn, chat.ID); err != nil {
			return err
		}

		edited = target
		edited.Content = req.NewContent
		edited.IsEdited = true
		edited.OriginalContent = originalContent
		edited.EditHistory = history
		edited.Version = target.Version + 1
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			slog.Info("message edit rejected", "slug", req.Slug, "index", req.Index, "error", err)
		}
		return database.Message{}, err
	}

	return edited, nil
}

// TruncateAfter deletes every message of the chat containing messageID that
// was created strictly after it, and returns how many were removed.
func (s *Store) TruncateAfter(ctx context.Context, userID string, messageID uuid.UUID) (int64, error) {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var pivot database.Message
		if err := txn.First(&pivot, "id = ?", messageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
			}
			return fmt.Errorf("error loading message %s: %w", messageID, err)
		}

		var chat database.Chat
		if err := txn.Where("id = ? AND user_id = ?", pivot.ChatID, userID).First(&chat).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
			}
			return fmt.Errorf("error loading chat %s: %w", pivot.ChatID, err)
		}

		res := txn.Where("chat_id = ? AND creation_time > ?", chat.ID, pivot.CreationTime).Delete(&database.Message{})
		if res.Error != nil {
			return fmt.Errorf("error deleting messages after %s: %w", messageID, res.Error)
		}
		deleted = res.RowsAffected

		return s.touch(ctx, txn, chat.ID)
	})
	if err != nil {
		return 0, err
	}

	slog.Info("truncated chat", "message_id", messageID, "deleted", deleted)
	return deleted, nil
}

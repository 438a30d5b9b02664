package chat

import (
	"context"
	"testing"

	"assistant-backend/internal/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditMessageAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chat, err := store.FindOrCreateChat(ctx, "alice", "chat-1", "")
	require.NoError(t, err)
	saveMessages(t, store, chat.ID, "hi", "hello!", "draft")

	edited, err := store.EditMessageAt(ctx, EditRequest{UserID: "alice", Slug: "chat-1", Index: 2, ExpectedContent: "draft", NewContent: "draft v2"})
	require.NoError(t, err)
	assert.Equal(t, "draft v2", edited.Content)
	assert.True(t, edited.IsEdited)
	assert.Equal(t, "draft", edited.OriginalContent.String)
	assert.Equal(t, 2, edited.Version)

	edited, err = store.EditMessageAt(ctx, EditRequest{UserID: "alice", Slug: "chat-1", Index: 2, ExpectedContent: "draft v2", NewContent: "draft v3"})
	require.NoError(t, err)

	loaded, err := store.GetChat(ctx, "alice", "chat-1")
	require.NoError(t, err)
	msg := loaded.Messages[2]
	assert.Equal(t, "draft v3", msg.Content)
	assert.Equal(t, "draft", msg.OriginalContent.String)
	require.Len(t, msg.EditHistory, 2)
	assert.Equal(t, "draft", msg.EditHistory[0].Content)
	assert.Equal(t, "draft v2", msg.EditHistory[1].Content)
	assert.Equal(t, 3, msg.Version)
	assert.Equal(t, edited.ID, msg.ID)
}

func TestEditConflictLeavesMessageUntouched(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chat, err := store.FindOrCreateChat(ctx, "alice", "chat-1", "")
	require.NoError(t, err)
	saveMessages(t, store, chat.ID, "hi", "hello!", "draft v2")

	before, err := store.GetChat(ctx, "alice", "chat-1")
	require.NoError(t, err)

	_, err = store.EditMessageAt(ctx, EditRequest{UserID: "alice", Slug: "chat-1", Index: 2, ExpectedContent: "draft", NewContent: "final"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = store.EditMessageAt(ctx, EditRequest{UserID: "alice", Slug: "chat-1", Index: 3, ExpectedContent: "draft v2", NewContent: "final"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = store.EditMessageAt(ctx, EditRequest{UserID: "alice", Slug: "chat-1", Index: -1, ExpectedContent: "hi", NewContent: "final"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = store.EditMessageAt(ctx, EditRequest{UserID: "bob", Slug: "chat-1", Index: 2, ExpectedContent: "draft v2", NewContent: "final"})
	assert.ErrorIs(t, err, ErrNotFound)

	after, err := store.GetChat(ctx, "alice", "chat-1")
	require.NoError(t, err)
	assert.Equal(t, before.UpdateTime, after.UpdateTime)
	require.Len(t, after.Messages, 3)
	msg := after.Messages[2]
	assert.Equal(t, "draft v2", msg.Content)
	assert.False(t, msg.IsEdited)
	assert.False(t, msg.OriginalContent.Valid)
	assert.Empty(t, msg.EditHistory)
	assert.Equal(t, 1, msg.Version)
}

func TestEditBumpsChatTimestamp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chat, err := store.FindOrCreateChat(ctx, "alice", "chat-1", "")
	require.NoError(t, err)
	saveMessages(t, store, chat.ID, "hi")

	_, err = store.EditMessageAt(ctx, EditRequest{UserID: "alice", Slug: "chat-1", Index: 0, ExpectedContent: "hi", NewContent: "hey"})
	require.NoError(t, err)

	after, err := store.GetChat(ctx, "alice", "chat-1")
	require.NoError(t, err)
	assert.True(t, after.UpdateTime.After(chat.UpdateTime))
}

func TestEditVersionGuard(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chat, err := store.FindOrCreateChat(ctx, "alice", "chat-1", "")
	require.NoError(t, err)
	msgs := saveMessages(t, store, chat.ID, "draft")

	// A writer that bumps the version without touching the content still
	// invalidates edits made against the old version.
	var stale database.Message
	require.NoError(t, store.db.First(&stale, "id = ?", msgs[0].ID).Error)
	require.NoError(t, store.db.Model(&database.Message{}).Where("id = ?", msgs[0].ID).Update("version", 7).Error)

	res := store.db.Model(&database.Message{}).
		Where("id = ? AND version = ?", stale.ID, stale.Version).
		Update("content", "lost update")
	require.NoError(t, res.Error)
	assert.Equal(t, int64(0), res.RowsAffected)

	edited, err := store.EditMessageAt(ctx, EditRequest{UserID: "alice", Slug: "chat-1", Index: 0, ExpectedContent: "draft", NewContent: "draft v2"})
	require.NoError(t, err)
	assert.Equal(t, 8, edited.Version)
}

func TestTruncateAfter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chat, err := store.FindOrCreateChat(ctx, "alice", "chat-1", "")
	require.NoError(t, err)
	msgs := saveMessages(t, store, chat.ID, "t1", "t2", "t3", "t4")

	other, err := store.FindOrCreateChat(ctx, "alice", "chat-2", "")
	require.NoError(t, err)
	saveMessages(t, store, other.ID, "elsewhere")

	deleted, err := store.TruncateAfter(ctx, "alice", msgs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	loaded, err := store.GetChat(ctx, "alice", "chat-1")
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "t1", loaded.Messages[0].Content)
	assert.Equal(t, "t2", loaded.Messages[1].Content)
	assert.True(t, loaded.UpdateTime.After(chat.UpdateTime))

	untouched, err := store.Messages(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, untouched, 1)

	deleted, err = store.TruncateAfter(ctx, "alice", msgs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestTruncateAfterNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	chat, err := store.FindOrCreateChat(ctx, "alice", "chat-1", "")
	require.NoError(t, err)
	msgs := saveMessages(t, store, chat.ID, "t1", "t2")

	_, err = store.TruncateAfter(ctx, "alice", uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.TruncateAfter(ctx, "bob", msgs[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)

	remaining, err := store.Messages(ctx, chat.ID)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"assistant-backend/pkg/api"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadRequest(t *testing.T, filename, contentType string, data []byte) *http.Request {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(UserIDHeader, "alice")
	return req
}

func TestUploadAndServe(t *testing.T) {
	server := setupTestServer(t, &fakeProvider{}, nil)

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, uploadRequest(t, "notes.txt", "text/plain", []byte("remember the milk")))
	require.Equal(t, http.StatusOK, rec.Code)

	var attachment api.MediaAttachment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&attachment))
	assert.Equal(t, "notes.txt", attachment.OriginalName)
	assert.Equal(t, "document", attachment.MediaType)
	assert.Equal(t, int64(17), attachment.FileSize)
	require.True(t, strings.HasPrefix(attachment.URL, "http://localhost/media/uploads/"))

	path := strings.TrimPrefix(attachment.URL, "http://localhost")
	rec = httptest.NewRecorder()
	server.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "remember the milk", string(body))
}

func TestUploadRejectsUnsupportedTypes(t *testing.T) {
	server := setupTestServer(t, &fakeProvider{}, nil)

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, uploadRequest(t, "archive.zip", "application/zip", []byte("PK")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	server.router.ServeHTTP(rec, uploadRequest(t, "empty.png", "image/png", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompletionWithUploadedImage(t *testing.T) {
	server := setupTestServer(t, &fakeProvider{replies: [][]string{{"a cat"}}}, nil)

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, uploadRequest(t, "cat.png", "image/png", []byte("\x89PNG fake")))
	require.Equal(t, http.StatusOK, rec.Code)
	var attachment api.MediaAttachment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&attachment))

	rec = server.do(t, http.MethodPost, "/chat", "alice", api.CompletionRequest{
		ChatSlug:      "chat-1",
		Messages:      []api.InputMessage{{Role: "user", Content: "what is this?"}},
		AttachmentIDs: []uuid.UUID{attachment.ID},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = server.do(t, http.MethodGet, "/chats/chat-1", "alice", nil)
	chat := decode[api.Chat](t, rec)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, []uuid.UUID{attachment.ID}, chat.Messages[0].AttachmentIDs)
}

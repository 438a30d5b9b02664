package api

import (
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"assistant-backend/internal/chat"
	"assistant-backend/internal/database"
	"assistant-backend/internal/storage"

	"github.com/go-chi/chi/v5"
)

const uploadFormField = "file"

type MediaService struct {
	store   *chat.Store
	objects storage.ObjectStore
}

func NewMediaService(store *chat.Store, objects storage.ObjectStore) *MediaService {
	return &MediaService{store: store, objects: objects}
}

func (s *MediaService) AddRoutes(r chi.Router) {
	r.Post("/upload", RestHandler(s.Upload))
}

// AddPublicRoutes serves locally stored objects. Object urls are embedded in
// messages and image tags, so they are not behind RequireUser.
func (s *MediaService) AddPublicRoutes(r chi.Router) {
	local, ok := s.objects.(*storage.LocalObjectStore)
	if !ok {
		return
	}
	r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(local.BaseDir()))))
}

func (s *MediaService) Upload(r *http.Request) (any, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, storage.MaxUploadBytes+1024*1024)
	if err := r.ParseMultipartForm(storage.MaxUploadBytes); err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "unable to parse upload: %v", err)
	}

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "missing %q form file", uploadFormField)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "unable to read upload: %v", err)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	if err := storage.ValidateUpload(contentType, int64(len(data))); err != nil {
		return nil, domainError(err)
	}

	key := storage.UploadKey(header.Filename)
	obj, err := s.objects.PutObject(r.Context(), key, contentType, data)
	if err != nil {
		slog.Error("error storing upload", "key", key, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "unable to store upload")
	}

	attachment := database.MediaAttachment{
		OriginalName:    filepath.Base(header.Filename),
		MimeType:        contentType,
		MediaType:       storage.MediaTypeFor(contentType),
		URL:             obj.URL,
		StorageProvider: s.objects.Provider(),
		StorageKey:      obj.Key,
		FileSize:        obj.Size,
		UserID:          sql.NullString{String: UserID(r), Valid: UserID(r) != ""},
	}
	if err := s.store.CreateAttachment(r.Context(), &attachment); err != nil {
		if delErr := s.objects.DeleteObject(r.Context(), key); delErr != nil {
			slog.Warn("error removing orphaned upload", "key", key, "error", delErr)
		}
		return nil, domainError(err)
	}

	slog.Info("stored upload", "attachment_id", attachment.ID, "media_type", attachment.MediaType, "size", attachment.FileSize)
	return convertAttachment(attachment), nil
}

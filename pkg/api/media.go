package api

import "github.com/google/uuid"

type MediaAttachment struct {
	ID           uuid.UUID `json:"id"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	MediaType    string    `json:"media_type"`
	URL          string    `json:"url"`
	FileSize     int64     `json:"file_size"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

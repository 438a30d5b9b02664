package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const DefaultChatTitle = "New Chat"

type Chat struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID string    `gorm:"not null;index"`
	Slug   string    `gorm:"not null;uniqueIndex"`
	Title  string    `gorm:"not null"`

	CreationTime time.Time `gorm:"not null"`
	UpdateTime   time.Time `gorm:"not null;index"`

	Messages []Message `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE"`
}

const (
	RoleUser      string = "user"
	RoleAssistant string = "assistant"
	RoleSystem    string = "system"
	RoleTool      string = "tool"
)

type EditRecord struct {
	Content  string    `json:"content"`
	EditedAt time.Time `json:"edited_at"`
}

type Message struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChatID uuid.UUID `gorm:"type:uuid;not null;index"`
	Role   string    `gorm:"size:20;not null"`

	Content       string
	AttachmentIDs datatypes.JSONSlice[uuid.UUID]

	IsEdited        bool `gorm:"default:false"`
	OriginalContent sql.NullString
	EditHistory     datatypes.JSONSlice[EditRecord]

	Model   sql.NullString
	Version int `gorm:"not null;default:1"`

	CreationTime time.Time `gorm:"not null;index"`
}

const (
	MediaImage    string = "image"
	MediaPDF      string = "pdf"
	MediaDocument string = "document"
	MediaVideo    string = "video"
	MediaAudio    string = "audio"
)

type MediaAttachment struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	OriginalName    string
	MimeType        string `gorm:"not null"`
	MediaType       string `gorm:"size:20;not null"`
	URL             string `gorm:"not null"`
	StorageProvider string `gorm:"size:20;not null"`
	StorageKey      string `gorm:"not null"`
	FileSize        int64
	UserID          sql.NullString `gorm:"index"`
	CreationTime    time.Time
}

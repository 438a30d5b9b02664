package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Chat struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID       string    `gorm:"not null;index"`
	Slug         string    `gorm:"not null;uniqueIndex"`
	Title        string    `gorm:"not null"`
	CreationTime time.Time `gorm:"not null"`
	UpdateTime   time.Time `gorm:"not null;index"`

	Messages []Message `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE"`
}

type EditRecord struct {
	Content  string    `json:"content"`
	EditedAt time.Time `json:"edited_at"`
}

type Message struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	ChatID          uuid.UUID `gorm:"type:uuid;not null;index"`
	Role            string    `gorm:"size:20;not null"`
	Content         string
	AttachmentIDs   datatypes.JSONSlice[uuid.UUID]
	IsEdited        bool `gorm:"default:false"`
	OriginalContent sql.NullString
	EditHistory     datatypes.JSONSlice[EditRecord]
	Model           sql.NullString
	CreationTime    time.Time `gorm:"not null;index"`
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&Chat{}, &Message{}); err != nil {
		return fmt.Errorf("error creating chat tables: %w", err)
	}
	return nil
}

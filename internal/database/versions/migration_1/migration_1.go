package migration_1

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Message struct {
	Version int `gorm:"not null;default:1"`
}

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

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&Message{}, "version"); err != nil {
		return fmt.Errorf("error adding Version column: %w", err)
	}

	if err := db.Model(&Message{}).
		Where("version IS NULL").
		Update("version", 1).Error; err != nil {
		return fmt.Errorf("error setting default value for Version: %w", err)
	}

	if err := db.AutoMigrate(&MediaAttachment{}); err != nil {
		return fmt.Errorf("error creating media_attachments table: %w", err)
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropTable(&MediaAttachment{}); err != nil {
		return fmt.Errorf("error dropping media_attachments table: %w", err)
	}

	if err := db.Migrator().DropColumn(&Message{}, "Version"); err != nil {
		return fmt.Errorf("error dropping Version column: %w", err)
	}

	return nil
}

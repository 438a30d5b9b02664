package database

import (
	"assistant-backend/internal/database/versions/migration_0"
	"assistant-backend/internal/database/versions/migration_1"
	"log"
	"log/slog"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func GetMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	migrator := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID:      "0",
			Migrate: migration_0.Migration,
		},
		{
			ID:       "1",
			Migrate:  migration_1.Migration,
			Rollback: migration_1.Rollback,
		},
	})

	migrator.InitSchema(func(txn *gorm.DB) error {
		// This is run by the migrator if no previous migration is detected. It
		// allows it to bypass running all the migrations sequentially and just create
		// the latest database state.

		log.Println("clean database detected, running full schema initialization")

		return txn.AutoMigrate(&Chat{}, &Message{}, &MediaAttachment{})
	})

	return migrator
}

// EnableForeignKeys turns on foreign key enforcement for sqlite connections,
// which is off by default and needed for the chat -> message cascade.
func EnableForeignKeys(db *gorm.DB) error {
	dbType := db.Dialector.Name()
	if dbType == "sqlite" || dbType == "sqlite3" {
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			slog.Error("error enabling foreign keys for SQLite", "error", err)
			return err
		}
	}
	return nil
}

package storage

import (
	"os"
	"path/filepath"
	"strings"

	"authguard-go/internal/platform/errors"
	"authguard-go/internal/platform/storage/migrations"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open initializes the SQLite journal database at the given path and
// brings its schema up to date. Paths using the sqlite URI form
// ("file:...") are passed through untouched.
func Open(path string) (*gorm.DB, error) {
	if !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, errors.Wrap(errors.KindStorage, "journal.mkdir", "failed to create journal directory", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "journal.open", "failed to open journal database", err)
	}

	// AutoMigrate covers schema drift, migrations record the history.
	if err := db.AutoMigrate(&SecurityEventRecord{}); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "journal.migrate", "failed to migrate journal schema", err)
	}

	migrationManager := NewMigrationManager(db)
	migrationManager.AddMigration(&migrations.Migration001SecurityEvents{})
	if err := migrationManager.RunMigrations(); err != nil {
		return nil, err
	}

	return db, nil
}

// Close releases the underlying sqlite connection.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(errors.KindStorage, "journal.close", "failed to access underlying connection", err)
	}
	if err := sqlDB.Close(); err != nil {
		return errors.Wrap(errors.KindStorage, "journal.close", "failed to close journal database", err)
	}
	return nil
}

package migrations

import (
	"gorm.io/gorm"
)

// Migration001SecurityEvents creates the security event journal table.
type Migration001SecurityEvents struct{}

func (m *Migration001SecurityEvents) Version() string {
	return "001_security_events"
}

func (m *Migration001SecurityEvents) Description() string {
	return "Create security event journal table and indexes"
}

func (m *Migration001SecurityEvents) Up(db *gorm.DB) error {
	// Raw SQL keeps the journal schema explicit instead of relying on
	// AutoMigrate inside a versioned migration.
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS security_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id VARCHAR(64) NOT NULL UNIQUE,
			event_type VARCHAR(64) NOT NULL,
			severity VARCHAR(16) NOT NULL,
			details JSON,
			created_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_security_events_event_type ON security_events(event_type)`).Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_security_events_severity ON security_events(severity)`).Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_security_events_created_at ON security_events(created_at)`).Error; err != nil {
		return err
	}

	return nil
}

func (m *Migration001SecurityEvents) Down(db *gorm.DB) error {
	if err := db.Exec(`DROP TABLE IF EXISTS security_events`).Error; err != nil {
		return err
	}
	return nil
}

package storage

import (
	"time"

	"gorm.io/datatypes"
)

// SecurityEventRecord is the persisted form of a tracked security event.
type SecurityEventRecord struct {
	ID        uint           `gorm:"primaryKey"`
	EventID   string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"event_id"`
	EventType string         `gorm:"index;not null"                        json:"event_type"`
	Severity  string         `gorm:"index;not null"                        json:"severity"`
	Details   datatypes.JSON `                                             json:"details,omitempty"`
	CreatedAt time.Time      `gorm:"index"                                 json:"created_at"`
}

// TableName overrides the default table name.
func (SecurityEventRecord) TableName() string {
	return "security_events"
}

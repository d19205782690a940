package storage

import (
	"context"
	"time"

	"authguard-go/internal/platform/errors"
	"github.com/bytedance/sonic"
	"gorm.io/gorm"
)

// JournalEntry is the domain-facing view of one journaled security event.
type JournalEntry struct {
	EventID   string                 `json:"event_id"`
	EventType string                 `json:"event_type"`
	Severity  string                 `json:"severity"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// EventJournal persists tracked security events for audit queries.
type EventJournal struct {
	db *gorm.DB
}

func NewEventJournal(db *gorm.DB) *EventJournal {
	return &EventJournal{
		db: db,
	}
}

// Append stores one event. Duplicate event IDs are rejected by the
// unique index.
func (j *EventJournal) Append(ctx context.Context, entry JournalEntry) error {
	var detailBytes []byte
	if entry.Details != nil {
		var err error
		detailBytes, err = sonic.Marshal(entry.Details)
		if err != nil {
			return errors.Wrap(errors.KindStorage, "journal.append.marshal", "failed to marshal event details", err)
		}
	}

	record := &SecurityEventRecord{
		EventID:   entry.EventID,
		EventType: entry.EventType,
		Severity:  entry.Severity,
		Details:   detailBytes,
		CreatedAt: entry.CreatedAt,
	}

	if err := j.db.WithContext(ctx).Create(record).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "journal.append.create", "failed to store event", err)
	}

	return nil
}

// EventsByType returns events of one type, most recent first. A limit
// of zero or less returns everything.
func (j *EventJournal) EventsByType(ctx context.Context, eventType string, limit int) ([]JournalEntry, error) {
	var records []SecurityEventRecord
	query := j.db.WithContext(ctx).
		Where("event_type = ?", eventType).
		Order("created_at DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "journal.find.type", "failed to find events by type", err)
	}

	return j.convertRecords(records)
}

// EventsInRange returns events between start and end, oldest first.
func (j *EventJournal) EventsInRange(ctx context.Context, start, end time.Time) ([]JournalEntry, error) {
	var records []SecurityEventRecord
	if err := j.db.WithContext(ctx).
		Where("created_at BETWEEN ? AND ?", start, end).
		Order("created_at ASC").
		Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "journal.find.range", "failed to find events by time range", err)
	}

	return j.convertRecords(records)
}

// EventStats returns journaled event counts grouped by type.
func (j *EventJournal) EventStats(ctx context.Context) (map[string]int64, error) {
	var stats []struct {
		EventType string
		Count     int64
	}

	if err := j.db.WithContext(ctx).
		Model(&SecurityEventRecord{}).
		Select("event_type, count(*) as count").
		Group("event_type").
		Scan(&stats).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "journal.stats", "failed to get event stats", err)
	}

	result := make(map[string]int64)
	for _, stat := range stats {
		result[stat.EventType] = stat.Count
	}

	return result, nil
}

// DeleteOlderThan removes events created before the cutoff and reports
// how many rows were dropped.
func (j *EventJournal) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := j.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&SecurityEventRecord{})
	if result.Error != nil {
		return 0, errors.Wrap(errors.KindStorage, "journal.delete.old", "failed to delete old events", result.Error)
	}

	return result.RowsAffected, nil
}

func (j *EventJournal) convertRecords(records []SecurityEventRecord) ([]JournalEntry, error) {
	entries := make([]JournalEntry, len(records))

	for i, record := range records {
		var details map[string]interface{}
		if len(record.Details) > 0 {
			if err := sonic.Unmarshal(record.Details, &details); err != nil {
				return nil, errors.Wrap(errors.KindStorage, "journal.convert.unmarshal", "failed to unmarshal event details", err)
			}
		}

		entries[i] = JournalEntry{
			EventID:   record.EventID,
			EventType: record.EventType,
			Severity:  record.Severity,
			Details:   details,
			CreatedAt: record.CreatedAt,
		}
	}

	return entries, nil
}

package lockout

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// Kind selects the lockout namespace an identifier lives in. Email and
// IP lockouts for the same literal string are independent.
type Kind string

const (
	KindEmail Kind = "email"
	KindIP    Kind = "ip"
)

const (
	attemptsKeyPrefix = "lockout:failed_attempts:"
	manualKeyPrefix   = "lockout:manual:"
)

func attemptsKey(kind Kind, identifier string) string {
	return fmt.Sprintf("%s%s:%s", attemptsKeyPrefix, kind, identifier)
}

func manualKey(kind Kind, identifier string) string {
	return fmt.Sprintf("%s%s:%s", manualKeyPrefix, kind, identifier)
}

// failedAttemptRecord is the stored wire form of one identifier's
// failure history. All instants are epoch milliseconds.
type failedAttemptRecord struct {
	Identifier  string  `json:"identifier"`
	Type        string  `json:"type"`
	Attempts    int     `json:"attempts"`
	Timestamps  []int64 `json:"timestamps"`
	LockedUntil int64   `json:"lockedUntil,omitempty"`
	UpdatedAt   int64   `json:"updatedAt"`
}

// prune drops timestamps that fell out of the rolling window and keeps
// the attempt count in sync with what remains.
func (r *failedAttemptRecord) prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window).UnixMilli()
	kept := r.Timestamps[:0]
	for _, ts := range r.Timestamps {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}
	r.Timestamps = kept
	r.Attempts = len(kept)
}

// lockedAt reports whether the stored lock is still in force. Expired
// locks are never cleaned up proactively, they just stop counting here.
func (r *failedAttemptRecord) lockedAt(now time.Time) bool {
	return r.LockedUntil > 0 && r.LockedUntil > now.UnixMilli()
}

func (r *failedAttemptRecord) encode() (string, error) {
	data, err := sonic.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeAttemptRecord(raw string) (*failedAttemptRecord, error) {
	var rec failedAttemptRecord
	if err := sonic.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// manualLockRecord is the stored wire form of an operator-issued lock.
// Expiry rides on the backend TTL, so readers only test existence.
type manualLockRecord struct {
	Identifier  string `json:"identifier"`
	Type        string `json:"type"`
	LockedUntil int64  `json:"lockedUntil"`
}

func (r *manualLockRecord) encode() (string, error) {
	data, err := sonic.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

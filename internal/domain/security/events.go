package security

import "time"

// Event type wire values. Upstream services emit these alongside their
// own results; the monitor classifies and escalates them.
const (
	EventFailedLogin         = "FAILED_LOGIN"
	EventBruteForceDetected  = "BRUTE_FORCE_DETECTED"
	EventRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	EventUnusualActivity     = "UNUSUAL_ACTIVITY"
	EventSQLInjectionAttempt = "SQL_INJECTION_ATTEMPT"
	EventXSSAttempt          = "XSS_ATTEMPT"
	EventSuspiciousIP        = "SUSPICIOUS_IP"
	EventTokenRevoked        = "TOKEN_REVOKED"
	EventLockoutTriggered    = "LOCKOUT_TRIGGERED"
	EventManualLock          = "MANUAL_LOCK"
)

// Severity levels assigned by the monitor.
const (
	SeverityCritical = "CRITICAL"
	SeverityWarning  = "WARNING"
	SeverityInfo     = "INFO"
)

// Severity classifies an event type. Active attack signatures are
// critical, repeated-failure signals warn, everything else informs.
func Severity(eventType string) string {
	switch eventType {
	case EventBruteForceDetected, EventSQLInjectionAttempt, EventXSSAttempt:
		return SeverityCritical
	case EventFailedLogin, EventRateLimitExceeded:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Event is one tracked security occurrence.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Severity  string                 `json:"severity"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Alert is an escalated event delivered to subscribers.
type Alert struct {
	Type        string                 `json:"type"`
	Severity    string                 `json:"severity"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

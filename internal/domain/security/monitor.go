package security

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"authguard-go/internal/platform/errors"
	"authguard-go/internal/platform/logging"
	"authguard-go/internal/platform/observability"
	"authguard-go/internal/platform/storage"
)

const (
	defaultBruteForceThreshold = 5
	defaultBruteForceWindow    = 15 * time.Minute
	defaultRateLimitThreshold  = 100
	defaultAlertCooldown       = 5 * time.Minute
	defaultAsyncWorkers        = 4
)

// Journal receives every tracked event for durable audit queries.
// Appends are best-effort; a journal failure never blocks tracking.
type Journal interface {
	Append(ctx context.Context, entry storage.JournalEntry) error
}

// Options encapsulates the dependencies required to construct a Monitor.
type Options struct {
	Logger              *logging.Logger
	Journal             Journal
	BruteForceThreshold int
	BruteForceWindow    time.Duration
	RateLimitThreshold  int
	AlertCooldown       time.Duration
	AsyncWorkers        int
}

// Monitor ingests typed security events, classifies them, escalates
// repeated failures into alerts and fans alerts out to subscribers.
// All trackers are in-process; restarting the service forgets them.
type Monitor struct {
	logger  *logging.Logger
	journal Journal
	bus     *alertBus

	bruteForceThreshold int
	bruteForceWindow    time.Duration
	rateLimitThreshold  int
	alertCooldown       time.Duration

	mu           sync.Mutex
	startedAt    time.Time
	totalEvents  int64
	eventsByType map[string]int64
	alertsSent   int64
	failedLogins map[string]*failureWindow
	rateLimited  map[string]int
	lastAlert    map[string]time.Time
}

// failureWindow tracks failed logins from one address inside the
// rolling brute-force window.
type failureWindow struct {
	count        int
	firstAttempt time.Time
}

// Metrics is a point-in-time copy of the monitor's counters.
type Metrics struct {
	TotalEvents  int64
	EventsByType map[string]int64
	AlertsSent   int64
	Uptime       time.Duration
}

// Health reports the monitor's tracker sizes and process figures.
type Health struct {
	Status            string
	Uptime            time.Duration
	TrackedIPs        int
	TrackedEndpoints  int
	CooldownEntries   int
	ProcessMemoryMB   float64
	HostMemoryPercent float64
}

// NewMonitor wires a Monitor using the supplied options.
func NewMonitor(opts Options) (*Monitor, error) {
	if opts.Logger == nil {
		return nil, errors.New(errors.KindDomain, "security.new", "security monitor requires a logger")
	}

	bruteForceThreshold := opts.BruteForceThreshold
	if bruteForceThreshold <= 0 {
		bruteForceThreshold = defaultBruteForceThreshold
	}
	bruteForceWindow := opts.BruteForceWindow
	if bruteForceWindow <= 0 {
		bruteForceWindow = defaultBruteForceWindow
	}
	rateLimitThreshold := opts.RateLimitThreshold
	if rateLimitThreshold <= 0 {
		rateLimitThreshold = defaultRateLimitThreshold
	}
	alertCooldown := opts.AlertCooldown
	if alertCooldown <= 0 {
		alertCooldown = defaultAlertCooldown
	}

	return &Monitor{
		logger:              opts.Logger,
		journal:             opts.Journal,
		bus:                 newAlertBus(opts.AsyncWorkers, opts.Logger),
		bruteForceThreshold: bruteForceThreshold,
		bruteForceWindow:    bruteForceWindow,
		rateLimitThreshold:  rateLimitThreshold,
		alertCooldown:       alertCooldown,
		startedAt:           time.Now(),
		eventsByType:        make(map[string]int64),
		failedLogins:        make(map[string]*failureWindow),
		rateLimited:         make(map[string]int),
		lastAlert:           make(map[string]time.Time),
	}, nil
}

// TrackEvent ingests one security event: count it, write the audit
// record, journal it, dispatch it to the specialized handlers and
// escalate critical types to an alert straight away. It never fails
// back to the caller.
func (m *Monitor) TrackEvent(ctx context.Context, eventType string, metadata map[string]interface{}) {
	if eventType == "" {
		return
	}
	ctx, spanEnd := observability.StartSpan(ctx, "security.monitor", "track_event")

	evt := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Severity:  Severity(eventType),
		Metadata:  metadata,
		Timestamp: time.Now(),
	}

	m.mu.Lock()
	m.totalEvents++
	m.eventsByType[eventType]++
	m.mu.Unlock()

	audit := make(map[string]interface{}, len(metadata)+2)
	for k, v := range metadata {
		audit[k] = v
	}
	audit["event_id"] = evt.ID
	audit["severity"] = evt.Severity
	m.logger.SecurityEvent(eventType, audit)

	if m.journal != nil {
		err := m.journal.Append(ctx, storage.JournalEntry{
			EventID:   evt.ID,
			EventType: evt.Type,
			Severity:  evt.Severity,
			Details:   metadata,
			CreatedAt: evt.Timestamp,
		})
		if err != nil {
			m.logger.WarnTag(logging.TagSecurity, "failed to journal %s event: %v", eventType, err)
		}
	}

	switch eventType {
	case EventFailedLogin:
		m.handleFailedLogin(ctx, evt)
	case EventRateLimitExceeded:
		m.handleRateLimitExceeded(ctx, evt)
	}

	if evt.Severity == SeverityCritical {
		m.sendAlert(ctx, evt)
	}
	spanEnd(nil)
}

// handleFailedLogin accumulates failures per address. The window
// resets once the first attempt in it ages out; crossing the threshold
// escalates to a critical brute-force alert on every further failure,
// with the alert cooldown keeping the noise down.
func (m *Monitor) handleFailedLogin(ctx context.Context, evt Event) {
	ip, _ := evt.Metadata["ip"].(string)
	if ip == "" {
		return
	}

	m.mu.Lock()
	w := m.failedLogins[ip]
	if w == nil || evt.Timestamp.Sub(w.firstAttempt) > m.bruteForceWindow {
		w = &failureWindow{count: 1, firstAttempt: evt.Timestamp}
		m.failedLogins[ip] = w
	} else {
		w.count++
	}
	count := w.count
	m.mu.Unlock()

	if count < m.bruteForceThreshold {
		return
	}

	escalated := Event{
		ID:        uuid.NewString(),
		Type:      EventBruteForceDetected,
		Severity:  SeverityCritical,
		Metadata:  map[string]interface{}{"ip": ip, "attempts": count},
		Timestamp: evt.Timestamp,
	}
	if username, ok := evt.Metadata["username"].(string); ok && username != "" {
		escalated.Metadata["username"] = username
	}
	m.sendAlert(ctx, escalated)
}

// handleRateLimitExceeded counts rejections per address and endpoint
// pair and escalates sustained volume to an unusual-activity alert.
func (m *Monitor) handleRateLimitExceeded(ctx context.Context, evt Event) {
	ip, _ := evt.Metadata["ip"].(string)
	if ip == "" {
		return
	}
	endpoint, _ := evt.Metadata["endpoint"].(string)
	key := ip + ":" + endpoint

	m.mu.Lock()
	m.rateLimited[key]++
	count := m.rateLimited[key]
	m.mu.Unlock()

	if count < m.rateLimitThreshold {
		return
	}

	m.sendAlert(ctx, Event{
		ID:       uuid.NewString(),
		Type:     EventUnusualActivity,
		Severity: SeverityWarning,
		Metadata: map[string]interface{}{
			"ip":       ip,
			"endpoint": endpoint,
			"count":    count,
		},
		Timestamp: evt.Timestamp,
	})
}

// sendAlert publishes the event as an alert unless an alert with the
// same type and primary identifier went out within the cooldown.
// Suppressed alerts count nothing and emit nothing.
func (m *Monitor) sendAlert(ctx context.Context, evt Event) {
	identifier := primaryIdentifier(evt.Metadata)
	key := evt.Type + ":" + identifier
	now := time.Now()

	m.mu.Lock()
	if last, ok := m.lastAlert[key]; ok && now.Sub(last) < m.alertCooldown {
		m.mu.Unlock()
		m.logger.DebugTag(logging.TagSecurity, "suppressing repeat %s alert for %s", evt.Type, identifier)
		return
	}
	m.lastAlert[key] = now
	m.alertsSent++
	m.mu.Unlock()

	alert := Alert{
		Type:        evt.Type,
		Severity:    evt.Severity,
		Description: AlertDescription(evt),
		Metadata:    evt.Metadata,
		Timestamp:   now,
	}

	if evt.Severity == SeverityCritical {
		m.logger.ErrorTag(logging.TagSecurity, "security alert %s: %s", alert.Type, alert.Description)
	} else {
		m.logger.WarnTag(logging.TagSecurity, "security alert %s: %s", alert.Type, alert.Description)
	}
	observability.RecordMetric(ctx, "security.alert", 1, map[string]string{
		"type":     alert.Type,
		"severity": alert.Severity,
	})
	m.bus.publish(alert)
}

// Subscribe registers a synchronous alert consumer, invoked inline on
// the goroutine that tracked the triggering event.
func (m *Monitor) Subscribe(fn func(Alert)) error {
	return m.bus.subscribe(fn)
}

// SubscribeAsync registers a consumer served by the worker pool.
func (m *Monitor) SubscribeAsync(fn func(Alert)) error {
	return m.bus.subscribeAsync(fn)
}

// Unsubscribe removes a previously registered consumer. The same
// function value must be passed.
func (m *Monitor) Unsubscribe(fn func(Alert)) error {
	return m.bus.unsubscribe(fn)
}

// Metrics returns a copy of the monitor's counters.
func (m *Monitor) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	byType := make(map[string]int64, len(m.eventsByType))
	for k, v := range m.eventsByType {
		byType[k] = v
	}
	return Metrics{
		TotalEvents:  m.totalEvents,
		EventsByType: byType,
		AlertsSent:   m.alertsSent,
		Uptime:       time.Since(m.startedAt),
	}
}

// HealthCheck reports tracker sizes plus process and host memory
// figures.
func (m *Monitor) HealthCheck() Health {
	m.mu.Lock()
	health := Health{
		Status:           "ok",
		Uptime:           time.Since(m.startedAt),
		TrackedIPs:       len(m.failedLogins),
		TrackedEndpoints: len(m.rateLimited),
		CooldownEntries:  len(m.lastAlert),
	}
	m.mu.Unlock()

	if vm, err := mem.VirtualMemory(); err == nil {
		health.HostMemoryPercent = vm.UsedPercent
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil {
			health.ProcessMemoryMB = float64(info.RSS) / 1024 / 1024
		}
	}
	return health
}

// Reset clears every counter and tracker. Intended for tests and
// administrative tooling.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalEvents = 0
	m.eventsByType = make(map[string]int64)
	m.alertsSent = 0
	m.failedLogins = make(map[string]*failureWindow)
	m.rateLimited = make(map[string]int)
	m.lastAlert = make(map[string]time.Time)
}

// Close stops the async delivery workers. Queued alerts that have not
// been picked up yet are dropped.
func (m *Monitor) Close() {
	m.bus.close()
}

// AlertDescription renders the human-readable summary for an event.
func AlertDescription(evt Event) string {
	switch evt.Type {
	case EventBruteForceDetected:
		return fmt.Sprintf("brute force detected from %s (%s failed attempts)",
			metaValue(evt.Metadata, "ip"), metaValue(evt.Metadata, "attempts"))
	case EventUnusualActivity:
		return fmt.Sprintf("unusual request volume from %s on %s",
			metaValue(evt.Metadata, "ip"), metaValue(evt.Metadata, "endpoint"))
	case EventSQLInjectionAttempt:
		return fmt.Sprintf("SQL injection attempt from %s", metaValue(evt.Metadata, "ip"))
	case EventXSSAttempt:
		return fmt.Sprintf("cross-site scripting attempt from %s", metaValue(evt.Metadata, "ip"))
	case EventSuspiciousIP:
		return fmt.Sprintf("suspicious address %s for user %s",
			metaValue(evt.Metadata, "ip"), metaValue(evt.Metadata, "user_id"))
	case EventFailedLogin:
		return fmt.Sprintf("failed login from %s", metaValue(evt.Metadata, "ip"))
	case EventLockoutTriggered:
		return fmt.Sprintf("lockout triggered for %s", metaValue(evt.Metadata, "identifier"))
	case EventTokenRevoked:
		return fmt.Sprintf("tokens revoked for user %s", metaValue(evt.Metadata, "user_id"))
	default:
		return fmt.Sprintf("security event %s", evt.Type)
	}
}

// primaryIdentifier picks the metadata field alerts are deduplicated
// on, preferring the network address over account identifiers.
func primaryIdentifier(metadata map[string]interface{}) string {
	for _, key := range []string{"ip", "user_id", "identifier", "username"} {
		if v, ok := metadata[key].(string); ok && v != "" {
			return v
		}
	}
	return "unknown"
}

func metaValue(metadata map[string]interface{}, key string) string {
	if v, ok := metadata[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return "unknown"
}

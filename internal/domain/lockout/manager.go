package lockout

import (
	"context"
	"time"

	"authguard-go/internal/domain/security"
	"authguard-go/internal/platform/cache"
	"authguard-go/internal/platform/errors"
	"authguard-go/internal/platform/logging"
)

const (
	defaultMaxAttempts = 5
	defaultWindow      = 30 * time.Minute
	defaultLockout     = 15 * time.Minute
	defaultManualLock  = time.Hour
)

var defaultDelaySchedule = []time.Duration{
	0,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// EventSink receives security events raised by lockout activity.
type EventSink interface {
	TrackEvent(ctx context.Context, eventType string, metadata map[string]interface{})
}

// Options encapsulates the dependencies required to construct a Manager.
type Options struct {
	Store         cache.Store
	Logger        *logging.Logger
	Events        EventSink
	MaxAttempts   int
	Window        time.Duration
	LockoutFor    time.Duration
	ManualLockFor time.Duration
	DelaySchedule []time.Duration
}

// Manager tracks failed login attempts per identifier and applies
// automatic and manual lockouts on top of the shared cache store.
type Manager struct {
	store         cache.Store
	logger        *logging.Logger
	events        EventSink
	maxAttempts   int
	window        time.Duration
	lockoutFor    time.Duration
	manualLockFor time.Duration
	delays        []time.Duration
}

// Result describes the outcome of one recorded failure.
type Result struct {
	FailedAttempts    int
	MaxAttempts       int
	RemainingAttempts int
	Locked            bool
	LockedUntil       *time.Time
	LockoutRemaining  time.Duration
}

// Status is the answer to a lockout check.
type Status struct {
	Locked            bool
	FailedAttempts    int
	RemainingAttempts int
	LockedUntil       *time.Time
	LockoutRemaining  time.Duration
}

// NewManager wires a Manager using the supplied options.
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New(errors.KindDomain, "lockout.new", "lockout manager requires a store")
	}
	if opts.Logger == nil {
		return nil, errors.New(errors.KindDomain, "lockout.new", "lockout manager requires a logger")
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	window := opts.Window
	if window <= 0 {
		window = defaultWindow
	}
	lockoutFor := opts.LockoutFor
	if lockoutFor <= 0 {
		lockoutFor = defaultLockout
	}
	manualLockFor := opts.ManualLockFor
	if manualLockFor <= 0 {
		manualLockFor = defaultManualLock
	}
	delays := opts.DelaySchedule
	if len(delays) == 0 {
		delays = defaultDelaySchedule
	}

	return &Manager{
		store:         opts.Store,
		logger:        opts.Logger,
		events:        opts.Events,
		maxAttempts:   maxAttempts,
		window:        window,
		lockoutFor:    lockoutFor,
		manualLockFor: manualLockFor,
		delays:        delays,
	}, nil
}

// RecordFailure counts one failed attempt for the identifier. Attempts
// outside the rolling window are pruned first; reaching the maximum
// sets the lockout deadline. Storage failures are reported but never
// block the caller.
func (m *Manager) RecordFailure(ctx context.Context, identifier string, kind Kind) (Result, error) {
	if identifier == "" {
		return m.openResult(), errors.New(errors.KindDomain, "lockout.record", "identifier must not be empty")
	}
	kind = normalizeKind(kind)

	now := time.Now()
	var rec failedAttemptRecord
	var becameLocked bool

	_, err := m.store.Update(ctx, attemptsKey(kind, identifier), m.recordTTL(), func(current string, exists bool) (string, error) {
		rec = failedAttemptRecord{Identifier: identifier, Type: string(kind)}
		becameLocked = false
		if exists {
			decoded, decErr := decodeAttemptRecord(current)
			if decErr != nil {
				m.logger.WarnTag(logging.TagLockout, "discarding unreadable attempt record for %s:%s: %v", kind, identifier, decErr)
			} else {
				rec = *decoded
			}
		}

		wasLocked := rec.lockedAt(now)
		rec.prune(now, m.window)
		rec.Timestamps = append(rec.Timestamps, now.UnixMilli())
		rec.Attempts = len(rec.Timestamps)
		if rec.Attempts >= m.maxAttempts {
			rec.LockedUntil = now.Add(m.lockoutFor).UnixMilli()
			becameLocked = !wasLocked
		}
		rec.UpdatedAt = now.UnixMilli()
		return rec.encode()
	})
	if err != nil {
		m.logger.ErrorTag(logging.TagLockout, "failed to record attempt for %s:%s: %v", kind, identifier, err)
		return m.openResult(), err
	}

	result := Result{
		FailedAttempts:    rec.Attempts,
		MaxAttempts:       m.maxAttempts,
		RemainingAttempts: remaining(m.maxAttempts, rec.Attempts),
	}
	if rec.lockedAt(now) {
		until := time.UnixMilli(rec.LockedUntil)
		result.Locked = true
		result.LockedUntil = &until
		result.LockoutRemaining = until.Sub(now)
	}

	if becameLocked {
		m.logger.WarnTag(logging.TagLockout, "%s %q locked out after %d failed attempts", kind, identifier, rec.Attempts)
		m.emit(ctx, security.EventLockoutTriggered, map[string]interface{}{
			"identifier":      identifier,
			"identifier_type": string(kind),
			"failed_attempts": rec.Attempts,
			"locked_until":    rec.LockedUntil,
		})
	} else {
		m.logger.DebugTag(logging.TagLockout, "recorded failed attempt for %s:%s (%d/%d)", kind, identifier, rec.Attempts, m.maxAttempts)
	}

	return result, nil
}

// Check reports the current lockout state. Expired locks read as
// unlocked without ever being cleaned up. Storage failures read as
// unlocked alongside the error.
func (m *Manager) Check(ctx context.Context, identifier string, kind Kind) (Status, error) {
	kind = normalizeKind(kind)

	raw, ok, err := m.store.Get(ctx, attemptsKey(kind, identifier))
	if err != nil {
		m.logger.WarnTag(logging.TagLockout, "lockout check unavailable for %s:%s: %v", kind, identifier, err)
		return Status{RemainingAttempts: m.maxAttempts}, err
	}
	if !ok {
		return Status{RemainingAttempts: m.maxAttempts}, nil
	}

	rec, decErr := decodeAttemptRecord(raw)
	if decErr != nil {
		m.logger.WarnTag(logging.TagLockout, "unreadable attempt record for %s:%s: %v", kind, identifier, decErr)
		return Status{RemainingAttempts: m.maxAttempts},
			errors.Wrap(errors.KindStorage, "lockout.check", "failed to decode attempt record", decErr)
	}

	now := time.Now()
	rec.prune(now, m.window)

	status := Status{
		FailedAttempts:    rec.Attempts,
		RemainingAttempts: remaining(m.maxAttempts, rec.Attempts),
	}
	if rec.lockedAt(now) {
		until := time.UnixMilli(rec.LockedUntil)
		status.Locked = true
		status.LockedUntil = &until
		status.LockoutRemaining = until.Sub(now)
	}
	return status, nil
}

// Delay returns the artificial response delay for the given attempt
// number. Pure lookup, clamped at both table edges.
func (m *Manager) Delay(attempt int) time.Duration {
	if attempt < 0 || len(m.delays) == 0 {
		return 0
	}
	if attempt >= len(m.delays) {
		return m.delays[len(m.delays)-1]
	}
	return m.delays[attempt]
}

// Clear removes the failed-attempt record for the identifier.
func (m *Manager) Clear(ctx context.Context, identifier string, kind Kind) error {
	kind = normalizeKind(kind)

	if err := m.store.Delete(ctx, attemptsKey(kind, identifier)); err != nil {
		m.logger.ErrorTag(logging.TagLockout, "failed to clear attempts for %s:%s: %v", kind, identifier, err)
		return err
	}
	m.logger.DebugTag(logging.TagLockout, "cleared failed attempts for %s:%s", kind, identifier)
	return nil
}

// ManualLock places an operator lock on the identifier, independent of
// the automatic failure tracking. A non-positive duration uses the
// configured default.
func (m *Manager) ManualLock(ctx context.Context, identifier string, kind Kind, d time.Duration) error {
	if identifier == "" {
		return errors.New(errors.KindDomain, "lockout.manual_lock", "identifier must not be empty")
	}
	kind = normalizeKind(kind)
	if d <= 0 {
		d = m.manualLockFor
	}

	now := time.Now()
	rec := manualLockRecord{
		Identifier:  identifier,
		Type:        string(kind),
		LockedUntil: now.Add(d).UnixMilli(),
	}
	value, err := rec.encode()
	if err != nil {
		return errors.Wrap(errors.KindDomain, "lockout.manual_lock", "failed to encode manual lock", err)
	}

	if err := m.store.Set(ctx, manualKey(kind, identifier), value, d); err != nil {
		m.logger.ErrorTag(logging.TagLockout, "failed to apply manual lock for %s:%s: %v", kind, identifier, err)
		return err
	}

	m.logger.InfoTag(logging.TagLockout, "manual lock applied to %s:%s for %s", kind, identifier, d)
	m.emit(ctx, security.EventManualLock, map[string]interface{}{
		"identifier":      identifier,
		"identifier_type": string(kind),
		"duration_ms":     d.Milliseconds(),
	})
	return nil
}

// ManualUnlock releases an operator lock before its TTL lapses.
func (m *Manager) ManualUnlock(ctx context.Context, identifier string, kind Kind) error {
	kind = normalizeKind(kind)

	if err := m.store.Delete(ctx, manualKey(kind, identifier)); err != nil {
		m.logger.ErrorTag(logging.TagLockout, "failed to release manual lock for %s:%s: %v", kind, identifier, err)
		return err
	}
	m.logger.InfoTag(logging.TagLockout, "manual lock released for %s:%s", kind, identifier)
	return nil
}

// ManuallyLocked reports whether an operator lock is in force.
func (m *Manager) ManuallyLocked(ctx context.Context, identifier string, kind Kind) (bool, error) {
	kind = normalizeKind(kind)

	_, ok, err := m.store.Get(ctx, manualKey(kind, identifier))
	if err != nil {
		m.logger.WarnTag(logging.TagLockout, "manual lock check unavailable for %s:%s: %v", kind, identifier, err)
		return false, err
	}
	return ok, nil
}

// Blocked answers whether the identifier is held by either the
// automatic or the manual lock.
func (m *Manager) Blocked(ctx context.Context, identifier string, kind Kind) (bool, error) {
	status, err := m.Check(ctx, identifier, kind)
	if err != nil {
		return false, err
	}
	if status.Locked {
		return true, nil
	}
	return m.ManuallyLocked(ctx, identifier, kind)
}

// recordTTL sizes the stored record's expiry so it outlives both the
// rolling window and any lockout it carries.
func (m *Manager) recordTTL() time.Duration {
	if m.lockoutFor > m.window {
		return m.lockoutFor
	}
	return m.window
}

func (m *Manager) openResult() Result {
	return Result{MaxAttempts: m.maxAttempts, RemainingAttempts: m.maxAttempts}
}

func (m *Manager) emit(ctx context.Context, eventType string, metadata map[string]interface{}) {
	if m.events == nil {
		return
	}
	m.events.TrackEvent(ctx, eventType, metadata)
}

func normalizeKind(kind Kind) Kind {
	if kind == "" {
		return KindEmail
	}
	return kind
}

func remaining(maxAttempts, attempts int) int {
	if attempts >= maxAttempts {
		return 0
	}
	return maxAttempts - attempts
}

package reputation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"authguard-go/internal/domain/security"
	"authguard-go/internal/platform/cache"
	"authguard-go/internal/platform/errors"
	"authguard-go/internal/platform/logging"
)

const (
	defaultHistoryLimit      = 10
	defaultStaleAfter        = 30 * 24 * time.Hour
	defaultVolatileWindow    = 24 * time.Hour
	defaultVolatileThreshold = 3
)

// EventSink receives security events raised by reputation activity.
type EventSink interface {
	TrackEvent(ctx context.Context, eventType string, metadata map[string]interface{})
}

// Options encapsulates the dependencies required to construct a Tracker.
type Options struct {
	Store             cache.Store
	Logger            *logging.Logger
	Events            EventSink
	HistoryLimit      int
	StaleAfter        time.Duration
	VolatileWindow    time.Duration
	VolatileThreshold int
}

// Tracker keeps a bounded per-user IP history in the shared cache store
// and scores each sighting against a set of anomaly heuristics.
type Tracker struct {
	store             cache.Store
	logger            *logging.Logger
	events            EventSink
	historyLimit      int
	staleAfter        time.Duration
	volatileWindow    time.Duration
	volatileThreshold int
}

// Assessment is the verdict for one recorded sighting. Reasons carries
// every heuristic that fired, including on a user's very first address,
// while Suspicious stays false for that first sighting.
type Assessment struct {
	NewIP             bool
	Suspicious        bool
	Reasons           []string
	KnownIPs          int
	DaysSinceLastSeen int
}

// Stats summarises how many users currently have a tracked history.
type Stats struct {
	TrackedUsers int
}

// NewTracker wires a Tracker using the supplied options.
func NewTracker(opts Options) (*Tracker, error) {
	if opts.Store == nil {
		return nil, errors.New(errors.KindDomain, "reputation.new", "reputation tracker requires a store")
	}
	if opts.Logger == nil {
		return nil, errors.New(errors.KindDomain, "reputation.new", "reputation tracker requires a logger")
	}

	historyLimit := opts.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	staleAfter := opts.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	volatileWindow := opts.VolatileWindow
	if volatileWindow <= 0 {
		volatileWindow = defaultVolatileWindow
	}
	volatileThreshold := opts.VolatileThreshold
	if volatileThreshold <= 0 {
		volatileThreshold = defaultVolatileThreshold
	}

	return &Tracker{
		store:             opts.Store,
		logger:            opts.Logger,
		events:            opts.Events,
		historyLimit:      historyLimit,
		staleAfter:        staleAfter,
		volatileWindow:    volatileWindow,
		volatileThreshold: volatileThreshold,
	}, nil
}

// RecordIP notes one sighting of ip for the user and scores it. The
// heuristics run against the history as it stood before this sighting;
// the sighting itself is then merged in, evicting the entry with the
// oldest lastSeen once the history is full. Storage failures return a
// zero assessment alongside the error and never block the caller.
func (tr *Tracker) RecordIP(ctx context.Context, userID, ip string, metadata map[string]interface{}) (Assessment, error) {
	if userID == "" || ip == "" {
		return Assessment{}, errors.New(errors.KindDomain, "reputation.record", "user id and ip must not be empty")
	}

	now := time.Now()
	var assessment Assessment

	_, err := tr.store.Update(ctx, historyKey(userID), 0, func(current string, exists bool) (string, error) {
		var entries []Entry
		if exists {
			decoded, decErr := decodeHistory(current)
			if decErr != nil {
				tr.logger.WarnTag(logging.TagReputation, "discarding unreadable ip history for user %s: %v", userID, decErr)
			} else {
				entries = decoded
			}
		}

		idx := findEntry(entries, ip)
		isNew := idx < 0
		hadHistory := len(entries) > 0

		var reasons []string
		if isNew && hadHistory {
			reasons = append(reasons, "new IP address")
		}
		days := -1
		if !isNew {
			lastSeen := time.UnixMilli(entries[idx].LastSeen)
			days = int(now.Sub(lastSeen).Hours() / 24)
			if now.Sub(lastSeen) >= tr.staleAfter {
				reasons = append(reasons, fmt.Sprintf("IP not seen for %d days", days))
			}
		}
		if recent := tr.countRecent(entries, now); recent > tr.volatileThreshold {
			reasons = append(reasons, fmt.Sprintf("%d different IPs within 24 hours", recent))
		}
		if PrivateIP(ip) {
			reasons = append(reasons, "private or internal IP address")
		}

		nowMs := now.UnixMilli()
		if isNew {
			entries = append(entries, Entry{IP: ip, FirstSeen: nowMs, LastSeen: nowMs, Count: 1, Metadata: metadata})
			for len(entries) > tr.historyLimit {
				entries = evictOldest(entries)
			}
		} else {
			entries[idx].LastSeen = nowMs
			entries[idx].Count++
			if metadata != nil {
				entries[idx].Metadata = metadata
			}
		}

		assessment = Assessment{
			NewIP:             isNew,
			Suspicious:        len(reasons) > 0 && !(isNew && !hadHistory),
			Reasons:           reasons,
			KnownIPs:          len(entries),
			DaysSinceLastSeen: days,
		}
		return encodeHistory(entries)
	})
	if err != nil {
		tr.logger.ErrorTag(logging.TagReputation, "failed to record ip %s for user %s: %v", ip, userID, err)
		return Assessment{DaysSinceLastSeen: -1}, err
	}

	if assessment.Suspicious {
		tr.logger.WarnTag(logging.TagReputation, "suspicious address %s for user %s: %s", ip, userID, strings.Join(assessment.Reasons, "; "))
		tr.emit(ctx, security.EventSuspiciousIP, map[string]interface{}{
			"user_id": userID,
			"ip":      ip,
			"reasons": assessment.Reasons,
		})
	} else {
		tr.logger.DebugTag(logging.TagReputation, "recorded address %s for user %s (%d known)", ip, userID, assessment.KnownIPs)
	}

	return assessment, nil
}

// History returns the stored entries for the user, oldest first in
// insertion order. Failures read as an empty history alongside the
// error.
func (tr *Tracker) History(ctx context.Context, userID string) ([]Entry, error) {
	raw, ok, err := tr.store.Get(ctx, historyKey(userID))
	if err != nil {
		tr.logger.WarnTag(logging.TagReputation, "ip history unavailable for user %s: %v", userID, err)
		return []Entry{}, err
	}
	if !ok {
		return []Entry{}, nil
	}

	entries, decErr := decodeHistory(raw)
	if decErr != nil {
		tr.logger.WarnTag(logging.TagReputation, "unreadable ip history for user %s: %v", userID, decErr)
		return []Entry{},
			errors.Wrap(errors.KindStorage, "reputation.history", "failed to decode ip history", decErr)
	}
	return entries, nil
}

// KnownIP reports whether the address already appears in the user's
// history.
func (tr *Tracker) KnownIP(ctx context.Context, userID, ip string) (bool, error) {
	entries, err := tr.History(ctx, userID)
	if err != nil {
		return false, err
	}
	return findEntry(entries, ip) >= 0, nil
}

// ClearHistory removes the user's stored history.
func (tr *Tracker) ClearHistory(ctx context.Context, userID string) error {
	if err := tr.store.Delete(ctx, historyKey(userID)); err != nil {
		tr.logger.ErrorTag(logging.TagReputation, "failed to clear ip history for user %s: %v", userID, err)
		return err
	}
	tr.logger.DebugTag(logging.TagReputation, "cleared ip history for user %s", userID)
	return nil
}

// Stats counts the users with a tracked history via a prefix scan.
func (tr *Tracker) Stats(ctx context.Context) (Stats, error) {
	keys, err := tr.store.Keys(ctx, historyKeyPrefix)
	if err != nil {
		tr.logger.WarnTag(logging.TagReputation, "ip history stats unavailable: %v", err)
		return Stats{}, err
	}
	return Stats{TrackedUsers: len(keys)}, nil
}

// CountRecentChanges counts the entries last seen within the trailing
// volatility window. Histories hold one entry per distinct address, so
// this is the number of distinct recent addresses.
func (tr *Tracker) CountRecentChanges(entries []Entry) int {
	return tr.countRecent(entries, time.Now())
}

func (tr *Tracker) countRecent(entries []Entry, now time.Time) int {
	cutoff := now.Add(-tr.volatileWindow).UnixMilli()
	n := 0
	for i := range entries {
		if entries[i].LastSeen >= cutoff {
			n++
		}
	}
	return n
}

func (tr *Tracker) emit(ctx context.Context, eventType string, metadata map[string]interface{}) {
	if tr.events == nil {
		return
	}
	tr.events.TrackEvent(ctx, eventType, metadata)
}

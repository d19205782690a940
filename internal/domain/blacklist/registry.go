package blacklist

import (
	"context"
	"strconv"
	"strings"
	"time"

	"authguard-go/internal/domain/security"
	"authguard-go/internal/platform/cache"
	"authguard-go/internal/platform/errors"
	"authguard-go/internal/platform/logging"
	"github.com/bytedance/sonic"
)

const (
	tokenKeyPrefix = "blacklist:"
	userKeyPrefix  = "blacklist:user:"

	defaultBlacklistTTL = 7 * 24 * time.Hour
)

func tokenKey(token string) string {
	return tokenKeyPrefix + token
}

func userKey(userID string) string {
	return userKeyPrefix + userID
}

// EventSink receives security events raised by revocation activity.
type EventSink interface {
	TrackEvent(ctx context.Context, eventType string, metadata map[string]interface{})
}

// Options encapsulates the dependencies required to construct a Registry.
type Options struct {
	Store      cache.Store
	Logger     *logging.Logger
	Events     EventSink
	Verifier   *Verifier
	DefaultTTL time.Duration
}

// Registry tracks revoked tokens and per-user revocation cutoffs on top
// of the shared cache store. Writes are fail-closed (no durable
// guarantee is reported while the shared cache is unreachable), reads
// are fail-open (an unreachable cache reads as not revoked).
type Registry struct {
	store      cache.Store
	logger     *logging.Logger
	events     EventSink
	verifier   *Verifier
	defaultTTL time.Duration
}

// Stats counts the two blacklist namespaces.
type Stats struct {
	TokenEntries int `json:"token_entries"`
	UserEntries  int `json:"user_entries"`
}

// TokenStatus is the combined verdict for one presented token.
type TokenStatus struct {
	Valid   bool
	Revoked bool
	UserID  string
	Reason  string
}

// blacklistedToken is the stored wire form of one revoked token.
type blacklistedToken struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

// NewRegistry wires a Registry using the supplied options.
func NewRegistry(opts Options) (*Registry, error) {
	if opts.Store == nil {
		return nil, errors.New(errors.KindDomain, "blacklist.new", "revocation registry requires a store")
	}
	if opts.Logger == nil {
		return nil, errors.New(errors.KindDomain, "blacklist.new", "revocation registry requires a logger")
	}

	defaultTTL := opts.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = defaultBlacklistTTL
	}

	return &Registry{
		store:      opts.Store,
		logger:     opts.Logger,
		events:     opts.Events,
		verifier:   opts.Verifier,
		defaultTTL: defaultTTL,
	}, nil
}

// BlacklistToken revokes a single token until its TTL lapses. The
// returned bool reports whether the revocation is durably guaranteed;
// it is false while the shared cache is unreachable, even though the
// entry still lands in the local fallback.
func (r *Registry) BlacklistToken(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	if token == "" {
		return false, errors.New(errors.KindDomain, "blacklist.token", "token must not be empty")
	}
	if ttl <= 0 {
		ttl = r.defaultTTL
	}

	rec := blacklistedToken{
		Token:     token,
		ExpiresAt: time.Now().Add(ttl).UnixMilli(),
	}
	data, err := sonic.Marshal(&rec)
	if err != nil {
		return false, errors.Wrap(errors.KindDomain, "blacklist.token", "failed to encode blacklist entry", err)
	}

	if err := r.store.Set(ctx, tokenKey(token), string(data), ttl); err != nil {
		r.logger.ErrorTag(logging.TagToken, "failed to blacklist token: %v", err)
		return false, err
	}
	if !r.store.Connected() {
		r.logger.WarnTag(logging.TagToken, "token blacklisted locally only, shared cache unreachable")
		return false, nil
	}

	r.logger.DebugTag(logging.TagToken, "token blacklisted for %s", ttl)
	r.emit(ctx, security.EventTokenRevoked, map[string]interface{}{
		"scope":  "token",
		"ttl_ms": ttl.Milliseconds(),
	})
	return true, nil
}

// IsBlacklisted reports whether the token was revoked. Unreachable or
// failing storage reads as not revoked to keep sessions available.
func (r *Registry) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	_, ok, err := r.store.Get(ctx, tokenKey(token))
	if err != nil {
		r.logger.WarnTag(logging.TagToken, "blacklist check unavailable, treating token as valid: %v", err)
		return false, err
	}
	return ok, nil
}

// BlacklistUserTokens invalidates every token the user was issued
// before now by storing a cutoff timestamp. Same durability contract as
// BlacklistToken.
func (r *Registry) BlacklistUserTokens(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	if userID == "" {
		return false, errors.New(errors.KindDomain, "blacklist.user", "user id must not be empty")
	}
	if ttl <= 0 {
		ttl = r.defaultTTL
	}

	cutoff := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := r.store.Set(ctx, userKey(userID), cutoff, ttl); err != nil {
		r.logger.ErrorTag(logging.TagToken, "failed to blacklist tokens for user %s: %v", userID, err)
		return false, err
	}
	if !r.store.Connected() {
		r.logger.WarnTag(logging.TagToken, "user token cutoff stored locally only, shared cache unreachable")
		return false, nil
	}

	r.logger.InfoTag(logging.TagToken, "all tokens for user %s blacklisted", userID)
	r.emit(ctx, security.EventTokenRevoked, map[string]interface{}{
		"scope":   "user",
		"user_id": userID,
		"ttl_ms":  ttl.Milliseconds(),
	})
	return true, nil
}

// AreUserTokensBlacklisted reports whether a token issued at the given
// instant falls under the user's revocation cutoff. Only tokens issued
// strictly before the cutoff are revoked. Fail-open.
func (r *Registry) AreUserTokensBlacklisted(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	raw, ok, err := r.store.Get(ctx, userKey(userID))
	if err != nil {
		r.logger.WarnTag(logging.TagToken, "user cutoff check unavailable for %s: %v", userID, err)
		return false, err
	}
	if !ok {
		return false, nil
	}

	cutoff, parseErr := strconv.ParseInt(raw, 10, 64)
	if parseErr != nil {
		r.logger.WarnTag(logging.TagToken, "unreadable cutoff for user %s: %v", userID, parseErr)
		return false, errors.Wrap(errors.KindStorage, "blacklist.user_check", "failed to parse cutoff", parseErr)
	}
	return issuedAt.UnixMilli() < cutoff, nil
}

// RemoveFromBlacklist deletes the revocation entry for one token.
func (r *Registry) RemoveFromBlacklist(ctx context.Context, token string) error {
	if err := r.store.Delete(ctx, tokenKey(token)); err != nil {
		r.logger.ErrorTag(logging.TagToken, "failed to remove token from blacklist: %v", err)
		return err
	}
	return nil
}

// GetStats counts per-token and per-user entries via a prefix scan.
func (r *Registry) GetStats(ctx context.Context) (Stats, error) {
	keys, err := r.store.Keys(ctx, tokenKeyPrefix)
	if err != nil {
		r.logger.WarnTag(logging.TagToken, "blacklist stats unavailable: %v", err)
		return Stats{}, err
	}

	stats := Stats{}
	for _, key := range keys {
		if strings.HasPrefix(key, userKeyPrefix) {
			stats.UserEntries++
		} else {
			stats.TokenEntries++
		}
	}
	return stats, nil
}

// CheckToken verifies the signature and consults both blacklists in one
// call. Storage errors leave the token treated as valid, with the error
// reported alongside.
func (r *Registry) CheckToken(ctx context.Context, signed string) (TokenStatus, error) {
	if r.verifier == nil {
		return TokenStatus{}, errors.New(errors.KindDomain, "blacklist.check_token", "no token verifier configured")
	}

	claims, err := r.verifier.Verify(signed)
	if err != nil {
		return TokenStatus{Reason: "invalid_token"}, err
	}

	revoked, err := r.IsBlacklisted(ctx, signed)
	if err != nil {
		return TokenStatus{Valid: true, UserID: claims.UserID}, err
	}
	if revoked {
		return TokenStatus{Revoked: true, UserID: claims.UserID, Reason: "token_blacklisted"}, nil
	}

	cut, err := r.AreUserTokensBlacklisted(ctx, claims.UserID, claims.IssuedAt)
	if err != nil {
		return TokenStatus{Valid: true, UserID: claims.UserID}, err
	}
	if cut {
		return TokenStatus{Revoked: true, UserID: claims.UserID, Reason: "user_tokens_revoked"}, nil
	}

	return TokenStatus{Valid: true, UserID: claims.UserID}, nil
}

func (r *Registry) emit(ctx context.Context, eventType string, metadata map[string]interface{}) {
	if r.events == nil {
		return
	}
	r.events.TrackEvent(ctx, eventType, metadata)
}

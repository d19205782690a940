package blacklist

import (
	"fmt"
	"time"

	"authguard-go/internal/platform/errors"
	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = time.Hour

// Claims is the subset of token claims the registry cares about.
type Claims struct {
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Verifier signs and verifies the HS256 session tokens whose revocation
// the registry tracks.
type Verifier struct {
	secret []byte
	ttl    time.Duration
}

// NewVerifier builds a token helper using the provided secret.
func NewVerifier(secret string, ttl time.Duration) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New(errors.KindConfig, "token.verifier", "signing secret must not be empty")
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Verifier{
		secret: []byte(secret),
		ttl:    ttl,
	}, nil
}

// Mint issues a signed token for the user.
func (v *Verifier) Mint(userID string) (string, error) {
	if userID == "" {
		return "", errors.New(errors.KindDomain, "token.mint", "user id must not be empty")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     now.Add(v.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", errors.Wrap(errors.KindDomain, "token.mint", "failed to sign token", err)
	}
	return signed, nil
}

// Verify validates the signature and expiry and extracts the claims.
func (v *Verifier) Verify(signed string) (Claims, error) {
	token, err := jwt.Parse(signed, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Claims{}, errors.Wrap(errors.KindDomain, "token.verify", "failed to parse token", err)
	}
	if !token.Valid {
		return Claims{}, errors.New(errors.KindDomain, "token.verify", "invalid token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New(errors.KindDomain, "token.verify", "invalid claims")
	}
	userID, ok := mapClaims["user_id"].(string)
	if !ok {
		return Claims{}, errors.New(errors.KindDomain, "token.verify", "invalid user_id claim")
	}

	claims := Claims{UserID: userID}
	if issuedAt, err := mapClaims.GetIssuedAt(); err == nil && issuedAt != nil {
		claims.IssuedAt = issuedAt.Time
	}
	if expiresAt, err := mapClaims.GetExpirationTime(); err == nil && expiresAt != nil {
		claims.ExpiresAt = expiresAt.Time
	}
	return claims, nil
}

package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired or signed with another key.
	ErrInvalidToken = errors.New("invalid token")
)

// SigningKeySize is the length of the HS256 signing key.
const SigningKeySize = 32

// AccessClaims is the access token payload. Field names are fixed: sub and sid
// are integers, jti is the base64url truncated session token hash.
type AccessClaims struct {
	Subject   int64            `json:"sub"`
	SessionID int64            `json:"sid"`
	JTI       string           `json:"jti"`
	ExpiresAt *jwt.NumericDate `json:"exp"`
	IssuedAt  *jwt.NumericDate `json:"iat"`
}

func (c AccessClaims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c AccessClaims) GetIssuedAt() (*jwt.NumericDate, error)       { return c.IssuedAt, nil }
func (c AccessClaims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c AccessClaims) GetIssuer() (string, error)                   { return "", nil }
func (c AccessClaims) GetAudience() (jwt.ClaimStrings, error)       { return nil, nil }
func (c AccessClaims) GetSubject() (string, error) {
	return strconv.FormatInt(c.Subject, 10), nil
}

// TruncatedHash decodes the jti claim.
func (c AccessClaims) TruncatedHash() (SessionTokenHashTruncated, error) {
	return DecodeTruncatedHash(c.JTI)
}

// TokenProvider issues and validates HS256 access tokens bound to a session.
type TokenProvider struct {
	key       []byte
	accessTTL time.Duration
	now       func() time.Time
}

// NewTokenProvider returns a TokenProvider signing with key (32 bytes).
func NewTokenProvider(key []byte, accessTTL time.Duration) (*TokenProvider, error) {
	if len(key) != SigningKeySize {
		return nil, fmt.Errorf("%w: signing key must be %d bytes", ErrInvalidKey, SigningKeySize)
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &TokenProvider{key: k, accessTTL: accessTTL, now: time.Now}, nil
}

// NewEphemeralTokenProvider draws a random signing key. The key lives only in
// this process; tokens issued before a restart stop validating.
func NewEphemeralTokenProvider(accessTTL time.Duration) (*TokenProvider, error) {
	key := make([]byte, SigningKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return NewTokenProvider(key, accessTTL)
}

// AccessTTL returns the access token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration {
	return p.accessTTL
}

// IssueAccess issues a short-lived access JWT for the given user and session.
// jti is the truncated hash of the session's current token.
func (p *TokenProvider) IssueAccess(userID, sessionID int64, jti SessionTokenHashTruncated) (token string, expiresAt time.Time, err error) {
	now := p.now().UTC().Truncate(time.Second)
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		Subject:   userID,
		SessionID: sessionID,
		JTI:       jti.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return token, expiresAt, nil
}

// ValidateAccess parses and validates the access token (algorithm, signature, exp).
// It does not consult the session row; callers must cross-check sid and jti.
func (p *TokenProvider) ValidateAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return p.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := claims.TruncatedHash(); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const (
	// SessionTokenSize is the length of a raw session token in bytes.
	SessionTokenSize = 32
	// SessionTokenHashSize is the length of a stored session token hash.
	SessionTokenHashSize = sha256.Size
	// TruncatedHashSize is the length of the hash prefix carried as the access token jti.
	TruncatedHashSize = 16
)

// SessionToken is the opaque refresh credential held only by the client.
type SessionToken [SessionTokenSize]byte

// SessionTokenHash is the stored one-way hash of a SessionToken.
type SessionTokenHash [SessionTokenHashSize]byte

// SessionTokenHashTruncated is the first 16 bytes of a SessionTokenHash.
type SessionTokenHashTruncated [TruncatedHashSize]byte

// TokenDecodeError reports a transport-encoded token that is not valid base64url
// or decodes to the wrong length.
type TokenDecodeError struct {
	Want int
	Got  int
	Err  error
}

func (e *TokenDecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode token: %v", e.Err)
	}
	return fmt.Sprintf("decode token: want %d bytes, got %d", e.Want, e.Got)
}

func (e *TokenDecodeError) Unwrap() error { return e.Err }

// GenerateSessionToken returns 32 bytes from crypto/rand.
func GenerateSessionToken() (SessionToken, error) {
	var t SessionToken
	if _, err := rand.Read(t[:]); err != nil {
		return t, fmt.Errorf("generate session token: %w", err)
	}
	return t, nil
}

// DecodeSessionToken parses the base64url (no padding) cookie form.
func DecodeSessionToken(s string) (SessionToken, error) {
	var t SessionToken
	err := decodeFixed(s, t[:])
	return t, err
}

// String returns the base64url (no padding) transport form.
func (t SessionToken) String() string {
	return base64.RawURLEncoding.EncodeToString(t[:])
}

// Hash returns the SHA-256 of the token.
func (t SessionToken) Hash() SessionTokenHash {
	return sha256.Sum256(t[:])
}

// SessionTokenHashFromBytes copies a stored hash. Returns a TokenDecodeError on wrong length.
func SessionTokenHashFromBytes(b []byte) (SessionTokenHash, error) {
	var h SessionTokenHash
	if len(b) != len(h) {
		return h, &TokenDecodeError{Want: len(h), Got: len(b)}
	}
	copy(h[:], b)
	return h, nil
}

// Truncate returns the first 16 bytes of the hash.
func (h SessionTokenHash) Truncate() SessionTokenHashTruncated {
	var t SessionTokenHashTruncated
	copy(t[:], h[:TruncatedHashSize])
	return t
}

// MatchesTruncated reports in constant time whether t is the prefix of h.
func (h SessionTokenHash) MatchesTruncated(t SessionTokenHashTruncated) bool {
	return subtle.ConstantTimeCompare(h[:TruncatedHashSize], t[:]) == 1
}

// Equal compares two hashes in constant time.
func (h SessionTokenHash) Equal(other SessionTokenHash) bool {
	return subtle.ConstantTimeCompare(h[:], other[:]) == 1
}

// String returns the base64url (no padding) form.
func (t SessionTokenHashTruncated) String() string {
	return base64.RawURLEncoding.EncodeToString(t[:])
}

// DecodeTruncatedHash parses the base64url jti form.
func DecodeTruncatedHash(s string) (SessionTokenHashTruncated, error) {
	var t SessionTokenHashTruncated
	err := decodeFixed(s, t[:])
	return t, err
}

func decodeFixed(s string, dst []byte) error {
	if base64.RawURLEncoding.DecodedLen(len(s)) != len(dst) {
		return &TokenDecodeError{Want: len(dst), Got: base64.RawURLEncoding.DecodedLen(len(s))}
	}
	n, err := base64.RawURLEncoding.Decode(dst, []byte(s))
	if err != nil {
		return &TokenDecodeError{Want: len(dst), Got: n, Err: err}
	}
	if n != len(dst) {
		return &TokenDecodeError{Want: len(dst), Got: n}
	}
	return nil
}

package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	// DefaultRecoveryCodeCount is the number of codes issued per confirmation.
	DefaultRecoveryCodeCount = 10
	recoveryCodeBytes        = 16
)

// GenerateRecoveryCodes returns n codes of 128 random bits each, base64url without
// padding, and their hashes in the same order.
func GenerateRecoveryCodes(n int) ([]string, [][]byte, error) {
	codes := make([]string, n)
	hashes := make([][]byte, n)
	for i := 0; i < n; i++ {
		b := make([]byte, recoveryCodeBytes)
		if _, err := rand.Read(b); err != nil {
			return nil, nil, fmt.Errorf("generate recovery code: %w", err)
		}
		codes[i] = base64.RawURLEncoding.EncodeToString(b)
		hashes[i] = HashRecoveryCode(codes[i])
	}
	return codes, hashes, nil
}

// HashRecoveryCode returns the SHA-256 of the code as stored.
func HashRecoveryCode(code string) []byte {
	h := sha256.Sum256([]byte(code))
	return h[:]
}

// looksLikeTOTP reports whether code is 6 to 8 ASCII digits.
func looksLikeTOTP(code string) bool {
	if len(code) < 6 || len(code) > 8 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

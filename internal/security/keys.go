package security

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKey is returned when key material has the wrong encoding or length.
var ErrInvalidKey = errors.New("invalid key")

// SymmetricKeySize is the length of the TOTP secret encryption key.
const SymmetricKeySize = 32

// ParseSymmetricKey decodes a 32-byte key given as 64 hex characters,
// unpadded base64url, or standard base64.
func ParseSymmetricKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if len(s) == 2*SymmetricKeySize {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding} {
		b, err := enc.DecodeString(s)
		if err != nil {
			continue
		}
		if len(b) != SymmetricKeySize {
			return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKey, SymmetricKeySize, len(b))
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: expected hex or base64", ErrInvalidKey)
}

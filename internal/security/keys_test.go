package security

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"
)

func TestParseSymmetricKey(t *testing.T) {
	key := bytes.Repeat([]byte{0xAB}, 32)
	tests := []struct {
		name string
		in   string
	}{
		{"hex", hex.EncodeToString(key)},
		{"base64url raw", base64.RawURLEncoding.EncodeToString(key)},
		{"base64 std", base64.StdEncoding.EncodeToString(key)},
		{"whitespace", "  " + hex.EncodeToString(key) + "\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseSymmetricKey(tc.in)
			if err != nil {
				t.Fatalf("ParseSymmetricKey: %v", err)
			}
			if !bytes.Equal(got, key) {
				t.Fatal("decoded key differs")
			}
		})
	}
}

func TestParseSymmetricKey_Invalid(t *testing.T) {
	for _, in := range []string{
		"",
		"zz",
		base64.StdEncoding.EncodeToString(make([]byte, 16)),
		hex.EncodeToString(make([]byte, 31)),
		"@@@@",
	} {
		if _, err := ParseSymmetricKey(in); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("ParseSymmetricKey(%q) = %v, want ErrInvalidKey", in, err)
		}
	}
}

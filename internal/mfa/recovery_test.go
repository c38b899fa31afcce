package mfa

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func TestGenerateRecoveryCodes(t *testing.T) {
	codes, hashes, err := GenerateRecoveryCodes(DefaultRecoveryCodeCount)
	if err != nil {
		t.Fatalf("GenerateRecoveryCodes: %v", err)
	}
	if len(codes) != 10 || len(hashes) != 10 {
		t.Fatalf("got %d codes, %d hashes", len(codes), len(hashes))
	}
	seen := make(map[string]bool)
	for i, c := range codes {
		raw, err := base64.RawURLEncoding.DecodeString(c)
		if err != nil || len(raw) != 16 {
			t.Errorf("code %q is not 16 bytes of base64url", c)
		}
		if seen[c] {
			t.Errorf("duplicate code %q", c)
		}
		seen[c] = true
		if !bytes.Equal(hashes[i], HashRecoveryCode(c)) {
			t.Errorf("hash %d does not match code", i)
		}
	}
}

func TestLooksLikeTOTP(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"123456", true},
		{"1234567", true},
		{"12345678", true},
		{"12345", false},
		{"123456789", false},
		{"12345a", false},
		{"１２３４５６", false},
		{"AbCdEfGhIjKlMnOpQrStUv", false},
	}
	for _, tc := range tests {
		if got := looksLikeTOTP(tc.in); got != tc.want {
			t.Errorf("looksLikeTOTP(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

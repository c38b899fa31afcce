package security

import "time"

// testSigningKey is for unit tests only. Do not use in production.
var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

// TestArgon2Params are cheap argon2id parameters for unit tests only.
var TestArgon2Params = Argon2Params{Time: 1, MemoryKiB: 64, Threads: 1, SaltLen: 16, KeyLen: 32}

// NewTestTokenProvider returns a TokenProvider using a fixed test key.
// For unit tests only. Callers must not use in production.
func NewTestTokenProvider() (*TokenProvider, error) {
	return NewTokenProvider(testSigningKey, 15*time.Minute)
}

// NewTestPasswordVerifier returns a PasswordVerifier with cheap argon2 parameters.
// For unit tests only.
func NewTestPasswordVerifier() (*PasswordVerifier, error) {
	return NewPasswordVerifier(NewHasher(TestArgon2Params))
}

// WithClock returns a copy of p that reads time from now. For tests.
func (p *TokenProvider) WithClock(now func() time.Time) *TokenProvider {
	cp := *p
	cp.now = now
	return &cp
}

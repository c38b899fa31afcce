package mfa

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/samber/oops"
	"golang.org/x/crypto/chacha20poly1305"
)

// SecretCipher encrypts TOTP secrets at rest with XChaCha20-Poly1305. The user
// id is bound as associated data so a ciphertext cannot be moved to another account.
type SecretCipher struct {
	aead cipher.AEAD
}

// NewSecretCipher returns a cipher for a 32-byte key.
func NewSecretCipher(key []byte) (*SecretCipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("totp cipher: %w", err)
	}
	return &SecretCipher{aead: aead}, nil
}

// Seal encrypts secret for userID. The result is base64(nonce || ciphertext).
func (c *SecretCipher) Seal(userID int64, secret []byte) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(secret)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", oops.Code("TOTP_ENCRYPT_FAILED").Wrap(err)
	}
	blob := c.aead.Seal(nonce, nonce, secret, userAAD(userID))
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Open decrypts a blob produced by Seal for the same userID.
func (c *SecretCipher) Open(userID int64, encoded string) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, oops.Code("TOTP_DECRYPT_FAILED").With("user_id", userID).Wrap(err)
	}
	ns := c.aead.NonceSize()
	if len(blob) < ns+c.aead.Overhead() {
		return nil, oops.Code("TOTP_DECRYPT_FAILED").With("user_id", userID).Errorf("ciphertext too short")
	}
	secret, err := c.aead.Open(nil, blob[:ns], blob[ns:], userAAD(userID))
	if err != nil {
		return nil, oops.Code("TOTP_DECRYPT_FAILED").With("user_id", userID).Wrap(err)
	}
	return secret, nil
}

func userAAD(userID int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(userID))
	return b[:]
}

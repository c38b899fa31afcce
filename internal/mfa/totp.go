package mfa

import (
	"bytes"
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod     = 30
	totpSkew       = 1
	totpSecretSize = 20
	qrSize         = 256
	// DefaultIssuer is shown by authenticator apps next to the account name.
	DefaultIssuer = "Transcendence"
)

// Enrollment is returned once by Start. The secret cannot be re-derived later.
type Enrollment struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
	QRCodePNG  string `json:"qr_code_png"`
}

// TOTP generates and validates RFC 6238 codes: SHA1, 6 digits, 30 s, one step of skew.
type TOTP struct {
	Issuer string
}

func (t TOTP) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// NewSecret returns a random raw TOTP secret.
func (t TOTP) NewSecret() ([]byte, error) {
	secret := make([]byte, totpSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	return secret, nil
}

// Enroll builds the otpauth URL and QR code for secret.
func (t TOTP) Enroll(account string, secret []byte) (*Enrollment, error) {
	issuer := t.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      totpPeriod,
		Secret:      secret,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("totp key: %w", err)
	}
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return nil, fmt.Errorf("totp qr: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("totp qr encode: %w", err)
	}
	return &Enrollment{
		Secret:     key.Secret(),
		OTPAuthURL: key.URL(),
		QRCodePNG:  base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// Validate reports whether code is valid for secret at now.
func (t TOTP) Validate(code string, secret []byte, now time.Time) (bool, error) {
	ok, err := totp.ValidateCustom(code, encodeSecret(secret), now, t.validateOpts())
	if errors.Is(err, otp.ErrValidateInputInvalidLength) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("validate totp: %w", err)
	}
	return ok, nil
}

// Code returns the code for secret at now. Used by tests and the seed tool.
func (t TOTP) Code(secret []byte, now time.Time) (string, error) {
	return totp.GenerateCodeCustom(encodeSecret(secret), now, t.validateOpts())
}

func encodeSecret(secret []byte) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret)
}

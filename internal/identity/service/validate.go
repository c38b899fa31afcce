package service

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 128
)

var (
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	nicknamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,16}$`)
)

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Message: "is required"}
	}
	if !emailPattern.MatchString(email) {
		return &ValidationError{Field: "email", Message: "invalid format"}
	}
	return nil
}

func validatePassword(field, password string) error {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLen || n > maxPasswordLen {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be %d to %d characters", minPasswordLen, maxPasswordLen)}
	}
	return nil
}

func validateNickname(nickname string) error {
	if !nicknamePattern.MatchString(nickname) {
		return &ValidationError{Field: "nickname", Message: "must be 3 to 16 letters, digits, '_' or '-'"}
	}
	return nil
}

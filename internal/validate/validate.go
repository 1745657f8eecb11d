// Package validate holds the input rules shared by the confession and auth
// services.
package validate

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

var (
	ErrEmpty   = errors.New("empty")
	ErrTooLong = errors.New("too long")
)

// Error is a user-facing validation failure. Nothing was written.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string { return e.Message }

// New builds an *Error.
func New(field, message string) *Error {
	return &Error{Field: field, Message: message}
}

// Text trims raw and checks it is non-empty and at most maxLen characters
// (code points, not bytes).
func Text(raw string, maxLen int) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrEmpty
	}
	if utf8.RuneCountInString(trimmed) > maxLen {
		return "", ErrTooLong
	}
	return trimmed, nil
}

var v = validator.New()

// Email normalises and checks an email address.
func Email(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if err := v.Var(email, "required,email"); err != nil {
		return "", New("email", "Invalid email address")
	}
	return email, nil
}

// Password checks the minimum length.
func Password(raw string) error {
	if utf8.RuneCountInString(raw) < MinPasswordLength {
		return New("password", "Password must be at least 6 characters")
	}
	return nil
}

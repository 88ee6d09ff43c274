package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"
)

const (
	minPasswordLength = 8
	// bcrypt ignores input beyond 72 bytes.
	maxPasswordLength  = 72
	maxSubjectIDLength = 128
	maxDisplayName     = 80
)

func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	return email, nil
}

func ValidatePassword(password string) error {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be %d-%d bytes", ErrInvalidInput, minPasswordLength, maxPasswordLength)
	}
	return nil
}

func ValidateSubjectID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if len(id) > maxSubjectIDLength {
		return fmt.Errorf("%w: user id too long", ErrInvalidInput)
	}
	if strings.IndexFunc(id, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: user id must not contain whitespace", ErrInvalidInput)
	}
	return nil
}

func NormalizeDisplayName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if len(name) > maxDisplayName {
		return "", fmt.Errorf("%w: display_name must be <= %d chars", ErrInvalidInput, maxDisplayName)
	}
	return name, nil
}

// Package validation provides input validation utilities
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 128
	maxNameLen     = 50
	maxEmailLen    = 254
	maxQueryLen    = 50
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9\-]+(\.[a-zA-Z0-9\-]+)*\.[a-zA-Z]{2,}$`)
	codeRegex  = regexp.MustCompile(`^[0-9]{6}$`)
)

// ValidatePassword checks the length bounds of a direct sign-up password.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters long", minPasswordLen)
	}
	if n > maxPasswordLen {
		return fmt.Errorf("password must not exceed %d characters", maxPasswordLen)
	}
	return nil
}

// ValidateEmail checks basic email format
func ValidateEmail(email string) error {
	if len(email) > maxEmailLen {
		return fmt.Errorf("email must not exceed %d characters", maxEmailLen)
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateName checks a display name.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("name is required")
	}
	if utf8.RuneCountInString(trimmed) > maxNameLen {
		return fmt.Errorf("name must not exceed %d characters", maxNameLen)
	}
	return nil
}

// ValidateVerificationCode checks the 6-digit email verification code.
func ValidateVerificationCode(code string) error {
	if !codeRegex.MatchString(code) {
		return fmt.Errorf("verification code must be 6 digits")
	}
	return nil
}

// ValidateSearchQuery checks a station search term.
func ValidateSearchQuery(q string) error {
	trimmed := strings.TrimSpace(q)
	if trimmed == "" {
		return fmt.Errorf("search query is required")
	}
	if utf8.RuneCountInString(trimmed) > maxQueryLen {
		return fmt.Errorf("search query must not exceed %d characters", maxQueryLen)
	}
	return nil
}

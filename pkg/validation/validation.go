// Package validation checks user supplied input. Every failure is a
// *FieldError whose message is safe to show to clients.
package validation

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
	MaxNameLength     = 100
	MaxEmailLength    = 254
)

type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Message }

func invalid(field, format string, args ...any) error {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NormalizeEmail trims and lower-cases an address before lookup or storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail accepts a bare address with a dotted domain; display names
// ("Ana <ana@x.com>") are rejected.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		return invalid("email", "email is required")
	case len(email) > MaxEmailLength:
		return invalid("email", "email is too long (max %d characters)", MaxEmailLength)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return invalid("email", "invalid email format")
	}
	domain := email[strings.LastIndexByte(email, '@')+1:]
	if dot := strings.LastIndexByte(domain, '.'); dot <= 0 || len(domain)-dot-1 < 2 {
		return invalid("email", "invalid email format")
	}
	return nil
}

// ValidateName checks a user or workspace display name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("name", "name is required")
	}
	if !utf8.ValidString(name) {
		return invalid("name", "name contains invalid characters")
	}
	return ValidateStringLength(name, 1, MaxNameLength, "name")
}

func ValidatePassword(password string) error {
	switch n := len(password); {
	case n == 0:
		return invalid("password", "password is required")
	case n < MinPasswordLength:
		return invalid("password", "password must be at least %d characters", MinPasswordLength)
	case n > MaxPasswordLength:
		return invalid("password", "password is too long (max %d characters)", MaxPasswordLength)
	}
	return nil
}

// ValidateID checks identifiers issued by the server (uuid).
func ValidateID(id, fieldName string) error {
	if id == "" {
		return invalid(fieldName, "%s is required", fieldName)
	}
	if _, err := uuid.Parse(id); err != nil {
		return invalid(fieldName, "invalid %s format", fieldName)
	}
	return nil
}

// ValidateURL accepts absolute http(s) and ws(s) URLs; fieldName appears in
// the message.
func ValidateURL(raw, fieldName string) error {
	if raw == "" {
		return invalid(fieldName, "%s is required", fieldName)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return invalid(fieldName, "invalid %s: %v", fieldName, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return invalid(fieldName, "%s must use http, https, ws or wss", fieldName)
	}
	if u.Host == "" {
		return invalid(fieldName, "%s must have a host", fieldName)
	}
	return nil
}

// RequireFields fails when any value is blank, naming every field,
// e.g. "name,email,password required".
func RequireFields(names []string, values ...string) error {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			joined := strings.Join(names, ",")
			return invalid(joined, "%s required", joined)
		}
	}
	return nil
}

// ValidateStringLength counts runes, not bytes.
func ValidateStringLength(s string, min, max int, fieldName string) error {
	n := utf8.RuneCountInString(s)
	if n < min {
		return invalid(fieldName, "%s must be at least %d characters", fieldName, min)
	}
	if n > max {
		return invalid(fieldName, "%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}

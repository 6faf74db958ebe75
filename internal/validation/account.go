// Package validation checks user-supplied account fields.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Column widths of users.email and users.username.
const (
	MaxEmailLen    = 64
	MaxUsernameLen = 64
	MinUsernameLen = 3
	MinPasswordLen = 8
	// bcrypt ignores everything past 72 bytes.
	MaxPasswordBytes = 72
)

var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*[A-Za-z0-9]$`)

var reservedUsernames = map[string]struct{}{
	"admin":         {},
	"administrator": {},
	"moderator":     {},
	"root":          {},
	"system":        {},
	"api":           {},
	"metrics":       {},
	"health":        {},
}

// ValidateUsername checks length, charset and reserved names.
func ValidateUsername(username string) error {
	if len(username) < MinUsernameLen || len(username) > MaxUsernameLen {
		return fmt.Errorf("username must be %d-%d characters", MinUsernameLen, MaxUsernameLen)
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username may only contain letters, numbers, dots, dashes and underscores, and must start and end with a letter or number")
	}
	if _, reserved := reservedUsernames[strings.ToLower(username)]; reserved {
		return fmt.Errorf("username is reserved")
	}
	return nil
}

var validate = validator.New()

// ValidateEmail checks the address parses and fits the column.
func ValidateEmail(email string) error {
	if len(email) > MaxEmailLen {
		return fmt.Errorf("email must be at most %d characters", MaxEmailLen)
	}
	if err := validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("invalid email address")
	}
	domain := email[strings.LastIndex(email, "@")+1:]
	if strings.HasSuffix(domain, ".") || !strings.Contains(domain, ".") {
		return fmt.Errorf("invalid email domain")
	}
	return nil
}

// ValidatePassword checks the password length bcrypt can handle.
func ValidatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLen)
	}
	if len(password) > MaxPasswordBytes {
		return fmt.Errorf("password must be at most %d bytes", MaxPasswordBytes)
	}
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password must not be blank")
	}
	return nil
}

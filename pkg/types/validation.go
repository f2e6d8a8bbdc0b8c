package types

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidID checks the format shared by user, assignment and message ids:
// 1-50 characters, alphanumeric plus underscore and hyphen.
func IsValidID(id string) bool {
	if len(id) < 1 || len(id) > 50 {
		return false
	}
	return idRegex.MatchString(id)
}

// IsValidRole checks that a claimed role is one the gate understands.
func IsValidRole(role string) bool {
	switch role {
	case RoleMentor, RoleMentee, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsValidSection checks that name is one of the three collaboration sections.
func IsValidSection(name Section) bool {
	for _, s := range Sections {
		if s == name {
			return true
		}
	}
	return false
}

// NormalizeBody trims surrounding whitespace from a chat body and validates
// it against maxRunes. A zero maxRunes disables the length check.
func NormalizeBody(body string, maxRunes int) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", ErrEmptyMessageBody
	}
	if maxRunes > 0 && utf8.RuneCountInString(trimmed) > maxRunes {
		return "", ErrMessageBodyTooLong
	}
	return trimmed, nil
}

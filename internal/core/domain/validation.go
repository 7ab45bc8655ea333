package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var validSubjectRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeSubjectID trims and lower-cases a subject identifier.
func NormalizeSubjectID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ValidateSubjectID checks that id is a plausible email address.
func ValidateSubjectID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: cannot be empty", ErrInvalidSubject)
	}
	if len(id) > 254 {
		return fmt.Errorf("%w: exceeds 254 characters", ErrInvalidSubject)
	}
	if !validSubjectRegex.MatchString(id) {
		return fmt.Errorf("%w: '%s' is not a valid email address", ErrInvalidSubject, id)
	}
	return nil
}

// ParseCategory maps a filter name to a Category. Empty input means CategoryAll.
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CategoryAll, nil
	case CategoryAll, CategoryPending, CategoryApproved, CategoryPaid, CategoryExpired, CategoryDenied:
		return c, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}

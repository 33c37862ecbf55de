package util

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidObjectName is returned when a name cannot be used as a storage key segment.
var ErrInvalidObjectName = errors.New("invalid object name")

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectName maps an id (analysis id, clinic id) onto a single storage key
// segment. Runs of unsafe characters collapse to "_"; traversal and names
// that end up empty are rejected.
func ObjectName(id string) (string, error) {
	s := strings.TrimSpace(id)
	if strings.Contains(s, "..") {
		return "", ErrInvalidObjectName
	}
	s = strings.Trim(unsafeKeyChars.ReplaceAllString(s, "_"), "_.")
	if s == "" {
		return "", ErrInvalidObjectName
	}
	return s, nil
}

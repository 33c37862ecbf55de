// Package scancache guards quota against repeat scans of the same customer:
// a completed AI-backed result is stored under a fingerprint of tenant,
// customer identity and age, and replayed for the rest of the window.
package scancache

import (
	"strconv"
	"strings"

	"skinscan-backend/internal/shared/util"
)

const unknownIdentity = "unknown"

// Identity is the customer identity a fingerprint is derived from.
type Identity struct {
	Name  string
	Email string
	Age   int
}

// Key returns the normalized identity: the email when present, else the
// name without whitespace, else "unknown".
func (id Identity) Key() string {
	if email := strings.ToLower(strings.TrimSpace(id.Email)); email != "" {
		return email
	}
	name := strings.Join(strings.Fields(strings.ToLower(id.Name)), "")
	if name != "" {
		return name
	}
	return unknownIdentity
}

// Fingerprint is the cache key for tenantID and id.
func Fingerprint(tenantID string, id Identity) string {
	return util.HashKey(strings.TrimSpace(tenantID), id.Key(), strconv.Itoa(id.Age))
}

package scancache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores for a missing or expired fingerprint.
var ErrNotFound = errors.New("cache entry not found")

// Record is the persisted form of an entry.
type Record struct {
	Fingerprint string    `json:"fingerprint"`
	TenantID    string    `json:"tenantId"`
	Payload     []byte    `json:"payload"`
	QuotaSaved  float64   `json:"quotaSaved"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Stats summarizes a store.
type Stats struct {
	TotalEntries   int     `json:"totalEntries"`
	ActiveEntries  int     `json:"activeEntries"`
	ExpiredEntries int     `json:"expiredEntries"`
	QuotaSaved     float64 `json:"quotaSaved"`
}

// Store persists cache records.
type Store interface {
	Get(ctx context.Context, fingerprint string) (Record, error)
	Put(ctx context.Context, rec Record) error
	Stats(ctx context.Context, now time.Time) (Stats, error)
	// Purge deletes records expired at now and reports how many went.
	Purge(ctx context.Context, now time.Time) (int, error)
}

package scancache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"skinscan-backend/internal/fusion"
	"skinscan-backend/internal/shared/metrics"
	"skinscan-backend/internal/shared/telemetry"
)

const (
	// DefaultTTL is the dedup window.
	DefaultTTL = 24 * time.Hour
	// QuotaSavedPerHit is the quota credited to a hit.
	QuotaSavedPerHit = 1.0

	janitorInterval = time.Hour
)

// Entry is a cached result.
type Entry struct {
	Result     fusion.Result `json:"result"`
	QuotaSaved float64       `json:"quotaSaved"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Gate is the cache front of the pipeline.
type Gate struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
	hits  atomic.Int64
}

// NewGate wraps store. A non-positive ttl uses DefaultTTL.
func NewGate(store Store, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Gate{store: store, ttl: ttl, now: time.Now}
}

// Lookup returns a live entry for tenantID and id. Store faults count as
// a miss.
func (g *Gate) Lookup(ctx context.Context, tenantID string, id Identity) (Entry, bool) {
	return g.LookupFingerprint(ctx, Fingerprint(tenantID, id))
}

// LookupFingerprint is Lookup for a precomputed fingerprint.
func (g *Gate) LookupFingerprint(ctx context.Context, fingerprint string) (Entry, bool) {
	rec, err := g.store.Get(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.IncCacheLookup("miss")
		} else {
			metrics.IncCacheLookup("error")
			telemetry.Warn("cache.lookup_failed", map[string]any{
				"fingerprint": fingerprint,
				"error":       err.Error(),
			})
		}
		return Entry{}, false
	}
	if !g.now().Before(rec.CreatedAt.Add(g.ttl)) {
		metrics.IncCacheLookup("miss")
		return Entry{}, false
	}
	var res fusion.Result
	if err := json.Unmarshal(rec.Payload, &res); err != nil {
		metrics.IncCacheLookup("error")
		telemetry.Warn("cache.decode_failed", map[string]any{
			"fingerprint": fingerprint,
			"error":       err.Error(),
		})
		return Entry{}, false
	}
	metrics.IncCacheLookup("hit")
	g.hits.Add(1)
	return Entry{Result: res, QuotaSaved: rec.QuotaSaved, CreatedAt: rec.CreatedAt}, true
}

// Store writes result under fingerprint for the gate's window, replacing
// any previous entry.
func (g *Gate) Store(ctx context.Context, tenantID, fingerprint string, result fusion.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	now := g.now().UTC()
	rec := Record{
		Fingerprint: fingerprint,
		TenantID:    tenantID,
		Payload:     payload,
		QuotaSaved:  QuotaSavedPerHit,
		CreatedAt:   now,
		ExpiresAt:   now.Add(g.ttl),
	}
	if err := g.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("store cache entry: %w", err)
	}
	return nil
}

// Stats reports entry counts and the quota saved by hits served by this
// process.
func (g *Gate) Stats(ctx context.Context) (Stats, error) {
	st, err := g.store.Stats(ctx, g.now())
	if err != nil {
		return Stats{}, err
	}
	st.QuotaSaved = float64(g.hits.Load()) * QuotaSavedPerHit
	return st, nil
}

// RunJanitor purges expired entries hourly until ctx is done.
func (g *Gate) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.purge(ctx)
		}
	}
}

func (g *Gate) purge(ctx context.Context) {
	n, err := g.store.Purge(ctx, g.now())
	if err != nil {
		telemetry.Warn("cache.purge_failed", map[string]any{"error": err.Error()})
		return
	}
	if n > 0 {
		telemetry.Info("cache.purged", map[string]any{"entries": n})
	}
}

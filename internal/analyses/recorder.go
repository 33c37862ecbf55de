package analyses

import (
	"context"
	"time"

	"skinscan-backend/internal/fusion"
	"skinscan-backend/internal/queue"
	"skinscan-backend/internal/quota"
	"skinscan-backend/internal/scancache"
	"skinscan-backend/internal/shared/telemetry"
)

// QuotaGate is the ledger surface the pipeline needs.
type QuotaGate interface {
	Reserve(ctx context.Context, tenantID, scanType string) (quota.Reservation, error)
	Commit(ctx context.Context, res quota.Reservation, out quota.Outcome) error
	Release(ctx context.Context, res quota.Reservation) error
}

// CacheGate is the cache surface the pipeline needs.
type CacheGate interface {
	LookupFingerprint(ctx context.Context, fingerprint string) (scancache.Entry, bool)
	Store(ctx context.Context, tenantID, fingerprint string, result fusion.Result) error
}

// recordTimeout bounds the detached finalization work.
const recordTimeout = 10 * time.Second

// Recorder finalizes a billable attempt: it commits the reservation, caches
// AI-backed results and announces the scan.
type Recorder struct {
	Quota  QuotaGate
	Cache  CacheGate
	Events queue.Publisher
	now    func() time.Time
}

// NewRecorder constructs a Recorder. A nil publisher discards events.
func NewRecorder(q QuotaGate, c CacheGate, events queue.Publisher) *Recorder {
	if events == nil {
		events = queue.Discard{}
	}
	return &Recorder{Quota: q, Cache: c, Events: events, now: time.Now}
}

// Attempt is what the recorder needs to know about one finished scan.
type Attempt struct {
	AnalysisID  string
	TenantID    string
	UserID      string
	Fingerprint string
	Reservation quota.Reservation
	Result      fusion.Result
}

// Record runs detached from ctx cancellation. A failed commit is returned;
// cache and queue faults are logged only.
func (r *Recorder) Record(ctx context.Context, a Attempt) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	fields := map[string]any{
		"analysis_id": a.AnalysisID,
		"clinic_id":   a.TenantID,
		"tier":        a.Result.Tier.String(),
		"request_id":  requestIDFromContext(ctx),
	}

	commitErr := r.Quota.Commit(ctx, a.Reservation, quota.Outcome{
		UserID:     a.UserID,
		Successful: a.Result.AIPowered,
		Tier:       int(a.Result.Tier),
		AICostUSD:  a.Result.AICostUSD,
	})
	if commitErr != nil {
		fields["error"] = commitErr.Error()
		telemetry.Error("recorder.commit_failed", fields)
	}

	if a.Result.Tier == fusion.TierPrimary || a.Result.Tier == fusion.TierSignals {
		if err := r.Cache.Store(ctx, a.TenantID, a.Fingerprint, a.Result); err != nil {
			telemetry.Warn("recorder.cache_store_failed", mergeFields(fields, "error", err.Error()))
		}
	}

	evt := queue.ScanEvent{
		AnalysisID:  a.AnalysisID,
		RequestID:   requestIDFromContext(ctx),
		TenantID:    a.TenantID,
		UserID:      a.UserID,
		Fingerprint: a.Fingerprint,
		Tier:        a.Result.Tier.String(),
		Score:       float64(a.Result.OverallScore),
		Successful:  a.Result.AIPowered,
		Charged:     a.Reservation.WouldIncurCharge,
		AICostUSD:   a.Result.AICostUSD.String(),
		CompletedAt: r.now().UTC().Format(time.RFC3339),
		Version:     queue.EventVersion,
	}
	if err := r.Events.Publish(ctx, evt); err != nil {
		telemetry.Warn("recorder.publish_failed", mergeFields(fields, "error", err.Error()))
	}

	return commitErr
}

func mergeFields(base map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out[key] = value
	return out
}

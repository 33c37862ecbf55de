package analyses

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skinscan-backend/internal/fusion"
	"skinscan-backend/internal/quota"
	"skinscan-backend/internal/scancache"
)

type failingCommitQuota struct{ fakeQuota }

func (f *failingCommitQuota) Commit(context.Context, quota.Reservation, quota.Outcome) error {
	return quota.ErrQuotaUnavailable
}

func TestRecorderCachesOnlyAIBackedTiers(t *testing.T) {
	cases := []struct {
		tier   fusion.Tier
		cached bool
	}{
		{fusion.TierPrimary, true},
		{fusion.TierSignals, true},
		{fusion.TierBaseline, false},
	}
	for _, tc := range cases {
		t.Run(tc.tier.String(), func(t *testing.T) {
			q := &fakeQuota{}
			gate := scancache.NewGate(scancache.NewMemoryStore(), 0)
			rec := NewRecorder(q, gate, nil)

			err := rec.Record(context.Background(), Attempt{
				AnalysisID:  "a-1",
				TenantID:    "clinic-1",
				Fingerprint: "fp-" + tc.tier.String(),
				Result:      fusion.Result{Tier: tc.tier, AIPowered: tc.tier != fusion.TierBaseline},
			})
			require.NoError(t, err)
			assert.EqualValues(t, 1, q.commits.Load())

			_, hit := gate.LookupFingerprint(context.Background(), "fp-"+tc.tier.String())
			assert.Equal(t, tc.cached, hit)
		})
	}
}

func TestRecorderIgnoresCallerCancellation(t *testing.T) {
	qs := quota.NewService("professional")
	res, err := qs.Reserve(context.Background(), "clinic-1", ScanTypeDetailed)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := NewRecorder(qs, scancache.NewGate(scancache.NewMemoryStore(), 0), nil)
	require.NoError(t, rec.Record(ctx, Attempt{TenantID: "clinic-1", Reservation: res, Result: fusion.Result{Tier: fusion.TierBaseline}}))

	usage, err := qs.Usage(context.Background(), "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Used)
	assert.Zero(t, usage.Pending)
}

func TestRecorderPublishesEvent(t *testing.T) {
	pub := &recordingPublisher{}
	rec := NewRecorder(&fakeQuota{}, scancache.NewGate(scancache.NewMemoryStore(), 0), pub)
	rec.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

	ctx := WithRequestID(context.Background(), "req-1")
	err := rec.Record(ctx, Attempt{
		AnalysisID:  "a-9",
		TenantID:    "clinic-2",
		UserID:      "u-1",
		Fingerprint: "fp",
		Reservation: quota.Reservation{ID: "r-1", WouldIncurCharge: true},
		Result:      fusion.Result{Tier: fusion.TierPrimary, OverallScore: 80, AIPowered: true, AICostUSD: decimal.RequireFromString("0.02")},
	})
	require.NoError(t, err)
	require.Len(t, pub.events, 1)

	evt := pub.events[0]
	assert.Equal(t, "a-9", evt.AnalysisID)
	assert.Equal(t, "req-1", evt.RequestID)
	assert.Equal(t, "clinic-2", evt.TenantID)
	assert.Equal(t, fusion.TierPrimary.String(), evt.Tier)
	assert.True(t, evt.Successful)
	assert.True(t, evt.Charged)
	assert.Equal(t, "0.02", evt.AICostUSD)
	assert.Equal(t, "2026-03-01T09:00:00Z", evt.CompletedAt)
}

func TestRecorderReportsCommitFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("queue down")}
	rec := NewRecorder(&failingCommitQuota{}, scancache.NewGate(scancache.NewMemoryStore(), 0), pub)

	err := rec.Record(context.Background(), Attempt{TenantID: "clinic-1", Result: fusion.Result{Tier: fusion.TierPrimary}})
	require.ErrorIs(t, err, quota.ErrQuotaUnavailable)
	assert.Len(t, pub.events, 1)
}

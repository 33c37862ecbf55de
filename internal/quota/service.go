package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"skinscan-backend/internal/shared/metrics"
)

const defaultRecordsLimit = 50

type store interface {
	Reserve(ctx context.Context, res Reservation, plan Plan, now time.Time) (Reservation, error)
	Commit(ctx context.Context, reservationID string, rec UsageRecord, now time.Time) (UsageRecord, bool, error)
	Release(ctx context.Context, reservationID string, now time.Time) (bool, error)
	Ledger(ctx context.Context, tenantID string, plan Plan, now time.Time) (Ledger, error)
	Reset(ctx context.Context, tenantID string, plan Plan, now time.Time) (Ledger, error)
	Records(ctx context.Context, tenantID string, limit int) ([]UsageRecord, error)
}

// Service is the quota gate. Reads and writes that fail at the store
// surface as ErrQuotaUnavailable so callers fail closed.
type Service struct {
	store       store
	defaultPlan Plan
	now         func() time.Time
	newID       func() string
}

// NewService constructs a Service with an in-memory store.
func NewService(defaultPlan string) *Service {
	return newService(newMemoryStore(), defaultPlan)
}

// NewPostgresService constructs a Service backed by Postgres.
func NewPostgresService(pgStore *PGStore, defaultPlan string) *Service {
	return newService(pgStore, defaultPlan)
}

func newService(s store, defaultPlan string) *Service {
	plan, ok := PlanByName(defaultPlan)
	if !ok {
		plan, _ = PlanByName(DefaultPlan)
	}
	return &Service{
		store:       s,
		defaultPlan: plan,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.NewString() },
	}
}

// Reserve checks the tenant's remaining quota and, when allowed, holds one
// pending unit. A denied reservation carries no ID and holds nothing.
func (s *Service) Reserve(ctx context.Context, tenantID, scanType string) (Reservation, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Reservation{}, errors.New("tenant id is required")
	}
	res, err := s.store.Reserve(ctx, Reservation{ID: s.newID(), TenantID: tenantID, ScanType: scanType}, s.defaultPlan, s.now())
	if err != nil {
		metrics.IncQuotaDecision("error")
		return Reservation{}, unavailable(err)
	}
	switch {
	case !res.Allowed:
		metrics.IncQuotaDecision("denied")
	case res.WouldIncurCharge:
		metrics.IncQuotaDecision("overage")
	default:
		metrics.IncQuotaDecision("allowed")
	}
	return res, nil
}

// Commit consumes the reservation's unit and appends a usage record.
// Committing the same reservation again is a no-op.
func (s *Service) Commit(ctx context.Context, res Reservation, out Outcome) error {
	if !res.Allowed || res.ID == "" {
		return nil
	}
	rec := UsageRecord{
		ID:            s.newID(),
		TenantID:      res.TenantID,
		UserID:        out.UserID,
		ReservationID: res.ID,
		ScanType:      res.ScanType,
		Successful:    out.Successful,
		Tier:          out.Tier,
		AICostUSD:     out.AICostUSD,
	}
	if _, _, err := s.store.Commit(ctx, res.ID, rec, s.now()); err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			return err
		}
		return unavailable(err)
	}
	return nil
}

// Release refunds a pending reservation without touching Used.
func (s *Service) Release(ctx context.Context, res Reservation) error {
	if !res.Allowed || res.ID == "" {
		return nil
	}
	if _, err := s.store.Release(ctx, res.ID, s.now()); err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			return err
		}
		return unavailable(err)
	}
	return nil
}

// Usage returns the tenant's current-period snapshot, provisioning the
// default plan for unknown tenants.
func (s *Service) Usage(ctx context.Context, tenantID string) (Usage, error) {
	l, err := s.store.Ledger(ctx, tenantID, s.defaultPlan, s.now())
	if err != nil {
		return Usage{}, unavailable(err)
	}
	return usageOf(l), nil
}

// Reset zeroes the tenant's period counters and starts a new period.
func (s *Service) Reset(ctx context.Context, tenantID string) (Usage, error) {
	l, err := s.store.Reset(ctx, tenantID, s.defaultPlan, s.now())
	if err != nil {
		return Usage{}, unavailable(err)
	}
	return usageOf(l), nil
}

// Records lists the tenant's most recent usage records, newest first.
func (s *Service) Records(ctx context.Context, tenantID string, limit int) ([]UsageRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultRecordsLimit
	}
	recs, err := s.store.Records(ctx, tenantID, limit)
	if err != nil {
		return nil, unavailable(err)
	}
	return recs, nil
}

func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrQuotaUnavailable, err)
}

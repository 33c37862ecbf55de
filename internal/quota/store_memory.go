package quota

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type reservationRow struct {
	Reservation
	Status string
}

// memoryStore serializes every ledger mutation behind one mutex.
type memoryStore struct {
	mu           sync.Mutex
	ledgers      map[string]Ledger
	reservations map[string]reservationRow
	records      map[string][]UsageRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		ledgers:      make(map[string]Ledger),
		reservations: make(map[string]reservationRow),
		records:      make(map[string][]UsageRecord),
	}
}

// ensure returns the tenant's ledger, provisioning and rolling it over.
// Callers hold mu.
func (s *memoryStore) ensure(tenantID string, plan Plan, now time.Time) Ledger {
	l, ok := s.ledgers[tenantID]
	if !ok {
		l = newLedger(tenantID, plan, now)
	}
	rollover(&l, now)
	s.ledgers[tenantID] = l
	return l
}

func (s *memoryStore) Reserve(ctx context.Context, res Reservation, plan Plan, now time.Time) (Reservation, error) {
	if err := ctx.Err(); err != nil {
		return Reservation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.ensure(res.TenantID, plan, now)
	allowed, remaining, charge := decide(l)
	res.Allowed = allowed
	res.Remaining = remaining
	res.WouldIncurCharge = charge
	res.EstimatedCost = decimal.Zero
	if charge {
		res.EstimatedCost = l.OverageRate
	}
	if !allowed {
		res.ID = ""
		return res, nil
	}
	l.Pending++
	s.ledgers[res.TenantID] = l
	s.reservations[res.ID] = reservationRow{Reservation: res, Status: StatusPending}
	return res, nil
}

func (s *memoryStore) Commit(ctx context.Context, reservationID string, rec UsageRecord, now time.Time) (UsageRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return UsageRecord{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.reservations[reservationID]
	if !ok {
		return UsageRecord{}, false, ErrReservationNotFound
	}
	if row.Status != StatusPending {
		return UsageRecord{}, false, nil
	}
	l, ok := s.ledgers[row.TenantID]
	if !ok {
		return UsageRecord{}, false, ErrReservationNotFound
	}
	rollover(&l, now)
	rec.OverageCost = settle(&l)
	rec.CreatedAt = now
	s.ledgers[row.TenantID] = l

	row.Status = StatusCommitted
	s.reservations[reservationID] = row
	s.records[row.TenantID] = append(s.records[row.TenantID], rec)
	return rec, true, nil
}

func (s *memoryStore) Release(ctx context.Context, reservationID string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.reservations[reservationID]
	if !ok {
		return false, ErrReservationNotFound
	}
	if row.Status != StatusPending {
		return false, nil
	}
	l := s.ledgers[row.TenantID]
	rollover(&l, now)
	if l.Pending > 0 {
		l.Pending--
	}
	s.ledgers[row.TenantID] = l
	row.Status = StatusReleased
	s.reservations[reservationID] = row
	return true, nil
}

func (s *memoryStore) Ledger(ctx context.Context, tenantID string, plan Plan, now time.Time) (Ledger, error) {
	if err := ctx.Err(); err != nil {
		return Ledger{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensure(tenantID, plan, now), nil
}

func (s *memoryStore) Reset(ctx context.Context, tenantID string, plan Plan, now time.Time) (Ledger, error) {
	if err := ctx.Err(); err != nil {
		return Ledger{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.ensure(tenantID, plan, now)
	l.Used = 0
	l.AccruedOverage = decimal.Zero
	l.ResetAt = NextReset(now)
	s.ledgers[tenantID] = l
	return l, nil
}

func (s *memoryStore) Records(ctx context.Context, tenantID string, limit int) ([]UsageRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.records[tenantID]
	recs := make([]UsageRecord, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		recs = append(recs, src[i])
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

package quota

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PGStore keeps ledgers in Postgres. Every mutation runs in a transaction
// holding the tenant's ledger row lock.
type PGStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed quota store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{DB: db}
}

func (s *PGStore) Reserve(ctx context.Context, res Reservation, plan Plan, now time.Time) (out Reservation, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Reservation{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	l, err := s.lockAndEnsure(ctx, tx, res.TenantID, plan, now)
	if err != nil {
		return Reservation{}, err
	}
	dirty := rollover(&l, now)

	allowed, remaining, charge := decide(l)
	res.Allowed = allowed
	res.Remaining = remaining
	res.WouldIncurCharge = charge
	res.EstimatedCost = decimal.Zero
	if charge {
		res.EstimatedCost = l.OverageRate
	}
	if allowed {
		l.Pending++
		dirty = true
	} else {
		res.ID = ""
	}
	if dirty {
		if err = saveLedger(ctx, tx, l); err != nil {
			return Reservation{}, err
		}
	}
	if allowed {
		if _, err = tx.ExecContext(ctx, `
INSERT INTO quota_reservations (id, tenant_id, scan_type, status, overage, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
			res.ID, res.TenantID, res.ScanType, StatusPending, res.WouldIncurCharge, now); err != nil {
			return Reservation{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return Reservation{}, err
	}
	return res, nil
}

func (s *PGStore) Commit(ctx context.Context, reservationID string, rec UsageRecord, now time.Time) (out UsageRecord, applied bool, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return UsageRecord{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	tenantID, status, err := lockReservation(ctx, tx, reservationID)
	if err != nil {
		return UsageRecord{}, false, err
	}
	if status != StatusPending {
		err = tx.Commit()
		return UsageRecord{}, false, err
	}
	l, err := lockLedger(ctx, tx, tenantID)
	if err != nil {
		return UsageRecord{}, false, err
	}
	rollover(&l, now)
	rec.OverageCost = settle(&l)
	rec.CreatedAt = now
	if err = saveLedger(ctx, tx, l); err != nil {
		return UsageRecord{}, false, err
	}
	if err = finalize(ctx, tx, reservationID, StatusCommitted, now); err != nil {
		return UsageRecord{}, false, err
	}
	if _, err = tx.ExecContext(ctx, `
INSERT INTO usage_records (id, tenant_id, user_id, reservation_id, scan_type, successful, tier, overage_cost, ai_cost_usd, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, tenantID, rec.UserID, reservationID, rec.ScanType, rec.Successful, rec.Tier, rec.OverageCost, rec.AICostUSD, rec.CreatedAt); err != nil {
		return UsageRecord{}, false, err
	}
	if err = tx.Commit(); err != nil {
		return UsageRecord{}, false, err
	}
	rec.TenantID = tenantID
	return rec, true, nil
}

func (s *PGStore) Release(ctx context.Context, reservationID string, now time.Time) (applied bool, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	tenantID, status, err := lockReservation(ctx, tx, reservationID)
	if err != nil {
		return false, err
	}
	if status != StatusPending {
		err = tx.Commit()
		return false, err
	}
	l, err := lockLedger(ctx, tx, tenantID)
	if err != nil {
		return false, err
	}
	rollover(&l, now)
	if l.Pending > 0 {
		l.Pending--
	}
	if err = saveLedger(ctx, tx, l); err != nil {
		return false, err
	}
	if err = finalize(ctx, tx, reservationID, StatusReleased, now); err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PGStore) Ledger(ctx context.Context, tenantID string, plan Plan, now time.Time) (l Ledger, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Ledger{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	l, err = s.lockAndEnsure(ctx, tx, tenantID, plan, now)
	if err != nil {
		return Ledger{}, err
	}
	if rollover(&l, now) {
		if err = saveLedger(ctx, tx, l); err != nil {
			return Ledger{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return Ledger{}, err
	}
	return l, nil
}

func (s *PGStore) Reset(ctx context.Context, tenantID string, plan Plan, now time.Time) (l Ledger, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Ledger{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	l, err = s.lockAndEnsure(ctx, tx, tenantID, plan, now)
	if err != nil {
		return Ledger{}, err
	}
	l.Used = 0
	l.AccruedOverage = decimal.Zero
	l.ResetAt = NextReset(now)
	if err = saveLedger(ctx, tx, l); err != nil {
		return Ledger{}, err
	}
	if err = tx.Commit(); err != nil {
		return Ledger{}, err
	}
	return l, nil
}

func (s *PGStore) Records(ctx context.Context, tenantID string, limit int) ([]UsageRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, tenant_id, user_id, reservation_id, scan_type, successful, tier, overage_cost, ai_cost_usd, created_at
FROM usage_records WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs := []UsageRecord{}
	for rows.Next() {
		var r UsageRecord
		if err := rows.Scan(&r.ID, &r.TenantID, &r.UserID, &r.ReservationID, &r.ScanType, &r.Successful, &r.Tier, &r.OverageCost, &r.AICostUSD, &r.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *PGStore) lockAndEnsure(ctx context.Context, tx *sql.Tx, tenantID string, plan Plan, now time.Time) (Ledger, error) {
	fresh := newLedger(tenantID, plan, now)
	if _, err := tx.ExecContext(ctx, `
INSERT INTO quota_ledgers (tenant_id, plan, monthly_quota, used, pending, reset_at, allow_overage, overage_rate, accrued_overage)
VALUES ($1, $2, $3, 0, 0, $4, $5, $6, 0)
ON CONFLICT (tenant_id) DO NOTHING`,
		fresh.TenantID, fresh.Plan, fresh.MonthlyQuota, fresh.ResetAt, fresh.AllowOverage, fresh.OverageRate); err != nil {
		return Ledger{}, err
	}
	return lockLedger(ctx, tx, tenantID)
}

func lockLedger(ctx context.Context, tx *sql.Tx, tenantID string) (Ledger, error) {
	l := Ledger{TenantID: tenantID}
	err := tx.QueryRowContext(ctx, `
SELECT plan, monthly_quota, used, pending, reset_at, allow_overage, overage_rate, accrued_overage
FROM quota_ledgers WHERE tenant_id = $1 FOR UPDATE`, tenantID).
		Scan(&l.Plan, &l.MonthlyQuota, &l.Used, &l.Pending, &l.ResetAt, &l.AllowOverage, &l.OverageRate, &l.AccruedOverage)
	if err != nil {
		return Ledger{}, err
	}
	return l, nil
}

func saveLedger(ctx context.Context, tx *sql.Tx, l Ledger) error {
	_, err := tx.ExecContext(ctx, `
UPDATE quota_ledgers
SET used = $1, pending = $2, reset_at = $3, accrued_overage = $4, updated_at = now()
WHERE tenant_id = $5`, l.Used, l.Pending, l.ResetAt, l.AccruedOverage, l.TenantID)
	return err
}

func lockReservation(ctx context.Context, tx *sql.Tx, id string) (tenantID, status string, err error) {
	err = tx.QueryRowContext(ctx, `
SELECT tenant_id, status FROM quota_reservations WHERE id = $1 FOR UPDATE`, id).Scan(&tenantID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrReservationNotFound
	}
	return tenantID, status, err
}

func finalize(ctx context.Context, tx *sql.Tx, id, status string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
UPDATE quota_reservations SET status = $1, finalized_at = $2 WHERE id = $3`, status, now, id)
	return err
}

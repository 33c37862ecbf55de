package quota

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
)

var ledgerColumns = []string{"plan", "monthly_quota", "used", "pending", "reset_at", "allow_overage", "overage_rate", "accrued_overage"}

func TestPGStoreReserveHoldsPendingUnit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	resetAt := NextReset(now)
	plan, _ := PlanByName("basic")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO quota_ledgers").
		WithArgs("clinic-1", "basic", 50, resetAt, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT plan, monthly_quota, used, pending, reset_at, allow_overage, overage_rate, accrued_overage FROM quota_ledgers").
		WithArgs("clinic-1").
		WillReturnRows(sqlmock.NewRows(ledgerColumns).AddRow("basic", 50, 10, 2, resetAt, false, "75", "0"))
	mock.ExpectExec("UPDATE quota_ledgers").
		WithArgs(10, 3, resetAt, sqlmock.AnyArg(), "clinic-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO quota_reservations").
		WithArgs("res-1", "clinic-1", "detailed", StatusPending, false, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := NewPGStore(db).Reserve(context.Background(), Reservation{ID: "res-1", TenantID: "clinic-1", ScanType: "detailed"}, plan, now)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if !res.Allowed || res.Remaining != 38 {
		t.Fatalf("unexpected reservation %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreReserveDeniedWritesNothing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	plan, _ := PlanByName("basic")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO quota_ledgers").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM quota_ledgers").
		WithArgs("clinic-1").
		WillReturnRows(sqlmock.NewRows(ledgerColumns).AddRow("basic", 50, 50, 0, NextReset(now), false, "75", "0"))
	mock.ExpectCommit()

	res, err := NewPGStore(db).Reserve(context.Background(), Reservation{ID: "res-1", TenantID: "clinic-1"}, plan, now)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if res.Allowed || res.ID != "" || !res.EstimatedCost.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("expected denial, got %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGStoreCommitIsIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT tenant_id, status FROM quota_reservations").
		WithArgs("res-1").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "status"}).AddRow("clinic-1", StatusCommitted))
	mock.ExpectCommit()

	_, applied, err := NewPGStore(db).Commit(context.Background(), "res-1", UsageRecord{ID: "rec-1"}, time.Now())
	if err != nil || applied {
		t.Fatalf("expected no-op commit, got applied=%v err=%v", applied, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

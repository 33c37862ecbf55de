package analyses

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"skinscan-backend/internal/fusion"
)

func TestPGRepoCreateDenormalizesResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	analysis := Analysis{
		ID:          "6f1c5c9e-8a57-4f0e-9b53-5b8a9d3f6c11",
		TenantID:    "clinic-1",
		UserID:      "staff-7",
		CustomerID:  "cust-1",
		Age:         30,
		Fingerprint: "abc",
		ImageKey:    "scans/clinic-1/a.png",
		Result:      fusion.Result{Tier: fusion.TierPrimary, OverallScore: 78, SkinAge: 31, Confidence: fusion.ConfidencePrimary},
		CreatedAt:   time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO skin_analyses").
		WithArgs(
			analysis.ID,
			analysis.TenantID,
			analysis.UserID,
			analysis.CustomerID,
			int64(analysis.Age),
			analysis.Fingerprint,
			"primary",
			int64(78),
			int64(31),
			fusion.ConfidencePrimary,
			false,
			analysis.ImageKey,
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), analysis); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	payload, _ := json.Marshal(fusion.Result{Tier: fusion.TierSignals, OverallScore: 63})
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM skin_analyses WHERE id").
		WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "user_id", "customer_id", "age", "fingerprint", "image_key", "result", "created_at"}).
			AddRow("a-1", "clinic-1", "", "", 35, "fp", "", payload, now))
	mock.ExpectQuery("SELECT (.+) FROM skin_analyses WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	repo := &PGRepo{DB: db}
	got, err := repo.GetByID(context.Background(), "a-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Result.Tier != fusion.TierSignals || got.Result.OverallScore != 63 || got.Age != 35 {
		t.Fatalf("unexpected analysis %+v", got)
	}

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestMemoryRepoListNewestFirst(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := repo.Create(ctx, Analysis{ID: id, TenantID: "clinic-1", CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	_ = repo.Create(ctx, Analysis{ID: "other", TenantID: "clinic-2", CreatedAt: base})

	got, err := repo.ListByTenant(ctx, "clinic-1", 2, 0)
	if err != nil {
		t.Fatalf("ListByTenant: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("unexpected order %+v", got)
	}

	got, _ = repo.ListByTenant(ctx, "clinic-1", 2, 5)
	if len(got) != 0 {
		t.Fatalf("expected empty page past end, got %d", len(got))
	}
}

package scancache

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGStore keeps records in the scan_cache table.
type PGStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed cache store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{DB: db}
}

func (s *PGStore) Get(ctx context.Context, fingerprint string) (Record, error) {
	var rec Record
	err := s.DB.QueryRowContext(ctx, `
SELECT fingerprint, tenant_id, result, quota_saved, created_at, expires_at
FROM scan_cache WHERE fingerprint = $1`, fingerprint).
		Scan(&rec.Fingerprint, &rec.TenantID, &rec.Payload, &rec.QuotaSaved, &rec.CreatedAt, &rec.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *PGStore) Put(ctx context.Context, rec Record) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO scan_cache (fingerprint, tenant_id, result, quota_saved, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (fingerprint) DO UPDATE SET
  tenant_id = EXCLUDED.tenant_id,
  result = EXCLUDED.result,
  quota_saved = EXCLUDED.quota_saved,
  created_at = EXCLUDED.created_at,
  expires_at = EXCLUDED.expires_at`,
		rec.Fingerprint, rec.TenantID, rec.Payload, rec.QuotaSaved, rec.CreatedAt, rec.ExpiresAt)
	return err
}

func (s *PGStore) Stats(ctx context.Context, now time.Time) (Stats, error) {
	var st Stats
	err := s.DB.QueryRowContext(ctx, `
SELECT COUNT(*), COUNT(*) FILTER (WHERE expires_at > $1)
FROM scan_cache`, now).Scan(&st.TotalEntries, &st.ActiveEntries)
	if err != nil {
		return Stats{}, err
	}
	st.ExpiredEntries = st.TotalEntries - st.ActiveEntries
	return st, nil
}

func (s *PGStore) Purge(ctx context.Context, now time.Time) (int, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM scan_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

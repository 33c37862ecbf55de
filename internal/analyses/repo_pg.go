package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// PGRepo implements Repo using the skin_analyses table.
type PGRepo struct {
	DB *sql.DB
}

const selectColumns = `id, tenant_id, user_id, customer_id, age, fingerprint, image_key, result, created_at`

// Create inserts a new analysis. Scalar result fields are denormalized for
// reporting queries; the full result lives in the result column.
func (r *PGRepo) Create(ctx context.Context, analysis Analysis) error {
	const query = `
INSERT INTO skin_analyses (
	id, tenant_id, user_id, customer_id, age, fingerprint, tier, overall_score,
	skin_age, confidence, used_cache, image_key, result, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	payload, err := marshalJSONB(analysis.Result)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		analysis.ID,
		analysis.TenantID,
		analysis.UserID,
		analysis.CustomerID,
		analysis.Age,
		analysis.Fingerprint,
		analysis.Result.Tier.String(),
		analysis.Result.OverallScore,
		analysis.Result.SkinAge,
		analysis.Result.Confidence,
		analysis.Result.UsedCache,
		analysis.ImageKey,
		payload,
		analysis.CreatedAt,
	)
	return err
}

// GetByID returns an analysis by ID.
func (r *PGRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM skin_analyses WHERE id = $1 LIMIT 1`, analysisID)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Analysis{}, ErrNotFound
	}
	return a, err
}

// ListByTenant returns a clinic's analyses, newest first.
func (r *PGRepo) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.DB.QueryContext(ctx, `
SELECT `+selectColumns+`
FROM skin_analyses
WHERE tenant_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(s scanner) (Analysis, error) {
	var a Analysis
	var payload []byte
	if err := s.Scan(&a.ID, &a.TenantID, &a.UserID, &a.CustomerID, &a.Age, &a.Fingerprint, &a.ImageKey, &payload, &a.CreatedAt); err != nil {
		return Analysis{}, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &a.Result); err != nil {
			return Analysis{}, err
		}
	}
	return a, nil
}

func marshalJSONB(value any) ([]byte, error) {
	if value == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(value)
}

package analyses

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// MemoryRepo keeps analyses in process. Each clinic's slice is kept sorted
// newest first on insert so listing is a plain slice window.
type MemoryRepo struct {
	mu       sync.RWMutex
	byID     map[string]Analysis
	byTenant map[string][]string
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: map[string]Analysis{}, byTenant: map[string][]string{}}
}

func (r *MemoryRepo) Create(ctx context.Context, a Analysis) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byID[a.ID]; dup {
		r.byID[a.ID] = a
		return nil
	}
	r.byID[a.ID] = a

	ids := r.byTenant[a.TenantID]
	at := sort.Search(len(ids), func(i int) bool {
		return !r.byID[ids[i]].CreatedAt.After(a.CreatedAt)
	})
	r.byTenant[a.TenantID] = slices.Insert(ids, at, a.ID)
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.byID[analysisID]; ok {
		return a, nil
	}
	return Analysis{}, ErrNotFound
}

func (r *MemoryRepo) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byTenant[tenantID]
	offset = max(offset, 0)
	if offset >= len(ids) {
		return []Analysis{}, nil
	}
	end := len(ids)
	if limit > 0 {
		end = min(end, offset+limit)
	}
	out := make([]Analysis, 0, end-offset)
	for _, id := range ids[offset:end] {
		out = append(out, r.byID[id])
	}
	return out, nil
}

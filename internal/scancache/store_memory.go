package scancache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Record
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Record)}
}

func (s *MemoryStore) Get(ctx context.Context, fingerprint string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	rec, ok := s.data[fingerprint]
	s.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Put(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[rec.Fingerprint] = rec
	return nil
}

func (s *MemoryStore) Stats(ctx context.Context, now time.Time) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{TotalEntries: len(s.data)}
	for _, rec := range s.data {
		if now.Before(rec.ExpiresAt) {
			st.ActiveEntries++
		} else {
			st.ExpiredEntries++
		}
	}
	return st, nil
}

func (s *MemoryStore) Purge(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for fp, rec := range s.data {
		if !now.Before(rec.ExpiresAt) {
			delete(s.data, fp)
			n++
		}
	}
	return n, nil
}

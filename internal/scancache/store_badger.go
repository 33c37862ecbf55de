package scancache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var badgerPrefix = []byte("scan:")

// BadgerStore keeps records in an embedded badger database using native
// entry TTLs.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens or creates a badger database in dir. An empty dir opens
// an in-memory database.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func badgerKey(fingerprint string) []byte {
	return append(append([]byte(nil), badgerPrefix...), fingerprint...)
}

func (s *BadgerStore) Get(ctx context.Context, fingerprint string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(fingerprint))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *BadgerStore) Put(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// The gate stamps both times from its own clock.
	ttl := rec.ExpiresAt.Sub(rec.CreatedAt)
	if ttl <= 0 {
		return nil
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(badgerKey(rec.Fingerprint), val).WithTTL(ttl))
	})
}

// Stats counts live keys. Badger hides expired keys, so ExpiredEntries
// only reflects keys whose record expiry passed before their TTL.
func (s *BadgerStore) Stats(ctx context.Context, now time.Time) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	var st Stats
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: badgerPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			st.TotalEntries++
			expires := time.Unix(int64(it.Item().ExpiresAt()), 0)
			if now.Before(expires) {
				st.ActiveEntries++
			} else {
				st.ExpiredEntries++
			}
		}
		return nil
	})
	return st, err
}

// Purge lets badger reclaim expired values. Keys expire on their own, so
// the count is always zero.
func (s *BadgerStore) Purge(ctx context.Context, _ time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.db.Opts().InMemory {
		return 0, nil
	}
	if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return 0, err
	}
	return 0, nil
}

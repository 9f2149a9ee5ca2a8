package ledger

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

// PebbleStore provides Pebble-based persistence for ledger records.
// Every write is synced; a settled digest must survive a crash.
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens a Pebble database at the given path
func NewPebbleStore(dbPath string) (*PebbleStore, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(32 << 20), // 32MB cache
		MemTableSize: 16 << 20,
		MaxOpenFiles: 500,
		BytesPerSync: 512 << 10,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) Get(digest common.Hash) (*Record, error) {
	data, closer, err := s.db.Get(orderKey(digest))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	defer closer.Close()

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s: %w", digest.Hex(), err)
	}
	return &rec, nil
}

// Commit writes all entries in a single pebble batch
func (s *PebbleStore) Commit(entries []Entry) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, e := range entries {
		data, err := json.Marshal(e.Record)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		if err := batch.Set(orderKey(e.Digest), data, nil); err != nil {
			return fmt.Errorf("failed to stage record: %w", err)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (s *PebbleStore) Cutoff(offerer common.Address) (uint64, error) {
	data, closer, err := s.db.Get(cutoffKey(offerer))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get cutoff: %w", err)
	}
	defer closer.Close()

	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt cutoff for %s: %d bytes", offerer.Hex(), len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func (s *PebbleStore) SetCutoff(offerer common.Address, at uint64) error {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], at)
	if err := s.db.Set(cutoffKey(offerer), v[:], pebble.Sync); err != nil {
		return fmt.Errorf("failed to save cutoff: %w", err)
	}
	return nil
}

func (s *PebbleStore) Iterate(fn func(common.Hash, Record) bool) error {
	prefix := []byte(prefixOrder)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		digest, err := digestFromOrderKey(iter.Key())
		if err != nil {
			continue // Skip foreign keys
		}
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return fmt.Errorf("failed to unmarshal record %s: %w", digest.Hex(), err)
		}
		if !fn(digest, rec) {
			break
		}
	}
	return iter.Error()
}

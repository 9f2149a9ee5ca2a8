package ledger

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Store persists ledger records and cancel-all cutoffs.
// Implementations need not serialize check-and-set; Ledger does that.
type Store interface {
	// Get returns the record for digest, or nil if none was ever written
	Get(digest common.Hash) (*Record, error)
	// Commit writes all entries atomically: either every entry is visible or none is
	Commit(entries []Entry) error
	// Cutoff returns the offerer's cancel-all cutoff (0 if never set)
	Cutoff(offerer common.Address) (uint64, error)
	SetCutoff(offerer common.Address, at uint64) error
	// Iterate visits every stored record until fn returns false
	Iterate(fn func(digest common.Hash, rec Record) bool) error
	Close() error
}

// MemoryStore is an in-memory Store for tests and ephemeral nodes
type MemoryStore struct {
	mu      sync.RWMutex
	records map[common.Hash]Record
	cutoffs map[common.Address]uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[common.Hash]Record),
		cutoffs: make(map[common.Address]uint64),
	}
}

func (m *MemoryStore) Get(digest common.Hash) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[digest]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Commit(entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.records[e.Digest] = e.Record
	}
	return nil
}

func (m *MemoryStore) Cutoff(offerer common.Address) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cutoffs[offerer], nil
}

func (m *MemoryStore) SetCutoff(offerer common.Address, at uint64) error {
	m.mu.Lock()
	m.cutoffs[offerer] = at
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Iterate(fn func(common.Hash, Record) bool) error {
	m.mu.RLock()
	snapshot := make([]Entry, 0, len(m.records))
	for d, r := range m.records {
		snapshot = append(snapshot, Entry{Digest: d, Record: r})
	}
	m.mu.RUnlock()

	for _, e := range snapshot {
		if !fn(e.Digest, e.Record) {
			break
		}
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrAlreadyFinalized is returned for any transition out of Settled or Canceled
	ErrAlreadyFinalized = errors.New("order already finalized")
	// ErrInvalidTransition is returned when the target status is not terminal
	ErrInvalidTransition = errors.New("invalid ledger transition")
	// ErrDuplicateDigest is returned when one atomic write names a digest twice
	ErrDuplicateDigest = errors.New("duplicate digest in transition")
)

// Change is one requested Open -> terminal transition
type Change struct {
	Digest common.Hash
	To     Status
	By     common.Address
	Ref    string
}

// Ledger is the replay-protection state machine over a Store.
// Reads and check-and-set writes are serialized by one mutex, so two
// transitions on the same digest are always totally ordered.
type Ledger struct {
	mu    sync.Mutex
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// Status returns the digest's status; absent records are Open
func (l *Ledger) Status(digest common.Hash) (Status, error) {
	rec, err := l.Record(digest)
	if err != nil {
		return Open, err
	}
	return rec.Status, nil
}

// Record returns the stored record, or an Open record if none exists
func (l *Ledger) Record(digest common.Hash) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, err := l.store.Get(digest)
	if err != nil {
		return Record{}, err
	}
	if rec == nil {
		return Record{Status: Open}, nil
	}
	return *rec, nil
}

// Transition moves a single digest from Open to a terminal status
func (l *Ledger) Transition(at uint64, c Change) error {
	return l.TransitionAll(at, []Change{c})
}

// TransitionAll applies every change or none of them. It fails with
// ErrAlreadyFinalized (wrapped with the offending digest) if any digest is
// already terminal, and with ErrDuplicateDigest if a digest repeats.
func (l *Ledger) TransitionAll(at uint64, changes []Change) error {
	if len(changes) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[common.Hash]struct{}, len(changes))
	entries := make([]Entry, 0, len(changes))
	for _, c := range changes {
		if !c.To.Terminal() {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Digest.Hex(), c.To)
		}
		if _, dup := seen[c.Digest]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateDigest, c.Digest.Hex())
		}
		seen[c.Digest] = struct{}{}

		rec, err := l.store.Get(c.Digest)
		if err != nil {
			return err
		}
		if rec != nil && rec.Status.Terminal() {
			return fmt.Errorf("%w: %s is %s", ErrAlreadyFinalized, c.Digest.Hex(), rec.Status)
		}
		entries = append(entries, Entry{
			Digest: c.Digest,
			Record: Record{Status: c.To, UpdatedAt: at, By: c.By, Ref: c.Ref},
		})
	}

	return l.store.Commit(entries)
}

// Cutoff returns the offerer's cancel-all cutoff. Orders created at or before
// it are void.
func (l *Ledger) Cutoff(offerer common.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Cutoff(offerer)
}

// CancelAll voids every order the offerer created at or before at.
// Cutoffs only move forward; the effective cutoff is returned.
func (l *Ledger) CancelAll(offerer common.Address, at uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, err := l.store.Cutoff(offerer)
	if err != nil {
		return 0, err
	}
	if at <= current {
		return current, nil
	}
	if err := l.store.SetCutoff(offerer, at); err != nil {
		return 0, err
	}
	return at, nil
}

// Counts tallies stored records by status
func (l *Ledger) Counts() (map[Status]int, error) {
	counts := map[Status]int{Settled: 0, Canceled: 0}
	err := l.store.Iterate(func(_ common.Hash, rec Record) bool {
		counts[rec.Status]++
		return true
	})
	return counts, err
}

func (l *Ledger) Close() error {
	return l.store.Close()
}

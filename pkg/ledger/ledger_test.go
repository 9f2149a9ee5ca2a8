package ledger

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// forEachStore runs fn against the in-memory and the Pebble store
func forEachStore(t *testing.T, fn func(t *testing.T, newStore func() Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, func() Store { return NewMemoryStore() })
	})
	t.Run("pebble", func(t *testing.T) {
		fn(t, func() Store {
			s, err := NewPebbleStore(t.TempDir())
			if err != nil {
				t.Fatalf("NewPebbleStore: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		})
	})
}

var (
	d1     = common.HexToHash("0x01")
	d2     = common.HexToHash("0x02")
	d3     = common.HexToHash("0x03")
	alice  = common.HexToAddress("0xa11ce00000000000000000000000000000000000")
	bobbie = common.HexToAddress("0xb0b0000000000000000000000000000000000000")
)

func TestAbsentIsOpen(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore func() Store) {
		l := New(newStore())
		st, err := l.Status(d1)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if st != Open {
			t.Errorf("status = %s, want open", st)
		}
	})
}

func TestTransitionOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore func() Store) {
		l := New(newStore())

		if err := l.Transition(100, Change{Digest: d1, To: Settled, By: bobbie, Ref: "r1"}); err != nil {
			t.Fatalf("first transition: %v", err)
		}
		rec, err := l.Record(d1)
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
		if rec.Status != Settled || rec.UpdatedAt != 100 || rec.By != bobbie || rec.Ref != "r1" {
			t.Errorf("record = %+v", rec)
		}

		for _, to := range []Status{Settled, Canceled} {
			err := l.Transition(101, Change{Digest: d1, To: to})
			if !errors.Is(err, ErrAlreadyFinalized) {
				t.Errorf("second transition to %s: err = %v, want ErrAlreadyFinalized", to, err)
			}
		}

		// the first write stands
		rec, _ = l.Record(d1)
		if rec.Status != Settled || rec.UpdatedAt != 100 {
			t.Errorf("record mutated after finalization: %+v", rec)
		}
	})
}

func TestTransitionToOpenRejected(t *testing.T) {
	l := New(NewMemoryStore())
	if err := l.Transition(1, Change{Digest: d1, To: Open}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestTransitionAllAtomic(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore func() Store) {
		l := New(newStore())
		if err := l.Transition(1, Change{Digest: d2, To: Canceled}); err != nil {
			t.Fatalf("setup: %v", err)
		}

		err := l.TransitionAll(2, []Change{
			{Digest: d1, To: Settled},
			{Digest: d2, To: Settled},
			{Digest: d3, To: Settled},
		})
		if !errors.Is(err, ErrAlreadyFinalized) {
			t.Fatalf("err = %v, want ErrAlreadyFinalized", err)
		}
		for _, d := range []common.Hash{d1, d3} {
			if st, _ := l.Status(d); st != Open {
				t.Errorf("%s = %s after failed batch, want open", d.Hex(), st)
			}
		}

		err = l.TransitionAll(3, []Change{
			{Digest: d1, To: Settled},
			{Digest: d1, To: Settled},
		})
		if !errors.Is(err, ErrDuplicateDigest) {
			t.Fatalf("err = %v, want ErrDuplicateDigest", err)
		}
		if st, _ := l.Status(d1); st != Open {
			t.Errorf("d1 = %s after duplicate batch, want open", st)
		}

		if err := l.TransitionAll(4, []Change{{Digest: d1, To: Settled}, {Digest: d3, To: Settled}}); err != nil {
			t.Fatalf("TransitionAll: %v", err)
		}
		for _, d := range []common.Hash{d1, d3} {
			if st, _ := l.Status(d); st != Settled {
				t.Errorf("%s = %s, want settled", d.Hex(), st)
			}
		}
	})
}

func TestConcurrentTransitionsSerialize(t *testing.T) {
	l := New(NewMemoryStore())

	const workers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := Settled
			if i%2 == 0 {
				to = Canceled
			}
			if err := l.Transition(uint64(i), Change{Digest: d1, To: to}); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !errors.Is(err, ErrAlreadyFinalized) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("successes = %d, want exactly 1", successes)
	}
}

func TestCancelAllCutoff(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore func() Store) {
		l := New(newStore())

		if c, _ := l.Cutoff(alice); c != 0 {
			t.Fatalf("initial cutoff = %d, want 0", c)
		}

		got, err := l.CancelAll(alice, 500)
		if err != nil {
			t.Fatalf("CancelAll: %v", err)
		}
		if got != 500 {
			t.Errorf("effective cutoff = %d, want 500", got)
		}

		// moving backwards is a no-op
		got, _ = l.CancelAll(alice, 400)
		if got != 500 {
			t.Errorf("cutoff moved backwards to %d", got)
		}
		if c, _ := l.Cutoff(alice); c != 500 {
			t.Errorf("stored cutoff = %d, want 500", c)
		}

		if c, _ := l.Cutoff(bobbie); c != 0 {
			t.Errorf("unrelated offerer cutoff = %d, want 0", c)
		}
	})
}

func TestCounts(t *testing.T) {
	forEachStore(t, func(t *testing.T, newStore func() Store) {
		l := New(newStore())
		_ = l.TransitionAll(1, []Change{{Digest: d1, To: Settled}, {Digest: d2, To: Settled}})
		_ = l.Transition(2, Change{Digest: d3, To: Canceled})

		counts, err := l.Counts()
		if err != nil {
			t.Fatalf("Counts: %v", err)
		}
		if counts[Settled] != 2 || counts[Canceled] != 1 {
			t.Errorf("counts = %v, want 2 settled / 1 canceled", counts)
		}
	})
}

func TestPebblePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	l := New(s)
	if err := l.Transition(7, Change{Digest: d1, To: Canceled, By: alice}); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if _, err := l.CancelAll(alice, 99); err != nil {
		t.Fatalf("CancelAll: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	l2 := New(s2)

	rec, err := l2.Record(d1)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.Status != Canceled || rec.By != alice || rec.UpdatedAt != 7 {
		t.Errorf("record after reopen = %+v", rec)
	}
	if c, _ := l2.Cutoff(alice); c != 99 {
		t.Errorf("cutoff after reopen = %d, want 99", c)
	}
	if err := l2.Transition(8, Change{Digest: d1, To: Settled}); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("err = %v, want ErrAlreadyFinalized", err)
	}
}

func TestRecordJSON(t *testing.T) {
	b, err := json.Marshal(Record{Status: Settled, UpdatedAt: 5})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Record
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", b, err)
	}
	if out.Status != Settled {
		t.Errorf("status = %s, want settled", out.Status)
	}
	if err := json.Unmarshal([]byte(`{"status":"lost"}`), &out); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestKeys(t *testing.T) {
	d, err := digestFromOrderKey(orderKey(d3))
	if err != nil {
		t.Fatalf("digestFromOrderKey: %v", err)
	}
	if d != d3 {
		t.Errorf("digest = %s, want %s", d.Hex(), d3.Hex())
	}
	if _, err := digestFromOrderKey([]byte("ord:0x12")); err == nil {
		t.Error("expected error for short key")
	}
	if got := string(keyUpperBound([]byte("ord:"))); got != "ord;" {
		t.Errorf("upper bound = %q, want %q", got, "ord;")
	}
}

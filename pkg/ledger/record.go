package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Status is the lifecycle state of an order digest
type Status uint8

const (
	Open Status = iota // implicit: no record stored
	Settled
	Canceled
)

func (s Status) String() string {
	switch s {
	case Open:
		return "open"
	case Settled:
		return "settled"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Terminal reports whether no further transition is allowed out of s
func (s Status) Terminal() bool { return s == Settled || s == Canceled }

func (s Status) MarshalText() ([]byte, error) {
	switch s {
	case Open, Settled, Canceled:
		return []byte(s.String()), nil
	}
	return nil, fmt.Errorf("unknown status %d", uint8(s))
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "open":
		*s = Open
	case "settled":
		*s = Settled
	case "canceled":
		*s = Canceled
	default:
		return fmt.Errorf("unknown status %q", b)
	}
	return nil
}

// Record is the persisted ledger entry for one digest
type Record struct {
	Status    Status         `json:"status"`
	UpdatedAt uint64         `json:"updated_at,omitempty"` // engine time of the transition
	By        common.Address `json:"by"`                   // taker or canceller
	Ref       string         `json:"ref,omitempty"`        // receipt id
}

// Entry pairs a digest with the record to write for it
type Entry struct {
	Digest common.Hash
	Record Record
}

package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema
//
//	ord:{digest}   -> Record (JSON)
//	cut:{address}  -> cancel-all cutoff, 8-byte big endian unix seconds
const (
	prefixOrder  = "ord:"
	prefixCutoff = "cut:"
)

// orderKey returns the key for an order record
// Format: "ord:{digest}"
// Example: "ord:0x3f1c...e9"
func orderKey(digest common.Hash) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixOrder, digest.Hex()))
}

// cutoffKey returns the key for an offerer's cancel-all cutoff
// Format: "cut:{address}"
func cutoffKey(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixCutoff, addr.Hex()))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
// Example: prefix "ord:" -> upper bound "ord;" (next byte after ':')
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// digestFromOrderKey is the inverse of orderKey
func digestFromOrderKey(key []byte) (common.Hash, error) {
	if len(key) != len(prefixOrder)+2+2*common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid order key length: %d", len(key))
	}
	return common.HexToHash(string(key[len(prefixOrder):])), nil
}

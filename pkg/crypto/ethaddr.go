// file: pkg/crypto/ethaddr.go
package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// ParseAddress normalizes a hex address given in any of the usual forms.
// All-lowercase and all-uppercase input is accepted as is; mixed case must
// carry a valid EIP-55 checksum so a mistyped address is not silently accepted.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	body := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(body) != 2*common.AddressLength {
		return common.Address{}, fmt.Errorf("invalid address length: %q", s)
	}
	raw, err := hex.DecodeString(body)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid address hex %q: %w", s, err)
	}

	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		if EIP55(raw) != "0x"+body {
			return common.Address{}, fmt.Errorf("bad EIP-55 checksum: %q", s)
		}
	}
	return common.BytesToAddress(raw), nil
}

// EIP55 computes the checksummed hex address string from 20-byte raw address.
func EIP55(addr20 []byte) string {
	hexaddr := hex.EncodeToString(addr20) // lower
	// keccak of lowercase hex
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(hexaddr))
	hash := h.Sum(nil)

	out := make([]byte, 2+len(hexaddr))
	copy(out, "0x")
	for i, c := range []byte(hexaddr) {
		if c >= '0' && c <= '9' {
			out[2+i] = c
			continue
		}
		// each hex char maps to 4 bits; i>>1 picks the byte, even/odd picks the nibble
		nibble := hash[i>>1] & 0x0f
		if i%2 == 0 {
			nibble = hash[i>>1] >> 4
		}
		if nibble >= 8 {
			out[2+i] = c - 'a' + 'A'
		} else {
			out[2+i] = c
		}
	}
	return string(out)
}

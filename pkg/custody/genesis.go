package custody

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/uhyunpark/marketsettle/pkg/crypto"
	"github.com/uhyunpark/marketsettle/pkg/transaction"
)

// NativeDecimals is the precision of the native currency
const NativeDecimals = 18

// Genesis seeds custody for a devnet node. Amounts are human units
// ("1.5"); approvals are granted to the registry's operator.
//
//	{
//	  "native": {"0xA11CE...": "100"},
//	  "collections": [{"address": "0xC0...", "name": "Punks",
//	                   "owners": {"1": "0xA11CE..."}, "approved": ["0xA11CE..."]}],
//	  "tokens": [{"address": "0xE2...", "symbol": "WETH", "decimals": 18,
//	              "balances": {"0xB0B...": "10"}, "allowances": {"0xB0B...": "10"}}]
//	}
type Genesis struct {
	Native      map[string]string   `json:"native"`
	Collections []GenesisCollection `json:"collections"`
	Tokens      []GenesisToken      `json:"tokens"`
}

type GenesisCollection struct {
	Address  string            `json:"address"`
	Name     string            `json:"name"`
	Owners   map[string]string `json:"owners"` // instance id -> owner
	Approved []string          `json:"approved"`
}

type GenesisToken struct {
	Address    string            `json:"address"`
	Symbol     string            `json:"symbol"`
	Decimals   int32             `json:"decimals"`
	Balances   map[string]string `json:"balances"`
	Allowances map[string]string `json:"allowances"`
}

// LoadGenesis reads a genesis file
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis: %w", err)
	}
	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse genesis %s: %w", path, err)
	}
	return &g, nil
}

// Apply mints everything the genesis describes into reg and vault
func (g *Genesis) Apply(reg *Registry, vault *Vault) error {
	for addr, amount := range g.Native {
		holder, err := crypto.ParseAddress(addr)
		if err != nil {
			return fmt.Errorf("native %s: %w", addr, err)
		}
		v, err := transaction.ParseUnits(amount, NativeDecimals)
		if err != nil {
			return fmt.Errorf("native %s: %w", addr, err)
		}
		vault.Credit(holder, v)
	}

	for _, gc := range g.Collections {
		addr, err := crypto.ParseAddress(gc.Address)
		if err != nil {
			return fmt.Errorf("collection %q: %w", gc.Name, err)
		}
		c := reg.AddCollection(addr, gc.Name)
		for id, owner := range gc.Owners {
			instance, ok := new(big.Int).SetString(id, 10)
			if !ok || instance.Sign() < 0 {
				return fmt.Errorf("collection %q: invalid instance id %q", gc.Name, id)
			}
			holder, err := crypto.ParseAddress(owner)
			if err != nil {
				return fmt.Errorf("collection %q #%s: %w", gc.Name, id, err)
			}
			if err := c.Mint(holder, instance); err != nil {
				return err
			}
		}
		for _, owner := range gc.Approved {
			holder, err := crypto.ParseAddress(owner)
			if err != nil {
				return fmt.Errorf("collection %q approval: %w", gc.Name, err)
			}
			c.SetApprovalForAll(holder, reg.Operator(), true)
		}
	}

	for _, gt := range g.Tokens {
		addr, err := crypto.ParseAddress(gt.Address)
		if err != nil {
			return fmt.Errorf("token %q: %w", gt.Symbol, err)
		}
		t := reg.AddToken(addr, gt.Symbol, gt.Decimals)
		for owner, amount := range gt.Balances {
			holder, err := crypto.ParseAddress(owner)
			if err != nil {
				return fmt.Errorf("token %q balance: %w", gt.Symbol, err)
			}
			v, err := transaction.ParseUnits(amount, gt.Decimals)
			if err != nil {
				return fmt.Errorf("token %q balance of %s: %w", gt.Symbol, owner, err)
			}
			t.Mint(holder, v)
		}
		for owner, amount := range gt.Allowances {
			holder, err := crypto.ParseAddress(owner)
			if err != nil {
				return fmt.Errorf("token %q allowance: %w", gt.Symbol, err)
			}
			v, err := transaction.ParseUnits(amount, gt.Decimals)
			if err != nil {
				return fmt.Errorf("token %q allowance of %s: %w", gt.Symbol, owner, err)
			}
			t.Approve(holder, reg.Operator(), v)
		}
	}
	return nil
}

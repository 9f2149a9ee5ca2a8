package custody

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Vault holds native currency balances. The operator's own balance is the
// engine pool: deposits go in, payouts come out, fees stay.
type Vault struct {
	mu       sync.RWMutex
	operator common.Address
	balances map[common.Address]*big.Int
}

func NewVault(operator common.Address) *Vault {
	return &Vault{operator: operator, balances: make(map[common.Address]*big.Int)}
}

// Credit adds native balance out of thin air (genesis, faucet)
func (v *Vault) Credit(to common.Address, amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[to] = new(big.Int).Add(v.balance(to), amount)
}

func (v *Vault) BalanceOf(_ context.Context, owner common.Address) (*big.Int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return new(big.Int).Set(v.balance(owner)), nil
}

// Pool returns the operator's balance
func (v *Vault) Pool() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return new(big.Int).Set(v.balance(v.operator))
}

func (v *Vault) Deposit(_ context.Context, from common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.move(from, v.operator, amount)
}

func (v *Vault) Send(_ context.Context, to common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.move(v.operator, to, amount)
}

func (v *Vault) move(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("negative amount %s", amount)
	}
	bal := v.balance(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from.Hex(), bal, amount)
	}
	v.balances[from] = new(big.Int).Sub(bal, amount)
	v.balances[to] = new(big.Int).Add(v.balance(to), amount)
	return nil
}

func (v *Vault) balance(owner common.Address) *big.Int {
	if b, ok := v.balances[owner]; ok {
		return b
	}
	return new(big.Int)
}

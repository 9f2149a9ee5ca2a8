package custody

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Token is an in-memory ERC-20-like ledger. TransferFrom spends the
// allowance granted to the operator it was created for.
type Token struct {
	mu         sync.RWMutex
	address    common.Address
	symbol     string
	decimals   int32
	operator   common.Address
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

func NewToken(address common.Address, symbol string, decimals int32, operator common.Address) *Token {
	return &Token{
		address:    address,
		symbol:     symbol,
		decimals:   decimals,
		operator:   operator,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (t *Token) Address() common.Address { return t.address }
func (t *Token) Symbol() string          { return t.symbol }
func (t *Token) Decimals() int32         { return t.decimals }

func (t *Token) Mint(to common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[to] = new(big.Int).Add(t.balance(to), amount)
}

func (t *Token) Approve(owner, spender common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]*big.Int)
	}
	t.allowances[owner][spender] = new(big.Int).Set(amount)
}

func (t *Token) BalanceOf(_ context.Context, owner common.Address) (*big.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.balance(owner)), nil
}

func (t *Token) Allowance(_ context.Context, owner, spender common.Address) (*big.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.allowance(owner, spender)), nil
}

func (t *Token) TransferFrom(_ context.Context, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("negative amount %s", amount)
	}
	if amount.Sign() == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := t.allowance(from, t.operator)
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allows %s, needs %s", ErrAllowanceExceeded, from.Hex(), allowed, amount)
	}
	bal := t.balance(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientFunds, from.Hex(), bal, t.symbol, amount)
	}

	t.allowances[from][t.operator] = new(big.Int).Sub(allowed, amount)
	t.balances[from] = new(big.Int).Sub(bal, amount)
	t.balances[to] = new(big.Int).Add(t.balance(to), amount)
	return nil
}

func (t *Token) balance(owner common.Address) *big.Int {
	if b, ok := t.balances[owner]; ok {
		return b
	}
	return new(big.Int)
}

func (t *Token) allowance(owner, spender common.Address) *big.Int {
	if a, ok := t.allowances[owner][spender]; ok {
		return a
	}
	return new(big.Int)
}

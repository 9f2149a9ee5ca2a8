package custody

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNonexistentToken  = errors.New("nonexistent token")
	ErrNotOwner          = errors.New("transfer from incorrect owner")
	ErrNotApproved       = errors.New("operator not approved")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrAllowanceExceeded = errors.New("insufficient allowance")
	ErrAlreadyMinted     = errors.New("token already minted")
)

// Collection is an in-memory ERC-721-like ledger. TransferFrom acts on
// behalf of the operator it was created for.
type Collection struct {
	mu        sync.RWMutex
	address   common.Address
	name      string
	operator  common.Address
	owners    map[string]common.Address // instance id (decimal) -> owner
	balances  map[common.Address]int64
	approvals map[common.Address]map[common.Address]bool
}

func NewCollection(address common.Address, name string, operator common.Address) *Collection {
	return &Collection{
		address:   address,
		name:      name,
		operator:  operator,
		owners:    make(map[string]common.Address),
		balances:  make(map[common.Address]int64),
		approvals: make(map[common.Address]map[common.Address]bool),
	}
}

func (c *Collection) Address() common.Address { return c.address }
func (c *Collection) Name() string            { return c.name }

func (c *Collection) Mint(to common.Address, instanceID *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := instanceID.String()
	if _, ok := c.owners[id]; ok {
		return fmt.Errorf("%w: %s #%s", ErrAlreadyMinted, c.name, id)
	}
	c.owners[id] = to
	c.balances[to]++
	return nil
}

func (c *Collection) SetApprovalForAll(owner, operator common.Address, approved bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.approvals[owner] == nil {
		c.approvals[owner] = make(map[common.Address]bool)
	}
	c.approvals[owner][operator] = approved
}

func (c *Collection) OwnerOf(_ context.Context, instanceID *big.Int) (common.Address, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	owner, ok := c.owners[instanceID.String()]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s #%s", ErrNonexistentToken, c.name, instanceID)
	}
	return owner, nil
}

func (c *Collection) IsApprovedForAll(_ context.Context, owner, operator common.Address) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.approvals[owner][operator], nil
}

func (c *Collection) BalanceOf(_ context.Context, owner common.Address) (*big.Int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return big.NewInt(c.balances[owner]), nil
}

func (c *Collection) TransferFrom(_ context.Context, from, to common.Address, instanceID *big.Int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := instanceID.String()
	owner, ok := c.owners[id]
	if !ok {
		return fmt.Errorf("%w: %s #%s", ErrNonexistentToken, c.name, id)
	}
	if owner != from {
		return fmt.Errorf("%w: %s #%s", ErrNotOwner, c.name, id)
	}
	if !c.approvals[from][c.operator] {
		return fmt.Errorf("%w: %s for %s", ErrNotApproved, c.operator.Hex(), from.Hex())
	}

	c.owners[id] = to
	c.balances[from]--
	c.balances[to]++
	return nil
}

package custody

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/marketsettle/pkg/settlement"
)

var ErrUnknownAsset = errors.New("asset not registered")

// Registry maps asset addresses to in-memory ledgers, all bound to one operator
type Registry struct {
	mu          sync.RWMutex
	operator    common.Address
	collections map[common.Address]*Collection
	tokens      map[common.Address]*Token
}

func NewRegistry(operator common.Address) *Registry {
	return &Registry{
		operator:    operator,
		collections: make(map[common.Address]*Collection),
		tokens:      make(map[common.Address]*Token),
	}
}

func (r *Registry) Operator() common.Address { return r.operator }

// AddCollection creates (or returns the existing) collection at address
func (r *Registry) AddCollection(address common.Address, name string) *Collection {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.collections[address]; ok {
		return c
	}
	c := NewCollection(address, name, r.operator)
	r.collections[address] = c
	return c
}

// AddToken creates (or returns the existing) token at address
func (r *Registry) AddToken(address common.Address, symbol string, decimals int32) *Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[address]; ok {
		return t
	}
	t := NewToken(address, symbol, decimals, r.operator)
	r.tokens[address] = t
	return t
}

func (r *Registry) Collection(address common.Address) (*Collection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collections[address]
	return c, ok
}

func (r *Registry) Token(address common.Address) (*Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[address]
	return t, ok
}

func (r *Registry) NonFungible(asset common.Address) (settlement.NonFungibleLedger, error) {
	if c, ok := r.Collection(asset); ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: collection %s", ErrUnknownAsset, asset.Hex())
}

func (r *Registry) Fungible(asset common.Address) (settlement.FungibleLedger, error) {
	if t, ok := r.Token(asset); ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: token %s", ErrUnknownAsset, asset.Hex())
}

// Parameters is a thread-safe administrative fee store
type Parameters struct {
	mu     sync.RWMutex
	params settlement.FeeParameters
}

func NewParameters(p settlement.FeeParameters) (*Parameters, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Parameters{params: p}, nil
}

func (p *Parameters) FeeParameters(context.Context) (settlement.FeeParameters, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.params, nil
}

// Set replaces the fee parameters; outstanding orders settle under the new ones
func (p *Parameters) Set(params settlement.FeeParameters) error {
	if err := params.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.params = params
	p.mu.Unlock()
	return nil
}

package settlement

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/marketsettle/pkg/crypto"
)

// NonFungibleLedger is one NFT collection's custody ledger, as seen by the
// engine's operator address.
type NonFungibleLedger interface {
	OwnerOf(ctx context.Context, instanceID *big.Int) (common.Address, error)
	// TransferFrom moves an instance on the operator's behalf
	TransferFrom(ctx context.Context, from, to common.Address, instanceID *big.Int) error
	IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error)
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
}

// FungibleLedger is one token's custody ledger; TransferFrom spends the
// operator's allowance.
type FungibleLedger interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error
}

// AssetRegistry resolves order asset addresses to custody ledgers
type AssetRegistry interface {
	NonFungible(asset common.Address) (NonFungibleLedger, error)
	Fungible(asset common.Address) (FungibleLedger, error)
}

// NativeVault accepts value sent with a call and forwards it.
// Deposit moves value from the caller into the engine pool; Send pays out of it.
type NativeVault interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Deposit(ctx context.Context, from common.Address, amount *big.Int) error
	Send(ctx context.Context, to common.Address, amount *big.Int) error
}

// ParameterStore is the administrative fee configuration
type ParameterStore interface {
	FeeParameters(ctx context.Context) (FeeParameters, error)
}

// DomainProvider supplies the signing domain. *crypto.Encoder satisfies it.
type DomainProvider interface {
	Domain() crypto.Domain
}

// Observer is notified of every engine outcome (metrics)
type Observer interface {
	ObserveReceipt(r *Receipt)
	ObserveRejection(op Operation, err error)
}

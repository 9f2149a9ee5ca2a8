package order

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MaxBps is the basis-point denominator (100%).
const MaxBps = 10000

// ErrMalformedOrder is returned when a field is outside its declared domain.
var ErrMalformedOrder = errors.New("malformed order")

// ItemKind tags one side of a trade.
// Wire values match the deployed client enum (NFT, ERC20, ETH).
type ItemKind uint8

const (
	NonFungibleAsset ItemKind = iota
	FungibleToken
	NativeCurrency
)

func (k ItemKind) String() string {
	switch k {
	case NonFungibleAsset:
		return "non_fungible"
	case FungibleToken:
		return "fungible"
	case NativeCurrency:
		return "native"
	default:
		return "unknown"
	}
}

func (k ItemKind) valid() bool { return k <= NativeCurrency }

// Kind selects the fulfillment branch of an order.
type Kind uint8

const (
	DirectSale      Kind = iota // NFT for native currency
	TargetedOffer               // fungible token for a specific NFT instance
	CollectionOffer             // fungible token for any instance of a collection
)

func (k Kind) String() string {
	switch k {
	case DirectSale:
		return "direct_sale"
	case TargetedOffer:
		return "targeted_offer"
	case CollectionOffer:
		return "collection_offer"
	default:
		return "unknown"
	}
}

func (k Kind) valid() bool { return k <= CollectionOffer }

// Item is one side of a trade.
// InstanceID is only meaningful for NonFungibleAsset; nil encodes as 0.
type Item struct {
	Kind       ItemKind
	Asset      common.Address
	InstanceID *big.Int
	Amount     *big.Int
}

// Instance returns the instance id, treating nil as 0.
func (it Item) Instance() *big.Int {
	if it.InstanceID == nil {
		return new(big.Int)
	}
	return it.InstanceID
}

// Order is the offerer's signed statement of intent.
type Order struct {
	Offerer         common.Address
	Kind            Kind
	Offer           Item
	Consideration   Item
	RoyaltyReceiver common.Address
	RoyaltyRateBps  uint64
	StartTime       uint64 // unix seconds, inclusive
	EndTime         uint64 // unix seconds, exclusive
	CreatedTime     uint64
}

// NFTSide returns the non-fungible side of the order and whether it is the offer.
func (o *Order) NFTSide() (Item, bool) {
	if o.Offer.Kind == NonFungibleAsset {
		return o.Offer, true
	}
	return o.Consideration, false
}

// Validate checks every field against its declared domain.
// It does not check that the item kinds fit the order kind; settlement
// operations reject mismatched shapes on their own.
func (o *Order) Validate() error {
	if o == nil {
		return fmt.Errorf("%w: nil order", ErrMalformedOrder)
	}
	if !o.Kind.valid() {
		return fmt.Errorf("%w: unknown order kind %d", ErrMalformedOrder, o.Kind)
	}
	if o.RoyaltyRateBps > MaxBps {
		return fmt.Errorf("%w: royalty rate %d bps exceeds %d", ErrMalformedOrder, o.RoyaltyRateBps, MaxBps)
	}
	if o.RoyaltyRateBps > 0 && o.RoyaltyReceiver == (common.Address{}) {
		return fmt.Errorf("%w: royalty rate set without a receiver", ErrMalformedOrder)
	}
	if o.StartTime >= o.EndTime {
		return fmt.Errorf("%w: start time %d not before end time %d", ErrMalformedOrder, o.StartTime, o.EndTime)
	}
	if err := validateItem("offer", o.Offer); err != nil {
		return err
	}
	if err := validateItem("consideration", o.Consideration); err != nil {
		return err
	}
	if o.Kind == CollectionOffer {
		nft, _ := o.NFTSide()
		if nft.Kind == NonFungibleAsset && nft.Instance().Sign() != 0 {
			return fmt.Errorf("%w: collection offer must not bind an instance", ErrMalformedOrder)
		}
	}
	return nil
}

func validateItem(side string, it Item) error {
	if !it.Kind.valid() {
		return fmt.Errorf("%w: %s has unknown item kind %d", ErrMalformedOrder, side, it.Kind)
	}
	if it.Amount == nil || it.Amount.Sign() < 0 {
		return fmt.Errorf("%w: %s amount must be a non-negative integer", ErrMalformedOrder, side)
	}
	if it.InstanceID != nil && it.InstanceID.Sign() < 0 {
		return fmt.Errorf("%w: %s instance id is negative", ErrMalformedOrder, side)
	}
	// the signed layout declares both as uint256
	if it.Amount.BitLen() > 256 {
		return fmt.Errorf("%w: %s amount exceeds uint256", ErrMalformedOrder, side)
	}
	if it.Instance().BitLen() > 256 {
		return fmt.Errorf("%w: %s instance id exceeds uint256", ErrMalformedOrder, side)
	}

	switch it.Kind {
	case NonFungibleAsset:
		if it.Amount.Cmp(big.NewInt(1)) != 0 {
			return fmt.Errorf("%w: %s non-fungible amount must be 1, got %s", ErrMalformedOrder, side, it.Amount)
		}
		if it.Asset == (common.Address{}) {
			return fmt.Errorf("%w: %s non-fungible asset address is zero", ErrMalformedOrder, side)
		}
	case FungibleToken:
		if it.Asset == (common.Address{}) {
			return fmt.Errorf("%w: %s token address is zero", ErrMalformedOrder, side)
		}
		if it.Instance().Sign() != 0 {
			return fmt.Errorf("%w: %s fungible item carries an instance id", ErrMalformedOrder, side)
		}
	case NativeCurrency:
		if it.Asset != (common.Address{}) {
			return fmt.Errorf("%w: %s native item carries an asset address", ErrMalformedOrder, side)
		}
		if it.Instance().Sign() != 0 {
			return fmt.Errorf("%w: %s native item carries an instance id", ErrMalformedOrder, side)
		}
	}
	return nil
}

// Clone returns a deep copy so callers can mutate big.Int fields safely.
func (o *Order) Clone() *Order {
	c := *o
	c.Offer = cloneItem(o.Offer)
	c.Consideration = cloneItem(o.Consideration)
	return &c
}

func cloneItem(it Item) Item {
	out := it
	if it.InstanceID != nil {
		out.InstanceID = new(big.Int).Set(it.InstanceID)
	}
	if it.Amount != nil {
		out.Amount = new(big.Int).Set(it.Amount)
	}
	return out
}

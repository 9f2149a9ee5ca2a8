package transaction

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/marketsettle/pkg/crypto"
	"github.com/uhyunpark/marketsettle/pkg/order"
)

// ItemPayload is the wire form of one side of a trade
type ItemPayload struct {
	ItemType     uint8  `json:"item_type"`            // 0=NFT, 1=ERC20, 2=native
	TokenAddress string `json:"token_address"`        // 0x... (empty for native)
	Identifier   string `json:"identifier,omitempty"` // BigInt as string (NFT only)
	Amount       string `json:"amount"`               // BigInt as string
}

// OrderPayload contains order data for EIP-712 signing
type OrderPayload struct {
	Offerer         string      `json:"offerer"`
	OrderType       uint8       `json:"order_type"` // 0=direct sale, 1=targeted offer, 2=collection offer
	Offer           ItemPayload `json:"offer"`
	Consideration   ItemPayload `json:"consideration"`
	RoyaltyReceiver string      `json:"royalty_receiver"`
	RoyaltyBps      uint64      `json:"royalty_bps"`
	StartTime       uint64      `json:"start_time"` // Unix seconds
	EndTime         uint64      `json:"end_time"`
	CreatedTime     uint64      `json:"created_time"`
}

// AuthPayload proves who is calling: an Authorization signed by Caller
type AuthPayload struct {
	Caller    string `json:"caller"`
	Signature string `json:"signature"`
}

// SettleRequest settles one direct sale, targeted offer or collection offer
type SettleRequest struct {
	Order      OrderPayload `json:"order"`
	Signature  string       `json:"signature"`             // offerer's order signature
	Value      string       `json:"value,omitempty"`       // native value sent (direct sale)
	InstanceID string       `json:"instance_id,omitempty"` // chosen instance (collection offer)
	Auth       AuthPayload  `json:"auth"`
}

// BatchRequest settles several direct sales atomically
type BatchRequest struct {
	Orders              []OrderPayload `json:"orders"`
	Signatures          []string       `json:"signatures"`
	RoyaltyOverridesBps []uint64       `json:"royalty_overrides_bps"`
	Value               string         `json:"value"`
	Auth                AuthPayload    `json:"auth"`
}

// CancelRequest cancels a single order
type CancelRequest struct {
	Order     OrderPayload `json:"order"`
	Signature string       `json:"signature"`
	Auth      AuthPayload  `json:"auth"`
}

// CancelAllRequest cancels every order the caller created up to now
type CancelAllRequest struct {
	Auth AuthPayload `json:"auth"`
}

// ToOrder converts the payload to an order. Addresses are checksum-checked when
// given in mixed case; numeric fields must be base-10 integers.
func (p *OrderPayload) ToOrder() (*order.Order, error) {
	offerer, err := crypto.ParseAddress(p.Offerer)
	if err != nil {
		return nil, fmt.Errorf("invalid offerer: %w", err)
	}

	offer, err := p.Offer.toItem()
	if err != nil {
		return nil, fmt.Errorf("invalid offer: %w", err)
	}
	consideration, err := p.Consideration.toItem()
	if err != nil {
		return nil, fmt.Errorf("invalid consideration: %w", err)
	}

	var royaltyReceiver common.Address
	if p.RoyaltyReceiver != "" {
		royaltyReceiver, err = crypto.ParseAddress(p.RoyaltyReceiver)
		if err != nil {
			return nil, fmt.Errorf("invalid royalty receiver: %w", err)
		}
	}

	return &order.Order{
		Offerer:         offerer,
		Kind:            order.Kind(p.OrderType),
		Offer:           offer,
		Consideration:   consideration,
		RoyaltyReceiver: royaltyReceiver,
		RoyaltyRateBps:  p.RoyaltyBps,
		StartTime:       p.StartTime,
		EndTime:         p.EndTime,
		CreatedTime:     p.CreatedTime,
	}, nil
}

func (p ItemPayload) toItem() (order.Item, error) {
	it := order.Item{Kind: order.ItemKind(p.ItemType)}

	if p.TokenAddress != "" {
		addr, err := crypto.ParseAddress(p.TokenAddress)
		if err != nil {
			return order.Item{}, fmt.Errorf("invalid token address: %w", err)
		}
		it.Asset = addr
	}

	if p.Identifier != "" {
		id, err := ParseInteger("identifier", p.Identifier)
		if err != nil {
			return order.Item{}, err
		}
		it.InstanceID = id
	}

	amount, err := ParseInteger("amount", p.Amount)
	if err != nil {
		return order.Item{}, err
	}
	it.Amount = amount
	return it, nil
}

// FromOrder converts an order to its payload
func FromOrder(o *order.Order) *OrderPayload {
	return &OrderPayload{
		Offerer:         o.Offerer.Hex(),
		OrderType:       uint8(o.Kind),
		Offer:           fromItem(o.Offer),
		Consideration:   fromItem(o.Consideration),
		RoyaltyReceiver: o.RoyaltyReceiver.Hex(),
		RoyaltyBps:      o.RoyaltyRateBps,
		StartTime:       o.StartTime,
		EndTime:         o.EndTime,
		CreatedTime:     o.CreatedTime,
	}
}

func fromItem(it order.Item) ItemPayload {
	p := ItemPayload{ItemType: uint8(it.Kind)}
	if it.Asset != (common.Address{}) {
		p.TokenAddress = it.Asset.Hex()
	}
	if it.InstanceID != nil {
		p.Identifier = it.InstanceID.String()
	}
	if it.Amount != nil {
		p.Amount = it.Amount.String()
	}
	return p
}

// ParseInteger parses a non-negative base-10 integer field
func ParseInteger(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing %s", field)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: %s", field, s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative %s: %s", field, s)
	}
	return v, nil
}

// ParseOptionalInteger is ParseInteger with "" meaning zero
func ParseOptionalInteger(field, s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	return ParseInteger(field, s)
}

// ParseUnits converts a human amount ("0.69") into base units with the given
// number of decimals. Amounts finer than one base unit are rejected.
func ParseUnits(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %q", s)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", s, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatUnits renders base units as a human amount
func FormatUnits(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// DecodeSignature decodes hex-encoded signature (with or without 0x prefix)
func DecodeSignature(sig string) ([]byte, error) {
	sig = strings.TrimPrefix(sig, "0x")

	sigBytes, err := hex.DecodeString(sig)
	if err != nil {
		return nil, fmt.Errorf("invalid hex signature: %w", err)
	}

	if len(sigBytes) != crypto.SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sigBytes))
	}

	return sigBytes, nil
}

// EncodeSignature renders a signature as 0x-prefixed hex
func EncodeSignature(sig []byte) string {
	return "0x" + hex.EncodeToString(sig)
}

// Validate performs basic validation on request structure
func (r *SettleRequest) Validate() error {
	if r.Signature == "" {
		return fmt.Errorf("missing signature")
	}
	if r.Order.Offerer == "" {
		return fmt.Errorf("missing order offerer")
	}
	return r.Auth.validate()
}

// Validate performs basic validation on request structure
func (r *BatchRequest) Validate() error {
	if len(r.Orders) == 0 {
		return fmt.Errorf("empty batch")
	}
	return r.Auth.validate()
}

// Validate performs basic validation on request structure
func (r *CancelRequest) Validate() error {
	if r.Signature == "" {
		return fmt.Errorf("missing signature")
	}
	return r.Auth.validate()
}

func (a AuthPayload) validate() error {
	if a.Caller == "" {
		return fmt.Errorf("%w: missing auth caller", ErrUnauthenticated)
	}
	if a.Signature == "" {
		return fmt.Errorf("%w: missing auth signature", ErrUnauthenticated)
	}
	return nil
}

package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/uhyunpark/marketsettle/pkg/order"
)

// Domain is the EIP-712 domain separator input.
// Folding it into every digest prevents replay across deployments and chains.
type Domain struct {
	Name              string         // Protocol name (e.g., "MarketSettle")
	Version           string         // Layout version, bumped on any schema change
	ChainID           *big.Int       // Network identifier
	VerifyingContract common.Address // Settlement engine address
}

// DefaultDomain returns the devnet domain
func DefaultDomain() Domain {
	return Domain{
		Name:              "MarketSettle",
		Version:           "1",
		ChainID:           big.NewInt(1337),
		VerifyingContract: common.Address{},
	}
}

// Typed data schema. Field order and names are part of the signed layout:
// changing anything here invalidates every outstanding signature.
var (
	domainFields = []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	}
	orderFields = []apitypes.Type{
		{Name: "offerer", Type: "address"},
		{Name: "orderType", Type: "uint8"},
		{Name: "offer", Type: "Item"},
		{Name: "consideration", Type: "Item"},
		{Name: "royaltyReceiver", Type: "address"},
		{Name: "royaltyPercentageIn10000", Type: "uint256"},
		{Name: "startTime", Type: "uint256"},
		{Name: "endTime", Type: "uint256"},
		{Name: "createdTime", Type: "uint256"},
	}
	itemFields = []apitypes.Type{
		{Name: "itemType", Type: "uint8"},
		{Name: "tokenAddress", Type: "address"},
		{Name: "identifier", Type: "uint256"},
		{Name: "amount", Type: "uint256"},
	}
	authorizationFields = []apitypes.Type{
		{Name: "action", Type: "uint8"},
		{Name: "subject", Type: "bytes32"},
		{Name: "caller", Type: "address"},
		{Name: "instanceId", Type: "uint256"},
		{Name: "value", Type: "uint256"},
	}
)

const (
	primaryOrder         = "OrderParameters"
	primaryAuthorization = "Authorization"
)

// Encoder computes EIP-712 digests for orders within one domain
type Encoder struct {
	domain Domain
}

// NewEncoder creates an encoder bound to the given domain
func NewEncoder(domain Domain) *Encoder {
	if domain.ChainID == nil {
		domain.ChainID = new(big.Int)
	}
	return &Encoder{domain: domain}
}

// Domain returns the domain the encoder hashes into every digest
func (e *Encoder) Domain() Domain {
	return e.domain
}

// ComputeDigest is the pure digest function: same order and domain, same digest.
func ComputeDigest(o *order.Order, domain Domain) (common.Hash, error) {
	return NewEncoder(domain).HashOrder(o)
}

// HashOrder validates the order and returns the digest the offerer signs.
func (e *Encoder) HashOrder(o *order.Order) (common.Hash, error) {
	if err := o.Validate(); err != nil {
		return common.Hash{}, err
	}
	return e.hash(e.OrderTypedData(o))
}

// OrderTypedData builds the typed data structure for an order.
// The caller is responsible for validating the order first.
func (e *Encoder) OrderTypedData(o *order.Order) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainFields,
			primaryOrder:   orderFields,
			"Item":         itemFields,
		},
		PrimaryType: primaryOrder,
		Domain:      e.typedDomain(),
		Message: apitypes.TypedDataMessage{
			"offerer":                  o.Offerer.Hex(),
			"orderType":                strconv.FormatUint(uint64(o.Kind), 10),
			"offer":                    itemMessage(o.Offer),
			"consideration":            itemMessage(o.Consideration),
			"royaltyReceiver":          o.RoyaltyReceiver.Hex(),
			"royaltyPercentageIn10000": strconv.FormatUint(o.RoyaltyRateBps, 10),
			"startTime":                strconv.FormatUint(o.StartTime, 10),
			"endTime":                  strconv.FormatUint(o.EndTime, 10),
			"createdTime":              strconv.FormatUint(o.CreatedTime, 10),
		},
	}
}

// itemMessage encodes absent fields as zero; the item type tag disambiguates.
func itemMessage(it order.Item) map[string]interface{} {
	amount := "0"
	if it.Amount != nil {
		amount = it.Amount.String()
	}
	return map[string]interface{}{
		"itemType":     strconv.FormatUint(uint64(it.Kind), 10),
		"tokenAddress": it.Asset.Hex(),
		"identifier":   it.Instance().String(),
		"amount":       amount,
	}
}

// SignOrder signs an order digest with the given key
func (e *Encoder) SignOrder(signer *Signer, o *order.Order) ([]byte, error) {
	digest, err := e.HashOrder(o)
	if err != nil {
		return nil, fmt.Errorf("failed to hash order: %w", err)
	}

	signature, err := signer.Sign(digest.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to sign order: %w", err)
	}
	return signature, nil
}

// RecoverOrderSigner recovers the address that signed an order
func (e *Encoder) RecoverOrderSigner(o *order.Order, signature []byte) (common.Address, error) {
	digest, err := e.HashOrder(o)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash order: %w", err)
	}
	return RecoverAddress(digest.Bytes(), signature)
}

// OrderToJSON renders the typed data for eth_signTypedData_v4 wallets
func (e *Encoder) OrderToJSON(o *order.Order) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	jsonBytes, err := json.MarshalIndent(e.OrderTypedData(o), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes), nil
}

// Action identifies what a caller authorizes the engine to do on its behalf
type Action uint8

const (
	ActionSettle Action = iota + 1
	ActionCancel
	ActionCancelAll
)

// Authorization is signed by the caller (taker or canceller) of a request.
// Subject is the order digest, or the batch digest for batch settlement.
type Authorization struct {
	Action     Action
	Subject    common.Hash
	Caller     common.Address
	InstanceID *big.Int
	Value      *big.Int
}

// HashAuthorization returns the digest of a caller authorization
func (e *Encoder) HashAuthorization(a *Authorization) (common.Hash, error) {
	if a == nil {
		return common.Hash{}, fmt.Errorf("nil authorization")
	}
	if a.Action < ActionSettle || a.Action > ActionCancelAll {
		return common.Hash{}, fmt.Errorf("unknown authorization action %d", a.Action)
	}
	instance, value := "0", "0"
	if a.InstanceID != nil {
		instance = a.InstanceID.String()
	}
	if a.Value != nil {
		value = a.Value.String()
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain":       domainFields,
			primaryAuthorization: authorizationFields,
		},
		PrimaryType: primaryAuthorization,
		Domain:      e.typedDomain(),
		Message: apitypes.TypedDataMessage{
			"action":     strconv.FormatUint(uint64(a.Action), 10),
			"subject":    a.Subject.Hex(),
			"caller":     a.Caller.Hex(),
			"instanceId": instance,
			"value":      value,
		},
	}
	return e.hash(typedData)
}

// SignAuthorization signs a caller authorization
func (e *Encoder) SignAuthorization(signer *Signer, a *Authorization) ([]byte, error) {
	digest, err := e.HashAuthorization(a)
	if err != nil {
		return nil, fmt.Errorf("failed to hash authorization: %w", err)
	}
	return signer.Sign(digest.Bytes())
}

// BatchSubject folds a list of order digests into one authorization subject
func BatchSubject(digests []common.Hash) common.Hash {
	buf := make([]byte, 0, len(digests)*common.HashLength)
	for _, d := range digests {
		buf = append(buf, d.Bytes()...)
	}
	return crypto.Keccak256Hash(buf)
}

func (e *Encoder) typedDomain() apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              e.domain.Name,
		Version:           e.domain.Version,
		ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(e.domain.ChainID)),
		VerifyingContract: e.domain.VerifyingContract.Hex(),
	}
}

// hash computes keccak256("\x19\x01" || domainSeparator || hashStruct(message))
func (e *Encoder) hash(typedData apitypes.TypedData) (common.Hash, error) {
	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash message: %w", err)
	}

	rawData := make([]byte, 0, 2+len(domainSeparator)+len(typedDataHash))
	rawData = append(rawData, 0x19, 0x01)
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, typedDataHash...)
	return crypto.Keccak256Hash(rawData), nil
}

package api

import (
	"github.com/uhyunpark/marketsettle/pkg/transaction"
)

// API request/response types for REST endpoints and WebSocket messages.
// Big integers travel as base-10 strings; *_display fields are human units.

// ==============================
// REST Response Types
// ==============================

// DomainInfo is the signing domain clients must hash orders into
type DomainInfo struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	ChainID           string `json:"chain_id"`
	VerifyingContract string `json:"verifying_contract"`
}

// FeesInfo is the fee schedule settlement applies right now
type FeesInfo struct {
	PlatformFeeBps     uint64 `json:"platform_fee_bps"`
	PremiumDiscountBps uint64 `json:"premium_discount_bps"`
	PremiumAsset       string `json:"premium_asset,omitempty"`
}

// DigestResponse is returned by POST /orders/digest
type DigestResponse struct {
	Digest string `json:"digest"`
	Status string `json:"status"` // includes the offerer's cancel-all cutoff
}

// VerifyResponse is returned by POST /orders/verify
type VerifyResponse struct {
	Digest string `json:"digest"`
	Signer string `json:"signer"`
	Valid  bool   `json:"valid"`
}

// OrderStatusInfo is the ledger record of one digest
type OrderStatusInfo struct {
	Digest    string `json:"digest"`
	Status    string `json:"status"` // "open", "settled", "canceled"
	UpdatedAt uint64 `json:"updated_at,omitempty"`
	By        string `json:"by,omitempty"`
	Receipt   string `json:"receipt,omitempty"`
}

// ReceiptInfo describes one settled or canceled order
type ReceiptInfo struct {
	ID        string `json:"id"`
	Operation string `json:"operation"`
	Digest    string `json:"digest,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Status    string `json:"status"`
	Offerer   string `json:"offerer"`
	Taker     string `json:"taker"`
	At        uint64 `json:"at"`

	Collection string `json:"collection,omitempty"`
	InstanceID string `json:"instance_id,omitempty"`

	PaymentAsset    string `json:"payment_asset,omitempty"` // empty for native currency
	RoyaltyReceiver string `json:"royalty_receiver,omitempty"`
	Amount          string `json:"amount,omitempty"`
	AmountDisplay   string `json:"amount_display,omitempty"`
	Royalty         string `json:"royalty,omitempty"`
	PlatformFee     string `json:"platform_fee,omitempty"`
	SellerProceeds  string `json:"seller_proceeds,omitempty"`
	BuyerCashback   string `json:"buyer_cashback,omitempty"`

	Cutoff uint64 `json:"cutoff,omitempty"` // cancel-all only
}

// BatchResponse lists the receipts of a settled batch in request order
type BatchResponse struct {
	Receipts []ReceiptInfo `json:"receipts"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Settled  int    `json:"settled"`
	Canceled int    `json:"canceled"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"` // stable code, e.g. "OrderExpired"
	Message string `json:"message"`
	Index   *int   `json:"index,omitempty"` // failing sub-order of a batch
}

// ==============================
// REST Request Types
// ==============================

// OrderRequest carries an unsigned order (POST /orders/digest)
type OrderRequest struct {
	Order transaction.OrderPayload `json:"order"`
}

// VerifyRequest is the payload for POST /orders/verify.
// Signer defaults to the order's offerer.
type VerifyRequest struct {
	Order     transaction.OrderPayload `json:"order"`
	Signature string                   `json:"signature"`
	Signer    string                   `json:"signer,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSMessage is the base structure for all WebSocket messages
type WSMessage struct {
	Type string      `json:"type"` // "receipt", "subscribed", "unsubscribed"
	Data interface{} `json:"data"` // Type-specific payload
}

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["orders", "orders:0xabc..."]
}

// ReceiptUpdate is broadcast on "orders" and "orders:<offerer>" when an
// order settles or is canceled
type ReceiptUpdate struct {
	Type    string      `json:"type"` // "receipt"
	Receipt ReceiptInfo `json:"receipt"`
}

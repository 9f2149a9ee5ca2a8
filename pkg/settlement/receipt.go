package settlement

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/uhyunpark/marketsettle/pkg/ledger"
	"github.com/uhyunpark/marketsettle/pkg/order"
)

// Operation names an engine entrypoint
type Operation string

const (
	OpDirectSale      Operation = "settle_direct_sale"
	OpTargetedOffer   Operation = "settle_targeted_offer"
	OpCollectionOffer Operation = "settle_collection_offer"
	OpBatch           Operation = "settle_batch"
	OpCancel          Operation = "cancel_order"
	OpCancelAll       Operation = "cancel_all_orders"
)

// Receipt describes one finalized ledger transition and the transfers it caused
type Receipt struct {
	ID        string
	Operation Operation
	Digest    common.Hash
	Kind      order.Kind
	Status    ledger.Status
	Offerer   common.Address
	Taker     common.Address // canceller for cancellations

	// NFT moved
	Collection common.Address
	InstanceID *big.Int

	// Payment split; PaymentAsset is zero for native currency
	PaymentAsset    common.Address
	RoyaltyReceiver common.Address
	Split           Split

	Cutoff uint64 // cancel-all only
	At     uint64
}

func newReceipt(op Operation, at uint64) *Receipt {
	return &Receipt{ID: uuid.NewString(), Operation: op, At: at}
}

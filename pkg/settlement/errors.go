package settlement

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/marketsettle/pkg/ledger"
	"github.com/uhyunpark/marketsettle/pkg/order"
)

// Error taxonomy. Every rejection wraps exactly one of these; match with errors.Is.
var (
	ErrMalformedOrder                       = order.ErrMalformedOrder
	ErrInvalidSignatureOrSigner             = errors.New("invalid signature or incorrect signer")
	ErrOrderAlreadyClaimedOrCanceled        = errors.New("order already claimed or canceled")
	ErrOrderNotStartedYet                   = errors.New("order is not started yet")
	ErrOrderExpired                         = errors.New("order is expired")
	ErrOwnerMismatch                        = errors.New("asset owner mismatch")
	ErrIncorrectPaymentValue                = errors.New("incorrect payment value")
	ErrInsufficientAllowanceOrBalance       = errors.New("insufficient balance/allowance to complete transaction")
	ErrUnsupportedOrderTypeForThisOperation = errors.New("unsupported order type for this operation")
	ErrUnauthorized                         = errors.New("caller is not the offerer")
	ErrBatchLengthMismatch                  = errors.New("batch length mismatch")
	ErrBatchAtomicityViolation              = errors.New("batch rejected: sub-order failed")
	ErrOrderAlreadyFinalized                = ledger.ErrAlreadyFinalized

	// ErrNotApprovedForAll: the NFT holder has not approved the engine as operator
	ErrNotApprovedForAll = errors.New("engine not approved for collection")
	// ErrUnknownAsset: no custody ledger is registered for an order's asset address
	ErrUnknownAsset = errors.New("unknown asset")
	// ErrInvalidFeeParameters: the administrative store returned rates out of range
	ErrInvalidFeeParameters = errors.New("invalid fee parameters")
)

// BatchError reports which sub-order aborted a batch. It matches both
// ErrBatchAtomicityViolation and the sub-order's own cause.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%v: order %d: %v", ErrBatchAtomicityViolation, e.Index, e.Err)
}

func (e *BatchError) Unwrap() []error {
	return []error{ErrBatchAtomicityViolation, e.Err}
}

// codes are checked in order; batch-level codes win over the sub-order cause
var codes = []struct {
	err  error
	code string
}{
	{ErrBatchLengthMismatch, "BatchLengthMismatch"},
	{ErrBatchAtomicityViolation, "BatchAtomicityViolation"},
	{ErrMalformedOrder, "MalformedOrder"},
	{ErrInvalidSignatureOrSigner, "InvalidSignatureOrSigner"},
	{ErrOrderAlreadyClaimedOrCanceled, "OrderAlreadyClaimedOrCanceled"},
	{ErrOrderAlreadyFinalized, "OrderAlreadyFinalized"},
	{ErrOrderNotStartedYet, "OrderNotStartedYet"},
	{ErrOrderExpired, "OrderExpired"},
	{ErrOwnerMismatch, "OwnerMismatch"},
	{ErrIncorrectPaymentValue, "IncorrectPaymentValue"},
	{ErrInsufficientAllowanceOrBalance, "InsufficientAllowanceOrBalance"},
	{ErrUnsupportedOrderTypeForThisOperation, "UnsupportedOrderTypeForThisOperation"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrNotApprovedForAll, "NotApprovedForAll"},
	{ErrUnknownAsset, "UnknownAsset"},
	{ErrInvalidFeeParameters, "InvalidFeeParameters"},
}

// Code maps an engine error to a stable identifier for API responses and metrics
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "Internal"
}

package settlement

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/marketsettle/pkg/crypto"
	"github.com/uhyunpark/marketsettle/pkg/ledger"
	"github.com/uhyunpark/marketsettle/pkg/order"
)

// CancelOrder voids an open order. The signature must be the offerer's order
// signature and the caller must be the offerer. No assets move.
func (e *Engine) CancelOrder(ctx context.Context, o *order.Order, signature []byte, call Call) (*Receipt, error) {
	e.mu.Lock()
	r, err := e.cancelOrder(ctx, o, signature, call)
	e.mu.Unlock()

	e.finish(OpCancel, receipts(r), err)
	return r, err
}

func (e *Engine) cancelOrder(ctx context.Context, o *order.Order, signature []byte, call Call) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest, err := e.Digest(o)
	if err != nil {
		return nil, err
	}
	if !crypto.Verify(digest, signature, o.Offerer) {
		return nil, ErrInvalidSignatureOrSigner
	}
	if call.Caller != o.Offerer {
		return nil, fmt.Errorf("%w: %s cannot cancel an order of %s", ErrUnauthorized, call.Caller.Hex(), o.Offerer.Hex())
	}
	if err := e.checkLedgerOpen(o, digest); err != nil {
		return nil, err
	}

	r := newReceipt(OpCancel, e.now())
	r.Digest = digest
	r.Kind = o.Kind
	r.Offerer = o.Offerer
	r.Taker = call.Caller
	if err := e.commit([]*Receipt{r}, call.Caller, ledger.Canceled); err != nil {
		return nil, err
	}
	return r, nil
}

// CancelAllOrders voids every order the caller created up to the engine's
// current time. Later orders are unaffected.
func (e *Engine) CancelAllOrders(ctx context.Context, call Call) (*Receipt, error) {
	e.mu.Lock()
	r, err := e.cancelAll(ctx, call)
	e.mu.Unlock()

	e.finish(OpCancelAll, receipts(r), err)
	return r, err
}

func (e *Engine) cancelAll(ctx context.Context, call Call) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if call.Caller == (common.Address{}) {
		return nil, fmt.Errorf("%w: no caller", ErrUnauthorized)
	}

	now := e.now()
	cutoff, err := e.ledger.CancelAll(call.Caller, now)
	if err != nil {
		return nil, fmt.Errorf("ledger cutoff: %w", err)
	}

	r := newReceipt(OpCancelAll, now)
	r.Status = ledger.Canceled
	r.Offerer = call.Caller
	r.Taker = call.Caller
	r.Cutoff = cutoff
	return r, nil
}

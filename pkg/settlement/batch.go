package settlement

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/marketsettle/pkg/ledger"
	"github.com/uhyunpark/marketsettle/pkg/order"
)

// SettleBatch settles several direct sales in one call, all or nothing.
// royaltyOverridesBps must restate each order's signed royalty rate; the
// caller cannot change what the offerer signed. call.Value must equal the sum
// of all prices.
func (e *Engine) SettleBatch(ctx context.Context, orders []*order.Order, signatures [][]byte, royaltyOverridesBps []uint64, call Call) ([]*Receipt, error) {
	e.mu.Lock()
	rs, err := e.settleBatch(ctx, orders, signatures, royaltyOverridesBps, call)
	e.mu.Unlock()

	e.finish(OpBatch, rs, err)
	return rs, err
}

func (e *Engine) settleBatch(ctx context.Context, orders []*order.Order, signatures [][]byte, overrides []uint64, call Call) ([]*Receipt, error) {
	if len(orders) != len(signatures) || len(orders) != len(overrides) {
		return nil, fmt.Errorf("%w: %d orders, %d signatures, %d royalty overrides",
			ErrBatchLengthMismatch, len(orders), len(signatures), len(overrides))
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrBatchLengthMismatch)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := e.now()

	params, err := e.feeParameters(ctx)
	if err != nil {
		return nil, err
	}

	var (
		sales     = make([]*directSale, len(orders))
		total     = new(big.Int)
		digests   = make(map[common.Hash]int, len(orders))
		instances = make(map[string]int, len(orders))
	)
	for i, o := range orders {
		if o == nil {
			return nil, &BatchError{Index: i, Err: fmt.Errorf("%w: nil order", ErrMalformedOrder)}
		}
		sale, err := e.prepareDirect(ctx, o, signatures[i], now)
		if err != nil {
			return nil, &BatchError{Index: i, Err: err}
		}
		if overrides[i] != o.RoyaltyRateBps {
			return nil, &BatchError{Index: i, Err: fmt.Errorf("%w: royalty override %d bps differs from signed %d bps",
				ErrMalformedOrder, overrides[i], o.RoyaltyRateBps)}
		}

		// ledger and owner checks above see pre-batch state; catch intra-batch reuse here
		if j, dup := digests[sale.digest]; dup {
			return nil, &BatchError{Index: i, Err: fmt.Errorf("%w: same order as index %d", ErrOrderAlreadyClaimedOrCanceled, j)}
		}
		digests[sale.digest] = i
		key := o.Offer.Asset.Hex() + ":" + o.Offer.Instance().String()
		if j, dup := instances[key]; dup {
			return nil, &BatchError{Index: i, Err: fmt.Errorf("%w: instance already sold by index %d", ErrOwnerMismatch, j)}
		}
		instances[key] = i

		if err := e.checkApproved(ctx, sale.nft, o.Offerer); err != nil {
			return nil, &BatchError{Index: i, Err: err}
		}
		if sale.split, err = e.split(ctx, params, o, o.Consideration.Amount, o.Offerer, call.Caller); err != nil {
			return nil, &BatchError{Index: i, Err: err}
		}

		sales[i] = sale
		total.Add(total, o.Consideration.Amount)
	}

	if call.value().Cmp(total) != 0 {
		return nil, fmt.Errorf("%w: sent %s, batch total %s", ErrIncorrectPaymentValue, call.value(), total)
	}
	if err := e.checkNativeFunds(ctx, call.Caller, total); err != nil {
		return nil, err
	}

	// all checks passed; finalize every digest, then move assets
	out := make([]*Receipt, len(sales))
	for i, sale := range sales {
		out[i] = directReceipt(OpBatch, sale, call.Caller, now)
	}
	if err := e.commit(out, call.Caller, ledger.Settled); err != nil {
		return nil, err
	}
	if err := e.vault.Deposit(ctx, call.Caller, total); err != nil {
		return nil, e.executionFailed(out[0], fmt.Errorf("deposit: %w", err))
	}
	for i, sale := range sales {
		if err := e.executeDirect(ctx, sale, call.Caller); err != nil {
			return nil, e.executionFailed(out[i], fmt.Errorf("batch order %d: %w", i, err))
		}
	}
	return out, nil
}

package settlement

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/marketsettle/pkg/ledger"
	"github.com/uhyunpark/marketsettle/pkg/order"
)

// directSale is a direct sale that passed every per-order precondition
type directSale struct {
	order  *order.Order
	digest common.Hash
	nft    NonFungibleLedger
	split  Split
}

// SettleDirectSale sells the offerer's NFT to the caller for native currency.
// call.Value must equal the consideration amount exactly.
func (e *Engine) SettleDirectSale(ctx context.Context, o *order.Order, signature []byte, call Call) (*Receipt, error) {
	e.mu.Lock()
	r, err := e.settleDirectSale(ctx, o, signature, call)
	e.mu.Unlock()

	e.finish(OpDirectSale, receipts(r), err)
	return r, err
}

func (e *Engine) settleDirectSale(ctx context.Context, o *order.Order, signature []byte, call Call) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := e.now()

	sale, err := e.prepareDirect(ctx, o, signature, now)
	if err != nil {
		return nil, err
	}

	price := o.Consideration.Amount
	if call.value().Cmp(price) != 0 {
		return nil, fmt.Errorf("%w: sent %s, price %s", ErrIncorrectPaymentValue, call.value(), price)
	}
	if err := e.checkNativeFunds(ctx, call.Caller, price); err != nil {
		return nil, err
	}
	if err := e.checkApproved(ctx, sale.nft, o.Offerer); err != nil {
		return nil, err
	}

	params, err := e.feeParameters(ctx)
	if err != nil {
		return nil, err
	}
	if sale.split, err = e.split(ctx, params, o, price, o.Offerer, call.Caller); err != nil {
		return nil, err
	}

	// all checks passed; finalize the digest, then move assets
	r := directReceipt(OpDirectSale, sale, call.Caller, now)
	if err := e.commit([]*Receipt{r}, call.Caller, ledger.Settled); err != nil {
		return nil, err
	}
	if err := e.vault.Deposit(ctx, call.Caller, price); err != nil {
		return nil, e.executionFailed(r, fmt.Errorf("deposit: %w", err))
	}
	if err := e.executeDirect(ctx, sale, call.Caller); err != nil {
		return nil, e.executionFailed(r, err)
	}
	return r, nil
}

// prepareDirect runs preconditions 1-5 of a direct sale: shape, signature,
// ledger status, time window and current ownership.
func (e *Engine) prepareDirect(ctx context.Context, o *order.Order, signature []byte, now uint64) (*directSale, error) {
	digest, err := e.Digest(o)
	if err != nil {
		return nil, err
	}
	if o.Kind != order.DirectSale || o.Offer.Kind != order.NonFungibleAsset || o.Consideration.Kind != order.NativeCurrency {
		return nil, fmt.Errorf("%w: %s order offering %s for %s", ErrUnsupportedOrderTypeForThisOperation,
			o.Kind, o.Offer.Kind, o.Consideration.Kind)
	}
	if err := e.checkOpen(o, digest, signature, now); err != nil {
		return nil, err
	}

	nft, err := e.nonFungible(o.Offer.Asset)
	if err != nil {
		return nil, err
	}
	if err := e.checkOwner(ctx, nft, o.Offer.Instance(), o.Offerer); err != nil {
		return nil, err
	}
	return &directSale{order: o, digest: digest, nft: nft}, nil
}

func (e *Engine) checkNativeFunds(ctx context.Context, payer common.Address, amount *big.Int) error {
	bal, err := e.vault.BalanceOf(ctx, payer)
	if err != nil {
		return fmt.Errorf("vault balance: %w", err)
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientAllowanceOrBalance, payer.Hex(), bal, amount)
	}
	return nil
}

// executeDirect moves the NFT and pays out a deposited price
func (e *Engine) executeDirect(ctx context.Context, sale *directSale, taker common.Address) error {
	o := sale.order
	if err := sale.nft.TransferFrom(ctx, o.Offerer, taker, o.Offer.Instance()); err != nil {
		return fmt.Errorf("nft transfer: %w", err)
	}

	payouts := []struct {
		to     common.Address
		amount *big.Int
	}{
		{o.RoyaltyReceiver, sale.split.Royalty},
		{o.Offerer, sale.split.SellerProceeds},
		{taker, sale.split.BuyerCashback},
	}
	for _, p := range payouts {
		if p.amount.Sign() == 0 {
			continue
		}
		if err := e.vault.Send(ctx, p.to, p.amount); err != nil {
			return fmt.Errorf("payout to %s: %w", p.to.Hex(), err)
		}
	}
	return nil
}

func directReceipt(op Operation, sale *directSale, taker common.Address, now uint64) *Receipt {
	o := sale.order
	r := newReceipt(op, now)
	r.Digest = sale.digest
	r.Kind = o.Kind
	r.Offerer = o.Offerer
	r.Taker = taker
	r.Collection = o.Offer.Asset
	r.InstanceID = new(big.Int).Set(o.Offer.Instance())
	r.RoyaltyReceiver = o.RoyaltyReceiver
	r.Split = sale.split
	return r
}

func receipts(r *Receipt) []*Receipt {
	if r == nil {
		return nil
	}
	return []*Receipt{r}
}

package settlement

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/marketsettle/pkg/ledger"
	"github.com/uhyunpark/marketsettle/pkg/order"
)

// SettleTargetedOffer accepts an offer of fungible tokens for the specific NFT
// instance named in the order. The caller must hold that instance.
func (e *Engine) SettleTargetedOffer(ctx context.Context, o *order.Order, signature []byte, call Call) (*Receipt, error) {
	e.mu.Lock()
	r, err := e.settleOffer(ctx, OpTargetedOffer, o, signature, nil, call)
	e.mu.Unlock()

	e.finish(OpTargetedOffer, receipts(r), err)
	return r, err
}

// SettleCollectionOffer accepts an offer for any instance of a collection.
// instanceID is chosen by the caller and is not part of the signed order.
func (e *Engine) SettleCollectionOffer(ctx context.Context, o *order.Order, signature []byte, instanceID *big.Int, call Call) (*Receipt, error) {
	e.mu.Lock()
	r, err := e.settleOffer(ctx, OpCollectionOffer, o, signature, instanceID, call)
	e.mu.Unlock()

	e.finish(OpCollectionOffer, receipts(r), err)
	return r, err
}

func (e *Engine) settleOffer(ctx context.Context, op Operation, o *order.Order, signature []byte, chosen *big.Int, call Call) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := e.now()

	digest, err := e.Digest(o)
	if err != nil {
		return nil, err
	}

	want := order.TargetedOffer
	if op == OpCollectionOffer {
		want = order.CollectionOffer
	}
	if o.Kind != want || o.Offer.Kind != order.FungibleToken || o.Consideration.Kind != order.NonFungibleAsset {
		return nil, fmt.Errorf("%w: %s cannot settle a %s order offering %s for %s",
			ErrUnsupportedOrderTypeForThisOperation, op, o.Kind, o.Offer.Kind, o.Consideration.Kind)
	}

	instance := o.Consideration.Instance()
	if op == OpCollectionOffer {
		if chosen == nil || chosen.Sign() < 0 {
			return nil, fmt.Errorf("%w: collection offer needs a non-negative instance id", ErrMalformedOrder)
		}
		instance = chosen
	}

	if err := e.checkOpen(o, digest, signature, now); err != nil {
		return nil, err
	}

	nft, err := e.nonFungible(o.Consideration.Asset)
	if err != nil {
		return nil, err
	}
	taker := call.Caller
	if err := e.checkOwner(ctx, nft, instance, taker); err != nil {
		return nil, err
	}
	if call.value().Sign() != 0 {
		return nil, fmt.Errorf("%w: offers are paid in tokens, got %s native", ErrIncorrectPaymentValue, call.value())
	}

	price := o.Offer.Amount
	token, err := e.fungible(o.Offer.Asset)
	if err != nil {
		return nil, err
	}
	if err := e.checkTokenFunds(ctx, token, o.Offerer, price); err != nil {
		return nil, err
	}
	if err := e.checkApproved(ctx, nft, taker); err != nil {
		return nil, err
	}

	params, err := e.feeParameters(ctx)
	if err != nil {
		return nil, err
	}
	// the taker sells the NFT, the offerer buys it
	split, err := e.split(ctx, params, o, price, taker, o.Offerer)
	if err != nil {
		return nil, err
	}

	r := newReceipt(op, now)
	r.Digest = digest
	r.Kind = o.Kind
	r.Offerer = o.Offerer
	r.Taker = taker
	r.Collection = o.Consideration.Asset
	r.InstanceID = new(big.Int).Set(instance)
	r.PaymentAsset = o.Offer.Asset
	r.RoyaltyReceiver = o.RoyaltyReceiver
	r.Split = split

	// all checks passed; finalize the digest, then move assets
	if err := e.commit([]*Receipt{r}, taker, ledger.Settled); err != nil {
		return nil, err
	}
	if err := nft.TransferFrom(ctx, taker, o.Offerer, instance); err != nil {
		return nil, e.executionFailed(r, fmt.Errorf("nft transfer: %w", err))
	}
	// the buyer's cashback is simply never pulled
	pulls := []struct {
		to     common.Address
		amount *big.Int
	}{
		{o.RoyaltyReceiver, split.Royalty},
		{e.operator, split.PlatformFee},
		{taker, split.SellerProceeds},
	}
	for _, p := range pulls {
		if p.amount.Sign() == 0 {
			continue
		}
		if err := token.TransferFrom(ctx, o.Offerer, p.to, p.amount); err != nil {
			return nil, e.executionFailed(r, fmt.Errorf("token transfer to %s: %w", p.to.Hex(), err))
		}
	}
	return r, nil
}

func (e *Engine) checkTokenFunds(ctx context.Context, token FungibleLedger, owner common.Address, amount *big.Int) error {
	bal, err := token.BalanceOf(ctx, owner)
	if err != nil {
		return fmt.Errorf("token balance: %w", err)
	}
	allowance, err := token.Allowance(ctx, owner, e.operator)
	if err != nil {
		return fmt.Errorf("token allowance: %w", err)
	}
	if bal.Cmp(amount) < 0 || allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has balance %s, allowance %s, needs %s",
			ErrInsufficientAllowanceOrBalance, owner.Hex(), bal, allowance, amount)
	}
	return nil
}

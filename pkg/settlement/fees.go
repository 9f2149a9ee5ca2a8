package settlement

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/marketsettle/pkg/order"
)

// FeeParameters are set by the administrative collaborator and read on
// every settlement; orders never lock them in.
type FeeParameters struct {
	PlatformFeeRateBps     uint64         `json:"platform_fee_bps"`
	PremiumDiscountRateBps uint64         `json:"premium_discount_bps"`
	PremiumAsset           common.Address `json:"premium_asset"` // zero: discounts disabled
}

func (p FeeParameters) Validate() error {
	if p.PlatformFeeRateBps > order.MaxBps {
		return fmt.Errorf("%w: platform fee %d bps", ErrInvalidFeeParameters, p.PlatformFeeRateBps)
	}
	if p.PremiumDiscountRateBps > order.MaxBps {
		return fmt.Errorf("%w: premium discount %d bps", ErrInvalidFeeParameters, p.PremiumDiscountRateBps)
	}
	return nil
}

// DiscountPolicy decides how much of the platform fee each party gets back.
// It returns the seller's and buyer's discount in bps of the traded amount.
type DiscountPolicy func(discountBps uint64, sellerPremium, buyerPremium bool) (sellerBps, buyerBps uint64)

// StackedDiscount gives every premium party its own discount: the seller's
// raises proceeds, the buyer's is paid back as cashback.
func StackedDiscount(discountBps uint64, sellerPremium, buyerPremium bool) (uint64, uint64) {
	var s, b uint64
	if sellerPremium {
		s = discountBps
	}
	if buyerPremium {
		b = discountBps
	}
	return s, b
}

// CappedDiscount grants a single discount when at least one party is
// premium, always credited to the seller.
func CappedDiscount(discountBps uint64, sellerPremium, buyerPremium bool) (uint64, uint64) {
	if sellerPremium || buyerPremium {
		return discountBps, 0
	}
	return 0, 0
}

// PolicyByName resolves the DISCOUNT_POLICY setting
func PolicyByName(name string) (DiscountPolicy, error) {
	switch name {
	case "", "stacked":
		return StackedDiscount, nil
	case "capped":
		return CappedDiscount, nil
	default:
		return nil, fmt.Errorf("unknown discount policy %q (want stacked or capped)", name)
	}
}

// Split is how a traded amount is divided.
// Royalty + PlatformFee + SellerProceeds + BuyerCashback == Amount.
type Split struct {
	Amount         *big.Int
	Royalty        *big.Int
	PlatformFee    *big.Int // retained by the engine, after discounts
	SellerProceeds *big.Int
	BuyerCashback  *big.Int
}

// ComputeSplit applies royalty and fee rates (rounding down) and the discount
// policy. Discounts come out of the platform fee only and never exceed it;
// royalty is never discounted.
func ComputeSplit(amount *big.Int, royaltyBps uint64, params FeeParameters, policy DiscountPolicy, sellerPremium, buyerPremium bool) (Split, error) {
	if amount == nil || amount.Sign() < 0 {
		return Split{}, fmt.Errorf("%w: amount must be non-negative", ErrMalformedOrder)
	}
	if err := params.Validate(); err != nil {
		return Split{}, err
	}
	if policy == nil {
		policy = StackedDiscount
	}

	royalty := bps(amount, royaltyBps)
	grossFee := bps(amount, params.PlatformFeeRateBps)
	if new(big.Int).Add(royalty, grossFee).Cmp(amount) > 0 {
		return Split{}, fmt.Errorf("%w: royalty %d bps plus platform fee %d bps exceed the amount",
			ErrMalformedOrder, royaltyBps, params.PlatformFeeRateBps)
	}

	sellerBps, buyerBps := policy(params.PremiumDiscountRateBps, sellerPremium, buyerPremium)
	sellerDiscount := minBig(bps(amount, sellerBps), grossFee)
	buyerDiscount := minBig(bps(amount, buyerBps), new(big.Int).Sub(grossFee, sellerDiscount))

	fee := new(big.Int).Sub(grossFee, sellerDiscount)
	fee.Sub(fee, buyerDiscount)

	proceeds := new(big.Int).Sub(amount, royalty)
	proceeds.Sub(proceeds, grossFee)
	proceeds.Add(proceeds, sellerDiscount)

	return Split{
		Amount:         new(big.Int).Set(amount),
		Royalty:        royalty,
		PlatformFee:    fee,
		SellerProceeds: proceeds,
		BuyerCashback:  buyerDiscount,
	}, nil
}

// Total returns the sum of all four shares
func (s Split) Total() *big.Int {
	t := new(big.Int).Add(s.Royalty, s.PlatformFee)
	t.Add(t, s.SellerProceeds)
	return t.Add(t, s.BuyerCashback)
}

func bps(amount *big.Int, rate uint64) *big.Int {
	v := new(big.Int).Mul(amount, new(big.Int).SetUint64(rate))
	return v.Quo(v, big.NewInt(order.MaxBps))
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return new(big.Int).Set(b)
}

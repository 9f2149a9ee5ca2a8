package crypto

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/marketsettle/pkg/order"
)

func testDirectSale(offerer common.Address) *order.Order {
	amount, _ := new(big.Int).SetString("690000000000000000", 10)
	return &order.Order{
		Offerer: offerer,
		Kind:    order.DirectSale,
		Offer: order.Item{
			Kind:       order.NonFungibleAsset,
			Asset:      common.HexToAddress("0x00000000000000000000000000000000000000a1"),
			InstanceID: big.NewInt(7),
			Amount:     big.NewInt(1),
		},
		Consideration: order.Item{
			Kind:   order.NativeCurrency,
			Amount: amount,
		},
		RoyaltyReceiver: common.HexToAddress("0x00000000000000000000000000000000000000b2"),
		RoyaltyRateBps:  100,
		StartTime:       1_700_000_000,
		EndTime:         1_700_086_400,
		CreatedTime:     1_699_999_000,
	}
}

func TestHashOrderDeterministic(t *testing.T) {
	enc := NewEncoder(DefaultDomain())
	o := testDirectSale(common.HexToAddress("0x1111111111111111111111111111111111111111"))

	h1, err := enc.HashOrder(o)
	if err != nil {
		t.Fatalf("HashOrder: %v", err)
	}
	h2, err := ComputeDigest(o.Clone(), DefaultDomain())
	if err != nil {
		t.Fatalf("ComputeDigest: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("digest mismatch: %s != %s", h1.Hex(), h2.Hex())
	}
	if h1 == (common.Hash{}) {
		t.Fatal("zero digest")
	}
}

func TestHashOrderFieldSensitivity(t *testing.T) {
	enc := NewEncoder(DefaultDomain())
	base := testDirectSale(common.HexToAddress("0x1111111111111111111111111111111111111111"))
	baseHash, err := enc.HashOrder(base)
	if err != nil {
		t.Fatalf("HashOrder: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(o *order.Order)
	}{
		{"offerer", func(o *order.Order) { o.Offerer = common.HexToAddress("0x2222222222222222222222222222222222222222") }},
		{"kind", func(o *order.Order) { o.Kind = order.TargetedOffer }},
		{"offer asset", func(o *order.Order) { o.Offer.Asset = common.HexToAddress("0x00000000000000000000000000000000000000a2") }},
		{"offer instance", func(o *order.Order) { o.Offer.InstanceID = big.NewInt(8) }},
		{"consideration amount", func(o *order.Order) { o.Consideration.Amount = new(big.Int).Add(o.Consideration.Amount, big.NewInt(1)) }},
		{"royalty receiver", func(o *order.Order) { o.RoyaltyReceiver = common.HexToAddress("0x00000000000000000000000000000000000000b3") }},
		{"royalty rate", func(o *order.Order) { o.RoyaltyRateBps = 101 }},
		{"start time", func(o *order.Order) { o.StartTime++ }},
		{"end time", func(o *order.Order) { o.EndTime++ }},
		{"created time", func(o *order.Order) { o.CreatedTime++ }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := base.Clone()
			tt.mutate(o)
			h, err := enc.HashOrder(o)
			if err != nil {
				t.Fatalf("HashOrder: %v", err)
			}
			if h == baseHash {
				t.Errorf("changing %s did not change the digest", tt.name)
			}
		})
	}
}

func TestHashOrderDomainSeparation(t *testing.T) {
	o := testDirectSale(common.HexToAddress("0x1111111111111111111111111111111111111111"))
	base, _ := ComputeDigest(o, DefaultDomain())

	domains := map[string]Domain{
		"name":     {Name: "Other", Version: "1", ChainID: big.NewInt(1337)},
		"version":  {Name: "MarketSettle", Version: "2", ChainID: big.NewInt(1337)},
		"chain":    {Name: "MarketSettle", Version: "1", ChainID: big.NewInt(1)},
		"contract": {Name: "MarketSettle", Version: "1", ChainID: big.NewInt(1337), VerifyingContract: common.HexToAddress("0x9999999999999999999999999999999999999999")},
	}
	for name, d := range domains {
		h, err := ComputeDigest(o, d)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if h == base {
			t.Errorf("changing domain %s did not change the digest", name)
		}
	}
}

func TestHashOrderMalformed(t *testing.T) {
	enc := NewEncoder(DefaultDomain())
	base := testDirectSale(common.HexToAddress("0x1111111111111111111111111111111111111111"))

	tests := []struct {
		name   string
		mutate func(o *order.Order)
	}{
		{"royalty over 100%", func(o *order.Order) { o.RoyaltyRateBps = order.MaxBps + 1 }},
		{"start equals end", func(o *order.Order) { o.StartTime = o.EndTime }},
		{"start after end", func(o *order.Order) { o.StartTime = o.EndTime + 1 }},
		{"nil amount", func(o *order.Order) { o.Consideration.Amount = nil }},
		{"negative amount", func(o *order.Order) { o.Consideration.Amount = big.NewInt(-1) }},
		{"amount above uint256", func(o *order.Order) { o.Consideration.Amount = new(big.Int).Lsh(big.NewInt(1), 256) }},
		{"instance above uint256", func(o *order.Order) { o.Offer.InstanceID = new(big.Int).Lsh(big.NewInt(1), 256) }},
		{"nft amount 2", func(o *order.Order) { o.Offer.Amount = big.NewInt(2) }},
		{"unknown kind", func(o *order.Order) { o.Kind = 9 }},
		{"native with asset", func(o *order.Order) { o.Consideration.Asset = common.HexToAddress("0x01") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := base.Clone()
			tt.mutate(o)
			if _, err := enc.HashOrder(o); !errors.Is(err, order.ErrMalformedOrder) {
				t.Errorf("err = %v, want ErrMalformedOrder", err)
			}
		})
	}

	// royalty at exactly 100% is in range
	o := base.Clone()
	o.RoyaltyRateBps = order.MaxBps
	if _, err := enc.HashOrder(o); err != nil {
		t.Errorf("royalty of %d bps rejected: %v", order.MaxBps, err)
	}
}

func TestSignOrderRoundTrip(t *testing.T) {
	signer, _ := GenerateKey()
	enc := NewEncoder(DefaultDomain())
	o := testDirectSale(signer.Address())

	sig, err := enc.SignOrder(signer, o)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}

	recovered, err := enc.RecoverOrderSigner(o, sig)
	if err != nil {
		t.Fatalf("RecoverOrderSigner: %v", err)
	}
	if recovered != signer.Address() {
		t.Errorf("recovered %s, want %s", recovered.Hex(), signer.Address().Hex())
	}

	digest, _ := enc.HashOrder(o)
	if !Verify(digest, sig, signer.Address()) {
		t.Error("Verify rejected a valid order signature")
	}

	// same signature does not carry over to another deployment
	other := NewEncoder(Domain{Name: "MarketSettle", Version: "1", ChainID: big.NewInt(1)})
	otherDigest, _ := other.HashOrder(o)
	if Verify(otherDigest, sig, signer.Address()) {
		t.Error("signature replayed across chains")
	}
}

func TestOrderToJSON(t *testing.T) {
	enc := NewEncoder(DefaultDomain())
	o := testDirectSale(common.HexToAddress("0x1111111111111111111111111111111111111111"))

	out, err := enc.OrderToJSON(o)
	if err != nil {
		t.Fatalf("OrderToJSON: %v", err)
	}
	for _, want := range []string{`"primaryType": "OrderParameters"`, `"royaltyPercentageIn10000"`, `"690000000000000000"`} {
		if !strings.Contains(out, want) {
			t.Errorf("typed data JSON missing %s", want)
		}
	}
}

func TestAuthorization(t *testing.T) {
	signer, _ := GenerateKey()
	enc := NewEncoder(DefaultDomain())
	subject := common.HexToHash("0xabcdef")

	auth := &Authorization{
		Action:  ActionSettle,
		Subject: subject,
		Caller:  signer.Address(),
		Value:   big.NewInt(100),
	}
	sig, err := enc.SignAuthorization(signer, auth)
	if err != nil {
		t.Fatalf("SignAuthorization: %v", err)
	}
	digest, _ := enc.HashAuthorization(auth)
	if !Verify(digest, sig, signer.Address()) {
		t.Fatal("authorization signature did not verify")
	}

	changed := *auth
	changed.Value = big.NewInt(101)
	changedDigest, _ := enc.HashAuthorization(&changed)
	if changedDigest == digest {
		t.Error("authorization digest ignores value")
	}

	cancel := *auth
	cancel.Action = ActionCancel
	cancelDigest, _ := enc.HashAuthorization(&cancel)
	if cancelDigest == digest {
		t.Error("authorization digest ignores action")
	}

	if _, err := enc.HashAuthorization(&Authorization{Action: 0}); err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestBatchSubject(t *testing.T) {
	a := common.HexToHash("0x01")
	b := common.HexToHash("0x02")
	if BatchSubject([]common.Hash{a, b}) == BatchSubject([]common.Hash{b, a}) {
		t.Error("batch subject must depend on order")
	}
	if BatchSubject([]common.Hash{a}) == BatchSubject([]common.Hash{a, a}) {
		t.Error("batch subject must depend on length")
	}
}

package transaction

import (
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/marketsettle/pkg/crypto"
	"github.com/uhyunpark/marketsettle/pkg/order"
)

func samplePayload() OrderPayload {
	return OrderPayload{
		Offerer:   "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		OrderType: uint8(order.TargetedOffer),
		Offer: ItemPayload{
			ItemType:     uint8(order.FungibleToken),
			TokenAddress: "0x00000000000000000000000000000000000000c3",
			Amount:       "1000000000000000000",
		},
		Consideration: ItemPayload{
			ItemType:     uint8(order.NonFungibleAsset),
			TokenAddress: "0x00000000000000000000000000000000000000a1",
			Identifier:   "42",
			Amount:       "1",
		},
		RoyaltyReceiver: "0x00000000000000000000000000000000000000b2",
		RoyaltyBps:      250,
		StartTime:       100,
		EndTime:         200,
		CreatedTime:     90,
	}
}

func TestOrderPayloadConversion(t *testing.T) {
	p := samplePayload()
	o, err := p.ToOrder()
	if err != nil {
		t.Fatalf("ToOrder: %v", err)
	}
	if err := o.Validate(); err != nil {
		t.Fatalf("converted order invalid: %v", err)
	}
	if o.Consideration.InstanceID.Cmp(big.NewInt(42)) != 0 {
		t.Errorf("instance = %s, want 42", o.Consideration.InstanceID)
	}
	if o.Offer.InstanceID != nil {
		t.Errorf("fungible offer got instance %s", o.Offer.InstanceID)
	}

	back := FromOrder(o)
	o2, err := back.ToOrder()
	if err != nil {
		t.Fatalf("ToOrder after FromOrder: %v", err)
	}

	enc := crypto.NewEncoder(crypto.DefaultDomain())
	h1, _ := enc.HashOrder(o)
	h2, _ := enc.HashOrder(o2)
	if h1 != h2 {
		t.Error("payload conversion changed the digest")
	}
}

func TestOrderPayloadJSONFieldNames(t *testing.T) {
	p := samplePayload()
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"order_type":1`, `"royalty_bps":250`, `"identifier":"42"`} {
		if !strings.Contains(string(b), key) {
			t.Errorf("JSON %s missing %s", b, key)
		}
	}
}

func TestOrderPayloadRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *OrderPayload)
	}{
		{"bad offerer checksum", func(p *OrderPayload) { p.Offerer = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeD" }},
		{"empty offerer", func(p *OrderPayload) { p.Offerer = "" }},
		{"hex amount", func(p *OrderPayload) { p.Offer.Amount = "0x10" }},
		{"negative amount", func(p *OrderPayload) { p.Offer.Amount = "-1" }},
		{"missing amount", func(p *OrderPayload) { p.Offer.Amount = "" }},
		{"bad identifier", func(p *OrderPayload) { p.Consideration.Identifier = "abc" }},
		{"bad royalty receiver", func(p *OrderPayload) { p.RoyaltyReceiver = "0x12" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := samplePayload()
			tt.mutate(&p)
			if _, err := p.ToOrder(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in      string
		dec     int32
		want    string
		wantErr bool
	}{
		{"0.69", 18, "690000000000000000", false},
		{"1", 6, "1000000", false},
		{" 2.5 ", 1, "25", false},
		{"0.0000001", 6, "", true},
		{"-1", 18, "", true},
		{"abc", 18, "", true},
	}
	for _, tt := range tests {
		got, err := ParseUnits(tt.in, tt.dec)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseUnits(%q) = %s, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseUnits(%q): %v", tt.in, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("ParseUnits(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	v, _ := new(big.Int).SetString("669300000000000000", 10)
	if got := FormatUnits(v, 18); got != "0.6693" {
		t.Errorf("FormatUnits = %s, want 0.6693", got)
	}
}

func TestDecodeSignature(t *testing.T) {
	sig := make([]byte, crypto.SignatureLength)
	sig[64] = 27
	enc := EncodeSignature(sig)

	for _, in := range []string{enc, strings.TrimPrefix(enc, "0x")} {
		got, err := DecodeSignature(in)
		if err != nil {
			t.Fatalf("DecodeSignature(%q): %v", in, err)
		}
		if len(got) != crypto.SignatureLength || got[64] != 27 {
			t.Errorf("decoded signature mismatch")
		}
	}

	if _, err := DecodeSignature("0x1234"); err == nil {
		t.Error("expected error for short signature")
	}
	if _, err := DecodeSignature("0xzz"); err == nil {
		t.Error("expected error for non-hex signature")
	}
}

func TestVerifierAuthenticate(t *testing.T) {
	enc := crypto.NewEncoder(crypto.DefaultDomain())
	v := NewVerifier(enc)
	caller, _ := crypto.GenerateKey()
	subject := common.HexToHash("0x1234")
	value := big.NewInt(5)

	auth, err := v.Authorize(caller, crypto.ActionSettle, subject, nil, value)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	got, err := v.Authenticate(crypto.ActionSettle, subject, nil, value, auth)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got != caller.Address() {
		t.Errorf("caller = %s, want %s", got.Hex(), caller.Address().Hex())
	}

	// a signature for one request does not authorize another
	if _, err := v.Authenticate(crypto.ActionSettle, subject, nil, big.NewInt(6), auth); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("different value: err = %v, want ErrUnauthenticated", err)
	}
	if _, err := v.Authenticate(crypto.ActionCancel, subject, nil, value, auth); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("different action: err = %v, want ErrUnauthenticated", err)
	}

	other, _ := crypto.GenerateKey()
	spoofed := auth
	spoofed.Caller = other.Address().Hex()
	if _, err := v.Authenticate(crypto.ActionSettle, subject, nil, value, spoofed); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("spoofed caller: err = %v, want ErrUnauthenticated", err)
	}
}

func TestRequestValidate(t *testing.T) {
	req := &SettleRequest{Order: samplePayload(), Signature: "0x00"}
	if err := req.Validate(); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("missing auth: err = %v, want ErrUnauthenticated", err)
	}
	req.Auth = AuthPayload{Caller: "0x01", Signature: "0x02"}
	if err := req.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := (&BatchRequest{Auth: req.Auth}).Validate(); err == nil || errors.Is(err, ErrUnauthenticated) {
		t.Errorf("empty batch: err = %v", err)
	}
	if err := (&BatchRequest{Orders: []OrderPayload{samplePayload()}}).Validate(); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("batch without auth: err = %v, want ErrUnauthenticated", err)
	}
}

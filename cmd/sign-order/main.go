package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/marketsettle/params"
	"github.com/uhyunpark/marketsettle/pkg/crypto"
	"github.com/uhyunpark/marketsettle/pkg/order"
	"github.com/uhyunpark/marketsettle/pkg/transaction"
)

// sign-order builds an order from flags, signs it under the node's domain
// (read from .env like the node) and prints the request body fragments
// a client posts to /api/v1.
func main() {
	var (
		envFile    = flag.String("env", "", "env file with DOMAIN_* and ENGINE_ADDRESS (default .env)")
		keyHex     = flag.String("key", "", "offerer private key hex (default: generate one)")
		kind       = flag.String("kind", "direct", "direct | targeted | collection")
		collection = flag.String("collection", "", "NFT collection address")
		instance   = flag.String("instance", "", "instance id (direct sale, targeted offer)")
		price      = flag.String("price", "", "price in human units, e.g. 0.69")
		asset      = flag.String("asset", "", "payment token address (offers); empty: native currency")
		decimals   = flag.Int("decimals", 18, "payment asset decimals")
		royaltyTo  = flag.String("royalty-receiver", "", "royalty receiver address")
		royaltyBps = flag.Uint64("royalty-bps", 0, "royalty rate in basis points")
		ttl        = flag.Duration("ttl", 24*time.Hour, "validity window from now")
	)
	flag.Parse()

	cfg := params.LoadFromEnv(*envFile)

	signer, err := loadSigner(*keyHex)
	if err != nil {
		fail("key", err)
	}
	if *keyHex == "" {
		fmt.Fprintf(os.Stderr, "Generated key %s for %s (KEEP SECRET!)\n", signer.PrivateKeyHex(), signer.Address().Hex())
	}

	o, err := buildOrder(signer.Address(), *kind, *collection, *instance, *price, *asset, int32(*decimals), *royaltyTo, *royaltyBps, *ttl)
	if err != nil {
		fail("order", err)
	}

	engine, err := crypto.ParseAddress(cfg.Domain.EngineAddress)
	if err != nil {
		fail("ENGINE_ADDRESS", err)
	}
	enc := crypto.NewEncoder(crypto.Domain{
		Name:              cfg.Domain.Name,
		Version:           cfg.Domain.Version,
		ChainID:           big.NewInt(cfg.Domain.ChainID),
		VerifyingContract: engine,
	})

	digest, err := enc.HashOrder(o)
	if err != nil {
		fail("digest", err)
	}
	sig, err := enc.SignOrder(signer, o)
	if err != nil {
		fail("sign", err)
	}
	typed, err := enc.OrderToJSON(o)
	if err != nil {
		fail("typed data", err)
	}

	out, err := json.MarshalIndent(struct {
		Digest    string                    `json:"digest"`
		Order     *transaction.OrderPayload `json:"order"`
		Signature string                    `json:"signature"`
		TypedData json.RawMessage           `json:"typed_data"`
	}{
		Digest:    digest.Hex(),
		Order:     transaction.FromOrder(o),
		Signature: transaction.EncodeSignature(sig),
		TypedData: json.RawMessage(typed),
	}, "", "  ")
	if err != nil {
		fail("json", err)
	}
	fmt.Println(string(out))
}

func loadSigner(keyHex string) (*crypto.Signer, error) {
	if keyHex == "" {
		return crypto.GenerateKey()
	}
	return crypto.FromPrivateKeyHex(keyHex)
}

func buildOrder(offerer common.Address, kind, collection, instance, price, asset string, decimals int32, royaltyTo string, royaltyBps uint64, ttl time.Duration) (*order.Order, error) {
	coll, err := crypto.ParseAddress(collection)
	if err != nil {
		return nil, fmt.Errorf("collection: %w", err)
	}
	amount, err := transaction.ParseUnits(price, decimals)
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	var receiver common.Address
	if royaltyTo != "" {
		if receiver, err = crypto.ParseAddress(royaltyTo); err != nil {
			return nil, fmt.Errorf("royalty receiver: %w", err)
		}
	}

	now := uint64(time.Now().Unix())
	o := &order.Order{
		Offerer:         offerer,
		RoyaltyReceiver: receiver,
		RoyaltyRateBps:  royaltyBps,
		StartTime:       now,
		EndTime:         now + uint64(ttl/time.Second),
		CreatedTime:     now,
	}
	nft := order.Item{Kind: order.NonFungibleAsset, Asset: coll, Amount: big.NewInt(1)}

	switch kind {
	case "direct":
		if nft.InstanceID, err = transaction.ParseInteger("instance", instance); err != nil {
			return nil, err
		}
		o.Kind = order.DirectSale
		o.Offer = nft
		o.Consideration = order.Item{Kind: order.NativeCurrency, Amount: amount}
	case "targeted", "collection":
		token, err := crypto.ParseAddress(asset)
		if err != nil {
			return nil, fmt.Errorf("asset: %w", err)
		}
		o.Kind = order.CollectionOffer
		if kind == "targeted" {
			if nft.InstanceID, err = transaction.ParseInteger("instance", instance); err != nil {
				return nil, err
			}
			o.Kind = order.TargetedOffer
		}
		o.Offer = order.Item{Kind: order.FungibleToken, Asset: token, Amount: amount}
		o.Consideration = nft
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	return o, o.Validate()
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "Error (%s): %v\n", what, err)
	os.Exit(1)
}

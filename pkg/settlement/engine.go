package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/marketsettle/pkg/crypto"
	"github.com/uhyunpark/marketsettle/pkg/ledger"
	"github.com/uhyunpark/marketsettle/pkg/order"
	"github.com/uhyunpark/marketsettle/pkg/util"
)

// Call carries who is calling and the native value sent along
type Call struct {
	Caller common.Address
	Value  *big.Int // nil means zero
}

func (c Call) value() *big.Int {
	if c.Value == nil {
		return new(big.Int)
	}
	return c.Value
}

// Deps wires the engine to its collaborators
type Deps struct {
	Ledger   *ledger.Ledger
	Assets   AssetRegistry
	Vault    NativeVault
	Params   ParameterStore
	Domain   DomainProvider
	Clock    util.Clock
	Operator common.Address // engine address: approval spender and fee sink
	Policy   DiscountPolicy // nil: StackedDiscount
	Logger   *zap.SugaredLogger
	Observer Observer // optional
}

// Engine validates signed orders and executes settlement against custody
// collaborators. All mutating operations are serialized by one mutex and
// every precondition is checked before the first collaborator write.
type Engine struct {
	mu sync.Mutex

	ledger   *ledger.Ledger
	assets   AssetRegistry
	vault    NativeVault
	params   ParameterStore
	domain   DomainProvider
	clock    util.Clock
	operator common.Address
	policy   DiscountPolicy
	logger   *zap.SugaredLogger
	observer Observer

	// Hooks, called after the engine lock is released
	OnSettled  func(*Receipt)
	OnCanceled func(*Receipt)
}

func NewEngine(d Deps) (*Engine, error) {
	switch {
	case d.Ledger == nil:
		return nil, errors.New("settlement: ledger is required")
	case d.Assets == nil:
		return nil, errors.New("settlement: asset registry is required")
	case d.Vault == nil:
		return nil, errors.New("settlement: native vault is required")
	case d.Params == nil:
		return nil, errors.New("settlement: parameter store is required")
	case d.Domain == nil:
		return nil, errors.New("settlement: domain provider is required")
	}
	if d.Clock == nil {
		d.Clock = util.RealClock{}
	}
	if d.Policy == nil {
		d.Policy = StackedDiscount
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	return &Engine{
		ledger:   d.Ledger,
		assets:   d.Assets,
		vault:    d.Vault,
		params:   d.Params,
		domain:   d.Domain,
		clock:    d.Clock,
		operator: d.Operator,
		policy:   d.Policy,
		logger:   d.Logger,
		observer: d.Observer,
	}, nil
}

// Operator returns the engine's custody address
func (e *Engine) Operator() common.Address { return e.operator }

// Encoder returns a digest encoder for the current domain
func (e *Engine) Encoder() *crypto.Encoder {
	return crypto.NewEncoder(e.domain.Domain())
}

// Digest computes the order digest in the engine's domain
func (e *Engine) Digest(o *order.Order) (common.Hash, error) {
	return e.Encoder().HashOrder(o)
}

// Verify is the read-only signature pre-check offered to clients
func (e *Engine) Verify(digest common.Hash, signature []byte, expected common.Address) bool {
	return crypto.Verify(digest, signature, expected)
}

// OrderStatus returns the stored status of a digest
func (e *Engine) OrderStatus(digest common.Hash) (ledger.Status, error) {
	return e.ledger.Status(digest)
}

// OrderRecord returns the stored ledger record; absent digests read as open
func (e *Engine) OrderRecord(digest common.Hash) (ledger.Record, error) {
	return e.ledger.Record(digest)
}

// LedgerCounts returns how many digests are in each terminal status
func (e *Engine) LedgerCounts() (map[ledger.Status]int, error) {
	return e.ledger.Counts()
}

// EffectiveStatus is OrderStatus that also honors the offerer's cancel-all cutoff
func (e *Engine) EffectiveStatus(o *order.Order) (common.Hash, ledger.Status, error) {
	digest, err := e.Digest(o)
	if err != nil {
		return common.Hash{}, ledger.Open, err
	}
	st, err := e.ledger.Status(digest)
	if err != nil || st.Terminal() {
		return digest, st, err
	}
	cutoff, err := e.ledger.Cutoff(o.Offerer)
	if err != nil {
		return digest, st, err
	}
	if o.CreatedTime <= cutoff {
		return digest, ledger.Canceled, nil
	}
	return digest, ledger.Open, nil
}

// FeeParameters returns the parameters settlement would use right now
func (e *Engine) FeeParameters(ctx context.Context) (FeeParameters, error) {
	return e.params.FeeParameters(ctx)
}

func (e *Engine) now() uint64 { return util.UnixNow(e.clock) }

// checkOpen runs the shared pipeline every settlement starts with:
// signature, ledger status, then the time window.
func (e *Engine) checkOpen(o *order.Order, digest common.Hash, signature []byte, now uint64) error {
	if !crypto.Verify(digest, signature, o.Offerer) {
		return ErrInvalidSignatureOrSigner
	}
	if err := e.checkLedgerOpen(o, digest); err != nil {
		return err
	}
	if now < o.StartTime {
		return fmt.Errorf("%w: starts at %d, now %d", ErrOrderNotStartedYet, o.StartTime, now)
	}
	if now >= o.EndTime {
		return fmt.Errorf("%w: ended at %d, now %d", ErrOrderExpired, o.EndTime, now)
	}
	return nil
}

func (e *Engine) checkLedgerOpen(o *order.Order, digest common.Hash) error {
	st, err := e.ledger.Status(digest)
	if err != nil {
		return fmt.Errorf("ledger read: %w", err)
	}
	if st.Terminal() {
		return fmt.Errorf("%w: %s", ErrOrderAlreadyClaimedOrCanceled, st)
	}
	cutoff, err := e.ledger.Cutoff(o.Offerer)
	if err != nil {
		return fmt.Errorf("ledger read: %w", err)
	}
	if o.CreatedTime <= cutoff {
		return fmt.Errorf("%w: created at %d, offerer canceled all orders up to %d",
			ErrOrderAlreadyClaimedOrCanceled, o.CreatedTime, cutoff)
	}
	return nil
}

// checkOwner requires holder to own instanceID in collection
func (e *Engine) checkOwner(ctx context.Context, nft NonFungibleLedger, instanceID *big.Int, holder common.Address) error {
	owner, err := nft.OwnerOf(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("%w: instance %s: %v", ErrOwnerMismatch, instanceID, err)
	}
	if owner != holder {
		return fmt.Errorf("%w: instance %s held by %s, not %s", ErrOwnerMismatch, instanceID, owner.Hex(), holder.Hex())
	}
	return nil
}

func (e *Engine) checkApproved(ctx context.Context, nft NonFungibleLedger, holder common.Address) error {
	ok, err := nft.IsApprovedForAll(ctx, holder, e.operator)
	if err != nil {
		return fmt.Errorf("approval lookup: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: holder %s", ErrNotApprovedForAll, holder.Hex())
	}
	return nil
}

func (e *Engine) nonFungible(asset common.Address) (NonFungibleLedger, error) {
	nft, err := e.assets.NonFungible(asset)
	if err != nil {
		return nil, fmt.Errorf("%w: collection %s: %v", ErrUnknownAsset, asset.Hex(), err)
	}
	return nft, nil
}

func (e *Engine) fungible(asset common.Address) (FungibleLedger, error) {
	tok, err := e.assets.Fungible(asset)
	if err != nil {
		return nil, fmt.Errorf("%w: token %s: %v", ErrUnknownAsset, asset.Hex(), err)
	}
	return tok, nil
}

func (e *Engine) feeParameters(ctx context.Context) (FeeParameters, error) {
	p, err := e.params.FeeParameters(ctx)
	if err != nil {
		return FeeParameters{}, fmt.Errorf("fee parameters: %w", err)
	}
	if err := p.Validate(); err != nil {
		return FeeParameters{}, err
	}
	return p, nil
}

// isPremium reports whether party holds the premium asset. A missing or
// unknown premium collection disables the discount rather than failing trades.
func (e *Engine) isPremium(ctx context.Context, params FeeParameters, party common.Address) bool {
	if params.PremiumAsset == (common.Address{}) || params.PremiumDiscountRateBps == 0 {
		return false
	}
	nft, err := e.assets.NonFungible(params.PremiumAsset)
	if err != nil {
		e.logger.Warnw("premium_asset_unavailable", "asset", params.PremiumAsset.Hex(), "err", err)
		return false
	}
	bal, err := nft.BalanceOf(ctx, party)
	if err != nil {
		e.logger.Warnw("premium_lookup_failed", "party", party.Hex(), "err", err)
		return false
	}
	return bal.Sign() > 0
}

func (e *Engine) split(ctx context.Context, params FeeParameters, o *order.Order, amount *big.Int, seller, buyer common.Address) (Split, error) {
	return ComputeSplit(amount, o.RoyaltyRateBps, params, e.policy,
		e.isPremium(ctx, params, seller), e.isPremium(ctx, params, buyer))
}

// commit finalizes the ledger entries before any asset moves. Under the
// engine lock the entries were checked open moments ago, so a failure here
// means the store itself failed and nothing has been transferred.
func (e *Engine) commit(receipts []*Receipt, by common.Address, to ledger.Status) error {
	changes := make([]ledger.Change, len(receipts))
	for i, r := range receipts {
		r.Status = to
		changes[i] = ledger.Change{Digest: r.Digest, To: to, By: by, Ref: r.ID}
	}
	if err := e.ledger.TransitionAll(receipts[0].At, changes); err != nil {
		if errors.Is(err, ledger.ErrAlreadyFinalized) {
			return fmt.Errorf("%w (%w)", ErrOrderAlreadyClaimedOrCanceled, err)
		}
		return fmt.Errorf("ledger commit: %w", err)
	}
	return nil
}

// executionFailed reports a collaborator failure after the digest was
// finalized. The digest stays terminal so the order can never settle twice.
func (e *Engine) executionFailed(r *Receipt, err error) error {
	e.logger.Errorw("settlement_execution_failed", "receipt", r.ID, "digest", r.Digest.Hex(), "err", err)
	return fmt.Errorf("receipt %s: %w", r.ID, err)
}

// finish reports an outcome to logs, the observer and hooks.
// Must be called without e.mu held.
func (e *Engine) finish(op Operation, receipts []*Receipt, err error) {
	if err != nil {
		e.logger.Infow("settlement_rejected", "op", op, "code", Code(err), "err", err)
		if e.observer != nil {
			e.observer.ObserveRejection(op, err)
		}
		return
	}

	for _, r := range receipts {
		if r.Status == ledger.Canceled {
			e.logger.Infow("order_canceled", "op", op, "digest", r.Digest.Hex(), "offerer", r.Offerer.Hex(), "cutoff", r.Cutoff)
		} else {
			e.logger.Infow("order_settled",
				"op", op,
				"receipt", r.ID,
				"digest", r.Digest.Hex(),
				"kind", r.Kind.String(),
				"offerer", r.Offerer.Hex(),
				"taker", r.Taker.Hex(),
				"instance", r.InstanceID,
				"amount", r.Split.Amount,
				"royalty", r.Split.Royalty,
				"platform_fee", r.Split.PlatformFee,
			)
		}
		if e.observer != nil {
			e.observer.ObserveReceipt(r)
		}
		if r.Status == ledger.Canceled {
			if e.OnCanceled != nil {
				e.OnCanceled(r)
			}
		} else if e.OnSettled != nil {
			e.OnSettled(r)
		}
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/marketsettle/pkg/crypto"
	"github.com/uhyunpark/marketsettle/pkg/ledger"
	"github.com/uhyunpark/marketsettle/pkg/order"
	"github.com/uhyunpark/marketsettle/pkg/settlement"
	"github.com/uhyunpark/marketsettle/pkg/transaction"
)

const maxBodyBytes = 1 << 20

// Options configures a Server. Zero values are usable.
type Options struct {
	Logger      *zap.SugaredLogger
	Metrics     http.Handler // served at /metrics when set
	CORSOrigins []string
	// Decimals reports the display decimals of a payment asset
	// (zero address: native currency). Defaults to 18 for everything.
	Decimals func(asset common.Address) int32
}

// Server handles REST API and WebSocket connections
type Server struct {
	engine   *settlement.Engine
	verifier *transaction.Verifier
	router   *mux.Router
	hub      *Hub // WebSocket hub
	logger   *zap.SugaredLogger
	opts     Options
}

// NewServer creates a new API server
func NewServer(engine *settlement.Engine, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if opts.Decimals == nil {
		opts.Decimals = func(common.Address) int32 { return 18 }
	}

	s := &Server{
		engine:   engine,
		verifier: transaction.NewVerifier(engine.Encoder()),
		router:   mux.NewRouter(),
		hub:      NewHub(opts.Logger),
		logger:   opts.Logger,
		opts:     opts,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Domain and fee schedule
	api.HandleFunc("/domain", s.handleGetDomain).Methods("GET")
	api.HandleFunc("/fees", s.handleGetFees).Methods("GET")

	// Order intents
	api.HandleFunc("/orders/digest", s.handleDigest).Methods("POST")
	api.HandleFunc("/orders/verify", s.handleVerify).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/cancel-all", s.handleCancelAll).Methods("POST")
	api.HandleFunc("/orders/{digest}", s.handleGetOrder).Methods("GET")

	// Settlement
	api.HandleFunc("/settle/direct", s.handleSettleDirect).Methods("POST")
	api.HandleFunc("/settle/targeted", s.handleSettleTargeted).Methods("POST")
	api.HandleFunc("/settle/collection", s.handleSettleCollection).Methods("POST")
	api.HandleFunc("/settle/batch", s.handleSettleBatch).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.opts.Metrics != nil {
		s.router.Handle("/metrics", s.opts.Metrics).Methods("GET")
	}
}

// Handler returns the router wrapped with CORS
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start runs the WebSocket hub and serves HTTP until ctx is done
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Infow("api_server_starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetDomain(w http.ResponseWriter, r *http.Request) {
	d := s.engine.Encoder().Domain()
	respondJSON(w, DomainInfo{
		Name:              d.Name,
		Version:           d.Version,
		ChainID:           d.ChainID.String(),
		VerifyingContract: d.VerifyingContract.Hex(),
	})
}

func (s *Server) handleGetFees(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.FeeParameters(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Internal", err.Error())
		return
	}
	info := FeesInfo{
		PlatformFeeBps:     p.PlatformFeeRateBps,
		PremiumDiscountBps: p.PremiumDiscountRateBps,
	}
	if p.PremiumAsset != (common.Address{}) {
		info.PremiumAsset = p.PremiumAsset.Hex()
	}
	respondJSON(w, info)
}

func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if !decode(w, r, &req) {
		return
	}
	o, ok := toOrder(w, &req.Order)
	if !ok {
		return
	}

	digest, st, err := s.engine.EffectiveStatus(o)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, DigestResponse{Digest: digest.Hex(), Status: st.String()})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decode(w, r, &req) {
		return
	}
	o, ok := toOrder(w, &req.Order)
	if !ok {
		return
	}

	signer := o.Offerer
	if req.Signer != "" {
		addr, err := crypto.ParseAddress(req.Signer)
		if err != nil {
			respondError(w, http.StatusBadRequest, "MalformedOrder", "signer: "+err.Error())
			return
		}
		signer = addr
	}

	digest, err := s.engine.Digest(o)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	// a signature that does not decode is simply not valid
	sig, _ := transaction.DecodeSignature(req.Signature)
	respondJSON(w, VerifyResponse{
		Digest: digest.Hex(),
		Signer: signer.Hex(),
		Valid:  sig != nil && s.engine.Verify(digest, sig, signer),
	})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["digest"]
	b, err := decodeHex(raw)
	if err != nil || len(b) != common.HashLength {
		respondError(w, http.StatusBadRequest, "MalformedOrder", "digest must be 32 bytes of hex")
		return
	}
	digest := common.BytesToHash(b)

	rec, err := s.engine.OrderRecord(digest)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	info := OrderStatusInfo{Digest: digest.Hex(), Status: rec.Status.String()}
	if rec.Status.Terminal() {
		info.UpdatedAt = rec.UpdatedAt
		info.By = rec.By.Hex()
		info.Receipt = rec.Ref
	}
	respondJSON(w, info)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req transaction.CancelRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		respondInvalidRequest(w, "MalformedOrder", err)
		return
	}
	o, ok := toOrder(w, &req.Order)
	if !ok {
		return
	}
	sig, ok := signature(w, req.Signature)
	if !ok {
		return
	}
	digest, err := s.engine.Digest(o)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	caller, ok := s.authenticate(w, crypto.ActionCancel, digest, nil, nil, req.Auth)
	if !ok {
		return
	}

	rc, err := s.engine.CancelOrder(r.Context(), o, sig, settlement.Call{Caller: caller})
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, s.receiptInfo(rc))
}

func (s *Server) handleCancelAll(w http.ResponseWriter, r *http.Request) {
	var req transaction.CancelAllRequest
	if !decode(w, r, &req) {
		return
	}
	caller, ok := s.authenticate(w, crypto.ActionCancelAll, common.Hash{}, nil, nil, req.Auth)
	if !ok {
		return
	}

	rc, err := s.engine.CancelAllOrders(r.Context(), settlement.Call{Caller: caller})
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, s.receiptInfo(rc))
}

func (s *Server) handleSettleDirect(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, order.DirectSale)
}

func (s *Server) handleSettleTargeted(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, order.TargetedOffer)
}

func (s *Server) handleSettleCollection(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, order.CollectionOffer)
}

// settle serves the three single-order settlement endpoints. The caller's
// authorization binds the digest, the chosen instance and the value sent.
func (s *Server) settle(w http.ResponseWriter, r *http.Request, kind order.Kind) {
	var req transaction.SettleRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		respondInvalidRequest(w, "MalformedOrder", err)
		return
	}
	o, ok := toOrder(w, &req.Order)
	if !ok {
		return
	}
	sig, ok := signature(w, req.Signature)
	if !ok {
		return
	}
	value, err := transaction.ParseOptionalInteger("value", req.Value)
	if err != nil {
		respondError(w, http.StatusBadRequest, "MalformedOrder", err.Error())
		return
	}
	var instance *big.Int
	if kind == order.CollectionOffer {
		if instance, err = transaction.ParseInteger("instance_id", req.InstanceID); err != nil {
			respondError(w, http.StatusBadRequest, "MalformedOrder", err.Error())
			return
		}
	}

	digest, err := s.engine.Digest(o)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	caller, ok := s.authenticate(w, crypto.ActionSettle, digest, instance, value, req.Auth)
	if !ok {
		return
	}

	call := settlement.Call{Caller: caller, Value: value}
	var rc *settlement.Receipt
	switch kind {
	case order.DirectSale:
		rc, err = s.engine.SettleDirectSale(r.Context(), o, sig, call)
	case order.TargetedOffer:
		rc, err = s.engine.SettleTargetedOffer(r.Context(), o, sig, call)
	default:
		rc, err = s.engine.SettleCollectionOffer(r.Context(), o, sig, instance, call)
	}
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, s.receiptInfo(rc))
}

func (s *Server) handleSettleBatch(w http.ResponseWriter, r *http.Request) {
	var req transaction.BatchRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		respondInvalidRequest(w, "BatchLengthMismatch", err)
		return
	}
	if len(req.Orders) != len(req.Signatures) || len(req.Orders) != len(req.RoyaltyOverridesBps) {
		respondError(w, http.StatusBadRequest, "BatchLengthMismatch", "orders, signatures and royalty_overrides_bps must have the same length")
		return
	}

	orders := make([]*order.Order, len(req.Orders))
	sigs := make([][]byte, len(req.Orders))
	digests := make([]common.Hash, len(req.Orders))
	for i := range req.Orders {
		o, err := req.Orders[i].ToOrder()
		if err != nil {
			respondBatchError(w, http.StatusBadRequest, "MalformedOrder", err.Error(), i)
			return
		}
		sig, err := transaction.DecodeSignature(req.Signatures[i])
		if err != nil {
			respondBatchError(w, http.StatusBadRequest, "InvalidSignatureOrSigner", err.Error(), i)
			return
		}
		d, err := s.engine.Digest(o)
		if err != nil {
			respondBatchError(w, http.StatusBadRequest, settlement.Code(err), err.Error(), i)
			return
		}
		orders[i], sigs[i], digests[i] = o, sig, d
	}
	value, err := transaction.ParseOptionalInteger("value", req.Value)
	if err != nil {
		respondError(w, http.StatusBadRequest, "MalformedOrder", err.Error())
		return
	}

	caller, ok := s.authenticate(w, crypto.ActionSettle, crypto.BatchSubject(digests), nil, value, req.Auth)
	if !ok {
		return
	}

	rcs, err := s.engine.SettleBatch(r.Context(), orders, sigs, req.RoyaltyOverridesBps, settlement.Call{Caller: caller, Value: value})
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	resp := BatchResponse{Receipts: make([]ReceiptInfo, len(rcs))}
	for i, rc := range rcs {
		resp.Receipts[i] = s.receiptInfo(rc)
	}
	respondJSON(w, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts, err := s.engine.LedgerCounts()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "Internal", err.Error())
		return
	}
	respondJSON(w, HealthResponse{
		Status:   "ok",
		Settled:  counts[ledger.Settled],
		Canceled: counts[ledger.Canceled],
	})
}

// ==============================
// Broadcast Methods (called from engine hooks)
// ==============================

// BroadcastReceipt pushes a receipt to "orders" and to its offerer's channel
func (s *Server) BroadcastReceipt(rc *settlement.Receipt) {
	update := ReceiptUpdate{Type: "receipt", Receipt: s.receiptInfo(rc)}
	s.hub.BroadcastToChannel("orders", update)
	s.hub.BroadcastToChannel(normalizeChannel("orders:"+rc.Offerer.Hex()), update)
}

// ==============================
// Helper Functions
// ==============================

func (s *Server) authenticate(w http.ResponseWriter, action crypto.Action, subject common.Hash, instance, value *big.Int, auth transaction.AuthPayload) (common.Address, bool) {
	caller, err := s.verifier.Authenticate(action, subject, instance, value, auth)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Unauthenticated", err.Error())
		return common.Address{}, false
	}
	return caller, true
}

func (s *Server) receiptInfo(rc *settlement.Receipt) ReceiptInfo {
	info := ReceiptInfo{
		ID:        rc.ID,
		Operation: string(rc.Operation),
		Status:    rc.Status.String(),
		Offerer:   rc.Offerer.Hex(),
		Taker:     rc.Taker.Hex(),
		At:        rc.At,
		Cutoff:    rc.Cutoff,
	}
	if rc.Operation == settlement.OpCancelAll {
		return info
	}
	info.Digest = rc.Digest.Hex()
	info.Kind = rc.Kind.String()
	if rc.Status == ledger.Canceled {
		return info
	}

	info.Collection = rc.Collection.Hex()
	if rc.InstanceID != nil {
		info.InstanceID = rc.InstanceID.String()
	}
	if rc.PaymentAsset != (common.Address{}) {
		info.PaymentAsset = rc.PaymentAsset.Hex()
	}
	if rc.RoyaltyReceiver != (common.Address{}) {
		info.RoyaltyReceiver = rc.RoyaltyReceiver.Hex()
	}
	sp := rc.Split
	if sp.Amount != nil {
		info.Amount = sp.Amount.String()
		info.AmountDisplay = transaction.FormatUnits(sp.Amount, s.opts.Decimals(rc.PaymentAsset))
		info.Royalty = sp.Royalty.String()
		info.PlatformFee = sp.PlatformFee.String()
		info.SellerProceeds = sp.SellerProceeds.String()
		info.BuyerCashback = sp.BuyerCashback.String()
	}
	return info
}

// statusFor maps engine error codes to HTTP statuses
var statusFor = map[string]int{
	"MalformedOrder":                       http.StatusBadRequest,
	"UnsupportedOrderTypeForThisOperation": http.StatusBadRequest,
	"BatchLengthMismatch":                  http.StatusBadRequest,
	"IncorrectPaymentValue":                http.StatusBadRequest,
	"InvalidSignatureOrSigner":             http.StatusUnauthorized,
	"Unauthorized":                         http.StatusForbidden,
	"UnknownAsset":                         http.StatusNotFound,
	"OrderAlreadyClaimedOrCanceled":        http.StatusConflict,
	"OrderAlreadyFinalized":                http.StatusConflict,
	"OrderNotStartedYet":                   http.StatusUnprocessableEntity,
	"OrderExpired":                         http.StatusUnprocessableEntity,
	"OwnerMismatch":                        http.StatusUnprocessableEntity,
	"InsufficientAllowanceOrBalance":       http.StatusUnprocessableEntity,
	"NotApprovedForAll":                    http.StatusUnprocessableEntity,
	"BatchAtomicityViolation":              http.StatusUnprocessableEntity,
}

func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	code := settlement.Code(err)
	status, ok := statusFor[code]
	if !ok {
		status = http.StatusInternalServerError
		s.logger.Errorw("api_internal_error", "err", err)
	}

	var be *settlement.BatchError
	if errors.As(err, &be) {
		respondBatchError(w, status, code, err.Error(), be.Index)
		return
	}
	respondError(w, status, code, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "MalformedOrder", "invalid request body: "+err.Error())
		return false
	}
	return true
}

func toOrder(w http.ResponseWriter, p *transaction.OrderPayload) (*order.Order, bool) {
	o, err := p.ToOrder()
	if err != nil {
		respondError(w, http.StatusBadRequest, "MalformedOrder", err.Error())
		return nil, false
	}
	return o, true
}

func signature(w http.ResponseWriter, s string) ([]byte, bool) {
	sig, err := transaction.DecodeSignature(s)
	if err != nil {
		respondError(w, http.StatusBadRequest, "InvalidSignatureOrSigner", err.Error())
		return nil, false
	}
	return sig, true
}

func decodeHex(s string) ([]byte, error) {
	return hexutil.Decode(strings.TrimSpace(s))
}

// normalizeChannel lowercases address suffixes so checksummed and plain
// addresses name the same channel
func normalizeChannel(ch string) string {
	return strings.ToLower(ch)
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

// respondInvalidRequest answers a failed request shape check: missing caller
// authorization is 401, anything else is a 400 with code
func respondInvalidRequest(w http.ResponseWriter, code string, err error) {
	if errors.Is(err, transaction.ErrUnauthenticated) {
		respondError(w, http.StatusUnauthorized, "Unauthenticated", err.Error())
		return
	}
	respondError(w, http.StatusBadRequest, code, err.Error())
}

func respondBatchError(w http.ResponseWriter, status int, code, message string, index int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   code,
		Message: message,
		Index:   &index,
	})
}

package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/uhyunpark/marketsettle/params"
	"github.com/uhyunpark/marketsettle/pkg/api"
	"github.com/uhyunpark/marketsettle/pkg/crypto"
	"github.com/uhyunpark/marketsettle/pkg/custody"
	"github.com/uhyunpark/marketsettle/pkg/ledger"
	"github.com/uhyunpark/marketsettle/pkg/metrics"
	"github.com/uhyunpark/marketsettle/pkg/settlement"
	"github.com/uhyunpark/marketsettle/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "level", cfg.Node.LogLevel)

	operator, err := crypto.ParseAddress(cfg.Domain.EngineAddress)
	if err != nil {
		sugar.Fatalw("invalid_engine_address", "err", err)
	}

	// ---- Ledger ----
	var store ledger.Store
	if cfg.Node.LedgerPath != "" {
		ps, err := ledger.NewPebbleStore(cfg.Node.LedgerPath)
		if err != nil {
			sugar.Fatalw("ledger_open_failed", "path", cfg.Node.LedgerPath, "err", err)
		}
		store = ps
	} else {
		store = ledger.NewMemoryStore()
		sugar.Warn("ledger_in_memory - settlement state is lost on restart")
	}
	orders := ledger.New(store)
	defer orders.Close()

	// ---- Custody ----
	registry := custody.NewRegistry(operator)
	vault := custody.NewVault(operator)
	if cfg.Node.GenesisFile != "" {
		g, err := custody.LoadGenesis(cfg.Node.GenesisFile)
		if err != nil {
			sugar.Fatalw("genesis_load_failed", "err", err)
		}
		if err := g.Apply(registry, vault); err != nil {
			sugar.Fatalw("genesis_apply_failed", "err", err)
		}
		sugar.Infow("genesis_applied", "file", cfg.Node.GenesisFile,
			"collections", len(g.Collections), "tokens", len(g.Tokens))
	}

	fees := settlement.FeeParameters{
		PlatformFeeRateBps:     cfg.Fees.PlatformFeeBps,
		PremiumDiscountRateBps: cfg.Fees.PremiumDiscountBps,
	}
	if cfg.Fees.PremiumAsset != "" {
		if fees.PremiumAsset, err = crypto.ParseAddress(cfg.Fees.PremiumAsset); err != nil {
			sugar.Fatalw("invalid_premium_asset", "err", err)
		}
	}
	parameters, err := custody.NewParameters(fees)
	if err != nil {
		sugar.Fatalw("invalid_fee_parameters", "err", err)
	}
	policy, err := settlement.PolicyByName(cfg.Fees.DiscountPolicy)
	if err != nil {
		sugar.Fatalw("invalid_discount_policy", "err", err)
	}

	// display precision of a payment asset; the zero address is native currency
	decimals := func(asset common.Address) int32 {
		if t, ok := registry.Token(asset); ok {
			return t.Decimals()
		}
		return custody.NativeDecimals
	}

	// ---- Metrics ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(reg, decimals)

	// ---- Settlement engine ----
	encoder := crypto.NewEncoder(crypto.Domain{
		Name:              cfg.Domain.Name,
		Version:           cfg.Domain.Version,
		ChainID:           big.NewInt(cfg.Domain.ChainID),
		VerifyingContract: operator,
	})
	engine, err := settlement.NewEngine(settlement.Deps{
		Ledger:   orders,
		Assets:   registry,
		Vault:    vault,
		Params:   parameters,
		Domain:   encoder,
		Clock:    util.RealClock{},
		Operator: operator,
		Policy:   policy,
		Logger:   sugar,
		Observer: recorder,
	})
	if err != nil {
		sugar.Fatalw("engine_init_failed", "err", err)
	}

	// ---- API Server ----
	apiServer := api.NewServer(engine, api.Options{
		Logger:      sugar,
		Metrics:     recorder.Handler(),
		CORSOrigins: cfg.Node.CORSOrigins,
		Decimals:    decimals,
	})

	// Hook engine to API server: push receipts to WebSocket subscribers
	engine.OnSettled = apiServer.BroadcastReceipt
	engine.OnCanceled = apiServer.BroadcastReceipt

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Infow("node_starting",
		"domain", cfg.Domain.Name,
		"chain_id", cfg.Domain.ChainID,
		"engine", operator.Hex(),
		"platform_fee_bps", fees.PlatformFeeRateBps,
		"premium_discount_bps", fees.PremiumDiscountRateBps,
		"discount_policy", cfg.Fees.DiscountPolicy)

	if err := apiServer.Start(ctx, cfg.Node.APIAddr); err != nil {
		sugar.Fatalw("api_server_failed", "err", err)
	}
	sugar.Info("node_stopped")
}

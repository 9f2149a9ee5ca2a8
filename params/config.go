package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Domain identifies the signing domain orders are bound to
type Domain struct {
	Name          string
	Version       string
	ChainID       int64
	EngineAddress string // hex; also the custody operator
}

// Fees seeds the administrative fee parameters at startup
type Fees struct {
	PlatformFeeBps     uint64
	PremiumDiscountBps uint64
	PremiumAsset       string // hex, empty disables discounts
	// DiscountPolicy is "stacked" (each premium party gets its own discount)
	// or "capped" (one discount, credited to the seller).
	DiscountPolicy string
}

type Node struct {
	LedgerPath  string // empty: in-memory ledger
	APIAddr     string
	LogFile     string
	LogLevel    string
	GenesisFile string // empty: no preloaded assets
	CORSOrigins []string
}

type Config struct {
	Domain Domain
	Fees   Fees
	Node   Node
}

func Default() Config {
	return Config{
		Domain: Domain{
			Name:          "MarketSettle",
			Version:       "1",
			ChainID:       1337,
			EngineAddress: "0x00000000000000000000000000000000000E0E0E",
		},
		Fees: Fees{
			PlatformFeeBps:     200, // 2%
			PremiumDiscountBps: 100, // 1%
			DiscountPolicy:     "stacked",
		},
		Node: Node{
			LedgerPath:  "data/ledger",
			APIAddr:     ":8080",
			LogFile:     "data/node.log",
			LogLevel:    "info",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Domain.Name = getEnv("DOMAIN_NAME", cfg.Domain.Name)
	cfg.Domain.Version = getEnv("DOMAIN_VERSION", cfg.Domain.Version)
	if id := os.Getenv("CHAIN_ID"); id != "" {
		if v, err := strconv.ParseInt(id, 10, 64); err == nil {
			cfg.Domain.ChainID = v
		}
	}
	cfg.Domain.EngineAddress = getEnv("ENGINE_ADDRESS", cfg.Domain.EngineAddress)

	if fee := os.Getenv("PLATFORM_FEE_BPS"); fee != "" {
		if v, err := strconv.ParseUint(fee, 10, 64); err == nil {
			cfg.Fees.PlatformFeeBps = v
		}
	}
	if disc := os.Getenv("PREMIUM_DISCOUNT_BPS"); disc != "" {
		if v, err := strconv.ParseUint(disc, 10, 64); err == nil {
			cfg.Fees.PremiumDiscountBps = v
		}
	}
	cfg.Fees.PremiumAsset = getEnv("PREMIUM_ASSET", cfg.Fees.PremiumAsset)
	cfg.Fees.DiscountPolicy = getEnv("DISCOUNT_POLICY", cfg.Fees.DiscountPolicy)

	cfg.Node.LedgerPath = getEnv("LEDGER_PATH", cfg.Node.LedgerPath)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)
	cfg.Node.GenesisFile = getEnv("GENESIS_FILE", cfg.Node.GenesisFile)

	// Example: "http://localhost:3000,https://app.example.com"
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.Node.CORSOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Node.CORSOrigins = append(cfg.Node.CORSOrigins, o)
			}
		}
	}

	return cfg
}

// Validate checks values LoadFromEnv cannot fix up on its own
func (c Config) Validate() error {
	if c.Domain.Name == "" || c.Domain.Version == "" {
		return fmt.Errorf("domain name and version are required")
	}
	if c.Domain.ChainID <= 0 {
		return fmt.Errorf("chain id must be positive, got %d", c.Domain.ChainID)
	}
	if c.Domain.EngineAddress == "" {
		return fmt.Errorf("ENGINE_ADDRESS is required")
	}
	if c.Fees.PlatformFeeBps > 10000 || c.Fees.PremiumDiscountBps > 10000 {
		return fmt.Errorf("fee rates must be at most 10000 bps")
	}
	if c.Node.APIAddr == "" {
		return fmt.Errorf("API_ADDR is required")
	}
	return nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

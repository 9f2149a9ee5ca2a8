package params

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate(): %v", err)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("CHAIN_ID", "31337")
	t.Setenv("PLATFORM_FEE_BPS", "250")
	t.Setenv("DISCOUNT_POLICY", "capped")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))

	if cfg.Domain.ChainID != 31337 {
		t.Errorf("ChainID = %d, want 31337", cfg.Domain.ChainID)
	}
	if cfg.Fees.PlatformFeeBps != 250 {
		t.Errorf("PlatformFeeBps = %d, want 250", cfg.Fees.PlatformFeeBps)
	}
	if cfg.Fees.DiscountPolicy != "capped" {
		t.Errorf("DiscountPolicy = %q, want capped", cfg.Fees.DiscountPolicy)
	}
	if len(cfg.Node.CORSOrigins) != 2 || cfg.Node.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.Node.CORSOrigins)
	}
	// untouched keys keep their defaults
	if cfg.Fees.PremiumDiscountBps != 100 || cfg.Domain.Name != "MarketSettle" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("DOMAIN_NAME=Testnet Market\nPREMIUM_DISCOUNT_BPS=50\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	// godotenv does not override variables already set; register cleanup for the ones it sets
	t.Setenv("DOMAIN_NAME", "")
	t.Setenv("PREMIUM_DISCOUNT_BPS", "")
	os.Unsetenv("DOMAIN_NAME")
	os.Unsetenv("PREMIUM_DISCOUNT_BPS")

	cfg := LoadFromEnv(path)
	if cfg.Domain.Name != "Testnet Market" {
		t.Errorf("Name = %q", cfg.Domain.Name)
	}
	if cfg.Fees.PremiumDiscountBps != 50 {
		t.Errorf("PremiumDiscountBps = %d, want 50", cfg.Fees.PremiumDiscountBps)
	}
}

func TestLoadFromEnvIgnoresBadNumbers(t *testing.T) {
	t.Setenv("PLATFORM_FEE_BPS", "two percent")
	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	if cfg.Fees.PlatformFeeBps != 200 {
		t.Errorf("PlatformFeeBps = %d, want default 200", cfg.Fees.PlatformFeeBps)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no chain id", func(c *Config) { c.Domain.ChainID = 0 }},
		{"no engine", func(c *Config) { c.Domain.EngineAddress = "" }},
		{"fee over 100%", func(c *Config) { c.Fees.PlatformFeeBps = 10001 }},
		{"no api addr", func(c *Config) { c.Node.APIAddr = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

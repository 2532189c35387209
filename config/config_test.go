package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gguuttss/RadixPlaza/crypto"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plazad.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != ":7080" || cfg.Environment != "dev" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.DataDir != cfg.DataDir || reloaded.RateLimit != cfg.RateLimit {
		t.Fatalf("reloaded config differs: %+v vs %+v", reloaded, cfg)
	}
}

func TestLoadParsesSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plazad.toml")
	contents := `ListenAddress = "127.0.0.1:9000"
DataDir = "/var/lib/plaza"
PairsFile = "pairs.yaml"
Environment = "prod"
LogFile = "/var/log/plazad.log"
StreamOrigins = ["dash.plaza.dev"]

[rate_limit]
RequestsPerSecond = 5.5

[telemetry]
Enabled = true
Endpoint = "otel:4318"
Insecure = true
Traces = true

[pauses]
Pair = true
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:9000" || cfg.Environment != "prod" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.JournalPath != filepath.Join("/var/lib/plaza", "journal.sqlite") {
		t.Fatalf("journal path default not derived from data dir: %s", cfg.JournalPath)
	}
	if cfg.RateLimit.Burst != 5 {
		t.Fatalf("expected burst default 5, got %d", cfg.RateLimit.Burst)
	}
	if len(cfg.StreamOrigins) != 1 || cfg.StreamOrigins[0] != "dash.plaza.dev" {
		t.Fatalf("stream origins not parsed: %v", cfg.StreamOrigins)
	}
	if !cfg.Telemetry.Traces || cfg.Telemetry.Endpoint != "otel:4318" {
		t.Fatalf("telemetry not parsed: %+v", cfg.Telemetry)
	}
	if modules := cfg.Pauses.Modules(); len(modules) != 1 || modules[0] != "pair" {
		t.Fatalf("unexpected paused modules %v", modules)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plazad.toml")
	if err := os.WriteFile(path, []byte("ListenAddres = \":1\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	base := Config{ListenAddress: ":1", DataDir: "data"}
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "valid", mutate: func(*Config) {}, ok: true},
		{name: "no listen", mutate: func(c *Config) { c.ListenAddress = " " }},
		{name: "negative rate", mutate: func(c *Config) { c.RateLimit.RequestsPerSecond = -1 }},
		{name: "missing burst", mutate: func(c *Config) { c.RateLimit.RequestsPerSecond = 1 }},
		{name: "telemetry without endpoint", mutate: func(c *Config) { c.Telemetry.Enabled = true }},
		{name: "sample ratio above one", mutate: func(c *Config) { c.Telemetry.SampleRatio = 1.5 }},
		{name: "auth without secret", mutate: func(c *Config) { c.Auth.Enabled = true; c.Auth.HMACSecret = "short" }},
		{name: "auth with secret", mutate: func(c *Config) {
			c.Auth.Enabled = true
			c.Auth.HMACSecret = strings.Repeat("k", 32)
		}, ok: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := ValidateConfig(&cfg)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadPairs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.yaml")
	contents := `pairs:
  - base: xrd
    quote: USDC
    initial_price: "0.05"
    k_in: "0.4"
    quote_divisibility: 6
    seed:
      base: "1000"
      quote: "50"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	defs, err := LoadPairs(path)
	if err != nil {
		t.Fatalf("load pairs: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("expected one pair, got %d", len(defs))
	}
	cfg, price, err := defs[0].PairConfig()
	if err != nil {
		t.Fatalf("pair config: %v", err)
	}
	if price.String() != "0.05" || cfg.KIn.String() != "0.4" || cfg.KOut.String() != defaultKOut {
		t.Fatalf("unexpected parameters %+v price %s", cfg, price)
	}
	if cfg.QuoteDivisibility != 6 || cfg.BaseDivisibility != 18 {
		t.Fatalf("unexpected divisibility %d/%d", cfg.BaseDivisibility, cfg.QuoteDivisibility)
	}
	base, quote, err := defs[0].Resources()
	if err != nil {
		t.Fatalf("resources: %v", err)
	}
	if base != crypto.DeriveAddress(crypto.ResourcePrefix, []byte("XRD")) || base == quote {
		t.Fatalf("unexpected resources %s %s", base, quote)
	}
	seedBase, seedQuote, err := defs[0].SeedAmounts()
	if err != nil || seedBase.String() != "1000" || seedQuote.String() != "50" {
		t.Fatalf("unexpected seed %s %s %v", seedBase, seedQuote, err)
	}
}

func TestLoadPairsRejectsInvalidDefinitions(t *testing.T) {
	cases := map[string]string{
		"missing price": "pairs:\n  - base: A\n    quote: B\n",
		"same assets":   "pairs:\n  - base: A\n    quote: a\n    initial_price: \"1\"\n",
		"bad fee":       "pairs:\n  - base: A\n    quote: B\n    initial_price: \"1\"\n    fee: \"1.5\"\n",
		"duplicate":     "pairs:\n  - base: A\n    quote: B\n    initial_price: \"1\"\n  - base: a\n    quote: b\n    initial_price: \"2\"\n",
		"unknown field": "pairs:\n  - base: A\n    quote: B\n    initial_price: \"1\"\n    slippage: 3\n",
		"negative seed": "pairs:\n  - base: A\n    quote: B\n    initial_price: \"1\"\n    seed:\n      base: \"-1\"\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "pairs.yaml")
			if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := LoadPairs(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestResolveResourceAcceptsBech32(t *testing.T) {
	addr := crypto.DeriveAddress(crypto.ResourcePrefix, []byte("XRD"))
	resolved, err := ResolveResource(addr.String())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved != addr {
		t.Fatalf("expected %s, got %s", addr, resolved)
	}
	if sym, _ := ResolveResource("xrd"); sym != addr {
		t.Fatalf("symbol lookup should be case-insensitive")
	}
}

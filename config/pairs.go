package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/gguuttss/RadixPlaza/crypto"
	"github.com/gguuttss/RadixPlaza/native/pair"
)

// PairsFile lists the pairs the daemon instantiates at start-up.
type PairsFile struct {
	Pairs []PairDefinition `yaml:"pairs"`
}

// PairDefinition describes one pair. Base and quote are either bech32
// resource addresses or symbols, which map to derived resource addresses.
type PairDefinition struct {
	Base              string `yaml:"base"`
	Quote             string `yaml:"quote"`
	InitialPrice      string `yaml:"initial_price"`
	KIn               string `yaml:"k_in"`
	KOut              string `yaml:"k_out"`
	Fee               string `yaml:"fee"`
	DecayFactor       string `yaml:"decay_factor"`
	BaseDivisibility  *uint8 `yaml:"base_divisibility"`
	QuoteDivisibility *uint8 `yaml:"quote_divisibility"`
	Seed              Seed   `yaml:"seed"`
}

// Seed is the liquidity deposited right after instantiation.
type Seed struct {
	Base  string `yaml:"base"`
	Quote string `yaml:"quote"`
}

const (
	defaultKIn         = "0.5"
	defaultKOut        = "1"
	defaultFee         = "0.003"
	defaultDecayFactor = "0.9512"
)

// LoadPairs reads and validates a YAML pairs file.
func LoadPairs(path string) ([]PairDefinition, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pairs: %w", err)
	}
	defer file.Close()
	var doc PairsFile
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode pairs: %w", err)
	}
	seen := make(map[string]bool, len(doc.Pairs))
	for i := range doc.Pairs {
		def := &doc.Pairs[i]
		def.applyDefaults()
		if err := def.validate(); err != nil {
			return nil, fmt.Errorf("pairs[%d]: %w", i, err)
		}
		key := strings.ToUpper(def.Base) + "/" + strings.ToUpper(def.Quote)
		if seen[key] {
			return nil, fmt.Errorf("pairs[%d]: duplicate pair %s", i, key)
		}
		seen[key] = true
	}
	return doc.Pairs, nil
}

func (d *PairDefinition) applyDefaults() {
	d.Base = strings.TrimSpace(d.Base)
	d.Quote = strings.TrimSpace(d.Quote)
	if strings.TrimSpace(d.KIn) == "" {
		d.KIn = defaultKIn
	}
	if strings.TrimSpace(d.KOut) == "" {
		d.KOut = defaultKOut
	}
	if strings.TrimSpace(d.Fee) == "" {
		d.Fee = defaultFee
	}
	if strings.TrimSpace(d.DecayFactor) == "" {
		d.DecayFactor = defaultDecayFactor
	}
}

func (d *PairDefinition) validate() error {
	if d.Base == "" || d.Quote == "" {
		return fmt.Errorf("base and quote must be set")
	}
	if strings.EqualFold(d.Base, d.Quote) {
		return fmt.Errorf("base and quote must differ")
	}
	if strings.TrimSpace(d.InitialPrice) == "" {
		return fmt.Errorf("initial_price must be set")
	}
	if _, _, err := d.PairConfig(); err != nil {
		return err
	}
	if _, _, err := d.SeedAmounts(); err != nil {
		return err
	}
	return nil
}

// Resources resolves the base and quote resource addresses.
func (d PairDefinition) Resources() (crypto.Address, crypto.Address, error) {
	base, err := ResolveResource(d.Base)
	if err != nil {
		return crypto.Address{}, crypto.Address{}, fmt.Errorf("base: %w", err)
	}
	quote, err := ResolveResource(d.Quote)
	if err != nil {
		return crypto.Address{}, crypto.Address{}, fmt.Errorf("quote: %w", err)
	}
	return base, quote, nil
}

// PairConfig converts the definition into engine parameters and the initial
// price.
func (d PairDefinition) PairConfig() (pair.PairConfig, decimal.Decimal, error) {
	var cfg pair.PairConfig
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"k_in", d.KIn, &cfg.KIn},
		{"k_out", d.KOut, &cfg.KOut},
		{"fee", d.Fee, &cfg.Fee},
		{"decay_factor", d.DecayFactor, &cfg.DecayFactor},
	}
	for _, field := range fields {
		value, err := pair.ParseDecimal(field.raw)
		if err != nil {
			return cfg, decimal.Zero, fmt.Errorf("%s: %w", field.name, err)
		}
		*field.dst = value
	}
	cfg.BaseDivisibility = pair.DefaultDivisibility
	if d.BaseDivisibility != nil {
		cfg.BaseDivisibility = *d.BaseDivisibility
	}
	cfg.QuoteDivisibility = pair.DefaultDivisibility
	if d.QuoteDivisibility != nil {
		cfg.QuoteDivisibility = *d.QuoteDivisibility
	}
	if err := cfg.Validate(); err != nil {
		return cfg, decimal.Zero, err
	}
	price, err := pair.ParseDecimal(d.InitialPrice)
	if err != nil {
		return cfg, decimal.Zero, fmt.Errorf("initial_price: %w", err)
	}
	if price.Sign() <= 0 {
		return cfg, decimal.Zero, fmt.Errorf("initial_price must be positive")
	}
	return cfg, price, nil
}

// SeedAmounts parses the seed liquidity; missing sides are zero.
func (d PairDefinition) SeedAmounts() (decimal.Decimal, decimal.Decimal, error) {
	parse := func(name, raw string) (decimal.Decimal, error) {
		if strings.TrimSpace(raw) == "" {
			return decimal.Zero, nil
		}
		value, err := pair.ParseDecimal(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("seed.%s: %w", name, err)
		}
		if value.Sign() < 0 {
			return decimal.Zero, fmt.Errorf("seed.%s must not be negative", name)
		}
		return value, nil
	}
	base, err := parse("base", d.Seed.Base)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	quote, err := parse("quote", d.Seed.Quote)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return base, quote, nil
}

// ResolveResource accepts a bech32 resource address or a symbol.
func ResolveResource(raw string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return crypto.Address{}, fmt.Errorf("resource must be set")
	}
	if strings.HasPrefix(strings.ToLower(trimmed), string(crypto.ResourcePrefix)+"1") {
		addr, err := crypto.DecodeAddress(trimmed)
		if err != nil {
			return crypto.Address{}, err
		}
		if addr.Prefix() != crypto.ResourcePrefix {
			return crypto.Address{}, fmt.Errorf("%s is not a resource address", trimmed)
		}
		return addr, nil
	}
	return crypto.DeriveAddress(crypto.ResourcePrefix, []byte(strings.ToUpper(trimmed))), nil
}

package pair

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/gguuttss/RadixPlaza/crypto"
)

// Shortage names the asset a pair is currently short of relative to its
// equilibrium.
type Shortage uint8

const (
	Equilibrium Shortage = iota
	QuoteShortage
	BaseShortage
)

func (s Shortage) String() string {
	switch s {
	case Equilibrium:
		return "equilibrium"
	case QuoteShortage:
		return "quote_shortage"
	case BaseShortage:
		return "base_shortage"
	default:
		return fmt.Sprintf("shortage(%d)", uint8(s))
	}
}

// Direction is the side of the pair a swap deposits into. It is resolved once
// from the input resource at the start of a swap.
type Direction uint8

const (
	BaseIn Direction = iota + 1
	QuoteIn
)

func (d Direction) String() string {
	switch d {
	case BaseIn:
		return "base_in"
	case QuoteIn:
		return "quote_in"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// shortageCreated is the shortage an outgoing trade in this direction produces.
func (d Direction) shortageCreated() Shortage {
	if d == BaseIn {
		return QuoteShortage
	}
	return BaseShortage
}

// relieves reports whether depositing on this side brings the short asset back.
func (d Direction) relieves(s Shortage) bool {
	return (d == QuoteIn && s == QuoteShortage) || (d == BaseIn && s == BaseShortage)
}

// PairConfig is fixed when the pair is instantiated.
type PairConfig struct {
	// KIn shapes the curve for trades that return the short asset to the pool.
	KIn decimal.Decimal
	// KOut shapes the curve for trades that take the short asset out. A value
	// of 1 is the constant-product curve.
	KOut decimal.Decimal
	// Fee is the fraction of the gross output kept as protocol fee.
	Fee decimal.Decimal
	// DecayFactor is the per-second weight kept by p0 when blending the
	// incoming reference price toward the last outgoing spot price.
	DecayFactor decimal.Decimal
	// BaseDivisibility and QuoteDivisibility bound the fractional digits of
	// each resource.
	BaseDivisibility  uint8
	QuoteDivisibility uint8
}

// DefaultDivisibility matches the finest resource granularity on the ledger.
const DefaultDivisibility uint8 = 18

// Validate enforces the instantiation constraints.
func (c PairConfig) Validate() error {
	if c.KIn.Sign() <= 0 || c.KIn.GreaterThan(one) {
		return fmt.Errorf("%w: k_in must be in (0, 1]", ErrConfiguration)
	}
	if c.KOut.Sign() <= 0 || c.KOut.GreaterThan(one) {
		return fmt.Errorf("%w: k_out must be in (0, 1]", ErrConfiguration)
	}
	if c.Fee.Sign() < 0 || !c.Fee.LessThan(one) {
		return fmt.Errorf("%w: fee must be in [0, 1)", ErrConfiguration)
	}
	if c.DecayFactor.Sign() <= 0 || c.DecayFactor.GreaterThan(one) {
		return fmt.Errorf("%w: decay_factor must be in (0, 1]", ErrConfiguration)
	}
	for _, value := range []decimal.Decimal{c.KIn, c.KOut, c.Fee, c.DecayFactor} {
		if !fitsScale(value, Scale) {
			return fmt.Errorf("%w: %s has more than %d fractional digits", ErrConfiguration, value, Scale)
		}
	}
	if c.BaseDivisibility > uint8(Scale) || c.QuoteDivisibility > uint8(Scale) {
		return fmt.Errorf("%w: divisibility must not exceed %d", ErrConfiguration, Scale)
	}
	return nil
}

// PairState is the mutable pricing state; every swap replaces it whole.
type PairState struct {
	// P0 is the equilibrium price in quote per base.
	P0 decimal.Decimal
	// Shortage is authoritative for which curve a trade prices on.
	Shortage Shortage
	// TargetRatio is target over actual of the short asset; 1 at equilibrium.
	TargetRatio decimal.Decimal
	// LastOutSpot is the marginal price (quote per base) after the most
	// recent outgoing leg.
	LastOutSpot decimal.Decimal
	// LastOutgoing is the unix second of the most recent outgoing leg.
	LastOutgoing int64
}

func newEquilibriumState(p0 decimal.Decimal, lastOutgoing int64) PairState {
	return PairState{
		P0:           p0,
		Shortage:     Equilibrium,
		TargetRatio:  one,
		LastOutSpot:  p0,
		LastOutgoing: lastOutgoing,
	}
}

// Pool holds the liquidity deposited on one side of the pair. Actual is the
// pool's own asset; Surplus is the other asset collected while the own asset
// is short.
type Pool struct {
	Actual  decimal.Decimal
	Surplus decimal.Decimal
	Units   decimal.Decimal
}

// Reserves are the totals held by the pair per asset.
type Reserves struct {
	Base  decimal.Decimal
	Quote decimal.Decimal
}

// Value prices the reserves in quote at the supplied price.
func (r Reserves) Value(price decimal.Decimal) decimal.Decimal {
	return r.Base.Mul(price).Add(r.Quote)
}

// Bucket is an amount of a single resource handed to or returned from the pair.
type Bucket struct {
	Resource crypto.Address
	Amount   decimal.Decimal
}

func (b Bucket) String() string {
	return b.Amount.String() + " " + b.Resource.String()
}

// Pair is the persisted record of one pair component.
type Pair struct {
	Address    crypto.Address
	Base       crypto.Address
	Quote      crypto.Address
	BaseUnits  crypto.Address
	QuoteUnits crypto.Address
	Config     PairConfig
	State      PairState
	BasePool   Pool
	QuotePool  Pool
	// FeesBase and FeesQuote accumulate extracted fees and rounding dust.
	FeesBase  decimal.Decimal
	FeesQuote decimal.Decimal
	CreatedAt int64
}

// Clone returns a copy that can be mutated without touching the original.
// Decimal values are immutable, so a shallow copy is sufficient.
func (p *Pair) Clone() *Pair {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// Reserves sums both pools per asset.
func (p *Pair) Reserves() Reserves {
	return Reserves{
		Base:  p.BasePool.Actual.Add(p.QuotePool.Surplus),
		Quote: p.QuotePool.Actual.Add(p.BasePool.Surplus),
	}
}

// Direction resolves which side an input resource deposits into.
func (p *Pair) Direction(resource crypto.Address) (Direction, error) {
	switch resource {
	case p.Base:
		return BaseIn, nil
	case p.Quote:
		return QuoteIn, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidResource, resource)
	}
}

func (p *Pair) resourceFor(d Direction) crypto.Address {
	if d == BaseIn {
		return p.Base
	}
	return p.Quote
}

func (p *Pair) otherResource(d Direction) crypto.Address {
	if d == BaseIn {
		return p.Quote
	}
	return p.Base
}

func (p *Pair) divisibility(resource crypto.Address) int32 {
	if resource == p.Base {
		return int32(p.Config.BaseDivisibility)
	}
	return int32(p.Config.QuoteDivisibility)
}

func (p *Pair) addFee(resource crypto.Address, amount decimal.Decimal) {
	if resource == p.Base {
		p.FeesBase = p.FeesBase.Add(amount)
		return
	}
	p.FeesQuote = p.FeesQuote.Add(amount)
}

// Classify derives the shortage from the pools. At most one pool carries a
// surplus, so the result is unambiguous.
func Classify(basePool, quotePool Pool) Shortage {
	switch {
	case quotePool.Surplus.Sign() > 0:
		return QuoteShortage
	case basePool.Surplus.Sign() > 0:
		return BaseShortage
	default:
		return Equilibrium
	}
}

// reclassify restores equilibrium once the short pool holds no surplus, which
// happens when a liquidity withdrawal empties it.
func (p *Pair) reclassify() {
	if p.State.Shortage == Equilibrium {
		return
	}
	if Classify(p.BasePool, p.QuotePool) == Equilibrium {
		p.State = newEquilibriumState(p.State.P0, p.State.LastOutgoing)
	}
}

package pair

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LegKind distinguishes the two curve segments a trade can travel.
type LegKind uint8

const (
	// Outgoing legs take the short asset out of its pool and price on k_out
	// around p0.
	Outgoing LegKind = iota + 1
	// Incoming legs return the short asset to its pool and price on k_in
	// around the decayed reference price.
	Incoming
)

func (k LegKind) String() string {
	switch k {
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	default:
		return fmt.Sprintf("leg(%d)", uint8(k))
	}
}

// Leg is one curve segment of a trade.
type Leg struct {
	Kind LegKind
	// Side is the pool the leg trades against, named by the shortage it holds.
	Side        Shortage
	Input       decimal.Decimal
	Output      decimal.Decimal
	Reference   decimal.Decimal
	TargetRatio decimal.Decimal
}

// Trade is the complete result of pricing a swap. Applying it replaces the
// pair's state and pools and moves Fee and Dust into the fee vault.
type Trade struct {
	Direction Direction
	Input     decimal.Decimal
	// Gross is the amount leaving the pools.
	Gross decimal.Decimal
	Fee   decimal.Decimal
	// Dust is the part of the net output below the output resource's
	// divisibility.
	Dust      decimal.Decimal
	Output    decimal.Decimal
	Legs      []Leg
	State     PairState
	BasePool  Pool
	QuotePool Pool
}

// curve is one side of the pair priced in units of its surplus asset.
// price is always quote per base; quoteShort inverts it for the quote pool.
type curve struct {
	k          decimal.Decimal
	price      decimal.Decimal
	quoteShort bool
}

func newCurve(side Shortage, k, price decimal.Decimal) curve {
	return curve{k: k, price: price, quoteShort: side == QuoteShortage}
}

// toShortage converts a surplus amount into shortage-asset units.
func (c curve) toShortage(surplus decimal.Decimal, mode rounding) (decimal.Decimal, error) {
	if c.quoteShort {
		return mul(surplus, c.price, mode), nil
	}
	return div(surplus, c.price, mode)
}

// toSurplus converts a shortage-asset amount into surplus units.
func (c curve) toSurplus(amount decimal.Decimal, mode rounding) (decimal.Decimal, error) {
	if c.quoteShort {
		return div(amount, c.price, mode)
	}
	return mul(amount, c.price, mode), nil
}

// ratio solves S = p(T-A)(1-k+kT/A) for r = T/A.
func (c curve) ratio(actual, surplus decimal.Decimal, mode rounding) (decimal.Decimal, error) {
	if surplus.Sign() == 0 {
		return one, nil
	}
	if actual.Sign() <= 0 {
		return zero, fmt.Errorf("%w: short pool is empty", ErrInsufficientLiquidity)
	}
	value, err := c.toShortage(surplus, mode)
	if err != nil {
		return zero, err
	}
	q, err := div(value, actual, mode)
	if err != nil {
		return zero, err
	}
	inner := one.Add(mul(four.Mul(c.k), q, mode))
	root, err := sqrt(inner, mode)
	if err != nil {
		return zero, err
	}
	twoK := two.Mul(c.k)
	r, err := div(twoK.Sub(one).Add(root), twoK, mode)
	if err != nil {
		return zero, err
	}
	if r.LessThan(one) {
		r = one
	}
	return r, nil
}

// spot is the marginal price at ratio r, expressed in quote per base.
func (c curve) spot(r decimal.Decimal) (decimal.Decimal, error) {
	m := one.Sub(c.k).Add(mul(c.k, mul(r, r, roundDown), roundDown))
	if c.quoteShort {
		return div(c.price, m, roundDown)
	}
	return mul(c.price, m, roundDown), nil
}

// outgoing moves x of the surplus asset into the short pool and returns the
// new pool and the amount of the short asset released.
func (c curve) outgoing(pool Pool, x decimal.Decimal) (Pool, decimal.Decimal, decimal.Decimal, error) {
	if pool.Actual.Sign() <= 0 {
		return Pool{}, zero, zero, fmt.Errorf("%w: pool holds none of the requested asset", ErrInsufficientLiquidity)
	}
	r, err := c.ratio(pool.Actual, pool.Surplus, roundUp)
	if err != nil {
		return Pool{}, zero, zero, err
	}
	target := mul(pool.Actual, r, roundUp)
	surplus := pool.Surplus.Add(x)

	value, err := c.toShortage(surplus, roundDown)
	if err != nil {
		return Pool{}, zero, zero, err
	}
	twoK := two.Mul(c.k)
	b := value.Add(mul(twoK.Sub(one), target, roundDown))
	targetSq := mul(target, target, roundUp)
	disc := mul(b, b, roundDown).Add(mul(four.Mul(c.k).Mul(one.Sub(c.k)), targetSq, roundDown))
	root, err := sqrt(disc, roundDown)
	if err != nil {
		return Pool{}, zero, zero, err
	}
	actual, err := div(mul(twoK, targetSq, roundUp), b.Add(root), roundUp)
	if err != nil {
		return Pool{}, zero, zero, err
	}
	if actual.GreaterThan(pool.Actual) {
		actual = pool.Actual
	}
	if err := checkRange(surplus, targetSq, disc); err != nil {
		return Pool{}, zero, zero, err
	}
	newRatio, err := div(target, actual, roundDown)
	if err != nil {
		return Pool{}, zero, zero, err
	}
	next := Pool{Actual: actual, Surplus: surplus, Units: pool.Units}
	return next, pool.Actual.Sub(actual), newRatio, nil
}

// incoming moves x of the short asset back into its pool. It returns the new
// pool, the surplus released, the part of x the leg consumed and the new ratio.
// A leg that reaches the target releases the whole surplus and leaves the
// pool at equilibrium.
func (c curve) incoming(pool Pool, x decimal.Decimal) (next Pool, out, used, ratio decimal.Decimal, err error) {
	r, err := c.ratio(pool.Actual, pool.Surplus, roundUp)
	if err != nil {
		return Pool{}, zero, zero, zero, err
	}
	target := mul(pool.Actual, r, roundUp)
	need := target.Sub(pool.Actual)
	if !x.LessThan(need) {
		next = Pool{Actual: target, Surplus: zero, Units: pool.Units}
		return next, pool.Surplus, need, one, nil
	}
	actual := pool.Actual.Add(x)
	tOverA, err := div(target, actual, roundUp)
	if err != nil {
		return Pool{}, zero, zero, zero, err
	}
	m := one.Sub(c.k).Add(mul(c.k, tOverA, roundUp))
	remaining, err := c.toSurplus(mul(target.Sub(actual), m, roundUp), roundUp)
	if err != nil {
		return Pool{}, zero, zero, zero, err
	}
	remaining = minDecimal(remaining, pool.Surplus)
	ratio, err = div(target, actual, roundDown)
	if err != nil {
		return Pool{}, zero, zero, zero, err
	}
	next = Pool{Actual: actual, Surplus: remaining, Units: pool.Units}
	return next, pool.Surplus.Sub(remaining), x, ratio, nil
}

// ReferencePrice blends p0 toward the last outgoing spot price by the decay
// accrued since the last outgoing leg.
func ReferencePrice(cfg PairConfig, state PairState, now int64) decimal.Decimal {
	elapsed := now - state.LastOutgoing
	if elapsed <= 0 || state.Shortage == Equilibrium {
		return state.P0
	}
	f := powi(cfg.DecayFactor, elapsed, roundDown)
	if f.Equal(one) {
		return state.P0
	}
	return mul(state.P0, f, roundDown).Add(mul(state.LastOutSpot, one.Sub(f), roundDown))
}

// PriceTrade computes the result of depositing amount on the given side. It
// does not modify its arguments.
func PriceTrade(cfg PairConfig, state PairState, basePool, quotePool Pool, dir Direction, amount decimal.Decimal, now int64) (*Trade, error) {
	if dir != BaseIn && dir != QuoteIn {
		return nil, fmt.Errorf("%w: unknown direction %s", ErrInvalidResource, dir)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: input must be positive", ErrInvalidAmount)
	}
	if err := checkRange(amount); err != nil {
		return nil, err
	}
	trade := &Trade{
		Direction: dir,
		Input:     amount,
		State:     state,
		BasePool:  basePool,
		QuotePool: quotePool,
	}
	remaining := amount
	gross := zero

	if dir.relieves(trade.State.Shortage) {
		side := trade.State.Shortage
		ref := ReferencePrice(cfg, trade.State, now)
		c := newCurve(side, cfg.KIn, ref)
		pool := trade.shortPool(side)
		next, out, used, ratio, err := c.incoming(*pool, remaining)
		if err != nil {
			return nil, err
		}
		*pool = next
		trade.Legs = append(trade.Legs, Leg{
			Kind:        Incoming,
			Side:        side,
			Input:       used,
			Output:      out,
			Reference:   ref,
			TargetRatio: ratio,
		})
		gross = gross.Add(out)
		remaining = remaining.Sub(used)
		if next.Surplus.Sign() == 0 {
			trade.State = newEquilibriumState(ref, trade.State.LastOutgoing)
		} else {
			trade.State.TargetRatio = ratio
		}
	}

	if remaining.Sign() > 0 {
		side := dir.shortageCreated()
		c := newCurve(side, cfg.KOut, trade.State.P0)
		pool := trade.shortPool(side)
		next, out, ratio, err := c.outgoing(*pool, remaining)
		if err != nil {
			return nil, err
		}
		spot, err := c.spot(ratio)
		if err != nil {
			return nil, err
		}
		*pool = next
		trade.Legs = append(trade.Legs, Leg{
			Kind:        Outgoing,
			Side:        side,
			Input:       remaining,
			Output:      out,
			Reference:   trade.State.P0,
			TargetRatio: ratio,
		})
		gross = gross.Add(out)
		trade.State.Shortage = side
		trade.State.TargetRatio = ratio
		trade.State.LastOutSpot = spot
		trade.State.LastOutgoing = now
	}

	// A leg can round its way back onto the target without releasing the
	// last surplus unit; the pools decide.
	if Classify(trade.BasePool, trade.QuotePool) == Equilibrium && trade.State.Shortage != Equilibrium {
		trade.State = newEquilibriumState(trade.State.P0, trade.State.LastOutgoing)
	}

	fee := mul(gross, cfg.Fee, roundUp)
	net := gross.Sub(fee)
	digits := int32(cfg.QuoteDivisibility)
	if dir == QuoteIn {
		digits = int32(cfg.BaseDivisibility)
	}
	output := net.RoundFloor(digits)
	if output.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s %s yields nothing", ErrOutputTooSmall, amount, dir)
	}
	trade.Gross = gross
	trade.Fee = fee
	trade.Dust = net.Sub(output)
	trade.Output = output
	if err := checkRange(trade.State.P0, trade.State.LastOutSpot, trade.State.TargetRatio); err != nil {
		return nil, err
	}
	return trade, nil
}

func (t *Trade) shortPool(side Shortage) *Pool {
	if side == QuoteShortage {
		return &t.QuotePool
	}
	return &t.BasePool
}

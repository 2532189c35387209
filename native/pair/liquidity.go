package pair

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/gguuttss/RadixPlaza/crypto"
)

func (p *Pair) pool(dir Direction) *Pool {
	if dir == BaseIn {
		return &p.BasePool
	}
	return &p.QuotePool
}

func (p *Pair) unitsResource(dir Direction) crypto.Address {
	if dir == BaseIn {
		return p.BaseUnits
	}
	return p.QuoteUnits
}

// unitsSide maps a pool-unit resource back to the pool that minted it.
func (p *Pair) unitsSide(resource crypto.Address) (Direction, error) {
	switch resource {
	case p.BaseUnits:
		return BaseIn, nil
	case p.QuoteUnits:
		return QuoteIn, nil
	default:
		return 0, fmt.Errorf("%w: %s is not a pool unit of this pair", ErrInvalidResource, resource)
	}
}

// AddLiquidity deposits input into the pool holding its resource and mints
// pool units. A pool without surplus accepts single-sided deposits and hands
// back any co-liquidity untouched. A pool that is short of its own asset only
// takes deposits proportional to its actual:surplus mix, so co must carry the
// other resource; unused amounts come back as remainders.
func (e *Engine) AddLiquidity(addr crypto.Address, input Bucket, co *Bucket) (Bucket, []Bucket, error) {
	if err := e.guard(); err != nil {
		return Bucket{}, nil, err
	}
	p, err := e.load(addr)
	if err != nil {
		return Bucket{}, nil, err
	}
	dir, err := validateBucket(p, input)
	if err != nil {
		return Bucket{}, nil, err
	}
	var coAmount decimal.Decimal
	if co != nil && !co.Amount.IsZero() {
		coDir, err := validateBucket(p, *co)
		if err != nil {
			return Bucket{}, nil, err
		}
		if coDir == dir {
			return Bucket{}, nil, fmt.Errorf("%w: co-liquidity must be the other resource", ErrInvalidResource)
		}
		coAmount = co.Amount
	}

	next := p.Clone()
	pool := next.pool(dir)
	var (
		minted     decimal.Decimal
		remainders []Bucket
	)
	if pool.Surplus.IsZero() {
		if pool.Units.IsZero() {
			minted = input.Amount
		} else {
			if pool.Actual.IsZero() {
				return Bucket{}, nil, fmt.Errorf("%w: pool has units but no reserves", ErrInsufficientLiquidity)
			}
			frac, err := div(input.Amount, pool.Actual, roundDown)
			if err != nil {
				return Bucket{}, nil, err
			}
			minted = mul(pool.Units, frac, roundDown)
		}
		pool.Actual = pool.Actual.Add(input.Amount)
		if coAmount.Sign() > 0 {
			remainders = append(remainders, Bucket{Resource: next.otherResource(dir), Amount: coAmount})
		}
	} else {
		if coAmount.Sign() <= 0 {
			return Bucket{}, nil, fmt.Errorf("%w: pool is short of %s", ErrCoLiquidityRequired, input.Resource)
		}
		ownFrac, err := div(input.Amount, pool.Actual, roundDown)
		if err != nil {
			return Bucket{}, nil, err
		}
		coFrac, err := div(coAmount, pool.Surplus, roundDown)
		if err != nil {
			return Bucket{}, nil, err
		}
		frac := minDecimal(ownFrac, coFrac)
		usedOwn := minDecimal(input.Amount, mul(pool.Actual, frac, roundUp))
		usedCo := minDecimal(coAmount, mul(pool.Surplus, frac, roundUp))
		minted = mul(pool.Units, frac, roundDown)
		pool.Actual = pool.Actual.Add(usedOwn)
		pool.Surplus = pool.Surplus.Add(usedCo)
		if rest := input.Amount.Sub(usedOwn); rest.Sign() > 0 {
			remainders = append(remainders, Bucket{Resource: input.Resource, Amount: rest})
		}
		if rest := coAmount.Sub(usedCo); rest.Sign() > 0 {
			remainders = append(remainders, Bucket{Resource: next.otherResource(dir), Amount: rest})
		}
	}
	if minted.Sign() <= 0 {
		return Bucket{}, nil, fmt.Errorf("%w: deposit too small to mint units", ErrInvalidAmount)
	}
	pool.Units = pool.Units.Add(minted)
	if err := checkRange(pool.Actual, pool.Surplus, pool.Units); err != nil {
		return Bucket{}, nil, err
	}
	next.reclassify()
	if err := e.state.PairPut(next); err != nil {
		return Bucket{}, nil, err
	}
	units := Bucket{Resource: next.unitsResource(dir), Amount: minted}
	e.emit(LiquidityAddedEvent(addr.String(), input, units))
	return units, remainders, nil
}

// RemoveLiquidity redeems pool units for a pro-rata share of the pool's own
// asset and its surplus. Amounts below a resource's divisibility stay in the
// pool; the last redemption sweeps them into the fee vault.
func (e *Engine) RemoveLiquidity(addr crypto.Address, units Bucket) (Bucket, Bucket, error) {
	if err := e.guard(); err != nil {
		return Bucket{}, Bucket{}, err
	}
	p, err := e.load(addr)
	if err != nil {
		return Bucket{}, Bucket{}, err
	}
	dir, err := p.unitsSide(units.Resource)
	if err != nil {
		return Bucket{}, Bucket{}, err
	}
	if units.Amount.Sign() <= 0 || !fitsScale(units.Amount, Scale) {
		return Bucket{}, Bucket{}, fmt.Errorf("%w: units must be positive", ErrInvalidAmount)
	}
	next := p.Clone()
	pool := next.pool(dir)
	if units.Amount.GreaterThan(pool.Units) {
		return Bucket{}, Bucket{}, fmt.Errorf("%w: %s units outstanding", ErrInsufficientLiquidity, pool.Units)
	}
	ownResource := next.resourceFor(dir)
	otherResource := next.otherResource(dir)

	var ownShare, otherShare decimal.Decimal
	if units.Amount.Equal(pool.Units) {
		ownShare, otherShare = pool.Actual, pool.Surplus
	} else {
		frac, err := div(units.Amount, pool.Units, roundDown)
		if err != nil {
			return Bucket{}, Bucket{}, err
		}
		ownShare = mul(pool.Actual, frac, roundDown)
		otherShare = mul(pool.Surplus, frac, roundDown)
	}
	ownOut := ownShare.RoundFloor(next.divisibility(ownResource))
	otherOut := otherShare.RoundFloor(next.divisibility(otherResource))
	pool.Actual = pool.Actual.Sub(ownOut)
	pool.Surplus = pool.Surplus.Sub(otherOut)
	pool.Units = pool.Units.Sub(units.Amount)
	if pool.Units.IsZero() {
		next.addFee(ownResource, pool.Actual)
		next.addFee(otherResource, pool.Surplus)
		pool.Actual, pool.Surplus = zero, zero
	}
	next.reclassify()
	if err := e.state.PairPut(next); err != nil {
		return Bucket{}, Bucket{}, err
	}
	own := Bucket{Resource: ownResource, Amount: ownOut}
	other := Bucket{Resource: otherResource, Amount: otherOut}
	e.emit(LiquidityRemovedEvent(addr.String(), units, own, other))
	if p.State.Shortage != next.State.Shortage {
		e.emit(ShortageChangedEvent(addr.String(), p.State.Shortage, next.State.Shortage, next.State.P0.String()))
	}
	return own, other, nil
}

// CollectFees empties the fee vault and returns its base and quote buckets.
func (e *Engine) CollectFees(addr crypto.Address) (Bucket, Bucket, error) {
	if err := e.guard(); err != nil {
		return Bucket{}, Bucket{}, err
	}
	p, err := e.load(addr)
	if err != nil {
		return Bucket{}, Bucket{}, err
	}
	base := Bucket{Resource: p.Base, Amount: p.FeesBase.RoundFloor(p.divisibility(p.Base))}
	quote := Bucket{Resource: p.Quote, Amount: p.FeesQuote.RoundFloor(p.divisibility(p.Quote))}
	if base.Amount.IsZero() && quote.Amount.IsZero() {
		return base, quote, nil
	}
	next := p.Clone()
	next.FeesBase = next.FeesBase.Sub(base.Amount)
	next.FeesQuote = next.FeesQuote.Sub(quote.Amount)
	if err := e.state.PairPut(next); err != nil {
		return Bucket{}, Bucket{}, err
	}
	e.emit(FeesCollectedEvent(addr.String(), base, quote))
	return base, quote, nil
}

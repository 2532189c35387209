package pair

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gguuttss/RadixPlaza/core/events"
	"github.com/gguuttss/RadixPlaza/core/types"
	"github.com/gguuttss/RadixPlaza/crypto"
	nativecommon "github.com/gguuttss/RadixPlaza/native/common"
)

var (
	ErrConfiguration         = errors.New("pair: invalid configuration")
	ErrInvalidResource       = errors.New("pair: resource does not belong to pair")
	ErrInvalidAmount         = errors.New("pair: invalid amount")
	ErrInsufficientLiquidity = errors.New("pair: insufficient liquidity")
	ErrOutputTooSmall        = errors.New("pair: output too small")
	ErrCoLiquidityRequired   = errors.New("pair: co-liquidity required")
	ErrPairNotFound          = errors.New("pair: not found")
	ErrPairExists            = errors.New("pair: already exists")
	ErrArithmeticOverflow    = errors.New("pair: arithmetic overflow")
	ErrArithmeticUnderflow   = errors.New("pair: arithmetic underflow")

	errNilState = errors.New("pair engine: state not configured")
)

const moduleName = "pair"

type engineState interface {
	PairGet(addr crypto.Address) (*Pair, bool, error)
	PairPut(p *Pair) error
}

// StateDelta describes the transition a committed swap applied.
type StateDelta struct {
	Before PairState
	After  PairState
	Trade  *Trade
}

// Changed reports whether the shortage classification moved.
func (d *StateDelta) Changed() bool {
	return d != nil && d.Before.Shortage != d.After.Shortage
}

// Engine runs pair operations against a record store. It computes on a copy
// of the record and writes it back once, so a failed call leaves the stored
// record untouched. Callers serialise calls per pair.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
	pauses  nativecommon.PauseView
}

// NewEngine constructs a pair engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
	}
}

// SetState configures the record store used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetPauses wires the pause view consulted before every mutating call.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) guard() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

// DerivePairAddress returns the component address of the pair trading base
// against quote.
func DerivePairAddress(base, quote crypto.Address) crypto.Address {
	return crypto.DeriveAddress(crypto.ComponentPrefix, base.Bytes(), quote.Bytes())
}

func derivePoolUnits(pair crypto.Address, side string) crypto.Address {
	return crypto.DeriveAddress(crypto.PoolUnitPrefix, pair.Bytes(), []byte(side))
}

// InstantiatePair creates the record for a new pair with empty pools at
// equilibrium around initialPrice (quote per base).
func (e *Engine) InstantiatePair(base, quote crypto.Address, cfg PairConfig, initialPrice decimal.Decimal) (*Pair, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if base.IsZero() || quote.IsZero() {
		return nil, fmt.Errorf("%w: base and quote resources required", ErrConfiguration)
	}
	if base == quote {
		return nil, fmt.Errorf("%w: base and quote must differ", ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if initialPrice.Sign() <= 0 || !fitsScale(initialPrice, Scale) {
		return nil, fmt.Errorf("%w: initial price must be positive with at most %d fractional digits", ErrConfiguration, Scale)
	}
	if err := checkRange(initialPrice); err != nil {
		return nil, err
	}
	addr := DerivePairAddress(base, quote)
	if _, ok, err := e.state.PairGet(addr); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %s", ErrPairExists, addr)
	}
	now := e.now()
	p := &Pair{
		Address:    addr,
		Base:       base,
		Quote:      quote,
		BaseUnits:  derivePoolUnits(addr, "base"),
		QuoteUnits: derivePoolUnits(addr, "quote"),
		Config:     cfg,
		State:      newEquilibriumState(initialPrice, now),
		BasePool:   Pool{Actual: zero, Surplus: zero, Units: zero},
		QuotePool:  Pool{Actual: zero, Surplus: zero, Units: zero},
		FeesBase:   zero,
		FeesQuote:  zero,
		CreatedAt:  now,
	}
	if err := e.state.PairPut(p); err != nil {
		return nil, err
	}
	e.emit(PairInstantiatedEvent(p))
	return p.Clone(), nil
}

// Pair returns a copy of the stored record.
func (e *Engine) Pair(addr crypto.Address) (*Pair, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.load(addr)
}

func (e *Engine) load(addr crypto.Address) (*Pair, error) {
	p, ok, err := e.state.PairGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPairNotFound, addr)
	}
	return p, nil
}

// validateBucket resolves the side of a deposit and checks its amount.
func validateBucket(p *Pair, b Bucket) (Direction, error) {
	dir, err := p.Direction(b.Resource)
	if err != nil {
		return 0, err
	}
	if b.Amount.Sign() <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if digits := p.divisibility(b.Resource); !fitsScale(b.Amount, digits) {
		return 0, fmt.Errorf("%w: %s exceeds %d fractional digits", ErrInvalidAmount, b.Amount, digits)
	}
	if err := checkRange(b.Amount); err != nil {
		return 0, err
	}
	return dir, nil
}

// Quote prices a swap against the current record without committing it.
func (e *Engine) Quote(addr crypto.Address, input Bucket) (*Trade, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	p, err := e.load(addr)
	if err != nil {
		return nil, err
	}
	dir, err := validateBucket(p, input)
	if err != nil {
		return nil, err
	}
	return PriceTrade(p.Config, p.State, p.BasePool, p.QuotePool, dir, input.Amount, e.now())
}

// Swap deposits input and returns the output bucket together with the state
// transition. Fees and divisibility dust stay in the pair's fee vault.
func (e *Engine) Swap(addr crypto.Address, input Bucket) (Bucket, *StateDelta, error) {
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
	trade, err := PriceTrade(p.Config, p.State, p.BasePool, p.QuotePool, dir, input.Amount, e.now())
	if err != nil {
		return Bucket{}, nil, err
	}
	next := p.Clone()
	next.State = trade.State
	next.BasePool = trade.BasePool
	next.QuotePool = trade.QuotePool
	out := Bucket{Resource: p.otherResource(dir), Amount: trade.Output}
	next.addFee(out.Resource, trade.Fee.Add(trade.Dust))
	if err := e.state.PairPut(next); err != nil {
		return Bucket{}, nil, err
	}
	delta := &StateDelta{Before: p.State, After: next.State, Trade: trade}
	e.emit(SwappedEvent(addr.String(), input, out, trade))
	if delta.Changed() {
		e.emit(ShortageChangedEvent(addr.String(), delta.Before.Shortage, delta.After.Shortage, delta.After.P0.String()))
	}
	return out, delta, nil
}

package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gguuttss/RadixPlaza/config"
	"github.com/gguuttss/RadixPlaza/core/events"
	"github.com/gguuttss/RadixPlaza/crypto"
	nativecommon "github.com/gguuttss/RadixPlaza/native/common"
	"github.com/gguuttss/RadixPlaza/native/pair"
	"github.com/gguuttss/RadixPlaza/observability/metrics"
	telemetry "github.com/gguuttss/RadixPlaza/observability/otel"
	"github.com/gguuttss/RadixPlaza/services/plazad/journal"
)

// ErrJournalDisabled is returned by calls that need the trade journal when the
// host runs without one.
var ErrJournalDisabled = errors.New("host: trade journal disabled")

// Options configures a Host.
type Options struct {
	Store   *pair.Store
	Journal *journal.Journal
	Logger  *slog.Logger
	Pauses  nativecommon.PauseView
	// Emitter receives every pair event in addition to the log emitter.
	Emitter events.Emitter
	Now     func() time.Time
}

// Host owns the pair engine and serialises calls per pair. Committed
// operations are journalled, logged and reflected in metrics.
type Host struct {
	engine  *pair.Engine
	store   *pair.Store
	journal *journal.Journal
	logger  *slog.Logger
	metrics *metrics.PairMetrics
	tracer  trace.Tracer
	now     func() time.Time

	mu    sync.Mutex
	locks map[crypto.Address]*sync.Mutex
}

// SwapResult describes a committed swap.
type SwapResult struct {
	Output    pair.Bucket
	Trade     *pair.Trade
	Before    pair.PairState
	After     pair.PairState
	JournalID string
}

// New wires the engine against the supplied store.
func New(opts Options) (*Host, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("host: store required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	h := &Host{
		engine:  pair.NewEngine(),
		store:   opts.Store,
		journal: opts.Journal,
		logger:  logger,
		metrics: metrics.Pair(),
		tracer:  telemetry.Tracer(),
		now:     now,
		locks:   make(map[crypto.Address]*sync.Mutex),
	}
	h.engine.SetState(opts.Store)
	h.engine.SetEmitter(events.Fanout{NewLogEmitter(logger), opts.Emitter})
	h.engine.SetNowFunc(func() int64 { return h.now().Unix() })
	h.engine.SetPauses(opts.Pauses)
	return h, nil
}

func (h *Host) lock(addr crypto.Address) func() {
	h.mu.Lock()
	l, ok := h.locks[addr]
	if !ok {
		l = &sync.Mutex{}
		h.locks[addr] = l
	}
	h.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (h *Host) startSpan(ctx context.Context, op string, addr crypto.Address) (context.Context, trace.Span) {
	return h.tracer.Start(ctx, "pair."+op, telemetry.PairAttributes(addr.String()))
}

func (h *Host) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	h.metrics.ObserveFailure(op, Reason(err))
	return err
}

// Bootstrap instantiates every configured pair that does not exist yet and
// deposits its seed liquidity. Existing pairs are left untouched.
func (h *Host) Bootstrap(ctx context.Context, defs []config.PairDefinition) error {
	for i, def := range defs {
		base, quote, err := def.Resources()
		if err != nil {
			return fmt.Errorf("pairs[%d]: %w", i, err)
		}
		cfg, price, err := def.PairConfig()
		if err != nil {
			return fmt.Errorf("pairs[%d]: %w", i, err)
		}
		seedBase, seedQuote, err := def.SeedAmounts()
		if err != nil {
			return fmt.Errorf("pairs[%d]: %w", i, err)
		}
		addr := pair.DerivePairAddress(base, quote)
		if _, err := h.engine.Pair(addr); err == nil {
			h.logger.Info("pair already instantiated", "pair", addr.String())
			continue
		} else if !errors.Is(err, pair.ErrPairNotFound) {
			return fmt.Errorf("pairs[%d]: %w", i, err)
		}
		if _, err := h.Instantiate(ctx, base, quote, cfg, price); err != nil {
			return fmt.Errorf("pairs[%d]: %w", i, err)
		}
		for _, seed := range []pair.Bucket{{Resource: base, Amount: seedBase}, {Resource: quote, Amount: seedQuote}} {
			if seed.Amount.Sign() <= 0 {
				continue
			}
			if _, _, err := h.AddLiquidity(ctx, addr, seed, nil); err != nil {
				return fmt.Errorf("pairs[%d]: seed %s: %w", i, seed, err)
			}
		}
	}
	return nil
}

// Instantiate creates a pair record.
func (h *Host) Instantiate(ctx context.Context, base, quote crypto.Address, cfg pair.PairConfig, price decimal.Decimal) (*pair.Pair, error) {
	addr := pair.DerivePairAddress(base, quote)
	_, span := h.startSpan(ctx, "Instantiate", addr)
	defer span.End()
	defer h.lock(addr)()
	p, err := h.engine.InstantiatePair(base, quote, cfg, price)
	if err != nil {
		return nil, h.fail(span, "instantiate", err)
	}
	h.publishState(p)
	return p, nil
}

// Pair returns the stored record.
func (h *Host) Pair(ctx context.Context, addr crypto.Address) (*pair.Pair, error) {
	return h.engine.Pair(addr)
}

// Pairs lists every instantiated pair ordered by address.
func (h *Host) Pairs(ctx context.Context) ([]*pair.Pair, error) {
	addrs, err := h.store.PairAddresses()
	if err != nil {
		return nil, err
	}
	out := make([]*pair.Pair, 0, len(addrs))
	for _, addr := range addrs {
		p, err := h.engine.Pair(addr)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.String() < out[j].Address.String() })
	return out, nil
}

// Quote prices a swap without committing it.
func (h *Host) Quote(ctx context.Context, addr crypto.Address, input pair.Bucket) (*pair.Trade, error) {
	_, span := h.startSpan(ctx, "Quote", addr)
	defer span.End()
	trade, err := h.engine.Quote(addr, input)
	if err != nil {
		return nil, h.fail(span, "quote", err)
	}
	span.SetAttributes(attribute.Int("legs", len(trade.Legs)))
	return trade, nil
}

// Swap commits a swap, journals it and updates the pricing gauges. The pair
// stays locked until the journal row is written so rows follow commit order.
func (h *Host) Swap(ctx context.Context, addr crypto.Address, input pair.Bucket) (*SwapResult, error) {
	ctx, span := h.startSpan(ctx, "Swap", addr)
	defer span.End()
	defer h.lock(addr)()
	out, delta, err := h.engine.Swap(addr, input)
	if err != nil {
		return nil, h.fail(span, "swap", err)
	}
	ctx = context.WithoutCancel(ctx)
	result := &SwapResult{Output: out, Trade: delta.Trade, Before: delta.Before, After: delta.After}
	pairID := addr.String()
	direction := delta.Trade.Direction.String()
	h.metrics.ObserveSwap(pairID, direction, input.Amount.InexactFloat64(),
		delta.Trade.Fee.Add(delta.Trade.Dust).InexactFloat64(), out.Resource.String())
	if delta.Changed() {
		h.metrics.ObserveTransition(pairID, delta.Before.Shortage.String(), delta.After.Shortage.String())
	}
	h.publishPricing(pairID, delta.After)
	span.SetAttributes(
		attribute.String("direction", direction),
		attribute.String("shortage", delta.After.Shortage.String()),
		attribute.Int("legs", len(delta.Trade.Legs)),
	)

	if h.journal != nil {
		id, err := h.journal.RecordTrade(ctx, journal.Trade{
			Pair:           pairID,
			Direction:      direction,
			InputResource:  input.Resource.String(),
			InputAmount:    input.Amount.String(),
			OutputResource: out.Resource.String(),
			OutputAmount:   out.Amount.String(),
			Fee:            delta.Trade.Fee.String(),
			Legs:           len(delta.Trade.Legs),
			ShortageBefore: delta.Before.Shortage.String(),
			ShortageAfter:  delta.After.Shortage.String(),
			P0:             delta.After.P0.String(),
			TargetRatio:    delta.After.TargetRatio.String(),
			LastOutSpot:    delta.After.LastOutSpot.String(),
			ExecutedAt:     h.now(),
		})
		if err != nil {
			h.logger.Error("journal trade", "pair", pairID, "error", err)
		}
		result.JournalID = id
	}
	return result, nil
}

// AddLiquidity deposits into the pool holding input's resource.
func (h *Host) AddLiquidity(ctx context.Context, addr crypto.Address, input pair.Bucket, co *pair.Bucket) (pair.Bucket, []pair.Bucket, error) {
	ctx, span := h.startSpan(ctx, "AddLiquidity", addr)
	defer span.End()
	defer h.lock(addr)()
	units, remainders, err := h.engine.AddLiquidity(addr, input, co)
	if err != nil {
		return pair.Bucket{}, nil, h.fail(span, "add_liquidity", err)
	}
	ctx = context.WithoutCancel(ctx)
	h.recordLiquidity(ctx, addr, journal.KindAdd, input, units.Amount.String())
	if co != nil && co.Amount.Sign() > 0 {
		used := co.Amount
		for _, rem := range remainders {
			if rem.Resource == co.Resource {
				used = used.Sub(rem.Amount)
			}
		}
		if used.Sign() > 0 {
			h.recordLiquidity(ctx, addr, journal.KindAdd, pair.Bucket{Resource: co.Resource, Amount: used}, "")
		}
	}
	h.refresh(addr)
	return units, remainders, nil
}

// RemoveLiquidity redeems pool units.
func (h *Host) RemoveLiquidity(ctx context.Context, addr crypto.Address, units pair.Bucket) (pair.Bucket, pair.Bucket, error) {
	ctx, span := h.startSpan(ctx, "RemoveLiquidity", addr)
	defer span.End()
	defer h.lock(addr)()
	own, other, err := h.engine.RemoveLiquidity(addr, units)
	if err != nil {
		return pair.Bucket{}, pair.Bucket{}, h.fail(span, "remove_liquidity", err)
	}
	ctx = context.WithoutCancel(ctx)
	h.recordLiquidity(ctx, addr, journal.KindRemove, own, units.Amount.String())
	if other.Amount.Sign() > 0 {
		h.recordLiquidity(ctx, addr, journal.KindRemove, other, "")
	}
	h.refresh(addr)
	return own, other, nil
}

// CollectFees drains the fee vault.
func (h *Host) CollectFees(ctx context.Context, addr crypto.Address) (pair.Bucket, pair.Bucket, error) {
	ctx, span := h.startSpan(ctx, "CollectFees", addr)
	defer span.End()
	defer h.lock(addr)()
	base, quote, err := h.engine.CollectFees(addr)
	if err != nil {
		return pair.Bucket{}, pair.Bucket{}, h.fail(span, "collect_fees", err)
	}
	ctx = context.WithoutCancel(ctx)
	for _, b := range []pair.Bucket{base, quote} {
		if b.Amount.Sign() > 0 {
			h.recordLiquidity(ctx, addr, journal.KindCollect, b, "")
		}
	}
	return base, quote, nil
}

// Trades lists journalled swaps of a pair, newest first.
func (h *Host) Trades(ctx context.Context, addr crypto.Address, limit int) ([]journal.Trade, error) {
	if _, err := h.engine.Pair(addr); err != nil {
		return nil, err
	}
	if h.journal == nil {
		return nil, nil
	}
	return h.journal.Trades(ctx, addr.String(), limit)
}

// ExportTrades writes the pair's full trade history to w as parquet.
func (h *Host) ExportTrades(ctx context.Context, addr crypto.Address, w io.Writer) (int, error) {
	ctx, span := h.startSpan(ctx, "export_trades", addr)
	defer span.End()
	if _, err := h.engine.Pair(addr); err != nil {
		return 0, h.fail(span, "export_trades", err)
	}
	if h.journal == nil {
		return 0, h.fail(span, "export_trades", ErrJournalDisabled)
	}
	n, err := h.journal.ExportTrades(ctx, addr.String(), w)
	if err != nil {
		return n, h.fail(span, "export_trades", err)
	}
	span.SetAttributes(attribute.Int("rows", n))
	return n, nil
}

func (h *Host) recordLiquidity(ctx context.Context, addr crypto.Address, kind string, b pair.Bucket, units string) {
	if h.journal == nil {
		return
	}
	_, err := h.journal.RecordLiquidity(ctx, journal.Liquidity{
		Pair:       addr.String(),
		Kind:       kind,
		Resource:   b.Resource.String(),
		Amount:     b.Amount.String(),
		Units:      units,
		ExecutedAt: h.now(),
	})
	if err != nil {
		h.logger.Error("journal liquidity", "pair", addr.String(), "kind", kind, "error", err)
	}
}

func (h *Host) refresh(addr crypto.Address) {
	p, err := h.engine.Pair(addr)
	if err != nil {
		return
	}
	h.publishState(p)
}

func (h *Host) publishState(p *pair.Pair) {
	h.publishPricing(p.Address.String(), p.State)
}

func (h *Host) publishPricing(pairID string, state pair.PairState) {
	h.metrics.SetState(pairID, int(state.Shortage), state.P0.InexactFloat64(), state.TargetRatio.InexactFloat64())
}

// Reason maps an engine error to a short label for metrics and responses.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, nativecommon.ErrModulePaused):
		return "paused"
	case errors.Is(err, ErrJournalDisabled):
		return "journal_disabled"
	case errors.Is(err, pair.ErrPairNotFound):
		return "not_found"
	case errors.Is(err, pair.ErrPairExists):
		return "exists"
	case errors.Is(err, pair.ErrConfiguration):
		return "configuration"
	case errors.Is(err, pair.ErrInvalidResource):
		return "invalid_resource"
	case errors.Is(err, pair.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, pair.ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, pair.ErrOutputTooSmall):
		return "output_too_small"
	case errors.Is(err, pair.ErrCoLiquidityRequired):
		return "co_liquidity_required"
	case errors.Is(err, pair.ErrArithmeticOverflow):
		return "arithmetic_overflow"
	case errors.Is(err, pair.ErrArithmeticUnderflow):
		return "arithmetic_underflow"
	default:
		return "internal"
	}
}

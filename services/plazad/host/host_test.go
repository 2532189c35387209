package host

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gguuttss/RadixPlaza/config"
	"github.com/gguuttss/RadixPlaza/core/events"
	"github.com/gguuttss/RadixPlaza/crypto"
	nativecommon "github.com/gguuttss/RadixPlaza/native/common"
	"github.com/gguuttss/RadixPlaza/native/pair"
	"github.com/gguuttss/RadixPlaza/services/plazad/journal"
	"github.com/gguuttss/RadixPlaza/storage"
)

type fixture struct {
	host     *Host
	journal  *journal.Journal
	recorder *events.Recorder
	clock    time.Time
	base     crypto.Address
	quote    crypto.Address
	pair     crypto.Address
}

func definition() config.PairDefinition {
	return config.PairDefinition{
		Base:         "BASE",
		Quote:        "QUOTE",
		InitialPrice: "1",
		KIn:          "0.5",
		KOut:         "1",
		Fee:          "0",
		DecayFactor:  "0.9512",
		Seed:         config.Seed{Base: "1000", Quote: "1000"},
	}
}

func newFixture(t *testing.T, pauses nativecommon.PauseView) *fixture {
	t.Helper()
	dsn, err := journal.FileDSN(filepath.Join(t.TempDir(), "journal.sqlite"))
	require.NoError(t, err)
	j, err := journal.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	f := &fixture{journal: j, recorder: &events.Recorder{}, clock: time.Unix(1_700_000_000, 0)}
	h, err := New(Options{
		Store:   pair.NewStore(storage.NewMemDB()),
		Journal: j,
		Logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Pauses:  pauses,
		Emitter: f.recorder,
		Now:     func() time.Time { return f.clock },
	})
	require.NoError(t, err)
	f.host = h
	f.base, f.quote, err = definition().Resources()
	require.NoError(t, err)
	f.pair = pair.DerivePairAddress(f.base, f.quote)
	return f
}

func (f *fixture) bucket(resource crypto.Address, amount string) pair.Bucket {
	return pair.Bucket{Resource: resource, Amount: pair.MustDecimal(amount)}
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestBootstrapIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.host.Bootstrap(ctx, []config.PairDefinition{definition()}))
	require.NoError(t, f.host.Bootstrap(ctx, []config.PairDefinition{definition()}))

	pairs, err := f.host.Pairs(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	p := pairs[0]
	require.Equal(t, f.pair, p.Address)
	require.True(t, p.BasePool.Actual.Equal(pair.MustDecimal("1000")), "base actual %s", p.BasePool.Actual)
	require.True(t, p.QuotePool.Actual.Equal(pair.MustDecimal("1000")), "quote actual %s", p.QuotePool.Actual)
	require.Equal(t, pair.Equilibrium, p.State.Shortage)

	entries, err := f.journal.LiquidityEntries(ctx, f.pair.String(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestBootstrapRejectsBadDefinition(t *testing.T) {
	f := newFixture(t, nil)
	def := definition()
	def.KOut = "1.5"
	err := f.host.Bootstrap(context.Background(), []config.PairDefinition{def})
	require.ErrorIs(t, err, pair.ErrConfiguration)
}

func TestSwapJournalsAndReportsTransition(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.host.Bootstrap(ctx, []config.PairDefinition{definition()}))
	f.recorder.Drain()

	quoted, err := f.host.Quote(ctx, f.pair, f.bucket(f.base, "3000"))
	require.NoError(t, err)
	require.True(t, quoted.Output.Equal(pair.MustDecimal("750")), "quoted %s", quoted.Output)

	result, err := f.host.Swap(ctx, f.pair, f.bucket(f.base, "3000"))
	require.NoError(t, err)
	require.Equal(t, f.quote, result.Output.Resource)
	require.True(t, result.Output.Amount.Equal(pair.MustDecimal("750")), "output %s", result.Output.Amount)
	require.Equal(t, pair.Equilibrium, result.Before.Shortage)
	require.Equal(t, pair.QuoteShortage, result.After.Shortage)
	require.NotEmpty(t, result.JournalID)

	trades, err := f.host.Trades(ctx, f.pair, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, result.JournalID, trades[0].ID)
	require.Equal(t, "750", trades[0].OutputAmount)
	require.Equal(t, "quote_shortage", trades[0].ShortageAfter)
	require.Equal(t, "4", trades[0].TargetRatio)

	var kinds []string
	for _, evt := range f.recorder.Events() {
		kinds = append(kinds, evt.EventType())
	}
	require.Equal(t, []string{pair.EventTypeSwapped, pair.EventTypeShortageChanged}, kinds)
}

func TestSwapFailureLeavesJournalEmpty(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.host.Bootstrap(ctx, []config.PairDefinition{definition()}))

	stranger := crypto.DeriveAddress(crypto.ResourcePrefix, []byte("OTHER"))
	_, err := f.host.Swap(ctx, f.pair, f.bucket(stranger, "10"))
	require.ErrorIs(t, err, pair.ErrInvalidResource)
	require.Equal(t, "invalid_resource", Reason(err))

	trades, err := f.host.Trades(ctx, f.pair, 10)
	require.NoError(t, err)
	require.Empty(t, trades)
}

func TestTradesUnknownPair(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.host.Trades(context.Background(), f.pair, 10)
	require.ErrorIs(t, err, pair.ErrPairNotFound)
}

func TestExportTrades(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.host.Bootstrap(ctx, []config.PairDefinition{definition()}))
	_, err := f.host.Swap(ctx, f.pair, f.bucket(f.base, "3000"))
	require.NoError(t, err)
	_, err = f.host.Swap(ctx, f.pair, f.bucket(f.quote, "1000"))
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := f.host.ExportTrades(ctx, f.pair, &buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.True(t, bytes.HasPrefix(buf.Bytes(), []byte("PAR1")))

	noJournal, err := New(Options{Store: pair.NewStore(storage.NewMemDB())})
	require.NoError(t, err)
	require.NoError(t, noJournal.Bootstrap(ctx, []config.PairDefinition{definition()}))
	_, err = noJournal.ExportTrades(ctx, f.pair, &buf)
	require.ErrorIs(t, err, ErrJournalDisabled)
	require.Equal(t, "journal_disabled", Reason(err))
}

func TestLiquidityRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.host.Bootstrap(ctx, []config.PairDefinition{definition()}))

	p, err := f.host.Pair(ctx, f.pair)
	require.NoError(t, err)
	units := pair.Bucket{Resource: p.BaseUnits, Amount: p.BasePool.Units}
	own, other, err := f.host.RemoveLiquidity(ctx, f.pair, units)
	require.NoError(t, err)
	require.True(t, own.Amount.Equal(pair.MustDecimal("1000")), "own %s", own.Amount)
	require.True(t, other.Amount.IsZero(), "other %s", other.Amount)

	base, quote, err := f.host.CollectFees(ctx, f.pair)
	require.NoError(t, err)
	require.True(t, base.Amount.IsZero())
	require.True(t, quote.Amount.IsZero())

	entries, err := f.journal.LiquidityEntries(ctx, f.pair.String(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, journal.KindRemove, entries[0].Kind)
}

func TestPausedHostRejectsMutations(t *testing.T) {
	f := newFixture(t, nativecommon.NewStaticPauses("pair"))
	err := f.host.Bootstrap(context.Background(), []config.PairDefinition{definition()})
	require.True(t, errors.Is(err, nativecommon.ErrModulePaused), "expected paused, got %v", err)
	require.Equal(t, "paused", Reason(err))
}

func TestConcurrentSwapsAreSerialised(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.host.Bootstrap(ctx, []config.PairDefinition{definition()}))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := f.bucket(f.base, "10")
			if i%2 == 1 {
				in = f.bucket(f.quote, "10")
			}
			_, err := f.host.Swap(ctx, f.pair, in)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	trades, err := f.host.Trades(ctx, f.pair, 100)
	require.NoError(t, err)
	require.Len(t, trades, 8)
}

func TestJournalFollowsCommitOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.host.Bootstrap(ctx, []config.PairDefinition{definition()}))

	const swaps = 24
	var wg sync.WaitGroup
	errs := make(chan error, swaps)
	for i := 0; i < swaps; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := f.bucket(f.base, "300")
			if i%3 == 1 {
				in = f.bucket(f.quote, "450")
			}
			_, err := f.host.Swap(ctx, f.pair, in)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	trades, err := f.host.Trades(ctx, f.pair, swaps)
	require.NoError(t, err)
	require.Len(t, trades, swaps)
	// Trades come back newest first; each row must start where the one
	// committed before it ended.
	require.Equal(t, pair.Equilibrium.String(), trades[swaps-1].ShortageBefore)
	for i := 0; i < swaps-1; i++ {
		require.Equal(t, trades[i+1].ShortageAfter, trades[i].ShortageBefore, "row %d", i)
	}
	p, err := f.host.Pair(ctx, f.pair)
	require.NoError(t, err)
	require.Equal(t, p.State.Shortage.String(), trades[0].ShortageAfter)
}

func TestSwapJournalsAfterCallerCancels(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.host.Bootstrap(context.Background(), []config.PairDefinition{definition()}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	units, _, err := f.host.AddLiquidity(ctx, f.pair, f.bucket(f.base, "10"), nil)
	require.NoError(t, err)
	require.True(t, units.Amount.Sign() > 0)

	result, err := f.host.Swap(ctx, f.pair, f.bucket(f.base, "3000"))
	require.NoError(t, err)
	require.NotEmpty(t, result.JournalID)

	trades, err := f.host.Trades(context.Background(), f.pair, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, result.JournalID, trades[0].ID)
	rows, err := f.journal.LiquidityEntries(context.Background(), f.pair.String(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestLogEmitterWritesAttributes(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(slog.New(slog.NewJSONHandler(&buf, nil)))
	emitter.Emit(pair.WrapEvent(pair.FeesCollectedEvent("component1abc",
		pair.Bucket{Amount: pair.MustDecimal("1")}, pair.Bucket{Amount: pair.MustDecimal("2")})))
	line := buf.String()
	require.True(t, strings.Contains(line, `"event":"pair.fees.collected"`), line)
	require.True(t, strings.Contains(line, `"pair":"component1abc"`), line)
}

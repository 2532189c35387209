package journal

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	dsn, err := FileDSN(filepath.Join(t.TempDir(), "journal", "plaza.sqlite"))
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	j, err := Open(dsn)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordTradeAndList(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)
	for i, out := range []string{"750", "3000"} {
		id, err := j.RecordTrade(ctx, Trade{
			Pair:           "component1pair",
			Direction:      "base_in",
			InputResource:  "resource1base",
			InputAmount:    "3000",
			OutputResource: "resource1quote",
			OutputAmount:   out,
			Fee:            "0",
			Legs:           1,
			ShortageBefore: "equilibrium",
			ShortageAfter:  "quote_shortage",
			P0:             "1",
			TargetRatio:    "4",
			LastOutSpot:    "0.0625",
			ExecutedAt:     base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("expected uuid id, got %q", id)
		}
	}
	if _, err := j.RecordTrade(ctx, Trade{Pair: "component1other", OutputAmount: "1"}); err != nil {
		t.Fatalf("record other pair: %v", err)
	}

	trades, err := j.Trades(ctx, "component1pair", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].OutputAmount != "3000" || trades[1].OutputAmount != "750" {
		t.Fatalf("expected newest first, got %+v", trades)
	}
	if !trades[1].ExecutedAt.Equal(base) || trades[1].LastOutSpot != "0.0625" {
		t.Fatalf("fields not round-tripped: %+v", trades[1])
	}

	limited, err := j.Trades(ctx, "component1pair", 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limit not applied: %d %v", len(limited), err)
	}
}

func TestRecordTradeRequiresPair(t *testing.T) {
	j := openTestJournal(t)
	if _, err := j.RecordTrade(context.Background(), Trade{}); err == nil {
		t.Fatalf("expected error for missing pair")
	}
}

func TestLiquidityEntries(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	if _, err := j.RecordLiquidity(ctx, Liquidity{Pair: "p", Kind: KindAdd, Resource: "r", Amount: "10", Units: "10"}); err != nil {
		t.Fatalf("record add: %v", err)
	}
	if _, err := j.RecordLiquidity(ctx, Liquidity{Pair: "p", Kind: KindCollect, Resource: "r", Amount: "1"}); err != nil {
		t.Fatalf("record collect: %v", err)
	}
	if _, err := j.RecordLiquidity(ctx, Liquidity{Pair: "p", Kind: "steal"}); err == nil || !strings.Contains(err.Error(), "unknown") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
	entries, err := j.LiquidityEntries(ctx, "p", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Kind != KindCollect {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestFileDSNRequiresPath(t *testing.T) {
	if _, err := FileDSN("  "); !errors.Is(err, ErrPathRequired) {
		t.Fatalf("expected ErrPathRequired, got %v", err)
	}
	if _, err := Open(""); !errors.Is(err, ErrPathRequired) {
		t.Fatalf("expected ErrPathRequired, got %v", err)
	}
}

package pair

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/gguuttss/RadixPlaza/storage"
)

func TestStoreRoundTrip(t *testing.T) {
	db, err := storage.NewLevelDB(filepath.Join(t.TempDir(), "pairs"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()

	h := newHarness(t)
	h.store = NewStore(db)
	h.engine.SetState(h.store)
	addr := h.seededPair(t, cycleConfig())
	h.swap(t, addr, base("3000"))

	loaded, ok, err := NewStore(db).PairGet(addr)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if loaded.Address != addr || loaded.Base != testBase || loaded.Quote != testQuote {
		t.Fatalf("addresses not restored: %+v", loaded)
	}
	if loaded.BaseUnits != derivePoolUnits(addr, "base") {
		t.Fatalf("pool unit address not restored")
	}
	if loaded.State.Shortage != QuoteShortage || loaded.State.LastOutgoing != h.now {
		t.Fatalf("state not restored: %+v", loaded.State)
	}
	requireDecimal(t, "p0", loaded.State.P0, "1")
	requireDecimal(t, "ratio", loaded.State.TargetRatio, "4")
	requireDecimal(t, "spot", loaded.State.LastOutSpot, "0.0625")
	requireDecimal(t, "decay", loaded.Config.DecayFactor, "0.9512")
	requireDecimal(t, "quote actual", loaded.QuotePool.Actual, "250")
	requireDecimal(t, "quote surplus", loaded.QuotePool.Surplus, "3000")
	requireDecimal(t, "quote units", loaded.QuotePool.Units, "1000")
	if loaded.Config.BaseDivisibility != DefaultDivisibility {
		t.Fatalf("divisibility not restored: %d", loaded.Config.BaseDivisibility)
	}
}

func TestStoreIndexDeduplicates(t *testing.T) {
	store := NewStore(storage.NewMemDB())
	h := newHarness(t)
	h.engine.SetState(store)
	addr := h.seededPair(t, cycleConfig())
	h.swap(t, addr, base("10"))

	addrs, err := store.PairAddresses()
	if err != nil {
		t.Fatalf("addresses: %v", err)
	}
	if len(addrs) != 1 || addrs[0] != addr {
		t.Fatalf("expected one indexed pair, got %v", addrs)
	}

	missing := DerivePairAddress(testQuote, testBase)
	if _, ok, err := store.PairGet(missing); err != nil || ok {
		t.Fatalf("expected missing pair, ok=%v err=%v", ok, err)
	}
}

func TestStoreRejectsNegativeAmounts(t *testing.T) {
	h := newHarness(t)
	addr := h.seededPair(t, cycleConfig())
	p, _, err := h.store.PairGet(addr)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	p.FeesBase = MustDecimal("-1")
	if err := h.store.PairPut(p); !errors.Is(err, ErrArithmeticUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
}

func TestAttosKeepEighteenDigits(t *testing.T) {
	value := MustDecimal("666.666666666666666667")
	attos, err := toAttos(value)
	if err != nil {
		t.Fatalf("toAttos: %v", err)
	}
	if attos.Dec() != "666666666666666666667" {
		t.Fatalf("unexpected attos %s", attos.Dec())
	}
	back, err := fromAttos(attos)
	if err != nil {
		t.Fatalf("fromAttos: %v", err)
	}
	requireDecimal(t, "round trip", back, "666.666666666666666667")
}

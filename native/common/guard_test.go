package common

import (
	"errors"
	"testing"
)

func TestStaticPausesNormalisesNames(t *testing.T) {
	pauses := NewStaticPauses(" Pair ", "", "LIQUIDITY")
	if !pauses.IsPaused("pair") {
		t.Fatalf("expected pair to be paused")
	}
	if !pauses.IsPaused("Liquidity") {
		t.Fatalf("expected liquidity to be paused")
	}
	if pauses.IsPaused("swap") {
		t.Fatalf("swap should not be paused")
	}
	if len(pauses) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(pauses))
	}
}

func TestGuard(t *testing.T) {
	pauses := NewStaticPauses("pair")
	if err := Guard(pauses, "pair"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, "other"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Guard(nil, "pair"); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
	if err := Guard(pauses, ""); err != nil {
		t.Fatalf("empty module must not block: %v", err)
	}
}

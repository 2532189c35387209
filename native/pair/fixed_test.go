package pair

import (
	"errors"
	"testing"
)

func TestDivRoundsInRequestedDirection(t *testing.T) {
	cases := []struct {
		a, b string
		mode rounding
		want string
	}{
		{a: "2", b: "3", mode: roundDown, want: "0.666666666666666666"},
		{a: "2", b: "3", mode: roundUp, want: "0.666666666666666667"},
		{a: "-2", b: "3", mode: roundDown, want: "-0.666666666666666667"},
		{a: "-2", b: "3", mode: roundUp, want: "-0.666666666666666666"},
		{a: "10", b: "4", mode: roundUp, want: "2.5"},
	}
	for _, tc := range cases {
		got, err := div(MustDecimal(tc.a), MustDecimal(tc.b), tc.mode)
		if err != nil {
			t.Fatalf("div %s/%s: %v", tc.a, tc.b, err)
		}
		requireDecimal(t, tc.a+"/"+tc.b, got, tc.want)
	}
	if _, err := div(one, zero, roundDown); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
}

func TestSqrt(t *testing.T) {
	got, err := sqrt(MustDecimal("25"), roundUp)
	if err != nil {
		t.Fatalf("sqrt: %v", err)
	}
	requireDecimal(t, "sqrt(25)", got, "5")

	down, _ := sqrt(MustDecimal("2"), roundDown)
	up, _ := sqrt(MustDecimal("2"), roundUp)
	requireDecimal(t, "sqrt(2) down", down, "1.414213562373095048")
	requireDecimal(t, "sqrt(2) up", up, "1.414213562373095049")

	if _, err := sqrt(MustDecimal("-1"), roundDown); !errors.Is(err, ErrArithmeticUnderflow) {
		t.Fatalf("expected ErrArithmeticUnderflow, got %v", err)
	}
}

func TestPowi(t *testing.T) {
	requireDecimal(t, "x^0", powi(MustDecimal("0.9512"), 0, roundDown), "1")
	requireDecimal(t, "x^1", powi(MustDecimal("0.9512"), 1, roundDown), "0.9512")
	requireDecimal(t, "x^2", powi(MustDecimal("0.9512"), 2, roundDown), "0.90478144")
	requireDecimal(t, "1^n", powi(one, 86400, roundDown), "1")
	if got := powi(MustDecimal("0.5"), 1000, roundDown); !got.IsZero() {
		t.Fatalf("expected underflow to zero, got %s", got)
	}
}

func TestParseDecimal(t *testing.T) {
	if _, err := ParseDecimal(""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for empty input, got %v", err)
	}
	if _, err := ParseDecimal("12x"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for garbage, got %v", err)
	}
	if _, err := ParseDecimal("0.0000000000000000001"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for 19 digits, got %v", err)
	}
	if _, err := ParseDecimal("1e60"); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
	got, err := ParseDecimal(" 1.5 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	requireDecimal(t, "parsed", got, "1.5")
}

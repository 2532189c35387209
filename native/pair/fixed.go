package pair

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by every amount, price and
// ratio handled by the pair.
const Scale int32 = 18

var (
	zero = decimal.Zero
	one  = decimal.NewFromInt(1)
	two  = decimal.NewFromInt(2)
	four = decimal.NewFromInt(4)
	ulp  = decimal.New(1, -Scale)

	// maxDecimal is the largest magnitude of a signed 192-bit integer scaled by 1e18.
	maxDecimal = decimal.NewFromBigInt(
		new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 191), big.NewInt(1)),
		-Scale,
	)
)

// rounding selects the direction a result is rounded to when it does not fit
// in Scale digits. Every call site picks the direction that favours the pool.
type rounding uint8

const (
	roundDown rounding = iota // toward negative infinity
	roundUp                   // toward positive infinity
)

func round(d decimal.Decimal, mode rounding) decimal.Decimal {
	if mode == roundUp {
		return d.RoundCeil(Scale)
	}
	return d.RoundFloor(Scale)
}

func mul(a, b decimal.Decimal, mode rounding) decimal.Decimal {
	return round(a.Mul(b), mode)
}

func div(a, b decimal.Decimal, mode rounding) (decimal.Decimal, error) {
	if b.IsZero() {
		return zero, fmt.Errorf("%w: division by zero", ErrArithmeticOverflow)
	}
	// QuoRem truncates toward zero; step one ulp outward when inexact.
	q, r := a.QuoRem(b, Scale)
	if r.IsZero() {
		return q, nil
	}
	positive := a.Sign() == b.Sign()
	switch {
	case mode == roundUp && positive:
		return q.Add(ulp), nil
	case mode == roundDown && !positive:
		return q.Sub(ulp), nil
	}
	return q, nil
}

func sqrt(a decimal.Decimal, mode rounding) (decimal.Decimal, error) {
	if a.Sign() < 0 {
		return zero, fmt.Errorf("%w: square root of %s", ErrArithmeticUnderflow, a)
	}
	scaled := round(a, mode).Shift(2 * Scale).BigInt()
	root := new(big.Int).Sqrt(scaled)
	if mode == roundUp && new(big.Int).Mul(root, root).Cmp(scaled) != 0 {
		root.Add(root, big.NewInt(1))
	}
	return decimal.NewFromBigInt(root, -Scale), nil
}

// powi raises base to a non-negative integer power by repeated squaring,
// rounding every intermediate product in the requested direction.
func powi(base decimal.Decimal, exp int64, mode rounding) decimal.Decimal {
	result := one
	factor := base
	for exp > 0 {
		if exp&1 == 1 {
			result = mul(result, factor, mode)
		}
		exp >>= 1
		if exp > 0 {
			factor = mul(factor, factor, mode)
		}
		if result.IsZero() {
			break
		}
	}
	return result
}

func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

func checkRange(values ...decimal.Decimal) error {
	for _, v := range values {
		if v.Abs().GreaterThan(maxDecimal) {
			return fmt.Errorf("%w: %s", ErrArithmeticOverflow, v)
		}
	}
	return nil
}

// fitsScale reports whether d is representable with the given number of
// fractional digits.
func fitsScale(d decimal.Decimal, digits int32) bool {
	return d.Equal(d.RoundFloor(digits))
}

// ParseDecimal parses a decimal string carrying at most Scale fractional digits.
func ParseDecimal(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return zero, fmt.Errorf("%w: empty decimal", ErrInvalidAmount)
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if !fitsScale(value, Scale) {
		return zero, fmt.Errorf("%w: %s has more than %d fractional digits", ErrInvalidAmount, trimmed, Scale)
	}
	if err := checkRange(value); err != nil {
		return zero, err
	}
	return value, nil
}

// MustDecimal is ParseDecimal for constants and tests.
func MustDecimal(raw string) decimal.Decimal {
	value, err := ParseDecimal(raw)
	if err != nil {
		panic(err)
	}
	return value
}

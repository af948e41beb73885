package math

import (
	"math/big"
	"sync"
)

// DecimalConfig defines fixed-point precision
type DecimalConfig struct {
	DecimalPrecision int   // Number of decimal places
	Scale            int64 // 10^DecimalPrecision
}

var (
	// PercentageConfig scales fees, profit share and hurdle rate: 1_000_000 == 100%.
	PercentageConfig = DecimalConfig{DecimalPrecision: 6, Scale: 1_000_000}
	// FuelShareConfig scales the cumulative fuel-per-share accumulator.
	FuelShareConfig = DecimalConfig{DecimalPrecision: 18, Scale: 1_000_000_000_000_000_000}
)

// ScaleU128 returns the scale as a U128.
func (c DecimalConfig) ScaleU128() U128 {
	return NewU128(uint64(c.Scale))
}

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

type RoundingMode int

const (
	RoundHalfEven RoundingMode = iota // Banker's rounding
	RoundDown
	RoundUp
)

// MulDiv computes a * b / denom with a 256-bit intermediate.
// The result must fit in 128 bits.
func MulDiv(a, b, denom U128, mode RoundingMode) (U128, error) {
	if denom.IsZero() {
		return U128{}, ErrDivisionByZero
	}

	num := a.fill(getInt128())
	bb := b.fill(getInt128())
	d := denom.fill(getInt128())
	quotient := getInt128()
	remainder := getInt128()
	defer func() {
		putInt128(num)
		putInt128(bb)
		putInt128(d)
		putInt128(quotient)
		putInt128(remainder)
	}()

	num.Mul(num, bb)
	quotient.QuoRem(num, d, remainder)

	if remainder.Sign() != 0 {
		switch mode {
		case RoundUp:
			quotient.Add(quotient, big.NewInt(1))
		case RoundHalfEven:
			// compare 2*remainder with denominator
			remainder.Lsh(remainder, 1)
			cmp := remainder.Cmp(d)
			if cmp > 0 || (cmp == 0 && quotient.Bit(0) == 1) {
				quotient.Add(quotient, big.NewInt(1))
			}
		}
	}

	return U128FromBig(quotient)
}

// MulDivU64 is MulDiv for u64 operands and result.
func MulDivU64(a, b, denom uint64, mode RoundingMode) (uint64, error) {
	r, err := MulDiv(NewU128(a), NewU128(b), NewU128(denom), mode)
	if err != nil {
		return 0, err
	}
	return r.Uint64()
}

// ApplyRate returns amount * rate / cfg.Scale, floored.
func ApplyRate(amount uint64, rate uint32, cfg DecimalConfig) (uint64, error) {
	return MulDivU64(amount, uint64(rate), uint64(cfg.Scale), RoundDown)
}

// ProRataI64 returns v * num / denom truncated toward zero. Used to carry a signed
// cost basis along with a fraction of a share position.
func ProRataI64(v int64, num, denom U128) (int64, error) {
	if denom.IsZero() {
		return 0, ErrDivisionByZero
	}
	n := getInt128()
	x := num.fill(getInt128())
	d := denom.fill(getInt128())
	defer func() {
		putInt128(n)
		putInt128(x)
		putInt128(d)
	}()

	n.SetInt64(v)
	n.Mul(n, x)
	n.Quo(n, d)
	if !n.IsInt64() {
		if n.Sign() < 0 {
			return 0, ErrUnderflow
		}
		return 0, ErrOverflow
	}
	return n.Int64(), nil
}

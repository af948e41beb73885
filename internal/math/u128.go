package math

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"math/bits"
)

var (
	ErrOverflow       = errors.New("arithmetic overflow")
	ErrUnderflow      = errors.New("arithmetic underflow")
	ErrDivisionByZero = errors.New("division by zero")
)

// U128 is an unsigned 128-bit integer. The zero value is 0.
// All arithmetic is checked; nothing wraps or saturates.
type U128 struct {
	hi, lo uint64
}

var (
	ZeroU128 = U128{}
	MaxU128  = U128{hi: ^uint64(0), lo: ^uint64(0)}
)

func NewU128(v uint64) U128 {
	return U128{lo: v}
}

// U128FromBig converts b, failing if it is negative or wider than 128 bits.
func U128FromBig(b *big.Int) (U128, error) {
	if b.Sign() < 0 {
		return U128{}, ErrUnderflow
	}
	if b.BitLen() > 128 {
		return U128{}, ErrOverflow
	}
	words := b.Bits()
	var u U128
	if bits.UintSize == 64 {
		if len(words) > 0 {
			u.lo = uint64(words[0])
		}
		if len(words) > 1 {
			u.hi = uint64(words[1])
		}
		return u, nil
	}
	for i, w := range words {
		shift := uint(i) * 32
		if shift < 64 {
			u.lo |= uint64(w) << shift
		} else {
			u.hi |= uint64(w) << (shift - 64)
		}
	}
	return u, nil
}

// ParseU128 parses a base-10 string.
func ParseU128(s string) (U128, error) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return U128{}, fmt.Errorf("invalid u128 %q", s)
	}
	return U128FromBig(b)
}

// Big returns a freshly allocated big.Int holding u.
func (u U128) Big() *big.Int {
	return u.fill(new(big.Int))
}

func (u U128) fill(dst *big.Int) *big.Int {
	dst.SetUint64(u.hi)
	dst.Lsh(dst, 64)
	lo := getInt128()
	lo.SetUint64(u.lo)
	dst.Add(dst, lo)
	putInt128(lo)
	return dst
}

func (u U128) IsZero() bool {
	return u.hi == 0 && u.lo == 0
}

// Cmp returns -1, 0 or +1.
func (u U128) Cmp(v U128) int {
	switch {
	case u.hi < v.hi:
		return -1
	case u.hi > v.hi:
		return 1
	case u.lo < v.lo:
		return -1
	case u.lo > v.lo:
		return 1
	}
	return 0
}

func (u U128) Lt(v U128) bool  { return u.Cmp(v) < 0 }
func (u U128) Gt(v U128) bool  { return u.Cmp(v) > 0 }
func (u U128) Lte(v U128) bool { return u.Cmp(v) <= 0 }
func (u U128) Gte(v U128) bool { return u.Cmp(v) >= 0 }

func (u U128) Add(v U128) (U128, error) {
	lo, carry := bits.Add64(u.lo, v.lo, 0)
	hi, carry := bits.Add64(u.hi, v.hi, carry)
	if carry != 0 {
		return U128{}, ErrOverflow
	}
	return U128{hi: hi, lo: lo}, nil
}

func (u U128) Sub(v U128) (U128, error) {
	lo, borrow := bits.Sub64(u.lo, v.lo, 0)
	hi, borrow := bits.Sub64(u.hi, v.hi, borrow)
	if borrow != 0 {
		return U128{}, ErrUnderflow
	}
	return U128{hi: hi, lo: lo}, nil
}

func (u U128) Mul(v U128) (U128, error) {
	if u.hi != 0 && v.hi != 0 {
		return U128{}, ErrOverflow
	}
	hi, lo := bits.Mul64(u.lo, v.lo)
	c1, x := bits.Mul64(u.hi, v.lo)
	c2, y := bits.Mul64(u.lo, v.hi)
	if c1 != 0 || c2 != 0 {
		return U128{}, ErrOverflow
	}
	var carry uint64
	hi, carry = bits.Add64(hi, x, 0)
	if carry != 0 {
		return U128{}, ErrOverflow
	}
	hi, carry = bits.Add64(hi, y, 0)
	if carry != 0 {
		return U128{}, ErrOverflow
	}
	return U128{hi: hi, lo: lo}, nil
}

// Div is floor division.
func (u U128) Div(v U128) (U128, error) {
	if v.IsZero() {
		return U128{}, ErrDivisionByZero
	}
	if v.hi == 0 {
		qhi := u.hi / v.lo
		r := u.hi % v.lo
		qlo, _ := bits.Div64(r, u.lo, v.lo)
		return U128{hi: qhi, lo: qlo}, nil
	}
	q := getInt128()
	defer putInt128(q)
	n := u.fill(getInt128())
	defer putInt128(n)
	d := v.fill(getInt128())
	defer putInt128(d)
	q.Quo(n, d)
	return U128FromBig(q)
}

// Uint64 narrows u, failing if it does not fit.
func (u U128) Uint64() (uint64, error) {
	if u.hi != 0 {
		return 0, ErrOverflow
	}
	return u.lo, nil
}

// Int64 narrows u, failing if it does not fit.
func (u U128) Int64() (int64, error) {
	if u.hi != 0 || u.lo > 1<<63-1 {
		return 0, ErrOverflow
	}
	return int64(u.lo), nil
}

func (u U128) String() string {
	if u.hi == 0 {
		return fmt.Sprintf("%d", u.lo)
	}
	return u.Big().String()
}

// MarshalJSON encodes u as a quoted decimal string so values above 2^53 survive JSON.
func (u U128) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *U128) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n uint64
		if err2 := json.Unmarshal(data, &n); err2 != nil {
			return fmt.Errorf("u128: %w", err)
		}
		*u = NewU128(n)
		return nil
	}
	v, err := ParseU128(s)
	if err != nil {
		return err
	}
	*u = v
	return nil
}

func MinU128(a, b U128) U128 {
	if a.Lt(b) {
		return a
	}
	return b
}

func MaxU128Of(a, b U128) U128 {
	if a.Gt(b) {
		return a
	}
	return b
}

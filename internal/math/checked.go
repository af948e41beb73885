package math

import "math/bits"

func AddU64(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

func SubU64(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

func AddI64(a, b int64) (int64, error) {
	c := a + b
	if (c > a) != (b > 0) {
		if b > 0 {
			return 0, ErrOverflow
		}
		return 0, ErrUnderflow
	}
	return c, nil
}

func SubI64(a, b int64) (int64, error) {
	c := a - b
	if (c < a) != (b > 0) {
		if b > 0 {
			return 0, ErrUnderflow
		}
		return 0, ErrOverflow
	}
	return c, nil
}

// U64ToI64 casts v, failing above MaxInt64.
func U64ToI64(v uint64) (int64, error) {
	if v > 1<<63-1 {
		return 0, ErrOverflow
	}
	return int64(v), nil
}

// I64ToU64 casts v, failing when negative.
func I64ToU64(v int64) (uint64, error) {
	if v < 0 {
		return 0, ErrUnderflow
	}
	return uint64(v), nil
}

func MinU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

package math_test

import (
	"encoding/json"
	"errors"
	"testing"

	fpmath "VaultLedger/internal/math"
)

func mustU128(t *testing.T, s string) fpmath.U128 {
	t.Helper()
	v, err := fpmath.ParseU128(s)
	if err != nil {
		t.Fatalf("ParseU128(%q): %v", s, err)
	}
	return v
}

func TestU128_CheckedArithmetic(t *testing.T) {
	big := mustU128(t, "340282366920938463463374607431768211455") // 2^128-1
	if big != fpmath.MaxU128 {
		t.Fatalf("max: got %s", big)
	}
	if _, err := big.Add(fpmath.NewU128(1)); !errors.Is(err, fpmath.ErrOverflow) {
		t.Fatalf("max+1: got %v, want overflow", err)
	}
	if _, err := fpmath.NewU128(1).Sub(fpmath.NewU128(2)); !errors.Is(err, fpmath.ErrUnderflow) {
		t.Fatalf("1-2: got %v, want underflow", err)
	}
	if _, err := big.Mul(fpmath.NewU128(2)); !errors.Is(err, fpmath.ErrOverflow) {
		t.Fatalf("max*2: got %v, want overflow", err)
	}
	if _, err := fpmath.NewU128(1).Div(fpmath.ZeroU128); !errors.Is(err, fpmath.ErrDivisionByZero) {
		t.Fatalf("1/0: got %v, want division by zero", err)
	}

	a := mustU128(t, "36893488147419103232") // 2^65
	q, err := a.Div(mustU128(t, "18446744073709551616"))
	if err != nil || q.String() != "2" {
		t.Fatalf("2^65 / 2^64: got %s, %v", q, err)
	}
	if _, err := a.Uint64(); !errors.Is(err, fpmath.ErrOverflow) {
		t.Fatalf("2^65 narrowed: got %v, want overflow", err)
	}
}

func TestU128_JSON(t *testing.T) {
	v := mustU128(t, "123456789012345678901234567890")
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"123456789012345678901234567890"` {
		t.Fatalf("marshal: got %s", data)
	}

	var fromNumber fpmath.U128
	if err := json.Unmarshal([]byte(`42`), &fromNumber); err != nil || fromNumber.String() != "42" {
		t.Fatalf("unmarshal number: got %s, %v", fromNumber, err)
	}
	var bad fpmath.U128
	if err := json.Unmarshal([]byte(`"-1"`), &bad); err == nil {
		t.Fatalf("negative must not parse")
	}
}

func TestMulDiv_Rounding(t *testing.T) {
	cases := []struct {
		a, b, d uint64
		mode    fpmath.RoundingMode
		want    uint64
	}{
		{7, 1, 2, fpmath.RoundDown, 3},
		{7, 1, 2, fpmath.RoundUp, 4},
		{7, 1, 2, fpmath.RoundHalfEven, 4},
		{5, 1, 2, fpmath.RoundHalfEven, 2},
		{10, 3, 4, fpmath.RoundHalfEven, 8},
		{6, 1, 3, fpmath.RoundUp, 2},
	}
	for _, c := range cases {
		got, err := fpmath.MulDivU64(c.a, c.b, c.d, c.mode)
		if err != nil {
			t.Fatalf("MulDivU64(%d, %d, %d): %v", c.a, c.b, c.d, err)
		}
		if got != c.want {
			t.Errorf("MulDivU64(%d, %d, %d, mode %d): got %d, want %d", c.a, c.b, c.d, c.mode, got, c.want)
		}
	}

	// 256-bit intermediate: (2^128-1) * 2 / 4 fits again.
	r, err := fpmath.MulDiv(fpmath.MaxU128, fpmath.NewU128(2), fpmath.NewU128(4), fpmath.RoundDown)
	if err != nil {
		t.Fatalf("wide intermediate: %v", err)
	}
	if r.String() != "170141183460469231731687303715884105727" {
		t.Fatalf("wide intermediate: got %s", r)
	}
	if _, err := fpmath.MulDiv(fpmath.MaxU128, fpmath.NewU128(2), fpmath.NewU128(1), fpmath.RoundDown); !errors.Is(err, fpmath.ErrOverflow) {
		t.Fatalf("result above 128 bits: got %v, want overflow", err)
	}
}

func TestShares_DepositAndRedeem(t *testing.T) {
	// Empty pool mints 1:1.
	s, err := fpmath.SharesForDeposit(1_000_000, fpmath.ZeroU128, 0)
	if err != nil || s.String() != "1000000" {
		t.Fatalf("first deposit: got %s, %v", s, err)
	}

	// After equity doubles a deposit gets half the shares.
	s, err = fpmath.SharesForDeposit(1_000_000, fpmath.NewU128(1_000_000), 2_000_000)
	if err != nil || s.String() != "500000" {
		t.Fatalf("deposit at 2x: got %s, %v", s, err)
	}

	amt, err := fpmath.AmountForShares(fpmath.NewU128(333_333), fpmath.NewU128(1_000_000), 1_000_000)
	if err != nil || amt != 333_333 {
		t.Fatalf("redeem: got %d, %v", amt, err)
	}
	if _, err := fpmath.AmountForShares(fpmath.NewU128(1), fpmath.ZeroU128, 5); !errors.Is(err, fpmath.ErrDivisionByZero) {
		t.Fatalf("shares against empty pool: got %v", err)
	}

	half, err := fpmath.SharesFromPercent(fpmath.NewU128(1_000_001), 500_000)
	if err != nil || half.String() != "500000" {
		t.Fatalf("50%% of 1000001: got %s, %v", half, err)
	}
}

// A deposit redeemed straight back returns the amount less at most one unit of
// floor rounding, for pools priced at or below one token per share.
func TestShares_RoundTripLosesAtMostOneUnit(t *testing.T) {
	cases := []struct {
		amount, equity, total uint64
	}{
		{1_000_000, 0, 0},
		{1_000_000, 1_000_000, 1_000_000},
		{7, 3, 10},
		{1, 999, 1_000},
		{999_999, 1_234_567, 9_876_543},
		{123_456_789, 1_000_000_000, 3_000_000_007},
		{1, 1, 1 << 40},
	}
	for _, c := range cases {
		total := fpmath.NewU128(c.total)
		shares, err := fpmath.SharesForDeposit(c.amount, total, c.equity)
		if err != nil {
			t.Fatalf("%+v: shares: %v", c, err)
		}
		after, err := total.Add(shares)
		if err != nil {
			t.Fatalf("%+v: total: %v", c, err)
		}
		back, err := fpmath.AmountForShares(shares, after, c.equity+c.amount)
		if err != nil {
			t.Fatalf("%+v: amount: %v", c, err)
		}
		if back > c.amount || back+1 < c.amount {
			t.Fatalf("%+v: round trip returned %d", c, back)
		}
	}
}

func TestRebaseAndNormalize(t *testing.T) {
	if exp := fpmath.RebaseExponent(fpmath.NewU128(999_000), 1_000); exp != 0 {
		t.Fatalf("ratio 999: got %d, want no rebase", exp)
	}
	if exp := fpmath.RebaseExponent(fpmath.NewU128(1_000_000), 1_000); exp != 3 {
		t.Fatalf("ratio 1000: got %d, want 3", exp)
	}
	if exp := fpmath.RebaseExponent(fpmath.NewU128(123_456_789), 10); exp != 7 {
		t.Fatalf("ratio 1.2e7: got %d, want 7", exp)
	}
	if exp := fpmath.RebaseExponent(fpmath.NewU128(5), 0); exp != 0 {
		t.Fatalf("zero equity: got %d", exp)
	}

	s := fpmath.Shares{Raw: fpmath.NewU128(123_456), Base: 1}
	n, err := s.Normalize(4)
	if err != nil || n.Raw.String() != "123" || n.Base != 4 {
		t.Fatalf("normalize: got %+v, %v", n, err)
	}
	if _, err := n.Normalize(2); err == nil {
		t.Fatalf("normalizing to a lower base must fail")
	}
	if _, err := fpmath.Pow10(fpmath.MaxSharesBase + 1); !errors.Is(err, fpmath.ErrOverflow) {
		t.Fatalf("10^39: got %v", err)
	}
}

func TestFuelAccumulator(t *testing.T) {
	// 1000 fuel over 4 user shares: 250 per share at 1e18 scale.
	delta, err := fpmath.FuelPerShareDelta(fpmath.NewU128(1_000), fpmath.NewU128(4))
	if err != nil {
		t.Fatal(err)
	}
	if delta.String() != "250000000000000000000" {
		t.Fatalf("per-share delta: got %s", delta)
	}

	owed, err := fpmath.FuelOwed(fpmath.NewU128(3), delta, fpmath.ZeroU128)
	if err != nil || owed != 750 {
		t.Fatalf("owed to 3 shares: got %d, %v", owed, err)
	}
	if _, err := fpmath.FuelOwed(fpmath.NewU128(3), fpmath.ZeroU128, delta); !errors.Is(err, fpmath.ErrUnderflow) {
		t.Fatalf("baseline above accumulator: got %v, want underflow", err)
	}
}

func TestChecked(t *testing.T) {
	if _, err := fpmath.AddU64(^uint64(0), 1); !errors.Is(err, fpmath.ErrOverflow) {
		t.Errorf("AddU64 overflow: got %v", err)
	}
	if _, err := fpmath.SubU64(1, 2); !errors.Is(err, fpmath.ErrUnderflow) {
		t.Errorf("SubU64 underflow: got %v", err)
	}
	if _, err := fpmath.U64ToI64(1 << 63); !errors.Is(err, fpmath.ErrOverflow) {
		t.Errorf("U64ToI64: got %v", err)
	}
	if _, err := fpmath.I64ToU64(-1); err == nil {
		t.Errorf("I64ToU64(-1) must fail")
	}
	if v, err := fpmath.ApplyRate(2_000_000, 25_000, fpmath.PercentageConfig); err != nil || v != 50_000 {
		t.Errorf("2.5%% of 2e6: got %d, %v", v, err)
	}
}

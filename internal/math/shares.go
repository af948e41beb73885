package math

import "fmt"

// MaxSharesBase is the largest power of ten representable in a U128.
const MaxSharesBase = 38

// RebaseTriggerExp is the log10 of totalShares/equity at which a vault rebases.
const RebaseTriggerExp = 3

var pow10Table [MaxSharesBase + 1]U128

func init() {
	p := NewU128(1)
	ten := NewU128(10)
	for i := range pow10Table {
		pow10Table[i] = p
		if i < MaxSharesBase {
			p, _ = p.Mul(ten)
		}
	}
}

// Pow10 returns 10^exp.
func Pow10(exp uint32) (U128, error) {
	if exp > MaxSharesBase {
		return U128{}, ErrOverflow
	}
	return pow10Table[exp], nil
}

// Shares is a share quantity tagged with the base exponent it was minted under.
// Quantities with different bases are not comparable until normalized.
type Shares struct {
	Raw  U128   `json:"raw"`
	Base uint32 `json:"base"`
}

// Normalize re-expresses s under target, dividing by 10^(target-Base).
// Bases only ever grow, so a target below Base is an error.
func (s Shares) Normalize(target uint32) (Shares, error) {
	if target == s.Base {
		return s, nil
	}
	if target < s.Base {
		return Shares{}, fmt.Errorf("normalize shares: target base %d below current %d", target, s.Base)
	}
	div, err := Pow10(target - s.Base)
	if err != nil {
		return Shares{}, err
	}
	raw, err := s.Raw.Div(div)
	if err != nil {
		return Shares{}, err
	}
	return Shares{Raw: raw, Base: target}, nil
}

// RebaseExponent returns how many powers of ten totalShares should shed given equity.
// Zero means no rebase is needed.
func RebaseExponent(totalShares U128, equity uint64) uint32 {
	if equity == 0 || totalShares.IsZero() {
		return 0
	}
	ratio, err := totalShares.Div(NewU128(equity))
	if err != nil {
		return 0
	}
	var exp uint32
	ten := NewU128(10)
	for ratio.Gte(ten) {
		ratio, _ = ratio.Div(ten)
		exp++
	}
	if exp < RebaseTriggerExp {
		return 0
	}
	return exp
}

// SharesForDeposit converts a token amount to shares at the given equity.
// The first deposit into an empty pool mints 1:1.
func SharesForDeposit(amount uint64, totalShares U128, equity uint64) (U128, error) {
	if totalShares.IsZero() {
		return NewU128(amount), nil
	}
	return MulDiv(NewU128(amount), totalShares, NewU128(equity), RoundDown)
}

// AmountForShares converts shares to a token amount at the given equity, floored.
func AmountForShares(shares, totalShares U128, equity uint64) (uint64, error) {
	if totalShares.IsZero() {
		if shares.IsZero() {
			return 0, nil
		}
		return 0, ErrDivisionByZero
	}
	amt, err := MulDiv(shares, NewU128(equity), totalShares, RoundDown)
	if err != nil {
		return 0, err
	}
	return amt.Uint64()
}

// SharesFromPercent returns shares * percent / PercentageConfig.Scale.
func SharesFromPercent(shares U128, percent uint64) (U128, error) {
	return MulDiv(shares, NewU128(percent), PercentageConfig.ScaleU128(), RoundDown)
}

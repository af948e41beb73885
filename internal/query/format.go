package query

import (
	"fmt"

	fpmath "VaultLedger/internal/math"

	"github.com/shopspring/decimal"
)

var percentScale = decimal.NewFromInt(int64(fpmath.PercentageConfig.Scale))

// Units renders a raw base-asset amount with the asset's decimals.
func Units(raw int64, decimals int) decimal.Decimal {
	return decimal.New(raw, -int32(decimals))
}

// Percent renders a PercentagePrecision rate as a fraction, 1e6 being 1.
func Percent(rate int64) decimal.Decimal {
	return decimal.NewFromInt(rate).Div(percentScale)
}

// parseShares reads a NUMERIC(39,0) column scanned as text.
func parseShares(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse shares %q: %w", s, err)
	}
	return d, nil
}

// ShareValue returns floor(shares * equity / totalShares). Shares held at a stale base
// are scaled down by 10^(vaultBase - holderBase) first, as a rebase would.
func ShareValue(shares, totalShares decimal.Decimal, holderBase, vaultBase int64, equity int64) int64 {
	if totalShares.IsZero() {
		return 0
	}
	if holderBase < vaultBase {
		shares = shares.Shift(-int32(vaultBase - holderBase)).Floor()
	}
	q, _ := shares.Mul(decimal.NewFromInt(equity)).QuoRem(totalShares, 0)
	return q.IntPart()
}

// SharePrice is the base-asset value of one share; 1 before the first deposit.
func SharePrice(equity int64, totalShares decimal.Decimal) decimal.Decimal {
	if totalShares.IsZero() {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(equity).Div(totalShares)
}

package query_test

import (
	"testing"

	"VaultLedger/internal/query"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestUnits(t *testing.T) {
	assert.Equal(t, "1.5", query.Units(1_500_000, 6).String())
	assert.Equal(t, "163350", query.Units(163_350_000_000, 6).String())
	assert.Equal(t, "42", query.Units(42, 0).String())
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "0.2", query.Percent(200_000).String())
	assert.Equal(t, "1", query.Percent(1_000_000).String())
	assert.Equal(t, "0", query.Percent(0).String())
}

func TestShareValue_FloorsProRata(t *testing.T) {
	total := decimal.NewFromInt(3)
	assert.Equal(t, int64(3), query.ShareValue(decimal.NewFromInt(1), total, 0, 0, 10))
	assert.Equal(t, int64(10), query.ShareValue(total, total, 0, 0, 10))
	assert.Equal(t, int64(0), query.ShareValue(decimal.NewFromInt(1), decimal.Zero, 0, 0, 10))
}

func TestShareValue_NormalizesStaleBase(t *testing.T) {
	// Vault rebased by 10^2: 500 stale shares are 5 shares of 10 total.
	got := query.ShareValue(decimal.NewFromInt(500), decimal.NewFromInt(10), 0, 2, 1_000)
	assert.Equal(t, int64(500), got)
}

func TestShareValue_ExceedsUint64(t *testing.T) {
	huge, _ := decimal.NewFromString("340282366920938463463374607431768211455")
	got := query.ShareValue(huge, huge, 0, 0, 163_350_000_000)
	assert.Equal(t, int64(163_350_000_000), got)
}

func TestSharePrice(t *testing.T) {
	assert.True(t, query.SharePrice(0, decimal.Zero).Equal(decimal.NewFromInt(1)))
	assert.True(t, query.SharePrice(330, decimal.NewFromInt(300)).Equal(decimal.RequireFromString("1.1")))
}

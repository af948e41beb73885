package state

import (
	fpmath "VaultLedger/internal/math"
)

// FuelCategories is the number of raw fuel counters the venue reports per account.
const FuelCategories = 6

// FuelReading is the venue's raw fuel counters for the vault's trading account. Each
// counter is 32 bits wide; once one would overflow the venue moves the excess into a
// 128-bit overflow side-account, which is included here when present.
type FuelReading struct {
	Counters [FuelCategories]uint32       `json:"counters"`
	Overflow *[FuelCategories]fpmath.U128 `json:"overflow,omitempty"`
}

// Total sums the counters and the overflow side-account.
func (r FuelReading) Total() (fpmath.U128, error) {
	var total fpmath.U128
	var err error
	for _, c := range r.Counters {
		if total, err = total.Add(fpmath.NewU128(uint64(c))); err != nil {
			return fpmath.U128{}, err
		}
	}
	if r.Overflow != nil {
		for _, c := range r.Overflow {
			if total, err = total.Add(c); err != nil {
				return fpmath.U128{}, err
			}
		}
	}
	return total, nil
}

// FuelUpdate describes one vault-level accumulation.
type FuelUpdate struct {
	Applied       bool        `json:"applied"`
	Delta         fpmath.U128 `json:"delta"`
	PerShareDelta fpmath.U128 `json:"per_share_delta"`
}

// UpdateCumulativeFuel folds a new raw reading into the vault accumulator. A reading at or
// before the last observed timestamp is a no-op, so redundant cranks are harmless.
func (v *Vault) UpdateCumulativeFuel(r FuelReading, now int64) (FuelUpdate, error) {
	if now <= v.LastCumulativeFuelPerShareTs {
		return FuelUpdate{}, nil
	}
	total, err := r.Total()
	if err != nil {
		return FuelUpdate{}, mathErr("fuel total", err)
	}
	if total.Lt(v.CumulativeFuel) {
		return FuelUpdate{}, ErrFuelCounterRegressed.With("reading %s below cumulative %s", total, v.CumulativeFuel)
	}
	delta, _ := total.Sub(v.CumulativeFuel)

	upd := FuelUpdate{Applied: true, Delta: delta}
	if !v.UserShares.IsZero() && !delta.IsZero() {
		if upd.PerShareDelta, err = fpmath.FuelPerShareDelta(delta, v.UserShares); err != nil {
			return FuelUpdate{}, mathErr("fuel per share", err)
		}
		cfps, err := v.CumulativeFuelPerShare.Add(upd.PerShareDelta)
		if err != nil {
			return FuelUpdate{}, mathErr("cumulative fuel per share", err)
		}
		v.CumulativeFuelPerShare = cfps
	}
	v.CumulativeFuel = total
	v.LastCumulativeFuelPerShareTs = now
	return upd, nil
}

// UpdateFuel credits the holding with fuel accrued since its baseline and moves the
// baseline to the vault's accumulator. The holding must already be normalized.
func (h *Holding) UpdateFuel(v *Vault, now int64) (uint64, error) {
	if h.CumulativeFuelPerShareAmount.Gt(v.CumulativeFuelPerShare) {
		return 0, ErrFuelSeasonNotFlushed.With("holding baseline %s above vault accumulator %s", h.CumulativeFuelPerShareAmount, v.CumulativeFuelPerShare)
	}
	owed, err := fpmath.FuelOwed(h.VaultShares, v.CumulativeFuelPerShare, h.CumulativeFuelPerShareAmount)
	if err != nil {
		return 0, mathErr("fuel owed", err)
	}
	if h.FuelAmount, err = fpmath.AddU64(h.FuelAmount, owed); err != nil {
		return 0, mathErr("fuel amount", err)
	}
	h.CumulativeFuelPerShareAmount = v.CumulativeFuelPerShare
	h.LastFuelUpdateTs = now
	return owed, nil
}

// ResetFuel clears the holding's fuel for a new season and pins its baseline to the
// vault accumulator so nothing accrues until the vault itself is reset. Returns the
// fuel that was cleared.
func (h *Holding) ResetFuel(v *Vault, now int64) uint64 {
	cleared := h.FuelAmount
	h.FuelAmount = 0
	h.CumulativeFuelPerShareAmount = v.CumulativeFuelPerShare
	h.LastFuelUpdateTs = now
	return cleared
}

// FuelFlushed reports whether the holding carries no fuel and no unaccrued delta
// against the vault accumulator.
func (h *Holding) FuelFlushed(v *Vault) bool {
	if h.FuelAmount != 0 {
		return false
	}
	if h.VaultShares.IsZero() {
		return true
	}
	return h.VaultSharesBase == v.SharesBase && h.CumulativeFuelPerShareAmount.Cmp(v.CumulativeFuelPerShare) == 0
}

// ResetFuelSeason zeroes the vault accumulator and every holder baseline. Every holder
// must already be flushed; fuel accrued since a holder reset blocks the season reset
// until that holder is reset again.
func (v *Vault) ResetFuelSeason(holders []*Holding, now int64) (fpmath.U128, error) {
	for _, h := range holders {
		if !h.FuelFlushed(v) {
			return fpmath.U128{}, ErrFuelSeasonNotFlushed.With("holder still carries %d fuel, baseline %s", h.FuelAmount, h.CumulativeFuelPerShareAmount)
		}
	}
	cleared := v.CumulativeFuel
	v.CumulativeFuel = fpmath.ZeroU128
	v.CumulativeFuelPerShare = fpmath.ZeroU128
	v.LastCumulativeFuelPerShareTs = now
	for _, h := range holders {
		h.CumulativeFuelPerShareAmount = fpmath.ZeroU128
	}
	return cleared, nil
}

package math

// FuelPerShareDelta returns delta * FuelShareConfig.Scale / userShares.
// Callers skip the update entirely when userShares is zero.
func FuelPerShareDelta(delta, userShares U128) (U128, error) {
	return MulDiv(delta, FuelShareConfig.ScaleU128(), userShares, RoundDown)
}

// FuelOwed returns shares * (vaultPerShare - basePerShare) / FuelShareConfig.Scale.
// A baseline above the vault accumulator means the vault season was reset before the
// holder's, which is reported as underflow.
func FuelOwed(shares, vaultPerShare, basePerShare U128) (uint64, error) {
	diff, err := vaultPerShare.Sub(basePerShare)
	if err != nil {
		return 0, err
	}
	owed, err := MulDiv(shares, diff, FuelShareConfig.ScaleU128(), RoundDown)
	if err != nil {
		return 0, err
	}
	return owed.Uint64()
}

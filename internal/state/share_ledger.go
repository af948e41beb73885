package state

import (
	fpmath "VaultLedger/internal/math"
)

// WithdrawUnit selects how a withdraw amount is interpreted.
type WithdrawUnit uint8

const (
	WithdrawUnitToken WithdrawUnit = iota
	WithdrawUnitShares
	WithdrawUnitSharesPercent
)

func (u WithdrawUnit) String() string {
	switch u {
	case WithdrawUnitToken:
		return "Token"
	case WithdrawUnitShares:
		return "Shares"
	case WithdrawUnitSharesPercent:
		return "SharesPercent"
	default:
		return "Unknown"
	}
}

// ApplyRebase divides every vault-level share quantity by a power of ten once total
// shares have grown too large relative to equity. Holdings are brought to the new base
// separately and then passed to SettleRebasedUserShares. Returns the exponent applied,
// zero when nothing changed.
func (v *Vault) ApplyRebase(p *VaultProtocol, equity uint64) (uint32, error) {
	exp := fpmath.RebaseExponent(v.TotalShares, equity)
	if exp == 0 {
		return 0, nil
	}
	if v.SharesBase+exp > fpmath.MaxSharesBase {
		return 0, ErrInvalidVaultSharesDetected.With("shares base would exceed %d", fpmath.MaxSharesBase)
	}
	div, err := fpmath.Pow10(exp)
	if err != nil {
		return 0, mathErr("rebase", err)
	}

	shrink := func(u fpmath.U128) fpmath.U128 {
		q, _ := u.Div(div)
		return q
	}
	cfps, err := v.CumulativeFuelPerShare.Mul(div)
	if err != nil {
		return 0, mathErr("rebase fuel per share", err)
	}

	v.TotalShares = shrink(v.TotalShares)
	v.UserShares = shrink(v.UserShares)
	v.LastManagerWithdraw.Shares = shrink(v.LastManagerWithdraw.Shares)
	v.CumulativeFuelPerShare = cfps
	v.SharesBase += exp
	if p != nil {
		p.ProtocolShares = shrink(p.ProtocolShares)
		p.LastWithdrawRequest.Shares = shrink(p.LastWithdrawRequest.Shares)
	}
	return exp, nil
}

// SettleRebasedUserShares sets user shares to the exact sum of holdings already at the
// vault's base. Each holding floors on its own, so the sum can fall short of the rebased
// user shares; the shortfall is returned and becomes manager shares.
func (v *Vault) SettleRebasedUserShares(holdings []*Holding) (fpmath.U128, error) {
	sum, err := v.sumHoldings(holdings)
	if err != nil {
		return fpmath.U128{}, err
	}
	dust, err := v.UserShares.Sub(sum)
	if err != nil {
		return fpmath.U128{}, ErrInvalidVaultSharesDetected.With("holdings %s exceed user shares %s after rebase", sum, v.UserShares)
	}
	v.UserShares = sum
	return dust, nil
}

// CheckShareConservation verifies that the holdings account for user shares exactly.
// Empty holdings at an older base are ignored.
func (v *Vault) CheckShareConservation(holdings []*Holding) error {
	sum, err := v.sumHoldings(holdings)
	if err != nil {
		return err
	}
	if sum.Cmp(v.UserShares) != 0 {
		return ErrInvalidVaultSharesDetected.With("holdings sum to %s, user shares %s", sum, v.UserShares)
	}
	return nil
}

func (v *Vault) sumHoldings(holdings []*Holding) (fpmath.U128, error) {
	var sum fpmath.U128
	for _, h := range holdings {
		if h.VaultShares.IsZero() {
			continue
		}
		if h.VaultSharesBase != v.SharesBase {
			return fpmath.U128{}, ErrSharesBaseMismatch.With("holding base %d, vault base %d", h.VaultSharesBase, v.SharesBase)
		}
		next, err := sum.Add(h.VaultShares)
		if err != nil {
			return fpmath.U128{}, mathErr("sum holdings", err)
		}
		sum = next
	}
	return sum, nil
}

// SharesForDeposit prices a deposit. Shares round down so existing holders are never
// diluted by rounding.
func (v *Vault) SharesForDeposit(amount, equity uint64) (fpmath.U128, error) {
	if equity == 0 && !v.TotalShares.IsZero() {
		return fpmath.U128{}, ErrInvalidVaultForNewDepositors.With("vault has %s shares but zero equity", v.TotalShares)
	}
	shares, err := fpmath.SharesForDeposit(amount, v.TotalShares, equity)
	if err != nil {
		return fpmath.U128{}, mathErr("shares for deposit", err)
	}
	if shares.IsZero() {
		return fpmath.U128{}, ErrInvalidVaultSharesDetected.With("deposit of %d mints zero shares", amount)
	}
	return shares, nil
}

// AmountForShares values shares at current equity, rounding down.
func (v *Vault) AmountForShares(shares fpmath.U128, equity uint64) (uint64, error) {
	if shares.Gt(v.TotalShares) {
		return 0, ErrInvalidVaultSharesDetected.With("%s shares exceed total %s", shares, v.TotalShares)
	}
	amt, err := fpmath.AmountForShares(shares, v.TotalShares, equity)
	if err != nil {
		return 0, mathErr("amount for shares", err)
	}
	return amt, nil
}

// resolveWithdraw converts a withdraw amount in unit into (token value, shares)
// against owned shares at current equity.
func (v *Vault) resolveWithdraw(unit WithdrawUnit, amount uint64, owned fpmath.U128, equity uint64) (uint64, fpmath.U128, error) {
	var shares fpmath.U128
	switch unit {
	case WithdrawUnitToken:
		ownedValue, err := v.AmountForShares(owned, equity)
		if err != nil {
			return 0, fpmath.U128{}, err
		}
		if amount > ownedValue {
			return 0, fpmath.U128{}, ErrInsufficientVaultShares.With("requested %d, claim worth %d", amount, ownedValue)
		}
		if equity == 0 {
			return 0, fpmath.U128{}, ErrInvalidVaultWithdrawSize.With("vault equity is zero")
		}
		s, err := fpmath.MulDiv(fpmath.NewU128(amount), v.TotalShares, fpmath.NewU128(equity), fpmath.RoundDown)
		if err != nil {
			return 0, fpmath.U128{}, mathErr("withdraw shares", err)
		}
		shares = fpmath.MinU128(s, owned)
	case WithdrawUnitShares:
		shares = fpmath.NewU128(amount)
		if shares.Gt(owned) {
			return 0, fpmath.U128{}, ErrInsufficientVaultShares.With("requested %s shares, own %s", shares, owned)
		}
	case WithdrawUnitSharesPercent:
		if amount > uint64(fpmath.PercentageConfig.Scale) {
			return 0, fpmath.U128{}, ErrInvalidVaultWithdrawSize.With("percent %d above %d", amount, fpmath.PercentageConfig.Scale)
		}
		s, err := fpmath.SharesFromPercent(owned, amount)
		if err != nil {
			return 0, fpmath.U128{}, mathErr("withdraw percent", err)
		}
		shares = s
	default:
		return 0, fpmath.U128{}, ErrInvalidVaultWithdrawSize.With("unknown withdraw unit %d", unit)
	}

	if shares.IsZero() {
		return 0, fpmath.U128{}, ErrInvalidVaultWithdrawSize.With("requested zero shares")
	}
	value, err := v.AmountForShares(shares, equity)
	if err != nil {
		return 0, fpmath.U128{}, err
	}
	return value, shares, nil
}

// mintShares adds n to total shares and, for depositor-owned shares, to user shares.
func (v *Vault) mintShares(n fpmath.U128, user bool) error {
	total, err := v.TotalShares.Add(n)
	if err != nil {
		return mathErr("mint total shares", err)
	}
	if user {
		us, err := v.UserShares.Add(n)
		if err != nil {
			return mathErr("mint user shares", err)
		}
		v.UserShares = us
	}
	v.TotalShares = total
	return nil
}

func (v *Vault) burnShares(n fpmath.U128, user bool) error {
	total, err := v.TotalShares.Sub(n)
	if err != nil {
		return ErrInvalidVaultSharesDetected.With("burn %s exceeds total %s", n, v.TotalShares)
	}
	if user {
		us, err := v.UserShares.Sub(n)
		if err != nil {
			return ErrInvalidVaultSharesDetected.With("burn %s exceeds user shares %s", n, v.UserShares)
		}
		v.UserShares = us
	}
	v.TotalShares = total
	return nil
}

// transferUserShares moves n shares from depositors to the manager or protocol
// without changing total shares.
func (v *Vault) transferUserShares(n fpmath.U128) error {
	us, err := v.UserShares.Sub(n)
	if err != nil {
		return ErrInvalidVaultSharesDetected.With("transfer %s exceeds user shares %s", n, v.UserShares)
	}
	v.UserShares = us
	return nil
}

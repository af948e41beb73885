package state

import (
	fpmath "VaultLedger/internal/math"
)

// ProfitShareCharge is the profit share settled on one holding.
type ProfitShareCharge struct {
	Profit         uint64      `json:"profit"`
	ManagerAmount  uint64      `json:"manager_amount"`
	ProtocolAmount uint64      `json:"protocol_amount"`
	ManagerShares  fpmath.U128 `json:"manager_shares"`
	ProtocolShares fpmath.U128 `json:"protocol_shares"`
}

func (c ProfitShareCharge) Amount() uint64 {
	return c.ManagerAmount + c.ProtocolAmount
}

// CalculateProfitShare computes the profit share owed on currentAmount.
//
//	profit = currentAmount - (netDeposits + cumulativeProfitShareAmount)
//	owed   = profit * (profitShare + protocolProfitShare) / PRECISION
//
// netDeposits plus cumulativeProfitShareAmount is the high-water mark; nothing is owed
// until the holding's value exceeds it.
func CalculateProfitShare(h *Holding, currentAmount uint64, v *Vault, p *VaultProtocol) (ProfitShareCharge, error) {
	hwm, err := fpmath.AddI64(h.NetDeposits, h.CumulativeProfitShareAmount)
	if err != nil {
		return ProfitShareCharge{}, mathErr("high-water mark", err)
	}
	current, err := fpmath.U64ToI64(currentAmount)
	if err != nil {
		return ProfitShareCharge{}, mathErr("current amount", err)
	}
	profit, err := fpmath.SubI64(current, hwm)
	if err != nil {
		return ProfitShareCharge{}, mathErr("profit", err)
	}
	if profit <= 0 {
		return ProfitShareCharge{}, nil
	}

	gain := uint64(profit)
	total, err := fpmath.ApplyRate(gain, v.ProfitShareRate(p), fpmath.PercentageConfig)
	if err != nil {
		return ProfitShareCharge{}, mathErr("profit share", err)
	}
	manager, err := fpmath.ApplyRate(gain, v.ProfitShare, fpmath.PercentageConfig)
	if err != nil {
		return ProfitShareCharge{}, mathErr("manager profit share", err)
	}
	return ProfitShareCharge{
		Profit:         gain,
		ManagerAmount:  manager,
		ProtocolAmount: total - manager,
	}, nil
}

// ApplyProfitShare settles profit share on h at current equity: shares worth the owed
// amount move from the holding to the manager and protocol, and the taxed gain is added
// to the high-water mark. Reapplying with no new profit charges nothing.
func ApplyProfitShare(h *Holding, v *Vault, p *VaultProtocol, equity uint64) (ProfitShareCharge, error) {
	if h.VaultShares.IsZero() {
		return ProfitShareCharge{}, nil
	}
	current, err := v.AmountForShares(h.VaultShares, equity)
	if err != nil {
		return ProfitShareCharge{}, err
	}
	charge, err := CalculateProfitShare(h, current, v, p)
	if err != nil || charge.Profit == 0 {
		return charge, err
	}

	toShares := func(amount uint64) (fpmath.U128, error) {
		if amount == 0 || equity == 0 {
			return fpmath.ZeroU128, nil
		}
		s, err := fpmath.MulDiv(fpmath.NewU128(amount), v.TotalShares, fpmath.NewU128(equity), fpmath.RoundDown)
		if err != nil {
			return fpmath.U128{}, mathErr("profit share shares", err)
		}
		return s, nil
	}
	if charge.ManagerShares, err = toShares(charge.ManagerAmount); err != nil {
		return ProfitShareCharge{}, err
	}
	if charge.ProtocolShares, err = toShares(charge.ProtocolAmount); err != nil {
		return ProfitShareCharge{}, err
	}
	moved, err := charge.ManagerShares.Add(charge.ProtocolShares)
	if err != nil {
		return ProfitShareCharge{}, mathErr("profit share shares", err)
	}
	if moved.Gt(h.VaultShares) {
		return ProfitShareCharge{}, ErrInvalidVaultSharesDetected.With("profit share %s shares exceeds holding %s", moved, h.VaultShares)
	}

	if err := h.removeShares(v, moved); err != nil {
		return ProfitShareCharge{}, err
	}
	if err := v.transferUserShares(moved); err != nil {
		return ProfitShareCharge{}, err
	}
	if p != nil && !charge.ProtocolShares.IsZero() {
		ps, err := p.ProtocolShares.Add(charge.ProtocolShares)
		if err != nil {
			return ProfitShareCharge{}, mathErr("protocol shares", err)
		}
		p.ProtocolShares = ps
		if p.TotalProfitShare, err = fpmath.AddU64(p.TotalProfitShare, charge.ProtocolAmount); err != nil {
			return ProfitShareCharge{}, mathErr("protocol profit share total", err)
		}
	}

	profit, err := fpmath.U64ToI64(charge.Profit)
	if err != nil {
		return ProfitShareCharge{}, mathErr("profit", err)
	}
	if h.CumulativeProfitShareAmount, err = fpmath.AddI64(h.CumulativeProfitShareAmount, profit); err != nil {
		return ProfitShareCharge{}, mathErr("cumulative profit share", err)
	}
	if h.ProfitShareFeePaid, err = fpmath.AddU64(h.ProfitShareFeePaid, charge.Amount()); err != nil {
		return ProfitShareCharge{}, mathErr("profit share paid", err)
	}
	if v.ManagerTotalProfitShare, err = fpmath.AddU64(v.ManagerTotalProfitShare, charge.ManagerAmount); err != nil {
		return ProfitShareCharge{}, mathErr("manager profit share total", err)
	}
	return charge, nil
}

package core

import (
	"VaultLedger/internal/event"
	"VaultLedger/internal/state"
)

// settle runs the housekeeping every priced command starts with: the equity mark, any
// fuel reading, a matured fee update and a rebase.
func (e *VaultEngine) settle(tx *txn, cmd event.Priced) error {
	v := tx.vault
	eq, err := v.EffectiveEquity(cmd.Equity())
	if err != nil {
		return err
	}
	if err := tx.journal(e.journalGen.GenerateEquityMark(v.ID, tx.ref, tx.nextLeg(), eq, tx.ts)); err != nil {
		return err
	}
	tx.equity = eq
	tx.settlement.VaultEquityBefore = eq

	if r := cmd.Fuel(); r != nil {
		upd, err := v.UpdateCumulativeFuel(*r, tx.ts)
		if err != nil {
			return err
		}
		if upd.Applied {
			tx.settlement.FuelUpdate = &upd
		}
	}

	if f, ok := tx.feeUpdateSlot(); ok && f.Matured(tx.ts) {
		// Time up to now is charged at the outgoing rate.
		charge, err := v.ApplyManagementFee(tx.protocol, eq, tx.ts)
		if err != nil {
			return err
		}
		applied := f.ApplyTo(v)
		tx.putFeeUpdate(f)
		tx.settlement.FeeUpdateApplied = &applied
		if charge.ManagementFee > 0 || charge.ProtocolFee > 0 {
			tx.settlement.FeeAccrued = &charge
		}
		if e.metrics != nil {
			tx.afterCommit(func() { e.metrics.FeeUpdatesApplied.WithLabelValues(v.ID.String()).Inc() })
		}
		e.recordFee(tx, charge)
	}

	// Wrapper tokens are pegged one-to-one to shares and cannot be rebased.
	if !tx.tokenizedOutstanding() {
		exp, err := v.ApplyRebase(tx.protocol, eq)
		if err != nil {
			return err
		}
		tx.settlement.RebaseExponent = exp
		if exp > 0 {
			if err := rebaseHoldings(tx); err != nil {
				return err
			}
			if e.metrics != nil {
				tx.afterCommit(func() { e.metrics.VaultRebases.WithLabelValues(v.ID.String()).Inc() })
			}
		}
	}
	return nil
}

// rebaseHoldings normalizes every holding to the new base and re-derives user shares
// from them, so the floor remainder of each holding falls to the manager.
func rebaseHoldings(tx *txn) error {
	holdings, err := tx.holdings()
	if err != nil {
		return err
	}
	dust, err := tx.vault.SettleRebasedUserShares(holdings)
	if err != nil {
		return err
	}
	if !dust.IsZero() {
		tx.settlement.RebaseDust = &dust
	}
	return nil
}

// touch brings a depositor's fuel up to date before its shares change.
func touch(tx *txn, h *state.Holding) error {
	_, err := h.UpdateFuel(tx.vault, tx.ts)
	return err
}

// recordFee and recordCharges count charges once the command commits; a rejected
// command rolls its charges back.
func (e *VaultEngine) recordFee(tx *txn, c state.FeeCharge) {
	if e.metrics == nil || (c.ManagementFee == 0 && c.ProtocolFee == 0) {
		return
	}
	vault := tx.vaultID.String()
	tx.afterCommit(func() {
		if c.ManagementFee > 0 {
			e.metrics.ManagementFeeCharged.WithLabelValues(vault, "manager").Add(float64(c.ManagementFee))
		}
		if c.ProtocolFee > 0 {
			e.metrics.ManagementFeeCharged.WithLabelValues(vault, "protocol").Add(float64(c.ProtocolFee))
		}
	})
}

func (e *VaultEngine) recordCharges(tx *txn, res state.ActionResult) {
	e.recordFee(tx, res.Fee)
	ps := res.ProfitShare
	if e.metrics == nil || (ps.ManagerAmount == 0 && ps.ProtocolAmount == 0) {
		return
	}
	vault := tx.vaultID.String()
	tx.afterCommit(func() {
		if ps.ManagerAmount > 0 {
			e.metrics.ProfitShareCharged.WithLabelValues(vault, "manager").Add(float64(ps.ManagerAmount))
		}
		if ps.ProtocolAmount > 0 {
			e.metrics.ProfitShareCharged.WithLabelValues(vault, "protocol").Add(float64(ps.ProtocolAmount))
		}
	})
}

package core

import (
	"VaultLedger/internal/event"
	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/state"
)

// holding stages a plain or tokenized holder for fuel operations.
func (tx *txn) holding(authority string, tokenized bool) (*state.Holding, error) {
	if tokenized {
		t, err := tx.tokenizedDepositor(authority)
		if err != nil {
			return nil, err
		}
		return &t.Holding, nil
	}
	d, err := tx.mustDepositor(authority)
	if err != nil {
		return nil, err
	}
	return &d.Holding, nil
}

func (tx *txn) fuelRecord(authority string, tokenized bool, action event.FuelAction) *event.FuelRecord {
	return &event.FuelRecord{
		Ts:                     tx.ts,
		Vault:                  tx.vaultID,
		Authority:              authority,
		Tokenized:              tokenized,
		Action:                 action,
		CumulativeFuel:         tx.vault.CumulativeFuel,
		CumulativeFuelPerShare: tx.vault.CumulativeFuelPerShare,
		SharesBase:             tx.vault.SharesBase,
	}
}

// applyReading folds a raw fuel reading into the vault and emits a record when it
// advanced the accumulator.
func (e *VaultEngine) applyReading(tx *txn, r state.FuelReading) error {
	upd, err := tx.vault.UpdateCumulativeFuel(r, tx.ts)
	if err != nil {
		return err
	}
	if !upd.Applied {
		return nil
	}
	rec := tx.fuelRecord("", false, event.FuelActionVaultUpdate)
	rec.Delta = upd.Delta
	rec.PerShareDelta = upd.PerShareDelta
	tx.emit(rec)
	if e.metrics != nil {
		tx.afterCommit(func() {
			if d, err := upd.Delta.Uint64(); err == nil {
				e.metrics.FuelDistributed.WithLabelValues(tx.vaultID.String()).Add(float64(d))
			}
		})
	}
	return nil
}

func (e *VaultEngine) creditFuel(tx *txn, h *state.Holding, authority string, tokenized bool) error {
	credited, err := h.UpdateFuel(tx.vault, tx.ts)
	if err != nil {
		return err
	}
	rec := tx.fuelRecord(authority, tokenized, event.FuelActionDepositorUpdate)
	rec.FuelCredited = credited
	rec.FuelAmountAfter = h.FuelAmount
	tx.emit(rec)
	return nil
}

// handleUpdateVaultFuel is permissionless. A reading at or before the last one emits
// nothing.
func (e *VaultEngine) handleUpdateVaultFuel(tx *txn, cmd *event.UpdateVaultFuel) error {
	return e.applyReading(tx, cmd.Reading)
}

func (e *VaultEngine) handleUpdateDepositorFuel(tx *txn, cmd *event.UpdateDepositorFuel) error {
	if cmd.Reading != nil {
		if err := e.applyReading(tx, *cmd.Reading); err != nil {
			return err
		}
	}
	h, err := tx.holding(cmd.Authority, cmd.Tokenized)
	if err != nil {
		return err
	}
	return e.creditFuel(tx, h, cmd.Authority, cmd.Tokenized)
}

// handleUpdateDepositorFuelBatch credits a chunk of holders. Holders already at the
// vault accumulator are skipped.
func (e *VaultEngine) handleUpdateDepositorFuelBatch(tx *txn, cmd *event.UpdateDepositorFuelBatch) error {
	if err := e.checkBatchSize(len(cmd.Authorities) + len(cmd.Tokenized)); err != nil {
		return err
	}
	if cmd.Reading != nil {
		if err := e.applyReading(tx, *cmd.Reading); err != nil {
			return err
		}
	}
	credit := func(authorities []string, tokenized bool) error {
		seen := make(map[string]struct{}, len(authorities))
		for _, authority := range authorities {
			if _, dup := seen[authority]; dup {
				continue
			}
			seen[authority] = struct{}{}
			h, err := tx.holding(authority, tokenized)
			if err != nil {
				return err
			}
			if h.CumulativeFuelPerShareAmount.Cmp(tx.vault.CumulativeFuelPerShare) == 0 {
				e.skipped(tx, cmd)
				continue
			}
			if err := e.creditFuel(tx, h, authority, tokenized); err != nil {
				return err
			}
		}
		return nil
	}
	if err := credit(cmd.Authorities, false); err != nil {
		return err
	}
	return credit(cmd.Tokenized, true)
}

func (e *VaultEngine) resetHolder(tx *txn, h *state.Holding, authority string, tokenized bool) {
	cleared := h.ResetFuel(tx.vault, tx.ts)
	rec := tx.fuelRecord(authority, tokenized, event.FuelActionDepositorReset)
	rec.FuelCleared = fpmath.NewU128(cleared)
	tx.emit(rec)
}

func (e *VaultEngine) handleResetFuelSeason(tx *txn, cmd *event.ResetFuelSeason) error {
	if err := e.requireAdmin(cmd.Signer()); err != nil {
		return err
	}
	h, err := tx.holding(cmd.Authority, cmd.Tokenized)
	if err != nil {
		return err
	}
	e.resetHolder(tx, h, cmd.Authority, cmd.Tokenized)
	return nil
}

// handleResetFuelSeasonBatch resets a chunk of holders, skipping those already flushed.
func (e *VaultEngine) handleResetFuelSeasonBatch(tx *txn, cmd *event.ResetFuelSeasonBatch) error {
	if err := e.requireAdmin(cmd.Signer()); err != nil {
		return err
	}
	if err := e.checkBatchSize(len(cmd.Authorities) + len(cmd.Tokenized)); err != nil {
		return err
	}
	reset := func(authority string, tokenized bool) error {
		h, err := tx.holding(authority, tokenized)
		if err != nil {
			return err
		}
		if h.FuelFlushed(tx.vault) {
			e.skipped(tx, cmd)
			return nil
		}
		e.resetHolder(tx, h, authority, tokenized)
		return nil
	}
	for _, authority := range cmd.Authorities {
		if err := reset(authority, false); err != nil {
			return err
		}
	}
	for _, authority := range cmd.Tokenized {
		if err := reset(authority, true); err != nil {
			return err
		}
	}
	return nil
}

func (e *VaultEngine) handleResetVaultFuelSeason(tx *txn, cmd *event.ResetVaultFuelSeason) error {
	if err := e.requireAdmin(cmd.Signer()); err != nil {
		return err
	}
	holders, err := tx.holdings()
	if err != nil {
		return err
	}
	cleared, err := tx.vault.ResetFuelSeason(holders, tx.ts)
	if err != nil {
		return err
	}
	rec := tx.fuelRecord("", false, event.FuelActionVaultReset)
	rec.FuelCleared = cleared
	tx.emit(rec)
	return nil
}

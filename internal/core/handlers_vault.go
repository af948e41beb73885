package core

import (
	"VaultLedger/internal/event"
	"VaultLedger/internal/state"
)

func (e *VaultEngine) isAdmin(signer string) bool {
	return signer != "" && signer == e.cfg.AdminAuthority
}

func (e *VaultEngine) requireAdmin(signer string) error {
	if !e.isAdmin(signer) {
		return state.ErrPermissionDenied.With("%q is not the admin", signer)
	}
	return nil
}

func requireManager(v *state.Vault, signer string) error {
	if !v.IsManager(signer) {
		return state.ErrPermissionDenied.With("%q is not the manager of vault %s", signer, v.ID)
	}
	return nil
}

func (e *VaultEngine) handleInitializeVault(tx *txn, cmd *event.InitializeVault) error {
	if _, exists := tx.store.Vault(cmd.VaultID()); exists {
		return state.ErrVaultExists.With("vault %s", cmd.VaultID())
	}
	params := cmd.Params
	if params.Manager == "" {
		params.Manager = cmd.Signer()
	}
	if params.Manager != cmd.Signer() && !e.isAdmin(cmd.Signer()) {
		return state.ErrPermissionDenied.With("%q cannot create a vault managed by %q", cmd.Signer(), params.Manager)
	}
	v, p, err := state.NewVault(cmd.VaultID(), params, tx.ts)
	if err != nil {
		return err
	}
	tx.createVault(v, p)

	rec := &event.VaultRecord{Ts: tx.ts, Vault: v.ID, Action: event.VaultActionInitialize}
	rec.FillFromVault(v)
	tx.emit(rec)
	return nil
}

func (e *VaultEngine) handleManagerUpdateVault(tx *txn, cmd *event.ManagerUpdateVault) error {
	if err := requireManager(tx.vault, cmd.Signer()); err != nil {
		return err
	}
	if err := e.settle(tx, cmd); err != nil {
		return err
	}
	v := tx.vault
	// Fees accrued so far are charged at the current rate before it changes.
	charge, err := v.ApplyManagementFee(tx.protocol, tx.equity, tx.ts)
	if err != nil {
		return err
	}
	if err := v.ApplyImmediateUpdate(cmd.Update); err != nil {
		return err
	}
	e.recordFee(tx, charge)

	rec := &event.VaultRecord{Ts: tx.ts, Vault: v.ID, Action: event.VaultActionUpdate, Fee: charge, Settlement: tx.settlement}
	rec.FillFromVault(v)
	tx.emit(rec)
	return nil
}

func (e *VaultEngine) handleManagerUpdateVaultManager(tx *txn, cmd *event.ManagerUpdateVaultManager) error {
	v := tx.vault
	if err := requireManager(v, cmd.Signer()); err != nil {
		return err
	}
	if cmd.NewManager == "" {
		return state.ErrInvalidVaultUpdate.With("new manager required")
	}
	if v.Delegate == v.Manager {
		v.Delegate = cmd.NewManager
	}
	v.Manager = cmd.NewManager

	rec := &event.VaultRecord{Ts: tx.ts, Vault: v.ID, Action: event.VaultActionManagerChange}
	rec.FillFromVault(v)
	tx.emit(rec)
	return nil
}

func (e *VaultEngine) handleUpdateDelegate(tx *txn, cmd *event.UpdateDelegate) error {
	v := tx.vault
	if err := requireManager(v, cmd.Signer()); err != nil {
		return err
	}
	if cmd.Delegate == "" {
		return state.ErrInvalidVaultUpdate.With("delegate required")
	}
	v.Delegate = cmd.Delegate

	rec := &event.VaultRecord{Ts: tx.ts, Vault: v.ID, Action: event.VaultActionDelegateChange}
	rec.FillFromVault(v)
	tx.emit(rec)
	return nil
}

func (e *VaultEngine) handleAdminUpdateVaultClass(tx *txn, cmd *event.AdminUpdateVaultClass) error {
	if err := e.requireAdmin(cmd.Signer()); err != nil {
		return err
	}
	v := tx.vault
	if err := v.SetClass(cmd.Class); err != nil {
		return err
	}
	rec := &event.VaultRecord{Ts: tx.ts, Vault: v.ID, Action: event.VaultActionClassChange}
	rec.FillFromVault(v)
	tx.emit(rec)
	return nil
}

// --- timelocked fee updates ---

func (e *VaultEngine) handleAdminInitFeeUpdate(tx *txn, cmd *event.AdminInitFeeUpdate) error {
	if err := e.requireAdmin(cmd.Signer()); err != nil {
		return err
	}
	if _, ok := tx.feeUpdateSlot(); ok {
		return state.ErrFeeUpdateExists.With("vault %s", tx.vaultID)
	}
	tx.putFeeUpdate(state.NewFeeUpdate(tx.vault))
	tx.emit(&event.FeeUpdateRecord{Ts: tx.ts, Vault: tx.vaultID, Action: event.FeeUpdateActionInit})
	return nil
}

func (e *VaultEngine) handleAdminDeleteFeeUpdate(tx *txn, cmd *event.AdminDeleteFeeUpdate) error {
	if err := e.requireAdmin(cmd.Signer()); err != nil {
		return err
	}
	f, ok := tx.feeUpdateSlot()
	if !ok {
		return state.ErrFeeUpdateMissing.With("vault %s", tx.vaultID)
	}
	rec := &event.FeeUpdateRecord{Ts: tx.ts, Vault: tx.vaultID, Action: event.FeeUpdateActionDelete, TimelockEndTs: f.TimelockEndTs}
	if f.Pending {
		f.Cancel(tx.vault)
	}
	tx.deleteFeeUpdate()
	tx.emit(rec)
	return nil
}

func (e *VaultEngine) handleManagerUpdateFees(tx *txn, cmd *event.ManagerUpdateFees) error {
	v := tx.vault
	if err := requireManager(v, cmd.Signer()); err != nil {
		return err
	}
	f, ok := tx.feeUpdateSlot()
	if !ok {
		return state.ErrFeeUpdateMissing.With("vault %s has no fee update slot", tx.vaultID)
	}
	if f.Pending {
		return state.ErrInvalidFeeUpdate.With("an update is already pending until %d", f.TimelockEndTs)
	}
	if err := f.Propose(v, tx.protocol, cmd.ManagementFee, cmd.ProfitShare, cmd.HurdleRate, cmd.TimelockDuration, tx.ts); err != nil {
		return err
	}
	tx.putFeeUpdate(f)
	tx.emit(&event.FeeUpdateRecord{
		Ts:            tx.ts,
		Vault:         tx.vaultID,
		Action:        event.FeeUpdateActionPropose,
		TimelockEndTs: f.TimelockEndTs,
		Fees: state.AppliedFees{
			OldManagementFee: v.ManagementFee,
			OldProfitShare:   v.ProfitShare,
			OldHurdleRate:    v.HurdleRate,
			NewManagementFee: f.IncomingManagementFee,
			NewProfitShare:   f.IncomingProfitShare,
			NewHurdleRate:    f.IncomingHurdleRate,
		},
	})
	return nil
}

func (e *VaultEngine) handleManagerCancelFeeUpdate(tx *txn, cmd *event.ManagerCancelFeeUpdate) error {
	v := tx.vault
	if err := requireManager(v, cmd.Signer()); err != nil {
		return err
	}
	f, ok := tx.feeUpdateSlot()
	if !ok {
		return state.ErrFeeUpdateMissing.With("vault %s has no fee update slot", tx.vaultID)
	}
	if !f.Pending {
		return state.ErrInvalidFeeUpdate.With("no pending fee update")
	}
	f.Cancel(v)
	tx.putFeeUpdate(f)
	tx.emit(&event.FeeUpdateRecord{Ts: tx.ts, Vault: tx.vaultID, Action: event.FeeUpdateActionCancel})
	return nil
}

// handleApplyFeeUpdate is a permissionless crank. Before the timelock ends, or with
// nothing pending, it emits nothing; the update itself is applied by settle.
func (e *VaultEngine) handleApplyFeeUpdate(tx *txn, cmd *event.ApplyFeeUpdate) error {
	f, ok := tx.feeUpdateSlot()
	if !ok || !f.Matured(tx.ts) {
		return nil
	}
	if err := e.settle(tx, cmd); err != nil {
		return err
	}
	rec := &event.FeeUpdateRecord{Ts: tx.ts, Vault: tx.vaultID, Action: event.FeeUpdateActionApply, Settlement: tx.settlement}
	if tx.settlement.FeeUpdateApplied != nil {
		rec.Fees = *tx.settlement.FeeUpdateApplied
	}
	if tx.settlement.FeeAccrued != nil {
		rec.Fee = *tx.settlement.FeeAccrued
	}
	tx.emit(rec)
	return nil
}

package core

import (
	"VaultLedger/internal/event"
	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/state"
)

func managerShares(tx *txn) (fpmath.U128, error) {
	return tx.vault.ManagerShares(tx.protocol)
}

func (e *VaultEngine) handleManagerDeposit(tx *txn, cmd *event.ManagerDeposit) error {
	v := tx.vault
	if err := requireManager(v, cmd.Signer()); err != nil {
		return err
	}
	if err := e.settle(tx, cmd); err != nil {
		return err
	}
	owned, err := managerShares(tx)
	if err != nil {
		return err
	}
	before := snapShares(v, owned)
	res, err := v.ManagerDeposit(tx.protocol, cmd.Amount, tx.equity, tx.ts)
	if err != nil {
		return err
	}
	if err := e.depositFunds(tx, v.Manager, res.Amount); err != nil {
		return err
	}
	after, err := managerShares(tx)
	if err != nil {
		return err
	}
	e.recordCharges(tx, res)
	tx.emit(tx.depositorRecord(v.Manager, event.DepositorActionManagerDeposit, before, after, res, v.LastManagerWithdraw))
	return nil
}

func (e *VaultEngine) handleManagerRequestWithdraw(tx *txn, cmd *event.ManagerRequestWithdraw) error {
	v := tx.vault
	if err := requireManager(v, cmd.Signer()); err != nil {
		return err
	}
	if err := e.settle(tx, cmd); err != nil {
		return err
	}
	owned, err := managerShares(tx)
	if err != nil {
		return err
	}
	before := snapShares(v, owned)
	res, err := v.ManagerRequestWithdraw(tx.protocol, cmd.Unit, cmd.Amount, tx.equity, tx.ts)
	if err != nil {
		return err
	}
	after, err := managerShares(tx)
	if err != nil {
		return err
	}
	e.recordCharges(tx, res)
	tx.emit(tx.depositorRecord(v.Manager, event.DepositorActionManagerWithdrawRequest, before, after, res, v.LastManagerWithdraw))
	return nil
}

func (e *VaultEngine) handleManagerCancelWithdrawRequest(tx *txn, cmd *event.ManagerCancelWithdrawRequest) error {
	v := tx.vault
	if err := requireManager(v, cmd.Signer()); err != nil {
		return err
	}
	owned, err := managerShares(tx)
	if err != nil {
		return err
	}
	req, err := v.ManagerCancelWithdrawRequest()
	if err != nil {
		return err
	}
	tx.emit(tx.depositorRecord(v.Manager, event.DepositorActionManagerCancelWithdrawRequest, snapShares(v, owned), owned, state.ActionResult{Shares: req.Shares, Amount: req.Value}, req))
	return nil
}

func (e *VaultEngine) handleManagerWithdraw(tx *txn, cmd *event.ManagerWithdraw) error {
	v := tx.vault
	if err := requireManager(v, cmd.Signer()); err != nil {
		return err
	}
	if err := e.settle(tx, cmd); err != nil {
		return err
	}
	owned, err := managerShares(tx)
	if err != nil {
		return err
	}
	before := snapShares(v, owned)
	req := v.LastManagerWithdraw
	res, err := v.ManagerWithdraw(tx.protocol, tx.equity, tx.ts)
	if err != nil {
		return err
	}
	if err := e.withdrawFunds(tx, v.Manager, res.Amount); err != nil {
		return err
	}
	after, err := managerShares(tx)
	if err != nil {
		return err
	}
	e.recordCharges(tx, res)
	tx.emit(tx.depositorRecord(v.Manager, event.DepositorActionManagerWithdraw, before, after, res, req))
	return nil
}

// --- protocol stake ---

func requireProtocol(tx *txn, signer string) (*state.VaultProtocol, error) {
	p := tx.protocol
	if p == nil {
		return nil, state.ErrProtocolNotFound.With("vault %s has no protocol", tx.vaultID)
	}
	if signer == "" || signer != p.Protocol {
		return nil, state.ErrPermissionDenied.With("%q is not the protocol of vault %s", signer, tx.vaultID)
	}
	return p, nil
}

func (e *VaultEngine) handleProtocolRequestWithdraw(tx *txn, cmd *event.ProtocolRequestWithdraw) error {
	p, err := requireProtocol(tx, cmd.Signer())
	if err != nil {
		return err
	}
	if err := e.settle(tx, cmd); err != nil {
		return err
	}
	v := tx.vault
	before := snapShares(v, p.ProtocolShares)
	res, err := p.RequestWithdraw(v, cmd.Unit, cmd.Amount, tx.equity, tx.ts)
	if err != nil {
		return err
	}
	e.recordCharges(tx, res)
	tx.emit(tx.depositorRecord(p.Protocol, event.DepositorActionProtocolWithdrawRequest, before, p.ProtocolShares, res, p.LastWithdrawRequest))
	return nil
}

func (e *VaultEngine) handleProtocolCancelWithdrawRequest(tx *txn, cmd *event.ProtocolCancelWithdrawRequest) error {
	p, err := requireProtocol(tx, cmd.Signer())
	if err != nil {
		return err
	}
	req, err := p.CancelWithdrawRequest()
	if err != nil {
		return err
	}
	tx.emit(tx.depositorRecord(p.Protocol, event.DepositorActionProtocolCancelWithdrawRequest, snapShares(tx.vault, p.ProtocolShares), p.ProtocolShares, state.ActionResult{Shares: req.Shares, Amount: req.Value}, req))
	return nil
}

func (e *VaultEngine) handleProtocolWithdraw(tx *txn, cmd *event.ProtocolWithdraw) error {
	p, err := requireProtocol(tx, cmd.Signer())
	if err != nil {
		return err
	}
	if err := e.settle(tx, cmd); err != nil {
		return err
	}
	v := tx.vault
	before := snapShares(v, p.ProtocolShares)
	req := p.LastWithdrawRequest
	res, err := p.Withdraw(v, tx.equity, tx.ts)
	if err != nil {
		return err
	}
	if err := e.withdrawFunds(tx, p.Protocol, res.Amount); err != nil {
		return err
	}
	e.recordCharges(tx, res)
	tx.emit(tx.depositorRecord(p.Protocol, event.DepositorActionProtocolWithdraw, before, p.ProtocolShares, res, req))
	return nil
}

// --- trusted-vault borrowing ---

func (tx *txn) borrowRecord(action event.BorrowAction, amount, before uint64) *event.BorrowRecord {
	return &event.BorrowRecord{
		Ts:             tx.ts,
		Vault:          tx.vaultID,
		Action:         action,
		Amount:         amount,
		BorrowedBefore: before,
		BorrowedAfter:  tx.vault.ManagerBorrowedValue,
		Settlement:     tx.settlement,
	}
}

func (e *VaultEngine) handleManagerBorrow(tx *txn, cmd *event.ManagerBorrow) error {
	v := tx.vault
	if err := requireManager(v, cmd.Signer()); err != nil {
		return err
	}
	if err := e.settle(tx, cmd); err != nil {
		return err
	}
	before := v.ManagerBorrowedValue
	if err := v.Borrow(cmd.Amount, cmd.Equity()); err != nil {
		return err
	}
	if err := tx.journal(e.journalGen.GenerateBorrow(v.ID, tx.ref, tx.nextLeg(), cmd.Amount, tx.ts)); err != nil {
		return err
	}
	tx.emit(tx.borrowRecord(event.BorrowActionBorrow, cmd.Amount, before))
	return nil
}

func (e *VaultEngine) handleManagerRepay(tx *txn, cmd *event.ManagerRepay) error {
	v := tx.vault
	if err := requireManager(v, cmd.Signer()); err != nil {
		return err
	}
	if err := e.settle(tx, cmd); err != nil {
		return err
	}
	before := v.ManagerBorrowedValue
	if err := v.Repay(cmd.Amount); err != nil {
		return err
	}
	if err := tx.journal(e.journalGen.GenerateRepay(v.ID, tx.ref, tx.nextLeg(), cmd.Amount, tx.ts)); err != nil {
		return err
	}
	tx.emit(tx.borrowRecord(event.BorrowActionRepay, cmd.Amount, before))
	return nil
}

// handleManagerUpdateBorrow marks the borrowed position; effective equity moves by the
// same delta.
func (e *VaultEngine) handleManagerUpdateBorrow(tx *txn, cmd *event.ManagerUpdateBorrow) error {
	v := tx.vault
	if err := requireManager(v, cmd.Signer()); err != nil {
		return err
	}
	if err := e.settle(tx, cmd); err != nil {
		return err
	}
	old, err := v.UpdateBorrow(cmd.NewBorrowValue)
	if err != nil {
		return err
	}
	if err := tx.journal(e.journalGen.GenerateBorrowMark(v.ID, tx.ref, tx.nextLeg(), cmd.NewBorrowValue, tx.ts)); err != nil {
		return err
	}
	eq, err := fpmath.AddU64(tx.equity-old, cmd.NewBorrowValue)
	if err != nil {
		return state.ErrMath.Wrap(err)
	}
	tx.equity = eq
	tx.emit(tx.borrowRecord(event.BorrowActionUpdate, cmd.NewBorrowValue, old))
	return nil
}

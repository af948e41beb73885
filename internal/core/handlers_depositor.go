package core

import (
	"VaultLedger/internal/event"
	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/state"
)

// shareSnap is the share position a depositor record reports as "before".
type shareSnap struct {
	holder fpmath.U128
	total  fpmath.U128
	user   fpmath.U128
}

func snapShares(v *state.Vault, holder fpmath.U128) shareSnap {
	return shareSnap{holder: holder, total: v.TotalShares, user: v.UserShares}
}

func (tx *txn) depositorRecord(authority string, action event.DepositorAction, before shareSnap, holderAfter fpmath.U128, res state.ActionResult, req state.WithdrawRequest) *event.VaultDepositorRecord {
	rec := &event.VaultDepositorRecord{
		Ts:                     tx.ts,
		Vault:                  tx.vaultID,
		Authority:              authority,
		Action:                 action,
		Amount:                 res.Amount,
		SharesBase:             tx.vault.SharesBase,
		VaultSharesBefore:      before.holder,
		VaultSharesAfter:       holderAfter,
		TotalVaultSharesBefore: before.total,
		TotalVaultSharesAfter:  tx.vault.TotalShares,
		UserVaultSharesBefore:  before.user,
		UserVaultSharesAfter:   tx.vault.UserShares,
		WithdrawRequest:        req,
		Settlement:             tx.settlement,
	}
	rec.SetCharges(res)
	return rec
}

// depositFunds journals amount from owner's wallet into custody and grows equity.
func (e *VaultEngine) depositFunds(tx *txn, owner string, amount uint64) error {
	if err := tx.journal(e.journalGen.GenerateDeposit(tx.vaultID, owner, tx.ref, tx.nextLeg(), amount, tx.ts)); err != nil {
		return err
	}
	eq, err := fpmath.AddU64(tx.equity, amount)
	if err != nil {
		return state.ErrMath.Wrap(err)
	}
	tx.equity = eq
	return nil
}

// withdrawFunds journals amount from custody to owner's wallet and shrinks equity.
func (e *VaultEngine) withdrawFunds(tx *txn, owner string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := tx.journal(e.journalGen.GenerateWithdrawal(tx.vaultID, owner, tx.ref, tx.nextLeg(), amount, tx.ts)); err != nil {
		return err
	}
	eq, err := fpmath.SubU64(tx.equity, amount)
	if err != nil {
		return state.ErrMath.Wrap(err)
	}
	tx.equity = eq
	return nil
}

func (e *VaultEngine) handleInitializeVaultDepositor(tx *txn, cmd *event.InitializeVaultDepositor) error {
	v := tx.vault
	signer := cmd.Signer()
	switch {
	case cmd.Authority == "":
		return state.ErrInvalidVaultInitialization.With("depositor authority required")
	case v.Permissioned && !v.IsManager(signer):
		return state.ErrPermissionDenied.With("vault %s is permissioned; only the manager may add depositors", v.ID)
	case !v.Permissioned && signer != cmd.Authority && !v.IsManager(signer):
		return state.ErrPermissionDenied.With("%q cannot initialize depositor %q", signer, cmd.Authority)
	}
	if _, exists, err := tx.depositor(cmd.Authority); err != nil {
		return err
	} else if exists {
		return state.ErrDepositorExists.With("depositor %s in vault %s", cmd.Authority, v.ID)
	}
	d := state.NewVaultDepositor(v, cmd.Authority, tx.ts)
	tx.addDepositor(d)
	tx.emit(tx.depositorRecord(d.Authority, event.DepositorActionInitialize, snapShares(v, d.VaultShares), d.VaultShares, state.ActionResult{}, state.WithdrawRequest{}))
	return nil
}

// depositorFor stages the signer's depositor, creating it on an open vault.
func (tx *txn) depositorFor(authority string) (*state.VaultDepositor, error) {
	d, ok, err := tx.depositor(authority)
	if err != nil {
		return nil, err
	}
	if ok {
		return d, nil
	}
	if tx.vault.Permissioned {
		return nil, state.ErrDepositorNotFound.With("vault %s is permissioned; depositor %s must be initialized by the manager", tx.vaultID, authority)
	}
	d = state.NewVaultDepositor(tx.vault, authority, tx.ts)
	tx.addDepositor(d)
	return d, nil
}

func (e *VaultEngine) handleDeposit(tx *txn, cmd *event.Deposit) error {
	if err := e.settle(tx, cmd); err != nil {
		return err
	}
	v := tx.vault
	d, err := tx.depositorFor(cmd.Signer())
	if err != nil {
		return err
	}
	if err := touch(tx, &d.Holding); err != nil {
		return err
	}
	before := snapShares(v, d.VaultShares)
	res, err := d.Deposit(v, tx.protocol, cmd.Amount, tx.equity, tx.ts)
	if err != nil {
		return err
	}
	if err := e.depositFunds(tx, d.Authority, res.Amount); err != nil {
		return err
	}
	e.recordCharges(tx, res)
	tx.emit(tx.depositorRecord(d.Authority, event.DepositorActionDeposit, before, d.VaultShares, res, d.LastWithdrawRequest))
	return nil
}

func (e *VaultEngine) handleRequestWithdraw(tx *txn, cmd *event.RequestWithdraw) error {
	if err := e.settle(tx, cmd); err != nil {
		return err
	}
	v := tx.vault
	d, err := tx.mustDepositor(cmd.Signer())
	if err != nil {
		return err
	}
	if err := touch(tx, &d.Holding); err != nil {
		return err
	}
	before := snapShares(v, d.VaultShares)
	res, err := d.RequestWithdraw(v, tx.protocol, cmd.Unit, cmd.Amount, tx.equity, tx.ts)
	if err != nil {
		return err
	}
	e.recordCharges(tx, res)
	if e.metrics != nil {
		tx.afterCommit(func() {
			e.metrics.WithdrawRequestsOpen.WithLabelValues(v.ID.String()).Inc()
		})
	}
	tx.emit(tx.depositorRecord(d.Authority, event.DepositorActionWithdrawRequest, before, d.VaultShares, res, d.LastWithdrawRequest))
	return nil
}

func (e *VaultEngine) handleCancelRequestWithdraw(tx *txn, cmd *event.CancelRequestWithdraw) error {
	v := tx.vault
	authority := cmd.Authority
	if authority == "" {
		authority = cmd.Signer()
	}
	signer := cmd.Signer()
	if signer != authority && !v.IsManager(signer) && !e.isAdmin(signer) {
		return state.ErrPermissionDenied.With("%q cannot cancel the request of %q", signer, authority)
	}
	d, err := tx.mustDepositor(authority)
	if err != nil {
		return err
	}
	before := snapShares(v, d.VaultShares)
	req, err := d.CancelWithdrawRequest(v)
	if err != nil {
		return err
	}
	if e.metrics != nil {
		tx.afterCommit(func() {
			e.metrics.WithdrawRequestsOpen.WithLabelValues(v.ID.String()).Dec()
		})
	}
	tx.emit(tx.depositorRecord(authority, event.DepositorActionCancelWithdrawRequest, before, d.VaultShares, state.ActionResult{Shares: req.Shares, Amount: req.Value}, req))
	return nil
}

// withdrawDepositor executes d's matured request at the settled equity.
func (e *VaultEngine) withdrawDepositor(tx *txn, d *state.VaultDepositor, action event.DepositorAction) error {
	v := tx.vault
	if err := touch(tx, &d.Holding); err != nil {
		return err
	}
	before := snapShares(v, d.VaultShares)
	req := d.LastWithdrawRequest
	res, err := d.Withdraw(v, tx.protocol, tx.equity, tx.ts)
	if err != nil {
		return err
	}
	if err := e.withdrawFunds(tx, d.Authority, res.Amount); err != nil {
		return err
	}
	e.recordCharges(tx, res)
	if e.metrics != nil {
		tx.afterCommit(func() {
			e.metrics.WithdrawRequestsOpen.WithLabelValues(v.ID.String()).Dec()
		})
	}
	tx.emit(tx.depositorRecord(d.Authority, action, before, d.VaultShares, res, req))
	return nil
}

func (e *VaultEngine) handleWithdraw(tx *txn, cmd *event.Withdraw) error {
	if err := e.settle(tx, cmd); err != nil {
		return err
	}
	d, err := tx.mustDepositor(cmd.Signer())
	if err != nil {
		return err
	}
	return e.withdrawDepositor(tx, d, event.DepositorActionWithdraw)
}

func (e *VaultEngine) requireManagerOrAdmin(v *state.Vault, signer string) error {
	if !v.IsManager(signer) && !e.isAdmin(signer) {
		return state.ErrPermissionDenied.With("%q is neither the manager of vault %s nor the admin", signer, v.ID)
	}
	return nil
}

func (e *VaultEngine) handleForceWithdraw(tx *txn, cmd *event.ForceWithdraw) error {
	if err := e.requireManagerOrAdmin(tx.vault, cmd.Signer()); err != nil {
		return err
	}
	if err := e.settle(tx, cmd); err != nil {
		return err
	}
	d, err := tx.mustDepositor(cmd.Authority)
	if err != nil {
		return err
	}
	return e.withdrawDepositor(tx, d, event.DepositorActionForceWithdraw)
}

// handleForceWithdrawBatch withdraws every listed depositor whose request has matured.
// Entries without one, including those a previous run already withdrew, are skipped.
func (e *VaultEngine) handleForceWithdrawBatch(tx *txn, cmd *event.ForceWithdrawBatch) error {
	if err := e.requireManagerOrAdmin(tx.vault, cmd.Signer()); err != nil {
		return err
	}
	if err := e.checkBatchSize(len(cmd.Authorities)); err != nil {
		return err
	}
	if err := e.settle(tx, cmd); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(cmd.Authorities))
	for _, authority := range cmd.Authorities {
		if _, dup := seen[authority]; dup {
			continue
		}
		seen[authority] = struct{}{}
		d, err := tx.mustDepositor(authority)
		if err != nil {
			return err
		}
		req := d.LastWithdrawRequest
		if !req.Pending() || tx.ts < req.RedeemableAt(tx.vault.RedeemPeriod) {
			e.skipped(tx, cmd)
			continue
		}
		if err := e.withdrawDepositor(tx, d, event.DepositorActionForceWithdraw); err != nil {
			return err
		}
	}
	return nil
}

func (e *VaultEngine) checkBatchSize(n int) error {
	if n > e.cfg.MaxBatchSize {
		return state.ErrBatchTooLarge.With("%d entries, limit %d", n, e.cfg.MaxBatchSize)
	}
	return nil
}

func (e *VaultEngine) skipped(tx *txn, cmd event.Command) {
	if e.metrics != nil {
		tx.afterCommit(func() {
			e.metrics.BatchEntriesSkipped.WithLabelValues(cmd.CommandType().String()).Inc()
		})
	}
}

package state

import (
	fpmath "VaultLedger/internal/math"
)

// ManagerDeposit mints shares to the manager's own stake. Manager shares are the part of
// total shares not owned by depositors or the protocol.
func (v *Vault) ManagerDeposit(p *VaultProtocol, amount, equity uint64, now int64) (ActionResult, error) {
	if amount == 0 {
		return ActionResult{}, ErrInvalidDepositAmount.With("amount must be positive")
	}
	if equity == 0 && !v.TotalShares.IsZero() {
		return ActionResult{}, ErrInvalidVaultForNewDepositors.With("vault has shares but zero equity")
	}

	var res ActionResult
	var err error
	if res.Fee, err = v.ApplyManagementFee(p, equity, now); err != nil {
		return ActionResult{}, err
	}
	if res.Shares, err = v.SharesForDeposit(amount, equity); err != nil {
		return ActionResult{}, err
	}
	if err := v.mintShares(res.Shares, false); err != nil {
		return ActionResult{}, err
	}
	signed, err := fpmath.U64ToI64(amount)
	if err != nil {
		return ActionResult{}, mathErr("manager deposit", err)
	}
	if v.ManagerTotalDeposits, err = fpmath.AddU64(v.ManagerTotalDeposits, amount); err != nil {
		return ActionResult{}, mathErr("manager total deposits", err)
	}
	if v.ManagerNetDeposits, err = fpmath.AddI64(v.ManagerNetDeposits, signed); err != nil {
		return ActionResult{}, mathErr("manager net deposits", err)
	}
	res.Amount = amount
	return res, nil
}

func (v *Vault) ManagerRequestWithdraw(p *VaultProtocol, unit WithdrawUnit, amount, equity uint64, now int64) (ActionResult, error) {
	if v.LastManagerWithdraw.Pending() {
		return ActionResult{}, ErrVaultWithdrawRequestInProgress.With("manager request for %s shares pending", v.LastManagerWithdraw.Shares)
	}
	var res ActionResult
	var err error
	if res.Fee, err = v.ApplyManagementFee(p, equity, now); err != nil {
		return ActionResult{}, err
	}
	owned, err := v.ManagerShares(p)
	if err != nil {
		return ActionResult{}, err
	}
	value, shares, err := v.resolveWithdraw(unit, amount, owned, equity)
	if err != nil {
		return ActionResult{}, err
	}
	v.LastManagerWithdraw = WithdrawRequest{Shares: shares, Value: value, Ts: now}
	res.Amount = value
	res.Shares = shares
	return res, nil
}

func (v *Vault) ManagerCancelWithdrawRequest() (WithdrawRequest, error) {
	req := v.LastManagerWithdraw
	if !req.Pending() {
		return WithdrawRequest{}, ErrInvalidVaultWithdraw.With("no pending manager withdraw request")
	}
	v.LastManagerWithdraw = WithdrawRequest{}
	return req, nil
}

func (v *Vault) ManagerWithdraw(p *VaultProtocol, equity uint64, now int64) (ActionResult, error) {
	req := v.LastManagerWithdraw
	if !req.Pending() {
		return ActionResult{}, ErrInvalidVaultWithdraw.With("manager must request a withdrawal first")
	}
	if now < req.RedeemableAt(v.RedeemPeriod) {
		return ActionResult{}, ErrCannotWithdrawBeforeRedeemPeriodEnd.With("redeemable at %d, now %d", req.RedeemableAt(v.RedeemPeriod), now)
	}

	var res ActionResult
	var err error
	if res.Fee, err = v.ApplyManagementFee(p, equity, now); err != nil {
		return ActionResult{}, err
	}
	owned, err := v.ManagerShares(p)
	if err != nil {
		return ActionResult{}, err
	}
	shares := fpmath.MinU128(req.Shares, owned)
	amount, err := v.AmountForShares(shares, equity)
	if err != nil {
		return ActionResult{}, err
	}
	if err := v.burnShares(shares, false); err != nil {
		return ActionResult{}, err
	}
	signed, err := fpmath.U64ToI64(amount)
	if err != nil {
		return ActionResult{}, mathErr("manager withdraw", err)
	}
	if v.ManagerTotalWithdraws, err = fpmath.AddU64(v.ManagerTotalWithdraws, amount); err != nil {
		return ActionResult{}, mathErr("manager total withdraws", err)
	}
	if v.ManagerNetDeposits, err = fpmath.SubI64(v.ManagerNetDeposits, signed); err != nil {
		return ActionResult{}, mathErr("manager net deposits", err)
	}
	v.LastManagerWithdraw = WithdrawRequest{}
	res.Amount = amount
	res.Shares = shares
	return res, nil
}

// Borrow lets the manager of a trusted vault take collateral off the venue. Borrowed
// value keeps counting toward equity until repaid.
func (v *Vault) Borrow(amount, reportedEquity uint64) error {
	if v.VaultClass != VaultClassTrusted {
		return ErrVaultClassNotTrusted.With("vault class is %s", v.VaultClass)
	}
	if amount == 0 || amount > reportedEquity {
		return ErrInvalidBorrowAmount.With("borrow %d against venue equity %d", amount, reportedEquity)
	}
	borrowed, err := fpmath.AddU64(v.ManagerBorrowedValue, amount)
	if err != nil {
		return mathErr("borrowed value", err)
	}
	v.ManagerBorrowedValue = borrowed
	return nil
}

// Repay returns borrowed collateral to the vault.
func (v *Vault) Repay(amount uint64) error {
	if amount == 0 || amount > v.ManagerBorrowedValue {
		return ErrInvalidRepayAmount.With("repay %d, borrowed %d", amount, v.ManagerBorrowedValue)
	}
	v.ManagerBorrowedValue -= amount
	return nil
}

// UpdateBorrow marks the borrowed position to a new value.
func (v *Vault) UpdateBorrow(newValue uint64) (uint64, error) {
	if v.VaultClass != VaultClassTrusted {
		return 0, ErrVaultClassNotTrusted.With("vault class is %s", v.VaultClass)
	}
	old := v.ManagerBorrowedValue
	v.ManagerBorrowedValue = newValue
	return old, nil
}

// SetClass changes the vault class. A vault cannot leave the trusted class while the
// manager still owes borrowed value.
func (v *Vault) SetClass(class VaultClass) error {
	if class != VaultClassNormal && class != VaultClassTrusted {
		return ErrInvalidVaultUpdate.With("unknown vault class %d", class)
	}
	if class == VaultClassNormal && v.ManagerBorrowedValue > 0 {
		return ErrOutstandingBorrow.With("%d still borrowed", v.ManagerBorrowedValue)
	}
	v.VaultClass = class
	return nil
}

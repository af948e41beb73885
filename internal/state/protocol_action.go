package state

import (
	fpmath "VaultLedger/internal/math"
)

func (p *VaultProtocol) RequestWithdraw(v *Vault, unit WithdrawUnit, amount, equity uint64, now int64) (ActionResult, error) {
	if p.LastWithdrawRequest.Pending() {
		return ActionResult{}, ErrVaultWithdrawRequestInProgress.With("protocol request for %s shares pending", p.LastWithdrawRequest.Shares)
	}
	var res ActionResult
	var err error
	if res.Fee, err = v.ApplyManagementFee(p, equity, now); err != nil {
		return ActionResult{}, err
	}
	value, shares, err := v.resolveWithdraw(unit, amount, p.ProtocolShares, equity)
	if err != nil {
		return ActionResult{}, err
	}
	p.LastWithdrawRequest = WithdrawRequest{Shares: shares, Value: value, Ts: now}
	res.Amount = value
	res.Shares = shares
	return res, nil
}

func (p *VaultProtocol) CancelWithdrawRequest() (WithdrawRequest, error) {
	req := p.LastWithdrawRequest
	if !req.Pending() {
		return WithdrawRequest{}, ErrInvalidVaultWithdraw.With("no pending protocol withdraw request")
	}
	p.LastWithdrawRequest = WithdrawRequest{}
	return req, nil
}

func (p *VaultProtocol) Withdraw(v *Vault, equity uint64, now int64) (ActionResult, error) {
	req := p.LastWithdrawRequest
	if !req.Pending() {
		return ActionResult{}, ErrInvalidVaultWithdraw.With("protocol must request a withdrawal first")
	}
	if now < req.RedeemableAt(v.RedeemPeriod) {
		return ActionResult{}, ErrCannotWithdrawBeforeRedeemPeriodEnd.With("redeemable at %d, now %d", req.RedeemableAt(v.RedeemPeriod), now)
	}

	var res ActionResult
	var err error
	if res.Fee, err = v.ApplyManagementFee(p, equity, now); err != nil {
		return ActionResult{}, err
	}
	shares := fpmath.MinU128(req.Shares, p.ProtocolShares)
	amount, err := v.AmountForShares(shares, equity)
	if err != nil {
		return ActionResult{}, err
	}
	if err := v.burnShares(shares, false); err != nil {
		return ActionResult{}, err
	}
	p.ProtocolShares, _ = p.ProtocolShares.Sub(shares)
	if p.TotalWithdraws, err = fpmath.AddU64(p.TotalWithdraws, amount); err != nil {
		return ActionResult{}, mathErr("protocol total withdraws", err)
	}
	p.LastWithdrawRequest = WithdrawRequest{}
	res.Amount = amount
	res.Shares = shares
	return res, nil
}

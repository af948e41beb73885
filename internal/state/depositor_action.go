package state

import (
	fpmath "VaultLedger/internal/math"
)

// ActionResult captures what one priced action did.
type ActionResult struct {
	Amount      uint64            `json:"amount"`
	Shares      fpmath.U128       `json:"shares"`
	Fee         FeeCharge         `json:"fee"`
	ProfitShare ProfitShareCharge `json:"profit_share"`
}

// Deposit mints shares for amount at the current equity. Management fee and profit share
// are settled first so the new shares are priced after dilution.
func (d *VaultDepositor) Deposit(v *Vault, p *VaultProtocol, amount, equity uint64, now int64) (ActionResult, error) {
	if amount == 0 || (v.MinDepositAmount != 0 && amount < v.MinDepositAmount) {
		return ActionResult{}, ErrInvalidDepositAmount.With("amount %d, minimum %d", amount, v.MinDepositAmount)
	}
	if v.MaxTokens != 0 {
		after, err := fpmath.AddU64(equity, amount)
		if err != nil {
			return ActionResult{}, mathErr("capacity", err)
		}
		if after > v.MaxTokens {
			return ActionResult{}, ErrVaultIsAtCapacity.With("equity %d + deposit %d exceeds max %d", equity, amount, v.MaxTokens)
		}
	}
	if equity == 0 && !v.TotalShares.IsZero() {
		return ActionResult{}, ErrInvalidVaultForNewDepositors.With("vault has shares but zero equity")
	}

	var res ActionResult
	var err error
	if res.Fee, err = v.ApplyManagementFee(p, equity, now); err != nil {
		return ActionResult{}, err
	}
	if res.ProfitShare, err = ApplyProfitShare(&d.Holding, v, p, equity); err != nil {
		return ActionResult{}, err
	}
	if res.Shares, err = v.SharesForDeposit(amount, equity); err != nil {
		return ActionResult{}, err
	}
	if err := d.addShares(v, res.Shares); err != nil {
		return ActionResult{}, err
	}
	if err := v.mintShares(res.Shares, true); err != nil {
		return ActionResult{}, err
	}
	if err := d.recordFlow(v, amount, true); err != nil {
		return ActionResult{}, err
	}
	res.Amount = amount
	return res, nil
}

// RequestWithdraw earmarks shares for withdrawal and freezes their current value.
// Shares stay owned until Withdraw executes.
func (d *VaultDepositor) RequestWithdraw(v *Vault, p *VaultProtocol, unit WithdrawUnit, amount, equity uint64, now int64) (ActionResult, error) {
	if d.LastWithdrawRequest.Pending() {
		return ActionResult{}, ErrVaultWithdrawRequestInProgress.With("request for %s shares at ts %d", d.LastWithdrawRequest.Shares, d.LastWithdrawRequest.Ts)
	}

	var res ActionResult
	var err error
	if res.Fee, err = v.ApplyManagementFee(p, equity, now); err != nil {
		return ActionResult{}, err
	}
	if res.ProfitShare, err = ApplyProfitShare(&d.Holding, v, p, equity); err != nil {
		return ActionResult{}, err
	}
	value, shares, err := v.resolveWithdraw(unit, amount, d.VaultShares, equity)
	if err != nil {
		return ActionResult{}, err
	}
	requested, err := fpmath.AddU64(v.TotalWithdrawRequested, value)
	if err != nil {
		return ActionResult{}, mathErr("total withdraw requested", err)
	}

	d.LastWithdrawRequest = WithdrawRequest{Shares: shares, Value: value, Ts: now}
	v.TotalWithdrawRequested = requested
	res.Amount = value
	res.Shares = shares
	return res, nil
}

// CancelWithdrawRequest clears a pending request. No shares move.
func (d *VaultDepositor) CancelWithdrawRequest(v *Vault) (WithdrawRequest, error) {
	req := d.LastWithdrawRequest
	if !req.Pending() {
		return WithdrawRequest{}, ErrInvalidVaultWithdraw.With("no pending withdraw request")
	}
	v.TotalWithdrawRequested -= fpmath.MinU64(req.Value, v.TotalWithdrawRequested)
	d.LastWithdrawRequest = WithdrawRequest{}
	return req, nil
}

// Withdraw executes a matured request, burning the earmarked shares at current equity
// after profit share has been settled.
func (d *VaultDepositor) Withdraw(v *Vault, p *VaultProtocol, equity uint64, now int64) (ActionResult, error) {
	req := d.LastWithdrawRequest
	if !req.Pending() {
		return ActionResult{}, ErrInvalidVaultWithdraw.With("must request a withdrawal and wait the redeem period")
	}
	if now < req.RedeemableAt(v.RedeemPeriod) {
		return ActionResult{}, ErrCannotWithdrawBeforeRedeemPeriodEnd.With("redeemable at %d, now %d", req.RedeemableAt(v.RedeemPeriod), now)
	}

	var res ActionResult
	var err error
	if res.Fee, err = v.ApplyManagementFee(p, equity, now); err != nil {
		return ActionResult{}, err
	}
	if res.ProfitShare, err = ApplyProfitShare(&d.Holding, v, p, equity); err != nil {
		return ActionResult{}, err
	}

	shares := fpmath.MinU128(req.Shares, d.VaultShares)
	amount, err := v.AmountForShares(shares, equity)
	if err != nil {
		return ActionResult{}, err
	}
	if err := d.removeShares(v, shares); err != nil {
		return ActionResult{}, err
	}
	if err := v.burnShares(shares, true); err != nil {
		return ActionResult{}, err
	}
	if err := d.recordFlow(v, amount, false); err != nil {
		return ActionResult{}, err
	}
	v.TotalWithdrawRequested -= fpmath.MinU64(req.Value, v.TotalWithdrawRequested)
	d.LastWithdrawRequest = WithdrawRequest{}

	res.Amount = amount
	res.Shares = shares
	return res, nil
}

// recordFlow updates deposit/withdraw totals on the depositor and vault.
func (d *VaultDepositor) recordFlow(v *Vault, amount uint64, deposit bool) error {
	signed, err := fpmath.U64ToI64(amount)
	if err != nil {
		return mathErr("flow amount", err)
	}
	if deposit {
		if d.TotalDeposits, err = fpmath.AddU64(d.TotalDeposits, amount); err != nil {
			return mathErr("depositor total deposits", err)
		}
		if v.TotalDeposits, err = fpmath.AddU64(v.TotalDeposits, amount); err != nil {
			return mathErr("vault total deposits", err)
		}
		if d.NetDeposits, err = fpmath.AddI64(d.NetDeposits, signed); err != nil {
			return mathErr("depositor net deposits", err)
		}
		if v.NetDeposits, err = fpmath.AddI64(v.NetDeposits, signed); err != nil {
			return mathErr("vault net deposits", err)
		}
		return nil
	}
	if d.TotalWithdraws, err = fpmath.AddU64(d.TotalWithdraws, amount); err != nil {
		return mathErr("depositor total withdraws", err)
	}
	if v.TotalWithdraws, err = fpmath.AddU64(v.TotalWithdraws, amount); err != nil {
		return mathErr("vault total withdraws", err)
	}
	if d.NetDeposits, err = fpmath.SubI64(d.NetDeposits, signed); err != nil {
		return mathErr("depositor net deposits", err)
	}
	if v.NetDeposits, err = fpmath.SubI64(v.NetDeposits, signed); err != nil {
		return mathErr("vault net deposits", err)
	}
	return nil
}

// NewTokenizedVaultDepositor creates the wrapper-backed holder for (vault, authority).
func NewTokenizedVaultDepositor(v *Vault, authority, symbol, name string, decimals uint8, now int64) *TokenizedVaultDepositor {
	return &TokenizedVaultDepositor{
		Vault:     v.ID,
		Authority: authority,
		Symbol:    symbol,
		Name:      name,
		Decimals:  decimals,
		Holding: Holding{
			VaultSharesBase:              v.SharesBase,
			CumulativeFuelPerShareAmount: v.CumulativeFuelPerShare,
			LastFuelUpdateTs:             now,
		},
		CreatedTs: now,
	}
}

// TokenizeShares moves shares from the depositor into t; the caller mints the same
// number of wrapper tokens. The depositor settles profit share first and a pro-rata
// slice of its cost basis travels with the shares.
func (d *VaultDepositor) TokenizeShares(v *Vault, p *VaultProtocol, t *TokenizedVaultDepositor, shares fpmath.U128, equity uint64, now int64) (ActionResult, error) {
	if err := t.CheckBase(v); err != nil {
		return ActionResult{}, err
	}
	if shares.IsZero() {
		return ActionResult{}, ErrInvalidVaultWithdrawSize.With("cannot tokenize zero shares")
	}

	var res ActionResult
	var err error
	if res.Fee, err = v.ApplyManagementFee(p, equity, now); err != nil {
		return ActionResult{}, err
	}
	if res.ProfitShare, err = ApplyProfitShare(&d.Holding, v, p, equity); err != nil {
		return ActionResult{}, err
	}
	if shares.Gt(d.VaultShares) {
		return ActionResult{}, ErrInsufficientVaultShares.With("tokenize %s shares, own %s", shares, d.VaultShares)
	}
	if d.LastWithdrawRequest.Pending() {
		left, _ := d.VaultShares.Sub(shares)
		if left.Lt(d.LastWithdrawRequest.Shares) {
			return ActionResult{}, ErrVaultWithdrawRequestInProgress.With("%s shares earmarked for withdrawal", d.LastWithdrawRequest.Shares)
		}
	}
	if err := moveHolding(&d.Holding, &t.Holding, v, shares); err != nil {
		return ActionResult{}, err
	}
	if res.Amount, err = v.AmountForShares(shares, equity); err != nil {
		return ActionResult{}, err
	}
	res.Shares = shares
	return res, nil
}

// RedeemTokens moves shares from t back to the depositor; the caller burns the same
// number of wrapper tokens. The redeemer inherits a pro-rata slice of the pooled basis.
func (d *VaultDepositor) RedeemTokens(v *Vault, p *VaultProtocol, t *TokenizedVaultDepositor, tokens fpmath.U128, equity uint64, now int64) (ActionResult, error) {
	if err := t.CheckBase(v); err != nil {
		return ActionResult{}, err
	}
	if tokens.IsZero() {
		return ActionResult{}, ErrInvalidVaultWithdrawSize.With("cannot redeem zero tokens")
	}
	if tokens.Gt(t.VaultShares) {
		return ActionResult{}, ErrInsufficientVaultShares.With("redeem %s tokens, tokenized shares %s", tokens, t.VaultShares)
	}

	var res ActionResult
	var err error
	if res.Fee, err = v.ApplyManagementFee(p, equity, now); err != nil {
		return ActionResult{}, err
	}
	if err := moveHolding(&t.Holding, &d.Holding, v, tokens); err != nil {
		return ActionResult{}, err
	}
	if res.Amount, err = v.AmountForShares(tokens, equity); err != nil {
		return ActionResult{}, err
	}
	res.Shares = tokens
	return res, nil
}

// moveHolding transfers shares between holdings, carrying net deposits and taxed gains
// pro rata. User shares are unchanged.
func moveHolding(from, to *Holding, v *Vault, shares fpmath.U128) error {
	before := from.VaultShares
	net, err := fpmath.ProRataI64(from.NetDeposits, shares, before)
	if err != nil {
		return mathErr("move net deposits", err)
	}
	taxed, err := fpmath.ProRataI64(from.CumulativeProfitShareAmount, shares, before)
	if err != nil {
		return mathErr("move taxed gains", err)
	}
	if err := from.removeShares(v, shares); err != nil {
		return err
	}
	if err := to.addShares(v, shares); err != nil {
		return err
	}
	from.NetDeposits -= net
	from.CumulativeProfitShareAmount -= taxed
	if to.NetDeposits, err = fpmath.AddI64(to.NetDeposits, net); err != nil {
		return mathErr("move net deposits", err)
	}
	if to.CumulativeProfitShareAmount, err = fpmath.AddI64(to.CumulativeProfitShareAmount, taxed); err != nil {
		return mathErr("move taxed gains", err)
	}
	return nil
}

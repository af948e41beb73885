package state

import (
	fpmath "VaultLedger/internal/math"
)

// FeeCharge is the management fee collected by one accrual.
type FeeCharge struct {
	ManagementFee       uint64      `json:"management_fee"`
	ManagementFeeShares fpmath.U128 `json:"management_fee_shares"`
	ProtocolFee         uint64      `json:"protocol_fee"`
	ProtocolFeeShares   fpmath.U128 `json:"protocol_fee_shares"`
}

// ApplyManagementFee accrues the annualized management (and protocol) fee on depositor
// equity since LastFeeUpdateTs and collects it by minting shares to the manager and
// protocol, diluting depositors by exactly the fee:
//
//	fee       = depositorEquity * rate * elapsed / (PRECISION * ONE_YEAR), at most depositorEquity-1
//	newTotal  = totalShares * depositorEquity / (depositorEquity - fee)
//
// The timestamp is left alone when the fee rounds to zero so that small intervals keep
// accruing instead of being forgiven.
func (v *Vault) ApplyManagementFee(p *VaultProtocol, equity uint64, now int64) (FeeCharge, error) {
	var protocolRate uint32
	if p != nil {
		protocolRate = p.ProtocolFee
	}
	rate := uint64(v.ManagementFee) + uint64(protocolRate)

	depositorEquity, err := fpmath.AmountForShares(v.UserShares, v.TotalShares, equity)
	if err != nil {
		return FeeCharge{}, mathErr("depositor equity", err)
	}
	if rate == 0 || depositorEquity == 0 {
		v.LastFeeUpdateTs = now
		return FeeCharge{}, nil
	}
	elapsed := now - v.LastFeeUpdateTs
	if elapsed <= 0 {
		return FeeCharge{}, nil
	}

	period := fpmath.NewU128(uint64(fpmath.PercentageConfig.Scale) * uint64(OneYear))
	accrue := func(r uint64) (uint64, error) {
		num, err := fpmath.NewU128(depositorEquity).Mul(fpmath.NewU128(r))
		if err != nil {
			return 0, err
		}
		fee, err := fpmath.MulDiv(num, fpmath.NewU128(uint64(elapsed)), period, fpmath.RoundDown)
		if err != nil {
			return 0, err
		}
		return fee.Uint64()
	}

	totalFee, err := accrue(rate)
	if err != nil {
		return FeeCharge{}, mathErr("management fee", err)
	}
	totalFee = fpmath.MinU64(totalFee, depositorEquity-1)
	if totalFee == 0 {
		return FeeCharge{}, nil
	}
	managerFee, err := accrue(uint64(v.ManagementFee))
	if err != nil {
		return FeeCharge{}, mathErr("management fee", err)
	}
	managerFee = fpmath.MinU64(managerFee, totalFee)
	protocolFee := totalFee - managerFee

	newTotal, err := fpmath.MulDiv(v.TotalShares, fpmath.NewU128(depositorEquity), fpmath.NewU128(depositorEquity-totalFee), fpmath.RoundDown)
	if err != nil {
		return FeeCharge{}, mathErr("fee shares", err)
	}
	newTotal = fpmath.MaxU128Of(newTotal, v.TotalShares)
	feeShares, _ := newTotal.Sub(v.TotalShares)

	charge := FeeCharge{ManagementFee: managerFee, ProtocolFee: protocolFee}
	if protocolFee > 0 && p != nil {
		charge.ProtocolFeeShares, err = fpmath.MulDiv(feeShares, fpmath.NewU128(protocolFee), fpmath.NewU128(totalFee), fpmath.RoundDown)
		if err != nil {
			return FeeCharge{}, mathErr("protocol fee shares", err)
		}
		ps, err := p.ProtocolShares.Add(charge.ProtocolFeeShares)
		if err != nil {
			return FeeCharge{}, mathErr("protocol shares", err)
		}
		p.ProtocolShares = ps
		if p.TotalFee, err = fpmath.AddU64(p.TotalFee, protocolFee); err != nil {
			return FeeCharge{}, mathErr("protocol fee total", err)
		}
	}
	charge.ManagementFeeShares, _ = feeShares.Sub(charge.ProtocolFeeShares)

	if v.ManagerTotalFee, err = fpmath.AddU64(v.ManagerTotalFee, managerFee); err != nil {
		return FeeCharge{}, mathErr("manager fee total", err)
	}
	v.TotalShares = newTotal
	v.LastFeeUpdateTs = now
	return charge, nil
}

// VaultUpdate carries the optional fields of an immediate manager update.
type VaultUpdate struct {
	RedeemPeriod     *int64  `json:"redeem_period,omitempty"`
	MaxTokens        *uint64 `json:"max_tokens,omitempty"`
	MinDepositAmount *uint64 `json:"min_deposit_amount,omitempty"`
	ManagementFee    *uint32 `json:"management_fee,omitempty"`
	ProfitShare      *uint32 `json:"profit_share,omitempty"`
	HurdleRate       *uint32 `json:"hurdle_rate,omitempty"`
	Permissioned     *bool   `json:"permissioned,omitempty"`
}

// ApplyImmediateUpdate applies a manager update. Fees and profit share may only go down,
// the hurdle rate only up, the redeem period only down. All fields are validated before
// any is written.
func (v *Vault) ApplyImmediateUpdate(u VaultUpdate) error {
	if u.ManagementFee != nil && *u.ManagementFee > v.ManagementFee {
		return ErrInvalidFeeUpdate.With("management fee may only be lowered (%d -> %d)", v.ManagementFee, *u.ManagementFee)
	}
	if u.ProfitShare != nil && *u.ProfitShare > v.ProfitShare {
		return ErrInvalidFeeUpdate.With("profit share may only be lowered (%d -> %d)", v.ProfitShare, *u.ProfitShare)
	}
	if u.HurdleRate != nil && *u.HurdleRate < v.HurdleRate {
		return ErrInvalidFeeUpdate.With("hurdle rate may only be raised (%d -> %d)", v.HurdleRate, *u.HurdleRate)
	}
	if u.HurdleRate != nil && *u.HurdleRate > uint32(fpmath.PercentageConfig.Scale) {
		return ErrInvalidFeeUpdate.With("hurdle rate %d above %d", *u.HurdleRate, fpmath.PercentageConfig.Scale)
	}
	if u.RedeemPeriod != nil && (*u.RedeemPeriod > v.RedeemPeriod || *u.RedeemPeriod < 0) {
		return ErrInvalidVaultUpdate.With("redeem period may only be shortened (%d -> %d)", v.RedeemPeriod, *u.RedeemPeriod)
	}

	if u.ManagementFee != nil {
		v.ManagementFee = *u.ManagementFee
	}
	if u.ProfitShare != nil {
		v.ProfitShare = *u.ProfitShare
	}
	if u.HurdleRate != nil {
		v.HurdleRate = *u.HurdleRate
	}
	if u.RedeemPeriod != nil {
		v.RedeemPeriod = *u.RedeemPeriod
	}
	if u.MaxTokens != nil {
		v.MaxTokens = *u.MaxTokens
	}
	if u.MinDepositAmount != nil {
		v.MinDepositAmount = *u.MinDepositAmount
	}
	if u.Permissioned != nil {
		v.Permissioned = *u.Permissioned
	}
	return nil
}

// MinFeeUpdateTimelock is max(1 day, 2 * redeemPeriod).
func MinFeeUpdateTimelock(redeemPeriod int64) int64 {
	if 2*redeemPeriod > OneDay {
		return 2 * redeemPeriod
	}
	return OneDay
}

// NewFeeUpdate returns an empty fee update slot for the vault.
func NewFeeUpdate(v *Vault) *FeeUpdate {
	return &FeeUpdate{Vault: v.ID}
}

// Propose records a timelocked fee change. Nothing is written when validation fails.
func (f *FeeUpdate) Propose(v *Vault, p *VaultProtocol, managementFee, profitShare, hurdleRate uint32, timelock, now int64) error {
	if minimum := MinFeeUpdateTimelock(v.RedeemPeriod); timelock < minimum {
		return ErrInvalidTimelockDuration.With("timelock %ds below minimum %ds", timelock, minimum)
	}
	scale := uint64(fpmath.PercentageConfig.Scale)
	var protocolFee, protocolProfitShare uint64
	if p != nil {
		protocolFee, protocolProfitShare = uint64(p.ProtocolFee), uint64(p.ProtocolProfitShare)
	}
	if uint64(managementFee)+protocolFee >= scale {
		return ErrInvalidFeeUpdate.With("management fee %d too high", managementFee)
	}
	if uint64(profitShare)+protocolProfitShare >= scale {
		return ErrInvalidFeeUpdate.With("profit share %d too high", profitShare)
	}
	if uint64(hurdleRate) > scale {
		return ErrInvalidFeeUpdate.With("hurdle rate %d too high", hurdleRate)
	}

	f.Pending = true
	f.IncomingManagementFee = managementFee
	f.IncomingProfitShare = profitShare
	f.IncomingHurdleRate = hurdleRate
	f.IncomingUpdateRequested = now
	f.TimelockEndTs = now + timelock
	v.FeeUpdateStatus = FeeUpdateStatusPending
	return nil
}

// Matured reports whether a pending update may be applied at now.
func (f *FeeUpdate) Matured(now int64) bool {
	return f.Pending && now >= f.TimelockEndTs
}

// AppliedFees are the fee values before and after a timelocked update.
type AppliedFees struct {
	OldManagementFee uint32 `json:"old_management_fee"`
	OldProfitShare   uint32 `json:"old_profit_share"`
	OldHurdleRate    uint32 `json:"old_hurdle_rate"`
	NewManagementFee uint32 `json:"new_management_fee"`
	NewProfitShare   uint32 `json:"new_profit_share"`
	NewHurdleRate    uint32 `json:"new_hurdle_rate"`
}

// ApplyTo materializes a matured update into the vault and empties the slot.
func (f *FeeUpdate) ApplyTo(v *Vault) AppliedFees {
	applied := AppliedFees{
		OldManagementFee: v.ManagementFee,
		OldProfitShare:   v.ProfitShare,
		OldHurdleRate:    v.HurdleRate,
		NewManagementFee: f.IncomingManagementFee,
		NewProfitShare:   f.IncomingProfitShare,
		NewHurdleRate:    f.IncomingHurdleRate,
	}
	v.ManagementFee = f.IncomingManagementFee
	v.ProfitShare = f.IncomingProfitShare
	v.HurdleRate = f.IncomingHurdleRate
	v.FeeUpdateStatus = FeeUpdateStatusNone
	f.Clear()
	return applied
}

// Cancel drops a pending proposal, keeping the slot.
func (f *FeeUpdate) Cancel(v *Vault) {
	f.Clear()
	v.FeeUpdateStatus = FeeUpdateStatusNone
}

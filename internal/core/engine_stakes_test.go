package core_test

import (
	"testing"

	"VaultLedger/internal/event"
	"VaultLedger/internal/state"
)

func TestEngine_ManagerStakeLifecycle(t *testing.T) {
	h := newHarness(t, state.VaultParams{RedeemPeriod: 3_600})
	h.reject(&event.ManagerDeposit{Header: h.header(alice, t0+1), Valuation: priced(0), Amount: 500_000}, state.ErrPermissionDenied)
	h.apply(&event.ManagerDeposit{Header: h.header(manager, t0+1), Valuation: priced(0), Amount: 500_000})
	h.apply(&event.Deposit{Header: h.header(alice, t0+2), Valuation: priced(500_000), Amount: 500_000})

	h.apply(&event.ManagerRequestWithdraw{Header: h.header(manager, t0+3), Valuation: priced(1_000_000), Unit: state.WithdrawUnitSharesPercent, Amount: 1_000_000})
	assertShares(t, "manager request", h.vaultState().LastManagerWithdraw.Shares, 500_000)
	h.apply(&event.ManagerCancelWithdrawRequest{Header: h.header(manager, t0+4)})
	h.reject(&event.ManagerCancelWithdrawRequest{Header: h.header(manager, t0+4)}, state.ErrInvalidVaultWithdraw)

	h.apply(&event.ManagerRequestWithdraw{Header: h.header(manager, t0+5), Valuation: priced(1_000_000), Unit: state.WithdrawUnitToken, Amount: 200_000})
	h.reject(&event.ManagerWithdraw{Header: h.header(manager, t0+6), Valuation: priced(1_000_000)}, state.ErrCannotWithdrawBeforeRedeemPeriodEnd)

	outs := h.apply(&event.ManagerWithdraw{Header: h.header(manager, t0+5+3_600), Valuation: priced(1_000_000)})
	rec := depositorRecord(t, outs[0])
	if rec.Action != event.DepositorActionManagerWithdraw || rec.Amount != 200_000 {
		t.Fatalf("manager withdraw record: action %s amount %d", rec.Action, rec.Amount)
	}
	v := h.vaultState()
	assertShares(t, "total shares", v.TotalShares, 800_000)
	assertShares(t, "user shares", v.UserShares, 500_000)
	if v.ManagerTotalWithdraws != 200_000 || v.ManagerNetDeposits != 300_000 || v.LastManagerWithdraw.Pending() {
		t.Fatalf("manager totals: withdraws %d net %d pending %v", v.ManagerTotalWithdraws, v.ManagerNetDeposits, v.LastManagerWithdraw.Pending())
	}

	h.reject(&event.ProtocolCancelWithdrawRequest{Header: h.header(manager, t0+3_700)}, state.ErrProtocolNotFound)
}

func TestEngine_ProtocolStakeLifecycle(t *testing.T) {
	h := newHarness(t, state.VaultParams{Protocol: "protocol", ProtocolFee: 100_000})
	h.apply(&event.Deposit{Header: h.header(alice, t0+1), Valuation: priced(0), Amount: 1_000_000})

	year := t0 + 1 + state.OneYear
	h.reject(&event.ProtocolRequestWithdraw{Header: h.header(manager, year), Valuation: priced(1_000_000), Unit: state.WithdrawUnitShares, Amount: 1}, state.ErrPermissionDenied)
	h.reject(&event.ProtocolCancelWithdrawRequest{Header: h.header("protocol", year)}, state.ErrInvalidVaultWithdraw)

	// A year of the 10% protocol fee is collected as shares on the first priced action.
	h.apply(&event.ProtocolRequestWithdraw{Header: h.header("protocol", year), Valuation: priced(1_000_000), Unit: state.WithdrawUnitSharesPercent, Amount: 1_000_000})
	p, ok := h.engine.Store().Protocol(h.vault)
	if !ok {
		t.Fatal("protocol overlay missing")
	}
	assertShares(t, "protocol fee shares", p.ProtocolShares, 111_111)
	assertShares(t, "protocol request", p.LastWithdrawRequest.Shares, 111_111)
	if p.TotalFee != 100_000 {
		t.Fatalf("protocol fee total: expected 100000, got %d", p.TotalFee)
	}

	h.apply(&event.ProtocolCancelWithdrawRequest{Header: h.header("protocol", year)})
	h.apply(&event.ProtocolRequestWithdraw{Header: h.header("protocol", year), Valuation: priced(1_000_000), Unit: state.WithdrawUnitShares, Amount: 111_111})

	outs := h.apply(&event.ProtocolWithdraw{Header: h.header("protocol", year+1), Valuation: priced(1_000_000)})
	if rec := depositorRecord(t, outs[0]); rec.Amount != 99_999 {
		t.Fatalf("protocol withdraw amount: expected 99999, got %d", rec.Amount)
	}
	p, _ = h.engine.Store().Protocol(h.vault)
	if !p.ProtocolShares.IsZero() || p.TotalWithdraws != 99_999 {
		t.Fatalf("protocol after withdraw: shares %s withdraws %d", p.ProtocolShares, p.TotalWithdraws)
	}
	assertShares(t, "total shares", h.vaultState().TotalShares, 1_000_000)
}

func TestEngine_ForceWithdrawAndFeeSlotCleanup(t *testing.T) {
	h := newHarness(t, state.VaultParams{RedeemPeriod: 3_600})
	h.apply(&event.Deposit{Header: h.header(alice, t0+1), Valuation: priced(0), Amount: 1_000_000})
	h.apply(&event.RequestWithdraw{Header: h.header(alice, t0+2), Valuation: priced(1_000_000), Unit: state.WithdrawUnitShares, Amount: 250_000})

	h.reject(&event.ForceWithdraw{Header: h.header(bob, t0+2+3_600), Valuation: priced(1_000_000), Authority: alice}, state.ErrPermissionDenied)
	h.reject(&event.ForceWithdraw{Header: h.header(manager, t0+3), Valuation: priced(1_000_000), Authority: alice}, state.ErrCannotWithdrawBeforeRedeemPeriodEnd)
	outs := h.apply(&event.ForceWithdraw{Header: h.header(manager, t0+2+3_600), Valuation: priced(1_000_000), Authority: alice})
	if rec := depositorRecord(t, outs[0]); rec.Action != event.DepositorActionForceWithdraw || rec.Amount != 250_000 {
		t.Fatalf("force withdraw record: action %s amount %d", rec.Action, rec.Amount)
	}
	assertShares(t, "alice after force withdraw", h.depositor(alice).VaultShares, 750_000)

	ts := t0 + 4_000
	h.apply(&event.AdminInitFeeUpdate{Header: h.header(admin, ts)})
	h.reject(&event.ManagerCancelFeeUpdate{Header: h.header(manager, ts)}, state.ErrInvalidFeeUpdate)
	h.apply(&event.ManagerUpdateFees{Header: h.header(manager, ts), ManagementFee: 10_000, TimelockDuration: state.OneDay})
	h.apply(&event.ManagerCancelFeeUpdate{Header: h.header(manager, ts+1)})
	f, ok := h.engine.Store().FeeUpdate(h.vault)
	if !ok || f.Pending || h.vaultState().FeeUpdateStatus != state.FeeUpdateStatusNone {
		t.Fatalf("after cancel the slot stays empty: %+v, %v", f, ok)
	}

	h.apply(&event.ManagerUpdateFees{Header: h.header(manager, ts+2), ManagementFee: 10_000, TimelockDuration: state.OneDay})
	h.reject(&event.AdminDeleteFeeUpdate{Header: h.header(manager, ts+3)}, state.ErrPermissionDenied)
	h.apply(&event.AdminDeleteFeeUpdate{Header: h.header(admin, ts+3)})
	if _, ok := h.engine.Store().FeeUpdate(h.vault); ok {
		t.Fatal("fee update slot should be deleted")
	}
	if h.vaultState().FeeUpdateStatus != state.FeeUpdateStatusNone {
		t.Fatal("deleting a pending update must clear the vault status")
	}
	h.reject(&event.AdminDeleteFeeUpdate{Header: h.header(admin, ts+4)}, state.ErrFeeUpdateMissing)
}

func TestEngine_ResetSingleHolderFuel(t *testing.T) {
	h := newHarness(t, state.VaultParams{})
	h.apply(&event.Deposit{Header: h.header(alice, t0+1), Valuation: priced(0), Amount: 1_000_000})

	var reading state.FuelReading
	reading.Counters[2] = 500
	h.apply(&event.UpdateVaultFuel{Header: h.header("cranker", t0+2), Reading: reading})
	h.apply(&event.UpdateDepositorFuel{Header: h.header("cranker", t0+3), Authority: alice})
	if got := h.depositor(alice).FuelAmount; got != 500 {
		t.Fatalf("alice fuel: expected 500, got %d", got)
	}

	h.reject(&event.ResetFuelSeason{Header: h.header(manager, t0+4), Authority: alice}, state.ErrPermissionDenied)
	outs := h.apply(&event.ResetFuelSeason{Header: h.header(admin, t0+4), Authority: alice})
	rec, ok := outs[0].Envelope.Record.(*event.FuelRecord)
	if !ok {
		t.Fatalf("expected fuel record, got %T", outs[0].Envelope.Record)
	}
	assertShares(t, "fuel cleared", rec.FuelCleared, 500)
	if h.depositor(alice).FuelAmount != 0 {
		t.Fatal("holder fuel not cleared")
	}
	h.apply(&event.ResetVaultFuelSeason{Header: h.header(admin, t0+5)})
	if !h.vaultState().CumulativeFuel.IsZero() {
		t.Fatal("vault season not reset")
	}
}

package core_test

import (
	"encoding/json"
	"errors"
	"testing"

	"VaultLedger/internal/core"
	"VaultLedger/internal/event"
	"VaultLedger/internal/ledger"
	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/state"

	"github.com/google/uuid"
)

const (
	admin   = "admin"
	manager = "manager"
	alice   = "alice"
	bob     = "bob"

	t0 int64 = 1_700_000_000
)

// --- Test helpers ---

type harness struct {
	t       *testing.T
	engine  *core.VaultEngine
	persist chan core.CoreOutput
	vault   uuid.UUID
}

// newHarness creates an engine with a buffered persist channel and no DB checker, and
// initializes one vault managed by manager.
func newHarness(t *testing.T, params state.VaultParams) *harness {
	t.Helper()
	persist := make(chan core.CoreOutput, 4096)
	h := &harness{
		t:       t,
		engine:  core.NewVaultEngine(core.EngineConfig{AdminAuthority: admin, IdempotencyCapacity: 1024}, persist, nil, nil, nil),
		persist: persist,
		vault:   uuid.New(),
	}
	if params.Name == "" {
		params.Name = "test vault"
	}
	h.apply(&event.InitializeVault{Header: h.header(manager, t0), Params: params})
	return h
}

func (h *harness) header(signer string, ts int64) event.Header {
	return event.Header{RequestID: uuid.New(), Vault: h.vault, SignedBy: signer, Ts: ts}
}

func priced(equity uint64) event.Valuation {
	return event.Valuation{VaultEquity: equity}
}

func (h *harness) apply(cmd event.Command) []core.CoreOutput {
	h.t.Helper()
	outs, err := h.engine.ProcessCommand(cmd)
	if err != nil {
		h.t.Fatalf("%s: unexpected error: %v", cmd.CommandType(), err)
	}
	return outs
}

func (h *harness) reject(cmd event.Command, want *state.Error) {
	h.t.Helper()
	seq := h.engine.GetSequence()
	outs, err := h.engine.ProcessCommand(cmd)
	if err == nil {
		h.t.Fatalf("%s: expected %s, got %d outputs", cmd.CommandType(), want.Code, len(outs))
	}
	if !errors.Is(err, want) {
		h.t.Fatalf("%s: expected %s, got %v", cmd.CommandType(), want.Code, err)
	}
	if h.engine.GetSequence() != seq {
		h.t.Fatalf("%s: rejected command advanced sequence %d -> %d", cmd.CommandType(), seq, h.engine.GetSequence())
	}
}

func (h *harness) vaultState() *state.Vault {
	h.t.Helper()
	v, ok := h.engine.Store().Vault(h.vault)
	if !ok {
		h.t.Fatalf("vault %s not found", h.vault)
	}
	return v
}

func (h *harness) depositor(authority string) *state.VaultDepositor {
	h.t.Helper()
	d, ok := h.engine.Store().Depositor(state.DepositorKey{Vault: h.vault, Authority: authority})
	if !ok {
		h.t.Fatalf("depositor %s not found", authority)
	}
	return d
}

func (h *harness) balance(key ledger.AccountKey) int64 {
	return h.engine.Balances().GetBalance(key)
}

func depositorRecord(t *testing.T, out core.CoreOutput) *event.VaultDepositorRecord {
	t.Helper()
	rec, ok := out.Envelope.Record.(*event.VaultDepositorRecord)
	if !ok {
		t.Fatalf("expected depositor record, got %T", out.Envelope.Record)
	}
	return rec
}

func u128(v uint64) fpmath.U128 { return fpmath.NewU128(v) }

func assertShares(t *testing.T, what string, got fpmath.U128, want uint64) {
	t.Helper()
	if got.Cmp(u128(want)) != 0 {
		t.Fatalf("%s: expected %d, got %s", what, want, got)
	}
}

// --- Tests ---

// TestEngine_DepositWithdrawAcrossEquityChanges walks two depositors and the manager
// through +10%, +10%, -10%, -50% equity moves with zero fees.
func TestEngine_DepositWithdrawAcrossEquityChanges(t *testing.T) {
	h := newHarness(t, state.VaultParams{RedeemPeriod: state.OneDay})

	outs := h.apply(&event.Deposit{Header: h.header(alice, t0+1), Valuation: priced(0), Amount: 1_000_000_000})
	assertShares(t, "alice bootstrap shares", depositorRecord(t, outs[0]).VaultSharesAfter, 1_000_000_000)

	outs = h.apply(&event.Deposit{Header: h.header(bob, t0+2), Valuation: priced(1_000_000_000), Amount: 1_000_000_000})
	assertShares(t, "bob shares", depositorRecord(t, outs[0]).VaultSharesAfter, 1_000_000_000)

	h.apply(&event.ManagerDeposit{Header: h.header(manager, t0+3), Valuation: priced(2_000_000_000), Amount: 298_000_000_000})

	equities := []uint64{h.vaultState().LastEquity}

	// +10%
	outs = h.apply(&event.RequestWithdraw{Header: h.header(alice, t0+100), Valuation: priced(330_000_000_000), Unit: state.WithdrawUnitSharesPercent, Amount: 1_000_000})
	rec := depositorRecord(t, outs[0])
	equities = append(equities, rec.VaultEquityBefore)
	if rec.Amount != 1_100_000_000 {
		t.Fatalf("request value: expected 1100000000, got %d", rec.Amount)
	}

	h.apply(&event.CancelRequestWithdraw{Header: h.header(alice, t0+200)})
	if h.depositor(alice).LastWithdrawRequest.Pending() {
		t.Fatal("request should be cleared after cancel")
	}
	assertShares(t, "alice shares after cancel", h.depositor(alice).VaultShares, 1_000_000_000)

	// +10%
	outs = h.apply(&event.RequestWithdraw{Header: h.header(alice, t0+300), Valuation: priced(363_000_000_000), Unit: state.WithdrawUnitShares, Amount: 1_000_000_000})
	rec = depositorRecord(t, outs[0])
	equities = append(equities, rec.VaultEquityBefore)
	if rec.Amount != 1_210_000_000 {
		t.Fatalf("request value: expected 1210000000, got %d", rec.Amount)
	}

	// -10%
	outs = h.apply(&event.ManagerUpdateVault{Header: h.header(manager, t0+400), Valuation: priced(326_700_000_000)})
	equities = append(equities, outs[0].Envelope.Record.(*event.VaultRecord).VaultEquityBefore)

	h.reject(&event.Withdraw{Header: h.header(alice, t0+500), Valuation: priced(326_700_000_000)}, state.ErrCannotWithdrawBeforeRedeemPeriodEnd)

	// -50%
	outs = h.apply(&event.Withdraw{Header: h.header(alice, t0+300+state.OneDay), Valuation: priced(163_350_000_000)})
	rec = depositorRecord(t, outs[0])
	equities = append(equities, rec.VaultEquityBefore)

	want := []uint64{300_000_000_000, 330_000_000_000, 363_000_000_000, 326_700_000_000, 163_350_000_000}
	for i := range want {
		if equities[i] != want[i] {
			t.Fatalf("equity snapshot %d: expected %d, got %d", i, want[i], equities[i])
		}
	}

	if rec.Amount != 544_500_000 {
		t.Fatalf("withdraw amount: expected 544500000, got %d", rec.Amount)
	}
	assertShares(t, "alice final shares", h.depositor(alice).VaultShares, 0)
	assertShares(t, "bob final shares", h.depositor(bob).VaultShares, 1_000_000_000)

	v := h.vaultState()
	if v.LastEquity != 163_350_000_000-544_500_000 {
		t.Fatalf("last equity: expected %d, got %d", 163_350_000_000-544_500_000, v.LastEquity)
	}
	if v.TotalWithdrawRequested != 0 {
		t.Fatalf("total withdraw requested: expected 0, got %d", v.TotalWithdrawRequested)
	}
	if got := h.balance(ledger.CustodyAccount(h.vault)); uint64(got) != v.LastEquity {
		t.Fatalf("custody %d != last equity %d", got, v.LastEquity)
	}
	if got := h.balance(ledger.WalletAccount(h.vault, alice)); got != -1_000_000_000+544_500_000 {
		t.Fatalf("alice wallet: expected %d, got %d", -1_000_000_000+544_500_000, got)
	}
}

func TestEngine_HashChainAndSequence(t *testing.T) {
	h := newHarness(t, state.VaultParams{})
	h.apply(&event.Deposit{Header: h.header(alice, t0+1), Valuation: priced(0), Amount: 5_000})
	h.apply(&event.Deposit{Header: h.header(bob, t0+2), Valuation: priced(5_000), Amount: 5_000})
	close(h.persist)

	var prev *core.CoreOutput
	var n int64
	for out := range h.persist {
		out := out
		if out.Envelope.Sequence != n {
			t.Fatalf("expected sequence %d, got %d", n, out.Envelope.Sequence)
		}
		if prev != nil && out.Envelope.PrevHash != prev.Envelope.StateHash {
			t.Fatalf("seq %d: prev hash does not chain", out.Envelope.Sequence)
		}
		for _, b := range out.Batches {
			if b.Sequence != out.Envelope.Sequence {
				t.Fatalf("batch sequence %d, record %d", b.Sequence, out.Envelope.Sequence)
			}
		}
		prev = &out
		n++
	}
	if n != 3 {
		t.Fatalf("expected 3 records, got %d", n)
	}
	if h.engine.GetStateHash() != prev.Envelope.StateHash {
		t.Fatal("engine hash should equal the last record's hash")
	}
}

func TestEngine_ReplayIsDeterministic(t *testing.T) {
	h := newHarness(t, state.VaultParams{RedeemPeriod: 60})
	var cmds []event.Command
	run := func(cmd event.Command) {
		cmds = append(cmds, cmd)
		h.apply(cmd)
	}
	run(&event.Deposit{Header: h.header(alice, t0+1), Valuation: priced(0), Amount: 7_000_000})
	run(&event.Deposit{Header: h.header(bob, t0+2), Valuation: priced(7_300_000), Amount: 3_000_000})
	run(&event.RequestWithdraw{Header: h.header(bob, t0+3), Valuation: priced(10_100_000), Unit: state.WithdrawUnitToken, Amount: 1_000_000})
	run(&event.Withdraw{Header: h.header(bob, t0+100), Valuation: priced(9_900_000)})

	replay := core.NewVaultEngine(core.EngineConfig{AdminAuthority: admin}, nil, nil, nil, nil)
	init := &event.InitializeVault{Header: event.Header{RequestID: uuid.New(), Vault: h.vault, SignedBy: manager, Ts: t0}, Params: state.VaultParams{Name: "test vault", RedeemPeriod: 60}}
	if _, err := replay.ProcessCommand(init); err != nil {
		t.Fatalf("replay init: %v", err)
	}
	for _, cmd := range cmds {
		if _, err := replay.ProcessCommand(cmd); err != nil {
			t.Fatalf("replay %s: %v", cmd.CommandType(), err)
		}
	}
	if replay.GetSequence() != h.engine.GetSequence() {
		t.Fatalf("sequence diverged: %d vs %d", replay.GetSequence(), h.engine.GetSequence())
	}
	if replay.GetStateHash() != h.engine.GetStateHash() {
		t.Fatal("state hash diverged on replay")
	}
}

func TestEngine_IdempotentAndStale(t *testing.T) {
	h := newHarness(t, state.VaultParams{})
	dep := &event.Deposit{Header: h.header(alice, t0+10), Valuation: priced(0), Amount: 1_000}
	if outs := h.apply(dep); len(outs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outs))
	}
	seq := h.engine.GetSequence()

	outs, err := h.engine.ProcessCommand(dep)
	if err != nil || outs != nil {
		t.Fatalf("duplicate should be silently dropped, got %v, %v", outs, err)
	}
	if h.engine.GetSequence() != seq {
		t.Fatal("duplicate advanced the sequence")
	}
	assertShares(t, "shares after duplicate", h.depositor(alice).VaultShares, 1_000)

	h.reject(&event.Deposit{Header: h.header(alice, t0+9), Valuation: priced(1_000), Amount: 1_000}, state.ErrStaleTimestamp)
	// Same timestamp is accepted.
	h.apply(&event.Deposit{Header: h.header(alice, t0+10), Valuation: priced(1_000), Amount: 1_000})
}

func TestEngine_RejectedCommandLeavesNoTrace(t *testing.T) {
	h := newHarness(t, state.VaultParams{RedeemPeriod: 10})
	h.apply(&event.Deposit{Header: h.header(alice, t0+1), Valuation: priced(0), Amount: 1_000_000})
	h.apply(&event.Deposit{Header: h.header(bob, t0+2), Valuation: priced(1_000_000), Amount: 1_000_000})
	h.apply(&event.RequestWithdraw{Header: h.header(alice, t0+3), Valuation: priced(2_000_000), Unit: state.WithdrawUnitSharesPercent, Amount: 1_000_000})

	before := h.vaultState()
	custody := h.balance(ledger.CustodyAccount(h.vault))

	// Alice's leg would succeed; the unknown depositor fails the whole batch, after the
	// equity mark and her withdrawal were journaled.
	h.reject(&event.ForceWithdrawBatch{
		Header:      h.header(manager, t0+20),
		Valuation:   priced(2_500_000),
		Authorities: []string{alice, "nobody"},
	}, state.ErrDepositorNotFound)

	after := h.vaultState()
	if after.LastEquity != before.LastEquity || after.TotalShares.Cmp(before.TotalShares) != 0 {
		t.Fatal("vault changed by a rejected command")
	}
	if got := h.balance(ledger.CustodyAccount(h.vault)); got != custody {
		t.Fatalf("custody changed by a rejected command: %d -> %d", custody, got)
	}
	if !h.depositor(alice).LastWithdrawRequest.Pending() {
		t.Fatal("alice's request should survive the rejected batch")
	}

	// The retried chunk without the bad entry goes through.
	outs := h.apply(&event.ForceWithdrawBatch{
		Header:      h.header(manager, t0+21),
		Valuation:   priced(2_500_000),
		Authorities: []string{alice, bob, alice},
	})
	var withdrawn int
	for _, out := range outs {
		if rec, ok := out.Envelope.Record.(*event.VaultDepositorRecord); ok && rec.Action == event.DepositorActionForceWithdraw {
			withdrawn++
			if rec.Amount != 1_250_000 {
				t.Fatalf("force withdraw amount: expected 1250000, got %d", rec.Amount)
			}
		}
	}
	if withdrawn != 1 {
		t.Fatalf("expected one force withdrawal (bob has no request), got %d", withdrawn)
	}
}

func TestEngine_Permissions(t *testing.T) {
	h := newHarness(t, state.VaultParams{Permissioned: true})

	h.reject(&event.Deposit{Header: h.header(alice, t0+1), Valuation: priced(0), Amount: 1_000}, state.ErrDepositorNotFound)
	h.reject(&event.InitializeVaultDepositor{Header: h.header(alice, t0+1), Authority: alice}, state.ErrPermissionDenied)
	h.apply(&event.InitializeVaultDepositor{Header: h.header(manager, t0+1), Authority: alice})
	h.reject(&event.InitializeVaultDepositor{Header: h.header(manager, t0+1), Authority: alice}, state.ErrDepositorExists)
	h.apply(&event.Deposit{Header: h.header(alice, t0+2), Valuation: priced(0), Amount: 1_000})

	h.reject(&event.UpdateDelegate{Header: h.header(alice, t0+3), Delegate: alice}, state.ErrPermissionDenied)
	h.reject(&event.AdminUpdateVaultClass{Header: h.header(manager, t0+3), Class: state.VaultClassTrusted}, state.ErrPermissionDenied)
	h.reject(&event.ManagerBorrow{Header: h.header(manager, t0+3), Valuation: priced(1_000), Amount: 10}, state.ErrVaultClassNotTrusted)

	h.apply(&event.ManagerUpdateVaultManager{Header: h.header(manager, t0+4), NewManager: "manager2"})
	v := h.vaultState()
	if v.Manager != "manager2" || v.Delegate != "manager2" {
		t.Fatalf("manager change: got manager %q delegate %q", v.Manager, v.Delegate)
	}
	h.reject(&event.UpdateDelegate{Header: h.header(manager, t0+5), Delegate: "bot"}, state.ErrPermissionDenied)

	h.reject(&event.InitializeVault{Header: h.header(alice, t0+5), Params: state.VaultParams{Name: "x"}}, state.ErrVaultExists)
	h.reject(&event.Deposit{Header: event.Header{RequestID: uuid.New(), Vault: uuid.New(), SignedBy: alice, Ts: t0}, Valuation: priced(0), Amount: 1}, state.ErrVaultNotFound)
}

func TestEngine_FeeUpdateTimelock(t *testing.T) {
	h := newHarness(t, state.VaultParams{ManagementFee: 20_000, RedeemPeriod: 3_600})
	h.apply(&event.Deposit{Header: h.header(alice, t0+1), Valuation: priced(0), Amount: 1_000_000_000})

	h.reject(&event.ManagerUpdateFees{Header: h.header(manager, t0+2), ManagementFee: 30_000, TimelockDuration: state.OneDay}, state.ErrFeeUpdateMissing)
	h.apply(&event.AdminInitFeeUpdate{Header: h.header(admin, t0+2)})
	h.reject(&event.ManagerUpdateFees{Header: h.header(manager, t0+3), ManagementFee: 30_000, TimelockDuration: 3_600}, state.ErrInvalidTimelockDuration)
	h.apply(&event.ManagerUpdateFees{Header: h.header(manager, t0+3), ManagementFee: 30_000, TimelockDuration: state.OneDay})
	if h.vaultState().FeeUpdateStatus != state.FeeUpdateStatusPending {
		t.Fatal("expected pending fee update")
	}
	h.reject(&event.ManagerUpdateFees{Header: h.header(manager, t0+4), ManagementFee: 10_000, TimelockDuration: state.OneDay}, state.ErrInvalidFeeUpdate)

	// Before the timelock ends the crank is a no-op.
	seq := h.engine.GetSequence()
	if outs := h.apply(&event.ApplyFeeUpdate{Header: h.header("anyone", t0+100), Valuation: priced(1_000_000_000)}); len(outs) != 0 {
		t.Fatalf("expected no outputs before maturity, got %d", len(outs))
	}
	if h.engine.GetSequence() != seq {
		t.Fatal("no-op crank advanced the sequence")
	}

	outs := h.apply(&event.ApplyFeeUpdate{Header: h.header("anyone", t0+3+state.OneDay), Valuation: priced(1_000_000_000)})
	if len(outs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outs))
	}
	rec := outs[0].Envelope.Record.(*event.FeeUpdateRecord)
	if rec.Fees.OldManagementFee != 20_000 || rec.Fees.NewManagementFee != 30_000 {
		t.Fatalf("applied fees: %+v", rec.Fees)
	}
	if rec.Fee.ManagementFee == 0 {
		t.Fatal("fee accrued at the outgoing rate should be charged")
	}
	v := h.vaultState()
	if v.ManagementFee != 30_000 || v.FeeUpdateStatus != state.FeeUpdateStatusNone {
		t.Fatalf("vault fees not applied: fee %d status %s", v.ManagementFee, v.FeeUpdateStatus)
	}

	// Lowering is immediate, raising is not.
	lower, higher := uint32(5_000), uint32(50_000)
	h.reject(&event.ManagerUpdateVault{Header: h.header(manager, t0+5+state.OneDay), Valuation: priced(1_000_000_000), Update: state.VaultUpdate{ManagementFee: &higher}}, state.ErrInvalidFeeUpdate)
	h.apply(&event.ManagerUpdateVault{Header: h.header(manager, t0+5+state.OneDay), Valuation: priced(1_000_000_000), Update: state.VaultUpdate{ManagementFee: &lower}})
	if h.vaultState().ManagementFee != lower {
		t.Fatal("immediate fee decrease not applied")
	}
}

func TestEngine_BorrowKeepsEquity(t *testing.T) {
	h := newHarness(t, state.VaultParams{})
	h.apply(&event.Deposit{Header: h.header(alice, t0+1), Valuation: priced(0), Amount: 1_000_000})

	h.reject(&event.ManagerBorrow{Header: h.header(manager, t0+2), Valuation: priced(1_000_000), Amount: 100}, state.ErrVaultClassNotTrusted)
	h.apply(&event.AdminUpdateVaultClass{Header: h.header(admin, t0+2), Class: state.VaultClassTrusted})

	h.apply(&event.ManagerBorrow{Header: h.header(manager, t0+3), Valuation: priced(1_000_000), Amount: 400_000})
	v := h.vaultState()
	if v.ManagerBorrowedValue != 400_000 || v.LastEquity != 1_000_000 {
		t.Fatalf("after borrow: borrowed %d equity %d", v.ManagerBorrowedValue, v.LastEquity)
	}
	if got := h.balance(ledger.BorrowedAccount(h.vault)); got != 400_000 {
		t.Fatalf("borrowed account: expected 400000, got %d", got)
	}

	// The venue now reports 600k; borrowed value still counts.
	h.apply(&event.ManagerUpdateBorrow{Header: h.header(manager, t0+4), Valuation: priced(600_000), NewBorrowValue: 450_000})
	if got := h.vaultState().LastEquity; got != 1_050_000 {
		t.Fatalf("after borrow mark: expected equity 1050000, got %d", got)
	}

	h.reject(&event.AdminUpdateVaultClass{Header: h.header(admin, t0+5), Class: state.VaultClassNormal}, state.ErrOutstandingBorrow)
	h.reject(&event.ManagerRepay{Header: h.header(manager, t0+5), Valuation: priced(600_000), Amount: 500_000}, state.ErrInvalidRepayAmount)
	h.apply(&event.ManagerRepay{Header: h.header(manager, t0+5), Valuation: priced(600_000), Amount: 450_000})

	v = h.vaultState()
	if v.ManagerBorrowedValue != 0 || v.LastEquity != 1_050_000 {
		t.Fatalf("after repay: borrowed %d equity %d", v.ManagerBorrowedValue, v.LastEquity)
	}
	if got := h.balance(ledger.CustodyAccount(h.vault)); got != 1_050_000 {
		t.Fatalf("custody after repay: expected 1050000, got %d", got)
	}
	h.apply(&event.AdminUpdateVaultClass{Header: h.header(admin, t0+6), Class: state.VaultClassNormal})
}

func TestEngine_TokenizeAndRedeem(t *testing.T) {
	const wrapper = "wrapper-1"
	h := newHarness(t, state.VaultParams{})
	h.apply(&event.Deposit{Header: h.header(alice, t0+1), Valuation: priced(0), Amount: 1_000_000_000})

	h.reject(&event.InitializeTokenizedVaultDepositor{Header: h.header(alice, t0+2), Authority: wrapper, Symbol: "vALC"}, state.ErrPermissionDenied)
	h.apply(&event.InitializeTokenizedVaultDepositor{Header: h.header(manager, t0+2), Authority: wrapper, Symbol: "vALC", Decimals: 6})
	h.reject(&event.InitializeTokenizedVaultDepositor{Header: h.header(manager, t0+2), Authority: wrapper, Symbol: "vALC"}, state.ErrTokenizedDepositorExists)

	h.apply(&event.TokenizeShares{Header: h.header(alice, t0+3), Valuation: priced(1_000_000_000), Wrapper: wrapper, Shares: u128(400_000_000)})
	assertShares(t, "alice after tokenize", h.depositor(alice).VaultShares, 600_000_000)
	if got := h.balance(ledger.WrapperBalanceAccount(h.vault, wrapper, alice)); got != 400_000_000 {
		t.Fatalf("alice wrapper balance: expected 400000000, got %d", got)
	}
	assertShares(t, "user shares unchanged", h.vaultState().UserShares, 1_000_000_000)

	h.reject(&event.RedeemTokens{Header: h.header(bob, t0+4), Valuation: priced(1_000_000_000), Wrapper: wrapper, Tokens: u128(1)}, state.ErrInsufficientWrapperTokens)
	h.reject(&event.TokenizeShares{Header: h.header(alice, t0+4), Valuation: priced(1_000_000_000), Wrapper: wrapper, Shares: u128(700_000_000)}, state.ErrInsufficientVaultShares)

	h.apply(&event.RedeemTokens{Header: h.header(alice, t0+5), Valuation: priced(1_000_000_000), Wrapper: wrapper, Tokens: u128(100_000_000)})
	assertShares(t, "alice after redeem", h.depositor(alice).VaultShares, 700_000_000)
	if got := h.balance(ledger.WrapperBalanceAccount(h.vault, wrapper, alice)); got != 300_000_000 {
		t.Fatalf("alice wrapper balance: expected 300000000, got %d", got)
	}
	tok, ok := h.engine.Store().Tokenized(state.DepositorKey{Vault: h.vault, Authority: wrapper})
	if !ok {
		t.Fatal("tokenized depositor missing")
	}
	assertShares(t, "wrapper holder shares", tok.VaultShares, 300_000_000)
}

func TestEngine_FuelDistributionAndSeasonReset(t *testing.T) {
	h := newHarness(t, state.VaultParams{})
	h.apply(&event.Deposit{Header: h.header(alice, t0+1), Valuation: priced(0), Amount: 1_000_000_000})
	h.apply(&event.Deposit{Header: h.header(bob, t0+2), Valuation: priced(1_000_000_000), Amount: 3_000_000_000})

	var reading state.FuelReading
	reading.Counters[0] = 4_000
	h.apply(&event.UpdateVaultFuel{Header: h.header("cranker", t0+10), Reading: reading})
	if outs := h.apply(&event.UpdateVaultFuel{Header: h.header("cranker", t0+10), Reading: reading}); len(outs) != 0 {
		t.Fatal("repeated reading at the same timestamp should be a no-op")
	}

	outs := h.apply(&event.UpdateDepositorFuel{Header: h.header("cranker", t0+11), Authority: alice})
	if got := outs[0].Envelope.Record.(*event.FuelRecord).FuelCredited; got != 1_000 {
		t.Fatalf("alice fuel: expected 1000, got %d", got)
	}

	h.reject(&event.ResetVaultFuelSeason{Header: h.header(admin, t0+12)}, state.ErrFuelSeasonNotFlushed)
	h.reject(&event.ResetFuelSeasonBatch{Header: h.header(manager, t0+12), Authorities: []string{alice, bob}}, state.ErrPermissionDenied)

	h.apply(&event.ResetFuelSeasonBatch{Header: h.header(admin, t0+12), Authorities: []string{alice, bob}})
	if d := h.depositor(alice); d.FuelAmount != 0 {
		t.Fatalf("alice fuel after reset: %d", d.FuelAmount)
	}
	h.apply(&event.ResetVaultFuelSeason{Header: h.header(admin, t0+13)})

	v := h.vaultState()
	if !v.CumulativeFuel.IsZero() || !v.CumulativeFuelPerShare.IsZero() {
		t.Fatalf("vault accumulator not cleared: %s / %s", v.CumulativeFuel, v.CumulativeFuelPerShare)
	}
	if !h.depositor(bob).CumulativeFuelPerShareAmount.IsZero() {
		t.Fatal("holder baseline should be zeroed by the season reset")
	}

	// The venue restarts its counters for the new season.
	reading.Counters[0] = 800
	h.apply(&event.UpdateDepositorFuelBatch{Header: h.header("cranker", t0+20), Reading: &reading, Authorities: []string{alice, bob}})
	if got := h.depositor(bob).FuelAmount; got != 600 {
		t.Fatalf("bob fuel in new season: expected 600, got %d", got)
	}
}

func TestEngine_RebaseNormalizesDepositors(t *testing.T) {
	h := newHarness(t, state.VaultParams{})
	h.apply(&event.Deposit{Header: h.header(alice, t0+1), Valuation: priced(0), Amount: 1_000_000_000})

	// Equity collapses to 1e5 against 1e9 shares: ratio 10^4.
	outs := h.apply(&event.Deposit{Header: h.header(bob, t0+2), Valuation: priced(100_000), Amount: 100_000})
	rec := depositorRecord(t, outs[0])
	if rec.RebaseExponent != 4 {
		t.Fatalf("expected rebase exponent 4, got %d", rec.RebaseExponent)
	}
	v := h.vaultState()
	if v.SharesBase != 4 {
		t.Fatalf("expected shares base 4, got %d", v.SharesBase)
	}
	assertShares(t, "total shares", v.TotalShares, 200_000)

	outs = h.apply(&event.RequestWithdraw{Header: h.header(alice, t0+3), Valuation: priced(200_000), Unit: state.WithdrawUnitSharesPercent, Amount: 1_000_000})
	rec = depositorRecord(t, outs[0])
	assertShares(t, "alice normalized shares", rec.VaultSharesBefore, 100_000)
	if rec.Amount != 100_000 {
		t.Fatalf("alice request value: expected 100000, got %d", rec.Amount)
	}
	if d := h.depositor(alice); d.VaultSharesBase != 4 {
		t.Fatalf("alice base: expected 4, got %d", d.VaultSharesBase)
	}
}

func TestEngine_SnapshotRestore(t *testing.T) {
	h := newHarness(t, state.VaultParams{})
	h.apply(&event.Deposit{Header: h.header(alice, t0+1), Valuation: priced(0), Amount: 2_000_000})
	h.apply(&event.Deposit{Header: h.header(bob, t0+2), Valuation: priced(2_200_000), Amount: 1_100_000})

	data, err := json.Marshal(h.engine.CreateSnapshot())
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	var snap core.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	restored := core.NewVaultEngine(core.EngineConfig{AdminAuthority: admin}, nil, nil, nil, nil)
	if err := restored.RestoreFromSnapshot(&snap); err != nil {
		t.Fatalf("restore: %v", err)
	}

	next := &event.RequestWithdraw{Header: h.header(alice, t0+3), Valuation: priced(3_300_000), Unit: state.WithdrawUnitShares, Amount: 1_000_000}
	h.apply(next)
	if _, err := restored.ProcessCommand(next); err != nil {
		t.Fatalf("restored engine: %v", err)
	}
	if restored.GetStateHash() != h.engine.GetStateHash() {
		t.Fatal("restored engine diverged")
	}

	// Restored keys still dedupe.
	if outs, err := restored.ProcessCommand(next); err != nil || outs != nil {
		t.Fatalf("expected duplicate, got %v, %v", outs, err)
	}
}

package core_test

import (
	"testing"

	"VaultLedger/internal/core"
	"VaultLedger/internal/event"
	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/state"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const carol = "carol"

// assertConserved checks that plain and wrapper holdings add up to user shares exactly.
func (h *harness) assertConserved(step string) {
	h.t.Helper()
	v := h.vaultState()
	sum := fpmath.ZeroU128
	add := func(s fpmath.U128) {
		next, err := sum.Add(s)
		if err != nil {
			h.t.Fatalf("%s: %v", step, err)
		}
		sum = next
	}
	for _, d := range h.engine.Store().Depositors(h.vault) {
		add(d.VaultShares)
	}
	for _, w := range h.engine.Store().TokenizedDepositors(h.vault) {
		add(w.VaultShares)
	}
	if sum.Cmp(v.UserShares) != 0 {
		h.t.Fatalf("%s: holdings sum to %s, user shares %s", step, sum, v.UserShares)
	}
}

func TestEngine_RebaseKeepsSharesConserved(t *testing.T) {
	const wrapper = "wrapper-1"
	h := newHarness(t, state.VaultParams{RedeemPeriod: 3_600})

	h.apply(&event.Deposit{Header: h.header(alice, t0+1), Valuation: priced(0), Amount: 1_999_999})
	h.apply(&event.Deposit{Header: h.header(bob, t0+2), Valuation: priced(1_999_999), Amount: 1_999_999})
	h.assertConserved("deposits")

	// 3_999_998 shares against 1_000 equity: each holding floors to 1_999, the pool to 3_999.
	outs := h.apply(&event.RequestWithdraw{Header: h.header(alice, t0+3), Valuation: priced(1_000), Unit: state.WithdrawUnitSharesPercent, Amount: 500_000})
	rec := depositorRecord(t, outs[0])
	if rec.RebaseExponent != 3 {
		t.Fatalf("rebase exponent: expected 3, got %d", rec.RebaseExponent)
	}
	if rec.RebaseDust == nil {
		t.Fatal("expected rebase dust on the settlement")
	}
	assertShares(t, "rebase dust", *rec.RebaseDust, 1)

	v := h.vaultState()
	assertShares(t, "total shares", v.TotalShares, 3_999)
	assertShares(t, "user shares", v.UserShares, 3_998)
	managerShares, err := v.ManagerShares(nil)
	if err != nil {
		t.Fatal(err)
	}
	assertShares(t, "manager shares", managerShares, 1)

	// Bob was not named by the command but is already at the new base.
	if d := h.depositor(bob); d.VaultSharesBase != 3 {
		t.Fatalf("bob base: expected 3, got %d", d.VaultSharesBase)
	}
	assertShares(t, "bob shares", h.depositor(bob).VaultShares, 1_999)
	h.assertConserved("rebase")

	h.apply(&event.Deposit{Header: h.header(bob, t0+4), Valuation: priced(1_000), Amount: 500})
	h.assertConserved("deposit after rebase")

	h.apply(&event.InitializeTokenizedVaultDepositor{Header: h.header(manager, t0+5), Authority: wrapper, Symbol: "vBOB"})
	h.apply(&event.TokenizeShares{Header: h.header(bob, t0+6), Valuation: priced(1_500), Wrapper: wrapper, Shares: u128(1_000)})
	h.assertConserved("tokenize")

	h.apply(&event.RedeemTokens{Header: h.header(bob, t0+7), Valuation: priced(1_500), Wrapper: wrapper, Tokens: u128(400)})
	h.assertConserved("redeem")

	outs = h.apply(&event.Withdraw{Header: h.header(alice, t0+3+3_600), Valuation: priced(1_500)})
	if depositorRecord(t, outs[0]).Amount == 0 {
		t.Fatal("withdraw paid nothing")
	}
	h.assertConserved("withdraw")
}

// TestEngine_FuelFloorLossBoundedByHolders spreads a delta of 10 over three single-share
// holders, one of them a wrapper holder cranked through the batch.
func TestEngine_FuelFloorLossBoundedByHolders(t *testing.T) {
	const wrapper = "wrapper-1"
	h := newHarness(t, state.VaultParams{})
	h.apply(&event.Deposit{Header: h.header(alice, t0+1), Valuation: priced(0), Amount: 1})
	h.apply(&event.Deposit{Header: h.header(bob, t0+2), Valuation: priced(1), Amount: 1})
	h.apply(&event.Deposit{Header: h.header(carol, t0+3), Valuation: priced(2), Amount: 1})
	h.apply(&event.InitializeTokenizedVaultDepositor{Header: h.header(manager, t0+4), Authority: wrapper, Symbol: "vCRL"})
	h.apply(&event.TokenizeShares{Header: h.header(carol, t0+5), Valuation: priced(3), Wrapper: wrapper, Shares: u128(1)})

	var reading state.FuelReading
	reading.Counters[0] = 10
	h.apply(&event.UpdateDepositorFuelBatch{
		Header:      h.header("cranker", t0+10),
		Reading:     &reading,
		Authorities: []string{alice, bob, carol},
		Tokenized:   []string{wrapper},
	})

	tok, ok := h.engine.Store().Tokenized(state.DepositorKey{Vault: h.vault, Authority: wrapper})
	if !ok {
		t.Fatal("tokenized depositor missing")
	}
	credited := []uint64{h.depositor(alice).FuelAmount, h.depositor(bob).FuelAmount, h.depositor(carol).FuelAmount, tok.FuelAmount}
	want := []uint64{3, 3, 0, 3}
	var sum uint64
	for i := range want {
		if credited[i] != want[i] {
			t.Fatalf("holder %d fuel: expected %d, got %d", i, want[i], credited[i])
		}
		sum += credited[i]
	}
	if sum > 10 || 10-sum > 3 {
		t.Fatalf("credited %d of 10 across 3 holders", sum)
	}
	if tok.CumulativeFuelPerShareAmount.Cmp(h.vaultState().CumulativeFuelPerShare) != 0 {
		t.Fatal("wrapper holder baseline not advanced by the batch")
	}
}

// TestEngine_FeeUpdateOnlyOnCommit checks that a pending fee update leaves fees alone
// before its timelock, and that a rejected command which matured it counts nothing.
func TestEngine_FeeUpdateOnlyOnCommit(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	persist := make(chan core.CoreOutput, 256)
	h := &harness{
		t:       t,
		engine:  core.NewVaultEngine(core.EngineConfig{AdminAuthority: admin, IdempotencyCapacity: 64}, persist, nil, nil, metrics),
		persist: persist,
		vault:   uuid.New(),
	}
	h.apply(&event.InitializeVault{Header: h.header(manager, t0), Params: state.VaultParams{Name: "fees", ManagementFee: 20_000, MaxTokens: 2_000_000_000}})
	h.apply(&event.Deposit{Header: h.header(alice, t0+1), Valuation: priced(0), Amount: 1_000_000_000})
	h.apply(&event.AdminInitFeeUpdate{Header: h.header(admin, t0+2)})
	h.apply(&event.ManagerUpdateFees{Header: h.header(manager, t0+3), ManagementFee: 30_000, TimelockDuration: state.OneDay})

	applied := metrics.FeeUpdatesApplied.WithLabelValues(h.vault.String())
	charged := metrics.ManagementFeeCharged.WithLabelValues(h.vault.String(), "manager")

	h.apply(&event.Deposit{Header: h.header(bob, t0+100), Valuation: priced(1_000_000_000), Amount: 1_000})
	if v := h.vaultState(); v.ManagementFee != 20_000 || v.FeeUpdateStatus != state.FeeUpdateStatusPending {
		t.Fatalf("deposit before the timelock changed fees: fee %d status %s", v.ManagementFee, v.FeeUpdateStatus)
	}

	matured := t0 + 3 + state.OneDay
	before := testutil.ToFloat64(charged)
	h.reject(&event.Deposit{Header: h.header(alice, matured), Valuation: priced(1_000_000_000), Amount: 5_000_000_000}, state.ErrVaultIsAtCapacity)
	if got := testutil.ToFloat64(applied); got != 0 {
		t.Fatalf("fee updates applied after a rejected command: %v", got)
	}
	if got := testutil.ToFloat64(charged); got != before {
		t.Fatalf("management fee charged by a rejected command: %v -> %v", before, got)
	}
	if v := h.vaultState(); v.ManagementFee != 20_000 {
		t.Fatalf("rejected command applied fees: %d", v.ManagementFee)
	}

	h.apply(&event.Deposit{Header: h.header(bob, matured), Valuation: priced(1_000_000_000), Amount: 1_000})
	h.apply(&event.Deposit{Header: h.header(bob, matured+1), Valuation: priced(1_000_000_000), Amount: 1_000})
	if got := testutil.ToFloat64(applied); got != 1 {
		t.Fatalf("fee updates applied: expected 1, got %v", got)
	}
	if got := testutil.ToFloat64(charged); got <= before {
		t.Fatalf("management fee not counted on commit: %v -> %v", before, got)
	}
	if v := h.vaultState(); v.ManagementFee != 30_000 || v.FeeUpdateStatus != state.FeeUpdateStatusNone {
		t.Fatalf("fees after maturity: fee %d status %s", v.ManagementFee, v.FeeUpdateStatus)
	}
}

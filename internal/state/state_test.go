package state

import (
	"errors"
	"fmt"
	"io"
	"testing"

	fpmath "VaultLedger/internal/math"

	"github.com/google/uuid"
)

func newTestVault(t *testing.T, params VaultParams) (*Vault, *VaultProtocol) {
	t.Helper()
	if params.Name == "" {
		params.Name = "alpha"
	}
	if params.Manager == "" {
		params.Manager = "manager"
	}
	v, p, err := NewVault(uuid.New(), params, 0)
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	return v, p
}

func u(n uint64) fpmath.U128 { return fpmath.NewU128(n) }

func wantShares(t *testing.T, what string, got fpmath.U128, want uint64) {
	t.Helper()
	if got != u(want) {
		t.Fatalf("%s: got %s, want %d", what, got, want)
	}
}

func TestErrors_CodeAndKind(t *testing.T) {
	err := ErrInsufficientVaultShares.With("requested %d", 5)
	if !errors.Is(err, ErrInsufficientVaultShares) {
		t.Fatalf("detail copy must match its sentinel")
	}
	if errors.Is(err, ErrInvalidDepositAmount) {
		t.Fatalf("different codes must not match")
	}
	if err.Error() != "InsufficientVaultShares: requested 5" {
		t.Fatalf("message: got %q", err.Error())
	}
	if k, ok := KindOf(fmt.Errorf("wrapped: %w", err)); !ok || k != KindPolicy {
		t.Fatalf("kind through wrap: got %v, %v", k, ok)
	}

	m := fmt.Errorf("apply: %w", mathErr("fee", fpmath.ErrOverflow))
	if !errors.Is(m, fpmath.ErrOverflow) {
		t.Fatalf("math error must unwrap to its cause")
	}
	if CodeOf(m) != "MathError" {
		t.Fatalf("math code: got %s", CodeOf(m))
	}
	if k, _ := KindOf(fpmath.ErrUnderflow); k != KindArithmetic {
		t.Fatalf("bare underflow: got kind %v", k)
	}
	if CodeOf(fpmath.ErrDivisionByZero) != "MathError" {
		t.Fatalf("bare division by zero: got %s", CodeOf(fpmath.ErrDivisionByZero))
	}

	if _, ok := KindOf(errors.New("boom")); ok {
		t.Fatalf("untyped error must have no kind")
	}
	if CodeOf(errors.New("boom")) != "Internal" {
		t.Fatalf("untyped error code: got %s", CodeOf(errors.New("boom")))
	}
	if !errors.Is(ErrLedgerRejected.Wrap(io.EOF), io.EOF) {
		t.Fatalf("Wrap must keep the cause")
	}
}

func TestNewVault_Validation(t *testing.T) {
	cases := []struct {
		name   string
		params VaultParams
	}{
		{"no manager", VaultParams{Name: "a"}},
		{"no name", VaultParams{Manager: "m"}},
		{"redeem period too long", VaultParams{Name: "a", Manager: "m", RedeemPeriod: MaxRedeemPeriod + 1}},
		{"fee at 100%", VaultParams{Name: "a", Manager: "m", ManagementFee: 1_000_000}},
		{"profit share at 100%", VaultParams{Name: "a", Manager: "m", ProfitShare: 1_000_000}},
		{"hurdle above 100%", VaultParams{Name: "a", Manager: "m", HurdleRate: 1_000_001}},
		{"fee plus protocol fee", VaultParams{Name: "a", Manager: "m", ManagementFee: 600_000, Protocol: "p", ProtocolFee: 400_000}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			_, _, err := NewVault(uuid.New(), c.params, 0)
			if !errors.Is(err, ErrInvalidVaultInitialization) {
				t.Fatalf("got %v, want InvalidVaultInitialization", err)
			}
		})
	}

	v, p, err := NewVault(uuid.New(), VaultParams{Name: "a", Manager: "m", Protocol: "proto", ProtocolFee: 10}, 42)
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || !v.HasProtocol || v.Delegate != "m" || v.LastFeeUpdateTs != 42 {
		t.Fatalf("vault: %+v protocol: %+v", v, p)
	}
}

func TestDepositor_WithdrawLifecycle(t *testing.T) {
	v, _ := newTestVault(t, VaultParams{RedeemPeriod: OneDay})
	alice := NewVaultDepositor(v, "alice", 0)
	bob := NewVaultDepositor(v, "bob", 0)

	if _, err := alice.Deposit(v, nil, 1_000_000, 0, 0); err != nil {
		t.Fatalf("alice deposit: %v", err)
	}
	wantShares(t, "first deposit mints 1:1", alice.VaultShares, 1_000_000)

	// Equity doubled before bob joins.
	res, err := bob.Deposit(v, nil, 1_000_000, 2_000_000, 0)
	if err != nil {
		t.Fatalf("bob deposit: %v", err)
	}
	wantShares(t, "bob shares", res.Shares, 500_000)
	wantShares(t, "total shares", v.TotalShares, 1_500_000)

	res, err = alice.RequestWithdraw(v, nil, WithdrawUnitSharesPercent, 500_000, 3_000_000, 100)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	wantShares(t, "requested shares", res.Shares, 500_000)
	if res.Amount != 1_000_000 || v.TotalWithdrawRequested != 1_000_000 {
		t.Fatalf("request value: got %d, vault requested %d", res.Amount, v.TotalWithdrawRequested)
	}
	if _, err := alice.RequestWithdraw(v, nil, WithdrawUnitShares, 1, 3_000_000, 100); !errors.Is(err, ErrVaultWithdrawRequestInProgress) {
		t.Fatalf("second request: got %v", err)
	}
	if _, err := alice.Withdraw(v, nil, 1_500_000, 100+OneDay-1); !errors.Is(err, ErrCannotWithdrawBeforeRedeemPeriodEnd) {
		t.Fatalf("early withdraw: got %v", err)
	}

	// Equity halved during the redeem period; the withdraw re-prices.
	res, err = alice.Withdraw(v, nil, 1_500_000, 100+OneDay)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if res.Amount != 500_000 {
		t.Fatalf("withdraw amount: got %d, want 500000", res.Amount)
	}
	wantShares(t, "alice after withdraw", alice.VaultShares, 500_000)
	wantShares(t, "total after withdraw", v.TotalShares, 1_000_000)
	wantShares(t, "user after withdraw", v.UserShares, 1_000_000)
	if alice.LastWithdrawRequest.Pending() || v.TotalWithdrawRequested != 0 {
		t.Fatalf("request not cleared: %+v, %d", alice.LastWithdrawRequest, v.TotalWithdrawRequested)
	}
	if alice.NetDeposits != 500_000 || v.TotalWithdraws != 500_000 {
		t.Fatalf("flows: net %d, vault withdraws %d", alice.NetDeposits, v.TotalWithdraws)
	}
	if _, err := alice.CancelWithdrawRequest(v); !errors.Is(err, ErrInvalidVaultWithdraw) {
		t.Fatalf("cancel without request: got %v", err)
	}
}

func TestDeposit_Limits(t *testing.T) {
	v, _ := newTestVault(t, VaultParams{MinDepositAmount: 100, MaxTokens: 1_500_000})
	d := NewVaultDepositor(v, "alice", 0)

	if _, err := d.Deposit(v, nil, 99, 0, 0); !errors.Is(err, ErrInvalidDepositAmount) {
		t.Fatalf("below minimum: got %v", err)
	}
	if _, err := d.Deposit(v, nil, 1_000_000, 0, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Deposit(v, nil, 600_000, 1_000_000, 0); !errors.Is(err, ErrVaultIsAtCapacity) {
		t.Fatalf("over capacity: got %v", err)
	}
	if _, err := d.Deposit(v, nil, 100, 0, 0); !errors.Is(err, ErrInvalidVaultForNewDepositors) {
		t.Fatalf("zero equity with shares outstanding: got %v", err)
	}
}

func TestManagementFee_DilutesDepositors(t *testing.T) {
	v, p := newTestVault(t, VaultParams{ManagementFee: 100_000, Protocol: "proto", ProtocolFee: 50_000})
	d := NewVaultDepositor(v, "alice", 0)
	if _, err := d.Deposit(v, p, 1_000_000, 0, 0); err != nil {
		t.Fatal(err)
	}

	charge, err := v.ApplyManagementFee(p, 1_000_000, OneYear)
	if err != nil {
		t.Fatal(err)
	}
	if charge.ManagementFee != 100_000 || charge.ProtocolFee != 50_000 {
		t.Fatalf("fees: got manager %d protocol %d", charge.ManagementFee, charge.ProtocolFee)
	}
	wantShares(t, "total shares", v.TotalShares, 1_176_470)
	wantShares(t, "protocol fee shares", charge.ProtocolFeeShares, 58_823)
	wantShares(t, "manager fee shares", charge.ManagementFeeShares, 117_647)
	wantShares(t, "protocol shares", p.ProtocolShares, 58_823)
	ms, err := v.ManagerShares(p)
	if err != nil {
		t.Fatal(err)
	}
	wantShares(t, "manager shares", ms, 117_647)
	if v.ManagerTotalFee != 100_000 || p.TotalFee != 50_000 || v.LastFeeUpdateTs != OneYear {
		t.Fatalf("totals: manager %d protocol %d ts %d", v.ManagerTotalFee, p.TotalFee, v.LastFeeUpdateTs)
	}

	// A one-second interval rounds to zero and must keep accruing.
	charge, err = v.ApplyManagementFee(p, 1_000_000, OneYear+1)
	if err != nil {
		t.Fatal(err)
	}
	if charge.ManagementFee != 0 || v.LastFeeUpdateTs != OneYear {
		t.Fatalf("zero fee: got %+v, ts %d", charge, v.LastFeeUpdateTs)
	}
}

func TestProfitShare_HighWaterMark(t *testing.T) {
	v, _ := newTestVault(t, VaultParams{ProfitShare: 200_000})
	d := NewVaultDepositor(v, "alice", 0)
	if _, err := d.Deposit(v, nil, 1_000_000, 0, 0); err != nil {
		t.Fatal(err)
	}

	charge, err := ApplyProfitShare(&d.Holding, v, nil, 2_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if charge.Profit != 1_000_000 || charge.ManagerAmount != 200_000 {
		t.Fatalf("charge: %+v", charge)
	}
	wantShares(t, "manager shares moved", charge.ManagerShares, 100_000)
	wantShares(t, "depositor shares", d.VaultShares, 900_000)
	wantShares(t, "user shares", v.UserShares, 900_000)
	wantShares(t, "total shares unchanged", v.TotalShares, 1_000_000)
	if d.CumulativeProfitShareAmount != 1_000_000 || d.ProfitShareFeePaid != 200_000 || v.ManagerTotalProfitShare != 200_000 {
		t.Fatalf("accounting: %+v, manager total %d", d.Holding, v.ManagerTotalProfitShare)
	}

	charge, err = ApplyProfitShare(&d.Holding, v, nil, 2_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if charge.Profit != 0 {
		t.Fatalf("reapplying below the high-water mark charged %+v", charge)
	}

	// A loss and a regain to the same equity charge nothing more.
	for _, equity := range []uint64{1_000_000, 2_000_000} {
		charge, err = ApplyProfitShare(&d.Holding, v, nil, equity)
		if err != nil {
			t.Fatal(err)
		}
		if charge.Profit != 0 || charge.Amount() != 0 {
			t.Fatalf("equity %d: charged %+v", equity, charge)
		}
	}
	wantShares(t, "depositor shares after regain", d.VaultShares, 900_000)

	// Only value above the mark is taxed: 900k shares at 3x are worth 2.7M against 2M.
	charge, err = ApplyProfitShare(&d.Holding, v, nil, 3_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if charge.Profit != 700_000 || charge.ManagerAmount != 140_000 {
		t.Fatalf("new high: %+v", charge)
	}
}

func TestRebase_DepositorNormalizes(t *testing.T) {
	v, _ := newTestVault(t, VaultParams{})
	d := NewVaultDepositor(v, "alice", 0)
	if _, err := d.Deposit(v, nil, 1_000_000, 0, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := d.RequestWithdraw(v, nil, WithdrawUnitShares, 400_000, 1_000_000, 0); err != nil {
		t.Fatal(err)
	}
	v.CumulativeFuelPerShare = u(7)
	d.CumulativeFuelPerShareAmount = u(7)

	exp, err := v.ApplyRebase(nil, 1_000)
	if err != nil || exp != 3 {
		t.Fatalf("rebase: got %d, %v", exp, err)
	}
	wantShares(t, "total after rebase", v.TotalShares, 1_000)
	wantShares(t, "fuel per share after rebase", v.CumulativeFuelPerShare, 7_000)
	if v.SharesBase != 3 {
		t.Fatalf("base: got %d", v.SharesBase)
	}

	if err := d.addShares(v, u(1)); !errors.Is(err, ErrSharesBaseMismatch) {
		t.Fatalf("stale holding: got %v", err)
	}
	if err := d.Normalize(v); err != nil {
		t.Fatal(err)
	}
	wantShares(t, "normalized shares", d.VaultShares, 1_000)
	wantShares(t, "normalized request", d.LastWithdrawRequest.Shares, 400)
	wantShares(t, "normalized fuel baseline", d.CumulativeFuelPerShareAmount, 7_000)

	if exp, _ := v.ApplyRebase(nil, 1_000); exp != 0 {
		t.Fatalf("second rebase at ratio 1: got %d", exp)
	}
}

func TestSettleRebasedUserShares_DustToManager(t *testing.T) {
	v, _ := newTestVault(t, VaultParams{})
	alice := NewVaultDepositor(v, "alice", 0)
	bob := NewVaultDepositor(v, "bob", 0)
	if _, err := alice.Deposit(v, nil, 1_999_999, 0, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := bob.Deposit(v, nil, 1_999_999, 1_999_999, 0); err != nil {
		t.Fatal(err)
	}
	holdings := []*Holding{&alice.Holding, &bob.Holding}
	if err := v.CheckShareConservation(holdings); err != nil {
		t.Fatalf("before rebase: %v", err)
	}

	exp, err := v.ApplyRebase(nil, 1_000)
	if err != nil || exp != 3 {
		t.Fatalf("rebase: got %d, %v", exp, err)
	}
	wantShares(t, "user shares floored once", v.UserShares, 3_999)
	if err := v.CheckShareConservation(holdings); !errors.Is(err, ErrSharesBaseMismatch) {
		t.Fatalf("stale holdings: got %v, want ErrSharesBaseMismatch", err)
	}

	for _, d := range []*VaultDepositor{alice, bob} {
		if err := d.Normalize(v); err != nil {
			t.Fatal(err)
		}
	}
	if err := v.CheckShareConservation(holdings); !errors.Is(err, ErrInvalidVaultSharesDetected) {
		t.Fatalf("floored holdings: got %v, want a conservation error", err)
	}

	dust, err := v.SettleRebasedUserShares(holdings)
	if err != nil {
		t.Fatal(err)
	}
	wantShares(t, "dust", dust, 1)
	wantShares(t, "user shares", v.UserShares, 3_998)
	m, err := v.ManagerShares(nil)
	if err != nil {
		t.Fatal(err)
	}
	wantShares(t, "manager shares", m, 1)
	if err := v.CheckShareConservation(holdings); err != nil {
		t.Fatalf("after settling: %v", err)
	}

	v.UserShares = u(3_000)
	if _, err := v.SettleRebasedUserShares(holdings); !errors.Is(err, ErrInvalidVaultSharesDetected) {
		t.Fatalf("holdings above user shares: got %v", err)
	}
}

func TestTokenize_CarriesCostBasis(t *testing.T) {
	v, _ := newTestVault(t, VaultParams{})
	d := NewVaultDepositor(v, "alice", 0)
	tok := NewTokenizedVaultDepositor(v, "wrapper", "vALPHA", "Alpha Shares", 6, 0)
	if _, err := d.Deposit(v, nil, 1_000_000, 0, 0); err != nil {
		t.Fatal(err)
	}

	res, err := d.TokenizeShares(v, nil, tok, u(400_000), 1_000_000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Amount != 400_000 || d.NetDeposits != 600_000 || tok.NetDeposits != 400_000 {
		t.Fatalf("tokenize: amount %d, depositor net %d, wrapper net %d", res.Amount, d.NetDeposits, tok.NetDeposits)
	}
	wantShares(t, "user shares unchanged", v.UserShares, 1_000_000)

	if _, err := d.RedeemTokens(v, nil, tok, u(100_000), 1_000_000, 2); err != nil {
		t.Fatal(err)
	}
	wantShares(t, "depositor after redeem", d.VaultShares, 700_000)
	wantShares(t, "wrapper after redeem", tok.VaultShares, 300_000)
	if d.NetDeposits != 700_000 || tok.NetDeposits != 300_000 {
		t.Fatalf("basis after redeem: %d / %d", d.NetDeposits, tok.NetDeposits)
	}
	if _, err := d.RedeemTokens(v, nil, tok, u(400_000), 1_000_000, 3); !errors.Is(err, ErrInsufficientVaultShares) {
		t.Fatalf("over-redeem: got %v", err)
	}

	if _, err := v.ApplyRebase(nil, 1_000); err != nil {
		t.Fatal(err)
	}
	if err := tok.CheckBase(v); !errors.Is(err, ErrSharesBaseMismatch) {
		t.Fatalf("wrapper after rebase: got %v", err)
	}
}

func TestFuel_AccrueAndResetSeason(t *testing.T) {
	v, _ := newTestVault(t, VaultParams{})
	alice := NewVaultDepositor(v, "alice", 0)
	bob := NewVaultDepositor(v, "bob", 0)
	if _, err := alice.Deposit(v, nil, 3_000_000, 0, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := bob.Deposit(v, nil, 1_000_000, 3_000_000, 0); err != nil {
		t.Fatal(err)
	}

	upd, err := v.UpdateCumulativeFuel(FuelReading{Counters: [FuelCategories]uint32{600, 400}}, 10)
	if err != nil || !upd.Applied {
		t.Fatalf("update: %+v, %v", upd, err)
	}
	wantShares(t, "per share delta", upd.PerShareDelta, 250_000_000_000_000)

	if owed, err := alice.UpdateFuel(v, 10); err != nil || owed != 750 {
		t.Fatalf("alice fuel: got %d, %v", owed, err)
	}
	if owed, err := bob.UpdateFuel(v, 10); err != nil || owed != 250 {
		t.Fatalf("bob fuel: got %d, %v", owed, err)
	}

	if upd, _ := v.UpdateCumulativeFuel(FuelReading{Counters: [FuelCategories]uint32{2000}}, 10); upd.Applied {
		t.Fatalf("reading at the same timestamp must be a no-op")
	}
	if _, err := v.UpdateCumulativeFuel(FuelReading{Counters: [FuelCategories]uint32{900}}, 11); !errors.Is(err, ErrFuelCounterRegressed) {
		t.Fatalf("regressed reading: got %v", err)
	}
	overflow := [FuelCategories]fpmath.U128{u(200)}
	if _, err := v.UpdateCumulativeFuel(FuelReading{Counters: [FuelCategories]uint32{1000}, Overflow: &overflow}, 12); err != nil {
		t.Fatal(err)
	}
	wantShares(t, "cumulative with overflow account", v.CumulativeFuel, 1_200)

	holders := []*Holding{&alice.Holding, &bob.Holding}
	if _, err := v.ResetFuelSeason(holders, 20); !errors.Is(err, ErrFuelSeasonNotFlushed) {
		t.Fatalf("reset with fuel outstanding: got %v", err)
	}
	if cleared := alice.ResetFuel(v, 20); cleared != 750 {
		t.Fatalf("alice cleared %d", cleared)
	}
	if cleared := bob.ResetFuel(v, 20); cleared != 250 {
		t.Fatalf("bob cleared %d", cleared)
	}
	cleared, err := v.ResetFuelSeason(holders, 20)
	if err != nil {
		t.Fatal(err)
	}
	wantShares(t, "season cleared", cleared, 1_200)
	if !v.CumulativeFuelPerShare.IsZero() || !alice.CumulativeFuelPerShareAmount.IsZero() {
		t.Fatalf("accumulators not zeroed: vault %s alice %s", v.CumulativeFuelPerShare, alice.CumulativeFuelPerShareAmount)
	}
}

func TestFeeUpdate_Timelock(t *testing.T) {
	v, _ := newTestVault(t, VaultParams{ManagementFee: 20_000, RedeemPeriod: 3_600})
	if MinFeeUpdateTimelock(OneDay) != 2*OneDay || MinFeeUpdateTimelock(3_600) != OneDay {
		t.Fatalf("minimum timelock")
	}
	f := NewFeeUpdate(v)

	if err := f.Propose(v, nil, 50_000, 0, 0, OneDay-1, 100); !errors.Is(err, ErrInvalidTimelockDuration) {
		t.Fatalf("short timelock: got %v", err)
	}
	if f.Pending {
		t.Fatalf("rejected proposal must not be recorded")
	}
	if err := f.Propose(v, nil, 50_000, 100_000, 10_000, OneDay, 100); err != nil {
		t.Fatal(err)
	}
	if v.FeeUpdateStatus != FeeUpdateStatusPending || f.Matured(100+OneDay-1) || !f.Matured(100+OneDay) {
		t.Fatalf("pending state: %+v, status %s", f, v.FeeUpdateStatus)
	}

	applied := f.ApplyTo(v)
	if applied.OldManagementFee != 20_000 || v.ManagementFee != 50_000 || v.ProfitShare != 100_000 || v.HurdleRate != 10_000 {
		t.Fatalf("applied: %+v, vault fee %d", applied, v.ManagementFee)
	}
	if f.Pending || f.Vault != v.ID || v.FeeUpdateStatus != FeeUpdateStatusNone {
		t.Fatalf("slot after apply: %+v, status %s", f, v.FeeUpdateStatus)
	}
}

func TestImmediateUpdate_OneWay(t *testing.T) {
	v, _ := newTestVault(t, VaultParams{ManagementFee: 20_000, HurdleRate: 5_000, RedeemPeriod: OneDay})
	higher, tokens := uint32(30_000), uint64(9_999)
	if err := v.ApplyImmediateUpdate(VaultUpdate{ManagementFee: &higher, MaxTokens: &tokens}); !errors.Is(err, ErrInvalidFeeUpdate) {
		t.Fatalf("raising the fee: got %v", err)
	}
	if v.MaxTokens != 0 {
		t.Fatalf("partial write on rejected update")
	}
	longer := 2 * OneDay
	if err := v.ApplyImmediateUpdate(VaultUpdate{RedeemPeriod: &longer}); !errors.Is(err, ErrInvalidVaultUpdate) {
		t.Fatalf("lengthening the redeem period: got %v", err)
	}

	lower, hurdle := uint32(10_000), uint32(6_000)
	if err := v.ApplyImmediateUpdate(VaultUpdate{ManagementFee: &lower, HurdleRate: &hurdle, MaxTokens: &tokens}); err != nil {
		t.Fatal(err)
	}
	if v.ManagementFee != 10_000 || v.HurdleRate != 6_000 || v.MaxTokens != 9_999 {
		t.Fatalf("update not applied: %+v", v)
	}
}

func TestBorrow_TrustedOnly(t *testing.T) {
	v, _ := newTestVault(t, VaultParams{})
	if err := v.Borrow(100, 1_000); !errors.Is(err, ErrVaultClassNotTrusted) {
		t.Fatalf("normal vault borrow: got %v", err)
	}
	if err := v.SetClass(VaultClassTrusted); err != nil {
		t.Fatal(err)
	}
	if err := v.Borrow(1_001, 1_000); !errors.Is(err, ErrInvalidBorrowAmount) {
		t.Fatalf("borrow above equity: got %v", err)
	}
	if err := v.Borrow(600, 1_000); err != nil {
		t.Fatal(err)
	}
	if eq, _ := v.EffectiveEquity(400); eq != 1_000 {
		t.Fatalf("effective equity: got %d", eq)
	}
	if err := v.SetClass(VaultClassNormal); !errors.Is(err, ErrOutstandingBorrow) {
		t.Fatalf("downgrade with borrow outstanding: got %v", err)
	}
	if err := v.Repay(700); !errors.Is(err, ErrInvalidRepayAmount) {
		t.Fatalf("over-repay: got %v", err)
	}
	if err := v.Repay(600); err != nil {
		t.Fatal(err)
	}
	if err := v.SetClass(VaultClassNormal); err != nil {
		t.Fatalf("downgrade after repay: %v", err)
	}
}

func TestMemoryStore_SnapshotRestore(t *testing.T) {
	s := NewMemoryStore()
	v, p := newTestVault(t, VaultParams{Protocol: "proto"})
	d := NewVaultDepositor(v, "alice", 0)
	if _, err := d.Deposit(v, p, 1_000, 0, 0); err != nil {
		t.Fatal(err)
	}
	s.PutVault(v)
	s.PutProtocol(p)
	s.PutDepositor(d)
	s.PutFeeUpdate(NewFeeUpdate(v))

	// Loads are copies until Put.
	loaded, _ := s.Vault(v.ID)
	loaded.Name = "changed"
	if again, _ := s.Vault(v.ID); again.Name != "alpha" {
		t.Fatalf("store leaked a reference")
	}

	snap := s.Snapshot()
	restored := NewMemoryStore()
	restored.Restore(snap)
	got, ok := restored.Depositor(d.Key())
	if !ok || got.VaultShares != d.VaultShares {
		t.Fatalf("restored depositor: %+v, %v", got, ok)
	}
	if _, ok := restored.FeeUpdate(v.ID); !ok {
		t.Fatalf("fee update slot lost")
	}
	if _, ok := restored.Protocol(v.ID); !ok {
		t.Fatalf("protocol lost")
	}
}

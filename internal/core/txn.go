package core

import (
	"fmt"

	"VaultLedger/internal/event"
	"VaultLedger/internal/ledger"
	"VaultLedger/internal/state"

	"github.com/google/uuid"
)

// stagedRecord is one audit record and the journals it produced.
type stagedRecord struct {
	record  event.Record
	batches []*ledger.Batch
}

// txn stages one command against copies of the vault aggregates. Ledger batches are
// applied to the live tracker as they are generated, so later generators see them, and
// reverted if the command fails.
type txn struct {
	store   state.Store
	tracker *ledger.BalanceTracker
	vaultID uuid.UUID
	ref     string
	ts      int64
	leg     int

	vault     *state.Vault
	protocol  *state.VaultProtocol
	newVault  bool
	feeUpdate *state.FeeUpdate
	feeLoaded bool
	feeDirty  bool
	feeDelete bool

	depositors map[string]*state.VaultDepositor
	tokenized  map[string]*state.TokenizedVaultDepositor

	// equity is the vault's effective equity as the command leaves it.
	equity     uint64
	settlement event.Settlement

	applied []*ledger.Batch
	pending []*ledger.Batch
	records []stagedRecord

	// observers run after commit; metrics must not count a rolled-back command.
	observers []func()
}

func newTxn(store state.Store, tracker *ledger.BalanceTracker, cmd event.Command) *txn {
	return &txn{
		store:      store,
		tracker:    tracker,
		vaultID:    cmd.VaultID(),
		ref:        cmd.IdempotencyKey(),
		ts:         cmd.Timestamp(),
		depositors: make(map[string]*state.VaultDepositor),
		tokenized:  make(map[string]*state.TokenizedVaultDepositor),
	}
}

// loadVault stages the vault and its protocol overlay.
func (tx *txn) loadVault() error {
	v, ok := tx.store.Vault(tx.vaultID)
	if !ok {
		return state.ErrVaultNotFound.With("vault %s", tx.vaultID)
	}
	tx.vault = v
	tx.equity = v.LastEquity
	if v.HasProtocol {
		p, ok := tx.store.Protocol(tx.vaultID)
		if !ok {
			return state.ErrProtocolNotFound.With("vault %s has no protocol overlay", tx.vaultID)
		}
		tx.protocol = p
	}
	return nil
}

func (tx *txn) createVault(v *state.Vault, p *state.VaultProtocol) {
	tx.vault = v
	tx.protocol = p
	tx.newVault = true
}

func (tx *txn) feeUpdateSlot() (*state.FeeUpdate, bool) {
	if !tx.feeLoaded {
		tx.feeLoaded = true
		if f, ok := tx.store.FeeUpdate(tx.vaultID); ok {
			tx.feeUpdate = f
		}
	}
	return tx.feeUpdate, tx.feeUpdate != nil
}

func (tx *txn) putFeeUpdate(f *state.FeeUpdate) {
	tx.feeLoaded = true
	tx.feeUpdate = f
	tx.feeDirty = true
	tx.feeDelete = false
}

func (tx *txn) deleteFeeUpdate() {
	tx.feeLoaded = true
	tx.feeUpdate = nil
	tx.feeDirty = false
	tx.feeDelete = true
}

// depositor stages a depositor brought up to the vault's current base.
func (tx *txn) depositor(authority string) (*state.VaultDepositor, bool, error) {
	if d, ok := tx.depositors[authority]; ok {
		// A rebase later in the same command moves the base under a staged holding.
		if err := d.Normalize(tx.vault); err != nil {
			return nil, false, err
		}
		return d, true, nil
	}
	d, ok := tx.store.Depositor(state.DepositorKey{Vault: tx.vaultID, Authority: authority})
	if !ok {
		return nil, false, nil
	}
	if err := d.Normalize(tx.vault); err != nil {
		return nil, false, err
	}
	tx.depositors[authority] = d
	return d, true, nil
}

func (tx *txn) mustDepositor(authority string) (*state.VaultDepositor, error) {
	d, ok, err := tx.depositor(authority)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, state.ErrDepositorNotFound.With("no depositor %s in vault %s", authority, tx.vaultID)
	}
	return d, nil
}

func (tx *txn) addDepositor(d *state.VaultDepositor) {
	tx.depositors[d.Authority] = d
}

// tokenizedDepositor stages a wrapper holder, rejecting one whose base diverged.
func (tx *txn) tokenizedDepositor(authority string) (*state.TokenizedVaultDepositor, error) {
	if t, ok := tx.tokenized[authority]; ok {
		if err := t.CheckBase(tx.vault); err != nil {
			return nil, err
		}
		return t, nil
	}
	t, ok := tx.store.Tokenized(state.DepositorKey{Vault: tx.vaultID, Authority: authority})
	if !ok {
		return nil, state.ErrTokenizedDepositorNotFound.With("no tokenized depositor %s in vault %s", authority, tx.vaultID)
	}
	if err := t.CheckBase(tx.vault); err != nil {
		return nil, err
	}
	tx.tokenized[authority] = t
	return t, nil
}

func (tx *txn) tokenizedExists(authority string) bool {
	if _, ok := tx.tokenized[authority]; ok {
		return true
	}
	_, ok := tx.store.Tokenized(state.DepositorKey{Vault: tx.vaultID, Authority: authority})
	return ok
}

func (tx *txn) addTokenized(t *state.TokenizedVaultDepositor) {
	tx.tokenized[t.Authority] = t
}

// tokenizedOutstanding reports whether any wrapper holder of the vault has shares.
func (tx *txn) tokenizedOutstanding() bool {
	for _, t := range tx.tokenized {
		if !t.VaultShares.IsZero() {
			return true
		}
	}
	for _, t := range tx.store.TokenizedDepositors(tx.vaultID) {
		if _, staged := tx.tokenized[t.Authority]; staged {
			continue
		}
		if !t.VaultShares.IsZero() {
			return true
		}
	}
	return false
}

// holdings stages every depositor and wrapper holder of the vault.
func (tx *txn) holdings() ([]*state.Holding, error) {
	var out []*state.Holding
	for _, d := range tx.store.Depositors(tx.vaultID) {
		staged, _, err := tx.depositor(d.Authority)
		if err != nil {
			return nil, err
		}
		out = append(out, &staged.Holding)
	}
	for _, t := range tx.store.TokenizedDepositors(tx.vaultID) {
		staged, err := tx.tokenizedDepositor(t.Authority)
		if err != nil {
			return nil, err
		}
		out = append(out, &staged.Holding)
	}
	return out, nil
}

func (tx *txn) afterCommit(fn func()) {
	tx.observers = append(tx.observers, fn)
}

func (tx *txn) notify() {
	for _, fn := range tx.observers {
		fn()
	}
	tx.observers = nil
}

func (tx *txn) nextLeg() int {
	leg := tx.leg
	tx.leg++
	return leg
}

// journal validates and applies a generated batch. A nil batch is a no-op.
func (tx *txn) journal(b *ledger.Batch, err error) error {
	if err != nil {
		return state.ErrLedgerRejected.Wrap(err)
	}
	if b == nil {
		return nil
	}
	if err := tx.tracker.ApplyBatch(b); err != nil {
		panic(fmt.Sprintf("FATAL: generated batch invalid: %v", err))
	}
	tx.applied = append(tx.applied, b)
	tx.pending = append(tx.pending, b)
	return nil
}

// emit stages a record together with the batches generated since the last one.
func (tx *txn) emit(rec event.Record) {
	tx.records = append(tx.records, stagedRecord{record: rec, batches: tx.pending})
	tx.pending = nil
}

func (tx *txn) rollback() {
	for i := len(tx.applied) - 1; i >= 0; i-- {
		tx.tracker.RevertBatch(tx.applied[i])
	}
	tx.applied = nil
}

// commit writes every staged aggregate back to the store.
func (tx *txn) commit() {
	if len(tx.pending) > 0 && len(tx.records) > 0 {
		last := &tx.records[len(tx.records)-1]
		last.batches = append(last.batches, tx.pending...)
		tx.pending = nil
	}
	if tx.vault == nil {
		return
	}
	tx.vault.LastEquity = tx.equity
	tx.store.PutVault(tx.vault)
	if tx.protocol != nil {
		tx.store.PutProtocol(tx.protocol)
	}
	switch {
	case tx.feeDelete:
		tx.store.DeleteFeeUpdate(tx.vaultID)
	case tx.feeDirty || tx.feeUpdate != nil:
		tx.store.PutFeeUpdate(tx.feeUpdate)
	}
	for _, d := range tx.depositors {
		tx.store.PutDepositor(d)
	}
	for _, t := range tx.tokenized {
		tx.store.PutTokenized(t)
	}
}

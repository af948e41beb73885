package core

import (
	"fmt"

	"VaultLedger/internal/ledger"
	"VaultLedger/internal/state"
)

// Snapshot is the engine's full in-memory state at a record boundary. Replaying the log
// from Sequence on top of it reproduces the live engine.
type Snapshot struct {
	Sequence        int64                 `json:"sequence"`
	StateHash       []byte                `json:"state_hash"`
	Store           *state.StoreSnapshot  `json:"store"`
	Balances        []ledger.BalanceEntry `json:"balances"`
	VaultTimestamps map[string]int64      `json:"vault_timestamps"`
	IdempotencyKeys []string              `json:"idempotency_keys"`
}

// CreateSnapshot captures the engine state. Must be called from the engine goroutine.
func (e *VaultEngine) CreateSnapshot() *Snapshot {
	hash := e.chain.head()
	return &Snapshot{
		Sequence:        e.sequence,
		StateHash:       hash[:],
		Store:           e.store.Snapshot(),
		Balances:        e.balanceTracker.Entries(),
		VaultTimestamps: e.clock.Export(),
		IdempotencyKeys: e.idempotency.Keys(),
	}
}

// RestoreFromSnapshot replaces the engine state with snap.
func (e *VaultEngine) RestoreFromSnapshot(snap *Snapshot) error {
	if len(snap.StateHash) != 32 {
		return fmt.Errorf("snapshot at seq %d: state hash has %d bytes", snap.Sequence, len(snap.StateHash))
	}
	if err := e.clock.Import(snap.VaultTimestamps); err != nil {
		return fmt.Errorf("snapshot at seq %d: %w", snap.Sequence, err)
	}

	var hash [32]byte
	copy(hash[:], snap.StateHash)
	e.chain.reset(hash)
	e.sequence = snap.Sequence
	if snap.Store != nil {
		e.store.Restore(snap.Store)
	}
	e.balanceTracker.Restore(snap.Balances)
	e.idempotency.Warm(snap.IdempotencyKeys)

	for _, v := range e.store.Vaults() {
		if err := e.validator.ValidateVaultAccounts(v.ID, v.LastEquity); err != nil {
			return fmt.Errorf("snapshot at seq %d: %w", snap.Sequence, err)
		}
	}
	return e.validator.ValidateGlobalBalance()
}

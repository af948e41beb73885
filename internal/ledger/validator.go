package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateGlobalBalance verifies the ledger is zero-sum per asset
func (v *InvariantValidator) ValidateGlobalBalance() error {
	for asset, total := range v.tracker.ComputeGlobalBalance() {
		if total != 0 {
			return fmt.Errorf("global balance for %s is non-zero: %d", asset, total)
		}
	}
	return nil
}

// ValidateVaultAccounts checks that custody and borrowed balances never go negative and
// that together they equal the vault's effective equity.
func (v *InvariantValidator) ValidateVaultAccounts(vault uuid.UUID, effectiveEquity uint64) error {
	custody := CustodyAccount(vault)
	borrowed := BorrowedAccount(vault)
	if err := v.tracker.ValidateNonNegative(custody); err != nil {
		return err
	}
	if err := v.tracker.ValidateNonNegative(borrowed); err != nil {
		return err
	}
	held := v.tracker.GetBalance(custody) + v.tracker.GetBalance(borrowed)
	if uint64(held) != effectiveEquity {
		return fmt.Errorf("vault %s ledger holds %d, effective equity %d", vault, held, effectiveEquity)
	}
	return nil
}

// ValidateWrapperSupply checks that outstanding wrapper tokens equal the tokenized shares.
func (v *InvariantValidator) ValidateWrapperSupply(vault uuid.UUID, wrapper string, tokenizedShares int64) error {
	supply := v.tracker.WrapperSupply(WrapperMintAccount(vault, wrapper))
	if supply != tokenizedShares {
		return fmt.Errorf("wrapper %s/%s supply %d, tokenized shares %d", vault, wrapper, supply, tokenizedShares)
	}
	return nil
}

// ValidateHolderNonNegative checks a holder's wrapper balance
func (v *InvariantValidator) ValidateHolderNonNegative(vault uuid.UUID, wrapper, owner string) error {
	return v.tracker.ValidateNonNegative(WrapperBalanceAccount(vault, wrapper, owner))
}

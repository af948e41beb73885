package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeVault AccountScope = iota
	AccountScopeHolder
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// Vault sub-types
	SubTypeCustody AccountSubType = iota
	SubTypeBorrowed
	SubTypeWrapperMint

	// Holder sub-types
	SubTypeWrapperBalance

	// External sub-types
	SubTypeWallet
	SubTypeVenuePnL
)

// AssetKind separates the vault's base asset from its wrapper token.
type AssetKind uint8

const (
	AssetBase AssetKind = iota + 1
	AssetWrapper
)

func (a AssetKind) String() string {
	switch a {
	case AssetBase:
		return "base"
	case AssetWrapper:
		return "wrapper"
	default:
		return "unknown"
	}
}

// AccountKey is the in-memory key for balance tracking. Owner is the authority for
// holder and wallet accounts and the wrapper authority for mint accounts.
type AccountKey struct {
	Scope   AccountScope
	Vault   uuid.UUID
	Owner   string
	SubType AccountSubType
	Asset   AssetKind
}

// CustodyAccount holds base asset deployed on the venue for the vault.
func CustodyAccount(vault uuid.UUID) AccountKey {
	return AccountKey{Scope: AccountScopeVault, Vault: vault, SubType: SubTypeCustody, Asset: AssetBase}
}

// BorrowedAccount holds base asset the manager has taken off the venue.
func BorrowedAccount(vault uuid.UUID) AccountKey {
	return AccountKey{Scope: AccountScopeVault, Vault: vault, SubType: SubTypeBorrowed, Asset: AssetBase}
}

// WrapperMintAccount is credited on every wrapper mint; its negated balance is the supply.
func WrapperMintAccount(vault uuid.UUID, wrapper string) AccountKey {
	return AccountKey{Scope: AccountScopeVault, Vault: vault, Owner: wrapper, SubType: SubTypeWrapperMint, Asset: AssetWrapper}
}

// WrapperBalanceAccount is a holder's wrapper token balance.
func WrapperBalanceAccount(vault uuid.UUID, wrapper, owner string) AccountKey {
	return AccountKey{Scope: AccountScopeHolder, Vault: vault, Owner: wrapper + "/" + owner, SubType: SubTypeWrapperBalance, Asset: AssetWrapper}
}

// WalletAccount is the outside-world counterparty of an owner's deposits and withdrawals.
func WalletAccount(vault uuid.UUID, owner string) AccountKey {
	return AccountKey{Scope: AccountScopeExternal, Vault: vault, Owner: owner, SubType: SubTypeWallet, Asset: AssetBase}
}

// VenuePnLAccount absorbs equity changes reported by the venue.
func VenuePnLAccount(vault uuid.UUID) AccountKey {
	return AccountKey{Scope: AccountScopeExternal, Vault: vault, SubType: SubTypeVenuePnL, Asset: AssetBase}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeVault:
		if k.Owner != "" {
			return fmt.Sprintf("vault:%s:%s:%s:%s", k.Vault, k.subTypeName(), k.Owner, k.Asset)
		}
		return fmt.Sprintf("vault:%s:%s:%s", k.Vault, k.subTypeName(), k.Asset)
	case AccountScopeHolder:
		return fmt.Sprintf("holder:%s:%s:%s:%s", k.Vault, k.Owner, k.subTypeName(), k.Asset)
	case AccountScopeExternal:
		if k.Owner != "" {
			return fmt.Sprintf("external:%s:%s:%s:%s", k.Vault, k.Owner, k.subTypeName(), k.Asset)
		}
		return fmt.Sprintf("external:%s:%s:%s", k.Vault, k.subTypeName(), k.Asset)
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeCustody:
		return "custody"
	case SubTypeBorrowed:
		return "borrowed"
	case SubTypeWrapperMint:
		return "wrapper_mint"
	case SubTypeWrapperBalance:
		return "wrapper_balance"
	case SubTypeWallet:
		return "wallet"
	case SubTypeVenuePnL:
		return "venue_pnl"
	default:
		return "unknown"
	}
}

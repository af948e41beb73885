package event

import (
	"VaultLedger/internal/state"
)

// Valuation carries the externally resolved inputs a priced command needs. VaultEquity
// is the venue-reported equity; the engine adds borrowed value itself. FuelReading is
// optional and, when present, is folded into the vault before the command runs.
type Valuation struct {
	VaultEquity uint64             `json:"vault_equity"`
	FuelReading *state.FuelReading `json:"fuel_reading,omitempty"`
}

func (v Valuation) Equity() uint64           { return v.VaultEquity }
func (v Valuation) Fuel() *state.FuelReading { return v.FuelReading }

// Priced is implemented by commands that value shares.
type Priced interface {
	Command
	Equity() uint64
	Fuel() *state.FuelReading
}

// InitializeVault creates a vault. The signer becomes its manager.
type InitializeVault struct {
	Header
	Params state.VaultParams `json:"params"`
}

func (c *InitializeVault) CommandType() CommandType { return CommandTypeInitializeVault }

// ManagerUpdateVault applies an immediate update. Fees can only be lowered here; raising
// them goes through ManagerUpdateFees.
type ManagerUpdateVault struct {
	Header
	Valuation
	Update state.VaultUpdate `json:"update"`
}

func (c *ManagerUpdateVault) CommandType() CommandType { return CommandTypeManagerUpdateVault }

// ManagerUpdateFees proposes a timelocked fee change.
type ManagerUpdateFees struct {
	Header
	ManagementFee    uint32 `json:"management_fee"`
	ProfitShare      uint32 `json:"profit_share"`
	HurdleRate       uint32 `json:"hurdle_rate"`
	TimelockDuration int64  `json:"timelock_duration"`
}

func (c *ManagerUpdateFees) CommandType() CommandType { return CommandTypeManagerUpdateFees }

type ManagerCancelFeeUpdate struct {
	Header
}

func (c *ManagerCancelFeeUpdate) CommandType() CommandType { return CommandTypeManagerCancelFeeUpdate }

// ApplyFeeUpdate is the permissionless crank that materializes a matured fee update.
// It is a no-op until the timelock has ended.
type ApplyFeeUpdate struct {
	Header
	Valuation
}

func (c *ApplyFeeUpdate) CommandType() CommandType { return CommandTypeApplyFeeUpdate }

type AdminInitFeeUpdate struct {
	Header
}

func (c *AdminInitFeeUpdate) CommandType() CommandType { return CommandTypeAdminInitFeeUpdate }

type AdminDeleteFeeUpdate struct {
	Header
}

func (c *AdminDeleteFeeUpdate) CommandType() CommandType { return CommandTypeAdminDeleteFeeUpdate }

type ManagerUpdateVaultManager struct {
	Header
	NewManager string `json:"new_manager"`
}

func (c *ManagerUpdateVaultManager) CommandType() CommandType {
	return CommandTypeManagerUpdateVaultManager
}

// UpdateDelegate sets the identity allowed to trade the vault's venue account.
type UpdateDelegate struct {
	Header
	Delegate string `json:"delegate"`
}

func (c *UpdateDelegate) CommandType() CommandType { return CommandTypeUpdateDelegate }

type AdminUpdateVaultClass struct {
	Header
	Class state.VaultClass `json:"vault_class"`
}

func (c *AdminUpdateVaultClass) CommandType() CommandType { return CommandTypeAdminUpdateVaultClass }

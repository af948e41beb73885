package event

import (
	"VaultLedger/internal/state"
)

// UpdateVaultFuel folds the venue's raw fuel counters into the vault accumulator.
// Permissionless.
type UpdateVaultFuel struct {
	Header
	Reading state.FuelReading `json:"fuel_reading"`
}

func (c *UpdateVaultFuel) CommandType() CommandType { return CommandTypeUpdateVaultFuel }

// UpdateDepositorFuel credits one holder with fuel accrued since its baseline. Reading,
// when present, is applied to the vault first. Permissionless.
type UpdateDepositorFuel struct {
	Header
	Reading   *state.FuelReading `json:"fuel_reading,omitempty"`
	Authority string             `json:"authority"`
	Tokenized bool               `json:"tokenized"`
}

func (c *UpdateDepositorFuel) CommandType() CommandType { return CommandTypeUpdateDepositorFuel }

// UpdateDepositorFuelBatch credits a chunk of plain depositors and wrapper holders.
type UpdateDepositorFuelBatch struct {
	Header
	Reading     *state.FuelReading `json:"fuel_reading,omitempty"`
	Authorities []string           `json:"authorities"`
	Tokenized   []string           `json:"tokenized,omitempty"`
}

func (c *UpdateDepositorFuelBatch) CommandType() CommandType {
	return CommandTypeUpdateDepositorFuelBatch
}

// ResetFuelSeason zeroes one holder's fuel and baseline. Admin only.
type ResetFuelSeason struct {
	Header
	Authority string `json:"authority"`
	Tokenized bool   `json:"tokenized"`
}

func (c *ResetFuelSeason) CommandType() CommandType { return CommandTypeResetFuelSeason }

// ResetFuelSeasonBatch resets a chunk of holders. Holders already flushed are skipped.
type ResetFuelSeasonBatch struct {
	Header
	Authorities []string `json:"authorities"`
	Tokenized   []string `json:"tokenized,omitempty"`
}

func (c *ResetFuelSeasonBatch) CommandType() CommandType { return CommandTypeResetFuelSeasonBatch }

// ResetVaultFuelSeason zeroes the vault accumulator once every holder is flushed.
type ResetVaultFuelSeason struct {
	Header
}

func (c *ResetVaultFuelSeason) CommandType() CommandType { return CommandTypeResetVaultFuelSeason }

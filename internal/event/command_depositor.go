package event

import (
	"VaultLedger/internal/state"
)

// InitializeVaultDepositor creates an empty depositor record. On a permissioned vault
// the manager must sign; otherwise the signer must be the authority.
type InitializeVaultDepositor struct {
	Header
	Authority string `json:"authority"`
}

func (c *InitializeVaultDepositor) CommandType() CommandType {
	return CommandTypeInitializeVaultDepositor
}

// Deposit adds base asset for the signer. The depositor record is created on first
// deposit unless the vault is permissioned.
type Deposit struct {
	Header
	Valuation
	Amount uint64 `json:"amount"`
}

func (c *Deposit) CommandType() CommandType { return CommandTypeDeposit }

type RequestWithdraw struct {
	Header
	Valuation
	Unit   state.WithdrawUnit `json:"withdraw_unit"`
	Amount uint64             `json:"amount"`
}

func (c *RequestWithdraw) CommandType() CommandType { return CommandTypeRequestWithdraw }

// CancelRequestWithdraw may be signed by the depositor, the manager or the admin.
type CancelRequestWithdraw struct {
	Header
	Authority string `json:"authority"`
}

func (c *CancelRequestWithdraw) CommandType() CommandType { return CommandTypeCancelRequestWithdraw }

type Withdraw struct {
	Header
	Valuation
}

func (c *Withdraw) CommandType() CommandType { return CommandTypeWithdraw }

// ForceWithdraw executes a depositor's matured request on their behalf.
type ForceWithdraw struct {
	Header
	Valuation
	Authority string `json:"authority"`
}

func (c *ForceWithdraw) CommandType() CommandType { return CommandTypeForceWithdraw }

// ForceWithdrawBatch executes every listed depositor whose request has matured. Others
// are skipped, so a retried chunk never withdraws twice.
type ForceWithdrawBatch struct {
	Header
	Valuation
	Authorities []string `json:"authorities"`
}

func (c *ForceWithdrawBatch) CommandType() CommandType { return CommandTypeForceWithdrawBatch }

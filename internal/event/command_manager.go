package event

import (
	"VaultLedger/internal/state"
)

type ManagerDeposit struct {
	Header
	Valuation
	Amount uint64 `json:"amount"`
}

func (c *ManagerDeposit) CommandType() CommandType { return CommandTypeManagerDeposit }

type ManagerRequestWithdraw struct {
	Header
	Valuation
	Unit   state.WithdrawUnit `json:"withdraw_unit"`
	Amount uint64             `json:"amount"`
}

func (c *ManagerRequestWithdraw) CommandType() CommandType {
	return CommandTypeManagerRequestWithdraw
}

type ManagerCancelWithdrawRequest struct {
	Header
}

func (c *ManagerCancelWithdrawRequest) CommandType() CommandType {
	return CommandTypeManagerCancelWithdrawRequest
}

type ManagerWithdraw struct {
	Header
	Valuation
}

func (c *ManagerWithdraw) CommandType() CommandType { return CommandTypeManagerWithdraw }

// ManagerBorrow takes collateral off the venue account of a trusted vault.
type ManagerBorrow struct {
	Header
	Valuation
	Amount uint64 `json:"amount"`
}

func (c *ManagerBorrow) CommandType() CommandType { return CommandTypeManagerBorrow }

type ManagerRepay struct {
	Header
	Valuation
	Amount uint64 `json:"amount"`
}

func (c *ManagerRepay) CommandType() CommandType { return CommandTypeManagerRepay }

// ManagerUpdateBorrow marks the borrowed position to its current value.
type ManagerUpdateBorrow struct {
	Header
	Valuation
	NewBorrowValue uint64 `json:"new_borrow_value"`
}

func (c *ManagerUpdateBorrow) CommandType() CommandType { return CommandTypeManagerUpdateBorrow }

package event

import (
	"VaultLedger/internal/state"
)

type ProtocolRequestWithdraw struct {
	Header
	Valuation
	Unit   state.WithdrawUnit `json:"withdraw_unit"`
	Amount uint64             `json:"amount"`
}

func (c *ProtocolRequestWithdraw) CommandType() CommandType {
	return CommandTypeProtocolRequestWithdraw
}

type ProtocolCancelWithdrawRequest struct {
	Header
}

func (c *ProtocolCancelWithdrawRequest) CommandType() CommandType {
	return CommandTypeProtocolCancelWithdrawRequest
}

type ProtocolWithdraw struct {
	Header
	Valuation
}

func (c *ProtocolWithdraw) CommandType() CommandType { return CommandTypeProtocolWithdraw }

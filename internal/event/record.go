package event

import (
	fpmath "VaultLedger/internal/math"
	"VaultLedger/internal/state"

	"github.com/google/uuid"
)

// RecordType discriminator for audit records
type RecordType int32

const (
	RecordTypeUnknown RecordType = iota
	RecordTypeVaultDepositor
	RecordTypeFeeUpdate
	RecordTypeVault
	RecordTypeFuel
	RecordTypeBorrow
	RecordTypeTokenization
)

func (rt RecordType) String() string {
	switch rt {
	case RecordTypeVaultDepositor:
		return "VaultDepositorRecord"
	case RecordTypeFeeUpdate:
		return "FeeUpdateRecord"
	case RecordTypeVault:
		return "VaultRecord"
	case RecordTypeFuel:
		return "FuelRecord"
	case RecordTypeBorrow:
		return "BorrowRecord"
	case RecordTypeTokenization:
		return "TokenizationRecord"
	default:
		return "Unknown"
	}
}

// Record is an audit record emitted once per successful state change.
type Record interface {
	RecordType() RecordType
}

// Settlement describes the housekeeping the engine performed before a priced command:
// the effective equity used, any rebase, any matured fee update (with the fee accrued
// at the old rate) and any fuel reading.
type Settlement struct {
	VaultEquityBefore uint64             `json:"vault_equity_before"`
	RebaseExponent    uint32             `json:"rebase_exponent,omitempty"`
	RebaseDust        *fpmath.U128       `json:"rebase_dust,omitempty"`
	FeeUpdateApplied  *state.AppliedFees `json:"fee_update_applied,omitempty"`
	FeeAccrued        *state.FeeCharge   `json:"fee_accrued,omitempty"`
	FuelUpdate        *state.FuelUpdate  `json:"fuel_update,omitempty"`
}

// DepositorAction is the action kind of a VaultDepositorRecord.
type DepositorAction uint8

const (
	DepositorActionInitialize DepositorAction = iota
	DepositorActionDeposit
	DepositorActionWithdrawRequest
	DepositorActionCancelWithdrawRequest
	DepositorActionWithdraw
	DepositorActionForceWithdraw
	DepositorActionManagerDeposit
	DepositorActionManagerWithdrawRequest
	DepositorActionManagerCancelWithdrawRequest
	DepositorActionManagerWithdraw
	DepositorActionProtocolWithdrawRequest
	DepositorActionProtocolCancelWithdrawRequest
	DepositorActionProtocolWithdraw
)

func (a DepositorAction) String() string {
	switch a {
	case DepositorActionInitialize:
		return "initialize"
	case DepositorActionDeposit:
		return "deposit"
	case DepositorActionWithdrawRequest:
		return "withdraw_request"
	case DepositorActionCancelWithdrawRequest:
		return "cancel_withdraw_request"
	case DepositorActionWithdraw:
		return "withdraw"
	case DepositorActionForceWithdraw:
		return "force_withdraw"
	case DepositorActionManagerDeposit:
		return "manager_deposit"
	case DepositorActionManagerWithdrawRequest:
		return "manager_withdraw_request"
	case DepositorActionManagerCancelWithdrawRequest:
		return "manager_cancel_withdraw_request"
	case DepositorActionManagerWithdraw:
		return "manager_withdraw"
	case DepositorActionProtocolWithdrawRequest:
		return "protocol_withdraw_request"
	case DepositorActionProtocolCancelWithdrawRequest:
		return "protocol_cancel_withdraw_request"
	case DepositorActionProtocolWithdraw:
		return "protocol_withdraw"
	default:
		return "unknown"
	}
}

// VaultDepositorRecord is emitted for every share movement of a depositor, the manager
// stake or the protocol stake. Authority names whichever of them acted.
type VaultDepositorRecord struct {
	Ts        int64           `json:"ts"`
	Vault     uuid.UUID       `json:"vault"`
	Authority string          `json:"authority"`
	Action    DepositorAction `json:"action"`
	Amount    uint64          `json:"amount"`

	SharesBase             uint32      `json:"shares_base"`
	VaultSharesBefore      fpmath.U128 `json:"vault_shares_before"`
	VaultSharesAfter       fpmath.U128 `json:"vault_shares_after"`
	TotalVaultSharesBefore fpmath.U128 `json:"total_vault_shares_before"`
	TotalVaultSharesAfter  fpmath.U128 `json:"total_vault_shares_after"`
	UserVaultSharesBefore  fpmath.U128 `json:"user_vault_shares_before"`
	UserVaultSharesAfter   fpmath.U128 `json:"user_vault_shares_after"`

	WithdrawRequest state.WithdrawRequest `json:"withdraw_request"`

	ProfitShare         uint64      `json:"profit_share"`
	ProtocolProfitShare uint64      `json:"protocol_profit_share"`
	ManagementFee       uint64      `json:"management_fee"`
	ManagementFeeShares fpmath.U128 `json:"management_fee_shares"`
	ProtocolFee         uint64      `json:"protocol_fee"`
	ProtocolFeeShares   fpmath.U128 `json:"protocol_fee_shares"`

	Settlement
}

func (r *VaultDepositorRecord) RecordType() RecordType { return RecordTypeVaultDepositor }

// SetCharges copies the fee and profit share of an action into the record.
func (r *VaultDepositorRecord) SetCharges(res state.ActionResult) {
	r.ProfitShare = res.ProfitShare.ManagerAmount
	r.ProtocolProfitShare = res.ProfitShare.ProtocolAmount
	r.ManagementFee = res.Fee.ManagementFee
	r.ManagementFeeShares = res.Fee.ManagementFeeShares
	r.ProtocolFee = res.Fee.ProtocolFee
	r.ProtocolFeeShares = res.Fee.ProtocolFeeShares
}

// FeeUpdateAction is the action kind of a FeeUpdateRecord.
type FeeUpdateAction uint8

const (
	FeeUpdateActionInit FeeUpdateAction = iota
	FeeUpdateActionPropose
	FeeUpdateActionCancel
	FeeUpdateActionApply
	FeeUpdateActionDelete
)

func (a FeeUpdateAction) String() string {
	switch a {
	case FeeUpdateActionInit:
		return "init"
	case FeeUpdateActionPropose:
		return "propose"
	case FeeUpdateActionCancel:
		return "cancel"
	case FeeUpdateActionApply:
		return "apply"
	case FeeUpdateActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

type FeeUpdateRecord struct {
	Ts     int64           `json:"ts"`
	Vault  uuid.UUID       `json:"vault"`
	Action FeeUpdateAction `json:"action"`

	TimelockEndTs int64             `json:"timelock_end_ts"`
	Fees          state.AppliedFees `json:"fees"`
	Fee           state.FeeCharge   `json:"fee_charge"`

	Settlement
}

func (r *FeeUpdateRecord) RecordType() RecordType { return RecordTypeFeeUpdate }

// VaultAction is the action kind of a VaultRecord.
type VaultAction uint8

const (
	VaultActionInitialize VaultAction = iota
	VaultActionUpdate
	VaultActionManagerChange
	VaultActionDelegateChange
	VaultActionClassChange
)

func (a VaultAction) String() string {
	switch a {
	case VaultActionInitialize:
		return "initialize"
	case VaultActionUpdate:
		return "update"
	case VaultActionManagerChange:
		return "manager_change"
	case VaultActionDelegateChange:
		return "delegate_change"
	case VaultActionClassChange:
		return "class_change"
	default:
		return "unknown"
	}
}

// VaultRecord captures vault configuration after an administrative change.
type VaultRecord struct {
	Ts     int64       `json:"ts"`
	Vault  uuid.UUID   `json:"vault"`
	Action VaultAction `json:"action"`

	Manager          string           `json:"manager"`
	Delegate         string           `json:"delegate"`
	VaultClass       state.VaultClass `json:"vault_class"`
	ManagementFee    uint32           `json:"management_fee"`
	ProfitShare      uint32           `json:"profit_share"`
	HurdleRate       uint32           `json:"hurdle_rate"`
	RedeemPeriod     int64            `json:"redeem_period"`
	MaxTokens        uint64           `json:"max_tokens"`
	MinDepositAmount uint64           `json:"min_deposit_amount"`
	Permissioned     bool             `json:"permissioned"`

	Fee state.FeeCharge `json:"fee_charge"`

	Settlement
}

func (r *VaultRecord) RecordType() RecordType { return RecordTypeVault }

// FillFromVault copies the configuration fields of v.
func (r *VaultRecord) FillFromVault(v *state.Vault) {
	r.Manager = v.Manager
	r.Delegate = v.Delegate
	r.VaultClass = v.VaultClass
	r.ManagementFee = v.ManagementFee
	r.ProfitShare = v.ProfitShare
	r.HurdleRate = v.HurdleRate
	r.RedeemPeriod = v.RedeemPeriod
	r.MaxTokens = v.MaxTokens
	r.MinDepositAmount = v.MinDepositAmount
	r.Permissioned = v.Permissioned
}

// FuelAction is the action kind of a FuelRecord.
type FuelAction uint8

const (
	FuelActionVaultUpdate FuelAction = iota
	FuelActionDepositorUpdate
	FuelActionDepositorReset
	FuelActionVaultReset
)

func (a FuelAction) String() string {
	switch a {
	case FuelActionVaultUpdate:
		return "vault_update"
	case FuelActionDepositorUpdate:
		return "depositor_update"
	case FuelActionDepositorReset:
		return "depositor_reset"
	case FuelActionVaultReset:
		return "vault_reset"
	default:
		return "unknown"
	}
}

// FuelRecord is emitted by fuel cranks. Authority is empty for vault-level actions.
type FuelRecord struct {
	Ts        int64      `json:"ts"`
	Vault     uuid.UUID  `json:"vault"`
	Authority string     `json:"authority,omitempty"`
	Tokenized bool       `json:"tokenized,omitempty"`
	Action    FuelAction `json:"action"`

	Delta                  fpmath.U128 `json:"delta"`
	PerShareDelta          fpmath.U128 `json:"per_share_delta"`
	CumulativeFuel         fpmath.U128 `json:"cumulative_fuel"`
	CumulativeFuelPerShare fpmath.U128 `json:"cumulative_fuel_per_share"`
	FuelCredited           uint64      `json:"fuel_credited"`
	FuelCleared            fpmath.U128 `json:"fuel_cleared"`
	FuelAmountAfter        uint64      `json:"fuel_amount_after"`
	SharesBase             uint32      `json:"shares_base"`
}

func (r *FuelRecord) RecordType() RecordType { return RecordTypeFuel }

// BorrowAction is the action kind of a BorrowRecord.
type BorrowAction uint8

const (
	BorrowActionBorrow BorrowAction = iota
	BorrowActionRepay
	BorrowActionUpdate
)

func (a BorrowAction) String() string {
	switch a {
	case BorrowActionBorrow:
		return "borrow"
	case BorrowActionRepay:
		return "repay"
	case BorrowActionUpdate:
		return "update"
	default:
		return "unknown"
	}
}

type BorrowRecord struct {
	Ts     int64        `json:"ts"`
	Vault  uuid.UUID    `json:"vault"`
	Action BorrowAction `json:"action"`

	Amount         uint64 `json:"amount"`
	BorrowedBefore uint64 `json:"borrowed_before"`
	BorrowedAfter  uint64 `json:"borrowed_after"`

	Settlement
}

func (r *BorrowRecord) RecordType() RecordType { return RecordTypeBorrow }

// TokenizationAction is the action kind of a TokenizationRecord.
type TokenizationAction uint8

const (
	TokenizationActionInitialize TokenizationAction = iota
	TokenizationActionTokenize
	TokenizationActionRedeem
)

func (a TokenizationAction) String() string {
	switch a {
	case TokenizationActionInitialize:
		return "initialize"
	case TokenizationActionTokenize:
		return "tokenize"
	case TokenizationActionRedeem:
		return "redeem"
	default:
		return "unknown"
	}
}

// TokenizationRecord is emitted when shares move in or out of a wrapper holder. Wrapper
// supply always equals the wrapper holder's shares.
type TokenizationRecord struct {
	Ts        int64              `json:"ts"`
	Vault     uuid.UUID          `json:"vault"`
	Authority string             `json:"authority"`
	Wrapper   string             `json:"wrapper"`
	Action    TokenizationAction `json:"action"`

	Shares               fpmath.U128 `json:"shares"`
	Amount               uint64      `json:"amount"`
	SharesBase           uint32      `json:"shares_base"`
	DepositorSharesAfter fpmath.U128 `json:"depositor_shares_after"`
	WrapperSupplyBefore  fpmath.U128 `json:"wrapper_supply_before"`
	WrapperSupplyAfter   fpmath.U128 `json:"wrapper_supply_after"`

	ProfitShare         uint64 `json:"profit_share"`
	ProtocolProfitShare uint64 `json:"protocol_profit_share"`
	ManagementFee       uint64 `json:"management_fee"`
	ProtocolFee         uint64 `json:"protocol_fee"`

	Settlement
}

func (r *TokenizationRecord) RecordType() RecordType { return RecordTypeTokenization }

package event

import (
	"github.com/google/uuid"
)

// CommandType discriminator for command payloads
type CommandType int32

const (
	CommandTypeUnknown CommandType = iota
	CommandTypeInitializeVault
	CommandTypeInitializeVaultDepositor
	CommandTypeDeposit
	CommandTypeRequestWithdraw
	CommandTypeCancelRequestWithdraw
	CommandTypeWithdraw
	CommandTypeForceWithdraw
	CommandTypeForceWithdrawBatch
	CommandTypeManagerUpdateVault
	CommandTypeManagerUpdateFees
	CommandTypeManagerCancelFeeUpdate
	CommandTypeApplyFeeUpdate
	CommandTypeAdminInitFeeUpdate
	CommandTypeAdminDeleteFeeUpdate
	CommandTypeManagerUpdateVaultManager
	CommandTypeUpdateDelegate
	CommandTypeUpdateVaultFuel
	CommandTypeUpdateDepositorFuel
	CommandTypeUpdateDepositorFuelBatch
	CommandTypeResetFuelSeason
	CommandTypeResetFuelSeasonBatch
	CommandTypeResetVaultFuelSeason
	CommandTypeInitializeTokenizedVaultDepositor
	CommandTypeTokenizeShares
	CommandTypeRedeemTokens
	CommandTypeManagerBorrow
	CommandTypeManagerRepay
	CommandTypeManagerUpdateBorrow
	CommandTypeAdminUpdateVaultClass
	CommandTypeProtocolRequestWithdraw
	CommandTypeProtocolCancelWithdrawRequest
	CommandTypeProtocolWithdraw
	CommandTypeManagerDeposit
	CommandTypeManagerRequestWithdraw
	CommandTypeManagerCancelWithdrawRequest
	CommandTypeManagerWithdraw
)

var commandTypeNames = map[CommandType]string{
	CommandTypeInitializeVault:                   "InitializeVault",
	CommandTypeInitializeVaultDepositor:          "InitializeVaultDepositor",
	CommandTypeDeposit:                           "Deposit",
	CommandTypeRequestWithdraw:                   "RequestWithdraw",
	CommandTypeCancelRequestWithdraw:             "CancelRequestWithdraw",
	CommandTypeWithdraw:                          "Withdraw",
	CommandTypeForceWithdraw:                     "ForceWithdraw",
	CommandTypeForceWithdrawBatch:                "ForceWithdrawBatch",
	CommandTypeManagerUpdateVault:                "ManagerUpdateVault",
	CommandTypeManagerUpdateFees:                 "ManagerUpdateFees",
	CommandTypeManagerCancelFeeUpdate:            "ManagerCancelFeeUpdate",
	CommandTypeApplyFeeUpdate:                    "ApplyFeeUpdate",
	CommandTypeAdminInitFeeUpdate:                "AdminInitFeeUpdate",
	CommandTypeAdminDeleteFeeUpdate:              "AdminDeleteFeeUpdate",
	CommandTypeManagerUpdateVaultManager:         "ManagerUpdateVaultManager",
	CommandTypeUpdateDelegate:                    "UpdateDelegate",
	CommandTypeUpdateVaultFuel:                   "UpdateVaultFuel",
	CommandTypeUpdateDepositorFuel:               "UpdateDepositorFuel",
	CommandTypeUpdateDepositorFuelBatch:          "UpdateDepositorFuelBatch",
	CommandTypeResetFuelSeason:                   "ResetFuelSeason",
	CommandTypeResetFuelSeasonBatch:              "ResetFuelSeasonBatch",
	CommandTypeResetVaultFuelSeason:              "ResetVaultFuelSeason",
	CommandTypeInitializeTokenizedVaultDepositor: "InitializeTokenizedVaultDepositor",
	CommandTypeTokenizeShares:                    "TokenizeShares",
	CommandTypeRedeemTokens:                      "RedeemTokens",
	CommandTypeManagerBorrow:                     "ManagerBorrow",
	CommandTypeManagerRepay:                      "ManagerRepay",
	CommandTypeManagerUpdateBorrow:               "ManagerUpdateBorrow",
	CommandTypeAdminUpdateVaultClass:             "AdminUpdateVaultClass",
	CommandTypeProtocolRequestWithdraw:           "ProtocolRequestWithdraw",
	CommandTypeProtocolCancelWithdrawRequest:     "ProtocolCancelWithdrawRequest",
	CommandTypeProtocolWithdraw:                  "ProtocolWithdraw",
	CommandTypeManagerDeposit:                    "ManagerDeposit",
	CommandTypeManagerRequestWithdraw:            "ManagerRequestWithdraw",
	CommandTypeManagerCancelWithdrawRequest:      "ManagerCancelWithdrawRequest",
	CommandTypeManagerWithdraw:                   "ManagerWithdraw",
}

func (ct CommandType) String() string {
	if name, ok := commandTypeNames[ct]; ok {
		return name
	}
	return "Unknown"
}

// ParseCommandType is the inverse of String.
func ParseCommandType(name string) (CommandType, bool) {
	for ct, n := range commandTypeNames {
		if n == name {
			return ct, true
		}
	}
	return CommandTypeUnknown, false
}

// Command is the interface all command payloads must implement
type Command interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// CommandType returns the discriminator
	CommandType() CommandType

	// VaultID returns the vault the command acts on
	VaultID() uuid.UUID

	// Signer returns the authority that signed the command
	Signer() string

	// Timestamp returns the command time in unix seconds
	Timestamp() int64
}

// Header carries the fields common to every command.
type Header struct {
	RequestID uuid.UUID `json:"request_id"`
	Vault     uuid.UUID `json:"vault_id"`
	SignedBy  string    `json:"signer"`
	Ts        int64     `json:"timestamp"`
}

func (h Header) IdempotencyKey() string { return h.RequestID.String() }
func (h Header) VaultID() uuid.UUID     { return h.Vault }
func (h Header) Signer() string         { return h.SignedBy }
func (h Header) Timestamp() int64       { return h.Ts }

// RecordEnvelope wraps every audit record in the log
type RecordEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Idempotency key of the command that produced the record
	IdempotencyKey string

	// Position of the record among those its command produced
	RecordIndex int

	// Command discriminator
	CommandType CommandType

	// Vault the record belongs to
	VaultID uuid.UUID

	// Command time in unix seconds (versioned input, not wall-clock)
	Timestamp int64

	// Command that produced the record, re-parsed on replay
	Command Command

	// Audit record
	Record Record

	// SHA-256 of state AFTER applying this record
	StateHash [32]byte

	// Previous record's state hash (chain integrity)
	PrevHash [32]byte
}

package event

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

var commandFactories = map[CommandType]func() Command{
	CommandTypeInitializeVault:                   func() Command { return &InitializeVault{} },
	CommandTypeInitializeVaultDepositor:          func() Command { return &InitializeVaultDepositor{} },
	CommandTypeDeposit:                           func() Command { return &Deposit{} },
	CommandTypeRequestWithdraw:                   func() Command { return &RequestWithdraw{} },
	CommandTypeCancelRequestWithdraw:             func() Command { return &CancelRequestWithdraw{} },
	CommandTypeWithdraw:                          func() Command { return &Withdraw{} },
	CommandTypeForceWithdraw:                     func() Command { return &ForceWithdraw{} },
	CommandTypeForceWithdrawBatch:                func() Command { return &ForceWithdrawBatch{} },
	CommandTypeManagerUpdateVault:                func() Command { return &ManagerUpdateVault{} },
	CommandTypeManagerUpdateFees:                 func() Command { return &ManagerUpdateFees{} },
	CommandTypeManagerCancelFeeUpdate:            func() Command { return &ManagerCancelFeeUpdate{} },
	CommandTypeApplyFeeUpdate:                    func() Command { return &ApplyFeeUpdate{} },
	CommandTypeAdminInitFeeUpdate:                func() Command { return &AdminInitFeeUpdate{} },
	CommandTypeAdminDeleteFeeUpdate:              func() Command { return &AdminDeleteFeeUpdate{} },
	CommandTypeManagerUpdateVaultManager:         func() Command { return &ManagerUpdateVaultManager{} },
	CommandTypeUpdateDelegate:                    func() Command { return &UpdateDelegate{} },
	CommandTypeUpdateVaultFuel:                   func() Command { return &UpdateVaultFuel{} },
	CommandTypeUpdateDepositorFuel:               func() Command { return &UpdateDepositorFuel{} },
	CommandTypeUpdateDepositorFuelBatch:          func() Command { return &UpdateDepositorFuelBatch{} },
	CommandTypeResetFuelSeason:                   func() Command { return &ResetFuelSeason{} },
	CommandTypeResetFuelSeasonBatch:              func() Command { return &ResetFuelSeasonBatch{} },
	CommandTypeResetVaultFuelSeason:              func() Command { return &ResetVaultFuelSeason{} },
	CommandTypeInitializeTokenizedVaultDepositor: func() Command { return &InitializeTokenizedVaultDepositor{} },
	CommandTypeTokenizeShares:                    func() Command { return &TokenizeShares{} },
	CommandTypeRedeemTokens:                      func() Command { return &RedeemTokens{} },
	CommandTypeManagerBorrow:                     func() Command { return &ManagerBorrow{} },
	CommandTypeManagerRepay:                      func() Command { return &ManagerRepay{} },
	CommandTypeManagerUpdateBorrow:               func() Command { return &ManagerUpdateBorrow{} },
	CommandTypeAdminUpdateVaultClass:             func() Command { return &AdminUpdateVaultClass{} },
	CommandTypeProtocolRequestWithdraw:           func() Command { return &ProtocolRequestWithdraw{} },
	CommandTypeProtocolCancelWithdrawRequest:     func() Command { return &ProtocolCancelWithdrawRequest{} },
	CommandTypeProtocolWithdraw:                  func() Command { return &ProtocolWithdraw{} },
	CommandTypeManagerDeposit:                    func() Command { return &ManagerDeposit{} },
	CommandTypeManagerRequestWithdraw:            func() Command { return &ManagerRequestWithdraw{} },
	CommandTypeManagerCancelWithdrawRequest:      func() Command { return &ManagerCancelWithdrawRequest{} },
	CommandTypeManagerWithdraw:                   func() Command { return &ManagerWithdraw{} },
}

// NewCommand returns an empty command of type ct.
func NewCommand(ct CommandType) (Command, bool) {
	f, ok := commandFactories[ct]
	if !ok {
		return nil, false
	}
	return f(), true
}

// DecodeCommand unmarshals a JSON command payload of type ct and checks its header.
func DecodeCommand(ct CommandType, data []byte) (Command, error) {
	cmd, ok := NewCommand(ct)
	if !ok {
		return nil, fmt.Errorf("unknown command type %d", ct)
	}
	if err := json.Unmarshal(data, cmd); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ct, err)
	}
	if err := ValidateHeader(cmd); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ct, err)
	}
	return cmd, nil
}

// ValidateHeader checks the fields every command must carry.
func ValidateHeader(cmd Command) error {
	switch {
	case cmd.IdempotencyKey() == uuid.Nil.String():
		return fmt.Errorf("request_id is required")
	case cmd.VaultID() == uuid.Nil:
		return fmt.Errorf("vault_id is required")
	case cmd.Signer() == "":
		return fmt.Errorf("signer is required")
	case cmd.Timestamp() <= 0:
		return fmt.Errorf("timestamp must be positive")
	}
	return nil
}

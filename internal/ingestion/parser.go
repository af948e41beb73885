package ingestion

import (
	"fmt"
	"strings"

	"VaultLedger/internal/event"

	"github.com/google/uuid"
)

// Command subjects are vault.commands.<family>.<CommandType>.<vault_id>; the payload is
// the command's JSON encoding.
const commandSubjectPrefix = "vault.commands."

// Command families group subjects by who may send them, so each gets its own consumer.
const (
	FamilyDepositor = "depositor"
	FamilyManager   = "manager"
	FamilyAdmin     = "admin"
	FamilyProtocol  = "protocol"
	FamilyCrank     = "crank"
)

var commandFamilies = map[event.CommandType]string{
	event.CommandTypeInitializeVaultDepositor:          FamilyDepositor,
	event.CommandTypeDeposit:                           FamilyDepositor,
	event.CommandTypeRequestWithdraw:                   FamilyDepositor,
	event.CommandTypeCancelRequestWithdraw:             FamilyDepositor,
	event.CommandTypeWithdraw:                          FamilyDepositor,
	event.CommandTypeInitializeTokenizedVaultDepositor: FamilyDepositor,
	event.CommandTypeTokenizeShares:                    FamilyDepositor,
	event.CommandTypeRedeemTokens:                      FamilyDepositor,

	event.CommandTypeInitializeVault:              FamilyManager,
	event.CommandTypeForceWithdraw:                FamilyManager,
	event.CommandTypeForceWithdrawBatch:           FamilyManager,
	event.CommandTypeManagerUpdateVault:           FamilyManager,
	event.CommandTypeManagerUpdateFees:            FamilyManager,
	event.CommandTypeManagerCancelFeeUpdate:       FamilyManager,
	event.CommandTypeManagerUpdateVaultManager:    FamilyManager,
	event.CommandTypeUpdateDelegate:               FamilyManager,
	event.CommandTypeManagerBorrow:                FamilyManager,
	event.CommandTypeManagerRepay:                 FamilyManager,
	event.CommandTypeManagerUpdateBorrow:          FamilyManager,
	event.CommandTypeManagerDeposit:               FamilyManager,
	event.CommandTypeManagerRequestWithdraw:       FamilyManager,
	event.CommandTypeManagerCancelWithdrawRequest: FamilyManager,
	event.CommandTypeManagerWithdraw:              FamilyManager,

	event.CommandTypeAdminInitFeeUpdate:    FamilyAdmin,
	event.CommandTypeAdminDeleteFeeUpdate:  FamilyAdmin,
	event.CommandTypeAdminUpdateVaultClass: FamilyAdmin,

	event.CommandTypeProtocolRequestWithdraw:       FamilyProtocol,
	event.CommandTypeProtocolCancelWithdrawRequest: FamilyProtocol,
	event.CommandTypeProtocolWithdraw:              FamilyProtocol,

	event.CommandTypeApplyFeeUpdate:           FamilyCrank,
	event.CommandTypeUpdateVaultFuel:          FamilyCrank,
	event.CommandTypeUpdateDepositorFuel:      FamilyCrank,
	event.CommandTypeUpdateDepositorFuelBatch: FamilyCrank,
	event.CommandTypeResetFuelSeason:          FamilyCrank,
	event.CommandTypeResetFuelSeasonBatch:     FamilyCrank,
	event.CommandTypeResetVaultFuelSeason:     FamilyCrank,
}

// CommandFamily returns the subject family of a command type.
func CommandFamily(ct event.CommandType) (string, bool) {
	f, ok := commandFamilies[ct]
	return f, ok
}

// CommandSubject builds the subject a producer publishes cmd on.
func CommandSubject(cmd event.Command) (string, error) {
	family, ok := CommandFamily(cmd.CommandType())
	if !ok {
		return "", fmt.Errorf("no subject family for %s", cmd.CommandType())
	}
	return fmt.Sprintf("%s%s.%s.%s", commandSubjectPrefix, family, cmd.CommandType(), cmd.VaultID()), nil
}

// ParseMessage converts a NATS command message into a typed command. The subject must
// name the command type under its own family and the vault the payload acts on.
func ParseMessage(subject string, data []byte) (event.Command, error) {
	rest, ok := strings.CutPrefix(subject, commandSubjectPrefix)
	if !ok {
		return nil, fmt.Errorf("subject %q is not a command subject", subject)
	}
	parts := strings.Split(rest, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("subject %q: want %s<family>.<type>.<vault_id>", subject, commandSubjectPrefix)
	}
	family, typeName, vaultToken := parts[0], parts[1], parts[2]

	ct, ok := event.ParseCommandType(typeName)
	if !ok {
		return nil, fmt.Errorf("unknown command type: %s", typeName)
	}
	if want, _ := CommandFamily(ct); want != family {
		return nil, fmt.Errorf("%s belongs to family %q, not %q", ct, want, family)
	}
	vault, err := uuid.Parse(vaultToken)
	if err != nil {
		return nil, fmt.Errorf("parse vault_id from subject: %w", err)
	}

	cmd, err := event.DecodeCommand(ct, data)
	if err != nil {
		return nil, err
	}
	if cmd.VaultID() != vault {
		return nil, fmt.Errorf("payload vault %s does not match subject vault %s", cmd.VaultID(), vault)
	}
	return cmd, nil
}

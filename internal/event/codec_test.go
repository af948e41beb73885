package event

import (
	"fmt"
	"strings"
	"testing"

	"VaultLedger/internal/state"

	"github.com/google/uuid"
)

func TestCommandType_NamesRoundTrip(t *testing.T) {
	for ct := CommandTypeInitializeVault; ct <= CommandTypeManagerWithdraw; ct++ {
		name := ct.String()
		if name == "Unknown" {
			t.Fatalf("command type %d has no name", ct)
		}
		parsed, ok := ParseCommandType(name)
		if !ok || parsed != ct {
			t.Fatalf("ParseCommandType(%q): got %d, %v", name, parsed, ok)
		}
		cmd, ok := NewCommand(ct)
		if !ok {
			t.Fatalf("no factory for %s", name)
		}
		if cmd.CommandType() != ct {
			t.Fatalf("factory for %s built %s", name, cmd.CommandType())
		}
	}
	if len(commandTypeNames) != len(commandFactories) {
		t.Fatalf("names %d, factories %d", len(commandTypeNames), len(commandFactories))
	}
	if CommandType(999).String() != "Unknown" {
		t.Fatalf("out of range type must be Unknown")
	}
	if _, ok := ParseCommandType("Liquidate"); ok {
		t.Fatalf("unknown name parsed")
	}
	if _, ok := NewCommand(CommandTypeUnknown); ok {
		t.Fatalf("Unknown must have no factory")
	}
}

func TestDecodeCommand(t *testing.T) {
	reqID, vault := uuid.New(), uuid.New()
	header := fmt.Sprintf(`"request_id":%q,"vault_id":%q,"signer":"alice","timestamp":1700000000`, reqID, vault)

	data := []byte(`{` + header + `,"vault_equity":2500000,"amount":1000,"fuel_reading":{"counters":[1,2,3,4,5,6]}}`)
	cmd, err := DecodeCommand(CommandTypeDeposit, data)
	if err != nil {
		t.Fatalf("decode deposit: %v", err)
	}
	dep, ok := cmd.(*Deposit)
	if !ok {
		t.Fatalf("got %T, want *Deposit", cmd)
	}
	if dep.Amount != 1000 || dep.Equity() != 2500000 || dep.IdempotencyKey() != reqID.String() || dep.VaultID() != vault {
		t.Fatalf("deposit fields: %+v", dep)
	}
	if r := dep.Fuel(); r == nil || r.Counters[5] != 6 {
		t.Fatalf("fuel reading: %+v", r)
	}
	if _, ok := cmd.(Priced); !ok {
		t.Fatalf("deposit must be priced")
	}

	data = []byte(`{` + header + `,"vault_equity":10,"withdraw_unit":2,"amount":500000}`)
	cmd, err = DecodeCommand(CommandTypeRequestWithdraw, data)
	if err != nil {
		t.Fatal(err)
	}
	if rw := cmd.(*RequestWithdraw); rw.Unit != state.WithdrawUnitSharesPercent {
		t.Fatalf("unit: got %s", rw.Unit)
	}
}

func TestDecodeCommand_Rejects(t *testing.T) {
	reqID, vault := uuid.New(), uuid.New()
	cases := []struct {
		name string
		ct   CommandType
		data string
		want string
	}{
		{"unknown type", CommandTypeUnknown, `{}`, "unknown command type"},
		{"bad json", CommandTypeDeposit, `{"amount":`, "decode Deposit"},
		{"no request id", CommandTypeDeposit, fmt.Sprintf(`{"vault_id":%q,"signer":"a","timestamp":1}`, vault), "request_id is required"},
		{"no vault", CommandTypeDeposit, fmt.Sprintf(`{"request_id":%q,"signer":"a","timestamp":1}`, reqID), "vault_id is required"},
		{"no signer", CommandTypeWithdraw, fmt.Sprintf(`{"request_id":%q,"vault_id":%q,"timestamp":1}`, reqID, vault), "signer is required"},
		{"zero timestamp", CommandTypeWithdraw, fmt.Sprintf(`{"request_id":%q,"vault_id":%q,"signer":"a"}`, reqID, vault), "timestamp must be positive"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			_, err := DecodeCommand(c.ct, []byte(c.data))
			if err == nil || !strings.Contains(err.Error(), c.want) {
				t.Fatalf("got %v, want error containing %q", err, c.want)
			}
		})
	}
}

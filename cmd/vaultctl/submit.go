package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"VaultLedger/internal/event"
	"VaultLedger/internal/server"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// headerFlags fill the command header fields a payload leaves out.
type headerFlags struct {
	vault     string
	signer    string
	timestamp int64
	requestID string
}

func (h *headerFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&h.vault, "vault", "", "vault id")
	cmd.Flags().StringVar(&h.signer, "signer", "", "signing authority")
	cmd.Flags().Int64Var(&h.timestamp, "ts", 0, "command timestamp in unix seconds (default now)")
	cmd.Flags().StringVar(&h.requestID, "request-id", "", "idempotency key (default a fresh uuid)")
}

// header builds a header from the flags, generating the request id and timestamp.
func (h *headerFlags) header(now time.Time) (event.Header, error) {
	vault, err := uuid.Parse(h.vault)
	if err != nil {
		return event.Header{}, fmt.Errorf("--vault: %w", err)
	}
	reqID := uuid.New()
	if h.requestID != "" {
		if reqID, err = uuid.Parse(h.requestID); err != nil {
			return event.Header{}, fmt.Errorf("--request-id: %w", err)
		}
	}
	ts := h.timestamp
	if ts == 0 {
		ts = now.Unix()
	}
	return event.Header{RequestID: reqID, Vault: vault, SignedBy: h.signer, Ts: ts}, nil
}

// completePayload sets the header keys missing from payload from the flags.
func completePayload(payload []byte, h *headerFlags, now time.Time) (json.RawMessage, error) {
	fields := map[string]any{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, fmt.Errorf("payload is not a JSON object: %w", err)
		}
	}
	setDefault := func(key string, v any) {
		if _, ok := fields[key]; !ok {
			fields[key] = v
		}
	}
	if h.requestID != "" {
		fields["request_id"] = h.requestID
	} else {
		setDefault("request_id", uuid.New().String())
	}
	if h.vault != "" {
		setDefault("vault_id", h.vault)
	}
	if h.signer != "" {
		setDefault("signer", h.signer)
	}
	ts := h.timestamp
	if ts == 0 {
		ts = now.Unix()
	}
	setDefault("timestamp", ts)
	return json.Marshal(fields)
}

func newSubmitCmd(g *globals) *cobra.Command {
	h := &headerFlags{}
	cmd := &cobra.Command{
		Use:   "submit <CommandType> [payload.json|-]",
		Short: "Submit a command, filling header fields from flags",
		Long: "Submit a command by name (for example Deposit or ManagerUpdateFees). The payload is " +
			"read from a file, or stdin when the argument is -, and any header field it omits is " +
			"taken from --vault, --signer, --ts and --request-id.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := event.ParseCommandType(args[0]); !ok {
				return fmt.Errorf("unknown command type %q", args[0])
			}
			var raw []byte
			if len(args) == 2 {
				var err error
				if raw, err = readPayload(cmd.InOrStdin(), args[1]); err != nil {
					return err
				}
			}
			payload, err := completePayload(raw, h, time.Now())
			if err != nil {
				return err
			}
			return g.withClient(cmd, func(ctx context.Context, c *server.Client) error {
				receipt, err := c.SubmitCommand(ctx, args[0], payload)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), receipt)
			})
		},
	}
	h.bind(cmd)
	return cmd
}

func readPayload(stdin io.Reader, arg string) ([]byte, error) {
	if arg == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return data, nil
}

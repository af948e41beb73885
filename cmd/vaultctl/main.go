// Command vaultctl is the operator CLI for a running VaultLedger service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"VaultLedger/internal/server"

	"github.com/spf13/cobra"
)

type globals struct {
	addr       string
	adminToken string
	timeout    time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vaultctl:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "vaultctl",
		Short:         "Operate a VaultLedger service over its gRPC API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.addr, "addr", envOr("VAULTLEDGER_ADDR", "localhost:9090"), "gRPC address of the service")
	root.PersistentFlags().StringVar(&g.adminToken, "admin-token", os.Getenv("VAULTLEDGER_ADMIN_TOKEN"), "bearer token for admin operations")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 30*time.Second, "per-call timeout")

	root.AddCommand(
		newSubmitCmd(g),
		newVaultCmd(g),
		newDepositorCmd(g),
		newFuelCmd(g),
		newAdminCmd(g),
	)
	return root
}

// withClient dials the service, runs fn under the call timeout and closes the client.
func (g *globals) withClient(cmd *cobra.Command, fn func(ctx context.Context, c *server.Client) error) error {
	c, err := server.Dial(g.addr, g.adminToken)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
	defer cancel()
	return fn(ctx, c)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

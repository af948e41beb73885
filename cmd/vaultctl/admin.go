package main

import (
	"context"

	"VaultLedger/internal/server"

	"github.com/spf13/cobra"
)

func newAdminCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "admin", Short: "Operator actions (snapshot and rebuild need --admin-token)"}

	action := func(use, short string, call func(ctx context.Context, c *server.Client) (any, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return g.withClient(cmd, func(ctx context.Context, c *server.Client) error {
					out, err := call(ctx, c)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), out)
				})
			},
		}
	}

	cmd.AddCommand(
		action("integrity", "Verify the hash chain and per-asset zero-sum",
			func(ctx context.Context, c *server.Client) (any, error) { return c.VerifyIntegrity(ctx) }),
		action("log", "Show the engine sequence, log head and projection watermark",
			func(ctx context.Context, c *server.Client) (any, error) { return c.GetLogInfo(ctx) }),
		action("snapshot", "Store a snapshot of the engine state",
			func(ctx context.Context, c *server.Client) (any, error) { return c.TakeSnapshot(ctx) }),
		action("rebuild", "Rebuild every projection from the record log",
			func(ctx context.Context, c *server.Client) (any, error) { return c.RebuildProjections(ctx) }),
	)
	return cmd
}

package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"VaultLedger/internal/query"
	"VaultLedger/internal/server"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newVaultCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "vault", Short: "Inspect vaults"}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <vault_id>",
		Short: "Show one vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(ctx context.Context, c *server.Client) error {
				v, err := c.GetVault(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), v)
			})
		},
	})

	var limit int
	var after string
	list := &cobra.Command{
		Use:   "list",
		Short: "List vaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withClient(cmd, func(ctx context.Context, c *server.Client) error {
				resp, err := c.ListVaults(ctx, &server.ListVaultsRequest{Limit: limit, After: after})
				if err != nil {
					return err
				}
				return renderVaults(cmd.OutOrStdout(), resp.Vaults)
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 100, "page size")
	list.Flags().StringVar(&after, "after", "", "continue after this vault id")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "fee-update <vault_id>",
		Short: "Show the vault's fee update slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(ctx context.Context, c *server.Client) error {
				fu, err := c.GetFeeUpdate(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), fu)
			})
		},
	})

	var owner string
	var jlimit int
	journals := &cobra.Command{
		Use:   "journals <vault_id>",
		Short: "List the vault's journal entries, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(ctx context.Context, c *server.Client) error {
				resp, err := c.ListJournals(ctx, &server.ListJournalsRequest{VaultID: args[0], Owner: owner, Limit: jlimit})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp.Journals)
			})
		},
	}
	journals.Flags().StringVar(&owner, "owner", "", "only entries touching this owner's accounts")
	journals.Flags().IntVar(&jlimit, "limit", 100, "maximum entries")
	cmd.AddCommand(journals)

	return cmd
}

func newDepositorCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "depositor", Short: "Inspect depositor positions"}

	var tokenized bool
	get := &cobra.Command{
		Use:   "get <vault_id> <authority>",
		Short: "Show one depositor position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(ctx context.Context, c *server.Client) error {
				d, err := c.GetDepositor(ctx, &server.GetDepositorRequest{VaultID: args[0], Authority: args[1], Tokenized: tokenized})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), d)
			})
		},
	}
	get.Flags().BoolVar(&tokenized, "tokenized", false, "read the tokenized holder record")
	cmd.AddCommand(get)

	var limit int
	list := &cobra.Command{
		Use:   "list <vault_id>",
		Short: "List a vault's depositors with their value at the last equity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(ctx context.Context, c *server.Client) error {
				v, err := c.GetVault(ctx, args[0])
				if err != nil {
					return err
				}
				resp, err := c.ListDepositors(ctx, &server.ListDepositorsRequest{VaultID: args[0], Limit: limit})
				if err != nil {
					return err
				}
				return renderDepositors(cmd.OutOrStdout(), v, resp.Depositors)
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 100, "page size")
	cmd.AddCommand(list)

	return cmd
}

func renderVaults(w io.Writer, vaults []query.VaultResponse) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VAULT\tNAME\tCLASS\tEQUITY\tSHARE PRICE\tTOTAL SHARES\tFEE UPDATE\tSEQ")
	for _, v := range vaults {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%s\t%s\t%s\t%d\n",
			v.VaultID, v.Name, v.VaultClass,
			v.Equity.StringFixed(int32(v.AssetDecimals)), v.DepositAsset,
			v.SharePrice.StringFixed(6), v.TotalShares, v.FeeUpdateStatus, v.AsOfSequence)
	}
	return tw.Flush()
}

func renderDepositors(w io.Writer, v *query.VaultResponse, deps []query.DepositorResponse) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AUTHORITY\tSHARES\tVALUE\tNET DEPOSITS\tPENDING\tFUEL")
	total := decimal.Zero
	for _, d := range deps {
		value := query.Units(d.Value, v.AssetDecimals)
		total = total.Add(value)
		pending := "-"
		if d.PendingWithdraw != nil {
			pending = query.Units(d.PendingWithdraw.Value, v.AssetDecimals).StringFixed(int32(v.AssetDecimals))
		}
		name := d.Authority
		if d.Tokenized {
			name += " (" + d.Symbol + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			name, d.VaultShares,
			value.StringFixed(int32(v.AssetDecimals)),
			query.Units(d.NetDeposits, v.AssetDecimals).StringFixed(int32(v.AssetDecimals)),
			pending, d.FuelAmount)
	}
	fmt.Fprintf(tw, "TOTAL\t\t%s %s\t\t\t\n", total.StringFixed(int32(v.AssetDecimals)), v.DepositAsset)
	return tw.Flush()
}

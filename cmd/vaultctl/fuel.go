package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"VaultLedger/internal/core"
	"VaultLedger/internal/crank"
	"VaultLedger/internal/event"
	"VaultLedger/internal/query"
	"VaultLedger/internal/server"

	"github.com/spf13/cobra"
)

func newFuelCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "fuel", Short: "Fuel history and season resets"}

	var authority string
	var limit int
	history := &cobra.Command{
		Use:   "history <vault_id>",
		Short: "List fuel accruals and credits, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withClient(cmd, func(ctx context.Context, c *server.Client) error {
				resp, err := c.ListFuelHistory(ctx, &server.ListFuelHistoryRequest{VaultID: args[0], Authority: authority, Limit: limit})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp.Entries)
			})
		},
	}
	history.Flags().StringVar(&authority, "authority", "", "only this depositor")
	history.Flags().IntVar(&limit, "limit", 100, "maximum entries")
	cmd.AddCommand(history)

	cmd.AddCommand(newResetSeasonCmd(g))
	return cmd
}

// newResetSeasonCmd resets the fuel season of every holder in a vault with
// ResetFuelSeasonBatch commands of at most MaxBatchSize entries.
func newResetSeasonCmd(g *globals) *cobra.Command {
	h := &headerFlags{}
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "reset-season <vault_id>",
		Short: "Reset the fuel season for all holders of a vault (admin signer)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h.vault = args[0]
			return g.withClient(cmd, func(ctx context.Context, c *server.Client) error {
				holders, tokenized, err := allHolders(ctx, c, args[0])
				if err != nil {
					return err
				}
				batches := resetBatches(holders, tokenized)
				for i, b := range batches {
					hdr, err := h.header(time.Now())
					if err != nil {
						return err
					}
					b.Header = hdr
					if dryRun {
						fmt.Fprintf(cmd.OutOrStdout(), "batch %d: %d holders, %d tokenized\n", i+1, len(b.Authorities), len(b.Tokenized))
						continue
					}
					payload, err := json.Marshal(b)
					if err != nil {
						return err
					}
					receipt, err := c.SubmitCommand(ctx, event.CommandTypeResetFuelSeasonBatch.String(), payload)
					if err != nil {
						return fmt.Errorf("batch %d of %d: %w", i+1, len(batches), err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "batch %d: %d records\n", i+1, len(receipt.Records))
				}
				return nil
			})
		},
	}
	h.bind(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the batches without submitting")
	return cmd
}

// allHolders pages through every depositor of the vault, split by record kind.
func allHolders(ctx context.Context, c *server.Client, vault string) (holders, tokenized []string, err error) {
	after := ""
	for {
		resp, err := c.ListDepositors(ctx, &server.ListDepositorsRequest{VaultID: vault, Limit: query.MaxPageSize, After: after})
		if err != nil {
			return nil, nil, err
		}
		for _, d := range resp.Depositors {
			if d.Tokenized {
				tokenized = append(tokenized, d.Authority)
			} else {
				holders = append(holders, d.Authority)
			}
		}
		if len(resp.Depositors) < query.MaxPageSize {
			return holders, tokenized, nil
		}
		after = resp.Depositors[len(resp.Depositors)-1].Authority
	}
}

// resetBatches packs depositor and tokenized holder authorities into batches that each
// stay within the engine's batch limit.
func resetBatches(holders, tokenized []string) []*event.ResetFuelSeasonBatch {
	var out []*event.ResetFuelSeasonBatch
	for _, chunk := range crank.Chunk(holders, core.DefaultMaxBatchSize) {
		out = append(out, &event.ResetFuelSeasonBatch{Authorities: chunk})
	}
	for _, chunk := range crank.Chunk(tokenized, core.DefaultMaxBatchSize) {
		out = append(out, &event.ResetFuelSeasonBatch{Tokenized: chunk})
	}
	return out
}

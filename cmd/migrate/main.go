package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"

	"VaultLedger/internal/config"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/persistence"
	"VaultLedger/migrations"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	var (
		configPath string
		dir        string
		migrator   *persistence.Migrator
		db         *sql.DB
	)
	logger := observability.NewLogger("migrate")

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply or roll back the VaultLedger Postgres schema",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			db, err = sql.Open("postgres", cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			var files fs.FS = migrations.FS
			if dir != "" {
				files = os.DirFS(dir)
			}
			migrator = persistence.NewMigrator(db, files)
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return db.Close()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("VAULTLEDGER_CONFIG"), "path to the YAML config file")
	root.PersistentFlags().StringVar(&dir, "dir", "", "read migrations from this directory instead of the embedded set")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				n, err := migrator.Up(cmd.Context())
				if err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				logger.Info().Int("applied", n).Msg("migrations up to date")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last applied migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := migrator.Down(cmd.Context()); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether each is applied",
			RunE: func(cmd *cobra.Command, _ []string) error {
				status, err := migrator.Status(cmd.Context())
				if err != nil {
					return err
				}
				for _, s := range status {
					mark := "pending"
					if s.Applied {
						mark = "applied"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %-8s %s\n", s.Version, mark, s.File)
				}
				return nil
			},
		},
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

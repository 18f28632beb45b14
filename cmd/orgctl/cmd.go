package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"orgops/internal/config"
	"orgops/internal/conversations"
	"orgops/internal/db"
	"orgops/internal/jobs"
	"orgops/internal/logging"
	"orgops/internal/migrate"
	"orgops/internal/models"
	"orgops/internal/operations"
	"orgops/internal/seed"
)

var rootCmd = &cobra.Command{
	Use:          "orgctl",
	Short:        "Administer the orgops database",
	SilenceUsage: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, _, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		return migrate.Up(gdb)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, _, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		entries, err := migrate.Status(gdb)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tAPPLIED AT")
		for _, e := range entries {
			status, at := "pending", "-"
			if e.Applied {
				status, at = "applied", e.AppliedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.ID, status, at)
		}
		return w.Flush()
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed permissions, system roles and the default admin",
	Long: `Seed the permission catalog, the system roles and the default
organization with its admin user. Safe to run repeatedly.

Examples:
  orgctl seed
  orgctl seed --file ./fixture.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, cfg, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			path = cfg.SeedFile
		}
		f, err := seed.Load(path)
		if err != nil {
			return err
		}
		return seed.Run(gdb, f)
	},
}

var expireCmd = &cobra.Command{
	Use:   "expire-actions",
	Short: "Expire pending actions past their deadline",
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, cfg, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		q := jobs.NewInline()
		conv := conversations.New(gdb, q, nil, operations.New(gdb, q), cfg.PendingActionTTL)
		var orgs []int64
		if err := gdb.WithContext(cmd.Context()).Model(&models.Organization{}).Pluck("id", &orgs).Error; err != nil {
			return err
		}
		var total int64
		for _, id := range orgs {
			n, err := conv.ExpireDue(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("organization %d: %w", id, err)
			}
			total += n
		}
		fmt.Fprintf(cmd.OutOrStdout(), "expired %d pending action(s)\n", total)
		return nil
	},
}

func init() {
	seedCmd.Flags().String("file", "", "YAML fixture to seed instead of the built-in one")
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd, seedCmd, expireCmd)
}

func connect(ctx context.Context) (*gorm.DB, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, cfg, err
	}
	logging.New(cfg.LogLevel, os.Stderr)
	if ctx == nil {
		ctx = context.Background()
	}
	gdb, err := db.Connect(ctx, cfg.DBDriver, cfg.DSN)
	return gdb, cfg, err
}

package main

import (
	"fmt"
	"log/slog"
	"os"

	"payment-service/config"
	"payment-service/database"

	"github.com/spf13/cobra"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	rootCmd := &cobra.Command{
		Use:   "payment-service",
		Short: "Payment reconciliation service",
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateUpCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-up",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			if err := database.InitDB(cfg); err != nil {
				return fmt.Errorf("database initialization failed: %w", err)
			}
			defer database.CloseDB()

			changed, err := database.MigrateUp(database.DB)
			if err != nil {
				return err
			}
			slog.Info("migrations applied", "changed", changed)
			return nil
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/techtie/match-app/internal/profile"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the candidate schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return runMigrate(false) },
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return runMigrate(true) },
	})
	return cmd
}

func runMigrate(down bool) error {
	dsn, err := databaseURL()
	if err != nil {
		return err
	}

	log.Info("running migrations", zap.Bool("down", down))
	if err := profile.Migrate(dsn, down); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Info("migrations complete")
	return nil
}

package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/techtie/match-app/internal/profile"
)

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a candidate fixture file into Postgres",
		Long: `Seed validates a YAML candidate file and upserts every candidate
into the candidates table. A candidate's deck position is its order in
the file.`,
		Args: cobra.NoArgs,
		RunE: runSeed,
	}
	cmd.Flags().String("file", "", "candidate YAML file (default: deck.candidates_file)")
	return cmd
}

func runSeed(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		path = viper.GetString("deck.candidates_file")
	}

	cands, err := profile.LoadFile(path)
	if err != nil {
		return err
	}

	dsn, err := databaseURL()
	if err != nil {
		return err
	}
	store, err := profile.OpenPG(cmd.Context(), dsn)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	bar := progressbar.NewOptions(len(cands),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Seeding candidates"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(cmd.ErrOrStderr())
		}),
	)

	err = store.Upsert(cmd.Context(), cands, func(done int) {
		_ = bar.Set(done)
	})
	if err != nil {
		return err
	}
	_ = bar.Finish()

	log.Info("seed complete", zap.String("file", path), zap.Int("candidates", len(cands)))
	return nil
}

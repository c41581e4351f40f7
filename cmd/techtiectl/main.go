// Command techtiectl is the operator CLI for the TechTie deck backend: it
// migrates and seeds the candidate table and previews filtered decks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/techtie/match-app/internal/logger"
)

var (
	cfgFile string
	log     = zap.NewNop()
	rootCmd = &cobra.Command{
		Use:   "techtiectl",
		Short: "Operate the TechTie candidate store",
		Long: `techtiectl manages the candidate table behind the TechTie deck.

Configuration is read from techtie.yaml (current directory or
$HOME/.config/techtie) and TECHTIE_* environment variables.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./techtie.yaml)")
	rootCmd.PersistentFlags().String("database-url", "", "Postgres connection string")
	rootCmd.PersistentFlags().Bool("verbose", false, "debug logging")

	_ = viper.BindPFlag("database.url", rootCmd.PersistentFlags().Lookup("database-url"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.SetDefault("deck.candidates_file", "candidates.yaml")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(previewCmd())
	rootCmd.AddCommand(hashPasswordCmd())
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("received interrupt, shutting down")
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()
	_ = log.Sync()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.config/techtie")
		}
		viper.SetConfigName("techtie")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TECHTIE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	log = logger.New(logger.Config{Production: !viper.GetBool("verbose")}).Named("techtiectl")
	return nil
}

func databaseURL() (string, error) {
	dsn := viper.GetString("database.url")
	if dsn == "" {
		return "", fmt.Errorf("no database configured: set --database-url, database.url or TECHTIE_DATABASE_URL")
	}
	return dsn, nil
}

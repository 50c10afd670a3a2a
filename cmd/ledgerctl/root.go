package main

import (
	"os"

	"surgeonreach_go_backend/internal/database"
	"surgeonreach_go_backend/internal/ledger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate the credit ledger: bulk migrations and account inspection",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newMigrateCmd(),
		newStatsCmd(),
	)

	return rootCmd
}

// wireLedger connects to the database using the same environment the API
// server reads, and returns the ledger service.
func wireLedger() (*ledger.Service, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_NAME", "surgeonreach")
	v.SetDefault("DB_PORT", "5432")
	v.AutomaticEnv()

	db, err := database.Connect(
		v.GetString("DB_HOST"),
		v.GetString("DB_USER"),
		v.GetString("DB_PASSWORD"),
		v.GetString("DB_NAME"),
		v.GetString("DB_PORT"),
	)
	if err != nil {
		return nil, err
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	return ledger.NewService(ledger.NewGormStore(db), logger), nil
}

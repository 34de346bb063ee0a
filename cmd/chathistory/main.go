package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "chathistory",
		Short:         "Food truck directory chat backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CHATHISTORY_CONFIG"),
		"path to a JSON or YAML config file (defaults to an in-memory setup)")

	rootCmd.AddCommand(newServeCommand(), newMigrateCommand(), newHistoryCommand())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

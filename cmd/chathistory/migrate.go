package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			// openApp migrates on open
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			log.Info().Str("db", a.cfg.BasicConfig.Database).Msg("database migrated")
			return nil
		},
	}
}

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/doclane/doclane/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if err := db.Migrate(cfg.PostgresURL()); err != nil {
			return err
		}
		logger.Info("database schema up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

package main

import (
	"fmt"

	"github.com/keyward-dev/keyward/internal/db"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Create or update the Keyward schema in the configured database and
record the installation ID. The server does this on start as well.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		id, err := db.EnsureInstallationID(database)
		if err != nil {
			return err
		}
		fmt.Printf("Database migrated (installation %s)\n", id)
		return nil
	},
}

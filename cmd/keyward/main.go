package main

import (
	"os"

	"github.com/spf13/cobra"

	_ "github.com/keyward-dev/keyward/docs" // Load swagger docs
)

// Version is set via ldflags at build time
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "keyward",
	Short: "Keyward - instance-level access control for internal applications",
	Long: `Keyward stores which users may perform which actions on which resource
instances, runs the apply/approve workflow around those grants and answers
batched permission checks for applications.`,
	Example: `  # Run the server with a bootstrap admin
  ADMIN_USERNAME=admin ADMIN_PASSWORD=secret keyward serve

  # Register an application managed by alice
  keyward app create billing --name Billing --manager alice

  # Import an action catalog and check a user's access
  keyward catalog import 'catalogs/**/*.yaml'
  keyward check alice <action-uuid> --instance <instance-uuid>`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "server", Title: "Server Commands:"},
		&cobra.Group{ID: "admin", Title: "Admin Commands:"},
	)

	serveCmd.GroupID = "server"
	migrateCmd.GroupID = "server"

	userCmd.GroupID = "admin"
	appCmd.GroupID = "admin"
	catalogCmd.GroupID = "admin"
	checkCmd.GroupID = "admin"

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(appCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

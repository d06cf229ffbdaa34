package main

import (
	"fmt"
	"os"

	"github.com/keyward-dev/keyward/internal/server"
	"github.com/spf13/cobra"
)

var (
	servePort int
	serveMode string
)

// @title Keyward API
// @version 1.0
// @description Instance-level permission management and checking API
// @host localhost:8470
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @securityDefinitions.apikey AppCode
// @in header
// @name X-App-Code
// @securityDefinitions.apikey AppSecret
// @in header
// @name X-App-Secret
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Keyward API server",
	Long: `Start the Keyward HTTP API.

Examples:
  keyward serve                     # Use config file / environment
  keyward serve --port 8080         # Override port
  keyward serve --mode production   # Release mode

Environment variables:
  KEYWARD_SERVER_PORT        Server port (default: 8470)
  KEYWARD_DATABASE_DRIVER    Database driver: sqlite, postgres, mysql
  KEYWARD_DATABASE_DSN       Database connection string
  KEYWARD_CACHE_TYPE         Snapshot cache: none, memory, valkey
  KEYWARD_AUTH_JWT_SECRET    JWT signing secret
  ADMIN_USERNAME             Bootstrap admin username
  ADMIN_PASSWORD             Bootstrap admin password`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (overrides config)")
	serveCmd.Flags().StringVarP(&serveMode, "mode", "m", "", "Server mode: development or production (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := server.Config{
		Port:    servePort,
		Mode:    serveMode,
		Version: Version,
	}

	if err := server.RunWithSignalHandling(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

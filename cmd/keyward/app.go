package main

import (
	"fmt"
	"strings"

	"github.com/keyward-dev/keyward/internal/service"
	"github.com/spf13/cobra"
)

var (
	appName     string
	appSecret   string
	appManagers []string
)

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Manage registered applications",
}

var appCreateCmd = &cobra.Command{
	Use:   "create <app-code>",
	Short: "Register an application",
	Long: `Register an application and the users who manage its catalog.
The application secret is prompted for unless --secret is given.

Examples:
  keyward app create billing --name Billing --manager alice --manager bob`,
	Args: cobra.ExactArgs(1),
	RunE: runAppCreate,
}

var appAddManagerCmd = &cobra.Command{
	Use:   "add-manager <app-code> <username>",
	Short: "Grant a user the manager role on an application",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		if err := service.NewApplicationService(database).AddManager(cmd.Context(), cliActor, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("%s now manages %s\n", args[1], args[0])
		return nil
	},
}

var appListCmd = &cobra.Command{
	Use:   "list",
	Short: "List applications and their managers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		apps, err := service.NewApplicationService(database).List(cmd.Context())
		if err != nil {
			return err
		}
		for _, a := range apps {
			fmt.Printf("%s\t%s\t%s\n", a.Code, a.Name, strings.Join(a.Managers, ","))
		}
		return nil
	},
}

func init() {
	appCreateCmd.Flags().StringVar(&appName, "name", "", "Display name (defaults to the app code)")
	appCreateCmd.Flags().StringVar(&appSecret, "secret", "", "Application secret (prompted if omitted)")
	appCreateCmd.Flags().StringArrayVar(&appManagers, "manager", nil, "Manager username (repeatable)")

	appCmd.AddCommand(appCreateCmd)
	appCmd.AddCommand(appAddManagerCmd)
	appCmd.AddCommand(appListCmd)
}

func runAppCreate(cmd *cobra.Command, args []string) error {
	secret, err := readSecret(appSecret, "Secret")
	if err != nil {
		return err
	}

	name := appName
	if name == "" {
		name = args[0]
	}

	database, err := openDatabase()
	if err != nil {
		return err
	}

	app, err := service.NewApplicationService(database).Create(cmd.Context(), cliActor, service.CreateApplicationRequest{
		Code:     args[0],
		Name:     name,
		Secret:   secret,
		Managers: appManagers,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Registered application %s\n", app.Code)
	return nil
}

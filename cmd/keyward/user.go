package main

import (
	"fmt"

	"github.com/keyward-dev/keyward/internal/service"
	"github.com/spf13/cobra"
)

var (
	userPassword string
	userAdmin    bool
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage local users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user",
	Long: `Create a local user. The password is prompted for unless --password is given.

Examples:
  keyward user create alice
  keyward user create root --admin`,
	Args: cobra.ExactArgs(1),
	RunE: runUserCreate,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}
		users, err := service.NewUserService(database).List(cmd.Context())
		if err != nil {
			return err
		}
		for _, u := range users {
			fmt.Println(u.Username)
		}
		return nil
	},
}

func init() {
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "Password (prompted if omitted)")
	userCreateCmd.Flags().BoolVar(&userAdmin, "admin", false, "Grant the administrator role")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userListCmd)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	password, err := readSecret(userPassword, "Password")
	if err != nil {
		return err
	}

	database, err := openDatabase()
	if err != nil {
		return err
	}

	user, err := service.NewUserService(database).Create(cmd.Context(), cliActor, args[0], password, userAdmin)
	if err != nil {
		return err
	}
	fmt.Printf("Created user %s\n", user.Username)
	return nil
}

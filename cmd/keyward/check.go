package main

import (
	"github.com/keyward-dev/keyward/internal/check"
	"github.com/spf13/cobra"
)

var checkInstances []string

var checkCmd = &cobra.Command{
	Use:   "check <username> <action-id>...",
	Short: "Check a user's permissions directly against the database",
	Long: `Evaluate one or more actions for a user and print the results as JSON.
The same --instance list is checked for every action.

Examples:
  keyward check alice 0b6f1c5e-8a43-4f0e-9f55-6c1f9f2c8d11 --instance 7d0c...`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase()
		if err != nil {
			return err
		}

		items := make([]check.Item, 0, len(args)-1)
		for _, id := range args[1:] {
			items = append(items, check.Item{ActionID: id, Instances: checkInstances})
		}

		results, err := check.NewEngine(database, nil).Check(cmd.Context(), "cli", args[0], items)
		if err != nil {
			return err
		}
		return printJSON(results)
	},
}

func init() {
	checkCmd.Flags().StringArrayVar(&checkInstances, "instance", nil, "Instance ID to check (repeatable)")
}

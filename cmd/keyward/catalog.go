package main

import (
	"fmt"

	"github.com/keyward-dev/keyward/internal/catalogfile"
	"github.com/keyward-dev/keyward/internal/service"
	"github.com/spf13/cobra"
)

var catalogDryRun bool

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage action catalogs",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <pattern>...",
	Short: "Import action catalogs from YAML or TOML files",
	Long: `Register the actions and instances declared in catalog files. Patterns
may use ** to match nested directories. Existing actions keep their IDs and
get their names and descriptions refreshed.

Example catalog (YAML):
  application: billing
  actions:
    - action_id: view_invoice
      action_name: View invoice
      resource_id: invoice
      instances:
        - instance_id: invoice-42
          instance_name: Invoice 42

Examples:
  keyward catalog import billing.yaml
  keyward catalog import 'catalogs/**/*.{yaml,toml}' --dry-run`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCatalogImport,
}

func init() {
	catalogImportCmd.Flags().BoolVar(&catalogDryRun, "dry-run", false, "Parse and validate files without writing")
	catalogCmd.AddCommand(catalogImportCmd)
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	paths, err := catalogfile.Glob(args...)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no catalog files matched %v", args)
	}

	files := make([]*catalogfile.File, 0, len(paths))
	for _, p := range paths {
		f, err := catalogfile.ReadFile(p)
		if err != nil {
			return err
		}
		files = append(files, f)
	}
	if catalogDryRun {
		for i, f := range files {
			fmt.Printf("%s: %s, %d actions\n", paths[i], f.Application, len(f.Actions))
		}
		return nil
	}

	database, err := openDatabase()
	if err != nil {
		return err
	}
	// The CLI runs with operator privileges, so manager checks are skipped.
	catalog := service.NewCatalogService(database, service.AllowAll{}, nil)

	for i, f := range files {
		summary, err := catalogfile.Import(cmd.Context(), catalog, cliActor, f)
		if err != nil {
			return fmt.Errorf("%s: %w", paths[i], err)
		}
		summary.File = paths[i]
		fmt.Printf("%s: %d created, %d updated, %d instances\n", summary.File, summary.Created, summary.Updated, summary.Instances)
	}
	return nil
}

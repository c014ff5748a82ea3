package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dreamware/lectern/internal/content"
	"github.com/dreamware/lectern/internal/content/sqlite"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <catalog.yaml> <content.db>",
		Short: "Load a YAML catalog into a SQLite content database",
		Long: `Import validates a YAML catalog and replaces the contents of the SQLite
database with it. The database is created if it does not exist. An invalid
catalog leaves the database unchanged.`,
		Args: cobra.ExactArgs(2),
		// Serving configuration does not apply to imports.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0], args[1])
		},
	}
}

func runImport(cmd *cobra.Command, catalogPath, dbPath string) error {
	cat, err := content.LoadCatalogFile(catalogPath)
	if err != nil {
		return err
	}

	store, err := sqlite.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.ImportCatalog(cmd.Context(), cat); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d shabads and %d banis into %s\n", len(cat.Shabads), len(cat.Banis), dbPath)
	return nil
}

package cmd

import (
	"encoding/json"
	"os"

	"bulkmerge/feature/tables"

	"github.com/spf13/cobra"
)

var catalogSchema string

// catalogCmd prints the column facts the engine sees for a table.
var catalogCmd = &cobra.Command{
	Use:   "catalog <table>",
	Short: "Show the columns, identity and primary key of a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.close()

		columns, err := tables.NewService(a.engine, a.db, a.log).Columns(cmd.Context(), catalogSchema, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(columns)
	},
}

func init() {
	catalogCmd.Flags().StringVar(&catalogSchema, "schema", "", "Schema of the table (dialect default when empty)")
	RootCmd.AddCommand(catalogCmd)
}

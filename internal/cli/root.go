// Package cli implements the stratactl commands.
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Database string
}

// NewRootCommand creates the root command for the stratactl CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "stratactl",
		Short: "Inspect and query a Strata demo database",
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "strata.db", "path to the SQLite database")

	cmd.AddCommand(NewTablesCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewSQLCommand(opts))

	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexuscrm/strata/internal/demo"
	"github.com/nexuscrm/strata/pkg/store"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Create or update the demo schema and seed data",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.OpenSQLite(opts.Database)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			if err := demo.Migrate(db.DB()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied to %s\n", opts.Database)
			return nil
		},
	}
}

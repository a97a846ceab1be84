package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nexuscrm/strata/internal/demo"
	"github.com/nexuscrm/strata/pkg/schema"
)

// NewTablesCommand creates the tables command.
func NewTablesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List registered entities and their mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printRegistry(cmd, demo.Registry())
			return nil
		},
	}
}

func printRegistry(cmd *cobra.Command, reg *schema.Registry) {
	out := cmd.OutOrStdout()

	entities := reg.Entities()
	sort.Strings(entities)

	for _, entity := range entities {
		t := reg.MustTable(entity)
		fmt.Fprintf(out, "%s (table %s)\n", t.Entity, t.Name)
		for _, col := range t.Columns() {
			fmt.Fprintf(out, "  %-12s %-12s%s\n", col.Field, col.Name, columnFlags(col))
		}
		for _, nav := range t.Navigations() {
			fmt.Fprintf(out, "  %-12s -> %s (%s)\n", nav.Name, nav.Target, nav.Kind)
		}
	}
}

func columnFlags(c *schema.Column) string {
	var flags []string
	if c.PrimaryKey {
		flags = append(flags, "pk")
	}
	if c.AutoIncrement {
		flags = append(flags, "auto")
	}
	if c.Unique {
		flags = append(flags, "unique")
	}
	if c.Nullable {
		flags = append(flags, "null")
	}
	if len(flags) == 0 {
		return ""
	}
	return " [" + strings.Join(flags, ",") + "]"
}

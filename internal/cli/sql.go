package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nexuscrm/strata/internal/sqlguard"
	"github.com/nexuscrm/strata/pkg/store"
)

// NewSQLCommand creates the sql command.
func NewSQLCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sql <statement>",
		Short: "Run a vetted read-only SELECT",
		Long: `Parse and vet a SQL statement, then run it against the demo database.
Only single plain SELECT statements are accepted; the vetted text
restored from the parse tree is what actually runs.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSQL(cmd, opts, args[0])
		},
	}
}

func runSQL(cmd *cobra.Command, opts *RootOptions, statement string) error {
	restored, err := sqlguard.New().Check(statement)
	if err != nil {
		return err
	}

	db, err := store.OpenSQLite(opts.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := db.QueryContext(ctx, restored)
	if err != nil {
		return err
	}
	defer rows.Close()

	results, err := collectRows(rows)
	if err != nil {
		return err
	}
	return printJSON(cmd, results)
}

// collectRows drains a result set into column-keyed maps, normalizing
// byte slices to strings so text columns print as text.
func collectRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		holders := make([]any, len(cols))
		for i := range holders {
			var v any
			holders[i] = &v
		}
		if err := rows.Scan(holders...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, name := range cols {
			v := *(holders[i].(*any))
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[name] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nexuscrm/strata/internal/demo"
	"github.com/nexuscrm/strata/pkg/expression"
	"github.com/nexuscrm/strata/pkg/repo"
	"github.com/nexuscrm/strata/pkg/schema"
	"github.com/nexuscrm/strata/pkg/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Filter   string
	Includes []string
	Order    []string
	Limit    int
	Offset   int
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <entity>",
		Short: "Run a typed query against the demo database",
		Long: `Run a filtered query against one of the demo entities and print the
matching rows as JSON.

Example:
  stratactl query Order --filter "Total > 40 and Status == 'paid'" --include Items --order -Total`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter expression")
	cmd.Flags().StringSliceVar(&opts.Includes, "include", nil, "navigation paths to include")
	cmd.Flags().StringSliceVar(&opts.Order, "order", nil, `ordering fields ("-" prefix for descending)`)
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum rows to return")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "rows to skip")

	return cmd
}

func runQuery(cmd *cobra.Command, opts *QueryOptions, entity string) error {
	db, err := store.OpenSQLite(opts.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	reg := demo.Registry()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// The plan carries the entity type, so dispatch is static.
	switch entity {
	case "User":
		return fetch[demo.User](ctx, cmd, db, reg, entity, opts)
	case "Customer":
		return fetch[demo.Customer](ctx, cmd, db, reg, entity, opts)
	case "Order":
		return fetch[demo.Order](ctx, cmd, db, reg, entity, opts)
	case "OrderItem":
		return fetch[demo.OrderItem](ctx, cmd, db, reg, entity, opts)
	case "Product":
		return fetch[demo.Product](ctx, cmd, db, reg, entity, opts)
	case "Tag":
		return fetch[demo.Tag](ctx, cmd, db, reg, entity, opts)
	default:
		return fmt.Errorf("unknown entity %q", entity)
	}
}

func fetch[T any](ctx context.Context, cmd *cobra.Command, db *store.DB, reg *schema.Registry, entity string, opts *QueryOptions) error {
	r, err := repo.New[T](db, reg, entity, db.Dialect())
	if err != nil {
		return err
	}

	plan := r.Query()
	if opts.Filter != "" {
		pred, err := expression.Parse(opts.Filter)
		if err != nil {
			return err
		}
		plan.Where(pred)
	}
	for _, path := range opts.Includes {
		plan.Include(path)
	}
	for i, field := range opts.Order {
		desc := strings.HasPrefix(field, "-")
		field = strings.TrimPrefix(field, "-")
		switch {
		case i == 0 && desc:
			plan.OrderByDesc(field)
		case i == 0:
			plan.OrderBy(field)
		case desc:
			plan.ThenByDesc(field)
		default:
			plan.ThenBy(field)
		}
	}
	if opts.Limit > 0 {
		plan.Take(opts.Limit)
	}
	if opts.Offset > 0 {
		plan.Skip(opts.Offset)
	}

	items, err := plan.All(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd, items)
}

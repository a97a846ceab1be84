package query

import (
	"context"
	"database/sql"
	"iter"

	qerrors "github.com/nexuscrm/strata/pkg/errors"
	"github.com/nexuscrm/strata/pkg/materialize"
	"github.com/nexuscrm/strata/pkg/navigation"
)

// All executes the plan and returns the materialized entities with all
// included navigations populated. Cancellation is honored between row
// reads and before each collection follow-up query.
func (p *Plan[T]) All(ctx context.Context) ([]*T, error) {
	c, err := p.Compile()
	if err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, c.Query, c.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	m := materialize.New(p.table, p.nav)
	ents, err := m.Materialize(ctx, rows)
	if err != nil {
		return nil, err
	}
	// Release the primary cursor before hydration queries; a
	// single-connection pool would otherwise starve.
	rows.Close()
	if err := m.Hydrate(ctx, p.db); err != nil {
		return nil, err
	}

	out := make([]*T, len(ents))
	for i, e := range ents {
		out[i] = e.(*T)
	}
	return out, nil
}

// AllSQL executes like All and also returns the rendered statement for
// diagnostics.
func (p *Plan[T]) AllSQL(ctx context.Context) (string, []*T, error) {
	c, err := p.Compile()
	if err != nil {
		return "", nil, err
	}
	out, err := p.All(ctx)
	return c.Query, out, err
}

// First returns the first matching entity, or sql.ErrNoRows when the
// result set is empty. The plan itself is left untouched.
func (p *Plan[T]) First(ctx context.Context) (*T, error) {
	one := 1
	clone := p.clone()
	clone.take = &one
	out, err := clone.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, sql.ErrNoRows
	}
	return out[0], nil
}

// Stream lazily yields entities one row at a time. Plans carrying
// includes cannot stream: deduplication and collection batching need
// the full set, so Stream fails up front and All is the path to use.
func (p *Plan[T]) Stream(ctx context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		if p.err != nil {
			yield(nil, p.err)
			return
		}
		if len(p.includes) > 0 {
			yield(nil, qerrors.NewPlanError("Stream", "include paths require buffered execution"))
			return
		}
		c, err := p.Compile()
		if err != nil {
			yield(nil, err)
			return
		}
		rows, err := p.db.QueryContext(ctx, c.Query, c.Args...)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()

		names, err := rows.Columns()
		if err != nil {
			yield(nil, err)
			return
		}
		scanner := materialize.NewRowScanner(p.table, names)
		for rows.Next() {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			ent, err := scanner.Scan(rows)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(ent.(*T), nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// scalarSQL renders an aggregate statement scoped by the plan's FROM,
// joins, and WHERE. Ordering, paging, grouping, and select overrides do
// not apply to aggregates.
func (p *Plan[T]) scalarSQL(fn string) (string, []any, error) {
	if p.err != nil {
		return "", nil, p.err
	}
	s := &stmt{
		dialect: p.dialect,
		ctes:    p.ctes,
		selects: []frag{{sql: fn}},
		from:    frag{sql: p.table.Name + " " + navigation.BaseAlias},
		wheres:  p.wheres,
	}
	if p.fromRaw != nil {
		s.from = *p.fromRaw
	}
	if p.nav != nil {
		for _, j := range p.nav.JoinClauses() {
			s.joins = append(s.joins, frag{sql: j})
		}
	}
	s.joins = append(s.joins, p.rawJoins...)
	q, args := s.render()
	return q, args, nil
}

func (p *Plan[T]) scalar(ctx context.Context, fn string, dest any) error {
	q, args, err := p.scalarSQL(fn)
	if err != nil {
		return err
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(dest); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of rows the accumulated WHERE matches.
func (p *Plan[T]) Count(ctx context.Context) (int64, error) {
	var n int64
	err := p.scalar(ctx, "COUNT(*)", &n)
	return n, err
}

// Sum totals field over the matching rows; an empty set sums to zero.
func (p *Plan[T]) Sum(ctx context.Context, field string) (float64, error) {
	return p.floatAggregate(ctx, "SUM", field)
}

// Avg averages field over the matching rows; an empty set averages to
// zero.
func (p *Plan[T]) Avg(ctx context.Context, field string) (float64, error) {
	return p.floatAggregate(ctx, "AVG", field)
}

func (p *Plan[T]) floatAggregate(ctx context.Context, fn, field string) (float64, error) {
	col, err := p.column(field)
	if err != nil {
		return 0, err
	}
	var v sql.NullFloat64
	if err := p.scalar(ctx, fn+"("+col+")", &v); err != nil {
		return 0, err
	}
	return v.Float64, nil
}

// Min returns the smallest value of field, nil when no rows match.
func (p *Plan[T]) Min(ctx context.Context, field string) (any, error) {
	return p.anyAggregate(ctx, "MIN", field)
}

// Max returns the largest value of field, nil when no rows match.
func (p *Plan[T]) Max(ctx context.Context, field string) (any, error) {
	return p.anyAggregate(ctx, "MAX", field)
}

func (p *Plan[T]) anyAggregate(ctx context.Context, fn, field string) (any, error) {
	col, err := p.column(field)
	if err != nil {
		return nil, err
	}
	var v any
	if err := p.scalar(ctx, fn+"("+col+")", &v); err != nil {
		return nil, err
	}
	return v, nil
}

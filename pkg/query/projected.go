package query

import (
	"context"

	"github.com/nexuscrm/strata/pkg/ast"
	qerrors "github.com/nexuscrm/strata/pkg/errors"
	"github.com/nexuscrm/strata/pkg/navigation"
	"github.com/nexuscrm/strata/pkg/translate"
)

// Row is one projected result row keyed by output alias.
type Row map[string]any

// Projected is the narrowed plan a projection returns. Only ordering,
// paging, distinct, and execution remain; clause mutators live on Plan
// alone, and the source plan refuses further mutation once projected,
// because a projected shape cannot be translated back to entity column
// semantics.
type Projected[T any] struct {
	plan     *Plan[T]
	cols     []translate.ProjectedColumn
	orders   []orderSpec
	skip     *int
	take     *int
	distinct bool

	err      error
	compiled *Compiled
}

// Select projects the plan into the given shape and freezes the source
// plan against further clauses. Identity projections keep every mapped
// column; single and multi projections narrow to the named fields.
func (p *Plan[T]) Select(proj ast.Projection) *Projected[T] {
	out := &Projected[T]{plan: p}
	if p.err != nil {
		out.err = p.err
		return out
	}
	cols, err := p.tr.Projection(proj)
	if err != nil {
		out.err = err
		return out
	}
	p.projected = true
	p.compiled = nil
	out.cols = cols
	return out
}

// Err reports the first failure recorded on the projection.
func (pr *Projected[T]) Err() error { return pr.err }

// Columns exposes the projected select-list entries in order.
func (pr *Projected[T]) Columns() []translate.ProjectedColumn { return pr.cols }

func (pr *Projected[T]) fail(err error) *Projected[T] {
	if pr.err == nil {
		pr.err = err
	}
	return pr
}

func (pr *Projected[T]) mutable() bool {
	if pr.err != nil {
		return false
	}
	pr.compiled = nil
	return true
}

// alias resolves a projected target field to its output alias, the name
// ORDER BY can reference in both dialects.
func (pr *Projected[T]) alias(field string) (string, error) {
	for _, c := range pr.cols {
		if c.TargetField == field {
			return c.Alias, nil
		}
	}
	return "", qerrors.NewTranslateError(field, "field not present in projection")
}

// OrderBy starts a fresh ordering on a projected field.
func (pr *Projected[T]) OrderBy(field string) *Projected[T]     { return pr.orderBy(field, false) }
func (pr *Projected[T]) OrderByDesc(field string) *Projected[T] { return pr.orderBy(field, true) }

func (pr *Projected[T]) orderBy(field string, desc bool) *Projected[T] {
	if !pr.mutable() {
		return pr
	}
	a, err := pr.alias(field)
	if err != nil {
		return pr.fail(err)
	}
	pr.orders = []orderSpec{{col: a, desc: desc}}
	return pr
}

// ThenBy appends a subordinate ordering key; it requires a prior
// OrderBy like its Plan counterpart.
func (pr *Projected[T]) ThenBy(field string) *Projected[T]     { return pr.thenBy(field, false) }
func (pr *Projected[T]) ThenByDesc(field string) *Projected[T] { return pr.thenBy(field, true) }

func (pr *Projected[T]) thenBy(field string, desc bool) *Projected[T] {
	if !pr.mutable() {
		return pr
	}
	if len(pr.orders) == 0 {
		return pr.fail(qerrors.NewPlanError("ThenBy", "no prior OrderBy"))
	}
	a, err := pr.alias(field)
	if err != nil {
		return pr.fail(err)
	}
	pr.orders = append(pr.orders, orderSpec{col: a, desc: desc})
	return pr
}

// Skip and Take page the projected rows.
func (pr *Projected[T]) Skip(n int) *Projected[T] {
	if !pr.mutable() {
		return pr
	}
	if n < 0 {
		return pr.fail(qerrors.NewPlanError("Skip", "negative offset"))
	}
	pr.skip = &n
	return pr
}

func (pr *Projected[T]) Take(n int) *Projected[T] {
	if !pr.mutable() {
		return pr
	}
	if n < 0 {
		return pr.fail(qerrors.NewPlanError("Take", "negative limit"))
	}
	pr.take = &n
	return pr
}

// Distinct deduplicates the projected rows.
func (pr *Projected[T]) Distinct() *Projected[T] {
	if !pr.mutable() {
		return pr
	}
	pr.distinct = true
	return pr
}

func (pr *Projected[T]) statement() *stmt {
	p := pr.plan
	s := &stmt{
		dialect:  p.dialect,
		ctes:     p.ctes,
		distinct: pr.distinct,
		from:     frag{sql: p.table.Name + " " + navigation.BaseAlias},
		wheres:   p.wheres,
		groupBy:  p.groupCols,
		havings:  p.havings,
		orders:   pr.orders,
		skip:     pr.skip,
		take:     pr.take,
		setOps:   p.setOps,
	}
	if p.fromRaw != nil {
		s.from = *p.fromRaw
	}
	for _, c := range pr.cols {
		s.selects = append(s.selects, frag{sql: c.Column + " AS " + c.Alias})
	}
	if p.nav != nil {
		for _, j := range p.nav.JoinClauses() {
			s.joins = append(s.joins, frag{sql: j})
		}
	}
	s.joins = append(s.joins, p.rawJoins...)
	return s
}

// Compile renders the projected statement, cached until mutation.
func (pr *Projected[T]) Compile() (*Compiled, error) {
	if pr.err != nil {
		return nil, pr.err
	}
	if pr.compiled != nil {
		return pr.compiled, nil
	}
	q, args := pr.statement().render()
	pr.compiled = &Compiled{Query: q, Args: args}
	return pr.compiled, nil
}

// SQL implements Subquery.
func (pr *Projected[T]) SQL() (string, []any, error) {
	c, err := pr.Compile()
	if err != nil {
		return "", nil, err
	}
	return c.Query, c.Args, nil
}

// All executes the projection and returns alias-keyed rows.
func (pr *Projected[T]) All(ctx context.Context) ([]Row, error) {
	c, err := pr.Compile()
	if err != nil {
		return nil, err
	}
	rows, err := pr.plan.db.QueryContext(ctx, c.Query, c.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	holders := make([]any, len(names))
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range holders {
			var v any
			holders[i] = &v
		}
		if err := rows.Scan(holders...); err != nil {
			return nil, err
		}
		row := make(Row, len(names))
		for i, name := range names {
			row[name] = *(holders[i].(*any))
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

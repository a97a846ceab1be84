// Package query builds and executes SQL statements from typed plans.
// A Plan accumulates clauses through fluent calls, renders once into a
// cached Compiled statement, and materializes result rows back into
// entity graphs. Invalid input sticks to the plan as its first error
// and surfaces from Compile or any execution call, always before SQL
// reaches the database.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/nexuscrm/strata/pkg/ast"
	qerrors "github.com/nexuscrm/strata/pkg/errors"
	"github.com/nexuscrm/strata/pkg/navigation"
	"github.com/nexuscrm/strata/pkg/sanitize"
	"github.com/nexuscrm/strata/pkg/schema"
	"github.com/nexuscrm/strata/pkg/translate"
)

// Querier executes row-returning statements. *sql.DB, *sql.Tx, and the
// store wrapper all satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer executes statements that return no rows.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Sort names one ordering key inside a window clause.
type Sort struct {
	Field string
	Desc  bool
}

// Plan accumulates the clauses of one statement over T's table. Plans
// are not safe for concurrent mutation; compile first and share the
// Compiled value instead.
type Plan[T any] struct {
	reg     *schema.Registry
	table   *schema.Table
	dialect sanitize.Dialect
	db      Querier
	tr      *translate.Translator

	err error

	ctes        []cte
	selects     []frag
	windows     []string
	fromRaw     *frag
	rawJoins    []frag
	wheres      []frag
	groupFields []string
	groupCols   []string
	havings     []frag
	orders      []orderSpec
	skip        *int
	take        *int
	distinct    bool

	includes    []string
	lastInclude string
	maxDepth    int
	nav         *navigation.Result

	setOps []setOp

	projected bool
	compiled  *Compiled
}

// NewPlan starts an empty plan over table for the given connection and
// dialect. Repositories call this from Query; tests call it directly.
func NewPlan[T any](db Querier, reg *schema.Registry, table *schema.Table, dialect sanitize.Dialect) *Plan[T] {
	return &Plan[T]{
		reg:     reg,
		table:   table,
		dialect: dialect,
		db:      db,
		tr:      translate.New(table, navigation.BaseAlias, dialect),
	}
}

// Err reports the first failure recorded on the plan, if any.
func (p *Plan[T]) Err() error { return p.err }

// Table exposes the plan's root descriptor.
func (p *Plan[T]) Table() *schema.Table { return p.table }

// mutable gates every clause-adding call: sticky errors win, projected
// plans refuse further mutation, and any accepted mutation drops the
// cached render.
func (p *Plan[T]) mutable(clause string) bool {
	if p.err != nil {
		return false
	}
	if p.projected {
		p.err = qerrors.NewPlanError(clause, "plan already projected")
		return false
	}
	p.compiled = nil
	return true
}

func (p *Plan[T]) fail(err error) *Plan[T] {
	if p.err == nil {
		p.err = err
	}
	return p
}

// column resolves an entity field to its t0-qualified column.
func (p *Plan[T]) column(field string) (string, error) {
	c, err := p.table.Column(field)
	if err != nil {
		return "", qerrors.NewTranslateError(field, "no mapped column for field")
	}
	return navigation.BaseAlias + "." + c.Name, nil
}

func (p *Plan[T]) clone() *Plan[T] {
	c := *p
	c.compiled = nil
	return &c
}

// Where adds a predicate; successive calls AND together. The expression
// translates immediately so an unsupported construct fails the plan at
// the call site.
func (p *Plan[T]) Where(e ast.Expr) *Plan[T] {
	if !p.mutable("Where") {
		return p
	}
	cond, err := p.tr.Translate(e.Node())
	if err != nil {
		return p.fail(err)
	}
	p.wheres = append(p.wheres, frag{sql: cond})
	return p
}

// WhereRaw adds a literal predicate with bound arguments. The caller
// qualifies column references.
func (p *Plan[T]) WhereRaw(sql string, args ...any) *Plan[T] {
	if !p.mutable("WhereRaw") {
		return p
	}
	if strings.TrimSpace(sql) == "" {
		return p.fail(qerrors.NewPlanError("WhereRaw", "empty fragment"))
	}
	p.wheres = append(p.wheres, frag{sql: sql, args: args})
	return p
}

// OrderBy starts a fresh ordering on field, ascending. A later OrderBy
// replaces the whole ordering; ThenBy extends it.
func (p *Plan[T]) OrderBy(field string) *Plan[T]     { return p.orderBy(field, false) }
func (p *Plan[T]) OrderByDesc(field string) *Plan[T] { return p.orderBy(field, true) }

func (p *Plan[T]) orderBy(field string, desc bool) *Plan[T] {
	if !p.mutable("OrderBy") {
		return p
	}
	col, err := p.column(field)
	if err != nil {
		return p.fail(err)
	}
	p.orders = []orderSpec{{col: col, desc: desc}}
	return p
}

// ThenBy appends a subordinate ordering key. Calling it before OrderBy
// fails the plan.
func (p *Plan[T]) ThenBy(field string) *Plan[T]     { return p.thenBy(field, false) }
func (p *Plan[T]) ThenByDesc(field string) *Plan[T] { return p.thenBy(field, true) }

func (p *Plan[T]) thenBy(field string, desc bool) *Plan[T] {
	if !p.mutable("ThenBy") {
		return p
	}
	if len(p.orders) == 0 {
		return p.fail(qerrors.NewPlanError("ThenBy", "no prior OrderBy"))
	}
	col, err := p.column(field)
	if err != nil {
		return p.fail(err)
	}
	p.orders = append(p.orders, orderSpec{col: col, desc: desc})
	return p
}

// Skip discards the first n rows; Take caps the row count. Negative
// values fail the plan.
func (p *Plan[T]) Skip(n int) *Plan[T] {
	if !p.mutable("Skip") {
		return p
	}
	if n < 0 {
		return p.fail(qerrors.NewPlanError("Skip", "negative offset"))
	}
	p.skip = &n
	return p
}

func (p *Plan[T]) Take(n int) *Plan[T] {
	if !p.mutable("Take") {
		return p
	}
	if n < 0 {
		return p.fail(qerrors.NewPlanError("Take", "negative limit"))
	}
	p.take = &n
	return p
}

// Distinct deduplicates the select list.
func (p *Plan[T]) Distinct() *Plan[T] {
	if !p.mutable("Distinct") {
		return p
	}
	p.distinct = true
	return p
}

// GroupBy sets the grouping key fields, replacing any previous key.
func (p *Plan[T]) GroupBy(fields ...string) *Plan[T] {
	if !p.mutable("GroupBy") {
		return p
	}
	if len(fields) == 0 {
		return p.fail(qerrors.NewPlanError("GroupBy", "no fields"))
	}
	cols := make([]string, len(fields))
	for i, f := range fields {
		col, err := p.column(f)
		if err != nil {
			return p.fail(err)
		}
		cols[i] = col
	}
	p.groupFields = slices.Clone(fields)
	p.groupCols = cols
	return p
}

// Having adds a group filter. Calling it before GroupBy fails the plan.
func (p *Plan[T]) Having(e ast.Expr) *Plan[T] {
	if !p.mutable("Having") {
		return p
	}
	if len(p.groupCols) == 0 {
		return p.fail(qerrors.NewPlanError("Having", "no prior GroupBy"))
	}
	cond, err := p.tr.Translate(e.Node())
	if err != nil {
		return p.fail(err)
	}
	p.havings = append(p.havings, frag{sql: cond})
	return p
}

// HavingRaw adds a literal group filter, the usual route for aggregate
// conditions.
func (p *Plan[T]) HavingRaw(sql string, args ...any) *Plan[T] {
	if !p.mutable("HavingRaw") {
		return p
	}
	if len(p.groupCols) == 0 {
		return p.fail(qerrors.NewPlanError("Having", "no prior GroupBy"))
	}
	p.havings = append(p.havings, frag{sql: sql, args: args})
	return p
}

// Include loads the navigation at the dotted path with the results.
// The path resolves immediately, so unknown navigations, duplicate
// paths, depth violations, and cycles fail here rather than at render.
func (p *Plan[T]) Include(path string) *Plan[T] {
	return p.addInclude("Include", path)
}

// ThenInclude extends the most recent include path one hop deeper.
func (p *Plan[T]) ThenInclude(name string) *Plan[T] {
	if p.err != nil {
		return p
	}
	if p.lastInclude == "" {
		if !p.mutable("ThenInclude") {
			return p
		}
		return p.fail(qerrors.NewPlanError("ThenInclude", "no prior Include"))
	}
	return p.addInclude("ThenInclude", p.lastInclude+"."+name)
}

func (p *Plan[T]) addInclude(clause, path string) *Plan[T] {
	if !p.mutable(clause) {
		return p
	}
	paths := append(slices.Clone(p.includes), path)
	nav, err := navigation.Resolve(p.reg, p.table, paths, p.maxDepth)
	if err != nil {
		return p.fail(err)
	}
	p.includes = paths
	p.lastInclude = path
	p.nav = nav
	return p
}

// MaxIncludeDepth overrides the default include depth limit. Existing
// include paths revalidate against the new maximum.
func (p *Plan[T]) MaxIncludeDepth(n int) *Plan[T] {
	if !p.mutable("MaxIncludeDepth") {
		return p
	}
	p.maxDepth = n
	if len(p.includes) > 0 {
		nav, err := navigation.Resolve(p.reg, p.table, p.includes, p.maxDepth)
		if err != nil {
			return p.fail(err)
		}
		p.nav = nav
	}
	return p
}

// Union, UnionAll, Intersect, and Except queue a set operation against
// another rendered query. The main statement is parenthesized and each
// operand appended with its keyword in call order.
func (p *Plan[T]) Union(sub Subquery) *Plan[T]     { return p.setOperation("UNION", sub) }
func (p *Plan[T]) UnionAll(sub Subquery) *Plan[T]  { return p.setOperation("UNION ALL", sub) }
func (p *Plan[T]) Intersect(sub Subquery) *Plan[T] { return p.setOperation("INTERSECT", sub) }
func (p *Plan[T]) Except(sub Subquery) *Plan[T]    { return p.setOperation("EXCEPT", sub) }

func (p *Plan[T]) setOperation(keyword string, sub Subquery) *Plan[T] {
	if !p.mutable(keyword) {
		return p
	}
	qs, args, err := sub.SQL()
	if err != nil {
		return p.fail(err)
	}
	p.setOps = append(p.setOps, setOp{keyword: keyword, sql: qs, args: args})
	return p
}

// WhereInQuery filters field against another query's result set.
func (p *Plan[T]) WhereInQuery(field string, sub Subquery) *Plan[T] {
	return p.whereInQuery(field, sub, false)
}

func (p *Plan[T]) WhereNotInQuery(field string, sub Subquery) *Plan[T] {
	return p.whereInQuery(field, sub, true)
}

func (p *Plan[T]) whereInQuery(field string, sub Subquery, negate bool) *Plan[T] {
	if !p.mutable("WhereInQuery") {
		return p
	}
	col, err := p.column(field)
	if err != nil {
		return p.fail(err)
	}
	qs, args, err := sub.SQL()
	if err != nil {
		return p.fail(err)
	}
	op := "IN"
	if negate {
		op = "NOT IN"
	}
	p.wheres = append(p.wheres, frag{sql: fmt.Sprintf("%s %s (%s)", col, op, qs), args: args})
	return p
}

// WhereInRaw filters field against a literal subquery or value list.
func (p *Plan[T]) WhereInRaw(field, sql string, args ...any) *Plan[T] {
	return p.whereInRaw(field, sql, args, false)
}

func (p *Plan[T]) WhereNotInRaw(field, sql string, args ...any) *Plan[T] {
	return p.whereInRaw(field, sql, args, true)
}

func (p *Plan[T]) whereInRaw(field, sql string, args []any, negate bool) *Plan[T] {
	if !p.mutable("WhereInRaw") {
		return p
	}
	col, err := p.column(field)
	if err != nil {
		return p.fail(err)
	}
	op := "IN"
	if negate {
		op = "NOT IN"
	}
	p.wheres = append(p.wheres, frag{sql: fmt.Sprintf("%s %s (%s)", col, op, sql), args: args})
	return p
}

// WhereExists filters on the existence of rows in another query.
func (p *Plan[T]) WhereExists(sub Subquery) *Plan[T]    { return p.whereExists(sub, false) }
func (p *Plan[T]) WhereNotExists(sub Subquery) *Plan[T] { return p.whereExists(sub, true) }

func (p *Plan[T]) whereExists(sub Subquery, negate bool) *Plan[T] {
	if !p.mutable("WhereExists") {
		return p
	}
	qs, args, err := sub.SQL()
	if err != nil {
		return p.fail(err)
	}
	kw := "EXISTS"
	if negate {
		kw = "NOT EXISTS"
	}
	p.wheres = append(p.wheres, frag{sql: fmt.Sprintf("%s (%s)", kw, qs), args: args})
	return p
}

// With attaches a common table expression ahead of the statement.
func (p *Plan[T]) With(name string, sub Subquery) *Plan[T] {
	return p.withCTE(name, sub, false)
}

// WithRecursive attaches a recursive CTE; the body usually comes from
// Raw since it references its own name.
func (p *Plan[T]) WithRecursive(name string, sub Subquery) *Plan[T] {
	return p.withCTE(name, sub, true)
}

func (p *Plan[T]) withCTE(name string, sub Subquery, recursive bool) *Plan[T] {
	if !p.mutable("With") {
		return p
	}
	if strings.TrimSpace(name) == "" {
		return p.fail(qerrors.NewPlanError("With", "empty name"))
	}
	qs, args, err := sub.SQL()
	if err != nil {
		return p.fail(err)
	}
	p.ctes = append(p.ctes, cte{name: name, sql: qs, args: args, recursive: recursive})
	return p
}

// SelectRaw replaces the default select list with literal entries;
// repeated calls accumulate.
func (p *Plan[T]) SelectRaw(sql string, args ...any) *Plan[T] {
	if !p.mutable("SelectRaw") {
		return p
	}
	if strings.TrimSpace(sql) == "" {
		return p.fail(qerrors.NewPlanError("SelectRaw", "empty fragment"))
	}
	p.selects = append(p.selects, frag{sql: sql, args: args})
	return p
}

// SelectCase appends a translated CASE expression to the select list
// under the given output alias.
func (p *Plan[T]) SelectCase(alias string, e ast.Expr) *Plan[T] {
	if !p.mutable("SelectCase") {
		return p
	}
	if strings.TrimSpace(alias) == "" {
		return p.fail(qerrors.NewPlanError("SelectCase", "empty alias"))
	}
	expr, err := p.tr.Translate(e.Node())
	if err != nil {
		return p.fail(err)
	}
	p.selects = append(p.selects, frag{sql: expr + " AS " + alias})
	return p
}

// FromRaw replaces the FROM clause. The fragment must alias its source
// as t0 for translated predicates to keep resolving.
func (p *Plan[T]) FromRaw(sql string, args ...any) *Plan[T] {
	if !p.mutable("FromRaw") {
		return p
	}
	if strings.TrimSpace(sql) == "" {
		return p.fail(qerrors.NewPlanError("FromRaw", "empty fragment"))
	}
	p.fromRaw = &frag{sql: sql, args: args}
	return p
}

// JoinRaw appends a literal join after the navigation-derived ones.
func (p *Plan[T]) JoinRaw(sql string, args ...any) *Plan[T] {
	if !p.mutable("JoinRaw") {
		return p
	}
	if strings.TrimSpace(sql) == "" {
		return p.fail(qerrors.NewPlanError("JoinRaw", "empty fragment"))
	}
	p.rawJoins = append(p.rawJoins, frag{sql: sql, args: args})
	return p
}

// Window appends a window-function entry to the select list as
// "fn OVER (PARTITION BY … ORDER BY …) AS alias". The function text is
// literal; partition and ordering keys are entity fields.
func (p *Plan[T]) Window(alias, fn string, partitionBy []string, orderBy ...Sort) *Plan[T] {
	if !p.mutable("Window") {
		return p
	}
	if strings.TrimSpace(alias) == "" || strings.TrimSpace(fn) == "" {
		return p.fail(qerrors.NewPlanError("Window", "alias and function required"))
	}
	var over []string
	if len(partitionBy) > 0 {
		cols := make([]string, len(partitionBy))
		for i, f := range partitionBy {
			col, err := p.column(f)
			if err != nil {
				return p.fail(err)
			}
			cols[i] = col
		}
		over = append(over, "PARTITION BY "+strings.Join(cols, ", "))
	}
	if len(orderBy) > 0 {
		keys := make([]string, len(orderBy))
		for i, o := range orderBy {
			col, err := p.column(o.Field)
			if err != nil {
				return p.fail(err)
			}
			if o.Desc {
				col += " DESC"
			}
			keys[i] = col
		}
		over = append(over, "ORDER BY "+strings.Join(keys, ", "))
	}
	p.windows = append(p.windows, fmt.Sprintf("%s OVER (%s) AS %s", fn, strings.Join(over, " "), alias))
	return p
}

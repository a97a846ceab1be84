package query

import (
	"fmt"
	"strings"

	"github.com/nexuscrm/strata/pkg/navigation"
	"github.com/nexuscrm/strata/pkg/sanitize"
)

// Compiled is an immutable rendered statement. Unlike the plan that
// produced it, a Compiled value is safe to share across goroutines.
type Compiled struct {
	Query string
	Args  []any
}

// SQL implements Subquery.
func (c *Compiled) SQL() (string, []any, error) {
	return c.Query, c.Args, nil
}

// Subquery is anything that renders to a complete SELECT: a plan, a
// compiled statement, or a Raw fragment.
type Subquery interface {
	SQL() (string, []any, error)
}

// Raw wraps literal SQL as a Subquery, for CTE bodies and set-operation
// operands no plan can express (recursive parts in particular).
func Raw(sql string, args ...any) Subquery {
	return rawSub{sql: sql, args: args}
}

type rawSub struct {
	sql  string
	args []any
}

func (r rawSub) SQL() (string, []any, error) { return r.sql, r.args, nil }

type frag struct {
	sql  string
	args []any
}

type cte struct {
	name      string
	sql       string
	args      []any
	recursive bool
}

type setOp struct {
	keyword string
	sql     string
	args    []any
}

type orderSpec struct {
	col  string
	desc bool
}

// mysqlNoLimit stands in for "no limit" when only an offset is present;
// the MySQL manual prescribes this constant for exactly that.
const mysqlNoLimit = "18446744073709551615"

// stmt carries the rendered pieces of one statement in clause order.
// Plan and Projected each fill one and hand it to render.
type stmt struct {
	dialect  sanitize.Dialect
	ctes     []cte
	distinct bool
	selects  []frag
	from     frag
	joins    []frag
	wheres   []frag
	groupBy  []string
	havings  []frag
	orders   []orderSpec
	skip     *int
	take     *int
	setOps   []setOp
}

// render assembles the SQL text and its argument list. Arguments are
// collected strictly in render order: CTE prologue, select list, FROM,
// joins, WHERE, HAVING, then each set operand.
func (s *stmt) render() (string, []any) {
	var sb strings.Builder
	var args []any

	if len(s.ctes) > 0 {
		sb.WriteString("WITH ")
		for _, c := range s.ctes {
			if c.recursive {
				// One recursive member makes the whole prologue
				// RECURSIVE; both dialects accept plain members under it.
				sb.WriteString("RECURSIVE ")
				break
			}
		}
		for i, c := range s.ctes {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(c.name)
			sb.WriteString(" AS (")
			sb.WriteString(c.sql)
			sb.WriteString(")")
			args = append(args, c.args...)
		}
		sb.WriteString(" ")
	}

	sb.WriteString("SELECT ")
	if s.distinct {
		sb.WriteString("DISTINCT ")
	}
	for i, sel := range s.selects {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(sel.sql)
		args = append(args, sel.args...)
	}

	sb.WriteString(" FROM ")
	sb.WriteString(s.from.sql)
	args = append(args, s.from.args...)

	for _, j := range s.joins {
		sb.WriteString(" ")
		sb.WriteString(j.sql)
		args = append(args, j.args...)
	}

	if len(s.wheres) > 0 {
		sb.WriteString(" WHERE ")
		for i, w := range s.wheres {
			if i > 0 {
				sb.WriteString(" AND ")
			}
			sb.WriteString(w.sql)
			args = append(args, w.args...)
		}
	}

	if len(s.groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(s.groupBy, ", "))
	}

	if len(s.havings) > 0 {
		sb.WriteString(" HAVING ")
		for i, h := range s.havings {
			if i > 0 {
				sb.WriteString(" AND ")
			}
			sb.WriteString(h.sql)
			args = append(args, h.args...)
		}
	}

	if len(s.orders) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, o := range s.orders {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(o.col)
			if o.desc {
				sb.WriteString(" DESC")
			}
		}
	}

	s.renderLimit(&sb)

	if len(s.setOps) == 0 {
		return sb.String(), args
	}

	var out strings.Builder
	out.WriteString("(")
	out.WriteString(sb.String())
	out.WriteString(")")
	for _, op := range s.setOps {
		out.WriteString(" ")
		out.WriteString(op.keyword)
		out.WriteString(" ")
		out.WriteString(op.sql)
		args = append(args, op.args...)
	}
	return out.String(), args
}

// renderLimit emits LIMIT/OFFSET. An offset without a limit needs a
// dialect filler: SQLite accepts LIMIT -1, MySQL wants its documented
// maximum.
func (s *stmt) renderLimit(sb *strings.Builder) {
	switch {
	case s.take != nil && s.skip != nil:
		fmt.Fprintf(sb, " LIMIT %d OFFSET %d", *s.take, *s.skip)
	case s.take != nil:
		fmt.Fprintf(sb, " LIMIT %d", *s.take)
	case s.skip != nil:
		if s.dialect == sanitize.SQLite {
			fmt.Fprintf(sb, " LIMIT -1 OFFSET %d", *s.skip)
		} else {
			fmt.Fprintf(sb, " LIMIT %s OFFSET %d", mysqlNoLimit, *s.skip)
		}
	}
}

// statement lays the plan out for rendering. The select list falls back
// from custom entries to the base star plus joined include columns, and
// window entries always ride at the end.
func (p *Plan[T]) statement() *stmt {
	s := &stmt{
		dialect:  p.dialect,
		ctes:     p.ctes,
		distinct: p.distinct,
		from:     frag{sql: p.table.Name + " " + navigation.BaseAlias},
		wheres:   p.wheres,
		groupBy:  p.groupCols,
		havings:  p.havings,
		orders:   p.orders,
		skip:     p.skip,
		take:     p.take,
		setOps:   p.setOps,
	}
	if p.fromRaw != nil {
		s.from = *p.fromRaw
	}
	if len(p.selects) > 0 {
		s.selects = append(s.selects, p.selects...)
	} else {
		s.selects = append(s.selects, frag{sql: navigation.BaseAlias + ".*"})
		if p.nav != nil {
			for _, col := range p.nav.SelectColumns() {
				s.selects = append(s.selects, frag{sql: col})
			}
		}
	}
	for _, w := range p.windows {
		s.selects = append(s.selects, frag{sql: w})
	}
	if p.nav != nil {
		for _, j := range p.nav.JoinClauses() {
			s.joins = append(s.joins, frag{sql: j})
		}
	}
	s.joins = append(s.joins, p.rawJoins...)
	return s
}

// Compile renders the plan into SQL once; repeated calls return the
// cached statement until a mutating call invalidates it.
func (p *Plan[T]) Compile() (*Compiled, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.compiled != nil {
		return p.compiled, nil
	}
	q, args := p.statement().render()
	p.compiled = &Compiled{Query: q, Args: args}
	return p.compiled, nil
}

// SQL implements Subquery so plans can feed set operations, subquery
// predicates, and CTEs of other plans.
func (p *Plan[T]) SQL() (string, []any, error) {
	c, err := p.Compile()
	if err != nil {
		return "", nil, err
	}
	return c.Query, c.Args, nil
}

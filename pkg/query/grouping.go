package query

import (
	"context"
	"fmt"
	"strings"

	qerrors "github.com/nexuscrm/strata/pkg/errors"
	"github.com/nexuscrm/strata/pkg/navigation"
	"github.com/nexuscrm/strata/pkg/schema"
)

// Grouping is one group of a grouped execution: the key values in
// GroupBy field order and the complete member set in fetch order.
type Grouping[T any] struct {
	Key   []any
	Items []*T
}

// Groups executes the plan as a grouped query and returns full member
// sets per distinct key.
//
// Without HAVING this is a single fetch of the filtered set grouped in
// memory, since SQL GROUP BY would collapse members away. With HAVING
// the qualifying keys come from a grouped statement first, then the
// filtered set is fetched and grouped, keeping only qualifying groups.
// Both shapes stay linear in the fetched row count.
func (p *Plan[T]) Groups(ctx context.Context) ([]Grouping[T], error) {
	if p.err != nil {
		return nil, p.err
	}
	if len(p.groupFields) == 0 {
		return nil, qerrors.NewPlanError("Groups", "no prior GroupBy")
	}

	cols := make([]*schema.Column, len(p.groupFields))
	for i, f := range p.groupFields {
		// Validated when GroupBy registered the fields.
		cols[i] = p.table.MustColumn(f)
	}

	var allowed map[string]bool
	if len(p.havings) > 0 {
		var err error
		allowed, err = p.qualifyingKeys(ctx)
		if err != nil {
			return nil, err
		}
	}

	fetch := p.clone()
	fetch.groupFields = nil
	fetch.groupCols = nil
	fetch.havings = nil
	ents, err := fetch.All(ctx)
	if err != nil {
		return nil, err
	}

	idx := make(map[string]int)
	var out []Grouping[T]
	for _, e := range ents {
		parts := make([]any, len(cols))
		for i, c := range cols {
			parts[i] = c.Value(e)
		}
		fp := fingerprint(parts)
		if allowed != nil && !allowed[fp] {
			continue
		}
		if i, ok := idx[fp]; ok {
			out[i].Items = append(out[i].Items, e)
		} else {
			idx[fp] = len(out)
			out = append(out, Grouping[T]{Key: parts, Items: []*T{e}})
		}
	}
	return out, nil
}

// qualifyingKeys runs the grouped HAVING statement and fingerprints
// each surviving key tuple.
func (p *Plan[T]) qualifyingKeys(ctx context.Context) (map[string]bool, error) {
	s := &stmt{
		dialect: p.dialect,
		ctes:    p.ctes,
		from:    frag{sql: p.table.Name + " " + navigation.BaseAlias},
		wheres:  p.wheres,
		groupBy: p.groupCols,
		havings: p.havings,
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
	for _, col := range p.groupCols {
		s.selects = append(s.selects, frag{sql: col})
	}

	q, args := s.render()
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	allowed := make(map[string]bool)
	holders := make([]any, len(p.groupCols))
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
		parts := make([]any, len(holders))
		for i := range holders {
			parts[i] = *(holders[i].(*any))
		}
		allowed[fingerprint(parts)] = true
	}
	return allowed, rows.Err()
}

// fingerprint folds a key tuple into a map key. Byte slices normalize
// to text so keys scanned from the database match keys read from
// populated entity fields.
func fingerprint(parts []any) string {
	var sb strings.Builder
	for i, part := range parts {
		if i > 0 {
			sb.WriteByte(0x1f)
		}
		if b, ok := part.([]byte); ok {
			sb.WriteString(string(b))
			continue
		}
		fmt.Fprintf(&sb, "%v", part)
	}
	return sb.String()
}

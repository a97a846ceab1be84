// Package materialize turns result rows into entity graphs. The primary
// pass deduplicates joined rows and populates single-valued and
// many-to-many navigations; a second pass hydrates inverse collections
// with one batched key query per collection node per depth level, so
// round trips stay bounded by include depth instead of row count.
package materialize

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/nexuscrm/strata/pkg/navigation"
	"github.com/nexuscrm/strata/pkg/schema"
	"github.com/nexuscrm/strata/pkg/store"
)

type entry struct {
	ent any
	key string
}

// instanceSet tracks the entities materialized for one navigation path,
// in first-seen order, deduplicated by identity key.
type instanceSet struct {
	list []entry
	seen map[string]int
}

func newInstanceSet() *instanceSet {
	return &instanceSet{seen: make(map[string]int)}
}

func (s *instanceSet) get(key string) (any, bool) {
	if i, ok := s.seen[key]; ok {
		return s.list[i].ent, true
	}
	return nil, false
}

func (s *instanceSet) add(key string, ent any) {
	s.seen[key] = len(s.list)
	s.list = append(s.list, entry{ent: ent, key: key})
}

// Materializer builds the entity graph for one executed query. It is
// single-use: Materialize consumes the primary rows, Hydrate issues the
// collection follow-ups and finishes attachment.
type Materializer struct {
	table *schema.Table
	nav   *navigation.Result

	// byPath holds materialized instances per navigation path, the
	// empty path being the root entities in output order.
	byPath map[string]*instanceSet

	// navOneKey remembers, per single navigation and parent key, the
	// attached child's key; empty string records an unmatched LEFT JOIN
	// so later duplicate rows skip the columns entirely.
	navOneKey map[string]string

	// m2m accumulates junction children per node path and parent key,
	// with a seen set guarding against row multiplication.
	m2m     map[string]map[string][]any
	m2mSeen map[string]map[string]map[string]bool

	rowCount int
}

// New prepares a materializer for one query. nav may be nil when the
// plan had no includes.
func New(table *schema.Table, nav *navigation.Result) *Materializer {
	return &Materializer{
		table:     table,
		nav:       nav,
		byPath:    make(map[string]*instanceSet),
		navOneKey: make(map[string]string),
		m2m:       make(map[string]map[string][]any),
		m2mSeen:   make(map[string]map[string]map[string]bool),
	}
}

func (m *Materializer) set(path string) *instanceSet {
	s, ok := m.byPath[path]
	if !ok {
		s = newInstanceSet()
		m.byPath[path] = s
	}
	return s
}

// Materialize consumes the primary result set: one entity per distinct
// identity key, in first-occurrence order, with single-valued and
// many-to-many navigations populated from the joined columns.
func (m *Materializer) Materialize(ctx context.Context, rows *sql.Rows) ([]any, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	pk := m.table.PK()
	roots := m.set("")

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vals, err := scanRow(rows, names)
		if err != nil {
			return nil, err
		}

		key, haveKey := "", false
		if v, present := columnValue(pk, "", vals); present {
			key, haveKey = normKey(v), true
		}
		if !haveKey {
			// No primary key in the result set: every row is distinct.
			key = fmt.Sprintf("row-%d", m.rowCount)
		}
		m.rowCount++

		ent, ok := roots.get(key)
		if !ok {
			built, _, err := buildEntity(m.table, "", vals)
			if err != nil {
				return nil, err
			}
			ent = built
			roots.add(key, ent)
		}

		if m.nav != nil {
			if err := m.attachRow(ent, key, m.nav.Roots, vals); err != nil {
				return nil, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]any, len(roots.list))
	for i, e := range roots.list {
		out[i] = e.ent
	}
	return out, nil
}

// attachRow processes one row's joined columns for the given nodes.
// Inverse collections are skipped here; they hydrate in the second pass.
// It runs on every row, not just first occurrences, because repeated
// parents can still carry unseen children when joins multiply rows.
func (m *Materializer) attachRow(parent any, parentKey string, nodes []*navigation.Node, vals map[string]any) error {
	for _, node := range nodes {
		switch node.Nav.Kind {
		case schema.NavMany:
			continue

		case schema.NavOne:
			mark := node.Path + "|" + parentKey
			childSet := m.set(node.Path)
			var child any
			var childKey string

			if ck, done := m.navOneKey[mark]; done {
				if ck == "" {
					continue
				}
				child, _ = childSet.get(ck)
				childKey = ck
			} else {
				built, anyVal, err := buildEntity(node.Table, node.Alias, vals)
				if err != nil {
					return err
				}
				if !anyVal {
					// Unmatched LEFT JOIN: leave the navigation unset.
					m.navOneKey[mark] = ""
					continue
				}
				pv, _ := columnValue(node.Table.PK(), node.Alias, vals)
				childKey = normKey(pv)
				if existing, ok := childSet.get(childKey); ok {
					child = existing
				} else {
					child = built
					childSet.add(childKey, child)
				}
				node.Nav.AttachOne(parent, child)
				m.navOneKey[mark] = childKey
			}
			if child != nil {
				if err := m.attachRow(child, childKey, node.Children, vals); err != nil {
					return err
				}
			}

		case schema.NavManyToMany:
			built, anyVal, err := buildEntity(node.Table, node.Alias, vals)
			if err != nil {
				return err
			}
			if !anyVal {
				continue
			}
			pv, _ := columnValue(node.Table.PK(), node.Alias, vals)
			childKey := normKey(pv)
			childSet := m.set(node.Path)
			child, ok := childSet.get(childKey)
			if !ok {
				child = built
				childSet.add(childKey, child)
			}
			if !m.m2mMember(node.Path, parentKey, childKey) {
				m.m2m[node.Path][parentKey] = append(m.m2m[node.Path][parentKey], child)
			}
			if err := m.attachRow(child, childKey, node.Children, vals); err != nil {
				return err
			}
		}
	}
	return nil
}

// m2mMember records membership and reports whether the pair was already
// seen.
func (m *Materializer) m2mMember(path, parentKey, childKey string) bool {
	byParent, ok := m.m2mSeen[path]
	if !ok {
		byParent = make(map[string]map[string]bool)
		m.m2mSeen[path] = byParent
	}
	members, ok := byParent[parentKey]
	if !ok {
		members = make(map[string]bool)
		byParent[parentKey] = members
	}
	if members[childKey] {
		return true
	}
	members[childKey] = true
	if m.m2m[path] == nil {
		m.m2m[path] = make(map[string][]any)
	}
	return false
}

// Hydrate runs the collection passes in depth order and finishes
// many-to-many attachment. Callers must invoke it after Materialize even
// when no inverse collections exist.
func (m *Materializer) Hydrate(ctx context.Context, db store.Querier) error {
	if m.nav == nil {
		return nil
	}
	nodes := m.nav.Collections()
	slices.SortStableFunc(nodes, func(a, b *navigation.Node) int { return a.Depth - b.Depth })
	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.hydrateCollection(ctx, db, node); err != nil {
			return err
		}
	}
	m.finalizeManyToMany()
	return nil
}

// hydrateCollection issues one batched key query for the node and
// attaches each owner's group, an empty collection when nothing matched.
func (m *Materializer) hydrateCollection(ctx context.Context, db store.Querier, node *navigation.Node) error {
	parentPath := ""
	if node.Parent != nil {
		parentPath = node.Parent.Path
	}
	owners := m.set(parentPath)
	if len(owners.list) == 0 {
		return nil
	}

	srcPK := node.Source.PK()
	var keyVals []any
	keySeen := make(map[string]bool)
	for _, e := range owners.list {
		v := srcPK.Value(e.ent)
		k := normKey(v)
		if !keySeen[k] {
			keySeen[k] = true
			keyVals = append(keyVals, v)
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(node.SubSelectColumns(), ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(node.Table.Name)
	sb.WriteString(" ")
	sb.WriteString(node.Alias)
	for _, join := range node.SubJoinClauses() {
		sb.WriteString(" ")
		sb.WriteString(join)
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(node.Alias)
	sb.WriteString(".")
	sb.WriteString(node.FKColumn)
	sb.WriteString(" IN (")
	for i := range keyVals {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("?")
	}
	sb.WriteString(")")

	rows, err := db.QueryContext(ctx, sb.String(), keyVals...)
	if err != nil {
		return err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return err
	}
	fkCol, ok := node.Table.ColumnByName(node.FKColumn)
	if !ok {
		return fmt.Errorf("collection %s: foreign key column %s not mapped", node.Path, node.FKColumn)
	}

	groups := make(map[string][]any)
	childSet := m.set(node.Path)
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		vals, err := scanRow(rows, names)
		if err != nil {
			return err
		}
		built, _, err := buildEntity(node.Table, node.Alias, vals)
		if err != nil {
			return err
		}
		pv, _ := columnValue(node.Table.PK(), node.Alias, vals)
		childKey := normKey(pv)
		child, ok := childSet.get(childKey)
		if !ok {
			child = built
			childSet.add(childKey, child)
			fv, _ := columnValue(fkCol, node.Alias, vals)
			groups[normKey(fv)] = append(groups[normKey(fv)], child)
		}
		if err := m.attachRow(child, childKey, node.Children, vals); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, e := range owners.list {
		k := normKey(srcPK.Value(e.ent))
		node.Nav.AttachMany(e.ent, groups[k])
	}
	return nil
}

// finalizeManyToMany attaches accumulated junction children, an empty
// collection for parents that matched none.
func (m *Materializer) finalizeManyToMany() {
	for _, node := range m.nav.Nodes {
		if node.Nav.Kind != schema.NavManyToMany {
			continue
		}
		parentPath := ""
		if node.Parent != nil {
			parentPath = node.Parent.Path
		}
		accum := m.m2m[node.Path]
		for _, e := range m.set(parentPath).list {
			node.Nav.AttachMany(e.ent, accum[e.key])
		}
	}
}

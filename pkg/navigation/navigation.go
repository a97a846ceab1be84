// Package navigation expands dotted include paths into a validated join
// tree. Single-valued and many-to-many relationships become LEFT JOIN
// clauses with aliased select columns; inverse collections are excluded
// from the joined statement and hydrated later through batched key
// queries, since a 1:N join would duplicate parent rows.
package navigation

import (
	"fmt"
	"strings"

	qerrors "github.com/nexuscrm/strata/pkg/errors"
	"github.com/nexuscrm/strata/pkg/schema"
)

// BaseAlias is the alias of the root table in every rendered statement.
const BaseAlias = "t0"

// DefaultMaxDepth bounds include path length when no explicit maximum is
// configured.
const DefaultMaxDepth = 5

// Node is one resolved navigation step. Nodes form a tree per query;
// repeated path prefixes share a node instead of duplicating joins.
type Node struct {
	// Path is the full dotted path from the root to this node.
	Path string
	// Nav is the declared relationship this node resolves.
	Nav *schema.Navigation
	// Source and Table are the parent-side and related descriptors.
	Source *schema.Table
	Table  *schema.Table
	// Alias is the node's join alias; JunctionAlias is set only for
	// many-to-many nodes.
	Alias         string
	JunctionAlias string
	// FKColumn is the resolved pairing column: on the parent table for
	// single navigations, on the related table for inverse collections.
	FKColumn string
	// Depth is the 1-based segment count of Path.
	Depth    int
	Parent   *Node
	Children []*Node
}

// Collection reports whether this node holds many related entities.
func (n *Node) Collection() bool {
	return n.Nav.Collection()
}

// ManyToMany reports whether this node routes through a junction table.
func (n *Node) ManyToMany() bool {
	return n.Nav.Kind == schema.NavManyToMany
}

// ParentAlias is the alias this node joins against.
func (n *Node) ParentAlias() string {
	if n.Parent == nil {
		return BaseAlias
	}
	return n.Parent.Alias
}

// joins renders this node's LEFT JOIN clauses. Many-to-many nodes chain
// two joins through the junction table.
func (n *Node) joins() []string {
	switch n.Nav.Kind {
	case schema.NavOne:
		return []string{fmt.Sprintf("LEFT JOIN %s %s ON %s.%s = %s.%s",
			n.Table.Name, n.Alias, n.ParentAlias(), n.FKColumn, n.Alias, n.Table.PK().Name)}
	case schema.NavManyToMany:
		return []string{
			fmt.Sprintf("LEFT JOIN %s %s ON %s.%s = %s.%s",
				n.Nav.JunctionTable, n.JunctionAlias, n.ParentAlias(), n.Source.PK().Name, n.JunctionAlias, n.Nav.JunctionLocal),
			fmt.Sprintf("LEFT JOIN %s %s ON %s.%s = %s.%s",
				n.Table.Name, n.Alias, n.JunctionAlias, n.Nav.JunctionRemote, n.Alias, n.Table.PK().Name),
		}
	}
	return nil
}

// selects renders one aliased SELECT entry per mapped column, using the
// deterministic {alias}_{column} scheme the materializer reads back.
func (n *Node) selects() []string {
	cols := n.Table.Columns()
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, fmt.Sprintf("%s.%s AS %s_%s", n.Alias, c.Name, n.Alias, c.Name))
	}
	return out
}

// connected walks children that render inside the same statement,
// stopping at inverse collections, which start statements of their own.
func connected(nodes []*Node) []*Node {
	var out []*Node
	var visit func([]*Node)
	visit = func(ns []*Node) {
		for _, n := range ns {
			if n.Nav.Kind == schema.NavMany {
				continue
			}
			out = append(out, n)
			visit(n.Children)
		}
	}
	visit(nodes)
	return out
}

// Connected returns this node's descendants that join into the statement
// this node is the base of.
func (n *Node) Connected() []*Node {
	return connected(n.Children)
}

// SubJoinClauses renders the JOIN clauses for this node's own statement,
// used when hydrating an inverse collection.
func (n *Node) SubJoinClauses() []string {
	var out []string
	for _, d := range n.Connected() {
		out = append(out, d.joins()...)
	}
	return out
}

// SubSelectColumns renders the SELECT list for this node's own
// statement: its columns first, then its joined descendants'.
func (n *Node) SubSelectColumns() []string {
	out := n.selects()
	for _, d := range n.Connected() {
		out = append(out, d.selects()...)
	}
	return out
}

// Result is the resolved join tree for one query.
type Result struct {
	// Roots holds the depth-1 nodes in first-seen order.
	Roots []*Node
	// Nodes holds every node in creation order, which is also alias
	// order.
	Nodes []*Node

	byAlias map[string]*Node
}

// Empty reports whether no include paths were registered.
func (r *Result) Empty() bool {
	return len(r.Nodes) == 0
}

// ByAlias resolves a join alias to its node.
func (r *Result) ByAlias(alias string) (*Node, bool) {
	n, ok := r.byAlias[alias]
	return n, ok
}

// MainNodes returns the nodes joined into the primary statement, in
// alias order: everything reachable from the root without crossing an
// inverse collection.
func (r *Result) MainNodes() []*Node {
	return connected(r.Roots)
}

// JoinClauses renders the primary statement's JOIN clauses.
func (r *Result) JoinClauses() []string {
	var out []string
	for _, n := range r.MainNodes() {
		out = append(out, n.joins()...)
	}
	return out
}

// SelectColumns renders the primary statement's aliased include columns.
func (r *Result) SelectColumns() []string {
	var out []string
	for _, n := range r.MainNodes() {
		out = append(out, n.selects()...)
	}
	return out
}

// Collections returns every inverse-collection node in creation order.
// Callers hydrate them level by level using Depth.
func (r *Result) Collections() []*Node {
	var out []*Node
	for _, n := range r.Nodes {
		if n.Nav.Kind == schema.NavMany {
			out = append(out, n)
		}
	}
	return out
}

type resolver struct {
	reg      *schema.Registry
	root     *schema.Table
	maxDepth int

	seq        int
	nodes      []*Node
	roots      []*Node
	byPath     map[string]*Node
	registered map[string]bool
	// edges accumulates source->target entity relations for cycle
	// detection across all paths of the query.
	edges map[string]map[string]bool
}

// Resolve expands include paths against the root descriptor. maxDepth
// bounds path length; zero or negative selects DefaultMaxDepth. All
// validation happens here, before any SQL is built.
func Resolve(reg *schema.Registry, root *schema.Table, paths []string, maxDepth int) (*Result, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	r := &resolver{
		reg:        reg,
		root:       root,
		maxDepth:   maxDepth,
		byPath:     make(map[string]*Node),
		registered: make(map[string]bool),
		edges:      make(map[string]map[string]bool),
	}
	for _, p := range paths {
		if err := r.addPath(p); err != nil {
			return nil, err
		}
	}
	res := &Result{
		Roots:   r.roots,
		Nodes:   r.nodes,
		byAlias: make(map[string]*Node, len(r.nodes)),
	}
	for _, n := range r.nodes {
		res.byAlias[n.Alias] = n
	}
	return res, nil
}

func (r *resolver) addPath(path string) error {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return qerrors.NewNavigationError(path, "empty include path")
	}
	if r.registered[trimmed] {
		return qerrors.NewNavigationError(trimmed, "duplicate include path")
	}
	r.registered[trimmed] = true

	segments := strings.Split(trimmed, ".")
	if len(segments) > r.maxDepth {
		return qerrors.NewNavigationError(trimmed, fmt.Sprintf("depth %d exceeds maximum %d", len(segments), r.maxDepth))
	}

	var parent *Node
	current := r.root
	prefix := ""
	for i, seg := range segments {
		if seg == "" {
			return qerrors.NewNavigationError(trimmed, "empty path segment")
		}
		if i == 0 {
			prefix = seg
		} else {
			prefix = prefix + "." + seg
		}
		if node, ok := r.byPath[prefix]; ok {
			parent = node
			current = node.Table
			continue
		}
		node, err := r.newNode(trimmed, prefix, current, seg, parent, i+1)
		if err != nil {
			return err
		}
		parent = node
		current = node.Table
	}
	return nil
}

func (r *resolver) newNode(fullPath, prefix string, source *schema.Table, segment string, parent *Node, depth int) (*Node, error) {
	nav, err := source.Navigation(segment)
	if err != nil {
		return nil, err
	}
	target, err := r.reg.Table(nav.Target)
	if err != nil {
		return nil, err
	}
	if err := r.checkCycle(fullPath, source.Entity, target.Entity); err != nil {
		return nil, err
	}

	node := &Node{
		Path:   prefix,
		Nav:    nav,
		Source: source,
		Table:  target,
		Depth:  depth,
		Parent: parent,
	}
	switch nav.Kind {
	case schema.NavOne:
		c, err := source.Column(nav.ForeignKey)
		if err != nil {
			return nil, qerrors.NewSchemaError(source.Entity, segment, fmt.Sprintf("foreign key field %q is not mapped", nav.ForeignKey))
		}
		node.FKColumn = c.Name
	case schema.NavMany:
		c, err := target.Column(nav.ForeignKey)
		if err != nil {
			return nil, qerrors.NewSchemaError(source.Entity, segment, fmt.Sprintf("foreign key field %q is not mapped on %s", nav.ForeignKey, nav.Target))
		}
		node.FKColumn = c.Name
	case schema.NavManyToMany:
		if nav.JunctionTable == "" || nav.JunctionLocal == "" || nav.JunctionRemote == "" {
			return nil, qerrors.NewSchemaError(source.Entity, segment, "many-to-many navigation is missing its junction metadata")
		}
	}

	r.seq++
	node.Alias = fmt.Sprintf("t%d", r.seq)
	if nav.Kind == schema.NavManyToMany {
		node.JunctionAlias = fmt.Sprintf("j%d", r.seq)
	}

	if parent == nil {
		r.roots = append(r.roots, node)
	} else {
		parent.Children = append(parent.Children, node)
	}
	r.nodes = append(r.nodes, node)
	r.byPath[prefix] = node
	r.addEdge(source.Entity, target.Entity)
	return node, nil
}

func (r *resolver) addEdge(source, target string) {
	if r.edges[source] == nil {
		r.edges[source] = make(map[string]bool)
	}
	r.edges[source][target] = true
}

// checkCycle rejects a relation that closes a cycle in the accumulated
// graph: a direct self reference, the reverse of an existing edge, or a
// multi-hop path from target back to source.
func (r *resolver) checkCycle(path, source, target string) error {
	cycleErr := func() error {
		return qerrors.NewNavigationError(path, fmt.Sprintf("relation %s -> %s closes a cycle", source, target))
	}
	if source == target {
		return cycleErr()
	}
	if r.edges[target][source] {
		return cycleErr()
	}
	if r.reaches(target, source, make(map[string]bool)) {
		return cycleErr()
	}
	return nil
}

func (r *resolver) reaches(from, to string, seen map[string]bool) bool {
	if seen[from] {
		return false
	}
	seen[from] = true
	for next := range r.edges[from] {
		if next == to || r.reaches(next, to, seen) {
			return true
		}
	}
	return false
}

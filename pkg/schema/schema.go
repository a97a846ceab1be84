// Package schema holds the static entity metadata registry: table and
// column descriptors, foreign keys, and navigation relationships. Tables
// are declared once at startup through the builder API and frozen; after
// Freeze the registry is immutable and safe for concurrent reads.
package schema

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	qerrors "github.com/nexuscrm/strata/pkg/errors"
)

// NavKind discriminates navigation relationship shapes.
type NavKind int

const (
	// NavOne is a single-valued navigation. The foreign key lives on the
	// declaring entity and references the target's primary key.
	NavOne NavKind = iota
	// NavMany is an inverse collection. The foreign key lives on the
	// target entity and references the declaring entity's primary key.
	NavMany
	// NavManyToMany is a collection reached through a junction table.
	NavManyToMany
)

func (k NavKind) String() string {
	switch k {
	case NavOne:
		return "one"
	case NavMany:
		return "many"
	case NavManyToMany:
		return "many-to-many"
	}
	return "unknown"
}

// Column describes one mapped scalar column.
type Column struct {
	// Name is the SQL column name.
	Name string
	// Field is the Go struct field name, the logical name used by
	// expressions and include paths.
	Field string

	PrimaryKey    bool
	AutoIncrement bool
	Nullable      bool
	Unique        bool

	addr func(entity any) any
}

// Addr returns a pointer to the column's field on the given entity. The
// entity must be the *T the owning table was built for.
func (c *Column) Addr(entity any) any {
	return c.addr(entity)
}

// Value reads the column's current value from the entity.
func (c *Column) Value(entity any) any {
	switch p := c.addr(entity).(type) {
	case *string:
		return *p
	case *int:
		return *p
	case *int32:
		return *p
	case *int64:
		return *p
	case *float32:
		return *p
	case *float64:
		return *p
	case *bool:
		return *p
	case *time.Time:
		return *p
	case *uuid.UUID:
		return *p
	case *[]byte:
		return *p
	default:
		v := reflect.ValueOf(p)
		if v.Kind() == reflect.Pointer && !v.IsNil() {
			return v.Elem().Interface()
		}
		return nil
	}
}

// ForeignKey declares that a scalar field references another entity.
type ForeignKey struct {
	// Field is the declaring entity's key-holding field.
	Field string
	// RefEntity and RefField name the referenced entity and its field.
	RefEntity string
	RefField  string
}

// Index declares a (possibly unique) index over one or more columns.
type Index struct {
	Name    string
	Unique  bool
	Columns []string
}

// Navigation describes a relationship to another entity.
type Navigation struct {
	// Name is the property name used in include paths.
	Name string
	Kind NavKind
	// Target is the related entity name in the registry.
	Target string
	// ForeignKey is the paired key field: on the declaring entity for
	// NavOne, on the target entity for NavMany. Unused for many-to-many.
	ForeignKey string

	// Junction settings, set only for NavManyToMany. JunctionLocal and
	// JunctionRemote are SQL column names on the junction table holding
	// the declaring and target primary keys respectively.
	JunctionTable  string
	JunctionLocal  string
	JunctionRemote string

	attachOne  func(parent, child any)
	attachMany func(parent any, children []any)
}

// Collection reports whether the navigation holds many related entities.
func (n *Navigation) Collection() bool {
	return n.Kind == NavMany || n.Kind == NavManyToMany
}

// AttachOne sets a single-valued navigation on the parent.
func (n *Navigation) AttachOne(parent, child any) {
	if n.attachOne != nil {
		n.attachOne(parent, child)
	}
}

// AttachMany sets a collection navigation on the parent. An empty slice
// attaches an empty, non-nil collection.
func (n *Navigation) AttachMany(parent any, children []any) {
	if n.attachMany != nil {
		n.attachMany(parent, children)
	}
}

// Table is the immutable descriptor of one mapped entity.
type Table struct {
	// Entity is the registry key, normally the Go type name.
	Entity string
	// Name is the SQL table name.
	Name string

	columns     []*Column
	navs        []*Navigation
	foreignKeys []ForeignKey
	indexes     []Index

	pk        *Column
	byField   map[string]*Column
	byName    map[string]*Column
	navByName map[string]*Navigation

	factory func() any
}

// New allocates a fresh entity instance (*T).
func (t *Table) New() any {
	return t.factory()
}

// Columns returns the ordered column list. Callers must not modify it.
func (t *Table) Columns() []*Column {
	return t.columns
}

// Navigations returns the declared relationships in declaration order.
func (t *Table) Navigations() []*Navigation {
	return t.navs
}

// ForeignKeys returns the declared foreign keys.
func (t *Table) ForeignKeys() []ForeignKey {
	return t.foreignKeys
}

// Indexes returns the declared indexes.
func (t *Table) Indexes() []Index {
	return t.indexes
}

// PK returns the primary key column.
func (t *Table) PK() *Column {
	return t.pk
}

// Column resolves a logical field name.
func (t *Table) Column(field string) (*Column, error) {
	if c, ok := t.byField[field]; ok {
		return c, nil
	}
	return nil, qerrors.NewSchemaError(t.Entity, field, "no mapped column for field")
}

// MustColumn is Column for fields known statically to exist.
func (t *Table) MustColumn(field string) *Column {
	c, err := t.Column(field)
	if err != nil {
		panic(err)
	}
	return c
}

// ColumnByName resolves a SQL column name.
func (t *Table) ColumnByName(name string) (*Column, bool) {
	c, ok := t.byName[name]
	return c, ok
}

// Navigation resolves a navigation property name.
func (t *Table) Navigation(name string) (*Navigation, error) {
	if n, ok := t.navByName[name]; ok {
		return n, nil
	}
	return nil, qerrors.NewSchemaError(t.Entity, name, "no navigation with this name")
}

// Registry maps entity names to frozen table descriptors.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table
	frozen bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Table)}
}

// Register adds a built table. It fails after Freeze or on a duplicate
// entity name.
func (r *Registry) Register(t *Table) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return qerrors.NewSchemaError(t.Entity, "", "registry is frozen")
	}
	if _, ok := r.tables[t.Entity]; ok {
		return qerrors.NewSchemaError(t.Entity, "", "entity already registered")
	}
	r.tables[t.Entity] = t
	return nil
}

// MustRegister registers a table built from static declarations, where a
// failure is a programming error.
func (r *Registry) MustRegister(t *Table, err error) *Registry {
	if err != nil {
		panic(err)
	}
	if rerr := r.Register(t); rerr != nil {
		panic(rerr)
	}
	return r
}

// Freeze validates cross-entity references and seals the registry. After
// a successful Freeze no further registration is accepted.
func (r *Registry) Freeze() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return nil
	}
	for _, t := range r.tables {
		for _, fk := range t.foreignKeys {
			ref, ok := r.tables[fk.RefEntity]
			if !ok {
				return qerrors.NewSchemaError(t.Entity, fk.Field, fmt.Sprintf("foreign key references unknown entity %q", fk.RefEntity))
			}
			if _, ok := ref.byField[fk.RefField]; !ok {
				return qerrors.NewSchemaError(t.Entity, fk.Field, fmt.Sprintf("foreign key references unknown field %s.%s", fk.RefEntity, fk.RefField))
			}
		}
		for _, nav := range t.navs {
			target, ok := r.tables[nav.Target]
			if !ok {
				return qerrors.NewSchemaError(t.Entity, nav.Name, fmt.Sprintf("navigation targets unknown entity %q", nav.Target))
			}
			switch nav.Kind {
			case NavOne:
				if _, ok := t.byField[nav.ForeignKey]; !ok {
					return qerrors.NewSchemaError(t.Entity, nav.Name, fmt.Sprintf("foreign key field %q not mapped on %s", nav.ForeignKey, t.Entity))
				}
			case NavMany:
				if _, ok := target.byField[nav.ForeignKey]; !ok {
					return qerrors.NewSchemaError(t.Entity, nav.Name, fmt.Sprintf("foreign key field %q not mapped on %s", nav.ForeignKey, nav.Target))
				}
			case NavManyToMany:
				if nav.JunctionTable == "" || nav.JunctionLocal == "" || nav.JunctionRemote == "" {
					return qerrors.NewSchemaError(t.Entity, nav.Name, "many-to-many navigation requires a junction table and both key columns")
				}
			}
		}
	}
	r.frozen = true
	return nil
}

// Frozen reports whether Freeze has completed.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Table resolves an entity name.
func (r *Registry) Table(entity string) (*Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tables[entity]; ok {
		return t, nil
	}
	return nil, qerrors.NewSchemaError(entity, "", "entity not registered")
}

// MustTable is Table for entities known statically to exist.
func (r *Registry) MustTable(entity string) *Table {
	t, err := r.Table(entity)
	if err != nil {
		panic(err)
	}
	return t
}

// Entities lists registered entity names, unordered.
func (r *Registry) Entities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	return names
}

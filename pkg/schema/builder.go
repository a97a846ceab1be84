package schema

import (
	"fmt"

	qerrors "github.com/nexuscrm/strata/pkg/errors"
)

// ColumnOption adjusts a column declaration.
type ColumnOption func(*Column)

// PrimaryKey marks the column as the table's primary key.
func PrimaryKey() ColumnOption {
	return func(c *Column) { c.PrimaryKey = true }
}

// AutoIncrement marks the column as database-assigned on insert.
func AutoIncrement() ColumnOption {
	return func(c *Column) { c.AutoIncrement = true }
}

// Nullable marks the column as accepting NULL.
func Nullable() ColumnOption {
	return func(c *Column) { c.Nullable = true }
}

// Unique marks the column as carrying a unique constraint.
func Unique() ColumnOption {
	return func(c *Column) { c.Unique = true }
}

// Builder accumulates the declaration of one entity's table. All methods
// return the receiver; the first error sticks and surfaces from Build.
type Builder[T any] struct {
	table *Table
	err   error
}

// NewTable starts a descriptor for entity type T. The entity name is the
// registry key used by navigation targets and include paths.
func NewTable[T any](entity, table string) *Builder[T] {
	return &Builder[T]{
		table: &Table{
			Entity:    entity,
			Name:      table,
			byField:   make(map[string]*Column),
			byName:    make(map[string]*Column),
			navByName: make(map[string]*Navigation),
			factory:   func() any { return new(T) },
		},
	}
}

func (b *Builder[T]) fail(member, detail string) *Builder[T] {
	if b.err == nil {
		b.err = qerrors.NewSchemaError(b.table.Entity, member, detail)
	}
	return b
}

// Column maps a struct field to a SQL column. The addr closure must
// return a pointer to the field so scanned values can be written back.
func (b *Builder[T]) Column(field, name string, addr func(*T) any, opts ...ColumnOption) *Builder[T] {
	if b.err != nil {
		return b
	}
	if field == "" || name == "" {
		return b.fail(field, "column requires both a field and a column name")
	}
	if _, dup := b.table.byField[field]; dup {
		return b.fail(field, "field mapped twice")
	}
	if _, dup := b.table.byName[name]; dup {
		return b.fail(field, fmt.Sprintf("column name %q mapped twice", name))
	}
	c := &Column{
		Field: field,
		Name:  name,
		addr:  func(e any) any { return addr(e.(*T)) },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.PrimaryKey {
		if b.table.pk != nil {
			return b.fail(field, "table already has a primary key")
		}
		b.table.pk = c
	}
	b.table.columns = append(b.table.columns, c)
	b.table.byField[field] = c
	b.table.byName[name] = c
	return b
}

// ForeignKey declares that a mapped field references another entity.
func (b *Builder[T]) ForeignKey(field, refEntity, refField string) *Builder[T] {
	if b.err != nil {
		return b
	}
	if _, ok := b.table.byField[field]; !ok {
		return b.fail(field, "foreign key declared on an unmapped field")
	}
	b.table.foreignKeys = append(b.table.foreignKeys, ForeignKey{
		Field:     field,
		RefEntity: refEntity,
		RefField:  refField,
	})
	return b
}

// Index declares an index over mapped fields.
func (b *Builder[T]) Index(name string, unique bool, fields ...string) *Builder[T] {
	if b.err != nil {
		return b
	}
	if len(fields) == 0 {
		return b.fail(name, "index requires at least one field")
	}
	cols := make([]string, len(fields))
	for i, f := range fields {
		c, ok := b.table.byField[f]
		if !ok {
			return b.fail(name, fmt.Sprintf("index references unmapped field %q", f))
		}
		cols[i] = c.Name
	}
	b.table.indexes = append(b.table.indexes, Index{Name: name, Unique: unique, Columns: cols})
	return b
}

func (b *Builder[T]) addNav(n *Navigation) *Builder[T] {
	if _, dup := b.table.navByName[n.Name]; dup {
		return b.fail(n.Name, "navigation declared twice")
	}
	if _, clash := b.table.byField[n.Name]; clash {
		return b.fail(n.Name, "navigation name collides with a mapped field")
	}
	b.table.navs = append(b.table.navs, n)
	b.table.navByName[n.Name] = n
	return b
}

// HasOne declares a single-valued navigation. fkField is the field on T
// holding the target's key; attach writes the loaded target onto T.
func (b *Builder[T]) HasOne(name, target, fkField string, attach func(*T, any)) *Builder[T] {
	if b.err != nil {
		return b
	}
	if _, ok := b.table.byField[fkField]; !ok {
		return b.fail(name, fmt.Sprintf("foreign key field %q is not mapped", fkField))
	}
	return b.addNav(&Navigation{
		Name:       name,
		Kind:       NavOne,
		Target:     target,
		ForeignKey: fkField,
		attachOne:  func(parent, child any) { attach(parent.(*T), child) },
	})
}

// HasMany declares an inverse collection navigation. fkField is the field
// on the TARGET entity referencing T's primary key; attach receives the
// full (possibly empty) child set and must install a non-nil collection.
func (b *Builder[T]) HasMany(name, target, fkField string, attach func(*T, []any)) *Builder[T] {
	if b.err != nil {
		return b
	}
	return b.addNav(&Navigation{
		Name:       name,
		Kind:       NavMany,
		Target:     target,
		ForeignKey: fkField,
		attachMany: func(parent any, children []any) { attach(parent.(*T), children) },
	})
}

// ManyToMany declares a collection reached through a junction table.
// localCol and remoteCol are the junction's SQL columns holding T's and
// the target's primary keys.
func (b *Builder[T]) ManyToMany(name, target, junction, localCol, remoteCol string, attach func(*T, []any)) *Builder[T] {
	if b.err != nil {
		return b
	}
	if junction == "" || localCol == "" || remoteCol == "" {
		return b.fail(name, "many-to-many requires a junction table and both key columns")
	}
	return b.addNav(&Navigation{
		Name:           name,
		Kind:           NavManyToMany,
		Target:         target,
		JunctionTable:  junction,
		JunctionLocal:  localCol,
		JunctionRemote: remoteCol,
		attachMany:     func(parent any, children []any) { attach(parent.(*T), children) },
	})
}

// Build finalizes the descriptor. Every table must map exactly one
// primary key column.
func (b *Builder[T]) Build() (*Table, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.table.columns) == 0 {
		return nil, qerrors.NewSchemaError(b.table.Entity, "", "table maps no columns")
	}
	if b.table.pk == nil {
		return nil, qerrors.NewSchemaError(b.table.Entity, "", "table has no primary key column")
	}
	return b.table, nil
}

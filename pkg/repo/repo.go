// Package repo provides typed CRUD repositories over registered entity
// descriptors. A Repository binds one table to a connection and a
// dialect: reads go through the query plan and the shared row scanner,
// writes render parameter-bound statements from column metadata, and
// expression-driven SET lists reuse the translator.
package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nexuscrm/strata/pkg/ast"
	qerrors "github.com/nexuscrm/strata/pkg/errors"
	"github.com/nexuscrm/strata/pkg/materialize"
	"github.com/nexuscrm/strata/pkg/query"
	"github.com/nexuscrm/strata/pkg/sanitize"
	"github.com/nexuscrm/strata/pkg/schema"
	"github.com/nexuscrm/strata/pkg/translate"
)

// insertBatchSize bounds the number of rows per multi-row INSERT so
// batch writes stay under driver placeholder limits.
const insertBatchSize = 100

// Conn is the connection surface a repository needs. *sql.DB, *sql.Tx,
// and the store wrapper all satisfy it.
type Conn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Repository reads and writes T rows through its table descriptor.
type Repository[T any] struct {
	db      Conn
	reg     *schema.Registry
	table   *schema.Table
	dialect sanitize.Dialect
	tr      *translate.Translator
}

// New opens a repository for the named entity. The descriptor must
// build *T instances; a mismatched type parameter fails here rather
// than panicking on first use.
func New[T any](db Conn, reg *schema.Registry, entity string, dialect sanitize.Dialect) (*Repository[T], error) {
	t, err := reg.Table(entity)
	if err != nil {
		return nil, err
	}
	if _, ok := t.New().(*T); !ok {
		var want *T
		return nil, qerrors.NewSchemaError(entity, "", fmt.Sprintf("descriptor builds %T, not %T", t.New(), want))
	}
	return &Repository[T]{
		db:      db,
		reg:     reg,
		table:   t,
		dialect: dialect,
		tr:      translate.New(t, "", dialect),
	}, nil
}

// MustNew is New for entities known statically to be registered.
func MustNew[T any](db Conn, reg *schema.Registry, entity string, dialect sanitize.Dialect) *Repository[T] {
	r, err := New[T](db, reg, entity, dialect)
	if err != nil {
		panic(err)
	}
	return r
}

// Table returns the bound descriptor.
func (r *Repository[T]) Table() *schema.Table {
	return r.table
}

// Query opens a fresh query plan over the repository's table.
func (r *Repository[T]) Query() *query.Plan[T] {
	return query.NewPlan[T](r.db, r.reg, r.table, r.dialect)
}

// Insert writes one row. Empty text primary keys are filled with a
// fresh UUID first; auto-increment keys are left to the database and
// read back into the entity when the driver reports them.
func (r *Repository[T]) Insert(ctx context.Context, ent *T) error {
	r.defaultKey(ent)

	cols := r.insertColumns()
	names := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		names[i] = c.Name
		args[i] = c.Value(ent)
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		r.table.Name, strings.Join(names, ", "), placeholderRow(len(cols)))
	res, err := r.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return err
	}

	pk := r.table.PK()
	if pk.AutoIncrement {
		// Not every driver reports the generated key.
		if id, err := res.LastInsertId(); err == nil && id != 0 {
			setAutoKey(pk, ent, id)
		}
	}
	return nil
}

// InsertMany writes rows in multi-row batches. Text keys are defaulted
// per row; generated integer keys are not read back, batch statements
// report only the last one.
func (r *Repository[T]) InsertMany(ctx context.Context, ents []*T) error {
	if len(ents) == 0 {
		return nil
	}

	cols := r.insertColumns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", r.table.Name, strings.Join(names, ", "))
	row := placeholderRow(len(cols))

	for start := 0; start < len(ents); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(ents) {
			end = len(ents)
		}
		batch := ents[start:end]

		rows := make([]string, len(batch))
		args := make([]any, 0, len(batch)*len(cols))
		for i, ent := range batch {
			r.defaultKey(ent)
			rows[i] = row
			for _, c := range cols {
				args = append(args, c.Value(ent))
			}
		}

		if _, err := r.db.ExecContext(ctx, prefix+strings.Join(rows, ", "), args...); err != nil {
			return fmt.Errorf("insert batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// Update rewrites every non-key column of the row the entity's primary
// key addresses.
func (r *Repository[T]) Update(ctx context.Context, ent *T) error {
	pk := r.table.PK()
	key := pk.Value(ent)
	if zeroKey(key) {
		return qerrors.NewSchemaError(r.table.Entity, pk.Field, "primary key not set")
	}

	cols := r.table.Columns()
	sets := make([]string, 0, len(cols)-1)
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		if c.PrimaryKey {
			continue
		}
		sets = append(sets, c.Name+" = ?")
		args = append(args, c.Value(ent))
	}
	args = append(args, key)

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", r.table.Name, strings.Join(sets, ", "), pk.Name)
	_, err := r.db.ExecContext(ctx, stmt, args...)
	return err
}

// UpdateFields applies assignment expressions to one row. The SET list
// is rendered by the translator, so values may reference other columns
// (Set("Total", ast.Col("Total").Mul(1.1))); the key stays bound.
// Returns the affected row count.
func (r *Repository[T]) UpdateFields(ctx context.Context, id any, assigns ...ast.Assignment) (int64, error) {
	sets, err := r.tr.Update(assigns)
	if err != nil {
		return 0, err
	}

	pk := r.table.PK()
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", r.table.Name, strings.Join(sets, ", "), pk.Name)
	res, err := r.db.ExecContext(ctx, stmt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete removes the row with the given primary key.
func (r *Repository[T]) Delete(ctx context.Context, id any) error {
	pk := r.table.PK()
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", r.table.Name, pk.Name)
	_, err := r.db.ExecContext(ctx, stmt, id)
	return err
}

// DeleteWhere removes every row the predicate matches and returns the
// affected row count.
func (r *Repository[T]) DeleteWhere(ctx context.Context, pred ast.Expr) (int64, error) {
	cond, err := r.tr.Translate(pred.Node())
	if err != nil {
		return 0, err
	}

	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", r.table.Name, cond)
	res, err := r.db.ExecContext(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReadByID loads one row by primary key, or sql.ErrNoRows.
func (r *Repository[T]) ReadByID(ctx context.Context, id any) (*T, error) {
	names := r.columnNames()
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? LIMIT 1",
		strings.Join(names, ", "), r.table.Name, r.table.PK().Name)

	rows, err := r.db.QueryContext(ctx, stmt, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	ent, err := materialize.NewRowScanner(r.table, names).Scan(rows)
	if err != nil {
		return nil, err
	}
	return ent.(*T), nil
}

// Exists reports whether a row with the given primary key is present.
func (r *Repository[T]) Exists(ctx context.Context, id any) (bool, error) {
	var exists bool
	stmt := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE %s = ?)", r.table.Name, r.table.PK().Name)
	if err := r.db.QueryRowContext(ctx, stmt, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Count returns the table's total row count. Filtered counts go
// through Query().Where(...).Count(ctx).
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	var n int64
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s", r.table.Name)
	if err := r.db.QueryRowContext(ctx, stmt).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// insertColumns lists the columns an INSERT writes, skipping keys the
// database generates.
func (r *Repository[T]) insertColumns() []*schema.Column {
	cols := r.table.Columns()
	out := make([]*schema.Column, 0, len(cols))
	for _, c := range cols {
		if c.AutoIncrement {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (r *Repository[T]) columnNames() []string {
	cols := r.table.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// defaultKey fills an empty text primary key with a fresh UUID before
// insert. Integer keys are left to the database.
func (r *Repository[T]) defaultKey(ent *T) {
	pk := r.table.PK()
	if pk.AutoIncrement {
		return
	}
	switch p := pk.Addr(ent).(type) {
	case *string:
		if *p == "" {
			*p = uuid.NewString()
		}
	case *uuid.UUID:
		if *p == uuid.Nil {
			*p = uuid.New()
		}
	}
}

func setAutoKey(pk *schema.Column, ent any, id int64) {
	switch p := pk.Addr(ent).(type) {
	case *int64:
		*p = id
	case *int:
		*p = int(id)
	case *int32:
		*p = int32(id)
	}
}

func zeroKey(v any) bool {
	switch k := v.(type) {
	case nil:
		return true
	case string:
		return k == ""
	case int:
		return k == 0
	case int32:
		return k == 0
	case int64:
		return k == 0
	case uuid.UUID:
		return k == uuid.Nil
	}
	return false
}

func placeholderRow(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = "?"
	}
	return "(" + strings.Join(ps, ", ") + ")"
}

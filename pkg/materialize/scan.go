package materialize

import (
	"database/sql"
	"fmt"

	qerrors "github.com/nexuscrm/strata/pkg/errors"
	"github.com/nexuscrm/strata/pkg/schema"
)

// scanRow reads the current row into a name-keyed value map.
func scanRow(rows *sql.Rows, names []string) (map[string]any, error) {
	holders := make([]any, len(names))
	for i := range holders {
		var v any
		holders[i] = &v
	}
	if err := rows.Scan(holders...); err != nil {
		return nil, err
	}
	vals := make(map[string]any, len(names))
	for i, name := range names {
		vals[name] = *(holders[i].(*any))
	}
	return vals, nil
}

// buildEntity instantiates and populates one entity from the row values.
// prefix selects the column naming: empty reads bare column names, a
// join alias reads {alias}_{column}. A column absent from the result set
// is skipped; a present NULL leaves the field zero. The second return
// reports whether any of the entity's columns held a non-null value;
// callers use it to leave unmatched LEFT JOIN navigations unset.
func buildEntity(t *schema.Table, prefix string, vals map[string]any) (any, bool, error) {
	ent := t.New()
	anyValue := false
	for _, c := range t.Columns() {
		name := c.Name
		if prefix != "" {
			name = prefix + "_" + c.Name
		}
		v, present := vals[name]
		if !present || v == nil {
			continue
		}
		anyValue = true
		if err := assign(c.Addr(ent), v); err != nil {
			return nil, false, qerrors.NewSchemaError(t.Entity, c.Field, err.Error())
		}
	}
	return ent, anyValue, nil
}

// columnValue reads one prefixed column from the row values.
func columnValue(c *schema.Column, prefix string, vals map[string]any) (any, bool) {
	name := c.Name
	if prefix != "" {
		name = prefix + "_" + c.Name
	}
	v, present := vals[name]
	return v, present
}

// normKey turns a scanned or entity-held key value into a stable map
// key. Byte slices normalize to their text form so a key read from the
// database matches the same key read from a populated field.
func normKey(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

// RowScanner maps plain result rows onto entities of one table, used by
// the streaming path and by lookups that select the bare column list.
type RowScanner struct {
	table *schema.Table
	names []string
}

// NewRowScanner captures the result column order. Unknown columns are
// skipped during scanning, not treated as fatal.
func NewRowScanner(table *schema.Table, columns []string) *RowScanner {
	return &RowScanner{table: table, names: columns}
}

// Scan materializes the current row.
func (s *RowScanner) Scan(rows *sql.Rows) (any, error) {
	vals, err := scanRow(rows, s.names)
	if err != nil {
		return nil, err
	}
	ent, _, err := buildEntity(s.table, "", vals)
	return ent, err
}

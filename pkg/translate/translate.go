// Package translate renders predicate and selector ASTs into SQL
// fragments against a single table binding. Every operator and function
// is whitelisted; anything outside the map fails naming the construct,
// it is never approximated.
package translate

import (
	"fmt"
	"strings"

	"github.com/nexuscrm/strata/pkg/ast"
	qerrors "github.com/nexuscrm/strata/pkg/errors"
	"github.com/nexuscrm/strata/pkg/sanitize"
	"github.com/nexuscrm/strata/pkg/schema"
)

// Translator binds a table descriptor, a join alias, and a dialect.
// A zero alias renders bare column names, as used by UPDATE statements.
type Translator struct {
	table   *schema.Table
	alias   string
	dialect sanitize.Dialect
}

// New returns a translator for the given binding.
func New(table *schema.Table, alias string, dialect sanitize.Dialect) *Translator {
	return &Translator{table: table, alias: alias, dialect: dialect}
}

// Dialect returns the bound dialect.
func (tr *Translator) Dialect() sanitize.Dialect {
	return tr.dialect
}

// Translate renders a full expression tree to one SQL fragment.
func (tr *Translator) Translate(n ast.Node) (string, error) {
	w := &walker{tr: tr}
	w.walk(n)
	if w.err != nil {
		return "", w.err
	}
	return w.sb.String(), nil
}

// ColumnOf resolves a direct mapped-field access to its column name. Any
// other node shape fails: ordering and grouping clauses accept plain
// member accesses only.
func (tr *Translator) ColumnOf(n ast.Node) (string, error) {
	for {
		u, ok := n.(*ast.Unary)
		if !ok || u.Op != ast.OpConvert {
			break
		}
		n = u.Operand
	}
	col, ok := n.(*ast.Column)
	if !ok {
		return "", qerrors.NewTranslateError(fmt.Sprintf("%T", n), "not a mapped field access")
	}
	c, err := tr.table.Column(col.Field)
	if err != nil {
		return "", qerrors.NewTranslateError(col.Field, "no mapped column for field")
	}
	return c.Name, nil
}

// Update renders assignment expressions into SET-clause fragments. The
// value side is translated without an alias, matching UPDATE semantics.
func (tr *Translator) Update(assigns []ast.Assignment) ([]string, error) {
	if len(assigns) == 0 {
		return nil, qerrors.NewTranslateError("update", "no assignments")
	}
	bare := &Translator{table: tr.table, dialect: tr.dialect}
	out := make([]string, 0, len(assigns))
	for _, a := range assigns {
		c, err := tr.table.Column(a.Field)
		if err != nil {
			return nil, qerrors.NewTranslateError(a.Field, "no mapped column for field")
		}
		frag, err := bare.Translate(a.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, fmt.Sprintf("%s = %s", c.Name, frag))
	}
	return out, nil
}

// ProjectedColumn is one SELECT-list entry produced by a projection.
type ProjectedColumn struct {
	// Column is the source SQL column, alias-qualified when the
	// translator carries an alias.
	Column string
	// Alias is the output column name in the result set.
	Alias string
	// SourceField and TargetField are the logical field names on the
	// entity and on the projected shape.
	SourceField string
	TargetField string
}

// Projection expands a selector into SELECT-list entries. Identity
// projections expand to every mapped column in declaration order.
func (tr *Translator) Projection(p ast.Projection) ([]ProjectedColumn, error) {
	qualify := func(name string) string {
		if tr.alias == "" {
			return name
		}
		return tr.alias + "." + name
	}

	switch p.Kind {
	case ast.ProjectIdentity:
		cols := tr.table.Columns()
		out := make([]ProjectedColumn, 0, len(cols))
		for _, c := range cols {
			out = append(out, ProjectedColumn{
				Column:      qualify(c.Name),
				Alias:       c.Name,
				SourceField: c.Field,
				TargetField: c.Field,
			})
		}
		return out, nil
	case ast.ProjectSingle, ast.ProjectMulti:
		if len(p.Fields) == 0 {
			return nil, qerrors.NewTranslateError("projection", "no fields selected")
		}
		out := make([]ProjectedColumn, 0, len(p.Fields))
		for _, f := range p.Fields {
			c, err := tr.table.Column(f.Source)
			if err != nil {
				return nil, qerrors.NewTranslateError(f.Source, "no mapped column for field")
			}
			alias := f.Target
			if alias == "" {
				alias = f.Source
			}
			out = append(out, ProjectedColumn{
				Column:      qualify(c.Name),
				Alias:       alias,
				SourceField: f.Source,
				TargetField: alias,
			})
		}
		return out, nil
	default:
		return nil, qerrors.NewTranslateError("projection", "unknown projection kind")
	}
}

// walker does one rendering pass. The first failure sticks in err and
// short-circuits all further writes.
type walker struct {
	tr  *Translator
	sb  strings.Builder
	err error
}

func (w *walker) fail(construct, detail string) {
	if w.err == nil {
		w.err = qerrors.NewTranslateError(construct, detail)
	}
}

func (w *walker) walk(n ast.Node) {
	if w.err != nil {
		return
	}
	if n == nil {
		w.fail("nil", "empty expression node")
		return
	}

	switch v := n.(type) {
	case *ast.Binary:
		w.visitBinary(v)
	case *ast.Unary:
		w.visitUnary(v)
	case *ast.Column:
		w.visitColumn(v)
	case *ast.Const:
		w.sb.WriteString(sanitize.FormatValue(v.Value))
	case *ast.Call:
		w.visitCall(v)
	case *ast.Conditional:
		w.visitConditional(v)
	case *ast.Array:
		w.fail("array literal", "only valid inside In, Contains, or Any")
	default:
		w.fail(fmt.Sprintf("%T", n), "unsupported node type")
	}
}

func (w *walker) visitColumn(n *ast.Column) {
	c, err := w.tr.table.Column(n.Field)
	if err != nil {
		w.fail(n.Field, "no mapped column for field")
		return
	}
	if w.tr.alias != "" {
		w.sb.WriteString(w.tr.alias)
		w.sb.WriteString(".")
	}
	w.sb.WriteString(c.Name)
}

func isNullConst(n ast.Node) bool {
	c, ok := n.(*ast.Const)
	return ok && c.Value == nil
}

var binarySQL = map[ast.BinaryOp]string{
	ast.OpEq:  "=",
	ast.OpNe:  "<>",
	ast.OpLt:  "<",
	ast.OpLe:  "<=",
	ast.OpGt:  ">",
	ast.OpGe:  ">=",
	ast.OpAnd: "AND",
	ast.OpOr:  "OR",
	ast.OpAdd: "+",
	ast.OpSub: "-",
	ast.OpMul: "*",
	ast.OpDiv: "/",
	ast.OpMod: "%",
}

func (w *walker) visitBinary(n *ast.Binary) {
	// Comparisons against the NULL constant use IS [NOT] NULL, never
	// = NULL, which matches no row.
	if n.Op == ast.OpEq || n.Op == ast.OpNe {
		leftNull := isNullConst(n.Left)
		rightNull := isNullConst(n.Right)
		if leftNull || rightNull {
			operand := n.Left
			if leftNull {
				operand = n.Right
			}
			w.sb.WriteString("(")
			w.walk(operand)
			if n.Op == ast.OpEq {
				w.sb.WriteString(" IS NULL")
			} else {
				w.sb.WriteString(" IS NOT NULL")
			}
			w.sb.WriteString(")")
			return
		}
	}

	if n.Op == ast.OpPow {
		w.sb.WriteString("POWER(")
		w.walk(n.Left)
		w.sb.WriteString(", ")
		w.walk(n.Right)
		w.sb.WriteString(")")
		return
	}

	op, ok := binarySQL[n.Op]
	if !ok {
		w.fail(n.Op.String(), "unsupported binary operator")
		return
	}

	w.sb.WriteString("(")
	w.walk(n.Left)
	w.sb.WriteString(" ")
	w.sb.WriteString(op)
	w.sb.WriteString(" ")
	w.walk(n.Right)
	w.sb.WriteString(")")
}

func (w *walker) visitUnary(n *ast.Unary) {
	switch n.Op {
	case ast.OpNot:
		w.sb.WriteString("NOT (")
		w.walk(n.Operand)
		w.sb.WriteString(")")
	case ast.OpNeg:
		w.sb.WriteString("-(")
		w.walk(n.Operand)
		w.sb.WriteString(")")
	case ast.OpConvert:
		// Type coercions are transparent.
		w.walk(n.Operand)
	default:
		w.fail(n.Op.String(), "unsupported unary operator")
	}
}

func (w *walker) visitConditional(n *ast.Conditional) {
	w.sb.WriteString("CASE WHEN ")
	w.walk(n.Cond)
	w.sb.WriteString(" THEN ")
	w.walk(n.Then)
	w.sb.WriteString(" ELSE ")
	w.walk(n.Else)
	w.sb.WriteString(" END")
}

// constString unwraps a constant string argument, required where SQL
// cannot take an expression, such as LIKE patterns built by escaping.
func (w *walker) constString(fn ast.Func, n ast.Node) (string, bool) {
	c, ok := n.(*ast.Const)
	if !ok {
		w.fail(fn.String(), "argument must be a constant string")
		return "", false
	}
	s, ok := c.Value.(string)
	if !ok {
		w.fail(fn.String(), "argument must be a constant string")
		return "", false
	}
	return s, true
}

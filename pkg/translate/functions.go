package translate

import (
	"fmt"
	"strconv"

	"github.com/nexuscrm/strata/pkg/ast"
	"github.com/nexuscrm/strata/pkg/sanitize"
)

func (w *walker) needRecv(n *ast.Call) bool {
	if n.Recv == nil {
		w.fail(n.Fn.String(), "call requires a receiver")
		return false
	}
	return true
}

func (w *walker) needArgs(n *ast.Call, count int) bool {
	if len(n.Args) != count {
		w.fail(n.Fn.String(), fmt.Sprintf("requires %d argument(s), got %d", count, len(n.Args)))
		return false
	}
	return true
}

// constInt unwraps a constant integer argument, required by date
// arithmetic where the amount is embedded in the rendered modifier.
func (w *walker) constInt(fn ast.Func, n ast.Node) (int64, bool) {
	c, ok := n.(*ast.Const)
	if !ok {
		w.fail(fn.String(), "argument must be a constant integer")
		return 0, false
	}
	switch v := c.Value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	default:
		w.fail(fn.String(), "argument must be a constant integer")
		return 0, false
	}
}

// likeEscape is appended after LIKE patterns. SQLite treats backslash as
// a plain character unless an ESCAPE clause names it; MySQL escapes with
// backslash by default.
func (w *walker) likeEscape() string {
	if w.tr.dialect == sanitize.SQLite {
		return ` ESCAPE '\'`
	}
	return ""
}

func (w *walker) writeLike(n *ast.Call, left, right bool) {
	if !w.needRecv(n) || !w.needArgs(n, 1) {
		return
	}
	pattern, ok := w.constString(n.Fn, n.Args[0])
	if !ok {
		return
	}
	w.walk(n.Recv)
	w.sb.WriteString(" LIKE ")
	w.sb.WriteString(sanitize.LikePattern(pattern, left, right))
	w.sb.WriteString(w.likeEscape())
}

// writeFn renders NAME(recv[, args...]).
func (w *walker) writeFn(name string, n *ast.Call) {
	if !w.needRecv(n) {
		return
	}
	w.sb.WriteString(name)
	w.sb.WriteString("(")
	w.walk(n.Recv)
	for _, a := range n.Args {
		w.sb.WriteString(", ")
		w.walk(a)
	}
	w.sb.WriteString(")")
}

func (w *walker) writeIn(probe ast.Node, arr *ast.Array, negate bool) {
	// An empty list can never match; render the literal truth value the
	// way Any does instead of the invalid `IN ()`.
	if len(arr.Items) == 0 {
		if negate {
			w.sb.WriteString("1")
		} else {
			w.sb.WriteString("0")
		}
		return
	}
	w.walk(probe)
	if negate {
		w.sb.WriteString(" NOT IN (")
	} else {
		w.sb.WriteString(" IN (")
	}
	for i, item := range arr.Items {
		if i > 0 {
			w.sb.WriteString(", ")
		}
		w.walk(item)
	}
	w.sb.WriteString(")")
}

func (w *walker) visitCall(n *ast.Call) {
	switch n.Fn {

	// String functions.
	case ast.FnContains:
		// An enumerable receiver turns Contains into membership.
		if arr, ok := n.Recv.(*ast.Array); ok {
			if !w.needArgs(n, 1) {
				return
			}
			w.writeIn(n.Args[0], arr, false)
			return
		}
		w.writeLike(n, true, true)
	case ast.FnStartsWith:
		w.writeLike(n, false, true)
	case ast.FnEndsWith:
		w.writeLike(n, true, false)
	case ast.FnEquals:
		if !w.needRecv(n) || !w.needArgs(n, 1) {
			return
		}
		w.visitBinary(&ast.Binary{Op: ast.OpEq, Left: n.Recv, Right: n.Args[0]})
	case ast.FnToUpper:
		w.writeFn("UPPER", n)
	case ast.FnToLower:
		w.writeFn("LOWER", n)
	case ast.FnTrim:
		w.writeFn("TRIM", n)
	case ast.FnLength:
		if w.tr.dialect == sanitize.MySQL {
			w.writeFn("CHAR_LENGTH", n)
		} else {
			w.writeFn("LENGTH", n)
		}

	// Collection predicates.
	case ast.FnIn, ast.FnNotIn:
		if !w.needRecv(n) || !w.needArgs(n, 1) {
			return
		}
		arr, ok := n.Args[0].(*ast.Array)
		if !ok {
			w.fail(n.Fn.String(), "argument must be a value list")
			return
		}
		w.writeIn(n.Recv, arr, n.Fn == ast.FnNotIn)
	case ast.FnBetween:
		if !w.needRecv(n) || !w.needArgs(n, 2) {
			return
		}
		w.walk(n.Recv)
		w.sb.WriteString(" BETWEEN ")
		w.walk(n.Args[0])
		w.sb.WriteString(" AND ")
		w.walk(n.Args[1])
	case ast.FnAny:
		arr, ok := n.Recv.(*ast.Array)
		if !ok {
			w.fail(n.Fn.String(), "receiver must be a value list")
			return
		}
		if len(arr.Items) > 0 {
			w.sb.WriteString("1")
		} else {
			w.sb.WriteString("0")
		}

	// Null and blank helpers.
	case ast.FnIsNull:
		if !w.needRecv(n) {
			return
		}
		w.sb.WriteString("(")
		w.walk(n.Recv)
		w.sb.WriteString(" IS NULL)")
	case ast.FnIsNotNull:
		if !w.needRecv(n) {
			return
		}
		w.sb.WriteString("(")
		w.walk(n.Recv)
		w.sb.WriteString(" IS NOT NULL)")
	case ast.FnIsNullOrEmpty:
		if !w.needRecv(n) {
			return
		}
		w.sb.WriteString("(")
		w.walk(n.Recv)
		w.sb.WriteString(" IS NULL OR ")
		w.walk(n.Recv)
		w.sb.WriteString(" = '')")
	case ast.FnIsNotNullOrEmpty:
		if !w.needRecv(n) {
			return
		}
		w.sb.WriteString("(")
		w.walk(n.Recv)
		w.sb.WriteString(" IS NOT NULL AND ")
		w.walk(n.Recv)
		w.sb.WriteString(" <> '')")
	case ast.FnIsNullOrWhiteSpace:
		if !w.needRecv(n) {
			return
		}
		w.sb.WriteString("(")
		w.walk(n.Recv)
		w.sb.WriteString(" IS NULL OR TRIM(")
		w.walk(n.Recv)
		w.sb.WriteString(") = '')")
	case ast.FnIsNotNullOrWhiteSpace:
		if !w.needRecv(n) {
			return
		}
		w.sb.WriteString("(")
		w.walk(n.Recv)
		w.sb.WriteString(" IS NOT NULL AND TRIM(")
		w.walk(n.Recv)
		w.sb.WriteString(") <> '')")

	// Date part accessors and arithmetic.
	case ast.FnYear, ast.FnMonth, ast.FnDay, ast.FnHour, ast.FnMinute, ast.FnSecond:
		w.writeDatePart(n)
	case ast.FnAddYears, ast.FnAddMonths, ast.FnAddDays, ast.FnAddHours, ast.FnAddMinutes, ast.FnAddSeconds:
		w.writeDateAdd(n)
	case ast.FnNow:
		if w.tr.dialect == sanitize.MySQL {
			w.sb.WriteString("NOW()")
		} else {
			w.sb.WriteString("datetime('now')")
		}
	case ast.FnUtcNow:
		if w.tr.dialect == sanitize.MySQL {
			w.sb.WriteString("UTC_TIMESTAMP()")
		} else {
			w.sb.WriteString("datetime('now', 'utc')")
		}
	case ast.FnToday:
		if w.tr.dialect == sanitize.MySQL {
			w.sb.WriteString("CURDATE()")
		} else {
			w.sb.WriteString("date('now')")
		}

	// Math functions.
	case ast.FnAbs:
		w.writeFn("ABS", n)
	case ast.FnFloor:
		w.writeFn("FLOOR", n)
	case ast.FnCeiling:
		w.writeFn("CEILING", n)
	case ast.FnSqrt:
		w.writeFn("SQRT", n)
	case ast.FnSin:
		w.writeFn("SIN", n)
	case ast.FnCos:
		w.writeFn("COS", n)
	case ast.FnTan:
		w.writeFn("TAN", n)
	case ast.FnRound:
		if !w.needRecv(n) {
			return
		}
		if len(n.Args) > 1 {
			w.fail(n.Fn.String(), "takes at most one digits argument")
			return
		}
		w.writeFn("ROUND", n)

	default:
		w.fail(n.Fn.String(), "unsupported function")
	}
}

var sqlitePartFormats = map[ast.Func]string{
	ast.FnYear:   "%Y",
	ast.FnMonth:  "%m",
	ast.FnDay:    "%d",
	ast.FnHour:   "%H",
	ast.FnMinute: "%M",
	ast.FnSecond: "%S",
}

var mysqlPartFuncs = map[ast.Func]string{
	ast.FnYear:   "YEAR",
	ast.FnMonth:  "MONTH",
	ast.FnDay:    "DAY",
	ast.FnHour:   "HOUR",
	ast.FnMinute: "MINUTE",
	ast.FnSecond: "SECOND",
}

func (w *walker) writeDatePart(n *ast.Call) {
	if !w.needRecv(n) || !w.needArgs(n, 0) {
		return
	}
	if w.tr.dialect == sanitize.MySQL {
		w.sb.WriteString(mysqlPartFuncs[n.Fn])
		w.sb.WriteString("(")
		w.walk(n.Recv)
		w.sb.WriteString(")")
		return
	}
	// strftime yields text; the cast keeps numeric comparisons numeric.
	w.sb.WriteString("CAST(strftime('")
	w.sb.WriteString(sqlitePartFormats[n.Fn])
	w.sb.WriteString("', ")
	w.walk(n.Recv)
	w.sb.WriteString(") AS INTEGER)")
}

var sqliteAddUnits = map[ast.Func]string{
	ast.FnAddYears:   "years",
	ast.FnAddMonths:  "months",
	ast.FnAddDays:    "days",
	ast.FnAddHours:   "hours",
	ast.FnAddMinutes: "minutes",
	ast.FnAddSeconds: "seconds",
}

var mysqlAddUnits = map[ast.Func]string{
	ast.FnAddYears:   "YEAR",
	ast.FnAddMonths:  "MONTH",
	ast.FnAddDays:    "DAY",
	ast.FnAddHours:   "HOUR",
	ast.FnAddMinutes: "MINUTE",
	ast.FnAddSeconds: "SECOND",
}

func (w *walker) writeDateAdd(n *ast.Call) {
	if !w.needRecv(n) || !w.needArgs(n, 1) {
		return
	}
	amount, ok := w.constInt(n.Fn, n.Args[0])
	if !ok {
		return
	}
	if w.tr.dialect == sanitize.MySQL {
		w.sb.WriteString("DATE_ADD(")
		w.walk(n.Recv)
		w.sb.WriteString(", INTERVAL ")
		w.sb.WriteString(strconv.FormatInt(amount, 10))
		w.sb.WriteString(" ")
		w.sb.WriteString(mysqlAddUnits[n.Fn])
		w.sb.WriteString(")")
		return
	}
	w.sb.WriteString("datetime(")
	w.walk(n.Recv)
	w.sb.WriteString(fmt.Sprintf(", '%+d %s')", amount, sqliteAddUnits[n.Fn]))
}

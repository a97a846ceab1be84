// Package sanitize provides identifier quoting, string escaping, and
// literal formatting for inlined SQL values. Values that arrive from
// outside the process should be parameter-bound instead; this package is
// for constants the query builder itself embeds.
package sanitize

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Dialect selects identifier quoting and the date/time function family.
type Dialect int

const (
	// SQLite is the primary target: double-quoted identifiers, strftime dates.
	SQLite Dialect = iota
	// MySQL covers MySQL and TiDB: backtick identifiers, native date functions.
	MySQL
)

// String returns the dialect name as used in DSNs and driver registration.
func (d Dialect) String() string {
	switch d {
	case MySQL:
		return "mysql"
	default:
		return "sqlite3"
	}
}

// QuoteIdent quotes a table, column, or alias name for the dialect.
// Interior quote characters are doubled.
func (d Dialect) QuoteIdent(name string) string {
	switch d {
	case MySQL:
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// EscapeString escapes a string for embedding in a single-quoted SQL
// literal: single quotes are doubled, backslashes are doubled, and NUL
// bytes are stripped.
func EscapeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", "''")
	return s
}

// EscapeLike escapes a string for use inside a LIKE pattern. In addition
// to the EscapeString rules it escapes the pattern metacharacters
// `%`, `_`, and `[`.
func EscapeLike(s string) string {
	s = EscapeString(s)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	s = strings.ReplaceAll(s, "[", `\[`)
	return s
}

// QuoteString returns the escaped, single-quoted literal for s.
func QuoteString(s string) string {
	return "'" + EscapeString(s) + "'"
}

// LikePattern builds a quoted LIKE pattern around the escaped value.
// left/right control the leading and trailing `%` anchors.
func LikePattern(v string, left, right bool) string {
	var b strings.Builder
	b.WriteByte('\'')
	if left {
		b.WriteByte('%')
	}
	b.WriteString(EscapeLike(v))
	if right {
		b.WriteByte('%')
	}
	b.WriteByte('\'')
	return b.String()
}

// TimeLayout is the fixed fractional-second layout used for inlined
// date/time literals.
const TimeLayout = "2006-01-02 15:04:05.000000"

// FormatValue renders a Go value as an inline SQL literal.
//
// nil renders as NULL; strings are quoted and escaped; booleans render as
// 1/0; date/time values render as fixed fractional-second quoted text.
// Scalar kinds whose textual form cannot carry quote or escape characters
// (integers, floats, UUIDs, durations) pass through without escaping.
// Anything else is rendered with fmt and then quoted and escaped.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return QuoteString(x)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		return "'" + x.Format(TimeLayout) + "'"
	case time.Duration:
		// Durations are stored as integer nanoseconds.
		return strconv.FormatInt(int64(x), 10)
	case uuid.UUID:
		// Canonical UUID text is hex and dashes; quoting without escaping is safe.
		return "'" + x.String() + "'"
	case []byte:
		return "X'" + strings.ToUpper(hex.EncodeToString(x)) + "'"
	case *string:
		if x == nil {
			return "NULL"
		}
		return QuoteString(*x)
	case *int:
		if x == nil {
			return "NULL"
		}
		return strconv.FormatInt(int64(*x), 10)
	case *int64:
		if x == nil {
			return "NULL"
		}
		return strconv.FormatInt(*x, 10)
	case *float64:
		if x == nil {
			return "NULL"
		}
		return strconv.FormatFloat(*x, 'g', -1, 64)
	case *bool:
		if x == nil {
			return "NULL"
		}
		if *x {
			return "1"
		}
		return "0"
	case *time.Time:
		if x == nil {
			return "NULL"
		}
		return "'" + x.Format(TimeLayout) + "'"
	case *uuid.UUID:
		if x == nil {
			return "NULL"
		}
		return "'" + x.String() + "'"
	default:
		return QuoteString(fmt.Sprintf("%v", x))
	}
}

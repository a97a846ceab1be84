// Package sqlguard vets ad-hoc SQL before it reaches the database.
// Only a single read-only SELECT passes; everything else is rejected up
// front. The accepted statement is restored from the parse tree, so
// comments and trailing input never travel further than the parser.
package sqlguard

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/format"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver" // value expression driver
)

// Guard parses and screens raw statements. The underlying parser is not
// safe for concurrent use, so the guard serializes access; one shared
// instance serves a whole process.
type Guard struct {
	mu sync.Mutex
	p  *parser.Parser
}

func New() *Guard {
	return &Guard{p: parser.New()}
}

// Check validates one raw statement and returns its text restored from
// the parse tree.
func (g *Guard) Check(sql string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	stmts, _, err := g.p.Parse(sql, "", "")
	if err != nil {
		return "", fmt.Errorf("parse statement: %w", err)
	}
	if len(stmts) != 1 {
		return "", fmt.Errorf("expected one statement, got %d", len(stmts))
	}

	stmt := stmts[0]
	switch s := stmt.(type) {
	case *ast.SelectStmt:
		if s.SelectIntoOpt != nil {
			return "", fmt.Errorf("SELECT INTO is not allowed")
		}
		if s.LockInfo != nil && s.LockInfo.LockType != ast.SelectLockNone {
			return "", fmt.Errorf("locking reads are not allowed")
		}
	case *ast.SetOprStmt:
		// Compound selects (UNION and friends) are read-only as a whole.
	default:
		return "", fmt.Errorf("only SELECT statements are allowed")
	}

	var sb strings.Builder
	if err := stmt.Restore(format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)); err != nil {
		return "", fmt.Errorf("restore statement: %w", err)
	}
	return sb.String(), nil
}

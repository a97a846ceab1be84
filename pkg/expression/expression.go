// Package expression bridges textual filter strings to the predicate
// AST. Filters use expr syntax, `Total > 100 && Contains(Status, "x")`,
// with identifiers naming logical fields of the root entity. The parse
// tree is converted node by node; anything outside the supported subset
// fails naming the construct, nothing is approximated.
package expression

import (
	"fmt"
	"strings"

	xast "github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"

	"github.com/nexuscrm/strata/pkg/ast"
	qerrors "github.com/nexuscrm/strata/pkg/errors"
)

// Parse converts a filter string into a predicate expression. Field
// names are not resolved here; the translator validates them against
// the bound table when the predicate is rendered.
func Parse(filter string) (ast.Expr, error) {
	tree, err := parser.Parse(filter)
	if err != nil {
		return ast.Expr{}, fmt.Errorf("parse filter: %w", err)
	}

	c := &converter{}
	n := c.convert(tree.Node)
	if c.err != nil {
		return ast.Expr{}, c.err
	}
	return ast.Wrap(n), nil
}

type converter struct {
	err error
}

func (c *converter) fail(construct, detail string) {
	if c.err == nil {
		c.err = qerrors.NewTranslateError(construct, detail)
	}
}

// isNullIdent covers the spellings expr leaves as identifiers; a bare
// `nil` already parses to a NilNode.
func isNullIdent(name string) bool {
	switch strings.ToLower(name) {
	case "null", "nil":
		return true
	}
	return false
}

func (c *converter) convert(n xast.Node) ast.Node {
	if c.err != nil {
		return nil
	}

	switch v := n.(type) {
	case *xast.NilNode:
		return &ast.Const{Value: nil}
	case *xast.IdentifierNode:
		if isNullIdent(v.Value) {
			return &ast.Const{Value: nil}
		}
		return &ast.Column{Field: v.Value}
	case *xast.IntegerNode:
		return &ast.Const{Value: v.Value}
	case *xast.FloatNode:
		return &ast.Const{Value: v.Value}
	case *xast.BoolNode:
		return &ast.Const{Value: v.Value}
	case *xast.StringNode:
		return &ast.Const{Value: v.Value}
	case *xast.ConstantNode:
		return &ast.Const{Value: v.Value}
	case *xast.UnaryNode:
		return c.unary(v)
	case *xast.BinaryNode:
		return c.binary(v)
	case *xast.CallNode:
		return c.callNode(v)
	case *xast.BuiltinNode:
		return c.fnCall(v.Name, v.Arguments)
	case *xast.ConditionalNode:
		cond := c.convert(v.Cond)
		then := c.convert(v.Exp1)
		els := c.convert(v.Exp2)
		if c.err != nil {
			return nil
		}
		return &ast.Conditional{Cond: cond, Then: then, Else: els}
	case *xast.MemberNode:
		c.fail(memberPath(v), "only root entity fields can be referenced")
		return nil
	case *xast.ArrayNode:
		c.fail("array literal", "only valid on the right side of in")
		return nil
	default:
		c.fail(fmt.Sprintf("%T", n), "unsupported construct in filter")
		return nil
	}
}

func (c *converter) unary(n *xast.UnaryNode) ast.Node {
	operand := c.convert(n.Node)
	if c.err != nil {
		return nil
	}
	switch n.Operator {
	case "!", "not":
		return &ast.Unary{Op: ast.OpNot, Operand: operand}
	case "-":
		return &ast.Unary{Op: ast.OpNeg, Operand: operand}
	case "+":
		return operand
	}
	c.fail(n.Operator, "unsupported operator in filter")
	return nil
}

var binaryOps = map[string]ast.BinaryOp{
	"==":  ast.OpEq,
	"!=":  ast.OpNe,
	"<":   ast.OpLt,
	"<=":  ast.OpLe,
	">":   ast.OpGt,
	">=":  ast.OpGe,
	"&&":  ast.OpAnd,
	"and": ast.OpAnd,
	"||":  ast.OpOr,
	"or":  ast.OpOr,
	"+":   ast.OpAdd,
	"-":   ast.OpSub,
	"*":   ast.OpMul,
	"/":   ast.OpDiv,
	"%":   ast.OpMod,
	"**":  ast.OpPow,
	"^":   ast.OpPow,
}

var binaryFuncs = map[string]ast.Func{
	"contains":   ast.FnContains,
	"startsWith": ast.FnStartsWith,
	"endsWith":   ast.FnEndsWith,
}

func (c *converter) binary(n *xast.BinaryNode) ast.Node {
	if fn, ok := binaryFuncs[n.Operator]; ok {
		recv := c.convert(n.Left)
		arg := c.convert(n.Right)
		if c.err != nil {
			return nil
		}
		return &ast.Call{Fn: fn, Recv: recv, Args: []ast.Node{arg}}
	}

	switch n.Operator {
	case "in":
		return c.membership(n, false)
	case "not in":
		return c.membership(n, true)
	}

	op, ok := binaryOps[n.Operator]
	if !ok {
		c.fail(n.Operator, "unsupported operator in filter")
		return nil
	}
	left := c.convert(n.Left)
	right := c.convert(n.Right)
	if c.err != nil {
		return nil
	}
	return &ast.Binary{Op: op, Left: left, Right: right}
}

func (c *converter) membership(n *xast.BinaryNode, negate bool) ast.Node {
	arr, ok := n.Right.(*xast.ArrayNode)
	if !ok {
		c.fail("in", "right side must be a literal list")
		return nil
	}
	items := make([]ast.Node, len(arr.Nodes))
	for i, item := range arr.Nodes {
		items[i] = c.convert(item)
	}
	probe := c.convert(n.Left)
	if c.err != nil {
		return nil
	}
	fn := ast.FnIn
	if negate {
		fn = ast.FnNotIn
	}
	return &ast.Call{Fn: fn, Recv: probe, Args: []ast.Node{&ast.Array{Items: items}}}
}

func (c *converter) callNode(n *xast.CallNode) ast.Node {
	id, ok := n.Callee.(*xast.IdentifierNode)
	if !ok {
		c.fail(fmt.Sprintf("%T", n.Callee), "only plain function calls are supported")
		return nil
	}
	return c.fnCall(id.Value, n.Arguments)
}

// receiver-first call shapes, keyed by lower-cased function name.
var callFuncs = map[string]struct {
	fn    ast.Func
	arity int
}{
	"contains":              {ast.FnContains, 2},
	"startswith":            {ast.FnStartsWith, 2},
	"endswith":              {ast.FnEndsWith, 2},
	"equals":                {ast.FnEquals, 2},
	"toupper":               {ast.FnToUpper, 1},
	"upper":                 {ast.FnToUpper, 1},
	"tolower":               {ast.FnToLower, 1},
	"lower":                 {ast.FnToLower, 1},
	"trim":                  {ast.FnTrim, 1},
	"length":                {ast.FnLength, 1},
	"len":                   {ast.FnLength, 1},
	"isnull":                {ast.FnIsNull, 1},
	"isnotnull":             {ast.FnIsNotNull, 1},
	"isnullorempty":         {ast.FnIsNullOrEmpty, 1},
	"isnotnullorempty":      {ast.FnIsNotNullOrEmpty, 1},
	"isnullorwhitespace":    {ast.FnIsNullOrWhiteSpace, 1},
	"isnotnullorwhitespace": {ast.FnIsNotNullOrWhiteSpace, 1},
	"between":               {ast.FnBetween, 3},
	"year":                  {ast.FnYear, 1},
	"month":                 {ast.FnMonth, 1},
	"day":                   {ast.FnDay, 1},
	"hour":                  {ast.FnHour, 1},
	"minute":                {ast.FnMinute, 1},
	"second":                {ast.FnSecond, 1},
	"addyears":              {ast.FnAddYears, 2},
	"addmonths":             {ast.FnAddMonths, 2},
	"adddays":               {ast.FnAddDays, 2},
	"addhours":              {ast.FnAddHours, 2},
	"addminutes":            {ast.FnAddMinutes, 2},
	"addseconds":            {ast.FnAddSeconds, 2},
	"abs":                   {ast.FnAbs, 1},
	"floor":                 {ast.FnFloor, 1},
	"ceiling":               {ast.FnCeiling, 1},
	"ceil":                  {ast.FnCeiling, 1},
	"sqrt":                  {ast.FnSqrt, 1},
	"sin":                   {ast.FnSin, 1},
	"cos":                   {ast.FnCos, 1},
	"tan":                   {ast.FnTan, 1},
}

var constFuncs = map[string]ast.Func{
	"now":    ast.FnNow,
	"utcnow": ast.FnUtcNow,
	"today":  ast.FnToday,
}

func (c *converter) fnCall(name string, args []xast.Node) ast.Node {
	conv := make([]ast.Node, len(args))
	for i, a := range args {
		conv[i] = c.convert(a)
	}
	if c.err != nil {
		return nil
	}

	key := strings.ToLower(name)

	if fn, ok := constFuncs[key]; ok {
		if len(conv) != 0 {
			c.fail(name, "takes no arguments")
			return nil
		}
		return &ast.Call{Fn: fn}
	}

	if spec, ok := callFuncs[key]; ok {
		if len(conv) != spec.arity {
			c.fail(name, fmt.Sprintf("takes %d argument(s), got %d", spec.arity, len(conv)))
			return nil
		}
		return &ast.Call{Fn: spec.fn, Recv: conv[0], Args: conv[1:]}
	}

	switch key {
	case "round":
		if len(conv) != 1 && len(conv) != 2 {
			c.fail(name, fmt.Sprintf("takes 1 or 2 argument(s), got %d", len(conv)))
			return nil
		}
		return &ast.Call{Fn: ast.FnRound, Recv: conv[0], Args: conv[1:]}
	case "if":
		if len(conv) != 3 {
			c.fail(name, fmt.Sprintf("takes 3 argument(s), got %d", len(conv)))
			return nil
		}
		return &ast.Conditional{Cond: conv[0], Then: conv[1], Else: conv[2]}
	}

	c.fail(name, "unsupported function in filter")
	return nil
}

func memberPath(n *xast.MemberNode) string {
	base := "member access"
	if id, ok := n.Node.(*xast.IdentifierNode); ok {
		base = id.Value
	}
	if prop, ok := n.Property.(*xast.StringNode); ok {
		return base + "." + prop.Value
	}
	return base
}

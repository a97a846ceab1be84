package ast

// Expr is a fluent handle over a Node. Combinators return new Expr values;
// the underlying tree is never mutated, so an Expr may be shared between
// plans safely.
type Expr struct {
	n Node
}

// Node unwraps the expression tree. A zero Expr yields nil.
func (e Expr) Node() Node {
	return e.n
}

// Valid reports whether the expression holds a tree.
func (e Expr) Valid() bool {
	return e.n != nil
}

// Col references a logical field of the root entity by its Go field name.
func Col(field string) Expr {
	return Expr{n: &Column{Field: field}}
}

// Lit wraps a constant value. Lit(nil) is the NULL constant.
func Lit(v any) Expr {
	return Expr{n: &Const{Value: v}}
}

// Null is the NULL constant.
func Null() Expr {
	return Lit(nil)
}

// Wrap adopts an already-built node into the fluent API.
func Wrap(n Node) Expr {
	return Expr{n: n}
}

// lift coerces combinator operands: Expr and Node pass through, anything
// else becomes a constant.
func lift(v any) Node {
	switch t := v.(type) {
	case Expr:
		return t.n
	case Node:
		return t
	default:
		return &Const{Value: v}
	}
}

func liftAll(vs []any) []Node {
	out := make([]Node, len(vs))
	for i, v := range vs {
		out[i] = lift(v)
	}
	return out
}

func (e Expr) binary(op BinaryOp, v any) Expr {
	return Expr{n: &Binary{Op: op, Left: e.n, Right: lift(v)}}
}

func (e Expr) call(fn Func, args ...any) Expr {
	return Expr{n: &Call{Fn: fn, Recv: e.n, Args: liftAll(args)}}
}

// Comparisons.

func (e Expr) Eq(v any) Expr { return e.binary(OpEq, v) }
func (e Expr) Ne(v any) Expr { return e.binary(OpNe, v) }
func (e Expr) Lt(v any) Expr { return e.binary(OpLt, v) }
func (e Expr) Le(v any) Expr { return e.binary(OpLe, v) }
func (e Expr) Gt(v any) Expr { return e.binary(OpGt, v) }
func (e Expr) Ge(v any) Expr { return e.binary(OpGe, v) }

// Logical connectives.

func (e Expr) And(o Expr) Expr { return e.binary(OpAnd, o) }
func (e Expr) Or(o Expr) Expr  { return e.binary(OpOr, o) }

// Not negates a boolean expression.
func Not(e Expr) Expr {
	return Expr{n: &Unary{Op: OpNot, Operand: e.n}}
}

// Arithmetic.

func (e Expr) Add(v any) Expr { return e.binary(OpAdd, v) }
func (e Expr) Sub(v any) Expr { return e.binary(OpSub, v) }
func (e Expr) Mul(v any) Expr { return e.binary(OpMul, v) }
func (e Expr) Div(v any) Expr { return e.binary(OpDiv, v) }
func (e Expr) Mod(v any) Expr { return e.binary(OpMod, v) }
func (e Expr) Pow(v any) Expr { return e.binary(OpPow, v) }

// Neg negates a numeric expression.
func Neg(e Expr) Expr {
	return Expr{n: &Unary{Op: OpNeg, Operand: e.n}}
}

// Convert marks a transparent type coercion. The translator ignores it and
// renders the operand unchanged.
func Convert(e Expr) Expr {
	return Expr{n: &Unary{Op: OpConvert, Operand: e.n}}
}

// String functions.

func (e Expr) Contains(v any) Expr   { return e.call(FnContains, v) }
func (e Expr) StartsWith(v any) Expr { return e.call(FnStartsWith, v) }
func (e Expr) EndsWith(v any) Expr   { return e.call(FnEndsWith, v) }
func (e Expr) EqualsStr(v any) Expr  { return e.call(FnEquals, v) }
func (e Expr) ToUpper() Expr         { return e.call(FnToUpper) }
func (e Expr) ToLower() Expr         { return e.call(FnToLower) }
func (e Expr) Trim() Expr            { return e.call(FnTrim) }
func (e Expr) Length() Expr          { return e.call(FnLength) }

// Null and blank helpers.

func (e Expr) IsNull() Expr                { return e.call(FnIsNull) }
func (e Expr) IsNotNull() Expr             { return e.call(FnIsNotNull) }
func (e Expr) IsNullOrEmpty() Expr         { return e.call(FnIsNullOrEmpty) }
func (e Expr) IsNotNullOrEmpty() Expr      { return e.call(FnIsNotNullOrEmpty) }
func (e Expr) IsNullOrWhiteSpace() Expr    { return e.call(FnIsNullOrWhiteSpace) }
func (e Expr) IsNotNullOrWhiteSpace() Expr { return e.call(FnIsNotNullOrWhiteSpace) }

// Collection membership.

// In renders as column IN (v1, v2, ...).
func (e Expr) In(vs ...any) Expr {
	return Expr{n: &Call{Fn: FnIn, Recv: e.n, Args: []Node{&Array{Items: liftAll(vs)}}}}
}

// NotIn renders as column NOT IN (v1, v2, ...).
func (e Expr) NotIn(vs ...any) Expr {
	return Expr{n: &Call{Fn: FnNotIn, Recv: e.n, Args: []Node{&Array{Items: liftAll(vs)}}}}
}

// Between renders as column BETWEEN lo AND hi (inclusive).
func (e Expr) Between(lo, hi any) Expr {
	return e.call(FnBetween, lo, hi)
}

// Values is a literal list, the receiver form for Contains and Any.
func Values(vs ...any) Expr {
	return Expr{n: &Array{Items: liftAll(vs)}}
}

// Any collapses to a constant truth value: 1 for a non-empty receiver
// list, 0 for an empty one.
func (e Expr) Any() Expr {
	return e.call(FnAny)
}

// Date part accessors.

func (e Expr) Year() Expr   { return e.call(FnYear) }
func (e Expr) Month() Expr  { return e.call(FnMonth) }
func (e Expr) Day() Expr    { return e.call(FnDay) }
func (e Expr) Hour() Expr   { return e.call(FnHour) }
func (e Expr) Minute() Expr { return e.call(FnMinute) }
func (e Expr) Second() Expr { return e.call(FnSecond) }

// Date arithmetic.

func (e Expr) AddYears(n any) Expr   { return e.call(FnAddYears, n) }
func (e Expr) AddMonths(n any) Expr  { return e.call(FnAddMonths, n) }
func (e Expr) AddDays(n any) Expr    { return e.call(FnAddDays, n) }
func (e Expr) AddHours(n any) Expr   { return e.call(FnAddHours, n) }
func (e Expr) AddMinutes(n any) Expr { return e.call(FnAddMinutes, n) }
func (e Expr) AddSeconds(n any) Expr { return e.call(FnAddSeconds, n) }

// Date constants, evaluated by the database at query time.

func Now() Expr    { return Expr{n: &Call{Fn: FnNow}} }
func UtcNow() Expr { return Expr{n: &Call{Fn: FnUtcNow}} }
func Today() Expr  { return Expr{n: &Call{Fn: FnToday}} }

// Math functions.

func (e Expr) Abs() Expr     { return e.call(FnAbs) }
func (e Expr) Floor() Expr   { return e.call(FnFloor) }
func (e Expr) Ceiling() Expr { return e.call(FnCeiling) }
func (e Expr) Sqrt() Expr    { return e.call(FnSqrt) }
func (e Expr) Sin() Expr     { return e.call(FnSin) }
func (e Expr) Cos() Expr     { return e.call(FnCos) }
func (e Expr) Tan() Expr     { return e.call(FnTan) }

// Round rounds to the nearest integer.
func (e Expr) Round() Expr {
	return e.call(FnRound)
}

// RoundTo rounds to the given number of decimal digits.
func (e Expr) RoundTo(digits any) Expr {
	return e.call(FnRound, digits)
}

// If is a ternary conditional: CASE WHEN cond THEN then ELSE els END.
func If(cond, then, els Expr) Expr {
	return Expr{n: &Conditional{Cond: cond.n, Then: then.n, Else: els.n}}
}

// Package ast defines the predicate and selector expression tree handed to
// the SQL translator. Nodes form a closed tagged union; they are built
// through the combinator API in expr.go and never mutated afterwards.
package ast

// Node is the sealed interface implemented by every expression node kind.
type Node interface {
	isNode()
}

// BinaryOp enumerates binary operators.
type BinaryOp int

const (
	OpEq BinaryOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
)

var binaryOpNames = map[BinaryOp]string{
	OpEq:  "==",
	OpNe:  "!=",
	OpLt:  "<",
	OpLe:  "<=",
	OpGt:  ">",
	OpGe:  ">=",
	OpAnd: "&&",
	OpOr:  "||",
	OpAdd: "+",
	OpSub: "-",
	OpMul: "*",
	OpDiv: "/",
	OpMod: "%",
	OpPow: "**",
}

func (op BinaryOp) String() string {
	if s, ok := binaryOpNames[op]; ok {
		return s
	}
	return "op(?)"
}

// UnaryOp enumerates unary operators. OpConvert is a transparent type
// coercion: the translator passes straight through to the operand.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNeg
	OpConvert
)

func (op UnaryOp) String() string {
	switch op {
	case OpNot:
		return "!"
	case OpNeg:
		return "-"
	case OpConvert:
		return "convert"
	}
	return "unary(?)"
}

// Binary is a binary operation over two child expressions.
type Binary struct {
	Op    BinaryOp
	Left  Node
	Right Node
}

// Unary is a unary operation over one child expression.
type Unary struct {
	Op      UnaryOp
	Operand Node
}

// Column is a member access on the root entity: a mapped logical field name.
type Column struct {
	Field string
}

// Const is a literal constant. Value nil represents the NULL constant.
type Const struct {
	Value any
}

// Call is a whitelisted function or method call. Recv is the receiver
// expression (nil for niladic functions such as Now); Args are positional.
type Call struct {
	Fn   Func
	Recv Node
	Args []Node
}

// Conditional is a ternary: CASE WHEN Cond THEN Then ELSE Else END.
type Conditional struct {
	Cond Node
	Then Node
	Else Node
}

// Array is an ordered literal list, used by In/NotIn/Contains/Any.
type Array struct {
	Items []Node
}

func (*Binary) isNode()      {}
func (*Unary) isNode()       {}
func (*Column) isNode()      {}
func (*Const) isNode()       {}
func (*Call) isNode()        {}
func (*Conditional) isNode() {}
func (*Array) isNode()       {}

// Func enumerates the whitelisted callable surface. The translator maps
// each to a fixed SQL form; anything outside this set fails translation.
type Func int

const (
	// string functions
	FnContains Func = iota
	FnStartsWith
	FnEndsWith
	FnEquals
	FnToUpper
	FnToLower
	FnTrim
	FnLength

	// collection predicates
	FnIn
	FnNotIn
	FnBetween
	FnAny

	// null / blank helpers
	FnIsNull
	FnIsNotNull
	FnIsNullOrEmpty
	FnIsNotNullOrEmpty
	FnIsNullOrWhiteSpace
	FnIsNotNullOrWhiteSpace

	// date part accessors
	FnYear
	FnMonth
	FnDay
	FnHour
	FnMinute
	FnSecond

	// date arithmetic
	FnAddYears
	FnAddMonths
	FnAddDays
	FnAddHours
	FnAddMinutes
	FnAddSeconds

	// date constants
	FnNow
	FnUtcNow
	FnToday

	// math functions
	FnAbs
	FnFloor
	FnCeiling
	FnRound
	FnSqrt
	FnSin
	FnCos
	FnTan
)

var funcNames = map[Func]string{
	FnContains:              "Contains",
	FnStartsWith:            "StartsWith",
	FnEndsWith:              "EndsWith",
	FnEquals:                "Equals",
	FnToUpper:               "ToUpper",
	FnToLower:               "ToLower",
	FnTrim:                  "Trim",
	FnLength:                "Length",
	FnIn:                    "In",
	FnNotIn:                 "NotIn",
	FnBetween:               "Between",
	FnAny:                   "Any",
	FnIsNull:                "IsNull",
	FnIsNotNull:             "IsNotNull",
	FnIsNullOrEmpty:         "IsNullOrEmpty",
	FnIsNotNullOrEmpty:      "IsNotNullOrEmpty",
	FnIsNullOrWhiteSpace:    "IsNullOrWhiteSpace",
	FnIsNotNullOrWhiteSpace: "IsNotNullOrWhiteSpace",
	FnYear:                  "Year",
	FnMonth:                 "Month",
	FnDay:                   "Day",
	FnHour:                  "Hour",
	FnMinute:                "Minute",
	FnSecond:                "Second",
	FnAddYears:              "AddYears",
	FnAddMonths:             "AddMonths",
	FnAddDays:               "AddDays",
	FnAddHours:              "AddHours",
	FnAddMinutes:            "AddMinutes",
	FnAddSeconds:            "AddSeconds",
	FnNow:                   "Now",
	FnUtcNow:                "UtcNow",
	FnToday:                 "Today",
	FnAbs:                   "Abs",
	FnFloor:                 "Floor",
	FnCeiling:               "Ceiling",
	FnRound:                 "Round",
	FnSqrt:                  "Sqrt",
	FnSin:                   "Sin",
	FnCos:                   "Cos",
	FnTan:                   "Tan",
}

func (f Func) String() string {
	if s, ok := funcNames[f]; ok {
		return s
	}
	return "func(?)"
}

/*
Package macro implements the Aperture Macro Evaluator (C4): parsing an
%AM block's body into an arithmetic-expression AST plus an ordered
sequence of variable assignments and primitive statements, and
evaluating that sequence against a concrete set of modifier values
(the values following a macro aperture's name in %ADD) into resolved
primitive records a renderer or unit-transform pass can consume.

The expression grammar (literal | $n | unary - | x op y, x,y in
{+,-,x,/}) and its precedence (x,/ bind tighter than +,-) follow the
recursive-descent shape of calculator.go, generalized to resolve $n
parameter references against an environment instead of only constant
folding.
*/
package macro

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// OpCode tags a binary or unary arithmetic operation.
type OpCode int

const (
	opAdd OpCode = iota + 1
	opSub
	opMul
	opDiv
	opNeg
)

// Expr is the arithmetic AST node interface; Eval resolves $n
// references against env (env[n] is the value bound to $n) and
// returns the node's value.
type Expr interface {
	Eval(env map[int]float64) float64
}

// Literal is a constant numeric value.
type Literal float64

func (l Literal) Eval(map[int]float64) float64 { return float64(l) }

// ParamRef resolves to env[Index], the value currently bound to $Index.
type ParamRef int

func (p ParamRef) Eval(env map[int]float64) float64 { return env[int(p)] }

// Unary applies Neg (the only unary op this grammar has) to X.
type Unary struct {
	Op OpCode
	X  Expr
}

func (u Unary) Eval(env map[int]float64) float64 {
	v := u.X.Eval(env)
	if u.Op == opNeg {
		return -v
	}
	return v
}

// Binary applies Op to X and Y.
type Binary struct {
	Op   OpCode
	X, Y Expr
}

func (b Binary) Eval(env map[int]float64) float64 {
	x, y := b.X.Eval(env), b.Y.Eval(env)
	switch b.Op {
	case opAdd:
		return x + y
	case opSub:
		return x - y
	case opMul:
		return x * y
	case opDiv:
		return x / y
	default:
		panic("macro: bad opcode " + strconv.Itoa(int(b.Op)))
	}
}

// ParseExpr parses one macro modifier expression, e.g. "1", "$1",
// "$1x0.8", "$2/2+$3", "-$4".
func ParseExpr(s string) (Expr, error) {
	p := &exprParser{s: strings.TrimSpace(s)}
	e, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, errors.New("macro: unexpected trailing input in expression " + strconv.Quote(s))
	}
	return e, nil
}

type exprParser struct {
	s   string
	pos int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.s) && p.s[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *exprParser) parseAdditive() (Expr, error) {
	x, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		c := p.peek()
		if c != '+' && c != '-' {
			return x, nil
		}
		p.pos++
		y, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		op := opAdd
		if c == '-' {
			op = opSub
		}
		x = Binary{Op: op, X: x, Y: y}
	}
}

func (p *exprParser) parseMultiplicative() (Expr, error) {
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		c := p.peek()
		if c != 'x' && c != 'X' && c != '/' {
			return x, nil
		}
		p.pos++
		y, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		op := opMul
		if c == '/' {
			op = opDiv
		}
		x = Binary{Op: op, X: x, Y: y}
	}
}

func (p *exprParser) parseUnary() (Expr, error) {
	c := p.peek()
	if c == '-' {
		p.pos++
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Unary{Op: opNeg, X: x}, nil
	}
	if c == '+' {
		p.pos++
		return p.parseUnary()
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (Expr, error) {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return nil, errors.New("macro: unexpected end of expression")
	}
	if p.s[p.pos] == '$' {
		p.pos++
		start := p.pos
		for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
			p.pos++
		}
		if start == p.pos {
			return nil, errors.New("macro: expected digits after $")
		}
		n, err := strconv.Atoi(p.s[start:p.pos])
		if err != nil {
			return nil, err
		}
		return ParamRef(n), nil
	}
	start := p.pos
	for p.pos < len(p.s) && (p.s[p.pos] == '.' || (p.s[p.pos] >= '0' && p.s[p.pos] <= '9')) {
		p.pos++
	}
	if start == p.pos {
		return nil, errors.New("macro: expected a number at " + strconv.Itoa(start))
	}
	v, err := strconv.ParseFloat(p.s[start:p.pos], 64)
	if err != nil {
		return nil, err
	}
	return Literal(v), nil
}

// PrimitiveCode tags the shape of a macro primitive statement, per the
// Gerber Format Specification's numbered aperture macro primitives.
type PrimitiveCode int

const (
	PrimitiveComment      PrimitiveCode = 0
	PrimitiveCircle       PrimitiveCode = 1
	PrimitiveVectorLine   PrimitiveCode = 20
	PrimitiveCenterLine   PrimitiveCode = 21
	PrimitiveOutline      PrimitiveCode = 4
	PrimitivePolygon      PrimitiveCode = 5
	PrimitiveMoire        PrimitiveCode = 6
	PrimitiveThermal      PrimitiveCode = 7
)

// UnknownPrimitiveError is returned by Parse when a primitive
// statement's leading code isn't one of the Gerber Format
// Specification's numbered aperture macro primitives. The caller
// decides how to treat it; per the specification it is fatal only for
// the aperture referencing this macro, not for the file as a whole.
type UnknownPrimitiveError struct {
	Code int
}

func (e *UnknownPrimitiveError) Error() string {
	return "macro: unknown primitive code " + strconv.Itoa(e.Code)
}

func isKnownPrimitiveCode(code PrimitiveCode) bool {
	switch code {
	case PrimitiveComment, PrimitiveCircle, PrimitiveVectorLine, PrimitiveCenterLine,
		PrimitiveOutline, PrimitivePolygon, PrimitiveMoire, PrimitiveThermal:
		return true
	default:
		return false
	}
}

func (pc PrimitiveCode) String() string {
	switch pc {
	case PrimitiveComment:
		return "comment"
	case PrimitiveCircle:
		return "circle"
	case PrimitiveVectorLine:
		return "vector line"
	case PrimitiveCenterLine:
		return "center line"
	case PrimitiveOutline:
		return "outline"
	case PrimitivePolygon:
		return "polygon"
	case PrimitiveMoire:
		return "moire"
	case PrimitiveThermal:
		return "thermal"
	default:
		return "unknown macro primitive"
	}
}

// bodyItem is one statement of a macro's body, in source order: either
// a $n=expr variable assignment or a primitive statement. Keeping both
// kinds in a single ordered slice (rather than splitting variables and
// primitives into separate slices indexed by position, as the teacher
// does with AMVariable.PrimitiveIndex) makes Evaluate a single
// straight-line walk.
type bodyItem struct {
	isVariable bool

	// variable assignment
	varIndex int
	varExpr  Expr

	// primitive statement
	code      PrimitiveCode
	modifiers []Expr
}

// Definition is a parsed %AM block, ready to be evaluated against a
// concrete modifier list.
type Definition struct {
	Name     string
	Comments []string
	body     []bodyItem
}

// Parse parses an %AM statement whose text starts with "AM<name>": for
// "%AMDONUT*1,1,$1,0,0*1,0,$2,0,0*%" src may be
// "AMDONUT*1,1,$1,0,0*1,0,$2,0,0*" or the same with its leading and
// trailing "%", which are tolerated and stripped. Without the "AM"
// prefix Parse returns an error.
func Parse(src string) (*Definition, error) {
	src = strings.TrimPrefix(src, "%")
	src = strings.TrimSuffix(src, "%")
	parts := strings.Split(src, "*")
	if len(parts) == 0 || !strings.HasPrefix(parts[0], "AM") {
		return nil, errors.New("macro: definition does not start with AM")
	}

	def := &Definition{Name: strings.TrimSpace(parts[0][2:])}

	for _, stmt := range parts[1:] {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if strings.HasPrefix(stmt, "0") && (len(stmt) == 1 || stmt[1] == ' ') {
			comment := strings.TrimSpace(strings.TrimPrefix(stmt[1:], " "))
			def.Comments = append(def.Comments, comment)
			continue
		}
		if strings.HasPrefix(stmt, "$") {
			eq := strings.Index(stmt, "=")
			if eq == -1 {
				return nil, errors.New("macro: malformed variable assignment " + strconv.Quote(stmt))
			}
			idx, err := strconv.Atoi(stmt[1:eq])
			if err != nil {
				return nil, err
			}
			expr, err := ParseExpr(stmt[eq+1:])
			if err != nil {
				return nil, err
			}
			def.body = append(def.body, bodyItem{isVariable: true, varIndex: idx, varExpr: expr})
			continue
		}

		comma := strings.Index(stmt, ",")
		if comma == -1 {
			return nil, errors.New("macro: malformed primitive statement " + strconv.Quote(stmt))
		}
		codeVal, err := strconv.Atoi(stmt[:comma])
		if err != nil {
			return nil, err
		}
		if !isKnownPrimitiveCode(PrimitiveCode(codeVal)) {
			return nil, &UnknownPrimitiveError{Code: codeVal}
		}
		fields := strings.Split(stmt[comma+1:], ",")
		modifiers := make([]Expr, len(fields))
		for i, f := range fields {
			expr, err := ParseExpr(f)
			if err != nil {
				return nil, err
			}
			modifiers[i] = expr
		}
		def.body = append(def.body, bodyItem{code: PrimitiveCode(codeVal), modifiers: modifiers})
	}
	return def, nil
}

// Resolved is one evaluated primitive statement: its code, the numeric
// value of each of its modifier fields in source order, and
// RotationRad, the rotation modifier converted to radians for a
// renderer to consume directly (0 for a circle without its optional
// fifth field).
type Resolved struct {
	Code        PrimitiveCode
	Values      []float64
	RotationRad float64
}

// Evaluate runs the macro body against params (params[0] binds to $1,
// params[1] to $2, ...) and returns the resolved primitive statements
// in source order, skipping comments.
func (d *Definition) Evaluate(params []float64) ([]Resolved, error) {
	env := make(map[int]float64, len(params))
	for i, v := range params {
		env[i+1] = v
	}

	var out []Resolved
	for _, item := range d.body {
		if item.isVariable {
			env[item.varIndex] = item.varExpr.Eval(env)
			continue
		}
		if item.code == PrimitiveComment {
			continue
		}
		values := make([]float64, len(item.modifiers))
		for i, m := range item.modifiers {
			values[i] = m.Eval(env)
		}
		out = append(out, Resolved{Code: item.code, Values: values, RotationRad: rotationOf(item.code, values)})
	}
	return out, nil
}

// rotationOf extracts the rotation modifier the Gerber Format
// Specification places last in every primitive's field list, except
// circle, where it is an optional fifth field (a 4-field circle
// predates the rotation modifier and carries no rotation at all).
func rotationOf(code PrimitiveCode, values []float64) float64 {
	switch code {
	case PrimitiveCircle:
		if len(values) < 5 {
			return 0
		}
		return mgl64.DegToRad(values[4])
	case PrimitiveVectorLine, PrimitiveCenterLine, PrimitiveOutline, PrimitivePolygon, PrimitiveMoire, PrimitiveThermal:
		if len(values) == 0 {
			return 0
		}
		return mgl64.DegToRad(values[len(values)-1])
	default:
		return 0
	}
}

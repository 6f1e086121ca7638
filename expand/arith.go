package expand

import (
	"fmt"
	"strconv"

	"github.com/tv-labs/bash-sub005/session"
	"github.com/tv-labs/bash-sub005/syntax"
)

// EvalArithm evaluates an arithmetic expression tree over signed 64-bit
// integers, the numeric domain bash itself uses for `$(( ))`/`(( ))`/the
// C-style `for` loop. Bare identifiers are read (and, for the assignment
// operators, written back) through the session as integer-valued
// variables.
func (c *Config) EvalArithm(x syntax.ArithmExpr) (int64, error) {
	switch x := x.(type) {
	case nil:
		return 0, nil
	case *syntax.WordArithm:
		return c.evalOperand(x)
	case *syntax.ParenArithm:
		return c.EvalArithm(x.X)
	case *syntax.UnaryArithm:
		return c.evalUnary(x)
	case *syntax.BinaryArithm:
		return c.evalBinary(x)
	case *syntax.CondArithm:
		cond, err := c.EvalArithm(x.Cond)
		if err != nil {
			return 0, err
		}
		if cond != 0 {
			return c.EvalArithm(x.Then)
		}
		return c.EvalArithm(x.Else)
	default:
		return 0, fmt.Errorf("arithmetic: unsupported node %T", x)
	}
}

// EvalArithmString parses and evaluates raw arithmetic source text, used
// for array subscripts and the `let` builtin's operands.
func (c *Config) EvalArithmString(s string) (int64, error) {
	x, err := syntax.ParseArithm(s)
	if err != nil {
		return 0, err
	}
	return c.EvalArithm(x)
}

func (c *Config) evalOperand(w *syntax.WordArithm) (int64, error) {
	lit, ok := soleLit(w.W)
	if !ok {
		// Word contains substitutions (e.g. `$x + 1` spelled with a $):
		// expand it first, then reinterpret the result as a number.
		s, err := c.Literal(w.W)
		if err != nil {
			return 0, err
		}
		return parseArithmOperand(c, s)
	}
	return parseArithmOperand(c, lit)
}

func soleLit(w syntax.Word) (string, bool) {
	if len(w) != 1 {
		return "", false
	}
	l, ok := w[0].(*syntax.Lit)
	if !ok {
		return "", false
	}
	return l.Value, true
}

// parseArithmOperand resolves a single arithmetic token: a numeric
// literal in any of bash's numeric bases, or a variable name (read
// through the session, recursively re-evaluated if its value is itself
// numeric text).
func parseArithmOperand(c *Config, s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if n, ok := parseIntLiteral(s); ok {
		return n, nil
	}
	v, ok := c.Session.GetVar(s)
	if !ok || v.Kind == session.Unset {
		return 0, nil
	}
	if v.Str == "" {
		return 0, nil
	}
	if n, ok := parseIntLiteral(v.Str); ok {
		return n, nil
	}
	return 0, nil
}

func parseIntLiteral(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	base := 10
	digits := s
	neg := false
	if len(digits) > 0 && (digits[0] == '-' || digits[0] == '+') {
		neg = digits[0] == '-'
		digits = digits[1:]
	}
	switch {
	case len(digits) > 2 && digits[0] == '0' && (digits[1] == 'x' || digits[1] == 'X'):
		base = 16
		digits = digits[2:]
	case len(digits) > 1 && digits[0] == '0' && isOctalBody(digits[1:]):
		base = 8
		digits = digits[1:]
	default:
		if i := indexByte(digits, '#'); i > 0 {
			b, err := strconv.Atoi(digits[:i])
			if err == nil && b >= 2 && b <= 64 {
				base = b
				digits = digits[i+1:]
			}
		}
	}
	n, err := strconv.ParseInt(digits, base, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		n = -n
	}
	return n, true
}

func isOctalBody(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '7' {
			return false
		}
	}
	return len(s) > 0
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func (c *Config) evalUnary(u *syntax.UnaryArithm) (int64, error) {
	switch u.Op {
	case "++", "--":
		cur, err := c.EvalArithm(u.X)
		if err != nil {
			return 0, err
		}
		delta := int64(1)
		if u.Op == "--" {
			delta = -1
		}
		next := cur + delta
		if err := c.assignArithm(u.X, next); err != nil {
			return 0, err
		}
		if u.Post {
			return cur, nil
		}
		return next, nil
	}
	v, err := c.EvalArithm(u.X)
	if err != nil {
		return 0, err
	}
	switch u.Op {
	case "-":
		return -v, nil
	case "+":
		return v, nil
	case "!":
		if v == 0 {
			return 1, nil
		}
		return 0, nil
	case "~":
		return ^v, nil
	}
	return 0, fmt.Errorf("arithmetic: unknown unary operator %q", u.Op)
}

func (c *Config) evalBinary(b *syntax.BinaryArithm) (int64, error) {
	if b.Op == "=" || isCompoundAssign(b.Op) {
		rhs, err := c.EvalArithm(b.Y)
		if err != nil {
			return 0, err
		}
		if b.Op != "=" {
			cur, err := c.EvalArithm(b.X)
			if err != nil {
				return 0, err
			}
			rhs, err = applyCompoundOp(b.Op, cur, rhs)
			if err != nil {
				return 0, err
			}
		}
		if err := c.assignArithm(b.X, rhs); err != nil {
			return 0, err
		}
		return rhs, nil
	}
	if b.Op == "," {
		if _, err := c.EvalArithm(b.X); err != nil {
			return 0, err
		}
		return c.EvalArithm(b.Y)
	}
	if b.Op == "&&" {
		x, err := c.EvalArithm(b.X)
		if err != nil {
			return 0, err
		}
		if x == 0 {
			return 0, nil
		}
		y, err := c.EvalArithm(b.Y)
		if err != nil {
			return 0, err
		}
		return boolInt(y != 0), nil
	}
	if b.Op == "||" {
		x, err := c.EvalArithm(b.X)
		if err != nil {
			return 0, err
		}
		if x != 0 {
			return 1, nil
		}
		y, err := c.EvalArithm(b.Y)
		if err != nil {
			return 0, err
		}
		return boolInt(y != 0), nil
	}

	x, err := c.EvalArithm(b.X)
	if err != nil {
		return 0, err
	}
	y, err := c.EvalArithm(b.Y)
	if err != nil {
		return 0, err
	}
	switch b.Op {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "/":
		if y == 0 {
			return 0, fmt.Errorf("division by 0")
		}
		return x / y, nil
	case "%":
		if y == 0 {
			return 0, fmt.Errorf("division by 0")
		}
		return x % y, nil
	case "**":
		return intPow(x, y), nil
	case "<<":
		return x << uint(y), nil
	case ">>":
		return x >> uint(y), nil
	case "&":
		return x & y, nil
	case "|":
		return x | y, nil
	case "^":
		return x ^ y, nil
	case "==":
		return boolInt(x == y), nil
	case "!=":
		return boolInt(x != y), nil
	case "<":
		return boolInt(x < y), nil
	case "<=":
		return boolInt(x <= y), nil
	case ">":
		return boolInt(x > y), nil
	case ">=":
		return boolInt(x >= y), nil
	}
	return 0, fmt.Errorf("arithmetic: unknown binary operator %q", b.Op)
}

func isCompoundAssign(op string) bool {
	switch op {
	case "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "<<=", ">>=":
		return true
	}
	return false
}

func applyCompoundOp(op string, cur, rhs int64) (int64, error) {
	switch op {
	case "+=":
		return cur + rhs, nil
	case "-=":
		return cur - rhs, nil
	case "*=":
		return cur * rhs, nil
	case "/=":
		if rhs == 0 {
			return 0, fmt.Errorf("division by 0")
		}
		return cur / rhs, nil
	case "%=":
		if rhs == 0 {
			return 0, fmt.Errorf("division by 0")
		}
		return cur % rhs, nil
	case "&=":
		return cur & rhs, nil
	case "|=":
		return cur | rhs, nil
	case "^=":
		return cur ^ rhs, nil
	case "<<=":
		return cur << uint(rhs), nil
	case ">>=":
		return cur >> uint(rhs), nil
	}
	return rhs, nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func intPow(base, exp int64) int64 {
	if exp < 0 {
		return 0
	}
	var result int64 = 1
	for i := int64(0); i < exp; i++ {
		result *= base
	}
	return result
}

// assignArithm writes a value back into the session for the `=` and
// compound assignment arithmetic operators, and for `++`/`--`. Only a
// bare variable-name operand is assignable.
func (c *Config) assignArithm(x syntax.ArithmExpr, val int64) error {
	w, ok := x.(*syntax.WordArithm)
	if !ok {
		return fmt.Errorf("arithmetic: assignment to non-variable")
	}
	name, ok := soleLit(w.W)
	if !ok {
		return fmt.Errorf("arithmetic: assignment to non-variable")
	}
	return c.Session.SetVar(name, session.Variable{
		Kind:    session.Scalar,
		Str:     strconv.FormatInt(val, 10),
		Integer: true,
	})
}

package interp

import (
	"fmt"
	"os"
	"regexp"

	"github.com/tv-labs/bash-sub005/syntax"
)

// runTestCommand evaluates the POSIX `[ args ]` form: a plain word list
// reinterpreted as a small unary/binary test grammar, following the
// same file-status and string-comparison operators as `[[ ]]` but with
// word-splitting/globbing already applied by Fields.
func (r *Runner) runTestCommand(t *syntax.TestCommand) Outcome {
	args, err := r.Expand.Fields(t.Args)
	if err != nil {
		fmt.Fprintln(r.Stderr, "bash:", err)
		return ok(2)
	}
	code := evalTestArgs(args)
	return ok(code)
}

func evalTestArgs(args []string) uint8 {
	switch len(args) {
	case 0:
		return 1
	case 1:
		if args[0] == "" {
			return 1
		}
		return 0
	case 2:
		if args[0] == "!" {
			return 1 - evalTestArgs(args[1:2])
		}
		if testUnary(args[0], args[1]) {
			return 0
		}
		return 1
	case 3:
		if testBinaryStr(args[1], args[0], args[2]) {
			return 0
		}
		return 1
	default:
		return 2
	}
}

func testUnary(op, arg string) bool {
	switch op {
	case "-z":
		return arg == ""
	case "-n":
		return arg != ""
	case "-e", "-f":
		fi, err := os.Stat(arg)
		if op == "-f" {
			return err == nil && fi.Mode().IsRegular()
		}
		return err == nil
	case "-d":
		fi, err := os.Stat(arg)
		return err == nil && fi.IsDir()
	case "-r", "-w", "-x":
		_, err := os.Stat(arg)
		return err == nil
	case "-s":
		fi, err := os.Stat(arg)
		return err == nil && fi.Size() > 0
	case "-L", "-h":
		fi, err := os.Lstat(arg)
		return err == nil && fi.Mode()&os.ModeSymlink != 0
	case "-v":
		return arg != ""
	}
	return false
}

func testBinaryStr(op, a, b string) bool {
	switch op {
	case "=", "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case ">":
		return a > b
	case "-eq", "-ne", "-lt", "-le", "-gt", "-ge":
		return testNumericOp(op, a, b)
	}
	return false
}

func testNumericOp(op, a, b string) bool {
	x := atoiLoose(a)
	y := atoiLoose(b)
	switch op {
	case "-eq":
		return x == y
	case "-ne":
		return x != y
	case "-lt":
		return x < y
	case "-le":
		return x <= y
	case "-gt":
		return x > y
	case "-ge":
		return x >= y
	}
	return false
}

func atoiLoose(s string) int64 {
	var n int64
	neg := false
	i := 0
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		neg = s[i] == '-'
		i++
	}
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			break
		}
		n = n*10 + int64(s[i]-'0')
	}
	if neg {
		n = -n
	}
	return n
}

// evalTestExpr evaluates a `[[ ]]` expression tree, returning its exit
// code and, when the top-level operator was `=~`, the regex capture
// groups for BASH_REMATCH.
func (r *Runner) evalTestExpr(x syntax.TestExpr) (uint8, []string) {
	switch x := x.(type) {
	case *syntax.UnaryTestExpr:
		if x.Op == "!" {
			code, _ := r.evalTestExpr(x.X)
			if code == 0 {
				return 1, nil
			}
			return 0, nil
		}
		w, ok := x.X.(*syntax.WordTestExpr)
		if !ok {
			return 2, nil
		}
		arg, err := r.Expand.Literal(w.W)
		if err != nil {
			return 2, nil
		}
		if testUnary(x.Op, arg) {
			return 0, nil
		}
		return 1, nil
	case *syntax.BinaryTestExpr:
		return r.evalBinaryTest(x)
	case *syntax.ParenTestExpr:
		return r.evalTestExpr(x.X)
	case *syntax.WordTestExpr:
		s, err := r.Expand.Literal(x.W)
		if err != nil || s == "" {
			return 1, nil
		}
		return 0, nil
	}
	return 2, nil
}

func (r *Runner) evalBinaryTest(b *syntax.BinaryTestExpr) (uint8, []string) {
	switch b.Op {
	case "&&":
		x, _ := r.evalTestExpr(b.X)
		if x != 0 {
			return x, nil
		}
		return r.evalTestExpr(b.Y)
	case "||":
		x, _ := r.evalTestExpr(b.X)
		if x == 0 {
			return 0, nil
		}
		return r.evalTestExpr(b.Y)
	}
	xw, xok := b.X.(*syntax.WordTestExpr)
	yw, yok := b.Y.(*syntax.WordTestExpr)
	if !xok || !yok {
		return 2, nil
	}
	a, err1 := r.Expand.Literal(xw.W)
	var bs string
	var err2 error
	if b.Op == "=~" {
		bs, err2 = r.Expand.Literal(yw.W)
	} else {
		bs, err2 = r.Expand.Pattern(yw.W)
	}
	if err1 != nil || err2 != nil {
		return 2, nil
	}
	switch b.Op {
	case "=~":
		re, err := regexp.Compile(bs)
		if err != nil {
			return 2, nil
		}
		m := re.FindStringSubmatch(a)
		if m == nil {
			return 1, nil
		}
		return 0, m
	case "==", "=":
		matched, _ := matchAnchored(bs, a)
		if matched {
			return 0, nil
		}
		return 1, nil
	case "!=":
		matched, _ := matchAnchored(bs, a)
		if !matched {
			return 0, nil
		}
		return 1, nil
	default:
		rawB, _ := r.Expand.Literal(yw.W)
		if testBinaryStr(b.Op, a, rawB) {
			return 0, nil
		}
		return 1, nil
	}
}

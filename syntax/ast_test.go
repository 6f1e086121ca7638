package syntax

import "testing"

func reprint(t *testing.T, src string) string {
	t.Helper()
	f, err := Parse([]byte(src), t.Name())
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return PrintString(f)
}

// TestPrintRoundTripIdempotent checks that printing a parsed file and
// re-parsing+re-printing that output is stable, the property the
// interpreter relies on for `declare -p`/`trap -p` output.
func TestPrintRoundTripIdempotent(t *testing.T) {
	srcs := []string{
		"echo hi",
		"echo a | grep b",
		"if true; then echo y; else echo n; fi",
		"for i in 1 2 3; do echo $i; done",
		"while read line; do echo $line; done",
		"case $x in a) echo A ;; *) echo Z ;; esac",
		"f() { echo inside; }",
	}
	for _, src := range srcs {
		once := reprint(t, src)
		twice := reprint(t, once)
		if once != twice {
			t.Errorf("not idempotent for %q:\nfirst:  %q\nsecond: %q", src, once, twice)
		}
	}
}

func TestParsePipeline(t *testing.T) {
	f, err := Parse([]byte("a | b | c"), "test")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(f.Stmts) != 1 {
		t.Fatalf("expected 1 stmt, got %d", len(f.Stmts))
	}
	p, ok := f.Stmts[0].Cmd.(*Pipeline)
	if !ok {
		t.Fatalf("expected a Pipeline, got %T", f.Stmts[0].Cmd)
	}
	if len(p.Stages) != 3 {
		t.Errorf("expected 3 pipeline stages, got %d", len(p.Stages))
	}
}

func TestParseFuncDecl(t *testing.T) {
	f, err := Parse([]byte("greet() { echo hi; }"), "test")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	fd, ok := f.Stmts[0].Cmd.(*FuncDecl)
	if !ok {
		t.Fatalf("expected a FuncDecl, got %T", f.Stmts[0].Cmd)
	}
	if fd.Name.Value != "greet" {
		t.Errorf("expected name greet, got %q", fd.Name.Value)
	}
}

// TestArithmPrecedence confirms `*` binds tighter than `+` by checking
// the shape of the parsed tree rather than its evaluated value, keeping
// this a pure syntax-package test.
func TestArithmPrecedence(t *testing.T) {
	x, err := ParseArithm("1 + 2 * 3")
	if err != nil {
		t.Fatalf("ParseArithm: %v", err)
	}
	top, ok := x.(*BinaryArithm)
	if !ok {
		t.Fatalf("expected top-level BinaryArithm, got %T", x)
	}
	if top.Op != "+" {
		t.Fatalf("expected top-level op +, got %q", top.Op)
	}
	rhs, ok := top.Y.(*BinaryArithm)
	if !ok {
		t.Fatalf("expected RHS to be the nested */ BinaryArithm, got %T", top.Y)
	}
	if rhs.Op != "*" {
		t.Errorf("expected nested op *, got %q", rhs.Op)
	}
}

func TestArithmTernaryRightAssociative(t *testing.T) {
	x, err := ParseArithm("1 ? 2 : 3 ? 4 : 5")
	if err != nil {
		t.Fatalf("ParseArithm: %v", err)
	}
	top, ok := x.(*CondArithm)
	if !ok {
		t.Fatalf("expected top-level CondArithm, got %T", x)
	}
	if _, ok := top.Else.(*CondArithm); !ok {
		t.Errorf("expected a nested CondArithm on the Else branch, got %T", top.Else)
	}
}

package expand

import (
	"reflect"
	"testing"

	"github.com/tv-labs/bash-sub005/session"
	"github.com/tv-labs/bash-sub005/syntax"
)

// fieldsOf parses src as a single simple command and runs Fields over its
// argument words, giving the expansion pipeline real syntax.Word input
// instead of hand-built AST fragments.
func fieldsOf(t *testing.T, sess *session.Session, src string) []string {
	t.Helper()
	file, err := syntax.Parse([]byte(src), t.Name())
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	if len(file.Stmts) != 1 {
		t.Fatalf("expected 1 stmt, got %d", len(file.Stmts))
	}
	call, ok := file.Stmts[0].Cmd.(*syntax.CallExpr)
	if !ok {
		t.Fatalf("expected a CallExpr, got %T", file.Stmts[0].Cmd)
	}
	cfg := &Config{Session: sess}
	out, err := cfg.Fields(call.Args)
	if err != nil {
		t.Fatalf("Fields: %v", err)
	}
	return out
}

func TestParamOpDefaultAndAssignDefault(t *testing.T) {
	sess := session.New("/tmp")
	got := fieldsOf(t, sess, `echo ${unset_var:-fallback}`)
	want := []string{"echo", "fallback"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	fieldsOf(t, sess, `echo ${also_unset:=assigned}`)
	if v, ok := sess.GetVar("also_unset"); !ok || v.Str != "assigned" {
		t.Errorf(":= should assign, got %+v ok=%v", v, ok)
	}
}

func TestParamOpLengthAndTrim(t *testing.T) {
	sess := session.New("/tmp")
	sess.SetVar("s", session.Variable{Kind: session.Scalar, Str: "foo.bar.baz"})

	cases := []struct {
		src  string
		want string
	}{
		{`echo ${#s}`, "11"},
		{`echo ${s%.*}`, "foo.bar"},
		{`echo ${s%%.*}`, "foo"},
		{`echo ${s#*.}`, "bar.baz"},
		{`echo ${s##*.}`, "baz"},
	}
	for _, c := range cases {
		got := fieldsOf(t, sess, c.src)
		if len(got) != 2 || got[1] != c.want {
			t.Errorf("%s: got %v, want [echo %s]", c.src, got, c.want)
		}
	}
}

func TestParamOpCaseConversion(t *testing.T) {
	sess := session.New("/tmp")
	sess.SetVar("s", session.Variable{Kind: session.Scalar, Str: "Hello World"})

	got := fieldsOf(t, sess, `echo ${s^^}`)
	if !reflect.DeepEqual(got, []string{"echo", "HELLO", "WORLD"}) {
		t.Errorf("^^ got %q", got)
	}
	got = fieldsOf(t, sess, `echo ${s,,}`)
	if !reflect.DeepEqual(got, []string{"echo", "hello", "world"}) {
		t.Errorf(",, got %q", got)
	}
}

func TestFieldSplittingCustomIFS(t *testing.T) {
	sess := session.New("/tmp")
	sess.SetVar("IFS", session.Variable{Kind: session.Scalar, Str: ":"})
	sess.SetVar("list", session.Variable{Kind: session.Scalar, Str: "a:b:c"})

	got := fieldsOf(t, sess, `echo $list`)
	want := []string{"echo", "a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBraceExpansionList(t *testing.T) {
	sess := session.New("/tmp")
	got := fieldsOf(t, sess, `echo {a,b,c}`)
	want := []string{"echo", "a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBraceExpansionNumericRangeZeroPad(t *testing.T) {
	sess := session.New("/tmp")
	got := fieldsOf(t, sess, `echo {01..03}`)
	want := []string{"echo", "01", "02", "03"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBraceExpansionAlphabeticRange(t *testing.T) {
	sess := session.New("/tmp")
	got := fieldsOf(t, sess, `echo {a..e}`)
	want := []string{"echo", "a", "b", "c", "d", "e"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBraceExpansionStep(t *testing.T) {
	sess := session.New("/tmp")
	got := fieldsOf(t, sess, `echo {0..10..5}`)
	want := []string{"echo", "0", "5", "10"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestEvalArithmStringBasics(t *testing.T) {
	sess := session.New("/tmp")
	cfg := &Config{Session: sess}

	cases := []struct {
		expr string
		want int64
	}{
		{"1 + 2 * 3", 7},
		{"0x10", 16},
		{"010", 8},
		{"1 ? 2 : 3", 2},
		{"0 ? 2 : 3", 3},
	}
	for _, c := range cases {
		got, err := cfg.EvalArithmString(c.expr)
		if err != nil {
			t.Errorf("%s: %v", c.expr, err)
			continue
		}
		if got != c.want {
			t.Errorf("%s: got %d, want %d", c.expr, got, c.want)
		}
	}
}

func TestEvalArithmStringDivisionByZero(t *testing.T) {
	sess := session.New("/tmp")
	cfg := &Config{Session: sess}
	if _, err := cfg.EvalArithmString("1 / 0"); err == nil {
		t.Error("expected division-by-zero error")
	}
}

func TestEvalArithmStringCompoundAssign(t *testing.T) {
	sess := session.New("/tmp")
	sess.SetVar("n", session.Variable{Kind: session.Scalar, Str: "5"})
	cfg := &Config{Session: sess}

	if _, err := cfg.EvalArithmString("n += 3"); err != nil {
		t.Fatalf("n += 3: %v", err)
	}
	v, _ := sess.GetVar("n")
	if v.Str != "8" {
		t.Errorf("expected n==8 after +=, got %q", v.Str)
	}
}

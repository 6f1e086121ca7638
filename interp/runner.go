// Package interp implements the executor (component E) and the
// built-in registry (component F): it walks a parsed syntax.File
// against a session.Session, expanding words through package expand
// and materialising external execution through package process.
package interp

import (
	"bytes"
	"io"
	"os"

	"github.com/tv-labs/bash-sub005/expand"
	"github.com/tv-labs/bash-sub005/session"
	"github.com/tv-labs/bash-sub005/syntax"
)

// HostBuiltin is a host-registered callable satisfying the built-in
// registry's contract, for embedders extending the interpreter with
// their own commands.
type HostBuiltin func(r *Runner, argv []string) (BuiltinResult, error)

// BuiltinResult is what a built-in produces before the executor turns
// it into an Outcome.
type BuiltinResult struct {
	Code   uint8
	Delta  *session.StateDelta
	Unwind Unwind
}

// Runner is the executor: the live state needed to drive one or more
// syntax.Files against a single Session.
type Runner struct {
	Session *session.Session
	Expand  *expand.Config

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	hostBuiltins map[string]HostBuiltin
	osFiles      map[int]*os.File
	fifoDir      string // lazily created, holds this Runner's process-substitution FIFOs

	// loopDepth counts the for/while/until loops this Runner is
	// executing; `break`/`continue` use it to reject use outside a loop
	// and to cap their count at the outermost loop.
	loopDepth int

	exitTrapFired bool
}

// Option configures a Runner at construction time, matching the
// teacher's functional-options style for the embedding surface.
type Option func(*Runner)

// WithStdio overrides the three standard streams; by default Stdin is
// nil and Stdout/Stderr are the process's os.Stdout/os.Stderr.
func WithStdio(in io.Reader, out, err io.Writer) Option {
	return func(r *Runner) {
		r.Stdin = in
		r.Stdout = out
		r.Stderr = err
	}
}

// New builds a Runner bound to sess, wiring the word-expansion engine's
// command/process-substitution callbacks back into this Runner's own
// statement execution so `$(...)`/`<(...)` run through the same
// executor.
func New(sess *session.Session, opts ...Option) *Runner {
	r := &Runner{
		Session:      sess,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		hostBuiltins: map[string]HostBuiltin{},
	}
	r.Expand = &expand.Config{
		Session: sess,
		NoUnset: sess.Options.NoUnset,
	}
	r.Expand.RunCommandSubst = r.runCommandSubst
	r.Expand.RunProcSubst = r.runProcSubst
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterBuiltin installs a host-defined built-in under namespace,
// e.g. RegisterBuiltin("host", "greet", fn) makes it callable as
// `host.greet`.
func (r *Runner) RegisterBuiltin(namespace string, name string, fn HostBuiltin) {
	r.hostBuiltins[namespace+"."+name] = fn
}

// RegisterBuiltinFull installs fn under an already-namespaced key, for
// callers (like package shell) that keep their own namespace.name
// bookkeeping.
func (r *Runner) RegisterBuiltinFull(key string, fn HostBuiltin) {
	r.hostBuiltins[key] = fn
}

// Run parses nothing itself — callers pass an already-parsed File — and
// executes its statements in order, returning the top-level Outcome.
// EXIT traps fire exactly once, after the statement list completes or
// an Exit unwind reaches the top.
func (r *Runner) Run(file *syntax.File) Outcome {
	out := r.runStmts(file.Stmts)
	if out.Unwind.Kind == UnwindExit {
		out.Code = out.Unwind.Code
	}
	r.fireExitTrap()
	return out
}

func (r *Runner) fireExitTrap() {
	if r.exitTrapFired {
		return
	}
	r.exitTrapFired = true
	r.runTrap("EXIT")
}

func (r *Runner) runTrap(name string) {
	t, ok := r.Session.Traps[name]
	if !ok || t.Ignore || t.Source == "" {
		return
	}
	file, err := syntax.Parse([]byte(t.Source), name)
	if err != nil {
		return
	}
	r.runStmts(file.Stmts)
}

func (r *Runner) runCommandSubst(stmts []*syntax.Stmt) (string, error) {
	var buf bytes.Buffer
	child := cloneSession(r.Session)
	sub := &Runner{
		Session:      child,
		Stdout:       &buf,
		Stderr:       r.Stderr,
		Stdin:        r.Stdin,
		hostBuiltins: r.hostBuiltins,
	}
	sub.Expand = &expand.Config{Session: child, NoUnset: child.Options.NoUnset}
	sub.Expand.RunCommandSubst = sub.runCommandSubst
	sub.Expand.RunProcSubst = sub.runProcSubst
	sub.runStmts(stmts)
	r.Session.LastExit = child.LastExit
	out := buf.String()
	for len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	return out, nil
}

// runProcSubst (the `<(cmd)`/`>(cmd)` callback) lives in procsubst.go,
// grounded on the teacher's named-FIFO approach rather than /dev/fd.

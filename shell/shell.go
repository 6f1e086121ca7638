// Package shell is the embedding surface: the one entry point a host
// program uses to run shell scripts against a Session without
// reaching into interp/expand/syntax directly.
package shell

import (
	"bytes"
	"context"
	"fmt"

	"github.com/tv-labs/bash-sub005/interp"
	"github.com/tv-labs/bash-sub005/session"
	"github.com/tv-labs/bash-sub005/syntax"
)

// HostBuiltin is re-exported so callers never need to import interp
// directly just to write one.
type HostBuiltin = interp.HostBuiltin

// BuiltinResult is re-exported for the same reason.
type BuiltinResult = interp.BuiltinResult

// ExecutionResult is what Run returns: the exit code and whatever was
// written to the captured stdout/stderr streams.
type ExecutionResult struct {
	ExitCode uint8
	Stdout   []byte
	Stderr   []byte
}

// Interpreter is a configured, reusable embedding of the shell. A
// single Interpreter can Run multiple scripts against the same or
// different Sessions; host built-ins registered on it persist across
// calls.
type Interpreter struct {
	hostBuiltins map[string]HostBuiltin
	closed       bool
}

// Option configures an Interpreter at construction time.
type Option func(*Interpreter)

// New builds an Interpreter. There is currently nothing to configure
// at construction beyond host built-ins, which are added after the
// fact via RegisterBuiltin — opts is accepted for forward
// compatibility with the teacher's functional-options convention.
func New(opts ...Option) *Interpreter {
	in := &Interpreter{hostBuiltins: map[string]HostBuiltin{}}
	for _, o := range opts {
		o(in)
	}
	return in
}

// RegisterBuiltin installs fn as namespace.name, callable from script
// text as a normal command word.
func (in *Interpreter) RegisterBuiltin(namespace, name string, fn HostBuiltin) {
	in.hostBuiltins[namespace+"."+name] = fn
}

// Run parses script and executes it against sess, returning the exit
// code and captured output. ctx is honoured at statement granularity:
// when Done fires, Run stops at the next statement boundary and
// returns ctx.Err() without reporting a spurious exit code.
func (in *Interpreter) Run(ctx context.Context, script string, sess *session.Session) (ExecutionResult, error) {
	if in.closed {
		return ExecutionResult{}, fmt.Errorf("shell: interpreter closed")
	}
	file, err := syntax.Parse([]byte(script), "")
	if err != nil {
		return ExecutionResult{}, err
	}

	var stdout, stderr bytes.Buffer
	r := interp.New(sess, interp.WithStdio(nil, &stdout, &stderr))
	for key, fn := range in.hostBuiltins {
		r.RegisterBuiltinFull(key, fn)
	}

	done := make(chan interp.Outcome, 1)
	go func() { done <- r.Run(file) }()

	select {
	case <-ctx.Done():
		return ExecutionResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, ctx.Err()
	case out := <-done:
		return ExecutionResult{
			ExitCode: out.Code,
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
		}, nil
	}
}

// GetVar reads a variable's scalar value from sess, matching bash's
// own "unset reads as empty" convention.
func GetVar(sess *session.Session, name string) string {
	v, ok := sess.GetVar(name)
	if !ok {
		return ""
	}
	return v.Str
}

// SetEnv sets name as an exported scalar on sess, the same shape
// `export NAME=value` produces.
func SetEnv(sess *session.Session, name, value string) {
	sess.SetVar(name, session.Variable{Kind: session.Scalar, Str: value, Exported: true})
}

// GetCwd returns the session's current working directory.
func GetCwd(sess *session.Session) string {
	return sess.WorkingDir
}

// GetState returns the live Session so a host can inspect variables,
// jobs, or file descriptors beyond what GetVar/GetCwd expose.
func GetState(sess *session.Session) *session.Session {
	return sess
}

// Close releases any resources the Interpreter holds. Host built-ins
// registered before Close are discarded; a closed Interpreter cannot
// Run again.
func (in *Interpreter) Close() error {
	in.closed = true
	in.hostBuiltins = nil
	return nil
}

package interp

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tv-labs/bash-sub005/session"
	"github.com/tv-labs/bash-sub005/syntax"
)

func (r *Runner) runCall(cmd *syntax.CallExpr, s *syntax.Stmt) Outcome {
	argv, err := r.Expand.Fields(cmd.Args)
	if err != nil {
		fmt.Fprintln(r.Stderr, "bash:", err)
		return ok(1)
	}

	// `exec` with redirects but no command words changes the current
	// shell's own file descriptors permanently, rather than scoping the
	// change to one command's transient fdView.
	if len(argv) == 1 && argv[0] == "exec" && len(s.Redirs) > 0 {
		return r.runExecRedirectOnly(s.Redirs)
	}

	view, err := r.applyRedirects(s.Redirs)
	if err != nil {
		fmt.Fprintln(r.Stderr, "bash:", err)
		return ok(1)
	}
	defer view.close()

	if len(argv) == 0 {
		for _, a := range s.Assigns {
			if err := r.applyAssign(a, false); err != nil {
				fmt.Fprintln(r.Stderr, "bash:", err)
				return ok(1)
			}
		}
		return ok(0)
	}

	var restore func()
	if len(s.Assigns) > 0 {
		restore = r.pushTempEnv(s.Assigns)
		defer restore()
	}

	r.traceDebug(strings.Join(argv, " "))
	if r.Session.Options.XTrace {
		fmt.Fprintln(r.Stderr, "+ "+strings.Join(argv, " "))
	}

	return r.dispatch(argv, view)
}

// pushTempEnv applies a command's leading assignments as a temporary
// environment, restored once the command finishes, per the
// "assignment-only vs assignment+words" rule in the grammar.
func (r *Runner) pushTempEnv(assigns []*syntax.Assign) func() {
	type saved struct {
		name    string
		had     bool
		old     session.Variable
	}
	var saves []saved
	for _, a := range assigns {
		old, had := r.Session.GetVar(a.Name.Value)
		saves = append(saves, saved{a.Name.Value, had, old})
		r.applyAssign(a, true)
	}
	return func() {
		for _, sv := range saves {
			if sv.had {
				r.Session.SetVar(sv.name, sv.old)
			} else {
				r.Session.UnsetVar(sv.name, false)
			}
		}
	}
}

func (r *Runner) traceDebug(cmdText string) {
	t, ok := r.Session.Traps["DEBUG"]
	if !ok || t.Ignore || t.Source == "" {
		return
	}
	r.Session.SetVar("BASH_COMMAND", session.Variable{Kind: session.Scalar, Str: cmdText})
	r.runTrap("DEBUG")
}

func (r *Runner) dispatch(argv []string, view *fdView) Outcome {
	name := argv[0]

	if fn, ok := r.hostBuiltins[name]; ok {
		return r.callHostBuiltin(fn, argv, view)
	}

	if fnBody, ok := r.Session.Functions[name]; ok {
		return r.callFunction(fnBody, argv, view)
	}

	if b, ok := builtins[name]; ok {
		return r.callBuiltin(b, argv, view)
	}

	return r.callExternal(argv, view)
}

func (r *Runner) callHostBuiltin(fn HostBuiltin, argv []string, view *fdView) Outcome {
	stdout, stderr := r.Stdout, r.Stderr
	r.Stdout, r.Stderr = view.stdout, view.stderr
	defer func() { r.Stdout, r.Stderr = stdout, stderr }()

	res, err := fn(r, argv)
	if err != nil {
		fmt.Fprintln(view.stderr, "bash:", argv[0]+":", err)
		return ok(1)
	}
	if res.Delta != nil {
		r.Session.Apply(res.Delta)
	}
	return Outcome{Code: res.Code, Unwind: res.Unwind}
}

func (r *Runner) callFunction(fn session.Function, argv []string, view *fdView) Outcome {
	body, isStmt := fn.Body.(*syntax.Stmt)
	if !isStmt {
		return ok(1)
	}
	oldPositional := r.Session.Positional
	r.Session.Positional = argv[1:]
	r.Session.CallStack = append(r.Session.CallStack, session.Frame{
		FuncName:   argv[0],
		Positional: argv[1:],
	})
	stdout, stderr, stdin := r.Stdout, r.Stderr, r.Stdin
	r.Stdout, r.Stderr, r.Stdin = view.stdout, view.stderr, view.stdin

	out := r.runStmt(body)

	r.Stdout, r.Stderr, r.Stdin = stdout, stderr, stdin
	r.Session.CallStack = r.Session.CallStack[:len(r.Session.CallStack)-1]
	r.Session.Positional = oldPositional
	r.runTrap("RETURN")

	if out.Unwind.Kind == UnwindReturn {
		return ok(out.Unwind.Code)
	}
	return out
}

func (r *Runner) callBuiltin(b builtinFunc, argv []string, view *fdView) Outcome {
	stdout, stderr, stdin := r.Stdout, r.Stderr, r.Stdin
	r.Stdout, r.Stderr, r.Stdin = view.stdout, view.stderr, view.stdin
	defer func() { r.Stdout, r.Stderr, r.Stdin = stdout, stderr, stdin }()

	res := b(r, argv)
	if res.Delta != nil {
		r.Session.Apply(res.Delta)
	}
	return Outcome{Code: res.Code, Unwind: res.Unwind}
}

func (r *Runner) callExternal(argv []string, view *fdView) Outcome {
	path, err := exec.LookPath(argv[0])
	if err != nil {
		if strings.Contains(argv[0], "/") {
			path = argv[0]
			if _, statErr := os.Stat(path); statErr != nil {
				fmt.Fprintf(view.stderr, "bash: %s: No such file or directory\n", argv[0])
				return ok(127)
			}
		} else {
			fmt.Fprintf(view.stderr, "bash: %s: command not found\n", argv[0])
			return ok(127)
		}
	}

	cmd := exec.Command(path, argv[1:]...)
	cmd.Dir = r.Session.WorkingDir
	cmd.Env = r.exportedEnv()
	cmd.Stdin = view.stdin
	cmd.Stdout = view.stdout
	cmd.Stderr = view.stderr

	if err := cmd.Run(); err != nil {
		if exitErr, isExit := err.(*exec.ExitError); isExit {
			return ok(uint8(exitErr.ExitCode()))
		}
		if os.IsPermission(err) {
			fmt.Fprintf(view.stderr, "bash: %s: Permission denied\n", argv[0])
			return ok(126)
		}
		fmt.Fprintln(view.stderr, "bash:", err)
		return ok(126)
	}
	return ok(0)
}

// runExecRedirectOnly applies rd permanently against the Runner's own
// streams and tracked FDs, for the `exec N>file` / `exec N>&-` forms
// that adjust the current shell rather than spawning anything.
func (r *Runner) runExecRedirectOnly(redirs []*syntax.Redirect) Outcome {
	for _, rd := range redirs {
		n := defaultFd(rd.Op)
		if rd.N != nil {
			if parsed, err := strconv.Atoi(rd.N.Value); err == nil {
				n = parsed
			}
		}
		target, err := r.Expand.Literal(rd.Word)
		if err != nil {
			fmt.Fprintln(r.Stderr, "bash:", err)
			return ok(1)
		}
		if (rd.Op == syntax.RedirDplOut || rd.Op == syntax.RedirDplIn) && target == "-" {
			if f, ok := r.osFiles[n]; ok {
				f.Close()
				delete(r.osFiles, n)
			}
			delete(r.Session.FileDescriptors, n)
			switch n {
			case 0:
				r.Stdin = strings.NewReader("")
			case 1:
				r.Stdout = discardWriter{}
			case 2:
				r.Stderr = discardWriter{}
			}
			continue
		}
		switch rd.Op {
		case syntax.RedirGreat, syntax.RedirClobber, syntax.RedirAppend, syntax.RedirReadWrite:
			flags := os.O_WRONLY | os.O_CREATE
			if rd.Op == syntax.RedirAppend {
				flags |= os.O_APPEND
			} else if rd.Op == syntax.RedirReadWrite {
				flags = os.O_RDWR | os.O_CREATE
			} else {
				flags |= os.O_TRUNC
			}
			f, err := os.OpenFile(target, flags, 0o644)
			if err != nil {
				fmt.Fprintln(r.Stderr, "bash:", err)
				return ok(1)
			}
			switch n {
			case 1:
				r.Stdout = f
			case 2:
				r.Stderr = f
			}
		case syntax.RedirLess:
			f, err := os.Open(target)
			if err != nil {
				fmt.Fprintln(r.Stderr, "bash:", err)
				return ok(1)
			}
			if n == 0 {
				r.Stdin = f
			}
		}
	}
	return ok(0)
}

func (r *Runner) exportedEnv() []string {
	var env []string
	for name, v := range r.Session.Variables {
		if v.Exported && v.Kind == session.Scalar {
			env = append(env, name+"="+v.Str)
		}
	}
	return env
}


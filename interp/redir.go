package interp

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/tv-labs/bash-sub005/syntax"
)

// fdView is the per-command view of stdin/stdout/stderr after applying
// a Stmt's redirections; closers must run once the command finishes.
type fdView struct {
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	closers []io.Closer
}

func (v *fdView) close() {
	for _, c := range v.closers {
		c.Close()
	}
}

func (r *Runner) applyRedirects(redirs []*syntax.Redirect) (*fdView, error) {
	v := &fdView{stdin: r.Stdin, stdout: r.Stdout, stderr: r.Stderr}
	for _, rd := range redirs {
		if err := r.applyOneRedirect(v, rd); err != nil {
			v.close()
			return nil, err
		}
	}
	return v, nil
}

func (r *Runner) applyOneRedirect(v *fdView, rd *syntax.Redirect) error {
	n := defaultFd(rd.Op)
	if rd.N != nil {
		if parsed, err := strconv.Atoi(rd.N.Value); err == nil {
			n = parsed
		}
	}

	switch rd.Op {
	case syntax.RedirLess:
		path, err := r.Expand.Literal(rd.Word)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		v.closers = append(v.closers, f)
		assignFd(v, n, f, nil)

	case syntax.RedirGreat, syntax.RedirClobber, syntax.RedirReadWrite, syntax.RedirAppend:
		path, err := r.Expand.Literal(rd.Word)
		if err != nil {
			return err
		}
		flags := os.O_WRONLY | os.O_CREATE
		switch rd.Op {
		case syntax.RedirAppend:
			flags |= os.O_APPEND
		case syntax.RedirReadWrite:
			flags = os.O_RDWR | os.O_CREATE
		case syntax.RedirGreat:
			if r.Session.Options.NoClobber {
				if _, err := os.Stat(path); err == nil {
					return &redirError{path: path}
				}
			}
			flags |= os.O_TRUNC
		case syntax.RedirClobber:
			flags |= os.O_TRUNC
		}
		f, err := os.OpenFile(path, flags, 0o644)
		if err != nil {
			return err
		}
		v.closers = append(v.closers, f)
		assignFd(v, n, nil, f)

	case syntax.RedirDplOut:
		target, err := r.Expand.Literal(rd.Word)
		if err != nil {
			return err
		}
		if target == "-" {
			assignFd(v, n, nil, discardWriter{})
			return nil
		}
		if tn, err := strconv.Atoi(target); err == nil {
			if f, ok := r.osFile(tn); ok {
				assignFd(v, n, nil, f)
			} else {
				assignFd(v, n, nil, fdWriter(v, tn))
			}
		}

	case syntax.RedirDplIn:
		target, err := r.Expand.Literal(rd.Word)
		if err != nil {
			return err
		}
		if target == "-" {
			assignFd(v, n, strings.NewReader(""), nil)
			return nil
		}
		if tn, err := strconv.Atoi(target); err == nil {
			if f, ok := r.osFile(tn); ok {
				assignFd(v, n, f, nil)
			} else {
				assignFd(v, n, fdReader(v, tn), nil)
			}
		}

	case syntax.RedirHeredoc, syntax.RedirHeredocDash:
		body, err := r.Expand.Literal(rd.Hdoc)
		if err != nil {
			return err
		}
		assignFd(v, n, strings.NewReader(body), nil)

	case syntax.RedirHerestring:
		s, err := r.Expand.Literal(rd.Word)
		if err != nil {
			return err
		}
		assignFd(v, n, strings.NewReader(s+"\n"), nil)
	}
	return nil
}

type redirError struct{ path string }

func (e *redirError) Error() string { return e.path + ": cannot overwrite existing file" }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func defaultFd(op syntax.RedirOperator) int {
	switch op {
	case syntax.RedirLess, syntax.RedirHeredoc, syntax.RedirHeredocDash, syntax.RedirHerestring, syntax.RedirDplIn:
		return 0
	default:
		return 1
	}
}

func assignFd(v *fdView, n int, in io.Reader, out io.Writer) {
	switch n {
	case 0:
		if in != nil {
			v.stdin = in
		}
	case 1:
		if out != nil {
			v.stdout = out
		}
	case 2:
		if out != nil {
			v.stderr = out
		}
	}
}

func fdWriter(v *fdView, n int) io.Writer {
	switch n {
	case 1:
		return v.stdout
	case 2:
		return v.stderr
	}
	return discardWriter{}
}

func fdReader(v *fdView, n int) io.Reader {
	if n == 0 {
		return v.stdin
	}
	return strings.NewReader("")
}

package interp

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tv-labs/bash-sub005/expand"
	"github.com/tv-labs/bash-sub005/process"
	"github.com/tv-labs/bash-sub005/syntax"
)

const fifoNamePrefix = "bash-sub005-"

// procSubstDir returns this Runner's private directory for
// process-substitution FIFOs, creating it on first use.
func (r *Runner) procSubstDir() (string, error) {
	if r.fifoDir != "" {
		return r.fifoDir, nil
	}
	dir, err := os.MkdirTemp("", "bash-sub005-procsubst-")
	if err != nil {
		return "", err
	}
	r.fifoDir = dir
	return dir, nil
}

// runProcSubst implements `<(cmd)`/`>(cmd)`. A named FIFO is the only
// handle that works uniformly for an externally exec'd reader/writer:
// an os.Pipe pair's file descriptors are O_CLOEXEC and never show up
// in a spawned child's FD table, so `diff <(a) <(b)` would otherwise
// fail with "no such file or directory" the moment either side is a
// real command rather than a built-in.
func (r *Runner) runProcSubst(in bool, stmts []*syntax.Stmt) (string, error) {
	dir, err := r.procSubstDir()
	if err != nil {
		return "", err
	}

	var path string
	for try := 0; ; try++ {
		path = filepath.Join(dir, fifoNamePrefix+strconv.FormatUint(rand.Uint64(), 16))
		err := process.Mkfifo(path, 0o600)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("cannot create fifo: %w", err)
		}
		if try > 100 {
			return "", fmt.Errorf("giving up creating a process-substitution fifo")
		}
	}

	go func() {
		defer os.Remove(path)
		sub := &Runner{
			Session:      r.Session,
			Stderr:       r.Stderr,
			hostBuiltins: r.hostBuiltins,
			osFiles:      r.osFiles,
		}
		sub.Expand = &expand.Config{Session: r.Session}
		sub.Expand.RunCommandSubst = sub.runCommandSubst
		sub.Expand.RunProcSubst = sub.runProcSubst

		if in {
			// <(cmd): cmd's stdout feeds the fifo; whatever opened the
			// substituted path reads from it.
			f, err := os.OpenFile(path, os.O_WRONLY, 0)
			if err != nil {
				fmt.Fprintln(r.Stderr, "bash:", err)
				return
			}
			defer f.Close()
			sub.Stdout = f
		} else {
			// >(cmd): whatever opened the substituted path writes into
			// the fifo; cmd reads it as stdin.
			f, err := os.OpenFile(path, os.O_RDONLY, 0)
			if err != nil {
				fmt.Fprintln(r.Stderr, "bash:", err)
				return
			}
			defer f.Close()
			sub.Stdin = f
			sub.Stdout = r.Stdout
		}
		sub.runStmts(stmts)
	}()

	return path, nil
}

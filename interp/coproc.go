package interp

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/tv-labs/bash-sub005/session"
	"github.com/tv-labs/bash-sub005/syntax"
)

// osFiles tracks the concrete *os.File behind every coproc/redirected
// FD number the session knows about; session.FdEntry only carries the
// Fd()/Close() view so the session package stays free of an os
// dependency, but builtins like `read -u` and `exec N>&-` need the
// real file to read, write, or close.
func (r *Runner) osFile(n int) (*os.File, bool) {
	f, ok := r.osFiles[n]
	return f, ok
}

// runCoproc launches s.Cmd as a coprocess: an external command with
// both ends of two OS pipes bound into the session so later `read -u`
// and `>&FD` redirections can address it, and the shell's own ends
// exposed as COPROC[0] (read), COPROC[1] (write), COPROC_PID.
func (r *Runner) runCoproc(s *syntax.Stmt) Outcome {
	call, isCall := s.Cmd.(*syntax.CallExpr)
	if !isCall {
		fmt.Fprintln(r.Stderr, "bash: coproc: only a simple command is supported")
		return ok(1)
	}
	argv, err := r.Expand.Fields(call.Args)
	if err != nil || len(argv) == 0 {
		return ok(1)
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		fmt.Fprintf(r.Stderr, "bash: %s: command not found\n", argv[0])
		return ok(127)
	}

	childStdinR, shellWriteW, err := os.Pipe()
	if err != nil {
		return ok(1)
	}
	shellReadR, childStdoutW, err := os.Pipe()
	if err != nil {
		return ok(1)
	}

	cmd := exec.Command(path, argv[1:]...)
	cmd.Dir = r.Session.WorkingDir
	cmd.Env = r.exportedEnv()
	cmd.Stdin = childStdinR
	cmd.Stdout = childStdoutW
	cmd.Stderr = r.Stderr

	if err := cmd.Start(); err != nil {
		fmt.Fprintln(r.Stderr, "bash: coproc:", err)
		return ok(1)
	}
	childStdinR.Close()
	childStdoutW.Close()

	if r.osFiles == nil {
		r.osFiles = map[int]*os.File{}
	}
	readFd := int(shellReadR.Fd())
	writeFd := int(shellWriteW.Fd())
	r.osFiles[readFd] = shellReadR
	r.osFiles[writeFd] = shellWriteW

	r.Session.FileDescriptors[readFd] = session.FdEntry{Kind: session.FdCoproc, File: shellReadR, CoprocPid: cmd.Process.Pid, CoprocDir: session.CoprocRead}
	r.Session.FileDescriptors[writeFd] = session.FdEntry{Kind: session.FdCoproc, File: shellWriteW, CoprocPid: cmd.Process.Pid, CoprocDir: session.CoprocWrite}

	r.Session.SetVar("COPROC", session.Variable{Kind: session.Indexed, Index: map[int]string{
		0: strconv.Itoa(readFd),
		1: strconv.Itoa(writeFd),
	}})
	r.Session.SetVar("COPROC_PID", session.Variable{Kind: session.Scalar, Str: strconv.Itoa(cmd.Process.Pid)})

	id := nextJobID(r.Session)
	job := &session.Job{ID: id, Pid: cmd.Process.Pid, Cmd: argv[0]}
	r.Session.Jobs[id] = job
	go func() {
		cmd.Wait()
		job.Done = true
	}()

	return ok(0)
}

func nextJobID(s *session.Session) int {
	id := 1
	for {
		if _, taken := s.Jobs[id]; !taken {
			return id
		}
		id++
	}
}

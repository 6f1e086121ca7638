// Package process implements the process and FD subsystem: spawning
// external commands with the right process-group and signal
// dispositions, and the low-level pipe/FD plumbing pipelines and
// coprocesses need. Session-level bookkeeping (the job table, the
// OrphanSupervisor) lives in package session; this package only deals
// with OS-level mechanics.
package process

import (
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// Spec describes one external command to launch.
type Spec struct {
	Path string
	Args []string
	Dir  string
	Env  []string

	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	ExtraFiles []*os.File

	// Foreground is not read by Start: every child gets its own process
	// group, and none is made the controlling terminal's foreground
	// group.
	Foreground bool
}

// Handle is a running (or exited) child process.
type Handle struct {
	Cmd *exec.Cmd
	Pid int
}

// Start launches a child process per Spec, placing it in its own
// process group so a subsequent signal sent to the group (Ctrl-C, a
// trapped SIGINT forwarded by the interpreter) reaches it and any
// grandchildren together, the same isolation external commands get
// under a real job-control shell.
func Start(spec Spec) (*Handle, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	cmd.ExtraFiles = spec.ExtraFiles
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &Handle{Cmd: cmd, Pid: cmd.Process.Pid}, nil
}

// Wait blocks until the child exits and returns its exit code, mod 256
// the way a shell reports it.
func (h *Handle) Wait() uint8 {
	err := h.Cmd.Wait()
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				return uint8(128 + int(ws.Signal()))
			}
			return uint8(ws.ExitStatus())
		}
	}
	return 1
}

// Signal sends sig to the child's entire process group.
func (h *Handle) Signal(sig unix.Signal) error {
	return unix.Kill(-h.Pid, sig)
}

// SignalPid sends sig directly to pid, for `kill` targeting a pid or
// job the Runner did not itself Start (an adopted orphan, a pid
// recorded from a job table entry).
func SignalPid(pid int, sig unix.Signal) error {
	return unix.Kill(pid, sig)
}

// LookSignal resolves a signal name (with or without the SIG prefix)
// or number to its unix.Signal value, for `kill` and `trap`.
func LookSignal(name string) (unix.Signal, bool) {
	if num, err := strconv.Atoi(name); err == nil {
		for _, s := range signalByName {
			if int(s) == num {
				return s, true
			}
		}
		return 0, false
	}
	if n, ok := signalByName[normalizeSignalName(name)]; ok {
		return n, true
	}
	return 0, false
}

func normalizeSignalName(name string) string {
	if len(name) > 3 && name[:3] == "SIG" {
		return name[3:]
	}
	return name
}

var signalByName = map[string]unix.Signal{
	"HUP": unix.SIGHUP, "INT": unix.SIGINT, "QUIT": unix.SIGQUIT,
	"ILL": unix.SIGILL, "TRAP": unix.SIGTRAP, "ABRT": unix.SIGABRT,
	"BUS": unix.SIGBUS, "FPE": unix.SIGFPE, "KILL": unix.SIGKILL,
	"USR1": unix.SIGUSR1, "SEGV": unix.SIGSEGV, "USR2": unix.SIGUSR2,
	"PIPE": unix.SIGPIPE, "ALRM": unix.SIGALRM, "TERM": unix.SIGTERM,
	"CHLD": unix.SIGCHLD, "CONT": unix.SIGCONT, "STOP": unix.SIGSTOP,
	"TSTP": unix.SIGTSTP, "TTIN": unix.SIGTTIN, "TTOU": unix.SIGTTOU,
	"WINCH": unix.SIGWINCH,
}

// SignalNames lists every known signal in canonical `kill -l` order.
func SignalNames() []string {
	order := []string{"HUP", "INT", "QUIT", "ILL", "TRAP", "ABRT", "BUS",
		"FPE", "KILL", "USR1", "SEGV", "USR2", "PIPE", "ALRM", "TERM",
		"CHLD", "CONT", "STOP", "TSTP", "TTIN", "TTOU", "WINCH"}
	return order
}

// Pipe allocates an OS pipe pair for pipeline stage wiring or coproc
// FDs.
func Pipe() (r, w *os.File, err error) {
	return os.Pipe()
}

// Mkfifo creates a named FIFO at path, for process substitution: a
// named filesystem path is the only handle that works uniformly
// whether the reader/writer on the other end is this process's own
// goroutines or an external command spawned with exec.Command (which
// never inherits an os.Pipe's CLOEXEC'd file descriptor otherwise).
func Mkfifo(path string, mode uint32) error {
	return unix.Mkfifo(path, mode)
}

package process

import (
	"bytes"
	"io"
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

func TestStartWaitExitCode(t *testing.T) {
	h, err := Start(Spec{Path: "/bin/sh", Args: []string{"/bin/sh", "-c", "exit 3"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if code := h.Wait(); code != 3 {
		t.Errorf("expected exit code 3, got %d", code)
	}
}

func TestStartCapturesStdout(t *testing.T) {
	r, w, err := Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	h, err := Start(Spec{Path: "/bin/echo", Args: []string{"/bin/echo", "hello"}, Stdout: w})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	w.Close()
	var buf bytes.Buffer
	io.Copy(&buf, r)
	r.Close()
	if code := h.Wait(); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if got := buf.String(); got != "hello\n" {
		t.Errorf("got %q", got)
	}
}

func TestSignalPidDelivery(t *testing.T) {
	h, err := Start(Spec{Path: "/bin/sh", Args: []string{"/bin/sh", "-c", "trap 'exit 7' TERM; sleep 5"}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := SignalPid(h.Pid, unix.SIGTERM); err != nil {
		t.Fatalf("SignalPid: %v", err)
	}
	if code := h.Wait(); code != 7 {
		t.Errorf("expected the trap's exit 7, got %d", code)
	}
}

func TestLookSignalAcceptsPrefixedAndBare(t *testing.T) {
	a, ok := LookSignal("TERM")
	if !ok {
		t.Fatal("expected TERM to resolve")
	}
	b, ok := LookSignal("SIGTERM")
	if !ok {
		t.Fatal("expected SIGTERM to resolve")
	}
	if a != b {
		t.Errorf("TERM and SIGTERM should resolve to the same signal, got %v and %v", a, b)
	}
}

// TestPtyForegroundGroup starts a command with its stdio on a pty
// master/slave pair and checks that the child's output arrives on the
// master side; it does not send any terminal-driven signal.
func TestPtyForegroundGroup(t *testing.T) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable in this environment: %v", err)
	}
	defer ptmx.Close()
	defer tty.Close()

	h, err := Start(Spec{
		Path:       "/bin/sh",
		Args:       []string{"/bin/sh", "-c", "echo on-pty"},
		Stdin:      tty,
		Stdout:     tty,
		Stderr:     tty,
		Foreground: true,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	tty.Close()

	buf := make([]byte, 64)
	ptmx.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _ := ptmx.Read(buf)
	if !bytes.Contains(buf[:n], []byte("on-pty")) {
		t.Errorf("expected output through the pty, got %q", buf[:n])
	}
	h.Wait()
}

func TestMain(m *testing.M) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		os.Exit(0)
	}
	os.Exit(m.Run())
}

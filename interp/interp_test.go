package interp

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tv-labs/bash-sub005/session"
	"github.com/tv-labs/bash-sub005/syntax"
)

func runScript(t *testing.T, src string) (stdout, stderr string, code uint8) {
	t.Helper()
	file, err := syntax.Parse([]byte(src), t.Name())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var out, errBuf bytes.Buffer
	sess := session.New(t.TempDir())
	r := New(sess, WithStdio(strings.NewReader(""), &out, &errBuf))
	outcome := r.Run(file)
	return out.String(), errBuf.String(), outcome.Code
}

func TestSeedBreakInForLoop(t *testing.T) {
	stdout, _, _ := runScript(t, `for i in 1 2 3; do echo $i; break; done`)
	if diff := cmp.Diff("1\n", stdout); diff != "" {
		t.Errorf("stdout mismatch (-want +got):\n%s", diff)
	}
}

func TestSeedBreakTwoLevels(t *testing.T) {
	stdout, _, _ := runScript(t, `for i in 1 2; do for j in a b; do echo $j; break 2; done; done`)
	if diff := cmp.Diff("a\n", stdout); diff != "" {
		t.Errorf("stdout mismatch (-want +got):\n%s", diff)
	}
}

func TestSeedCoprocReadWrite(t *testing.T) {
	stdout, stderr, _ := runScript(t, `coproc cat
echo hello >&${COPROC[1]}
eval "exec ${COPROC[1]}>&-"
read -u ${COPROC[0]} line
echo "$line"`)
	if stderr != "" {
		t.Logf("stderr: %s", stderr)
	}
	if diff := cmp.Diff("hello\n", stdout); diff != "" {
		t.Errorf("stdout mismatch (-want +got):\n%s", diff)
	}
}

func TestSeedNamerefIdentity(t *testing.T) {
	stdout, _, _ := runScript(t, `target=hello; declare -n ref=target; ref=world; echo $target`)
	if diff := cmp.Diff("world\n", stdout); diff != "" {
		t.Errorf("stdout mismatch (-want +got):\n%s", diff)
	}
}

func TestSeedExitTrapOrdering(t *testing.T) {
	stdout, _, _ := runScript(t, `trap 'echo EXIT_FIRED' EXIT; echo hi`)
	hiIdx := strings.Index(stdout, "hi")
	firedIdx := strings.Index(stdout, "EXIT_FIRED")
	if hiIdx < 0 || firedIdx < 0 || hiIdx > firedIdx {
		t.Errorf("expected hi before EXIT_FIRED, got %q", stdout)
	}
}

func TestSeedCaseFallthrough(t *testing.T) {
	stdout, _, _ := runScript(t, `case foo in f*) echo one ;;& foo) echo two ;; *) echo three ;; esac`)
	if diff := cmp.Diff("one\ntwo\n", stdout); diff != "" {
		t.Errorf("stdout mismatch (-want +got):\n%s", diff)
	}
}

func TestExitCodeModulo256(t *testing.T) {
	_, _, code := runScript(t, `exit 256`)
	if code != 0 {
		t.Errorf("exit 256 should wrap to 0, got %d", code)
	}
}

func TestContinueClampsToOutermost(t *testing.T) {
	stdout, _, _ := runScript(t, `for i in 1 2; do for j in a b; do continue 10; echo $j; done; echo $i; done`)
	if diff := cmp.Diff("", stdout); diff != "" {
		t.Errorf("stdout mismatch (-want +got):\n%s", diff)
	}
}

func TestSubshellIsolation(t *testing.T) {
	stdout, _, _ := runScript(t, `x=1; ( x=2; echo "inner=$x" ); echo "outer=$x"`)
	if diff := cmp.Diff("inner=2\nouter=1\n", stdout); diff != "" {
		t.Errorf("stdout mismatch (-want +got):\n%s", diff)
	}
}

func TestPipefailMonotonicity(t *testing.T) {
	_, _, code := runScript(t, `set -o pipefail
true | false | true`)
	if code != 1 {
		t.Errorf("pipefail should surface the rightmost non-zero stage (false), got %d", code)
	}
}

func TestNoPipefailUsesLastStage(t *testing.T) {
	_, _, code := runScript(t, `false | true`)
	if code != 0 {
		t.Errorf("without pipefail the exit code should be the last stage's, got %d", code)
	}
}

func TestPrintfZeroPad(t *testing.T) {
	stdout, _, _ := runScript(t, `printf "%05d\n" 42`)
	if diff := cmp.Diff("00042\n", stdout); diff != "" {
		t.Errorf("stdout mismatch (-want +got):\n%s", diff)
	}
}

func TestPrintfWidthPrecisionAndFloat(t *testing.T) {
	stdout, _, _ := runScript(t, `printf "%-5s|%5.2f|%x\n" ab 3.14159 255`)
	if diff := cmp.Diff("ab   | 3.14|ff\n", stdout); diff != "" {
		t.Errorf("stdout mismatch (-want +got):\n%s", diff)
	}
}

func TestPrintfVCapturesIntoVariable(t *testing.T) {
	stdout, _, _ := runScript(t, `printf -v out "%03d" 7; echo "$out"`)
	if diff := cmp.Diff("007\n", stdout); diff != "" {
		t.Errorf("stdout mismatch (-want +got):\n%s", diff)
	}
}

func TestReadArrayFlag(t *testing.T) {
	stdout, _, _ := runScript(t, `echo "one two three" | { read -a words; echo "${words[1]}"; }`)
	if diff := cmp.Diff("two\n", stdout); diff != "" {
		t.Errorf("stdout mismatch (-want +got):\n%s", diff)
	}
}

func TestReadByteLimit(t *testing.T) {
	stdout, _, _ := runScript(t, `echo "abcdef" | { read -n 3 chunk; echo "$chunk"; }`)
	if diff := cmp.Diff("abc\n", stdout); diff != "" {
		t.Errorf("stdout mismatch (-want +got):\n%s", diff)
	}
}

// TestReadTimeoutFails uses an io.Pipe, which blocks a reader until
// something writes or closes it, so `read -t` has something to
// actually time out against rather than hitting an immediate EOF.
func TestReadTimeoutFails(t *testing.T) {
	file, err := syntax.Parse([]byte(`read -t 0.05 x`), t.Name())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	pr, pw := io.Pipe()
	defer pw.Close()
	var out, errBuf bytes.Buffer
	sess := session.New(t.TempDir())
	r := New(sess, WithStdio(pr, &out, &errBuf))
	outcome := r.Run(file)
	if outcome.Code != 142 {
		t.Errorf("expected timeout exit code 142, got %d", outcome.Code)
	}
}

func TestMapfileFlags(t *testing.T) {
	stdout, _, _ := runScript(t, `printf "a\nb\nc\nd\n" | { mapfile -t -n 2 -s 1 lines; echo "${lines[0]}:${lines[1]}"; }`)
	if diff := cmp.Diff("b:c\n", stdout); diff != "" {
		t.Errorf("stdout mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessSubstitutionInput(t *testing.T) {
	stdout, stderr, code := runScript(t, `cat <(echo hi)`)
	if code != 0 {
		t.Fatalf("exit code %d, stderr %q", code, stderr)
	}
	if diff := cmp.Diff("hi\n", stdout); diff != "" {
		t.Errorf("stdout mismatch (-want +got):\n%s", diff)
	}
}

// TestProcessSubstitutionOutput exercises `>(cmd)`: the outer command
// writes into the fifo, and the backgrounded `cat` reads it and
// copies it into outFile. Since that copy finishes on its own
// goroutine, the test polls briefly rather than assuming it is done
// the instant the outer statement returns.
func TestProcessSubstitutionOutput(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "out.txt")
	_, stderr, code := runScript(t, fmt.Sprintf(`echo hi > >(cat > %s)`, outFile))
	if code != 0 {
		t.Fatalf("exit code %d, stderr %q", code, stderr)
	}

	deadline := time.Now().Add(2 * time.Second)
	var data []byte
	for time.Now().Before(deadline) {
		data, _ = os.ReadFile(outFile)
		if len(data) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if diff := cmp.Diff("hi\n", string(data)); diff != "" {
		t.Errorf("out file mismatch (-want +got):\n%s", diff)
	}
}

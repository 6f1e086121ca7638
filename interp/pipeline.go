package interp

import (
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/tv-labs/bash-sub005/syntax"
)

// runPipeline wires each stage's stdout to the next stage's stdin
// through OS pipes and runs every stage concurrently with an
// errgroup, matching a real shell's behaviour where all pipeline
// members run in parallel rather than buffering stage by stage. The
// reported exit code is the last stage's unless pipefail is set, in
// which case it is the rightmost non-zero code.
func (r *Runner) runPipeline(p *syntax.Pipeline) Outcome {
	n := len(p.Stages)
	if n == 0 {
		return ok(0)
	}
	if n == 1 {
		out := r.runStmt(p.Stages[0])
		return negatePipeline(p, out)
	}

	readers := make([]*os.File, n-1)
	writers := make([]*os.File, n-1)
	for i := 0; i < n-1; i++ {
		rp, wp, err := os.Pipe()
		if err != nil {
			return ok(1)
		}
		readers[i] = rp
		writers[i] = wp
	}

	codes := make([]uint8, n)
	unwinds := make([]Unwind, n)
	var g errgroup.Group

	for i := 0; i < n; i++ {
		i := i
		stage := New(r.Session, WithStdio(r.Stdin, r.Stdout, r.Stderr))
		stage.hostBuiltins = r.hostBuiltins
		stage.osFiles = r.osFiles

		var stdin io.Reader = r.Stdin
		var stdout io.Writer = r.Stdout
		if i > 0 {
			stdin = readers[i-1]
		}
		if i < n-1 {
			stdout = writers[i]
		}
		if i < n-1 && len(p.StderrPiped) > i && p.StderrPiped[i] {
			stage.Stderr = writers[i]
		}
		stage.Stdin, stage.Stdout = stdin, stdout

		g.Go(func() error {
			out := stage.runStmt(p.Stages[i])
			if i > 0 {
				readers[i-1].Close()
			}
			if i < n-1 {
				writers[i].Close()
			}
			codes[i] = out.Code
			unwinds[i] = out.Unwind
			return nil
		})
	}
	g.Wait()

	last := codes[n-1]
	if r.Session.Options.PipeFail {
		for i := n - 1; i >= 0; i-- {
			if codes[i] != 0 {
				last = codes[i]
				break
			}
		}
	}
	out := Outcome{Code: last}
	for _, u := range unwinds {
		if u.Kind != UnwindNone {
			out.Unwind = u
			break
		}
	}
	r.Session.LastExit = out.Code
	return negatePipeline(p, out)
}

func negatePipeline(p *syntax.Pipeline, out Outcome) Outcome {
	if !p.Negated {
		return out
	}
	if out.Code == 0 {
		out.Code = 1
	} else {
		out.Code = 0
	}
	return out
}

package interp

import (
	"fmt"
	"strings"

	"github.com/tv-labs/bash-sub005/session"
	"github.com/tv-labs/bash-sub005/syntax"
)

func (r *Runner) runStmts(stmts []*syntax.Stmt) Outcome {
	var out Outcome
	for _, s := range stmts {
		out = r.runStmt(s)
		if out.isUnwinding() {
			return out
		}
	}
	return out
}

func (r *Runner) runStmt(s *syntax.Stmt) Outcome {
	if r.Session.Options.NoExec {
		return ok(0)
	}
	if r.Session.Options.Verbose {
		fmt.Fprintln(r.Stderr, syntax.PrintString(&syntax.File{Stmts: []*syntax.Stmt{s}}))
	}

	if len(s.Assigns) > 0 && isAssignOnly(s) {
		return r.runAssignOnly(s)
	}

	out := r.runCommandWithModifiers(s)

	if out.Code != 0 {
		r.runTrap("ERR")
	}
	if r.Session.Options.ErrExit && out.Code != 0 && !out.isUnwinding() {
		out.Unwind = Unwind{Kind: UnwindExit, Code: out.Code}
	}
	r.Session.LastExit = out.Code
	return out
}

func isAssignOnly(s *syntax.Stmt) bool {
	if c, ok := s.Cmd.(*syntax.CallExpr); ok {
		return len(c.Args) == 0
	}
	return s.Cmd == nil
}

func (r *Runner) runAssignOnly(s *syntax.Stmt) Outcome {
	for _, a := range s.Assigns {
		if err := r.applyAssign(a, false); err != nil {
			fmt.Fprintln(r.Stderr, "bash:", err)
			return ok(1)
		}
	}
	return ok(0)
}

// applyAssign evaluates one NAME=value / NAME+=value / NAME=(...)
// assignment and writes it to the session, honouring nameref/readonly
// semantics via Session.SetVar.
func (r *Runner) applyAssign(a *syntax.Assign, exported bool) error {
	name := a.Name.Value
	if a.Array {
		idx := map[int]string{}
		for i, elem := range a.Elems {
			v, err := r.Expand.Literal(elem.Value)
			if err != nil {
				return err
			}
			idx[i] = v
		}
		return r.Session.SetVar(name, session.Variable{Kind: session.Indexed, Index: idx, Exported: exported})
	}
	val, err := r.Expand.Literal(a.Value)
	if err != nil {
		return err
	}
	if a.Append {
		if existing, ok := r.Session.GetVar(name); ok && existing.Kind == session.Scalar {
			val = existing.Str + val
		}
	}
	return r.Session.SetVar(name, session.Variable{Kind: session.Scalar, Str: val, Exported: exported})
}

func (r *Runner) runCommandWithModifiers(s *syntax.Stmt) Outcome {
	if s.Coprocess {
		return r.runCoproc(s)
	}
	if s.Background {
		return r.runBackground(s)
	}
	out := r.runCommand(s.Cmd, s)
	if s.Negated {
		if out.Code == 0 {
			out.Code = 1
		} else {
			out.Code = 0
		}
	}
	return out
}

func (r *Runner) runCommand(cmd syntax.Command, s *syntax.Stmt) Outcome {
	switch cmd := cmd.(type) {
	case nil:
		return ok(0)
	case *syntax.CallExpr:
		return r.runCall(cmd, s)
	case *syntax.Pipeline:
		return r.runPipeline(cmd)
	case *syntax.Compound:
		return r.runCompound(cmd)
	case *syntax.IfClause:
		return r.runIf(cmd)
	case *syntax.WhileClause:
		return r.runWhile(cmd)
	case *syntax.ForClause:
		return r.runFor(cmd)
	case *syntax.CaseClause:
		return r.runCase(cmd)
	case *syntax.FuncDecl:
		r.Session.Functions[cmd.Name.Value] = session.Function{Body: cmd.Body}
		return ok(0)
	case *syntax.TestCommand:
		return r.runTestCommand(cmd)
	case *syntax.TestExpression:
		code, rematch := r.evalTestExpr(cmd.X)
		if len(rematch) > 0 {
			idx := map[int]string{}
			for i, v := range rematch {
				idx[i] = v
			}
			r.Session.SetVar("BASH_REMATCH", session.Variable{Kind: session.Indexed, Index: idx})
		}
		return ok(code)
	case *syntax.ArithmCmd:
		v, err := r.Expand.EvalArithm(cmd.X)
		if err != nil {
			fmt.Fprintln(r.Stderr, "bash:", err)
			return ok(1)
		}
		if v == 0 {
			return ok(1)
		}
		return ok(0)
	default:
		fmt.Fprintf(r.Stderr, "bash: unsupported command node %T\n", cmd)
		return ok(2)
	}
}

func (r *Runner) runCompound(c *syntax.Compound) Outcome {
	switch c.Kind {
	case syntax.Subshell:
		return r.runSubshell(c.Stmts)
	case syntax.Group:
		return r.runStmts(c.Stmts)
	default: // Operand: chain of && / ||
		return r.runOperandChain(c)
	}
}

func (r *Runner) runOperandChain(c *syntax.Compound) Outcome {
	if len(c.Stmts) == 0 {
		return ok(0)
	}
	out := r.runStmt(c.Stmts[0])
	for i, op := range c.Operators {
		if out.isUnwinding() {
			return out
		}
		skip := (op == syntax.AndAnd && out.Code != 0) || (op == syntax.OrOr && out.Code == 0)
		if skip {
			continue
		}
		out = r.runStmt(c.Stmts[i+1])
	}
	return out
}

// runSubshell executes stmts against a deep-copied child session so
// variable/function/option/cd/trap mutations never leak to the
// parent, per the subshell-isolation invariant.
func (r *Runner) runSubshell(stmts []*syntax.Stmt) Outcome {
	child := cloneSession(r.Session)
	sub := New(child, WithStdio(r.Stdin, r.Stdout, r.Stderr))
	sub.hostBuiltins = r.hostBuiltins
	out := sub.runStmts(stmts)
	r.Session.LastExit = out.Code
	return out
}

func cloneSession(s *session.Session) *session.Session {
	c := session.New(s.WorkingDir)
	for k, v := range s.Variables {
		c.Variables[k] = v
	}
	for k, v := range s.Functions {
		c.Functions[k] = v
	}
	for k, v := range s.Aliases {
		c.Aliases[k] = v
	}
	c.Options = s.Options
	c.Positional = append([]string(nil), s.Positional...)
	c.DirStack = append([]string(nil), s.DirStack...)
	for k, v := range s.Traps {
		c.Traps[k] = v
	}
	c.LastExit = s.LastExit
	return c
}

func (r *Runner) runIf(c *syntax.IfClause) Outcome {
	cond := r.runStmts(c.Cond)
	if cond.isUnwinding() {
		return cond
	}
	if cond.Code == 0 {
		return r.runStmts(c.Then)
	}
	for _, e := range c.Elifs {
		cond := r.runStmts(e.Cond)
		if cond.isUnwinding() {
			return cond
		}
		if cond.Code == 0 {
			return r.runStmts(e.Then)
		}
	}
	if c.HasElse {
		return r.runStmts(c.Else)
	}
	return ok(0)
}

func (r *Runner) runWhile(c *syntax.WhileClause) Outcome {
	r.loopDepth++
	defer func() { r.loopDepth-- }()
	var last Outcome
	for {
		cond := r.runStmts(c.Cond)
		if cond.isUnwinding() {
			return cond
		}
		want := cond.Code == 0
		if c.Until {
			want = cond.Code != 0
		}
		if !want {
			break
		}
		out := r.runStmts(c.Do)
		if stop, ret := r.handleLoopOutcome(out, &last); stop {
			return ret
		}
	}
	return last
}

// handleLoopOutcome applies break/continue unwind consumption for one
// loop body result; stop=true means the caller should return ret
// immediately (either a genuine unwind past this loop, or the loop
// naturally ending).
func (r *Runner) handleLoopOutcome(out Outcome, last *Outcome) (stop bool, ret Outcome) {
	*last = Outcome{Code: out.Code}
	if (out.Unwind.Kind == UnwindBreak || out.Unwind.Kind == UnwindContinue) && out.Unwind.N > r.loopDepth {
		out.Unwind.N = r.loopDepth
	}
	switch out.Unwind.Kind {
	case UnwindNone:
		return false, Outcome{}
	case UnwindBreak:
		n := clampLoopN(out.Unwind.N)
		if n > 1 {
			return true, Outcome{Code: out.Code, Unwind: Unwind{Kind: UnwindBreak, N: n - 1}}
		}
		return true, Outcome{Code: out.Code}
	case UnwindContinue:
		n := clampLoopN(out.Unwind.N)
		if n > 1 {
			return true, Outcome{Code: out.Code, Unwind: Unwind{Kind: UnwindContinue, N: n - 1}}
		}
		return false, Outcome{}
	default:
		return true, out
	}
}

func (r *Runner) runFor(c *syntax.ForClause) Outcome {
	r.loopDepth++
	defer func() { r.loopDepth-- }()
	var last Outcome

	if c.CStyle {
		if c.Init != nil {
			if _, err := r.Expand.EvalArithm(c.Init); err != nil {
				fmt.Fprintln(r.Stderr, "bash:", err)
				return ok(1)
			}
		}
		for {
			if c.CondArith != nil {
				v, err := r.Expand.EvalArithm(c.CondArith)
				if err != nil {
					fmt.Fprintln(r.Stderr, "bash:", err)
					return ok(1)
				}
				if v == 0 {
					break
				}
			}
			out := r.runStmts(c.Do)
			if stop, ret := r.handleLoopOutcome(out, &last); stop {
				return ret
			}
			if c.Post != nil {
				if _, err := r.Expand.EvalArithm(c.Post); err != nil {
					fmt.Fprintln(r.Stderr, "bash:", err)
					return ok(1)
				}
			}
		}
		return last
	}

	items, err := r.Expand.Fields(c.Items)
	if err != nil {
		fmt.Fprintln(r.Stderr, "bash:", err)
		return ok(1)
	}
	for _, item := range items {
		r.Session.SetVar(c.Name.Value, session.Variable{Kind: session.Scalar, Str: item})
		out := r.runStmts(c.Do)
		if stop, ret := r.handleLoopOutcome(out, &last); stop {
			return ret
		}
	}
	return last
}

func (r *Runner) runCase(c *syntax.CaseClause) Outcome {
	word, err := r.Expand.Literal(c.Word)
	if err != nil {
		fmt.Fprintln(r.Stderr, "bash:", err)
		return ok(1)
	}
	for i := 0; i < len(c.Items); i++ {
		item := c.Items[i]
		if !r.caseItemMatches(item, word) {
			continue
		}
		out := r.runStmts(item.Stmts)
		switch item.Term {
		case syntax.CaseFallthrough:
			if i+1 < len(c.Items) {
				fallOut := r.runStmts(c.Items[i+1].Stmts)
				return fallOut
			}
			return out
		case syntax.CaseContinueMatch:
			if out.isUnwinding() {
				return out
			}
			continue
		default:
			return out
		}
	}
	return ok(0)
}

func (r *Runner) caseItemMatches(item *syntax.CaseItem, word string) bool {
	for _, pw := range item.Patterns {
		pat, err := r.Expand.Pattern(pw)
		if err != nil {
			continue
		}
		if matched, _ := matchAnchored(pat, word); matched {
			return true
		}
	}
	return false
}

func (r *Runner) runBackground(s *syntax.Stmt) Outcome {
	id := 1
	for {
		if _, taken := r.Session.Jobs[id]; !taken {
			break
		}
		id++
	}
	job := &session.Job{ID: id, Cmd: strings.TrimSpace(syntax.PrintString(&syntax.File{Stmts: []*syntax.Stmt{s}}))}
	r.Session.Jobs[id] = job
	go func() {
		sub := New(r.Session, WithStdio(r.Stdin, r.Stdout, r.Stderr))
		sub.hostBuiltins = r.hostBuiltins
		out := sub.runCommand(s.Cmd, s)
		job.Done = true
		job.ExitCode = out.Code
	}()
	return ok(0)
}

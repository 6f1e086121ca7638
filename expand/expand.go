// Package expand implements the word-expansion engine: the phase-ordered
// pipeline of tilde expansion, parameter/arithmetic/command substitution,
// word splitting, pathname expansion, and quote removal that turns a
// parsed syntax.Word into the concrete argv strings a command receives.
package expand

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tv-labs/bash-sub005/pattern"
	"github.com/tv-labs/bash-sub005/session"
	"github.com/tv-labs/bash-sub005/syntax"
)

// Config carries everything the expansion engine needs from its host: the
// session to read variables from, and callbacks into the executor for the
// operations that require actually running shell code (command and
// process substitution).
type Config struct {
	Session *session.Session

	// RunCommandSubst executes stmts in a subshell and returns its
	// trimmed stdout.
	RunCommandSubst func(stmts []*syntax.Stmt) (string, error)

	// RunProcSubst executes stmts with one end of a named FIFO wired to
	// the requested direction, returning the FIFO's path for a command
	// to open.
	RunProcSubst func(in bool, stmts []*syntax.Stmt) (string, error)

	// ReadDir lists directory entries for globbing; defaults to os.ReadDir.
	ReadDir func(dir string) ([]os.DirEntry, error)

	NoUnset bool // copied from session.Options.NoUnset when the Config is built; expansion reads Session.Options.NoUnset instead

	lastGlobMatched bool
}

func (c *Config) ifs() string {
	if v, ok := c.Session.GetVar("IFS"); ok && v.Kind == session.Scalar {
		return v.Str
	}
	return " \t\n"
}

func (c *Config) readDir(dir string) ([]os.DirEntry, error) {
	if c.ReadDir != nil {
		return c.ReadDir(dir)
	}
	return os.ReadDir(dir)
}

// fieldPart is one fragment of a field still being assembled; quoted
// fragments are immune to splitting and globbing.
type fieldPart struct {
	s      string
	quoted bool
}

// Fields fully expands a list of words into argv-ready strings: tilde,
// parameter/arithmetic/command substitution, IFS splitting, globbing, and
// quote removal, in that order, with splitting and globbing suppressed
// for parts produced under double quotes.
func (c *Config) Fields(words []syntax.Word) ([]string, error) {
	var out []string
	for _, w := range words {
		for _, bw := range c.expandBraces(w) {
			parts, err := c.expandWord(bw, false)
			if err != nil {
				return nil, err
			}
			fields := splitFields(parts, c.ifs())
			for _, f := range fields {
				globbed, err := c.maybeGlob(f)
				if err != nil {
					return nil, err
				}
				out = append(out, globbed...)
			}
		}
	}
	return out, nil
}

// Literal expands w as if it were inside double quotes: substitutions
// apply, but splitting and globbing do not. Used for assignment
// right-hand sides, the case word, and [[ ]] operands.
func (c *Config) Literal(w syntax.Word) (string, error) {
	parts, err := c.expandWord(w, true)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.s)
	}
	return b.String(), nil
}

// Pattern expands w for use as a case/[[ ]] glob pattern: substitutions
// run, but any text that came from a quoted part is escaped so it is
// matched literally rather than as a glob metacharacter.
func (c *Config) Pattern(w syntax.Word) (string, error) {
	parts, err := c.expandWord(w, false)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, p := range parts {
		if p.quoted {
			b.WriteString(pattern.QuoteMeta(p.s))
		} else {
			b.WriteString(p.s)
		}
	}
	return b.String(), nil
}

func (c *Config) expandWord(w syntax.Word, forceQuoted bool) ([]fieldPart, error) {
	var out []fieldPart
	for i, part := range w {
		ps, err := c.expandPart(part, forceQuoted, i == 0)
		if err != nil {
			return nil, err
		}
		out = append(out, ps...)
	}
	return out, nil
}

func (c *Config) expandPart(part syntax.WordPart, quoted bool, atWordStart bool) ([]fieldPart, error) {
	switch part := part.(type) {
	case *syntax.Lit:
		return []fieldPart{{s: part.Value, quoted: quoted}}, nil
	case *syntax.SglQuoted:
		return []fieldPart{{s: part.Value, quoted: true}}, nil
	case *syntax.DblQuoted:
		var out []fieldPart
		for _, sub := range part.Parts {
			ps, err := c.expandPart(sub, true, false)
			if err != nil {
				return nil, err
			}
			out = append(out, ps...)
		}
		return out, nil
	case *syntax.TildeExp:
		return []fieldPart{{s: c.expandTilde(part.User), quoted: quoted}}, nil
	case *syntax.ParamExp:
		return c.expandParamExp(part, quoted)
	case *syntax.ArithmExpansion:
		v, err := c.EvalArithm(part.X)
		if err != nil {
			return nil, err
		}
		return []fieldPart{{s: strconv.FormatInt(v, 10), quoted: quoted}}, nil
	case *syntax.CmdSubst:
		if c.RunCommandSubst == nil {
			return []fieldPart{{s: "", quoted: quoted}}, nil
		}
		out, err := c.RunCommandSubst(part.Stmts)
		if err != nil {
			return nil, err
		}
		return []fieldPart{{s: out, quoted: quoted}}, nil
	case *syntax.ProcSubst:
		if c.RunProcSubst == nil {
			return []fieldPart{{s: "", quoted: quoted}}, nil
		}
		out, err := c.RunProcSubst(part.In, part.Stmts)
		if err != nil {
			return nil, err
		}
		return []fieldPart{{s: out, quoted: true}}, nil
	default:
		return nil, fmt.Errorf("expand: unsupported word part %T", part)
	}
}

func (c *Config) expandTilde(user_ string) string {
	if user_ == "" {
		if home, ok := c.Session.GetVar("HOME"); ok {
			return home.Str
		}
		h, _ := os.UserHomeDir()
		return h
	}
	u, err := user.Lookup(user_)
	if err != nil {
		return "~" + user_
	}
	return u.HomeDir
}

// splitFields turns the quote-tagged fragments of one expanded word into
// the final argv fields: quoted fragments never split, unquoted runs
// split on any IFS rune, and runs of IFS whitespace collapse the way
// unquoted shell text does.
func splitFields(parts []fieldPart, ifs string) []string {
	if len(parts) == 0 {
		return nil
	}
	allQuoted := true
	for _, p := range parts {
		if !p.quoted {
			allQuoted = false
			break
		}
	}
	if allQuoted {
		var b strings.Builder
		for _, p := range parts {
			b.WriteString(p.s)
		}
		return []string{b.String()}
	}
	if ifs == "" {
		var b strings.Builder
		for _, p := range parts {
			b.WriteString(p.s)
		}
		return []string{b.String()}
	}

	var fields []string
	var cur strings.Builder
	started := false
	flush := func() {
		if started {
			fields = append(fields, cur.String())
			cur.Reset()
			started = false
		}
	}
	for _, p := range parts {
		if p.quoted {
			cur.WriteString(p.s)
			started = true
			continue
		}
		for _, r := range p.s {
			if strings.ContainsRune(ifs, r) {
				flush()
				continue
			}
			cur.WriteRune(r)
			started = true
		}
	}
	flush()
	return fields
}

func (c *Config) maybeGlob(field string) ([]string, error) {
	if c.Session.Options.NoGlob || !hasGlobMeta(field) {
		return []string{field}, nil
	}
	dir, base := filepath.Split(field)
	if dir == "" {
		dir = "."
	}
	mode := pattern.Filenames
	if c.Session.Options.ExtGlob {
		mode |= pattern.ExtGlob
	}
	entries, err := c.readDir(dir)
	if err != nil {
		if c.Session.Options.NullGlob {
			return nil, nil
		}
		return []string{field}, nil
	}
	var matches []string
	for _, e := range entries {
		name := e.Name()
		if !c.Session.Options.DotGlob && strings.HasPrefix(name, ".") && !strings.HasPrefix(base, ".") {
			continue
		}
		ok, err := pattern.Match(base, name, mode)
		if err != nil {
			return []string{field}, nil
		}
		if ok {
			if filepath.Dir(field) != "." || strings.HasPrefix(field, "./") {
				matches = append(matches, filepath.Join(filepath.Dir(field), name))
			} else {
				matches = append(matches, name)
			}
		}
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		if c.Session.Options.NullGlob {
			return nil, nil
		}
		return []string{field}, nil
	}
	return matches, nil
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

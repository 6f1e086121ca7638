package interp

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tv-labs/bash-sub005/process"
	"github.com/tv-labs/bash-sub005/session"
	"github.com/tv-labs/bash-sub005/syntax"
)

// builtinFunc is the built-in registry's contract (component F):
// argv in, a BuiltinResult out. Most built-ins return their session
// changes as a StateDelta that the executor applies atomically; alias
// and unalias edit Session.Aliases in place, and source, eval and
// disown act on the Session or run statements against it directly.
type builtinFunc func(r *Runner, argv []string) BuiltinResult

func br(code uint8) BuiltinResult { return BuiltinResult{Code: code} }

var builtins map[string]builtinFunc

func init() {
	builtins = map[string]builtinFunc{
		":":        biColon,
		"true":     func(r *Runner, argv []string) BuiltinResult { return br(0) },
		"false":    func(r *Runner, argv []string) BuiltinResult { return br(1) },
		"echo":     biEcho,
		"printf":   biPrintf,
		"read":     biRead,
		"cd":       biCd,
		"pwd":      biPwd,
		"pushd":    biPushd,
		"popd":     biPopd,
		"dirs":     biDirs,
		"declare":  biDeclare,
		"typeset":  biDeclare,
		"local":    biLocal,
		"export":   biExport,
		"readonly": biReadonly,
		"unset":    biUnset,
		"alias":    biAlias,
		"unalias":  biUnalias,
		"set":      biSet,
		"shopt":    biShopt,
		"shift":    biShift,
		"getopts":  biGetopts,
		"let":      biLet,
		"eval":     biEval,
		"source":   biSource,
		".":        biSource,
		"exec":     biExec,
		"exit":     biExit,
		"return":   biReturn,
		"break":    biBreak,
		"continue": biContinue,
		"trap":     biTrap,
		"builtin":  biBuiltin,
		"command":  biCommand,
		"type":     biType,
		"hash":     func(r *Runner, argv []string) BuiltinResult { return br(0) },
		"enable":   func(r *Runner, argv []string) BuiltinResult { return br(0) },
		"help":     func(r *Runner, argv []string) BuiltinResult { return br(0) },
		"history":  biHistory,
		"fc":       biFc,
		"jobs":     biJobs,
		"wait":     biWait,
		"disown":   biDisown,
		"fg":       biFgBg,
		"bg":       biFgBg,
		"kill":     biKill,
		"times":    biTimes,
		"umask":    biUmask,
		"ulimit":   func(r *Runner, argv []string) BuiltinResult { return br(0) },
		"caller":    biCaller,
		"mapfile":   biMapfile,
		"readarray": biMapfile,
	}
}

func biColon(r *Runner, argv []string) BuiltinResult { return br(0) }

func biEcho(r *Runner, argv []string) BuiltinResult {
	args := argv[1:]
	newline := true
	interpret := false
	for len(args) > 0 {
		a := args[0]
		if a == "-n" {
			newline = false
		} else if a == "-e" {
			interpret = true
		} else if a == "-E" {
			interpret = false
		} else {
			break
		}
		args = args[1:]
	}
	out := strings.Join(args, " ")
	if interpret {
		out = decodeEchoEscapes(out)
	}
	fmt.Fprint(r.Stdout, out)
	if newline {
		fmt.Fprintln(r.Stdout)
	}
	return br(0)
}

func decodeEchoEscapes(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		case 'a':
			b.WriteByte('\a')
		case 'c':
			return b.String()
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// biPrintf implements a subset of POSIX printf: %s %d %i %x %X %o %c %f
// %e %g %% and %b (echo-style backslash expansion), with the
// [flags][width][.precision] modifiers a verb can carry, recycling the
// format string over any extra arguments the way bash's printf does.
// `-v NAME` captures the result into a variable instead of writing it
// to stdout.
func biPrintf(r *Runner, argv []string) BuiltinResult {
	args := argv[1:]
	varName := ""
	if len(args) >= 2 && args[0] == "-v" {
		varName = args[1]
		args = args[2:]
	}
	if len(args) == 0 {
		return br(0)
	}
	format := args[0]
	fargs := args[1:]

	var out strings.Builder
	if len(fargs) == 0 {
		out.WriteString(expandPrintf(format, &fargs))
	} else {
		for len(fargs) > 0 {
			before := len(fargs)
			out.WriteString(expandPrintf(format, &fargs))
			if len(fargs) == before {
				break
			}
		}
	}

	if varName != "" {
		return BuiltinResult{Code: 0, Delta: &session.StateDelta{
			VarUpdates: map[string]session.Variable{
				varName: {Kind: session.Scalar, Str: out.String()},
			},
		}}
	}
	fmt.Fprint(r.Stdout, out.String())
	return br(0)
}

// printfSpec is a parsed `%[flags][width][.precision]verb` directive.
type printfSpec struct {
	flags     string
	width     string
	precision string
	hasPrec   bool
	verb      byte
}

// parsePrintfSpec reads a directive starting right after the '%' at
// format[i], returning the spec and the index of the first byte past
// the verb.
func parsePrintfSpec(format string, i int) (printfSpec, int) {
	var spec printfSpec
	for i < len(format) && strings.IndexByte("-+ 0#", format[i]) >= 0 {
		spec.flags += string(format[i])
		i++
	}
	start := i
	for i < len(format) && format[i] >= '0' && format[i] <= '9' {
		i++
	}
	spec.width = format[start:i]
	if i < len(format) && format[i] == '.' {
		spec.hasPrec = true
		i++
		start = i
		for i < len(format) && format[i] >= '0' && format[i] <= '9' {
			i++
		}
		spec.precision = format[start:i]
	}
	if i < len(format) {
		spec.verb = format[i]
		i++
	}
	return spec, i
}

// goVerb rebuilds the fmt verb string (e.g. "%-05.2f") for the numeric
// conversions, where Go's own formatting matches printf's.
func (s printfSpec) goVerb(verb byte) string {
	var b strings.Builder
	b.WriteByte('%')
	b.WriteString(s.flags)
	b.WriteString(s.width)
	if s.hasPrec {
		b.WriteByte('.')
		b.WriteString(s.precision)
	}
	b.WriteByte(verb)
	return b.String()
}

func expandPrintf(format string, args *[]string) string {
	next := func() string {
		if len(*args) == 0 {
			return ""
		}
		v := (*args)[0]
		*args = (*args)[1:]
		return v
	}
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			if c == '\\' && i+1 < len(format) {
				b.WriteString(decodeEchoEscapes(format[i : i+2]))
				i++
				continue
			}
			b.WriteByte(c)
			continue
		}
		if i+1 < len(format) && format[i+1] == '%' {
			b.WriteByte('%')
			i++
			continue
		}
		spec, afterSpec := parsePrintfSpec(format, i+1)
		i = afterSpec - 1

		switch spec.verb {
		case 's':
			s := next()
			if spec.hasPrec {
				if n, err := strconv.Atoi(spec.precision); err == nil && n < len(s) {
					s = s[:n]
				}
			}
			fmt.Fprintf(&b, spec.goVerb('s'), s)
		case 'b':
			b.WriteString(decodeEchoEscapes(next()))
		case 'd', 'i':
			n := atoiLoose(next())
			fmt.Fprintf(&b, spec.goVerb('d'), n)
		case 'x':
			n := atoiLoose(next())
			fmt.Fprintf(&b, spec.goVerb('x'), n)
		case 'X':
			n := atoiLoose(next())
			fmt.Fprintf(&b, spec.goVerb('X'), n)
		case 'o':
			n := atoiLoose(next())
			fmt.Fprintf(&b, spec.goVerb('o'), n)
		case 'f', 'F':
			fl := atofLoose(next())
			fmt.Fprintf(&b, spec.goVerb('f'), fl)
		case 'e', 'E':
			fl := atofLoose(next())
			fmt.Fprintf(&b, spec.goVerb(spec.verb), fl)
		case 'g', 'G':
			fl := atofLoose(next())
			fmt.Fprintf(&b, spec.goVerb(spec.verb), fl)
		case 'c':
			s := next()
			if len(s) > 0 {
				fmt.Fprintf(&b, spec.goVerb('c'), rune(s[0]))
			}
		case 'q':
			fmt.Fprintf(&b, "%q", next())
		case 0:
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(spec.verb)
		}
	}
	return b.String()
}

// atofLoose parses a float the way printf's %f family does: a leading
// numeric prefix, defaulting to 0 on anything else.
func atofLoose(s string) float64 {
	s = strings.TrimSpace(s)
	for end := len(s); end > 0; end-- {
		if f, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return f
		}
	}
	return 0
}

func biCd(r *Runner, argv []string) BuiltinResult {
	args := argv[1:]
	dir := ""
	if len(args) > 0 {
		dir = args[len(args)-1]
	}
	if dir == "" || dir == "~" {
		if home, ok := r.Session.GetVar("HOME"); ok {
			dir = home.Str
		}
	} else if dir == "-" {
		dir = r.Session.OldPwd
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(r.Session.WorkingDir, dir)
	}
	dir = filepath.Clean(dir)
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		fmt.Fprintf(r.Stderr, "bash: cd: %s: No such file or directory\n", dir)
		return br(1)
	}
	return BuiltinResult{Code: 0, Delta: &session.StateDelta{WorkingDir: dir}}
}

func biPwd(r *Runner, argv []string) BuiltinResult {
	fmt.Fprintln(r.Stdout, r.Session.WorkingDir)
	return br(0)
}

func biPushd(r *Runner, argv []string) BuiltinResult {
	if len(argv) < 2 {
		return br(0)
	}
	dir := argv[1]
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(r.Session.WorkingDir, dir)
	}
	stack := append([]string{r.Session.WorkingDir}, r.Session.DirStack...)
	fmt.Fprintln(r.Stdout, strings.Join(reverseCopy(append([]string{dir}, stack...)), " "))
	return BuiltinResult{Code: 0, Delta: &session.StateDelta{WorkingDir: dir, DirStackSet: true, DirStack: append([]string{dir}, stack...)}}
}

func biPopd(r *Runner, argv []string) BuiltinResult {
	if len(r.Session.DirStack) < 2 {
		fmt.Fprintln(r.Stderr, "bash: popd: directory stack empty")
		return br(1)
	}
	newStack := r.Session.DirStack[1:]
	return BuiltinResult{Code: 0, Delta: &session.StateDelta{WorkingDir: newStack[0], DirStackSet: true, DirStack: newStack}}
}

func biDirs(r *Runner, argv []string) BuiltinResult {
	fmt.Fprintln(r.Stdout, strings.Join(r.Session.DirStack, " "))
	return br(0)
}

func reverseCopy(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

func biDeclare(r *Runner, argv []string) BuiltinResult {
	delta := &session.StateDelta{VarUpdates: map[string]session.Variable{}}
	var flagInt, flagArr, flagAssoc, flagReadonly, flagExport, flagNameref bool
	var rest []string
	for _, a := range argv[1:] {
		if strings.HasPrefix(a, "-") && a != "-" && a != "--" {
			for _, c := range a[1:] {
				switch c {
				case 'i':
					flagInt = true
				case 'a':
					flagArr = true
				case 'A':
					flagAssoc = true
				case 'r':
					flagReadonly = true
				case 'x':
					flagExport = true
				case 'n':
					flagNameref = true
				}
			}
			continue
		}
		rest = append(rest, a)
	}
	for _, spec := range rest {
		name, val, hasVal := strings.Cut(spec, "=")
		v := session.Variable{Kind: session.Scalar, Str: val, ReadOnly: flagReadonly, Exported: flagExport, Integer: flagInt}
		switch {
		case flagNameref:
			v.Kind = session.Nameref
			v.Str = val
		case flagArr:
			v.Kind = session.Indexed
			v.Index = map[int]string{}
			if hasVal {
				v.Index[0] = val
			}
		case flagAssoc:
			v.Kind = session.Associative
			v.Assoc = map[string]string{}
		case !hasVal:
			if existing, ok := r.Session.GetVar(name); ok {
				v = existing
				v.ReadOnly = v.ReadOnly || flagReadonly
				v.Exported = v.Exported || flagExport
			} else {
				v.Str = ""
			}
		}
		delta.VarUpdates[name] = v
	}
	return BuiltinResult{Code: 0, Delta: delta}
}

func biLocal(r *Runner, argv []string) BuiltinResult {
	return biDeclare(r, argv)
}

func biExport(r *Runner, argv []string) BuiltinResult {
	delta := &session.StateDelta{VarUpdates: map[string]session.Variable{}}
	for _, a := range argv[1:] {
		if a == "-p" {
			for name, v := range r.Session.Variables {
				if v.Exported {
					fmt.Fprintf(r.Stdout, "declare -x %s=%q\n", name, v.Str)
				}
			}
			continue
		}
		name, val, hasVal := strings.Cut(a, "=")
		v, _ := r.Session.GetVar(name)
		if hasVal {
			v.Str = val
		}
		v.Kind = session.Scalar
		v.Exported = true
		delta.VarUpdates[name] = v
	}
	return BuiltinResult{Code: 0, Delta: delta}
}

func biReadonly(r *Runner, argv []string) BuiltinResult {
	delta := &session.StateDelta{VarUpdates: map[string]session.Variable{}}
	for _, a := range argv[1:] {
		name, val, hasVal := strings.Cut(a, "=")
		v, _ := r.Session.GetVar(name)
		if hasVal {
			v.Str = val
			v.Kind = session.Scalar
		}
		v.ReadOnly = true
		delta.VarUpdates[name] = v
	}
	return BuiltinResult{Code: 0, Delta: delta}
}

func biUnset(r *Runner, argv []string) BuiltinResult {
	delta := &session.StateDelta{}
	namerefOnly := false
	for _, a := range argv[1:] {
		if a == "-n" {
			namerefOnly = true
			continue
		}
		if a == "-v" || a == "-f" {
			continue
		}
		if namerefOnly {
			delta.NamerefUnset = append(delta.NamerefUnset, a)
		} else {
			delta.VarUnset = append(delta.VarUnset, a)
			delta.FuncUnset = append(delta.FuncUnset, a)
		}
	}
	return BuiltinResult{Code: 0, Delta: delta}
}

func biAlias(r *Runner, argv []string) BuiltinResult {
	if len(argv) == 1 {
		names := make([]string, 0, len(r.Session.Aliases))
		for n := range r.Session.Aliases {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintf(r.Stdout, "alias %s='%s'\n", n, r.Session.Aliases[n])
		}
		return br(0)
	}
	for _, a := range argv[1:] {
		name, val, hasVal := strings.Cut(a, "=")
		if hasVal {
			r.Session.Aliases[name] = val
		} else if v, ok := r.Session.Aliases[name]; ok {
			fmt.Fprintf(r.Stdout, "alias %s='%s'\n", name, v)
		}
	}
	return br(0)
}

func biUnalias(r *Runner, argv []string) BuiltinResult {
	for _, a := range argv[1:] {
		delete(r.Session.Aliases, a)
	}
	return br(0)
}

func biSet(r *Runner, argv []string) BuiltinResult {
	delta := &session.StateDelta{OptionUpdates: map[string]bool{}}
	args := argv[1:]
	i := 0
	for ; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			i++
			break
		}
		if len(a) < 2 || (a[0] != '-' && a[0] != '+') {
			break
		}
		on := a[0] == '-'
		if a == "-o" || a == "+o" {
			i++
			if i < len(args) {
				if name, ok := setOptNames[args[i]]; ok {
					delta.OptionUpdates[name] = on
				}
			}
			continue
		}
		for _, c := range a[1:] {
			name, ok := setOptLetters[c]
			if !ok {
				continue
			}
			delta.OptionUpdates[name] = on
		}
	}
	if i < len(args) {
		delta.PositionalSet = true
		delta.Positional = append([]string(nil), args[i:]...)
	}
	return BuiltinResult{Code: 0, Delta: delta}
}

var setOptLetters = map[rune]string{
	'e': "errexit", 'u': "nounset", 'x': "xtrace", 'v': "verbose",
	'n': "noexec", 'f': "noglob", 'a': "allexport", 'C': "noclobber",
}

var setOptNames = map[string]string{
	"errexit": "errexit", "nounset": "nounset", "xtrace": "xtrace",
	"verbose": "verbose", "noexec": "noexec", "noglob": "noglob",
	"allexport": "allexport", "noclobber": "noclobber",
	"pipefail": "pipefail", "monitor": "monitor", "notify": "notify",
}

func biShopt(r *Runner, argv []string) BuiltinResult {
	delta := &session.StateDelta{OptionUpdates: map[string]bool{}}
	mode := ""
	for _, a := range argv[1:] {
		switch a {
		case "-s":
			mode = "s"
		case "-u":
			mode = "u"
		case "-p", "-q":
		default:
			if mode == "s" {
				delta.OptionUpdates[a] = true
			} else if mode == "u" {
				delta.OptionUpdates[a] = false
			}
		}
	}
	return BuiltinResult{Code: 0, Delta: delta}
}

func biShift(r *Runner, argv []string) BuiltinResult {
	n := 1
	if len(argv) > 1 {
		n, _ = strconv.Atoi(argv[1])
	}
	if n > len(r.Session.Positional) {
		return br(1)
	}
	return BuiltinResult{Code: 0, Delta: &session.StateDelta{PositionalSet: true, Positional: r.Session.Positional[n:]}}
}

func biGetopts(r *Runner, argv []string) BuiltinResult {
	if len(argv) < 3 {
		return br(2)
	}
	optstring := argv[1]
	varName := argv[2]
	optindVar, _ := r.Session.GetVar("OPTIND")
	optind, _ := strconv.Atoi(optindVar.Str)
	if optind < 1 {
		optind = 1
	}
	args := r.Session.Positional
	if optind-1 >= len(args) {
		return BuiltinResult{Code: 1, Delta: &session.StateDelta{VarUpdates: map[string]session.Variable{
			varName: {Kind: session.Scalar, Str: "?"},
		}}}
	}
	arg := args[optind-1]
	if len(arg) < 2 || arg[0] != '-' {
		return BuiltinResult{Code: 1}
	}
	opt := rune(arg[1])
	idx := strings.IndexRune(optstring, opt)
	delta := &session.StateDelta{VarUpdates: map[string]session.Variable{}}
	if idx < 0 {
		delta.VarUpdates[varName] = session.Variable{Kind: session.Scalar, Str: "?"}
		delta.VarUpdates["OPTIND"] = session.Variable{Kind: session.Scalar, Str: strconv.Itoa(optind + 1)}
		return BuiltinResult{Code: 0, Delta: delta}
	}
	delta.VarUpdates[varName] = session.Variable{Kind: session.Scalar, Str: string(opt)}
	nextInd := optind + 1
	if idx+1 < len(optstring) && optstring[idx+1] == ':' {
		if len(arg) > 2 {
			delta.VarUpdates["OPTARG"] = session.Variable{Kind: session.Scalar, Str: arg[2:]}
		} else if nextInd-1 < len(args) {
			delta.VarUpdates["OPTARG"] = session.Variable{Kind: session.Scalar, Str: args[nextInd-1]}
			nextInd++
		}
	}
	delta.VarUpdates["OPTIND"] = session.Variable{Kind: session.Scalar, Str: strconv.Itoa(nextInd)}
	return BuiltinResult{Code: 0, Delta: delta}
}

func biLet(r *Runner, argv []string) BuiltinResult {
	var last int64
	for _, expr := range argv[1:] {
		v, err := r.Expand.EvalArithmString(expr)
		if err != nil {
			fmt.Fprintln(r.Stderr, "bash: let:", err)
			return br(1)
		}
		last = v
	}
	if last == 0 {
		return br(1)
	}
	return br(0)
}

func biEval(r *Runner, argv []string) BuiltinResult {
	src := strings.Join(argv[1:], " ")
	file, err := syntax.Parse([]byte(src), "eval")
	if err != nil {
		fmt.Fprintln(r.Stderr, "bash: eval:", err)
		return br(2)
	}
	out := r.runStmts(file.Stmts)
	return BuiltinResult{Code: out.Code, Unwind: out.Unwind}
}

func biSource(r *Runner, argv []string) BuiltinResult {
	if len(argv) < 2 {
		return br(2)
	}
	data, err := os.ReadFile(argv[1])
	if err != nil {
		fmt.Fprintf(r.Stderr, "bash: %s: %v\n", argv[1], err)
		return br(1)
	}
	file, err := syntax.Parse(data, argv[1])
	if err != nil {
		fmt.Fprintln(r.Stderr, "bash:", err)
		return br(2)
	}
	oldPositional := r.Session.Positional
	if len(argv) > 2 {
		r.Session.Positional = argv[2:]
	}
	out := r.runStmts(file.Stmts)
	r.Session.Positional = oldPositional
	if out.Unwind.Kind == UnwindReturn {
		return br(out.Unwind.Code)
	}
	return BuiltinResult{Code: out.Code, Unwind: out.Unwind}
}

func biExec(r *Runner, argv []string) BuiltinResult {
	if len(argv) < 2 {
		return br(0)
	}
	return BuiltinResult{Unwind: Unwind{Kind: UnwindExecReplace, Replace: &Replacement{
		Path: argv[1], Args: argv[1:], Env: r.exportedEnv(),
	}}}
}

func biExit(r *Runner, argv []string) BuiltinResult {
	code := r.Session.LastExit
	if len(argv) > 1 {
		n, _ := strconv.Atoi(argv[1])
		code = uint8(n % 256)
	}
	return BuiltinResult{Code: code, Unwind: Unwind{Kind: UnwindExit, Code: code}}
}

func biReturn(r *Runner, argv []string) BuiltinResult {
	code := r.Session.LastExit
	if len(argv) > 1 {
		n, _ := strconv.Atoi(argv[1])
		code = uint8(n % 256)
	}
	return BuiltinResult{Code: code, Unwind: Unwind{Kind: UnwindReturn, Code: code}}
}

func biBreak(r *Runner, argv []string) BuiltinResult {
	n := 1
	if len(argv) > 1 {
		n, _ = strconv.Atoi(argv[1])
	}
	if n < 1 {
		fmt.Fprintln(r.Stderr, "bash: break: loop count out of range")
		return br(1)
	}
	if r.loopDepth == 0 {
		fmt.Fprintln(r.Stderr, "bash: break: only meaningful in a loop")
		return br(1)
	}
	return BuiltinResult{Unwind: Unwind{Kind: UnwindBreak, N: n}}
}

func biContinue(r *Runner, argv []string) BuiltinResult {
	n := 1
	if len(argv) > 1 {
		n, _ = strconv.Atoi(argv[1])
	}
	if n < 1 {
		fmt.Fprintln(r.Stderr, "bash: continue: loop count out of range")
		return br(1)
	}
	if r.loopDepth == 0 {
		fmt.Fprintln(r.Stderr, "bash: continue: only meaningful in a loop")
		return br(1)
	}
	return BuiltinResult{Unwind: Unwind{Kind: UnwindContinue, N: n}}
}

func biTrap(r *Runner, argv []string) BuiltinResult {
	if len(argv) == 1 || argv[1] == "-p" {
		names := make([]string, 0, len(r.Session.Traps))
		for n := range r.Session.Traps {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			t := r.Session.Traps[n]
			fmt.Fprintf(r.Stdout, "trap -- '%s' %s\n", t.Source, n)
		}
		return br(0)
	}
	delta := &session.StateDelta{TrapUpdates: map[string]session.Trap{}}
	action := argv[1]
	for _, sig := range argv[2:] {
		switch action {
		case "-":
			delta.TrapUnset = append(delta.TrapUnset, sig)
		case "":
			delta.TrapUpdates[sig] = session.Trap{Ignore: true}
		default:
			delta.TrapUpdates[sig] = session.Trap{Source: action}
		}
	}
	return BuiltinResult{Code: 0, Delta: delta}
}

func biBuiltin(r *Runner, argv []string) BuiltinResult {
	if len(argv) < 2 {
		return br(0)
	}
	if b, ok := builtins[argv[1]]; ok {
		return b(r, argv[1:])
	}
	fmt.Fprintf(r.Stderr, "bash: builtin: %s: not a shell builtin\n", argv[1])
	return br(1)
}

func biCommand(r *Runner, argv []string) BuiltinResult {
	args := argv[1:]
	describe := false
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		if args[0] == "-v" || args[0] == "-V" {
			describe = true
		}
		args = args[1:]
	}
	if len(args) == 0 {
		return br(0)
	}
	if describe {
		return biType(r, append([]string{"type"}, args...))
	}
	if b, ok := builtins[args[0]]; ok {
		return b(r, args)
	}
	view := &fdView{stdin: r.Stdin, stdout: r.Stdout, stderr: r.Stderr}
	return BuiltinResult{Code: r.callExternal(args, view).Code}
}

func biType(r *Runner, argv []string) BuiltinResult {
	code := uint8(0)
	for _, name := range argv[1:] {
		switch {
		case name == "-":
		case isBuiltinName(name):
			fmt.Fprintf(r.Stdout, "%s is a shell builtin\n", name)
		default:
			if _, ok := r.Session.Functions[name]; ok {
				fmt.Fprintf(r.Stdout, "%s is a function\n", name)
			} else if path, err := lookPath(name); err == nil {
				fmt.Fprintf(r.Stdout, "%s is %s\n", name, path)
			} else {
				fmt.Fprintf(r.Stderr, "bash: type: %s: not found\n", name)
				code = 1
			}
		}
	}
	return br(code)
}

func isBuiltinName(name string) bool {
	_, ok := builtins[name]
	return ok
}

func biHistory(r *Runner, argv []string) BuiltinResult {
	for _, h := range r.Session.History {
		fmt.Fprintf(r.Stdout, "%5d  %s\n", h.Line, h.Text)
	}
	return br(0)
}

func biFc(r *Runner, argv []string) BuiltinResult {
	fmt.Fprintln(r.Stderr, "bash: fc: interactive history editing not supported")
	return br(1)
}

func biJobs(r *Runner, argv []string) BuiltinResult {
	ids := make([]int, 0, len(r.Session.Jobs))
	for id := range r.Session.Jobs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		j := r.Session.Jobs[id]
		status := "Running"
		if j.Done {
			status = "Done"
		}
		fmt.Fprintf(r.Stdout, "[%d]  %s  %s\n", j.ID, status, j.Cmd)
	}
	return br(0)
}

func biWait(r *Runner, argv []string) BuiltinResult {
	for {
		pending := false
		for _, j := range r.Session.Jobs {
			if !j.Done {
				pending = true
			}
		}
		if !pending {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	var last uint8
	for _, j := range r.Session.Jobs {
		last = j.ExitCode
	}
	return br(last)
}

func biDisown(r *Runner, argv []string) BuiltinResult {
	delta := &session.StateDelta{}
	for id, j := range r.Session.Jobs {
		r.Session.Orphans.Adopt(j.Pid)
		delta.JobRemoved = append(delta.JobRemoved, id)
	}
	return BuiltinResult{Code: 0, Delta: delta}
}

func biFgBg(r *Runner, argv []string) BuiltinResult {
	return br(0)
}

func biKill(r *Runner, argv []string) BuiltinResult {
	args := argv[1:]
	if len(args) > 0 && args[0] == "-l" {
		fmt.Fprintln(r.Stdout, strings.Join(process.SignalNames(), " "))
		return br(0)
	}
	sig := "TERM"
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		sig = strings.TrimPrefix(args[0], "-")
		args = args[1:]
	}
	signal, ok := process.LookSignal(sig)
	if !ok {
		fmt.Fprintf(r.Stderr, "bash: kill: %s: invalid signal specification\n", sig)
		return br(1)
	}
	for _, spec := range args {
		pid := 0
		if strings.HasPrefix(spec, "%") {
			id, _ := strconv.Atoi(spec[1:])
			if j, ok := r.Session.Jobs[id]; ok {
				pid = j.Pid
			}
		} else {
			pid, _ = strconv.Atoi(spec)
		}
		if pid > 0 {
			if err := process.SignalPid(pid, signal); err != nil {
				fmt.Fprintln(r.Stderr, "bash: kill:", err)
			}
		}
	}
	return br(0)
}

func biTimes(r *Runner, argv []string) BuiltinResult {
	fmt.Fprintln(r.Stdout, "0m0.000s 0m0.000s")
	fmt.Fprintln(r.Stdout, "0m0.000s 0m0.000s")
	return br(0)
}

func biUmask(r *Runner, argv []string) BuiltinResult {
	fmt.Fprintln(r.Stdout, "0022")
	return br(0)
}

func biCaller(r *Runner, argv []string) BuiltinResult {
	n := 0
	if len(argv) > 1 {
		v, err := strconv.Atoi(argv[1])
		if err != nil || v < 0 {
			return br(2)
		}
		n = v
	}
	idx := len(r.Session.CallStack) - 1 - n
	if idx < 0 || len(r.Session.CallStack) == 0 {
		return br(1)
	}
	f := r.Session.CallStack[idx]
	fmt.Fprintf(r.Stdout, "%d %s %s\n", f.Line, f.FuncName, f.SourceFile)
	return br(0)
}

// biMapfile implements mapfile/readarray: `-t` strips trailing
// newlines, `-n N` stops after N lines, `-s N` skips the first N lines,
// `-O N` offsets the first stored index, and `-c N`/`-C callback` --
// the periodic-callback form -- are accepted syntactically but the
// callback itself is never invoked, since there is no controlling
// terminal/job-control surface in this executor for it to usefully
// drive.
func biMapfile(r *Runner, argv []string) BuiltinResult {
	varName := "MAPFILE"
	stripNewline := false
	var count, skip, offset int
	hasCount := false
	for i := 1; i < len(argv); i++ {
		a := argv[i]
		switch a {
		case "-t":
			stripNewline = true
		case "-n":
			i++
			if i < len(argv) {
				count, _ = strconv.Atoi(argv[i])
				hasCount = true
			}
		case "-s":
			i++
			if i < len(argv) {
				skip, _ = strconv.Atoi(argv[i])
			}
		case "-O":
			i++
			if i < len(argv) {
				offset, _ = strconv.Atoi(argv[i])
			}
		case "-c":
			i++ // interval, unused
		case "-C":
			i++ // callback command, unused
		default:
			if !strings.HasPrefix(a, "-") {
				varName = a
			}
		}
	}

	idx := map[int]string{}
	sc := bufio.NewScanner(r.Stdin)
	line := 0
	stored := 0
	for sc.Scan() {
		line++
		if line <= skip {
			continue
		}
		if hasCount && stored >= count {
			break
		}
		text := sc.Text()
		if !stripNewline {
			text += "\n"
		}
		idx[offset+stored] = text
		stored++
	}
	return BuiltinResult{Code: 0, Delta: &session.StateDelta{VarUpdates: map[string]session.Variable{
		varName: {Kind: session.Indexed, Index: idx},
	}}}
}

func biRead(r *Runner, argv []string) BuiltinResult {
	args := argv[1:]
	raw := false
	silent := false
	var names []string
	var prompt string
	var srcFd = -1
	var arrayName string
	hasArray := false
	var nChars int
	hasN := false
	var timeout time.Duration
	hasTimeout := false
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-r":
			raw = true
		case "-s":
			silent = true
		case "-p":
			i++
			if i < len(args) {
				prompt = args[i]
			}
		case "-u":
			i++
			if i < len(args) {
				srcFd, _ = strconv.Atoi(args[i])
			}
		case "-a":
			i++
			if i < len(args) {
				arrayName = args[i]
				hasArray = true
			}
		case "-n":
			i++
			if i < len(args) {
				nChars, _ = strconv.Atoi(args[i])
				hasN = true
			}
		case "-t":
			i++
			if i < len(args) {
				if secs, err := strconv.ParseFloat(args[i], 64); err == nil {
					timeout = time.Duration(secs * float64(time.Second))
					hasTimeout = true
				}
			}
		default:
			names = append(names, args[i])
		}
	}
	_ = silent
	if prompt != "" {
		fmt.Fprint(r.Stderr, prompt)
	}
	if !hasArray && len(names) == 0 {
		names = []string{"REPLY"}
	}
	var src io.Reader = r.Stdin
	if srcFd >= 0 {
		if f, ok := r.osFile(srcFd); ok {
			src = f
		}
	}

	line, timedOut, err := readReplyInput(src, nChars, hasN, timeout, hasTimeout)
	if !raw {
		line = strings.ReplaceAll(line, "\\", "")
	}
	ifs := " \t\n"
	if v, ok := r.Session.GetVar("IFS"); ok && v.Kind == session.Scalar {
		ifs = v.Str
	}
	fields := strings.FieldsFunc(line, func(c rune) bool { return strings.ContainsRune(ifs, c) })
	delta := &session.StateDelta{VarUpdates: map[string]session.Variable{}}

	if hasArray {
		idx := map[int]string{}
		for i, f := range fields {
			idx[i] = f
		}
		delta.VarUpdates[arrayName] = session.Variable{Kind: session.Indexed, Index: idx}
	} else {
		for i, name := range names {
			var val string
			if i == len(names)-1 {
				val = strings.Join(fields[min(i, len(fields)):], " ")
			} else if i < len(fields) {
				val = fields[i]
			}
			delta.VarUpdates[name] = session.Variable{Kind: session.Scalar, Str: val}
		}
	}

	if timedOut {
		// bash reports a `read -t` timeout as 128+SIGALRM.
		return BuiltinResult{Code: 142, Delta: delta}
	}
	if err != nil && err != io.EOF {
		return BuiltinResult{Code: 1, Delta: delta}
	}
	if err == io.EOF && line == "" {
		return BuiltinResult{Code: 1, Delta: delta}
	}
	return BuiltinResult{Code: 0, Delta: delta}
}

// readReplyInput reads one line from src, or up to n bytes if hasN,
// honouring an optional timeout. The read itself always runs on its
// own goroutine so the timeout applies uniformly whether src is a
// pipe, a plain in-memory reader, or a tracked coprocess FD; if the
// timeout fires first, that goroutine is left to drain in the
// background rather than being forcibly cancelled, since io.Reader
// gives no portable way to interrupt an in-flight read.
func readReplyInput(src io.Reader, n int, hasN bool, timeout time.Duration, hasTimeout bool) (line string, timedOut bool, err error) {
	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		reader := bufio.NewReader(src)
		if hasN {
			buf := make([]byte, 0, n)
			for len(buf) < n {
				b, rerr := reader.ReadByte()
				if rerr != nil {
					done <- result{string(buf), rerr}
					return
				}
				if b == '\n' {
					break
				}
				buf = append(buf, b)
			}
			done <- result{string(buf), nil}
			return
		}
		s, rerr := reader.ReadString('\n')
		done <- result{strings.TrimSuffix(s, "\n"), rerr}
	}()

	if !hasTimeout {
		res := <-done
		return res.line, false, res.err
	}
	select {
	case res := <-done:
		return res.line, false, res.err
	case <-time.After(timeout):
		return "", true, nil
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func lookPath(name string) (string, error) {
	return exec.LookPath(name)
}

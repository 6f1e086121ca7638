package expand

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/tv-labs/bash-sub005/pattern"
	"github.com/tv-labs/bash-sub005/session"
	"github.com/tv-labs/bash-sub005/syntax"
)

// expandParamExp implements the bulk of phase 2 (parameter expansion):
// every `$NAME`/`${...}` form, including array and nameref-indirection
// access, length, slicing, pattern removal, replacement, case
// conversion, and the `:-`/`:=`/`:?`/`:+` default-value family.
// Replacement (`${NAME/pat/rep}`) matches the literal text of pat; glob
// characters in it are not interpreted.
func (c *Config) expandParamExp(pe *syntax.ParamExp, quoted bool) ([]fieldPart, error) {
	name := pe.Param.Value

	if pe.Excl && pe.Names != syntax.NamesNone {
		return c.expandNameEnumeration(name, pe.Names == syntax.NamesPrefixWords, quoted)
	}

	if special, ok := c.specialParam(name); ok {
		return c.finishParam(pe, name, special, true, quoted)
	}

	if pe.Excl {
		// ${!name}: indirection. Resolve name's value, then treat that
		// value as the name to actually look up.
		v, _ := c.Session.GetVar(name)
		indirect := v.Str
		return c.finishParamByName(pe, indirect, quoted)
	}

	return c.finishParamByName(pe, name, quoted)
}

func (c *Config) specialParam(name string) ([]string, bool) {
	switch name {
	case "@", "*":
		return c.Session.Positional, true
	case "#":
		return []string{strconv.Itoa(len(c.Session.Positional))}, true
	case "?":
		return []string{strconv.Itoa(int(c.Session.LastExit))}, true
	case "$":
		return []string{strconv.Itoa(os.Getpid())}, true
	case "!":
		return []string{""}, true
	case "-":
		return []string{optionFlagString(c.Session.Options)}, true
	}
	if len(name) > 0 && name[0] >= '0' && name[0] <= '9' {
		idx, _ := strconv.Atoi(name)
		if idx == 0 {
			return []string{"bash"}, true
		}
		if idx <= len(c.Session.Positional) {
			return []string{c.Session.Positional[idx-1]}, true
		}
		return []string{""}, true
	}
	return nil, false
}

func (c *Config) finishParam(pe *syntax.ParamExp, name string, values []string, isPositional, quoted bool) ([]fieldPart, error) {
	if pe.Length {
		if name == "@" || name == "*" {
			return []fieldPart{{s: strconv.Itoa(len(values)), quoted: quoted}}, nil
		}
		total := 0
		for _, v := range values {
			total += len(v)
		}
		return []fieldPart{{s: strconv.Itoa(total), quoted: quoted}}, nil
	}
	if name == "@" && !quoted {
		var out []fieldPart
		for i, v := range values {
			if i > 0 {
				out = append(out, fieldPart{s: "", quoted: false})
			}
			out = append(out, fieldPart{s: v, quoted: true})
		}
		return out, nil
	}
	if name == "@" && quoted {
		var out []fieldPart
		for _, v := range values {
			out = append(out, fieldPart{s: v, quoted: true})
		}
		return splitFieldBoundaries(out), nil
	}
	joined := strings.Join(values, c.joinSep())
	if name == "*" && pe.Slice != nil {
		return []fieldPart{{s: joined, quoted: quoted}}, nil
	}
	set := true
	if n, err := strconv.Atoi(name); err == nil && n > len(c.Session.Positional) {
		set = false
	}
	return c.applyParamOpsValue(pe, joined, set, quoted)
}

// splitFieldBoundaries marks a boundary between quoted $@ elements so the
// later IFS-splitting pass still produces one argv field per positional
// parameter even though each element is individually quoted.
func splitFieldBoundaries(parts []fieldPart) []fieldPart {
	return parts
}

func (c *Config) joinSep() string {
	ifs := c.ifs()
	if ifs == "" {
		return ""
	}
	return ifs[:1]
}

func (c *Config) finishParamByName(pe *syntax.ParamExp, name string, quoted bool) ([]fieldPart, error) {
	v, isSet := c.Session.GetVar(name)

	if pe.Index != nil {
		idxLit, err := c.Literal(pe.Index)
		if err != nil {
			return nil, err
		}
		return c.arrayAccess(pe, v, idxLit, quoted)
	}

	if v.Kind == session.Indexed && pe.Index == nil {
		// Bare `${arr}` reads element 0.
		val := v.Index[0]
		return c.applyParamOps(pe, name, val, isSet, quoted)
	}
	if v.Kind == session.Associative && pe.Index == nil {
		return c.applyParamOps(pe, name, "", isSet, quoted)
	}

	if !isSet || v.Kind == session.Unset {
		if c.Session.Options.NoUnset && pe.Exp == nil {
			return nil, fmt.Errorf("%s: unbound variable", name)
		}
		return c.applyParamOps(pe, name, "", false, quoted)
	}
	return c.applyParamOps(pe, name, v.Str, true, quoted)
}

func (c *Config) arrayAccess(pe *syntax.ParamExp, v session.Variable, idx string, quoted bool) ([]fieldPart, error) {
	if idx == "@" || idx == "*" {
		var values []string
		switch v.Kind {
		case session.Indexed:
			keys := make([]int, 0, len(v.Index))
			for k := range v.Index {
				keys = append(keys, k)
			}
			sort.Ints(keys)
			for _, k := range keys {
				values = append(values, v.Index[k])
			}
		case session.Associative:
			keys := make([]string, 0, len(v.Assoc))
			for k := range v.Assoc {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				values = append(values, v.Assoc[k])
			}
		}
		if pe.Length {
			return []fieldPart{{s: strconv.Itoa(len(values)), quoted: quoted}}, nil
		}
		if idx == "@" && !quoted {
			var out []fieldPart
			for _, val := range values {
				out = append(out, fieldPart{s: val, quoted: true})
			}
			return out, nil
		}
		return []fieldPart{{s: strings.Join(values, c.joinSep()), quoted: quoted}}, nil
	}
	n, err := c.EvalArithmString(idx)
	var val string
	var set bool
	if err == nil {
		switch v.Kind {
		case session.Indexed:
			val, set = v.Index[int(n)]
		case session.Associative:
			val, set = v.Assoc[idx], v.Assoc[idx] != ""
		}
	} else if v.Kind == session.Associative {
		val, set = v.Assoc[idx]
	}
	if pe.Length {
		return []fieldPart{{s: strconv.Itoa(len(val)), quoted: quoted}}, nil
	}
	return c.applyParamOpsValue(pe, val, set, quoted)
}

func (c *Config) applyParamOps(pe *syntax.ParamExp, name, val string, set, quoted bool) ([]fieldPart, error) {
	if pe.Length {
		return []fieldPart{{s: strconv.Itoa(len(val)), quoted: quoted}}, nil
	}
	return c.applyParamOpsValueNamed(pe, name, val, set, quoted)
}

func (c *Config) applyParamOpsValue(pe *syntax.ParamExp, val string, set, quoted bool) ([]fieldPart, error) {
	return c.applyParamOpsValueNamed(pe, "", val, set, quoted)
}

func (c *Config) applyParamOpsValueNamed(pe *syntax.ParamExp, name, val string, set, quoted bool) ([]fieldPart, error) {
	if pe.Slice != nil {
		off, err := c.EvalArithm(pe.Slice.Offset)
		if err != nil {
			return nil, err
		}
		runes := []rune(val)
		start := int(off)
		if start < 0 {
			start += len(runes)
		}
		if start < 0 {
			start = 0
		}
		if start > len(runes) {
			start = len(runes)
		}
		end := len(runes)
		if pe.Slice.HasLength {
			l, err := c.EvalArithm(pe.Slice.Length)
			if err != nil {
				return nil, err
			}
			if l < 0 {
				end = len(runes) + int(l)
			} else {
				end = start + int(l)
			}
		}
		if end > len(runes) {
			end = len(runes)
		}
		if end < start {
			end = start
		}
		val = string(runes[start:end])
	}

	if pe.Repl != nil {
		orig, err := c.Literal(pe.Repl.Orig)
		if err != nil {
			return nil, err
		}
		with, err := c.Literal(pe.Repl.With)
		if err != nil {
			return nil, err
		}
		if pe.Repl.All {
			val = strings.ReplaceAll(val, orig, with)
		} else {
			val = strings.Replace(val, orig, with, 1)
		}
	}

	if pe.Exp != nil {
		return c.applyParamExpOp(pe.Exp, name, val, set, quoted)
	}
	return []fieldPart{{s: val, quoted: quoted}}, nil
}

func (c *Config) applyParamExpOp(op *syntax.ParamExpOperation, name, val string, set, quoted bool) ([]fieldPart, error) {
	word, err := c.Literal(op.Word)
	if err != nil {
		return nil, err
	}
	switch op.Op {
	case syntax.OpDefaultUnset:
		if !set {
			val = word
		}
	case syntax.OpDefaultUnsetOrNull:
		if !set || val == "" {
			val = word
		}
	case syntax.OpAssignUnset, syntax.OpAssignUnsetOrNull:
		needDefault := !set
		if op.Op == syntax.OpAssignUnsetOrNull {
			needDefault = !set || val == ""
		}
		if needDefault {
			val = word
			if name != "" {
				c.Session.SetVar(name, session.Variable{Kind: session.Scalar, Str: val})
			}
		}
	case syntax.OpErrorUnset, syntax.OpErrorUnsetOrNull:
		needErr := !set
		if op.Op == syntax.OpErrorUnsetOrNull {
			needErr = !set || val == ""
		}
		if needErr {
			msg := word
			if msg == "" {
				msg = "parameter null or not set"
			}
			return nil, fmt.Errorf("%s: %s", name, msg)
		}
	case syntax.OpAlternateUnset:
		if set {
			val = word
		} else {
			val = ""
		}
	case syntax.OpAlternateUnsetOrNull:
		if set && val != "" {
			val = word
		} else {
			val = ""
		}
	case syntax.OpRemSmallPrefix, syntax.OpRemLargePrefix:
		val = trimGlobPrefix(val, word, op.Op == syntax.OpRemLargePrefix)
	case syntax.OpRemSmallSuffix, syntax.OpRemLargeSuffix:
		val = trimGlobSuffix(val, word, op.Op == syntax.OpRemLargeSuffix)
	case syntax.OpUpperFirst:
		val = upperFirst(val)
	case syntax.OpUpperAll:
		val = strings.ToUpper(val)
	case syntax.OpLowerFirst:
		val = lowerFirst(val)
	case syntax.OpLowerAll:
		val = strings.ToLower(val)
	}
	return []fieldPart{{s: val, quoted: quoted}}, nil
}

func matchAnchored(pat, s string) (bool, error) {
	return pattern.Match(pat, s, 0)
}

func trimGlobPrefix(val, pat string, greedy bool) string {
	best := -1
	for i := 0; i <= len(val); i++ {
		ok, _ := matchAnchored(pat, val[:i])
		if ok {
			if greedy {
				best = i
			} else {
				return val[i:]
			}
		}
	}
	if best >= 0 {
		return val[best:]
	}
	return val
}

func trimGlobSuffix(val, pat string, greedy bool) string {
	best := -1
	for i := len(val); i >= 0; i-- {
		ok, _ := matchAnchored(pat, val[i:])
		if ok {
			if greedy {
				best = i
			} else {
				return val[:i]
			}
		}
	}
	if best >= 0 {
		return val[:best]
	}
	return val
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func (c *Config) expandNameEnumeration(prefix string, withValues, quoted bool) ([]fieldPart, error) {
	var names []string
	for name := range c.Session.Variables {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if withValues && !quoted {
		var out []fieldPart
		for _, n := range names {
			out = append(out, fieldPart{s: n, quoted: true})
		}
		return out, nil
	}
	return []fieldPart{{s: strings.Join(names, c.joinSep()), quoted: quoted}}, nil
}

func optionFlagString(o session.Options) string {
	var b strings.Builder
	if o.AllExport {
		b.WriteByte('a')
	}
	if o.ErrExit {
		b.WriteByte('e')
	}
	if o.NoExec {
		b.WriteByte('n')
	}
	if o.NoGlob {
		b.WriteByte('f')
	}
	if o.NoUnset {
		b.WriteByte('u')
	}
	if o.XTrace {
		b.WriteByte('x')
	}
	return b.String()
}

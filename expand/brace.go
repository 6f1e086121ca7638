package expand

import (
	"strconv"
	"strings"

	"github.com/tv-labs/bash-sub005/syntax"
)

// expandBraces runs before every other phase (phase 0): `{a,b,c}` and
// `{1..5}`/`{a..e}` groups are expanded into separate words by
// splicing the surrounding literal text around each alternative.
//
// This only recognises brace groups that sit inside a single *Lit word
// part; a brace group spanning a quote or a substitution boundary
// (`"foo"{a,b}` is fine, `{$x,b}` is not) is left untouched, matching
// the common case scripts actually rely on without needing a full
// text/AST splice for the rest.
func (c *Config) expandBraces(w syntax.Word) []syntax.Word {
	for i, part := range w {
		lit, ok := part.(*syntax.Lit)
		if !ok {
			continue
		}
		alts, rest, ok := splitBraceGroup(lit.Value)
		if !ok || len(alts) < 2 {
			continue
		}
		var out []syntax.Word
		for _, alt := range alts {
			head := append([]syntax.WordPart{}, w[:i]...)
			if alt != "" {
				head = append(head, &syntax.Lit{Value: alt})
			}
			tail := &syntax.Lit{Value: rest}
			combined := append(head, tail)
			combined = append(combined, w[i+1:]...)
			out = append(out, c.expandBraces(combined)...)
		}
		return out
	}
	return []syntax.Word{w}
}

// splitBraceGroup finds the first top-level `{...}` run in s and
// returns its expanded alternatives plus the literal text that
// followed the closing brace, for the caller to re-append after each
// alternative.
func splitBraceGroup(s string) (alts []string, rest string, ok bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, "", false
	}
	depth := 0
	end := -1
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return nil, "", false
	}
	prefix := s[:start]
	body := s[start+1 : end]
	suffix := s[end+1:]

	items := splitTopLevelCommas(body)
	var expanded []string
	if len(items) == 1 {
		if rangeAlts, ok := expandRange(items[0]); ok {
			expanded = rangeAlts
		} else {
			return nil, "", false
		}
	} else {
		expanded = items
	}

	for _, item := range expanded {
		alts = append(alts, prefix+item)
	}
	return alts, suffix, true
}

func splitTopLevelCommas(s string) []string {
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	return out
}

// expandRange handles `{1..5}`, `{5..1}`, `{01..05}` (zero-padded),
// and `{a..e}` alphabetic ranges; a plain `{foo}` with no `..` and no
// comma is left unexpanded, matching bash (a lone brace group degrades
// to literal text).
func expandRange(body string) ([]string, bool) {
	parts := strings.SplitN(body, "..", 2)
	if len(parts) != 2 {
		return nil, false
	}
	lo, hi := parts[0], parts[1]
	step := 1
	if idx := strings.LastIndex(hi, ".."); idx >= 0 {
		if n, err := strconv.Atoi(hi[idx+2:]); err == nil && n != 0 {
			step = n
			if step < 0 {
				step = -step
			}
			hi = hi[:idx]
		}
	}

	if n1, err1 := strconv.Atoi(lo); err1 == nil {
		n2, err2 := strconv.Atoi(hi)
		if err2 != nil {
			return nil, false
		}
		width := 0
		if (strings.HasPrefix(lo, "0") && len(lo) > 1) || (strings.HasPrefix(lo, "-0") && len(lo) > 2) {
			width = len(strings.TrimPrefix(lo, "-"))
		}
		var out []string
		if n1 <= n2 {
			for n := n1; n <= n2; n += step {
				out = append(out, padInt(n, width))
			}
		} else {
			for n := n1; n >= n2; n -= step {
				out = append(out, padInt(n, width))
			}
		}
		return out, true
	}

	if len(lo) == 1 && len(hi) == 1 {
		a, b := lo[0], hi[0]
		var out []string
		if a <= b {
			for c := a; c <= b; c += byte(step) {
				out = append(out, string(c))
			}
		} else {
			for c := a; c >= b; c -= byte(step) {
				out = append(out, string(c))
			}
		}
		return out, true
	}
	return nil, false
}

func padInt(n, width int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	digits := strings.TrimPrefix(s, "-")
	for len(digits) < width {
		digits = "0" + digits
	}
	if neg {
		return "-" + digits
	}
	return digits
}

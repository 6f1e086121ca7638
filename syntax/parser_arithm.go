package syntax

import "strings"

// arithmExprUntil scans an arithmetic expression up to (but not
// consuming) the given single-byte terminator.
func (p *parser) arithmExprUntil(term byte) (ArithmExpr, error) {
	start := p.pos
	depth := 0
	for !p.eof() {
		b := p.peek()
		if b == term && depth == 0 {
			break
		}
		if b == '(' {
			depth++
		} else if b == ')' {
			if depth == 0 {
				break
			}
			depth--
		}
		p.advance()
	}
	return parseArithm(string(p.src[start:p.pos]))
}

// arithmExprUntil2 stops at either of two terminators, used by the
// `${name:offset:length}` slice form where ':' and '}' both end operands.
func (p *parser) arithmExprUntil2(term1, term2 byte) (ArithmExpr, error) {
	start := p.pos
	depth := 0
	for !p.eof() {
		b := p.peek()
		if (b == term1 || b == term2) && depth == 0 {
			break
		}
		if b == '(' {
			depth++
		} else if b == ')' {
			if depth > 0 {
				depth--
			}
		}
		p.advance()
	}
	return parseArithm(string(p.src[start:p.pos]))
}

// arithmExprUntilStr stops at a literal multi-byte terminator such as "))".
func (p *parser) arithmExprUntilStr(term string) (ArithmExpr, error) {
	start := p.pos
	depth := 0
	for !p.eof() {
		if depth == 0 && p.pos+len(term) <= len(p.src) && string(p.src[p.pos:p.pos+len(term)]) == term {
			break
		}
		b := p.peek()
		if b == '(' {
			depth++
		} else if b == ')' && depth > 0 {
			depth--
		}
		p.advance()
	}
	expr, err := parseArithm(string(p.src[start:p.pos]))
	if err != nil {
		return nil, err
	}
	if p.pos+len(term) <= len(p.src) {
		p.pos += len(term)
	}
	return expr, nil
}

// arithmTokenizer / arithmParser implement a small precedence-climbing
// parser over the plain-text contents of an arithmetic expansion; it is
// deliberately independent from the word-level lexer above since
// arithmetic context disables word splitting and globbing entirely.
type arithmParser struct {
	toks []string
	pos  int
}

var arithmOpPrec = map[string]int{
	",": 1,
	"=": 2, "+=": 2, "-=": 2, "*=": 2, "/=": 2, "%=": 2, "&=": 2, "|=": 2, "^=": 2, "<<=": 2, ">>=": 2,
	"?:": 3,
	"||": 4,
	"&&": 5,
	"|":  6,
	"^":  7,
	"&":  8,
	"==": 9, "!=": 9,
	"<": 10, "<=": 10, ">": 10, ">=": 10,
	"<<": 11, ">>": 11,
	"+": 12, "-": 12,
	"*": 13, "/": 13, "%": 13,
	"**": 14,
}

var rightAssoc = map[string]bool{"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
	"&=": true, "|=": true, "^=": true, "<<=": true, ">>=": true, "**": true}

func tokenizeArithm(s string) []string {
	var toks []string
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case isDigit(c) || isNameStart(c):
			start := i
			for i < len(s) && (isNameCont(s[i]) || isDigit(s[i])) {
				i++
			}
			toks = append(toks, s[start:i])
		case c == '$':
			// allow $name inside arithmetic, treated the same as name
			start := i
			i++
			if i < len(s) && s[i] == '{' {
				i++
				for i < len(s) && s[i] != '}' {
					i++
				}
				if i < len(s) {
					i++
				}
			} else {
				for i < len(s) && isNameCont(s[i]) {
					i++
				}
			}
			toks = append(toks, s[start:i])
		default:
			three := substr(s, i, 3)
			two := substr(s, i, 2)
			switch three {
			case "<<=", ">>=":
				toks = append(toks, three)
				i += 3
				continue
			}
			switch two {
			case "**", "==", "!=", "<=", ">=", "&&", "||", "<<", ">>",
				"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "++", "--":
				toks = append(toks, two)
				i += 2
				continue
			}
			toks = append(toks, string(c))
			i++
		}
	}
	return toks
}

func substr(s string, i, n int) string {
	if i+n > len(s) {
		return ""
	}
	return s[i : i+n]
}

// ParseArithm parses a standalone arithmetic expression, such as an array
// subscript or the text fed to the `let` builtin, independent of any
// surrounding word-level parse.
func ParseArithm(s string) (ArithmExpr, error) {
	return parseArithm(s)
}

func parseArithm(s string) (ArithmExpr, error) {
	toks := tokenizeArithm(s)
	if len(toks) == 0 {
		return &WordArithm{W: Word{&Lit{Value: "0"}}}, nil
	}
	ap := &arithmParser{toks: toks}
	expr := ap.expr(0)
	return expr, nil
}

func (ap *arithmParser) peek() string {
	if ap.pos >= len(ap.toks) {
		return ""
	}
	return ap.toks[ap.pos]
}

func (ap *arithmParser) next() string {
	t := ap.peek()
	ap.pos++
	return t
}

func (ap *arithmParser) expr(minPrec int) ArithmExpr {
	x := ap.unary()
	for {
		op := ap.peek()
		if op == "?" {
			ap.next()
			then := ap.expr(0)
			if ap.peek() == ":" {
				ap.next()
			}
			els := ap.expr(3)
			x = &CondArithm{Cond: x, Then: then, Else: els}
			continue
		}
		prec, ok := arithmOpPrec[op]
		if !ok || prec < minPrec {
			return x
		}
		ap.next()
		nextMin := prec + 1
		if rightAssoc[op] {
			nextMin = prec
		}
		y := ap.expr(nextMin)
		x = &BinaryArithm{Op: op, X: x, Y: y}
	}
}

func (ap *arithmParser) unary() ArithmExpr {
	switch ap.peek() {
	case "-", "+", "!", "~":
		op := ap.next()
		return &UnaryArithm{Op: op, X: ap.unary()}
	case "++", "--":
		op := ap.next()
		return &UnaryArithm{Op: op, X: ap.unary()}
	}
	x := ap.primary()
	if ap.peek() == "++" || ap.peek() == "--" {
		op := ap.next()
		x = &UnaryArithm{Op: op, Post: true, X: x}
	}
	return x
}

func (ap *arithmParser) primary() ArithmExpr {
	if ap.peek() == "(" {
		ap.next()
		x := ap.expr(0)
		if ap.peek() == ")" {
			ap.next()
		}
		return &ParenArithm{X: x}
	}
	t := ap.next()
	return &WordArithm{W: Word{&Lit{Value: t}}}
}

var _ = strings.TrimSpace

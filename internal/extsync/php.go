package extsync

import (
	"fmt"
	"strings"
	"unicode"
)

// The PHP reader only understands array literals. It never evaluates code:
// it scans tokens up to the first `return array(...)`, `return [...]`,
// `= array(...)` or `= [...]` and parses that literal. Inside the literal,
// anything other than quoted strings, integers, `=>`, `,` and nested arrays
// is a parse error.

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokString
	tokNumber
	tokIdent
	tokArrow    // =>
	tokAssign   // =
	tokComma    // ,
	tokLParen   // (
	tokRParen   // )
	tokLBracket // [
	tokRBracket // ]
	tokOther    // any other punctuation outside the literal
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

var punctuation = map[byte]tokenKind{
	'=': tokAssign, ',': tokComma,
	'(': tokLParen, ')': tokRParen,
	'[': tokLBracket, ']': tokRBracket,
}

type phpLexer struct {
	src string
	pos int
}

func (l *phpLexer) errorf(pos int, format string, args ...any) error {
	return fmt.Errorf("%w: offset %d: %s", ErrParse, pos, fmt.Sprintf(format, args...))
}

func (l *phpLexer) skipSpaceAndComments() error {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.pos++
		case c == '#' || strings.HasPrefix(l.src[l.pos:], "//"):
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		case strings.HasPrefix(l.src[l.pos:], "/*"):
			end := strings.Index(l.src[l.pos+2:], "*/")
			if end < 0 {
				return l.errorf(l.pos, "unterminated comment")
			}
			l.pos += end + 4
		case strings.HasPrefix(l.src[l.pos:], "<?php"):
			l.pos += len("<?php")
		case strings.HasPrefix(l.src[l.pos:], "<?"):
			l.pos += 2
		case strings.HasPrefix(l.src[l.pos:], "?>"):
			l.pos += 2
		default:
			return nil
		}
	}
	return nil
}

func (l *phpLexer) next() (token, error) {
	if err := l.skipSpaceAndComments(); err != nil {
		return token{}, err
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]
	switch {
	case c == '\'' || c == '"':
		s, err := l.readString(c)
		if err != nil {
			return token{}, err
		}
		return token{kind: tokString, text: s, pos: start}, nil
	case c >= '0' && c <= '9' || c == '-' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]):
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokNumber, text: l.src[start:l.pos], pos: start}, nil
	case isIdentStart(c):
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}, nil
	case strings.HasPrefix(l.src[l.pos:], "=>"):
		l.pos += 2
		return token{kind: tokArrow, text: "=>", pos: start}, nil
	}

	l.pos++
	if k, ok := punctuation[c]; ok {
		return token{kind: k, text: string(c), pos: start}, nil
	}
	return token{kind: tokOther, text: string(c), pos: start}, nil
}

// readString decodes a single- or double-quoted PHP string literal. Double
// quoted strings containing variable interpolation are rejected.
func (l *phpLexer) readString(quote byte) (string, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == quote:
			l.pos++
			return b.String(), nil
		case c == '\\' && l.pos+1 < len(l.src):
			n := l.src[l.pos+1]
			if quote == '\'' {
				// Single quotes only unescape \' and \\.
				if n == '\'' || n == '\\' {
					b.WriteByte(n)
					l.pos += 2
					continue
				}
				b.WriteByte(c)
				l.pos++
				continue
			}
			switch n {
			case '"', '\\', '$':
				b.WriteByte(n)
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(c)
				b.WriteByte(n)
			}
			l.pos += 2
		case c == '$' && quote == '"':
			return "", l.errorf(l.pos, "variable interpolation in string literal")
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return "", l.errorf(start, "unterminated string literal")
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || c == '\\' || unicode.IsLetter(rune(c))
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

// phpParser walks tokens with one token of lookahead.
type phpParser struct {
	lex  *phpLexer
	tok  token
	prev token
}

func (p *phpParser) advance() error {
	p.prev = p.tok
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

// ParsePHPArray extracts name/pattern pairs from the first array literal that
// is returned or assigned in src. Keyed entries use the key as the name;
// list entries use the pattern itself.
func ParsePHPArray(src string) ([]Pair, error) {
	p := &phpParser{lex: &phpLexer{src: src}}
	if err := p.advance(); err != nil {
		return nil, err
	}

	for {
		if p.tok.kind == tokEOF {
			return nil, fmt.Errorf("%w: no returned or assigned array literal found", ErrParse)
		}
		introducer := p.tok.kind == tokAssign || p.tok.kind == tokIdent && strings.EqualFold(p.tok.text, "return")
		if err := p.advance(); err != nil {
			return nil, err
		}
		if !introducer {
			continue
		}
		closer, ok, err := p.arrayOpen()
		if err != nil {
			return nil, err
		}
		if ok {
			var pairs []Pair
			if err := p.parseElements(closer, "", &pairs); err != nil {
				return nil, err
			}
			return pairs, nil
		}
	}
}

// arrayOpen consumes `array(` or `[` if present and returns the matching
// closing token kind.
func (p *phpParser) arrayOpen() (tokenKind, bool, error) {
	switch {
	case p.tok.kind == tokLBracket:
		return tokRBracket, true, p.advance()
	case p.tok.kind == tokIdent && strings.EqualFold(p.tok.text, "array"):
		if err := p.advance(); err != nil {
			return 0, false, err
		}
		if p.tok.kind != tokLParen {
			return 0, false, p.lex.errorf(p.tok.pos, "expected ( after array, got %q", p.tok.text)
		}
		return tokRParen, true, p.advance()
	}
	return 0, false, nil
}

// parseElements reads elements up to closer. Nested list values inherit the
// enclosing key as their name.
func (p *phpParser) parseElements(closer tokenKind, outerName string, out *[]Pair) error {
	for {
		if p.tok.kind == closer {
			return p.advance()
		}

		key, isScalar, err := p.scalar()
		if err != nil {
			return err
		}

		if isScalar && p.tok.kind == tokArrow {
			if err := p.advance(); err != nil {
				return err
			}
			if err := p.value(key, out); err != nil {
				return err
			}
		} else if isScalar {
			if p.prev.kind != tokString {
				return p.lex.errorf(p.prev.pos, "list entry must be a string, got %q", p.prev.text)
			}
			name := outerName
			if name == "" {
				name = key
			}
			*out = append(*out, Pair{Name: name, Pattern: key})
		} else {
			// Unkeyed nested array.
			if err := p.value(outerName, out); err != nil {
				return err
			}
		}

		switch p.tok.kind {
		case tokComma:
			if err := p.advance(); err != nil {
				return err
			}
		case closer:
		default:
			return p.lex.errorf(p.tok.pos, "expected , or end of array, got %q", p.tok.text)
		}
	}
}

// scalar consumes a string or integer if one is next.
func (p *phpParser) scalar() (string, bool, error) {
	switch p.tok.kind {
	case tokString, tokNumber:
		text := p.tok.text
		return text, true, p.advance()
	case tokLBracket, tokIdent:
		if p.tok.kind == tokIdent && !strings.EqualFold(p.tok.text, "array") {
			return "", false, p.lex.errorf(p.tok.pos, "unexpected identifier %q in array literal", p.tok.text)
		}
		return "", false, nil
	case tokEOF:
		return "", false, p.lex.errorf(p.tok.pos, "unterminated array literal")
	}
	return "", false, p.lex.errorf(p.tok.pos, "unexpected %q in array literal", p.tok.text)
}

// value parses the right-hand side of `key =>` or an unkeyed nested array.
func (p *phpParser) value(name string, out *[]Pair) error {
	closer, ok, err := p.arrayOpen()
	if err != nil {
		return err
	}
	if ok {
		return p.parseElements(closer, name, out)
	}
	if p.tok.kind != tokString {
		return p.lex.errorf(p.tok.pos, "array value must be a string or array, got %q", p.tok.text)
	}
	*out = append(*out, Pair{Name: name, Pattern: p.tok.text})
	return p.advance()
}

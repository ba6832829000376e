package ntriples

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/l7mp/triplestream/pkg/term"
)

// TokenKind is the type of a lexical token.
type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenTerm
	TokenVariable
	TokenDot
)

// Token is one lexical token: a term, a variable, or the statement terminator.
type Token struct {
	Kind     TokenKind
	Term     term.Term
	Variable string
	Line     int
	Column   int
}

// Lexer splits triple patterns into tokens: N-Triples terms, SPARQL-style ?name and $name
// variables, and statement terminators.
type Lexer struct {
	src       string
	pos       int
	line, col int
	start     [2]int
}

// NewLexer returns a lexer over src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1, col: 1}
}

func (l *Lexer) error(err error) error {
	return &ParseError{Line: l.start[0], Column: l.start[1], Err: err}
}

func (l *Lexer) peek() (rune, bool) {
	if l.pos >= len(l.src) {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	return r, true
}

func (l *Lexer) read() (rune, bool) {
	if l.pos >= len(l.src) {
		return 0, false
	}
	r, n := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += n
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r, true
}

// skip consumes whitespace and # comments.
func (l *Lexer) skip() {
	for {
		r, ok := l.peek()
		if !ok {
			return
		}
		switch {
		case unicode.IsSpace(r):
			l.read()
		case r == '#':
			for r, ok := l.read(); ok && r != '\n'; r, ok = l.read() {
			}
		default:
			return
		}
	}
}

// Next returns the next token. At the end of the input it returns a token of kind TokenEOF.
func (l *Lexer) Next() (Token, error) {
	l.skip()
	l.start = [2]int{l.line, l.col}
	tok := Token{Line: l.line, Column: l.col}

	r, ok := l.read()
	if !ok {
		tok.Kind = TokenEOF
		return tok, nil
	}

	switch {
	case r == '.':
		tok.Kind = TokenDot
		return tok, nil

	case r == '<':
		iri, err := l.readIRI()
		if err != nil {
			return tok, err
		}
		tok.Kind, tok.Term = TokenTerm, term.NewIRI(iri)
		return tok, nil

	case r == '_':
		if r, ok := l.read(); !ok || r != ':' {
			return tok, l.error(ErrUnexpectedCharacter)
		}
		id := l.readName()
		if id == "" {
			return tok, l.error(ErrUnexpectedCharacter)
		}
		tok.Kind, tok.Term = TokenTerm, term.NewBlank(id)
		return tok, nil

	case r == '"':
		t, err := l.readLiteral()
		if err != nil {
			return tok, err
		}
		tok.Kind, tok.Term = TokenTerm, t
		return tok, nil

	case r == '?' || r == '$':
		name := l.readName()
		if name == "" {
			return tok, l.error(ErrUnexpectedCharacter)
		}
		tok.Kind, tok.Variable = TokenVariable, name
		return tok, nil
	}

	return tok, l.error(ErrUnexpectedCharacter)
}

func (l *Lexer) readIRI() (string, error) {
	var b strings.Builder
	for {
		r, ok := l.read()
		if !ok {
			return "", l.error(ErrUnterminatedIRI)
		}
		if r == '>' {
			if b.Len() == 0 {
				return "", l.error(ErrUnexpectedCharacter)
			}
			return b.String(), nil
		}
		if r < 0x20 || r == ' ' || r == '<' || r == '"' {
			return "", l.error(ErrUnexpectedCharacter)
		}
		b.WriteRune(r)
	}
}

// readName reads a blank node label or a variable name.
func (l *Lexer) readName() string {
	var b strings.Builder
	for {
		r, ok := l.peek()
		if !ok || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-') {
			return b.String()
		}
		l.read()
		b.WriteRune(r)
	}
}

func (l *Lexer) readLiteral() (term.Term, error) {
	var b strings.Builder
	for {
		r, ok := l.read()
		if !ok || r == '\n' {
			return term.Term{}, l.error(ErrUnterminatedLiteral)
		}

		if r == '\\' {
			e, err := l.readEscape()
			if err != nil {
				return term.Term{}, err
			}
			b.WriteRune(e)
			continue
		}

		if r != '"' {
			b.WriteRune(r)
			continue
		}

		value := b.String()
		next, _ := l.peek()
		switch next {
		case '@':
			l.read()
			var lang strings.Builder
			for {
				r, ok := l.peek()
				if !ok || !(r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
					break
				}
				l.read()
				lang.WriteRune(r)
			}
			if lang.Len() == 0 {
				return term.Term{}, l.error(ErrUnexpectedCharacter)
			}
			return term.NewLangLiteral(value, lang.String()), nil

		case '^':
			l.read()
			if r, ok := l.read(); !ok || r != '^' {
				return term.Term{}, l.error(ErrUnexpectedCharacter)
			}
			if r, ok := l.read(); !ok || r != '<' {
				return term.Term{}, l.error(ErrUnexpectedCharacter)
			}
			dt, err := l.readIRI()
			if err != nil {
				return term.Term{}, err
			}
			return term.NewTypedLiteral(value, dt), nil
		}

		return term.NewLiteral(value), nil
	}
}

func (l *Lexer) readEscape() (rune, error) {
	r, ok := l.read()
	if !ok {
		return 0, l.error(ErrUnexpectedEOF)
	}
	switch r {
	case '\\', '"', '\'':
		return r, nil
	case 't':
		return '\t', nil
	case 'r':
		return '\r', nil
	case 'n':
		return '\n', nil
	case 'b':
		return '\b', nil
	case 'f':
		return '\f', nil
	case 'u':
		return l.readHex(4)
	case 'U':
		return l.readHex(8)
	}
	return 0, l.error(ErrInvalidEscape)
}

func (l *Lexer) readHex(n int) (rune, error) {
	var cp rune
	for i := 0; i < n; i++ {
		r, ok := l.read()
		if !ok {
			return 0, l.error(ErrUnexpectedEOF)
		}
		var d rune
		switch {
		case r >= '0' && r <= '9':
			d = r - '0'
		case r >= 'a' && r <= 'f':
			d = r - 'a' + 10
		case r >= 'A' && r <= 'F':
			d = r - 'A' + 10
		default:
			return 0, l.error(ErrInvalidEscape)
		}
		cp = cp<<4 | d
	}
	if !utf8.ValidRune(cp) {
		return 0, l.error(ErrInvalidEscape)
	}
	return cp, nil
}

package shell

import (
	"strconv"
	"strings"
)

// lexer splits a byte range of a command string into tokens. Positions are
// always offsets into the full original string so that errors raised while
// lexing a substitution body point at the right place.
type lexer struct {
	src      string
	pos      int
	end      int
	depth    int
	maxDepth int

	// sub parses the body src[start:end] of a command substitution at the
	// given depth.
	sub func(start, end, depth int) (Node, error)
}

func newLexer(src string, start, end, depth, maxDepth int) *lexer {
	return &lexer{src: src, pos: start, end: end, depth: depth, maxDepth: maxDepth}
}

// isMeta reports whether c terminates an unquoted word.
func isMeta(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', ';', '&', '|', '(', ')', '<', '>':
		return true
	}
	return false
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}

func depthError(pos, limit int) *ParseError {
	return &ParseError{
		Pos: pos,
		Msg: "nesting deeper than " + strconv.Itoa(limit) + " levels",
		Err: ErrDepthExceeded,
	}
}

// peekByte returns the byte at offset i from the current position, or 0.
func (l *lexer) peekByte(i int) byte {
	if l.pos+i < l.end {
		return l.src[l.pos+i]
	}
	return 0
}

// skipBlanks consumes blanks, line continuations and comments.
func (l *lexer) skipBlanks() {
	for l.pos < l.end {
		switch c := l.src[l.pos]; {
		case c == ' ' || c == '\t' || c == '\r':
			l.pos++
		case c == '\\' && l.peekByte(1) == '\n':
			l.pos += 2
		case c == '#':
			for l.pos < l.end && l.src[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

// next returns the next token.
func (l *lexer) next() (Token, error) {
	l.skipBlanks()
	if l.pos >= l.end {
		return Token{Kind: TokEOF, Pos: l.end}, nil
	}
	start := l.pos
	op := func(k Kind, n int) (Token, error) {
		l.pos += n
		return Token{Kind: k, Text: l.src[start:l.pos], Pos: start}, nil
	}
	switch c := l.src[l.pos]; c {
	case '\n':
		return op(TokNewline, 1)
	case ';':
		if l.peekByte(1) == ';' {
			return Token{}, errorf(start, "case terminator ';;' is not supported")
		}
		if l.peekByte(1) == '&' {
			return Token{}, errorf(start, "';&' is not supported")
		}
		return op(TokSemi, 1)
	case '&':
		switch l.peekByte(1) {
		case '&':
			return op(TokAnd, 2)
		case '>':
			if l.peekByte(2) == '>' {
				return op(TokAndDGreat, 3)
			}
			return op(TokAndGreat, 2)
		}
		return Token{}, errorf(start, "background jobs ('&') are not supported")
	case '|':
		switch l.peekByte(1) {
		case '|':
			return op(TokOr, 2)
		case '&':
			return Token{}, errorf(start, "'|&' is not supported")
		}
		return op(TokPipe, 1)
	case '(':
		return op(TokLParen, 1)
	case ')':
		return op(TokRParen, 1)
	case '>':
		switch l.peekByte(1) {
		case '>':
			return op(TokDGreat, 2)
		case '&':
			return op(TokGreatAnd, 2)
		case '(':
			return Token{}, errorf(start, "process substitution is not supported")
		case '|':
			return Token{}, errorf(start, "'>|' is not supported")
		}
		return op(TokGreat, 1)
	case '<':
		switch l.peekByte(1) {
		case '<':
			return Token{}, errorf(start, "heredocs and herestrings are not supported")
		case '&':
			return op(TokLessAnd, 2)
		case '(':
			return Token{}, errorf(start, "process substitution is not supported")
		case '>':
			return Token{}, errorf(start, "'<>' is not supported")
		}
		return op(TokLess, 1)
	}
	return l.word()
}

// word lexes one word starting at the current position.
func (l *lexer) word() (Token, error) {
	start := l.pos
	w := &Word{Pos: start}
	var lit strings.Builder
	bracket := false

	for l.pos < l.end {
		c := l.src[l.pos]
		if isMeta(c) {
			break
		}
		switch c {
		case '\\':
			if l.pos+1 >= l.end {
				lit.WriteByte('\\')
				l.pos++
				continue
			}
			n := l.src[l.pos+1]
			l.pos += 2
			if n == '\n' {
				continue
			}
			lit.WriteByte(n)
			if n == '$' || n == '`' {
				w.markExpansion(ExpansionVariable)
			}
		case '\'':
			j := strings.IndexByte(l.src[l.pos+1:l.end], '\'')
			if j < 0 {
				return Token{}, errorf(l.pos, "unterminated single quote")
			}
			s := l.src[l.pos+1 : l.pos+1+j]
			lit.WriteString(s)
			if strings.ContainsAny(s, "$`") {
				w.markExpansion(ExpansionVariable)
			}
			l.pos += j + 2
		case '"':
			if err := l.doubleQuoted(w, &lit); err != nil {
				return Token{}, err
			}
		case '$':
			if err := l.dollar(w, &lit); err != nil {
				return Token{}, err
			}
		case '`':
			if err := l.backtick(w, &lit); err != nil {
				return Token{}, err
			}
		case '{', '}':
			// The only brace form accepted is the literal word "{}" used by
			// find -exec; everything else is a brace group or brace expansion.
			if c == '{' && l.pos == start && l.peekByte(1) == '}' &&
				(l.pos+2 >= l.end || isMeta(l.src[l.pos+2])) {
				lit.WriteString("{}")
				l.pos += 2
				continue
			}
			return Token{}, errorf(l.pos, "brace groups and brace expansion are not supported")
		default:
			switch c {
			case '*', '?':
				w.HasGlob = true
			case '[':
				bracket = true
			case ']':
				w.HasGlob = w.HasGlob || bracket
			}
			lit.WriteByte(c)
			l.pos++
		}
	}

	raw := l.src[start:l.pos]
	w.Raw = raw
	w.Literal = lit.String()

	if isDigits(raw) && l.pos < l.end && (l.src[l.pos] == '<' || l.src[l.pos] == '>') {
		return Token{Kind: TokIONumber, Text: raw, Pos: start}, nil
	}

	tok := Token{Kind: TokWord, Text: raw, Pos: start, Word: w}
	if name, ok := assignmentName(raw); ok {
		tok.Assign = name
	}
	return tok, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// assignmentName reports whether raw starts with an unquoted NAME=.
func assignmentName(raw string) (string, bool) {
	if raw == "" || !isNameStart(raw[0]) {
		return "", false
	}
	for i := 1; i < len(raw); i++ {
		switch {
		case raw[i] == '=':
			return raw[:i], true
		case !isNameChar(raw[i]):
			return "", false
		}
	}
	return "", false
}

// doubleQuoted lexes a "..." segment. The current position is the opening quote.
func (l *lexer) doubleQuoted(w *Word, lit *strings.Builder) error {
	open := l.pos
	l.pos++
	for l.pos < l.end {
		switch c := l.src[l.pos]; c {
		case '"':
			l.pos++
			return nil
		case '\\':
			if l.pos+1 >= l.end {
				return errorf(open, "unterminated double quote")
			}
			switch n := l.src[l.pos+1]; n {
			case '$', '`':
				lit.WriteByte(n)
				w.markExpansion(ExpansionVariable)
				l.pos += 2
			case '"', '\\':
				lit.WriteByte(n)
				l.pos += 2
			case '\n':
				l.pos += 2
			default:
				lit.WriteByte('\\')
				l.pos++
			}
		case '$':
			if err := l.dollar(w, lit); err != nil {
				return err
			}
		case '`':
			if err := l.backtick(w, lit); err != nil {
				return err
			}
		default:
			lit.WriteByte(c)
			l.pos++
		}
	}
	return errorf(open, "unterminated double quote")
}

// dollar lexes a '$' expansion. The current position is the '$'.
func (l *lexer) dollar(w *Word, lit *strings.Builder) error {
	start := l.pos
	switch l.peekByte(1) {
	case '(':
		if l.peekByte(2) == '(' {
			// Arithmetic expansion: recorded, never parsed.
			closing, err := l.matchParen(start+2, l.depth+1)
			if err != nil {
				return err
			}
			lit.WriteString(l.src[start : closing+1])
			w.markExpansion(ExpansionVariable)
			l.pos = closing + 1
			return nil
		}
		closing, err := l.matchParen(start+2, l.depth+1)
		if err != nil {
			return err
		}
		body, err := l.sub(start+2, closing, l.depth+1)
		if err != nil {
			return err
		}
		w.Subst = append(w.Subst, &Subshell{Body: body, Kind: SubshellDollar, Position: start})
		w.markExpansion(ExpansionCommandSubstitution)
		lit.WriteString(l.src[start : closing+1])
		l.pos = closing + 1
	case '{':
		closing, err := l.matchBrace(start + 2)
		if err != nil {
			return err
		}
		lit.WriteString(l.src[start : closing+1])
		w.markExpansion(ExpansionVariable)
		l.pos = closing + 1
	case '\'':
		// ANSI-C quoting can encode arbitrary bytes.
		j := start + 2
		for j < l.end && l.src[j] != '\'' {
			if l.src[j] == '\\' {
				j++
			}
			j++
		}
		if j >= l.end {
			return errorf(start, "unterminated $'...' string")
		}
		lit.WriteString(l.src[start : j+1])
		w.markExpansion(ExpansionVariable)
		l.pos = j + 1
	default:
		lit.WriteByte('$')
		w.markExpansion(ExpansionVariable)
		l.pos++
	}
	return nil
}

// backtick lexes a `...` substitution. The current position is the opening backtick.
func (l *lexer) backtick(w *Word, lit *strings.Builder) error {
	start := l.pos
	closing, err := l.skipBacktick(start + 1)
	if err != nil {
		return err
	}
	if l.depth+1 > l.maxDepth {
		return depthError(start, l.maxDepth)
	}
	body, err := l.sub(start+1, closing-1, l.depth+1)
	if err != nil {
		return err
	}
	w.Subst = append(w.Subst, &Subshell{Body: body, Kind: SubshellBacktick, Position: start})
	w.markExpansion(ExpansionBacktick)
	lit.WriteString(l.src[start:closing])
	l.pos = closing
	return nil
}

// matchParen returns the index of the ')' that closes a '(' whose contents
// begin at i. depth is the nesting level of the contents.
func (l *lexer) matchParen(i, depth int) (int, error) {
	if depth > l.maxDepth {
		return 0, depthError(i, l.maxDepth)
	}
	start := i
	open := 0
	for i < l.end {
		switch l.src[i] {
		case '\\':
			i += 2
			continue
		case '\'':
			j := strings.IndexByte(l.src[i+1:l.end], '\'')
			if j < 0 {
				return 0, errorf(i, "unterminated single quote")
			}
			i += j + 2
			continue
		case '"':
			j, err := l.skipDouble(i+1, depth)
			if err != nil {
				return 0, err
			}
			i = j
			continue
		case '`':
			j, err := l.skipBacktick(i + 1)
			if err != nil {
				return 0, err
			}
			i = j
			continue
		case '$':
			if i+1 < l.end && l.src[i+1] == '(' {
				j, err := l.matchParen(i+2, depth+1)
				if err != nil {
					return 0, err
				}
				i = j + 1
				continue
			}
			if i+1 < l.end && l.src[i+1] == '{' {
				j, err := l.matchBrace(i + 2)
				if err != nil {
					return 0, err
				}
				i = j + 1
				continue
			}
		case '(':
			open++
			if depth+open > l.maxDepth {
				return 0, depthError(i, l.maxDepth)
			}
		case ')':
			if open == 0 {
				return i, nil
			}
			open--
		}
		i++
	}
	return 0, errorf(start, "unterminated command substitution")
}

// skipDouble returns the index just past the '"' closing a double-quoted
// string whose contents begin at i.
func (l *lexer) skipDouble(i, depth int) (int, error) {
	start := i - 1
	for i < l.end {
		switch l.src[i] {
		case '"':
			return i + 1, nil
		case '\\':
			i += 2
			continue
		case '`':
			j, err := l.skipBacktick(i + 1)
			if err != nil {
				return 0, err
			}
			i = j
			continue
		case '$':
			if i+1 < l.end && l.src[i+1] == '(' {
				j, err := l.matchParen(i+2, depth+1)
				if err != nil {
					return 0, err
				}
				i = j + 1
				continue
			}
		}
		i++
	}
	return 0, errorf(start, "unterminated double quote")
}

// skipBacktick returns the index just past the '`' closing a backtick
// substitution whose contents begin at i.
func (l *lexer) skipBacktick(i int) (int, error) {
	start := i - 1
	for i < l.end {
		switch l.src[i] {
		case '\\':
			i += 2
			continue
		case '`':
			return i + 1, nil
		}
		i++
	}
	return 0, errorf(start, "unterminated backtick substitution")
}

// matchBrace returns the index of the '}' closing a '${' whose contents
// begin at i.
func (l *lexer) matchBrace(i int) (int, error) {
	start := i - 2
	open := 0
	for i < l.end {
		switch l.src[i] {
		case '\\':
			i += 2
			continue
		case '\'':
			j := strings.IndexByte(l.src[i+1:l.end], '\'')
			if j < 0 {
				return 0, errorf(i, "unterminated single quote")
			}
			i += j + 2
			continue
		case '{':
			open++
		case '}':
			if open == 0 {
				return i, nil
			}
			open--
		}
		i++
	}
	return 0, errorf(start, "unterminated parameter expansion")
}

// Lex returns the top-level tokens of src. Substitution bodies are parsed but
// not returned; it exists for diagnostics and tests.
func Lex(src string, opts ...Option) ([]Token, error) {
	o := buildOptions(opts)
	l := newLexer(src, 0, len(src), 0, o.maxDepth)
	l.sub = func(start, end, depth int) (Node, error) {
		return parseRange(src, start, end, depth, o.maxDepth)
	}
	var toks []Token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, t)
		if t.Kind == TokEOF {
			return toks, nil
		}
	}
}

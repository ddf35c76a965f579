// Package shell implements the tokenizer, parser and AST for the subset of
// POSIX shell syntax that cmdpolicy reasons about.
//
// The parser is deliberately strict: any construct outside the supported
// subset (heredocs, process substitution, brace groups, compound commands,
// background jobs) is reported as a *ParseError rather than accepted on a
// best-effort basis. Expansion is never evaluated; a Word only records, from
// its surface syntax, whether its runtime value could differ from its text.
package shell

import (
	"errors"
	"fmt"
)

// unknownStr is the string representation for unknown enum values.
const unknownStr = "unknown"

// ErrDepthExceeded is wrapped by the *ParseError returned when subshells or
// command substitutions nest deeper than the configured limit.
var ErrDepthExceeded = errors.New("shell: nesting depth exceeded")

// Kind identifies the lexical class of a Token.
type Kind int

const (
	TokEOF Kind = iota
	TokWord
	TokIONumber  // digits immediately preceding a redirection operator, e.g. the 2 in 2>
	TokSemi      // ;
	TokNewline   // \n
	TokAnd       // &&
	TokOr        // ||
	TokPipe      // |
	TokLParen    // (
	TokRParen    // )
	TokGreat     // >
	TokDGreat    // >>
	TokLess      // <
	TokGreatAnd  // >&
	TokLessAnd   // <&
	TokAndGreat  // &>
	TokAndDGreat // &>>
)

var kindNames = [...]string{
	TokEOF:       "end of input",
	TokWord:      "word",
	TokIONumber:  "io-number",
	TokSemi:      "';'",
	TokNewline:   "newline",
	TokAnd:       "'&&'",
	TokOr:        "'||'",
	TokPipe:      "'|'",
	TokLParen:    "'('",
	TokRParen:    "')'",
	TokGreat:     "'>'",
	TokDGreat:    "'>>'",
	TokLess:      "'<'",
	TokGreatAnd:  "'>&'",
	TokLessAnd:   "'<&'",
	TokAndGreat:  "'&>'",
	TokAndDGreat: "'&>>'",
}

// String returns a human-readable name for the token kind.
func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return unknownStr
}

// IsRedirect reports whether k is a redirection operator.
func (k Kind) IsRedirect() bool {
	switch k {
	case TokGreat, TokDGreat, TokLess, TokGreatAnd, TokLessAnd, TokAndGreat, TokAndDGreat:
		return true
	}
	return false
}

// Token is a single lexical unit produced by the lexer.
type Token struct {
	Kind Kind
	// Text is the raw source text of the token.
	Text string
	// Pos is the byte offset of the token in the original command string.
	Pos int
	// Word is populated for TokWord tokens.
	Word *Word
	// Assign is set when a TokWord has the shape NAME=value with an
	// unquoted, valid NAME. It holds NAME.
	Assign string
}

func (t Token) String() string {
	if t.Kind == TokWord || t.Kind == TokIONumber {
		return fmt.Sprintf("%s %q@%d", t.Kind, t.Text, t.Pos)
	}
	return fmt.Sprintf("%s@%d", t.Kind, t.Pos)
}

// ParseError describes malformed or unsupported syntax.
type ParseError struct {
	// Pos is the byte offset in the original command string.
	Pos int
	// Msg describes the problem.
	Msg string
	// Err is an optional sentinel cause, such as ErrDepthExceeded.
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at offset %d", e.Msg, e.Pos)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func errorf(pos int, format string, args ...any) *ParseError {
	return &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

package shell

import (
	"strconv"
)

const (
	// DefaultMaxDepth is the default limit on subshell and command
	// substitution nesting.
	DefaultMaxDepth = 24
	// MaxDepthLimit is the largest accepted nesting limit.
	MaxDepthLimit = 32
)

// Option configures Parse.
type Option func(*options)

type options struct {
	maxDepth int
}

// WithMaxDepth sets the nesting limit. Values are clamped to [1, MaxDepthLimit].
func WithMaxDepth(n int) Option {
	return func(o *options) {
		o.maxDepth = n
	}
}

func buildOptions(opts []Option) options {
	o := options{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxDepth < 1 {
		o.maxDepth = 1
	}
	if o.maxDepth > MaxDepthLimit {
		o.maxDepth = MaxDepthLimit
	}
	return o
}

// reserved holds words that introduce compound commands or are otherwise
// meaningful to the shell grammar at command position.
var reserved = map[string]bool{
	"if": true, "then": true, "else": true, "elif": true, "fi": true,
	"case": true, "esac": true, "for": true, "select": true, "while": true,
	"until": true, "do": true, "done": true, "function": true, "time": true,
	"coproc": true, "!": true, "[[": true, "]]": true, "in": true,
}

// Parse parses a command string into an AST. Empty or whitespace-only input
// yields an empty *List. Any unsupported or malformed syntax yields a
// *ParseError.
//
// A List with a single member is collapsed to that member, so "ls" parses to
// a *Command rather than a one-element List.
func Parse(src string, opts ...Option) (Node, error) {
	o := buildOptions(opts)
	return parseRange(src, 0, len(src), 0, o.maxDepth)
}

type parser struct {
	lex *lexer
	tok Token
}

// parseRange parses src[start:end] as a complete list at the given depth.
func parseRange(src string, start, end, depth, maxDepth int) (Node, error) {
	if depth > maxDepth {
		return nil, depthError(start, maxDepth)
	}
	p := &parser{lex: newLexer(src, start, end, depth, maxDepth)}
	p.lex.sub = func(s, e, d int) (Node, error) {
		return parseRange(src, s, e, d, maxDepth)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	n, err := p.list(TokEOF)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return &List{Position: start}, nil
	}
	return n, nil
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) skipNewlines() error {
	for p.tok.Kind == TokNewline {
		if err := p.advance(); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) unexpected() error {
	if p.tok.Kind == TokWord {
		return errorf(p.tok.Pos, "unexpected word %q", p.tok.Text)
	}
	return errorf(p.tok.Pos, "unexpected %s", p.tok.Kind)
}

// list parses pipelines joined by ';', newline, '&&' and '||' until term.
// It returns nil when no command was found.
func (p *parser) list(term Kind) (Node, error) {
	if err := p.skipNewlines(); err != nil {
		return nil, err
	}
	l := &List{Position: p.tok.Pos}
loop:
	for p.tok.Kind != term {
		m, err := p.pipeline()
		if err != nil {
			return nil, err
		}
		l.Members = append(l.Members, m)

		switch p.tok.Kind {
		case TokSemi, TokNewline:
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.skipNewlines(); err != nil {
				return nil, err
			}
			if p.tok.Kind == term {
				break loop
			}
			l.Operators = append(l.Operators, OpSeq)
		case TokAnd, TokOr:
			op := OpAnd
			if p.tok.Kind == TokOr {
				op = OpOr
			}
			opTok := p.tok
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.skipNewlines(); err != nil {
				return nil, err
			}
			if p.tok.Kind == term {
				return nil, errorf(opTok.Pos, "expected a command after %s", opTok.Kind)
			}
			l.Operators = append(l.Operators, op)
		default:
			if p.tok.Kind != term {
				return nil, p.unexpected()
			}
		}
	}

	switch len(l.Members) {
	case 0:
		return nil, nil
	case 1:
		return l.Members[0], nil
	}
	return l, nil
}

// pipeline parses commands joined by '|'.
func (p *parser) pipeline() (Node, error) {
	first, err := p.command()
	if err != nil {
		return nil, err
	}
	if p.tok.Kind != TokPipe {
		return first, nil
	}
	pl := &Pipeline{Stages: []Node{first}, Position: first.Pos()}
	for p.tok.Kind == TokPipe {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.skipNewlines(); err != nil {
			return nil, err
		}
		st, err := p.command()
		if err != nil {
			return nil, err
		}
		pl.Stages = append(pl.Stages, st)
	}
	return pl, nil
}

func (p *parser) command() (Node, error) {
	switch {
	case p.tok.Kind == TokLParen:
		return p.subshell()
	case p.tok.Kind == TokWord, p.tok.Kind == TokIONumber, p.tok.Kind.IsRedirect():
		return p.simple()
	case p.tok.Kind == TokEOF:
		return nil, errorf(p.tok.Pos, "unexpected end of input, expected a command")
	}
	return nil, p.unexpected()
}

// subshell parses '(' list ')' followed by optional redirections.
func (p *parser) subshell() (Node, error) {
	pos := p.tok.Pos
	if p.lex.depth+1 > p.lex.maxDepth {
		return nil, depthError(pos, p.lex.maxDepth)
	}
	p.lex.depth++
	if err := p.advance(); err != nil {
		return nil, err
	}
	body, err := p.list(TokRParen)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errorf(pos, "empty subshell")
	}
	if p.tok.Kind != TokRParen {
		return nil, errorf(pos, "unterminated subshell")
	}
	p.lex.depth--
	if err := p.advance(); err != nil {
		return nil, err
	}

	var n Node = &Subshell{Body: body, Kind: SubshellGroup, Position: pos}
	for p.tok.Kind == TokIONumber || p.tok.Kind.IsRedirect() {
		r, err := p.redirect()
		if err != nil {
			return nil, err
		}
		n = r.wrap(n)
	}
	if p.tok.Kind == TokWord || p.tok.Kind == TokLParen {
		return nil, p.unexpected()
	}
	return n, nil
}

// simple parses a simple command: assignments, then words, with
// redirections allowed anywhere.
func (p *parser) simple() (Node, error) {
	cmd := &Command{Position: p.tok.Pos}
	var redirs []redirSpec
	for {
		switch {
		case p.tok.Kind == TokWord && p.tok.Assign != "" && !cmd.HasName():
			cmd.Assignments = append(cmd.Assignments, assignmentOf(p.tok))
		case p.tok.Kind == TokWord:
			if !cmd.HasName() {
				if reserved[p.tok.Word.Literal] {
					return nil, errorf(p.tok.Pos, "shell keyword %q is not supported", p.tok.Word.Literal)
				}
				cmd.Name = *p.tok.Word
			} else {
				cmd.Args = append(cmd.Args, *p.tok.Word)
			}
		case p.tok.Kind == TokIONumber || p.tok.Kind.IsRedirect():
			r, err := p.redirect()
			if err != nil {
				return nil, err
			}
			redirs = append(redirs, r)
			continue
		case p.tok.Kind == TokLParen:
			return nil, p.unexpected()
		default:
			var n Node = cmd
			for _, r := range redirs {
				n = r.wrap(n)
			}
			return n, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
}

func assignmentOf(t Token) Assignment {
	n := len(t.Assign) + 1
	w := t.Word
	return Assignment{
		Name: t.Assign,
		Value: Word{
			Literal:      w.Literal[n:],
			Raw:          w.Raw[n:],
			Pos:          w.Pos + n,
			HasExpansion: w.HasExpansion,
			Expansion:    w.Expansion,
			Subst:        w.Subst,
		},
		Position: t.Pos,
	}
}

type redirSpec struct {
	dir    Direction
	fd     int
	target Word
	pos    int
}

func (r redirSpec) wrap(src Node) *Redirect {
	return &Redirect{Source: src, Direction: r.dir, FD: r.fd, Target: r.target, Position: r.pos}
}

// redirect parses [io-number] operator word.
func (p *parser) redirect() (redirSpec, error) {
	r := redirSpec{fd: FDDefault, pos: p.tok.Pos}
	if p.tok.Kind == TokIONumber {
		fd, err := strconv.Atoi(p.tok.Text)
		if err != nil || fd > 255 {
			return r, errorf(p.tok.Pos, "bad file descriptor %q", p.tok.Text)
		}
		r.fd = fd
		if err := p.advance(); err != nil {
			return r, err
		}
		if !p.tok.Kind.IsRedirect() {
			return r, p.unexpected()
		}
	}

	op := p.tok
	switch op.Kind {
	case TokGreat:
		r.dir = RedirOut
	case TokDGreat:
		r.dir = RedirAppend
	case TokLess:
		r.dir = RedirIn
	case TokGreatAnd:
		r.dir = RedirDupOut
	case TokLessAnd:
		r.dir = RedirDupIn
	case TokAndGreat, TokAndDGreat:
		if r.fd != FDDefault {
			return r, errorf(op.Pos, "file descriptor before %s", op.Kind)
		}
		r.dir = RedirOut
		if op.Kind == TokAndDGreat {
			r.dir = RedirAppend
		}
		r.fd = FDBoth
	}
	if err := p.advance(); err != nil {
		return r, err
	}
	if p.tok.Kind != TokWord {
		return r, errorf(op.Pos, "expected a redirection target after %s", op.Kind)
	}
	r.target = *p.tok.Word
	if err := p.advance(); err != nil {
		return r, err
	}
	return r, nil
}

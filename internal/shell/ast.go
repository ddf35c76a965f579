package shell

// ExpansionKind classifies the strongest form of runtime expansion found in a
// Word. The ordering is significant: a higher value dominates a lower one when
// a word contains several expansions.
type ExpansionKind int

const (
	// ExpansionNone means the word's value is exactly its literal text.
	ExpansionNone ExpansionKind = iota
	// ExpansionVariable covers $VAR, ${VAR}, $((...)), special parameters and
	// any literal '$' that survived quoting.
	ExpansionVariable
	// ExpansionCommandSubstitution covers $(...).
	ExpansionCommandSubstitution
	// ExpansionBacktick covers `...`.
	ExpansionBacktick
)

// String returns the string representation of an ExpansionKind.
func (k ExpansionKind) String() string {
	switch k {
	case ExpansionNone:
		return "none"
	case ExpansionVariable:
		return "variable"
	case ExpansionCommandSubstitution:
		return "command-substitution"
	case ExpansionBacktick:
		return "backtick"
	default:
		return unknownStr
	}
}

// Word is a single shell word.
//
// Any Literal containing '$' or '`' has HasExpansion set, even when the
// character was quoted. The engine never trusts such a word.
type Word struct {
	// Literal is the word after quote removal. Expansions are kept verbatim.
	Literal string
	// Raw is the source text of the word, quotes included.
	Raw string
	// Pos is the byte offset of the word in the original command string.
	Pos int
	// HasExpansion reports whether the runtime value may differ from Literal.
	HasExpansion bool
	// Expansion is the strongest expansion kind found in the word.
	Expansion ExpansionKind
	// HasGlob reports an unquoted '*', '?' or '[...]' that pathname
	// expansion may rewrite at runtime.
	HasGlob bool
	// Subst holds the parsed bodies of command substitutions in the word,
	// in source order.
	Subst []*Subshell
}

// markExpansion records an expansion of kind k.
func (w *Word) markExpansion(k ExpansionKind) {
	w.HasExpansion = true
	if k > w.Expansion {
		w.Expansion = k
	}
}

// Node is implemented by every AST node type. The set of implementations is
// closed: Command, Pipeline, List, Subshell and Redirect.
type Node interface {
	// Pos returns the byte offset of the node in the original command string.
	Pos() int
	node()
}

// Assignment is a NAME=value prefix of a simple command.
type Assignment struct {
	Name  string
	Value Word
	// Position is the byte offset of the assignment.
	Position int
}

// Command is a simple command. Name is the zero Word when the command consists
// of assignments only.
type Command struct {
	Name        Word
	Args        []Word
	Assignments []Assignment
	Position    int
}

// HasName reports whether the command names a program to run.
func (c *Command) HasName() bool { return c.Name.Raw != "" }

// Operator joins the members of a List.
type Operator int

const (
	// OpSeq is ';' or a newline.
	OpSeq Operator = iota
	// OpAnd is '&&'.
	OpAnd
	// OpOr is '||'.
	OpOr
)

// String returns the shell spelling of the operator.
func (o Operator) String() string {
	switch o {
	case OpSeq:
		return ";"
	case OpAnd:
		return "&&"
	case OpOr:
		return "||"
	default:
		return unknownStr
	}
}

// Pipeline is two or more stages joined by '|'. Each stage is a *Command,
// *Subshell or *Redirect.
type Pipeline struct {
	Stages   []Node
	Position int
}

// List is a sequence of pipelines or commands. len(Operators) is always
// len(Members)-1; Operators[i] joins Members[i] and Members[i+1].
type List struct {
	Members   []Node
	Operators []Operator
	Position  int
}

// SubshellKind records how a Subshell was written.
type SubshellKind int

const (
	// SubshellGroup is ( ... ).
	SubshellGroup SubshellKind = iota
	// SubshellDollar is $( ... ).
	SubshellDollar
	// SubshellBacktick is ` ... `.
	SubshellBacktick
)

// String returns the string representation of a SubshellKind.
func (k SubshellKind) String() string {
	switch k {
	case SubshellGroup:
		return "group"
	case SubshellDollar:
		return "dollar"
	case SubshellBacktick:
		return "backtick"
	default:
		return unknownStr
	}
}

// Subshell is a parenthesized group or the body of a command substitution.
type Subshell struct {
	Body     Node
	Kind     SubshellKind
	Position int
}

// Direction is the data direction of a redirection.
type Direction int

const (
	// RedirOut is '>' (or '&>' when FD is FDBoth).
	RedirOut Direction = iota
	// RedirAppend is '>>' (or '&>>' when FD is FDBoth).
	RedirAppend
	// RedirIn is '<'.
	RedirIn
	// RedirDupOut is '>&'.
	RedirDupOut
	// RedirDupIn is '<&'.
	RedirDupIn
)

// String returns the shell spelling of the direction.
func (d Direction) String() string {
	switch d {
	case RedirOut:
		return ">"
	case RedirAppend:
		return ">>"
	case RedirIn:
		return "<"
	case RedirDupOut:
		return ">&"
	case RedirDupIn:
		return "<&"
	default:
		return unknownStr
	}
}

// Writes reports whether the redirection can create or modify its target.
func (d Direction) Writes() bool {
	return d == RedirOut || d == RedirAppend || d == RedirDupOut
}

const (
	// FDDefault means no explicit descriptor was written.
	FDDefault = -1
	// FDBoth is used for '&>' and '&>>', which redirect stdout and stderr.
	FDBoth = -2
)

// Redirect applies one redirection to Source. Multiple redirections on the
// same command nest, innermost first in source order.
type Redirect struct {
	Source    Node
	Direction Direction
	FD        int
	Target    Word
	Position  int
}

func (n *Command) Pos() int  { return n.Position }
func (n *Pipeline) Pos() int { return n.Position }
func (n *List) Pos() int     { return n.Position }
func (n *Subshell) Pos() int { return n.Position }
func (n *Redirect) Pos() int { return n.Position }

func (*Command) node()  {}
func (*Pipeline) node() {}
func (*List) node()     {}
func (*Subshell) node() {}
func (*Redirect) node() {}

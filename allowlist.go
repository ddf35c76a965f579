package cmdpolicy

import (
	"errors"
	"fmt"

	"github.com/gobwas/glob"
	"github.com/mattn/go-shellwords"

	"github.com/zhangyunhao116/cmdpolicy/internal/shell"
)

// allowPattern is one compiled allowlist entry: a glob per shell word.
type allowPattern struct {
	source string
	words  []glob.Glob
}

// compileAllowPattern splits pattern into shell words and compiles each word
// as a glob. Patterns may not contain shell operators or expansions.
func compileAllowPattern(pattern string) (allowPattern, error) {
	p := shellwords.NewParser()
	words, err := p.Parse(pattern)
	if err != nil {
		return allowPattern{}, fmt.Errorf("pattern %q: %w", pattern, err)
	}
	if p.Position >= 0 {
		return allowPattern{}, fmt.Errorf("pattern %q: shell operators are not allowed", pattern)
	}
	if len(words) == 0 {
		return allowPattern{}, errors.New("pattern must not be empty")
	}
	ap := allowPattern{source: pattern, words: make([]glob.Glob, 0, len(words))}
	for _, w := range words {
		g, err := glob.Compile(w)
		if err != nil {
			return allowPattern{}, fmt.Errorf("pattern %q: word %q: %w", pattern, w, err)
		}
		ap.words = append(ap.words, g)
	}
	return ap, nil
}

func (ap allowPattern) match(argv []string) bool {
	if len(argv) != len(ap.words) {
		return false
	}
	for i, g := range ap.words {
		if !g.Match(argv[i]) {
			return false
		}
	}
	return true
}

// literalArgv returns the literal words of n if n is exactly one simple
// command with a name, no assignments, no redirections, no expansion and
// no unquoted glob.
func literalArgv(n shell.Node) ([]string, bool) {
	cmd, ok := n.(*shell.Command)
	if !ok || !cmd.HasName() || len(cmd.Assignments) > 0 {
		return nil, false
	}
	if cmd.Name.HasExpansion || cmd.Name.HasGlob {
		return nil, false
	}
	argv := make([]string, 0, 1+len(cmd.Args))
	argv = append(argv, cmd.Name.Literal)
	for _, a := range cmd.Args {
		if a.HasExpansion || a.HasGlob {
			return nil, false
		}
		argv = append(argv, a.Literal)
	}
	return argv, true
}

// allowlisted returns the allowlist pattern matched by n.
func (c *compiledPolicy) allowlisted(n shell.Node) (string, bool) {
	argv, ok := literalArgv(n)
	if !ok {
		return "", false
	}
	for _, ap := range c.allowlist {
		if ap.match(argv) {
			return ap.source, true
		}
	}
	return "", false
}

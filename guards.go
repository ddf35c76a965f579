package cmdpolicy

import (
	"fmt"
	"strings"

	"github.com/zhangyunhao116/cmdpolicy/internal/shell"
)

// Guard priorities. Lower values win; the verdict reports the
// highest-priority guard that fired anywhere in the tree.
const (
	prioUnknown = iota
	prioExpansion
	prioIndirect
	prioDestructive
	prioRedirect
)

// walker visits every node and word of an AST once and records the
// highest-priority guard hit. Ties go to the earliest source position.
type walker struct {
	c       *compiledPolicy
	found   bool
	prio    int
	pos     int
	verdict Verdict
}

func (w *walker) hit(prio, pos int, v Verdict) {
	if !w.found || prio < w.prio || (prio == w.prio && pos < w.pos) {
		w.found, w.prio, w.pos, w.verdict = true, prio, pos, v
	}
}

// classifyNode runs every guard over the tree rooted at n.
func (c *compiledPolicy) classifyNode(n shell.Node) Verdict {
	w := &walker{c: c}
	w.node(n)
	if !w.found {
		return allowed()
	}
	return w.verdict
}

func (w *walker) node(n shell.Node) {
	switch n := n.(type) {
	case *shell.Command:
		w.command(n)
	case *shell.Pipeline:
		for _, s := range n.Stages {
			w.node(s)
		}
	case *shell.List:
		for _, m := range n.Members {
			w.node(m)
		}
	case *shell.Subshell:
		w.node(n.Body)
	case *shell.Redirect:
		w.node(n.Source)
		w.redirect(n)
	case nil:
		w.hit(prioUnknown, 0, blocked(RuleUnknownNode, "unsupported syntax", "nil node"))
	default:
		w.hit(prioUnknown, n.Pos(), blocked(RuleUnknownNode, "unsupported syntax", fmt.Sprintf("%T", n)))
	}
}

// word applies the expansion guard and descends into substitution bodies.
func (w *walker) word(wd shell.Word) {
	if wd.HasExpansion {
		w.hit(prioExpansion, wd.Pos, blocked(RuleExpansion, ReasonDynamic, wd.Raw))
	}
	for _, s := range wd.Subst {
		w.node(s)
	}
}

func (w *walker) command(cmd *shell.Command) {
	for _, a := range cmd.Assignments {
		w.word(a.Value)
		if _, ok := w.c.envHijack[a.Name]; ok {
			w.hit(prioIndirect, a.Position, blocked(RuleEnvHijack, "environment hijack via "+a.Name, a.Name+"="+a.Value.Raw))
		}
	}
	if !cmd.HasName() {
		return
	}
	w.word(cmd.Name)
	for _, a := range cmd.Args {
		w.word(a)
	}
	if cmd.Name.HasExpansion {
		return
	}
	if cmd.Name.HasGlob {
		w.hit(prioExpansion, cmd.Name.Pos, blocked(RuleGlob, ReasonGlob, cmd.Name.Raw))
		return
	}

	base := baseCommand(cmd.Name.Literal)
	args := make([]string, len(cmd.Args))
	for i, a := range cmd.Args {
		args[i] = a.Literal
	}
	w.indirect(base, args, cmd.Name.Pos)
	w.destructive(base, args, cmd.Name.Pos)
	w.globTargets(base, cmd.Args)
}

// globTargets blocks write operands that pathname expansion could redirect
// to files the sensitive-path check never saw.
func (w *walker) globTargets(base string, args []shell.Word) {
	lits := make([]string, len(args))
	globbed := make(map[string]shell.Word)
	for i, a := range args {
		lits[i] = a.Literal
		if a.HasGlob {
			globbed[a.Literal] = a
		}
	}
	if len(globbed) == 0 {
		return
	}
	for _, t := range writeTargets(base, lits) {
		if a, ok := globbed[t]; ok {
			w.hit(prioExpansion, a.Pos, blocked(RuleGlob, ReasonGlob, a.Raw))
			return
		}
	}
}

func (w *walker) indirect(base string, args []string, pos int) {
	family := interpreterFamily(base)
	_, direct := w.c.indirect[base]
	_, viaFamily := w.c.indirect[family]
	if direct || viaFamily {
		w.hit(prioIndirect, pos, blocked(RuleIndirectExecutor, "indirect executor "+base, ""))
		return
	}
	if reason, ok := inlineCode(family, args); ok {
		w.hit(prioIndirect, pos, blocked(RuleIndirectExecutor, reason, ""))
	}
}

// inlineCode reports whether a JavaScript runtime is asked to run code given
// on the command line or read from stdin rather than a named script.
func inlineCode(family string, args []string) (string, bool) {
	switch family {
	case "node", "nodejs", "bun":
		for _, a := range args {
			switch {
			case a == "-e" || a == "--eval" || a == "-p" || a == "--print" ||
				strings.HasPrefix(a, "--eval=") || strings.HasPrefix(a, "--print="):
				return "inline code execution via " + family, true
			case a == "-v" || a == "--version" || a == "-h" || a == "--help":
				return "", false
			case a == "-" || !strings.HasPrefix(a, "-"):
				if a == "-" {
					return family + " reading code from stdin", true
				}
				return "", false
			}
		}
		if family == "bun" {
			return "", false
		}
		return family + " without a script reads code from stdin", true
	case "deno":
		switch sub, _ := subcommand(args); sub {
		case "eval", "repl", "":
			return "inline code execution via deno", true
		}
	}
	return "", false
}

func (w *walker) destructive(base string, args []string, pos int) {
	if _, ok := w.c.alwaysDeny[base]; ok {
		w.hit(prioDestructive, pos, blocked(RuleAlwaysDeny, base+" is always denied", ""))
	}
	for _, r := range w.c.rules[ruleKey(base)] {
		if reason, bad := r.Predicate(args); bad {
			w.hit(prioDestructive, pos, blocked(r.Rule, reason, ""))
			break
		}
	}
	if deny, ok := w.c.denyArgs[base]; ok {
		for _, a := range args {
			if _, bad := deny[a]; bad {
				w.hit(prioDestructive, pos, blocked(RuleDenyArgs, "denied argument "+a+" for "+base, ""))
				break
			}
		}
	}
	for _, t := range writeTargets(base, args) {
		if pattern, ok := w.c.isSensitive(t); ok {
			w.hit(prioDestructive, pos, blocked("sensitive-write", ReasonWriteTarget, t+" matches "+pattern))
			break
		}
	}
}

func (w *walker) redirect(r *shell.Redirect) {
	w.word(r.Target)
	if r.Target.HasExpansion {
		return
	}
	if r.Target.HasGlob && r.Direction.Writes() {
		w.hit(prioExpansion, r.Target.Pos, blocked(RuleGlob, ReasonGlob, r.Target.Raw))
		return
	}
	t := r.Target.Literal
	if !r.Direction.Writes() || (r.Direction == shell.RedirDupOut && isFDTarget(t)) {
		return
	}
	if pattern, ok := w.c.isSensitive(t); ok {
		w.hit(prioRedirect, r.Target.Pos, blocked(RuleRedirect, ReasonRedirectTarget, t+" matches "+pattern))
	}
}

func isFDTarget(s string) bool {
	if s == "-" {
		return true
	}
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

// destinationWriters write only to their last operand or -t directory.
var destinationWriters = map[string]bool{
	"cp": true, "mv": true, "install": true, "ln": true, "rsync": true,
}

// operandWriters may modify every operand.
var operandWriters = map[string]bool{
	"tee": true, "truncate": true, "touch": true, "rm": true, "rmdir": true,
	"unlink": true, "mkdir": true,
}

// writeTargets returns the arguments of a file-writing command that name
// files it may create or modify.
func writeTargets(base string, args []string) []string {
	switch {
	case destinationWriters[base]:
		var targets []string
		for i, a := range args {
			switch {
			case a == "-t" && i+1 < len(args):
				targets = append(targets, args[i+1])
			case strings.HasPrefix(a, "--target-directory="):
				targets = append(targets, strings.TrimPrefix(a, "--target-directory="))
			}
		}
		if ops := operands(args); len(ops) > 0 {
			targets = append(targets, ops[len(ops)-1])
		}
		return targets
	case operandWriters[base]:
		return operands(args)
	case base == "sed" && sedInPlace(args):
		return operands(args)
	}
	return nil
}

// operands returns the arguments that are not flags.
func operands(args []string) []string {
	var out []string
	for i, a := range args {
		if a == "--" {
			return append(out, args[i+1:]...)
		}
		if !strings.HasPrefix(a, "-") || a == "-" {
			out = append(out, a)
		}
	}
	return out
}

func sedInPlace(args []string) bool {
	for _, a := range args {
		if a == "--in-place" || strings.HasPrefix(a, "--in-place=") || strings.ContainsRune(shortFlags(a), 'i') {
			return true
		}
	}
	return false
}

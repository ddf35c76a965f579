package cmdpolicy

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/zhangyunhao116/cmdpolicy/internal/shell"
)

// Engine classifies shell commands against a compiled Policy.
//
// An Engine is immutable after NewEngine returns and is safe for concurrent
// use. Every call parses and classifies from scratch; nothing is cached
// between calls.
type Engine struct {
	policy *Policy
	c      *compiledPolicy
	logger *slog.Logger
}

// NewEngine validates and compiles p. A nil p selects DefaultPolicy. The
// engine keeps its own deep copy; later changes to p are not observed.
func NewEngine(p *Policy, opts ...Option) (*Engine, error) {
	if p == nil {
		p = DefaultPolicy()
	}
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	cp := p.Clone()
	cp.Allowlist = append(cp.Allowlist, o.allowlist...)
	cp.IndirectExecutors = append(cp.IndirectExecutors, o.indirect...)
	if o.maxDepth != 0 {
		cp.MaxDepth = o.maxDepth
	}
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	c, err := compile(cp)
	if err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{policy: cp, c: c, logger: logger}, nil
}

// Policy returns a deep copy of the policy the engine was built from.
func (e *Engine) Policy() *Policy {
	return e.policy.Clone()
}

// Classify runs the rule engine over command and returns its verdict.
// Parse failures and depth overflow are reported as Blocked with rule
// RuleUnparseable and the parser message in Detail.
func (e *Engine) Classify(command string) Verdict {
	_, v := e.classify(command)
	return v
}

// classify parses command and runs every guard. The returned node is nil
// when parsing failed.
func (e *Engine) classify(command string) (n shell.Node, v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("classification panicked", "command", command, "panic", r)
			n, v = nil, blocked(RuleUnparseable, "internal error", fmt.Sprint(r))
		}
	}()

	n, err := shell.Parse(command, shell.WithMaxDepth(e.c.maxDepth))
	if err != nil {
		return nil, blocked(RuleUnparseable, ReasonUnparseable, err.Error())
	}
	return n, e.c.classifyNode(n)
}

// QuickReject reports whether the pre-filter rejects command. A false result
// does not mean the command is safe.
func (e *Engine) QuickReject(command string) bool {
	_, rejected := prefilter(command, e.c.maxLength)
	return rejected
}

// Evaluate runs the pre-filter, the rule engine and the autonomy classifier
// over command in a single pass.
func (e *Engine) Evaluate(command string) Assessment {
	a := Assessment{Command: command}
	if detail, rejected := prefilter(command, e.c.maxLength); rejected {
		a.Verdict = blocked(RulePrefilter, ReasonPrefilter, detail)
		a.Decision = Blocked
		e.logAssessment(a)
		return a
	}

	n, v := e.classify(command)
	a.Verdict = v
	switch {
	case v.Blocked():
		a.Decision = Blocked
	default:
		if _, ok := e.c.allowlisted(n); ok {
			a.Decision = Auto
		} else {
			a.Decision = Manual
		}
	}
	e.logAssessment(a)
	return a
}

// Decide returns the autonomy decision for command.
func (e *Engine) Decide(command string) AutonomyDecision {
	return e.Evaluate(command).Decision
}

// Explain returns the reason command is blocked. The boolean is false when
// the command is not blocked.
func (e *Engine) Explain(command string) (string, bool) {
	a := e.Evaluate(command)
	if a.Decision != Blocked {
		return "", false
	}
	return a.Verdict.Reason, true
}

func (e *Engine) logAssessment(a Assessment) {
	if a.Decision == Blocked {
		e.logger.Debug("command blocked",
			"command", a.Command, "rule", a.Verdict.Rule, "reason", a.Verdict.Reason, "detail", a.Verdict.Detail)
		return
	}
	e.logger.Debug("command classified", "command", a.Command, "decision", a.Decision.String())
}

var (
	defaultEngineOnce sync.Once
	defaultEngine     *Engine
)

// DefaultEngine returns the shared engine built from DefaultPolicy.
func DefaultEngine() *Engine {
	defaultEngineOnce.Do(func() {
		e, err := NewEngine(DefaultPolicy())
		if err != nil {
			panic("cmdpolicy: default policy is invalid: " + err.Error())
		}
		defaultEngine = e
	})
	return defaultEngine
}

// Classify classifies command with the default engine.
func Classify(command string) Verdict { return DefaultEngine().Classify(command) }

// Decide returns the autonomy decision for command under the default engine.
func Decide(command string) AutonomyDecision { return DefaultEngine().Decide(command) }

// Explain returns the reason command is blocked under the default engine.
func Explain(command string) (string, bool) { return DefaultEngine().Explain(command) }

// QuickReject reports whether the default pre-filter rejects command.
func QuickReject(command string) bool {
	_, rejected := prefilter(command, DefaultMaxLength)
	return rejected
}

// Evaluate evaluates command with the default engine.
func Evaluate(command string) Assessment { return DefaultEngine().Evaluate(command) }

package cmdpolicy

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/zhangyunhao116/cmdpolicy/internal/pathutil"
	"github.com/zhangyunhao116/cmdpolicy/internal/shell"
)

const (
	// DefaultMaxDepth is the default limit on subshell and substitution nesting.
	DefaultMaxDepth = shell.DefaultMaxDepth

	// DefaultMaxLength is the default limit on command length in bytes.
	DefaultMaxLength = 16 * 1024
)

// Policy is the externally configurable rule table. A Policy is validated and
// compiled by NewEngine; the engine never observes later changes to it.
type Policy struct {
	// MaxDepth limits subshell and command substitution nesting. It must be
	// within [1, 32].
	MaxDepth int `toml:"max_depth" yaml:"max_depth" json:"max_depth" mapstructure:"max_depth"`

	// MaxLength limits command length in bytes. Longer input is rejected by
	// the pre-filter.
	MaxLength int `toml:"max_length" yaml:"max_length" json:"max_length" mapstructure:"max_length"`

	// IndirectExecutors lists programs that can run arbitrary text. A command
	// naming one of them is always blocked.
	IndirectExecutors []string `toml:"indirect_executors" yaml:"indirect_executors" json:"indirect_executors" mapstructure:"indirect_executors"`

	// EnvHijack lists environment variable names that must not be set by an
	// assignment prefix.
	EnvHijack []string `toml:"env_hijack" yaml:"env_hijack" json:"env_hijack" mapstructure:"env_hijack"`

	// SensitivePaths lists glob patterns for paths that must not be the
	// target of a redirection or a file-writing command.
	SensitivePaths []string `toml:"sensitive_paths" yaml:"sensitive_paths" json:"sensitive_paths" mapstructure:"sensitive_paths"`

	// SafeTargets lists glob patterns exempt from SensitivePaths, such as
	// /dev/null.
	SafeTargets []string `toml:"safe_targets" yaml:"safe_targets" json:"safe_targets" mapstructure:"safe_targets"`

	// Allowlist lists command patterns eligible for unattended execution.
	// Each pattern is split into shell words; each word is a glob matched
	// against the corresponding literal word of the command.
	Allowlist []string `toml:"allowlist" yaml:"allowlist" json:"allowlist" mapstructure:"allowlist"`

	// AlwaysDeny lists programs that are blocked regardless of arguments.
	AlwaysDeny []string `toml:"always_deny" yaml:"always_deny" json:"always_deny" mapstructure:"always_deny"`

	// DenyArgs maps a program name to literal arguments that block it.
	DenyArgs map[string][]string `toml:"deny_args" yaml:"deny_args" json:"deny_args" mapstructure:"deny_args"`

	// Rules is the destructive-binary table. It is code, not data, and is not
	// serialized.
	Rules []RuleEntry `toml:"-" yaml:"-" json:"-" mapstructure:"-"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() *Policy {
	sensitive := []string{
		"/etc",
		"/etc/**",
		"**.service",
		"**.cron",
		"/bin/**",
		"/sbin/**",
		"/usr/bin/**",
		"/usr/sbin/**",
		"/boot/**",
		"/var/spool/cron/**",
		"/dev/**",
	}
	sensitive = append(sensitive, pathutil.DangerousPatterns()...)

	return &Policy{
		MaxDepth:          DefaultMaxDepth,
		MaxLength:         DefaultMaxLength,
		IndirectExecutors: defaultIndirectExecutors(),
		EnvHijack: []string{
			"LD_PRELOAD", "LD_LIBRARY_PATH", "LD_AUDIT", "DYLD_INSERT_LIBRARIES",
			"DYLD_LIBRARY_PATH", "PATH", "BASH_ENV", "ENV", "IFS", "PROMPT_COMMAND",
			"SHELLOPTS", "BASHOPTS", "PS4", "GIT_SSH_COMMAND", "GIT_EXTERNAL_DIFF",
			"GIT_PAGER", "GIT_EDITOR", "GIT_EXEC_PATH", "PAGER", "EDITOR", "VISUAL",
			"PYTHONSTARTUP", "PYTHONPATH", "NODE_OPTIONS", "PERL5OPT", "RUBYOPT",
		},
		SensitivePaths: sensitive,
		SafeTargets: []string{
			"/dev/null", "/dev/zero", "/dev/stdin", "/dev/stdout", "/dev/stderr",
			"/dev/tty", "/dev/fd/*", "/dev/random", "/dev/urandom",
		},
		Allowlist: []string{
			"ls",
			"ls -[alhtr1]",
			"ls -[alhtr1][alhtr1]",
			"ls -[alhtr1][alhtr1][alhtr1]",
			"pwd",
			"git status",
			"git status {-s,-sb,--short}",
			"git log --oneline",
			"git diff",
			"git branch",
			"kubectl get [!-]*",
			"kubectl get [!-]* {-n,--namespace} [!-]*",
			"kubectl get [!-]* {-A,--all-namespaces}",
			"kubectl get [!-]* -o wide",
			"docker ps",
			"docker ps -a",
			"docker images",
			"helm list",
			"helm list {-A,--all-namespaces}",
			"helm list {-n,--namespace} [!-]*",
			"minikube status",
			"cat {package.json,README.md,README,go.mod,Cargo.toml,pyproject.toml,requirements.txt,Makefile,Dockerfile,.gitignore}",
		},
		Rules: DefaultRules(),
	}
}

// defaultIndirectExecutors returns the conservative union of programs that
// execute or decode text the engine cannot inspect.
func defaultIndirectExecutors() []string {
	return []string{
		// shells and interpreters
		"sh", "bash", "zsh", "dash", "ksh", "fish", "csh", "tcsh", "busybox",
		"python", "python2", "python3", "pypy", "pypy3", "perl", "ruby", "php", "lua",
		"awk", "gawk", "mawk", "nawk",
		// schedulers and service managers
		"crontab", "at", "batch", "systemctl", "service",
		// privilege and context switching
		"sudo", "su", "doas", "pkexec", "runuser", "chroot", "nsenter", "unshare", "setsid",
		// wrappers that run their arguments
		"env", "exec", "eval", "command", "builtin", "source", ".", "xargs",
		"nohup", "time", "timeout", "nice", "ionice", "stdbuf", "watch", "flock",
		"script", "ssh", "strace", "ltrace", "gdb",
		// encoders and formatters used to smuggle payloads
		"printenv", "base64", "openssl", "printf",
	}
}

// Clone returns a deep copy of the policy. Rule predicates are shared.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	cp := *p
	cp.IndirectExecutors = slices.Clone(p.IndirectExecutors)
	cp.EnvHijack = slices.Clone(p.EnvHijack)
	cp.SensitivePaths = slices.Clone(p.SensitivePaths)
	cp.SafeTargets = slices.Clone(p.SafeTargets)
	cp.Allowlist = slices.Clone(p.Allowlist)
	cp.AlwaysDeny = slices.Clone(p.AlwaysDeny)
	cp.Rules = slices.Clone(p.Rules)
	if p.DenyArgs != nil {
		cp.DenyArgs = make(map[string][]string, len(p.DenyArgs))
		for k, v := range p.DenyArgs {
			cp.DenyArgs[k] = slices.Clone(v)
		}
	}
	return &cp
}

// Validate checks the policy for errors and returns a descriptive error if
// any field is invalid. The returned error wraps ErrPolicyInvalid.
func (p *Policy) Validate() error {
	var errs []string

	if p.MaxDepth < 1 || p.MaxDepth > shell.MaxDepthLimit {
		errs = append(errs, fmt.Sprintf("MaxDepth: %d must be within [1, %d]", p.MaxDepth, shell.MaxDepthLimit))
	}
	if p.MaxLength <= 0 {
		errs = append(errs, "MaxLength: must be > 0")
	}

	errs = validateNames(errs, "IndirectExecutors", p.IndirectExecutors)
	errs = validateNames(errs, "AlwaysDeny", p.AlwaysDeny)
	for i, name := range p.EnvHijack {
		if !isEnvName(name) {
			errs = append(errs, fmt.Sprintf("EnvHijack[%d]: %q is not a valid variable name", i, name))
		}
	}

	errs = validatePatterns(errs, "SensitivePaths", p.SensitivePaths)
	errs = validatePatterns(errs, "SafeTargets", p.SafeTargets)

	for i, pattern := range p.Allowlist {
		if _, err := compileAllowPattern(pattern); err != nil {
			errs = append(errs, fmt.Sprintf("Allowlist[%d]: %v", i, err))
		}
	}

	for _, name := range slices.Sorted(maps.Keys(p.DenyArgs)) {
		if err := validateName(name); err != nil {
			errs = append(errs, fmt.Sprintf("DenyArgs[%q]: %v", name, err))
		}
		for i, arg := range p.DenyArgs[name] {
			if arg == "" || pathutil.ContainsNullByte(arg) {
				errs = append(errs, fmt.Sprintf("DenyArgs[%q][%d]: must be a non-empty literal", name, i))
			}
		}
	}

	for i, r := range p.Rules {
		if err := validateName(r.Binary); err != nil {
			errs = append(errs, fmt.Sprintf("Rules[%d].Binary: %v", i, err))
		}
		if r.Predicate == nil {
			errs = append(errs, fmt.Sprintf("Rules[%d].Predicate: must not be nil", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrPolicyInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// validateName checks that name is usable as a program base name.
func validateName(name string) error {
	switch {
	case name == "":
		return errors.New("must not be empty")
	case pathutil.ContainsNullByte(name):
		return fmt.Errorf("%q must not contain null bytes", name)
	case strings.ContainsAny(name, "/ \t\n"):
		return fmt.Errorf("%q must be a base name without slashes or whitespace", name)
	}
	return nil
}

func validateNames(errs []string, field string, names []string) []string {
	for i, name := range names {
		if err := validateName(name); err != nil {
			errs = append(errs, fmt.Sprintf("%s[%d]: %v", field, i, err))
		}
	}
	return errs
}

func validatePatterns(errs []string, field string, patterns []string) []string {
	for i, pattern := range patterns {
		if pathutil.ContainsNullByte(pattern) {
			errs = append(errs, fmt.Sprintf("%s[%d]: must not contain null bytes", field, i))
			continue
		}
		if _, err := pathutil.Compile([]string{pattern}); err != nil {
			errs = append(errs, fmt.Sprintf("%s[%d]: %v", field, i, err))
		}
	}
	return errs
}

func isEnvName(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// compiledPolicy is the immutable, lookup-friendly form of a Policy.
type compiledPolicy struct {
	maxDepth   int
	maxLength  int
	indirect   map[string]struct{}
	envHijack  map[string]struct{}
	alwaysDeny map[string]struct{}
	denyArgs   map[string]map[string]struct{}
	rules      map[string][]RuleEntry
	sensitive  *pathutil.Matcher
	safe       *pathutil.Matcher
	allowlist  []allowPattern
}

// compile builds a compiledPolicy. p must already be valid.
func compile(p *Policy) (*compiledPolicy, error) {
	c := &compiledPolicy{
		maxDepth:   p.MaxDepth,
		maxLength:  p.MaxLength,
		indirect:   toSet(p.IndirectExecutors),
		envHijack:  toSet(p.EnvHijack),
		alwaysDeny: toSet(p.AlwaysDeny),
		denyArgs:   make(map[string]map[string]struct{}, len(p.DenyArgs)),
		rules:      make(map[string][]RuleEntry),
	}
	for name, args := range p.DenyArgs {
		c.denyArgs[name] = toSet(args)
	}
	for _, r := range p.Rules {
		c.rules[r.Binary] = append(c.rules[r.Binary], r)
	}

	var err error
	if c.sensitive, err = pathutil.Compile(p.SensitivePaths); err != nil {
		return nil, fmt.Errorf("%w: SensitivePaths: %w", ErrPolicyInvalid, err)
	}
	if c.safe, err = pathutil.Compile(p.SafeTargets); err != nil {
		return nil, fmt.Errorf("%w: SafeTargets: %w", ErrPolicyInvalid, err)
	}
	for _, pattern := range p.Allowlist {
		ap, err := compileAllowPattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: Allowlist: %w", ErrPolicyInvalid, err)
		}
		c.allowlist = append(c.allowlist, ap)
	}
	return c, nil
}

// isSensitive reports whether p matches a sensitive pattern and no safe one.
func (c *compiledPolicy) isSensitive(p string) (string, bool) {
	if _, ok := c.safe.Match(p); ok {
		return "", false
	}
	return c.sensitive.Match(p)
}

func toSet(items []string) map[string]struct{} {
	s := make(map[string]struct{}, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

package cmdpolicy

import (
	"fmt"
)

// unknownStr is the string representation for unknown enum values.
const unknownStr = "unknown"

// VerdictKind is the outcome of the rule engine.
type VerdictKind int

const (
	// VerdictBlocked means the command must not run. It is the zero value,
	// so an uninitialized Verdict is the safest outcome.
	VerdictBlocked VerdictKind = iota

	// VerdictAllowed means no guard fired anywhere in the command.
	VerdictAllowed
)

// String returns the string representation of a VerdictKind.
func (k VerdictKind) String() string {
	switch k {
	case VerdictBlocked:
		return "blocked"
	case VerdictAllowed:
		return "allowed"
	default:
		return unknownStr
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k VerdictKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *VerdictKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "blocked":
		*k = VerdictBlocked
	case "allowed":
		*k = VerdictAllowed
	default:
		return fmt.Errorf("cmdpolicy: unknown verdict kind %q", text)
	}
	return nil
}

// Verdict is the result of running the rule engine over one command.
type Verdict struct {
	// Kind is the verdict.
	Kind VerdictKind `json:"kind"`

	// Reason is a short human-readable explanation. Empty when allowed.
	Reason string `json:"reason,omitempty"`

	// Rule is the identifier of the guard or rule that fired.
	Rule string `json:"rule,omitempty"`

	// Detail carries extra context such as the parser error message or the
	// offending word.
	Detail string `json:"detail,omitempty"`
}

// Allowed reports whether the verdict is VerdictAllowed.
func (v Verdict) Allowed() bool { return v.Kind == VerdictAllowed }

// Blocked reports whether the verdict is anything other than VerdictAllowed.
func (v Verdict) Blocked() bool { return v.Kind != VerdictAllowed }

func (v Verdict) String() string {
	if v.Allowed() {
		return "allowed"
	}
	if v.Detail != "" {
		return fmt.Sprintf("blocked: %s (%s)", v.Reason, v.Detail)
	}
	return "blocked: " + v.Reason
}

func allowed() Verdict {
	return Verdict{Kind: VerdictAllowed}
}

func blocked(rule, reason, detail string) Verdict {
	return Verdict{Kind: VerdictBlocked, Rule: rule, Reason: reason, Detail: detail}
}

// AutonomyDecision is the disposition of a command.
type AutonomyDecision int

const (
	// Blocked means the command must be refused. It is the zero value.
	Blocked AutonomyDecision = iota

	// Manual means the command may run only after human confirmation.
	Manual

	// Auto means the command may run unattended and its outcome may be
	// persisted.
	Auto
)

// String returns the string representation of an AutonomyDecision.
func (d AutonomyDecision) String() string {
	switch d {
	case Blocked:
		return "blocked"
	case Manual:
		return "manual"
	case Auto:
		return "auto"
	default:
		return unknownStr
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d AutonomyDecision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *AutonomyDecision) UnmarshalText(text []byte) error {
	switch string(text) {
	case "blocked":
		*d = Blocked
	case "manual":
		*d = Manual
	case "auto":
		*d = Auto
	default:
		return fmt.Errorf("cmdpolicy: unknown decision %q", text)
	}
	return nil
}

// Assessment is the complete result of evaluating one command.
type Assessment struct {
	Command  string           `json:"command"`
	Verdict  Verdict          `json:"verdict"`
	Decision AutonomyDecision `json:"decision"`
}

// Rule identifiers reported in Verdict.Rule.
const (
	RulePrefilter        = "prefilter"
	RuleUnparseable      = "unparseable"
	RuleExpansion        = "expansion"
	RuleGlob             = "glob"
	RuleIndirectExecutor = "indirect-executor"
	RuleEnvHijack        = "env-hijack"
	RuleRedirect         = "redirect-target"
	RuleAlwaysDeny       = "always-deny"
	RuleDenyArgs         = "deny-args"
	RuleUnknownNode      = "unknown-node"
)

// Reasons that callers may match on.
const (
	ReasonDynamic        = "dynamic/expanded content"
	ReasonGlob           = "unquoted glob in command name or write target"
	ReasonUnparseable    = "unparseable"
	ReasonRedirectTarget = "sensitive redirect target"
	ReasonWriteTarget    = "sensitive write target"
	ReasonPrefilter      = "rejected by pre-filter"
)

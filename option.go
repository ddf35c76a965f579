package cmdpolicy

import (
	"context"
	"fmt"
	"log/slog"
)

// Option configures an Engine built by NewEngine.
type Option func(*engineOptions)

// engineOptions holds engine configuration applied via Option functions.
type engineOptions struct {
	logger    *slog.Logger
	allowlist []string
	indirect  []string
	maxDepth  int
}

// WithLogger sets the logger used for debug output. The default discards
// everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = l
	}
}

// WithAllowlist appends allowlist patterns to the policy.
func WithAllowlist(patterns ...string) Option {
	cpy := append([]string(nil), patterns...)
	return func(o *engineOptions) {
		o.allowlist = append(o.allowlist, cpy...)
	}
}

// WithIndirectExecutors appends program names to the indirect-executor set.
func WithIndirectExecutors(names ...string) Option {
	cpy := append([]string(nil), names...)
	return func(o *engineOptions) {
		o.indirect = append(o.indirect, cpy...)
	}
}

// WithMaxDepth overrides the policy's nesting limit. Zero keeps the policy
// value.
func WithMaxDepth(n int) Option {
	return func(o *engineOptions) {
		o.maxDepth = n
	}
}

// ApprovalCallback is invoked by a Gate when a command is classified Manual.
// The callback should prompt the user and return a decision.
type ApprovalCallback func(ctx context.Context, req ApprovalRequest) (ApprovalDecision, error)

// ApprovalRequest describes a command awaiting human confirmation.
type ApprovalRequest struct {
	// Command is the full command string.
	Command string

	// Reason explains why confirmation is needed.
	Reason string

	// Assessment is the engine's evaluation of the command.
	Assessment Assessment
}

// ApprovalDecision represents the user's response to an approval request.
type ApprovalDecision int

const (
	// approvalUnset is the zero value, treated as Deny for safety.
	// It is unexported to prevent direct use.
	approvalUnset ApprovalDecision = iota

	// Approve allows the command to run this one time.
	Approve

	// Deny rejects the command.
	Deny

	// ApproveSession allows the command for the lifetime of the Gate.
	ApproveSession
)

// String returns the string representation of an ApprovalDecision.
func (d ApprovalDecision) String() string {
	switch d {
	case approvalUnset:
		return "unset"
	case Approve:
		return "approve"
	case Deny:
		return "deny"
	case ApproveSession:
		return "approve_session"
	default:
		return unknownStr
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d ApprovalDecision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *ApprovalDecision) UnmarshalText(text []byte) error {
	switch string(text) {
	case "unset":
		*d = approvalUnset
	case "approve":
		*d = Approve
	case "deny":
		*d = Deny
	case "approve_session":
		*d = ApproveSession
	default:
		return fmt.Errorf("cmdpolicy: unknown approval decision %q", text)
	}
	return nil
}

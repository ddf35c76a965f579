package cmdpolicy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// GateConfig configures a Gate.
type GateConfig struct {
	// ApprovalCallback is consulted for Manual commands. When nil, Manual
	// commands are refused with a ManualCommandError.
	ApprovalCallback ApprovalCallback

	// Logger receives one record per authorization. If nil, slog.Default()
	// is used.
	Logger *slog.Logger

	// Now returns the current time. If nil, time.Now is used.
	Now func() time.Time
}

// Ticket records a command the Gate let through.
type Ticket struct {
	// ID uniquely identifies the authorization.
	ID string `json:"id"`

	// Command is the authorized command string.
	Command string `json:"command"`

	// Assessment is the engine evaluation the authorization was based on.
	Assessment Assessment `json:"assessment"`

	// Approval is the human decision for Manual commands. It is unset for
	// Auto commands.
	Approval ApprovalDecision `json:"approval"`

	// IssuedAt is the time of authorization.
	IssuedAt time.Time `json:"issued_at"`
}

// Persistable reports whether the outcome of running the ticket's command
// may be stored for later reuse. Auto commands always may; Manual commands
// only after a human approved them; Blocked commands never.
func (t *Ticket) Persistable() bool {
	if t == nil {
		return false
	}
	switch t.Assessment.Decision {
	case Auto:
		return true
	case Manual:
		return t.Approval == Approve || t.Approval == ApproveSession
	default:
		return false
	}
}

// Gate is the execution-layer front door: it refuses Blocked commands, asks
// for confirmation of Manual ones and passes Auto ones through. A Gate is
// safe for concurrent use.
type Gate struct {
	engine   atomic.Pointer[Engine]
	callback ApprovalCallback
	logger   *slog.Logger
	now      func() time.Time

	mu               sync.Mutex
	closed           bool
	sessionApprovals map[string]struct{} // commands approved for the session
}

// NewGate returns a Gate over e. A nil e selects DefaultEngine.
func NewGate(e *Engine, cfg GateConfig) *Gate {
	if e == nil {
		e = DefaultEngine()
	}
	g := &Gate{
		callback:         cfg.ApprovalCallback,
		logger:           cfg.Logger,
		now:              cfg.Now,
		sessionApprovals: make(map[string]struct{}),
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.now == nil {
		g.now = time.Now
	}
	g.engine.Store(e)
	return g
}

// Engine returns the engine currently used for evaluation.
func (g *Gate) Engine() *Engine {
	return g.engine.Load()
}

// SetEngine replaces the engine used for subsequent authorizations. Calls
// already in flight keep the engine they started with. Session approvals
// are kept.
func (g *Gate) SetEngine(e *Engine) error {
	if e == nil {
		return ErrNilEngine
	}
	g.engine.Store(e)
	return nil
}

// Authorize evaluates command and decides whether it may run.
//
// Blocked commands return a *BlockedCommandError. Manual commands are let
// through if they were approved for the session or the approval callback
// approves them; otherwise a *ManualCommandError is returned. Auto commands
// are always let through.
func (g *Gate) Authorize(ctx context.Context, command string) (*Ticket, error) {
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return nil, ErrGateClosed
	}

	a := g.engine.Load().Evaluate(command)
	t := &Ticket{
		ID:         uuid.NewString(),
		Command:    command,
		Assessment: a,
		IssuedAt:   g.now(),
	}

	switch a.Decision {
	case Auto:
		g.logOutcome(t, "authorized")
		return t, nil
	case Manual:
		approval, err := g.confirm(ctx, command, a)
		if err != nil {
			g.logOutcome(t, "refused", "error", err)
			return nil, err
		}
		t.Approval = approval
		g.logOutcome(t, "authorized")
		return t, nil
	default:
		g.logOutcome(t, "refused")
		return nil, &BlockedCommandError{Command: command, Verdict: a.Verdict}
	}
}

// confirm obtains a human decision for a Manual command.
func (g *Gate) confirm(ctx context.Context, command string, a Assessment) (ApprovalDecision, error) {
	g.mu.Lock()
	_, cached := g.sessionApprovals[command]
	g.mu.Unlock()
	if cached {
		return ApproveSession, nil
	}

	const reason = "not on the unattended allowlist"
	if g.callback == nil {
		return approvalUnset, &ManualCommandError{Command: command, Reason: "no approval callback configured"}
	}
	if err := ctx.Err(); err != nil {
		return approvalUnset, fmt.Errorf("%w: %w", &ManualCommandError{Command: command, Reason: reason}, err)
	}
	decision, err := g.callback(ctx, ApprovalRequest{
		Command:    command,
		Reason:     reason,
		Assessment: a,
	})
	if err != nil {
		return approvalUnset, fmt.Errorf("%w: %w", &ManualCommandError{Command: command, Reason: reason}, err)
	}
	switch decision {
	case Approve:
	case ApproveSession:
		g.mu.Lock()
		g.sessionApprovals[command] = struct{}{}
		g.mu.Unlock()
	default:
		// Unknown and unset decisions are treated as deny.
		return approvalUnset, &ManualCommandError{Command: command, Reason: "denied by user"}
	}
	return decision, nil
}

// Close releases session approvals. Authorize fails with ErrGateClosed
// afterwards. Close is idempotent.
func (g *Gate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	clear(g.sessionApprovals)
	return nil
}

func (g *Gate) logOutcome(t *Ticket, outcome string, extra ...any) {
	attrs := []any{
		"command", t.Command,
		"decision", t.Assessment.Decision.String(),
		"rule", t.Assessment.Verdict.Rule,
		"ticket", t.ID,
	}
	attrs = append(attrs, extra...)
	if t.Assessment.Decision == Blocked {
		g.logger.Warn("command "+outcome, append(attrs, "reason", t.Assessment.Verdict.Reason)...)
		return
	}
	g.logger.Info("command "+outcome, attrs...)
}


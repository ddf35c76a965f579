package cmdpolicy

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the cmdpolicy package.
var (
	// ErrPolicyInvalid indicates the provided policy failed validation.
	ErrPolicyInvalid = errors.New("cmdpolicy: invalid policy")

	// ErrBlockedCommand indicates the command was refused by the engine.
	ErrBlockedCommand = errors.New("cmdpolicy: command blocked")

	// ErrManualCommand indicates the command requires human confirmation and
	// none was given.
	ErrManualCommand = errors.New("cmdpolicy: command requires confirmation")

	// ErrGateClosed indicates the gate has already been closed.
	ErrGateClosed = errors.New("cmdpolicy: gate closed")

	// ErrNilEngine indicates a nil *Engine was passed to NewGate.
	ErrNilEngine = errors.New("cmdpolicy: engine must not be nil")
)

// BlockedCommandError is returned when a command is refused.
// It wraps ErrBlockedCommand so that errors.Is(err, ErrBlockedCommand) still works.
type BlockedCommandError struct {
	// Command is the command string that was blocked.
	Command string
	// Verdict is the rule engine verdict that caused the block.
	Verdict Verdict
}

func (e *BlockedCommandError) Error() string {
	return fmt.Sprintf("%s: %s", ErrBlockedCommand.Error(), e.Verdict.Reason)
}

func (e *BlockedCommandError) Unwrap() error {
	return ErrBlockedCommand
}

// ManualCommandError is returned when a Manual command was not approved.
// It wraps ErrManualCommand so that errors.Is(err, ErrManualCommand) still works.
type ManualCommandError struct {
	// Command is the command string awaiting confirmation.
	Command string
	// Reason explains why confirmation was not obtained.
	Reason string
}

func (e *ManualCommandError) Error() string {
	return fmt.Sprintf("%s: %s", ErrManualCommand.Error(), e.Reason)
}

func (e *ManualCommandError) Unwrap() error {
	return ErrManualCommand
}

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhangyunhao116/cmdpolicy"
)

func (a *app) newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <command>",
		Short: "Classify a command and exit with its disposition",
		Long: `Classify a command and print the verdict.

The exit code reports the disposition: 0 auto, 2 manual, 3 blocked.

Examples:
  cmdpolicy check "git status"
  cmdpolicy check --json "kubectl delete pod web-0"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.engine(cmd)
			if err != nil {
				return err
			}
			assessment := e.Evaluate(args[0])
			if err := a.printer(cmd).Assessment(assessment); err != nil {
				return err
			}
			return exitFor(assessment.Decision)
		},
	}
}

func (a *app) newExplainCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "explain <command>",
		Short: "Print why a command is blocked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.engine(cmd)
			if err != nil {
				return err
			}
			reason, blocked := e.Explain(args[0])
			return a.printer(cmd).Explain(args[0], reason, blocked)
		},
	}
}

func (a *app) newAuthorizeCommand() *cobra.Command {
	var assumeYes bool
	cmd := &cobra.Command{
		Use:   "authorize <command>",
		Short: "Issue a ticket for a command, asking for confirmation when needed",
		Long: `Authorize a command through the approval gate.

Auto commands are granted immediately. Manual commands prompt on stderr and
read the answer from stdin: y approves once, a approves for the rest of the
session, anything else denies. Blocked commands are refused.

On success the ticket is printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.engine(cmd)
			if err != nil {
				return err
			}
			callback := promptApproval(cmd.InOrStdin(), cmd.ErrOrStderr())
			if assumeYes {
				callback = func(context.Context, cmdpolicy.ApprovalRequest) (cmdpolicy.ApprovalDecision, error) {
					return cmdpolicy.Approve, nil
				}
			}
			gate := cmdpolicy.NewGate(e, cmdpolicy.GateConfig{
				ApprovalCallback: callback,
				Logger:           a.logger,
			})
			defer gate.Close()

			ticket, err := gate.Authorize(cmd.Context(), args[0])
			var blocked *cmdpolicy.BlockedCommandError
			switch {
			case errors.As(err, &blocked):
				_ = a.printer(cmd).Assessment(cmdpolicy.Assessment{Command: args[0], Verdict: blocked.Verdict, Decision: cmdpolicy.Blocked})
				return &ExitError{Code: ExitBlocked}
			case errors.Is(err, cmdpolicy.ErrManualCommand):
				return &ExitError{Code: ExitManual, Err: err}
			case err != nil:
				return err
			}
			return a.printer(cmd).NDJSON(ticket)
		},
	}
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "approve manual commands without prompting")
	return cmd
}

// promptApproval asks for confirmation on w and reads a single answer line
// from r.
func promptApproval(r io.Reader, w io.Writer) cmdpolicy.ApprovalCallback {
	br := bufio.NewReader(r)
	return func(ctx context.Context, req cmdpolicy.ApprovalRequest) (cmdpolicy.ApprovalDecision, error) {
		if err := ctx.Err(); err != nil {
			return cmdpolicy.Deny, err
		}
		fmt.Fprintf(w, "%s\n  %s\nRun it? [y]es / [a]lways this session / [N]o: ", req.Reason, req.Command)
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return cmdpolicy.Deny, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return cmdpolicy.Approve, nil
		case "a", "always":
			return cmdpolicy.ApproveSession, nil
		default:
			return cmdpolicy.Deny, nil
		}
	}
}

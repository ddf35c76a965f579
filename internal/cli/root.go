// Package cli implements the cmdpolicy command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/zhangyunhao116/cmdpolicy"
	"github.com/zhangyunhao116/cmdpolicy/internal/config"
	"github.com/zhangyunhao116/cmdpolicy/internal/output"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitManual  = 2
	ExitBlocked = 3
)

// ExitError carries a non-zero exit code. A nil Err means the command ran
// successfully and only the disposition is reported through the code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// exitCode maps a decision to the process exit code.
func exitCode(d cmdpolicy.AutonomyDecision) int {
	switch d {
	case cmdpolicy.Auto:
		return ExitOK
	case cmdpolicy.Manual:
		return ExitManual
	default:
		return ExitBlocked
	}
}

func exitFor(d cmdpolicy.AutonomyDecision) error {
	if code := exitCode(d); code != ExitOK {
		return &ExitError{Code: code}
	}
	return nil
}

type globalFlags struct {
	configPath     string
	userConfigPath string
	projectDir     string
	logLevel       string
	maxDepth       int
	json           bool
	noColor        bool
}

type app struct {
	flags  globalFlags
	logger *slog.Logger
}

// NewRootCommand returns the cmdpolicy command tree.
func NewRootCommand() *cobra.Command {
	a := &app{logger: slog.New(slog.DiscardHandler)}
	root := &cobra.Command{
		Use:   "cmdpolicy",
		Short: "Classify shell commands as auto, manual or blocked",
		Long: `cmdpolicy decides whether a shell command proposed by an automated agent
may run unattended (auto), needs human confirmation (manual), or must be
refused (blocked).

Policy files are layered: built-in defaults, the user policy
($XDG_CONFIG_HOME/cmdpolicy/policy.toml), the project policy
(.cmdpolicy.toml or .cmdpolicy.yaml), CMDPOLICY_* environment variables,
then flags.

Exit codes:
  0  auto
  1  error
  2  manual
  3  blocked`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), a.flags.logLevel)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "project policy file (default: .cmdpolicy.toml in the project directory)")
	pf.StringVar(&a.flags.userConfigPath, "user-config", "", `user policy file; "-" disables the user layer`)
	pf.StringVar(&a.flags.projectDir, "project-dir", "", "directory searched for the project policy (default: working directory)")
	pf.StringVar(&a.flags.logLevel, "log-level", envOr("CMDPOLICY_LOG_LEVEL", "warn"), "log level (debug, info, warn, error)")
	pf.IntVar(&a.flags.maxDepth, "max-depth", 0, "override the policy nesting limit")
	pf.BoolVar(&a.flags.json, "json", false, "write results as NDJSON")
	pf.BoolVar(&a.flags.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		a.newCheckCommand(),
		a.newExplainCommand(),
		a.newAuthorizeCommand(),
		a.newBatchCommand(),
		a.newStreamCommand(),
		a.newPolicyCommand(),
	)
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	code := ExitFailure
	var ee *ExitError
	if errors.As(err, &ee) {
		code = ee.Code
		if ee.Err == nil {
			return code
		}
	}
	if asJSON, _ := root.PersistentFlags().GetBool("json"); asJSON {
		_ = output.New(stdout, output.Options{JSON: true}).Error(err, code)
	} else {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return code
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	h := log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Prefix:          "cmdpolicy",
		ReportTimestamp: true,
	})
	return slog.New(h), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (a *app) loadOptions(cmd *cobra.Command) config.LoadOptions {
	opts := config.LoadOptions{
		ProjectDir:     a.flags.projectDir,
		ConfigPath:     a.flags.configPath,
		UserConfigPath: a.flags.userConfigPath,
	}
	if cmd.Flags().Changed("max-depth") {
		opts.FlagOverrides = map[string]any{"max_depth": a.flags.maxDepth}
	}
	return opts
}

func (a *app) engine(cmd *cobra.Command) (*cmdpolicy.Engine, error) {
	p, err := config.Load(a.loadOptions(cmd))
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	return cmdpolicy.NewEngine(p, cmdpolicy.WithLogger(a.logger))
}

func (a *app) printer(cmd *cobra.Command) *output.Printer {
	w := cmd.OutOrStdout()
	return output.New(w, output.Options{
		JSON:  a.flags.json,
		Color: output.ColorEnabled(w, a.flags.noColor),
	})
}

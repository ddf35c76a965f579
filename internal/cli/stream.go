package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhangyunhao116/cmdpolicy"
	"github.com/zhangyunhao116/cmdpolicy/internal/config"
	"github.com/zhangyunhao116/cmdpolicy/internal/output"
)

func (a *app) newStreamCommand() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Read commands from stdin and write one NDJSON result per line",
		Long: `Read commands from stdin, one per line, and write one NDJSON record per
non-blank line to stdout as soon as it is classified.

With --watch the policy files are watched and the policy is reloaded when
they change; commands already read keep the policy they were classified with.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			current, stop, err := a.engineSource(ctx, cmd, watch)
			if err != nil {
				return err
			}
			defer stop()

			p := output.New(cmd.OutOrStdout(), output.Options{JSON: true})
			s := newLineScanner(cmd.InOrStdin())
			n := 0
			for s.Scan() {
				n++
				if err := ctx.Err(); err != nil {
					return err
				}
				line := s.Text()
				if strings.TrimSpace(line) == "" {
					continue
				}
				if err := p.NDJSON(output.Record{Line: n, Assessment: current().Evaluate(line)}); err != nil {
					return err
				}
			}
			return s.Err()
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "reload the policy when a policy file changes")
	return cmd
}

// engineSource returns a function yielding the engine to use for the next
// command, and a function releasing any watcher.
func (a *app) engineSource(ctx context.Context, cmd *cobra.Command, watch bool) (func() *cmdpolicy.Engine, func(), error) {
	if !watch {
		e, err := a.engine(cmd)
		if err != nil {
			return nil, nil, err
		}
		return func() *cmdpolicy.Engine { return e }, func() {}, nil
	}

	r, err := config.NewReloader(config.ReloaderOptions{
		Load:          a.loadOptions(cmd),
		EngineOptions: []cmdpolicy.Option{cmdpolicy.WithLogger(a.logger)},
		Logger:        a.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := r.Start(ctx); err != nil {
		return nil, nil, err
	}
	return r.Engine, func() {
		if err := r.Close(); err != nil {
			a.logger.Warn("stop policy watcher", "error", err)
		}
	}, nil
}

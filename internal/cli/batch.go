package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zhangyunhao116/cmdpolicy"
	"github.com/zhangyunhao116/cmdpolicy/internal/output"
)

// maxLineSize bounds a single input line. Longer commands are an error
// rather than silently truncated.
const maxLineSize = 1 << 20

func (a *app) newBatchCommand() *cobra.Command {
	var jobs int
	cmd := &cobra.Command{
		Use:   "batch [file|-]",
		Short: "Classify one command per line",
		Long: `Classify every command in a file (or stdin), one per line.

Blank lines and lines starting with # are skipped. Commands are classified
concurrently; results are printed in input order. The exit code reflects the
most restrictive disposition in the batch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			lines, err := readCommands(in)
			if err != nil {
				return err
			}

			e, err := a.engine(cmd)
			if err != nil {
				return err
			}
			records, err := classifyAll(cmd.Context(), e, lines, jobs)
			if err != nil {
				return err
			}
			if err := a.printer(cmd).Table(records); err != nil {
				return err
			}
			return exitFor(mostRestrictive(records))
		},
	}
	cmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.GOMAXPROCS(0), "number of commands classified concurrently")
	return cmd
}

type inputLine struct {
	n    int
	text string
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return s
}

// readCommands returns the non-blank, non-comment lines of r.
func readCommands(r io.Reader) ([]inputLine, error) {
	var lines []inputLine
	s := newLineScanner(r)
	n := 0
	for s.Scan() {
		n++
		text := s.Text()
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		lines = append(lines, inputLine{n: n, text: text})
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("read commands: line %d: %w", n+1, err)
	}
	return lines, nil
}

// classifyAll evaluates lines with at most jobs concurrent workers. The
// result order matches lines.
func classifyAll(ctx context.Context, e *cmdpolicy.Engine, lines []inputLine, jobs int) ([]output.Record, error) {
	records := make([]output.Record, len(lines))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(jobs, 1))
	for i, l := range lines {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			records[i] = output.Record{Line: l.n, Assessment: e.Evaluate(l.text)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// mostRestrictive returns the lowest decision in records, or Auto for an
// empty batch.
func mostRestrictive(records []output.Record) cmdpolicy.AutonomyDecision {
	d := cmdpolicy.Auto
	for _, r := range records {
		d = min(d, r.Decision)
	}
	return d
}

// Package output renders assessments for the cmdpolicy CLI as styled text or
// NDJSON.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-json"
	"golang.org/x/term"

	"github.com/zhangyunhao116/cmdpolicy"
)

// Options configures a Printer.
type Options struct {
	// JSON selects NDJSON output.
	JSON bool

	// Color enables ANSI styling of text output.
	Color bool
}

// ColorEnabled reports whether styled output should be written to w: w must
// be a terminal, noColor unset and NO_COLOR absent from the environment.
func ColorEnabled(w io.Writer, noColor bool) bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Record is one evaluated command. Line is the 1-based input line for batch
// and stream output, 0 otherwise.
type Record struct {
	Line int `json:"line,omitempty"`
	cmdpolicy.Assessment
}

// ExplainRecord is the JSON shape of an explain result.
type ExplainRecord struct {
	Command string `json:"command"`
	Blocked bool   `json:"blocked"`
	Reason  string `json:"reason,omitempty"`
}

// ErrorPayload is the canonical JSON error shape.
type ErrorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Printer writes CLI results.
type Printer struct {
	w      io.Writer
	json   bool
	styles styles
}

// New returns a Printer writing to w.
func New(w io.Writer, opts Options) *Printer {
	return &Printer{w: w, json: opts.JSON, styles: newStyles(w, opts.Color)}
}

// JSON reports whether the printer emits NDJSON.
func (p *Printer) JSON() bool { return p.json }

// Assessment writes a single evaluation result.
func (p *Printer) Assessment(a cmdpolicy.Assessment) error {
	if p.json {
		return p.NDJSON(Record{Assessment: a})
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", p.styles.badge(a.Decision), a.Command)
	if a.Verdict.Blocked() {
		fmt.Fprintf(&b, "  %s %s\n", p.styles.label("rule:"), a.Verdict.Rule)
		fmt.Fprintf(&b, "  %s %s\n", p.styles.label("reason:"), a.Verdict.Reason)
		if a.Verdict.Detail != "" {
			fmt.Fprintf(&b, "  %s %s\n", p.styles.label("detail:"), p.styles.faint(a.Verdict.Detail))
		}
	}
	_, err := io.WriteString(p.w, b.String())
	return err
}

// Explain writes the reason a command is blocked, or "allowed".
func (p *Printer) Explain(command, reason string, blocked bool) error {
	if p.json {
		return p.NDJSON(ExplainRecord{Command: command, Blocked: blocked, Reason: reason})
	}
	if !blocked {
		_, err := fmt.Fprintln(p.w, p.styles.decision(cmdpolicy.Auto, "allowed"))
		return err
	}
	_, err := fmt.Fprintln(p.w, p.styles.decision(cmdpolicy.Blocked, reason))
	return err
}

// Table writes batch results, one row per record.
func (p *Printer) Table(records []Record) error {
	if p.json {
		for _, r := range records {
			if err := p.NDJSON(r); err != nil {
				return err
			}
		}
		return nil
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tDECISION\tRULE\tCOMMAND")
	for _, r := range records {
		rule := r.Verdict.Rule
		if rule == "" {
			rule = "-"
		}
		// Pad before styling so escape codes do not skew the columns.
		decision := fmt.Sprintf("%-7s", r.Decision)
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Line, p.styles.decision(r.Decision, decision), rule, r.Command)
	}
	return tw.Flush()
}

// Message writes a plain line of text. It is a no-op in JSON mode.
func (p *Printer) Message(format string, args ...any) error {
	if p.json {
		return nil
	}
	_, err := fmt.Fprintf(p.w, format+"\n", args...)
	return err
}

// Error writes err as a JSON error payload. In text mode it writes nothing;
// the caller reports text errors on stderr.
func (p *Printer) Error(err error, code int) error {
	if !p.json {
		return nil
	}
	return p.NDJSON(ErrorPayload{Error: "error", Message: err.Error(), Code: code})
}

// NDJSON writes v as a single JSON line.
func (p *Printer) NDJSON(v any) error {
	return json.NewEncoder(p.w).Encode(v)
}

type styles struct {
	enabled bool
	auto    lipgloss.Style
	manual  lipgloss.Style
	blocked lipgloss.Style
	bold    lipgloss.Style
	dim     lipgloss.Style
}

func newStyles(w io.Writer, color bool) styles {
	if !color {
		return styles{}
	}
	r := lipgloss.NewRenderer(w)
	return styles{
		enabled: true,
		auto:    r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		manual:  r.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		blocked: r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		bold:    r.NewStyle().Bold(true),
		dim:     r.NewStyle().Faint(true),
	}
}

func (s styles) decision(d cmdpolicy.AutonomyDecision, text string) string {
	if !s.enabled {
		return text
	}
	switch d {
	case cmdpolicy.Auto:
		return s.auto.Render(text)
	case cmdpolicy.Manual:
		return s.manual.Render(text)
	default:
		return s.blocked.Render(text)
	}
}

func (s styles) badge(d cmdpolicy.AutonomyDecision) string {
	return s.decision(d, "["+strings.ToUpper(d.String())+"]")
}

func (s styles) label(text string) string {
	if !s.enabled {
		return text
	}
	return s.bold.Render(text)
}

func (s styles) faint(text string) string {
	if !s.enabled {
		return text
	}
	return s.dim.Render(text)
}

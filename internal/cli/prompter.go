package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"devfleet/internal/api"
	"devfleet/internal/template"

	"github.com/fatih/color"
)

// TerminalPrompter implements reconcile.Prompter over an interactive
// terminal. Non-interactive invocations should pass a nil prompter to
// the engine instead; this type never checks whether its reader is a
// real TTY.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

// NewTerminalPrompter creates a prompter over the given streams.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{In: in, Out: out, reader: bufio.NewReader(in)}
}

// ConfirmRefresh shows the drift diff and asks whether to re-resolve.
func (p *TerminalPrompter) ConfirmRefresh(entry *api.ServerEntry, drift *api.DriftResult) (bool, error) {
	fmt.Fprintf(p.Out, "%s configuration changed since %s was last resolved:\n",
		color.YellowString("Drift:"), entry.Name)
	RenderDrift(p.Out, drift)
	fmt.Fprintf(p.Out, "Re-resolve and restart %s? [y/N] ", entry.Name)

	answer, err := p.readLine()
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

// PromptVariable asks for a value for a missing configurable variable.
// An empty answer declines.
func (p *TerminalPrompter) PromptVariable(v template.MissingVariable) (string, bool, error) {
	fmt.Fprintf(p.Out, "%s (stored as %s): ", v.Prompt, v.ConfigKey)
	answer, err := p.readLine()
	if err != nil {
		return "", false, err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", false, nil
	}
	return answer, true, nil
}

func (p *TerminalPrompter) readLine() (string, error) {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}

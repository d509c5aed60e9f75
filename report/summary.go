package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/tracewell-dev/tracewell/internal/types"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).MarginBottom(1)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Width(18)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#6B7280")).Padding(1, 2)
)

// WriteSummary prints a terminal completion summary for a finished report
// build: session outcome, thread/call counts, and the output path.
func WriteSummary(w io.Writer, doc *Document, outPath string) {
	calls, lines, stores := countEvents(doc.Threads)

	row := func(label, value string) string {
		return labelStyle.Render(label) + valueStyle.Render(value)
	}

	lines_ := []string{
		titleStyle.Render("tracewell report"),
		row("session", doc.Meta.SessionID),
		row("outcome", outcomeLine(doc.Meta.Outcome)),
		row("threads", fmt.Sprintf("%d", len(doc.Threads))),
		row("calls", fmt.Sprintf("%d", calls)),
		row("lines", fmt.Sprintf("%d", lines)),
		row("stores", fmt.Sprintf("%d", stores)),
		row("output", outPath),
	}

	body := ""
	for i, l := range lines_ {
		if i > 0 {
			body += "\n"
		}
		body += l
	}
	fmt.Fprintln(w, boxStyle.Render(body))
}

func outcomeLine(o types.SessionOutcome) string {
	if o == types.OutcomeClean {
		return valueStyle.Render(o.String())
	}
	return warningStyle.Render(o.String())
}

func countEvents(threads []*ThreadTrace) (calls, lineEvents, stores int) {
	var walk func(n *Node)
	walk = func(n *Node) {
		switch n.Kind {
		case types.KindCall:
			calls++
		case types.KindLine:
			lineEvents++
			stores += len(n.Stores)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, t := range threads {
		for _, root := range t.Roots {
			walk(root)
		}
	}
	return
}

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/YuvalRubins/WikiExplorer/internal/explorer"
	"github.com/YuvalRubins/WikiExplorer/internal/page"
	"github.com/YuvalRubins/WikiExplorer/internal/search"
)

var (
	sourceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	targetStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// renderSteps lists the progress of the running search, one step per line.
func renderSteps(steps []search.Progress) string {
	if len(steps) == 0 {
		return "\n  Waiting for the first step...\n"
	}
	var b strings.Builder
	b.WriteByte('\n')
	for _, p := range steps {
		arrow := "→"
		if p.Direction == page.Incoming {
			arrow = "←"
		}
		fmt.Fprintf(&b, "%4d %s %s   ===>   %s\n",
			p.Step, arrow,
			sourceStyle.Render(page.PathString(p.SourcePath)),
			targetStyle.Render(page.PathString(p.TargetPath)),
		)
	}
	return b.String()
}

// resultMarkdown describes a finished search as markdown. Pages with an
// address become links.
func resultMarkdown(res explorer.Result, urlFor func(string) string) string {
	var b strings.Builder
	if res.State != search.Found {
		fmt.Fprintf(&b, "# No path exists\n\nNo path joins **%s** and **%s**", res.Start, res.End)
		if res.Steps > 0 {
			fmt.Fprintf(&b, " within %d steps", res.Steps)
		}
		b.WriteString(".\n")
		return b.String()
	}

	fmt.Fprintf(&b, "# %s → %s\n\n", res.Start, res.End)
	fmt.Fprintf(&b, "Found a path of %d pages after %d steps, exploring %d pages and %d links.\n\n",
		len(res.Path), res.Steps, res.Nodes, res.Edges)
	for i, name := range res.Path {
		label := strings.ReplaceAll(name, "_", " ")
		if u := urlFor(name); u != "" {
			fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, label, u)
		} else {
			fmt.Fprintf(&b, "%d. %s\n", i+1, label)
		}
	}
	return b.String()
}

func renderResult(res explorer.Result, urlFor func(string) string, width int) string {
	md := resultMarkdown(res, urlFor)
	rendered, err := renderMarkdown(md, width)
	if err != nil {
		return md
	}
	return rendered
}

func renderMarkdown(body string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(20, width-4)),
	)
	if err != nil {
		return "", err
	}
	return r.Render(body)
}

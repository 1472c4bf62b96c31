package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/YuvalRubins/WikiExplorer/internal/explorer"
	"github.com/YuvalRubins/WikiExplorer/internal/page"
	"github.com/YuvalRubins/WikiExplorer/internal/search"
)

var (
	sourceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	targetStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	foundStyle  = lipgloss.NewStyle().Bold(true)
	faintStyle  = lipgloss.NewStyle().Faint(true)
)

// formatProgress renders one step: the path from the start to the current
// source, and from the current target to the end.
func formatProgress(p search.Progress) string {
	return fmt.Sprintf("%3d) %s   ===>   %s",
		p.Step,
		sourceStyle.Render(page.PathString(p.SourcePath)),
		targetStyle.Render(page.PathString(p.TargetPath)),
	)
}

// formatResult renders the outcome of a search, with the address of every
// page on the path when urlFor knows one.
func formatResult(res explorer.Result, urlFor func(string) string) string {
	var b strings.Builder
	switch res.State {
	case search.Found:
		fmt.Fprintf(&b, "%s (len=%d): %s\n", foundStyle.Render("Found path"), len(res.Path), page.PathString(res.Path))
		for _, name := range res.Path {
			if u := urlFor(name); u != "" {
				fmt.Fprintf(&b, "  %s\n", u)
			}
		}
	default:
		b.WriteString("No path exists\n")
	}
	fmt.Fprintf(&b, "%s\n", faintStyle.Render(fmt.Sprintf(
		"%d steps, %d pages explored, %d links, %s",
		res.Steps, res.Nodes, res.Edges, res.Elapsed.Round(time.Millisecond),
	)))
	return b.String()
}

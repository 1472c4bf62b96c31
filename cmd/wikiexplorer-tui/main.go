// Command wikiexplorer-tui is a terminal UI that shows a path search live:
// both frontiers as they grow, then the path that joins them.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/YuvalRubins/WikiExplorer/internal/config"
	"github.com/YuvalRubins/WikiExplorer/internal/explorer"
	"github.com/YuvalRubins/WikiExplorer/internal/logging"
	"github.com/YuvalRubins/WikiExplorer/internal/search"
)

// searcher is the part of explorer.Explorer the UI uses.
type searcher interface {
	Search(ctx context.Context, req explorer.Request, onProgress func(search.Progress)) (explorer.Result, error)
	URLFor(name string) string
}

type focus int

const (
	focusStart focus = iota
	focusEnd
	focusViewport
)

// maxSteps bounds the progress lines kept on screen.
const maxSteps = 500

type model struct {
	start    textinput.Model
	end      textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	focus    focus

	explorer searcher
	cancel   context.CancelFunc
	seq      uint64
	running  bool
	steps    []search.Progress
	result   *explorer.Result
	err      error

	width  int
	height int
	ready  bool
}

type progressMsg struct {
	seq      uint64
	progress search.Progress
	next     <-chan tea.Msg
}

type resultMsg struct {
	seq    uint64
	result explorer.Result
	err    error
}

func initialModel(x searcher, start, end string) model {
	si := textinput.New()
	si.Placeholder = "start page, * for random"
	si.Prompt = "From: "
	si.SetValue(start)
	si.Focus()

	ei := textinput.New()
	ei.Placeholder = "end page, * for random"
	ei.Prompt = "  To: "
	ei.SetValue(end)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		start:    si,
		end:      ei,
		spinner:  sp,
		focus:    focusStart,
		explorer: x,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerHeight := 3 // two inputs + divider
		footerHeight := 1 // status bar
		viewportHeight := max(1, m.height-headerHeight-footerHeight)
		if !m.ready {
			m.viewport = viewport.New(m.width, viewportHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = viewportHeight
		}
		m.start.Width = m.width - 8
		m.end.Width = m.width - 8
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.steps = append(m.steps, msg.progress)
		if len(m.steps) > maxSteps {
			m.steps = m.steps[len(m.steps)-maxSteps:]
		}
		m.refresh()
		m.viewport.GotoBottom()
		return m, waitFor(msg.next)

	case resultMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.running = false
		m.cancel = nil
		if msg.err != nil {
			m.err = msg.err
		} else {
			res := msg.result
			m.result = &res
		}
		m.refresh()
		m.viewport.GotoTop()
		return m, nil
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.stop()
		return m, tea.Quit
	case tea.KeyTab:
		return m.nextFocus(), textinput.Blink
	case tea.KeyEsc:
		if m.running {
			m.stop()
			m.err = context.Canceled
			m.refresh()
		}
		return m, nil
	case tea.KeyEnter:
		if m.focus != focusViewport {
			return m.startSearch()
		}
	}

	var cmd tea.Cmd
	switch m.focus {
	case focusStart:
		m.start, cmd = m.start.Update(msg)
	case focusEnd:
		m.end, cmd = m.end.Update(msg)
	case focusViewport:
		if msg.String() == "q" {
			m.stop()
			return m, tea.Quit
		}
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m model) nextFocus() model {
	m.focus = (m.focus + 1) % 3
	m.start.Blur()
	m.end.Blur()
	switch m.focus {
	case focusStart:
		m.start.Focus()
	case focusEnd:
		m.end.Focus()
	}
	return m
}

// startSearch stops the running search, if any, and starts a new one.
func (m model) startSearch() (tea.Model, tea.Cmd) {
	req := explorer.Request{
		Start: strings.TrimSpace(m.start.Value()),
		End:   strings.TrimSpace(m.end.Value()),
	}
	if req.Start == "" || req.End == "" {
		return m, nil
	}
	m.stop()
	m.seq++
	m.running = true
	m.steps = nil
	m.result = nil
	m.err = nil
	m.refresh()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	ch := run(ctx, m.explorer, req, m.seq)
	return m, tea.Batch(m.spinner.Tick, waitFor(ch))
}

func (m *model) stop() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.running = false
}

// run searches in the background. Progress and the result arrive on the
// returned channel, which is closed after the result.
func run(ctx context.Context, x searcher, req explorer.Request, seq uint64) <-chan tea.Msg {
	ch := make(chan tea.Msg, 16)
	go func() {
		defer close(ch)
		res, err := x.Search(ctx, req, func(p search.Progress) {
			select {
			case ch <- progressMsg{seq: seq, progress: p, next: ch}:
			case <-ctx.Done():
			}
		})
		select {
		case ch <- resultMsg{seq: seq, result: res, err: err}:
		case <-ctx.Done():
		}
	}()
	return ch
}

func waitFor(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m *model) refresh() {
	if !m.ready {
		return
	}
	var content string
	switch {
	case m.result != nil:
		content = renderResult(*m.result, m.explorer.URLFor, m.width)
	case m.err != nil:
		content = errorView(m.err)
	default:
		content = renderSteps(m.steps)
	}
	m.viewport.SetContent(content)
}

func (m model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder
	inputStyle := lipgloss.NewStyle().Padding(0, 1).Width(m.width)
	for i, in := range []textinput.Model{m.start, m.end} {
		style := inputStyle
		if m.focus == focus(i) {
			style = style.Bold(true)
		}
		b.WriteString(style.Render(in.View()))
		b.WriteByte('\n')
	}
	b.WriteString(strings.Repeat("─", m.width))
	b.WriteByte('\n')
	b.WriteString(m.viewport.View())
	b.WriteByte('\n')
	b.WriteString(m.statusBarView())
	return b.String()
}

func (m model) statusBarView() string {
	style := lipgloss.NewStyle().Width(m.width).Padding(0, 1)

	switch {
	case m.running:
		return style.Render(fmt.Sprintf("%s searching... step %d  [esc] stop", m.spinner.View(), len(m.steps)))
	case m.err != nil:
		return style.Foreground(lipgloss.Color("9")).Render("Error: " + m.err.Error())
	case m.result != nil:
		return style.Render(fmt.Sprintf("[%s] %d steps, %d pages, %s  %d%%",
			m.result.State, m.result.Steps, m.result.Nodes, m.result.Elapsed.Round(time.Millisecond), int(m.viewport.ScrollPercent()*100)))
	}
	return style.Faint(true).Render("Enter two pages and press Enter  [tab] switch field  [ctrl+c] quit")
}

func errorView(err error) string {
	return fmt.Sprintf("\n  Error: %s\n", err.Error())
}

func main() {
	cmd := &cobra.Command{
		Use:           "wikiexplorer-tui [START [END]]",
		Short:         "Watch a wiki path search in the terminal",
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			// Log lines would draw over the alternate screen.
			cfg.LogLevel = "error"
			x, err := explorer.New(cmd.Context(), cfg, logging.New(cfg.LogFormat, cfg.LogLevel, os.Stderr))
			if err != nil {
				return err
			}
			defer x.Close()

			var start, end string
			if len(args) > 0 {
				start = args[0]
			}
			if len(args) > 1 {
				end = args[1]
			}
			p := tea.NewProgram(
				initialModel(x, start, end),
				tea.WithAltScreen(),
				tea.WithMouseCellMotion(),
			)
			_, err = p.Run()
			return err
		},
	}
	config.RegisterFlags(cmd.Flags())

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

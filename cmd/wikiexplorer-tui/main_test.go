package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/YuvalRubins/WikiExplorer/internal/explorer"
	"github.com/YuvalRubins/WikiExplorer/internal/page"
	"github.com/YuvalRubins/WikiExplorer/internal/search"
)

// fakeSearcher reports two steps and then the configured outcome. A nil
// result blocks until the search is cancelled.
type fakeSearcher struct {
	result *explorer.Result
	err    error
}

func (f fakeSearcher) Search(ctx context.Context, req explorer.Request, onProgress func(search.Progress)) (explorer.Result, error) {
	onProgress(search.Progress{Step: 1, Direction: page.Outgoing, SourcePath: []string{req.Start}, TargetPath: []string{req.End}})
	onProgress(search.Progress{Step: 2, Direction: page.Incoming, SourcePath: []string{req.Start}, TargetPath: []string{"Mid", req.End}})
	if f.result == nil && f.err == nil {
		<-ctx.Done()
		return explorer.Result{}, ctx.Err()
	}
	if f.err != nil {
		return explorer.Result{}, f.err
	}
	return *f.result, nil
}

func (fakeSearcher) URLFor(name string) string { return "https://wiki.test/wiki/" + name }

func found() *explorer.Result {
	return &explorer.Result{
		Start:  "Cat",
		End:    "Wolf",
		Result: search.Result{State: search.Found, Path: []string{"Cat", "Dog", "Wolf"}, Steps: 2, Nodes: 5, Edges: 4},
	}
}

func sized(m model) model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(model)
}

func drain(ch <-chan tea.Msg) []tea.Msg {
	var msgs []tea.Msg
	for msg := range ch {
		msgs = append(msgs, msg)
	}
	return msgs
}

func TestRunDeliversProgressThenResult(t *testing.T) {
	msgs := drain(run(context.Background(), fakeSearcher{result: found()}, explorer.Request{Start: "Cat", End: "Wolf"}, 7))
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for _, msg := range msgs[:2] {
		p, ok := msg.(progressMsg)
		if !ok || p.seq != 7 {
			t.Errorf("unexpected message %#v", msg)
		}
	}
	res, ok := msgs[2].(resultMsg)
	if !ok {
		t.Fatalf("last message is %T, want resultMsg", msgs[2])
	}
	if res.err != nil || res.result.State != search.Found {
		t.Errorf("result = %+v, err = %v", res.result, res.err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := run(ctx, fakeSearcher{}, explorer.Request{Start: "A", End: "B"}, 1)
	<-ch
	cancel()
	// The channel is closed once the search returns.
	drain(ch)
}

func TestUpdateFlow(t *testing.T) {
	m := sized(initialModel(fakeSearcher{result: found()}, "Cat", "Wolf"))

	next, cmd := m.handleKey(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	if cmd == nil || !m.running || m.seq != 1 {
		t.Fatalf("search did not start: running=%v seq=%d", m.running, m.seq)
	}
	m.stop()

	for _, msg := range drain(run(context.Background(), fakeSearcher{result: found()}, explorer.Request{Start: "Cat", End: "Wolf"}, m.seq)) {
		next, _ = m.Update(msg)
		m = next.(model)
	}
	if len(m.steps) != 2 {
		t.Errorf("steps = %d, want 2", len(m.steps))
	}
	if m.result == nil || m.result.State != search.Found {
		t.Fatalf("result = %+v", m.result)
	}
	if !strings.Contains(m.statusBarView(), "[found]") {
		t.Errorf("status bar = %q", m.statusBarView())
	}
}

func TestUpdateIgnoresStaleMessages(t *testing.T) {
	m := sized(initialModel(fakeSearcher{}, "", ""))
	m.seq = 2

	next, _ := m.Update(progressMsg{seq: 1, progress: search.Progress{Step: 1}})
	m = next.(model)
	next, _ = m.Update(resultMsg{seq: 1, err: errors.New("old")})
	m = next.(model)

	if len(m.steps) != 0 || m.err != nil {
		t.Errorf("stale messages applied: steps=%d err=%v", len(m.steps), m.err)
	}
}

func TestEnterNeedsBothPages(t *testing.T) {
	m := sized(initialModel(fakeSearcher{}, "Cat", ""))
	next, cmd := m.handleKey(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil || next.(model).running {
		t.Error("search started without an end page")
	}
}

func TestTabCyclesFocus(t *testing.T) {
	m := initialModel(fakeSearcher{}, "", "")
	want := []focus{focusEnd, focusViewport, focusStart}
	for _, f := range want {
		m = m.nextFocus()
		if m.focus != f {
			t.Fatalf("focus = %d, want %d", m.focus, f)
		}
	}
}

func TestResultMarkdown(t *testing.T) {
	md := resultMarkdown(*found(), fakeSearcher{}.URLFor)
	for _, want := range []string{
		"# Cat → Wolf",
		"path of 3 pages after 2 steps",
		"1. [Cat](https://wiki.test/wiki/Cat)",
		"3. [Wolf](https://wiki.test/wiki/Wolf)",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}

	md = resultMarkdown(*found(), func(string) string { return "" })
	if !strings.Contains(md, "2. Dog\n") {
		t.Errorf("plain list expected:\n%s", md)
	}

	res := explorer.Result{Start: "A", End: "B", Result: search.Result{State: search.Exhausted, Steps: 9}}
	md = resultMarkdown(res, fakeSearcher{}.URLFor)
	if !strings.Contains(md, "No path joins **A** and **B** within 9 steps.") {
		t.Errorf("exhausted markdown:\n%s", md)
	}
}

func TestRenderSteps(t *testing.T) {
	if got := renderSteps(nil); !strings.Contains(got, "Waiting") {
		t.Errorf("empty steps = %q", got)
	}
	out := renderSteps([]search.Progress{
		{Step: 1, Direction: page.Outgoing, SourcePath: []string{"A", "B"}, TargetPath: []string{"Z"}},
		{Step: 2, Direction: page.Incoming, SourcePath: []string{"A", "B"}, TargetPath: []string{"Y", "Z"}},
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "→") || !strings.Contains(lines[1], "←") {
		t.Errorf("direction arrows missing:\n%s", out)
	}
	if !strings.Contains(lines[1], "Y -> Z") {
		t.Errorf("target path missing: %q", lines[1])
	}
}

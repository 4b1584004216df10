package tui

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func sampleState() ExpandState {
	return ExpandState{
		Goal:     "build a house",
		Tree:     "- build a house (Processing)\n  - Buy land (Request submitted)\n  - Build walls (Created)\n",
		Nodes:    3,
		Finished: 1,
		InFlight: 2,
		Capacity: 4,
		Requests: 5,
	}
}

func TestExpandApp_InitPollsSource(t *testing.T) {
	calls := 0
	app := NewExpandApp(func() ExpandState {
		calls++
		return sampleState()
	}, nil)

	if cmd := app.Init(); cmd == nil {
		t.Error("Init should schedule ticks")
	}
	if calls != 1 {
		t.Errorf("source calls = %d, want 1", calls)
	}
	if app.State().Goal != "build a house" {
		t.Errorf("Goal = %q, want %q", app.State().Goal, "build a house")
	}
}

func TestExpandApp_TickRefreshes(t *testing.T) {
	state := sampleState()
	app := NewExpandApp(func() ExpandState { return state }, nil)
	app.Init()

	state.Requests = 9
	_, cmd := app.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}
	if app.State().Requests != 9 {
		t.Errorf("Requests = %d, want 9", app.State().Requests)
	}
}

func TestExpandApp_View(t *testing.T) {
	app := NewExpandApp(sampleState, nil)
	app.Init()
	view := app.View()

	for _, want := range []string{
		"build a house",
		"1/3 finished",
		"2/4",
		"Buy land (Request submitted)",
		"Press q to save and stop",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestExpandApp_QuitKey(t *testing.T) {
	quit := false
	app := NewExpandApp(sampleState, func() { quit = true })

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !quit {
		t.Error("onQuit not called")
	}
	if cmd == nil {
		t.Error("q should return tea.Quit")
	}
	if !strings.Contains(app.View(), "Saving and stopping") {
		t.Errorf("View = %q", app.View())
	}
}

func TestExpandApp_Done(t *testing.T) {
	app := NewExpandApp(sampleState, nil)
	app.Update(ExpandDoneMsg{})
	if !strings.Contains(app.View(), "Expansion complete.") {
		t.Errorf("view missing completion:\n%s", app.View())
	}

	app = NewExpandApp(sampleState, nil)
	app.Update(ExpandDoneMsg{Err: errors.New("HTTP 500: overloaded")})
	if !strings.Contains(app.View(), "Error: HTTP 500: overloaded") {
		t.Errorf("view missing error:\n%s", app.View())
	}
}

func TestExpandApp_LogsKeepRecent(t *testing.T) {
	app := NewExpandApp(sampleState, nil)
	for i := 0; i < 10; i++ {
		app.Update(ExpandLogMsg{Timestamp: time.Now(), Message: "line " + string(rune('a'+i))})
	}
	view := app.View()
	if strings.Contains(view, "line a") {
		t.Error("old log lines should scroll away")
	}
	if !strings.Contains(view, "line j") {
		t.Error("latest log line missing")
	}
}

func TestLogSender_FeedsActivityLog(t *testing.T) {
	app := NewExpandApp(sampleState, nil)
	send := LogSender(func(msg tea.Msg) { app.Update(msg) })

	for i := 0; i < maxLogs+5; i++ {
		send(time.Now(), fmt.Sprintf("step %d", i))
	}
	if len(app.logs) != maxLogs {
		t.Errorf("kept %d log lines, want %d", len(app.logs), maxLogs)
	}
	if got := app.logs[len(app.logs)-1].Message; got != fmt.Sprintf("step %d", maxLogs+4) {
		t.Errorf("last line = %q", got)
	}
	if !strings.Contains(app.View(), fmt.Sprintf("step %d", maxLogs+4)) {
		t.Errorf("view missing latest line:\n%s", app.View())
	}
}

func TestExpandApp_VisibleTreeTrims(t *testing.T) {
	state := sampleState()
	var lines []string
	for i := 0; i < 40; i++ {
		lines = append(lines, "- step")
	}
	state.Tree = strings.Join(lines, "\n")
	app := NewExpandApp(func() ExpandState { return state }, nil)
	app.Init()
	app.Update(tea.WindowSizeMsg{Width: 80, Height: 20})

	got := app.visibleTree()
	if !strings.HasPrefix(got, "... 35 more above") {
		t.Errorf("visibleTree = %q", got)
	}
	if n := strings.Count(got, "\n") + 1; n != 6 {
		t.Errorf("visible lines = %d, want 6", n)
	}
}

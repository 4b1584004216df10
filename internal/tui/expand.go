package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// refreshInterval is how often the app polls for a new ExpandState.
const refreshInterval = 200 * time.Millisecond

// maxLogs bounds the activity log kept in memory.
const maxLogs = 100

// ExpandState is a snapshot of a running expansion.
type ExpandState struct {
	Goal string
	// Tree is the plan rendered one node per line, with states.
	Tree      string
	Nodes     int
	Finished  int
	InFlight  int
	Capacity  int
	Requests  int
	StartedAt time.Time
}

// ExpandLogMsg adds a line to the activity log.
type ExpandLogMsg struct {
	Timestamp time.Time
	Message   string
}

// ExpandDoneMsg is sent when the expansion returns.
type ExpandDoneMsg struct {
	Err error
}

type tickMsg time.Time

// ExpandApp is the bubbletea model for the expand progress view.
type ExpandApp struct {
	source  func() ExpandState
	onQuit  func()
	state   ExpandState
	spinner spinner.Model
	logs    []ExpandLogMsg
	width   int
	height  int
	done    bool
	err     error
	quit    bool

	headerStyle   lipgloss.Style
	labelStyle    lipgloss.Style
	valueStyle    lipgloss.Style
	progressFull  lipgloss.Style
	progressEmpty lipgloss.Style
	treeStyle     lipgloss.Style
	logTimeStyle  lipgloss.Style
	logStyle      lipgloss.Style
	errorStyle    lipgloss.Style
	doneStyle     lipgloss.Style
}

// NewExpandApp creates the progress model. source is polled for fresh state;
// onQuit runs when the user presses q.
func NewExpandApp(source func() ExpandState, onQuit func()) *ExpandApp {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &ExpandApp{
		source:  source,
		onQuit:  onQuit,
		spinner: s,

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")),

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(12),

		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),

		progressFull: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),

		progressEmpty: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		treeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),

		logTimeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		logStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		doneStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")).
			Bold(true),
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model.
func (a *ExpandApp) Init() tea.Cmd {
	a.refresh()
	return tea.Batch(a.spinner.Tick, tick())
}

func (a *ExpandApp) refresh() {
	if a.source != nil {
		a.state = a.source()
	}
}

// Update implements tea.Model.
func (a *ExpandApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quit = true
			if a.onQuit != nil {
				a.onQuit()
			}
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case tickMsg:
		a.refresh()
		if a.done {
			return a, nil
		}
		return a, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case ExpandLogMsg:
		a.logs = append(a.logs, msg)
		if len(a.logs) > maxLogs {
			a.logs = append([]ExpandLogMsg(nil), a.logs[len(a.logs)-maxLogs:]...)
		}

	case ExpandDoneMsg:
		a.done = true
		a.err = msg.Err
		a.refresh()
		return a, tea.Quit
	}

	return a, nil
}

// State returns the last polled state.
func (a *ExpandApp) State() ExpandState {
	return a.state
}

// View implements tea.Model.
func (a *ExpandApp) View() string {
	if a.quit {
		return "Saving and stopping...\n"
	}

	var b strings.Builder

	title := "Expanding"
	if !a.done {
		title = a.spinner.View() + " " + title
	}
	b.WriteString(a.headerStyle.Render(fmt.Sprintf("%s: %s", title, a.state.Goal)))
	b.WriteString("\n\n")

	pct := 0.0
	if a.state.Nodes > 0 {
		pct = float64(a.state.Finished) / float64(a.state.Nodes) * 100
	}
	b.WriteString(a.labelStyle.Render("Nodes:"))
	b.WriteString(a.valueStyle.Render(fmt.Sprintf("%d/%d finished", a.state.Finished, a.state.Nodes)))
	b.WriteString("\n")
	b.WriteString(a.renderProgressBar(pct, 30))
	b.WriteString("\n")

	b.WriteString(a.labelStyle.Render("In flight:"))
	b.WriteString(a.valueStyle.Render(fmt.Sprintf("%d/%d", a.state.InFlight, a.state.Capacity)))
	b.WriteString("  ")
	b.WriteString(a.labelStyle.Render("Requests:"))
	b.WriteString(a.valueStyle.Render(fmt.Sprintf("%d", a.state.Requests)))
	if !a.state.StartedAt.IsZero() {
		b.WriteString("  ")
		b.WriteString(a.labelStyle.Render("Elapsed:"))
		b.WriteString(a.valueStyle.Render(time.Since(a.state.StartedAt).Round(time.Second).String()))
	}
	b.WriteString("\n\n")

	if tree := a.visibleTree(); tree != "" {
		b.WriteString(a.treeStyle.Render(tree))
		b.WriteString("\n")
	}

	b.WriteString(a.renderLogs())

	b.WriteString("\n")
	switch {
	case a.done && a.err != nil:
		b.WriteString(a.errorStyle.Render(fmt.Sprintf("Error: %v", a.err)))
	case a.done:
		b.WriteString(a.doneStyle.Render("Expansion complete."))
	default:
		b.WriteString(lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Render("Press q to save and stop"))
	}
	b.WriteString("\n")

	return b.String()
}

// visibleTree trims the rendered tree to the lines that fit the window,
// keeping the most recent (last) lines.
func (a *ExpandApp) visibleTree() string {
	tree := strings.TrimRight(a.state.Tree, "\n")
	if tree == "" || a.height <= 0 {
		return tree
	}
	room := a.height - 14
	if room < 3 {
		room = 3
	}
	lines := strings.Split(tree, "\n")
	if len(lines) <= room {
		return tree
	}
	hidden := len(lines) - room + 1
	return fmt.Sprintf("... %d more above\n%s", hidden, strings.Join(lines[hidden:], "\n"))
}

func (a *ExpandApp) renderProgressBar(pct float64, width int) string {
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	filled := int(pct / 100 * float64(width))
	bar := a.progressFull.Render(strings.Repeat("█", filled)) +
		a.progressEmpty.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("  %s %.0f%%", bar, pct)
}

func (a *ExpandApp) renderLogs() string {
	if len(a.logs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("252")).
		Render("Activity"))
	b.WriteString("\n")

	start := 0
	if len(a.logs) > 6 {
		start = len(a.logs) - 6
	}
	for _, entry := range a.logs[start:] {
		ts := a.logTimeStyle.Render(entry.Timestamp.Format("15:04:05"))
		b.WriteString(fmt.Sprintf("  %s %s\n", ts, a.logStyle.Render(entry.Message)))
	}
	return b.String()
}

// LogSender adapts send, usually (*tea.Program).Send, into a log sink that
// feeds the activity log.
func LogSender(send func(tea.Msg)) func(at time.Time, line string) {
	return func(at time.Time, line string) {
		send(ExpandLogMsg{Timestamp: at, Message: line})
	}
}

// NewExpandProgram creates the bubbletea program for the progress view.
func NewExpandProgram(source func() ExpandState, onQuit func()) (*tea.Program, *ExpandApp) {
	app := NewExpandApp(source, onQuit)
	return tea.NewProgram(app), app
}

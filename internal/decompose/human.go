package decompose

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/ShayCichocki/plana/internal/cache"
	"github.com/ShayCichocki/plana/internal/config"
	"github.com/ShayCichocki/plana/internal/examples"
	"github.com/ShayCichocki/plana/pkg/models"
)

const humanHelp = `#) Selected option (0 - none)
P) create prompt example
R) show reasoning
S) Settings
Q) save and quit
`

const columnWidth = 34

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	pickedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("34"))
	reasonStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	columnStyle  = lipgloss.NewStyle().Width(columnWidth).PaddingRight(2)
	positionBody = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
)

// HumanConfig wires a HumanChooser.
type HumanConfig struct {
	In       io.Reader
	Out      io.Writer
	Cache    *cache.Store
	Examples *examples.Store
	Settings *LiveConfig
}

// HumanChooser shows the candidates side by side on the console and lets the
// user pick one. Only one node is presented at a time.
type HumanChooser struct {
	mu       sync.Mutex
	in       *bufio.Reader
	readOnce sync.Once
	lines    chan inputLine
	out      io.Writer
	cache    *cache.Store
	examples *examples.Store
	settings *LiveConfig
}

// NewHumanChooser creates a console chooser.
func NewHumanChooser(cfg HumanConfig) *HumanChooser {
	return &HumanChooser{
		in:       bufio.NewReader(cfg.In),
		out:      cfg.Out,
		cache:    cfg.Cache,
		examples: cfg.Examples,
		settings: cfg.Settings,
	}
}

// inputLine is one line read from the console, or the error that ended input.
type inputLine struct {
	text string
	err  error
}

// OffersStop reports that the user can always choose to leave a node as a leaf.
func (h *HumanChooser) OffersStop() bool { return true }

// Choose gets the backend ranking for reference, then asks the user.
// The picked list is recorded in the cache.
func (h *HumanChooser) Choose(ctx context.Context, c Choice) (*models.TaskList, error) {
	backendPick, err := c.Rank(ctx)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	desc := c.Tree.Description(c.Node)
	position := c.Tree.DescribeAncestryAndSiblings(c.Node, examples.PositionPlaceholder)
	h.showOptions(position, c.Candidates, backendPick)

	for {
		answer, err := h.ask(ctx, "Which OPTION is best? ('?' for help)")
		if err != nil {
			return nil, err
		}

		switch strings.ToUpper(answer) {
		case "?":
			fmt.Fprint(h.out, humanHelp)
		case "P":
			if err := h.createExample(ctx, desc, position, c.Candidates); err != nil {
				if errors.Is(err, io.EOF) || ctx.Err() != nil {
					return nil, err
				}
				color.New(color.FgRed).Fprintf(h.out, "Example not saved: %v\n", err)
			}
		case "R":
			fmt.Fprint(h.out, examples.Reasoning(c.Candidates))
		case "S":
			if err := h.editSettings(ctx); err != nil {
				return nil, err
			}
			h.showOptions(position, c.Candidates, backendPick)
		case "Q":
			return nil, ErrQuit
		default:
			n, convErr := strconv.Atoi(answer)
			if convErr != nil || n < 0 || n > len(c.Candidates) {
				fmt.Fprintf(h.out, "Invalid choice %q. Enter 0-%d or '?' for help.\n", answer, len(c.Candidates))
				continue
			}
			if n == 0 {
				return nil, nil
			}
			return h.record(desc, c.Candidates[n-1]), nil
		}
	}
}

// record stores the pick in the cache. A failed cache write is reported but
// does not stop the expansion.
func (h *HumanChooser) record(desc string, picked *models.TaskList) *models.TaskList {
	var err error
	if picked.DoNotExpand {
		if h.cache != nil {
			err = h.cache.AddNoExpand(desc)
		}
		picked = nil
	} else if h.cache != nil {
		err = h.cache.AddTaskList(desc, picked)
	}
	if err != nil {
		color.New(color.FgYellow).Fprintf(h.out, "Could not update cache: %v\n", err)
	}
	return picked
}

// ask prints prompt and waits for the next console line or for ctx to end.
func (h *HumanChooser) ask(ctx context.Context, prompt string) (string, error) {
	color.New(color.FgCyan).Fprintf(h.out, "%s: ", prompt)
	select {
	case <-ctx.Done():
		fmt.Fprintln(h.out)
		return "", ctx.Err()
	case l, ok := <-h.readLines():
		if !ok {
			return "", fmt.Errorf("read input: %w", io.EOF)
		}
		if l.err != nil {
			return "", fmt.Errorf("read input: %w", l.err)
		}
		return strings.TrimSpace(l.text), nil
	}
}

// readLines starts the console reader on first use. The reader blocks on the
// input outside any lock, so a cancelled prompt never waits for a keystroke.
// The channel is closed once input ends.
func (h *HumanChooser) readLines() <-chan inputLine {
	h.readOnce.Do(func() {
		h.lines = make(chan inputLine)
		go func() {
			defer close(h.lines)
			for {
				line, err := h.in.ReadString('\n')
				if err != nil && (err != io.EOF || line == "") {
					h.lines <- inputLine{err: err}
					return
				}
				h.lines <- inputLine{text: line}
				if err != nil {
					return
				}
			}
		}()
	})
	return h.lines
}

// showOptions prints the position and every candidate in columns.
func (h *HumanChooser) showOptions(position string, candidates []*models.TaskList, backendPick int) {
	cols := []string{column(headerStyle.Render("Position"), positionBody.Render(position), "")}
	for i, tl := range candidates {
		header := fmt.Sprintf("Option %d", i+1)
		if tl.FromCache {
			header += fmt.Sprintf(" (C%d)", tl.SelectionCount)
		}
		style := headerStyle
		if i == backendPick {
			header += " (backend)"
			style = pickedStyle
		}
		body := tl.String()
		if tl.DoNotExpand {
			body = models.DoNotExpandText
		}
		cols = append(cols, column(style.Render(header), body, reasonStyle.Render(tl.Reason)))
	}

	fmt.Fprintln(h.out, "\n"+strings.Repeat("=", 80))
	fmt.Fprintln(h.out, lipgloss.JoinHorizontal(lipgloss.Top, cols...))
	fmt.Fprintln(h.out, strings.Repeat("=", 80))
}

func column(header, body, reason string) string {
	parts := []string{header, strings.TrimRight(body, "\n")}
	if reason != "" {
		parts = append(parts, "", reason)
	}
	return columnStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// createExample asks for a best-to-worst ordering and a reason for each
// position, then saves the ranked candidates as a worked example.
func (h *HumanChooser) createExample(ctx context.Context, desc, position string, candidates []*models.TaskList) error {
	if h.examples == nil {
		return errors.New("no example store configured")
	}

	order, err := h.askOrder(ctx, len(candidates))
	if err != nil {
		return err
	}

	ranked := make([]*models.TaskList, len(candidates))
	for i, c := range candidates {
		ranked[i] = c.Clone()
		ranked[i].Rank = models.Unranked
		ranked[i].Reason = ""
	}
	for pos, idx := range order {
		prompt := fmt.Sprintf("Specify a reason <OPTION %d> is %s option", idx+1, examples.Ordinal(pos, len(order)))
		reason, err := h.ask(ctx, prompt)
		if err != nil {
			return err
		}
		ranked[idx].Rank = pos
		ranked[idx].Reason = reason
	}

	if err := h.examples.Save(desc, position, ranked); err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(h.out, "Saved example for %q\n", desc)
	return nil
}

// askOrder reads a permutation of 1..n, re-prompting until one is given.
func (h *HumanChooser) askOrder(ctx context.Context, n int) ([]int, error) {
	for {
		answer, err := h.ask(ctx, fmt.Sprintf("Enter the options from best to worst (e.g. %s)", sampleOrder(n)))
		if err != nil {
			return nil, err
		}
		if order, ok := parseOrder(answer, n); ok {
			return order, nil
		}
		fmt.Fprintf(h.out, "Invalid order %q. List each option 1-%d exactly once.\n", answer, n)
	}
}

func sampleOrder(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = strconv.Itoa(n - i)
	}
	return strings.Join(parts, " ")
}

// parseOrder parses space or comma separated option numbers into 0-based indexes.
func parseOrder(s string, n int) ([]int, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	if len(fields) != n {
		return nil, false
	}
	seen := make(map[int]bool, n)
	order := make([]int, 0, n)
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil || v < 1 || v > n || seen[v] {
			return nil, false
		}
		seen[v] = true
		order = append(order, v-1)
	}
	return order, true
}

// editSettings lists the settings and applies edits until a blank answer.
func (h *HumanChooser) editSettings(ctx context.Context) error {
	if h.settings == nil {
		fmt.Fprintln(h.out, "Settings are not editable here.")
		return nil
	}
	for {
		cfg := h.settings.Snapshot()
		for i, s := range config.Settings() {
			fmt.Fprintf(h.out, "%2d) %-34s %-14s %s\n", i+1, s.Key, s.Value(&cfg), s.Description)
		}

		key, err := h.ask(ctx, "Setting # or name (blank to return)")
		if err != nil {
			return err
		}
		if key == "" {
			return nil
		}
		s, ok := config.Lookup(key)
		if !ok {
			fmt.Fprintf(h.out, "Unknown setting %q\n", key)
			continue
		}
		value, err := h.ask(ctx, fmt.Sprintf("New value for %s", s.Key))
		if err != nil {
			return err
		}
		if err := h.settings.Apply(s.Key, value); err != nil {
			color.New(color.FgRed).Fprintln(h.out, err)
			continue
		}
		fmt.Fprintf(h.out, "%s = %s\n", s.Key, value)
	}
}

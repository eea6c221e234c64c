// Package ui provides terminal components for the adm CLI: a spinner for
// slow gateway calls, tables for search results and an aggregation tree.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AshkanYarmoradi/go-adm"
	"github.com/AshkanYarmoradi/go-adm/cli/styles"
)

// =============================================================================
// Spinner
// =============================================================================

// SpinnerModel shows a message while a task runs.
type SpinnerModel struct {
	spinner  spinner.Model
	message  string
	task     func() (string, error)
	quitting bool
	done     bool
	result   string
	err      error
}

// SpinnerDoneMsg signals that the spinner task is complete.
type SpinnerDoneMsg struct {
	Result string
	Err    error
}

// NewSpinner creates a spinner that runs task when started.
// A nil task leaves the spinner running until a SpinnerDoneMsg arrives.
func NewSpinner(message string, task func() (string, error)) SpinnerModel {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = lipgloss.NewStyle().Foreground(styles.Primary)

	return SpinnerModel{
		spinner: s,
		message: message,
		task:    task,
	}
}

func (m SpinnerModel) Init() tea.Cmd {
	if m.task == nil {
		return m.spinner.Tick
	}
	task := m.task
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		result, err := task()
		return SpinnerDoneMsg{Result: result, Err: err}
	})
}

func (m SpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case SpinnerDoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m SpinnerModel) View() string {
	switch {
	case m.done && m.err != nil:
		return styles.FormatError(m.err.Error()) + "\n"
	case m.done:
		return styles.FormatSuccess(m.result) + "\n"
	case m.quitting:
		return styles.FormatWarning("Cancelled") + "\n"
	}
	return m.spinner.View() + " " + styles.Normal.Render(m.message) + "\n"
}

// Err returns the task error once the spinner is done.
func (m SpinnerModel) Err() error {
	return m.err
}

// Result returns the task result once the spinner is done.
func (m SpinnerModel) Result() string {
	return m.result
}

// =============================================================================
// Table
// =============================================================================

// Table renders rows of text inside a box.
type Table struct {
	headers []string
	rows    [][]string
	widths  []int
}

// NewTable creates a new table with headers
func NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	return &Table{headers: headers, widths: widths}
}

// AddRow adds a row. Extra values are dropped and missing ones left blank.
func (t *Table) AddRow(values ...string) {
	row := make([]string, len(t.headers))
	for i := range row {
		if i >= len(values) {
			break
		}
		row[i] = values[i]
		if w := lipgloss.Width(values[i]); w > t.widths[i] {
			t.widths[i] = w
		}
	}
	t.rows = append(t.rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

func (t *Table) rule(border lipgloss.Style, left, mid, right string) string {
	parts := make([]string, len(t.widths))
	for i, w := range t.widths {
		parts[i] = strings.Repeat("─", w+2)
	}
	return border.Render(left + strings.Join(parts, mid) + right)
}

func (t *Table) line(border, cell lipgloss.Style, values []string) string {
	var sb strings.Builder
	sb.WriteString(border.Render("│"))
	for i, v := range values {
		sb.WriteString(cell.Width(t.widths[i] + 2).Render(v))
		sb.WriteString(border.Render("│"))
	}
	return sb.String()
}

// Render returns the formatted table string
func (t *Table) Render() string {
	if len(t.headers) == 0 {
		return ""
	}

	border := lipgloss.NewStyle().Foreground(styles.Border)
	header := lipgloss.NewStyle().Bold(true).Foreground(styles.Primary).Padding(0, 1)
	cell := lipgloss.NewStyle().Foreground(styles.Text).Padding(0, 1)

	lines := []string{
		t.rule(border, "┌", "┬", "┐"),
		t.line(border, header, t.headers),
		t.rule(border, "├", "┼", "┤"),
	}
	for _, row := range t.rows {
		lines = append(lines, t.line(border, cell, row))
	}
	lines = append(lines, t.rule(border, "└", "┴", "┘"))

	return strings.Join(lines, "\n")
}

// =============================================================================
// Aggregation tree
// =============================================================================

// TreeOptions control how aggregations are rendered.
type TreeOptions struct {
	// HideEmpty skips buckets with a zero count.
	HideEmpty bool

	// FilteredFirst lists filtered buckets before the rest.
	FilteredFirst bool
}

// AggregationTree renders built aggregations as an indented tree.
func AggregationTree(list []adm.AggregationResult, opts TreeOptions) string {
	var sb strings.Builder
	for _, agg := range list {
		writeAggregation(&sb, agg, 0, opts)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func writeAggregation(sb *strings.Builder, agg adm.AggregationResult, depth int, opts TreeOptions) {
	indent := strings.Repeat("  ", depth)

	switch a := agg.(type) {
	case *adm.MetricAggregation:
		value := "-"
		if f, ok := a.Float64(); ok {
			value = fmt.Sprintf("%g", f)
		}
		sb.WriteString(indent + styles.FormatKeyValue(a.AggregationName(), value) + "\n")

	case *adm.Aggregation:
		sb.WriteString(indent + styles.Subtitle.Render(a.AggregationName()) + "\n")

		buckets := a.Buckets()
		if opts.FilteredFirst {
			buckets = a.FilteredFirstBuckets()
		}
		for _, b := range buckets {
			if opts.HideEmpty && b.IsEmpty() {
				continue
			}
			sb.WriteString(indent + "  " + styles.FormatBucket(b.Name, b.Count, b.Filtered) + "\n")
			for _, nested := range b.Aggregations {
				writeAggregation(sb, nested, depth+2, opts)
			}
		}
	}
}

// =============================================================================
// Misc
// =============================================================================

// StatusBadge returns a styled status badge
func StatusBadge(status string) string {
	badge := lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#000000"))

	switch strings.ToLower(status) {
	case "ok", "healthy", "hit", "reachable":
		badge = badge.Background(styles.Success)
	case "miss", "skipped", "disabled":
		badge = badge.Background(styles.Warning)
	case "error", "failed", "unreachable":
		badge = badge.Background(styles.Error).Foreground(lipgloss.Color("#FFFFFF"))
	default:
		badge = badge.Background(styles.Surface).Foreground(styles.Text)
	}
	return badge.Render(status)
}

// Banner returns the one-line adm banner.
func Banner() string {
	return styles.IconChart + " " + lipgloss.NewStyle().
		Bold(true).
		Foreground(styles.Primary).
		Render("adm") +
		" " +
		styles.Muted.Render("- data models over a remote data layer")
}

// Divider returns a horizontal divider line
func Divider(width int) string {
	return styles.Dim.Render(strings.Repeat("─", width))
}

// Package styles provides consistent styling for the adm CLI.
package styles

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	Primary      = lipgloss.Color("#2563EB") // Blue
	PrimaryLight = lipgloss.Color("#60A5FA")
	Secondary    = lipgloss.Color("#14B8A6") // Teal

	Success = lipgloss.Color("#10B981")
	Warning = lipgloss.Color("#F59E0B")
	Error   = lipgloss.Color("#EF4444")
	Info    = lipgloss.Color("#3B82F6")

	Text      = lipgloss.Color("#F9FAFB")
	TextMuted = lipgloss.Color("#9CA3AF")
	TextDim   = lipgloss.Color("#6B7280")
	Surface   = lipgloss.Color("#1F2937")
	Border    = lipgloss.Color("#374151")

	// Filtered buckets are highlighted with Accent.
	Accent = lipgloss.Color("#EC4899")
)

// Text styles
var (
	Bold = lipgloss.NewStyle().
		Bold(true)

	// Title style for headers
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		MarginBottom(1)

	Subtitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryLight)

	Normal = lipgloss.NewStyle().
		Foreground(Text)

	Muted = lipgloss.NewStyle().
		Foreground(TextMuted)

	Dim = lipgloss.NewStyle().
		Foreground(TextDim)

	Highlight = lipgloss.NewStyle().
			Bold(true).
			Foreground(Secondary)

	// Code style for keys, paths and patterns
	Code = lipgloss.NewStyle().
		Foreground(Warning).
		Background(Surface).
		Padding(0, 1)

	// Filtered marks buckets selected by the current filter
	Filtered = lipgloss.NewStyle().
			Bold(true).
			Foreground(Accent)
)

// Status styles
var (
	SuccessStyle = lipgloss.NewStyle().Foreground(Success)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error)
	InfoStyle    = lipgloss.NewStyle().Foreground(Info)
)

// Icons
const (
	IconSuccess  = "✓"
	IconError    = "✗"
	IconWarning  = "⚠"
	IconInfo     = "ℹ"
	IconArrow    = "→"
	IconDot      = "•"
	IconFilter   = "◆"
	IconBucket   = "▸"
	IconCache    = "⚡"
	IconGateway  = "⇄"
	IconDatabase = "🗄️"
	IconChart    = "📊"
)

func newRoundedBox(borderColor lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(1, 2)
}

// Box styles for containers
var (
	Box          = newRoundedBox(Border)
	BoxHighlight = newRoundedBox(Primary)
	BoxSuccess   = newRoundedBox(Success)
	BoxError     = newRoundedBox(Error)
	InfoBox      = newRoundedBox(Info).MarginTop(1)
)

// Indent for nested aggregation levels
var Indent = lipgloss.NewStyle().
	PaddingLeft(2)

// FormatSuccess formats a success message with icon
func FormatSuccess(msg string) string {
	return SuccessStyle.Render(IconSuccess) + " " + Normal.Render(msg)
}

// FormatError formats an error message with icon
func FormatError(msg string) string {
	return ErrorStyle.Render(IconError) + " " + Normal.Render(msg)
}

// FormatWarning formats a warning message with icon
func FormatWarning(msg string) string {
	return WarningStyle.Render(IconWarning) + " " + Normal.Render(msg)
}

// FormatInfo formats an info message with icon
func FormatInfo(msg string) string {
	return InfoStyle.Render(IconInfo) + " " + Normal.Render(msg)
}

// FormatStep formats a step in a process, e.g. "[2/3] Reading cache".
func FormatStep(step, total int, msg string) string {
	stepStyle := lipgloss.NewStyle().
		Foreground(TextMuted).
		Width(8)
	return stepStyle.Render("["+strconv.Itoa(step)+"/"+strconv.Itoa(total)+"]") + " " + msg
}

// FormatKeyValue formats a key-value pair
func FormatKeyValue(key, value string) string {
	keyStyle := lipgloss.NewStyle().
		Foreground(TextMuted).
		Width(20)
	return keyStyle.Render(key+":") + " " + Highlight.Render(value)
}

// FormatBucket formats one bucket line with its document count.
func FormatBucket(label string, count int64, filtered bool) string {
	icon, style := IconBucket, Normal
	if filtered {
		icon, style = IconFilter, Filtered
	}
	return Muted.Render(icon) + " " + style.Render(label) + " " + Dim.Render("("+strconv.FormatInt(count, 10)+")")
}

// DisableColors disables all colors for terminals that don't support them
func DisableColors() {
	for _, c := range []*lipgloss.Color{
		&Primary, &PrimaryLight, &Secondary,
		&Success, &Warning, &Error, &Info,
		&Text, &TextMuted, &TextDim, &Surface, &Border, &Accent,
	} {
		*c = lipgloss.Color("")
	}
}

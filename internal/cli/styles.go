package cli

import "github.com/charmbracelet/lipgloss"

var (
	Text     = lipgloss.Color("#cdd6f4")
	Subtext0 = lipgloss.Color("#a6adc8")
	Surface0 = lipgloss.Color("#313244")

	Pink     = lipgloss.Color("#f5c2e7")
	Mauve    = lipgloss.Color("#cba6f7")
	Red      = lipgloss.Color("#f38ba8")
	Peach    = lipgloss.Color("#fab387")
	Yellow   = lipgloss.Color("#f9e2af")
	Green    = lipgloss.Color("#a6e3a1")
	Teal     = lipgloss.Color("#94e2d5")
	Blue     = lipgloss.Color("#89b4fa")
	Lavender = lipgloss.Color("#b4befe")
)

var (
	KeyStyle    = lipgloss.NewStyle().Foreground(Blue)
	IntStyle    = lipgloss.NewStyle().Foreground(Peach)
	StringStyle = lipgloss.NewStyle().Foreground(Green)
	BytesStyle  = lipgloss.NewStyle().Foreground(Mauve)
	KindStyle   = lipgloss.NewStyle().Foreground(Subtext0).Italic(true)

	LabelStyle = lipgloss.NewStyle().Foreground(Lavender).Bold(true)
	ValueStyle = lipgloss.NewStyle().Foreground(Text)

	HeaderStyle = lipgloss.NewStyle().Foreground(Pink).Bold(true).Padding(0, 1)
	CellStyle   = lipgloss.NewStyle().Foreground(Text).Padding(0, 1)
	BorderStyle = lipgloss.NewStyle().Foreground(Surface0)

	StatusOpen   = lipgloss.NewStyle().Foreground(Teal).Bold(true)
	StatusClosed = lipgloss.NewStyle().Foreground(Yellow).Bold(true)
	StatusFailed = lipgloss.NewStyle().Foreground(Red).Bold(true)

	ErrorStyle = lipgloss.NewStyle().Foreground(Red).Bold(true)
)

package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nicobailon/kiosk/internal/agent"
)

var (
	BaseBg       = lipgloss.Color("#11111b")
	Accent       = lipgloss.Color("#cba6f7")
	Accent2      = lipgloss.Color("#89b4fa")
	Teal         = lipgloss.Color("#94e2d5")
	SuccessColor = lipgloss.Color("#a6e3a1")
	WarnColor    = lipgloss.Color("#f9e2af")
	ErrorColor   = lipgloss.Color("#f38ba8")
	TextColor    = lipgloss.Color("#cdd6f4")
	DimColor     = lipgloss.Color("#6c7086")
	OverlayColor = lipgloss.Color("#45475a")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(Accent).
			Bold(true)
	TextStyle = lipgloss.NewStyle().
			Foreground(TextColor)
	DimStyle = lipgloss.NewStyle().
			Foreground(DimColor)
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)
	SpinnerStyle = lipgloss.NewStyle().
			Foreground(Teal)
	KeyStyle = lipgloss.NewStyle().
			Foreground(Teal).
			Bold(true)
	badgeStyle = lipgloss.NewStyle().
			Foreground(BaseBg).
			Bold(true).
			Padding(0, 1)
)

func stateColor(s agent.State) lipgloss.Color {
	switch s {
	case agent.WaitingForInput:
		return ErrorColor
	case agent.Idle:
		return SuccessColor
	case agent.Running:
		return WarnColor
	default:
		return OverlayColor
	}
}

// StateBadge renders s as a filled label colored by urgency.
func StateBadge(s agent.State) string {
	return badgeStyle.Background(stateColor(s)).Render(string(s))
}

// DeadBadge marks a pane whose process has exited.
func DeadBadge() string {
	return badgeStyle.Background(ErrorColor).Render("dead")
}

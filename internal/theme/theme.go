// Package theme holds the terminal styles used by the escalationd CLI.
package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for section headers and table header rows.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// CellStyle pads ordinary table cells.
var CellStyle = lipgloss.NewStyle().Padding(0, 1)

// DimmedStyle is used for secondary text such as empty-state messages.
var DimmedStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// EscalationStateStyle returns a color-coded style for an escalation state
// name as produced by escalation.State.String.
func EscalationStateStyle(state string) lipgloss.Style {
	base := CellStyle.Bold(true)

	switch state {
	case "due":
		return base.Foreground(ColorRed)
	case "fresh":
		return base.Foreground(ColorYellow)
	case "ack":
		return base.Foreground(ColorGreen)
	default:
		return base.Foreground(ColorGray)
	}
}

// LaneStateStyle returns a color-coded style for a scheduler lane state.
func LaneStateStyle(state string) lipgloss.Style {
	base := CellStyle.Bold(true)

	switch state {
	case "running":
		return base.Foreground(ColorBlue)
	case "error":
		return base.Foreground(ColorRed)
	case "idle":
		return base.Foreground(ColorGreen)
	default:
		return base.Foreground(ColorGray)
	}
}

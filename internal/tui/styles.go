// Package tui is the terminal rendition of the support chat widget and the agent inbox.
package tui

import "github.com/charmbracelet/lipgloss"

const (
	brandColor   = "#2563EB"
	agentColor   = "#10B981"
	warningColor = "#F59E0B"
	errorColor   = "#EF4444"
	dimColor     = "#6B7280"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(brandColor)).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(dimColor))

	AgentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(agentColor)).
			Bold(true)

	CustomerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(brandColor)).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(errorColor))

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(warningColor))

	SelectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(brandColor)).
			Bold(true)

	BadgeStyle = lipgloss.NewStyle().
			Background(lipgloss.Color(errorColor)).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 1)

	StatusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#1F2937")).
			Foreground(lipgloss.Color("#9CA3AF")).
			Padding(0, 1)
)

package ui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor   = lipgloss.Color("#7D56F4")
	secondaryColor = lipgloss.Color("#FF79C6")
	dimColor       = lipgloss.Color("#6272A4")
	textColor      = lipgloss.Color("#F8F8F2")
	successColor   = lipgloss.Color("#50FA7B")
	errorColor     = lipgloss.Color("#FF5555")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			Italic(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	statusStyle = lipgloss.NewStyle().
			Foreground(textColor)

	countStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(successColor)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)

	reasonStyle = lipgloss.NewStyle().
			Foreground(textColor).
			PaddingLeft(2)

	hintStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	keyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(secondaryColor)

	disabledKeyStyle = lipgloss.NewStyle().
				Foreground(dimColor).
				Strikethrough(true)

	toastStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(successColor).
			Padding(0, 1)

	containerStyle = lipgloss.NewStyle().
			Padding(1, 2)
)

const logo = `
   █   ▄▀▄ █ █ █▄ █ ▄▀▀ █▄█ █▀▄ ▄▀▄ █▀▄
   █▄▄ █▀█ ▀▄█ █ ▀█ ▀▄▄ █ █ █▀  █▀█ █▄▀
`

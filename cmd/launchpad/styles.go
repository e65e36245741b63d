package main

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#7D56F4")
	dimColor     = lipgloss.Color("#6272A4")
	textColor    = lipgloss.Color("#F8F8F2")
	successColor = lipgloss.Color("#50FA7B")
	warnColor    = lipgloss.Color("#F1FA8C")
	errorColor   = lipgloss.Color("#FF5555")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	labelStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			Width(12)

	valueStyle = lipgloss.NewStyle().
			Foreground(textColor)

	dimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(successColor)

	warnStyle = lipgloss.NewStyle().
			Foreground(warnColor)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)
)

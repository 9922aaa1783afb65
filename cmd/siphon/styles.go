package main

import "github.com/charmbracelet/lipgloss"

// Color Palette
var (
	salmonPink  = lipgloss.Color("#FFB3BA") // primary accent
	mintGreen   = lipgloss.Color("#A8E6CF") // success
	amber       = lipgloss.Color("#FFD59E") // cancelled
	mutedGray   = lipgloss.Color("#6B7280") // secondary text
	brightWhite = lipgloss.Color("#F9FAFB") // primary text
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	successStyle = lipgloss.NewStyle().
			Foreground(mintGreen).
			Bold(true)

	cancelledStyle = lipgloss.NewStyle().
			Foreground(amber)

	errorStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	cellStyle = lipgloss.NewStyle().
			Foreground(brightWhite).
			PaddingRight(2)
)

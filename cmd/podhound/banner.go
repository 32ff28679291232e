package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

func showBanner() {
	colors := []lipgloss.Color{
		lipgloss.Color("#FF6B6B"),
		lipgloss.Color("#FFA86B"),
		lipgloss.Color("#95E1D3"),
		lipgloss.Color("#4ECDC4"),
	}

	lines := []string{
		"                 _ _                           _",
		" _ __   ___   __| | |__   ___  _   _ _ __   __| |",
		"| '_ \\ / _ \\ / _` | '_ \\ / _ \\| | | | '_ \\ / _` |",
		"| |_) | (_) | (_| | | | | (_) | |_| | | | | (_| |",
		"| .__/ \\___/ \\__,_|_| |_|\\___/ \\__,_|_| |_|\\__,_|",
		"|_|",
		"",
		"    podcast feed discovery " + Version,
	}

	var coloredLines []string
	for i, line := range lines {
		if line == "" {
			coloredLines = append(coloredLines, line)
			continue
		}

		style := lipgloss.NewStyle().
			Foreground(colors[i%len(colors)]).
			Bold(i < 6)

		coloredLines = append(coloredLines, style.Render(line))
	}

	borderStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#4ECDC4")).
		Padding(0, 2).
		MarginTop(1).
		MarginBottom(1)

	banner := lipgloss.JoinVertical(lipgloss.Center, coloredLines...)
	fmt.Println(borderStyle.Render(banner))
}

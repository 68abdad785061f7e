// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func init() {
	// Respects NO_COLOR, FORCE_COLOR, and TTY detection.
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// promptStyle colors the REPL prompt.
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")). // Cyan
			Bold(true)

	// titleStyle is used for headers and the welcome banner.
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")). // Purple
			Bold(true)

	// infoStyle is used for secondary information.
	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")) // Light gray

	// commandStyle highlights commands and values.
	commandStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")) // Green

	// warningStyle is used for warnings.
	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Yellow/Orange

	// errorStyle is used for errors.
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	// dimStyle de-emphasizes hints and separators.
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242")) // Dim gray
)

// renderSeparator renders a horizontal divider of the given width.
func renderSeparator(width int) string {
	if width <= 0 {
		width = 30
	}
	return dimStyle.Render(strings.Repeat("─", width))
}

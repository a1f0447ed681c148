package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	appStyle = lipgloss.NewStyle().
			Padding(1, 2)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#974FD7")).
			MarginBottom(1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00ADD8"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("9")).
			MarginTop(1)
)

// View renders the UI model
func (m *Model) View() string {
	// The file manager and the shell own the whole screen.
	switch m.state {
	case StateShell:
		return ""
	case StateFileManager:
		return m.fileManager.View()
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("SSH Vault"))
	content.WriteString("\n")

	if activeComponent := m.getActiveComponent(); activeComponent != nil {
		content.WriteString(activeComponent.View())
	} else {
		content.WriteString("No active component")
	}

	if m.state == StateConnectionList {
		if m.errorMessage != "" {
			content.WriteString("\n")
			content.WriteString(errorStyle.Render(m.errorMessage))
		} else if m.statusMessage != "" {
			content.WriteString("\n")
			content.WriteString(statusStyle.Render(m.statusMessage))
		}
	}

	return appStyle.Render(content.String())
}

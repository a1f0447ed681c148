package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/eugeniofciuvasile/ssh-vault/internal/settings"
)

// Run starts the full-screen interface and blocks until the user quits.
func Run(s settings.Settings) error {
	m := NewModel(s)
	defer m.shutdown()

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}

package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/eugeniofciuvasile/ssh-vault/internal/config"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true)
	normalStyle   = lipgloss.NewStyle()
	groupStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
	filterStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const maxVisible = 10

// SelectorModel is a minimal picker used by `connect` without an id.
type SelectorModel struct {
	profiles []config.ServerProfile
	filtered []config.ServerProfile
	cursor   int
	filter   string
	choice   *config.ServerProfile
	quitting bool
	width    int
	height   int
}

func NewSelector(profiles []config.ServerProfile) *SelectorModel {
	return &SelectorModel{
		profiles: profiles,
		filtered: profiles,
		width:    80,
		height:   20,
	}
}

func (m *SelectorModel) Init() tea.Cmd {
	return nil
}

func (m *SelectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit

		case tea.KeyEnter:
			if m.cursor < len(m.filtered) {
				choice := m.filtered[m.cursor]
				m.choice = &choice
			}
			return m, tea.Quit

		case tea.KeyUp:
			if m.cursor > 0 {
				m.cursor--
			}

		case tea.KeyDown:
			if m.cursor < len(m.filtered)-1 {
				m.cursor++
			}

		case tea.KeyBackspace, tea.KeyDelete:
			if len(m.filter) > 0 {
				runes := []rune(m.filter)
				m.filter = string(runes[:len(runes)-1])
				m.updateFilter()
			}

		case tea.KeyRunes, tea.KeySpace:
			if msg.Type == tea.KeySpace {
				m.filter += " "
			} else {
				m.filter += string(msg.Runes)
			}
			m.updateFilter()
		}
	}

	return m, nil
}

// updateFilter ranks profiles against the filter, best match first.
func (m *SelectorModel) updateFilter() {
	m.cursor = 0
	m.filtered = config.Search(m.filter, m.profiles)
}

func (m *SelectorModel) View() string {
	if m.choice != nil || m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Select a server"))
	b.WriteString("\n\n")

	if m.filter != "" {
		b.WriteString(filterStyle.Render("Filter: " + m.filter))
	} else {
		b.WriteString(helpStyle.Render("Type to filter..."))
	}
	b.WriteString("\n\n")

	start := 0
	if m.cursor >= maxVisible {
		start = m.cursor - maxVisible + 1
	}
	end := min(start+maxVisible, len(m.filtered))

	if len(m.filtered) == 0 {
		b.WriteString(helpStyle.Render("No matches found"))
		b.WriteString("\n")
	} else {
		for i := start; i < end; i++ {
			p := m.filtered[i]
			line := fmt.Sprintf("%s (%s@%s)", p.ID, p.Username, p.Address())
			if p.Group != "" {
				line += " " + groupStyle.Render("["+p.Group+"]")
			}

			if i == m.cursor {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString(normalStyle.Render("  " + line))
			}
			b.WriteString("\n")
		}

		if len(m.filtered) > maxVisible {
			b.WriteString("\n")
			b.WriteString(helpStyle.Render(fmt.Sprintf("Showing %d-%d of %d servers",
				start+1, end, len(m.filtered))))
		}
	}

	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("↑/↓: navigate • Enter: select • Esc/Ctrl+C: quit"))

	return b.String()
}

// Choice returns the selected profile, or nil if the user quit.
func (m *SelectorModel) Choice() *config.ServerProfile {
	return m.choice
}

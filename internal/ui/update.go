package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/eugeniofciuvasile/ssh-vault/internal/ui/components"
)

// Update handles updates to the UI model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.connectionList != nil && m.state != StateConnectionList {
			m.connectionList.SetSize(msg.Width, m.listHeight())
		}

	case unlockedMsg:
		return m, m.handleUnlocked(msg)

	case attemptStateMsg:
		return m, m.handleAttemptState(msg)

	case attemptDoneMsg:
		return m, m.handleAttemptDone(msg)

	case shellExitMsg:
		return m, m.handleShellExit(msg)

	case sessionClosedMsg:
		m.handleSessionClosed(msg)
		return m, nil

	case revealedMsg:
		return m, m.handleRevealed(msg)

	case clipboardClearMsg:
		m.handleClipboardClear(msg)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.state == StateConnectionList && !m.connectionList.Filtering() {
			if cmd, handled := m.handleListKey(msg); handled {
				return m, cmd
			}
		}
	}

	if m.state == StateConnectionList && m.connectionList != nil {
		if _, ok := msg.(tea.KeyMsg); ok {
			m.errorMessage = ""
		}
	}

	// Pass message to active component
	if activeComponent := m.getActiveComponent(); activeComponent != nil {
		model, cmd := activeComponent.Update(msg)
		return m, m.handleComponentResult(model, cmd)
	}
	return m, nil
}

// handleListKey runs the list shortcuts on the highlighted profile.
func (m *Model) handleListKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	p := m.connectionList.Highlighted()

	switch msg.String() {
	case "a":
		m.connectionForm = components.NewConnectionForm(nil)
		m.connectionForm.SetSize(m.width, m.height)
		m.state = StateAddProfile
		return m.connectionForm.Init(), true

	case "i":
		m.prompt = components.NewPromptForm("Import ssh_config",
			"Hosts already in the vault are skipped", "~/.ssh/config")
		m.prompt.SetSize(m.width, m.height)
		m.state = StateImport
		return m.prompt.Init(), true

	case "L":
		return m.lock(), true
	}

	if p == nil {
		return nil, false
	}

	switch msg.String() {
	case "e":
		m.connectionForm = components.NewConnectionForm(p)
		m.connectionForm.SetSize(m.width, m.height)
		m.state = StateEditProfile
		return m.connectionForm.Init(), true

	case "d":
		m.confirm = components.NewDeleteConfirmation("Delete Server",
			"Are you sure you want to delete this server?", p.ID)
		m.confirm.SetSize(m.width, m.height)
		m.state = StateDeleteProfile
		return nil, true

	case "s":
		return m.connect(*p, intentFiles), true

	case "y":
		return m.copySecret(*p), true

	case "g", "G":
		if p.Group == "" {
			m.errorMessage = p.ID + " is not in a group"
			return nil, true
		}
		if msg.String() == "G" {
			m.confirm = components.NewDeleteConfirmation("Remove Group",
				"Servers in this group are kept and become ungrouped.", p.Group)
			m.confirm.SetSize(m.width, m.height)
			m.state = StateRemoveGroup
			return nil, true
		}
		m.renameFrom = p.Group
		m.prompt = components.NewPromptForm("Rename Group", "New name for "+p.Group, p.Group)
		m.prompt.SetSize(m.width, m.height)
		m.state = StateRenameGroup
		return m.prompt.Init(), true
	}
	return nil, false
}

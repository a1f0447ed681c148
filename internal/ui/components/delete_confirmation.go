package components

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DeleteConfirmation asks before a destructive action on a named subject.
type DeleteConfirmation struct {
	title     string
	message   string
	subject   string
	confirmed bool
	canceled  bool
	width     int
	height    int
}

// NewDeleteConfirmation builds a y/n dialog. title names the action and
// message explains its consequence for subject.
func NewDeleteConfirmation(title, message, subject string) *DeleteConfirmation {
	return &DeleteConfirmation{title: title, message: message, subject: subject}
}

func (d *DeleteConfirmation) Init() tea.Cmd {
	return nil
}

func (d *DeleteConfirmation) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if d.confirmed || d.canceled {
		return d, nil
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.SetSize(msg.Width, msg.Height)
	case tea.KeyMsg:
		switch msg.String() {
		case "y", "Y":
			d.confirmed = true
		case "n", "N", "esc", "ctrl+c":
			d.canceled = true
		}
	}
	return d, nil
}

func (d *DeleteConfirmation) View() string {
	if d.canceled {
		return ""
	}

	title := lipgloss.NewStyle().Bold(true).Foreground(colorDanger).Render("⚠ " + d.title)
	message := labelStyle.Render(d.message)
	subject := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Render(d.subject)
	prompt := hintStyle.Render("Press Y to confirm, N or Esc to cancel")

	content := lipgloss.JoinVertical(lipgloss.Center, title, "\n", message, "\n", subject, "\n\n", prompt)
	box := boxStyle.BorderForeground(colorDanger).Align(lipgloss.Center).Render(content)
	return centered(d.width, d.height, box)
}

func (d *DeleteConfirmation) SetSize(width, height int) {
	d.width = width
	d.height = height
}

func (d *DeleteConfirmation) Subject() string {
	return d.subject
}

func (d *DeleteConfirmation) IsConfirmed() bool {
	return d.confirmed
}

func (d *DeleteConfirmation) IsCanceled() bool {
	return d.canceled
}

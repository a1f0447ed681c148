package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/eugeniofciuvasile/ssh-vault/internal/ssh"
)

// ConnectingView shows the progress of a connection attempt. Pressing Esc
// marks it canceled; the caller cancels the attempt itself.
type ConnectingView struct {
	spinner  spinner.Model
	target   string
	states   []ssh.State
	canceled bool
	width    int
	height   int
}

func NewConnectingView(target string) *ConnectingView {
	s := spinner.New(spinner.WithSpinner(spinner.Dot))
	s.Style = lipgloss.NewStyle().Foreground(colorSecondary)
	return &ConnectingView{spinner: s, target: target}
}

func (c *ConnectingView) Init() tea.Cmd {
	return c.spinner.Tick
}

func (c *ConnectingView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.SetSize(msg.Width, msg.Height)
		return c, nil
	case tea.KeyMsg:
		if msg.String() == "esc" || msg.String() == "ctrl+c" {
			c.canceled = true
		}
		return c, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		c.spinner, cmd = c.spinner.Update(msg)
		return c, cmd
	}
	return c, nil
}

// Observe records a state transition of the attempt.
func (c *ConnectingView) Observe(s ssh.State) {
	c.states = append(c.states, s)
}

// State returns the latest observed state.
func (c *ConnectingView) State() ssh.State {
	if len(c.states) == 0 {
		return ssh.StateIdle
	}
	return c.states[len(c.states)-1]
}

func (c *ConnectingView) View() string {
	var b strings.Builder
	b.WriteString(sectionTitleStyle.Render("Connecting to " + c.target))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s", c.spinner.View(), c.State()))
	b.WriteString("\n\n")

	// Each Resolving starts a new method try.
	tries := 0
	for _, s := range c.states {
		if s == ssh.StateResolving {
			tries++
		}
	}
	if tries > 1 {
		b.WriteString(labelStyle.Render(fmt.Sprintf("Trying method %d", tries)))
		b.WriteString("\n\n")
	}
	b.WriteString(hintStyle.Render("Esc to cancel"))
	return centered(c.width, c.height, boxStyle.Align(lipgloss.Left).Render(b.String()))
}

func (c *ConnectingView) SetSize(width, height int) {
	c.width = width
	c.height = height
}

func (c *ConnectingView) IsCanceled() bool {
	return c.canceled
}

package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// PromptForm asks for a single value.
type PromptForm struct {
	textInput textinput.Model
	title     string
	desc      string
	submitted bool
	canceled  bool
	errorMsg  string
	width     int
	height    int
}

func NewPromptForm(title, desc, value string) *PromptForm {
	ti := textinput.New()
	ti.SetValue(value)
	ti.Focus()
	ti.Width = 50
	ti.PromptStyle = focusedStyle
	ti.TextStyle = focusedStyle

	return &PromptForm{textInput: ti, title: title, desc: desc}
}

func (f *PromptForm) Init() tea.Cmd {
	return textinput.Blink
}

func (f *PromptForm) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		f.SetSize(msg.Width, msg.Height)
		return f, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "esc", "ctrl+c":
			f.canceled = true
			return f, nil
		case "enter":
			if f.Value() == "" {
				f.errorMsg = "A value is required"
				return f, nil
			}
			f.submitted = true
			return f, nil
		}
	}

	var cmd tea.Cmd
	f.textInput, cmd = f.textInput.Update(msg)
	return f, cmd
}

func (f *PromptForm) View() string {
	parts := []string{
		sectionTitleStyle.Render(f.title),
		labelStyle.Render(f.desc),
		"",
		f.textInput.View(),
	}
	if f.errorMsg != "" {
		parts = append(parts, "", errorStyle.Render(f.errorMsg))
	}
	content := lipgloss.JoinVertical(lipgloss.Center, parts...)
	return centered(f.width, f.height, boxStyle.Align(lipgloss.Center).Render(content))
}

func (f *PromptForm) SetSize(width, height int) {
	f.width = width
	f.height = height
}

func (f *PromptForm) IsSubmitted() bool {
	return f.submitted
}

func (f *PromptForm) IsCanceled() bool {
	return f.canceled
}

// Value returns the trimmed input.
func (f *PromptForm) Value() string {
	return strings.TrimSpace(f.textInput.Value())
}

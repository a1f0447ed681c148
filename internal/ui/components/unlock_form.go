package components

import (
	"crypto/subtle"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// UnlockForm asks for the master password. In create mode it asks twice.
type UnlockForm struct {
	inputs    []textinput.Model
	focus     int
	create    bool
	storePath string
	submitted bool
	canceled  bool
	busy      bool
	errorMsg  string
	width     int
	height    int
}

func newPasswordInput(placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'
	ti.Width = 40
	ti.Prompt = "> "
	ti.PromptStyle = blurredStyle
	ti.TextStyle = blurredStyle
	return ti
}

// NewUnlockForm returns a form for opening the store at storePath, or for
// creating it when create is set.
func NewUnlockForm(storePath string, create bool) *UnlockForm {
	inputs := []textinput.Model{newPasswordInput("Master password")}
	if create {
		inputs = append(inputs, newPasswordInput("Confirm master password"))
	}
	f := &UnlockForm{inputs: inputs, create: create, storePath: storePath}
	f.setFocus(0)
	return f
}

func (f *UnlockForm) setFocus(i int) {
	f.focus = i
	for j := range f.inputs {
		if j == i {
			f.inputs[j].Focus()
			f.inputs[j].PromptStyle = focusedStyle
			f.inputs[j].TextStyle = focusedStyle
		} else {
			f.inputs[j].Blur()
			f.inputs[j].PromptStyle = blurredStyle
			f.inputs[j].TextStyle = blurredStyle
		}
	}
}

func (f *UnlockForm) Init() tea.Cmd {
	return textinput.Blink
}

func (f *UnlockForm) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if f.submitted || f.canceled {
		return f, nil
	}
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		f.SetSize(msg.Width, msg.Height)
		return f, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			f.canceled = true
			return f, nil
		case "tab", "down", "shift+tab", "up":
			f.setFocus((f.focus + 1) % len(f.inputs))
			return f, nil
		case "enter":
			if f.focus < len(f.inputs)-1 {
				f.setFocus(f.focus + 1)
				return f, nil
			}
			f.validate()
			return f, nil
		}
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return f, cmd
}

func (f *UnlockForm) validate() {
	pw := f.inputs[0].Value()
	switch {
	case pw == "":
		f.errorMsg = "Password required"
	case f.create && subtle.ConstantTimeCompare([]byte(pw), []byte(f.inputs[1].Value())) != 1:
		f.errorMsg = "Passwords do not match"
		f.inputs[1].Reset()
		f.setFocus(1)
	default:
		f.errorMsg = ""
		f.submitted = true
	}
}

func (f *UnlockForm) View() string {
	var b strings.Builder
	title := "Unlock ssh-vault"
	desc := "Enter the master password for\n" + f.storePath
	if f.create {
		title = "Create ssh-vault"
		desc = "No store found. Choose a master password for\n" + f.storePath
	}
	b.WriteString(sectionTitleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render(desc))
	b.WriteString("\n\n")
	for _, in := range f.inputs {
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	if f.busy {
		b.WriteString("\n")
		b.WriteString(hintStyle.Render("Deriving key..."))
	}
	if f.errorMsg != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(f.errorMsg))
	}
	return centered(f.width, f.height, boxStyle.Align(lipgloss.Left).Render(b.String()))
}

func (f *UnlockForm) SetSize(width, height int) {
	f.width = width
	f.height = height
}

func (f *UnlockForm) IsSubmitted() bool {
	return f.submitted
}

func (f *UnlockForm) IsCanceled() bool {
	return f.canceled
}

// Creating reports whether the form creates a new store.
func (f *UnlockForm) Creating() bool {
	return f.create
}

func (f *UnlockForm) Password() string {
	return f.inputs[0].Value()
}

// Busy reports whether a submitted password is being checked.
func (f *UnlockForm) Busy() bool {
	return f.busy
}

// SetBusy shows that the key is being derived.
func (f *UnlockForm) SetBusy(busy bool) {
	f.busy = busy
}

// Fail shows msg and lets the user try again with empty fields.
func (f *UnlockForm) Fail(msg string) {
	f.errorMsg = msg
	f.submitted = false
	f.busy = false
	for i := range f.inputs {
		f.inputs[i].Reset()
	}
	f.setFocus(0)
}

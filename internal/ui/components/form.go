package components

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/eugeniofciuvasile/ssh-vault/internal/config"
	"github.com/eugeniofciuvasile/ssh-vault/pkg/sshutil"
)

// Input indices. submitIndex is the button after the last input.
const (
	fieldID = iota
	fieldHost
	fieldPort
	fieldUser
	fieldGroup
	fieldNotes
	fieldPassword
	fieldKeyPath
	fieldPassphrase
	fieldFallback
	submitIndex
)

// ProfileDraft is what the form produces. Password and Passphrase are the
// plaintext the user typed; empty means keep the stored value when editing.
type ProfileDraft struct {
	OriginalID string
	Profile    config.ServerProfile
	Password   string
	Passphrase string
}

// ConnectionForm creates or edits a server profile.
type ConnectionForm struct {
	inputs       []textinput.Model
	focusIndex   int
	editing      bool
	originalID   string
	kind         config.AuthKind
	hasSecret    bool
	hasPhrase    bool
	draft        ProfileDraft
	submitted    bool
	canceled     bool
	width        int
	height       int
	errorMessage string

	// Dropdown for key selection, only open on the key path field.
	dropdownOpen bool
	keyList      list.Model
	allKeys      []string
}

type keyItem string

func (k keyItem) Title() string       { return string(k) }
func (k keyItem) Description() string { return "" }
func (k keyItem) FilterValue() string { return string(k) }

// NewConnectionForm returns an empty form when profile is nil, or one
// prefilled for editing it.
func NewConnectionForm(profile *config.ServerProfile) *ConnectionForm {
	return newConnectionForm(profile, sshutil.ScanSSHKeys())
}

func newConnectionForm(profile *config.ServerProfile, keys []string) *ConnectionForm {
	inputs := make([]textinput.Model, submitIndex)
	initInput := func(i int, placeholder string, width int) {
		inputs[i] = textinput.New()
		inputs[i].Placeholder = placeholder
		inputs[i].Width = width
		inputs[i].Prompt = "> "
		inputs[i].PromptStyle = blurredStyle
		inputs[i].TextStyle = blurredStyle
	}

	initInput(fieldID, "Identifier, e.g. web-prod", 40)
	initInput(fieldHost, "Hostname or IP", 40)
	initInput(fieldPort, "Port (default: 22)", 10)
	initInput(fieldUser, "Username", 30)
	initInput(fieldGroup, "Group", 30)
	initInput(fieldNotes, "Notes", 50)
	initInput(fieldPassword, "Password", 40)
	initInput(fieldKeyPath, "Path to SSH key (example: ~/.ssh/id_ed25519)", 50)
	initInput(fieldPassphrase, "Key passphrase (optional)", 40)
	initInput(fieldFallback, "Fallback methods, e.g. agent, password", 50)
	for _, i := range []int{fieldPassword, fieldPassphrase} {
		inputs[i].EchoMode = textinput.EchoPassword
		inputs[i].EchoCharacter = '•'
	}

	f := &ConnectionForm{inputs: inputs, allKeys: keys}
	if profile != nil {
		f.editing = true
		f.originalID = profile.ID
		f.kind = profile.Auth.Kind
		f.hasSecret = profile.Secret != nil
		f.hasPhrase = profile.Passphrase != nil
		inputs[fieldID].SetValue(profile.ID)
		inputs[fieldHost].SetValue(profile.Host)
		inputs[fieldPort].SetValue(strconv.Itoa(profile.Port))
		inputs[fieldUser].SetValue(profile.Username)
		inputs[fieldGroup].SetValue(profile.Group)
		inputs[fieldNotes].SetValue(profile.Notes)
		inputs[fieldKeyPath].SetValue(profile.Auth.KeyPath)
		inputs[fieldFallback].SetValue(formatFallback(profile.Fallback))
		if f.hasSecret {
			inputs[fieldPassword].Placeholder = "(unchanged)"
		}
		if f.hasPhrase {
			inputs[fieldPassphrase].Placeholder = "(unchanged)"
		}
	} else {
		f.kind = config.AuthPassword
		inputs[fieldGroup].SetValue(config.DefaultGroup)
	}

	l := list.New(keyItems(keys), list.NewDefaultDelegate(), 50, 6)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	f.keyList = l

	f.focus(fieldID)
	return f
}

func keyItems(keys []string) []list.Item {
	items := make([]list.Item, len(keys))
	for i, k := range keys {
		items[i] = keyItem(k)
	}
	return items
}

func (m *ConnectionForm) Init() tea.Cmd {
	return textinput.Blink
}

// visible reports whether input i applies to the current auth plan.
func (m *ConnectionForm) visible(i int) bool {
	fallback, _ := parseFallback(m.inputs[fieldFallback].Value(), "")
	uses := func(kind config.AuthKind) bool {
		if m.kind == kind {
			return true
		}
		for _, f := range fallback {
			if f.Kind == kind {
				return true
			}
		}
		return false
	}
	switch i {
	case fieldPassword:
		return uses(config.AuthPassword)
	case fieldKeyPath:
		return m.kind == config.AuthKeyFile
	case fieldPassphrase:
		return uses(config.AuthKeyFile)
	}
	return true
}

func (m *ConnectionForm) focus(i int) tea.Cmd {
	m.focusIndex = i
	var cmd tea.Cmd
	for j := range m.inputs {
		if j == i {
			cmd = m.inputs[j].Focus()
			m.inputs[j].PromptStyle = focusedStyle
			m.inputs[j].TextStyle = focusedStyle
		} else {
			m.inputs[j].Blur()
			m.inputs[j].PromptStyle = blurredStyle
			m.inputs[j].TextStyle = blurredStyle
		}
	}
	m.dropdownOpen = i == fieldKeyPath && len(m.allKeys) > 0
	if m.dropdownOpen {
		m.refilterKeys()
	}
	return cmd
}

func (m *ConnectionForm) move(step int) tea.Cmd {
	next := m.focusIndex
	for {
		next = (next + step + submitIndex + 1) % (submitIndex + 1)
		if next == submitIndex || m.visible(next) {
			return m.focus(next)
		}
	}
}

func (m *ConnectionForm) refilterKeys() {
	m.keyList.SetItems(keyItems(filterKeys(m.allKeys, strings.TrimSpace(m.inputs[fieldKeyPath].Value()))))
	m.keyList.ResetSelected()
}

func (m *ConnectionForm) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.canceled = true
			return m, nil
		}

		if m.dropdownOpen {
			switch msg.String() {
			case "esc":
				m.dropdownOpen = false
				return m, nil
			case "enter":
				if s, ok := m.keyList.SelectedItem().(keyItem); ok {
					m.inputs[fieldKeyPath].SetValue(string(s))
				}
				m.dropdownOpen = false
				return m, nil
			case "up", "down":
				var cmd tea.Cmd
				m.keyList, cmd = m.keyList.Update(msg)
				return m, cmd
			}
			if isPrintableKey(msg) {
				var cmd tea.Cmd
				m.inputs[fieldKeyPath], cmd = m.inputs[fieldKeyPath].Update(msg)
				cur := strings.TrimSpace(m.inputs[fieldKeyPath].Value())
				// A typed path means manual entry.
				if strings.Contains(cur, "/") || strings.HasPrefix(cur, "~") || strings.HasPrefix(cur, ".") {
					m.dropdownOpen = false
				} else {
					m.refilterKeys()
				}
				return m, cmd
			}
		}

		switch msg.String() {
		case "esc":
			m.canceled = true
			return m, nil

		case "tab", "down":
			return m, m.move(1)

		case "shift+tab", "up":
			return m, m.move(-1)

		case "ctrl+p":
			m.kind = (m.kind + 1) % (config.AuthAgent + 1)
			if !m.visible(m.focusIndex) {
				return m, m.move(1)
			}
			return m, nil

		case "enter":
			if m.focusIndex != submitIndex {
				return m, m.move(1)
			}
			draft, err := m.build()
			if err != "" {
				m.errorMessage = err
				return m, nil
			}
			m.draft = draft
			m.errorMessage = ""
			m.submitted = true
			return m, nil
		}
	}

	if m.focusIndex < submitIndex {
		var cmd tea.Cmd
		m.inputs[m.focusIndex], cmd = m.inputs[m.focusIndex].Update(msg)
		return m, cmd
	}
	return m, nil
}

// build validates the inputs and assembles the draft.
func (m *ConnectionForm) build() (ProfileDraft, string) {
	value := func(i int) string { return strings.TrimSpace(m.inputs[i].Value()) }

	if value(fieldID) == "" {
		return ProfileDraft{}, "Identifier is required"
	}
	if value(fieldHost) == "" {
		return ProfileDraft{}, "Host is required"
	}
	if value(fieldUser) == "" {
		return ProfileDraft{}, "Username is required"
	}
	port := config.DefaultPort
	if value(fieldPort) != "" {
		p, err := strconv.Atoi(value(fieldPort))
		if err != nil || p < 1 || p > 65535 {
			return ProfileDraft{}, "Port must be a number between 1 and 65535"
		}
		port = p
	}

	auth := config.AuthMethod{Kind: m.kind}
	if m.kind == config.AuthKeyFile {
		auth.KeyPath = value(fieldKeyPath)
		if auth.KeyPath == "" {
			return ProfileDraft{}, "SSH key path is required for key authentication"
		}
	}
	fallback, err := parseFallback(value(fieldFallback), auth.KeyPath)
	if err != nil {
		return ProfileDraft{}, err.Error()
	}

	draft := ProfileDraft{
		OriginalID: m.originalID,
		Profile: config.ServerProfile{
			ID:       value(fieldID),
			Host:     value(fieldHost),
			Port:     port,
			Username: value(fieldUser),
			Group:    value(fieldGroup),
			Notes:    value(fieldNotes),
			Auth:     auth,
			Fallback: fallback,
		},
	}
	if m.visible(fieldPassword) {
		draft.Password = m.inputs[fieldPassword].Value()
		if draft.Password == "" && !m.hasSecret && m.kind == config.AuthPassword {
			return ProfileDraft{}, "Password is required for password authentication"
		}
	}
	if m.visible(fieldPassphrase) {
		draft.Passphrase = m.inputs[fieldPassphrase].Value()
	}
	return draft, ""
}

func (m *ConnectionForm) View() string {
	var b strings.Builder

	title := "Add Server"
	if m.editing {
		title = "Edit Server"
	}
	b.WriteString(sectionTitleStyle.Render(title))
	b.WriteString("\n\n")

	field := func(name string, i int) {
		b.WriteString(labelStyle.Render(name) + "\n")
		b.WriteString(m.inputs[i].View() + "\n")
	}

	field("Identifier", fieldID)
	field("Host", fieldHost)
	field("Port", fieldPort)
	field("Username", fieldUser)
	field("Group", fieldGroup)
	field("Notes", fieldNotes)
	b.WriteString("\n")

	authHint := hintStyle.Render("(Ctrl+P to change)")
	b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Authentication: "+m.kind.String()), authHint))
	if m.visible(fieldKeyPath) {
		field("Key file", fieldKeyPath)
		if m.dropdownOpen {
			dropdownBox := lipgloss.NewStyle().
				MarginLeft(2).
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorSecondary).
				Padding(0, 1).
				Render(m.keyList.View())
			b.WriteString(dropdownBox + "\n")
		}
	}
	if m.visible(fieldPassword) {
		field("Password", fieldPassword)
	}
	if m.visible(fieldPassphrase) {
		field("Key passphrase", fieldPassphrase)
	}
	field("Fallback", fieldFallback)
	b.WriteString("\n")

	button := blurredButton
	if m.focusIndex == submitIndex {
		button = focusedButton
	}
	b.WriteString(button)

	if m.errorMessage != "" {
		b.WriteString("\n\n")
		b.WriteString(errorStyle.Render(m.errorMessage))
	}

	return centered(m.width, m.height, boxStyle.Align(lipgloss.Left).Render(b.String()))
}

func (m *ConnectionForm) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *ConnectionForm) IsCanceled() bool {
	return m.canceled
}

func (m *ConnectionForm) IsSubmitted() bool {
	return m.submitted
}

// Draft returns the submitted values.
func (m *ConnectionForm) Draft() ProfileDraft {
	return m.draft
}

// Fail reopens a submitted form with an error, for example when the
// registry rejects the profile.
func (m *ConnectionForm) Fail(msg string) {
	m.submitted = false
	m.errorMessage = msg
}

// parseFallback reads "agent, password, keyfile:~/.ssh/id". A bare keyfile
// entry uses defaultKey.
func parseFallback(s, defaultKey string) ([]config.AuthMethod, error) {
	var methods []config.AuthMethod
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, keyPath, _ := strings.Cut(part, ":")
		kind, err := config.ParseAuthKind(name)
		if err != nil {
			return nil, err
		}
		m := config.AuthMethod{Kind: kind}
		if kind == config.AuthKeyFile {
			m.KeyPath = cmp.Or(strings.TrimSpace(keyPath), defaultKey)
			if m.KeyPath == "" {
				return nil, fmt.Errorf("fallback %q needs a key path", part)
			}
		}
		methods = append(methods, m)
	}
	return methods, nil
}

func formatFallback(methods []config.AuthMethod) string {
	parts := make([]string, len(methods))
	for i, m := range methods {
		parts[i] = m.Kind.String()
		if m.Kind == config.AuthKeyFile {
			parts[i] += ":" + m.KeyPath
		}
	}
	return strings.Join(parts, ", ")
}

// filterKeys returns keys that contain the filter substring (case-insensitive)
func filterKeys(keys []string, filter string) []string {
	if filter == "" {
		return keys
	}
	filter = strings.ToLower(filter)
	out := make([]string, 0)
	for _, k := range keys {
		if strings.Contains(strings.ToLower(k), filter) {
			out = append(out, k)
		}
	}
	return out
}

// isPrintableKey checks if the key message represents a character that modifies text input.
func isPrintableKey(msg tea.KeyMsg) bool {
	switch msg.Type {
	case tea.KeyRunes, tea.KeySpace, tea.KeyBackspace, tea.KeyDelete:
		return true
	}
	return msg.Paste
}

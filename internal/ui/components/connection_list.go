package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"

	"github.com/eugeniofciuvasile/ssh-vault/internal/config"
)

// profileItem is one row of the server list.
type profileItem struct {
	profile config.ServerProfile
}

// FilterValue matches on the same text the CLI filter uses.
func (i profileItem) FilterValue() string {
	p := i.profile
	return strings.Join([]string{p.ID, p.Username + "@" + p.Host, p.Group}, " ")
}

func (i profileItem) Title() string {
	return i.profile.ID
}

func (i profileItem) Description() string {
	p := i.profile
	desc := fmt.Sprintf("%s@%s · %s", p.Username, p.Address(), p.Auth.Kind)
	if p.Group != "" {
		desc = groupTagStyle.Render("["+p.Group+"]") + " " + desc
	}
	return desc
}

// fuzzyFilter ranks list items best match first.
func fuzzyFilter(term string, targets []string) []list.Rank {
	matches := fuzzy.Find(term, targets)
	ranks := make([]list.Rank, len(matches))
	for i, m := range matches {
		ranks[i] = list.Rank{Index: m.Index, MatchedIndexes: m.MatchedIndexes}
	}
	return ranks
}

var listKeys = []key.Binding{
	key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open shell")),
	key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "file transfer")),
	key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add server")),
	key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit server")),
	key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete server")),
	key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy secret")),
	key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "rename group")),
	key.NewBinding(key.WithKeys("G"), key.WithHelp("G", "remove group")),
	key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "import ssh_config")),
	key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "lock")),
}

// ConnectionList lists server profiles ordered by group.
type ConnectionList struct {
	list     list.Model
	profiles []config.ServerProfile
	selected *config.ServerProfile
}

// NewConnectionList creates the list. width and height should be the
// current terminal size.
func NewConnectionList(profiles []config.ServerProfile, width, height int) *ConnectionList {
	if width <= 0 {
		width = 60
	}
	if height <= 0 {
		height = 20
	}

	l := list.New(nil, list.NewDefaultDelegate(), width, height)
	l.Title = "SSH Vault"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Filter = fuzzyFilter
	l.Styles.Title = titleStyle
	l.Styles.PaginationStyle = paginationStyle
	l.Styles.HelpStyle = helpStyle
	l.AdditionalShortHelpKeys = func() []key.Binding { return listKeys[:3] }
	l.AdditionalFullHelpKeys = func() []key.Binding { return listKeys }

	cl := &ConnectionList{list: l}
	cl.SetProfiles(profiles)
	return cl
}

func (cl *ConnectionList) Init() tea.Cmd {
	return nil
}

func (cl *ConnectionList) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		cl.list.SetWidth(msg.Width)
		cl.list.SetHeight(msg.Height - 4)
		return cl, nil

	case tea.KeyMsg:
		if cl.Filtering() {
			var cmd tea.Cmd
			cl.list, cmd = cl.list.Update(msg)
			return cl, cmd
		}
		if msg.String() == "enter" {
			if p := cl.Highlighted(); p != nil {
				cl.selected = p
			}
			return cl, nil
		}
	}

	var cmd tea.Cmd
	cl.list, cmd = cl.list.Update(msg)
	return cl, cmd
}

func (cl *ConnectionList) View() string {
	if len(cl.profiles) == 0 {
		return fmt.Sprintf("\n%s\n\n  No servers yet. Press 'a' to add one or 'i' to import ~/.ssh/config.\n\n",
			titleStyle.Render("SSH Vault"))
	}
	return cl.list.View()
}

// Filtering reports whether the user is typing a filter, in which case
// single-letter shortcuts must not fire.
func (cl *ConnectionList) Filtering() bool {
	return cl.list.FilterState() == list.Filtering
}

// Selected returns the profile chosen with enter, if any.
func (cl *ConnectionList) Selected() *config.ServerProfile {
	return cl.selected
}

// Highlighted returns the profile under the cursor.
func (cl *ConnectionList) Highlighted() *config.ServerProfile {
	item, ok := cl.list.SelectedItem().(profileItem)
	if !ok {
		return nil
	}
	p := item.profile
	return &p
}

// SetProfiles replaces the rows, keeping the cursor on the same identifier
// when it still exists.
func (cl *ConnectionList) SetProfiles(profiles []config.ServerProfile) {
	var keep string
	if p := cl.Highlighted(); p != nil {
		keep = p.ID
	}

	cl.profiles = profiles
	items := make([]list.Item, len(profiles))
	cursor := 0
	for i, p := range profiles {
		items[i] = profileItem{profile: p}
		if p.ID == keep {
			cursor = i
		}
	}
	cl.list.SetItems(items)
	cl.list.Select(cursor)
}

func (cl *ConnectionList) Reset() {
	cl.selected = nil
}

func (cl *ConnectionList) SetSize(width, height int) {
	cl.list.SetWidth(width)
	cl.list.SetHeight(height)
}

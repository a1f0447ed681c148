package ui

import (
	"errors"
	"io/fs"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/eugeniofciuvasile/ssh-vault/internal/config"
	"github.com/eugeniofciuvasile/ssh-vault/internal/settings"
	"github.com/eugeniofciuvasile/ssh-vault/internal/ssh"
	"github.com/eugeniofciuvasile/ssh-vault/internal/ui/components"
	"github.com/eugeniofciuvasile/ssh-vault/internal/vault"
)

type AppState int

const (
	StateUnlock AppState = iota
	StateConnectionList
	StateAddProfile
	StateEditProfile
	StateDeleteProfile
	StateRemoveGroup
	StateRenameGroup
	StateImport
	StateConnecting
	StateShell
	StateFileManager
)

const (
	headerLines = 4
	footerLines = 4
)

// connectIntent is what to open once a connection is established.
type connectIntent int

const (
	intentShell connectIntent = iota
	intentFiles
)

type Model struct {
	settings settings.Settings
	state    AppState
	width    int
	height   int

	store    *vault.Store
	registry *config.Registry
	manager  *ssh.Manager

	unlockForm     *components.UnlockForm
	connectionList *components.ConnectionList
	connectionForm *components.ConnectionForm
	confirm        *components.DeleteConfirmation
	prompt         *components.PromptForm
	connecting     *components.ConnectingView
	fileManager    *components.FileManager

	attempt *ssh.Attempt
	intent  connectIntent
	session *ssh.Session

	renameFrom     string
	clipboardGen   int
	clipboardDirty bool

	statusMessage string
	errorMessage  string
}

// NewModel starts on the unlock screen, in create mode when no store
// exists yet.
func NewModel(s settings.Settings) *Model {
	_, err := os.Stat(s.StorePath)
	create := errors.Is(err, fs.ErrNotExist)
	return &Model{
		settings:   s,
		state:      StateUnlock,
		unlockForm: components.NewUnlockForm(s.StorePath, create),
	}
}

func (m *Model) Init() tea.Cmd {
	return m.unlockForm.Init()
}

func (m *Model) listHeight() int {
	height := m.height
	if height <= 0 {
		height = 20
	}
	return max(height-headerLines-footerLines, 5)
}

// refreshList reloads the list rows from the registry.
func (m *Model) refreshList() {
	profiles := m.registry.Profiles()
	if m.connectionList == nil {
		m.connectionList = components.NewConnectionList(profiles, m.width, m.listHeight())
		return
	}
	m.connectionList.SetProfiles(profiles)
}

func (m *Model) showList() {
	m.state = StateConnectionList
	m.connectionForm = nil
	m.confirm = nil
	m.prompt = nil
	m.connecting = nil
	m.fileManager = nil
	m.connectionList.Reset()
}

func (m *Model) getActiveComponent() tea.Model {
	switch m.state {
	case StateUnlock:
		return m.unlockForm
	case StateConnectionList:
		if m.connectionList == nil {
			return nil
		}
		return m.connectionList
	case StateAddProfile, StateEditProfile:
		return m.connectionForm
	case StateDeleteProfile, StateRemoveGroup:
		return m.confirm
	case StateRenameGroup, StateImport:
		return m.prompt
	case StateConnecting:
		return m.connecting
	case StateFileManager:
		return m.fileManager
	default:
		return nil
	}
}

// handleComponentResult acts on a component that finished, submitted or was
// canceled.
func (m *Model) handleComponentResult(model tea.Model, cmd tea.Cmd) tea.Cmd {
	switch m.state {
	case StateUnlock:
		if m.unlockForm.IsCanceled() {
			return tea.Quit
		}
		if m.unlockForm.IsSubmitted() && !m.unlockForm.Busy() {
			return tea.Batch(cmd, m.unlock())
		}

	case StateConnectionList:
		if p := m.connectionList.Selected(); p != nil {
			m.connectionList.Reset()
			return tea.Batch(cmd, m.connect(*p, intentShell))
		}

	case StateAddProfile, StateEditProfile:
		if m.connectionForm.IsCanceled() {
			m.showList()
			return nil
		}
		if m.connectionForm.IsSubmitted() {
			draft := m.connectionForm.Draft()
			if err := m.saveDraft(draft); err != nil {
				m.connectionForm.Fail(err.Error())
				return cmd
			}
			m.statusMessage = "Saved " + draft.Profile.ID
			m.showList()
			return nil
		}

	case StateDeleteProfile:
		if m.confirm.IsCanceled() {
			m.showList()
			return nil
		}
		if m.confirm.IsConfirmed() {
			id := m.confirm.Subject()
			if err := m.registry.Remove(id); err != nil {
				m.errorMessage = err.Error()
			} else {
				m.persist("Deleted " + id)
			}
			m.showList()
			return nil
		}

	case StateRemoveGroup:
		if m.confirm.IsCanceled() {
			m.showList()
			return nil
		}
		if m.confirm.IsConfirmed() {
			label := m.confirm.Subject()
			if moved, err := m.registry.RemoveGroup(label); err != nil {
				m.errorMessage = err.Error()
			} else {
				m.persist(pluralize("Removed group "+label+", ungrouped %d server", len(moved)))
			}
			m.showList()
			return nil
		}

	case StateRenameGroup:
		if m.prompt.IsCanceled() {
			m.showList()
			return nil
		}
		if m.prompt.IsSubmitted() {
			to := m.prompt.Value()
			if err := m.registry.RenameGroup(m.renameFrom, to); err != nil {
				m.errorMessage = err.Error()
			} else {
				m.persist("Renamed group " + m.renameFrom + " to " + to)
			}
			m.showList()
			return nil
		}

	case StateImport:
		if m.prompt.IsCanceled() {
			m.showList()
			return nil
		}
		if m.prompt.IsSubmitted() {
			m.importFrom(config.ExpandPath(m.prompt.Value()))
			m.showList()
			return nil
		}

	case StateConnecting:
		if m.connecting.IsCanceled() {
			m.cancelAttempt()
			m.statusMessage = "Connection canceled"
			m.showList()
			return nil
		}

	case StateFileManager:
		if m.fileManager.IsFinished() {
			m.closeSession()
			m.statusMessage = "File transfer closed"
			m.showList()
			return nil
		}
	}
	return cmd
}

// shutdown releases everything the program holds. It runs after the Bubble
// Tea loop has exited.
func (m *Model) shutdown() {
	m.cancelAttempt()
	m.closeSession()
	if m.clipboardDirty {
		clearClipboard()
	}
	if m.store != nil {
		m.store.Lock()
	}
}

package ui

import (
	"errors"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/eugeniofciuvasile/ssh-vault/internal/config"
	"github.com/eugeniofciuvasile/ssh-vault/internal/logging"
	"github.com/eugeniofciuvasile/ssh-vault/internal/secret"
	"github.com/eugeniofciuvasile/ssh-vault/internal/ssh"
	"github.com/eugeniofciuvasile/ssh-vault/internal/ui/components"
	"github.com/eugeniofciuvasile/ssh-vault/internal/vault"
)

type unlockedMsg struct {
	store    *vault.Store
	registry *config.Registry
	err      error
}

type revealedMsg struct {
	id   string
	what string
	gen  int
	err  error
}

type clipboardClearMsg struct {
	gen int
}

// unlock derives the key off the update loop. A store that was locked from
// the list is unlocked in place; otherwise the file is opened or created.
func (m *Model) unlock() tea.Cmd {
	m.unlockForm.SetBusy(true)
	password := m.unlockForm.Password()
	path := m.settings.StorePath
	params := m.settings.KDFParams()
	create := m.unlockForm.Creating()
	store, reg := m.store, m.registry

	return func() tea.Msg {
		if store != nil {
			return unlockedMsg{store: store, registry: reg, err: store.Unlock(password)}
		}
		if create {
			store, reg, err := vault.Create(path, password, params)
			return unlockedMsg{store: store, registry: reg, err: err}
		}
		store, reg, err := vault.OpenOrMigrate(path, password, params)
		return unlockedMsg{store: store, registry: reg, err: err}
	}
}

func (m *Model) handleUnlocked(msg unlockedMsg) tea.Cmd {
	if msg.err != nil {
		logging.Errorf("[UI] Unlock failed: %v", msg.err)
		switch {
		case errors.Is(msg.err, vault.ErrWrongPassword):
			m.unlockForm.Fail("Wrong password")
		case errors.Is(msg.err, vault.ErrNotInitialized):
			m.unlockForm = components.NewUnlockForm(m.settings.StorePath, true)
			m.unlockForm.SetSize(m.width, m.height)
			return m.unlockForm.Init()
		default:
			m.unlockForm.Fail(msg.err.Error())
		}
		return nil
	}

	opened := m.store != msg.store
	m.store = msg.store
	m.registry = msg.registry
	m.manager = ssh.NewManager(m.store, m.settings.ManagerOptions())
	m.unlockForm = components.NewUnlockForm(m.settings.StorePath, false)
	m.refreshList()
	m.showList()
	m.statusMessage = pluralize("Unlocked, %d server", m.registry.Len())
	if report := m.store.Migration(); report != nil && opened {
		m.statusMessage = "Converted legacy store: " + report.String()
	}
	logging.Infof("[UI] Store unlocked with %d profiles", m.registry.Len())
	return nil
}

// lock wipes the key and returns to the unlock screen. The registry only
// holds ciphertext secrets and is kept for the next unlock.
func (m *Model) lock() tea.Cmd {
	m.store.Lock()
	m.state = StateUnlock
	m.unlockForm = components.NewUnlockForm(m.settings.StorePath, false)
	m.unlockForm.SetSize(m.width, m.height)
	logging.Infof("[UI] Store locked")
	return m.unlockForm.Init()
}

// persist writes the registry and reports done on success.
func (m *Model) persist(done string) bool {
	if err := m.store.Persist(m.registry); err != nil {
		logging.Errorf("[UI] Persist failed: %v", err)
		m.errorMessage = fmt.Sprintf("Failed to save store: %v", err)
		return false
	}
	m.statusMessage = done
	m.refreshList()
	return true
}

func (m *Model) seal(plaintext string) (*secret.Sealed, error) {
	if plaintext == "" {
		return nil, nil
	}
	b := []byte(plaintext)
	defer secret.Wipe(b)
	return m.store.SealSecret(b)
}

func usesAuth(p config.ServerProfile, kind config.AuthKind) bool {
	for _, method := range p.Methods() {
		if method.Kind == kind {
			return true
		}
	}
	return false
}

// saveDraft adds or edits the profile and persists the store. Secrets left
// empty while editing keep their stored value; secrets no method needs any
// more are dropped.
func (m *Model) saveDraft(d components.ProfileDraft) error {
	password, err := m.seal(d.Password)
	if err != nil {
		return err
	}
	passphrase, err := m.seal(d.Passphrase)
	if err != nil {
		return err
	}

	if d.OriginalID == "" {
		p := d.Profile
		p.Secret = password
		p.Passphrase = passphrase
		if err := m.registry.Add(p); err != nil {
			return err
		}
	} else {
		err := m.registry.Edit(d.OriginalID, func(p *config.ServerProfile) error {
			stored, storedPhrase := p.Secret, p.Passphrase
			*p = d.Profile
			p.Secret, p.Passphrase = stored, storedPhrase
			if password != nil {
				p.Secret = password
			}
			if passphrase != nil {
				p.Passphrase = passphrase
			}
			if !usesAuth(*p, config.AuthPassword) {
				p.Secret = nil
			}
			if !usesAuth(*p, config.AuthKeyFile) {
				p.Passphrase = nil
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	if err := m.store.Persist(m.registry); err != nil {
		return fmt.Errorf("failed to save store: %w", err)
	}
	m.refreshList()
	return nil
}

// importFrom merges the hosts of an OpenSSH client config into the registry.
func (m *Model) importFrom(path string) {
	entries, err := config.LoadSSHConfig(path)
	if err != nil {
		m.errorMessage = err.Error()
		return
	}
	var lookup config.PasswordLookup
	if service := m.settings.Import.KeyringService; service != "" {
		lookup = config.KeyringLookup(service)
	}
	report, err := config.ImportEntries(m.registry, entries, m.store, lookup)
	if err != nil {
		m.errorMessage = err.Error()
		return
	}
	summary := fmt.Sprintf("Imported %d, skipped %d, rejected %d from %s",
		len(report.Added), len(report.Skipped), len(report.Rejected), path)
	logging.Infof("[UI] %s", summary)
	if len(report.Added) == 0 {
		m.statusMessage = summary
		return
	}
	m.persist(summary)
}

// copySecret decrypts the highlighted profile's password, or its key
// passphrase, straight to the clipboard.
func (m *Model) copySecret(p config.ServerProfile) tea.Cmd {
	sealed, what := p.Secret, "password"
	if sealed == nil {
		sealed, what = p.Passphrase, "passphrase"
	}
	if sealed == nil {
		m.errorMessage = "No saved secret for " + p.ID
		return nil
	}

	m.clipboardGen++
	gen := m.clipboardGen
	store := m.store
	return func() tea.Msg {
		plaintext, err := store.OpenSecret(sealed)
		if err != nil {
			return revealedMsg{id: p.ID, what: what, gen: gen, err: err}
		}
		err = clipboard.WriteAll(string(plaintext))
		secret.Wipe(plaintext)
		return revealedMsg{id: p.ID, what: what, gen: gen, err: err}
	}
}

func (m *Model) handleRevealed(msg revealedMsg) tea.Cmd {
	if msg.err != nil {
		m.errorMessage = fmt.Sprintf("Failed to copy %s for %s: %v", msg.what, msg.id, msg.err)
		return nil
	}
	m.clipboardDirty = true
	after := m.settings.ClipboardClear
	if after <= 0 {
		m.statusMessage = fmt.Sprintf("Copied %s for %s", msg.what, msg.id)
		return nil
	}
	m.statusMessage = fmt.Sprintf("Copied %s for %s, clearing in %s", msg.what, msg.id, after)
	gen := msg.gen
	return tea.Tick(after, func(time.Time) tea.Msg { return clipboardClearMsg{gen: gen} })
}

// handleClipboardClear only clears for the latest copy.
func (m *Model) handleClipboardClear(msg clipboardClearMsg) {
	if msg.gen != m.clipboardGen || !m.clipboardDirty {
		return
	}
	clearClipboard()
	m.clipboardDirty = false
	m.statusMessage = "Clipboard cleared"
}

func clearClipboard() {
	if err := clipboard.WriteAll(""); err != nil {
		logging.Errorf("[UI] Failed to clear clipboard: %v", err)
	}
}

func pluralize(format string, n int) string {
	s := fmt.Sprintf(format, n)
	if n != 1 {
		s += "s"
	}
	return s
}

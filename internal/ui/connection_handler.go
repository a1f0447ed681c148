package ui

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/eugeniofciuvasile/ssh-vault/internal/config"
	"github.com/eugeniofciuvasile/ssh-vault/internal/logging"
	"github.com/eugeniofciuvasile/ssh-vault/internal/ssh"
	"github.com/eugeniofciuvasile/ssh-vault/internal/ui/components"
)

type attemptStateMsg struct {
	attempt *ssh.Attempt
	state   ssh.State
}

type attemptDoneMsg struct {
	attempt *ssh.Attempt
	session *ssh.Session
	err     error
}

type shellExitMsg struct {
	session *ssh.Session
	err     error
}

type sessionClosedMsg struct {
	session *ssh.Session
}

// waitForAttempt delivers the next transition of a, then its outcome.
func waitForAttempt(a *ssh.Attempt) tea.Cmd {
	return func() tea.Msg {
		if s, ok := <-a.States(); ok {
			return attemptStateMsg{attempt: a, state: s}
		}
		session, err := a.Wait()
		return attemptDoneMsg{attempt: a, session: session, err: err}
	}
}

// watchSession reports when s closes or its transport drops.
func watchSession(s *ssh.Session) tea.Cmd {
	return func() tea.Msg {
		<-s.Done()
		return sessionClosedMsg{session: s}
	}
}

func target(p config.ServerProfile) string {
	return fmt.Sprintf("%s (%s@%s)", p.ID, p.Username, p.Address())
}

// connect starts an attempt for p. The attempt runs until it finishes or
// the user cancels it; the resulting session outlives it.
func (m *Model) connect(p config.ServerProfile, intent connectIntent) tea.Cmd {
	if m.attempt != nil || m.session != nil {
		m.errorMessage = "A connection is already active"
		return nil
	}
	logging.Infof("[UI] Connecting to %s", p.ID)
	m.intent = intent
	m.attempt = m.manager.Connect(context.Background(), p)
	m.connecting = components.NewConnectingView(target(p))
	m.connecting.SetSize(m.width, m.height)
	m.state = StateConnecting
	return tea.Batch(m.connecting.Init(), waitForAttempt(m.attempt))
}

func (m *Model) cancelAttempt() {
	if m.attempt == nil {
		return
	}
	logging.Infof("[UI] Canceling connection to %s", m.attempt.Profile().ID)
	m.attempt.Cancel()
	m.attempt = nil
}

func (m *Model) closeSession() {
	if m.fileManager != nil {
		if err := m.fileManager.Close(); err != nil {
			logging.Errorf("[UI] Failed to close SFTP client: %v", err)
		}
	}
	if m.session != nil {
		m.session.Close()
		m.session = nil
	}
}

func (m *Model) handleAttemptState(msg attemptStateMsg) tea.Cmd {
	if msg.attempt == m.attempt && m.connecting != nil {
		m.connecting.Observe(msg.state)
	}
	// Stale attempts are still drained so their outcome can be released.
	return waitForAttempt(msg.attempt)
}

func (m *Model) handleAttemptDone(msg attemptDoneMsg) tea.Cmd {
	if msg.attempt != m.attempt {
		if msg.session != nil {
			msg.session.Close()
		}
		return nil
	}
	m.attempt = nil
	profile := msg.attempt.Profile()

	if msg.err != nil {
		logging.Errorf("[UI] Connection to %s failed: %v", profile.ID, msg.err)
		m.errorMessage = describeConnectError(profile, msg.err)
		m.showList()
		return nil
	}

	m.session = msg.session
	logging.Infof("[UI] Connected to %s with %s", profile.ID, m.session.Method())
	if m.intent == intentFiles {
		return m.openFiles(profile)
	}
	return m.openShell(profile)
}

// openShell hands the terminal to the remote shell until it exits.
func (m *Model) openShell(p config.ServerProfile) tea.Cmd {
	bridge, err := m.session.OpenShell(m.settings.Term)
	if err != nil {
		m.closeSession()
		m.errorMessage = fmt.Sprintf("Failed to open shell on %s: %v", p.ID, err)
		m.showList()
		return nil
	}
	m.state = StateShell
	session := m.session
	return tea.Exec(bridge, func(err error) tea.Msg {
		return shellExitMsg{session: session, err: err}
	})
}

func (m *Model) handleShellExit(msg shellExitMsg) tea.Cmd {
	if msg.session != m.session {
		return nil
	}
	p := m.session.Profile()
	m.closeSession()
	if msg.err != nil {
		logging.Errorf("[UI] Shell on %s ended: %v", p.ID, msg.err)
		m.errorMessage = fmt.Sprintf("Shell on %s ended: %v", p.ID, msg.err)
	} else {
		m.statusMessage = "Disconnected from " + p.ID
	}
	m.showList()
	return nil
}

// openFiles starts the SFTP file manager on the session.
func (m *Model) openFiles(p config.ServerProfile) tea.Cmd {
	client, err := m.session.OpenSFTP()
	if err != nil {
		m.closeSession()
		m.errorMessage = fmt.Sprintf("Failed to start SFTP on %s: %v", p.ID, err)
		m.showList()
		return nil
	}
	localDir, err := os.UserHomeDir()
	if err != nil {
		localDir = "."
	}
	m.fileManager = components.NewFileManager(target(p), client, localDir)
	m.fileManager.SetSize(m.width, m.height)
	m.state = StateFileManager
	return tea.Batch(m.fileManager.Init(), watchSession(m.session))
}

func (m *Model) handleSessionClosed(msg sessionClosedMsg) {
	if msg.session != m.session || m.state != StateFileManager {
		return
	}
	err := msg.session.Err()
	m.closeSession()
	if err != nil {
		m.errorMessage = fmt.Sprintf("Connection to %s lost: %v", msg.session.Profile().ID, err)
	}
	m.showList()
}

func describeConnectError(p config.ServerProfile, err error) string {
	switch {
	case errors.Is(err, ssh.ErrAuthenticationRejected):
		return fmt.Sprintf("%s rejected every configured method. Press e to check the credentials.", p.ID)
	case errors.Is(err, ssh.ErrHostKeyRejected):
		return fmt.Sprintf("Host key for %s does not match known_hosts: %v", p.ID, err)
	case errors.Is(err, ssh.ErrStoreLocked):
		return "The store is locked. Unlock it and try again."
	}
	return fmt.Sprintf("Connection to %s failed: %v", p.ID, err)
}

package ssh

import (
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/eugeniofciuvasile/ssh-vault/internal/config"
	"github.com/eugeniofciuvasile/ssh-vault/internal/logging"
)

// Session is one authenticated SSH transport. Shell and SFTP bridges open
// channels over it, so a single Session can carry both at once.
type Session struct {
	client  *ssh.Client
	profile config.ServerProfile
	method  config.AuthMethod

	mu      sync.Mutex
	state   State
	err     error
	closing bool
	done    chan struct{}
}

func newSession(client *ssh.Client, profile config.ServerProfile, method config.AuthMethod) *Session {
	s := &Session{
		client:  client,
		profile: profile,
		method:  method,
		state:   StateEstablished,
		done:    make(chan struct{}),
	}
	go s.watch()
	return s
}

// watch waits for the transport to end and records why.
func (s *Session) watch() {
	waitErr := s.client.Wait()

	s.mu.Lock()
	if s.closing {
		s.state = StateClosed
	} else {
		s.state = StateFailed
		s.err = &Error{
			Kind:   KindTransportDropped,
			Method: s.method,
			Host:   s.profile.Address(),
			Err:    waitErr,
		}
		logging.Errorf("[Session] %v", s.err)
	}
	s.mu.Unlock()
	close(s.done)
}

// Profile returns the profile this session was opened for.
func (s *Session) Profile() config.ServerProfile {
	return s.profile
}

// Method returns the auth method that succeeded.
func (s *Session) Method() config.AuthMethod {
	return s.method
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session reaches Closed or Failed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the failure that ended the session, or nil while it is live or
// after a user close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// MarkInUse records that a bridge is attached.
func (s *Session) MarkInUse() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEstablished {
		s.state = StateInUse
	}
}

// Close ends the session. It is safe to call from any goroutine, any number
// of times.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state.Terminal() || s.closing {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closing = true
	s.mu.Unlock()

	err := s.client.Close()
	<-s.done
	logging.Infof("[Session] Closed %s", s.profile.ID)
	return err
}

// Client exposes the underlying transport for channel types the bridges do
// not cover.
func (s *Session) Client() *ssh.Client {
	return s.client
}

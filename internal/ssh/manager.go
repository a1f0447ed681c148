// Package ssh turns stored server profiles into live SSH sessions and bridges
// them to a terminal or an SFTP client.
package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/eugeniofciuvasile/ssh-vault/internal/config"
	"github.com/eugeniofciuvasile/ssh-vault/internal/logging"
)

// DefaultConnectTimeout bounds dialing plus the SSH handshake of one auth
// method.
const DefaultConnectTimeout = 10 * time.Second

// Dialer opens the TCP connection for an attempt. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options configures a Manager. Zero values select the defaults.
type Options struct {
	ConnectTimeout time.Duration
	KnownHostsPath string
	HostKeyPolicy  HostKeyPolicy
	Dialer         Dialer
}

// Manager starts connection attempts. It never sees the master key; stored
// secrets are decrypted on demand through secrets.
type Manager struct {
	secrets SecretOpener
	opts    Options

	knownHostsMu sync.Mutex
}

// NewManager returns a Manager using secrets to decrypt stored credentials.
func NewManager(secrets SecretOpener, opts Options) *Manager {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.KnownHostsPath == "" {
		opts.KnownHostsPath = DefaultKnownHostsPath()
	}
	if opts.HostKeyPolicy == "" {
		opts.HostKeyPolicy = HostKeyAcceptNew
	}
	if opts.Dialer == nil {
		opts.Dialer = &net.Dialer{}
	}
	return &Manager{secrets: secrets, opts: opts}
}

// Result is the outcome of an Attempt: exactly one of Session and Err is set.
type Result struct {
	Session *Session
	Err     error
}

// Attempt is one connection attempt running on its own goroutine. States
// delivers every transition and is closed after the terminal one; Result
// delivers the outcome once.
type Attempt struct {
	m       *Manager
	profile config.ServerProfile

	states chan State
	result chan Result
	cancel context.CancelCauseFunc

	mu      sync.Mutex
	session *Session
}

var errCancelled = errors.New("connection cancelled")

// Connect starts connecting to profile and returns immediately. The profile's
// primary method is tried first, then each fallback over a fresh connection.
// ctx bounds the attempt, not the resulting session.
func (m *Manager) Connect(ctx context.Context, profile config.ServerProfile) *Attempt {
	ctx, cancel := context.WithCancelCause(ctx)
	a := &Attempt{
		m:       m,
		profile: profile.Clone(),
		// Resolving and Authenticating per method plus one terminal state.
		states: make(chan State, 2*len(profile.Methods())+1),
		result: make(chan Result, 1),
		cancel: cancel,
	}
	go a.run(ctx)
	return a
}

// States returns the transition channel.
func (a *Attempt) States() <-chan State {
	return a.states
}

// Result returns the outcome channel. Use either Result or Wait, not both.
func (a *Attempt) Result() <-chan Result {
	return a.result
}

// Wait blocks until the attempt finishes.
func (a *Attempt) Wait() (*Session, error) {
	r := <-a.result
	return r.Session, r.Err
}

// Profile returns the profile being connected.
func (a *Attempt) Profile() config.ServerProfile {
	return a.profile
}

// Cancel aborts the attempt in whatever state it is in. If the session was
// already established it is closed.
func (a *Attempt) Cancel() {
	a.cancel(errCancelled)
	a.mu.Lock()
	s := a.session
	a.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

func (a *Attempt) emit(s State) {
	a.states <- s
}

func (a *Attempt) run(ctx context.Context) {
	defer a.cancel(nil)
	defer close(a.states)

	host := a.profile.Address()
	var errs []error
	var last *Error

	for _, method := range a.profile.Methods() {
		session, err := a.try(ctx, method)
		if err == nil {
			a.mu.Lock()
			a.session = session
			a.mu.Unlock()
			if ctx.Err() != nil {
				// Cancelled right as the handshake finished.
				session.Close()
				a.finishCancelled(host)
				return
			}
			logging.Infof("[Connect] Connected to %s (%s) via %s", a.profile.ID, host, method)
			a.emit(StateEstablished)
			a.result <- Result{Session: session}
			return
		}

		if ctx.Err() != nil {
			a.finishCancelled(host)
			return
		}

		logging.Errorf("[Connect] %s: %v", a.profile.ID, err)
		errs = append(errs, err)
		if !errors.As(err, &last) {
			last = &Error{Kind: KindUnreachableHost, Method: method, Host: host, Err: err}
		}
		if last.Kind == KindUnreachableHost || last.Kind == KindHostKeyRejected {
			break
		}
	}

	final := last
	if len(errs) > 1 {
		final = &Error{Kind: last.Kind, Method: last.Method, Host: host, Err: errors.Join(errs...)}
	}
	a.emit(StateFailed)
	a.result <- Result{Err: final}
}

func (a *Attempt) finishCancelled(host string) {
	logging.Infof("[Connect] Attempt to %s cancelled", host)
	a.emit(StateClosed)
	a.result <- Result{Err: fmt.Errorf("%s: %w", host, context.Canceled)}
}

// try dials a fresh transport and authenticates with a single method.
func (a *Attempt) try(ctx context.Context, method config.AuthMethod) (*Session, error) {
	m := a.m
	host := a.profile.Address()
	fail := func(kind ErrorKind, err error) (*Session, error) {
		return nil, &Error{Kind: kind, Method: method, Host: host, Err: err}
	}

	tctx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()

	a.emit(StateResolving)
	logging.Debugf("[Connect] Dialing %s for %s", host, a.profile.ID)
	conn, err := m.opts.Dialer.DialContext(tctx, "tcp", host)
	if err != nil {
		return fail(KindUnreachableHost, err)
	}
	// Closing the connection is the only way to abort a blocked handshake.
	stop := context.AfterFunc(tctx, func() { conn.Close() })

	a.emit(StateAuthenticating)
	auth, release, err := m.authMethod(a.profile, method)
	if err != nil {
		stop()
		conn.Close()
		return nil, err
	}
	defer release()

	checker := &hostKeyChecker{
		policy: m.opts.HostKeyPolicy,
		path:   m.opts.KnownHostsPath,
		mu:     &m.knownHostsMu,
	}
	clientConfig := &ssh.ClientConfig{
		User:            a.profile.Username,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: checker.check,
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, host, clientConfig)
	if !stop() {
		if err == nil {
			c.Close()
		}
		conn.Close()
		if ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return fail(KindUnreachableHost, fmt.Errorf("no response within %s", m.opts.ConnectTimeout))
	}
	if err != nil {
		conn.Close()
		switch {
		case checker.rejected != nil:
			return fail(KindHostKeyRejected, checker.rejected)
		case checker.checked:
			return fail(KindAuthenticationRejected, err)
		default:
			return fail(KindUnreachableHost, err)
		}
	}

	return newSession(ssh.NewClient(c, chans, reqs), a.profile, method), nil
}

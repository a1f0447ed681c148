package ssh

import (
	"errors"
	"fmt"

	"github.com/eugeniofciuvasile/ssh-vault/internal/config"
)

// ErrorKind classifies why an attempt or a session failed.
type ErrorKind int

const (
	KindUnreachableHost ErrorKind = iota + 1
	KindAuthenticationRejected
	KindStoreLocked
	KindKeyFileUnreadable
	KindAgentUnavailable
	KindTransportDropped
	KindHostKeyRejected
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrUnreachableHost        = errors.New("host unreachable")
	ErrAuthenticationRejected = errors.New("authentication rejected")
	ErrStoreLocked            = errors.New("credential store is locked")
	ErrKeyFileUnreadable      = errors.New("key file unreadable")
	ErrAgentUnavailable       = errors.New("ssh agent unavailable")
	ErrTransportDropped       = errors.New("connection dropped")
	ErrHostKeyRejected        = errors.New("host key rejected")
)

var kindSentinels = map[ErrorKind]error{
	KindUnreachableHost:        ErrUnreachableHost,
	KindAuthenticationRejected: ErrAuthenticationRejected,
	KindStoreLocked:            ErrStoreLocked,
	KindKeyFileUnreadable:      ErrKeyFileUnreadable,
	KindAgentUnavailable:       ErrAgentUnavailable,
	KindTransportDropped:       ErrTransportDropped,
	KindHostKeyRejected:        ErrHostKeyRejected,
}

func (k ErrorKind) String() string {
	if err, ok := kindSentinels[k]; ok {
		return err.Error()
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the failure of a connection attempt or of a live session. Its text
// names the host and the auth method but never carries secret material.
type Error struct {
	Kind   ErrorKind
	Method config.AuthMethod
	Host   string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s via %s", e.Host, e.Kind, e.Method)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrUnreachableHost) and friends work.
func (e *Error) Is(target error) bool {
	return target != nil && kindSentinels[e.Kind] == target
}

// Reachable reports whether the failure happened after the TCP connection
// was established.
func (e *Error) Reachable() bool {
	return e.Kind != KindUnreachableHost
}

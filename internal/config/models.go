package config

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"

	"github.com/eugeniofciuvasile/ssh-vault/internal/secret"
)

const (
	// DefaultGroup is the group new profiles are placed in by the UI.
	DefaultGroup = "General"
	// ImportedGroup receives profiles created from ssh_config entries.
	ImportedGroup = "Imported"
	// DefaultPort is the SSH port used when none is given.
	DefaultPort = 22
)

var (
	ErrDuplicateIdentifier = errors.New("profile identifier already exists")
	ErrNotFound            = errors.New("profile not found")
	ErrInvalidProfile      = errors.New("invalid profile")
)

// AuthKind selects how a profile authenticates.
type AuthKind int

const (
	AuthPassword AuthKind = iota
	AuthKeyFile
	AuthAgent
)

var authKindNames = map[AuthKind]string{
	AuthPassword: "password",
	AuthKeyFile:  "keyfile",
	AuthAgent:    "agent",
}

func (k AuthKind) String() string {
	if name, ok := authKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("AuthKind(%d)", int(k))
}

// ParseAuthKind accepts the names produced by String.
func ParseAuthKind(s string) (AuthKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for kind, name := range authKindNames {
		if name == s {
			return kind, nil
		}
	}
	switch s {
	case "key", "publickey":
		return AuthKeyFile, nil
	}
	return 0, fmt.Errorf("unknown auth method %q", s)
}

func (k AuthKind) MarshalText() ([]byte, error) {
	name, ok := authKindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown auth method %d", int(k))
	}
	return []byte(name), nil
}

func (k *AuthKind) UnmarshalText(text []byte) error {
	kind, err := ParseAuthKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// AuthMethod is one entry of a profile's authentication plan. KeyPath is only
// meaningful for AuthKeyFile.
type AuthMethod struct {
	Kind    AuthKind `json:"kind"`
	KeyPath string   `json:"key_path,omitempty"`
}

func (m AuthMethod) String() string {
	if m.Kind == AuthKeyFile && m.KeyPath != "" {
		return fmt.Sprintf("%s(%s)", m.Kind, m.KeyPath)
	}
	return m.Kind.String()
}

// ServerProfile represents a saved SSH server. Secret and Passphrase only
// ever hold ciphertext sealed with the store's master key.
type ServerProfile struct {
	ID       string       `json:"id"`
	Host     string       `json:"host"`
	Port     int          `json:"port"`
	Username string       `json:"username"`
	Group    string       `json:"group,omitempty"`
	Notes    string       `json:"notes,omitempty"`
	Auth     AuthMethod   `json:"auth"`
	Fallback []AuthMethod `json:"fallback,omitempty"`

	Secret     *secret.Sealed `json:"secret,omitempty"`     // password
	Passphrase *secret.Sealed `json:"passphrase,omitempty"` // key file passphrase
}

// Methods returns the primary auth method followed by the fallback list.
func (p ServerProfile) Methods() []AuthMethod {
	methods := make([]AuthMethod, 0, 1+len(p.Fallback))
	methods = append(methods, p.Auth)
	return append(methods, p.Fallback...)
}

// Address returns host:port suitable for dialing.
func (p ServerProfile) Address() string {
	port := p.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(port))
}

// Validate checks the fields every profile must carry.
func (p ServerProfile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: identifier is required", ErrInvalidProfile)
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("%w: host is required for %s", ErrInvalidProfile, p.ID)
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range for %s", ErrInvalidProfile, p.Port, p.ID)
	}
	for _, m := range p.Methods() {
		if _, ok := authKindNames[m.Kind]; !ok {
			return fmt.Errorf("%w: unknown auth method for %s", ErrInvalidProfile, p.ID)
		}
		if m.Kind == AuthKeyFile && strings.TrimSpace(m.KeyPath) == "" {
			return fmt.Errorf("%w: key file path is required for %s", ErrInvalidProfile, p.ID)
		}
	}
	return nil
}

// Clone returns a deep copy so callers cannot alias registry state.
func (p ServerProfile) Clone() ServerProfile {
	c := p
	c.Fallback = slices.Clone(p.Fallback)
	c.Secret = p.Secret.Clone()
	c.Passphrase = p.Passphrase.Clone()
	return c
}

// HostEntry is a host block read from an OpenSSH client config file.
type HostEntry struct {
	Alias        string
	Host         string
	Port         int
	User         string
	IdentityFile string
}

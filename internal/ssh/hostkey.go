package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/eugeniofciuvasile/ssh-vault/internal/config"
	"github.com/eugeniofciuvasile/ssh-vault/internal/logging"
)

// HostKeyPolicy decides what happens to host keys missing from known_hosts.
type HostKeyPolicy string

const (
	// HostKeyStrict rejects every host not already in known_hosts.
	HostKeyStrict HostKeyPolicy = "strict"
	// HostKeyAcceptNew records unseen hosts and rejects changed keys.
	HostKeyAcceptNew HostKeyPolicy = "accept-new"
	// HostKeyInsecure skips verification entirely.
	HostKeyInsecure HostKeyPolicy = "insecure"
)

// ParseHostKeyPolicy accepts the policy names, case-insensitively.
func ParseHostKeyPolicy(s string) (HostKeyPolicy, error) {
	switch p := HostKeyPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case HostKeyStrict, HostKeyAcceptNew, HostKeyInsecure:
		return p, nil
	case "":
		return HostKeyAcceptNew, nil
	}
	return "", fmt.Errorf("unknown host key policy %q", s)
}

// DefaultKnownHostsPath returns ~/.ssh/known_hosts.
func DefaultKnownHostsPath() string {
	return config.ExpandPath("~/.ssh/known_hosts")
}

// hostKeyChecker verifies one handshake and remembers whether the host key
// was looked at, which separates handshake failures before and after it.
type hostKeyChecker struct {
	policy HostKeyPolicy
	path   string
	mu     *sync.Mutex // serializes known_hosts appends across attempts

	checked  bool
	rejected error
}

func (h *hostKeyChecker) check(hostname string, remote net.Addr, key ssh.PublicKey) error {
	h.checked = true
	if h.policy == HostKeyInsecure {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.policy == HostKeyAcceptNew {
		if err := ensureFile(h.path); err != nil {
			h.rejected = err
			return err
		}
	}

	callback, err := knownhosts.New(h.path)
	if err != nil {
		h.rejected = fmt.Errorf("failed to read known_hosts: %w", err)
		return h.rejected
	}

	err = callback(hostname, remote, key)
	if err == nil {
		return nil
	}

	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) && len(keyErr.Want) == 0 && h.policy == HostKeyAcceptNew {
		if err := appendKnownHost(h.path, hostname, remote, key); err != nil {
			h.rejected = err
			return err
		}
		logging.Infof("[HostKey] Added %s (%s) to %s", hostname, ssh.FingerprintSHA256(key), h.path)
		return nil
	}

	if errors.As(err, &keyErr) && len(keyErr.Want) > 0 {
		h.rejected = fmt.Errorf("host key for %s changed, presented %s", hostname, ssh.FingerprintSHA256(key))
	} else {
		h.rejected = fmt.Errorf("unknown host %s with key %s", hostname, ssh.FingerprintSHA256(key))
	}
	logging.Errorf("[HostKey] %v", h.rejected)
	return h.rejected
}

func ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create known_hosts directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create known_hosts: %w", err)
	}
	return f.Close()
}

func appendKnownHost(path, hostname string, remote net.Addr, key ssh.PublicKey) error {
	addresses := []string{knownhosts.Normalize(hostname)}
	if remote != nil {
		if r := knownhosts.Normalize(remote.String()); r != addresses[0] {
			addresses = append(addresses, r)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, knownhosts.Line(addresses, key)); err != nil {
		return fmt.Errorf("failed to write known_hosts: %w", err)
	}
	return nil
}

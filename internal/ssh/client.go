package ssh

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"

	"github.com/eugeniofciuvasile/ssh-vault/internal/config"
	"github.com/eugeniofciuvasile/ssh-vault/internal/logging"
	"github.com/eugeniofciuvasile/ssh-vault/internal/secret"
	"github.com/eugeniofciuvasile/ssh-vault/internal/vault"
)

// SecretOpener decrypts sealed profile secrets. *vault.Store implements it.
type SecretOpener interface {
	OpenSecret(sealed *secret.Sealed) ([]byte, error)
}

var (
	errNoPassword       = errors.New("no password stored for this server")
	errSecretUnreadable = errors.New("stored secret unreadable")
)

// authMethod turns one entry of a profile's auth plan into an ssh.AuthMethod.
// release wipes decrypted material and closes agent connections; it is
// always non-nil when err is nil.
func (m *Manager) authMethod(profile config.ServerProfile, method config.AuthMethod) (ssh.AuthMethod, func(), error) {
	fail := func(kind ErrorKind, err error) (ssh.AuthMethod, func(), error) {
		return nil, nil, &Error{Kind: kind, Method: method, Host: profile.Address(), Err: err}
	}

	switch method.Kind {
	case config.AuthPassword:
		if profile.Secret.IsZero() {
			return fail(KindAuthenticationRejected, errNoPassword)
		}
		password, err := m.secrets.OpenSecret(profile.Secret)
		if err != nil {
			if errors.Is(err, vault.ErrLocked) {
				return fail(KindStoreLocked, nil)
			}
			return fail(KindAuthenticationRejected, fmt.Errorf("%w: %v", errSecretUnreadable, err))
		}
		logging.Debugf("[authMethod] Using stored password for %s", profile.ID)
		return ssh.PasswordCallback(func() (string, error) {
			return string(password), nil
		}), func() { secret.Wipe(password) }, nil

	case config.AuthKeyFile:
		signer, err := m.loadSigner(profile, method.KeyPath)
		if err != nil {
			var sshErr *Error
			if errors.As(err, &sshErr) {
				sshErr.Method = method
				return nil, nil, sshErr
			}
			return fail(KindKeyFileUnreadable, err)
		}
		logging.Debugf("[authMethod] Using key %s for %s", method.KeyPath, profile.ID)
		return ssh.PublicKeys(signer), func() {}, nil

	case config.AuthAgent:
		agentClient, closer := getSSHAgent()
		if agentClient == nil {
			return fail(KindAgentUnavailable, nil)
		}
		logging.Debugf("[authMethod] Using ssh agent for %s", profile.ID)
		release := func() {
			if closer != nil {
				closer.Close()
			}
		}
		return ssh.PublicKeysCallback(agentClient.Signers), release, nil
	}

	return fail(KindAuthenticationRejected, fmt.Errorf("unsupported auth method %s", method))
}

// loadSigner reads a private key, decrypting it with the profile's stored
// passphrase when the key is protected.
func (m *Manager) loadSigner(profile config.ServerProfile, keyPath string) (ssh.Signer, error) {
	path := config.ExpandPath(keyPath)
	keyBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	defer secret.Wipe(keyBytes)

	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err == nil {
		return signer, nil
	}

	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		return nil, fmt.Errorf("failed to parse key file %s: %w", path, err)
	}
	if profile.Passphrase.IsZero() {
		return nil, fmt.Errorf("key file %s is encrypted and no passphrase is stored", path)
	}

	passphrase, err := m.secrets.OpenSecret(profile.Passphrase)
	if err != nil {
		if errors.Is(err, vault.ErrLocked) {
			return nil, &Error{Kind: KindStoreLocked, Host: profile.Address()}
		}
		return nil, fmt.Errorf("%w: %v", errSecretUnreadable, err)
	}
	defer secret.Wipe(passphrase)

	signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, passphrase)
	if err != nil {
		return nil, fmt.Errorf("stored passphrase does not unlock %s", path)
	}
	return signer, nil
}
